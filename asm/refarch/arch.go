// Package refarch is a tiny reference target architecture: eight
// general-purpose registers, one stack pointer, absolute call/jump
// targets, no condensed addressing. It exists so the compiler core has a
// real, testable downstream client instead of a mock (SPEC_FULL.md §3.1).
//
// Grounded on the teacher's architecture/registers.go register-set
// construction and architecture/instruction-constraints.go's per-operation
// constraint tables, scaled down to a toy ISA shaped like the operand
// encoding in other_examples/grafana-k6__arch_amd64.go and
// other_examples/MJDaws0n-Novus__emit_x86_64.go.
package refarch

import "github.com/lcbwn/corda/architecture"

const GeneralRegisterCount = 8

var (
	registers []*architecture.Register
	stackReg  *architecture.Register
	set       *architecture.RegisterSet
	table     *architecture.OperationTable
)

func init() {
	names := []string{"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7"}
	var decl []*architecture.Register
	for _, name := range names {
		decl = append(decl, &architecture.Register{Name: name, AllowGeneralOp: true})
	}
	stackReg = &architecture.Register{Name: "sp", IsStackPointer: true}
	decl = append(decl, stackReg)

	set = architecture.NewRegisterSet(decl...)
	registers = set.Data

	table = architecture.NewOperationTable()
	anyReg := architecture.SiteConstraint{TypeMask: architecture.RegisterOperand, RegisterMask: architecture.AnyRegisterMask}
	regOrConst := architecture.SiteConstraint{TypeMask: architecture.RegisterOperand | architecture.ConstantOperand, RegisterMask: architecture.AnyRegisterMask}

	for _, size := range []architecture.Size{architecture.Size1, architecture.Size2, architecture.Size4, architecture.Size8} {
		table.Set(architecture.OpMove, size, architecture.Plan{Sources: []architecture.SiteConstraint{regOrConst}, Destination: anyReg})
		table.Set(architecture.OpCompare, size, architecture.Plan{Sources: []architecture.SiteConstraint{regOrConst, regOrConst}})

		for _, op := range []architecture.Operation{
			architecture.OpAdd, architecture.OpSub, architecture.OpMul, architecture.OpDiv, architecture.OpRem,
			architecture.OpShl, architecture.OpShr, architecture.OpUshr, architecture.OpAnd, architecture.OpOr, architecture.OpXor,
		} {
			table.Set(op, size, architecture.Plan{
				Sources:     []architecture.SiteConstraint{regOrConst, regOrConst},
				Destination: anyReg,
			})
		}
		table.Set(architecture.OpNeg, size, architecture.Plan{Sources: []architecture.SiteConstraint{regOrConst}, Destination: anyReg})
	}
}

// Arch is the singleton reference architecture.
type Arch struct{}

func New() *Arch { return &Arch{} }

func (Arch) Registers() *architecture.RegisterSet { return set }

func (Arch) RegisterCount() int { return set.Count() }

func (Arch) Reserved(index int) bool {
	return index >= GeneralRegisterCount-2 // r6, r7 reserved for argument-spill bookkeeping
}

func (Arch) ArgumentRegisterCount() int { return 4 }

func (Arch) ArgumentRegister(index int) *architecture.Register {
	return registers[index]
}

func (Arch) Stack() *architecture.Register { return stackReg }

func (Arch) Thread() *architecture.Register { return nil }

func (Arch) ReturnLow() *architecture.Register  { return registers[0] }
func (Arch) ReturnHigh() *architecture.Register { return nil }

func (Arch) FrameHeaderSize() int { return 1 }
func (Arch) FrameFooterSize() int { return 1 }

func (Arch) CondensedAddressing() bool { return false }

func (Arch) Plan(op architecture.Operation, sizes ...architecture.Size) architecture.Plan {
	size := architecture.Size8
	if len(sizes) > 0 {
		size = sizes[0]
	}
	p, ok := table.Lookup(op, size)
	if !ok {
		panic("refarch: no plan for operation " + string(op))
	}
	return p
}

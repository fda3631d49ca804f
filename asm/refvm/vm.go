package refvm

import (
	"encoding/binary"

	"github.com/lcbwn/corda/architecture"
	"github.com/lcbwn/corda/asm"
)

// VM interprets refvm-encoded machine code directly, used by tests to
// assert on actual execution results rather than structural properties
// alone (SPEC_FULL.md §8's bit-exact end-to-end scenarios).
type VM struct {
	Registers [GeneralRegisterCount]int64
	Memory    []byte
	SP        int64
	PC        int64

	returned bool
	retValue int64
	cmp      int
}

const GeneralRegisterCount = 8

// NewVM allocates a VM with a memSize-byte stack/heap region, stack
// pointer initialized to the top of that region.
func NewVM(memSize int) *VM {
	v := &VM{Memory: make([]byte, memSize)}
	v.SP = int64(memSize)
	return v
}

// Run executes code starting at PC 0 until a Return instruction completes,
// returning the value left in the return register.
func (v *VM) Run(code []byte) int64 {
	v.PC = 0
	v.returned = false
	for !v.returned {
		v.step(code)
	}
	return v.retValue
}

func (v *VM) step(code []byte) {
	const word = architecture.WordSize
	base := int(v.PC)
	op := architecture.Operation(trimOp(code[base : base+word]))
	sizeA := architecture.Size(binary.LittleEndian.Uint64(code[base+word : base+2*word]))
	_ = sizeA
	var operands [3]asm.Operand
	for i := 0; i < 3; i++ {
		operands[i] = v.decodeOperand(code[base+(3+i)*word : base+(4+i)*word])
	}
	v.PC += int64(instrWords * word)
	v.exec(op, operands[:])
}

func trimOp(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func (v *VM) decodeOperand(b []byte) asm.Operand {
	kind := asm.OperandKind(b[0])
	o := asm.Operand{Kind: kind}
	switch kind {
	case asm.ConstantOperandKind, asm.AddressOperandKind:
		val := int64(binary.LittleEndian.Uint64(b[1:]))
		o.Promise = architecture.ResolvedPromise(val)
	case asm.RegisterOperandKind:
		o.Low = regRef(b[1])
		o.High = regRef(b[2])
	case asm.MemoryOperandKind:
		o.Base = regRef(b[1])
		o.Index = regRef(b[2])
		o.Scale = int(b[3])
		o.Displacement = int(int32(binary.LittleEndian.Uint32(b[4:8])))
	}
	return o
}

// regRef reconstructs a synthetic *architecture.Register carrying only
// Index, enough for the VM's own register file lookups (it never consults
// refarch's real register set).
func regRef(encoded byte) *architecture.Register {
	if encoded == 0 {
		return nil
	}
	return &architecture.Register{Index: int(encoded) - 1}
}

func (v *VM) read(o asm.Operand) int64 {
	switch o.Kind {
	case asm.ConstantOperandKind, asm.AddressOperandKind:
		return o.Promise.Value()
	case asm.RegisterOperandKind:
		if o.Low.Index == -1 {
			return v.SP
		}
		return v.Registers[o.Low.Index]
	case asm.MemoryOperandKind:
		addr := v.addr(o)
		return int64(binary.LittleEndian.Uint64(v.Memory[addr:]))
	}
	panic("refvm: unreadable operand")
}

func (v *VM) addr(o asm.Operand) int64 {
	base := v.SP
	if o.Base != nil && o.Base.Index != -1 {
		base = v.Registers[o.Base.Index]
	}
	if o.Index != nil {
		base += v.Registers[o.Index.Index] * int64(o.Scale)
	}
	return base + int64(o.Displacement)
}

func (v *VM) write(o asm.Operand, value int64) {
	switch o.Kind {
	case asm.RegisterOperandKind:
		v.Registers[o.Low.Index] = value
	case asm.MemoryOperandKind:
		binary.LittleEndian.PutUint64(v.Memory[v.addr(o):], uint64(value))
	default:
		panic("refvm: unwritable destination")
	}
}

func (v *VM) exec(op architecture.Operation, ops []asm.Operand) {
	switch op {
	case architecture.OpMove:
		v.write(ops[1], v.read(ops[0]))
	case architecture.OpAdd:
		v.write(ops[2], v.read(ops[0])+v.read(ops[1]))
	case architecture.OpSub:
		v.write(ops[2], v.read(ops[0])-v.read(ops[1]))
	case architecture.OpMul:
		v.write(ops[2], v.read(ops[0])*v.read(ops[1]))
	case architecture.OpDiv:
		v.write(ops[2], v.read(ops[0])/v.read(ops[1]))
	case architecture.OpRem:
		v.write(ops[2], v.read(ops[0])%v.read(ops[1]))
	case architecture.OpShl:
		v.write(ops[2], v.read(ops[0])<<uint(v.read(ops[1])))
	case architecture.OpShr:
		v.write(ops[2], v.read(ops[0])>>uint(v.read(ops[1])))
	case architecture.OpAnd:
		v.write(ops[2], v.read(ops[0])&v.read(ops[1]))
	case architecture.OpOr:
		v.write(ops[2], v.read(ops[0])|v.read(ops[1]))
	case architecture.OpXor:
		v.write(ops[2], v.read(ops[0])^v.read(ops[1]))
	case architecture.OpNeg:
		v.write(ops[1], -v.read(ops[0]))
	case architecture.OpCompare:
		a, b := v.read(ops[0]), v.read(ops[1])
		switch {
		case a < b:
			v.cmp = -1
		case a > b:
			v.cmp = 1
		default:
			v.cmp = 0
		}
	case architecture.OpJump:
		v.PC = v.read(ops[0])
	case architecture.OpJumpIfLess:
		v.branchIf(v.cmp < 0, ops[0])
	case architecture.OpJumpIfLessOrEqual:
		v.branchIf(v.cmp <= 0, ops[0])
	case architecture.OpJumpIfGreater:
		v.branchIf(v.cmp > 0, ops[0])
	case architecture.OpJumpIfGreaterOrEqual:
		v.branchIf(v.cmp >= 0, ops[0])
	case architecture.OpJumpIfEqual:
		v.branchIf(v.cmp == 0, ops[0])
	case architecture.OpJumpIfNotEqual:
		v.branchIf(v.cmp != 0, ops[0])
	case architecture.OpReturn:
		v.retValue = v.Registers[0]
		v.returned = true
	case architecture.OpPopFrame:
		// frame bookkeeping only; this toy VM keeps SP fixed since it never
		// actually pushes a call frame (calls are not exercised by the
		// single-procedure end-to-end scenarios this VM was built to run).
	default:
		panic("refvm: unsupported operation " + string(op))
	}
}

func (v *VM) branchIf(cond bool, target asm.Operand) {
	if cond {
		v.PC = v.read(target)
	}
}

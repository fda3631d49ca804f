package codegen

import (
	"go.uber.org/zap"

	"github.com/lcbwn/corda/architecture"
	"github.com/lcbwn/corda/asm"
)

// Pass tags which of the Driver's two passes is currently running (spec.md
// §2's "two-pass pipeline").
type Pass int

const (
	ScanPass Pass = iota
	CompilePass
)

// ThunkProvider is the "Compiler client" contract (spec.md §6.3):
// getThunk(op, resultSize) -> Promise, yielding the address of a runtime
// helper implementing operations the target ISA cannot express directly.
type ThunkProvider interface {
	GetThunk(op architecture.Operation, resultSize architecture.Size) architecture.Promise
}

// Context threads the per-compilation state a Driver needs: the
// architecture/assembler client contracts, the register/frame allocators,
// the current Stack/Locals cursor, and the Event graph built so far
// (spec.md §9's "Global/contextual state" note: "a per-compilation Context
// object threads the arena, assembler, register table, frame-resource
// table, event list, and current scan/compile cursors. No process-wide
// mutable state").
type Context struct {
	Arch       architecture.Architecture
	Assembler  asm.Assembler
	Client     ThunkProvider
	Logger     *zap.Logger
	Debug      bool

	Registers *RegisterTable
	Frame     *FrameTable
	Pool      *ConstantPool

	Stack  Stack
	Locals *Locals

	// Predecessor is the tail Event of the chain currently being appended
	// to (spec.md §4.1's "advance predecessor").
	Predecessor *Event

	// PendingForkState is installed by saveState() and consumed by the next
	// appended Event's Link (spec.md §4.6).
	PendingForkState *ForkState

	LogicalCode     []*LogicalInstruction
	CurrentLogicalIp int

	FirstEvent *Event
	LastEvent  *Event

	ConstantCompare architecture.CompareResult

	Pass Pass

	machineCodeBase *int64

	eventCounter int
}

func NewContext(arch architecture.Architecture, assembler asm.Assembler, client ThunkProvider, logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx := &Context{
		Arch:      arch,
		Assembler: assembler,
		Client:    client,
		Logger:    logger,
		Pool:      &ConstantPool{},
		Stack:     nil,
		Locals:    NewLocals(0),
	}
	ctx.Registers = NewRegisterTable(ctx, arch)
	ctx.Frame = NewFrameTable(ctx, arch)
	return ctx
}

// NewCodePromise queues a CodePromise on ev, to be bound to the assembler
// offset once ev compiles (spec.md §3/§4.4 step 8).
func (ctx *Context) NewCodePromise(ev *Event) *CodePromise {
	p := &CodePromise{ctx: ctx}
	ev.Promises = append(ev.Promises, p)
	return p
}

// NewOffsetCodePromise wraps an already-known offset Promise (e.g. the
// assembler's current Offset()), not tied to a future event compile.
func (ctx *Context) NewOffsetCodePromise(offset architecture.Promise) *CodePromise {
	p := &CodePromise{ctx: ctx, offset: offset}
	return p
}

// NewIpPromise returns a Promise resolving to logicalIp's machine address
// once that LogicalInstruction compiles (spec.md §6.1's machineIp(ip)).
func (ctx *Context) NewIpPromise(logicalIp int) architecture.Promise {
	return &IpPromise{ctx: ctx, logicalIp: logicalIp}
}

// canonicalSaveIndex finds the frame index a Value should be spilled to
// when evicted from a register: its Locals entry's index if it is a local,
// else the Stack slot index it occupies, else NoFrameIndex if neither
// (spec.md §4.3: "the canonical Save Site — a frame slot derived from the
// Value's Locals entry or the Stack slot it occupies").
func (ctx *Context) canonicalSaveIndex(v *Value, stack Stack, locals *Locals) architecture.FrameIndex {
	for i, slot := range locals.Slots {
		if slot.Value == v {
			return architecture.FrameIndex(i)
		}
	}
	for cur := stack; cur != nil; cur = cur.Next {
		if cur.Value == v {
			return architecture.FrameIndex(cur.Index)
		}
	}
	return architecture.NoFrameIndex
}

// emitMove drives the assembler to copy v's content from one Site to
// another, used by the register/frame allocators' eviction paths (spec.md
// §4.3's trySteal/replace).
func (ctx *Context) emitMove(from, to Site, v *Value) {
	ctx.Assembler.Apply(architecture.OpMove, []architecture.Size{architecture.Size8, architecture.Size8}, []asm.Operand{from.Operand(), to.Operand()})
}

func (ctx *Context) nextEventIndex() int {
	idx := ctx.eventCounter
	ctx.eventCounter++
	return idx
}

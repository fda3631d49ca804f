package codegen

import (
	"github.com/lcbwn/corda/architecture"
	"github.com/lcbwn/corda/asm"
)

// --- DummyEvent ---

// DummyEvent is inserted whenever the current Stack/Locals differ from the
// owning LogicalInstruction's recorded snapshot, so snapshot and graph stay
// in lock-step (spec.md §4.1 step 1).
type DummyEvent struct{}

func (DummyEvent) IsBranch() bool { return false }
func (DummyEvent) Compile(ctx *Context, ev *Event) {}

// --- FrameSiteEvent ---

// FrameSiteEvent records that a Value now also lives at a specific frame
// slot without emitting any code (used to seed callee-saved/parameter
// locations at procedure entry).
type FrameSiteEvent struct {
	Value      *Value
	FrameIndex architecture.FrameIndex
	Size       architecture.Size
}

func (FrameSiteEvent) IsBranch() bool { return false }
func (e *FrameSiteEvent) Compile(ctx *Context, ev *Event) {
	site := NewFrameSite(e.FrameIndex, ctx.Arch.Stack(), e.Size)
	site.Acquire(ctx, e.Value)
	e.Value.addSite(site)
}

// --- BuddyEvent ---

// BuddyEvent joins two Values into one buddy ring (spec.md §4.1). The
// Driver creates one in StoreLocal, when a local slot whose Value is still
// live is overwritten with a different Value.
type BuddyEvent struct {
	First  *Value
	Second *Value
}

func (BuddyEvent) IsBranch() bool { return false }
func (e *BuddyEvent) Compile(ctx *Context, ev *Event) {
	e.First.JoinBuddy(e.Second)
}

// --- MoveEvent ---

// MoveEvent performs a widening/narrowing/sign-extending move from src to
// dst (spec.md §4.1). The architecture's plan(OpMove, srcSize, dstSize)
// supplies the admissible operand shapes for the source Read; the
// destination is allocated directly rather than through a Read, since it
// is a pure producer.
type MoveEvent struct {
	SrcSize architecture.Size
	Src     *Value
	SrcRead *Read

	DstSize architecture.Size
	Dst     *Value
}

func NewMoveEvent(ctx *Context, ev *Event, srcSize architecture.Size, src *Value, dstSize architecture.Size, dst *Value) *MoveEvent {
	plan := ctx.Arch.Plan(architecture.OpMove, srcSize, dstSize)
	srcConstraint := plan.Sources[0]
	r := NewSingleRead(srcSize, srcConstraint.TypeMask, srcConstraint.RegisterMask, architecture.NoFrameIndex)
	src.AppendRead(ev, r)
	ev.AddRead(r)
	return &MoveEvent{SrcSize: srcSize, Src: src, SrcRead: r, DstSize: dstSize, Dst: dst}
}

func (MoveEvent) IsBranch() bool { return false }

func (e *MoveEvent) Compile(ctx *Context, ev *Event) {
	plan := ctx.Arch.Plan(architecture.OpMove, e.SrcSize, e.DstSize)
	dest := allocateDestination(ctx, plan.Destination, e.DstSize)
	ctx.Assembler.Apply(architecture.OpMove, []architecture.Size{e.SrcSize, e.DstSize}, []asm.Operand{e.Src.Source.Operand(), dest.Operand()})
	dest.Acquire(ctx, e.Dst)
	e.Dst.addSite(dest)
	e.Dst.Source = dest
}

// --- CompareEvent ---

// CompareEvent sets ctx.ConstantCompare if both operands are constants,
// else emits a compare instruction, consumed by a following BranchEvent
// (spec.md §4.1).
type CompareEvent struct {
	Size architecture.Size
	A    *Value
	B    *Value
	ARead, BRead *Read
}

func NewCompareEvent(ctx *Context, ev *Event, size architecture.Size, a, b *Value) *CompareEvent {
	plan := ctx.Arch.Plan(architecture.OpCompare, size)
	ar := NewSingleRead(size, plan.Sources[0].TypeMask, plan.Sources[0].RegisterMask, architecture.NoFrameIndex)
	br := NewSingleRead(size, plan.Sources[1].TypeMask, plan.Sources[1].RegisterMask, architecture.NoFrameIndex)
	a.AppendRead(ev, ar)
	b.AppendRead(ev, br)
	ev.AddRead(ar)
	ev.AddRead(br)
	return &CompareEvent{Size: size, A: a, B: b, ARead: ar, BRead: br}
}

func (CompareEvent) IsBranch() bool { return false }

func (e *CompareEvent) Compile(ctx *Context, ev *Event) {
	aConst, aOk := e.A.Source.(*ConstantSite)
	bConst, bOk := e.B.Source.(*ConstantSite)
	if aOk && bOk && aConst.Value.Resolved() && bConst.Value.Resolved() {
		av, bv := aConst.Value.Value(), bConst.Value.Value()
		switch {
		case av < bv:
			ctx.ConstantCompare = architecture.CompareLess
		case av > bv:
			ctx.ConstantCompare = architecture.CompareGreater
		default:
			ctx.ConstantCompare = architecture.CompareEqual
		}
		return
	}
	ctx.ConstantCompare = architecture.CompareNone
	ctx.Assembler.Apply(architecture.OpCompare, []architecture.Size{e.Size}, []asm.Operand{e.A.Source.Operand(), e.B.Source.Operand()})
}

// --- BranchEvent ---

// BranchEvent is one of the seven branch shapes (spec.md §4.1). If the
// preceding CompareEvent constant-folded, the branch itself folds: taken
// implies an unconditional jump, not-taken implies the branch is elided
// entirely (no code emitted, no successor Link followed).
type BranchEvent struct {
	Kind   architecture.BranchKind
	Target architecture.Promise // resolves to the destination's machine address
}

func (BranchEvent) IsBranch() bool { return true }

func (e *BranchEvent) Compile(ctx *Context, ev *Event) {
	if ctx.ConstantCompare != architecture.CompareNone {
		taken := ctx.ConstantCompare.Taken(e.Kind)
		ctx.ConstantCompare = architecture.CompareNone
		if !taken {
			return
		}
		ctx.Assembler.Apply(architecture.Jump.Operation(), nil, []asm.Operand{{Kind: asm.AddressOperandKind, Promise: e.Target}})
		return
	}
	ctx.Assembler.Apply(e.Kind.Operation(), nil, []asm.Operand{{Kind: asm.AddressOperandKind, Promise: e.Target}})
}

// --- CombineEvent ---

// CombineEvent is ternary arithmetic/logical: dst = a OP b. Under condensed
// addressing the result is forced onto b's Site (the destructive x86-style
// two-operand form); otherwise a fresh target Site is allocated. If the
// architecture's plan reports the operation as a thunk, the event is
// replaced by a CallEvent to a runtime helper (spec.md §4.1/§7).
type CombineEvent struct {
	Op       architecture.Operation
	Size     architecture.Size
	A, B     *Value
	ARead, BRead *Read
	Result   *Value

	thunk bool
}

func NewCombineEvent(ctx *Context, ev *Event, op architecture.Operation, size architecture.Size, a, b, result *Value) *CombineEvent {
	plan := ctx.Arch.Plan(op, size)
	if plan.Thunk {
		panic("CombineEvent: thunk substitution must go through Driver.combine")
	}
	ar := NewSingleRead(size, plan.Sources[0].TypeMask, plan.Sources[0].RegisterMask, architecture.NoFrameIndex)
	br := NewSingleRead(size, plan.Sources[1].TypeMask, plan.Sources[1].RegisterMask, architecture.NoFrameIndex)
	a.AppendRead(ev, ar)
	b.AppendRead(ev, br)
	ev.AddRead(ar)
	ev.AddRead(br)
	return &CombineEvent{Op: op, Size: size, A: a, B: b, ARead: ar, BRead: br, Result: result}
}

func (CombineEvent) IsBranch() bool { return false }

func (e *CombineEvent) Compile(ctx *Context, ev *Event) {
	var dest Site
	if ctx.Arch.CondensedAddressing() {
		dest = e.B.Source
	} else {
		plan := ctx.Arch.Plan(e.Op, e.Size)
		dest = allocateDestination(ctx, plan.Destination, e.Size)
	}
	ctx.Assembler.Apply(e.Op, []architecture.Size{e.Size}, []asm.Operand{e.A.Source.Operand(), e.B.Source.Operand(), dest.Operand()})
	dest.Acquire(ctx, e.Result)
	e.Result.addSite(dest)
	e.Result.Source = dest
}

// --- TranslateEvent ---

// TranslateEvent is a unary operation: result = OP value, same
// condensed-addressing rule as CombineEvent.
type TranslateEvent struct {
	Op     architecture.Operation
	Size   architecture.Size
	Value  *Value
	Read   *Read
	Result *Value
}

func NewTranslateEvent(ctx *Context, ev *Event, op architecture.Operation, size architecture.Size, value, result *Value) *TranslateEvent {
	plan := ctx.Arch.Plan(op, size)
	r := NewSingleRead(size, plan.Sources[0].TypeMask, plan.Sources[0].RegisterMask, architecture.NoFrameIndex)
	value.AppendRead(ev, r)
	ev.AddRead(r)
	return &TranslateEvent{Op: op, Size: size, Value: value, Read: r, Result: result}
}

func (TranslateEvent) IsBranch() bool { return false }

func (e *TranslateEvent) Compile(ctx *Context, ev *Event) {
	var dest Site
	if ctx.Arch.CondensedAddressing() {
		dest = e.Value.Source
	} else {
		plan := ctx.Arch.Plan(e.Op, e.Size)
		dest = allocateDestination(ctx, plan.Destination, e.Size)
	}
	ctx.Assembler.Apply(e.Op, []architecture.Size{e.Size}, []asm.Operand{e.Value.Source.Operand(), dest.Operand()})
	dest.Acquire(ctx, e.Result)
	e.Result.addSite(dest)
	e.Result.Source = dest
}

// --- MemoryEvent ---

// MemoryEvent materialises a MemorySite for a computed address; a constant
// index collapses into the displacement rather than staying a register
// operand (spec.md §4.1).
type MemoryEvent struct {
	Base   *Value
	BaseRead *Read
	Disp   int
	Index  *Value // nil if unindexed
	IndexRead *Read
	Scale  int
	Result *Value
}

func NewMemoryEvent(ctx *Context, ev *Event, base *Value, disp int, index *Value, scale int, result *Value) *MemoryEvent {
	br := AnyRegisterRead(architecture.Size8)
	base.AppendRead(ev, br)
	ev.AddRead(br)

	e := &MemoryEvent{Base: base, BaseRead: br, Disp: disp, Scale: scale, Result: result}

	if index != nil {
		if c, ok := constantValue(index); ok {
			e.Disp = disp + int(c)*scale
		} else {
			ir := AnyRegisterRead(architecture.Size8)
			index.AppendRead(ev, ir)
			ev.AddRead(ir)
			e.Index = index
			e.IndexRead = ir
		}
	}
	return e
}

func constantValue(v *Value) (int64, bool) {
	for cur := v.Sites; cur != nil; cur = cur.next {
		if cs, ok := cur.Site.(*ConstantSite); ok && cs.Value.Resolved() {
			return cs.Value.Value(), true
		}
	}
	return 0, false
}

func (MemoryEvent) IsBranch() bool { return false }

func (e *MemoryEvent) Compile(ctx *Context, ev *Event) {
	baseReg := e.Base.Source.(*RegisterSite).Low
	var indexReg *architecture.Register
	if e.Index != nil {
		indexReg = e.Index.Source.(*RegisterSite).Low
	}
	site := NewMemorySite(baseReg, indexReg, e.Scale, e.Disp)
	site.Acquire(ctx, e.Result)
	e.Result.addSite(site)
	e.Result.Source = site
}

// --- ReturnEvent ---

// ReturnEvent reads its value on a fixedRegisterRead for the return
// register(s), then emits the frame pop and return (spec.md §4.1).
type ReturnEvent struct {
	Size  architecture.Size
	Value *Value
	Read  *Read
}

func NewReturnEvent(ctx *Context, ev *Event, size architecture.Size, value *Value) *ReturnEvent {
	var r *Read
	if value != nil {
		regs := []*architecture.Register{ctx.Arch.ReturnLow()}
		if ctx.Arch.ReturnHigh() != nil {
			regs = append(regs, ctx.Arch.ReturnHigh())
		}
		r = FixedRegisterRead(size, regs...)
		value.AppendRead(ev, r)
		ev.AddRead(r)
	}
	return &ReturnEvent{Size: size, Value: value, Read: r}
}

func (ReturnEvent) IsBranch() bool { return true }

func (e *ReturnEvent) Compile(ctx *Context, ev *Event) {
	ctx.Assembler.PopFrame(ctx.Frame.HeaderWords)
	ctx.Assembler.Apply(architecture.OpReturn, nil, nil)
}

// --- CallEvent ---

// CallEvent arranges argument Reads: the first K argument-register
// arguments receive fixedRegisterRead(reg), the rest receive
// memoryRead(frameIndex) at stack-argument slots; it also adds
// preservation Reads for every live Stack/Locals value at frame slots
// chosen so the callee's argument area does not alias them (spec.md
// §4.1).
type CallEvent struct {
	Address       *Value
	AddressRead   *Read
	TraceHandler  func(architecture.Promise)
	Result        *Value
	ResultSize    architecture.Size
	ArgValues     []*Value
	ArgReads      []*Read
	StackArgFootprint int
	Aligned       bool

	// FootprintPadding is the alignment padding (in words) PushPadded
	// computed for StackArgFootprint, recorded for introspection/tests.
	FootprintPadding int

	popIndex int
}

func NewCallEvent(
	ctx *Context,
	ev *Event,
	address *Value,
	traceHandler func(architecture.Promise),
	result *Value,
	resultSize architecture.Size,
	args []*Value,
	stackArgFootprint int,
	aligned bool,
) *CallEvent {
	ar := AnyRegisterRead(architecture.Size8)
	address.AppendRead(ev, ar)
	ev.AddRead(ar)

	e := &CallEvent{
		Address: address, AddressRead: ar, TraceHandler: traceHandler,
		Result: result, ResultSize: resultSize, ArgValues: args,
		StackArgFootprint: stackArgFootprint, Aligned: aligned,
	}

	argRegs := ctx.Arch.ArgumentRegisterCount()
	frameIdx := 0
	for i, arg := range args {
		var r *Read
		if i < argRegs {
			r = FixedRegisterRead(architecture.Size8, ctx.Arch.ArgumentRegister(i))
		} else {
			r = MemoryRead(architecture.Size8, architecture.FrameIndex(frameIdx))
			frameIdx++
		}
		arg.AppendRead(ev, r)
		ev.AddRead(r)
		e.ArgReads = append(e.ArgReads, r)
	}

	// StackArgFootprint bytes at the bottom of the call's own frame are
	// reserved for the stack-passed arguments above (the overflow reads
	// built above this comment); PushPadded reserves that area, rounding
	// up to an even word count when aligned is set, so stack/locals
	// preservation reads below don't alias it (spec.md §4.1; mirrors
	// compiler.cpp:2166's paddingInWords/footprint walk). The reservation
	// is call-local frame-index space, not the logical operand stack, so
	// it is built on a bare nil base rather than ctx.Stack.
	footprintWords := (stackArgFootprint + architecture.WordSize - 1) / architecture.WordSize
	paddingWords := 0
	if aligned && footprintWords%2 != 0 {
		paddingWords = 1
	}
	reserved := PushPadded(nil, NewValue("call-footprint"), footprintWords, paddingWords)
	preserveBase := reserved.Index + reserved.SizeWords + reserved.PaddingWords
	e.FootprintPadding = paddingWords

	// Preservation reads for every live stack value, pinned at frame slots
	// above the footprint reservation so the callee's argument area does
	// not alias them (spec.md §4.1).
	preserveIdx := preserveBase
	for _, node := range Values(ctx.Stack) {
		if !node.Value.Live() {
			continue
		}
		r := MemoryRead(architecture.Size(node.SizeWords*architecture.WordSize), architecture.FrameIndex(preserveIdx))
		node.Value.AppendRead(ev, r)
		ev.AddRead(r)
		preserveIdx += node.SizeWords
	}

	// Preservation reads for every live local, pinned at its own slot
	// index (spec.md §4.1).
	for i := range ctx.Locals.Slots {
		slot := &ctx.Locals.Slots[i]
		if slot.Value == nil {
			continue
		}
		r := MemoryRead(architecture.Size8, architecture.FrameIndex(i))
		slot.Value.AppendRead(ev, r)
		ev.AddRead(r)
	}

	return e
}

func (CallEvent) IsBranch() bool { return false }

func (e *CallEvent) Compile(ctx *Context, ev *Event) {
	op := architecture.OpCall
	if e.Aligned {
		op = architecture.OpAlignedCall
	}
	ctx.Assembler.Apply(op, []architecture.Size{e.ResultSize}, []asm.Operand{e.Address.Source.Operand()})

	if e.TraceHandler != nil {
		e.TraceHandler(ctx.NewOffsetCodePromise(ctx.Assembler.Offset()))
	}

	// Clean dead sites above popIndex (spec.md §4.1): every argument Value's
	// Reads have now been consumed, so any that are fully dead get their
	// Sites released.
	for _, arg := range e.ArgValues {
		arg.ClearDeadSites(ctx)
	}

	if e.Result != nil {
		regs := []*architecture.Register{ctx.Arch.ReturnLow()}
		if ctx.Arch.ReturnHigh() != nil {
			regs = append(regs, ctx.Arch.ReturnHigh())
		}
		var site *RegisterSite
		if len(regs) == 2 {
			site = NewRegisterSite(regs[0], regs[1])
		} else {
			site = NewRegisterSite(regs[0], nil)
		}
		site.Acquire(ctx, e.Result)
		e.Result.addSite(site)
		e.Result.Source = site
	}
}

// --- BoundsCheckEvent ---

// BoundsCheckEvent emits a compare-against-length, a conditional jump to
// handler, and falls through otherwise (spec.md §4.1).
type BoundsCheckEvent struct {
	Object       *Value
	ObjectRead   *Read
	LengthOffset int
	Index        *Value
	IndexRead    *Read
	Handler      architecture.Promise
}

func NewBoundsCheckEvent(ctx *Context, ev *Event, object *Value, lengthOffset int, index *Value, handler architecture.Promise) *BoundsCheckEvent {
	or := AnyRegisterRead(architecture.Size8)
	object.AppendRead(ev, or)
	ev.AddRead(or)

	ir := RegisterOrConstantRead(architecture.Size4)
	index.AppendRead(ev, ir)
	ev.AddRead(ir)

	return &BoundsCheckEvent{Object: object, ObjectRead: or, LengthOffset: lengthOffset, Index: index, IndexRead: ir, Handler: handler}
}

func (BoundsCheckEvent) IsBranch() bool { return true }

func (e *BoundsCheckEvent) Compile(ctx *Context, ev *Event) {
	lengthSite := NewMemorySite(e.Object.Source.(*RegisterSite).Low, nil, 1, e.LengthOffset)
	ctx.Assembler.Apply(architecture.OpCompare, []architecture.Size{architecture.Size4}, []asm.Operand{e.Index.Source.Operand(), lengthSite.Operand()})
	ctx.Assembler.Apply(architecture.OpJumpIfGreaterOrEqual, nil, []asm.Operand{{Kind: asm.AddressOperandKind, Promise: e.Handler}})
}

// allocateDestination fabricates a fresh Site for a producer Event's result
// Value, honoring the architecture's destination SiteConstraint.
func allocateDestination(ctx *Context, constraint architecture.SiteConstraint, size architecture.Size) Site {
	site := allocateSiteWithSize(ctx, constraint.TypeMask, constraint.RegisterMask, architecture.AnyFrameIndex, size)
	if site == nil {
		panic("allocateDestination: constraint satisfiable by nothing")
	}
	return site
}

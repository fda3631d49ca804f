package codegen

import "github.com/lcbwn/corda/architecture"

// Read is a demand for a Value at a specific Event, carrying allowed Site
// kinds (spec.md §3 / L3). The three variants below are modeled as one
// struct with a kind-specific body, since Go has no closed sum type and
// each variant's extra state (a successor link, a fork-target list, a
// rebinding pointer) is small.
//
// Grounded verbatim on original_source/compiler.cpp's
// Read/SingleRead/MultiRead/StubRead.
type Read struct {
	Size architecture.Size

	Value     *Value
	Event     *Event
	EventNext *Read // next Read consumed by the same Event

	kind readKind
}

type readKind interface {
	pickSite(ctx *Context, v *Value) Site
	allocateSite(ctx *Context) Site
	intersect(typeMask *architecture.TypeMask, registerMask *architecture.RegisterMask, frameIndex *architecture.FrameIndex) bool
	valid() bool
	appendSuccessor(r *Read)
	next(ctx *Context) *Read
}

func (r *Read) PickSite(ctx *Context, v *Value) Site       { return r.kind.pickSite(ctx, v) }
func (r *Read) AllocateSite(ctx *Context) Site              { return r.kind.allocateSite(ctx) }
func (r *Read) Valid() bool                                 { return r.kind.valid() }
func (r *Read) nextInChain(ctx *Context) *Read               { return r.kind.next(ctx) }

func (r *Read) Intersect(typeMask *architecture.TypeMask, registerMask *architecture.RegisterMask, frameIndex *architecture.FrameIndex) bool {
	return r.kind.intersect(typeMask, registerMask, frameIndex)
}

// AppendSuccessor records r2 as the Read that follows r in its Value's
// sequence (SingleRead/StubRead's single-successor link).
func (r *Read) AppendSuccessor(r2 *Read) {
	r.kind.appendSuccessor(r2)
}

// --- SingleRead ---

type singleReadKind struct {
	typeMask     architecture.TypeMask
	registerMask architecture.RegisterMask
	frameIndex   architecture.FrameIndex
	nextRead     *Read
}

// NewSingleRead builds a fixed-constraint Read (spec.md §4.2's
// (typeMask, registerMask, frameIndex) triple).
func NewSingleRead(size architecture.Size, typeMask architecture.TypeMask, registerMask architecture.RegisterMask, frameIndex architecture.FrameIndex) *Read {
	if typeMask == architecture.MemoryOperand && frameIndex < 0 {
		panic("memory-only read requires a concrete frame index")
	}
	k := &singleReadKind{typeMask: typeMask, registerMask: registerMask, frameIndex: frameIndex}
	return &Read{Size: size, kind: k}
}

func AnyRegisterRead(size architecture.Size) *Read {
	return NewSingleRead(size, architecture.RegisterOperand, architecture.AnyRegisterMask, architecture.NoFrameIndex)
}

func RegisterOrConstantRead(size architecture.Size) *Read {
	return NewSingleRead(size, architecture.RegisterOperand|architecture.ConstantOperand, architecture.AnyRegisterMask, architecture.NoFrameIndex)
}

func FixedRegisterRead(size architecture.Size, regs ...*architecture.Register) *Read {
	mask := architecture.NoRegisterMask
	for _, r := range regs {
		mask |= r.Mask()
	}
	return NewSingleRead(size, architecture.RegisterOperand, mask, architecture.NoFrameIndex)
}

func MemoryRead(size architecture.Size, frameIndex architecture.FrameIndex) *Read {
	return NewSingleRead(size, architecture.MemoryOperand, architecture.NoRegisterMask, frameIndex)
}

func (k *singleReadKind) pickSite(ctx *Context, v *Value) Site {
	return pickSite(ctx, v, k.typeMask, k.registerMask, k.frameIndex)
}

func (k *singleReadKind) allocateSite(ctx *Context) Site {
	return allocateSite(ctx, k.typeMask, k.registerMask, k.frameIndex)
}

func (k *singleReadKind) intersect(typeMask *architecture.TypeMask, registerMask *architecture.RegisterMask, frameIndex *architecture.FrameIndex) bool {
	*typeMask = typeMask.Intersect(k.typeMask)
	*registerMask = registerMask.Intersect(k.registerMask)
	*frameIndex = architecture.IntersectFrameIndex(*frameIndex, k.frameIndex)
	return true
}

func (k *singleReadKind) valid() bool { return true }

func (k *singleReadKind) appendSuccessor(r *Read) {
	if k.nextRead != nil {
		panic("SingleRead already has a successor")
	}
	k.nextRead = r
}

func (k *singleReadKind) next(*Context) *Read { return k.nextRead }

// --- MultiRead ---

type multiReadKind struct {
	reads   []*Read // downstream constraints collected at a fork
	targets []*Read // per-branch target reads, filled by allocateTarget
	visited bool
}

// NewMultiRead builds a fork-site Read whose downstream constraints are
// the (as yet unknown) Reads of whichever branch is eventually taken
// (spec.md §4.6's saveState).
func NewMultiRead(size architecture.Size) *Read {
	return &Read{Size: size, kind: &multiReadKind{}}
}

func (k *multiReadKind) pickSite(ctx *Context, v *Value) Site {
	typeMask, registerMask, frameIndex := architecture.AnyOperand, architecture.AnyRegisterMask, architecture.AnyFrameIndex
	k.intersect(&typeMask, &registerMask, &frameIndex)
	return pickSite(ctx, v, typeMask, registerMask, frameIndex)
}

func (k *multiReadKind) allocateSite(ctx *Context) Site {
	typeMask, registerMask, frameIndex := architecture.AnyOperand, architecture.AnyRegisterMask, architecture.AnyFrameIndex
	k.intersect(&typeMask, &registerMask, &frameIndex)
	return allocateSite(ctx, typeMask, registerMask, frameIndex)
}

// intersect visits each downstream Read and prunes failed members,
// re-entrancy guarded by visited (spec.md §3's MultiRead).
func (k *multiReadKind) intersect(typeMask *architecture.TypeMask, registerMask *architecture.RegisterMask, frameIndex *architecture.FrameIndex) bool {
	result := false
	if !k.visited {
		k.visited = true
		kept := k.reads[:0]
		for _, r := range k.reads {
			if r.Intersect(typeMask, registerMask, frameIndex) {
				result = true
				kept = append(kept, r)
			}
		}
		k.reads = kept
		k.visited = false
	}
	return result
}

func (k *multiReadKind) valid() bool {
	result := false
	if !k.visited {
		k.visited = true
		kept := k.reads[:0]
		for _, r := range k.reads {
			if r.Valid() {
				result = true
				kept = append(kept, r)
			}
		}
		k.reads = kept
		k.visited = false
	}
	return result
}

func (k *multiReadKind) appendSuccessor(r *Read) {
	k.reads = append(k.reads, r)
	if len(k.targets) == 0 {
		panic("MultiRead.appendSuccessor: no pending target slot")
	}
	k.targets[0].kind.(*forwardedReadKind).bind(r)
	k.targets = k.targets[1:]
}

func (k *multiReadKind) next(*Context) *Read {
	panic("MultiRead has no single successor")
}

// AllocateTarget reserves one per-branch target slot (spec.md §4.6:
// "allocates one 'target slot' per branch that will be taken from this
// fork"). The returned Read is a placeholder that forwards to whatever
// real Read eventually binds to this slot via appendSuccessor.
func (r *Read) AllocateTarget() *Read {
	mk, ok := r.kind.(*multiReadKind)
	if !ok {
		panic("AllocateTarget: not a MultiRead")
	}
	target := &Read{Size: r.Size, kind: &forwardedReadKind{}}
	mk.targets = append(mk.targets, target)
	return target
}

// forwardedReadKind is the per-branch placeholder MultiRead.AllocateTarget
// hands out before the branch's real Read is known.
type forwardedReadKind struct {
	bound *Read
}

func (k *forwardedReadKind) bind(r *Read) { k.bound = r }

func (k *forwardedReadKind) pickSite(ctx *Context, v *Value) Site {
	return k.bound.PickSite(ctx, v)
}
func (k *forwardedReadKind) allocateSite(ctx *Context) Site { return k.bound.AllocateSite(ctx) }
func (k *forwardedReadKind) intersect(t *architecture.TypeMask, r *architecture.RegisterMask, f *architecture.FrameIndex) bool {
	return k.bound.Intersect(t, r, f)
}
func (k *forwardedReadKind) valid() bool                { return k.bound != nil && k.bound.Valid() }
func (k *forwardedReadKind) appendSuccessor(r *Read)     { k.bound.AppendSuccessor(r) }
func (k *forwardedReadKind) next(ctx *Context) *Read     { return k.bound.nextInChain(ctx) }

// --- StubRead ---

type stubReadKind struct {
	nextRead *Read
	bound    *Read // rebound by updateJunctionReads once the successor's first Read is known
	visited  bool
}

// NewStubRead builds a placeholder Read inserted at a junction predecessor
// before the successor's real Reads are known (spec.md §4.5).
func NewStubRead(size architecture.Size) *Read {
	return &Read{Size: size, kind: &stubReadKind{}}
}

func (k *stubReadKind) pickSite(ctx *Context, v *Value) Site {
	typeMask, registerMask, frameIndex := architecture.AnyOperand, architecture.AnyRegisterMask, architecture.AnyFrameIndex
	k.intersect(&typeMask, &registerMask, &frameIndex)
	return pickSite(ctx, v, typeMask, registerMask, frameIndex)
}

func (k *stubReadKind) allocateSite(ctx *Context) Site {
	typeMask, registerMask, frameIndex := architecture.AnyOperand, architecture.AnyRegisterMask, architecture.AnyFrameIndex
	k.intersect(&typeMask, &registerMask, &frameIndex)
	return allocateSite(ctx, typeMask, registerMask, frameIndex)
}

func (k *stubReadKind) intersect(typeMask *architecture.TypeMask, registerMask *architecture.RegisterMask, frameIndex *architecture.FrameIndex) bool {
	if !k.visited {
		k.visited = true
		if k.bound != nil {
			if !k.bound.Intersect(typeMask, registerMask, frameIndex) {
				k.bound = nil
			}
		}
		k.visited = false
	}
	return true
}

func (k *stubReadKind) valid() bool { return true }

func (k *stubReadKind) appendSuccessor(r *Read) {
	if k.nextRead != nil {
		panic("StubRead already has a successor")
	}
	k.nextRead = r
}

func (k *stubReadKind) next(*Context) *Read { return k.nextRead }

// Bind rebinds this StubRead to the successor's actual first Read for the
// same Value, per spec.md §4.5's updateJunctionReads.
func (r *Read) Bind(target *Read) {
	k, ok := r.kind.(*stubReadKind)
	if !ok {
		panic("Bind: not a StubRead")
	}
	k.bound = target
}

package codegen

import (
	"github.com/lcbwn/corda/architecture"
	"github.com/lcbwn/corda/asm"
)

// Site is a concrete home for a Value (spec.md §3 / L1). The four variants
// below are a closed family (spec.md §9 "Polymorphism" note prefers a
// tagged sum over open inheritance); we model that as an interface with
// exactly four implementations rather than a sealed enum, since Go has no
// native sum type and each variant carries materially different fields.
//
// Grounded on original_source/compiler.cpp's Site/ConstantSite/
// AddressSite/RegisterSite/MemorySite and the teacher's
// architecture/data-location.go DataLocation (which collapses Register/
// Memory into one struct — we keep them split, matching spec.md's explicit
// four-way split, since the teacher's single-struct shape is there to suit
// its register *or* stack allocator, not a constant/address pool).
type Site interface {
	// Match reports whether this Site satisfies a Read's constraint triple
	// (spec.md §4.2).
	Match(typeMask architecture.TypeMask, registerMask architecture.RegisterMask, frameIndex architecture.FrameIndex) bool

	// CopyCost is the cost of using this Site as a source to satisfy a Read
	// whose eventually-chosen target Site is to (nil means "is this Site
	// itself good enough without any copy"). Lower is cheaper; pickSite
	// picks the live Site with the lowest CopyCost against the Read's
	// masks.
	CopyCost(to Site) int

	// Acquire/Release reference-count the underlying Register or
	// FrameResource. acquire is called once when the Site starts backing a
	// live Value; release when the Value stops using it (spec.md §3).
	Acquire(ctx *Context, v *Value)
	Release(ctx *Context)

	// Freeze/Thaw pin the Site against eviction (spec.md §3, used around
	// populateSources per spec.md §4.4 step 4 and junction population per
	// §4.5).
	Freeze(ctx *Context)
	Thaw(ctx *Context)

	// Copy returns a structural clone (spec.md §3).
	Copy() Site

	// UsesRegister reports whether this Site's content lives in r (directly,
	// for RegisterSite; as base/index, for MemorySite).
	UsesRegister(r *architecture.Register) bool

	// Operand returns the assembler-facing view of this Site (spec.md §3).
	Operand() asm.Operand

	typeMask() architecture.TypeMask
}

// ConstantSite wraps a Promise used as an immediate value.
type ConstantSite struct {
	Value architecture.Promise
}

func NewConstantSite(value architecture.Promise) *ConstantSite {
	return &ConstantSite{Value: value}
}

func (s *ConstantSite) typeMask() architecture.TypeMask { return architecture.ConstantOperand }

func (s *ConstantSite) Match(typeMask architecture.TypeMask, _ architecture.RegisterMask, _ architecture.FrameIndex) bool {
	return typeMask.Has(architecture.ConstantOperand)
}

func (s *ConstantSite) CopyCost(to Site) int {
	if to == Site(s) {
		return 0
	}
	return 1
}

func (s *ConstantSite) Acquire(*Context, *Value) {}
func (s *ConstantSite) Release(*Context)         {}
func (s *ConstantSite) Freeze(*Context)          {}
func (s *ConstantSite) Thaw(*Context)            {}

func (s *ConstantSite) Copy() Site { return &ConstantSite{Value: s.Value} }

func (s *ConstantSite) UsesRegister(*architecture.Register) bool { return false }

func (s *ConstantSite) Operand() asm.Operand {
	return asm.Operand{Kind: asm.ConstantOperandKind, Promise: s.Value}
}

// AddressSite wraps a Promise used as an absolute address operand.
type AddressSite struct {
	Address architecture.Promise
}

func NewAddressSite(address architecture.Promise) *AddressSite {
	return &AddressSite{Address: address}
}

func (s *AddressSite) typeMask() architecture.TypeMask { return architecture.AddressOperand }

func (s *AddressSite) Match(typeMask architecture.TypeMask, _ architecture.RegisterMask, _ architecture.FrameIndex) bool {
	return typeMask.Has(architecture.AddressOperand)
}

func (s *AddressSite) CopyCost(to Site) int {
	if to == Site(s) {
		return 0
	}
	return 3
}

func (s *AddressSite) Acquire(*Context, *Value) {}
func (s *AddressSite) Release(*Context)         {}
func (s *AddressSite) Freeze(*Context)          {}
func (s *AddressSite) Thaw(*Context)            {}

func (s *AddressSite) Copy() Site { return &AddressSite{Address: s.Address} }

func (s *AddressSite) UsesRegister(*architecture.Register) bool { return false }

func (s *AddressSite) Operand() asm.Operand {
	return asm.Operand{Kind: asm.AddressOperandKind, Promise: s.Address}
}

// RegisterSite is a value living in one register (Low) or two (Low plus
// High, for values wider than one word). Mask restricts which registers
// this Site is allowed to settle on before it is acquired; once acquired,
// Low/High name the concrete registers.
type RegisterSite struct {
	Mask architecture.RegisterMask
	Low  *architecture.Register
	High *architecture.Register
}

// NewUnboundRegisterSite builds a Site that has not yet been assigned a
// concrete register (the allocator fills Low/High in during Acquire).
func NewUnboundRegisterSite(mask architecture.RegisterMask) *RegisterSite {
	return &RegisterSite{Mask: mask}
}

func NewRegisterSite(low, high *architecture.Register) *RegisterSite {
	return &RegisterSite{Mask: architecture.AnyRegisterMask, Low: low, High: high}
}

func (s *RegisterSite) typeMask() architecture.TypeMask { return architecture.RegisterOperand }

func (s *RegisterSite) Match(typeMask architecture.TypeMask, registerMask architecture.RegisterMask, _ architecture.FrameIndex) bool {
	if !typeMask.Has(architecture.RegisterOperand) {
		return false
	}
	if s.Low == nil {
		return true
	}
	if !registerMask.Has(s.Low) {
		return false
	}
	if s.High != nil && !registerMask.Has(s.High) {
		return false
	}
	return true
}

func (s *RegisterSite) CopyCost(to Site) int {
	if to == Site(s) {
		return 0
	}
	other, ok := to.(*RegisterSite)
	if ok && s.Low != nil && other.Mask.Has(s.Low) &&
		(s.High == nil || other.Mask.Has(s.High)) {
		return 0
	}
	return 2
}

func (s *RegisterSite) Acquire(ctx *Context, v *Value) {
	ctx.Registers.acquireSite(s, v)
}

func (s *RegisterSite) Release(ctx *Context) {
	ctx.Registers.releaseSite(s)
}

func (s *RegisterSite) Freeze(ctx *Context) {
	ctx.Registers.freezeSite(s)
}

func (s *RegisterSite) Thaw(ctx *Context) {
	ctx.Registers.thawSite(s)
}

func (s *RegisterSite) Copy() Site {
	return &RegisterSite{Mask: s.Mask, Low: s.Low, High: s.High}
}

func (s *RegisterSite) UsesRegister(r *architecture.Register) bool {
	return s.Low == r || s.High == r
}

func (s *RegisterSite) Operand() asm.Operand {
	return asm.Operand{Kind: asm.RegisterOperandKind, Low: s.Low, High: s.High}
}

// MemorySite is a value at base+index*scale+displacement. When Base is the
// architecture's stack pointer, the Site is a "frame slot" and FrameIndex
// identifies the owning FrameResource (spec.md §3).
type MemorySite struct {
	Base         *architecture.Register
	Index        *architecture.Register // nil if unindexed
	Scale        int
	Displacement int

	// FrameIndex is only meaningful when Base is the stack pointer.
	FrameIndex architecture.FrameIndex
	Size       architecture.Size // bytes occupied, for frame acquire/release
}

func NewMemorySite(base, index *architecture.Register, scale, disp int) *MemorySite {
	return &MemorySite{Base: base, Index: index, Scale: scale, Displacement: disp, FrameIndex: architecture.NoFrameIndex}
}

func NewFrameSite(frameIndex architecture.FrameIndex, stackPointer *architecture.Register, size architecture.Size) *MemorySite {
	return &MemorySite{Base: stackPointer, FrameIndex: frameIndex, Size: size}
}

func (s *MemorySite) IsFrameSlot() bool { return s.FrameIndex != architecture.NoFrameIndex }

func (s *MemorySite) typeMask() architecture.TypeMask { return architecture.MemoryOperand }

func (s *MemorySite) Match(typeMask architecture.TypeMask, _ architecture.RegisterMask, frameIndex architecture.FrameIndex) bool {
	if !typeMask.Has(architecture.MemoryOperand) {
		return false
	}
	if !s.IsFrameSlot() {
		return true
	}
	if frameIndex == architecture.AnyFrameIndex {
		return true
	}
	if frameIndex == architecture.NoFrameIndex {
		return false
	}
	return frameIndex == s.FrameIndex
}

func (s *MemorySite) CopyCost(to Site) int {
	if to == Site(s) {
		return 0
	}
	other, ok := to.(*MemorySite)
	if ok && other.Base == s.Base && other.Index == s.Index &&
		other.Scale == s.Scale && other.Displacement == s.Displacement {
		return 0
	}
	return 4
}

func (s *MemorySite) Acquire(ctx *Context, v *Value) {
	if s.Base != nil {
		ctx.Registers.incrementRefs(s.Base)
	}
	if s.Index != nil {
		ctx.Registers.incrementRefs(s.Index)
	}
	if s.IsFrameSlot() {
		ctx.Frame.acquire(s.FrameIndex, s.Size, v, s)
	}
}

func (s *MemorySite) Release(ctx *Context) {
	if s.Base != nil {
		ctx.Registers.decrementRefs(s.Base)
	}
	if s.Index != nil {
		ctx.Registers.decrementRefs(s.Index)
	}
	if s.IsFrameSlot() {
		ctx.Frame.release(s.FrameIndex)
	}
}

func (s *MemorySite) Freeze(ctx *Context) {
	if s.IsFrameSlot() {
		ctx.Frame.freeze(s.FrameIndex)
	}
}

func (s *MemorySite) Thaw(ctx *Context) {
	if s.IsFrameSlot() {
		ctx.Frame.thaw(s.FrameIndex)
	}
}

func (s *MemorySite) Copy() Site {
	c := *s
	return &c
}

func (s *MemorySite) UsesRegister(r *architecture.Register) bool {
	return s.Base == r || s.Index == r
}

func (s *MemorySite) Operand() asm.Operand {
	return asm.Operand{
		Kind:         asm.MemoryOperandKind,
		Base:         s.Base,
		Index:        s.Index,
		Scale:        s.Scale,
		Displacement: s.Displacement,
	}
}

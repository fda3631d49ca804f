package codegen

import "github.com/lcbwn/corda/architecture"

// frameResourceState mirrors spec.md §3's FrameResource: one per word-sized
// frame slot, fields mirroring Register (value, site, size).
type frameResourceState struct {
	Value       *Value
	Site        *MemorySite
	FreezeCount int
	Size        architecture.Size
}

// FrameTable is the per-compilation frame-slot allocator (spec.md §4.3's
// "FrameResources mirror registers"). Slot 0 is the highest-indexed local;
// positive indexes grow downward.
//
// Grounded on the teacher's architecture/stack-frame.go StackFrame
// (fixed-portion bookkeeping) generalized from name-keyed locals to the
// index-keyed FrameResource array spec.md describes.
type FrameTable struct {
	ctx *Context

	stackPointer *architecture.Register
	slots        map[architecture.FrameIndex]*frameResourceState

	// HeaderWords/FooterWords are the calling convention's per-call prologue
	// and epilogue word counts (spec.md §3's "offsets account for frame
	// header/footer words placed by the calling convention").
	HeaderWords int
	FooterWords int

	nextIndex architecture.FrameIndex
}

func NewFrameTable(ctx *Context, arch architecture.Architecture) *FrameTable {
	return &FrameTable{
		ctx:          ctx,
		stackPointer: arch.Stack(),
		slots:        map[architecture.FrameIndex]*frameResourceState{},
		HeaderWords:  arch.FrameHeaderSize(),
		FooterWords:  arch.FrameFooterSize(),
	}
}

func (t *FrameTable) get(idx architecture.FrameIndex) *frameResourceState {
	s, ok := t.slots[idx]
	if !ok {
		s = &frameResourceState{}
		t.slots[idx] = s
	}
	return s
}

// NewLocalIndex reserves the next unused frame slot, growing downward from
// slot 0 as spec.md §3 describes ("slot 0 is the highest-indexed local").
func (t *FrameTable) NewLocalIndex() architecture.FrameIndex {
	idx := t.nextIndex
	t.nextIndex++
	return idx
}

// acquire binds idx (and, for wide values, idx+1 recursively) to v's frame
// site, evicting any incumbent via trySteal first (spec.md §4.3:
// "acquireFrameIndex(idx, newSize, newValue, newSite) evicts the incumbent
// via trySteal; wide values recursively acquire idx+1").
func (t *FrameTable) acquire(idx architecture.FrameIndex, size architecture.Size, v *Value, site *MemorySite) {
	s := t.get(idx)
	if s.Value != nil && s.Value != v {
		if !t.trySteal(idx) {
			panic("acquireFrameIndex: trySteal exhausted")
		}
	}
	s.Value = v
	s.Site = site
	s.Size = size

	if size > architecture.Size8 {
		t.acquire(idx+1, architecture.Size8, v, site)
	}
}

// allocateAt reserves idx for a fresh save Site for v, without requiring a
// caller-supplied MemorySite (used by trySteal's eviction path).
func (t *FrameTable) allocateAt(idx architecture.FrameIndex, size architecture.Size, v *Value) *MemorySite {
	site := NewFrameSite(idx, t.stackPointer, size)
	t.acquire(idx, size, v, site)
	return site
}

func (t *FrameTable) release(idx architecture.FrameIndex) {
	s := t.get(idx)
	if s.Value == nil {
		panic("release: frame slot already free")
	}
	size := s.Size
	s.Value = nil
	s.Site = nil
	s.Size = 0

	if size > architecture.Size8 {
		t.release(idx + 1)
	}
}

// trySteal demotes the incumbent off idx by spilling it further (it has no
// "deeper" resource than the frame itself, so this only succeeds if the
// incumbent Value has no live Reads left, i.e. it is already dead and the
// Site can simply be dropped).
func (t *FrameTable) trySteal(idx architecture.FrameIndex) bool {
	s := t.get(idx)
	if s.Value == nil {
		return true
	}
	if s.Value.Live() {
		return false
	}
	s.Value.removeSite(s.Site)
	s.Value = nil
	s.Site = nil
	s.Size = 0
	return true
}

func (t *FrameTable) freeze(idx architecture.FrameIndex) {
	t.get(idx).FreezeCount++
}

func (t *FrameTable) thaw(idx architecture.FrameIndex) {
	s := t.get(idx)
	if s.FreezeCount == 0 {
		panic("thaw: frame slot not frozen")
	}
	s.FreezeCount--
}

// Displacement converts a frame index into a byte displacement from the
// stack pointer, accounting for header/footer words per spec.md §3.
func (t *FrameTable) Displacement(idx architecture.FrameIndex) int {
	return (int(idx) + t.FooterWords) * architecture.WordSize
}

package codegen

import "github.com/lcbwn/corda/architecture"

// registerState mirrors spec.md §3's Register fields (value, site, refCount,
// freezeCount, reserved, size) for one physical register across the
// lifetime of one compilation.
type registerState struct {
	reg *architecture.Register

	// Value currently owning this register via Site, or nil if free.
	Value *Value
	Site   *RegisterSite

	// RefCount is the number of live MemorySites using this register as a
	// base or index.
	RefCount int

	FreezeCount int

	Reserved bool
}

// RegisterTable is the per-compilation register allocator state (spec.md
// §4.3). One instance lives on Context for the whole compilation.
//
// Grounded on the teacher's analyzer/allocator/value-locations.go
// RegisterInfo/Registers map and register-selector.go's scoring, and on
// original_source/compiler.cpp's Register/acquire/pickRegister/trySteal.
type RegisterTable struct {
	ctx *Context

	order []*architecture.Register // stable iteration order, for tie-breaking
	state map[*architecture.Register]*registerState

	AvailableCount int
}

func NewRegisterTable(ctx *Context, arch architecture.Architecture) *RegisterTable {
	t := &RegisterTable{
		ctx:   ctx,
		state: map[*architecture.Register]*registerState{},
	}
	for _, r := range arch.Registers().Data {
		t.order = append(t.order, r)
		t.state[r] = &registerState{reg: r}
	}
	// The stack pointer (and thread-pointer register, if the architecture
	// has one) is excluded from arch.Registers().Data since
	// architecture.RegisterSet.add treats it as a dedicated slot, not a
	// general allocation candidate. It still needs a state entry here:
	// every MemorySite's Base is a register (per spec.md §3's
	// MemorySite), and frame/stack slots are always based on the stack
	// pointer, so incrementRefs/decrementRefs must be able to find it.
	// original_source/compiler.cpp's Context sizes its register table to
	// registerCount() and tracks every register this way, "reserved" being
	// a flag on an entry rather than an exclusion from the table.
	for _, r := range []*architecture.Register{arch.Stack(), arch.Thread()} {
		if r == nil || t.state[r] != nil {
			continue
		}
		t.order = append(t.order, r)
		t.state[r] = &registerState{reg: r, Reserved: true}
	}
	for _, r := range t.order {
		if arch.Reserved(r.Index) {
			t.state[r].Reserved = true
		}
	}
	t.AvailableCount = 0
	for _, r := range t.order {
		if !t.state[r].Reserved {
			t.AvailableCount++
		}
	}
	return t
}

func (t *RegisterTable) get(r *architecture.Register) *registerState {
	s, ok := t.state[r]
	if !ok {
		panic("invalid register")
	}
	return s
}

// score implements spec.md §4.3's pickRegister scoring table. Lower wins.
func (t *RegisterTable) score(r *architecture.Register) int {
	s := t.get(r)

	if s.Reserved || s.FreezeCount > 0 {
		return 6
	}

	score := 0
	if s.Value != nil {
		score++
		if !t.hasOtherLiveSite(s.Value, s.Site) {
			score += 2
		}
	}
	if s.RefCount > 0 {
		score += 2
	}
	return score
}

func (t *RegisterTable) hasOtherLiveSite(v *Value, site Site) bool {
	for _, w := range v.BuddyRing() {
		for cur := w.Sites; cur != nil; cur = cur.next {
			if cur.Site != site {
				return true
			}
		}
	}
	return false
}

// pickRegister selects a register matching mask, per spec.md §4.3. If mask
// is empty, this is a programmer error (spec.md §7: "pickRegister with
// empty mask ⇒ abort").
func (t *RegisterTable) pickRegister(mask architecture.RegisterMask) *architecture.Register {
	if mask.IsEmpty() {
		panic("pickRegister: empty mask")
	}

	if idx, ok := mask.Singleton(); ok {
		for _, r := range t.order {
			if r.Index == idx {
				return r
			}
		}
		panic("pickRegister: mask names unknown register")
	}

	var best *architecture.Register
	bestScore := -1
	// Ties prefer higher-numbered registers: iterate high to low.
	for i := len(t.order) - 1; i >= 0; i-- {
		r := t.order[i]
		if !mask.Has(r) {
			continue
		}
		sc := t.score(r)
		if best == nil || sc < bestScore {
			best = r
			bestScore = sc
		}
	}
	if best == nil {
		panic("pickRegister: no register in mask")
	}
	return best
}

// Acquire selects and frees up a register for mask, evicting an incumbent
// if necessary (spec.md §4.3's acquire(mask, ...)).
func (t *RegisterTable) Acquire(mask architecture.RegisterMask, stack Stack, locals *Locals) *architecture.Register {
	r := t.pickRegister(mask)
	s := t.get(r)

	if s.Reserved || s.FreezeCount > 0 {
		// Singleton-mask escape hatch: spec.md §4.3 says the call returns it
		// unconditionally, leaving spilling to a deeper layer. We have no
		// deeper layer than this allocator, so the caller must not ask for a
		// frozen/reserved register except through a singleton mask it knows is
		// safe (e.g. a fixedRegisterRead on an argument register it is about
		// to consume immediately).
		if _, ok := mask.Singleton(); !ok {
			panic("pickRegister: selected frozen/reserved register under non-singleton mask")
		}
		return r
	}

	if s.RefCount > 0 {
		repl := t.replace(r, stack, locals)
		return repl
	}

	if s.Value != nil {
		if !t.trySteal(r, stack, locals) {
			return t.replace(r, stack, locals)
		}
	}

	return r
}

// trySteal attempts to demote the incumbent Value off r by moving it to its
// canonical save Site (a frame slot derived from its Locals entry or Stack
// slot) and dropping the register Site, per spec.md §4.3.
func (t *RegisterTable) trySteal(r *architecture.Register, stack Stack, locals *Locals) bool {
	s := t.get(r)
	if s.Value == nil {
		return true
	}

	saveIdx := t.ctx.canonicalSaveIndex(s.Value, stack, locals)
	if saveIdx == architecture.NoFrameIndex {
		return false
	}

	v := s.Value
	site := s.Site

	frameSite := t.ctx.Frame.allocateAt(saveIdx, site.sizeWords(), v)
	t.ctx.emitMove(site, frameSite, v)

	v.removeSite(site)
	site.Release(t.ctx)
	v.addSite(frameSite)
	frameSite.Acquire(t.ctx, v)

	return true
}

// replace evicts the incumbent by moving it to a freshly acquired sibling
// register instead of a frame slot, swapping physical registers in the
// table while preserving existing MemorySite bases (spec.md §4.3 step 1,
// and the trySteal fallback).
func (t *RegisterTable) replace(r *architecture.Register, stack Stack, locals *Locals) *architecture.Register {
	s := t.get(r)
	if s.Value == nil && s.RefCount == 0 {
		return r
	}

	siblingMask := architecture.NoRegisterMask
	for _, cand := range t.order {
		if cand == r {
			continue
		}
		cs := t.get(cand)
		if cs.Reserved || cs.FreezeCount > 0 || cs.Value != nil || cs.RefCount > 0 {
			continue
		}
		siblingMask |= cand.Mask()
	}
	if siblingMask.IsEmpty() {
		panic("replace: no free sibling register to evict into")
	}
	sibling := t.pickRegister(siblingMask)

	if s.Value != nil {
		v := s.Value
		site := s.Site
		t.ctx.emitMove(site, NewRegisterSite(sibling, nil), v)

		v.removeSite(site)
		site.Release(t.ctx)

		newSite := NewRegisterSite(sibling, nil)
		v.addSite(newSite)
		newSite.Acquire(t.ctx, v)
	}

	if s.RefCount > 0 {
		t.get(sibling).RefCount += s.RefCount
		s.RefCount = 0
	}

	return sibling
}

func (t *RegisterTable) acquireSite(site *RegisterSite, v *Value) {
	t.get(site.Low).Value = v
	t.get(site.Low).Site = site
	if site.High != nil {
		t.get(site.High).Value = v
		t.get(site.High).Site = site
	}
}

func (t *RegisterTable) releaseSite(site *RegisterSite) {
	if site.Low != nil {
		s := t.get(site.Low)
		s.Value = nil
		s.Site = nil
	}
	if site.High != nil {
		s := t.get(site.High)
		s.Value = nil
		s.Site = nil
	}
}

func (t *RegisterTable) freezeSite(site *RegisterSite) {
	if site.Low != nil {
		t.freeze(site.Low)
	}
	if site.High != nil {
		t.freeze(site.High)
	}
}

func (t *RegisterTable) thawSite(site *RegisterSite) {
	if site.Low != nil {
		t.thaw(site.Low)
	}
	if site.High != nil {
		t.thaw(site.High)
	}
}

func (t *RegisterTable) freeze(r *architecture.Register) {
	s := t.get(r)
	if t.AvailableCount == 0 {
		panic("freeze: no available registers")
	}
	s.FreezeCount++
	t.AvailableCount--
}

func (t *RegisterTable) thaw(r *architecture.Register) {
	s := t.get(r)
	if s.FreezeCount == 0 {
		panic("thaw: register not frozen")
	}
	s.FreezeCount--
	t.AvailableCount++
}

func (t *RegisterTable) incrementRefs(r *architecture.Register) {
	t.get(r).RefCount++
}

func (t *RegisterTable) decrementRefs(r *architecture.Register) {
	s := t.get(r)
	if s.RefCount == 0 {
		panic("decrementRefs: already zero")
	}
	s.RefCount--
}

func (s *RegisterSite) sizeWords() architecture.Size {
	if s.High != nil {
		return architecture.Size8 * 2
	}
	return architecture.Size8
}

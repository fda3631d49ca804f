package codegen

// siteNode is one link of a Value's singly linked list of currently live,
// content-equivalent Sites (spec.md §3).
type siteNode struct {
	Site Site
	next *siteNode
}

// Value is a virtual operand: it owns a set of equivalent live Sites and an
// ordered list of Reads demanding it (spec.md §3 / L2).
//
// Grounded on original_source/compiler.cpp's Value class, adapted to Go:
// the buddy ring is represented the same way (a circular linked list via
// the Buddy field) rather than reshaped into a Go slice, because ring
// membership must remain O(1) to join/leave (BuddyEvent/removeBuddy) and a
// slice would force array shuffling on every join.
type Value struct {
	Sites *siteNode // head of the live-site list

	Reads    *Read // head of the ordered Read list
	LastRead *Read

	// Source is the Site chosen for the currently compiling Event.
	Source Site

	// Target is an optional hint Site. allocateSite does not consult it.
	Target Site

	// Buddy links this Value into its equivalence ring (spec.md §3's "Buddy
	// ring"). A Value with no buddies points to itself.
	Buddy *Value

	// Local is true when this Value is referenced by the Locals array.
	Local bool

	// Name is used only for debugging/dumps (spec.md's debug assertions and
	// allocator-debugger-style diagnostics).
	Name string
}

func NewValue(name string) *Value {
	v := &Value{Name: name}
	v.Buddy = v
	return v
}

// BuddyRing returns every Value in v's ring, including v itself.
func (v *Value) BuddyRing() []*Value {
	ring := []*Value{v}
	for cur := v.Buddy; cur != v; cur = cur.Buddy {
		ring = append(ring, cur)
	}
	return ring
}

// JoinBuddy links other into v's ring (spec.md §3, installed explicitly via
// a BuddyEvent).
func (v *Value) JoinBuddy(other *Value) {
	if v == other {
		return
	}
	for _, w := range v.BuddyRing() {
		if w == other {
			return // already joined
		}
	}
	vNext := v.Buddy
	otherNext := other.Buddy
	v.Buddy = otherNext
	other.Buddy = vNext
}

// RemoveBuddy splits v out of its ring, leaving both halves as valid rings
// (spec.md §4.5's removeBuddy at junctions).
func (v *Value) RemoveBuddy() {
	if v.Buddy == v {
		return
	}
	ring := v.BuddyRing()
	// Find v's predecessor in the ring (the node whose Buddy points to v).
	for _, w := range ring {
		if w.Buddy == v {
			w.Buddy = v.Buddy
			break
		}
	}
	v.Buddy = v
}

// addSite prepends a new live Site for v. Grounded on spec.md §9's note
// that addSite must never produce duplicates; enforced below rather than
// left to a debug-only assertion, since the cost of checking a short list
// is negligible next to a corrupted allocator invariant.
func (v *Value) addSite(s Site) {
	for cur := v.Sites; cur != nil; cur = cur.next {
		if cur.Site == s {
			panic("addSite: duplicate site")
		}
	}
	v.Sites = &siteNode{Site: s, next: v.Sites}
}

// removeSite drops a live Site from v (not from the whole buddy ring).
func (v *Value) removeSite(s Site) {
	var prev *siteNode
	for cur := v.Sites; cur != nil; cur = cur.next {
		if cur.Site == s {
			if prev == nil {
				v.Sites = cur.next
			} else {
				prev.next = cur.next
			}
			return
		}
		prev = cur
	}
	panic("removeSite: site not found")
}

// findSite reports whether s is already one of v's live Sites.
func (v *Value) findSite(s Site) bool {
	for cur := v.Sites; cur != nil; cur = cur.next {
		if cur.Site == s {
			return true
		}
	}
	return false
}

// HasLiveSites reports whether v currently occupies any Site.
func (v *Value) HasLiveSites() bool {
	return v.Sites != nil
}

// Live implements spec.md invariant 5's corrected semantics (§9's "open
// question": the source's liveNext loop appears to read the wrong
// variable; we follow the corrected reading — a Value is live iff *any*
// buddy in its ring has a valid Read, not just itself).
func (v *Value) Live() bool {
	for _, w := range v.BuddyRing() {
		if w.Reads != nil && w.Reads.Valid() {
			return true
		}
	}
	return false
}

// ClearDeadSites releases every Site still held by v once no buddy in its
// ring has a live Read (spec.md's Read invariants: "after nextRead
// advances, a Value with no live Reads in its buddy ring has its Sites
// cleared and their resources released").
func (v *Value) ClearDeadSites(ctx *Context) {
	if v.Live() {
		return
	}
	for _, w := range v.BuddyRing() {
		for cur := w.Sites; cur != nil; {
			next := cur.next
			cur.Site.Release(ctx)
			cur = next
		}
		w.Sites = nil
	}
}

// NextRead advances past the Value's current head Read (spec.md §3's Read
// invariants), clearing dead sites if the ring goes fully dead.
func (v *Value) NextRead(ctx *Context) {
	if v.Reads == nil {
		return
	}
	v.Reads = v.Reads.nextInChain(ctx)
	v.ClearDeadSites(ctx)
}

// AppendRead adds r to v's ordered Read list (spec.md §3: "a Read's event
// field, once a Read is appended, identifies the unique Event that will
// consume it"). The successor link between consecutive Reads of the same
// Value is the kind-specific chain (AppendSuccessor/next), not the
// EventNext field — that one belongs to Event.Reads()'s own bookkeeping.
func (v *Value) AppendRead(event *Event, r *Read) {
	r.Value = v
	r.Event = event
	if v.LastRead != nil {
		v.LastRead.AppendSuccessor(r)
	}
	if v.Reads == nil {
		v.Reads = r
	}
	v.LastRead = r
}

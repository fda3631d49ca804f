package codegen

import "github.com/lcbwn/corda/architecture"

// LogicalInstruction is a boundary with a stable index; it owns the first
// and last Event appended under it, a Promise resolving to its machine
// address once compiled, and the Stack/Locals snapshots active at entry
// (spec.md §3).
type LogicalInstruction struct {
	Index int

	FirstEvent *Event
	LastEvent  *Event

	MachineOffset *DeferredPromise // set by the compile pass on first visit

	StackIn  Stack
	LocalsIn *Locals
}

func NewLogicalInstruction(index int) *LogicalInstruction {
	return &LogicalInstruction{Index: index, MachineOffset: &DeferredPromise{}}
}

// DeferredPromise wraps a Promise that does not exist yet at construction
// time (spec.md's machineOffset, set only once the compile pass first
// visits the owning Event).
type DeferredPromise struct {
	inner architecture.Promise
}

func (p *DeferredPromise) Set(inner architecture.Promise) {
	if p.inner != nil {
		panic("DeferredPromise already set")
	}
	p.inner = inner
}

func (p *DeferredPromise) Resolved() bool {
	return p.inner != nil && p.inner.Resolved()
}

func (p *DeferredPromise) Value() int64 {
	if !p.Resolved() {
		panic("unresolved promise")
	}
	return p.inner.Value()
}

package codegen

import (
	"github.com/lcbwn/corda/architecture"
	"github.com/lcbwn/corda/asm"
)

// EventKind is the per-variant behavior of an Event: whether it is a
// branch (which changes compile-pass ordering per spec.md §4.4 step 5)
// and how it drives the assembler once its sources are resolved.
//
// Grounded on spec.md §9's "Polymorphism" note: ~ten Event kinds as a
// closed family, modeled the same way as Site/Read — an interface plus one
// implementation per kind, rather than an open class hierarchy.
type EventKind interface {
	// IsBranch reports whether this Event has successors reached by a
	// conditional jump, requiring site tables to be populated before the
	// jump is emitted (spec.md §4.1/§4.4).
	IsBranch() bool

	// Compile emits this Event's assembler operations. By the time Compile
	// runs, every Read's Value.Source has been populated by the driver.
	Compile(ctx *Context, ev *Event)
}

// Event is a unit of code generation with Reads (inputs) and side effects;
// nodes of a DAG linked by Predecessor/Successor edges (spec.md §3 / L4).
type Event struct {
	Index int
	Kind  EventKind

	LogicalInstruction *LogicalInstruction

	StackBefore  Stack
	LocalsBefore *Locals
	StackAfter   Stack
	LocalsAfter  *Locals

	// ReadsHead is the head of the list of Reads this Event consumes,
	// linked through Read.EventNext (spec.md §3).
	ReadsHead *Read
	readsTail *Read

	Predecessors []*Link
	Successors   []*Link

	// JunctionSites holds the Site chosen per frame slot when this Event is
	// the first of a multi-predecessor merge (spec.md §3/§4.5).
	JunctionSites map[architecture.FrameIndex]Site

	// SavedSites is captured when this Event has multiple successors
	// (spec.md §3/§4.5).
	SavedSites map[architecture.FrameIndex]Site

	// Promises are CodePromises awaiting this Event's emission offset
	// (spec.md §3).
	Promises []*CodePromise

	Block asm.Block

	// VisitQueue holds the Links added by visitLogicalIp from this Event,
	// whether their target's first Event already existed or was wired up
	// later by resolvePendingVisits; processed after this Event compiles
	// (spec.md §4.1/§4.4 step 7).
	VisitQueue []*Link

	visited bool
}

// AddRead appends r to this Event's consumed-Read list (spec.md §3).
func (e *Event) AddRead(r *Read) {
	r.Event = e
	if e.readsTail != nil {
		e.readsTail.EventNext = r
	}
	if e.ReadsHead == nil {
		e.ReadsHead = r
	}
	e.readsTail = r
}

// Reads returns every Read consumed by this Event, in append order.
func (e *Event) Reads() []*Read {
	var out []*Read
	for r := e.ReadsHead; r != nil; r = r.EventNext {
		out = append(out, r)
	}
	return out
}

func (e *Event) IsBranch() bool {
	return e.Kind.IsBranch()
}

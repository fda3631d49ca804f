package codegen

// Link is a directed predecessor→successor edge between Events (spec.md
// §3). Multiple predecessors of one successor form a merge (junction);
// multiple successors of one predecessor form a fork.
type Link struct {
	Predecessor *Event
	Successor   *Event

	// ForkState is captured before the fork that produced this Link, if any
	// (spec.md §4.6).
	ForkState *ForkState

	// JunctionState carries the StubReads to rebind once the successor's
	// real Reads are known (spec.md §4.5).
	JunctionState *JunctionState
}

func NewLink(pred, succ *Event) *Link {
	l := &Link{Predecessor: pred, Successor: succ}
	pred.Successors = append(pred.Successors, l)
	succ.Predecessors = append(succ.Predecessors, l)
	return l
}

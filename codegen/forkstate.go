package codegen

// ForkState snapshots the Stack, Locals, predecessor Event, and logical IP
// at a saveState() call, plus one MultiRead per live Value wrapping that
// Value's current last Read (spec.md §4.6).
type ForkState struct {
	Stack       Stack
	Locals      *Locals
	Predecessor *Event
	LogicalIp   int

	Entries []ForkEntry
}

// ForkEntry pairs a live Value at the fork with the MultiRead installed as
// its new last Read (spec.md §3's ForkState: "storing (Value*, read) pairs
// so reads can be replayed through the second pass in the correct order").
type ForkEntry struct {
	Value     *Value
	MultiRead *Read
}

// JunctionState carries the StubReads captured at visitLogicalIp time, to
// be rebound once the successor's real Reads are known (spec.md §4.5).
type JunctionState struct {
	Entries []JunctionEntry
}

// JunctionEntry pairs a live Value at a visitLogicalIp call with the
// StubRead installed at the predecessor.
type JunctionEntry struct {
	Value *Value
	Stub  *Read
}

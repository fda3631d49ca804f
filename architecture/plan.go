package architecture

// SiteConstraint is one operand slot's admissible Site shapes, the
// (typeMask, registerMask) half of spec.md §4.2's Read triple (frameIndex
// is supplied by the caller at Read-construction time, not by the plan).
//
// Grounded on the teacher's architecture/instruction-constraints.go
// LocationConstraint/RegisterConstraint pair, collapsed to the two bitmasks
// spec.md's Read actually carries (the teacher's constraint objects carry
// richer call-convention bookkeeping that belongs to a later allocator
// stage than the one this module implements).
type SiteConstraint struct {
	TypeMask     TypeMask
	RegisterMask RegisterMask
}

// Plan is what Architecture.Plan returns for one (operation, sizes) pair:
// the admissible Sites for each source operand, the admissible Sites for
// the destination, and whether the operation must be lowered through a
// runtime thunk instead of a native instruction (spec.md §4.1 CombineEvent,
// §7 "architecture plan reports a thunk for an operation where the core
// does not handle thunk substitution").
type Plan struct {
	Sources     []SiteConstraint
	Destination SiteConstraint
	Thunk       bool
}

// OperationTable is a per-(Operation,Size) lookup table used to implement
// Architecture.Plan. Concrete architectures build one at construction time
// and reuse it for every compilation, mirroring the teacher's pattern of
// building InstructionConstraints tables once per Platform value rather
// than per instruction instance (instruction-constraints.go's "it's safe to
// reuse the same instruction constraints for multiple instructions").
type OperationTable struct {
	entries map[opKey]Plan
}

type opKey struct {
	op   Operation
	size Size
}

func NewOperationTable() *OperationTable {
	return &OperationTable{entries: map[opKey]Plan{}}
}

func (t *OperationTable) Set(op Operation, size Size, plan Plan) {
	t.entries[opKey{op, size}] = plan
}

func (t *OperationTable) Lookup(op Operation, size Size) (Plan, bool) {
	p, ok := t.entries[opKey{op, size}]
	return p, ok
}

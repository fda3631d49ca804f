package architecture

// Promise is a lazily resolvable integer (spec.md §3's Promise / L0).
// Concrete variants (Resolved, Pool, Code, Ip) live in codegen, since three
// of the four need access to compilation-wide state (the constant pool base,
// the assembler's machine code buffer, a LogicalInstruction's recorded
// offset) that this package has no business knowing about. The interface
// itself lives here, one layer below Site, because both the asm package
// (Assembler.Offset returns one) and codegen need to agree on its shape
// without codegen and asm importing each other.
//
// Grounded on original_source/compiler.cpp's abstract Promise class
// (resolved()/value()).
type Promise interface {
	// Resolved reports whether Value can be called yet.
	Resolved() bool

	// Value returns the resolved integer. Calling this before Resolved()
	// is true is a programmer error and must panic (spec.md §7: "Unresolved
	// Promise accessed via value() ⇒ abort").
	Value() int64
}

// ResolvedPromise is the "Resolved (literal)" Promise variant from spec.md
// §3 — an already-known integer, needing no deferred computation.
type ResolvedPromise int64

func (p ResolvedPromise) Resolved() bool { return true }
func (p ResolvedPromise) Value() int64   { return int64(p) }

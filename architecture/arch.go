package architecture

// Architecture is the "assembler client contract" spec.md §6.2 describes
// from the generator's point of view (arch->registerCount, arch->reserved,
// arch->plan, ...). One concrete value is constructed per target ISA; the
// reference implementation used by this module's own tests lives in
// asm/refarch.
type Architecture interface {
	Registers() *RegisterSet

	RegisterCount() int
	Reserved(index int) bool

	ArgumentRegisterCount() int
	ArgumentRegister(index int) *Register

	Stack() *Register
	Thread() *Register // nil if the ABI has no dedicated thread register

	ReturnLow() *Register
	ReturnHigh() *Register // nil for values that fit in one register

	FrameHeaderSize() int // words pushed by the call before the callee runs
	FrameFooterSize() int // words popped by the return sequence

	// CondensedAddressing reports whether binary/ternary arithmetic must
	// reuse the second source operand's Site as the destination Site
	// (spec.md's "condensed addressing", e.g. x86's two-operand form).
	CondensedAddressing() bool

	Plan(op Operation, sizes ...Size) Plan
}

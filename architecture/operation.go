package architecture

// Operation names every opcode the generator's builder façade can emit
// (spec.md §6.1's arithmetic/branch/move operations). Grounded on the
// teacher's architecture/operation.go OperationKind, generalized from the
// teacher's allocator-internal operation set (MoveRegister, CopyLocation,
// ...) to the front-end-facing arithmetic/branch/memory opcode set spec.md
// names explicitly (add/sub/mul/div/rem/shl/shr/ushr/and/or/xor/neg,
// jl/jg/jle/jge/je/jne/jmp, load/store family, call, return).
type Operation string

const (
	OpMove Operation = "Move"

	OpAdd  Operation = "Add"
	OpSub  Operation = "Sub"
	OpMul  Operation = "Mul"
	OpDiv  Operation = "Div"
	OpRem  Operation = "Rem"
	OpShl  Operation = "Shl"
	OpShr  Operation = "Shr"
	OpUshr Operation = "Ushr"
	OpAnd  Operation = "And"
	OpOr   Operation = "Or"
	OpXor  Operation = "Xor"
	OpNeg  Operation = "Neg"
	OpNot  Operation = "Not"

	OpCompare Operation = "Compare"

	OpJump                 Operation = "Jump"
	OpJumpIfLess           Operation = "JumpIfLess"
	OpJumpIfLessOrEqual    Operation = "JumpIfLessOrEqual"
	OpJumpIfGreater        Operation = "JumpIfGreater"
	OpJumpIfGreaterOrEqual Operation = "JumpIfGreaterOrEqual"
	OpJumpIfEqual          Operation = "JumpIfEqual"
	OpJumpIfNotEqual       Operation = "JumpIfNotEqual"

	OpCall         Operation = "Call"
	OpAlignedCall  Operation = "AlignedCall"
	OpReturn       Operation = "Return"
	OpPushFrame    Operation = "PushFrame"
	OpPopFrame     Operation = "PopFrame"
	OpLoad         Operation = "Load"
	OpLoadZ        Operation = "LoadZ"
	OpStore        Operation = "Store"
	OpBoundsCheck  Operation = "BoundsCheck"
)

// BranchKind enumerates the seven branch shapes spec.md §4.1 names for
// BranchEvent.
type BranchKind int

const (
	Jump BranchKind = iota
	JumpIfLess
	JumpIfLessOrEqual
	JumpIfGreater
	JumpIfGreaterOrEqual
	JumpIfEqual
	JumpIfNotEqual
)

func (k BranchKind) Operation() Operation {
	switch k {
	case Jump:
		return OpJump
	case JumpIfLess:
		return OpJumpIfLess
	case JumpIfLessOrEqual:
		return OpJumpIfLessOrEqual
	case JumpIfGreater:
		return OpJumpIfGreater
	case JumpIfGreaterOrEqual:
		return OpJumpIfGreaterOrEqual
	case JumpIfEqual:
		return OpJumpIfEqual
	case JumpIfNotEqual:
		return OpJumpIfNotEqual
	default:
		panic("should never happen")
	}
}

// Invert returns the branch kind that fires on the opposite comparison
// result. CompareEvent's constant-fold does not use it; BranchEvent folds
// through CompareResult.Taken.
func (k BranchKind) Invert() BranchKind {
	switch k {
	case JumpIfLess:
		return JumpIfGreaterOrEqual
	case JumpIfLessOrEqual:
		return JumpIfGreater
	case JumpIfGreater:
		return JumpIfLessOrEqual
	case JumpIfGreaterOrEqual:
		return JumpIfLess
	case JumpIfEqual:
		return JumpIfNotEqual
	case JumpIfNotEqual:
		return JumpIfEqual
	default:
		panic("should never happen")
	}
}

// CompareResult is the outcome of a constant-evaluated CompareEvent,
// spec.md's "constantCompare" field.
type CompareResult int

const (
	CompareNone CompareResult = iota
	CompareLess
	CompareEqual
	CompareGreater
)

// Taken reports whether a branch of kind k fires given this compare result.
func (cr CompareResult) Taken(k BranchKind) bool {
	switch k {
	case Jump:
		return true
	case JumpIfLess:
		return cr == CompareLess
	case JumpIfLessOrEqual:
		return cr == CompareLess || cr == CompareEqual
	case JumpIfGreater:
		return cr == CompareGreater
	case JumpIfGreaterOrEqual:
		return cr == CompareGreater || cr == CompareEqual
	case JumpIfEqual:
		return cr == CompareEqual
	case JumpIfNotEqual:
		return cr != CompareEqual
	default:
		panic("should never happen")
	}
}

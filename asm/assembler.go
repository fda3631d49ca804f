// Package asm defines the lower-level assembler client contract the code
// generator drives (spec.md §6.2). The generator never encodes
// instructions itself — "instruction encoding (delegated to the
// assembler)" is an explicit non-goal of the compiler core (spec.md §1).
// This package is the seam: codegen talks only to the Assembler interface
// below, never to a concrete encoder.
package asm

import (
	"github.com/lcbwn/corda/architecture"
)

// OperandKind tags which Site shape an Operand was built from.
type OperandKind int

const (
	ConstantOperandKind OperandKind = iota
	AddressOperandKind
	RegisterOperandKind
	MemoryOperandKind
)

// Operand is the assembler-facing view of a Site (spec.md §3: "an Operand
// view for the assembler"). codegen builds these when it calls
// Assembler.Apply; the assembler never reaches back into codegen's Site
// types.
type Operand struct {
	Kind OperandKind

	// ConstantOperandKind / AddressOperandKind.
	Promise architecture.Promise

	// RegisterOperandKind. Low is always set; High is set only for
	// operands spanning two registers.
	Low  *architecture.Register
	High *architecture.Register

	// MemoryOperandKind.
	Base        *architecture.Register
	Index       *architecture.Register // nil if unindexed
	Scale       int
	Displacement int
}

// Block is the result of Assembler.EndBlock: an emitted run of instructions
// whose start offset is not yet fixed relative to the whole procedure.
// Grounded on spec.md §4.4 step 9 and §4.4's closing paragraph ("block start
// offsets are resolved by a forward fixup walk").
type Block interface {
	// Resolve fixes this block's start offset (given the running total from
	// prior blocks) and returns the offset immediately after this block, to
	// be passed as the next block's start.
	Resolve(start int, next Block) int
}

// Assembler is the interface the driver's compile pass drives to emit
// machine code (spec.md §6.2's "assembler client contract"). A concrete
// implementation backs one target ISA; asm/refvm provides a real one
// used by this module's own tests.
type Assembler interface {
	// Apply emits one operation. sizes has one entry per distinct operand
	// width the operation needs (most operations have a single size;
	// MoveEvent's widening/narrowing moves pass two). operands is in
	// Sources..., Destination order.
	Apply(op architecture.Operation, sizes []architecture.Size, operands []Operand)

	// Offset returns a Promise resolving to the current emission position
	// once the block containing it is resolved (spec.md's CodePromise).
	Offset() architecture.Promise

	AllocateFrame(size int)
	PopFrame(size int)

	// EndBlock closes the current run of instructions. hasNext indicates
	// whether another block follows (false for the procedure's final
	// block).
	EndBlock(hasNext bool) Block

	// WriteTo copies the final machine code bytes into dst, returning the
	// number of bytes written. Must be called only after every Block has
	// been resolved.
	WriteTo(dst []byte) int

	// Size returns the total machine code size. Valid only after the last
	// Block has been resolved.
	Size() int
}

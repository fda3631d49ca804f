// Package refvm is the executable counterpart to asm/refarch: an
// asm.Assembler that encodes each applied operation as one fixed-width
// instruction record, plus a small interpreter (VM) able to run the
// emitted bytes directly, so SPEC_FULL.md §8's end-to-end scenarios are
// genuinely executable without cgo or a real CPU.
package refvm

import (
	"encoding/binary"

	"github.com/lcbwn/corda/architecture"
	"github.com/lcbwn/corda/asm"
)

// instrWords is the fixed size, in machine words, of one encoded
// instruction record (opcode tag, two sizes, up to three operand slots).
const instrWords = 6

type instr struct {
	op       architecture.Operation
	sizes    [2]architecture.Size
	operands []asm.Operand
}

// offsetPromise resolves immediately: this toy assembler lays out
// instructions linearly as it goes, so there is no deferred fixup needed
// for intra-procedure offsets (only the final code/pool base is deferred,
// handled by codegen.Context.machineCodeBase).
type offsetPromise int64

func (p offsetPromise) Resolved() bool { return true }
func (p offsetPromise) Value() int64   { return int64(p) }

// block is the single-block degenerate case: refvm never splits emission
// into multiple assembler blocks, so Resolve just adds the block's length
// to start.
type block struct{ length int }

func (b *block) Resolve(start int, next asm.Block) int { return start + b.length }

// Assembler is the refvm asm.Assembler implementation.
type Assembler struct {
	instrs    []instr
	frameSize int
}

func New() *Assembler { return &Assembler{} }

func (a *Assembler) Apply(op architecture.Operation, sizes []architecture.Size, operands []asm.Operand) {
	var sz [2]architecture.Size
	copy(sz[:], sizes)
	a.instrs = append(a.instrs, instr{op: op, sizes: sz, operands: operands})
}

func (a *Assembler) Offset() architecture.Promise {
	return offsetPromise(len(a.instrs) * instrWords * architecture.WordSize)
}

func (a *Assembler) AllocateFrame(size int) { a.frameSize = size }

func (a *Assembler) PopFrame(size int) {
	a.instrs = append(a.instrs, instr{op: architecture.OpPopFrame})
}

func (a *Assembler) EndBlock(hasNext bool) asm.Block {
	return &block{length: len(a.instrs) * instrWords * architecture.WordSize}
}

func (a *Assembler) Size() int {
	return len(a.instrs) * instrWords * architecture.WordSize
}

// WriteTo encodes every instruction as a fixed-width record: the opcode
// name's bytes (zero padded) in the first word, two size words, and up to
// three operand words
// (kind tag + payload). Register/memory operand payloads store register
// index, not the register pointer (the VM looks registers up by index).
func (a *Assembler) WriteTo(dst []byte) int {
	off := 0
	for _, ins := range a.instrs {
		off += encodeInstr(dst[off:], ins)
	}
	return off
}

func encodeInstr(dst []byte, ins instr) int {
	const word = architecture.WordSize
	putOp(dst[0:word], ins.op)
	binary.LittleEndian.PutUint64(dst[word:2*word], uint64(ins.sizes[0]))
	binary.LittleEndian.PutUint64(dst[2*word:3*word], uint64(ins.sizes[1]))
	for i := 0; i < 3; i++ {
		base := (3 + i) * word
		if i < len(ins.operands) {
			encodeOperand(dst[base:base+word], ins.operands[i])
		}
	}
	return instrWords * word
}

func putOp(dst []byte, op architecture.Operation) {
	copy(dst, []byte(op))
}

func encodeOperand(dst []byte, o asm.Operand) {
	dst[0] = byte(o.Kind)
	switch o.Kind {
	case asm.ConstantOperandKind, asm.AddressOperandKind:
		if o.Promise != nil && o.Promise.Resolved() {
			binary.LittleEndian.PutUint64(dst[1:], uint64(o.Promise.Value()))
		}
	case asm.RegisterOperandKind:
		if o.Low != nil {
			dst[1] = byte(o.Low.Index + 1)
		}
		if o.High != nil {
			dst[2] = byte(o.High.Index + 1)
		}
	case asm.MemoryOperandKind:
		if o.Base != nil {
			dst[1] = byte(o.Base.Index + 1)
		}
		if o.Index != nil {
			dst[2] = byte(o.Index.Index + 1)
		}
		dst[3] = byte(o.Scale)
		binary.LittleEndian.PutUint32(dst[4:8], uint32(int32(o.Displacement)))
	}
}

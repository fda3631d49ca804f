package codegen

import "github.com/lcbwn/corda/architecture"

// PoolPromise resolves to the absolute address of a constant-pool entry,
// valid only once the driver has finished laying out machine code (the
// pool immediately follows the code, per spec.md §6's output layout).
//
// Grounded on original_source/compiler.cpp's PoolPromise.
type PoolPromise struct {
	pool *ConstantPool
	key  int
}

func (p *PoolPromise) Resolved() bool {
	return p.pool.base != nil
}

func (p *PoolPromise) Value() int64 {
	if !p.Resolved() {
		panic("unresolved promise")
	}
	return *p.pool.base + int64(p.key)*architecture.WordSize
}

// CodePromise resolves to the absolute machine address of an assembler
// offset, valid once the driver has a machine code base address and the
// wrapped offset Promise (typically an Assembler.Offset()) is itself
// resolved. The offset is not known at construction time when a CodePromise
// is queued on an Event that has not compiled yet (spec.md §4.4 step 8:
// "Resolve all CodePromises queued on the Event to the current assembler
// offset") — Bind fills it in once that happens.
//
// Grounded on original_source/compiler.cpp's CodePromise (two-constructor
// split collapsed here into a Bind call, since Go has no cheap
// nil-vs-linked-list-node distinction to lean on).
type CodePromise struct {
	ctx    *Context
	offset architecture.Promise
}

// Bind sets the wrapped offset Promise once the owning Event compiles.
func (p *CodePromise) Bind(offset architecture.Promise) {
	if p.offset != nil {
		panic("CodePromise already bound")
	}
	p.offset = offset
}

func (p *CodePromise) Resolved() bool {
	return p.ctx.machineCodeBase != nil && p.offset != nil && p.offset.Resolved()
}

func (p *CodePromise) Value() int64 {
	if !p.Resolved() {
		panic("unresolved promise")
	}
	return *p.ctx.machineCodeBase + p.offset.Value()
}

// IpPromise resolves to the machine address of a logical-instruction
// boundary, once that LogicalInstruction's own machineOffset Promise has
// been recorded by the compile pass (spec.md §4.4 step 2).
//
// Grounded on original_source/compiler.cpp's IpPromise.
type IpPromise struct {
	ctx        *Context
	logicalIp  int
}

func (p *IpPromise) resolve() *LogicalInstruction {
	return p.ctx.LogicalCode[p.logicalIp]
}

func (p *IpPromise) Resolved() bool {
	li := p.resolve()
	return li != nil && li.MachineOffset.Resolved()
}

func (p *IpPromise) Value() int64 {
	if !p.Resolved() {
		panic("unresolved promise")
	}
	return p.resolve().MachineOffset.Value()
}

// ConstantPool is the append-only list of Promises materialised after the
// code, one word per entry (spec.md §6's output layout). Entries may
// themselves be unresolved Promises (poolAppendPromise), resolved only
// once the driver finishes emission.
type ConstantPool struct {
	entries []architecture.Promise
	base    *int64 // set by Resolve (called from Driver.WriteTo) once the code size is known
}

func (pool *ConstantPool) Append(value int64) architecture.Promise {
	key := len(pool.entries)
	p := &PoolPromise{pool: pool, key: key}
	pool.entries = append(pool.entries, architecture.ResolvedPromise(value))
	return p
}

func (pool *ConstantPool) AppendPromise(value architecture.Promise) architecture.Promise {
	key := len(pool.entries)
	p := &PoolPromise{pool: pool, key: key}
	pool.entries = append(pool.entries, value)
	return p
}

func (pool *ConstantPool) Size() int {
	return len(pool.entries) * architecture.WordSize
}

// Resolve fixes the pool's base address (immediately after the code,
// word-aligned) so every PoolPromise issued during scan becomes resolvable.
func (pool *ConstantPool) Resolve(base int64) {
	pool.base = &base
}

// Values returns every pool entry's resolved value, in insertion order, for
// writing into the destination buffer (spec.md §6's output layout).
func (pool *ConstantPool) Values() []int64 {
	values := make([]int64, len(pool.entries))
	for i, p := range pool.entries {
		values[i] = p.Value()
	}
	return values
}

package codegen

import (
	"github.com/lcbwn/corda/architecture"
)

// Driver is the Builder façade (spec.md §6.1) a front-end drives one
// operation at a time. It owns the Scan-pass bookkeeping (appendEvent,
// visitLogicalIp's deferred link queue) and, once the front-end is done,
// runs the Compile pass (spec.md §4.4).
//
// Grounded on the teacher's two-pass analyzer/compiler split (parse then
// analyzer/allocator), generalized to the event-graph shape this spec
// describes instead of the teacher's AST-walking shape.
type Driver struct {
	ctx *Context

	// pendingVisits holds forward Links whose target LogicalInstruction had
	// no FirstEvent yet when visitLogicalIp fired, keyed by target ip
	// (spec.md §4.1's "deferred visit queue").
	pendingVisits map[int][]*Link
}

// NewDriver constructs a Driver over a freshly built Context.
func NewDriver(ctx *Context) *Driver {
	return &Driver{ctx: ctx, pendingVisits: map[int][]*Link{}}
}

// Init reserves logicalCodeLength LogicalInstruction slots and sizes the
// Locals array (spec.md §6.1's init(logicalCodeLength, parameterFootprint,
// localFootprint, alignedFrameSize)).
func (d *Driver) Init(logicalCodeLength, parameterFootprint, localFootprint, alignedFrameSize int) {
	ctx := d.ctx
	ctx.LogicalCode = make([]*LogicalInstruction, logicalCodeLength)
	ctx.Locals = NewLocals(parameterFootprint + localFootprint)
	ctx.Assembler.AllocateFrame(alignedFrameSize)
}

// --- Scan-pass plumbing ---

// currentLogicalInstruction returns the LogicalInstruction events are
// currently being appended under, creating its slot lazily if a forward
// visitLogicalIp referenced it first.
func (d *Driver) currentLogicalInstruction() *LogicalInstruction {
	ctx := d.ctx
	li := ctx.LogicalCode[ctx.CurrentLogicalIp]
	if li == nil {
		li = NewLogicalInstruction(ctx.CurrentLogicalIp)
		ctx.LogicalCode[ctx.CurrentLogicalIp] = li
	}
	return li
}

// appendEvent performs spec.md §4.1 steps (1)-(3): dummy-event resync,
// linking to the predecessor, and advancing the predecessor cursor.
func (d *Driver) appendEvent() *Event {
	ctx := d.ctx
	li := d.currentLogicalInstruction()

	if li.StackIn == nil && li.LocalsIn == nil && li.FirstEvent == nil {
		li.StackIn = ctx.Stack
		li.LocalsIn = ctx.Locals.Snapshot()
	} else if ctx.Stack != li.StackIn || !ctx.Locals.Equal(li.LocalsIn) {
		d.linkBareEvent(&Event{
			Index:        ctx.nextEventIndex(),
			Kind:         DummyEvent{},
			LogicalInstruction: li,
			StackBefore:  ctx.Stack,
			LocalsBefore: ctx.Locals.Snapshot(),
		})
	}

	ev := &Event{
		Index:        ctx.nextEventIndex(),
		LogicalInstruction: li,
		StackBefore:  ctx.Stack,
		LocalsBefore: ctx.Locals.Snapshot(),
	}
	d.linkBareEvent(ev)
	return ev
}

func (d *Driver) linkBareEvent(ev *Event) {
	ctx := d.ctx
	li := ev.LogicalInstruction

	if ctx.Predecessor != nil {
		link := NewLink(ctx.Predecessor, ev)
		if ctx.PendingForkState != nil {
			link.ForkState = ctx.PendingForkState
			ctx.PendingForkState = nil
		}
	}
	ctx.Predecessor = ev

	if li.FirstEvent == nil {
		li.FirstEvent = ev
		d.resolvePendingVisits(li)
	}
	li.LastEvent = ev

	if ctx.FirstEvent == nil {
		ctx.FirstEvent = ev
	}
	ctx.LastEvent = ev
}

// resolvePendingVisits wires up any forward Links waiting on li's first
// Event (spec.md §4.1's deferred visit queue).
func (d *Driver) resolvePendingVisits(li *LogicalInstruction) {
	pending := d.pendingVisits[li.Index]
	delete(d.pendingVisits, li.Index)
	for _, link := range pending {
		link.Successor = li.FirstEvent
		link.Predecessor.Successors = append(link.Predecessor.Successors, link)
		li.FirstEvent.Predecessors = append(li.FirstEvent.Predecessors, link)
		link.Predecessor.VisitQueue = append(link.Predecessor.VisitQueue, link)
	}
}

// VisitLogicalIp records a forward edge from the current tail to target's
// first Event, installing StubReads for every currently live Value
// (spec.md §4.1/§4.5).
func (d *Driver) VisitLogicalIp(target int) {
	ctx := d.ctx
	li := ctx.LogicalCode[target]
	if li == nil {
		li = NewLogicalInstruction(target)
		ctx.LogicalCode[target] = li
	}

	tail := ctx.Predecessor
	if tail == nil {
		return
	}

	js := &JunctionState{}
	for _, node := range Values(ctx.Stack) {
		if node.Value.Live() {
			stub := NewStubRead(architecture.Size(node.SizeWords * architecture.WordSize))
			node.Value.AppendRead(tail, stub)
			js.Entries = append(js.Entries, JunctionEntry{Value: node.Value, Stub: stub})
		}
	}
	for _, slot := range ctx.Locals.Slots {
		if slot.Value != nil && slot.Value.Live() {
			stub := NewStubRead(architecture.Size(slot.SizeBytes))
			slot.Value.AppendRead(tail, stub)
			js.Entries = append(js.Entries, JunctionEntry{Value: slot.Value, Stub: stub})
		}
	}

	if li.FirstEvent != nil {
		link := NewLink(tail, li.FirstEvent)
		link.JunctionState = js
		tail.VisitQueue = append(tail.VisitQueue, link)
		return
	}

	link := &Link{Predecessor: tail, JunctionState: js}
	d.pendingVisits[target] = append(d.pendingVisits[target], link)
}

// StartLogicalIp moves the append cursor to ip (spec.md §6.1).
func (d *Driver) StartLogicalIp(ip int) {
	d.ctx.CurrentLogicalIp = ip
}

// MachineIp returns a Promise resolving to ip's machine address once
// compiled (spec.md §6.1).
func (d *Driver) MachineIp(ip int) architecture.Promise {
	return d.ctx.NewIpPromise(ip)
}

// --- Pool / constant / address / memory operand builders ---

func (d *Driver) PoolAppend(value int64) architecture.Promise {
	return d.ctx.Pool.Append(value)
}

func (d *Driver) PoolAppendPromise(value architecture.Promise) architecture.Promise {
	return d.ctx.Pool.AppendPromise(value)
}

func (d *Driver) Constant(value int64) *Value {
	return d.ConstantPromise(architecture.ResolvedPromise(value))
}

func (d *Driver) ConstantPromise(value architecture.Promise) *Value {
	v := NewValue("const")
	v.addSite(NewConstantSite(value))
	return v
}

func (d *Driver) Address(addr architecture.Promise) *Value {
	v := NewValue("address")
	v.addSite(NewAddressSite(addr))
	return v
}

// Memory materialises a MemorySite for base+index*scale+disp (spec.md
// §6.1). A constant index collapses into the displacement.
func (d *Driver) Memory(base *Value, disp int, index *Value, scale int) *Value {
	ev := d.appendEvent()
	result := NewValue("memory")
	k := NewMemoryEvent(d.ctx, ev, base, disp, index, scale, result)
	ev.Kind = k
	return result
}

func (d *Driver) StackPointer() *Value {
	v := NewValue("stack")
	v.addSite(&RegisterSite{Mask: d.ctx.Arch.Stack().Mask(), Low: d.ctx.Arch.Stack()})
	return v
}

func (d *Driver) ThreadPointer() *Value {
	t := d.ctx.Arch.Thread()
	if t == nil {
		panic("ThreadPointer: architecture has no thread register")
	}
	v := NewValue("thread")
	v.addSite(&RegisterSite{Mask: t.Mask(), Low: t})
	return v
}

// --- Stack operations ---

// Push grows the abstract operand stack with v (spec.md §6.1's push(size,v)).
func (d *Driver) Push(sizeWords int, v *Value) {
	d.ctx.Stack = Push(d.ctx.Stack, v, sizeWords)
}

// Pushed reserves a new stack slot without a backing Value yet (push(size)).
func (d *Driver) Pushed(sizeWords int) *Value {
	v := NewValue("pushed")
	d.ctx.Stack = Push(d.ctx.Stack, v, sizeWords)
	return v
}

// Pop drops the top stack entry, returning its Value (spec.md §6.1's pop(size)).
func (d *Driver) Pop() *Value {
	v, rest := Pop(d.ctx.Stack)
	d.ctx.Stack = rest
	return v
}

// Popped is an alias used by call-site argument unwinding once the callee's
// footprint is known.
func (d *Driver) Popped() *Value {
	return d.Pop()
}

func (d *Driver) Top() *Value {
	return Peek(d.ctx.Stack, 0).Value
}

func (d *Driver) Size() int {
	if d.ctx.Stack == nil {
		return 0
	}
	return d.ctx.Stack.Index + d.ctx.Stack.SizeWords + d.ctx.Stack.PaddingWords
}

func (d *Driver) Padding(i int) int {
	return Peek(d.ctx.Stack, i).PaddingWords
}

func (d *Driver) Peek(i int) *Value {
	return Peek(d.ctx.Stack, i).Value
}

// --- Locals ---

// InitLocal reserves a Locals slot for a fresh parameter/local Value
// (spec.md §6.1's initLocal(size, idx)).
func (d *Driver) InitLocal(sizeBytes, idx int) *Value {
	v := NewValue("local")
	v.Local = true
	d.ctx.Locals.Set(idx, v, sizeBytes)
	return v
}

// InitLocalsFromLogicalIp seeds the Locals array from the entry Locals
// snapshot of the LogicalInstruction at ip, used when a procedure has multiple entry
// points with different parameter layouts.
func (d *Driver) InitLocalsFromLogicalIp(ip int) {
	li := d.ctx.LogicalCode[ip]
	if li == nil || li.LocalsIn == nil {
		return
	}
	d.ctx.Locals.CopyFrom(li.LocalsIn)
}

// StoreLocal writes src into local idx. If the incumbent local Value is
// still live, joins it and src into a buddy ring via a BuddyEvent instead
// of silently dropping the old binding (spec.md §6.1/§8's "buddy with local
// store" scenario).
func (d *Driver) StoreLocal(sizeBytes int, src *Value, idx int) {
	slot := d.ctx.Locals.Get(idx)
	if slot.Value != nil && slot.Value != src && slot.Value.Local && slot.Value.Live() {
		ev := d.appendEvent()
		ev.Kind = &BuddyEvent{First: slot.Value, Second: src}
	}
	src.Local = true
	d.ctx.Locals.Set(idx, src, sizeBytes)
}

func (d *Driver) LoadLocal(idx int) *Value {
	return d.ctx.Locals.Get(idx).Value
}

// --- Bounds check / memory access ---

func (d *Driver) CheckBounds(object *Value, lengthOffset int, index *Value, handler architecture.Promise) {
	ev := d.appendEvent()
	k := NewBoundsCheckEvent(d.ctx, ev, object, lengthOffset, index, handler)
	ev.Kind = k
}

func (d *Driver) Store(size architecture.Size, addr, value *Value) {
	ev := d.appendEvent()
	k := NewMoveEvent(d.ctx, ev, size, value, size, addr)
	ev.Kind = k
}

func (d *Driver) Load(size architecture.Size, addr *Value) *Value {
	return d.move(size, addr, size)
}

func (d *Driver) LoadZ(srcSize architecture.Size, addr *Value, dstSize architecture.Size) *Value {
	return d.move(srcSize, addr, dstSize)
}

func (d *Driver) Load4To8(addr *Value) *Value {
	return d.move(architecture.Size4, addr, architecture.Size8)
}

func (d *Driver) move(srcSize architecture.Size, src *Value, dstSize architecture.Size) *Value {
	ev := d.appendEvent()
	dst := NewValue("move")
	k := NewMoveEvent(d.ctx, ev, srcSize, src, dstSize, dst)
	ev.Kind = k
	return dst
}

// Cmp emits a CompareEvent; Lcmp is the wide-operand alias.
func (d *Driver) Cmp(size architecture.Size, a, b *Value) {
	ev := d.appendEvent()
	k := NewCompareEvent(d.ctx, ev, size, a, b)
	ev.Kind = k
}

func (d *Driver) Lcmp(a, b *Value) {
	d.Cmp(architecture.Size8, a, b)
}

// --- Branches ---

func (d *Driver) branch(kind architecture.BranchKind, target architecture.Promise) {
	ev := d.appendEvent()
	ev.Kind = &BranchEvent{Kind: kind, Target: target}
}

func (d *Driver) Jmp(target architecture.Promise)  { d.branch(architecture.Jump, target) }
func (d *Driver) Jl(target architecture.Promise)   { d.branch(architecture.JumpIfLess, target) }
func (d *Driver) Jle(target architecture.Promise)  { d.branch(architecture.JumpIfLessOrEqual, target) }
func (d *Driver) Jg(target architecture.Promise)   { d.branch(architecture.JumpIfGreater, target) }
func (d *Driver) Jge(target architecture.Promise)  { d.branch(architecture.JumpIfGreaterOrEqual, target) }
func (d *Driver) Je(target architecture.Promise)   { d.branch(architecture.JumpIfEqual, target) }
func (d *Driver) Jne(target architecture.Promise)  { d.branch(architecture.JumpIfNotEqual, target) }

// --- Arithmetic ---

func (d *Driver) combine(op architecture.Operation, size architecture.Size, a, b *Value) *Value {
	plan := d.ctx.Arch.Plan(op, size)
	result := NewValue(string(op))
	if plan.Thunk {
		addr := d.ctx.Client.GetThunk(op, size)
		return d.Call(d.ConstantPromiseAsAddress(addr), nil, size, []*Value{a, b}, 0, false)
	}
	ev := d.appendEvent()
	k := NewCombineEvent(d.ctx, ev, op, size, a, b, result)
	ev.Kind = k
	return result
}

func (d *Driver) ConstantPromiseAsAddress(p architecture.Promise) *Value {
	v := NewValue("thunk")
	v.addSite(NewAddressSite(p))
	return v
}

func (d *Driver) Add(size architecture.Size, a, b *Value) *Value  { return d.combine(architecture.OpAdd, size, a, b) }
func (d *Driver) Sub(size architecture.Size, a, b *Value) *Value  { return d.combine(architecture.OpSub, size, a, b) }
func (d *Driver) Mul(size architecture.Size, a, b *Value) *Value  { return d.combine(architecture.OpMul, size, a, b) }
func (d *Driver) Div(size architecture.Size, a, b *Value) *Value  { return d.combine(architecture.OpDiv, size, a, b) }
func (d *Driver) Rem(size architecture.Size, a, b *Value) *Value  { return d.combine(architecture.OpRem, size, a, b) }
func (d *Driver) Shl(size architecture.Size, a, b *Value) *Value  { return d.combine(architecture.OpShl, size, a, b) }
func (d *Driver) Shr(size architecture.Size, a, b *Value) *Value  { return d.combine(architecture.OpShr, size, a, b) }
func (d *Driver) Ushr(size architecture.Size, a, b *Value) *Value { return d.combine(architecture.OpUshr, size, a, b) }
func (d *Driver) And(size architecture.Size, a, b *Value) *Value  { return d.combine(architecture.OpAnd, size, a, b) }
func (d *Driver) Or(size architecture.Size, a, b *Value) *Value   { return d.combine(architecture.OpOr, size, a, b) }
func (d *Driver) Xor(size architecture.Size, a, b *Value) *Value  { return d.combine(architecture.OpXor, size, a, b) }

func (d *Driver) Neg(size architecture.Size, a *Value) *Value {
	ev := d.appendEvent()
	result := NewValue("neg")
	k := NewTranslateEvent(d.ctx, ev, architecture.OpNeg, size, a, result)
	ev.Kind = k
	return result
}

// --- Calls / return ---

func (d *Driver) Call(address *Value, traceHandler func(architecture.Promise), resultSize architecture.Size, args []*Value, stackArgFootprint int, aligned bool) *Value {
	ev := d.appendEvent()
	result := NewValue("call-result")
	k := NewCallEvent(d.ctx, ev, address, traceHandler, result, resultSize, args, stackArgFootprint, aligned)
	ev.Kind = k
	return result
}

func (d *Driver) StackCall(resultSize architecture.Size, argCount int, aligned bool) *Value {
	addr := d.Pop()
	args := make([]*Value, argCount)
	for i := argCount - 1; i >= 0; i-- {
		args[i] = d.Pop()
	}
	return d.Call(addr, nil, resultSize, args, 0, aligned)
}

func (d *Driver) Return(size architecture.Size, v *Value) {
	ev := d.appendEvent()
	k := NewReturnEvent(d.ctx, ev, size, v)
	ev.Kind = k
}

// --- Fork state ---

// SaveState snapshots the current Stack/Locals/predecessor/logicalIp and
// installs a MultiRead per live Value (spec.md §4.6).
func (d *Driver) SaveState() *ForkState {
	ctx := d.ctx
	fs := &ForkState{Stack: ctx.Stack, Locals: ctx.Locals.Snapshot(), Predecessor: ctx.Predecessor, LogicalIp: ctx.CurrentLogicalIp}

	for _, node := range Values(ctx.Stack) {
		d.installFork(fs, node.Value)
	}
	for _, slot := range ctx.Locals.Slots {
		if slot.Value != nil {
			d.installFork(fs, slot.Value)
		}
	}

	ctx.PendingForkState = fs
	return fs
}

func (d *Driver) installFork(fs *ForkState, v *Value) {
	if !v.Live() {
		return
	}
	mr := NewMultiRead(v.LastRead.Size)
	v.AppendRead(nil, mr)
	fs.Entries = append(fs.Entries, ForkEntry{Value: v, MultiRead: mr})
}

// RestoreState reinstates a prior SaveState snapshot and allocates one more
// per-branch target on each installed MultiRead, so a later branch compiled
// from this same fork merges into the same multi-read list (spec.md §4.6).
func (d *Driver) RestoreState(fs *ForkState) {
	ctx := d.ctx
	ctx.Stack = fs.Stack
	ctx.Locals.CopyFrom(fs.Locals)
	ctx.Predecessor = fs.Predecessor
	ctx.CurrentLogicalIp = fs.LogicalIp

	for _, entry := range fs.Entries {
		entry.MultiRead.AllocateTarget()
	}
	ctx.PendingForkState = fs
}

// --- Compile pass ---

// Compile runs the two-pass §4.4 per-event loop over every Event appended
// during the scan pass, returning the total machine code size.
func (d *Driver) Compile() int {
	ctx := d.ctx
	ctx.Pass = CompilePass

	for ev := ctx.FirstEvent; ev != nil; {
		next := d.compileOneEvent(ev)
		ev = next
	}

	block := ctx.Assembler.EndBlock(false)
	size := block.Resolve(0, nil)
	base := int64(0)
	ctx.machineCodeBase = &base
	return size
}

func (d *Driver) compileOneEvent(ev *Event) *Event {
	ctx := d.ctx
	li := ev.LogicalInstruction

	ctx.Stack = ev.StackBefore
	ctx.Locals.CopyFrom(ev.LocalsBefore)

	if !li.MachineOffset.Resolved() && li.FirstEvent == ev {
		li.MachineOffset.Set(ctx.Assembler.Offset())
	}

	if len(ev.Predecessors) > 0 {
		d.visitPredecessor(ev, ev.Predecessors[len(ev.Predecessors)-1])
		if len(ev.Predecessors) >= 2 {
			propagateJunctionSites(ctx, ev)
		}
	}

	reads := ev.Reads()
	for _, r := range reads {
		d.populateSource(r)
	}
	for _, r := range reads {
		r.Value.Source.Freeze(ctx)
	}

	// Snapshot the Site every live frame slot currently holds when ev forks
	// into more than one successor (spec.md §4.4 step 5/§4.5), so a later
	// merge Event's propagateJunctionSites has real predecessor data to
	// reconcile from instead of an always-empty map. A branch takes the
	// snapshot before its jump is emitted; every other Event after compiling.
	saveSites := func() {
		if len(ev.Successors) < 2 {
			return
		}
		ev.SavedSites = map[architecture.FrameIndex]Site{}
		for idx, slot := range ctx.Frame.slots {
			if slot.Value != nil {
				ev.SavedSites[idx] = slot.Site
			}
		}
	}
	if ev.IsBranch() {
		saveSites()
	}

	ev.Kind.Compile(ctx, ev)

	for _, r := range reads {
		r.Value.Source.Thaw(ctx)
		r.Value.NextRead(ctx)
	}

	if !ev.IsBranch() {
		saveSites()
	}

	for _, link := range ev.VisitQueue {
		updateJunctionReads(link)
	}

	for _, p := range ev.Promises {
		p.Bind(ctx.Assembler.Offset())
	}

	ev.StackAfter = ctx.Stack
	ev.LocalsAfter = ctx.Locals.Snapshot()

	return d.nextInScanOrder(ev)
}

func (d *Driver) nextInScanOrder(ev *Event) *Event {
	if ev == d.ctx.LastEvent {
		return nil
	}
	for _, link := range ev.Successors {
		if link.Successor.Index == ev.Index+1 {
			return link.Successor
		}
	}
	return nil
}

func (d *Driver) visitPredecessor(ev *Event, link *Link) {
	if link.ForkState != nil {
		for _, entry := range link.ForkState.Entries {
			entry.Value.NextRead(d.ctx)
		}
	}
	updateJunctionReads(link)

	pred := link.Predecessor
	if len(ev.Predecessors) > 1 && pred.JunctionSites != nil {
		ev.JunctionSites = pred.JunctionSites
	} else if pred.SavedSites != nil {
		ev.JunctionSites = pred.SavedSites
	}
}

// populateSource resolves one Read's Value.Source (spec.md §4.4 step 4):
// reuse a live Site if one matches, else allocate a fresh one and emit a
// Move from the cheapest existing Site.
func (d *Driver) populateSource(r *Read) {
	ctx := d.ctx
	v := r.Value
	if site := r.PickSite(ctx, v); site != nil {
		v.Source = site
		return
	}
	target := r.AllocateSite(ctx)
	if v.HasLiveSites() {
		var best Site
		bestCost := -1
		for _, w := range v.BuddyRing() {
			for cur := w.Sites; cur != nil; cur = cur.next {
				cost := cur.Site.CopyCost(target)
				if best == nil || cost < bestCost {
					best, bestCost = cur.Site, cost
				}
			}
		}
		if best != nil {
			ctx.emitMove(best, target, v)
		}
	}
	target.Acquire(ctx, v)
	v.addSite(target)
	v.Source = target
}

// PoolSize returns the constant pool's size in bytes.
func (d *Driver) PoolSize() int {
	return d.ctx.Pool.Size()
}

// WriteTo materialises the final code followed by the word-aligned
// constant pool into dst (spec.md §6's output layout).
func (d *Driver) WriteTo(dst []byte) int {
	ctx := d.ctx
	n := ctx.Assembler.WriteTo(dst)
	poolBase := architecture.AlignedBytes(n)
	ctx.Pool.Resolve(int64(poolBase))
	for i, v := range ctx.Pool.Values() {
		writeWord(dst[poolBase+i*architecture.WordSize:], v)
	}
	return poolBase + ctx.Pool.Size()
}

func writeWord(dst []byte, v int64) {
	for i := 0; i < architecture.WordSize; i++ {
		dst[i] = byte(v >> (8 * i))
	}
}

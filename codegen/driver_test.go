package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lcbwn/corda/architecture"
	"github.com/lcbwn/corda/asm/refarch"
	"github.com/lcbwn/corda/asm/refvm"
)

func newDriver() (*Driver, *refvm.Assembler) {
	assembler := refvm.New()
	ctx := NewContext(refarch.New(), assembler, noThunksTest{}, nil)
	d := NewDriver(ctx)
	d.Init(1, 0, 0, 0)
	return d, assembler
}

// TestReturnConstant covers spec.md §8 property 6 and the "return a
// constant" base case of the add-two-constants scenario: a bare
// return_(size, constant(k)) must place k in the return register.
func TestReturnConstant(t *testing.T) {
	d, assembler := newDriver()
	d.StartLogicalIp(0)
	d.Return(architecture.Size4, d.Constant(7))

	size := d.Compile()
	require.Greater(t, size, 0)

	buf := make([]byte, size+d.PoolSize())
	n := d.WriteTo(buf)
	require.LessOrEqual(t, n, len(buf))

	vm := refvm.NewVM(256)
	got := vm.Run(buf[:assembler.Size()])
	require.Equal(t, int64(7), got)
}

// TestAddTwoConstants is spec.md §8's worked "add two constants" scenario:
// return_(4, add(4, constant(3), constant(4))) must execute to 7.
func TestAddTwoConstants(t *testing.T) {
	d, assembler := newDriver()
	d.StartLogicalIp(0)
	sum := d.Add(architecture.Size4, d.Constant(3), d.Constant(4))
	d.Return(architecture.Size4, sum)

	d.Compile()
	buf := make([]byte, assembler.Size()+d.PoolSize())
	d.WriteTo(buf)

	vm := refvm.NewVM(256)
	got := vm.Run(buf[:assembler.Size()])
	require.Equal(t, int64(7), got)
}

// TestArgumentSpilling covers spec.md §8's argument-spilling scenario:
// excess call arguments beyond arch.ArgumentRegisterCount() get
// MemoryOperand Reads with strictly increasing frame indexes.
func TestArgumentSpilling(t *testing.T) {
	d, _ := newDriver()
	d.StartLogicalIp(0)

	argCount := d.ctx.Arch.ArgumentRegisterCount() + 2
	args := make([]*Value, argCount)
	for i := range args {
		args[i] = d.Constant(int64(i))
	}
	addr := d.Constant(0x1000)
	d.Call(addr, nil, architecture.Size8, args, 0, false)

	ev := d.ctx.LastEvent
	call, ok := ev.Kind.(*CallEvent)
	require.True(t, ok)

	lastFrameIdx := architecture.FrameIndex(-1)
	regArgs := d.ctx.Arch.ArgumentRegisterCount()
	for i, r := range call.ArgReads {
		if i < regArgs {
			continue
		}
		k, ok := r.kind.(*singleReadKind)
		require.True(t, ok)
		require.Equal(t, architecture.MemoryOperand, k.typeMask)
		require.Greater(t, k.frameIndex, lastFrameIdx)
		lastFrameIdx = k.frameIndex
	}
}

// TestSaveRestoreStateRoundTrip covers spec.md §8 property 7: saveState
// installs a MultiRead as the new last Read of every live Value, and each
// restoreState from that same snapshot allocates one more per-branch
// target slot on it rather than replacing it.
func TestSaveRestoreStateRoundTrip(t *testing.T) {
	d, _ := newDriver()
	d.StartLogicalIp(0)

	v := d.Constant(5)
	r := NewSingleRead(architecture.Size4, architecture.RegisterOperand, architecture.AnyRegisterMask, architecture.NoFrameIndex)
	v.AppendRead(nil, r)
	d.Push(1, v)
	require.True(t, v.Live())

	fs := d.SaveState()
	require.Len(t, fs.Entries, 1)
	require.Same(t, v, fs.Entries[0].Value)

	mr := fs.Entries[0].MultiRead
	mk, ok := mr.kind.(*multiReadKind)
	require.True(t, ok)
	require.Same(t, mr, v.LastRead, "saveState must install the MultiRead as the Value's new last Read")

	d.RestoreState(fs)
	require.Len(t, mk.targets, 1, "first restoreState allocates the first per-branch target")

	d.RestoreState(fs)
	require.Len(t, mk.targets, 2, "a second restoreState from the same snapshot allocates another target instead of replacing the first")

	require.Same(t, fs.Stack, d.ctx.Stack)
	require.Equal(t, fs.LogicalIp, d.ctx.CurrentLogicalIp)
}

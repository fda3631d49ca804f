package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcbwn/corda/architecture"
)

func TestPickRegisterSingletonEscapeHatch(t *testing.T) {
	ctx := newTestContext()
	r0 := testArchRegister(ctx, 0)
	ctx.Registers.freeze(r0)

	got := ctx.Registers.Acquire(r0.Mask(), nil, ctx.Locals)
	assert.Same(t, r0, got, "a singleton mask naming a frozen register must still return it")
}

func TestPickRegisterEmptyMaskPanics(t *testing.T) {
	ctx := newTestContext()
	assert.Panics(t, func() {
		ctx.Registers.pickRegister(architecture.NoRegisterMask)
	})
}

func TestFreezePreventsEviction(t *testing.T) {
	ctx := newTestContext()
	r0 := testArchRegister(ctx, 0)
	v := NewValue("frozen-occupant")

	site := NewRegisterSite(r0, nil)
	site.Acquire(ctx, v)
	v.addSite(site)
	site.Freeze(ctx)

	mask := architecture.NoRegisterMask
	for _, r := range ctx.Arch.Registers().Data {
		if !ctx.Arch.Reserved(r.Index) {
			mask |= r.Mask()
		}
	}

	for i := 0; i < 8; i++ {
		picked := ctx.Registers.pickRegister(mask)
		assert.NotSame(t, r0, picked, "pickRegister must never select a frozen register under a non-singleton mask")
	}
}

func TestRegisterTableAvailableCountTracksFreeze(t *testing.T) {
	ctx := newTestContext()
	before := ctx.Registers.AvailableCount
	r0 := testArchRegister(ctx, 0)

	ctx.Registers.freeze(r0)
	require.Equal(t, before-1, ctx.Registers.AvailableCount)

	ctx.Registers.thaw(r0)
	assert.Equal(t, before, ctx.Registers.AvailableCount)
}

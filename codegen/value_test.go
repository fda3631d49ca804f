package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcbwn/corda/architecture"
)

func TestBuddyRingJoinAndRemove(t *testing.T) {
	a := NewValue("a")
	b := NewValue("b")
	c := NewValue("c")

	a.JoinBuddy(b)
	a.JoinBuddy(c)

	ring := a.BuddyRing()
	assert.Len(t, ring, 3)
	assert.Contains(t, ring, b)
	assert.Contains(t, ring, c)

	b.RemoveBuddy()
	assert.Len(t, b.BuddyRing(), 1)
	assert.Len(t, a.BuddyRing(), 2)
}

func TestValueLiveAcrossBuddyRing(t *testing.T) {
	a := NewValue("a")
	b := NewValue("b")
	a.JoinBuddy(b)

	assert.False(t, a.Live(), "no reads installed yet")

	r := NewSingleRead(architecture.Size4, architecture.RegisterOperand, architecture.AnyRegisterMask, architecture.NoFrameIndex)
	b.AppendRead(nil, r)

	assert.True(t, a.Live(), "a must be live because its buddy b has a valid read")
	assert.True(t, b.Live())
}

func TestClearDeadSitesOnlyWhenWholeRingDead(t *testing.T) {
	ctx := newTestContext()
	a := NewValue("a")
	b := NewValue("b")
	a.JoinBuddy(b)

	regSite := NewRegisterSite(testArchRegister(ctx, 0), nil)
	regSite.Acquire(ctx, a)
	a.addSite(regSite)

	r := NewSingleRead(architecture.Size8, architecture.RegisterOperand, architecture.AnyRegisterMask, architecture.NoFrameIndex)
	b.AppendRead(nil, r)

	a.ClearDeadSites(ctx)
	require.True(t, a.HasLiveSites(), "ring still live via b's read, sites must survive")

	b.NextRead(ctx)
	assert.False(t, a.HasLiveSites(), "once the last read is consumed, the whole ring's sites clear")
}

func TestAddSiteRejectsDuplicate(t *testing.T) {
	ctx := newTestContext()
	v := NewValue("v")
	s := NewConstantSite(architecture.ResolvedPromise(1))
	v.addSite(s)
	assert.Panics(t, func() { v.addSite(s) })
	_ = ctx
}

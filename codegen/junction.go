package codegen

import "github.com/lcbwn/corda/architecture"

// pickJunctionSite chooses the Site a merging Value should settle into at a
// junction Event: a frame Site at idx that v (or a buddy) currently holds,
// else a new frame Site at idx. Register Sites are never chosen, whatever
// the number of available registers.
func pickJunctionSite(ctx *Context, v *Value, idx architecture.FrameIndex) Site {
	if s := pickSite(ctx, v, architecture.MemoryOperand, architecture.NoRegisterMask, idx); s != nil {
		return s
	}
	return allocateSiteWithSize(ctx, architecture.MemoryOperand, architecture.NoRegisterMask, idx, architecture.Size8)
}

// propagateJunctionSites walks every live frame slot reachable through ev's
// predecessors and fixes ev.JunctionSites, emitting reconciling Moves on
// whichever predecessor Events don't already agree with the chosen Site
// (spec.md §4.5).
func propagateJunctionSites(ctx *Context, ev *Event) {
	if len(ev.Predecessors) < 2 {
		return
	}
	ev.JunctionSites = map[architecture.FrameIndex]Site{}

	seen := map[architecture.FrameIndex]*Value{}
	for _, link := range ev.Predecessors {
		pred := link.Predecessor
		for idx := range pred.SavedSites {
			if seen[idx] == nil {
				if s, ok := ctx.Frame.slots[idx]; ok {
					seen[idx] = s.Value
				}
			}
		}
	}

	for idx := range seen {
		v := seen[idx]
		if v == nil {
			continue
		}
		chosen := pickJunctionSite(ctx, v, idx)
		ev.JunctionSites[idx] = chosen

		for _, link := range ev.Predecessors {
			pred := link.Predecessor
			existing, ok := pred.SavedSites[idx]
			if !ok || sameSite(existing, chosen) {
				continue
			}
			ctx.emitMove(existing, chosen, v)
		}
	}
}

func sameSite(a, b Site) bool {
	am, aok := a.(*MemorySite)
	bm, bok := b.(*MemorySite)
	if aok && bok {
		return am.Base == bm.Base && am.Index == bm.Index && am.Scale == bm.Scale && am.Displacement == bm.Displacement
	}
	return a == b
}

// updateJunctionReads rebinds every StubRead installed on a predecessor Link
// at visitLogicalIp time to the successor's actual first Read for the same
// Value, once that successor's Reads are known (spec.md §4.5).
func updateJunctionReads(link *Link) {
	if link.JunctionState == nil {
		return
	}
	for _, entry := range link.JunctionState.Entries {
		entry.Stub.Bind(entry.Value.Reads)
	}
	link.JunctionState = nil
}

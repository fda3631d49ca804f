package codegen

import "github.com/lcbwn/corda/architecture"

// pickSite scans value's live Sites, walking the buddy ring, and returns
// the one with minimum CopyCost among those matching the constraint triple
// (spec.md §4.2). Returns nil if none match.
func pickSite(ctx *Context, value *Value, typeMask architecture.TypeMask, registerMask architecture.RegisterMask, frameIndex architecture.FrameIndex) Site {
	var best Site
	bestCost := -1
	for _, w := range value.BuddyRing() {
		for cur := w.Sites; cur != nil; cur = cur.next {
			s := cur.Site
			if !s.Match(typeMask, registerMask, frameIndex) {
				continue
			}
			cost := s.CopyCost(nil)
			if best == nil || cost < bestCost {
				best = s
				bestCost = cost
			}
		}
	}
	return best
}

// allocateSiteWithSize fabricates a fresh Site honoring the constraint triple when
// pickSite found nothing live to reuse (spec.md §4.2): a free register if
// the mask allows register operands, else a frame slot at the requested
// index, else nil.
func allocateSiteWithSize(ctx *Context, typeMask architecture.TypeMask, registerMask architecture.RegisterMask, frameIndex architecture.FrameIndex, size architecture.Size) Site {
	if typeMask.Has(architecture.RegisterOperand) && !registerMask.IsEmpty() {
		reg := ctx.Registers.Acquire(registerMask, ctx.Stack, ctx.Locals)
		return NewUnboundRegisterSite(registerMask).bindTo(reg)
	}
	if frameIndex != architecture.NoFrameIndex {
		idx := frameIndex
		if idx == architecture.AnyFrameIndex {
			idx = ctx.Frame.NewLocalIndex()
		}
		return NewFrameSite(idx, ctx.Arch.Stack(), size)
	}
	return nil
}

// allocateSite is the architecture.Size-less convenience used by Read
// implementations that don't know a concrete size at the call site
// (mirrors the single-word default in the source corpus; wide values go
// through allocateSiteWithSize via Read.Size explicitly in the driver).
func allocateSite(ctx *Context, typeMask architecture.TypeMask, registerMask architecture.RegisterMask, frameIndex architecture.FrameIndex) Site {
	return allocateSiteWithSize(ctx, typeMask, registerMask, frameIndex, architecture.Size8)
}

func (s *RegisterSite) bindTo(r *architecture.Register) *RegisterSite {
	s.Low = r
	return s
}

package codegen

import "go.uber.org/zap"

// DumpState logs a snapshot of the current Stack/Locals, gated by
// Context.Debug, used while developing front-ends against this package
// (spec.md §9's note that the source's diagnostic fprintf calls are
// scaffolding, not a contract — gated behind a flag here instead of
// unconditionally emitted).
func (ctx *Context) DumpState(tag string) {
	if !ctx.Debug {
		return
	}
	fields := []zap.Field{zap.String("tag", tag), zap.Int("logicalIp", ctx.CurrentLogicalIp)}
	for _, node := range Values(ctx.Stack) {
		fields = append(fields, zap.String("stack_"+node.Value.Name, siteSummary(node.Value.Source)))
	}
	for i, slot := range ctx.Locals.Slots {
		if slot.Value != nil {
			fields = append(fields, zap.Int("local_idx", i))
		}
	}
	ctx.Logger.Debug("driver state", fields...)
}

func siteSummary(s Site) string {
	if s == nil {
		return "<none>"
	}
	switch t := s.(type) {
	case *ConstantSite:
		return "constant"
	case *AddressSite:
		return "address"
	case *RegisterSite:
		if t.Low != nil {
			return "register:" + t.Low.Name
		}
		return "register:unbound"
	case *MemorySite:
		return "memory"
	default:
		return "unknown"
	}
}

// Validate walks every Value reachable from the current Stack/Locals and
// panics if one of them still holds Sites while no Value in its buddy ring
// has a valid Read. It does not check Sites against Read constraints, nor
// whether two Values claim the same register.
func (ctx *Context) Validate() {
	if !ctx.Debug {
		return
	}
	owners := map[*Value]bool{}
	check := func(v *Value) {
		if owners[v] {
			return
		}
		owners[v] = true
		if v.HasLiveSites() && !v.Live() {
			panic("Validate: Value has live Sites but no valid Read in its buddy ring")
		}
	}
	for _, node := range Values(ctx.Stack) {
		check(node.Value)
	}
	for _, slot := range ctx.Locals.Slots {
		if slot.Value != nil {
			check(slot.Value)
		}
	}
}

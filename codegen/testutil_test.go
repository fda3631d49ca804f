package codegen

import (
	"github.com/lcbwn/corda/architecture"
	"github.com/lcbwn/corda/asm/refarch"
	"github.com/lcbwn/corda/asm/refvm"
)

type noThunksTest struct{}

func (noThunksTest) GetThunk(op architecture.Operation, resultSize architecture.Size) architecture.Promise {
	panic("test: no thunk provider configured")
}

func newTestContext() *Context {
	ctx := NewContext(refarch.New(), refvm.New(), noThunksTest{}, nil)
	ctx.LogicalCode = make([]*LogicalInstruction, 4)
	return ctx
}

func testArchRegister(ctx *Context, index int) *architecture.Register {
	for _, r := range ctx.Arch.Registers().Data {
		if r.Index == index {
			return r
		}
	}
	panic("testArchRegister: no such register")
}

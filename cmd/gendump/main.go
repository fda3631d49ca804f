// Command gendump is a debug harness for the compiler core: it parses a
// line-oriented opcode script (SPEC_FULL.md §6.3), drives the Builder
// façade against the reference architecture/assembler, and dumps the
// resulting machine code and constant pool. It is scaffolding for humans
// inspecting the generator, not part of the compiler core.
//
// Grounded on the teacher's cmd/print-tree/main.go: a cobra root command
// wrapping a pipeline call, recovering a core panic into a diagnostic exit
// code instead of a bare stack trace (spec.md §7's carve-out for ambient
// CLI surfaces).
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lcbwn/corda/architecture"
	"github.com/lcbwn/corda/asm/refarch"
	"github.com/lcbwn/corda/asm/refvm"
	"github.com/lcbwn/corda/codegen"
)

func main() {
	root := &cobra.Command{
		Use:   "gendump [script]",
		Short: "Drive the code generator from a line-oriented opcode script and dump the result",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) (err error) {
	f, ferr := os.Open(args[0])
	if ferr != nil {
		return ferr
	}
	defer f.Close()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("gendump: generator aborted: %v", r)
		}
	}()

	ctx := codegen.NewContext(refarch.New(), refvm.New(), noThunks{}, logger)
	driver := codegen.NewDriver(ctx)

	values := map[string]*codegen.Value{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		interpretLine(driver, values, line)
	}
	if err := sc.Err(); err != nil {
		return err
	}

	size := driver.Compile()
	buf := make([]byte, size+driver.PoolSize())
	n := driver.WriteTo(buf)

	fmt.Printf("code+pool size: %d bytes\n", n)
	fmt.Printf("%x\n", buf[:n])
	return nil
}

// interpretLine tokenizes and dispatches one opcode-script line (grounded
// on the teacher's parser/lexer/raw_lexer.go token-splitting style,
// generalized to this debug format's space-separated tokens).
func interpretLine(d *codegen.Driver, values map[string]*codegen.Value, line string) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return
	}
	switch tokens[0] {
	case "start":
		ip, _ := strconv.Atoi(tokens[1])
		d.StartLogicalIp(ip)
	case "return":
		size, _ := strconv.Atoi(tokens[1])
		d.Return(architecture.Size(size), parseOperand(d, values, tokens[2:]))
	default:
		panic("gendump: unrecognized opcode-script line: " + line)
	}
}

// parseOperand handles the small "const N" / "add const A const B" operand
// grammar the opcode script uses for return's value expression (spec.md's
// worked scenarios only ever nest constants and one binary op deep). The
// "const" tokens inside an add are skipped, not checked.
func parseOperand(d *codegen.Driver, values map[string]*codegen.Value, tokens []string) *codegen.Value {
	switch tokens[0] {
	case "const":
		n, _ := strconv.ParseInt(tokens[1], 10, 64)
		return d.Constant(n)
	case "add":
		a, _ := strconv.ParseInt(tokens[2], 10, 64)
		b, _ := strconv.ParseInt(tokens[4], 10, 64)
		return d.Add(4, d.Constant(a), d.Constant(b))
	default:
		panic("gendump: unrecognized operand: " + strings.Join(tokens, " "))
	}
}

// noThunks is the Compiler client used by gendump: the reference
// architecture never reports a thunked operation, so GetThunk is
// unreachable in practice.
type noThunks struct{}

func (noThunks) GetThunk(op architecture.Operation, resultSize architecture.Size) architecture.Promise {
	panic("gendump: no thunk provider configured")
}

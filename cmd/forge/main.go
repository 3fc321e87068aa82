// Command forge runs a .fg script, either against the tree-walk Interpreter
// (the default) or the register-based bytecode backend under -vm, following
// the flag-driven shape of cmd/retro's own main.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/forge-lang/forge/forge"
	"github.com/forge-lang/forge/parser"
	"github.com/forge-lang/forge/vm"
)

var (
	useVM         bool
	dumpBytecode  bool
	compileOutput string
	debug         bool
)

func atExit(err error) {
	if err == nil {
		return
	}
	if debug {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "forge: %v\n", err)
	}
	os.Exit(1)
}

func main() {
	flag.BoolVar(&useVM, "vm", false, "run the script on the bytecode VM instead of the tree-walk interpreter")
	flag.BoolVar(&dumpBytecode, "dump-bytecode", false, "compile the script and print its disassembly instead of running it")
	flag.StringVar(&compileOutput, "o", "", "with -dump-bytecode, also write the compiled chunk to `filename` via vm.Save")
	flag.BoolVar(&debug, "debug", false, "print full error stacks on failure")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: forge [-vm] [-dump-bytecode] [-o filename] script.fg")
		os.Exit(2)
	}
	scriptPath := flag.Arg(0)

	src, err := os.ReadFile(scriptPath)
	if err != nil {
		atExit(errors.Wrap(err, "forge"))
	}

	if dumpBytecode {
		runDumpBytecode(string(src))
		return
	}

	prog, err := forge.Load(string(src))
	if err != nil {
		atExit(err)
	}
	for _, w := range prog.Warnings() {
		fmt.Fprintln(os.Stderr, w.String())
	}

	if useVM {
		atExit(prog.RunVM())
		return
	}
	atExit(prog.Run())
}

func runDumpBytecode(src string) {
	tree, err := parser.Parse(src)
	if err != nil {
		atExit(err)
	}
	chunk, err := vm.Compile(tree)
	if err != nil {
		atExit(errors.Wrap(err, "forge: compile"))
	}
	fmt.Print(vm.Disassemble(chunk))
	if compileOutput != "" {
		atExit(vm.Save(compileOutput, chunk))
	}
}

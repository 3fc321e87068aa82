// Package forge composes the lexer, parser, checker and interpreter into
// the single entry point a host embeds, the way lang/retro/retro.go
// composed ngaro's assembler and VM behind one Load/Run surface.
package forge

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/forge-lang/forge/ast"
	"github.com/forge-lang/forge/check"
	"github.com/forge-lang/forge/interp"
	"github.com/forge-lang/forge/parser"
	"github.com/forge-lang/forge/vm"
)

// Option configures a Program at construction time.
type Option func(*Program) error

// Stdout sets the destination `say` writes to.
func Stdout(w io.Writer) Option {
	return func(p *Program) error { p.stdout = w; return nil }
}

// Stderr sets the destination `yell`/`whisper` write to.
func Stderr(w io.Writer) Option {
	return func(p *Program) error { p.stderr = w; return nil }
}

// WithNative registers a host native function, overriding any built-in
// of the same name.
func WithNative(name string, fn interp.NativeFunc) Option {
	return func(p *Program) error { p.natives = append(p.natives, namedNative{name, fn}); return nil }
}

type namedNative struct {
	name string
	fn   interp.NativeFunc
}

// Program is a parsed, checked Forge source file ready to run.
type Program struct {
	ast      *ast.Program
	warnings []check.Warning
	stdout   io.Writer
	stderr   io.Writer
	natives  []namedNative
}

// Load lexes, parses and checks src, returning a Program ready for Run.
// A non-nil error is always a lex or parse failure; type-checker findings
// never fail Load and are retrievable via Warnings.
func Load(src string, opts ...Option) (*Program, error) {
	tree, err := parser.Parse(src)
	if err != nil {
		return nil, errors.Wrap(err, "forge.Load")
	}
	p := &Program{
		ast:    tree,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	p.warnings = check.Check(tree)
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, errors.Wrap(err, "forge.Load")
		}
	}
	return p, nil
}

// Warnings returns the type checker's non-fatal findings for this Program.
func (p *Program) Warnings() []check.Warning { return p.warnings }

// Run executes the Program against a fresh tree-walk Interpreter. An
// `@server(...)` decorator is not acted on here; ServerDecorator runs the
// program and returns it.
func (p *Program) Run() error {
	it, err := p.newInterpreter()
	if err != nil {
		return errors.Wrap(err, "forge.Run")
	}
	return it.Run(p.ast)
}

// ServerDecorator runs the Program and, if it declares an
// `@server(...)`-decorated function, returns that decorator so a hosting
// application can hand it off to its own HTTP runtime. The core never
// implements request handling itself (see spec's external-interfaces
// boundary).
func (p *Program) ServerDecorator() (*ast.Decorator, error) {
	it, err := p.newInterpreter()
	if err != nil {
		return nil, errors.Wrap(err, "forge.ServerDecorator")
	}
	if err := it.Run(p.ast); err != nil {
		return nil, err
	}
	return it.ServerDecorator(), nil
}

// RunVM compiles the Program to a bytecode Chunk and executes it on the
// register-based VM backend instead of the tree-walk Interpreter. Host
// natives registered via WithNative are not carried over: interp.NativeFunc
// and vm.NativeFunc close over different Value representations, so only
// stdout/stderr are wired through. Programs using constructs the compiler
// doesn't yet lower (see vm.Compile) fail to compile here even though Run
// would have executed them.
func (p *Program) RunVM() error {
	chunk, err := vm.Compile(p.ast)
	if err != nil {
		return errors.Wrap(err, "forge.RunVM: compile")
	}
	inst, err := vm.New(vm.Stdout(p.stdout), vm.Stderr(p.stderr))
	if err != nil {
		return errors.Wrap(err, "forge.RunVM")
	}
	if _, err := inst.Run(chunk); err != nil {
		return errors.Wrap(err, "forge.RunVM")
	}
	return inst.RunSpawned()
}

func (p *Program) newInterpreter() (*interp.Interpreter, error) {
	opts := []interp.Option{interp.Stdout(p.stdout), interp.Stderr(p.stderr)}
	for _, n := range p.natives {
		opts = append(opts, interp.WithNative(n.name, n.fn))
	}
	return interp.New(opts...)
}

// Run is a one-shot convenience wrapper: Load(src, opts...) then Run().
func Run(src string, opts ...Option) error {
	p, err := Load(src, opts...)
	if err != nil {
		return err
	}
	return p.Run()
}

package vm

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/forge-lang/forge/internal/hostio"
)

const (
	maxRegistersPerFrame = 256
	maxFrames            = 256
)

// Option configures an Instance at construction time, the same
// functional-options shape used by interp.New.
type Option func(*Instance) error

// Stdout sets the destination the "say" native writes to.
func Stdout(w io.Writer) Option {
	return func(i *Instance) error { i.stdoutW = hostio.NewErrWriter(w); return nil }
}

// Stderr sets the destination the "yell"/"whisper" natives write to.
func Stderr(w io.Writer) Option {
	return func(i *Instance) error { i.stderrW = hostio.NewErrWriter(w); return nil }
}

// WithNative registers a single native function under name, overriding
// any built-in of the same name.
func WithNative(name string, fn NativeFunc) Option {
	return func(i *Instance) error { i.natives[name] = fn; return nil }
}

// frame is one active call: its callee's heap reference, instruction
// pointer, and register window base into Instance.regs.
type frame struct {
	closure   *closureData
	calleeRef int // heap slot of the closure Value that created this frame
	ip        int
	base      int
}

// Instance is one VM run: its heap, global table, frame stack and flat
// register file. It executes one Chunk at a time via Run.
type Instance struct {
	heap    *Heap
	globals map[string]Value
	natives map[string]NativeFunc
	regs    []Value
	frames  []frame
	stdoutW *hostio.ErrWriter
	stderrW *hostio.ErrWriter
	spawned []*closureData // the green-thread scaffold's run queue, see RunSpawned
}

// New builds an Instance with a fresh heap and global table, applies opts,
// then registers the built-in natives against the final stdout/stderr so a
// Stdout/Stderr option always takes effect.
func New(opts ...Option) (*Instance, error) {
	i := &Instance{
		heap:    newHeap(),
		globals: map[string]Value{},
		natives: map[string]NativeFunc{},
		regs:    make([]Value, maxRegistersPerFrame*maxFrames),
		stdoutW: hostio.NewErrWriter(os.Stdout),
		stderrW: hostio.NewErrWriter(os.Stderr),
	}
	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, errors.Wrap(err, "applying option")
		}
	}
	registerBuiltinNatives(i)
	for name, fn := range i.natives {
		if _, ok := i.globals[name]; !ok {
			i.defineNative(name, fn)
		}
	}
	return i, nil
}

// roots collects every Value currently reachable from VM state: every
// active frame's register window, the globals table, every active
// frame's callee closure, and this cycle's pending spawn queue.
func (i *Instance) roots() []Value {
	var rs []Value
	for _, f := range i.frames {
		hi := f.base + maxRegistersPerFrame
		if hi > len(i.regs) {
			hi = len(i.regs)
		}
		rs = append(rs, i.regs[f.base:hi]...)
		if f.closure != nil {
			rs = append(rs, vHeap(f.calleeRef))
		}
	}
	for _, v := range i.globals {
		rs = append(rs, v)
	}
	for _, cd := range i.spawned {
		rs = append(rs, cd.upvalues...)
	}
	return rs
}

// maybeCollect runs a GC cycle if allocation pressure has crossed the
// heap's threshold since the last one.
func (i *Instance) maybeCollect() {
	if i.heap.shouldCollect() {
		i.heap.collect(i.roots())
	}
}

// Globals exposes the top-level bindings left by the most recent Run, the
// way a host collaborator inspects a finished program's state (e.g. to
// recognize an `@server(...)`-decorated entry point).
func (i *Instance) Globals() map[string]Value { return i.globals }

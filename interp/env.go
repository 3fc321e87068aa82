package interp

// Binding is one name's storage cell: a value plus its mutability flag. It
// is always addressed through a pointer so a closure snapshot that shares a
// Scope observes later mutation of the same cell.
type Binding struct {
	Value   Value
	Mutable bool
}

// Scope is one level of the Environment's stack: a flat map of names to
// cells.
type Scope struct {
	vars map[string]*Binding
}

func newScope() *Scope { return &Scope{vars: map[string]*Binding{}} }

// Environment is the interpreter's scope stack. Snapshotting an Environment
// copies the slice of Scope pointers, not the scopes themselves, which is
// what lets a closure's captured bindings remain live cells rather than a
// frozen copy (the make_counter pattern).
type Environment struct {
	scopes []*Scope
}

// NewEnvironment returns a fresh Environment with one empty root scope.
func NewEnvironment() *Environment {
	return &Environment{scopes: []*Scope{newScope()}}
}

// Snapshot copies the current scope chain by reference, for capture by a
// closure or function literal.
func (e *Environment) Snapshot() *Environment {
	cp := make([]*Scope, len(e.scopes))
	copy(cp, e.scopes)
	return &Environment{scopes: cp}
}

// PushScope brackets the entry to a block or call.
func (e *Environment) PushScope() {
	e.scopes = append(e.scopes, newScope())
}

// PopScope brackets the exit from a block or call; pairing with PushScope
// must be exact.
func (e *Environment) PopScope() {
	e.scopes = e.scopes[:len(e.scopes)-1]
}

// Define always writes to the topmost scope; shadowing an outer name is
// permitted.
func (e *Environment) Define(name string, v Value, mutable bool) {
	top := e.scopes[len(e.scopes)-1]
	top.vars[name] = &Binding{Value: v, Mutable: mutable}
}

// Get performs a top-down search across the scope stack.
func (e *Environment) Get(name string) (Value, bool) {
	for i := len(e.scopes) - 1; i >= 0; i-- {
		if b, ok := e.scopes[i].vars[name]; ok {
			return b.Value, true
		}
	}
	return Value{}, false
}

// SetResult reports the outcome of Environment.Set.
type SetResult int

const (
	SetOK SetResult = iota
	SetImmutable
	SetUndefined
)

// Set finds the defining scope for name and overwrites its cell, rejecting
// the write if the binding is immutable or the name is unknown.
func (e *Environment) Set(name string, v Value) SetResult {
	for i := len(e.scopes) - 1; i >= 0; i-- {
		if b, ok := e.scopes[i].vars[name]; ok {
			if !b.Mutable {
				return SetImmutable
			}
			b.Value = v
			return SetOK
		}
	}
	return SetUndefined
}

// Names collects every defined binding name across the whole scope stack,
// used only to compute a "did you mean" suggestion on a lookup miss.
func (e *Environment) Names() []string {
	var names []string
	for _, s := range e.scopes {
		for n := range s.vars {
			names = append(names, n)
		}
	}
	return names
}

package interp

// sigKind tags the control signal a statement's evaluation yields. Loop
// and function-return control flow propagate as ordinary returned values
// rather than host-level panics or exceptions.
type sigKind int

const (
	sigNone sigKind = iota
	sigReturn
	sigBreak
	sigContinue
)

type signal struct {
	kind  sigKind
	value Value
}

var none = signal{kind: sigNone}

// Package hostio provides small io.Writer adapters shared by the script
// output sinks (say/yell/whisper) and the bytecode VM's host-facing I/O.
package hostio

import (
	"io"

	"github.com/pkg/errors"
)

// ErrWriter wraps an io.Writer and latches the first write error, so a
// caller emitting many small writes (one per `say`) can check it once at
// the end instead of after every call.
type ErrWriter struct {
	w   io.Writer
	Err error
}

// NewErrWriter returns a ready-to-use ErrWriter over w.
func NewErrWriter(w io.Writer) *ErrWriter {
	return &ErrWriter{w: w}
}

func (w *ErrWriter) Write(p []byte) (n int, err error) {
	if w.Err != nil {
		return 0, w.Err
	}
	n, err = w.w.Write(p)
	if err != nil {
		w.Err = errors.Wrap(err, "hostio: write failed")
	}
	return n, w.Err
}

// WriteLine writes s followed by a newline, recording any error on w
// rather than returning it, matching the fire-and-forget shape of the
// `say`/`yell`/`whisper` output statements.
func WriteLine(w *ErrWriter, s string) {
	io.WriteString(w, s)
	io.WriteString(w, "\n")
}

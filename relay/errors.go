package relay

import (
	"errors"
	"fmt"
)

// ErrHandshakeTimeout is returned when the model link never reaches ready
// state. A half-open session without a model backing is torn down whole.
var ErrHandshakeTimeout = errors.New("model handshake timeout")

// LinkError is a socket-level failure on one of the three links. It escalates
// to session teardown; it never crashes the process.
type LinkError struct {
	Link string // "call", "model" or "observer"
	Err  error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("%s link: %v", e.Link, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

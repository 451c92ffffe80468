package gpubatch

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable wraps every failure that leaves the batch unusable.
	ErrUnavailable = errors.New("gpubatch: hardware path unavailable")
	// ErrBadState is returned for an operation the current state does not
	// allow.
	ErrBadState = errors.New("gpubatch: invalid state transition")
)

// State is the lifecycle position of a Batch.
//
//	Uninitialized → Negotiated → ContextReady → [BatchOpen ⇄ BatchFlushed]* → Presented
//
// Presented accepts the next Begin. Any failure during Init moves to
// Unavailable, which is terminal.
type State int

const (
	Uninitialized State = iota
	Negotiated
	ContextReady
	BatchOpen
	BatchFlushed
	Presented
	Unavailable
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Negotiated:
		return "negotiated"
	case ContextReady:
		return "context-ready"
	case BatchOpen:
		return "batch-open"
	case BatchFlushed:
		return "batch-flushed"
	case Presented:
		return "presented"
	case Unavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// check returns nil when the current state is one of allowed.
func (b *Batch) check(op string, allowed ...State) error {
	for _, s := range allowed {
		if b.state == s {
			return nil
		}
	}
	if b.state == Unavailable {
		return fmt.Errorf("gpubatch: %s: %w", op, ErrUnavailable)
	}
	return fmt.Errorf("gpubatch: %s in state %s: %w", op, b.state, ErrBadState)
}

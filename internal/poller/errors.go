package poller

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyActive is returned by [Controller.Start] when idling is running.
	ErrAlreadyActive = errors.New("dropped item collection is already active")

	// ErrNotActive is returned by [Controller.Stop] when idling is not running.
	ErrNotActive = errors.New("dropped item collection is not active")

	// ErrClosed is returned by [Controller.Start] after [Controller.Close].
	ErrClosed = errors.New("controller is closed")
)

// PreconditionError reports that the session is not in a state that permits
// idling.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("unable to start collecting dropped items: %s", e.Reason)
}

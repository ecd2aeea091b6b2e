package kanban

import "errors"

// Precondition errors, reported synchronously before any optimistic mutation
// or remote call.
var (
	ErrUnknownLead      = errors.New("unknown lead")
	ErrUnknownStage     = errors.New("unknown stage")
	ErrLastStage        = errors.New("cannot remove the last stage")
	ErrStageSetMismatch = errors.New("reorder is not a permutation of the current stages")
)

// RemoteError wraps a failed remote store call. By the time it is returned
// the working copy has already been restored or resynced.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func remoteError(op string, err error) *RemoteError {
	return &RemoteError{Op: op, Err: err}
}

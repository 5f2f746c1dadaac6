package install

import (
	"fmt"

	"github.com/pkg/errors"
)

// Failure kinds. Match them with errors.Is.
var (
	ErrInvalidVersion = errors.New("invalid version format")
	ErrTarget         = errors.New("cannot use target directory")
	ErrConfirm        = errors.New("failed to confirm overwrite")
	ErrDownload       = errors.New("download failed")
	ErrUnsafeArchive  = errors.New("archive failed safety validation")
	ErrExtraction     = errors.New("extraction failed")
	ErrRegistry       = errors.New("failed to update registry")
)

// Error describes why an install was aborted and in which state.
type Error struct {
	Kind  error
	State State
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap exposes both the kind and the underlying cause to errors.Is and
// errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(kind error, state State, err error) *Error {
	return &Error{Kind: kind, State: state, Err: err}
}

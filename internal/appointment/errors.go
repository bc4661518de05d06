package appointment

import (
	"errors"
	"fmt"
	"strings"
)

// Kind sentinels. Every error returned by this package either wraps one of
// these or is an internal failure.
var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")
	ErrFailedPrecondition = errors.New("failed precondition")
	ErrConflict           = errors.New("conflict")
)

var (
	ErrNoCaller                = fmt.Errorf("%w: caller identity is required", ErrUnauthenticated)
	ErrAppointmentNotFound     = fmt.Errorf("appointment %w", ErrNotFound)
	ErrSlotUnavailable         = fmt.Errorf("%w: requested time is not available", ErrFailedPrecondition)
	ErrInvalidStatusTransition = fmt.Errorf("%w: invalid status transition", ErrFailedPrecondition)
	ErrAppointmentClosed       = fmt.Errorf("%w: appointment is already cancelled or completed", ErrFailedPrecondition)
	ErrStaleAppointment        = fmt.Errorf("%w: appointment was modified concurrently, reload and retry", ErrConflict)
)

type Kind string

const (
	KindUnauthenticated    Kind = "unauthenticated"
	KindPermissionDenied   Kind = "permission_denied"
	KindInvalidArgument    Kind = "invalid_argument"
	KindNotFound           Kind = "not_found"
	KindFailedPrecondition Kind = "failed_precondition"
	KindConflict           Kind = "conflict"
	KindInternal           Kind = "internal"
)

var kinds = []struct {
	sentinel error
	kind     Kind
}{
	{ErrUnauthenticated, KindUnauthenticated},
	{ErrPermissionDenied, KindPermissionDenied},
	{ErrInvalidArgument, KindInvalidArgument},
	{ErrNotFound, KindNotFound},
	{ErrFailedPrecondition, KindFailedPrecondition},
	{ErrConflict, KindConflict},
}

// KindOf classifies err. Storage and other unclassified failures are internal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindInternal
}

// ValidationError collects every problem found in one input.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidArgument
}

func (e *ValidationError) add(format string, args ...any) {
	e.Fields = append(e.Fields, fmt.Sprintf(format, args...))
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func permissionDenied(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermissionDenied, fmt.Sprintf(format, args...))
}

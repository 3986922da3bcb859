package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransient            = errors.New("transient failure")
	ErrPartial              = errors.New("partial failure")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrValidation           = errors.New("validation error")
	ErrConfiguration        = errors.New("configuration error")
	ErrNotFound             = errors.New("not found")
	ErrStageLocked          = errors.New("stage locked")
	ErrTerminated           = errors.New("operation already terminated")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrSessionClosed        = errors.New("session closed")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above. Authentication failures keep their marker no
// matter which marker the caller asked for, so the forced-logout path always
// sees them.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		if errors.Is(err, ErrUnauthorized) && marker != ErrUnauthorized {
			return fmt.Errorf("%w: %s: %w", ErrUnauthorized, detail, err)
		}
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Notice classifies an error into the operator-facing notice kind.
func Notice(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "auth"
	case errors.Is(err, ErrPartial):
		return "partial"
	case errors.Is(err, ErrStageLocked), errors.Is(err, ErrTerminated),
		errors.Is(err, ErrConfirmationRequired), errors.Is(err, ErrValidation):
		return "rejected"
	default:
		return "transient"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

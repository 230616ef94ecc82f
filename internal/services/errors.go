package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes state context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, state, operation, message string, err error) error {
	detail := buildDetail(state, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorHint maps a wrapped failure to the operator hint logged alongside it.
func ErrorHint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrExternalTool):
		return "check that aria2c is installed and runnable (galleria check)"
	case errors.Is(err, ErrTimeout):
		return "the download engine did not respond in time; retry or raise engine timeouts"
	case errors.Is(err, ErrConfiguration):
		return "review the galleria config file (galleria config show)"
	case errors.Is(err, ErrValidation):
		return "verify the gallery URL is supported and reachable"
	case errors.Is(err, ErrNotFound):
		return "the queue was changed externally; inspect it with galleria queue list"
	default:
		return "rerun galleria to resume the current gallery"
	}
}

func buildDetail(state, operation, message string) string {
	parts := make([]string, 0, 3)
	if state = strings.TrimSpace(state); state != "" {
		parts = append(parts, state)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "orchestrator failure"
	}
	return strings.Join(parts, ": ")
}

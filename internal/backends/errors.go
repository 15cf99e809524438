package backends

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrModelNotFound means a model identifier could not be resolved or loaded.
	ErrModelNotFound = errors.New("model not found")
	// ErrIncompatibleArchitectures means the merge strategy could not reconcile the models.
	ErrIncompatibleArchitectures = errors.New("incompatible model architectures")
	// ErrIO covers failures reading or writing weights.
	ErrIO = errors.New("i/o failure")
	// ErrMetric means the evaluation produced no usable metrics.
	ErrMetric = errors.New("metric computation failure")
	// ErrNoModels is returned for a merge request without models.
	ErrNoModels = errors.New("merge request has no models")
	// ErrBaseIndexOutOfRange is returned when the base index does not address a model.
	ErrBaseIndexOutOfRange = errors.New("base index out of range")
	// ErrSignsLength is returned when the sign vector does not match the model count.
	ErrSignsLength = errors.New("sign vector length mismatch")
)

// Transport error codes shared by the worker and remote protocols.
const (
	CodeModelNotFound             = "model_not_found"
	CodeIncompatibleArchitectures = "incompatible_architectures"
	CodeIO                        = "io"
	CodeMetric                    = "metric"
)

// RemoteError is an error reported by the backend runtime.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap maps the transport code onto the sentinel taxonomy so callers can use errors.Is.
func (e *RemoteError) Unwrap() error {
	switch strings.ToLower(strings.TrimSpace(e.Code)) {
	case CodeModelNotFound:
		return ErrModelNotFound
	case CodeIncompatibleArchitectures:
		return ErrIncompatibleArchitectures
	case CodeIO:
		return ErrIO
	case CodeMetric:
		return ErrMetric
	default:
		return nil
	}
}

// ErrorCode returns the transport code for err, or "" when err carries none.
func ErrorCode(err error) string {
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Code != "" {
		return strings.ToLower(strings.TrimSpace(remote.Code))
	}
	switch {
	case errors.Is(err, ErrModelNotFound):
		return CodeModelNotFound
	case errors.Is(err, ErrIncompatibleArchitectures):
		return CodeIncompatibleArchitectures
	case errors.Is(err, ErrIO):
		return CodeIO
	case errors.Is(err, ErrMetric):
		return CodeMetric
	default:
		return ""
	}
}

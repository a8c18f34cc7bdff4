package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTaskCreation     = errors.New("task creation failed")
	ErrProvider         = errors.New("provider error")
	ErrPollingTransient = errors.New("polling transient error")
	ErrPollingTimeout   = errors.New("polling timeout")
	ErrValidation       = errors.New("validation error")
	ErrPluginValidation = errors.New("plugin validation error")
	ErrUnsupported      = errors.New("unsupported capability")
	ErrConfiguration    = errors.New("configuration error")
	ErrCancelled        = errors.New("cancelled")
	ErrGatewayTransport = errors.New("gateway transport error")
	ErrNotFound         = errors.New("not found")
)

// Error carries the component and operation a failure originated from along
// with the marker used for classification.
type Error struct {
	Marker    error
	Component string
	Operation string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	detail := buildDetail(e.Component, e.Operation, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%v: %s: %v", e.Marker, detail, e.Cause)
	}
	return fmt.Sprintf("%v: %s", e.Marker, detail)
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Marker != nil {
		errs = append(errs, e.Marker)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Wrap builds an error that includes component context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	if marker == nil {
		marker = ErrProvider
	}
	return &Error{
		Marker:    marker,
		Component: strings.TrimSpace(component),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// Detail summarizes a wrapped error for logging and job reporting.
type Detail struct {
	Kind      string
	Component string
	Operation string
	Message   string
	Cause     error
}

// Details extracts the structured fields from err. Errors that were not built
// with Wrap report their text as the message.
func Details(err error) Detail {
	if err == nil {
		return Detail{}
	}
	var wrapped *Error
	if errors.As(err, &wrapped) {
		return Detail{
			Kind:      markerKind(wrapped.Marker),
			Component: wrapped.Component,
			Operation: wrapped.Operation,
			Message:   wrapped.Message,
			Cause:     wrapped.Cause,
		}
	}
	return Detail{Kind: markerKind(err), Message: strings.TrimSpace(err.Error())}
}

// FailureMessage returns the human-readable text stored on a failed job.
func FailureMessage(err error) string {
	if err == nil {
		return "generation failed without error detail"
	}
	details := Details(err)
	message := details.Message
	if message == "" {
		message = strings.TrimSpace(err.Error())
	}
	if details.Cause != nil && !errors.Is(err, ErrTaskCreation) && !errors.Is(err, ErrCancelled) {
		cause := FailureMessage(details.Cause)
		if cause != "" && !strings.Contains(message, cause) {
			message = message + ": " + cause
		}
	}
	return message
}

func markerKind(err error) string {
	switch {
	case errors.Is(err, ErrTaskCreation):
		return "task_creation"
	case errors.Is(err, ErrPollingTimeout):
		return "polling_timeout"
	case errors.Is(err, ErrPollingTransient):
		return "polling_transient"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrPluginValidation):
		return "plugin_validation"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrGatewayTransport):
		return "transport"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrProvider):
		return "provider"
	default:
		return "unknown"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
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

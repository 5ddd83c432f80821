package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers used to classify failures. Stage handlers and collaborators
// wrap their errors with exactly one marker; everything downstream (retry
// policy, status responses, logs) keys off the marker rather than error text.
var (
	ErrValidation    = errors.New("validation error")
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrNotFound      = errors.New("not found")
	ErrPermission    = errors.New("permission denied")
	ErrProvider      = errors.New("provider error")
	ErrTimeout       = errors.New("timeout")
	ErrInternal      = errors.New("internal error")
)

// Error codes surfaced in status responses.
const (
	CodeValidation    = "VALIDATION"
	CodeQuotaExceeded = "QUOTA_EXCEEDED"
	CodeNotFound      = "NOT_FOUND"
	CodePermission    = "PERMISSION"
	CodeProvider      = "PROVIDER"
	CodeTimeout       = "TIMEOUT"
	CodeInternal      = "INTERNAL"
)

// Classified is the structured error shape exposed by status responses.
// Raw internal error text never crosses this boundary unclassified.
type Classified struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrInternal
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify normalizes any failure into the structured {code, message,
// retryable} object. Unrecognized errors are treated as internal.
func Classify(err error) Classified {
	if err == nil {
		return Classified{}
	}
	message := strings.TrimSpace(err.Error())
	switch {
	case errors.Is(err, ErrValidation):
		return Classified{Code: CodeValidation, Message: message, Retryable: false}
	case errors.Is(err, ErrQuotaExceeded):
		return Classified{Code: CodeQuotaExceeded, Message: message, Retryable: false}
	case errors.Is(err, ErrNotFound):
		return Classified{Code: CodeNotFound, Message: message, Retryable: false}
	case errors.Is(err, ErrPermission):
		return Classified{Code: CodePermission, Message: message, Retryable: false}
	case errors.Is(err, ErrProvider):
		return Classified{Code: CodeProvider, Message: message, Retryable: true}
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return Classified{Code: CodeTimeout, Message: message, Retryable: true}
	default:
		return Classified{Code: CodeInternal, Message: message, Retryable: true}
	}
}

// Retryable reports whether a failure should be resubmitted to the queue.
func Retryable(err error) bool {
	return Classify(err).Retryable
}

// AttemptLimit returns the maximum number of attempts a failure classification
// allows. Provider and timeout failures use the configured cap; internal
// failures are retried once; everything non-retryable fails on first attempt.
func AttemptLimit(err error, configured int) int {
	if configured <= 0 {
		configured = 1
	}
	c := Classify(err)
	switch {
	case !c.Retryable:
		return 1
	case c.Code == CodeInternal:
		if configured < 2 {
			return configured
		}
		return 2
	default:
		return configured
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

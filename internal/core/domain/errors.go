package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrExtraction       = errors.New("extraction error")
	ErrInsufficientText = errors.New("insufficient text")
	ErrGeneration       = errors.New("generation error")
	ErrResource         = errors.New("resource error")
)

// Client-facing messages for request-level failures.
const (
	MsgNoFile           = "No PDF file provided"
	MsgEmptyFilename    = "Empty filename"
	MsgEmptyFile        = "Empty PDF file"
	MsgFileTooLarge     = "PDF file too large"
	MsgInsufficientText = "Could not extract sufficient text from PDF"
)

// Error is the failure half of a summarize result: a kind from the sentinel
// set above plus the message that is safe to show to the client.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Fail builds a tagged failure. An empty message falls back to the cause.
func Fail(kind error, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ClientMessage returns the message a response body should carry for err.
func ClientMessage(err error) string {
	if err == nil {
		return ""
	}
	var failure *Error
	if errors.As(err, &failure) && failure.Message != "" && failure.Err == nil {
		return failure.Message
	}
	return err.Error()
}

// KindName is a stable label for metrics and logs.
func KindName(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsKind(err, ErrValidation):
		return "validation"
	case IsKind(err, ErrInsufficientText):
		return "insufficient_text"
	case IsKind(err, ErrExtraction):
		return "extraction"
	case IsKind(err, ErrGeneration):
		return "generation"
	case IsKind(err, ErrResource):
		return "resource"
	default:
		return "internal"
	}
}

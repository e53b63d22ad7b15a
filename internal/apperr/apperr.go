// Package apperr defines the error taxonomy surfaced to users of the
// diagnosis service.
package apperr

import (
	"errors"
	"net/http"
	"strings"
)

// Kind classifies an error for reporting decisions.
type Kind int

const (
	KindUnknown Kind = iota

	// KindModelUnavailable: artifact missing, corrupt, incompatible or unfetchable.
	KindModelUnavailable

	// KindInvalidImage: the upload could not be decoded or is empty.
	KindInvalidImage

	// KindInference: shape or runtime mismatch during the forward pass.
	KindInference
)

// String returns the kind name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindModelUnavailable:
		return "model_unavailable"
	case KindInvalidImage:
		return "invalid_image"
	case KindInference:
		return "inference_error"
	default:
		return "unknown"
	}
}

// Error is the error type returned across package boundaries.
type Error struct {
	Kind Kind

	// Message is safe to show to the requester.
	Message string

	// Inner is the underlying cause.
	Inner error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrModelUnavailable = &Error{Kind: KindModelUnavailable}
	ErrInvalidImage     = &Error{Kind: KindInvalidImage}
	ErrInference        = &Error{Kind: KindInference}
)

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Inner != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Inner.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Inner
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Inner == nil && t.Kind == e.Kind
}

// ModelUnavailable wraps err as a model availability failure.
func ModelUnavailable(msg string, err error) *Error {
	return &Error{Kind: KindModelUnavailable, Message: msg, Inner: err}
}

// InvalidImage wraps err as a bad upload.
func InvalidImage(msg string, err error) *Error {
	return &Error{Kind: KindInvalidImage, Message: msg, Inner: err}
}

// Inference wraps err as a forward pass failure.
func Inference(msg string, err error) *Error {
	return &Error{Kind: KindInference, Message: msg, Inner: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HTTPStatus maps err to the status code returned by the HTTP API.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidImage:
		return http.StatusBadRequest
	case KindInference:
		return http.StatusUnprocessableEntity
	case KindModelUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage returns the text shown to the requester. Causes stay in logs.
func UserMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "Something went wrong while analysing the image."
	}
	if e.Message != "" {
		return e.Message
	}
	switch e.Kind {
	case KindModelUnavailable:
		return "The model is not available right now."
	case KindInvalidImage:
		return "The uploaded file is not a valid image."
	case KindInference:
		return "The model could not process this input."
	default:
		return "Something went wrong while analysing the image."
	}
}

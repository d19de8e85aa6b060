package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable, caller-visible category of a failure.
type ErrorKind string

const (
	KindInvalidInput      ErrorKind = "InvalidInput"
	KindAuthRequired      ErrorKind = "AuthRequired"
	KindNotFound          ErrorKind = "NotFound"
	KindRateLimited       ErrorKind = "RateLimited"
	KindUnsupportedFormat ErrorKind = "UnsupportedFormat"
	KindTimeout           ErrorKind = "Timeout"
	KindStorageFailure    ErrorKind = "StorageFailure"
	KindExtractionFailure ErrorKind = "ExtractionFailure"
	KindTooLarge          ErrorKind = "TooLarge"
)

// Error is a tagged failure. Message is safe to show to callers; Err keeps
// the underlying detail for logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error includes the cause when there is one.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Err }

// ErrorKind reports the tag.
func (e *Error) ErrorKind() ErrorKind { return e.Kind }

type kinded interface {
	ErrorKind() ErrorKind
}

// KindOf returns the kind of the first tagged error in err's chain, or
// KindExtractionFailure for untagged errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var k kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return KindExtractionFailure
}

type userMessager interface {
	UserMessage() string
}

// MessageOf returns the caller-safe message of err.
func MessageOf(err error) string {
	var m userMessager
	if errors.As(err, &m) {
		return m.UserMessage()
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "An unexpected technical error occurred during processing."
}

// NewError builds a tagged error.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// InvalidInput tags a malformed request.
func InvalidInput(message string, err error) *Error {
	return NewError(KindInvalidInput, message, err)
}

// AuthRequired tags content that needs a login.
func AuthRequired(message string, err error) *Error {
	return NewError(KindAuthRequired, message, err)
}

// NotFound tags missing content or artifacts.
func NotFound(message string, err error) *Error {
	return NewError(KindNotFound, message, err)
}

// RateLimited tags a rejected request, ours or upstream.
func RateLimited(message string, err error) *Error {
	return NewError(KindRateLimited, message, err)
}

// UnsupportedFormat tags a URL or format the engine cannot serve.
func UnsupportedFormat(message string, err error) *Error {
	return NewError(KindUnsupportedFormat, message, err)
}

// Timeout tags an operation that ran out of time.
func Timeout(message string, err error) *Error {
	return NewError(KindTimeout, message, err)
}

// StorageFailure tags a local or remote storage error.
func StorageFailure(message string, err error) *Error {
	return NewError(KindStorageFailure, message, err)
}

// ExtractionFailure tags any other engine failure.
func ExtractionFailure(message string, err error) *Error {
	return NewError(KindExtractionFailure, message, err)
}

// TooLarge tags output over the size limit.
func TooLarge(message string, err error) *Error {
	return NewError(KindTooLarge, message, err)
}

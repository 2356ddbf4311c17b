// Package apperr defines the typed domain errors shared by services and the
// HTTP boundary. Every domain-rule violation carries a machine-readable code,
// a human message, and the offending field name.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the class of a domain error. The HTTP boundary derives the
// response status from it.
type Code string

const (
	CodeBadRequest              Code = "bad_request"
	CodeUnauthorized            Code = "unauthorized"
	CodeForbidden               Code = "forbidden"
	CodeNotFound                Code = "not_found"
	CodeAlreadyConfirmed        Code = "already_confirmed"
	CodeConfirmationCodeInvalid Code = "confirmation_code_invalid"
	CodeTooManyRequests         Code = "too_many_requests"
	CodeInternal                Code = "internal"
)

// Error is a typed domain error. Services return it for every rule violation;
// the boundary translates it into the uniform error envelope.
type Error struct {
	Code    Code
	Message string
	Field   string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (field %s)", e.Code, e.Message, e.Field)
}

// New returns an Error with the given code, message, and field.
func New(code Code, message, field string) *Error {
	return &Error{Code: code, Message: message, Field: field}
}

// BadRequest returns a bad-request Error for the given field.
func BadRequest(message, field string) *Error {
	return New(CodeBadRequest, message, field)
}

// Unauthorized returns an unauthorized Error for the given field.
func Unauthorized(message, field string) *Error {
	return New(CodeUnauthorized, message, field)
}

// Forbidden returns a forbidden Error for the given field.
func Forbidden(message, field string) *Error {
	return New(CodeForbidden, message, field)
}

// NotFound returns a not-found Error for the given field.
func NotFound(message, field string) *Error {
	return New(CodeNotFound, message, field)
}

// AlreadyConfirmed returns an already-confirmed Error for the given field.
func AlreadyConfirmed(message, field string) *Error {
	return New(CodeAlreadyConfirmed, message, field)
}

// ConfirmationCodeInvalid returns a confirmation-code-invalid Error for the given field.
func ConfirmationCodeInvalid(message, field string) *Error {
	return New(CodeConfirmationCodeInvalid, message, field)
}

// TooManyRequests returns a rate-limit Error.
func TooManyRequests(message string) *Error {
	return New(CodeTooManyRequests, message, "")
}

// Internal returns an internal Error for the given field. Used for fatal
// configuration problems surfaced at request time; these should normally be
// caught at startup.
func Internal(message, field string) *Error {
	return New(CodeInternal, message, field)
}

// As unwraps err into an *Error if possible.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus maps err to the HTTP status the boundary should respond with.
// Unknown errors map to 500.
func HTTPStatus(err error) int {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case CodeBadRequest, CodeAlreadyConfirmed, CodeConfirmationCodeInvalid:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

package services

import "errors"

// Kind classifies a domain error so the HTTP layer can map it to a status
// code without inspecting messages.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindBadRequest
	KindForbidden
	KindUnauthenticated
	KindValidation
)

// Error is a domain rule failure with a human-readable message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func NotFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

func BadRequest(message string) error {
	return &Error{Kind: KindBadRequest, Message: message}
}

func Forbidden(message string) error {
	return &Error{Kind: KindForbidden, Message: message}
}

func Unauthenticated(message string) error {
	return &Error{Kind: KindUnauthenticated, Message: message}
}

func Validation(message string) error {
	return &Error{Kind: KindValidation, Message: message}
}

// KindOf returns the Kind carried by err. Errors that are not domain
// errors, storage failures included, classify as INTERNAL.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

type Kind string

const (
	Invalid         Kind = "invalid"
	Unauthenticated Kind = "unauthenticated"
	Signature       Kind = "signature"
	NotFound        Kind = "not_found"
	Remote          Kind = "remote"
	Internal        Kind = "internal"
)

// AppError carries an error kind, a client-safe message and the wrapped
// internal cause. Remote errors may pin an explicit upstream status code.
type AppError struct {
	Kind       Kind
	PublicMsg  string
	StatusCode int // optional override, used for gateway pass-through
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *AppError) Unwrap() error { return e.Err }

func InvalidErr(publicMsg string) *AppError {
	return &AppError{Kind: Invalid, PublicMsg: publicMsg}
}

func UnauthenticatedErr(publicMsg string) *AppError {
	return &AppError{Kind: Unauthenticated, PublicMsg: publicMsg}
}

func SignatureErr(publicMsg string) *AppError {
	return &AppError{Kind: Signature, PublicMsg: publicMsg}
}

func NotFoundErr(publicMsg string) *AppError {
	return &AppError{Kind: NotFound, PublicMsg: publicMsg}
}

// RemoteErr wraps a gateway API failure, keeping the upstream status and
// description for pass-through to the client.
func RemoteErr(statusCode int, publicMsg string, err error) *AppError {
	return &AppError{Kind: Remote, PublicMsg: publicMsg, StatusCode: statusCode, Err: err}
}

// Wrap marks an unexpected internal error. The public message stays generic;
// the cause is for logs only.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Kind: Internal, PublicMsg: "Internal server error.", Err: err}
}

func As(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func HTTPStatus(err error) int {
	ae, ok := As(err)
	if !ok {
		return fiber.StatusInternalServerError
	}
	if ae.StatusCode != 0 {
		return ae.StatusCode
	}
	switch ae.Kind {
	case Invalid:
		return fiber.StatusBadRequest
	case Unauthenticated, Signature:
		return fiber.StatusUnauthorized
	case NotFound:
		return fiber.StatusNotFound
	case Remote:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func PublicMessage(err error) string {
	if ae, ok := As(err); ok && ae.PublicMsg != "" {
		return ae.PublicMsg
	}
	return "Internal server error."
}

package usecase

import "errors"

type ErrNotFound string

func (e ErrNotFound) Error() string { return string(e) + " not found" }

type ErrConflict string

func (e ErrConflict) Error() string { return string(e) }

type ErrBadRequest string

func (e ErrBadRequest) Error() string { return string(e) }

var (
	ErrInvalidAmount     error = ErrBadRequest("minimum order amount is ₹1")
	ErrInvalidTransition error = ErrConflict("invalid status transition")

	ErrInvalidSignature   = errors.New("invalid payment signature")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
)

package apperrors

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrInvalidInput           = errors.New("invalid input")
	ErrForbidden              = errors.New("forbidden")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrContextExhausted       = errors.New("session context limit reached")
	ErrTurnInProgress         = errors.New("a turn is already in progress for this session")
	ErrUnknownProvider        = errors.New("unknown model provider")
	ErrUnknownDatabase        = errors.New("unknown database")
	ErrInvalidRole            = errors.New("invalid role")
	ErrCredentialsKeyMismatch = errors.New("connection credentials were encrypted with a different key")
)

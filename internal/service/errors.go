package service

import "errors"

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("already exists")
	ErrInternalError      = errors.New("internal error")
)

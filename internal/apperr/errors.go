package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrNoResults     = errors.New("no analysed cards")
	ErrInvalidInput  = errors.New("invalid input")
)

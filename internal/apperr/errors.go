package apperr

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrSourceMissing  = errors.New("source directory missing")
	ErrInvalidName    = errors.New("invalid file name")
	ErrUnknownCatalog = errors.New("unknown catalog")
	ErrUnknownField   = errors.New("unknown field")
)

package apperrors

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrRevisionUnavailable = errors.New("revision unavailable")
	ErrGraphUnavailable    = errors.New("graph store unavailable")
	ErrNoResults           = errors.New("no matching results")
	ErrTenantNotEnabled    = errors.New("static analysis not enabled for tenant")
)

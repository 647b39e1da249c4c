package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrAlreadyResolved    = errors.New("purchase already resolved")
	ErrDuplicateDownload  = errors.New("user already has an active download for this source")
)

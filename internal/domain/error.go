package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrCodeNotFound        = errors.New("activation code not found")
	ErrCodeAlreadyUsed     = errors.New("activation code already used")
	ErrCardKeyNotFound     = errors.New("card key not found")
	ErrCardKeyAlreadyUsed  = errors.New("card key already used")
	ErrCardKeyExpired      = errors.New("card key expired")
	ErrInsufficientPoints  = errors.New("insufficient points")
	ErrConfigMissing       = errors.New("invitation config not initialized")
	ErrGenerationExhausted = errors.New("token generation attempts exhausted")
	ErrConflict            = errors.New("concurrent modification conflict")

	// Infrastructure errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidExecContext = errors.New("invalid executor context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)

package model

import "errors"

// Common errors used across the application
var (
	// Record errors
	ErrAccountNotFound = errors.New("account not found")
	ErrProfileNotFound = errors.New("profile not found")
	ErrStoreNotFound   = errors.New("store not found")

	// Authentication errors
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid or expired session")
	ErrNotSignedIn        = errors.New("not signed in")

	// Identity errors
	ErrInvalidRole    = errors.New("invalid role")
	ErrInvalidSignal  = errors.New("invalid lifecycle signal")
	ErrClientNotFound = errors.New("client not found")
)

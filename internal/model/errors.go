package model

import "errors"

// Common errors used across the application
var (
	// Player database errors
	ErrPlayerNotFound  = errors.New("player not found")
	ErrPlayerExists    = errors.New("player already exists")
	ErrInvalidRole     = errors.New("invalid role")
	ErrInvalidPlayTime = errors.New("invalid play time")
	ErrUnsupported     = errors.New("operation not supported by player database")

	// Session registry errors
	ErrNameInUse           = errors.New("name is already in use")
	ErrReservationNotFound = errors.New("reservation not found")
)

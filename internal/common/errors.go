// Package common defines sentinel errors shared by the client layers.
// Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// The content database is missing or cannot be opened.
	ErrContentUnavailable = errors.New("content database unavailable")

	// Service-level errors.
	ErrPremiumRequired = errors.New("premium subscription required")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAlreadyUpToDate = errors.New("already up to date")
)

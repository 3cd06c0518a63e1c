package config

import "errors"

var (
	// ErrInvalidFormat marks a single events-file line that could not be
	// parsed. It is recoverable: the line is skipped.
	ErrInvalidFormat = errors.New("invalid event format")

	// ErrOpen is returned when an events file cannot be opened or read.
	ErrOpen = errors.New("events file unavailable")

	// ErrInvalidSettings wraps every settings validation failure.
	ErrInvalidSettings = errors.New("invalid settings")
)

package types

import "errors"

var (
	// ErrInvalidConfig is wrapped by every configuration validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
)

package engine

import "errors"

// Invalid lifecycle transitions
var ErrAlreadyRunning = errors.New("monitor is already running")

// Rejected user input
var (
	ErrEmptyAddress     = errors.New("address cannot be empty")
	ErrIntervalTooShort = errors.New("poll interval must be at least 100ms")
	ErrTargetNotFound   = errors.New("target not found")
	ErrInvalidSetting   = errors.New("invalid setting")
)

package models

import "errors"

// Custom errors
var (
	ErrNotFound       = errors.New("record not found")
	ErrPatternUnknown = errors.New("pattern has no store entry")
	ErrDuplicateKey   = errors.New("duplicate key violation")
	ErrNoOpenPosition = errors.New("no open position for batch and symbol")
)

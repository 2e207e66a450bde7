package model

import "errors"

// Sentinel errors for domain model validation.
var (
	ErrUnknownCategory = errors.New("unknown category")
)

package repositories

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrConditionFailed means the document exists but no longer satisfies the
	// guard of a conditional write.
	ErrConditionFailed   = errors.New("condition failed")
	ErrDuplicateCode     = errors.New("duplicate alert code")
	ErrActiveAlertExists = errors.New("sender already has an active alert")
)

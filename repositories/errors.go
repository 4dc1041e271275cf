package repositories

import "errors"

// Common repository errors
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key violation")
	ErrStaleRow  = errors.New("row version changed")
)

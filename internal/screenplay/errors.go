package screenplay

import "errors"

var (
	ErrAuthRequired = errors.New("authentication required")
	ErrPermission   = errors.New("permission denied")
	ErrNotFound     = errors.New("not found")
	ErrStore        = errors.New("document store failure")
	ErrSave         = errors.New("save failed")
	ErrInvalidInput = errors.New("invalid input")
)

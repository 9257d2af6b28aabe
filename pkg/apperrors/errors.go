package apperrors

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrRecordFinalized = errors.New("workflow record is finalized")
	ErrInvalidInput    = errors.New("invalid input")
)

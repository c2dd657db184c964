package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrOutOfRange is returned when a reorder index falls outside its scope.
	ErrOutOfRange = errors.New("index out of range")
	// ErrInvalidState is returned when an operation is not allowed in the current state.
	ErrInvalidState = errors.New("invalid state")
	// ErrAlreadyGranted signals an idempotent badge grant that changed nothing.
	ErrAlreadyGranted = errors.New("badge already granted")
	// ErrConflict is returned on duplicate enrollments and unique constraint violations.
	ErrConflict = errors.New("conflict")
	// ErrOrderCorrupted means a mutation would leave a sibling set non-contiguous.
	ErrOrderCorrupted = errors.New("order index invariant violated")
)

var (
	ErrNodeNotFound       = fmt.Errorf("curriculum node %w", ErrNotFound)
	ErrParentNotFound     = fmt.Errorf("parent node %w", ErrNotFound)
	ErrQuizNotFound       = fmt.Errorf("quiz %w", ErrNotFound)
	ErrAttemptNotFound    = fmt.Errorf("attempt %w", ErrNotFound)
	ErrBadgeNotFound      = fmt.Errorf("badge %w", ErrNotFound)
	ErrAwardNotFound      = fmt.Errorf("active badge award %w", ErrNotFound)
	ErrSectionNotFound    = fmt.Errorf("section %w", ErrNotFound)
	ErrQuizClosed         = fmt.Errorf("quiz is not open: %w", ErrInvalidState)
	ErrAttemptCompleted   = fmt.Errorf("attempt already submitted: %w", ErrInvalidState)
	ErrAlreadyEnrolled    = fmt.Errorf("student already enrolled: %w", ErrConflict)
	ErrInvalidProgressFor = fmt.Errorf("progress can only be recorded for lessons and activities: %w", ErrInvalidState)
)

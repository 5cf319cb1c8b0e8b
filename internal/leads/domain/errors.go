package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrLeadNotFound is returned by stores for unknown or soft-deleted leads.
	ErrLeadNotFound = errors.New("lead not found")
	// ErrConcurrencyConflict is returned when the stored version moved on.
	ErrConcurrencyConflict = errors.New("lead version conflict")
	// ErrAuditWrite is returned when the audit append of a commit failed.
	ErrAuditWrite = errors.New("audit append failed")
)

// Rejections below all match ErrInvalidTransition.
var (
	ErrClockAlreadyStopped = fmt.Errorf("%w: protection clock already stopped", ErrInvalidTransition)
	ErrClockNotStopped     = fmt.Errorf("%w: protection clock is not stopped", ErrInvalidTransition)
	ErrNotRegistered       = fmt.Errorf("%w: lead protection has not started", ErrInvalidTransition)
	ErrLeadExpired         = fmt.Errorf("%w: lead protection expired", ErrInvalidTransition)
	ErrLeadDeleted         = fmt.Errorf("%w: lead deleted", ErrInvalidTransition)
	ErrStageTransition     = fmt.Errorf("%w: stage may only stay or advance by one", ErrInvalidTransition)
)

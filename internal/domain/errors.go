package domain

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching against the typed errors below.
var (
	ErrValidation      = errors.New("validation failed")
	ErrProtectedRule   = errors.New("rule is protected")
	ErrNotFound        = errors.New("not found")
	ErrAlreadyResolved = errors.New("anomaly already resolved")
)

// ValidationError reports malformed input such as an empty keyword or an
// unknown category.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ProtectedRuleError is returned when a system rule is edited or deleted.
type ProtectedRuleError struct {
	RuleID int64
}

func (e *ProtectedRuleError) Error() string {
	return fmt.Sprintf("rule %d is a system rule and cannot be modified", e.RuleID)
}

func (e *ProtectedRuleError) Is(target error) bool { return target == ErrProtectedRule }

// NotFoundError is returned for operations on unknown ids.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AlreadyResolvedError is returned when a review targets an anomaly that has
// already left the open state.
type AlreadyResolvedError struct {
	AnomalyID string
	Status    AnomalyStatus
}

func (e *AlreadyResolvedError) Error() string {
	return fmt.Sprintf("anomaly %s already %s", e.AnomalyID, e.Status)
}

func (e *AlreadyResolvedError) Is(target error) bool { return target == ErrAlreadyResolved }

// NewNotFound builds a NotFoundError for the given entity kind.
func NewNotFound(kind string, id any) error {
	return &NotFoundError{Kind: kind, ID: fmt.Sprint(id)}
}

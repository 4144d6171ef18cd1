package domain

import (
	"fmt"
	"strings"
	"time"
)

// Detector rule names.
const (
	RuleStatisticalOutlier = "STATISTICAL_OUTLIER"
	RuleDuplicateSignal    = "DUPLICATE_SIGNAL"
	RuleLargeAmount        = "LARGE_AMOUNT"
)

// Severity is the ordinal urgency of an anomaly. It drives review order only.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// ParseSeverity is the inverse of Severity.String.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return SeverityLow, nil
	case "MEDIUM":
		return SeverityMedium, nil
	case "HIGH":
		return SeverityHigh, nil
	}
	return 0, &ValidationError{Field: "severity", Reason: fmt.Sprintf("unknown severity %q", s)}
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// AnomalyStatus is the review state of an anomaly.
type AnomalyStatus string

const (
	StatusOpen      AnomalyStatus = "open"
	StatusConfirmed AnomalyStatus = "confirmed"
	StatusDismissed AnomalyStatus = "dismissed"
)

// Resolved reports whether the status is terminal.
func (s AnomalyStatus) Resolved() bool {
	return s == StatusConfirmed || s == StatusDismissed
}

// CanTransition reports whether s -> to is a legal edge. Only open may move,
// and only to confirmed or dismissed.
func (s AnomalyStatus) CanTransition(to AnomalyStatus) bool {
	return s == StatusOpen && to.Resolved()
}

// ParseDecision validates a review decision.
func ParseDecision(s string) (AnomalyStatus, error) {
	switch AnomalyStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusConfirmed:
		return StatusConfirmed, nil
	case StatusDismissed:
		return StatusDismissed, nil
	}
	return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("decision must be confirmed or dismissed, got %q", s)}
}

// Anomaly is a detector finding attached to one transaction.
type Anomaly struct {
	ID            string        `json:"id"`
	TransactionID string        `json:"transaction_id"`
	UploadID      string        `json:"upload_id"`
	RuleName      string        `json:"rule_name"`
	Severity      Severity      `json:"severity"`
	Detail        string        `json:"detail"`
	Status        AnomalyStatus `json:"status"`
	ReviewedAt    *time.Time    `json:"reviewed_at"`
	CreatedAt     time.Time     `json:"created_at"`
}

// AnomalyKey identifies the (transaction, detector rule) pair. At most one
// anomaly exists per key.
type AnomalyKey struct {
	TransactionID string
	RuleName      string
}

func (a Anomaly) Key() AnomalyKey {
	return AnomalyKey{TransactionID: a.TransactionID, RuleName: a.RuleName}
}

// Resolve moves an open anomaly to decision and stamps ReviewedAt.
func (a *Anomaly) Resolve(decision AnomalyStatus, at time.Time) error {
	if !decision.Resolved() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("cannot transition to %q", decision)}
	}
	if !a.Status.CanTransition(decision) {
		return &AlreadyResolvedError{AnomalyID: a.ID, Status: a.Status}
	}
	a.Status = decision
	reviewed := at
	a.ReviewedAt = &reviewed
	return nil
}

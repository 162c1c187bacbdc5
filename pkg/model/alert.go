package model

import (
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type AlertID string

// NewAlertID generates a new unique AlertID
func NewAlertID() AlertID {
	return AlertID(uuid.New().String())
}

// Severity is an ordered enumeration: low < medium < high < critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordering of the severity. Unknown severities rank below
// low so that comparisons never promote them.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Validate checks if the severity is valid
func (s Severity) Validate() error {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return nil
	default:
		return goerr.Wrap(ErrInvalidAlert, "invalid severity", goerr.Value("severity", s))
	}
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// AlertStatus tracks the operational state of an alert. It is distinct from
// RCAStatus and the two are never interchangeable.
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// Validate checks if the alert status is valid
func (s AlertStatus) Validate() error {
	switch s {
	case AlertStatusActive, AlertStatusAcknowledged, AlertStatusResolved:
		return nil
	default:
		return goerr.Wrap(ErrInvalidAlert, "invalid alert status", goerr.Value("status", s))
	}
}

// Alert is an ingested operational alert. Immutable after creation except
// for GroupID, Status and the bookkeeping timestamps.
type Alert struct {
	ID           AlertID
	Title        string
	Description  string
	Severity     Severity
	SourceSystem string
	Labels       map[string]string

	// Optional metric context
	MetricName  string
	MetricValue *float64
	Threshold   *float64

	Status  AlertStatus
	GroupID GroupID // empty until grouped

	Embedding firestore.Vector32

	CreatedAt  time.Time
	UpdatedAt  time.Time
	ResolvedAt *time.Time
}

// Validate checks required fields before the alert touches any state.
func (a *Alert) Validate() error {
	if a.Title == "" {
		return goerr.Wrap(ErrInvalidAlert, "title is empty")
	}
	if a.SourceSystem == "" {
		return goerr.Wrap(ErrInvalidAlert, "source system is empty")
	}
	if err := a.Severity.Validate(); err != nil {
		return err
	}
	if a.Status != "" {
		if err := a.Status.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Text returns the representation used for embedding: title and description
// concatenated. Kept deterministic so re-embedding the same alert yields the
// same input text.
func (a *Alert) Text() string {
	if a.Description == "" {
		return a.Title
	}
	return a.Title + "\n" + a.Description
}

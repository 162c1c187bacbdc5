package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type RCAID string

// NewRCAID generates a new unique RCAID
func NewRCAID() RCAID {
	return RCAID(uuid.New().String())
}

// RCAStatus is the lifecycle state of an RCA. Closed is terminal; reopening
// creates a new RCA instead of mutating the closed one.
type RCAStatus string

const (
	RCAStatusOpen       RCAStatus = "open"
	RCAStatusInProgress RCAStatus = "in_progress"
	RCAStatusClosed     RCAStatus = "closed"
)

// Validate checks if the RCA status is valid
func (s RCAStatus) Validate() error {
	switch s {
	case RCAStatusOpen, RCAStatusInProgress, RCAStatusClosed:
		return nil
	default:
		return goerr.Wrap(ErrInvalidTransition, "unknown rca status", goerr.Value("status", s))
	}
}

// CanTransitionTo reports whether the transition s -> next is allowed.
// Allowed: open -> in_progress, in_progress -> closed, open -> closed.
func (s RCAStatus) CanTransitionTo(next RCAStatus) bool {
	switch s {
	case RCAStatusOpen:
		return next == RCAStatusInProgress || next == RCAStatusClosed
	case RCAStatusInProgress:
		return next == RCAStatusClosed
	default:
		return false
	}
}

// Confidence is the model's self-assessed confidence in the analysis.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// HistoricalRef records one retrieved historical incident that was actually
// included in the generation prompt, for auditability.
type HistoricalRef struct {
	RCAID   RCAID   `json:"rca_id"`
	Score   float64 `json:"score"`
	Summary string  `json:"summary,omitempty"`
}

// RCA is a generated root cause analysis for an alert group (one-to-one).
// Mutated only through lifecycle transitions and pre-closure regeneration.
type RCA struct {
	ID      RCAID
	GroupID GroupID

	Title              string
	RootCause          string
	ImpactAnalysis     string
	RecommendedActions string
	AffectedSystems    []string
	Severity           Severity
	Confidence         Confidence

	// Narrative is the raw model output the structured fields were parsed
	// from. Retained even when parsing succeeds.
	Narrative string

	// References lists the historical incidents included in the prompt, in
	// descending similarity order.
	References []HistoricalRef

	Status RCAStatus

	// Vectorized is set once the RCA has been written into the
	// historical-rca namespace. Guards exactly-once vectorization.
	Vectorized bool

	// Version guards compare-and-swap updates of lifecycle state.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
}

type RCAHistoryID string

// NewRCAHistoryID generates a new unique RCAHistoryID
func NewRCAHistoryID() RCAHistoryID {
	return RCAHistoryID(uuid.New().String())
}

// RCAHistoryEntry is an append-only record of a status transition. Never
// mutated or deleted.
type RCAHistoryEntry struct {
	ID             RCAHistoryID
	RCAID          RCAID
	PreviousStatus RCAStatus
	NewStatus      RCAStatus
	Actor          string
	Reason         string
	CreatedAt      time.Time
}

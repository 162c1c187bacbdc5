package model

import "github.com/m-mizutani/goerr/v2"

// Error taxonomy shared across the core. Callers distinguish the kind with
// errors.Is against these sentinels.
var (
	// ErrInvalidAlert indicates malformed alert input, rejected before any
	// state change.
	ErrInvalidAlert = goerr.New("invalid alert")

	ErrAlertNotFound = goerr.New("alert not found")
	ErrGroupNotFound = goerr.New("alert group not found")
	ErrRCANotFound   = goerr.New("rca not found")

	// ErrInvalidTransition indicates a lifecycle transition outside the
	// allowed state machine. No history entry is recorded.
	ErrInvalidTransition = goerr.New("invalid rca status transition")

	// ErrRCAClosed indicates an attempt to mutate an already-closed RCA.
	ErrRCAClosed = goerr.New("rca is closed")

	// ErrEmptyGroup indicates RCA generation was requested for a group
	// without member alerts.
	ErrEmptyGroup = goerr.New("alert group has no members")

	// ErrConcurrentUpdate indicates a lost race on a versioned update. The
	// whole operation is safe to retry from scratch.
	ErrConcurrentUpdate = goerr.New("concurrent update conflict")

	// ErrGenerationFailed indicates the generative model exhausted retries
	// or returned unusable output. No RCA state was written.
	ErrGenerationFailed = goerr.New("rca generation failed")

	// ErrDependencyUnavailable indicates an external dependency (embedding,
	// vector index, model provider) stayed unreachable after retries.
	ErrDependencyUnavailable = goerr.New("dependency unavailable")
)

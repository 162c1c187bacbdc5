package model

import (
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
)

type GroupID string

// NewGroupID generates a new unique GroupID
func NewGroupID() GroupID {
	return GroupID(uuid.New().String())
}

// AlertGroup is a cluster of related alerts. The representative embedding is
// the founding alert's embedding and is fixed at creation time
// (first-alert-wins); later members never change it.
type AlertGroup struct {
	ID          GroupID
	Title       string
	Description string
	Severity    Severity // max severity across members

	Embedding firestore.Vector32

	// AlertIDs is append-only, in arrival order. Alerts are never moved
	// between groups except by a full regroup.
	AlertIDs []AlertID

	// Version guards compare-and-swap updates of membership and metadata.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contains reports whether the alert is already a member.
func (g *AlertGroup) Contains(id AlertID) bool {
	for _, member := range g.AlertIDs {
		if member == id {
			return true
		}
	}
	return false
}

// GroupAssignment is the result of assigning an alert to a group.
type GroupAssignment struct {
	GroupID    GroupID
	CreatedNew bool
	Similarity float64 // best candidate score; 0 when a new group was created
}

package repository

import (
	"context"

	"github.com/rootiq-ai/alert-rca-system/pkg/model"
)

// Repository defines durable storage for alerts, groups, RCAs and their
// transition history.
//
// UpdateGroup and UpdateRCA are compare-and-swap operations: the entity's
// Version field must match the stored version, otherwise
// model.ErrConcurrentUpdate is returned and nothing is written. On success
// the stored and in-memory versions are incremented.
type Repository interface {
	// PutAlert saves an alert to the repository
	PutAlert(ctx context.Context, alert *model.Alert) error

	// GetAlert retrieves an alert by ID
	GetAlert(ctx context.Context, id model.AlertID) (*model.Alert, error)

	// ListAlerts retrieves all alerts ordered by ascending creation time
	ListAlerts(ctx context.Context) ([]*model.Alert, error)

	// ListAlertsByGroup retrieves the member alerts of a group ordered by
	// ascending creation time
	ListAlertsByGroup(ctx context.Context, groupID model.GroupID) ([]*model.Alert, error)

	// UpdateAlert updates an existing alert
	UpdateAlert(ctx context.Context, alert *model.Alert) error

	// CreateGroup creates a new alert group; fails if the ID already exists
	CreateGroup(ctx context.Context, group *model.AlertGroup) error

	// CreateGroupWithAlert atomically creates a new group together with
	// its founding alert; fails if the group ID already exists. Neither
	// write lands on failure.
	CreateGroupWithAlert(ctx context.Context, group *model.AlertGroup, alert *model.Alert) error

	// GetGroup retrieves an alert group by ID
	GetGroup(ctx context.Context, id model.GroupID) (*model.AlertGroup, error)

	// ListGroups retrieves all alert groups ordered by ascending creation time
	ListGroups(ctx context.Context) ([]*model.AlertGroup, error)

	// UpdateGroup updates a group with version compare-and-swap
	UpdateGroup(ctx context.Context, group *model.AlertGroup) error

	// UpdateGroupWithAlert atomically updates a group with version
	// compare-and-swap and saves the joining alert. Neither write lands
	// on failure.
	UpdateGroupWithAlert(ctx context.Context, group *model.AlertGroup, alert *model.Alert) error

	// ClearGroups removes all alert groups. Used by regroup.
	ClearGroups(ctx context.Context) error

	// PutRCA saves an RCA to the repository
	PutRCA(ctx context.Context, rca *model.RCA) error

	// GetRCA retrieves an RCA by ID
	GetRCA(ctx context.Context, id model.RCAID) (*model.RCA, error)

	// GetRCAByGroup retrieves the RCA owned by the group, if any
	GetRCAByGroup(ctx context.Context, groupID model.GroupID) (*model.RCA, error)

	// ListRCAs retrieves RCAs, optionally filtered by status
	ListRCAs(ctx context.Context, status *model.RCAStatus) ([]*model.RCA, error)

	// UpdateRCA updates an RCA with version compare-and-swap
	UpdateRCA(ctx context.Context, rca *model.RCA) error

	// UpdateRCAWithHistory atomically updates an RCA with version
	// compare-and-swap and appends the transition record. Neither write
	// lands on failure.
	UpdateRCAWithHistory(ctx context.Context, rca *model.RCA, entry *model.RCAHistoryEntry) error

	// PutHistory appends a status transition record
	PutHistory(ctx context.Context, entry *model.RCAHistoryEntry) error

	// ListHistory retrieves transition records of an RCA in chronological order
	ListHistory(ctx context.Context, rcaID model.RCAID) ([]*model.RCAHistoryEntry, error)
}

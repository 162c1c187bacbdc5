package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/rootiq-ai/alert-rca-system/pkg/model"
	"github.com/rootiq-ai/alert-rca-system/pkg/repository"
)

func TestMemoryAlertRoundTrip(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	alert := &model.Alert{
		ID:           model.NewAlertID(),
		Title:        "High CPU usage",
		SourceSystem: "prometheus",
		Severity:     model.SeverityHigh,
		Status:       model.AlertStatusActive,
		CreatedAt:    time.Now(),
	}
	gt.NoError(t, repo.PutAlert(ctx, alert))

	got, err := repo.GetAlert(ctx, alert.ID)
	gt.NoError(t, err)
	gt.V(t, got.Title).Equal("High CPU usage")

	// Stored copy is isolated from later caller mutation
	alert.Title = "mutated"
	got, err = repo.GetAlert(ctx, alert.ID)
	gt.NoError(t, err)
	gt.V(t, got.Title).Equal("High CPU usage")
}

func TestMemoryGetAlertNotFound(t *testing.T) {
	repo := repository.NewMemory()

	_, err := repo.GetAlert(context.Background(), model.NewAlertID())
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrAlertNotFound))
}

func TestMemoryListAlertsOrder(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, offset := range []time.Duration{2 * time.Minute, 0, time.Minute} {
		gt.NoError(t, repo.PutAlert(ctx, &model.Alert{
			ID:           model.AlertID(string(rune('a' + i))),
			Title:        "alert",
			SourceSystem: "prometheus",
			Severity:     model.SeverityLow,
			CreatedAt:    base.Add(offset),
		}))
	}

	alerts, err := repo.ListAlerts(ctx)
	gt.NoError(t, err)
	gt.V(t, len(alerts)).Equal(3)
	gt.True(t, alerts[0].CreatedAt.Before(alerts[1].CreatedAt))
	gt.True(t, alerts[1].CreatedAt.Before(alerts[2].CreatedAt))
}

func TestMemoryListAlertsByGroup(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()
	groupID := model.NewGroupID()

	member := &model.Alert{
		ID: model.NewAlertID(), Title: "a", SourceSystem: "s",
		Severity: model.SeverityLow, GroupID: groupID, CreatedAt: time.Now(),
	}
	other := &model.Alert{
		ID: model.NewAlertID(), Title: "b", SourceSystem: "s",
		Severity: model.SeverityLow, GroupID: model.NewGroupID(), CreatedAt: time.Now(),
	}
	gt.NoError(t, repo.PutAlert(ctx, member))
	gt.NoError(t, repo.PutAlert(ctx, other))

	alerts, err := repo.ListAlertsByGroup(ctx, groupID)
	gt.NoError(t, err)
	gt.V(t, len(alerts)).Equal(1)
	gt.V(t, alerts[0].ID).Equal(member.ID)
}

func TestMemoryCreateGroupDuplicate(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	group := &model.AlertGroup{ID: model.NewGroupID(), Title: "g"}
	gt.NoError(t, repo.CreateGroup(ctx, group))

	err := repo.CreateGroup(ctx, group)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrConcurrentUpdate))
}

func TestMemoryUpdateGroupCAS(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	group := &model.AlertGroup{ID: model.NewGroupID(), Title: "g"}
	gt.NoError(t, repo.CreateGroup(ctx, group))

	// Two readers get the same version
	first, err := repo.GetGroup(ctx, group.ID)
	gt.NoError(t, err)
	second, err := repo.GetGroup(ctx, group.ID)
	gt.NoError(t, err)

	first.Title = "updated by first"
	gt.NoError(t, repo.UpdateGroup(ctx, first))
	gt.V(t, first.Version).Equal(int64(1))

	second.Title = "updated by second"
	err = repo.UpdateGroup(ctx, second)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrConcurrentUpdate))

	stored, err := repo.GetGroup(ctx, group.ID)
	gt.NoError(t, err)
	gt.V(t, stored.Title).Equal("updated by first")
}

func TestMemoryClearGroups(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	gt.NoError(t, repo.CreateGroup(ctx, &model.AlertGroup{ID: model.NewGroupID()}))
	gt.NoError(t, repo.ClearGroups(ctx))

	groups, err := repo.ListGroups(ctx)
	gt.NoError(t, err)
	gt.V(t, len(groups)).Equal(0)
}

func TestMemoryRCAByGroup(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()
	groupID := model.NewGroupID()

	_, err := repo.GetRCAByGroup(ctx, groupID)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrRCANotFound))

	rca := &model.RCA{ID: model.NewRCAID(), GroupID: groupID, Status: model.RCAStatusOpen}
	gt.NoError(t, repo.PutRCA(ctx, rca))

	got, err := repo.GetRCAByGroup(ctx, groupID)
	gt.NoError(t, err)
	gt.V(t, got.ID).Equal(rca.ID)
}

func TestMemoryListRCAsStatusFilter(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	open := &model.RCA{ID: model.NewRCAID(), GroupID: model.NewGroupID(), Status: model.RCAStatusOpen}
	closed := &model.RCA{ID: model.NewRCAID(), GroupID: model.NewGroupID(), Status: model.RCAStatusClosed}
	gt.NoError(t, repo.PutRCA(ctx, open))
	gt.NoError(t, repo.PutRCA(ctx, closed))

	all, err := repo.ListRCAs(ctx, nil)
	gt.NoError(t, err)
	gt.V(t, len(all)).Equal(2)

	status := model.RCAStatusClosed
	filtered, err := repo.ListRCAs(ctx, &status)
	gt.NoError(t, err)
	gt.V(t, len(filtered)).Equal(1)
	gt.V(t, filtered[0].ID).Equal(closed.ID)
}

func TestMemoryUpdateRCACAS(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	rca := &model.RCA{ID: model.NewRCAID(), GroupID: model.NewGroupID(), Status: model.RCAStatusOpen}
	gt.NoError(t, repo.PutRCA(ctx, rca))

	stale, err := repo.GetRCA(ctx, rca.ID)
	gt.NoError(t, err)

	rca.Status = model.RCAStatusInProgress
	gt.NoError(t, repo.UpdateRCA(ctx, rca))

	stale.Status = model.RCAStatusClosed
	err = repo.UpdateRCA(ctx, stale)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrConcurrentUpdate))
}

func TestMemoryHistory(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()
	rcaID := model.NewRCAID()

	entries := []*model.RCAHistoryEntry{
		{ID: model.NewRCAHistoryID(), RCAID: rcaID, PreviousStatus: model.RCAStatusOpen, NewStatus: model.RCAStatusInProgress},
		{ID: model.NewRCAHistoryID(), RCAID: rcaID, PreviousStatus: model.RCAStatusInProgress, NewStatus: model.RCAStatusClosed},
		{ID: model.NewRCAHistoryID(), RCAID: model.NewRCAID(), PreviousStatus: model.RCAStatusOpen, NewStatus: model.RCAStatusClosed},
	}
	for _, e := range entries {
		gt.NoError(t, repo.PutHistory(ctx, e))
	}

	got, err := repo.ListHistory(ctx, rcaID)
	gt.NoError(t, err)
	gt.V(t, len(got)).Equal(2)
	gt.V(t, got[0].NewStatus).Equal(model.RCAStatusInProgress)
	gt.V(t, got[1].NewStatus).Equal(model.RCAStatusClosed)
}

func TestMemoryCreateGroupWithAlert(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	group := &model.AlertGroup{ID: model.NewGroupID(), Title: "g"}
	alert := &model.Alert{ID: model.NewAlertID(), Title: "a", GroupID: group.ID}
	gt.NoError(t, repo.CreateGroupWithAlert(ctx, group, alert))

	stored, err := repo.GetAlert(ctx, alert.ID)
	gt.NoError(t, err)
	gt.V(t, stored.GroupID).Equal(group.ID)

	// A losing create persists neither the group nor its founding alert
	other := &model.Alert{ID: model.NewAlertID(), Title: "b", GroupID: group.ID}
	err = repo.CreateGroupWithAlert(ctx, group, other)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrConcurrentUpdate))

	_, err = repo.GetAlert(ctx, other.ID)
	gt.True(t, errors.Is(err, model.ErrAlertNotFound))
}

func TestMemoryUpdateGroupWithAlertCAS(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	group := &model.AlertGroup{ID: model.NewGroupID(), Title: "g"}
	gt.NoError(t, repo.CreateGroup(ctx, group))

	first, err := repo.GetGroup(ctx, group.ID)
	gt.NoError(t, err)
	second, err := repo.GetGroup(ctx, group.ID)
	gt.NoError(t, err)

	winner := &model.Alert{ID: model.NewAlertID(), Title: "a", GroupID: group.ID}
	first.AlertIDs = append(first.AlertIDs, winner.ID)
	gt.NoError(t, repo.UpdateGroupWithAlert(ctx, first, winner))
	gt.V(t, first.Version).Equal(int64(1))

	stored, err := repo.GetAlert(ctx, winner.ID)
	gt.NoError(t, err)
	gt.V(t, stored.GroupID).Equal(group.ID)

	// A stale update leaves the group untouched and the alert unwritten
	loser := &model.Alert{ID: model.NewAlertID(), Title: "b", GroupID: group.ID}
	second.AlertIDs = append(second.AlertIDs, loser.ID)
	err = repo.UpdateGroupWithAlert(ctx, second, loser)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrConcurrentUpdate))

	_, err = repo.GetAlert(ctx, loser.ID)
	gt.True(t, errors.Is(err, model.ErrAlertNotFound))

	current, err := repo.GetGroup(ctx, group.ID)
	gt.NoError(t, err)
	gt.V(t, len(current.AlertIDs)).Equal(1)
}

func TestMemoryUpdateRCAWithHistory(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	rca := &model.RCA{ID: model.NewRCAID(), GroupID: model.NewGroupID(), Status: model.RCAStatusOpen}
	gt.NoError(t, repo.PutRCA(ctx, rca))

	stale, err := repo.GetRCA(ctx, rca.ID)
	gt.NoError(t, err)

	rca.Status = model.RCAStatusInProgress
	entry := &model.RCAHistoryEntry{
		ID:             model.NewRCAHistoryID(),
		RCAID:          rca.ID,
		PreviousStatus: model.RCAStatusOpen,
		NewStatus:      model.RCAStatusInProgress,
	}
	gt.NoError(t, repo.UpdateRCAWithHistory(ctx, rca, entry))
	gt.V(t, rca.Version).Equal(int64(1))

	got, err := repo.ListHistory(ctx, rca.ID)
	gt.NoError(t, err)
	gt.V(t, len(got)).Equal(1)

	// A stale update records neither the status change nor a history entry
	stale.Status = model.RCAStatusClosed
	staleEntry := &model.RCAHistoryEntry{
		ID:             model.NewRCAHistoryID(),
		RCAID:          rca.ID,
		PreviousStatus: model.RCAStatusInProgress,
		NewStatus:      model.RCAStatusClosed,
	}
	err = repo.UpdateRCAWithHistory(ctx, stale, staleEntry)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrConcurrentUpdate))

	got, err = repo.ListHistory(ctx, rca.ID)
	gt.NoError(t, err)
	gt.V(t, len(got)).Equal(1)
}

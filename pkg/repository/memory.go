package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rootiq-ai/alert-rca-system/pkg/model"
)

// Memory is an in-process Repository for tests and local runs. It mirrors
// the Firestore implementation's semantics, including version
// compare-and-swap on group and RCA updates.
type Memory struct {
	mu      sync.RWMutex
	alerts  map[model.AlertID]*model.Alert
	groups  map[model.GroupID]*model.AlertGroup
	rcas    map[model.RCAID]*model.RCA
	history []*model.RCAHistoryEntry
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		alerts: map[model.AlertID]*model.Alert{},
		groups: map[model.GroupID]*model.AlertGroup{},
		rcas:   map[model.RCAID]*model.RCA{},
	}
}

func copyAlert(a *model.Alert) *model.Alert {
	c := *a
	return &c
}

func copyGroup(g *model.AlertGroup) *model.AlertGroup {
	c := *g
	c.AlertIDs = append([]model.AlertID(nil), g.AlertIDs...)
	return &c
}

func copyRCA(r *model.RCA) *model.RCA {
	c := *r
	c.AffectedSystems = append([]string(nil), r.AffectedSystems...)
	c.References = append([]model.HistoricalRef(nil), r.References...)
	return &c
}

func (m *Memory) PutAlert(_ context.Context, alert *model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[alert.ID] = copyAlert(alert)
	return nil
}

func (m *Memory) GetAlert(_ context.Context, id model.AlertID) (*model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alert, ok := m.alerts[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrAlertNotFound, "no such alert", goerr.Value("id", id))
	}
	return copyAlert(alert), nil
}

func (m *Memory) ListAlerts(_ context.Context) ([]*model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alerts := make([]*model.Alert, 0, len(m.alerts))
	for _, alert := range m.alerts {
		alerts = append(alerts, copyAlert(alert))
	}
	sortAlerts(alerts)
	return alerts, nil
}

func (m *Memory) ListAlertsByGroup(_ context.Context, groupID model.GroupID) ([]*model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var alerts []*model.Alert
	for _, alert := range m.alerts {
		if alert.GroupID == groupID {
			alerts = append(alerts, copyAlert(alert))
		}
	}
	sortAlerts(alerts)
	return alerts, nil
}

func sortAlerts(alerts []*model.Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		if !alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return alerts[i].CreatedAt.Before(alerts[j].CreatedAt)
		}
		return alerts[i].ID < alerts[j].ID
	})
}

func (m *Memory) UpdateAlert(ctx context.Context, alert *model.Alert) error {
	return m.PutAlert(ctx, alert)
}

func (m *Memory) CreateGroup(_ context.Context, group *model.AlertGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[group.ID]; ok {
		return goerr.Wrap(model.ErrConcurrentUpdate, "group already exists", goerr.Value("id", group.ID))
	}
	m.groups[group.ID] = copyGroup(group)
	return nil
}

func (m *Memory) CreateGroupWithAlert(_ context.Context, group *model.AlertGroup, alert *model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[group.ID]; ok {
		return goerr.Wrap(model.ErrConcurrentUpdate, "group already exists", goerr.Value("id", group.ID))
	}
	m.groups[group.ID] = copyGroup(group)
	m.alerts[alert.ID] = copyAlert(alert)
	return nil
}

func (m *Memory) GetGroup(_ context.Context, id model.GroupID) (*model.AlertGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	group, ok := m.groups[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrGroupNotFound, "no such group", goerr.Value("id", id))
	}
	return copyGroup(group), nil
}

func (m *Memory) ListGroups(_ context.Context) ([]*model.AlertGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	groups := make([]*model.AlertGroup, 0, len(m.groups))
	for _, group := range m.groups {
		groups = append(groups, copyGroup(group))
	}
	sort.Slice(groups, func(i, j int) bool {
		if !groups[i].CreatedAt.Equal(groups[j].CreatedAt) {
			return groups[i].CreatedAt.Before(groups[j].CreatedAt)
		}
		return groups[i].ID < groups[j].ID
	})
	return groups, nil
}

func (m *Memory) UpdateGroup(_ context.Context, group *model.AlertGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.groups[group.ID]
	if !ok {
		return goerr.Wrap(model.ErrGroupNotFound, "no such group", goerr.Value("id", group.ID))
	}
	if stored.Version != group.Version {
		return goerr.Wrap(model.ErrConcurrentUpdate, "group version mismatch",
			goerr.Value("id", group.ID), goerr.Value("want", group.Version), goerr.Value("stored", stored.Version))
	}

	group.Version++
	m.groups[group.ID] = copyGroup(group)
	return nil
}

func (m *Memory) UpdateGroupWithAlert(_ context.Context, group *model.AlertGroup, alert *model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.groups[group.ID]
	if !ok {
		return goerr.Wrap(model.ErrGroupNotFound, "no such group", goerr.Value("id", group.ID))
	}
	if stored.Version != group.Version {
		return goerr.Wrap(model.ErrConcurrentUpdate, "group version mismatch",
			goerr.Value("id", group.ID), goerr.Value("want", group.Version), goerr.Value("stored", stored.Version))
	}

	group.Version++
	m.groups[group.ID] = copyGroup(group)
	m.alerts[alert.ID] = copyAlert(alert)
	return nil
}

func (m *Memory) ClearGroups(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups = map[model.GroupID]*model.AlertGroup{}
	return nil
}

func (m *Memory) PutRCA(_ context.Context, rca *model.RCA) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rcas[rca.ID] = copyRCA(rca)
	return nil
}

func (m *Memory) GetRCA(_ context.Context, id model.RCAID) (*model.RCA, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rca, ok := m.rcas[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrRCANotFound, "no such rca", goerr.Value("id", id))
	}
	return copyRCA(rca), nil
}

func (m *Memory) GetRCAByGroup(_ context.Context, groupID model.GroupID) (*model.RCA, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rca := range m.rcas {
		if rca.GroupID == groupID {
			return copyRCA(rca), nil
		}
	}
	return nil, goerr.Wrap(model.ErrRCANotFound, "group has no rca", goerr.Value("group_id", groupID))
}

func (m *Memory) ListRCAs(_ context.Context, status *model.RCAStatus) ([]*model.RCA, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rcas []*model.RCA
	for _, rca := range m.rcas {
		if status != nil && rca.Status != *status {
			continue
		}
		rcas = append(rcas, copyRCA(rca))
	}
	sort.Slice(rcas, func(i, j int) bool {
		if !rcas[i].CreatedAt.Equal(rcas[j].CreatedAt) {
			return rcas[i].CreatedAt.Before(rcas[j].CreatedAt)
		}
		return rcas[i].ID < rcas[j].ID
	})
	return rcas, nil
}

func (m *Memory) UpdateRCA(_ context.Context, rca *model.RCA) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.rcas[rca.ID]
	if !ok {
		return goerr.Wrap(model.ErrRCANotFound, "no such rca", goerr.Value("id", rca.ID))
	}
	if stored.Version != rca.Version {
		return goerr.Wrap(model.ErrConcurrentUpdate, "rca version mismatch",
			goerr.Value("id", rca.ID), goerr.Value("want", rca.Version), goerr.Value("stored", stored.Version))
	}

	rca.Version++
	m.rcas[rca.ID] = copyRCA(rca)
	return nil
}

func (m *Memory) UpdateRCAWithHistory(_ context.Context, rca *model.RCA, entry *model.RCAHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.rcas[rca.ID]
	if !ok {
		return goerr.Wrap(model.ErrRCANotFound, "no such rca", goerr.Value("id", rca.ID))
	}
	if stored.Version != rca.Version {
		return goerr.Wrap(model.ErrConcurrentUpdate, "rca version mismatch",
			goerr.Value("id", rca.ID), goerr.Value("want", rca.Version), goerr.Value("stored", stored.Version))
	}

	rca.Version++
	m.rcas[rca.ID] = copyRCA(rca)
	e := *entry
	m.history = append(m.history, &e)
	return nil
}

func (m *Memory) PutHistory(_ context.Context, entry *model.RCAHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := *entry
	m.history = append(m.history, &e)
	return nil
}

func (m *Memory) ListHistory(_ context.Context, rcaID model.RCAID) ([]*model.RCAHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []*model.RCAHistoryEntry
	for _, entry := range m.history {
		if entry.RCAID == rcaID {
			e := *entry
			entries = append(entries, &e)
		}
	}
	return entries, nil
}

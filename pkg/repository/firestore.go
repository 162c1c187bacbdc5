package repository

import (
	"context"
	"sort"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/rootiq-ai/alert-rca-system/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collAlerts  = "alerts"
	collGroups  = "alert_groups"
	collRCAs    = "rcas"
	collHistory = "rca_history"
)

// Firestore implements Repository using Firestore. Group and RCA updates run
// in transactions that verify the Version field, giving the compare-and-swap
// semantics the grouping engine and lifecycle manager rely on.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore creates a new Firestore repository
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client")
	}
	return &Firestore{client: client}, nil
}

// Close releases the underlying client.
func (r *Firestore) Close() error {
	return r.client.Close()
}

func (r *Firestore) PutAlert(ctx context.Context, alert *model.Alert) error {
	if _, err := r.client.Collection(collAlerts).Doc(string(alert.ID)).Set(ctx, alert); err != nil {
		return goerr.Wrap(err, "failed to put alert", goerr.Value("id", alert.ID))
	}
	return nil
}

func (r *Firestore) GetAlert(ctx context.Context, id model.AlertID) (*model.Alert, error) {
	snap, err := r.client.Collection(collAlerts).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrAlertNotFound, "no such alert", goerr.Value("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get alert", goerr.Value("id", id))
	}

	var alert model.Alert
	if err := snap.DataTo(&alert); err != nil {
		return nil, goerr.Wrap(err, "failed to decode alert", goerr.Value("id", id))
	}
	return &alert, nil
}

func (r *Firestore) ListAlerts(ctx context.Context) ([]*model.Alert, error) {
	query := r.client.Collection(collAlerts).OrderBy("CreatedAt", firestore.Asc)
	return r.collectAlerts(query.Documents(ctx))
}

func (r *Firestore) ListAlertsByGroup(ctx context.Context, groupID model.GroupID) ([]*model.Alert, error) {
	query := r.client.Collection(collAlerts).
		Where("GroupID", "==", string(groupID)).
		OrderBy("CreatedAt", firestore.Asc)
	return r.collectAlerts(query.Documents(ctx))
}

func (r *Firestore) collectAlerts(iter *firestore.DocumentIterator) ([]*model.Alert, error) {
	defer iter.Stop()

	var alerts []*model.Alert
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate alerts")
		}

		var alert model.Alert
		if err := snap.DataTo(&alert); err != nil {
			return nil, goerr.Wrap(err, "failed to decode alert", goerr.Value("doc", snap.Ref.ID))
		}
		alerts = append(alerts, &alert)
	}
	return alerts, nil
}

func (r *Firestore) UpdateAlert(ctx context.Context, alert *model.Alert) error {
	return r.PutAlert(ctx, alert)
}

func (r *Firestore) CreateGroup(ctx context.Context, group *model.AlertGroup) error {
	if _, err := r.client.Collection(collGroups).Doc(string(group.ID)).Create(ctx, group); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return goerr.Wrap(model.ErrConcurrentUpdate, "group already exists", goerr.Value("id", group.ID))
		}
		return goerr.Wrap(err, "failed to create group", goerr.Value("id", group.ID))
	}
	return nil
}

func (r *Firestore) CreateGroupWithAlert(ctx context.Context, group *model.AlertGroup, alert *model.Alert) error {
	groupRef := r.client.Collection(collGroups).Doc(string(group.ID))
	alertRef := r.client.Collection(collAlerts).Doc(string(alert.ID))

	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(groupRef); err == nil {
			return goerr.Wrap(model.ErrConcurrentUpdate, "group already exists", goerr.Value("id", group.ID))
		} else if status.Code(err) != codes.NotFound {
			return goerr.Wrap(err, "failed to read group in transaction", goerr.Value("id", group.ID))
		}

		if err := tx.Create(groupRef, group); err != nil {
			return goerr.Wrap(err, "failed to create group", goerr.Value("id", group.ID))
		}
		if err := tx.Set(alertRef, alert); err != nil {
			return goerr.Wrap(err, "failed to put alert", goerr.Value("id", alert.ID))
		}
		return nil
	})
}

func (r *Firestore) GetGroup(ctx context.Context, id model.GroupID) (*model.AlertGroup, error) {
	snap, err := r.client.Collection(collGroups).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrGroupNotFound, "no such group", goerr.Value("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get group", goerr.Value("id", id))
	}

	var group model.AlertGroup
	if err := snap.DataTo(&group); err != nil {
		return nil, goerr.Wrap(err, "failed to decode group", goerr.Value("id", id))
	}
	return &group, nil
}

func (r *Firestore) ListGroups(ctx context.Context) ([]*model.AlertGroup, error) {
	iter := r.client.Collection(collGroups).OrderBy("CreatedAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var groups []*model.AlertGroup
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate groups")
		}

		var group model.AlertGroup
		if err := snap.DataTo(&group); err != nil {
			return nil, goerr.Wrap(err, "failed to decode group", goerr.Value("doc", snap.Ref.ID))
		}
		groups = append(groups, &group)
	}
	return groups, nil
}

func (r *Firestore) UpdateGroup(ctx context.Context, group *model.AlertGroup) error {
	ref := r.client.Collection(collGroups).Doc(string(group.ID))

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(model.ErrGroupNotFound, "no such group", goerr.Value("id", group.ID))
			}
			return goerr.Wrap(err, "failed to read group in transaction")
		}

		var stored model.AlertGroup
		if err := snap.DataTo(&stored); err != nil {
			return goerr.Wrap(err, "failed to decode group")
		}
		if stored.Version != group.Version {
			return goerr.Wrap(model.ErrConcurrentUpdate, "group version mismatch",
				goerr.Value("id", group.ID), goerr.Value("want", group.Version), goerr.Value("stored", stored.Version))
		}

		next := *group
		next.Version = group.Version + 1
		return tx.Set(ref, &next)
	})
	if err != nil {
		return err
	}

	group.Version++
	return nil
}

func (r *Firestore) UpdateGroupWithAlert(ctx context.Context, group *model.AlertGroup, alert *model.Alert) error {
	groupRef := r.client.Collection(collGroups).Doc(string(group.ID))
	alertRef := r.client.Collection(collAlerts).Doc(string(alert.ID))

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(groupRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(model.ErrGroupNotFound, "no such group", goerr.Value("id", group.ID))
			}
			return goerr.Wrap(err, "failed to read group in transaction")
		}

		var stored model.AlertGroup
		if err := snap.DataTo(&stored); err != nil {
			return goerr.Wrap(err, "failed to decode group")
		}
		if stored.Version != group.Version {
			return goerr.Wrap(model.ErrConcurrentUpdate, "group version mismatch",
				goerr.Value("id", group.ID), goerr.Value("want", group.Version), goerr.Value("stored", stored.Version))
		}

		next := *group
		next.Version = group.Version + 1
		if err := tx.Set(groupRef, &next); err != nil {
			return goerr.Wrap(err, "failed to update group", goerr.Value("id", group.ID))
		}
		return tx.Set(alertRef, alert)
	})
	if err != nil {
		return err
	}

	group.Version++
	return nil
}

func (r *Firestore) ClearGroups(ctx context.Context) error {
	iter := r.client.Collection(collGroups).Documents(ctx)
	defer iter.Stop()

	bw := r.client.BulkWriter(ctx)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return goerr.Wrap(err, "failed to iterate groups")
		}
		if _, err := bw.Delete(snap.Ref); err != nil {
			return goerr.Wrap(err, "failed to schedule group deletion")
		}
	}
	bw.End()

	return nil
}

func (r *Firestore) PutRCA(ctx context.Context, rca *model.RCA) error {
	if _, err := r.client.Collection(collRCAs).Doc(string(rca.ID)).Set(ctx, rca); err != nil {
		return goerr.Wrap(err, "failed to put rca", goerr.Value("id", rca.ID))
	}
	return nil
}

func (r *Firestore) GetRCA(ctx context.Context, id model.RCAID) (*model.RCA, error) {
	snap, err := r.client.Collection(collRCAs).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrRCANotFound, "no such rca", goerr.Value("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get rca", goerr.Value("id", id))
	}

	var rca model.RCA
	if err := snap.DataTo(&rca); err != nil {
		return nil, goerr.Wrap(err, "failed to decode rca", goerr.Value("id", id))
	}
	return &rca, nil
}

func (r *Firestore) GetRCAByGroup(ctx context.Context, groupID model.GroupID) (*model.RCA, error) {
	iter := r.client.Collection(collRCAs).
		Where("GroupID", "==", string(groupID)).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, goerr.Wrap(model.ErrRCANotFound, "group has no rca", goerr.Value("group_id", groupID))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query rca by group", goerr.Value("group_id", groupID))
	}

	var rca model.RCA
	if err := snap.DataTo(&rca); err != nil {
		return nil, goerr.Wrap(err, "failed to decode rca", goerr.Value("doc", snap.Ref.ID))
	}
	return &rca, nil
}

func (r *Firestore) ListRCAs(ctx context.Context, statusFilter *model.RCAStatus) ([]*model.RCA, error) {
	query := r.client.Collection(collRCAs).Query
	if statusFilter != nil {
		query = query.Where("Status", "==", string(*statusFilter))
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var rcas []*model.RCA
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate rcas")
		}

		var rca model.RCA
		if err := snap.DataTo(&rca); err != nil {
			return nil, goerr.Wrap(err, "failed to decode rca", goerr.Value("doc", snap.Ref.ID))
		}
		rcas = append(rcas, &rca)
	}

	sort.Slice(rcas, func(i, j int) bool { return rcas[i].CreatedAt.Before(rcas[j].CreatedAt) })
	return rcas, nil
}

func (r *Firestore) UpdateRCA(ctx context.Context, rca *model.RCA) error {
	ref := r.client.Collection(collRCAs).Doc(string(rca.ID))

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(model.ErrRCANotFound, "no such rca", goerr.Value("id", rca.ID))
			}
			return goerr.Wrap(err, "failed to read rca in transaction")
		}

		var stored model.RCA
		if err := snap.DataTo(&stored); err != nil {
			return goerr.Wrap(err, "failed to decode rca")
		}
		if stored.Version != rca.Version {
			return goerr.Wrap(model.ErrConcurrentUpdate, "rca version mismatch",
				goerr.Value("id", rca.ID), goerr.Value("want", rca.Version), goerr.Value("stored", stored.Version))
		}

		next := *rca
		next.Version = rca.Version + 1
		return tx.Set(ref, &next)
	})
	if err != nil {
		return err
	}

	rca.Version++
	return nil
}

func (r *Firestore) UpdateRCAWithHistory(ctx context.Context, rca *model.RCA, entry *model.RCAHistoryEntry) error {
	rcaRef := r.client.Collection(collRCAs).Doc(string(rca.ID))
	historyRef := r.client.Collection(collHistory).Doc(string(entry.ID))

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(rcaRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(model.ErrRCANotFound, "no such rca", goerr.Value("id", rca.ID))
			}
			return goerr.Wrap(err, "failed to read rca in transaction")
		}

		var stored model.RCA
		if err := snap.DataTo(&stored); err != nil {
			return goerr.Wrap(err, "failed to decode rca")
		}
		if stored.Version != rca.Version {
			return goerr.Wrap(model.ErrConcurrentUpdate, "rca version mismatch",
				goerr.Value("id", rca.ID), goerr.Value("want", rca.Version), goerr.Value("stored", stored.Version))
		}

		next := *rca
		next.Version = rca.Version + 1
		if err := tx.Set(rcaRef, &next); err != nil {
			return goerr.Wrap(err, "failed to update rca", goerr.Value("id", rca.ID))
		}
		return tx.Create(historyRef, entry)
	})
	if err != nil {
		return err
	}

	rca.Version++
	return nil
}

func (r *Firestore) PutHistory(ctx context.Context, entry *model.RCAHistoryEntry) error {
	if _, err := r.client.Collection(collHistory).Doc(string(entry.ID)).Create(ctx, entry); err != nil {
		return goerr.Wrap(err, "failed to put history entry", goerr.Value("id", entry.ID))
	}
	return nil
}

func (r *Firestore) ListHistory(ctx context.Context, rcaID model.RCAID) ([]*model.RCAHistoryEntry, error) {
	query := r.client.Collection(collHistory).
		Where("RCAID", "==", string(rcaID)).
		OrderBy("CreatedAt", firestore.Asc)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var entries []*model.RCAHistoryEntry
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate history", goerr.Value("rca_id", rcaID))
		}

		var entry model.RCAHistoryEntry
		if err := snap.DataTo(&entry); err != nil {
			return nil, goerr.Wrap(err, "failed to decode history entry", goerr.Value("doc", snap.Ref.ID))
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

package model_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/rootiq-ai/alert-rca-system/pkg/model"
)

func TestRCAStatusTransitions(t *testing.T) {
	tests := []struct {
		from    model.RCAStatus
		to      model.RCAStatus
		allowed bool
	}{
		{model.RCAStatusOpen, model.RCAStatusInProgress, true},
		{model.RCAStatusOpen, model.RCAStatusClosed, true},
		{model.RCAStatusInProgress, model.RCAStatusClosed, true},
		{model.RCAStatusInProgress, model.RCAStatusOpen, false},
		{model.RCAStatusClosed, model.RCAStatusOpen, false},
		{model.RCAStatusClosed, model.RCAStatusInProgress, false},
		{model.RCAStatusClosed, model.RCAStatusClosed, false},
		{model.RCAStatusOpen, model.RCAStatusOpen, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			gt.V(t, tt.from.CanTransitionTo(tt.to)).Equal(tt.allowed)
		})
	}
}

func TestRCAStatusValidate(t *testing.T) {
	for _, s := range []model.RCAStatus{
		model.RCAStatusOpen, model.RCAStatusInProgress, model.RCAStatusClosed,
	} {
		gt.NoError(t, s.Validate())
	}

	gt.Error(t, model.RCAStatus("resolved").Validate())
	gt.Error(t, model.RCAStatus("").Validate())
}

func TestGroupContains(t *testing.T) {
	a1 := model.NewAlertID()
	a2 := model.NewAlertID()
	group := &model.AlertGroup{AlertIDs: []model.AlertID{a1}}

	gt.True(t, group.Contains(a1))
	gt.False(t, group.Contains(a2))
}

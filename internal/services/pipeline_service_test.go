package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/require"

	"closingflow/internal/models"
	"closingflow/internal/utils"
)

func TestGetOrCreateStateUnknownProperty(t *testing.T) {
	env := newTestEnv()

	_, err := env.pipeline.GetOrCreateState(context.Background(), uuid.New())
	require.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestGetOrCreateStateLazyCreation(t *testing.T) {
	env := newTestEnv()
	propertyID := env.seedProperty(false, false)

	rec, err := env.pipeline.GetOrCreateState(context.Background(), propertyID)
	require.NoError(t, err)
	require.Equal(t, int64(1), rec.RowVersion)
	require.Equal(t, models.StepStatusCompleted, rec.State.Step(models.StageUnderContract).Status)
	require.Equal(t, models.StageEarnestMoney, rec.State.CurrentLabel)

	// Second access reuses the stored document.
	again, err := env.pipeline.GetOrCreateState(context.Background(), propertyID)
	require.NoError(t, err)
	require.Equal(t, rec.RowVersion, again.RowVersion)
}

func TestLoadRejectsUnsupportedStateVersion(t *testing.T) {
	env := newTestEnv()
	propertyID := env.seedProperty(false, false)

	// Simulate a document written by a future build.
	st := models.NewPropertyWorkflowState(nowUTC())
	st.Version = 99
	raw, err := json.Marshal(st)
	require.NoError(t, err)
	env.workflowRepo.states[propertyID] = raw
	env.workflowRepo.versions[propertyID] = 1

	_, err = env.pipeline.GetOrCreateState(context.Background(), propertyID)
	require.ErrorIs(t, err, utils.ErrUnsupportedStateVersion)
}

func TestMutateBumpsRowVersion(t *testing.T) {
	env := newTestEnv()
	propertyID := env.seedProperty(false, false)

	rec, err := env.pipeline.Mutate(context.Background(), propertyID, func(st *models.PropertyWorkflowState) error {
		st.Step(models.StageEarnestMoney).Transition(
			models.StepStatusActionNeeded, "test", nil, nowUTC())
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), rec.RowVersion)
	require.Equal(t, models.StepStatusActionNeeded, rec.State.Step(models.StageEarnestMoney).Status)
}

func TestBuildPipelineViewStableOrder(t *testing.T) {
	env := newTestEnv()
	propertyID := env.seedProperty(false, false)

	rec, err := env.pipeline.GetOrCreateState(context.Background(), propertyID)
	require.NoError(t, err)

	view := BuildPipelineView(propertyID, rec.State)
	require.Equal(t, propertyID, view.PropertyID)
	require.Len(t, view.Steps, len(models.StageOrder))
	for i, label := range models.StageOrder {
		require.Equal(t, label, view.Steps[i].Label)
	}
	require.Equal(t, models.DraftStatusMissing, view.Earnest.Draft.Status)
	require.Nil(t, view.Earnest.SendState)
	require.Nil(t, view.Closing.Evidence)
}

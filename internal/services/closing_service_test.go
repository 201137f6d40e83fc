package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"closingflow/internal/models"
	"closingflow/internal/utils"
)

func altaEvidence(confidence float64) AltaEvidence {
	return AltaEvidence{
		MessageID:  uuid.New(),
		ThreadID:   "thread-1",
		DocumentID: uuid.New(),
		Confidence: confidence,
		Summary:    "ALTA settlement statement for 114 Maple Ave",
	}
}

func TestApplyAltaDetectionSetsConfirmAction(t *testing.T) {
	env := newTestEnv()
	propertyID := env.seedProperty(true, true)

	ev := altaEvidence(0.92)
	rec, err := env.closing.ApplyAltaDetection(context.Background(), propertyID, ev)
	require.NoError(t, err)

	step := rec.State.Step(models.StageClosing)
	require.Equal(t, models.StepStatusActionNeeded, step.Status)
	require.Nil(t, step.LockedReason)

	sug := rec.State.Closing.Suggestion
	require.NotNil(t, sug)
	require.Equal(t, models.PendingActionConfirmClosing, sug.PendingUserAction)
	require.Equal(t, &ev.DocumentID, sug.EvidenceDocumentID)
	require.Equal(t, 0.92, sug.Confidence)
}

func TestApplyAltaDetectionDefensiveBelowFloor(t *testing.T) {
	env := newTestEnv()
	propertyID := env.seedProperty(true, true)

	// The automation filters on the floor already, but a weak detection
	// reaching the sub-workflow must still be ignored.
	rec, err := env.closing.ApplyAltaDetection(context.Background(), propertyID, altaEvidence(0.5))
	require.NoError(t, err)

	require.Equal(t, models.StepStatusLocked, rec.State.Step(models.StageClosing).Status)
	require.Nil(t, rec.State.Closing)
}

func TestApplyAltaDetectionTerminalOnceCompleted(t *testing.T) {
	env := newTestEnv()
	propertyID := env.seedProperty(true, true)

	_, err := env.closing.ApplyAltaDetection(context.Background(), propertyID, altaEvidence(0.9))
	require.NoError(t, err)
	_, err = env.closing.ConfirmComplete(context.Background(), propertyID)
	require.NoError(t, err)

	rec, err := env.closing.ApplyAltaDetection(context.Background(), propertyID, altaEvidence(0.99))
	require.NoError(t, err)

	require.Equal(t, models.StepStatusCompleted, rec.State.Step(models.StageClosing).Status)
	require.Nil(t, rec.State.Closing.Suggestion, "completed closing is terminal")
}

func TestApplyAltaDetectionLatestEvidenceWins(t *testing.T) {
	env := newTestEnv()
	propertyID := env.seedProperty(true, true)

	first := altaEvidence(0.85)
	second := altaEvidence(0.95)

	_, err := env.closing.ApplyAltaDetection(context.Background(), propertyID, first)
	require.NoError(t, err)
	rec, err := env.closing.ApplyAltaDetection(context.Background(), propertyID, second)
	require.NoError(t, err)

	require.Equal(t, &second.DocumentID, rec.State.Closing.Suggestion.EvidenceDocumentID)
}

func TestClosingConfirmRequiresPendingAction(t *testing.T) {
	env := newTestEnv()
	propertyID := env.seedProperty(true, true)

	_, err := env.closing.ConfirmComplete(context.Background(), propertyID)
	require.ErrorIs(t, err, utils.ErrNoPendingAction)
}

func TestClosingConfirmCascadesAcrossAllSteps(t *testing.T) {
	env := newTestEnv()
	propertyID := env.seedProperty(true, true)

	_, err := env.closing.ApplyAltaDetection(context.Background(), propertyID, altaEvidence(0.9))
	require.NoError(t, err)
	rec, err := env.closing.ConfirmComplete(context.Background(), propertyID)
	require.NoError(t, err)

	for _, label := range models.StageOrder {
		step := rec.State.Step(label)
		require.Equal(t, models.StepStatusCompleted, step.Status, "step %s", label)
		require.Nil(t, step.LockedReason)
	}
	require.Equal(t, "user confirmed closing",
		rec.State.Step(models.StageClosing).LastTransitionReason)
	require.Equal(t, "marked completed when closing was confirmed",
		rec.State.Step(models.StageFinancing).LastTransitionReason)
	// under_contract was already completed; its original stamp survives.
	require.Equal(t, "executed contract ingested",
		rec.State.Step(models.StageUnderContract).LastTransitionReason)
	require.Equal(t, models.StageClosing, rec.State.CurrentLabel)
	require.Nil(t, rec.State.Closing.Suggestion)
}

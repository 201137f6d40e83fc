package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewPropertyWorkflowStateShape(t *testing.T) {
	now := time.Now().UTC()
	st := NewPropertyWorkflowState(now)

	require.Equal(t, WorkflowStateVersion, st.Version)
	require.Len(t, st.Steps, len(StageOrder))

	for _, label := range StageOrder {
		step := st.Step(label)
		require.NotNil(t, step, "stage %s must exist", label)
		require.Equal(t, label, step.Label)
		require.Equal(t, now, step.LastTransitionAt)
	}

	require.Equal(t, StepStatusCompleted, st.Step(StageUnderContract).Status)
	require.Nil(t, st.Step(StageUnderContract).LockedReason)

	for _, label := range StageOrder[1:] {
		step := st.Step(label)
		require.Equal(t, StepStatusLocked, step.Status)
		require.NotNil(t, step.LockedReason)
		require.Equal(t, "waiting on earlier stages", *step.LockedReason)
	}

	require.Equal(t, StageEarnestMoney, st.CurrentLabel)
	require.Equal(t, DraftStatusMissing, st.Earnest.Draft.Status)
	require.Nil(t, st.Closing)
}

func TestTransitionKeepsLockedReasonInvariant(t *testing.T) {
	now := time.Now().UTC()
	step := &WorkflowStep{Label: StageEarnestMoney}

	reason := "escrow officer contact missing"
	step.Transition(StepStatusLocked, reason, &reason, now)
	require.Equal(t, StepStatusLocked, step.Status)
	require.Equal(t, &reason, step.LockedReason)
	require.Equal(t, reason, step.LastTransitionReason)

	later := now.Add(time.Minute)
	step.Transition(StepStatusActionNeeded, "draft generated", nil, later)
	require.Nil(t, step.LockedReason, "leaving locked clears the reason")
	require.Equal(t, later, step.LastTransitionAt)

	// A stale pointer passed for a non-locked status is ignored.
	step.Transition(StepStatusCompleted, "done", &reason, later.Add(time.Minute))
	require.Nil(t, step.LockedReason)
}

func TestRecomputeCurrentLabel(t *testing.T) {
	now := time.Now().UTC()
	st := NewPropertyWorkflowState(now)

	st.Step(StageEarnestMoney).Transition(StepStatusCompleted, "confirmed", nil, now)
	st.RecomputeCurrentLabel()
	require.Equal(t, StageDueDiligence, st.CurrentLabel)

	for _, label := range StageOrder {
		st.Step(label).Transition(StepStatusCompleted, "done", nil, now)
	}
	st.RecomputeCurrentLabel()
	require.Equal(t, StageClosing, st.CurrentLabel, "fully completed pipeline stays on closing")
}

func TestEnsureClosingIsLazyAndStable(t *testing.T) {
	st := NewPropertyWorkflowState(time.Now().UTC())
	require.Nil(t, st.Closing)

	c := st.EnsureClosing()
	require.NotNil(t, c)
	require.Same(t, c, st.EnsureClosing())
}

func TestWorkflowStateJSONRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	st := NewPropertyWorkflowState(now)
	st.Earnest.Draft = EarnestDraft{
		Status:  DraftStatusReady,
		Subject: "Earnest Money",
		Body:    "body",
	}

	raw, err := json.Marshal(st)
	require.NoError(t, err)

	var back PropertyWorkflowState
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Equal(t, st.Version, back.Version)
	require.Equal(t, st.CurrentLabel, back.CurrentLabel)
	require.Len(t, back.Steps, len(StageOrder))
	require.Equal(t, DraftStatusReady, back.Earnest.Draft.Status)
	require.Nil(t, back.Closing)
}

package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecouncil/internal/approval"
	"tradecouncil/internal/orchestrator"
	"tradecouncil/internal/safety"
	"tradecouncil/internal/signal"
	"tradecouncil/internal/workflow"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func finalState(id, symbol string, action signal.Action) *workflow.State {
	return &workflow.State{
		WorkflowID:  id,
		Symbol:      symbol,
		Timeframe:   "1h",
		FinalAction: action,
		Confidence:  0.63,
		Signals: map[signal.Source]signal.Signal{
			signal.SourceTechnical: {Source: signal.SourceTechnical, Decision: action, Confidence: 0.9},
		},
		Decision: &orchestrator.FinalDecision{
			Symbol:    symbol,
			Action:    action,
			Quantity:  12,
			Reasoning: "weighted vote",
			DecidedAt: time.Now(),
		},
		ExecutionStatus: "FILLED",
		OrderID:         "ord-" + id,
	}
}

func TestRecordAndListDecisions(t *testing.T) {
	st := newTestStore(t)

	for i := 0; i < 3; i++ {
		state := finalState(fmt.Sprintf("wf-%d", i), "BTCUSDT", signal.ActionBuy)
		state.Decision.DecidedAt = time.Now().Add(time.Duration(i) * time.Second)
		st.RecordDecision(state)
	}
	st.RecordDecision(finalState("wf-eth", "ETHUSDT", signal.ActionSell))

	all, err := st.ListDecisions(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	btc, err := st.ListDecisions(context.Background(), "BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, btc, 3)
	// created_at 倒序
	assert.Equal(t, "wf-2", btc[0].WorkflowID)
	assert.Equal(t, "BUY", btc[0].Action)
	assert.Equal(t, int64(12), btc[0].Quantity)
	assert.NotEmpty(t, btc[0].SignalsJSON)
}

func TestRecordDecisionWithApprovalFields(t *testing.T) {
	st := newTestStore(t)

	state := finalState("wf-approved", "BTCUSDT", signal.ActionBuy)
	approved := true
	state.HumanApproved = &approved
	state.HumanFeedback = "looks fine"
	st.RecordDecision(state)

	out, err := st.ListDecisions(context.Background(), "BTCUSDT", 1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].HumanApproved)
	assert.Equal(t, 1, *out[0].HumanApproved)
	assert.Equal(t, "looks fine", out[0].HumanFeedback)
}

func TestDuplicateWorkflowIDIsDropped(t *testing.T) {
	st := newTestStore(t)

	st.RecordDecision(finalState("wf-dup", "BTCUSDT", signal.ActionBuy))
	st.RecordDecision(finalState("wf-dup", "BTCUSDT", signal.ActionSell))

	out, err := st.ListDecisions(context.Background(), "BTCUSDT", 10)
	require.NoError(t, err)
	// workflow_id 唯一索引：重复写入只记日志，不报错也不覆盖
	assert.Len(t, out, 1)
	assert.Equal(t, "BUY", out[0].Action)
}

func TestRecordAndListSafetyEvents(t *testing.T) {
	st := newTestStore(t)

	st.RecordSafetyEvent(safety.HaltEvent{At: time.Now(), Kind: "halt", Reason: "daily loss 3.2%"})
	st.RecordSafetyEvent(safety.HaltEvent{At: time.Now().Add(time.Minute), Kind: "reset", Reason: "manual", By: "ops"})

	events, err := st.ListSafetyEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "reset", events[0].Kind)
	assert.Equal(t, "ops", events[0].Operator)
}

func TestArchiveAndListApprovals(t *testing.T) {
	st := newTestStore(t)

	st.ArchiveApproval(approval.Request{
		ID:         "req-1",
		Symbol:     "BTCUSDT",
		Action:     signal.ActionBuy,
		Confidence: 0.6,
		Status:     approval.StatusApproved,
		Feedback:   "ship it",
		CreatedAt:  time.Now(),
		ResolvedAt: time.Now().Add(30 * time.Second),
	})

	out, err := st.ListApprovals(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "req-1", out[0].RequestID)
	assert.Equal(t, string(approval.StatusApproved), out[0].Status)
	assert.Greater(t, out[0].ResolvedAtUnix, out[0].CreatedAtUnix)
}

func TestListLimitClamp(t *testing.T) {
	st := newTestStore(t)
	for i := 0; i < 60; i++ {
		st.RecordDecision(finalState(fmt.Sprintf("wf-%03d", i), "BTCUSDT", signal.ActionHold))
	}

	out, err := st.ListDecisions(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, out, 50)
}

package workflow

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passthrough(ctx context.Context, st *State) (Update, error) { return Update{}, nil }

func staticEdge(next ...string) EdgeFunc {
	return func(st *State) []string { return next }
}

func TestRunConvergingNodeExecutesOnce(t *testing.T) {
	// fan-out a→{b,c}，两条边都指向 join：去重后 join 只跑一轮一次
	var joinRuns atomic.Int32
	g := NewGraph("a")
	g.AddStep("a", passthrough, staticEdge("b", "c"))
	g.AddStep("b", passthrough, staticEdge("join"))
	g.AddStep("c", passthrough, staticEdge("join"))
	g.AddStep("join", func(ctx context.Context, st *State) (Update, error) {
		joinRuns.Add(1)
		return Update{}, nil
	}, nil)

	_, err := g.Run(context.Background(), &State{WorkflowID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), joinRuns.Load())
}

func TestRunMergesRoundDeterministically(t *testing.T) {
	// 同一超步里 b 与 c 都写 market_meta 的同一个键：合并按节点名排序，c 胜出
	g := NewGraph("a")
	g.AddStep("a", passthrough, staticEdge("b", "c"))
	g.AddStep("b", func(ctx context.Context, st *State) (Update, error) {
		return Update{MarketMeta: map[string]any{"writer": "b"}}, nil
	}, nil)
	g.AddStep("c", func(ctx context.Context, st *State) (Update, error) {
		return Update{MarketMeta: map[string]any{"writer": "c"}}, nil
	}, nil)

	for i := 0; i < 20; i++ {
		st, err := g.Run(context.Background(), &State{WorkflowID: "t2"})
		require.NoError(t, err)
		assert.Equal(t, "c", st.MarketMeta["writer"])
	}
}

func TestRunFoldsPanicIntoStateErr(t *testing.T) {
	g := NewGraph("boom")
	g.AddStep("boom", func(ctx context.Context, st *State) (Update, error) {
		panic("kaboom")
	}, nil)

	st, err := g.Run(context.Background(), &State{WorkflowID: "t3"})
	require.NoError(t, err)
	require.Error(t, st.Err)
	assert.Contains(t, st.Err.Error(), "panicked")
}

func TestRunFoldsStepErrorIntoStateErr(t *testing.T) {
	g := NewGraph("bad")
	g.AddStep("bad", func(ctx context.Context, st *State) (Update, error) {
		return Update{}, assert.AnError
	}, nil)

	st, err := g.Run(context.Background(), &State{WorkflowID: "t4"})
	require.NoError(t, err)
	require.Error(t, st.Err)
	assert.Contains(t, st.Err.Error(), "step bad")
}

func TestRunCapsSupersteps(t *testing.T) {
	g := NewGraph("loop")
	g.AddStep("loop", passthrough, staticEdge("loop"))

	_, err := g.Run(context.Background(), &State{WorkflowID: "t5"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "supersteps")
}

func TestRunRejectsUnknownSuccessor(t *testing.T) {
	g := NewGraph("a")
	g.AddStep("a", passthrough, staticEdge("ghost"))

	_, err := g.Run(context.Background(), &State{WorkflowID: "t6"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step")
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewGraph("a")
	g.AddStep("a", passthrough, staticEdge("a"))

	_, err := g.Run(ctx, &State{WorkflowID: "t7"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunEndEdgeTerminates(t *testing.T) {
	g := NewGraph("a")
	g.AddStep("a", passthrough, staticEdge(NodeEnd))

	st, err := g.Run(context.Background(), &State{WorkflowID: "t8"})
	require.NoError(t, err)
	assert.Equal(t, NodeEnd, st.CurrentNode)
}

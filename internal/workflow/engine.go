package workflow

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"tradecouncil/internal/logger"
)

// 中文说明：
// 超步引擎：活跃前沿里的节点并发执行，全部完成后统一合并更新，
// 再在合并后的状态上求条件边，得到下一个前沿（集合去重保证
// 汇聚节点每轮只执行一次）。步骤内的 panic 与 error 都折叠进
// state.Err，由错误边路由，进程不会因单步失败而崩溃。

// NodeName 节点名。
const (
	NodeStart       = "start"
	NodeFetchData   = "fetch_data"
	NodeMood        = "mood"
	NodeTechnical   = "technical"
	NodeSentiment   = "sentiment"
	NodeDebate      = "debate"
	NodeRisk        = "risk"
	NodeDecision    = "decision"
	NodeHumanReview = "human_review"
	NodeExecute     = "execute"
	NodeRetry       = "retry"
	NodeEnd         = "end"
)

// StepFunc 执行一个步骤，返回对状态的部分更新。
type StepFunc func(ctx context.Context, st *State) (Update, error)

// EdgeFunc 在整轮合并后的状态上计算后继节点。
type EdgeFunc func(st *State) []string

// Graph 是命名步骤的有向图。
type Graph struct {
	steps map[string]StepFunc
	edges map[string]EdgeFunc
	entry string
}

func NewGraph(entry string) *Graph {
	return &Graph{
		steps: make(map[string]StepFunc),
		edges: make(map[string]EdgeFunc),
		entry: entry,
	}
}

// AddStep 注册节点与其条件边。edge 为 nil 表示终止节点。
func (g *Graph) AddStep(name string, step StepFunc, edge EdgeFunc) {
	g.steps[name] = step
	g.edges[name] = edge
}

// maxSupersteps 兜底上限，防御图配置错误导致的死循环。
const maxSupersteps = 64

type stepResult struct {
	node   string
	update Update
}

// Run 从入口节点执行到终止。返回最终状态（含 Err，如果终止于错误）。
func (g *Graph) Run(ctx context.Context, st *State) (*State, error) {
	frontier := []string{g.entry}
	for round := 0; len(frontier) > 0; round++ {
		if round >= maxSupersteps {
			return st, fmt.Errorf("workflow %s exceeded %d supersteps", st.WorkflowID, maxSupersteps)
		}
		if err := ctx.Err(); err != nil {
			return st, err
		}
		results := g.runRound(ctx, st, frontier)

		// 合并顺序按节点名排序，保证确定性
		sort.Slice(results, func(i, j int) bool { return results[i].node < results[j].node })
		for _, r := range results {
			st.merge(r.update)
		}

		// 条件边在整轮合并后的状态上求值；集合去重实现汇聚节点的单次执行
		next := make([]string, 0, 2)
		seen := make(map[string]bool, 4)
		for _, name := range frontier {
			edge := g.edges[name]
			if edge == nil {
				continue
			}
			for _, succ := range edge(st) {
				if succ == "" || succ == NodeEnd {
					continue
				}
				if _, ok := g.steps[succ]; !ok {
					return st, fmt.Errorf("workflow %s: edge from %s to unknown step %s", st.WorkflowID, name, succ)
				}
				if !seen[succ] {
					seen[succ] = true
					next = append(next, succ)
				}
			}
		}
		sort.Strings(next)
		frontier = next
		if len(frontier) > 0 {
			st.CurrentNode = frontier[0]
		} else {
			st.CurrentNode = NodeEnd
		}
	}
	return st, nil
}

// runRound 并发执行一个前沿；单步的 error/panic 都转为 Update{Err}。
func (g *Graph) runRound(ctx context.Context, st *State, frontier []string) []stepResult {
	results := make([]stepResult, len(frontier))
	var wg sync.WaitGroup
	for i, name := range frontier {
		i, name := i, name
		step := g.steps[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = stepResult{node: name, update: g.safeRun(ctx, name, step, st)}
		}()
	}
	wg.Wait()
	return results
}

func (g *Graph) safeRun(ctx context.Context, name string, step StepFunc, st *State) (update Update) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("workflow %s step %s panicked: %v\n%s", st.WorkflowID, name, r, debug.Stack())
			update = Update{Err: fmt.Errorf("step %s panicked: %v", name, r)}
		}
	}()
	if step == nil {
		return Update{}
	}
	logger.Debugf("workflow %s step %s (iteration=%d retry=%d)", st.WorkflowID, name, st.Iteration, st.RetryCount)
	u, err := step(ctx, st)
	if err != nil {
		u.Err = fmt.Errorf("step %s: %w", name, err)
	}
	return u
}

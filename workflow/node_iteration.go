package workflow

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// iterationExecutor re-invokes a separately compiled sub-workflow once per
// element of a list-typed input, collecting one JSON-serialized result per
// element. Sub-workflow compilation happens lazily on first execution so a
// freshly published workflow is picked up without recompiling the host.
//
// Failure policy: a missing/unpublished workflow, a sub-workflow with more
// than one input, or a non-list/empty input fails the node fast with an
// empty-outputs FAILED result instead of partially iterating — and the
// host workflow keeps running.
type iterationExecutor struct {
	data *IterationNodeData
	deps Deps
}

func newIterationExecutor(data *IterationNodeData, deps Deps) *iterationExecutor {
	return &iterationExecutor{data: data, deps: deps}
}

// subRuntime builds the sub-workflow runtime, or nil when the referenced
// workflow cannot serve (missing binding, unpublished, invalid). The
// lenient nil keeps draft graphs loadable; invoke turns it into a FAILED
// result.
func (e *iterationExecutor) subRuntime(ctx context.Context) *Runtime {
	if len(e.data.WorkflowIDs) != 1 || e.deps.Workflows == nil {
		return nil
	}
	config, err := e.deps.Workflows.LoadPublished(ctx, e.data.WorkflowIDs[0])
	if err != nil || config == nil {
		e.deps.logger().Warn("迭代节点子工作流加载失败",
			zap.String("workflow_id", e.data.WorkflowIDs[0].String()), zap.Error(err))
		return nil
	}
	sub, err := NewRuntime(config, e.deps)
	if err != nil {
		e.deps.logger().Warn("迭代节点子工作流构建失败", zap.Error(err))
		return nil
	}
	return sub
}

func (e *iterationExecutor) execute(ctx context.Context, state *WorkflowState) (*execResult, error) {
	startAt := time.Now()

	inputs, err := ExtractVariables(e.data.Inputs, state)
	if err != nil {
		return nil, err
	}
	items, _ := inputs["inputs"].([]any)

	failed := func() *execResult {
		return &execResult{delta: resultDelta(&NodeResult{
			NodeData: e.data,
			Status:   StatusFailed,
			Inputs:   inputs,
			Outputs:  map[string]any{"outputs": []any{}},
			Latency:  time.Since(startAt).Seconds(),
		})}
	}

	sub := e.subRuntime(ctx)
	if sub == nil || len(sub.InputNames()) != 1 || len(items) == 0 {
		return failed(), nil
	}
	paramKey := sub.InputNames()[0]

	outputs := make([]any, 0, len(items))
	for _, item := range items {
		subState, err := sub.Invoke(ctx, map[string]any{paramKey: item})
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(subState.Outputs)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, string(raw))
	}

	return &execResult{delta: resultDelta(&NodeResult{
		NodeData: e.data,
		Status:   StatusSucceeded,
		Inputs:   inputs,
		Outputs:  map[string]any{"outputs": outputs},
		Latency:  time.Since(startAt).Seconds(),
	})}, nil
}

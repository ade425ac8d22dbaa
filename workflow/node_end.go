package workflow

import (
	"context"
	"time"
)

// endExecutor copies the declared outputs from state into the run's final
// outputs. It is the terminal node; no edges are followed after it.
type endExecutor struct {
	data *EndNodeData
}

func (e *endExecutor) execute(_ context.Context, state *WorkflowState) (*execResult, error) {
	startAt := time.Now()
	outputs, err := ExtractVariables(e.data.Outputs, state)
	if err != nil {
		return nil, err
	}

	delta := &WorkflowState{
		Outputs: outputs,
		NodeResults: []*NodeResult{{
			NodeData: e.data,
			Status:   StatusSucceeded,
			Inputs:   map[string]any{},
			Outputs:  outputs,
			Latency:  time.Since(startAt).Seconds(),
		}},
	}
	return &execResult{delta: delta}, nil
}

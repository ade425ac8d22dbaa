package workflow

import (
	"context"
	"time"
)

// templateTransformExecutor renders the node template against resolved
// inputs and emits the result as output.
type templateTransformExecutor struct {
	data *TemplateTransformNodeData
}

func (e *templateTransformExecutor) execute(_ context.Context, state *WorkflowState) (*execResult, error) {
	startAt := time.Now()

	inputs, err := ExtractVariables(e.data.Inputs, state)
	if err != nil {
		return nil, err
	}
	rendered, err := renderTemplate(e.data.Template, inputs)
	if err != nil {
		return nil, err
	}

	outputs := map[string]any{"output": rendered}

	return &execResult{delta: resultDelta(&NodeResult{
		NodeData: e.data,
		Status:   StatusSucceeded,
		Inputs:   inputs,
		Outputs:  outputs,
		Latency:  time.Since(startAt).Seconds(),
	})}, nil
}

package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/appflow/types"
)

// startExecutor copies the run inputs into the START node's declared
// output names. A missing required input fails the whole run.
type startExecutor struct {
	data *StartNodeData
}

func (e *startExecutor) execute(_ context.Context, state *WorkflowState) (*execResult, error) {
	startAt := time.Now()
	outputs := make(map[string]any, len(e.data.Inputs))

	for _, input := range e.data.Inputs {
		value, ok := state.Inputs[input.Name]
		if !ok || value == nil {
			if input.Required {
				return nil, types.NewError(types.ErrMissingInput, fmt.Sprintf("工作流参数 %s 未提供", input.Name))
			}
			value = input.Type.ZeroValue()
		}
		outputs[input.Name] = value
	}

	return &execResult{delta: resultDelta(&NodeResult{
		NodeData: e.data,
		Status:   StatusSucceeded,
		Inputs:   state.Inputs,
		Outputs:  outputs,
		Latency:  time.Since(startAt).Seconds(),
	})}, nil
}

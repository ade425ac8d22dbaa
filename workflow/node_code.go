package workflow

import (
	"context"
	"time"

	"github.com/BaSui01/appflow/types"
)

// codeExecutor hands user code to the out-of-process function runner and
// pulls each declared output from the returned mapping with type-default
// fallback.
type codeExecutor struct {
	data   *CodeNodeData
	runner CodeRunner
}

func (e *codeExecutor) execute(ctx context.Context, state *WorkflowState) (*execResult, error) {
	startAt := time.Now()

	inputs, err := ExtractVariables(e.data.Inputs, state)
	if err != nil {
		return nil, err
	}

	if e.runner == nil {
		return nil, types.NewError(types.ErrFail, "代码执行器未配置")
	}
	result, err := e.runner.Run(ctx, e.data.Code, inputs)
	if err != nil {
		return nil, types.WrapError(types.ErrFail, "执行代码出错", err)
	}
	if result == nil {
		return nil, types.NewError(types.ErrFail, "代码节点返回值必须为字典")
	}

	outputs := make(map[string]any, len(e.data.Outputs))
	for _, output := range e.data.Outputs {
		value, ok := result[output.Name]
		if !ok {
			value = output.Type.ZeroValue()
		}
		outputs[output.Name] = value
	}

	return &execResult{delta: resultDelta(&NodeResult{
		NodeData: e.data,
		Status:   StatusSucceeded,
		Inputs:   inputs,
		Outputs:  outputs,
		Latency:  time.Since(startAt).Seconds(),
	})}, nil
}

package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BaSui01/appflow/tools"
	"github.com/BaSui01/appflow/types"
)

// toolExecutor dispatches to a builtin or user-registered API tool. The
// tool is resolved at compile time so a dangling reference surfaces before
// the run starts.
type toolExecutor struct {
	data *ToolNodeData
	tool tools.Tool
}

func newToolExecutor(data *ToolNodeData, deps Deps) (*toolExecutor, error) {
	if deps.Tools == nil {
		return nil, types.NewError(types.ErrNotFound, "工具注册表未配置")
	}
	tool, ok := deps.Tools.Get(data.ProviderID, data.ToolID)
	if !ok {
		switch data.ToolType {
		case ToolAPI:
			return nil, types.NewError(types.ErrNotFound, "该API扩展插件不存在，请核实重试")
		default:
			return nil, types.NewError(types.ErrNotFound, "该内置插件扩展不存在，请核实后重试")
		}
	}
	return &toolExecutor{data: data, tool: tool}, nil
}

func (e *toolExecutor) execute(ctx context.Context, state *WorkflowState) (*execResult, error) {
	startAt := time.Now()

	inputs, err := ExtractVariables(e.data.Inputs, state)
	if err != nil {
		return nil, err
	}

	// 节点预设参数与解析出的输入合并，输入优先。
	args := make(map[string]any, len(e.data.Params)+len(inputs))
	for k, v := range e.data.Params {
		args[k] = v
	}
	for k, v := range inputs {
		args[k] = v
	}

	result, err := e.tool.Invoke(ctx, args)
	if err != nil {
		return nil, types.WrapError(types.ErrToolInvoke, "扩展插件执行失败，请稍后尝试", err)
	}

	text, ok := result.(string)
	if !ok {
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, types.WrapError(types.ErrToolInvoke, "扩展插件结果序列化失败", err)
		}
		text = string(raw)
	}

	outputs := map[string]any{}
	if len(e.data.Outputs) > 0 {
		outputs[e.data.Outputs[0].Name] = text
	} else {
		outputs["text"] = text
	}

	return &execResult{delta: resultDelta(&NodeResult{
		NodeData: e.data,
		Status:   StatusSucceeded,
		Inputs:   inputs,
		Outputs:  outputs,
		Latency:  time.Since(startAt).Seconds(),
	})}, nil
}

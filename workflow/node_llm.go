package workflow

import (
	"context"
	"time"

	"github.com/BaSui01/appflow/llm"
	"github.com/BaSui01/appflow/types"
)

// llmExecutor resolves inputs, renders the prompt template with them and
// invokes the configured model synchronously, accumulating streamed deltas
// into one output string.
type llmExecutor struct {
	data    *LLMNodeData
	factory ModelFactory
}

func (e *llmExecutor) execute(ctx context.Context, state *WorkflowState) (*execResult, error) {
	startAt := time.Now()

	inputs, err := ExtractVariables(e.data.Inputs, state)
	if err != nil {
		return nil, err
	}

	prompt, err := renderTemplate(e.data.Prompt, inputs)
	if err != nil {
		return nil, err
	}

	if e.factory == nil {
		return nil, types.NewError(types.ErrModelInvoke, "模型调用能力未配置")
	}
	model, err := e.factory(e.data.ModelConfig)
	if err != nil {
		return nil, types.WrapError(types.ErrModelInvoke, "创建模型客户端失败", err)
	}

	chunks, err := model.Stream(ctx, []llm.Message{llm.NewUserMessage(prompt)})
	if err != nil {
		return nil, types.WrapError(types.ErrModelInvoke, "模型调用失败", err)
	}
	content := ""
	for chunk := range chunks {
		content += chunk.Content
	}

	outputs := map[string]any{}
	if len(e.data.Outputs) > 0 {
		outputs[e.data.Outputs[0].Name] = content
	} else {
		outputs["output"] = content
	}

	return &execResult{delta: resultDelta(&NodeResult{
		NodeData: e.data,
		Status:   StatusSucceeded,
		Inputs:   inputs,
		Outputs:  outputs,
		Latency:  time.Since(startAt).Seconds(),
	})}, nil
}

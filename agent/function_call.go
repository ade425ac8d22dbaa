package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/appflow/internal/metrics"
	"github.com/BaSui01/appflow/llm"
	"github.com/BaSui01/appflow/tools"
	"github.com/BaSui01/appflow/types"
)

// FunctionCallAgent 基于模型原生工具调用的推理策略。每轮流式生成
// 一条助手消息，若消息携带工具调用则逐个执行并将观察结果写回消息
// 列表进入下一轮，否则本轮内容即为最终回复。
type FunctionCallAgent struct {
	baseAgent
}

// NewFunctionCallAgent 创建原生工具调用智能体。模型必须具备
// tool_call 能力，否则应改用 ReActAgent。
func NewFunctionCallAgent(model llm.Model, config AgentConfig, queue *QueueManager, logger *zap.Logger, collector *metrics.Collector) (*FunctionCallAgent, error) {
	if model != nil && !model.Features().Has(llm.FeatureToolCall) {
		return nil, types.NewValidateError("该模型不支持原生工具调用，请使用 ReAct 智能体")
	}
	base, err := newBaseAgent(model, config, queue, logger, collector, "function_call")
	if err != nil {
		return nil, err
	}
	if len(config.Tools) > 0 {
		model.BindTools(tools.Schemas(config.Tools))
	}
	return &FunctionCallAgent{baseAgent: base}, nil
}

// Stream 启动推理并返回事件流。
func (a *FunctionCallAgent) Stream(ctx context.Context, input AgentInput) (uuid.UUID, <-chan *AgentThought, error) {
	return a.stream(ctx, input, a.run)
}

func (a *FunctionCallAgent) run(ctx context.Context, taskID uuid.UUID, messages []llm.Message) {
	for iteration := 1; ; iteration++ {
		if iteration > a.config.MaxIterationCount {
			a.publishMaxIteration(ctx, taskID, messages)
			return
		}
		a.metrics.IncAgentIteration(a.strategy)

		startAt := time.Now()
		ch, err := a.model.Stream(ctx, messages)
		if err != nil {
			a.queue.PublishError(ctx, taskID, wrapModelError(err))
			return
		}

		thoughtID := uuid.New()
		var chunks []llm.Chunk
		for chunk := range ch {
			chunks = append(chunks, chunk)
			if chunk.Content != "" {
				a.publishDelta(ctx, taskID, thoughtID, chunk.Content)
			}
		}
		gathered := llm.Gather(chunks)
		latency := time.Since(startAt).Seconds()

		if len(gathered.ToolCalls) == 0 {
			a.publishFinal(ctx, taskID, thoughtID, messages, gathered, latency)
			return
		}

		// 工具调用轮：先发布推理过程事件，再逐个执行
		rawCalls, _ := json.Marshal(gathered.ToolCalls)
		thought := a.usage(messages, gathered)
		thought.ID = thoughtID
		thought.TaskID = taskID
		thought.Event = EventAgentThought
		thought.Thought = string(rawCalls)
		thought.Latency = latency
		a.queue.Publish(ctx, taskID, thought)

		messages = append(messages, gathered)
		for _, call := range gathered.ToolCalls {
			args := map[string]any{}
			if len(call.Arguments) > 0 {
				if err := json.Unmarshal(call.Arguments, &args); err != nil {
					a.logger.Warn("工具调用参数解析失败",
						zap.String("tool", call.Name), zap.Error(err))
				}
			}
			observation := a.invokeTool(ctx, taskID, call.Name, args)
			messages = append(messages, llm.NewToolMessage(call.ID, call.Name, observation))
		}
	}
}

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/appflow/internal/metrics"
	"github.com/BaSui01/appflow/llm"
	"github.com/BaSui01/appflow/tools"
	"github.com/BaSui01/appflow/types"
)

const (
	defaultMaxIterationCount = 5

	// 迭代次数耗尽时返回的兜底回复
	maxIterationResponse = "对不起，当前需要的推理步骤超出了限制，我无法完成此次请求，请尝试简化问题后重试。"

	// 知识库检索工具使用独立事件类型，便于前端单独渲染召回过程
	datasetRetrievalToolName = "dataset_retrieval"
)

// agentSystemPromptTemplate 智能体系统提示词，预设提示与长期记忆按位注入。
const agentSystemPromptTemplate = `你是一个由 AppFlow 驱动的智能助理，请根据预设提示回复用户的问题，并且结合长期记忆中的内容辅助回答。

<预设提示>
%s
</预设提示>

<长期记忆>
%s
</长期记忆>`

// ReviewConfig 输出审查配置。启用后命中关键词的片段在发布前替换为 **。
type ReviewConfig struct {
	Enable   bool     `json:"enable" yaml:"enable"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// AgentConfig 智能体运行配置
type AgentConfig struct {
	UserID               uuid.UUID
	InvokeFrom           InvokeFrom
	PresetPrompt         string
	EnableLongTermMemory bool
	Tools                []tools.Tool
	MaxIterationCount    int
	Review               ReviewConfig
}

// AgentInput 单次会话输入。TaskID 为零值时自动生成。
type AgentInput struct {
	TaskID         uuid.UUID
	Query          string
	History        []llm.Message
	LongTermMemory string
}

// Agent 智能体流式执行入口。返回的 taskID 用于后续的停止请求，
// 事件通道由队列管理器驱动，终止事件后关闭。
type Agent interface {
	Stream(ctx context.Context, input AgentInput) (uuid.UUID, <-chan *AgentThought, error)
}

// baseAgent 两种推理策略共享的骨架：提示词组装、历史校验、输出审查、
// 工具分发与统计发布。
type baseAgent struct {
	model    llm.Model
	config   AgentConfig
	queue    *QueueManager
	logger   *zap.Logger
	metrics  *metrics.Collector
	strategy string

	reviewPatterns []*regexp.Regexp
}

func newBaseAgent(model llm.Model, config AgentConfig, queue *QueueManager, logger *zap.Logger, collector *metrics.Collector, strategy string) (baseAgent, error) {
	if model == nil {
		return baseAgent{}, types.NewValidateError("智能体模型不能为空")
	}
	if queue == nil {
		return baseAgent{}, types.NewValidateError("智能体队列管理器不能为空")
	}
	if config.MaxIterationCount <= 0 {
		config.MaxIterationCount = defaultMaxIterationCount
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var patterns []*regexp.Regexp
	if config.Review.Enable {
		for _, keyword := range config.Review.Keywords {
			if keyword == "" {
				continue
			}
			patterns = append(patterns, regexp.MustCompile("(?i)"+regexp.QuoteMeta(keyword)))
		}
	}

	return baseAgent{
		model:          model,
		config:         config,
		queue:          queue,
		logger:         logger.With(zap.String("component", "agent"), zap.String("strategy", strategy)),
		metrics:        collector,
		strategy:       strategy,
		reviewPatterns: patterns,
	}, nil
}

// redact 对输出增量做关键词审查，命中部分替换为 **。
func (a *baseAgent) redact(s string) string {
	for _, pattern := range a.reviewPatterns {
		s = pattern.ReplaceAllString(s, "**")
	}
	return s
}

// validateHistory 校验历史消息必须为 user/assistant 成对交替出现。
func validateHistory(history []llm.Message) error {
	if len(history)%2 != 0 {
		return types.NewValidateError("智能体历史消息列表格式错误，必须为人类消息与 AI 消息成对出现")
	}
	for i := 0; i < len(history); i += 2 {
		if history[i].Role != llm.RoleUser || history[i+1].Role != llm.RoleAssistant {
			return types.NewValidateError("智能体历史消息列表格式错误，必须为人类消息与 AI 消息成对出现")
		}
	}
	return nil
}

// stream 公共入口：组装初始消息并派生工作协程，事件经队列回流。
// run 为策略各自的推理循环。
func (a *baseAgent) stream(ctx context.Context, input AgentInput, run func(ctx context.Context, taskID uuid.UUID, messages []llm.Message)) (uuid.UUID, <-chan *AgentThought, error) {
	if err := validateHistory(input.History); err != nil {
		return uuid.Nil, nil, err
	}

	taskID := input.TaskID
	if taskID == uuid.Nil {
		taskID = uuid.New()
	}
	out := a.queue.Listen(ctx, taskID)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("智能体工作协程发生异常",
					zap.String("task_id", taskID.String()), zap.Any("panic", r))
				a.queue.PublishError(ctx, taskID,
					types.NewError(types.ErrInternalError, fmt.Sprintf("智能体执行异常: %v", r)))
			}
		}()

		memory := ""
		if a.config.EnableLongTermMemory {
			memory = input.LongTermMemory
			a.queue.Publish(ctx, taskID, &AgentThought{
				ID:          uuid.New(),
				TaskID:      taskID,
				Event:       EventLongTermMemoryRecall,
				Observation: memory,
			})
		}

		messages := make([]llm.Message, 0, len(input.History)+2)
		messages = append(messages, llm.NewSystemMessage(
			fmt.Sprintf(agentSystemPromptTemplate, a.config.PresetPrompt, memory)))
		messages = append(messages, input.History...)
		messages = append(messages, llm.NewUserMessage(input.Query))

		run(ctx, taskID, messages)
	}()

	return taskID, out, nil
}

// usage 基于模型定价计算本轮的 token 与费用统计。
func (a *baseAgent) usage(messages []llm.Message, answer llm.Message) (thought *AgentThought) {
	pricing := a.model.Pricing()
	messageTokens := a.model.GetNumTokens(messages)
	answerTokens := a.model.GetNumTokens([]llm.Message{answer})

	return &AgentThought{
		Message:           messages,
		MessageTokenCount: messageTokens,
		MessageUnitPrice:  pricing.InputPrice,
		MessagePriceUnit:  pricing.Unit,
		AnswerTokenCount:  answerTokens,
		AnswerUnitPrice:   pricing.OutputPrice,
		AnswerPriceUnit:   pricing.Unit,
		TotalTokenCount:   messageTokens + answerTokens,
		TotalPrice: (float64(messageTokens)*pricing.InputPrice +
			float64(answerTokens)*pricing.OutputPrice) * pricing.Unit,
	}
}

// publishDelta 发布一条经过审查的增量消息。同一轮生成的增量共用
// thoughtID，消费方按 ID 拼接。
func (a *baseAgent) publishDelta(ctx context.Context, taskID, thoughtID uuid.UUID, delta string) {
	delta = a.redact(delta)
	a.queue.Publish(ctx, taskID, &AgentThought{
		ID:      thoughtID,
		TaskID:  taskID,
		Event:   EventAgentMessage,
		Thought: delta,
		Answer:  delta,
	})
}

// publishFinal 发布携带统计信息的收尾消息与 agent_end 事件。
func (a *baseAgent) publishFinal(ctx context.Context, taskID, thoughtID uuid.UUID, messages []llm.Message, answer llm.Message, latency float64) {
	stats := a.usage(messages, answer)
	stats.ID = thoughtID
	stats.TaskID = taskID
	stats.Event = EventAgentMessage
	stats.Latency = latency
	a.queue.Publish(ctx, taskID, stats)

	a.queue.Publish(ctx, taskID, &AgentThought{
		ID:     uuid.New(),
		TaskID: taskID,
		Event:  EventAgentEnd,
	})
}

// publishMaxIteration 迭代耗尽时发布兜底回复并结束。
func (a *baseAgent) publishMaxIteration(ctx context.Context, taskID uuid.UUID, messages []llm.Message) {
	a.logger.Warn("智能体推理达到最大迭代次数", zap.String("task_id", taskID.String()),
		zap.Int("max_iteration_count", a.config.MaxIterationCount))

	thoughtID := uuid.New()
	a.publishDelta(ctx, taskID, thoughtID, maxIterationResponse)
	a.publishFinal(ctx, taskID, thoughtID, messages,
		llm.NewAssistantMessage(maxIterationResponse), 0)
}

// wrapModelError 统一包装模型调用错误。
func wrapModelError(err error) error {
	return types.WrapError(types.ErrModelInvoke, "模型调用失败", err)
}

// findTool 在配置的工具列表中按名称查找。
func (a *baseAgent) findTool(name string) (tools.Tool, bool) {
	for _, t := range a.config.Tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// invokeTool 执行一次工具调用并发布对应事件，返回写回消息列表的
// 观察结果。工具失败不会中断推理循环，错误文本作为观察结果回传
// 给模型自行修正。
func (a *baseAgent) invokeTool(ctx context.Context, taskID uuid.UUID, name string, args map[string]any) string {
	event := EventAgentAction
	if name == datasetRetrievalToolName || strings.HasSuffix(name, "_"+datasetRetrievalToolName) {
		event = EventDatasetRetrieval
	}

	observation := ""
	t, ok := a.findTool(name)
	if !ok {
		observation = fmt.Sprintf("工具 %s 不存在", name)
	} else {
		result, err := t.Invoke(ctx, args)
		if err != nil {
			a.logger.Warn("工具调用失败", zap.String("tool", name), zap.Error(err))
			observation = fmt.Sprintf("工具调用失败: %v", err)
		} else {
			observation = stringifyToolResult(result)
		}
	}

	a.queue.Publish(ctx, taskID, &AgentThought{
		ID:          uuid.New(),
		TaskID:      taskID,
		Event:       event,
		Tool:        name,
		ToolInput:   args,
		Observation: observation,
	})
	return observation
}

// stringifyToolResult 将任意工具返回值转为写回模型的文本。
func stringifyToolResult(result any) string {
	switch v := result.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}

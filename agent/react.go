package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/appflow/internal/metrics"
	"github.com/BaSui01/appflow/llm"
	"github.com/BaSui01/appflow/tools"
)

// reactSystemPromptTemplate ReAct 策略系统提示词。要求模型在需要
// 调用工具时输出 json 代码块，否则直接输出普通回复。预设提示、
// 长期记忆与工具说明按位注入。
const reactSystemPromptTemplate = `你是一个由 AppFlow 驱动的智能助理，请根据预设提示回复用户的问题，并且结合长期记忆中的内容辅助回答。

你可以使用下列工具，当你判断需要调用工具时，必须只输出如下格式的 json 代码块，不要附加任何其他文字:

` + "```json\n{\"name\": \"工具名称\", \"args\": {\"参数名\": \"参数值\"}}\n```" + `

如果不需要调用工具，请直接输出普通文本回复用户。

<预设提示>
%s
</预设提示>

<长期记忆>
%s
</长期记忆>

<工具说明>
%s
</工具说明>`

// minReactDecisionLen 累计到该数量的非空白字符后才能判定本轮输出是
// 工具调用还是普通回复，恰好覆盖 json 代码块的起始围栏。
const minReactDecisionLen = 7

var reactJSONBlockPattern = regexp.MustCompile("(?s)```json(.*?)```")

// ReActAgent 面向不支持原生工具调用的模型的推理策略。通过提示词
// 约定模型以 json 代码块表达工具调用，每轮最多解析一条合成调用，
// 解析失败时降级为普通回复。
type ReActAgent struct {
	baseAgent

	// 模型具备原生工具调用能力时直接复用 function_call 策略
	native *FunctionCallAgent
}

// NewReActAgent 创建 ReAct 智能体。
func NewReActAgent(model llm.Model, config AgentConfig, queue *QueueManager, logger *zap.Logger, collector *metrics.Collector) (*ReActAgent, error) {
	if model != nil && model.Features().Has(llm.FeatureToolCall) {
		native, err := NewFunctionCallAgent(model, config, queue, logger, collector)
		if err != nil {
			return nil, err
		}
		return &ReActAgent{baseAgent: native.baseAgent, native: native}, nil
	}

	base, err := newBaseAgent(model, config, queue, logger, collector, "react")
	if err != nil {
		return nil, err
	}
	return &ReActAgent{baseAgent: base}, nil
}

// Stream 启动推理并返回事件流。
func (a *ReActAgent) Stream(ctx context.Context, input AgentInput) (uuid.UUID, <-chan *AgentThought, error) {
	if a.native != nil {
		return a.native.Stream(ctx, input)
	}
	return a.stream(ctx, input, a.run)
}

// stream 覆盖基础实现，将工具说明注入系统提示词。
func (a *ReActAgent) stream(ctx context.Context, input AgentInput, run func(ctx context.Context, taskID uuid.UUID, messages []llm.Message)) (uuid.UUID, <-chan *AgentThought, error) {
	return a.baseAgent.stream(ctx, input, func(ctx context.Context, taskID uuid.UUID, messages []llm.Message) {
		memory := ""
		if a.config.EnableLongTermMemory {
			memory = input.LongTermMemory
		}
		messages[0] = llm.NewSystemMessage(fmt.Sprintf(reactSystemPromptTemplate,
			a.config.PresetPrompt, memory, tools.RenderDescriptions(a.config.Tools)))
		run(ctx, taskID, messages)
	})
}

func (a *ReActAgent) run(ctx context.Context, taskID uuid.UUID, messages []llm.Message) {
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
		var full strings.Builder
		pending := ""
		decided := false
		isThought := false

		for chunk := range ch {
			full.WriteString(chunk.Content)
			if decided {
				if !isThought && chunk.Content != "" {
					a.publishDelta(ctx, taskID, thoughtID, chunk.Content)
				}
				continue
			}
			pending += chunk.Content
			if len([]rune(compactWhitespace(pending))) < minReactDecisionLen {
				continue
			}
			decided = true
			isThought = strings.HasPrefix(compactWhitespace(pending), "```json")
			if !isThought {
				a.publishDelta(ctx, taskID, thoughtID, pending)
			}
		}

		content := full.String()
		latency := time.Since(startAt).Seconds()

		if !decided && content != "" {
			// 短输出未达判定阈值，按普通回复处理
			a.publishDelta(ctx, taskID, thoughtID, content)
		}
		if !decided || !isThought {
			a.publishFinal(ctx, taskID, thoughtID, messages, llm.NewAssistantMessage(content), latency)
			return
		}

		name, args, err := parseReActToolCall(content)
		if err != nil {
			// 解析失败降级为普通回复
			a.logger.Warn("ReAct 工具调用解析失败", zap.String("task_id", taskID.String()), zap.Error(err))
			a.publishDelta(ctx, taskID, thoughtID, content)
			a.publishFinal(ctx, taskID, thoughtID, messages, llm.NewAssistantMessage(content), latency)
			return
		}

		thought := a.usage(messages, llm.NewAssistantMessage(content))
		thought.ID = thoughtID
		thought.TaskID = taskID
		thought.Event = EventAgentThought
		thought.Thought = content
		thought.Latency = latency
		a.queue.Publish(ctx, taskID, thought)

		// 每轮最多合成一条工具调用
		rawArgs, _ := json.Marshal(args)
		call := llm.ToolCall{ID: uuid.NewString(), Name: name, Arguments: rawArgs}
		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   content,
			ToolCalls: []llm.ToolCall{call},
		})
		observation := a.invokeTool(ctx, taskID, name, args)
		messages = append(messages, llm.NewToolMessage(call.ID, name, observation))
	}
}

// parseReActToolCall 从 json 代码块中解析工具调用。
func parseReActToolCall(content string) (string, map[string]any, error) {
	match := reactJSONBlockPattern.FindStringSubmatch(content)
	if match == nil {
		return "", nil, fmt.Errorf("输出中不包含 json 代码块")
	}
	var call struct {
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(match[1])), &call); err != nil {
		return "", nil, fmt.Errorf("json 代码块解析失败: %w", err)
	}
	if call.Name == "" {
		return "", nil, fmt.Errorf("工具调用缺少 name 字段")
	}
	if call.Args == nil {
		call.Args = map[string]any{}
	}
	return call.Name, call.Args, nil
}

// compactWhitespace 去除所有空白字符，用于前缀判定。
func compactWhitespace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

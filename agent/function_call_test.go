package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/appflow/llm"
	"github.com/BaSui01/appflow/tools"
)

func filterEvents(thoughts []*AgentThought, event QueueEvent) []*AgentThought {
	var out []*AgentThought
	for _, thought := range thoughts {
		if thought.Event == event {
			out = append(out, thought)
		}
	}
	return out
}

func joinAnswers(thoughts []*AgentThought) string {
	answer := ""
	for _, thought := range filterEvents(thoughts, EventAgentMessage) {
		answer += thought.Answer
	}
	return answer
}

func newFunctionCallAgent(t *testing.T, model *scriptModel, config AgentConfig) *FunctionCallAgent {
	t.Helper()
	queue := NewQueueManager(uuid.New(), InvokeFromDebugger, newTestStore(t), nil, nil)
	ag, err := NewFunctionCallAgent(model, config, queue, nil, nil)
	require.NoError(t, err)
	return ag
}

func TestNewFunctionCallAgent_RequiresToolCallFeature(t *testing.T) {
	queue := NewQueueManager(uuid.New(), InvokeFromDebugger, newTestStore(t), nil, nil)
	model := &scriptModel{features: llm.NewFeatureSet()}

	_, err := NewFunctionCallAgent(model, AgentConfig{}, queue, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ReAct")
}

func TestNewFunctionCallAgent_BindsTools(t *testing.T) {
	model := &scriptModel{features: llm.NewFeatureSet(llm.FeatureToolCall)}
	newFunctionCallAgent(t, model, AgentConfig{Tools: []tools.Tool{tools.NewCalculatorTool()}})

	require.Len(t, model.bound, 1)
	assert.Equal(t, "calculator", model.bound[0].Name)
}

func TestFunctionCallAgent_Stream(t *testing.T) {
	model := &scriptModel{
		features: llm.NewFeatureSet(llm.FeatureToolCall),
		turns: [][]llm.Chunk{
			{
				{Content: "让我算一下"},
				{ToolCalls: []llm.ToolCall{{
					ID: "call_1", Name: "calculator",
					Arguments: json.RawMessage(`{"expression":"3 * 4"}`),
				}}},
			},
			textChunks("结果", "是 12"),
		},
	}
	ag := newFunctionCallAgent(t, model, AgentConfig{Tools: []tools.Tool{tools.NewCalculatorTool()}})

	taskID, out, err := ag.Stream(context.Background(), AgentInput{Query: "3 乘 4 等于多少"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, taskID)

	thoughts := collectThoughts(t, out, 5*time.Second)

	actions := filterEvents(thoughts, EventAgentAction)
	require.Len(t, actions, 1)
	assert.Equal(t, "calculator", actions[0].Tool)
	assert.Equal(t, "3 * 4", actions[0].ToolInput["expression"])
	assert.Equal(t, "12", actions[0].Observation)

	reasoning := filterEvents(thoughts, EventAgentThought)
	require.Len(t, reasoning, 1)
	assert.Contains(t, reasoning[0].Thought, "calculator")

	assert.Contains(t, joinAnswers(thoughts), "结果是 12")
	require.Len(t, filterEvents(thoughts, EventAgentEnd), 1)
	assert.Equal(t, 2, model.calls)
}

func TestFunctionCallAgent_PlainAnswer(t *testing.T) {
	model := &scriptModel{
		features: llm.NewFeatureSet(llm.FeatureToolCall),
		turns:    [][]llm.Chunk{textChunks("你好", "，有什么可以帮你？")},
		tokens:   5,
		pricing:  llm.Pricing{InputPrice: 1, OutputPrice: 1, Unit: 0.001},
	}
	ag := newFunctionCallAgent(t, model, AgentConfig{})

	_, out, err := ag.Stream(context.Background(), AgentInput{Query: "你好"})
	require.NoError(t, err)
	thoughts := collectThoughts(t, out, 5*time.Second)

	assert.Equal(t, "你好，有什么可以帮你？", joinAnswers(thoughts))
	assert.Empty(t, filterEvents(thoughts, EventAgentAction))

	// 收尾消息携带统计信息
	messages := filterEvents(thoughts, EventAgentMessage)
	final := messages[len(messages)-1]
	assert.Equal(t, 10, final.TotalTokenCount)
	assert.Greater(t, final.Latency, 0.0)
	assert.Equal(t, 1, model.calls)
}

func TestFunctionCallAgent_MaxIteration(t *testing.T) {
	// 模型每轮都要求调用工具，推理次数被上限截断
	model := &scriptModel{
		features: llm.NewFeatureSet(llm.FeatureToolCall),
		turns: [][]llm.Chunk{{
			{ToolCalls: []llm.ToolCall{{
				ID: "call_loop", Name: "calculator",
				Arguments: json.RawMessage(`{"expression":"1 + 1"}`),
			}}},
		}},
	}
	ag := newFunctionCallAgent(t, model, AgentConfig{
		Tools:             []tools.Tool{tools.NewCalculatorTool()},
		MaxIterationCount: 2,
	})

	_, out, err := ag.Stream(context.Background(), AgentInput{Query: "循环"})
	require.NoError(t, err)
	thoughts := collectThoughts(t, out, 5*time.Second)

	assert.Contains(t, joinAnswers(thoughts), maxIterationResponse)
	assert.Len(t, filterEvents(thoughts, EventAgentAction), 2)
	assert.Equal(t, 2, model.calls)
}

func TestFunctionCallAgent_UnknownTool(t *testing.T) {
	model := &scriptModel{
		features: llm.NewFeatureSet(llm.FeatureToolCall),
		turns: [][]llm.Chunk{
			{{ToolCalls: []llm.ToolCall{{ID: "c", Name: "no_such_tool", Arguments: json.RawMessage(`{}`)}}}},
			textChunks("好的"),
		},
	}
	ag := newFunctionCallAgent(t, model, AgentConfig{})

	_, out, err := ag.Stream(context.Background(), AgentInput{Query: "q"})
	require.NoError(t, err)
	thoughts := collectThoughts(t, out, 5*time.Second)

	actions := filterEvents(thoughts, EventAgentAction)
	require.Len(t, actions, 1)
	assert.Contains(t, actions[0].Observation, "不存在")
}

func TestFunctionCallAgent_InvalidHistory(t *testing.T) {
	model := &scriptModel{features: llm.NewFeatureSet(llm.FeatureToolCall)}
	ag := newFunctionCallAgent(t, model, AgentConfig{})

	_, _, err := ag.Stream(context.Background(), AgentInput{
		Query:   "q",
		History: []llm.Message{llm.NewUserMessage("孤立消息")},
	})
	require.Error(t, err)
}

func TestFunctionCallAgent_LongTermMemoryRecall(t *testing.T) {
	model := &scriptModel{
		features: llm.NewFeatureSet(llm.FeatureToolCall),
		turns:    [][]llm.Chunk{textChunks("好的")},
	}
	ag := newFunctionCallAgent(t, model, AgentConfig{EnableLongTermMemory: true})

	_, out, err := ag.Stream(context.Background(), AgentInput{
		Query:          "q",
		LongTermMemory: "用户喜欢简短回答",
	})
	require.NoError(t, err)
	thoughts := collectThoughts(t, out, 5*time.Second)

	recalls := filterEvents(thoughts, EventLongTermMemoryRecall)
	require.Len(t, recalls, 1)
	assert.Equal(t, "用户喜欢简短回答", recalls[0].Observation)

	// 长期记忆注入系统提示词
	require.NotEmpty(t, model.seen)
	assert.Contains(t, model.seen[0][0].Content, "用户喜欢简短回答")
}

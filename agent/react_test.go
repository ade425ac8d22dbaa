package agent

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/appflow/llm"
	"github.com/BaSui01/appflow/tools"
)

func newReActAgent(t *testing.T, model *scriptModel, config AgentConfig) *ReActAgent {
	t.Helper()
	queue := NewQueueManager(uuid.New(), InvokeFromDebugger, newTestStore(t), nil, nil)
	ag, err := NewReActAgent(model, config, queue, nil, nil)
	require.NoError(t, err)
	return ag
}

func TestNewReActAgent_DelegatesToNativeToolCall(t *testing.T) {
	native := &scriptModel{features: llm.NewFeatureSet(llm.FeatureToolCall)}
	ag := newReActAgent(t, native, AgentConfig{})
	assert.NotNil(t, ag.native)

	plain := &scriptModel{features: llm.NewFeatureSet()}
	ag = newReActAgent(t, plain, AgentConfig{})
	assert.Nil(t, ag.native)
}

func TestParseReActToolCall(t *testing.T) {
	t.Run("well-formed block", func(t *testing.T) {
		name, args, err := parseReActToolCall("思考过程\n```json\n{\"name\": \"calculator\", \"args\": {\"expression\": \"3 * 4\"}}\n```")
		require.NoError(t, err)
		assert.Equal(t, "calculator", name)
		assert.Equal(t, "3 * 4", args["expression"])
	})

	t.Run("missing args defaults to empty map", func(t *testing.T) {
		name, args, err := parseReActToolCall("```json\n{\"name\": \"current_time\"}\n```")
		require.NoError(t, err)
		assert.Equal(t, "current_time", name)
		assert.NotNil(t, args)
		assert.Empty(t, args)
	})

	t.Run("no code block", func(t *testing.T) {
		_, _, err := parseReActToolCall("纯文本回复")
		require.Error(t, err)
	})

	t.Run("broken json", func(t *testing.T) {
		_, _, err := parseReActToolCall("```json\n{broken\n```")
		require.Error(t, err)
	})

	t.Run("missing name", func(t *testing.T) {
		_, _, err := parseReActToolCall("```json\n{\"args\": {}}\n```")
		require.Error(t, err)
	})
}

func TestReActAgent_ToolCallRound(t *testing.T) {
	model := &scriptModel{
		features: llm.NewFeatureSet(),
		turns: [][]llm.Chunk{
			textChunks("```", "json\n", `{"name": "calculator", `, `"args": {"expression": "3 * 4"}}`, "\n```"),
			textChunks("计算结果", "是 12"),
		},
	}
	ag := newReActAgent(t, model, AgentConfig{Tools: []tools.Tool{tools.NewCalculatorTool()}})

	_, out, err := ag.Stream(context.Background(), AgentInput{Query: "3 乘 4 等于多少"})
	require.NoError(t, err)
	thoughts := collectThoughts(t, out, 5*time.Second)

	reasoning := filterEvents(thoughts, EventAgentThought)
	require.Len(t, reasoning, 1)
	assert.Contains(t, reasoning[0].Thought, "calculator")

	actions := filterEvents(thoughts, EventAgentAction)
	require.Len(t, actions, 1)
	assert.Equal(t, "calculator", actions[0].Tool)
	assert.Equal(t, "12", actions[0].Observation)

	// json 代码块不进入用户可见的消息流
	answer := joinAnswers(thoughts)
	assert.NotContains(t, answer, "```json")
	assert.Contains(t, answer, "计算结果是 12")

	assert.Equal(t, 2, model.calls)

	// 工具说明注入 ReAct 系统提示词
	require.NotEmpty(t, model.seen)
	assert.Contains(t, model.seen[0][0].Content, "calculator")
	assert.Contains(t, model.seen[0][0].Content, "<工具说明>")

	// 第二轮消息列表携带合成的工具调用与观察结果
	secondTurn := model.seen[1]
	toolMsg := secondTurn[len(secondTurn)-1]
	assert.Equal(t, llm.RoleTool, toolMsg.Role)
	assert.Equal(t, "12", toolMsg.Content)
	assistantMsg := secondTurn[len(secondTurn)-2]
	require.Len(t, assistantMsg.ToolCalls, 1)
	assert.Equal(t, "calculator", assistantMsg.ToolCalls[0].Name)
}

func TestReActAgent_ParseFailureDegradesToMessage(t *testing.T) {
	model := &scriptModel{
		features: llm.NewFeatureSet(),
		turns:    [][]llm.Chunk{textChunks("```json\n", "{broken\n", "```")},
	}
	ag := newReActAgent(t, model, AgentConfig{Tools: []tools.Tool{tools.NewCalculatorTool()}})

	_, out, err := ag.Stream(context.Background(), AgentInput{Query: "q"})
	require.NoError(t, err)
	thoughts := collectThoughts(t, out, 5*time.Second)

	assert.Empty(t, filterEvents(thoughts, EventAgentAction))
	assert.Empty(t, filterEvents(thoughts, EventAgentThought))
	assert.Contains(t, joinAnswers(thoughts), "{broken")
	require.Len(t, filterEvents(thoughts, EventAgentEnd), 1)
	assert.Equal(t, 1, model.calls, "degraded round must not loop")
}

func TestReActAgent_ShortAnswer(t *testing.T) {
	// 输出不足判定阈值，整段按普通回复发布
	model := &scriptModel{
		features: llm.NewFeatureSet(),
		turns:    [][]llm.Chunk{textChunks("你好")},
	}
	ag := newReActAgent(t, model, AgentConfig{})

	_, out, err := ag.Stream(context.Background(), AgentInput{Query: "hi"})
	require.NoError(t, err)
	thoughts := collectThoughts(t, out, 5*time.Second)

	assert.Equal(t, "你好", joinAnswers(thoughts))
	require.Len(t, filterEvents(thoughts, EventAgentEnd), 1)
}

func TestReActAgent_PlainAnswerStreams(t *testing.T) {
	model := &scriptModel{
		features: llm.NewFeatureSet(),
		turns:    [][]llm.Chunk{textChunks("今天天气", "晴朗，适合", "户外活动。")},
	}
	ag := newReActAgent(t, model, AgentConfig{})

	_, out, err := ag.Stream(context.Background(), AgentInput{Query: "天气怎么样"})
	require.NoError(t, err)
	thoughts := collectThoughts(t, out, 5*time.Second)

	assert.Equal(t, "今天天气晴朗，适合户外活动。", joinAnswers(thoughts))
	assert.Equal(t, 1, model.calls)
}

func TestReActAgent_MaxIteration(t *testing.T) {
	model := &scriptModel{
		features: llm.NewFeatureSet(),
		turns: [][]llm.Chunk{
			textChunks("```json\n", `{"name": "calculator", "args": {"expression": "1 + 1"}}`, "\n```"),
		},
	}
	ag := newReActAgent(t, model, AgentConfig{
		Tools:             []tools.Tool{tools.NewCalculatorTool()},
		MaxIterationCount: 1,
	})

	_, out, err := ag.Stream(context.Background(), AgentInput{Query: "循环"})
	require.NoError(t, err)
	thoughts := collectThoughts(t, out, 5*time.Second)

	assert.Contains(t, joinAnswers(thoughts), maxIterationResponse)
	assert.Len(t, filterEvents(thoughts, EventAgentAction), 1)
	assert.Equal(t, 1, model.calls)
}

package workflow

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/appflow/llm"
	"github.com/BaSui01/appflow/tools"
)

// fakeModel 以固定策略响应的测试模型。
type fakeModel struct {
	respond func(messages []llm.Message) string
}

func (m *fakeModel) Stream(_ context.Context, messages []llm.Message) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk, 1)
	ch <- llm.Chunk{Content: m.respond(messages)}
	close(ch)
	return ch, nil
}

func (m *fakeModel) BindTools([]llm.ToolSchema)     {}
func (m *fakeModel) Features() llm.FeatureSet       { return llm.NewFeatureSet() }
func (m *fakeModel) GetNumTokens([]llm.Message) int { return 0 }
func (m *fakeModel) Pricing() llm.Pricing           { return llm.Pricing{} }

func echoFactory(answer string) ModelFactory {
	return func(ModelNodeConfig) (llm.Model, error) {
		return &fakeModel{respond: func([]llm.Message) string { return answer }}, nil
	}
}

// fakeLoader 以内存映射模拟已发布工作流的加载。
type fakeLoader struct {
	configs map[uuid.UUID]*WorkflowConfig
}

func (l *fakeLoader) LoadPublished(_ context.Context, id uuid.UUID) (*WorkflowConfig, error) {
	config, ok := l.configs[id]
	if !ok {
		return nil, assert.AnError
	}
	return config, nil
}

func rawEdgeWithHandle(t testing.TB, source uuid.UUID, sourceType NodeType, handle uuid.UUID, target uuid.UUID, targetType NodeType) []byte {
	return mustRaw(t, map[string]any{
		"id":               uuid.New(),
		"source":           source,
		"source_type":      sourceType,
		"source_handle_id": handle,
		"target":           target,
		"target_type":      targetType,
	})
}

func mustConfig(t testing.TB, nodes, edges [][]byte) *WorkflowConfig {
	t.Helper()
	rawNodes := make([]json.RawMessage, len(nodes))
	for i, n := range nodes {
		rawNodes[i] = n
	}
	rawEdges := make([]json.RawMessage, len(edges))
	for i, e := range edges {
		rawEdges[i] = e
	}
	config, err := NewWorkflowConfig(uuid.New(), "test_flow", "测试工作流", rawNodes, rawEdges)
	require.NoError(t, err)
	return config
}

func TestRuntimeInvoke_Linear(t *testing.T) {
	startID, llmID, endID := uuid.New(), uuid.New(), uuid.New()
	nodes := [][]byte{
		rawStartNode(t, startID, "开始", map[string]any{
			"name": "query", "type": "string", "required": true,
			"value": map[string]any{"type": "literal"},
		}),
		rawLLMNode(t, llmID, "大模型", "回答: {{.query}}", refInput("query", VarTypeString, startID, "query")),
		rawEndNode(t, endID, "结束", refInput("answer", VarTypeString, llmID, "output")),
	}
	edges := [][]byte{
		rawEdge(t, startID, NodeStart, llmID, NodeLLM),
		rawEdge(t, llmID, NodeLLM, endID, NodeEnd),
	}
	config := mustConfig(t, nodes, edges)

	runtime, err := NewRuntime(config, Deps{ModelFactory: echoFactory("这是答案")})
	require.NoError(t, err)
	assert.Equal(t, []string{"query"}, runtime.InputNames())

	state, err := runtime.Invoke(context.Background(), map[string]any{"query": "你好"})
	require.NoError(t, err)
	assert.Equal(t, "这是答案", state.Outputs["answer"])

	require.Len(t, state.NodeResults, 3)
	assert.Equal(t, NodeStart, state.NodeResults[0].NodeData.Type())
	assert.Equal(t, NodeLLM, state.NodeResults[1].NodeData.Type())
	assert.Equal(t, NodeEnd, state.NodeResults[2].NodeData.Type())
	for _, result := range state.NodeResults {
		assert.Equal(t, StatusSucceeded, result.Status)
	}
}

func TestRuntimeInvoke_MissingRequiredInput(t *testing.T) {
	startID, llmID, endID := uuid.New(), uuid.New(), uuid.New()
	nodes := [][]byte{
		rawStartNode(t, startID, "开始", map[string]any{
			"name": "query", "type": "string", "required": true,
			"value": map[string]any{"type": "literal"},
		}),
		rawLLMNode(t, llmID, "大模型", "p", refInput("query", VarTypeString, startID, "query")),
		rawEndNode(t, endID, "结束"),
	}
	edges := [][]byte{
		rawEdge(t, startID, NodeStart, llmID, NodeLLM),
		rawEdge(t, llmID, NodeLLM, endID, NodeEnd),
	}
	runtime, err := NewRuntime(mustConfig(t, nodes, edges), Deps{ModelFactory: echoFactory("x")})
	require.NoError(t, err)

	state, err := runtime.Invoke(context.Background(), map[string]any{})
	require.Error(t, err)
	require.Len(t, state.NodeResults, 1)
	assert.Equal(t, StatusFailed, state.NodeResults[0].Status)
	assert.NotEmpty(t, state.NodeResults[0].Error)
}

func classifierGraph(t testing.TB) (startID, qcID, llmAID, llmBID, endID, handleA, handleB uuid.UUID, config func(t testing.TB) *WorkflowConfig) {
	startID, qcID = uuid.New(), uuid.New()
	llmAID, llmBID, endID = uuid.New(), uuid.New(), uuid.New()
	handleA, handleB = uuid.New(), uuid.New()

	build := func(t testing.TB) *WorkflowConfig {
		nodes := [][]byte{
			rawStartNode(t, startID, "开始", map[string]any{
				"name": "query", "type": "string", "required": true,
				"value": map[string]any{"type": "literal"},
			}),
			mustRaw(t, map[string]any{
				"id": qcID, "title": "分类器", "node_type": "question_classifier",
				"classes": []map[string]any{
					{"query": "聊聊天气", "source_handle_id": handleA},
					{"query": "算个数学题", "source_handle_id": handleB},
				},
				"inputs": []map[string]any{refInput("query", VarTypeString, startID, "query")},
			}),
			rawLLMNode(t, llmAID, "分支A", "a", refInput("query", VarTypeString, startID, "query")),
			rawLLMNode(t, llmBID, "分支B", "b", refInput("query", VarTypeString, startID, "query")),
			rawEndNode(t, endID, "结束",
				refInput("answer_a", VarTypeString, llmAID, "output"),
				refInput("answer_b", VarTypeString, llmBID, "output"),
			),
		}
		edges := [][]byte{
			rawEdge(t, startID, NodeStart, qcID, NodeQuestionClassifier),
			rawEdgeWithHandle(t, qcID, NodeQuestionClassifier, handleA, llmAID, NodeLLM),
			rawEdgeWithHandle(t, qcID, NodeQuestionClassifier, handleB, llmBID, NodeLLM),
			rawEdge(t, llmAID, NodeLLM, endID, NodeEnd),
			rawEdge(t, llmBID, NodeLLM, endID, NodeEnd),
		}
		return mustConfig(t, nodes, edges)
	}
	return startID, qcID, llmAID, llmBID, endID, handleA, handleB, build
}

// 分类器模型：分类请求回答指定分支，其余请求回答固定文本。
func branchFactory(classifierAnswer, llmAnswer string) ModelFactory {
	return func(ModelNodeConfig) (llm.Model, error) {
		return &fakeModel{respond: func(messages []llm.Message) string {
			if len(messages) > 0 && strings.Contains(messages[0].Content, "问题分类专家") {
				return classifierAnswer
			}
			return llmAnswer
		}}, nil
	}
}

func TestRuntimeInvoke_ClassifierBranch(t *testing.T) {
	_, qcID, llmAID, _, _, _, handleB, build := classifierGraph(t)
	config := build(t)

	runtime, err := NewRuntime(config, Deps{
		ModelFactory: branchFactory(classifierHandleFlag(handleB), "B分支回复"),
	})
	require.NoError(t, err)

	state, err := runtime.Invoke(context.Background(), map[string]any{"query": "算个数学题"})
	require.NoError(t, err)

	// 未选中的分支被跳过，引用回退为零值
	assert.Equal(t, "", state.Outputs["answer_a"])
	assert.Equal(t, "B分支回复", state.Outputs["answer_b"])

	executed := map[uuid.UUID]bool{}
	for _, result := range state.NodeResults {
		executed[result.NodeData.Base().ID] = true
		if result.NodeData.Base().ID == qcID {
			assert.Equal(t, classifierHandleFlag(handleB), result.Outputs["class"])
		}
	}
	assert.False(t, executed[llmAID], "unselected branch must not execute")
}

func TestRuntimeInvoke_ClassifierFallback(t *testing.T) {
	_, _, llmAID, llmBID, _, _, _, build := classifierGraph(t)
	config := build(t)

	// 模型输出不在词表中，确定性回退到第一个分支
	runtime, err := NewRuntime(config, Deps{
		ModelFactory: branchFactory("我不知道", "A分支回复"),
	})
	require.NoError(t, err)

	state, err := runtime.Invoke(context.Background(), map[string]any{"query": "随便聊聊"})
	require.NoError(t, err)
	assert.Equal(t, "A分支回复", state.Outputs["answer_a"])

	executed := map[uuid.UUID]bool{}
	for _, result := range state.NodeResults {
		executed[result.NodeData.Base().ID] = true
	}
	assert.True(t, executed[llmAID])
	assert.False(t, executed[llmBID])
}

func TestRuntimeInvoke_ClassifierEmptyClasses(t *testing.T) {
	startID, qcID := uuid.New(), uuid.New()
	llmAID, llmBID, endID := uuid.New(), uuid.New(), uuid.New()
	handleA, handleB := uuid.New(), uuid.New()

	nodes := [][]byte{
		rawStartNode(t, startID, "开始", map[string]any{
			"name": "query", "type": "string", "required": true,
			"value": map[string]any{"type": "literal"},
		}),
		mustRaw(t, map[string]any{
			"id": qcID, "title": "分类器", "node_type": "question_classifier",
			"classes": []map[string]any{},
			"inputs":  []map[string]any{refInput("query", VarTypeString, startID, "query")},
		}),
		rawLLMNode(t, llmAID, "分支A", "a"),
		rawLLMNode(t, llmBID, "分支B", "b"),
		rawEndNode(t, endID, "结束",
			refInput("answer_a", VarTypeString, llmAID, "output"),
			refInput("answer_b", VarTypeString, llmBID, "output"),
		),
	}
	edges := [][]byte{
		rawEdge(t, startID, NodeStart, qcID, NodeQuestionClassifier),
		rawEdgeWithHandle(t, qcID, NodeQuestionClassifier, handleA, llmAID, NodeLLM),
		rawEdgeWithHandle(t, qcID, NodeQuestionClassifier, handleB, llmBID, NodeLLM),
		rawEdge(t, llmAID, NodeLLM, endID, NodeEnd),
		rawEdge(t, llmBID, NodeLLM, endID, NodeEnd),
	}
	runtime, err := NewRuntime(mustConfig(t, nodes, edges), Deps{ModelFactory: echoFactory("不应被调用")})
	require.NoError(t, err)

	state, err := runtime.Invoke(context.Background(), map[string]any{"query": "随便聊聊"})
	require.NoError(t, err)

	// 没有可选分支时全部出边死亡，分支与结束节点级联跳过
	require.Len(t, state.NodeResults, 2)
	assert.Equal(t, NodeStart, state.NodeResults[0].NodeData.Type())
	assert.Equal(t, NodeQuestionClassifier, state.NodeResults[1].NodeData.Type())
	assert.Equal(t, "", state.NodeResults[1].Outputs["class"])
	assert.Empty(t, state.Outputs)
}

func TestRuntimeInvoke_ToolNode(t *testing.T) {
	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry)

	startID, toolID, endID := uuid.New(), uuid.New(), uuid.New()
	nodes := [][]byte{
		rawStartNode(t, startID, "开始"),
		mustRaw(t, map[string]any{
			"id": toolID, "title": "计算器", "node_type": "tool",
			"tool_type": "builtin_tool", "provider_id": "builtin", "tool_id": "calculator",
			"params": map[string]any{"expression": "3 * 4"},
			"inputs": []map[string]any{},
		}),
		rawEndNode(t, endID, "结束", refInput("result", VarTypeString, toolID, "text")),
	}
	edges := [][]byte{
		rawEdge(t, startID, NodeStart, toolID, NodeTool),
		rawEdge(t, toolID, NodeTool, endID, NodeEnd),
	}
	runtime, err := NewRuntime(mustConfig(t, nodes, edges), Deps{Tools: registry})
	require.NoError(t, err)

	state, err := runtime.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "12", state.Outputs["result"])
}

func TestNewRuntime_UnknownTool(t *testing.T) {
	startID, toolID, endID := uuid.New(), uuid.New(), uuid.New()
	nodes := [][]byte{
		rawStartNode(t, startID, "开始"),
		mustRaw(t, map[string]any{
			"id": toolID, "title": "不存在", "node_type": "tool",
			"tool_type": "builtin_tool", "provider_id": "builtin", "tool_id": "no_such_tool",
			"inputs": []map[string]any{},
		}),
		rawEndNode(t, endID, "结束"),
	}
	edges := [][]byte{
		rawEdge(t, startID, NodeStart, toolID, NodeTool),
		rawEdge(t, toolID, NodeTool, endID, NodeEnd),
	}
	registry := tools.NewRegistry()
	_, err := NewRuntime(mustConfig(t, nodes, edges), Deps{Tools: registry})
	require.Error(t, err)
}

// subWorkflowConfig 构造单输入的子工作流 start -> template -> end。
func subWorkflowConfig(t testing.TB) *WorkflowConfig {
	startID, tmplID, endID := uuid.New(), uuid.New(), uuid.New()
	nodes := [][]byte{
		rawStartNode(t, startID, "子开始", map[string]any{
			"name": "item", "type": "string", "required": true,
			"value": map[string]any{"type": "literal"},
		}),
		mustRaw(t, map[string]any{
			"id": tmplID, "title": "模板", "node_type": "template_transform",
			"template": "{{.item}}!",
			"inputs":   []map[string]any{refInput("item", VarTypeString, startID, "item")},
		}),
		rawEndNode(t, endID, "子结束", refInput("output", VarTypeString, tmplID, "output")),
	}
	edges := [][]byte{
		rawEdge(t, startID, NodeStart, tmplID, NodeTemplateTransform),
		rawEdge(t, tmplID, NodeTemplateTransform, endID, NodeEnd),
	}
	return mustConfig(t, nodes, edges)
}

func iterationHostConfig(t testing.TB, subID uuid.UUID) (*WorkflowConfig, uuid.UUID) {
	startID, iterID, endID := uuid.New(), uuid.New(), uuid.New()
	nodes := [][]byte{
		rawStartNode(t, startID, "开始", map[string]any{
			"name": "items", "type": "list[string]", "required": true,
			"value": map[string]any{"type": "literal"},
		}),
		mustRaw(t, map[string]any{
			"id": iterID, "title": "迭代", "node_type": "iteration",
			"workflow_ids": []uuid.UUID{subID},
			"inputs": []map[string]any{{
				"name": "inputs", "type": "list[string]", "required": true,
				"value": map[string]any{
					"type":    "ref",
					"content": map[string]any{"ref_node_id": startID, "ref_var_name": "items"},
				},
			}},
		}),
		rawEndNode(t, endID, "结束", refInput("results", VarTypeListString, iterID, "outputs")),
	}
	edges := [][]byte{
		rawEdge(t, startID, NodeStart, iterID, NodeIteration),
		rawEdge(t, iterID, NodeIteration, endID, NodeEnd),
	}
	return mustConfig(t, nodes, edges), iterID
}

func TestRuntimeInvoke_Iteration(t *testing.T) {
	subID := uuid.New()
	loader := &fakeLoader{configs: map[uuid.UUID]*WorkflowConfig{subID: subWorkflowConfig(t)}}

	host, iterID := iterationHostConfig(t, subID)
	runtime, err := NewRuntime(host, Deps{Workflows: loader})
	require.NoError(t, err)

	t.Run("runs sub workflow per element", func(t *testing.T) {
		state, err := runtime.Invoke(context.Background(), map[string]any{"items": []any{"a", "b"}})
		require.NoError(t, err)

		results, ok := state.Outputs["results"].([]any)
		require.True(t, ok)
		require.Len(t, results, 2)
		assert.Contains(t, results[0], "a!")
		assert.Contains(t, results[1], "b!")
	})

	t.Run("empty list fails the node but not the run", func(t *testing.T) {
		state, err := runtime.Invoke(context.Background(), map[string]any{"items": []any{}})
		require.NoError(t, err)

		var iterResult *NodeResult
		for _, result := range state.NodeResults {
			if result.NodeData.Base().ID == iterID {
				iterResult = result
			}
		}
		require.NotNil(t, iterResult)
		assert.Equal(t, StatusFailed, iterResult.Status)
		assert.Equal(t, []any{}, iterResult.Outputs["outputs"])

		// END 仍然执行，引用解析为空列表
		assert.Equal(t, []any{}, state.Outputs["results"])
	})

	t.Run("missing sub workflow fails fast", func(t *testing.T) {
		orphanHost, orphanIterID := iterationHostConfig(t, uuid.New())
		orphanRuntime, err := NewRuntime(orphanHost, Deps{Workflows: loader})
		require.NoError(t, err)

		state, err := orphanRuntime.Invoke(context.Background(), map[string]any{"items": []any{"a"}})
		require.NoError(t, err)
		for _, result := range state.NodeResults {
			if result.NodeData.Base().ID == orphanIterID {
				assert.Equal(t, StatusFailed, result.Status)
			}
		}
	})
}

func TestRuntimeStream(t *testing.T) {
	startID, llmID, endID := uuid.New(), uuid.New(), uuid.New()
	nodes := [][]byte{
		rawStartNode(t, startID, "开始"),
		rawLLMNode(t, llmID, "大模型", "p"),
		rawEndNode(t, endID, "结束", refInput("answer", VarTypeString, llmID, "output")),
	}
	edges := [][]byte{
		rawEdge(t, startID, NodeStart, llmID, NodeLLM),
		rawEdge(t, llmID, NodeLLM, endID, NodeEnd),
	}
	runtime, err := NewRuntime(mustConfig(t, nodes, edges), Deps{ModelFactory: echoFactory("流式答案")})
	require.NoError(t, err)

	var frames []Frame
	for frame := range runtime.Stream(context.Background(), nil) {
		frames = append(frames, frame)
	}
	require.Len(t, frames, 3)
	for _, frame := range frames {
		assert.NoError(t, frame.Err)
		assert.NotEmpty(t, frame.NodeID)
	}
	assert.True(t, strings.HasPrefix(frames[0].NodeID, "start_"))
	assert.True(t, strings.HasPrefix(frames[2].NodeID, "end_"))
}

func TestRuntimeAsTool(t *testing.T) {
	startID, llmID, endID := uuid.New(), uuid.New(), uuid.New()
	nodes := [][]byte{
		rawStartNode(t, startID, "开始", map[string]any{
			"name": "query", "type": "string", "required": true, "description": "用户问题",
			"value": map[string]any{"type": "literal"},
		}),
		rawLLMNode(t, llmID, "大模型", "p", refInput("query", VarTypeString, startID, "query")),
		rawEndNode(t, endID, "结束", refInput("answer", VarTypeString, llmID, "output")),
	}
	edges := [][]byte{
		rawEdge(t, startID, NodeStart, llmID, NodeLLM),
		rawEdge(t, llmID, NodeLLM, endID, NodeEnd),
	}
	runtime, err := NewRuntime(mustConfig(t, nodes, edges), Deps{ModelFactory: echoFactory("工具答案")})
	require.NoError(t, err)

	tool := runtime.AsTool()
	assert.Equal(t, "test_flow", tool.Name())
	assert.Contains(t, string(tool.ArgsSchema()), "query")

	result, err := tool.Invoke(context.Background(), map[string]any{"query": "问题"})
	require.NoError(t, err)
	outputs, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "工具答案", outputs["answer"])
}

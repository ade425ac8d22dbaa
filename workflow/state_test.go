package workflow

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMergeState(t *testing.T) {
	node := &LLMNodeData{BaseNodeData: BaseNodeData{ID: uuid.New(), Title: "节点", NodeType: NodeLLM}}

	t.Run("right-biased map union", func(t *testing.T) {
		current := &WorkflowState{
			Inputs:  map[string]any{"a": 1, "b": 1},
			Outputs: map[string]any{"x": "old"},
		}
		update := &WorkflowState{
			Inputs:  map[string]any{"b": 2, "c": 3},
			Outputs: map[string]any{"x": "new"},
		}
		merged := MergeState(current, update)
		assert.Equal(t, map[string]any{"a": 1, "b": 2, "c": 3}, merged.Inputs)
		assert.Equal(t, map[string]any{"x": "new"}, merged.Outputs)
	})

	t.Run("node results append in order", func(t *testing.T) {
		first := resultDelta(&NodeResult{NodeData: node, Status: StatusSucceeded, Outputs: map[string]any{"i": 1}})
		second := resultDelta(&NodeResult{NodeData: node, Status: StatusSucceeded, Outputs: map[string]any{"i": 2}})

		state := MergeState(MergeState(NewWorkflowState(nil), first), second)
		require.Len(t, state.NodeResults, 2)
		assert.Equal(t, 1, state.NodeResults[0].Outputs["i"])
		assert.Equal(t, 2, state.NodeResults[1].Outputs["i"])
	})

	t.Run("nil operands", func(t *testing.T) {
		merged := MergeState(nil, nil)
		require.NotNil(t, merged)
		assert.Empty(t, merged.NodeResults)
	})
}

// 合并任意多个增量后，结果列表长度等于增量之和且顺序保持。
func TestMergeState_AppendOnlyProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		count := rapid.IntRange(0, 32).Draw(rt, "delta_count")

		state := NewWorkflowState(nil)
		for i := 0; i < count; i++ {
			node := &LLMNodeData{BaseNodeData: BaseNodeData{
				ID: uuid.New(), Title: fmt.Sprintf("节点%d", i), NodeType: NodeLLM,
			}}
			state = MergeState(state, resultDelta(&NodeResult{
				NodeData: node,
				Status:   StatusSucceeded,
				Outputs:  map[string]any{"seq": i},
			}))
		}

		require.Len(rt, state.NodeResults, count)
		for i, result := range state.NodeResults {
			require.Equal(rt, i, result.Outputs["seq"])
		}
	})
}

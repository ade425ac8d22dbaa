package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/appflow/llm"
	"github.com/BaSui01/appflow/types"
)

// 问题分类器的强制分类提示词：要求模型只输出分类标识本身。
const questionClassifierSystemPrompt = `你是一个问题分类专家，根据用户的输入判断其意图所属的分类。
可选的分类信息如下(JSON格式，query字段为该分类的示例问题，class字段为分类标识)：

%s

请只输出匹配分类的class字段内容，不要输出任何其他文字。如果没有匹配的分类，输出第一个分类的class。`

// questionClassifierExecutor sends a forced-classification prompt to the
// model with one vocabulary token per configured branch and selects the
// matching outgoing handle. An answer outside the vocabulary falls back to
// the first configured branch deterministically; that policy is part of
// the observable contract for existing graphs.
type questionClassifierExecutor struct {
	data    *QuestionClassifierNodeData
	factory ModelFactory
}

func classifierHandleFlag(handleID uuid.UUID) string {
	return fmt.Sprintf("qc_source_handle_%s", handleID)
}

func (e *questionClassifierExecutor) execute(ctx context.Context, state *WorkflowState) (*execResult, error) {
	startAt := time.Now()

	inputs, err := ExtractVariables(e.data.Inputs, state)
	if err != nil {
		return nil, err
	}
	query, _ := inputs["query"].(string)
	if query == "" {
		query = "用户没有输入任何内容"
	}

	// 空分类列表：没有可选分支，返回不命中任何出边句柄的哨兵，
	// 全部出边按死边处理，下游分支级联跳过直至结束节点。
	if len(e.data.Classes) == 0 {
		sentinel := uuid.New()
		return &execResult{
			delta: resultDelta(&NodeResult{
				NodeData: e.data,
				Status:   StatusSucceeded,
				Inputs:   inputs,
				Outputs:  map[string]any{"class": ""},
				Latency:  time.Since(startAt).Seconds(),
			}),
			branch: &sentinel,
		}, nil
	}

	presetClasses := make([]map[string]string, 0, len(e.data.Classes))
	for _, class := range e.data.Classes {
		presetClasses = append(presetClasses, map[string]string{
			"query": class.Query,
			"class": classifierHandleFlag(class.SourceHandleID),
		})
	}
	rawClasses, err := json.Marshal(presetClasses)
	if err != nil {
		return nil, types.WrapError(types.ErrFail, "构建分类提示词失败", err)
	}

	if e.factory == nil {
		return nil, types.NewError(types.ErrModelInvoke, "模型调用能力未配置")
	}
	model, err := e.factory(ModelNodeConfig{})
	if err != nil {
		return nil, types.WrapError(types.ErrModelInvoke, "创建模型客户端失败", err)
	}

	chunks, err := model.Stream(ctx, []llm.Message{
		llm.NewSystemMessage(fmt.Sprintf(questionClassifierSystemPrompt, string(rawClasses))),
		llm.NewUserMessage(query),
	})
	if err != nil {
		return nil, types.WrapError(types.ErrModelInvoke, "模型调用失败", err)
	}
	answer := ""
	for chunk := range chunks {
		answer += chunk.Content
	}
	answer = strings.TrimSpace(answer)

	chosen := e.data.Classes[0].SourceHandleID
	for _, class := range e.data.Classes {
		if answer == classifierHandleFlag(class.SourceHandleID) {
			chosen = class.SourceHandleID
			break
		}
	}

	branch := chosen
	return &execResult{
		delta: resultDelta(&NodeResult{
			NodeData: e.data,
			Status:   StatusSucceeded,
			Inputs:   inputs,
			Outputs:  map[string]any{"class": classifierHandleFlag(chosen)},
			Latency:  time.Since(startAt).Seconds(),
		}),
		branch: &branch,
	}, nil
}

package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/appflow/rag"
	"github.com/BaSui01/appflow/types"
)

// datasetRetrievalExecutor delegates to the external retrieval capability
// with the node's dataset ids and strategy. The retriever is bound at
// compile time.
type datasetRetrievalExecutor struct {
	data      *DatasetRetrievalNodeData
	retriever rag.Retriever
}

func newDatasetRetrievalExecutor(data *DatasetRetrievalNodeData, accountID uuid.UUID, deps Deps) (*datasetRetrievalExecutor, error) {
	if deps.Retrieval == nil {
		return nil, types.NewError(types.ErrNotFound, "知识库检索能力未配置")
	}
	config := data.RetrievalConfig
	if len(config.DatasetIDs) == 0 {
		config.DatasetIDs = data.DatasetIDs
	}
	retriever, err := deps.Retrieval.Retriever(accountID, config)
	if err != nil {
		return nil, types.WrapError(types.ErrFail, "构建知识库检索器失败", err)
	}
	return &datasetRetrievalExecutor{data: data, retriever: retriever}, nil
}

func (e *datasetRetrievalExecutor) execute(ctx context.Context, state *WorkflowState) (*execResult, error) {
	startAt := time.Now()

	inputs, err := ExtractVariables(e.data.Inputs, state)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprint(inputs["query"])

	combined, err := e.retriever.Invoke(ctx, query)
	if err != nil {
		return nil, types.WrapError(types.ErrFail, "知识库检索失败", err)
	}

	outputs := map[string]any{}
	if len(e.data.Outputs) > 0 {
		outputs[e.data.Outputs[0].Name] = combined
	} else {
		outputs["combine_documents"] = combined
	}

	return &execResult{delta: resultDelta(&NodeResult{
		NodeData: e.data,
		Status:   StatusSucceeded,
		Inputs:   inputs,
		Outputs:  outputs,
		Latency:  time.Since(startAt).Seconds(),
	})}, nil
}

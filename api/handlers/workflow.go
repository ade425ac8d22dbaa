package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/appflow/api"
	"github.com/BaSui01/appflow/store"
	"github.com/BaSui01/appflow/types"
	"github.com/BaSui01/appflow/workflow"
)

// =============================================================================
// 🧩 工作流 Handler
// =============================================================================

// WorkflowHandler 工作流管理与运行处理器
type WorkflowHandler struct {
	store  *store.Store
	deps   workflow.Deps
	logger *zap.Logger
}

// NewWorkflowHandler 创建工作流处理器
func NewWorkflowHandler(st *store.Store, deps workflow.Deps, logger *zap.Logger) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowHandler{
		store:  st,
		deps:   deps,
		logger: logger.With(zap.String("component", "workflow_handler")),
	}
}

func accountID(r *http.Request) uuid.UUID {
	id, err := uuid.Parse(r.Header.Get("X-Account-ID"))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func pathWorkflowID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, types.NewValidateError("工作流 ID 格式错误"), logger)
		return uuid.Nil, false
	}
	return id, true
}

// HandleCreate 新建草稿工作流。画布允许不完整，仅做基础信息与宽松
// 解析校验。
func (h *WorkflowHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.WorkflowUpsertRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	record, err := h.store.CreateWorkflow(r.Context(), accountID(r), req.Name, req.Description,
		store.Graph{Nodes: req.Nodes, Edges: req.Edges})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, record)
}

// HandleUpdateDraft 覆盖保存草稿画布。
func (h *WorkflowHandler) HandleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := pathWorkflowID(w, r, h.logger)
	if !ok {
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.WorkflowUpsertRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if err := h.store.UpdateDraftGraph(r.Context(), id, store.Graph{Nodes: req.Nodes, Edges: req.Edges}); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"id": id})
}

// HandlePublish 发布工作流，草稿画布必须通过严格校验。
func (h *WorkflowHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	id, ok := pathWorkflowID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.store.PublishWorkflow(r.Context(), id); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"id": id})
}

// HandleGet 查询工作流记录。
func (h *WorkflowHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathWorkflowID(w, r, h.logger)
	if !ok {
		return
	}
	record, err := h.store.GetWorkflow(r.Context(), id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, record)
}

// HandleList 按账号列出工作流。
func (h *WorkflowHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListWorkflows(r.Context(), accountID(r))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, records)
}

// HandleRun 运行已发布的工作流并同步返回最终输出与节点结果。
func (h *WorkflowHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathWorkflowID(w, r, h.logger)
	if !ok {
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.WorkflowRunRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	config, err := h.store.LoadPublished(r.Context(), id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	runtime, err := workflow.NewRuntime(config, h.deps)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	state, err := runtime.Invoke(r.Context(), req.Inputs)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	runID := uuid.New()
	if err := h.store.SaveNodeResults(r.Context(), id, runID, state); err != nil {
		h.logger.Warn("节点执行历史落库失败", zap.String("workflow_id", id.String()), zap.Error(err))
	}

	results := make([]map[string]any, 0, len(state.NodeResults))
	for _, result := range state.NodeResults {
		raw, err := json.Marshal(result)
		if err != nil {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		results = append(results, m)
	}

	WriteSuccess(w, api.WorkflowRunResponse{
		RunID:       runID,
		Outputs:     state.Outputs,
		NodeResults: results,
	})
}

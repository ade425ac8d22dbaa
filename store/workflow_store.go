package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/appflow/types"
	"github.com/BaSui01/appflow/workflow"
)

// Graph 画布的持久化形态，节点与边保持原始 JSON，解析延迟到校验
// 或编译时进行。
type Graph struct {
	Nodes []json.RawMessage `json:"nodes"`
	Edges []json.RawMessage `json:"edges"`
}

// CreateWorkflow 新建一条草稿状态的工作流记录。
func (s *Store) CreateWorkflow(ctx context.Context, accountID uuid.UUID, name, description string, graph Graph) (*WorkflowRecord, error) {
	raw, err := json.Marshal(graph)
	if err != nil {
		return nil, types.WrapError(types.ErrFail, "工作流画布序列化失败", err)
	}

	record := &WorkflowRecord{
		ID:          uuid.New(),
		AccountID:   accountID,
		Name:        name,
		Description: description,
		DraftGraph:  string(raw),
		Status:      WorkflowStatusDraft,
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, types.WrapError(types.ErrFail, "工作流创建失败", err)
	}
	return record, nil
}

// UpdateDraftGraph 覆盖草稿画布。画布此时允许处于未完成状态，不做
// 图结构校验。
func (s *Store) UpdateDraftGraph(ctx context.Context, id uuid.UUID, graph Graph) error {
	raw, err := json.Marshal(graph)
	if err != nil {
		return types.WrapError(types.ErrFail, "工作流画布序列化失败", err)
	}
	result := s.db.WithContext(ctx).Model(&WorkflowRecord{}).
		Where("id = ?", id).
		Update("draft_graph", string(raw))
	if result.Error != nil {
		return types.WrapError(types.ErrFail, "工作流草稿保存失败", result.Error)
	}
	if result.RowsAffected == 0 {
		return types.NewError(types.ErrNotFound, "该工作流不存在")
	}
	return nil
}

// GetWorkflow 按 id 查询工作流记录。
func (s *Store) GetWorkflow(ctx context.Context, id uuid.UUID) (*WorkflowRecord, error) {
	var record WorkflowRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrNotFound, "该工作流不存在")
	}
	if err != nil {
		return nil, types.WrapError(types.ErrFail, "工作流查询失败", err)
	}
	return &record, nil
}

// ListWorkflows 按账号列出工作流，按更新时间倒序。
func (s *Store) ListWorkflows(ctx context.Context, accountID uuid.UUID) ([]*WorkflowRecord, error) {
	var records []*WorkflowRecord
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("updated_at desc").
		Find(&records).Error
	if err != nil {
		return nil, types.WrapError(types.ErrFail, "工作流列表查询失败", err)
	}
	return records, nil
}

// DeleteWorkflow 删除工作流记录。
func (s *Store) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	if err := s.db.WithContext(ctx).Delete(&WorkflowRecord{}, "id = ?", id).Error; err != nil {
		return types.WrapError(types.ErrFail, "工作流删除失败", err)
	}
	return nil
}

// PublishWorkflow 发布工作流：草稿画布通过严格校验后快照到已发布
// 图。校验失败时发布被拒绝，已发布快照保持不变。
func (s *Store) PublishWorkflow(ctx context.Context, id uuid.UUID) error {
	record, err := s.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}

	graph, err := decodeGraph(record.DraftGraph)
	if err != nil {
		return err
	}
	if _, err := workflow.NewWorkflowConfig(record.AccountID, record.Name, record.Description, graph.Nodes, graph.Edges); err != nil {
		return err
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Model(&WorkflowRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"graph":        record.DraftGraph,
			"status":       WorkflowStatusPublished,
			"published_at": now,
		}).Error
	if err != nil {
		return types.WrapError(types.ErrFail, "工作流发布失败", err)
	}

	s.logger.Info("workflow published", zap.String("workflow_id", id.String()))
	return nil
}

// LoadPublished 加载已发布的工作流配置。迭代节点与运行入口都从这里
// 取图，未发布的工作流不可运行。
func (s *Store) LoadPublished(ctx context.Context, id uuid.UUID) (*workflow.WorkflowConfig, error) {
	record, err := s.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != WorkflowStatusPublished || record.Graph == "" {
		return nil, types.NewError(types.ErrNotFound, "该工作流尚未发布")
	}

	graph, err := decodeGraph(record.Graph)
	if err != nil {
		return nil, err
	}
	return workflow.NewWorkflowConfig(record.AccountID, record.Name, record.Description, graph.Nodes, graph.Edges)
}

// DraftConfig 以宽松模式解析草稿画布，坏节点与坏边被丢弃。
func (s *Store) DraftConfig(ctx context.Context, id uuid.UUID) (*workflow.WorkflowConfig, error) {
	record, err := s.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	graph, err := decodeGraph(record.DraftGraph)
	if err != nil {
		return nil, err
	}
	return workflow.NewDraftWorkflowConfig(record.AccountID, record.Name, record.Description, graph.Nodes, graph.Edges, s.logger), nil
}

func decodeGraph(raw string) (*Graph, error) {
	graph := &Graph{}
	if raw == "" {
		return graph, nil
	}
	if err := json.Unmarshal([]byte(raw), graph); err != nil {
		return nil, types.WrapError(types.ErrValidate, "工作流画布数据类型出错，请核实后重试", err)
	}
	return graph, nil
}

// SaveNodeResults 将一次运行的节点结果按完成顺序落库。
func (s *Store) SaveNodeResults(ctx context.Context, workflowID, runID uuid.UUID, state *workflow.WorkflowState) error {
	if state == nil || len(state.NodeResults) == 0 {
		return nil
	}

	records := make([]*NodeResultRecord, 0, len(state.NodeResults))
	for _, result := range state.NodeResults {
		inputs, _ := json.Marshal(result.Inputs)
		outputs, _ := json.Marshal(result.Outputs)
		records = append(records, &NodeResultRecord{
			ID:         uuid.New(),
			WorkflowID: workflowID,
			RunID:      runID,
			NodeID:     result.NodeData.Base().ID,
			NodeType:   string(result.NodeData.Type()),
			Status:     string(result.Status),
			Inputs:     string(inputs),
			Outputs:    string(outputs),
			Error:      result.Error,
			Latency:    result.Latency,
		})
	}
	if err := s.db.WithContext(ctx).Create(&records).Error; err != nil {
		return types.WrapError(types.ErrFail, "节点执行历史保存失败", err)
	}
	return nil
}

// ListNodeResults 查询一次运行的节点执行历史，按落库顺序返回。
func (s *Store) ListNodeResults(ctx context.Context, runID uuid.UUID) ([]*NodeResultRecord, error) {
	var records []*NodeResultRecord
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("created_at asc").
		Find(&records).Error
	if err != nil {
		return nil, types.WrapError(types.ErrFail, "节点执行历史查询失败", err)
	}
	return records, nil
}

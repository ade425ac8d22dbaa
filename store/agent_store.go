package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/BaSui01/appflow/agent"
	"github.com/BaSui01/appflow/types"
)

// SaveThoughts 保存一次会话聚合后的事件轨迹。调用方负责将同一 id
// 的 agent_message 增量拼接为完整记录，ping 事件不落库。
func (s *Store) SaveThoughts(ctx context.Context, thoughts []*agent.AgentThought) error {
	records := make([]*AgentThoughtRecord, 0, len(thoughts))
	for _, thought := range thoughts {
		if thought == nil || thought.Event == agent.EventPing {
			continue
		}
		toolInput := ""
		if len(thought.ToolInput) > 0 {
			raw, err := json.Marshal(thought.ToolInput)
			if err == nil {
				toolInput = string(raw)
			}
		}
		records = append(records, &AgentThoughtRecord{
			ID:                thought.ID,
			TaskID:            thought.TaskID,
			Event:             string(thought.Event),
			Thought:           thought.Thought,
			Observation:       thought.Observation,
			Tool:              thought.Tool,
			ToolInput:         toolInput,
			Answer:            thought.Answer,
			MessageTokenCount: thought.MessageTokenCount,
			AnswerTokenCount:  thought.AnswerTokenCount,
			TotalTokenCount:   thought.TotalTokenCount,
			TotalPrice:        thought.TotalPrice,
			Latency:           thought.Latency,
		})
	}
	if len(records) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&records).Error; err != nil {
		return types.WrapError(types.ErrFail, "智能体推理轨迹保存失败", err)
	}
	return nil
}

// ListThoughts 查询任务的推理轨迹，按落库顺序返回。
func (s *Store) ListThoughts(ctx context.Context, taskID uuid.UUID) ([]*AgentThoughtRecord, error) {
	var records []*AgentThoughtRecord
	err := s.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at asc").
		Find(&records).Error
	if err != nil {
		return nil, types.WrapError(types.ErrFail, "智能体推理轨迹查询失败", err)
	}
	return records, nil
}

package api

import (
	"encoding/json"

	"github.com/google/uuid"
)

// =============================================================================
// 💬 会话接口类型
// =============================================================================

// ChatRequest 智能体会话请求。
type ChatRequest struct {
	// 会话 ID，缺省时新建会话
	ConversationID uuid.UUID `json:"conversation_id,omitempty"`
	// 用户提问
	Query string `json:"query"`
	// 长期记忆内容，由上层会话服务注入
	LongTermMemory string `json:"long_term_memory,omitempty"`
}

// ChatEvent 会话 SSE 负载。在队列事件之上补充会话与消息定位字段，
// 前端按 id 聚合 agent_message 增量。
type ChatEvent struct {
	ID             uuid.UUID      `json:"id"`
	ConversationID uuid.UUID      `json:"conversation_id"`
	MessageID      uuid.UUID      `json:"message_id"`
	TaskID         uuid.UUID      `json:"task_id"`
	Event          string         `json:"event"`
	Thought        string         `json:"thought,omitempty"`
	Observation    string         `json:"observation,omitempty"`
	Tool           string         `json:"tool,omitempty"`
	ToolInput      map[string]any `json:"tool_input,omitempty"`
	Answer         string         `json:"answer,omitempty"`
	TotalTokens    int            `json:"total_token_count,omitempty"`
	TotalPrice     float64        `json:"total_price,omitempty"`
	Latency        float64        `json:"latency,omitempty"`
}

// StopChatRequest 停止会话请求。
type StopChatRequest struct {
	TaskID uuid.UUID `json:"task_id"`
}

// =============================================================================
// 🧩 工作流接口类型
// =============================================================================

// WorkflowUpsertRequest 工作流创建/草稿保存请求。
type WorkflowUpsertRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Nodes       []json.RawMessage `json:"nodes"`
	Edges       []json.RawMessage `json:"edges"`
}

// WorkflowRunRequest 工作流运行请求，键为 START 节点声明的输入名。
type WorkflowRunRequest struct {
	Inputs map[string]any `json:"inputs"`
}

// WorkflowRunResponse 工作流运行结果。
type WorkflowRunResponse struct {
	RunID       uuid.UUID        `json:"run_id"`
	Outputs     map[string]any   `json:"outputs"`
	NodeResults []map[string]any `json:"node_results"`
}

package agent

import (
	"github.com/google/uuid"

	"github.com/BaSui01/appflow/llm"
)

// QueueEvent 队列事件类型，作为 AgentThought 的判别标签。
type QueueEvent string

const (
	EventPing                 QueueEvent = "ping"
	EventAgentThought         QueueEvent = "agent_thought"
	EventAgentMessage         QueueEvent = "agent_message"
	EventAgentAction          QueueEvent = "agent_action"
	EventDatasetRetrieval     QueueEvent = "dataset_retrieval"
	EventLongTermMemoryRecall QueueEvent = "long_term_memory_recall"
	EventAgentEnd             QueueEvent = "agent_end"
	EventStop                 QueueEvent = "stop"
	EventError                QueueEvent = "error"
	EventTimeout              QueueEvent = "timeout"
)

// IsTerminal 判断事件是否终止流（stop/error/timeout/agent_end）。
func (e QueueEvent) IsTerminal() bool {
	switch e {
	case EventStop, EventError, EventTimeout, EventAgentEnd:
		return true
	}
	return false
}

// AgentThought 智能体推理过程中产生的单条事件记录。字段按事件类型
// 部分重叠：agent_message 事件的 Thought/Answer 是增量，必须由消费方
// 按 ID 拼接；其余事件均为完整快照。
type AgentThought struct {
	ID     uuid.UUID  `json:"id"`
	TaskID uuid.UUID  `json:"task_id"`
	Event  QueueEvent `json:"event"`

	Thought     string `json:"thought,omitempty"`
	Observation string `json:"observation,omitempty"`

	// 工具调用相关
	Tool      string         `json:"tool,omitempty"`
	ToolInput map[string]any `json:"tool_input,omitempty"`

	// 消息相关
	Message           []llm.Message `json:"message,omitempty"`
	MessageTokenCount int           `json:"message_token_count,omitempty"`
	MessageUnitPrice  float64       `json:"message_unit_price,omitempty"`
	MessagePriceUnit  float64       `json:"message_price_unit,omitempty"`

	// 答案相关
	Answer           string  `json:"answer,omitempty"`
	AnswerTokenCount int     `json:"answer_token_count,omitempty"`
	AnswerUnitPrice  float64 `json:"answer_unit_price,omitempty"`
	AnswerPriceUnit  float64 `json:"answer_price_unit,omitempty"`

	// 推理统计
	TotalTokenCount int     `json:"total_token_count,omitempty"`
	TotalPrice      float64 `json:"total_price,omitempty"`
	Latency         float64 `json:"latency,omitempty"` // 秒
}

// InvokeFrom 调用来源，决定任务归属前缀。
type InvokeFrom string

const (
	InvokeFromWebApp     InvokeFrom = "web_app"
	InvokeFromDebugger   InvokeFrom = "debugger"
	InvokeFromServiceAPI InvokeFrom = "service_api"
	InvokeFromEndUser    InvokeFrom = "end_user"
)

// userPrefix web_app 与 debugger 由账号侧发起，其余来源视为终端用户。
func (f InvokeFrom) userPrefix() string {
	if f == InvokeFromWebApp || f == InvokeFromDebugger {
		return "account"
	}
	return "end-user"
}

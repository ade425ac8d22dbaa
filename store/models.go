package store

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowStatus 工作流发布状态
type WorkflowStatus string

const (
	WorkflowStatusDraft     WorkflowStatus = "draft"
	WorkflowStatusPublished WorkflowStatus = "published"
)

// WorkflowRecord 工作流持久化记录。画布随改随存到 DraftGraph，
// 发布时经过严格校验后快照到 Graph，运行与被迭代节点引用只读
// 已发布快照。
type WorkflowRecord struct {
	ID          uuid.UUID      `gorm:"type:char(36);primaryKey"`
	AccountID   uuid.UUID      `gorm:"type:char(36);index"`
	Name        string         `gorm:"size:255"`
	Description string         `gorm:"size:1024"`
	DraftGraph  string         `gorm:"type:text"`
	Graph       string         `gorm:"type:text"`
	Status      WorkflowStatus `gorm:"size:32;index"`
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName 指定表名
func (WorkflowRecord) TableName() string { return "workflows" }

// AgentThoughtRecord 智能体事件落库记录，保存会话的完整推理轨迹。
// agent_message 增量在落库前已按消息 id 聚合为完整答案。
type AgentThoughtRecord struct {
	ID          uuid.UUID `gorm:"type:char(36);primaryKey"`
	TaskID      uuid.UUID `gorm:"type:char(36);index"`
	Event       string    `gorm:"size:64;index"`
	Thought     string    `gorm:"type:text"`
	Observation string    `gorm:"type:text"`
	Tool        string    `gorm:"size:255"`
	ToolInput   string    `gorm:"type:text"`
	Answer      string    `gorm:"type:text"`

	MessageTokenCount int
	AnswerTokenCount  int
	TotalTokenCount   int
	TotalPrice        float64
	Latency           float64

	CreatedAt time.Time
}

// TableName 指定表名
func (AgentThoughtRecord) TableName() string { return "agent_thoughts" }

// NodeResultRecord 工作流节点执行历史，一次运行产生的每条节点结果
// 按完成顺序落库。
type NodeResultRecord struct {
	ID         uuid.UUID `gorm:"type:char(36);primaryKey"`
	WorkflowID uuid.UUID `gorm:"type:char(36);index"`
	RunID      uuid.UUID `gorm:"type:char(36);index"`
	NodeID     uuid.UUID `gorm:"type:char(36)"`
	NodeType   string    `gorm:"size:64"`
	Status     string    `gorm:"size:32"`
	Inputs     string    `gorm:"type:text"`
	Outputs    string    `gorm:"type:text"`
	Error      string    `gorm:"type:text"`
	Latency    float64

	CreatedAt time.Time
}

// TableName 指定表名
func (NodeResultRecord) TableName() string { return "workflow_node_results" }

package llm

import (
	"context"
	"encoding/json"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall 模型请求调用工具时携带的调用信息
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message 会话消息
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // 工具返回时标识对应调用
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolMessage creates a tool result message bound to a tool call id.
func NewToolMessage(toolCallID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, Name: name, ToolCallID: toolCallID}
}

// ModelFeature 模型能力标记
type ModelFeature string

const (
	FeatureToolCall     ModelFeature = "tool_call"     // 原生工具调用
	FeatureAgentThought ModelFeature = "agent_thought" // 支持推理型提示词
	FeatureImageInput   ModelFeature = "image_input"   // 多模态图片输入
)

// FeatureSet is the set of capabilities a model advertises.
type FeatureSet map[ModelFeature]struct{}

// NewFeatureSet builds a feature set from the given features.
func NewFeatureSet(features ...ModelFeature) FeatureSet {
	fs := make(FeatureSet, len(features))
	for _, f := range features {
		fs[f] = struct{}{}
	}
	return fs
}

// Has reports whether the feature is present.
func (fs FeatureSet) Has(f ModelFeature) bool {
	_, ok := fs[f]
	return ok
}

// Chunk 流式输出的增量片段。Content 为增量文本，ToolCalls 仅在
// 模型决定调用工具的最终片段上出现。
type Chunk struct {
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Pricing describes per-token prices for a model.
type Pricing struct {
	InputPrice  float64 `json:"input_price"`
	OutputPrice float64 `json:"output_price"`
	Unit        float64 `json:"unit"` // 计价单位，例如 0.001 表示每千 token
}

// ToolSchema describes a tool exposed to the model.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"` // JSON Schema
}

// Model is the model-invocation boundary consumed by the agent loop and
// the workflow LLM node. Implementations live behind this interface; the
// core never talks to a vendor SDK directly.
type Model interface {
	// Stream sends the messages to the model and returns a channel of
	// incremental chunks. The channel is closed when generation ends; a
	// generation error terminates the channel after an error chunk is not
	// possible, so Stream itself returns the setup error and mid-stream
	// failures close the channel early.
	Stream(ctx context.Context, messages []Message) (<-chan Chunk, error)

	// BindTools registers tool schemas for native tool calling. Models
	// without FeatureToolCall ignore the binding.
	BindTools(tools []ToolSchema)

	// Features reports the model's capability set.
	Features() FeatureSet

	// GetNumTokens estimates the token count of the messages.
	GetNumTokens(messages []Message) int

	// Pricing returns the per-token pricing info for cost statistics.
	Pricing() Pricing
}

// ModelConfig carries the provider-agnostic invocation parameters stored on
// an LLM workflow node.
type ModelConfig struct {
	Model       string         `json:"model"`
	Temperature float32        `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Timeout     time.Duration  `json:"timeout,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Gather accumulates streamed chunks into one assistant message, merging
// tool calls and concatenating content deltas.
func Gather(chunks []Chunk) Message {
	msg := Message{Role: RoleAssistant}
	for _, chunk := range chunks {
		msg.Content += chunk.Content
		msg.ToolCalls = append(msg.ToolCalls, chunk.ToolCalls...)
	}
	return msg
}

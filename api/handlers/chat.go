package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/appflow/agent"
	"github.com/BaSui01/appflow/api"
	"github.com/BaSui01/appflow/store"
	"github.com/BaSui01/appflow/types"
)

// =============================================================================
// 💬 智能体会话 Handler
// =============================================================================

// AgentFactory 按调用方身份构造智能体。每次会话独立构造，队列管理
// 器与身份绑定。
type AgentFactory func(userID uuid.UUID, invokeFrom agent.InvokeFrom) (agent.Agent, error)

// ChatHandler 智能体会话处理器
type ChatHandler struct {
	factory   AgentFactory
	taskStore agent.TaskStore
	store     *store.Store
	logger    *zap.Logger
}

// NewChatHandler 创建会话处理器。store 可为 nil，此时不落库推理轨迹。
func NewChatHandler(factory AgentFactory, taskStore agent.TaskStore, st *store.Store, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		factory:   factory,
		taskStore: taskStore,
		store:     st,
		logger:    logger.With(zap.String("component", "chat_handler")),
	}
}

// callerIdentity 从请求头解析调用方身份，调试调用缺省为 debugger。
func callerIdentity(r *http.Request) (uuid.UUID, agent.InvokeFrom) {
	userID, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		userID = uuid.New()
	}
	invokeFrom := agent.InvokeFrom(r.Header.Get("X-Invoke-From"))
	switch invokeFrom {
	case agent.InvokeFromWebApp, agent.InvokeFromDebugger,
		agent.InvokeFromServiceAPI, agent.InvokeFromEndUser:
	default:
		invokeFrom = agent.InvokeFromDebugger
	}
	return userID, invokeFrom
}

// HandleChat 处理流式会话请求，事件以 SSE 推送。
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Query == "" {
		WriteError(w, types.NewValidateError("提问内容不能为空"), h.logger)
		return
	}

	userID, invokeFrom := callerIdentity(r)
	ag, err := h.factory(userID, invokeFrom)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	conversationID := req.ConversationID
	if conversationID == uuid.Nil {
		conversationID = uuid.New()
	}
	messageID := uuid.New()

	taskID, events, err := ag.Stream(r.Context(), agent.AgentInput{
		Query:          req.Query,
		LongTermMemory: req.LongTermMemory,
	})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	aggregated := newThoughtAggregator()
	for thought := range events {
		aggregated.add(thought)
		event := api.ChatEvent{
			ID:             thought.ID,
			ConversationID: conversationID,
			MessageID:      messageID,
			TaskID:         taskID,
			Event:          string(thought.Event),
			Thought:        thought.Thought,
			Observation:    thought.Observation,
			Tool:           thought.Tool,
			ToolInput:      thought.ToolInput,
			Answer:         thought.Answer,
			TotalTokens:    thought.TotalTokenCount,
			TotalPrice:     thought.TotalPrice,
			Latency:        thought.Latency,
		}
		if err := sse.WriteEvent(string(thought.Event), event); err != nil {
			// 客户端断开，剩余事件只聚合不再推送
			h.logger.Debug("sse write failed, client likely gone", zap.Error(err))
			break
		}
	}

	if h.store != nil {
		if err := h.store.SaveThoughts(r.Context(), aggregated.list()); err != nil {
			h.logger.Warn("推理轨迹落库失败", zap.String("task_id", taskID.String()), zap.Error(err))
		}
	}
}

// HandleStopChat 处理停止会话请求。身份不匹配时静默忽略。
func (h *ChatHandler) HandleStopChat(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.StopChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.TaskID == uuid.Nil {
		WriteError(w, types.NewValidateError("任务 ID 不能为空"), h.logger)
		return
	}

	userID, invokeFrom := callerIdentity(r)
	if err := agent.SetStopFlag(r.Context(), h.taskStore, req.TaskID, invokeFrom, userID); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"task_id": req.TaskID})
}

// thoughtAggregator 将同一 id 的 agent_message 增量聚合为完整记录，
// 供落库使用。ping 事件被丢弃。
type thoughtAggregator struct {
	order []uuid.UUID
	byID  map[uuid.UUID]*agent.AgentThought
}

func newThoughtAggregator() *thoughtAggregator {
	return &thoughtAggregator{byID: make(map[uuid.UUID]*agent.AgentThought)}
}

func (a *thoughtAggregator) add(thought *agent.AgentThought) {
	if thought == nil || thought.Event == agent.EventPing {
		return
	}
	existing, ok := a.byID[thought.ID]
	if !ok {
		clone := *thought
		a.byID[thought.ID] = &clone
		a.order = append(a.order, thought.ID)
		return
	}
	// 增量拼接，统计字段以最后一条为准
	existing.Thought += thought.Thought
	existing.Answer += thought.Answer
	if thought.TotalTokenCount > 0 {
		existing.MessageTokenCount = thought.MessageTokenCount
		existing.AnswerTokenCount = thought.AnswerTokenCount
		existing.TotalTokenCount = thought.TotalTokenCount
		existing.TotalPrice = thought.TotalPrice
	}
	if thought.Latency > 0 {
		existing.Latency = thought.Latency
	}
}

func (a *thoughtAggregator) list() []*agent.AgentThought {
	out := make([]*agent.AgentThought, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.byID[id])
	}
	return out
}

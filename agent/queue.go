package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/appflow/internal/metrics"
	"github.com/BaSui01/appflow/types"
)

const (
	// 队列生命周期参数
	listenTimeout   = 600 * time.Second
	pingInterval    = 10 * time.Second
	popTimeout      = time.Second
	queueBufferSize = 1024

	// 任务归属键的有效期略长于监听超时，保证停止请求在整个会话
	// 周期内都能校验身份。
	taskBelongTTL  = 1800 * time.Second
	taskStoppedTTL = 600 * time.Second
)

func taskBelongKey(taskID uuid.UUID) string {
	return fmt.Sprintf("generate_task_belong:%s", taskID)
}

func taskStoppedKey(taskID uuid.UUID) string {
	return fmt.Sprintf("generate_task_stopped:%s", taskID)
}

// TaskStore 任务归属与停止标记的持久层抽象，Get 在键不存在时返回
// ok=false。*cache.Manager 通过 NewCacheStore 适配。
type TaskStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
}

// QueueManager 管理一组按任务隔离的事件队列。生产者（Agent 工作协程）
// 通过 Publish 推送事件，消费者通过 Listen 以心跳、超时与停止标记
// 约束下的阻塞迭代消费事件。
type QueueManager struct {
	userID     uuid.UUID
	invokeFrom InvokeFrom
	store      TaskStore
	logger     *zap.Logger
	metrics    *metrics.Collector

	// 监听节奏，默认取包级常量；测试中收紧以便观测心跳与超时。
	listenTimeout time.Duration
	pingInterval  time.Duration
	popTimeout    time.Duration

	mu     sync.Mutex
	queues map[uuid.UUID]chan *AgentThought
}

// NewQueueManager 创建队列管理器。store 不可为空，metrics 可为 nil。
func NewQueueManager(userID uuid.UUID, invokeFrom InvokeFrom, store TaskStore, logger *zap.Logger, collector *metrics.Collector) *QueueManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueManager{
		userID:        userID,
		invokeFrom:    invokeFrom,
		store:         store,
		logger:        logger.With(zap.String("component", "agent_queue")),
		metrics:       collector,
		listenTimeout: listenTimeout,
		pingInterval:  pingInterval,
		popTimeout:    popTimeout,
		queues:        make(map[uuid.UUID]chan *AgentThought),
	}
}

// queue 惰性创建任务队列，并在首次创建时登记任务归属，供跨进程的
// 停止请求校验身份。
func (m *QueueManager) queue(ctx context.Context, taskID uuid.UUID) chan *AgentThought {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[taskID]
	if ok {
		return q
	}
	q = make(chan *AgentThought, queueBufferSize)
	m.queues[taskID] = q

	owner := fmt.Sprintf("%s-%s", m.invokeFrom.userPrefix(), m.userID)
	if err := m.store.SetEx(ctx, taskBelongKey(taskID), owner, taskBelongTTL); err != nil {
		m.logger.Warn("任务归属登记失败", zap.String("task_id", taskID.String()), zap.Error(err))
	}
	return q
}

// Publish 向任务队列推送事件。终止类事件（stop/error/timeout/agent_end）
// 发布后自动追加停止哨兵，结束监听。
func (m *QueueManager) Publish(ctx context.Context, taskID uuid.UUID, thought *AgentThought) {
	q := m.queue(ctx, taskID)
	select {
	case q <- thought:
		m.metrics.IncAgentEvent(string(thought.Event))
		m.metrics.SetQueueDepth(taskID.String(), len(q))
	default:
		m.logger.Warn("任务队列已满，事件被丢弃",
			zap.String("task_id", taskID.String()),
			zap.String("event", string(thought.Event)))
	}
	if thought.Event.IsTerminal() {
		m.StopListen(ctx, taskID)
	}
}

// PublishError 将错误包装为 error 事件发布。
func (m *QueueManager) PublishError(ctx context.Context, taskID uuid.UUID, err error) {
	m.Publish(ctx, taskID, &AgentThought{
		ID:          uuid.New(),
		TaskID:      taskID,
		Event:       EventError,
		Observation: err.Error(),
	})
}

// StopListen 推送空哨兵，令 Listen 在消费完已有事件后退出。
func (m *QueueManager) StopListen(ctx context.Context, taskID uuid.UUID) {
	q := m.queue(ctx, taskID)
	select {
	case q <- nil:
	default:
	}
}

// Listen 按任务监听事件流。返回的通道在遇到空哨兵、超时或上下文
// 取消后关闭。监听期间每 10 秒穿插一次 ping 事件维持下游连接，
// 超过 600 秒发布 timeout 事件并终止，每个轮询周期检查一次外部
// 停止标记。
func (m *QueueManager) Listen(ctx context.Context, taskID uuid.UUID) <-chan *AgentThought {
	q := m.queue(ctx, taskID)
	out := make(chan *AgentThought)

	go func() {
		defer close(out)
		defer func() {
			m.mu.Lock()
			delete(m.queues, taskID)
			m.mu.Unlock()
			m.metrics.DeleteQueue(taskID.String())
		}()

		startAt := time.Now()
		lastPing := 0
		timer := time.NewTimer(m.popTimeout)
		defer timer.Stop()

		for {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(m.popTimeout)

			select {
			case <-ctx.Done():
				return
			case thought := <-q:
				if thought == nil {
					return
				}
				select {
				case out <- thought:
				case <-ctx.Done():
					return
				}
			case <-timer.C:
				// 队列空闲，继续下方的心跳与超时检查
			}

			elapsed := time.Since(startAt)
			if tick := int(elapsed / m.pingInterval); tick > lastPing {
				lastPing = tick
				select {
				case out <- &AgentThought{ID: uuid.New(), TaskID: taskID, Event: EventPing}:
				case <-ctx.Done():
					return
				}
			}
			if elapsed >= m.listenTimeout {
				select {
				case out <- &AgentThought{ID: uuid.New(), TaskID: taskID, Event: EventTimeout}:
				case <-ctx.Done():
				}
				return
			}
			if m.stopFlagSet(ctx, taskID) {
				select {
				case out <- &AgentThought{ID: uuid.New(), TaskID: taskID, Event: EventStop}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()

	return out
}

// stopFlagSet 检查外部停止标记是否已写入。
func (m *QueueManager) stopFlagSet(ctx context.Context, taskID uuid.UUID) bool {
	_, ok, err := m.store.Get(ctx, taskStoppedKey(taskID))
	if err != nil {
		m.logger.Warn("停止标记读取失败", zap.String("task_id", taskID.String()), zap.Error(err))
		return false
	}
	return ok
}

// SetStopFlag 写入任务停止标记。只有与队列创建时登记的归属身份一致
// 的调用方可以停止任务，归属缺失或不匹配时静默忽略。
func SetStopFlag(ctx context.Context, store TaskStore, taskID uuid.UUID, invokeFrom InvokeFrom, userID uuid.UUID) error {
	owner, ok, err := store.Get(ctx, taskBelongKey(taskID))
	if err != nil {
		return types.WrapError(types.ErrFail, "读取任务归属失败", err)
	}
	if !ok {
		return nil
	}
	caller := fmt.Sprintf("%s-%s", invokeFrom.userPrefix(), userID)
	if !strings.EqualFold(owner, caller) {
		return nil
	}
	return store.SetEx(ctx, taskStoppedKey(taskID), "1", taskStoppedTTL)
}

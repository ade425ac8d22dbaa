// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Collector 指标收集器
type Collector struct {
	// 工作流指标
	nodeExecutionsTotal   *prometheus.CounterVec
	nodeExecutionDuration *prometheus.HistogramVec

	// Agent 指标
	agentIterationsTotal *prometheus.CounterVec
	agentEventsTotal     *prometheus.CounterVec
	queueDepth           *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到给定的 registerer。
// registerer 为 nil 时使用 prometheus 默认注册表。
func NewCollector(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *Collector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := func(c prometheus.Collector) {
		registerer.MustRegister(c)
	}

	collector := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	collector.nodeExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_node_executions_total",
			Help:      "Total number of workflow node executions",
		},
		[]string{"node_type", "status"},
	)
	factory(collector.nodeExecutionsTotal)

	collector.nodeExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_node_duration_seconds",
			Help:      "Workflow node execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node_type"},
	)
	factory(collector.nodeExecutionDuration)

	collector.agentIterationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_iterations_total",
			Help:      "Total number of agent LLM turns",
		},
		[]string{"strategy"},
	)
	factory(collector.agentIterationsTotal)

	collector.agentEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_events_total",
			Help:      "Total number of published agent queue events",
		},
		[]string{"event"},
	)
	factory(collector.agentEventsTotal)

	collector.queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_queue_depth",
			Help:      "Current depth of per-task agent queues",
		},
		[]string{"task_id"},
	)
	factory(collector.queueDepth)

	return collector
}

// ObserveNode 记录一次节点执行。
func (c *Collector) ObserveNode(nodeType, status string, seconds float64) {
	if c == nil {
		return
	}
	c.nodeExecutionsTotal.WithLabelValues(nodeType, status).Inc()
	c.nodeExecutionDuration.WithLabelValues(nodeType).Observe(seconds)
}

// IncAgentIteration 记录一次 Agent LLM 轮次。
func (c *Collector) IncAgentIteration(strategy string) {
	if c == nil {
		return
	}
	c.agentIterationsTotal.WithLabelValues(strategy).Inc()
}

// IncAgentEvent 记录一次队列事件发布。
func (c *Collector) IncAgentEvent(event string) {
	if c == nil {
		return
	}
	c.agentEventsTotal.WithLabelValues(event).Inc()
}

// SetQueueDepth 更新任务队列深度。
func (c *Collector) SetQueueDepth(taskID string, depth int) {
	if c == nil {
		return
	}
	c.queueDepth.WithLabelValues(taskID).Set(float64(depth))
}

// DeleteQueue 移除任务队列深度指标。
func (c *Collector) DeleteQueue(taskID string) {
	if c == nil {
		return
	}
	c.queueDepth.DeleteLabelValues(taskID)
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/appflow/agent"
	"github.com/BaSui01/appflow/api/handlers"
	"github.com/BaSui01/appflow/config"
	"github.com/BaSui01/appflow/internal/cache"
	"github.com/BaSui01/appflow/internal/metrics"
	"github.com/BaSui01/appflow/llm"
	"github.com/BaSui01/appflow/rag"
	"github.com/BaSui01/appflow/store"
	"github.com/BaSui01/appflow/tools"
	"github.com/BaSui01/appflow/types"
	"github.com/BaSui01/appflow/workflow"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装 AppFlow 的全部组件并管理其生命周期。
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	registry  *prometheus.Registry
	collector *metrics.Collector
	cache     *cache.Manager
	store     *store.Store
	tools     *tools.Registry
	model     llm.Model
	retrieval rag.RetrieverFactory
	runner    workflow.CodeRunner
}

// NewServer 创建服务器实例并初始化依赖组件。Redis 不可用时会话
// 停止接口降级，数据库不可用时直接失败。
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}

	s.registry = prometheus.NewRegistry()
	s.collector = metrics.NewCollector(cfg.Telemetry.MetricsNamespace, s.registry, logger)

	cacheManager, err := cache.NewManager(cache.Config{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, logger)
	if err != nil {
		logger.Warn("Redis not available, chat endpoints disabled", zap.Error(err))
	} else {
		s.cache = cacheManager
	}

	st, err := store.Open(store.Config{
		Driver:          store.Driver(cfg.Database.Driver),
		DSN:             cfg.Database.DSN,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	s.store = st

	s.tools = tools.NewRegistry()
	tools.RegisterBuiltins(s.tools)

	return s, nil
}

// SetModel 注入模型实现。模型客户端在库外提供，未注入时 LLM 节点
// 与会话接口返回模型未配置错误。
func (s *Server) SetModel(m llm.Model) { s.model = m }

// SetRetrieverFactory 注入知识库检索实现，未注入时检索节点返回
// 检索能力未配置错误。
func (s *Server) SetRetrieverFactory(f rag.RetrieverFactory) { s.retrieval = f }

// SetCodeRunner 注入代码节点的进程外运行器，未注入时代码节点返回
// 运行器未配置错误。
func (s *Server) SetCodeRunner(r workflow.CodeRunner) { s.runner = r }

// workflowDeps 构造工作流运行时依赖。
func (s *Server) workflowDeps() workflow.Deps {
	return workflow.Deps{
		ModelFactory: func(config workflow.ModelNodeConfig) (llm.Model, error) {
			if s.model == nil {
				return nil, types.NewError(types.ErrModelInvoke, "模型提供商未配置")
			}
			return s.model, nil
		},
		Tools:      s.tools,
		Retrieval:  s.retrieval,
		CodeRunner: s.runner,
		HTTPClient: &http.Client{Timeout: s.cfg.Workflow.HTTPRequestTimeout},
		Workflows:  s.store,
		Logger:     s.logger,
		Metrics:    s.collector,
		Tracer:     otel.Tracer("appflow"),
	}
}

// agentFactory 按调用方身份构造智能体。
func (s *Server) agentFactory(taskStore agent.TaskStore) handlers.AgentFactory {
	return func(userID uuid.UUID, invokeFrom agent.InvokeFrom) (agent.Agent, error) {
		if s.model == nil {
			return nil, types.NewError(types.ErrModelInvoke, "模型提供商未配置")
		}
		queue := agent.NewQueueManager(userID, invokeFrom, taskStore, s.logger, s.collector)
		agentConfig := agent.AgentConfig{
			UserID:               userID,
			InvokeFrom:           invokeFrom,
			EnableLongTermMemory: s.cfg.Agent.EnableLongTermMemory,
			MaxIterationCount:    s.cfg.Agent.MaxIterationCount,
			Review: agent.ReviewConfig{
				Enable:   s.cfg.Agent.Review.Enable,
				Keywords: s.cfg.Agent.Review.Keywords,
			},
		}
		if s.cfg.Agent.Strategy == "react" {
			return agent.NewReActAgent(s.model, agentConfig, queue, s.logger, s.collector)
		}
		return agent.NewFunctionCallAgent(s.model, agentConfig, queue, s.logger, s.collector)
	}
}

// Run 启动 HTTP 与 Metrics 服务并阻塞到退出信号。
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router := &handlers.Router{
		Health:   handlers.NewHealthHandler(Version),
		Workflow: handlers.NewWorkflowHandler(s.store, s.workflowDeps(), s.logger),
	}
	if s.cache != nil {
		taskStore := agent.NewCacheStore(s.cache)
		router.Chat = handlers.NewChatHandler(s.agentFactory(taskStore), taskStore, s.store, s.logger)
	}

	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		Handler:     router.Mux(),
		ReadTimeout: s.cfg.Server.ReadTimeout,
		// WriteTimeout 保持 0，SSE 长连接不能被写超时切断
	}

	metricsRouter := &handlers.Router{Gatherer: s.registry}
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		Handler: metricsRouter.Mux(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("http server listening", zap.Int("port", s.cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		s.logger.Info("metrics server listening", zap.Int("port", s.cfg.Server.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http server shutdown failed", zap.Error(err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
		if s.cache != nil {
			_ = s.cache.Close()
		}
		return s.store.Close()
	})

	return g.Wait()
}

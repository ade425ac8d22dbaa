package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router 聚合全部处理器并注册路由。
type Router struct {
	Chat     *ChatHandler
	Workflow *WorkflowHandler
	Health   *HealthHandler

	// Gatherer 为 nil 时不暴露 /metrics
	Gatherer prometheus.Gatherer
}

// Mux 构建路由表。
func (r *Router) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	if r.Health != nil {
		mux.HandleFunc("GET /health", r.Health.HandleHealth)
	}
	if r.Chat != nil {
		mux.HandleFunc("POST /v1/chat", r.Chat.HandleChat)
		mux.HandleFunc("POST /v1/chat/stop", r.Chat.HandleStopChat)
	}
	if r.Workflow != nil {
		mux.HandleFunc("POST /v1/workflows", r.Workflow.HandleCreate)
		mux.HandleFunc("GET /v1/workflows", r.Workflow.HandleList)
		mux.HandleFunc("GET /v1/workflows/{id}", r.Workflow.HandleGet)
		mux.HandleFunc("PUT /v1/workflows/{id}/draft", r.Workflow.HandleUpdateDraft)
		mux.HandleFunc("POST /v1/workflows/{id}/publish", r.Workflow.HandlePublish)
		mux.HandleFunc("POST /v1/workflows/{id}/run", r.Workflow.HandleRun)
	}
	if r.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(r.Gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

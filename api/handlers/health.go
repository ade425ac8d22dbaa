package handlers

import (
	"net/http"
	"time"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	startAt time.Time
	version string
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{startAt: time.Now(), version: version}
}

// HandleHealth 返回进程存活状态与运行时长。
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, map[string]any{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.startAt).String(),
	})
}

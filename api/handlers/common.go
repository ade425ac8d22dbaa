package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/appflow/types"
)

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入成功响应
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError 按错误码写入错误响应
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	code := types.CodeOf(err)
	status := httpStatusOf(code)
	if logger != nil && status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("code", string(code)), zap.Error(err))
	}
	WriteJSON(w, status, Response{
		Success:   false,
		Error:     &ErrorInfo{Code: string(code), Message: err.Error()},
		Timestamp: time.Now(),
	})
}

// httpStatusOf 将统一错误码映射到 HTTP 状态码
func httpStatusOf(code types.ErrorCode) int {
	switch code {
	case types.ErrValidate, types.ErrDuplicateNode, types.ErrDuplicateEdge,
		types.ErrDanglingEdge, types.ErrGraphCycle, types.ErrGraphConnect,
		types.ErrUnknownNode, types.ErrMissingInput:
		return http.StatusBadRequest
	case types.ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ValidateContentType 校验请求体必须为 application/json
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		WriteError(w, types.NewValidateError("Content-Type 必须为 application/json"), logger)
		return false
	}
	return true
}

// DecodeJSONBody 解码 JSON 请求体
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		wrapped := types.WrapError(types.ErrValidate, "请求体解析失败", err)
		WriteError(w, wrapped, logger)
		return wrapped
	}
	return nil
}

// RequireMethod 校验请求方法
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteJSON(w, http.StatusMethodNotAllowed, Response{
			Success:   false,
			Error:     &ErrorInfo{Code: string(types.ErrFail), Message: fmt.Sprintf("method %s not allowed", r.Method)},
			Timestamp: time.Now(),
		})
		return false
	}
	return true
}

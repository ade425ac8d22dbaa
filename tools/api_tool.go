package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ParameterIn 声明参数在 HTTP 请求中的位置。
type ParameterIn string

const (
	InPath        ParameterIn = "path"
	InQuery       ParameterIn = "query"
	InHeader      ParameterIn = "header"
	InCookie      ParameterIn = "cookie"
	InRequestBody ParameterIn = "request_body"
)

// APIParameter 是 API 插件的声明式参数描述。
type APIParameter struct {
	Name        string      `json:"name"`
	In          ParameterIn `json:"in"`
	Type        string      `json:"type"`
	Required    bool        `json:"required"`
	Description string      `json:"description,omitempty"`
}

// APIHeader 是随请求固定携带的头部键值对。
type APIHeader struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// APIToolEntity 描述一个用户注册的 API 插件：URL 模板、方法、
// 参数位置声明与默认头部。
type APIToolEntity struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	URL         string         `json:"url"` // 可含 {param} 形式的路径占位符
	Method      string         `json:"method"`
	Description string         `json:"description"`
	Headers     []APIHeader    `json:"headers"`
	Parameters  []APIParameter `json:"parameters"`
}

// APITool executes a declaratively described HTTP API as a Tool.
// Outbound calls share a rate limiter so a runaway agent loop cannot
// hammer a user's endpoint.
type APITool struct {
	entity  APIToolEntity
	client  *http.Client
	limiter *rate.Limiter
}

// NewAPITool creates an API tool from its entity. A nil client falls back
// to a client with the same connect/read budget the original used.
func NewAPITool(entity APIToolEntity, client *http.Client) *APITool {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &APITool{
		entity:  entity,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

// Name 形如 "{id}_{name}"，与工具调用消息中的名称保持一致。
func (t *APITool) Name() string {
	return fmt.Sprintf("%s_%s", t.entity.ID, t.entity.Name)
}

func (t *APITool) Description() string { return t.entity.Description }

// ArgsSchema builds a JSON Schema from the declared parameters.
func (t *APITool) ArgsSchema() json.RawMessage {
	properties := make(map[string]any, len(t.entity.Parameters))
	required := make([]string, 0)
	for _, p := range t.entity.Parameters {
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		properties[p.Name] = map[string]any{"type": typ, "description": p.Description}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	raw, _ := json.Marshal(schema)
	return raw
}

// Invoke 依据参数位置声明拼装并发出 HTTP 请求，返回响应文本。
// 未在声明中的参数直接忽略。
func (t *APITool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	placed := map[ParameterIn]map[string]any{
		InPath:        {},
		InQuery:       {},
		InHeader:      {},
		InCookie:      {},
		InRequestBody: {},
	}
	paramMap := make(map[string]APIParameter, len(t.entity.Parameters))
	for _, p := range t.entity.Parameters {
		paramMap[p.Name] = p
	}
	for name, value := range args {
		p, ok := paramMap[name]
		if !ok {
			continue
		}
		in := p.In
		if in == "" {
			in = InQuery
		}
		placed[in][name] = value
	}

	// 路径参数直接替换 URL 模板中的 {name} 占位符。
	rawURL := t.entity.URL
	for name, value := range placed[InPath] {
		rawURL = strings.ReplaceAll(rawURL, "{"+name+"}", url.PathEscape(fmt.Sprint(value)))
	}

	var body io.Reader
	if len(placed[InRequestBody]) > 0 {
		raw, err := json.Marshal(placed[InRequestBody])
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		body = strings.NewReader(string(raw))
	}

	method := strings.ToUpper(t.entity.Method)
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	query := req.URL.Query()
	for name, value := range placed[InQuery] {
		query.Set(name, fmt.Sprint(value))
	}
	req.URL.RawQuery = query.Encode()

	for _, h := range t.entity.Headers {
		req.Header.Set(h.Key, h.Value)
	}
	for name, value := range placed[InHeader] {
		req.Header.Set(name, fmt.Sprint(value))
	}
	for name, value := range placed[InCookie] {
		req.AddCookie(&http.Cookie{Name: name, Value: fmt.Sprint(value)})
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return string(text), nil
}

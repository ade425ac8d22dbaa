package workflow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BaSui01/appflow/types"
)

// httpRequestExecutor builds params/headers/body from placement-tagged
// inputs and issues the request. GET requests carry no body; the other
// methods send the body inputs as a form payload.
type httpRequestExecutor struct {
	data   *HTTPRequestNodeData
	client *http.Client
}

func (e *httpRequestExecutor) execute(ctx context.Context, state *WorkflowState) (*execResult, error) {
	startAt := time.Now()

	resolved, err := ExtractVariables(e.data.Inputs, state)
	if err != nil {
		return nil, err
	}

	// 按 meta["type"] 声明的位置归类输入。
	placed := map[string]map[string]any{
		HTTPInputParams:  {},
		HTTPInputHeaders: {},
		HTTPInputBody:    {},
	}
	for _, input := range e.data.Inputs {
		placement, _ := input.Meta["type"].(string)
		bucket, ok := placed[placement]
		if !ok {
			bucket = placed[HTTPInputParams]
		}
		bucket[input.Name] = resolved[input.Name]
	}

	method := strings.ToUpper(string(e.data.Method))
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if method != http.MethodGet && len(placed[HTTPInputBody]) > 0 {
		form := url.Values{}
		for name, value := range placed[HTTPInputBody] {
			form.Set(name, fmt.Sprint(value))
		}
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, e.data.URL, body)
	if err != nil {
		return nil, types.WrapError(types.ErrFail, "构建HTTP请求失败", err)
	}
	query := req.URL.Query()
	for name, value := range placed[HTTPInputParams] {
		query.Set(name, fmt.Sprint(value))
	}
	req.URL.RawQuery = query.Encode()
	for name, value := range placed[HTTPInputHeaders] {
		req.Header.Set(name, fmt.Sprint(value))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	client := e.client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, types.WrapError(types.ErrFail, "HTTP请求执行失败", err)
	}
	defer resp.Body.Close()
	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.WrapError(types.ErrFail, "读取HTTP响应失败", err)
	}

	outputs := map[string]any{
		"status_code": resp.StatusCode,
		"text":        string(text),
	}

	return &execResult{delta: resultDelta(&NodeResult{
		NodeData: e.data,
		Status:   StatusSucceeded,
		Inputs:   resolved,
		Outputs:  outputs,
		Latency:  time.Since(startAt).Seconds(),
	})}, nil
}

package workflow

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/appflow/types"
)

func httpNodeData(url string, method HTTPMethod, inputs ...VariableEntity) *HTTPRequestNodeData {
	return &HTTPRequestNodeData{
		BaseNodeData: BaseNodeData{ID: uuid.New(), Title: "HTTP请求", NodeType: NodeHTTPRequest},
		URL:          url,
		Method:       method,
		Inputs:       inputs,
	}
}

func placedInput(name, placement string, content any) VariableEntity {
	return VariableEntity{
		Name:  name,
		Type:  VarTypeString,
		Value: LiteralValue(content),
		Meta:  map[string]any{"type": placement},
	}
}

func TestHTTPRequestExecutor_Placement(t *testing.T) {
	var captured *http.Request
	var capturedBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(r.Context())
		raw, _ := io.ReadAll(r.Body)
		capturedBody = string(raw)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("天气晴"))
	}))
	defer server.Close()

	data := httpNodeData(server.URL, MethodPost,
		placedInput("city", HTTPInputParams, "北京"),
		placedInput("trace", HTTPInputHeaders, "abc123"),
		placedInput("unit", HTTPInputBody, "celsius"),
	)
	exec := &httpRequestExecutor{data: data, client: server.Client()}

	result, err := exec.execute(context.Background(), NewWorkflowState(nil))
	require.NoError(t, err)
	require.NotNil(t, captured)

	assert.Equal(t, http.MethodPost, captured.Method)
	assert.Equal(t, "北京", captured.URL.Query().Get("city"))
	assert.Equal(t, "abc123", captured.Header.Get("trace"))
	assert.Contains(t, captured.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
	assert.Contains(t, capturedBody, "unit=celsius")

	require.Len(t, result.delta.NodeResults, 1)
	outputs := result.delta.NodeResults[0].Outputs
	assert.Equal(t, http.StatusOK, outputs["status_code"])
	assert.Equal(t, "天气晴", outputs["text"])
}

func TestHTTPRequestExecutor_GetOmitsBody(t *testing.T) {
	var capturedBody string
	var capturedContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		capturedBody = string(raw)
		capturedContentType = r.Header.Get("Content-Type")
	}))
	defer server.Close()

	// 方法缺省为 GET，body 位置的输入被丢弃
	data := httpNodeData(server.URL, "", placedInput("unit", HTTPInputBody, "celsius"))
	exec := &httpRequestExecutor{data: data, client: server.Client()}

	_, err := exec.execute(context.Background(), NewWorkflowState(nil))
	require.NoError(t, err)
	assert.Empty(t, capturedBody)
	assert.Empty(t, capturedContentType)
}

func TestHTTPRequestExecutor_UnknownPlacementDefaultsToParams(t *testing.T) {
	var captured *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(r.Context())
	}))
	defer server.Close()

	data := httpNodeData(server.URL, MethodGet, placedInput("q", "somewhere", "hello"))
	exec := &httpRequestExecutor{data: data, client: server.Client()}

	_, err := exec.execute(context.Background(), NewWorkflowState(nil))
	require.NoError(t, err)
	assert.Equal(t, "hello", captured.URL.Query().Get("q"))
}

func TestHTTPRequestExecutor_RequestFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	data := httpNodeData(server.URL, MethodGet)
	exec := &httpRequestExecutor{data: data, client: &http.Client{}}

	_, err := exec.execute(context.Background(), NewWorkflowState(nil))
	require.Error(t, err)
	assert.Equal(t, types.ErrFail, types.CodeOf(err))
}

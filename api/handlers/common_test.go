package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/appflow/types"
)

func TestHTTPStatusOf(t *testing.T) {
	badRequest := []types.ErrorCode{
		types.ErrValidate, types.ErrDuplicateNode, types.ErrDuplicateEdge,
		types.ErrDanglingEdge, types.ErrGraphCycle, types.ErrGraphConnect,
		types.ErrUnknownNode, types.ErrMissingInput,
	}
	for _, code := range badRequest {
		assert.Equal(t, http.StatusBadRequest, httpStatusOf(code), string(code))
	}
	assert.Equal(t, http.StatusNotFound, httpStatusOf(types.ErrNotFound))
	assert.Equal(t, http.StatusInternalServerError, httpStatusOf(types.ErrFail))
	assert.Equal(t, http.StatusInternalServerError, httpStatusOf(types.ErrModelInvoke))
}

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, map[string]any{"value": 42})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError(t *testing.T) {
	t.Run("validate error maps to 400", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, types.NewValidateError("名称不合法"), nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, string(types.ErrValidate), resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "名称不合法")
	})

	t.Run("not found maps to 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, types.NewError(types.ErrNotFound, "该工作流不存在"), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("plain error maps to 500", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, assert.AnError, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestValidateContentType(t *testing.T) {
	t.Run("json passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		assert.True(t, ValidateContentType(httptest.NewRecorder(), req, nil))
	})

	t.Run("other content types rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "text/plain")
		rec := httptest.NewRecorder()
		assert.False(t, ValidateContentType(rec, req, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDecodeJSONBody(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"demo"}`))
		var dst struct {
			Name string `json:"name"`
		}
		require.NoError(t, DecodeJSONBody(httptest.NewRecorder(), req, &dst, nil))
		assert.Equal(t, "demo", dst.Name)
	})

	t.Run("broken body writes 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{broken"))
		rec := httptest.NewRecorder()
		var dst map[string]any
		require.Error(t, DecodeJSONBody(rec, req, &dst, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRequireMethod(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, RequireMethod(httptest.NewRecorder(), req, http.MethodGet))

	rec := httptest.NewRecorder()
	assert.False(t, RequireMethod(rec, req, http.MethodPost))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	handler := NewHealthHandler("1.2.3")
	rec := httptest.NewRecorder()
	handler.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "1.2.3", data["version"])
}

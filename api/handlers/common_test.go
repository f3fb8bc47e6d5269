package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BaSui01/landau/rag"
	"github.com/BaSui01/landau/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"message":"hello"}`, w.Body.String())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantDetail string
	}{
		{
			name:       "invalid request",
			err:        types.NewError(types.ErrInvalidRequest, "top_n must be greater than 0"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
			wantDetail: "top_n must be greater than 0",
		},
		{
			name:       "explicit status wins",
			err:        types.NewError(types.ErrInvalidRequest, "x").WithHTTPStatus(http.StatusTeapot),
			wantStatus: http.StatusTeapot,
			wantCode:   "INVALID_REQUEST",
			wantDetail: "x",
		},
		{
			name:       "store unavailable",
			err:        types.NewServiceUnavailableError("passage store unreachable", nil),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "SERVICE_UNAVAILABLE",
			wantDetail: "passage store unreachable",
		},
		{
			name:       "not found sentinel",
			err:        fmt.Errorf("section 3.9 in %q: %w", "EX1", rag.ErrNotFound),
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
			wantDetail: `section 3.9 in "EX1": not found`,
		},
		{
			name:       "plain error is hidden",
			err:        assert.AnError,
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
			wantDetail: "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err, zap.NewNop())

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, tt.wantDetail, resp.Detail)
			assert.False(t, resp.Timestamp.IsZero())
		})
	}
}

func TestWriteError_Retryable(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, types.NewServiceUnavailableError("down", nil), nil)
	assert.True(t, decodeError(t, w).Retryable)
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"name":"EX1"}`},
		{name: "empty body", body: "", wantErr: true},
		{name: "malformed", body: `{"name":`, wantErr: true},
		{name: "unknown field", body: `{"name":"EX1","extra":1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body *strings.Reader
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.body != "" {
				body = strings.NewReader(tt.body)
				req = httptest.NewRequest(http.MethodPost, "/", body)
			}
			w := httptest.NewRecorder()

			var dst payload
			err := DecodeJSONBody(w, req, &dst, zap.NewNop())
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, http.StatusBadRequest, w.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "EX1", dst.Name)
		})
	}
}

func TestDecodeJSONBody_MaxBodySize(t *testing.T) {
	big := `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	w := httptest.NewRecorder()

	var dst struct {
		Name string `json:"name"`
	}
	err := DecodeJSONBody(w, req, &dst, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)
	assert.Equal(t, http.StatusOK, rw.StatusCode)

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusOK)
	assert.Equal(t, http.StatusNotFound, rw.StatusCode)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Same(t, rec, rw.Unwrap())
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	cases := map[types.ErrorCode]int{
		types.ErrInvalidRequest:         http.StatusBadRequest,
		types.ErrMalformedToolArguments: http.StatusBadRequest,
		types.ErrNotFound:               http.StatusNotFound,
		types.ErrTurnInProgress:         http.StatusConflict,
		types.ErrRateLimit:              http.StatusTooManyRequests,
		types.ErrServiceUnavailable:     http.StatusServiceUnavailable,
		types.ErrUpstreamError:          http.StatusBadGateway,
		types.ErrUpstreamTimeout:        http.StatusGatewayTimeout,
		types.ErrorCode("SOMETHING"):    http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, mapErrorCodeToHTTPStatus(code), string(code))
	}
}

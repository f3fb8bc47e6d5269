package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/BaSui01/landau/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		msg       string
		wantCode  types.ErrorCode
		wantRetry bool
	}{
		{"401", http.StatusUnauthorized, "bad key", types.ErrAuthentication, false},
		{"403", http.StatusForbidden, "nope", types.ErrForbidden, false},
		{"429", http.StatusTooManyRequests, "slow down", types.ErrRateLimit, true},
		{"400 quota", http.StatusBadRequest, "You exceeded your Quota", types.ErrQuotaExceeded, false},
		{"400 context", http.StatusBadRequest, "maximum context length is 8192", types.ErrContextTooLong, false},
		{"400 plain", http.StatusBadRequest, "missing field", types.ErrInvalidRequest, false},
		{"503", http.StatusServiceUnavailable, "", types.ErrServiceUnavailable, true},
		{"529 overloaded", 529, "overloaded", types.ErrServiceUnavailable, true},
		{"504", http.StatusGatewayTimeout, "", types.ErrUpstreamTimeout, true},
		{"500", http.StatusInternalServerError, "", types.ErrUpstreamError, true},
		{"418", http.StatusTeapot, "", types.ErrUpstreamError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapHTTPError(tt.status, tt.msg, "openai")
			assert.Equal(t, tt.wantCode, err.Code)
			assert.Equal(t, tt.wantRetry, err.Retryable)
			assert.Equal(t, tt.status, err.HTTPStatus)
			assert.Equal(t, "openai", err.Provider)
		})
	}
}

func TestMapHTTPError_ServerErrorsAreRetryable(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		status := rapid.IntRange(500, 599).Draw(t, "status")
		assert.True(t, MapHTTPError(status, "x", "p").Retryable)
	})
}

func TestReadErrorMessage(t *testing.T) {
	assert.Equal(t, "bad things (type: invalid_request_error)",
		ReadErrorMessage(strings.NewReader(`{"error":{"message":"bad things","type":"invalid_request_error"}}`)))
	assert.Equal(t, "plain text", ReadErrorMessage(strings.NewReader("plain text\n")))
}

func TestTransportError(t *testing.T) {
	err := TransportError(errors.New("dial tcp: refused"), "claude")
	assert.Equal(t, types.ErrServiceUnavailable, err.Code)
	assert.True(t, err.Retryable)

	err = TransportError(context.DeadlineExceeded, "claude")
	assert.Equal(t, types.ErrUpstreamTimeout, err.Code)
}

func TestReadSSE(t *testing.T) {
	body := "event: message\ndata: {\"a\":1}\n\n: comment\ndata:   \ndata: {\"a\":2}\ndata: [DONE]\ndata: {\"a\":3}\n"
	var got []string
	err := ReadSSE(context.Background(), strings.NewReader(body), func(data string) error {
		got = append(got, data)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{`{"a":1}`, `{"a":2}`}, got)
}

func TestReadSSE_StopAndError(t *testing.T) {
	body := "data: 1\ndata: 2\ndata: 3"
	var got []string
	err := ReadSSE(context.Background(), strings.NewReader(body), func(data string) error {
		got = append(got, data)
		if data == "2" {
			return ErrStopSSE
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, got)

	boom := errors.New("boom")
	err = ReadSSE(context.Background(), strings.NewReader(body), func(string) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestReadSSE_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ReadSSE(ctx, strings.NewReader("data: 1\n"), func(string) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChooseModel(t *testing.T) {
	assert.Equal(t, "req", ChooseModel("req", "cfg", "def"))
	assert.Equal(t, "cfg", ChooseModel("", "cfg", "def"))
	assert.Equal(t, "def", ChooseModel("", "", "def"))
}

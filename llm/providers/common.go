package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/landau/types"
)

// MapHTTPError 将 HTTP 状态码映射为带有合适重试标记的 types.Error
func MapHTTPError(status int, msg string, provider string) *types.Error {
	e := &types.Error{Message: msg, HTTPStatus: status, Provider: provider}
	switch status {
	case http.StatusUnauthorized:
		e.Code = types.ErrAuthentication
	case http.StatusForbidden:
		e.Code = types.ErrForbidden
	case http.StatusNotFound:
		e.Code = types.ErrModelNotFound
	case http.StatusTooManyRequests:
		e.Code = types.ErrRateLimit
		e.Retryable = true
	case http.StatusBadRequest:
		// 检查配额/信用关键字
		lower := strings.ToLower(msg)
		switch {
		case strings.Contains(lower, "quota"), strings.Contains(lower, "credit"):
			e.Code = types.ErrQuotaExceeded
		case strings.Contains(lower, "context length"), strings.Contains(lower, "too many tokens"):
			e.Code = types.ErrContextTooLong
		default:
			e.Code = types.ErrInvalidRequest
		}
	case http.StatusServiceUnavailable, http.StatusBadGateway, 529:
		e.Code = types.ErrServiceUnavailable
		e.Retryable = true
	case http.StatusGatewayTimeout:
		e.Code = types.ErrUpstreamTimeout
		e.Retryable = true
	default:
		e.Code = types.ErrUpstreamError
		e.Retryable = status >= 500
	}
	return e
}

// ReadErrorMessage 读取响应体中的错误消息
// 尝试解析 JSON 错误响应，失败则回退到原始文本
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return strings.TrimSpace(string(data))
}

// TransportError 把网络层错误包装为可重试的 ServiceUnavailable。
func TransportError(err error, provider string) *types.Error {
	if errors.Is(err, context.Canceled) {
		return types.NewError(types.ErrTimeout, "request canceled").WithCause(err).WithProvider(provider)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrUpstreamTimeout, "request timed out").
			WithCause(err).WithRetryable(true).WithProvider(provider)
	}
	return types.NewServiceUnavailableError("provider unreachable", err).WithProvider(provider)
}

// ErrStopSSE 由 ReadSSE 回调返回以提前结束读取，不视为错误。
var ErrStopSSE = errors.New("stop sse")

// ReadSSE 逐行读取 text/event-stream，把每个 "data:" 负载交给 fn。
// 遇到 "[DONE]"、EOF 或 ctx 取消时返回。
func ReadSSE(ctx context.Context, body io.Reader, fn func(data string) error) error {
	reader := bufio.NewReaderSize(body, 64<<10)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := reader.ReadString('\n')
		if line = strings.TrimSpace(line); strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return nil
			}
			if data != "" {
				if cbErr := fn(data); cbErr != nil {
					if errors.Is(cbErr, ErrStopSSE) {
						return nil
					}
					return cbErr
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/landau/llm"
	"github.com/BaSui01/landau/llm/providers"
	"github.com/BaSui01/landau/types"
	"go.uber.org/zap"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 4096
	apiVersion       = "2023-06-01"
)

// Provider 实现 Anthropic Claude 的 LLM Provider。
type Provider struct {
	cfg    providers.ClaudeConfig
	client *http.Client
	logger *zap.Logger
}

// NewProvider 创建 Claude Provider。
func NewProvider(cfg providers.ClaudeConfig, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second // Claude 响应可能较慢
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("provider", "claude")),
	}
}

func (p *Provider) Name() string { return "claude" }

func (p *Provider) StreamStyle() llm.StreamStyle { return llm.StyleDeltaObject }

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")
}

func (p *Provider) maxTokens(req *llm.ChatRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if p.cfg.MaxTokens > 0 {
		return p.cfg.MaxTokens
	}
	return defaultMaxTokens
}

func (p *Provider) buildRequest(req *llm.ChatRequest, stream bool) claudeRequest {
	system, msgs := convertMessages(req.Messages)
	body := claudeRequest{
		Model:       providers.ChooseModel(req.Model, p.cfg.Model, defaultModel),
		Messages:    msgs,
		System:      system,
		MaxTokens:   p.maxTokens(req),
		Temperature: req.Temperature,
		TopP:        req.TopP,
		StopSeq:     req.Stop,
		Stream:      stream,
		Tools:       convertTools(req.Tools),
	}
	if len(body.Tools) > 0 {
		body.ToolChoice = convertToolChoice(req.ToolChoice)
	}
	return body
}

func (p *Provider) do(ctx context.Context, body claudeRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(err, p.Name())
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.Name())
	}
	return resp, nil
}

func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := p.do(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var cr claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "decode response").
			WithCause(err).WithRetryable(true).WithProvider(p.Name())
	}
	out := toChatResponse(cr, p.Name())
	out.CreatedAt = time.Now()
	return out, nil
}

func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.do(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, err
	}
	return streamEvents(ctx, resp.Body, p.Name()), nil
}

// streamEvents 把 Claude 事件流转换为 delta object 分片。
// 参数片段不在这里累积，由 llm/stream 的归一化器负责。
func streamEvents(ctx context.Context, body io.ReadCloser, providerName string) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)

		var id, model string
		var inputTokens int
		send := func(chunk llm.StreamChunk) error {
			chunk.ID, chunk.Provider, chunk.Model = id, providerName, model
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ch <- chunk:
				return nil
			}
		}

		err := providers.ReadSSE(ctx, body, func(data string) error {
			var event claudeStreamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				return types.NewError(types.ErrUpstreamError, "malformed stream payload").
					WithCause(err).WithRetryable(true).WithProvider(providerName)
			}

			switch event.Type {
			case "message_start":
				if event.Message != nil {
					id, model = event.Message.ID, event.Message.Model
					if event.Message.Usage != nil {
						inputTokens = event.Message.Usage.InputTokens
					}
				}
			case "content_block_start":
				if event.ContentBlock == nil {
					return nil
				}
				switch event.ContentBlock.Type {
				case "tool_use":
					return send(llm.StreamChunk{ToolUse: &llm.ToolUseDelta{
						ID:   event.ContentBlock.ID,
						Name: event.ContentBlock.Name,
					}})
				case "text":
					if event.ContentBlock.Text != "" {
						return send(llm.StreamChunk{Text: event.ContentBlock.Text})
					}
				}
			case "content_block_delta":
				if event.Delta == nil {
					return nil
				}
				switch event.Delta.Type {
				case "text_delta":
					return send(llm.StreamChunk{Text: event.Delta.Text})
				case "input_json_delta":
					return send(llm.StreamChunk{ToolUse: &llm.ToolUseDelta{PartialJSON: event.Delta.PartialJSON}})
				}
			case "message_delta":
				chunk := llm.StreamChunk{}
				if event.Delta != nil {
					chunk.FinishReason = event.Delta.StopReason
				}
				if event.Usage != nil {
					chunk.Usage = &llm.ChatUsage{
						PromptTokens:     inputTokens,
						CompletionTokens: event.Usage.OutputTokens,
						TotalTokens:      inputTokens + event.Usage.OutputTokens,
					}
				}
				if chunk.FinishReason != "" || chunk.Usage != nil {
					return send(chunk)
				}
			case "message_stop":
				return providers.ErrStopSSE
			case "error":
				msg := "stream error"
				if event.Error != nil {
					msg = event.Error.Message
				}
				return types.NewServiceUnavailableError(msg, nil).WithProvider(providerName)
			}
			return nil
		})
		if err == nil || ctx.Err() != nil {
			return
		}
		typed, ok := types.AsError(err)
		if !ok {
			typed = providers.TransportError(err, providerName)
		}
		select {
		case <-ctx.Done():
		case ch <- llm.StreamChunk{ID: id, Provider: providerName, Model: model, Err: typed}:
		}
	}()
	return ch
}

func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/v1/models", nil)
	if err != nil {
		return &llm.HealthStatus{Healthy: false}, err
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, providers.TransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := providers.ReadErrorMessage(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency}, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BaSui01/landau/llm"
	"github.com/BaSui01/landau/llm/providers"
	"github.com/BaSui01/landau/types"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.5-flash"
)

// Provider 实现 Google Gemini 的 LLM Provider。
type Provider struct {
	cfg    providers.GeminiConfig
	client *http.Client
	logger *zap.Logger
}

// NewProvider 创建 Gemini Provider。
func NewProvider(cfg providers.GeminiConfig, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
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
		logger: logger.With(zap.String("provider", "gemini")),
	}
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) StreamStyle() llm.StreamStyle { return llm.StylePreStructured }

func (p *Provider) buildHeaders(req *http.Request) {
	// Gemini 使用 x-goog-api-key 认证
	req.Header.Set("x-goog-api-key", p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

func (p *Provider) buildRequest(req *llm.ChatRequest) geminiRequest {
	system, contents := convertContents(req.Messages)
	body := geminiRequest{
		Contents:          contents,
		Tools:             convertTools(req.Tools),
		SystemInstruction: system,
	}
	if len(body.Tools) > 0 {
		body.ToolConfig = convertToolConfig(req.ToolChoice)
	}
	if req.Temperature > 0 || req.TopP > 0 || req.MaxTokens > 0 || len(req.Stop) > 0 {
		body.GenerationConfig = &geminiGenerationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
			StopSequences:   req.Stop,
		}
	}
	return body
}

func (p *Provider) do(ctx context.Context, endpoint string, body geminiRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
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

func (p *Provider) modelEndpoint(model, method string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:%s", p.cfg.BaseURL, url.PathEscape(model), method)
}

func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := providers.ChooseModel(req.Model, p.cfg.Model, defaultModel)
	resp, err := p.do(ctx, p.modelEndpoint(model, "generateContent"), p.buildRequest(req))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "decode response").
			WithCause(err).WithRetryable(true).WithProvider(p.Name())
	}
	out := toChatResponse(gr, p.Name(), model)
	out.CreatedAt = time.Now()
	return out, nil
}

func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	model := providers.ChooseModel(req.Model, p.cfg.Model, defaultModel)
	resp, err := p.do(ctx, p.modelEndpoint(model, "streamGenerateContent")+"?alt=sse", p.buildRequest(req))
	if err != nil {
		return nil, err
	}
	return streamSSE(ctx, resp.Body, p.Name(), model), nil
}

func streamSSE(ctx context.Context, body io.ReadCloser, providerName, model string) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)

		err := providers.ReadSSE(ctx, body, func(data string) error {
			var gr geminiResponse
			if err := json.Unmarshal([]byte(data), &gr); err != nil {
				return types.NewError(types.ErrUpstreamError, "malformed stream payload").
					WithCause(err).WithRetryable(true).WithProvider(providerName)
			}
			for _, c := range gr.Candidates {
				chunk := llm.StreamChunk{
					ID:           gr.ResponseID,
					Provider:     providerName,
					Model:        model,
					Text:         textOf(c),
					ToolCalls:    toolCallsOf(c),
					FinishReason: c.FinishReason,
				}
				if gr.UsageMetadata != nil {
					chunk.Usage = &llm.ChatUsage{
						PromptTokens:     gr.UsageMetadata.PromptTokenCount,
						CompletionTokens: gr.UsageMetadata.CandidatesTokenCount,
						TotalTokens:      gr.UsageMetadata.TotalTokenCount,
					}
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case ch <- chunk:
				}
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
		case ch <- llm.StreamChunk{Provider: providerName, Model: model, Err: typed}:
		}
	}()
	return ch
}

func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/v1beta/models", nil)
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

package openai

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
	defaultBaseURL = "https://api.openai.com"
	defaultModel   = "gpt-4o"
	defaultTimeout = 60 * time.Second
)

// Provider 实现 OpenAI 与 Azure OpenAI 的 Chat Completions 接口。
type Provider struct {
	cfg    providers.OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

// NewProvider 创建新的 OpenAI 提供者实例.
func NewProvider(cfg providers.OpenAIConfig, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("provider", "openai")),
	}
}

func (p *Provider) Name() string {
	if p.azure() {
		return "azure"
	}
	return "openai"
}

func (p *Provider) StreamStyle() llm.StreamStyle { return llm.StyleIndexedFragment }

func (p *Provider) azure() bool { return p.cfg.APIVersion != "" }

func (p *Provider) endpoint(model string) string {
	if p.azure() {
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			p.cfg.BaseURL, url.PathEscape(model), url.QueryEscape(p.cfg.APIVersion))
	}
	return p.cfg.BaseURL + "/v1/chat/completions"
}

func (p *Provider) buildHeaders(req *http.Request) {
	if p.azure() {
		req.Header.Set("api-key", p.cfg.APIKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
		if p.cfg.Organization != "" {
			req.Header.Set("OpenAI-Organization", p.cfg.Organization)
		}
	}
	req.Header.Set("Content-Type", "application/json")
}

func (p *Provider) buildRequest(req *llm.ChatRequest, stream bool) wireRequest {
	body := wireRequest{
		Model:       providers.ChooseModel(req.Model, p.cfg.Model, defaultModel),
		Messages:    convertMessages(req.Messages),
		Tools:       convertTools(req.Tools),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      stream,
	}
	if len(body.Tools) > 0 {
		body.ToolChoice = convertToolChoice(req.ToolChoice)
	}
	if stream {
		body.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return body
}

func (p *Provider) do(ctx context.Context, body wireRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(body.Model), bytes.NewReader(payload))
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
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}
	return resp, nil
}

// Completion performs a non-streaming chat completion.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := p.do(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var oaResp wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "decode response").
			WithCause(err).WithRetryable(true).WithProvider(p.Name())
	}
	result := toChatResponse(oaResp, p.Name())
	if oaResp.Created != 0 {
		result.CreatedAt = time.Unix(oaResp.Created, 0)
	}
	return result, nil
}

// Stream performs a streaming chat completion via SSE.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.do(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, err
	}
	return streamSSE(ctx, resp.Body, p.Name()), nil
}

// streamSSE 把 SSE 负载转换为 indexed fragment 分片。
func streamSSE(ctx context.Context, body io.ReadCloser, providerName string) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)

		send := func(chunk llm.StreamChunk) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ch <- chunk:
				return nil
			}
		}

		err := providers.ReadSSE(ctx, body, func(data string) error {
			var oaResp wireResponse
			if err := json.Unmarshal([]byte(data), &oaResp); err != nil {
				return types.NewError(types.ErrUpstreamError, "malformed stream payload").
					WithCause(err).WithRetryable(true).WithProvider(providerName)
			}
			if oaResp.Usage != nil && len(oaResp.Choices) == 0 {
				usage := llm.ChatUsage(*oaResp.Usage)
				return send(llm.StreamChunk{ID: oaResp.ID, Provider: providerName, Model: oaResp.Model, Usage: &usage})
			}
			for _, choice := range oaResp.Choices {
				chunk := llm.StreamChunk{
					ID:           oaResp.ID,
					Provider:     providerName,
					Model:        oaResp.Model,
					FinishReason: choice.FinishReason,
				}
				if choice.Delta != nil {
					if choice.Delta.Content != nil {
						chunk.Text = *choice.Delta.Content
					}
					for i, tc := range choice.Delta.ToolCalls {
						idx := i
						if tc.Index != nil {
							idx = *tc.Index
						}
						chunk.ToolFragments = append(chunk.ToolFragments, llm.ToolCallFragment{
							Index:     idx,
							ID:        tc.ID,
							Name:      tc.Function.Name,
							Arguments: tc.Function.Arguments,
						})
					}
				}
				if err := send(chunk); err != nil {
					return err
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
		case ch <- llm.StreamChunk{Provider: providerName, Err: typed}:
		}
	}()
	return ch
}

// HealthCheck 通过列出模型检查连通性。
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	target := p.cfg.BaseURL + "/v1/models"
	if p.azure() {
		target = fmt.Sprintf("%s/openai/models?api-version=%s", p.cfg.BaseURL, url.QueryEscape(p.cfg.APIVersion))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
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

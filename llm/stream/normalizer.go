package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/landau/llm"
	"github.com/BaSui01/landau/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Result 是一次流式输出的归一化结果。
type Result struct {
	Text         string
	Started      bool
	ToolCalls    []types.ToolCall
	FinishReason string
	Usage        *llm.ChatUsage
}

// HasToolCalls 报告模型是否请求了工具调用。
func (r *Result) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// Normalizer 对一种增量编码执行单遍归一化。
type Normalizer struct {
	style  llm.StreamStyle
	logger *zap.Logger
}

// New 创建指定编码的归一化器。
func New(style llm.StreamStyle, logger *zap.Logger) (*Normalizer, error) {
	if _, err := newAccumulator(style); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		style:  style,
		logger: logger.With(zap.String("component", "stream"), zap.Stringer("style", style)),
	}, nil
}

// Style 返回归一化器处理的编码。
func (n *Normalizer) Style() llm.StreamStyle { return n.style }

// Normalize 消费 chunks 直到通道关闭。文本在到达时经 pub 发布；
// 流结束后所有参数缓冲必须是合法 JSON，否则返回 ErrMalformedToolArguments。
func (n *Normalizer) Normalize(ctx context.Context, chunks <-chan llm.StreamChunk, pub Publisher) (*Result, error) {
	if pub == nil {
		pub = Discard
	}
	acc, err := newAccumulator(n.style)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	var raw strings.Builder

	for {
		var chunk llm.StreamChunk
		var ok bool
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok = <-chunks:
		}
		if !ok {
			break
		}
		if chunk.Err != nil {
			n.logger.Warn("stream chunk carried error", zap.Error(chunk.Err))
			return nil, chunk.Err
		}

		if chunk.Text != "" {
			raw.WriteString(chunk.Text)
			res.Text = FixMath(raw.String())
			if !res.Started {
				if err := pub.Start(ctx); err != nil {
					return nil, fmt.Errorf("publish start: %w", err)
				}
				res.Started = true
			}
			if err := pub.Update(ctx, res.Text); err != nil {
				return nil, fmt.Errorf("publish update: %w", err)
			}
		}
		if err := acc.add(chunk); err != nil {
			return nil, err
		}
		if chunk.FinishReason != "" {
			res.FinishReason = chunk.FinishReason
		}
		if chunk.Usage != nil {
			res.Usage = chunk.Usage
		}
	}

	calls, err := finalize(acc.pending())
	if err != nil {
		n.logger.Error("malformed tool arguments", zap.Error(err))
		return nil, err
	}
	res.ToolCalls = calls
	return res, nil
}

func finalize(pending []*pendingCall) ([]types.ToolCall, error) {
	if len(pending) == 0 {
		return nil, nil
	}
	calls := make([]types.ToolCall, 0, len(pending))
	for _, p := range pending {
		args := strings.TrimSpace(p.args.String())
		if args == "" {
			args = "{}"
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(args)); err != nil {
			return nil, types.NewError(types.ErrMalformedToolArguments,
				fmt.Sprintf("tool call %q (%s) has unparseable arguments", p.name, p.id)).WithCause(err)
		}
		id := p.id
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		calls = append(calls, types.ToolCall{ID: id, Name: p.name, Arguments: json.RawMessage(buf.Bytes())})
	}
	return calls, nil
}

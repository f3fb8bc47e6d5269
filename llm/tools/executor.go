package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/landau/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Failure is a tool error whose Message is shown to the model verbatim.
type Failure struct {
	Message string
	Cause   error
}

func (f *Failure) Error() string { return f.Message }
func (f *Failure) Unwrap() error { return f.Cause }

// Fail builds a Failure.
func Fail(message string, cause error) error {
	return &Failure{Message: message, Cause: cause}
}

// NotFoundMessage is the result text for a call naming an unregistered tool.
func NotFoundMessage(name string) string {
	return fmt.Sprintf("Tool call failed. Function '%s' not found.", name)
}

// Observer is notified around every tool execution.
type Observer interface {
	ToolStarted(ctx context.Context, call types.ToolCall)
	ToolFinished(ctx context.Context, result types.ToolResult)
}

// ToolExecutor defines tool executor interface.
type ToolExecutor interface {
	Execute(ctx context.Context, calls []types.ToolCall) []types.ToolResult
	ExecuteOne(ctx context.Context, call types.ToolCall) types.ToolResult
}

// DefaultExecutor runs tools from a registry.
type DefaultExecutor struct {
	registry ToolRegistry
	observer Observer
	logger   *zap.Logger
}

// NewDefaultExecutor 创建默认的工具执行器。
func NewDefaultExecutor(registry ToolRegistry, logger *zap.Logger) *DefaultExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultExecutor{
		registry: registry,
		logger:   logger.With(zap.String("component", "tool_executor")),
	}
}

// WithObserver attaches an observer (e.g. metrics or a client notifier).
func (e *DefaultExecutor) WithObserver(o Observer) *DefaultExecutor {
	e.observer = o
	return e
}

// Execute runs all calls concurrently and returns results in call order.
// It returns once every call has produced a result.
func (e *DefaultExecutor) Execute(ctx context.Context, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))
	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.ExecuteOne(ctx, call)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *DefaultExecutor) ExecuteOne(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	result := types.ToolResult{ToolCallID: call.ID, Name: call.Name}
	if e.observer != nil {
		e.observer.ToolStarted(ctx, call)
		defer func() { e.observer.ToolFinished(ctx, result) }()
	}

	fn, meta, err := e.registry.Get(call.Name)
	if err != nil {
		result.Content = NotFoundMessage(call.Name)
		result.Error = err.Error()
		result.Duration = time.Since(start)
		e.logger.Warn("tool not found", zap.String("name", call.Name))
		return result
	}

	execCtx, cancel := context.WithTimeout(ctx, meta.Timeout)
	defer cancel()

	// 带缓冲的 channel：超时后没人接收，goroutine 也能正常退出
	type outcome struct {
		content string
		err     error
	}
	doneChan := make(chan outcome, 1)
	go func() {
		content, err := fn(execCtx, call.Arguments)
		doneChan <- outcome{content, err}
	}()

	select {
	case done := <-doneChan:
		result.Duration = time.Since(start)
		if done.err != nil {
			result.Error = done.err.Error()
			var failure *Failure
			if errors.As(done.err, &failure) {
				result.Content = failure.Message
			} else {
				result.Content = fmt.Sprintf("Tool call failed. Error: %v", done.err)
			}
			e.logger.Warn("tool execution failed",
				zap.String("name", call.Name),
				zap.Error(done.err),
				zap.Duration("duration", result.Duration))
			return result
		}
		result.Content = done.content
		e.logger.Debug("tool executed",
			zap.String("name", call.Name),
			zap.Duration("duration", result.Duration))

	case <-execCtx.Done():
		result.Duration = time.Since(start)
		result.Error = fmt.Sprintf("execution timeout after %s", meta.Timeout)
		result.Content = fmt.Sprintf("Tool call failed. Function '%s' timed out.", call.Name)
		e.logger.Error("tool execution timeout",
			zap.String("name", call.Name),
			zap.Duration("timeout", meta.Timeout))
	}
	return result
}

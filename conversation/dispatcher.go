package conversation

import (
	"context"

	"github.com/BaSui01/landau/llm/tools"
	"github.com/BaSui01/landau/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Dispatcher runs one batch of tool calls concurrently.
type Dispatcher struct {
	executor tools.ToolExecutor
	logger   *zap.Logger
}

func NewDispatcher(executor tools.ToolExecutor, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{executor: executor, logger: logger.With(zap.String("component", "dispatcher"))}
}

// Dispatch executes calls and returns their results in call order.
//
// Tools run on a context detached from ctx's cancellation. If ctx ends first,
// Dispatch still waits for the batch to finish, drops the results and returns ctx.Err().
func (d *Dispatcher) Dispatch(ctx context.Context, calls []types.ToolCall, notify tools.Observer) ([]types.ToolResult, error) {
	detached := context.WithoutCancel(ctx)
	done := make(chan []types.ToolResult, 1)
	go func() {
		done <- d.run(detached, calls, notify)
	}()

	select {
	case results := <-done:
		return results, nil
	case <-ctx.Done():
		d.logger.Info("turn cancelled during tool dispatch, waiting for in-flight tools",
			zap.Int("calls", len(calls)))
		<-done
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) run(ctx context.Context, calls []types.ToolCall, notify tools.Observer) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))
	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			if notify != nil {
				notify.ToolStarted(ctx, call)
			}
			results[i] = d.executor.ExecuteOne(ctx, call)
			if notify != nil {
				notify.ToolFinished(ctx, results[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

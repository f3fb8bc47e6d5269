package conversation

import (
	"context"
	"fmt"
	"slices"
)

// State 一次对话轮次在循环中的位置。
type State string

const (
	StateAwaitingModel    State = "awaiting_model"
	StateStreaming        State = "streaming"
	StateDispatchingTools State = "dispatching_tools"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

var validTransitions = map[State][]State{
	StateAwaitingModel:    {StateStreaming, StateFailed},
	StateStreaming:        {StateDone, StateDispatchingTools, StateFailed},
	StateDispatchingTools: {StateAwaitingModel, StateFailed},
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to State) bool {
	return slices.Contains(validTransitions[from], to)
}

// ErrInvalidTransition 非法状态转换错误
type ErrInvalidTransition struct {
	From State
	To   State
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

// TransitionHook observes every state change of a turn.
type TransitionHook func(ctx context.Context, sessionID string, from, to State)

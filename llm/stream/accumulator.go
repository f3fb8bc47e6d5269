package stream

import (
	"fmt"
	"strings"

	"github.com/BaSui01/landau/llm"
	"github.com/BaSui01/landau/types"
)

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// accumulator 按某种增量编码收集工具调用片段。
type accumulator interface {
	add(chunk llm.StreamChunk) error
	pending() []*pendingCall
}

func newAccumulator(style llm.StreamStyle) (accumulator, error) {
	switch style {
	case llm.StyleDeltaObject:
		return &deltaObjectAccumulator{}, nil
	case llm.StyleIndexedFragment:
		return &indexedAccumulator{byIndex: make(map[int]*pendingCall)}, nil
	case llm.StylePreStructured:
		return &preStructuredAccumulator{byID: make(map[string]*pendingCall)}, nil
	default:
		return nil, fmt.Errorf("unsupported stream style %s", style)
	}
}

// deltaObjectAccumulator: 带 name 的片段开启新调用，其余 partial_json 追加到当前打开的调用。
type deltaObjectAccumulator struct {
	calls []*pendingCall
	open  *pendingCall
}

func (a *deltaObjectAccumulator) add(chunk llm.StreamChunk) error {
	d := chunk.ToolUse
	if d == nil {
		return nil
	}
	if d.Name != "" || d.ID != "" {
		a.open = &pendingCall{id: d.ID, name: d.Name}
		a.calls = append(a.calls, a.open)
	}
	if d.PartialJSON == "" {
		return nil
	}
	if a.open == nil {
		return types.NewError(types.ErrMalformedToolArguments, "argument fragment without an open tool call").
			WithProvider(chunk.Provider)
	}
	a.open.args.WriteString(d.PartialJSON)
	return nil
}

func (a *deltaObjectAccumulator) pending() []*pendingCall { return a.calls }

// indexedAccumulator 按 index 合并片段，输出顺序为 index 首次出现的顺序。
type indexedAccumulator struct {
	byIndex map[int]*pendingCall
	order   []*pendingCall
}

func (a *indexedAccumulator) add(chunk llm.StreamChunk) error {
	for _, f := range chunk.ToolFragments {
		call, ok := a.byIndex[f.Index]
		if !ok {
			call = &pendingCall{}
			a.byIndex[f.Index] = call
			a.order = append(a.order, call)
		}
		if f.ID != "" {
			call.id = f.ID
		}
		if f.Name != "" {
			call.name = f.Name
		}
		call.args.WriteString(f.Arguments)
	}
	return nil
}

func (a *indexedAccumulator) pending() []*pendingCall { return a.order }

// preStructuredAccumulator 接收完整调用；重复的 id 以最后一次为准。
type preStructuredAccumulator struct {
	byID  map[string]*pendingCall
	order []*pendingCall
}

func (a *preStructuredAccumulator) add(chunk llm.StreamChunk) error {
	for _, tc := range chunk.ToolCalls {
		call, ok := a.byID[tc.ID]
		if !ok || tc.ID == "" {
			call = &pendingCall{id: tc.ID}
			if tc.ID != "" {
				a.byID[tc.ID] = call
			}
			a.order = append(a.order, call)
		}
		call.name = tc.Name
		call.args.Reset()
		call.args.Write(tc.Arguments)
	}
	return nil
}

func (a *preStructuredAccumulator) pending() []*pendingCall { return a.order }

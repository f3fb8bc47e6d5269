package conversation

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/landau/llm"
	"github.com/BaSui01/landau/llm/tools"
	"github.com/BaSui01/landau/rag"
	"github.com/BaSui01/landau/testutil/fixtures"
	"github.com/BaSui01/landau/types"
	"github.com/stretchr/testify/require"
)

func newTestLoop(t *testing.T, provider llm.Provider, reg tools.ToolRegistry, cfg Config, opts ...LoopOption) *Loop {
	t.Helper()
	l, err := NewLoop(provider, reg, cfg, append([]LoopOption{WithCatalog(testCatalog())}, opts...)...)
	require.NoError(t, err)
	return l
}

func testCatalog() *Catalog {
	return NewCatalog(
		Document{ID: "EX1", Name: "Quanteninformatik", Description: "Qubits und Zustände"},
		Document{ID: "EX2", Name: "Elektrodynamik", Description: "Felder"},
	)
}

func newTestSession() *Session {
	return NewSession("sess-1", testCatalog())
}

type recordingPublisher struct {
	mu      sync.Mutex
	starts  int
	updates []string
}

func (p *recordingPublisher) Start(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts++
	return nil
}

func (p *recordingPublisher) Update(_ context.Context, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, content)
	return nil
}

type transition struct{ from, to State }

type transitionLog struct {
	mu      sync.Mutex
	entries []transition
	notify  chan State
}

func newTransitionLog() *transitionLog {
	return &transitionLog{notify: make(chan State, 64)}
}

func (l *transitionLog) hook(_ context.Context, _ string, from, to State) {
	l.mu.Lock()
	l.entries = append(l.entries, transition{from, to})
	l.mu.Unlock()
	select {
	case l.notify <- to:
	default:
	}
}

func (l *transitionLog) all() []transition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]transition(nil), l.entries...)
}

// waitFor 等待进入指定状态。
func (l *transitionLog) waitFor(t *testing.T, state State) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s := <-l.notify:
			if s == state {
				return
			}
		case <-timeout:
			t.Fatalf("state %s not reached", state)
		}
	}
}

type stubRecorder struct {
	mu           sync.Mutex
	streams      []string
	hallucinated int
}

func (r *stubRecorder) RecordLLMStream(_ string, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams = append(r.streams, status)
}

func (r *stubRecorder) RecordHallucination(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hallucinated += n
}

// constEmbedder 所有文本都映射到同一个方向。
type constEmbedder struct{}

func (constEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0}
	}
	return out, nil
}

// lectureFixture builds a memory store with the EX1 fixture passages and table of contents.
func lectureFixture(t *testing.T) (*rag.MemoryStore, *LectureTools) {
	t.Helper()
	store := rag.NewMemoryStore(constEmbedder{}, nil)
	records, vectors := fixtures.LecturePassages()
	require.NoError(t, store.Upsert("default", records, vectors))
	store.SetTableOfContents("default", "EX1", fixtures.LectureTOC)

	defaults := rag.DefaultRetrievalDefaults()
	defaults.UseRerank = false
	defaults.ExtendResults = false
	lecture := NewLectureTools(rag.NewPipeline(store), rag.NewLibrary(store), defaults, nil)
	return store, lecture
}

func args(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}

func toolMessages(history []types.Message) []types.Message {
	var out []types.Message
	for _, m := range history {
		if m.Role == types.RoleTool {
			out = append(out, m)
		}
	}
	return out
}
const testutilTimeout = 5 * time.Second

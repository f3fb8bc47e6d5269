package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BaSui01/landau/api"
	"github.com/BaSui01/landau/rag"
	"github.com/BaSui01/landau/testutil/fixtures"
	"github.com/BaSui01/landau/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type constEmbedder struct{}

func (constEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0}
	}
	return out, nil
}

// downStore 模拟不可达的段落存储
type downStore struct{}

func (downStore) Query(context.Context, string, []string, int, []string) ([][]rag.Candidate, error) {
	return nil, types.NewServiceUnavailableError("passage store unreachable", nil)
}

func (downStore) GetByIDs(context.Context, string, []string) ([]rag.PassageRecord, error) {
	return nil, types.NewServiceUnavailableError("passage store unreachable", nil)
}

func (downStore) GetWhere(context.Context, string, rag.Filter) ([]rag.PassageRecord, error) {
	return nil, types.NewServiceUnavailableError("passage store unreachable", nil)
}

func (downStore) TableOfContents(context.Context, string, string) ([]string, error) {
	return nil, types.NewServiceUnavailableError("passage store unreachable", nil)
}

func newRetrievalMux(t *testing.T, store rag.PassageStore) *http.ServeMux {
	t.Helper()
	h := NewRetrievalHandler(rag.NewPipeline(store), rag.NewLibrary(store), zap.NewNop())
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func lectureMux(t *testing.T) *http.ServeMux {
	t.Helper()
	store := rag.NewMemoryStore(constEmbedder{}, nil)
	records, vectors := fixtures.LecturePassages()
	require.NoError(t, store.Upsert(rag.DefaultCollection, records, vectors))
	store.SetTableOfContents(rag.DefaultCollection, "EX1", fixtures.LectureTOC)
	return newRetrievalMux(t, store)
}

func post(mux http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestRetrievalHandler_Query(t *testing.T) {
	w := post(lectureMux(t), "/api/v1/query", `{"query":"Was ist ein Qubit?"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp api.QueryResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, []string{"Was ist ein Qubit?"}, resp.Queries)
	require.Len(t, resp.Documents, 4)
	assert.Equal(t, 0, resp.Documents[0].ParagraphID)
	assert.Equal(t, "EX1", resp.Documents[0].DocumentID)
	assert.InDelta(t, 1.0, resp.Documents[0].Score, 1e-9)
	for i := 1; i < len(resp.Documents); i++ {
		assert.GreaterOrEqual(t, resp.Documents[i-1].Score, resp.Documents[i].Score)
	}
}

func TestRetrievalHandler_QueryTopN(t *testing.T) {
	w := post(lectureMux(t), "/api/v1/query", `{"query":"Was ist ein Qubit?","top_n":2}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.QueryResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp.Documents, 2)
}

func TestRetrievalHandler_QueryErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantDetail string
	}{
		{
			name:       "short query",
			body:       `{"query":"Ohm"}`,
			wantStatus: http.StatusBadRequest,
			wantDetail: "query must be at least 5 characters long",
		},
		{
			name:       "top_k below top_n",
			body:       `{"query":"Was ist ein Qubit?","top_k":2,"top_n":5}`,
			wantStatus: http.StatusBadRequest,
			wantDetail: "top_k must be greater than or equal to top_n",
		},
		{
			name:       "threshold out of range",
			body:       `{"query":"Was ist ein Qubit?","rerank_score_threshold":1.5}`,
			wantStatus: http.StatusBadRequest,
			wantDetail: "rerank_score_threshold must be between 0 and 1",
		},
		{
			name:       "unknown collection",
			body:       `{"query":"Was ist ein Qubit?","collection_name":"missing"}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "malformed body",
			body:       `{"query":`,
			wantStatus: http.StatusBadRequest,
			wantDetail: "invalid JSON body",
		},
	}

	mux := lectureMux(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(mux, "/api/v1/query", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, decodeError(t, w).Detail)
			}
		})
	}
}

func TestRetrievalHandler_TOC(t *testing.T) {
	mux := lectureMux(t)

	w := post(mux, "/api/v1/toc", `{"document_id":"EX1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp api.TOCResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "default", resp.CollectionName)
	assert.Equal(t, "EX1", resp.DocumentID)
	assert.Equal(t, strings.Split(fixtures.LectureTOC, "\n"), resp.TOC)

	w = post(mux, "/api/v1/toc", `{"document_id":"EX2"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = post(mux, "/api/v1/toc", `{"document_id":"  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "document_id must not be empty", decodeError(t, w).Detail)
}

func TestRetrievalHandler_Section(t *testing.T) {
	mux := lectureMux(t)

	w := post(mux, "/api/v1/section", `{"document_id":"EX1","chapter_id":"3","section_id":"2"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var section rag.SectionRecord
	require.NoError(t, json.NewDecoder(w.Body).Decode(&section))
	assert.Equal(t, "3.2 Qubits", section.SectionName)
	assert.Equal(t, "Quanteninformatik", section.DocumentName)
	assert.True(t, strings.HasPrefix(section.Content, "Ein Qubit ist ein Zwei-Niveau-System.\n"))
	assert.Equal(t, 3, strings.Count(section.Content, "\n"))

	w = post(mux, "/api/v1/section", `{"document_id":"EX1","chapter_id":"3","section_id":"9"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = post(mux, "/api/v1/section", `{"document_id":"EX1","chapter_id":"","section_id":"2"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "chapter_id must not be empty", decodeError(t, w).Detail)
}

func TestRetrievalHandler_Formula(t *testing.T) {
	mux := lectureMux(t)

	w := post(mux, "/api/v1/formula", `{"document_id":"EX1","formula_id":"3.1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var formula rag.FormulaRecord
	require.NoError(t, json.NewDecoder(w.Body).Decode(&formula))
	assert.Equal(t, "3.1", formula.FormulaID)
	assert.Equal(t, "3", formula.ChapterID)
	assert.Equal(t, "2", formula.SectionID)
	assert.Contains(t, formula.Content, "Gl. 3.1")

	w = post(mux, "/api/v1/formula", `{"document_id":"EX1","formula_id":"9.9"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = post(mux, "/api/v1/formula", `{"document_id":"EX1","formula_id":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "formula must not be empty", decodeError(t, w).Detail)
}

func TestRetrievalHandler_StoreUnavailable(t *testing.T) {
	mux := newRetrievalMux(t, downStore{})

	for path, body := range map[string]string{
		"/api/v1/query":   `{"query":"Was ist ein Qubit?"}`,
		"/api/v1/toc":     `{"document_id":"EX1"}`,
		"/api/v1/section": `{"document_id":"EX1","chapter_id":"3","section_id":"2"}`,
		"/api/v1/formula": `{"document_id":"EX1","formula_id":"3.1"}`,
	} {
		w := post(mux, path, body)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
		resp := decodeError(t, w)
		assert.Equal(t, "SERVICE_UNAVAILABLE", resp.Code, path)
		assert.True(t, resp.Retryable, path)
	}
}

func TestRetrievalHandler_MethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/query", nil)
	w := httptest.NewRecorder()
	lectureMux(t).ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

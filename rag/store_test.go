package rag

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/BaSui01/landau/types"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// axisEmbedder maps texts onto fixed vectors; unknown texts get the zero vector.
type axisEmbedder struct {
	vectors map[string][]float64
	calls   atomic.Int32
}

func (e *axisEmbedder) EmbedDocuments(_ context.Context, docs []string) ([][]float64, error) {
	e.calls.Add(1)
	out := make([][]float64, len(docs))
	for i, d := range docs {
		v, ok := e.vectors[d]
		if !ok {
			v = []float64{0, 0}
		}
		out[i] = v
	}
	return out, nil
}

func testRecords() ([]PassageRecord, [][]float64) {
	records := []PassageRecord{
		{DocumentID: "EX1", ChapterID: "3", SectionID: "2", ParagraphID: 1, Content: "zweiter", SectionName: "3.2 Qubits"},
		{DocumentID: "EX1", ChapterID: "3", SectionID: "2", ParagraphID: 0, Content: "erster", SectionName: "3.2 Qubits"},
		{DocumentID: "EX1", ChapterID: "4", SectionID: "1", ParagraphID: 0, FormulaID: "4.1", Content: "Gl. 4.1 $$E=mc^2$$"},
		{DocumentID: "EX2", ChapterID: "1", SectionID: "1", ParagraphID: 0, Content: "anderes Skript"},
	}
	vectors := [][]float64{{1, 0}, {0.9, 0.1}, {0, 1}, {1, 0.05}}
	return records, vectors
}

// storeContract runs the behaviour every PassageStore shares.
func storeContract(t *testing.T, store PassageStore) {
	ctx := context.Background()

	t.Run("query orders by distance and filters documents", func(t *testing.T) {
		res, err := store.Query(ctx, "default", []string{"x-axis"}, 10, []string{"EX1"})
		require.NoError(t, err)
		require.Len(t, res, 1)
		require.Len(t, res[0], 3)
		assert.Equal(t, "EX1.3.2.1", res[0][0].ID())
		assert.InDelta(t, 0.0, res[0][0].Distance, 1e-6)
		for i := 1; i < len(res[0]); i++ {
			assert.LessOrEqual(t, res[0][i-1].Distance, res[0][i].Distance)
		}
	})

	t.Run("query respects topK", func(t *testing.T) {
		res, err := store.Query(ctx, "default", []string{"x-axis", "y-axis"}, 1, nil)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Len(t, res[0], 1)
		assert.Equal(t, "EX1.4.1.0", res[1][0].ID())
	})

	t.Run("get by ids skips missing", func(t *testing.T) {
		recs, err := store.GetByIDs(ctx, "default", []string{"EX1.3.2.0", "EX1.3.2.9", "EX1.3.2.1"})
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})

	t.Run("get where", func(t *testing.T) {
		recs, err := store.GetWhere(ctx, "default", Filter{DocumentID: "EX1", FormulaID: "4.1"})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "Gl. 4.1 $$E=mc^2$$", recs[0].Content)
	})

	t.Run("table of contents", func(t *testing.T) {
		toc, err := store.TableOfContents(ctx, "default", "EX1")
		require.NoError(t, err)
		assert.Equal(t, []string{"3 Quanten", "3.2 Qubits"}, toc)

		_, err = store.TableOfContents(ctx, "default", "EX9")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	emb := &axisEmbedder{vectors: map[string][]float64{"x-axis": {1, 0}, "y-axis": {0, 1}}}
	store := NewMemoryStore(emb, nil)
	records, vectors := testRecords()
	require.NoError(t, store.Upsert("default", records, vectors))
	store.SetTableOfContents("default", "EX1", "3 Quanten\n3.2 Qubits")

	storeContract(t, store)

	_, err := store.GetByIDs(context.Background(), "missing", []string{"a"})
	assert.ErrorIs(t, err, ErrCollectionNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Error(t, store.Upsert("default", records, vectors[:1]))
}

func TestSQLStore_SQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	emb := &axisEmbedder{vectors: map[string][]float64{"x-axis": {1, 0}, "y-axis": {0, 1}}}
	store := NewSQLStore(db, emb, nil)
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	records, vectors := testRecords()
	require.NoError(t, store.Upsert(ctx, "default", records, vectors))
	// upsert is idempotent on the identity key
	require.NoError(t, store.Upsert(ctx, "default", records[:1], vectors[:1]))
	require.NoError(t, store.SetTableOfContents(ctx, "default", "EX1", "3 Quanten\n3.2 Qubits"))

	storeContract(t, store)
	require.NoError(t, store.Ping(ctx))
}

func TestSQLStore_PgvectorQuery(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"collection", "id", "document_id", "chapter_id", "section_id", "paragraph_id",
		"formula_id", "document_name", "chapter_name", "section_name", "content", "num_tokens", "distance"}).
		AddRow("default", "EX1.3.2.0", "EX1", "3", "2", 0, "", "Skript", "3 Quanten", "3.2 Qubits", "erster", 3, 0.12)
	mock.ExpectQuery(`SELECT .*embedding <=> .* AS distance FROM "passages" WHERE collection = .* AND document_id IN .* ORDER BY distance LIMIT`).
		WillReturnRows(rows)

	store := NewSQLStore(db, &axisEmbedder{vectors: map[string][]float64{"q": {1, 0}}}, nil)
	res, err := store.Query(context.Background(), "default", []string{"q"}, 5, []string{"EX1"})
	require.NoError(t, err)
	require.Len(t, res[0], 1)
	assert.Equal(t, "EX1.3.2.0", res[0][0].ID())
	assert.Equal(t, "3.2 Qubits", res[0][0].SectionName)
	assert.InDelta(t, 0.12, res[0][0].Distance, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_UnreachableIsServiceUnavailable(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{})
	require.NoError(t, err)
	mock.ExpectQuery(`SELECT .* FROM "passages"`).WillReturnError(errors.New("dial tcp: connection refused"))

	_, err = NewSQLStore(db, nil, nil).GetByIDs(context.Background(), "default", []string{"EX1.3.2.0"})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrServiceUnavailable))
}

// fakeChroma serves the subset of the Chroma REST API the store uses.
func fakeChroma(t *testing.T, records []PassageRecord, vectors [][]float64) *httptest.Server {
	t.Helper()
	metaOf := func(r PassageRecord) map[string]any {
		return map[string]any{
			"document_id": r.DocumentID, "chapter_id": r.ChapterID, "section_id": r.SectionID,
			"paragraph_id": r.ParagraphID, "formula_id": r.FormulaID, "section_name": r.SectionName,
		}
	}
	mem := NewMemoryStore(&axisEmbedder{}, nil)
	require.NoError(t, mem.Upsert("default", records, vectors))

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/heartbeat":
			_ = json.NewEncoder(w).Encode(map[string]int64{"nanosecond heartbeat": 1})
		case r.URL.Path == "/api/v1/collections/default":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": "c-1", "name": "default",
				"metadata": map[string]any{"EX1_toc": "3 Quanten\n3.2 Qubits"},
			})
		case strings.HasPrefix(r.URL.Path, "/api/v1/collections/c-1/query"):
			var body struct {
				QueryEmbeddings [][]float64                    `json:"query_embeddings"`
				NResults        int                            `json:"n_results"`
				Where           map[string]map[string][]string `json:"where"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			var docs []string
			if body.Where != nil {
				docs = body.Where["document_id"]["$in"]
			}
			resp := chromaQueryResponse{}
			for _, q := range body.QueryEmbeddings {
				var ids []string
				var dists []float64
				var metas []map[string]any
				var contents []string
				all, _ := mem.GetWhere(r.Context(), "default", Filter{})
				var cands []Candidate
				for _, rec := range all {
					if len(docs) > 0 && !contains(docs, rec.DocumentID) {
						continue
					}
					cands = append(cands, Candidate{PassageRecord: rec, Distance: 1 - cosineSimilarity(q, vectorOf(records, vectors, rec.ID()))})
				}
				sortCandidates(cands)
				for i, c := range cands {
					if i >= body.NResults {
						break
					}
					ids = append(ids, c.ID())
					dists = append(dists, c.Distance)
					metas = append(metas, metaOf(c.PassageRecord))
					contents = append(contents, c.Content)
				}
				resp.IDs = append(resp.IDs, ids)
				resp.Distances = append(resp.Distances, dists)
				resp.Metadatas = append(resp.Metadatas, metas)
				resp.Documents = append(resp.Documents, contents)
			}
			_ = json.NewEncoder(w).Encode(resp)
		case strings.HasPrefix(r.URL.Path, "/api/v1/collections/c-1/get"):
			var body struct {
				IDs   []string       `json:"ids"`
				Where map[string]any `json:"where"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			var recs []PassageRecord
			if body.IDs != nil {
				recs, _ = mem.GetByIDs(r.Context(), "default", body.IDs)
			} else {
				recs, _ = mem.GetWhere(r.Context(), "default", filterFromWhere(body.Where))
			}
			resp := chromaGetResponse{}
			for _, rec := range recs {
				resp.IDs = append(resp.IDs, rec.ID())
				resp.Metadatas = append(resp.Metadatas, metaOf(rec))
				resp.Documents = append(resp.Documents, rec.Content)
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.Error(w, `{"error":"Collection does not exist."}`, http.StatusInternalServerError)
		}
	}))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func vectorOf(records []PassageRecord, vectors [][]float64, id string) []float64 {
	for i, r := range records {
		if r.ID() == id {
			return vectors[i]
		}
	}
	return nil
}

func sortCandidates(c []Candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].Distance < c[j-1].Distance; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

func filterFromWhere(where map[string]any) Filter {
	var f Filter
	apply := func(clause map[string]any) {
		for k, v := range clause {
			s, _ := v.(string)
			switch k {
			case "document_id":
				f.DocumentID = s
			case "chapter_id":
				f.ChapterID = s
			case "section_id":
				f.SectionID = s
			case "formula_id":
				f.FormulaID = s
			}
		}
	}
	if and, ok := where["$and"].([]any); ok {
		for _, c := range and {
			if m, ok := c.(map[string]any); ok {
				apply(m)
			}
		}
		return f
	}
	apply(where)
	return f
}

func TestChromaStore(t *testing.T) {
	records, vectors := testRecords()
	srv := fakeChroma(t, records, vectors)
	defer srv.Close()

	emb := &axisEmbedder{vectors: map[string][]float64{"x-axis": {1, 0}, "y-axis": {0, 1}}}
	store, err := NewChromaStore(ChromaConfig{BaseURL: srv.URL}, emb, nil)
	require.NoError(t, err)

	storeContract(t, store)
	require.NoError(t, store.Ping(context.Background()))

	// repeated query texts are served from the embedding cache
	calls := emb.calls.Load()
	_, err = store.Query(context.Background(), "default", []string{"x-axis"}, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, calls, emb.calls.Load())

	_, err = store.TableOfContents(context.Background(), "missing", "EX1")
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestChromaStore_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	store, err := NewChromaStore(ChromaConfig{BaseURL: srv.URL}, &axisEmbedder{}, nil)
	require.NoError(t, err)
	_, err = store.GetByIDs(context.Background(), "default", []string{"EX1.3.2.0"})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrServiceUnavailable))
}

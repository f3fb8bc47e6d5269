package rag

import (
	"testing"

	"github.com/BaSui01/landau/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrievalRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RetrievalRequest)
		wantMsg string
	}{
		{"valid", func(*RetrievalRequest) {}, ""},
		{"short query", func(r *RetrievalRequest) { r.Query = "  Hi  " }, "query must be at least 5 characters long"},
		{"blank collection", func(r *RetrievalRequest) { r.CollectionName = "   " }, "collection_name must not be empty"},
		{"top_k zero", func(r *RetrievalRequest) { r.TopK = 0; r.TopN = 0 }, "top_k must be greater than 0"},
		{"top_k below top_n", func(r *RetrievalRequest) { r.TopK = 3; r.TopN = 5 }, "top_k must be greater than or equal to top_n"},
		{"negative multiquery", func(r *RetrievalRequest) { r.NumMultiquery = -1 }, "num_multiquery must be greater than or equal to 0"},
		{"threshold above one", func(r *RetrievalRequest) { r.RerankScoreThreshold = 1.5 }, "rerank_score_threshold must be between 0 and 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := DefaultRetrievalDefaults().Request("Was ist Verschränkung?", nil)
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			e, ok := types.AsError(err)
			require.True(t, ok)
			assert.Equal(t, types.ErrInvalidRequest, e.Code)
			assert.Equal(t, tt.wantMsg, e.Message)
			assert.Equal(t, 400, e.HTTPStatus)
		})
	}
}

func TestRetrievalDefaults_Request(t *testing.T) {
	req := DefaultRetrievalDefaults().Request("Frage", []string{"EX1"})
	assert.Equal(t, 200, req.TopK)
	assert.Equal(t, 5, req.TopN)
	assert.Equal(t, 0.1, req.RerankScoreThreshold)
	assert.True(t, req.UseRerank)
	assert.True(t, req.ExtendResults)
	assert.Equal(t, []string{"EX1"}, req.PermittedDocumentIDs)
}

func TestParsePassageID(t *testing.T) {
	doc, chap, sec, para, err := ParsePassageID("FEYNMAN.V1.12.3.7")
	require.NoError(t, err)
	assert.Equal(t, "FEYNMAN.V1", doc)
	assert.Equal(t, "12", chap)
	assert.Equal(t, "3", sec)
	assert.Equal(t, 7, para)
	assert.Equal(t, "FEYNMAN.V1.12.3.7", PassageID(doc, chap, sec, para))

	_, _, _, _, err = ParsePassageID("EX1.3.x")
	assert.Error(t, err)
	_, _, _, _, err = ParsePassageID("EX1.3.2.x")
	assert.Error(t, err)
}

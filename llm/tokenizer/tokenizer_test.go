package tokenizer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type brokenTokenizer struct{ calls int }

func (b *brokenTokenizer) CountTokens(string) (int, error) {
	b.calls++
	return 0, errors.New("encoding unavailable")
}
func (b *brokenTokenizer) Name() string { return "broken" }

func TestEstimatorTokenizer(t *testing.T) {
	e := NewEstimatorTokenizer()
	n, err := e.CountTokens("")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, _ = e.CountTokens("abc")
	assert.Equal(t, 1, n)

	n, _ = e.CountTokens("Die Energie bleibt erhalten.")
	assert.Equal(t, 7, n)

	n, _ = e.WithCharsPerToken(2).CountTokens("abcd")
	assert.Equal(t, 2, n)
}

func TestFallbackTokenizer_DegradesOnce(t *testing.T) {
	broken := &brokenTokenizer{}
	f := NewFallbackTokenizer(broken, NewEstimatorTokenizer(), zap.NewNop())
	assert.Equal(t, "broken", f.Name())

	for range 3 {
		n, err := f.CountTokens("abcdefgh")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, "estimator", f.Name())
}

func TestDefault_CountsSomething(t *testing.T) {
	n, err := Default(nil).CountTokens("Impulserhaltung im abgeschlossenen System")
	require.NoError(t, err)
	assert.Positive(t, n)
}

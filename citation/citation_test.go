package citation

import (
	"testing"

	"github.com/BaSui01/landau/reference"
	"github.com/BaSui01/landau/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func knownSet() *reference.Set {
	c := reference.Common{DocumentID: "EX1", ChapterID: "3", SectionID: "2", Content: "Impuls"}
	s := reference.NewSet()
	s.Register(
		reference.Section{Common: c},
		reference.Snippet{Common: c, ParagraphID: "1", Score: 0.7},
	)
	return s
}

func TestReconcile_FlagsUnknownCitation(t *testing.T) {
	res, err := Reconcile("See [EX1 3.2] and [FAKE 9.9].", knownSet(), reference.German)
	require.NoError(t, err)

	assert.Equal(t, "See [EX1 3.2] and [~~FAKE 9.9~~].", res.Text)
	require.Len(t, res.Elements, 1)
	assert.Equal(t, "EX1 3.2", res.Elements[0].Name)
	assert.Equal(t, types.DisplaySide, res.Elements[0].Display)
	assert.Contains(t, res.Elements[0].Content, "## Sektions Referenz")

	require.NotNil(t, res.Notice)
	assert.Equal(t, "Hinweis!", res.Notice.Name)
	assert.Equal(t, types.DisplayInline, res.Notice.Display)
	assert.Equal(t, "Das Modell hat wahrscheinlich Halluziniert!\nDie Referenz **FAKE 9.9** hat das Modell nie gesehen.", res.Notice.Content)
	assert.True(t, res.Hallucinated())
	assert.Len(t, res.AllElements(), 2)
}

func TestReconcile_ElementsInRegistrationOrder(t *testing.T) {
	res, err := Reconcile("Erst [EX1 3.2/1], dann [EX1 3.2], nochmal [EX1 3.2/1].", knownSet(), reference.German)
	require.NoError(t, err)

	assert.Nil(t, res.Notice)
	assert.Equal(t, []string{"EX1 3.2/1", "EX1 3.2"}, res.Matched)
	require.Len(t, res.Elements, 2)
	assert.Equal(t, "EX1 3.2", res.Elements[0].Name)
	assert.Equal(t, "EX1 3.2/1", res.Elements[1].Name)
}

func TestReconcile_PluralNotice(t *testing.T) {
	res, err := Reconcile("[AB 1.1] [AB 1.2 (2.3)] [AB 1.1/4]", knownSet(), reference.German)
	require.NoError(t, err)
	require.NotNil(t, res.Notice)
	assert.Equal(t, "Das Modell hat wahrscheinlich Halluziniert!\nDie Referenzen **AB 1.1, AB 1.2 (2.3), AB 1.1/4** hat das Modell nie gesehen.", res.Notice.Content)
	assert.Equal(t, "[~~AB 1.1~~] [~~AB 1.2 (2.3)~~] [~~AB 1.1/4~~]", res.Text)
}

func TestReconcile_English(t *testing.T) {
	res, err := Reconcile("See [EX1 3.2] and [FAKE 9.9].", knownSet(), reference.English)
	require.NoError(t, err)
	assert.Contains(t, res.Elements[0].Content, "## Section Reference")
	assert.Equal(t, "Notice!", res.Notice.Name)
}

func TestReconcile_NoCitations(t *testing.T) {
	res, err := Reconcile("Keine Zitate [hier].", nil, reference.German)
	require.NoError(t, err)
	assert.Equal(t, "Keine Zitate [hier].", res.Text)
	assert.Empty(t, res.Elements)
	assert.Nil(t, res.Notice)
}

func TestReconcile_UnsupportedLanguage(t *testing.T) {
	_, err := Reconcile("[EX1 3.2]", knownSet(), "fr")
	var langErr *reference.UnsupportedLanguageError
	assert.ErrorAs(t, err, &langErr)
}

func TestKeys(t *testing.T) {
	assert.Equal(t,
		[]string{"A1 1.2 (3.4)", "A1 1.2/3", "A1 1.2"},
		Keys("x [A1 1.2 (3.4)] y [A1 1.2/3] z [A1 1.2] [a1 1.2]"),
	)
}

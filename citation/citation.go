// Package citation 将模型回答中的引用标记与会话中见过的引用对齐，
// 并标记模型从未见过的引用（幻觉）。
package citation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/BaSui01/landau/reference"
	"github.com/BaSui01/landau/types"
)

var (
	snippetPattern = regexp.MustCompile(`\[[A-Z\d]+\s\d+\.\d+\/\d+\]`)
	sectionPattern = regexp.MustCompile(`\[[A-Z\d]+\s\d+\.\d+\]`)
	formulaPattern = regexp.MustCompile(`\[[A-Z\d]+\s\d+\.\d+\s\(\d+\.\d+\)\]`)
)

// Result of reconciling one assistant answer.
type Result struct {
	// Text is the answer with unmatched citations struck through.
	Text string
	// Elements holds one side element per cited, known reference in registration order.
	Elements []types.Element
	// Notice is set when at least one citation is unknown.
	Notice *types.Element
	// Matched and Unmatched list keys in order of first appearance in the text.
	Matched   []string
	Unmatched []string
}

// Hallucinated reports whether the answer cites a reference the model never saw.
func (r Result) Hallucinated() bool { return len(r.Unmatched) > 0 }

// AllElements returns the side elements followed by the notice, if any.
func (r Result) AllElements() []types.Element {
	out := make([]types.Element, 0, len(r.Elements)+1)
	out = append(out, r.Elements...)
	if r.Notice != nil {
		out = append(out, *r.Notice)
	}
	return out
}

// Keys returns the bracket-stripped citation keys in text in order of first appearance.
func Keys(text string) []string {
	type hit struct {
		pos int
		key string
	}
	var hits []hit
	for _, re := range []*regexp.Regexp{snippetPattern, sectionPattern, formulaPattern} {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			hits = append(hits, hit{pos: loc[0], key: text[loc[0]+1 : loc[1]-1]})
		}
	}
	// 三种模式互不重叠，按出现位置排序即可
	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	seen := make(map[string]bool, len(hits))
	keys := make([]string, 0, len(hits))
	for _, h := range hits {
		if seen[h.key] {
			continue
		}
		seen[h.key] = true
		keys = append(keys, h.key)
	}
	return keys
}

// Reconcile matches the citations in text against the known references.
func Reconcile(text string, known *reference.Set, lang reference.Language) (Result, error) {
	if known == nil {
		known = reference.NewSet()
	}
	res := Result{Text: text}
	cited := make(map[string]bool)
	for _, key := range Keys(text) {
		if known.Has(key) {
			cited[key] = true
			res.Matched = append(res.Matched, key)
			continue
		}
		res.Unmatched = append(res.Unmatched, key)
		res.Text = strings.ReplaceAll(res.Text, "["+key+"]", "[~~"+key+"~~]")
	}

	for _, ref := range known.All() {
		if !cited[ref.Key()] {
			continue
		}
		content, err := ref.Print(lang)
		if err != nil {
			return Result{}, err
		}
		res.Elements = append(res.Elements, types.Element{
			Name:    ref.Key(),
			Content: content,
			Display: types.DisplaySide,
		})
	}

	if len(res.Unmatched) > 0 {
		notice, err := hallucinationNotice(res.Unmatched, lang)
		if err != nil {
			return Result{}, err
		}
		res.Notice = notice
	}
	return res, nil
}

func hallucinationNotice(keys []string, lang reference.Language) (*types.Element, error) {
	joined := strings.Join(keys, ", ")
	var name, content string
	switch lang {
	case reference.German, "":
		plural := ""
		if len(keys) > 1 {
			plural = "en"
		}
		name = "Hinweis!"
		content = fmt.Sprintf("Das Modell hat wahrscheinlich Halluziniert!\nDie Referenz%s **%s** hat das Modell nie gesehen.", plural, joined)
	case reference.English:
		name = "Notice!"
		if len(keys) > 1 {
			content = fmt.Sprintf("The model has probably hallucinated!\nThe model has never seen the references **%s**.", joined)
		} else {
			content = fmt.Sprintf("The model has probably hallucinated!\nThe model has never seen the reference **%s**.", joined)
		}
	default:
		return nil, &reference.UnsupportedLanguageError{Language: lang}
	}
	return &types.Element{Name: name, Content: content, Display: types.DisplayInline}, nil
}

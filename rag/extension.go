package rag

import (
	"context"
	"sort"
	"strings"

	"github.com/BaSui01/landau/llm/tokenizer"
)

// DefaultExtendRadius 邻居扩展半径（段落数）。
const DefaultExtendRadius = 4

// DefaultLongFormMarkers 文档 id 中包含这些标记的文档不做邻居扩展。
var DefaultLongFormMarkers = []string{"FEYNMAN"}

// MergeSpans expands each paragraph ordinal by radius (clamped at 0) and
// returns the union as maximal runs of consecutive ordinals, ascending.
func MergeSpans(ordinals []int, radius int) [][]int {
	if len(ordinals) == 0 {
		return nil
	}
	if radius < 0 {
		radius = 0
	}
	seen := make(map[int]struct{})
	for _, p := range ordinals {
		for i := max(p-radius, 0); i <= p+radius; i++ {
			seen[i] = struct{}{}
		}
	}
	all := make([]int, 0, len(seen))
	for p := range seen {
		all = append(all, p)
	}
	sort.Ints(all)

	var spans [][]int
	current := []int{all[0]}
	for _, p := range all[1:] {
		if p == current[len(current)-1]+1 {
			current = append(current, p)
			continue
		}
		spans = append(spans, current)
		current = []int{p}
	}
	return append(spans, current)
}

func isLongForm(documentID string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(documentID, m) {
			return true
		}
	}
	return false
}

type sectionGroup struct {
	key  string
	hits []ScoredPassage
}

// extend 对每个 (文档, 章, 节) 分组做邻居扩展。每个 span 取分数最高的命中作为主段落，
// 内容为 span 内按段落序号排序、以空格连接的全部段落。
func extend(ctx context.Context, store PassageStore, collection string, passages []ScoredPassage,
	radius int, longForm []string, tok tokenizer.Tokenizer) ([]ScoredPassage, error) {

	groups := make(map[string]*sectionGroup)
	var keys []string
	for _, p := range passages {
		key := p.SectionKey()
		g, ok := groups[key]
		if !ok {
			g = &sectionGroup{key: key}
			groups[key] = g
			keys = append(keys, key)
		}
		g.hits = append(g.hits, p)
	}
	sort.Strings(keys)

	var out []ScoredPassage
	for _, key := range keys {
		g := groups[key]
		ordinals := make([]int, len(g.hits))
		for i, h := range g.hits {
			ordinals[i] = h.ParagraphID
		}

		var spans [][]int
		if isLongForm(g.hits[0].DocumentID, longForm) {
			for _, p := range ordinals {
				spans = append(spans, []int{p})
			}
		} else {
			spans = MergeSpans(ordinals, radius)
		}

		for _, span := range spans {
			main, ok := bestHit(g.hits, span)
			if !ok {
				continue
			}
			ids := make([]string, len(span))
			for i, p := range span {
				ids[i] = PassageID(main.DocumentID, main.ChapterID, main.SectionID, p)
			}
			records, err := store.GetByIDs(ctx, collection, ids)
			if err != nil {
				return nil, err
			}
			if len(records) == 0 {
				continue
			}
			sortByParagraph(records)

			parts := make([]string, len(records))
			for i, r := range records {
				parts[i] = r.Content
			}
			extended := main
			extended.Content = strings.Join(parts, " ")
			extended.NumTokens = countTokens(tok, extended.Content)
			out = append(out, extended)
		}
	}
	return out, nil
}

// bestHit 返回 span 内分数最高的命中，分数相同时取先出现者。
func bestHit(hits []ScoredPassage, span []int) (ScoredPassage, bool) {
	lo, hi := span[0], span[len(span)-1]
	var best ScoredPassage
	found := false
	for _, h := range hits {
		if h.ParagraphID < lo || h.ParagraphID > hi {
			continue
		}
		if !found || h.Score > best.Score {
			best, found = h, true
		}
	}
	return best, found
}

func countTokens(tok tokenizer.Tokenizer, text string) int {
	if tok == nil {
		return len(text) / 4
	}
	n, err := tok.CountTokens(text)
	if err != nil {
		return len(text) / 4
	}
	return n
}

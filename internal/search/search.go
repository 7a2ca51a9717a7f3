// Package search finds text in the chapters of a book.
package search

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/yuanying/epubreader/internal/cfi"
	"github.com/yuanying/epubreader/internal/dom"
)

const (
	DefaultMaxResults    = 200
	DefaultSnippetLength = 80
)

// Match is one occurrence of the query.
type Match struct {
	SpineIndex int    `json:"spineIndex"`
	Locator    string `json:"locator"`
	Snippet    string `json:"snippet"`
	// MatchStart and MatchEnd are code point offsets into Snippet.
	MatchStart int `json:"matchStart"`
	MatchEnd   int `json:"matchEnd"`
}

// Options bounds a search.
type Options struct {
	MaxResults    int
	SnippetLength int
	Logger        *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxResults <= 0 {
		o.MaxResults = DefaultMaxResults
	}
	if o.SnippetLength <= 0 {
		o.SnippetLength = DefaultSnippetLength
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Source provides chapter roots on demand. Chapter is called for one
// chapter at a time, in spine order.
type Source interface {
	Len() int
	Chapter(ctx context.Context, i int) (*html.Node, error)
}

// Search scans every chapter of src for query, case-insensitively. Chapters
// that fail to load are skipped. An empty query yields no matches. When ctx
// is cancelled the matches found so far are returned with ctx's error.
func Search(ctx context.Context, src Source, query string, opts Options) ([]Match, error) {
	opts = opts.withDefaults()
	needle := Fold(strings.TrimSpace(query))
	if len(needle) == 0 {
		return []Match{}, nil
	}

	matches := []Match{}
	for i := 0; i < src.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return matches, err
		}
		root, err := src.Chapter(ctx, i)
		if err != nil {
			if ctx.Err() != nil {
				return matches, ctx.Err()
			}
			opts.Logger.Debug("search skipped chapter", zap.Int("spine", i), zap.Error(err))
			continue
		}
		if root == nil {
			continue
		}
		matches = append(matches, Chapter(i, root, needle, opts.SnippetLength, opts.MaxResults-len(matches))...)
		if len(matches) >= opts.MaxResults {
			break
		}
	}
	return matches, nil
}

// Chapter returns up to limit matches of the folded needle in one chapter.
func Chapter(spine int, root *html.Node, needle []rune, snippetLen, limit int) []Match {
	text := []rune(dom.Text(root))
	folded, index := foldWithIndex(text)

	var out []Match
	for from := 0; len(out) < limit; {
		k := indexRunes(folded[from:], needle)
		if k < 0 {
			break
		}
		fs, fe := from+k, from+k+len(needle)
		start, end := index[fs], index[fe-1]+1
		m := Match{
			SpineIndex: spine,
			Locator:    cfi.RangeAt(spine, root, start, end).String(),
		}
		m.Snippet, m.MatchStart, m.MatchEnd = snippet(text, start, end, snippetLen)
		out = append(out, m)
		from = fe
	}
	return out
}

// Fold normalizes s to NFC and applies Unicode case folding.
func Fold(s string) []rune {
	return []rune(cases.Fold().String(norm.NFC.String(s)))
}

// foldWithIndex folds text rune by rune and maps every folded rune back to
// the index of the rune it came from.
func foldWithIndex(text []rune) ([]rune, []int) {
	c := cases.Fold()
	folded := make([]rune, 0, len(text))
	index := make([]int, 0, len(text))
	var buf [utf8.UTFMax]byte
	for i, r := range text {
		if r < utf8.RuneSelf {
			folded = append(folded, unicode.ToLower(r))
			index = append(index, i)
			continue
		}
		n := utf8.EncodeRune(buf[:], r)
		for _, fr := range c.String(string(buf[:n])) {
			folded = append(folded, fr)
			index = append(index, i)
		}
	}
	return folded, index
}

func indexRunes(s, sub []rune) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		j := 0
		for j < len(sub) && s[i+j] == sub[j] {
			j++
		}
		if j == len(sub) {
			return i
		}
	}
	return -1
}

// snippet cuts about size code points of context around text[start:end],
// collapsing white space. It returns the match position inside the snippet.
func snippet(text []rune, start, end, size int) (string, int, int) {
	pad := (size - (end - start)) / 2
	if pad < 0 {
		pad = 0
	}
	from, to := start-pad, end+pad
	if from < 0 {
		to -= from
		from = 0
	}
	if to > len(text) {
		from -= to - len(text)
		to = len(text)
		if from < 0 {
			from = 0
		}
	}

	var b []rune
	ms, me := -1, -1
	space := false
	for i := from; i < to; i++ {
		if i == start {
			ms = len(b)
		}
		if i == end {
			me = len(b)
		}
		r := text[i]
		if unicode.IsSpace(r) {
			if !space && len(b) > 0 {
				b = append(b, ' ')
			}
			space = true
			continue
		}
		space = false
		b = append(b, r)
	}
	if me < 0 {
		me = len(b)
	}
	if ms < 0 {
		ms = 0
	}
	// Trailing space is dropped only when it lies after the match.
	if len(b) > me && b[len(b)-1] == ' ' {
		b = b[:len(b)-1]
	}
	return string(b), ms, me
}

// String formats the match for terminal output.
func (m Match) String() string {
	r := []rune(m.Snippet)
	if m.MatchStart > len(r) || m.MatchEnd > len(r) || m.MatchStart > m.MatchEnd {
		return m.Snippet
	}
	return fmt.Sprintf("%s[%s]%s", string(r[:m.MatchStart]), string(r[m.MatchStart:m.MatchEnd]), string(r[m.MatchEnd:]))
}

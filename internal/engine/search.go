package engine

import (
	"context"
	"strings"

	"github.com/yuanying/epubreader/internal/search"
)

// SearchMatch is one search hit.
type SearchMatch = search.Match

// SearchInBook searches every chapter for query, case-insensitively. A
// blank query matches nothing, with or without a book.
// Chapters are loaded one at a time. A search overtaken by a new book or by
// Destroy returns no matches.
func (e *Engine) SearchInBook(ctx context.Context, query string) ([]SearchMatch, error) {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return []SearchMatch{}, nil
	}
	if len(search.Fold(strings.TrimSpace(query))) == 0 {
		e.mu.Unlock()
		return []SearchMatch{}, nil
	}
	if e.chapters == nil {
		e.mu.Unlock()
		return nil, ErrNoBook
	}
	gen := e.gen
	src := textSource{store: e.chapters}
	opts := search.Options{
		MaxResults:    e.opts.MaxResults,
		SnippetLength: e.opts.SnippetLength,
		Logger:        e.log.Named("search"),
	}
	e.mu.Unlock()

	matches, err := search.Search(ctx, src, query, opts)

	e.mu.Lock()
	stale := gen != e.gen
	e.mu.Unlock()
	if stale {
		return []SearchMatch{}, nil
	}
	return matches, err
}

// NavigateToSearchResult shows a match, like DisplayCFI.
func (e *Engine) NavigateToSearchResult(ctx context.Context, m SearchMatch) bool {
	return e.DisplayCFI(ctx, m.Locator)
}

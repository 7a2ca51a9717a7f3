package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/singleflight"

	"github.com/yuanying/epubreader/internal/epub"
	"github.com/yuanying/epubreader/internal/resource"
)

// LoadState is the load state of a spine item.
type LoadState int

const (
	Unloaded LoadState = iota
	Loading
	Loaded
	LoadFailed
)

func (s LoadState) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case LoadFailed:
		return "error"
	}
	return fmt.Sprintf("LoadState(%d)", int(s))
}

// chapterStore loads chapter documents for one book. Concurrent requests for
// the same chapter share a single load.
type chapterStore struct {
	book     *epub.Book
	resolver *resource.Resolver
	log      *zap.Logger

	group singleflight.Group

	mu     sync.Mutex
	states []LoadState
}

func newChapterStore(book *epub.Book, resolver *resource.Resolver, log *zap.Logger) *chapterStore {
	return &chapterStore{
		book:     book,
		resolver: resolver,
		log:      log,
		states:   make([]LoadState, len(book.Spine)),
	}
}

func (s *chapterStore) state(i int) LoadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.states) {
		return Unloaded
	}
	return s.states[i]
}

func (s *chapterStore) setState(i int, st LoadState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= 0 && i < len(s.states) {
		s.states[i] = st
	}
}

// mounted records that spine i is on screen and the previous one is gone.
func (s *chapterStore) mounted(prev, i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev >= 0 && prev < len(s.states) && prev != i && s.states[prev] == Loaded {
		s.states[prev] = Unloaded
	}
	if i >= 0 && i < len(s.states) {
		s.states[i] = Loaded
	}
}

// load parses and resolves spine item i for mounting. The returned tree is
// owned by the caller.
func (s *chapterStore) load(ctx context.Context, i int) (*resource.Chapter, error) {
	if i < 0 || i >= len(s.book.Spine) {
		return nil, fmt.Errorf("spine index %d out of range", i)
	}
	prev := s.state(i)
	if prev != Loaded {
		s.setState(i, Loading)
	}
	ch := s.group.DoChan("mount:"+strconv.Itoa(i), func() (any, error) {
		c, err := s.book.LoadChapter(i)
		if err != nil {
			return nil, err
		}
		return s.resolver.Resolve(c), nil
	})
	select {
	case <-ctx.Done():
		if prev != Loaded {
			s.setState(i, prev)
		}
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			s.setState(i, LoadFailed)
			s.log.Warn("chapter load failed", zap.Int("spine", i), zap.Error(r.Err))
			return nil, fmt.Errorf("failed to load chapter %d: %w", i, r.Err)
		}
		if prev != Loaded {
			s.setState(i, Unloaded)
		}
		return r.Val.(*resource.Chapter), nil
	}
}

// textSource serves unresolved chapter bodies to the search engine. The
// trees are read only, so concurrent searches may share a load.
type textSource struct {
	store *chapterStore
}

func (t textSource) Len() int {
	return len(t.store.book.Spine)
}

func (t textSource) Chapter(ctx context.Context, i int) (*html.Node, error) {
	ch := t.store.group.DoChan("text:"+strconv.Itoa(i), func() (any, error) {
		c, err := t.store.book.LoadChapter(i)
		if err != nil {
			return nil, err
		}
		return c.Body(), nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*html.Node), nil
	}
}

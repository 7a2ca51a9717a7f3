// Package engine is the reading engine: it loads a book, mounts one chapter
// at a time into the host container and keeps the reading position as an
// EPUB CFI locator.
//
// All methods are safe for concurrent use. Chapter loads run outside the
// engine lock; their results are committed only if no newer navigation, book
// load or Destroy happened in between. Callbacks are delivered in order from
// a single goroutine at a time and may call back into the engine.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/yuanying/epubreader/internal/annotation"
	"github.com/yuanying/epubreader/internal/cfi"
	"github.com/yuanying/epubreader/internal/epub"
	"github.com/yuanying/epubreader/internal/progress"
	"github.com/yuanying/epubreader/internal/render"
	"github.com/yuanying/epubreader/internal/resource"
)

// ErrNoBook is returned by operations that need a loaded book.
var ErrNoBook = errors.New("engine: no book loaded")

// BookInfo is returned by LoadBook.
type BookInfo struct {
	Title      string
	Author     string
	Language   string
	Identifier string
	Chapters   int
}

// Position reports whether paging can continue in each direction.
type Position struct {
	CanGoNext  bool
	CanGoPrev  bool
	SpineIndex int
	Percentage float64
}

// ReadingTime is the remaining reading estimate.
type ReadingTime = progress.Estimate

// anchor is the reading position: a chapter-level character offset, plus
// the exact locator when the position came from a targeted navigation.
type anchor struct {
	offset  int
	precise string
}

// Engine renders one book into a host container.
type Engine struct {
	log  *zap.Logger
	opts Options

	mu        sync.Mutex
	gen       uint64
	navSeq    uint64
	loadSeq   uint64
	destroyed bool

	book        *epub.Book
	chapters    *chapterStore
	view        *render.View
	annotations *annotation.Manager
	anchor      anchor
	lastTitle   string
	selection   *selection

	cb              callbacks
	queue           []event
	deliverMu       sync.Mutex
	lastProgress    time.Time
	pendingProgress *float64
	progressTimer   *time.Timer
}

// New creates an engine rendering into container with the initial theme.
func New(container *html.Node, theme render.ThemeConfig, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		log:         opts.Logger,
		opts:        opts,
		view:        render.NewView(container, theme, opts.Viewport),
		annotations: annotation.NewManager(opts.Logger.Named("annotation")),
	}
}

// LoadBook replaces the current book with the EPUB in data and mounts its
// first chapter. Load failures are *epub.LoadError values; the current book
// stays open when a load fails or is cancelled. A load that is overtaken by
// another LoadBook or by Destroy returns zero values.
func (e *Engine) LoadBook(ctx context.Context, data []byte) (BookInfo, error) {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return BookInfo{}, nil
	}
	e.loadSeq++
	seq := e.loadSeq
	e.mu.Unlock()

	book, err := epub.Load(data, e.log.Named("epub"))
	if err != nil {
		return BookInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return BookInfo{}, err
	}
	resolver := resource.New(book.Archive(), resource.Options{MaxImageWidth: e.opts.MaxImageWidth}, e.log.Named("resource"))
	store := newChapterStore(book, resolver, e.log.Named("chapters"))

	first, ferr := store.load(ctx, 0)
	if ferr != nil && ctx.Err() != nil {
		return BookInfo{}, ctx.Err()
	}

	e.mu.Lock()
	if seq != e.loadSeq || e.destroyed {
		e.mu.Unlock()
		e.log.Debug("book load superseded")
		return BookInfo{}, nil
	}
	e.gen++
	e.unloadLocked()
	e.book, e.chapters = book, store
	e.anchor = anchor{}
	if ferr == nil && e.mountLocked(0, first) {
		e.chapterChangedLocked(true)
		e.progressChangedLocked()
	}
	info := BookInfo{
		Title:      book.Title,
		Author:     book.Author,
		Language:   book.Metadata.Language,
		Identifier: book.Metadata.Identifier,
		Chapters:   len(book.Spine),
	}
	e.mu.Unlock()
	e.drain()

	e.log.Info("book loaded",
		zap.String("title", info.Title),
		zap.Int("chapters", info.Chapters),
		zap.Int("chars", book.TotalChars))
	return info, nil
}

// unloadLocked drops the current book, keeping callbacks.
func (e *Engine) unloadLocked() {
	e.stopProgressLocked()
	e.annotations.Clear()
	e.annotations.Unmount()
	e.view.Unmount()
	e.book, e.chapters = nil, nil
	e.anchor = anchor{}
	e.lastTitle = ""
	e.selection = nil
	e.queue = nil
}

// mountLocked puts a loaded chapter on screen and re-applies its
// annotations. The caller positions the view and reports the change.
func (e *Engine) mountLocked(spine int, ch *resource.Chapter) bool {
	prev := e.view.Spine()
	e.annotations.Unmount()
	if err := e.view.BeginLoad(); err != nil {
		e.log.Debug("mount rejected", zap.Error(err))
		return false
	}
	if err := e.view.Mount(spine, ch.Body, ch.Styles); err != nil {
		e.view.AbortLoad()
		e.log.Debug("mount failed", zap.Int("spine", spine), zap.Error(err))
		return false
	}
	e.annotations.Mount(spine, e.view.Root())
	e.chapters.mounted(prev, spine)
	e.selection = nil
	e.anchor = anchor{}
	return true
}

// Destroy unmounts the chapter, drops the book, the annotations and every
// callback. Work still in flight is discarded when it completes. Calling
// Destroy again is a no-op.
func (e *Engine) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	e.gen++
	e.unloadLocked()
	e.view.Destroy()
	e.cb = callbacks{}
	e.mu.Unlock()
	e.log.Debug("engine destroyed")
}

// Book returns the loaded book, or nil.
func (e *Engine) Book() *epub.Book {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book
}

// TableOfContents returns the TOC tree of the loaded book.
func (e *Engine) TableOfContents() []epub.TocItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.book == nil {
		return nil
	}
	return e.book.TOC
}

// SpineState returns the load state of spine item i.
func (e *Engine) SpineState(i int) LoadState {
	e.mu.Lock()
	store := e.chapters
	e.mu.Unlock()
	if store == nil {
		return Unloaded
	}
	return store.state(i)
}

// ViewState returns the lifecycle state of the mounted chapter view.
func (e *Engine) ViewState() render.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view.State()
}

// SetTheme applies cfg and reflows, keeping the reading position.
func (e *Engine) SetTheme(cfg render.ThemeConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	e.view.SetTheme(cfg)
	e.restoreAnchorLocked()
}

// SetFontSize changes only the font size of the current theme.
func (e *Engine) SetFontSize(size float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	th := e.view.Theme()
	th.FontSize = size
	e.view.SetTheme(th)
	e.restoreAnchorLocked()
}

// Theme returns the theme in effect.
func (e *Engine) Theme() render.ThemeConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view.Theme()
}

// SetViewport resizes the rendering surface, keeping the reading position.
func (e *Engine) SetViewport(vp render.Viewport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	e.view.SetViewport(vp)
	e.restoreAnchorLocked()
}

func (e *Engine) restoreAnchorLocked() {
	if e.view.Mounted() {
		e.view.ScrollToOffset(e.anchor.offset)
	}
}

// VisibleText returns the lines currently inside the viewport.
func (e *Engine) VisibleText() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view.VisibleText()
}

// CurrentPosition reports the paging state.
func (e *Engine) CurrentPosition() Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.book == nil || !e.view.Mounted() {
		return Position{SpineIndex: -1}
	}
	spine := e.view.Spine()
	return Position{
		CanGoNext:  spine < len(e.book.Spine)-1 || !e.view.AtEnd(),
		CanGoPrev:  spine > 0 || !e.view.AtStart(),
		SpineIndex: spine,
		Percentage: e.progressLocked(),
	}
}

// CurrentCFI returns the locator of the reading position.
func (e *Engine) CurrentCFI() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentCFILocked()
}

func (e *Engine) currentCFILocked() string {
	if !e.view.Mounted() {
		return ""
	}
	if e.anchor.precise != "" {
		return e.anchor.precise
	}
	root := e.view.Root()
	return cfi.Locator{Spine: e.view.Spine(), Start: cfi.PointAt(root, e.anchor.offset, false)}.String()
}

// Progress returns the reading progress in percent.
func (e *Engine) Progress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progressLocked()
}

func (e *Engine) cumulativeLocked() (int, bool) {
	if e.book == nil || !e.view.Mounted() {
		return 0, false
	}
	si := e.book.Spine[e.view.Spine()]
	return progress.Cumulative(si.Start, si.CharCount, e.anchor.offset), true
}

func (e *Engine) progressLocked() float64 {
	cum, ok := e.cumulativeLocked()
	if !ok {
		return 0
	}
	return progress.Percentage(cum, e.book.TotalChars)
}

// CalculateReadingTime estimates the time left at wpm words per minute. A
// non-positive wpm uses Options.WordsPerMinute.
func (e *Engine) CalculateReadingTime(wpm int) ReadingTime {
	e.mu.Lock()
	defer e.mu.Unlock()
	if wpm <= 0 {
		wpm = e.opts.WordsPerMinute
	}
	cum, ok := e.cumulativeLocked()
	if !ok {
		return ReadingTime{}
	}
	return progress.At(cum, e.book.TotalChars, wpm)
}

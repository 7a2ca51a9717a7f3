package engine

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/yuanying/epubreader/internal/cfi"
	"github.com/yuanying/epubreader/internal/dom"
	"github.com/yuanying/epubreader/internal/epub"
	"github.com/yuanying/epubreader/internal/progress"
	"github.com/yuanying/epubreader/internal/resource"
)

// target places the view inside a mounted chapter.
type target struct {
	// locate returns the chapter offset to show and, for locator targets,
	// the exact locator to report as the current position.
	locate func(root *html.Node) (offset int, precise string, ok bool)
	// end shows the last page instead of an offset.
	end bool
}

func offsetTarget(off int) target {
	return target{locate: func(*html.Node) (int, string, bool) { return off, "", true }}
}

func startTarget() target { return offsetTarget(0) }

func endTarget() target {
	return target{end: true}
}

func fragmentTarget(id string) target {
	return target{locate: func(root *html.Node) (int, string, bool) {
		el := dom.FindByID(root, id)
		if el == nil {
			return 0, "", true
		}
		off, err := dom.BoundaryOffset(root, el, 0)
		if err != nil {
			return 0, "", true
		}
		return off, "", true
	}}
}

func locatorTarget(loc cfi.Locator) target {
	return target{locate: func(root *html.Node) (int, string, bool) {
		start, _, ok := cfi.Offsets(root, loc)
		if !ok {
			return 0, "", false
		}
		return start, loc.Collapse().String(), true
	}}
}

// navigate mounts spine item i when needed and positions the view. A newer
// navigation started while this one is loading wins; the older one returns
// false without touching the view.
func (e *Engine) navigate(ctx context.Context, i int, t target) bool {
	e.mu.Lock()
	if e.destroyed || e.book == nil || i < 0 || i >= len(e.book.Spine) {
		e.mu.Unlock()
		return false
	}
	gen := e.gen
	e.navSeq++
	seq := e.navSeq
	store := e.chapters
	mounted := e.view.Spine() == i
	e.mu.Unlock()

	var ch *resource.Chapter
	if !mounted {
		var err error
		ch, err = store.load(ctx, i)
		if err != nil {
			e.log.Debug("navigation failed", zap.Int("spine", i), zap.Error(err))
			return false
		}
	}

	e.mu.Lock()
	if gen != e.gen || seq != e.navSeq || ctx.Err() != nil {
		e.mu.Unlock()
		e.log.Debug("navigation superseded", zap.Int("spine", i))
		return false
	}
	ok := e.commitLocked(i, ch, t)
	e.mu.Unlock()
	e.drain()
	return ok
}

// commitLocked mounts ch (when not nil) and applies t.
func (e *Engine) commitLocked(i int, ch *resource.Chapter, t target) bool {
	changed := false
	if ch != nil {
		if !e.mountLocked(i, ch) {
			return false
		}
		changed = true
	}
	before := e.anchor

	ok := true
	switch {
	case t.end:
		e.view.ScrollTo(e.view.MaxScroll())
		e.anchor = anchor{offset: e.view.OffsetAtTop()}
	case t.locate != nil:
		off, precise, found := t.locate(e.view.Root())
		if found {
			e.view.ScrollToOffset(off)
			e.anchor = anchor{offset: off, precise: precise}
		} else {
			ok = false
		}
	}

	e.chapterChangedLocked(changed)
	if changed || e.anchor != before {
		e.progressChangedLocked()
	}
	return ok
}

// scrollLocked moves the mounted view by dy and updates the anchor from the
// first visible line.
func (e *Engine) scrollLocked(dy float64) bool {
	if !e.view.ScrollBy(dy) {
		return false
	}
	e.navSeq++
	e.anchor = anchor{offset: e.view.OffsetAtTop()}
	e.chapterChangedLocked(false)
	e.progressChangedLocked()
	return true
}

// NextPage scrolls one viewport down, crossing into the next chapter at the
// end of the current one. At the end of the book it returns false.
func (e *Engine) NextPage(ctx context.Context) bool {
	e.mu.Lock()
	if e.destroyed || e.book == nil || !e.view.Mounted() {
		e.mu.Unlock()
		return false
	}
	if !e.view.AtEnd() {
		ok := e.scrollLocked(e.view.PageHeight())
		e.mu.Unlock()
		e.drain()
		return ok
	}
	next := e.view.Spine() + 1
	last := len(e.book.Spine) - 1
	e.mu.Unlock()
	if next > last {
		return false
	}
	return e.navigate(ctx, next, startTarget())
}

// PreviousPage scrolls one viewport up, crossing into the end of the
// previous chapter at the start of the current one.
func (e *Engine) PreviousPage(ctx context.Context) bool {
	e.mu.Lock()
	if e.destroyed || e.book == nil || !e.view.Mounted() {
		e.mu.Unlock()
		return false
	}
	if !e.view.AtStart() {
		ok := e.scrollLocked(-e.view.PageHeight())
		e.mu.Unlock()
		e.drain()
		return ok
	}
	prev := e.view.Spine() - 1
	e.mu.Unlock()
	if prev < 0 {
		return false
	}
	return e.navigate(ctx, prev, endTarget())
}

// NextChapter mounts the following spine item.
func (e *Engine) NextChapter(ctx context.Context) bool {
	return e.navigate(ctx, e.spineOffset(1), startTarget())
}

// PreviousChapter mounts the preceding spine item.
func (e *Engine) PreviousChapter(ctx context.Context) bool {
	return e.navigate(ctx, e.spineOffset(-1), startTarget())
}

func (e *Engine) spineOffset(d int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.view.Mounted() {
		return -1
	}
	return e.view.Spine() + d
}

// JumpToChapter navigates to an archive href, optionally with a fragment,
// such as a TocItem.Href.
func (e *Engine) JumpToChapter(ctx context.Context, href string) bool {
	e.mu.Lock()
	book := e.book
	e.mu.Unlock()
	if book == nil {
		return false
	}
	i, ok := book.SpineIndex(href)
	if !ok {
		e.log.Debug("unknown chapter href", zap.String("href", href))
		return false
	}
	if _, frag, found := strings.Cut(href, "#"); found && frag != "" {
		return e.navigate(ctx, i, fragmentTarget(frag))
	}
	return e.navigate(ctx, i, startTarget())
}

// DisplayCFI navigates to a locator string. It mounts the locator's chapter
// and returns false when the locator does not resolve in it.
func (e *Engine) DisplayCFI(ctx context.Context, s string) bool {
	loc, err := cfi.Parse(s)
	if err != nil {
		e.log.Debug("invalid locator", zap.String("cfi", s), zap.Error(err))
		return false
	}
	return e.displayLocator(ctx, loc)
}

func (e *Engine) displayLocator(ctx context.Context, loc cfi.Locator) bool {
	return e.navigate(ctx, loc.Spine, locatorTarget(loc))
}

// RestoreToPercentage navigates to the position at pct percent of the
// book's text.
func (e *Engine) RestoreToPercentage(ctx context.Context, pct float64) bool {
	e.mu.Lock()
	book := e.book
	e.mu.Unlock()
	if book == nil || len(book.Spine) == 0 {
		return false
	}
	i, off := spineAt(book, progress.OffsetAt(pct, book.TotalChars))
	return e.navigate(ctx, i, offsetTarget(off))
}

// spineAt maps a book-level offset onto a spine index and chapter offset.
func spineAt(book *epub.Book, cum int) (int, int) {
	i := sort.Search(len(book.Spine), func(i int) bool {
		return book.Spine[i].Start > cum
	}) - 1
	if i < 0 {
		i = 0
	}
	// Skip empty chapters that share the start of the next one.
	for i < len(book.Spine)-1 && book.Spine[i].CharCount == 0 && book.Spine[i+1].Start <= cum {
		i++
	}
	si := book.Spine[i]
	off := cum - si.Start
	if off > si.CharCount {
		off = si.CharCount
	}
	return i, off
}

// CurrentChapter returns the label of the deepest TOC entry at or before the
// reading position, or the spine item title when none is.
func (e *Engine) CurrentChapter() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentChapterLocked()
}

func (e *Engine) currentChapterLocked() string {
	if e.book == nil || !e.view.Mounted() {
		return ""
	}
	spine, root := e.view.Spine(), e.view.Root()
	best, found := "", false
	bestSpine, bestOff := -1, -1
	var walk func(items []epub.TocItem)
	walk = func(items []epub.TocItem) {
		for _, it := range items {
			if it.SpineIndex <= spine {
				off := 0
				if it.SpineIndex == spine && it.Fragment != "" {
					if el := dom.FindByID(root, it.Fragment); el != nil {
						if o, err := dom.BoundaryOffset(root, el, 0); err == nil {
							off = o
						}
					}
				}
				after := it.SpineIndex > bestSpine || (it.SpineIndex == bestSpine && off >= bestOff)
				if (it.SpineIndex < spine || off <= e.anchor.offset) && after {
					best, found = it.Label, true
					bestSpine, bestOff = it.SpineIndex, off
				}
			}
			walk(it.Children)
		}
	}
	walk(e.book.TOC)
	if !found {
		return e.book.SpineTitle(spine)
	}
	return best
}

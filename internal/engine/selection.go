package engine

import (
	"strings"

	"go.uber.org/zap"

	"github.com/yuanying/epubreader/internal/cfi"
	"github.com/yuanying/epubreader/internal/dom"
)

type selection struct {
	text string
	cfi  string
}

// Select reports a selection change on the rendering surface. A non-empty
// range inside the mounted chapter emits its text and range locator through
// OnTextSelect; a collapsed range clears the selection silently.
func (e *Engine) Select(r dom.Range) {
	e.mu.Lock()
	if e.destroyed || !e.view.Mounted() {
		e.mu.Unlock()
		return
	}
	if r.Collapsed() {
		e.selection = nil
		e.mu.Unlock()
		return
	}
	root, spine := e.view.Root(), e.view.Spine()
	loc, err := cfi.FromRange(spine, root, r)
	if err != nil {
		e.mu.Unlock()
		e.log.Debug("selection outside chapter", zap.Error(err))
		return
	}
	start, end, ok := cfi.Offsets(root, loc)
	if !ok || end <= start {
		e.selection = nil
		e.mu.Unlock()
		return
	}
	sel := &selection{text: dom.Slice(root, start, end), cfi: loc.String()}
	e.selection = sel
	e.enqueueLocked(event{kind: evSelect, text: sel.text, cfi: sel.cfi})
	e.mu.Unlock()
	e.drain()
}

// ClearSelection drops the current selection without emitting anything.
func (e *Engine) ClearSelection() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selection = nil
}

// Selection returns the current selection text and locator.
func (e *Engine) Selection() (text, locator string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.selection == nil {
		return "", "", false
	}
	return e.selection.text, e.selection.cfi, true
}

// FindInView returns the range of the first occurrence of text in the
// mounted chapter.
func (e *Engine) FindInView(text string) (dom.Range, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if text == "" || !e.view.Mounted() {
		return dom.Range{}, false
	}
	root := e.view.Root()
	all := dom.Text(root)
	k := strings.Index(all, text)
	if k < 0 {
		return dom.Range{}, false
	}
	start := dom.RuneLen(all[:k])
	end := start + dom.RuneLen(text)
	sn, so := dom.Locate(root, start, false)
	en, eo := dom.Locate(root, end, true)
	if sn == nil || en == nil {
		return dom.Range{}, false
	}
	return dom.Range{StartContainer: sn, StartOffset: so, EndContainer: en, EndOffset: eo}, true
}

package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/yuanying/epubreader/internal/annotation"
)

// AnnotationClick is delivered when the reader activates an overlay.
type AnnotationClick struct {
	ID      string
	Type    annotation.Type
	Locator string
	Note    string
}

type eventKind int

const (
	evProgress eventKind = iota
	evChapter
	evSelect
	evAnnotationClick
)

type event struct {
	kind     eventKind
	gen      uint64
	progress float64
	title    string
	text     string
	cfi      string
	click    AnnotationClick
}

// callbacks are single-slot: registering replaces the previous function.
type callbacks struct {
	progress        func(float64)
	chapter         func(string)
	textSelect      func(text, cfi string)
	annotationClick func(AnnotationClick)
}

// OnProgress registers the progress callback. nil unregisters it.
func (e *Engine) OnProgress(fn func(percentage float64)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.destroyed {
		e.cb.progress = fn
	}
}

// OnChapterChange registers the chapter change callback.
func (e *Engine) OnChapterChange(fn func(title string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.destroyed {
		e.cb.chapter = fn
	}
}

// OnTextSelect registers the selection callback.
func (e *Engine) OnTextSelect(fn func(text, cfi string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.destroyed {
		e.cb.textSelect = fn
	}
}

// OnAnnotationClick registers the overlay click callback.
func (e *Engine) OnAnnotationClick(fn func(AnnotationClick)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.destroyed {
		e.cb.annotationClick = fn
	}
}

// enqueueLocked queues ev for delivery. e.mu must be held.
func (e *Engine) enqueueLocked(ev event) {
	ev.gen = e.gen
	e.queue = append(e.queue, ev)
}

// drain delivers queued events in order. Only one goroutine delivers at a
// time; callers that find a drainer active leave their events to it, which
// makes calls from inside callbacks safe.
func (e *Engine) drain() {
	for {
		if !e.deliverMu.TryLock() {
			return
		}
		for {
			e.mu.Lock()
			if len(e.queue) == 0 {
				e.mu.Unlock()
				break
			}
			ev := e.queue[0]
			e.queue = e.queue[1:]
			stale := ev.gen != e.gen || e.destroyed
			cb := e.cb
			e.mu.Unlock()
			if !stale {
				e.deliver(cb, ev)
			}
		}
		e.deliverMu.Unlock()

		e.mu.Lock()
		more := len(e.queue) > 0
		e.mu.Unlock()
		if !more {
			return
		}
	}
}

func (e *Engine) deliver(cb callbacks, ev event) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("callback panicked", zap.Any("panic", r), zap.Int("event", int(ev.kind)))
		}
	}()
	switch ev.kind {
	case evProgress:
		if cb.progress != nil {
			cb.progress(ev.progress)
		}
	case evChapter:
		if cb.chapter != nil {
			cb.chapter(ev.title)
		}
	case evSelect:
		if cb.textSelect != nil {
			cb.textSelect(ev.text, ev.cfi)
		}
	case evAnnotationClick:
		if cb.annotationClick != nil {
			cb.annotationClick(ev.click)
		}
	}
}

// progressChangedLocked reports a position change. Emissions closer than
// ProgressInterval are coalesced: the latest value is kept and delivered
// once the interval has passed.
func (e *Engine) progressChangedLocked() {
	pct := e.progressLocked()
	now := e.opts.Clock()
	wait := e.opts.ProgressInterval - now.Sub(e.lastProgress)
	if e.opts.ProgressInterval <= 0 || wait <= 0 {
		e.emitProgressLocked(pct, now)
		return
	}
	e.pendingProgress = &pct
	if e.progressTimer != nil {
		return
	}
	gen := e.gen
	e.progressTimer = time.AfterFunc(wait, func() {
		e.mu.Lock()
		e.progressTimer = nil
		if gen != e.gen || e.destroyed || e.pendingProgress == nil {
			e.mu.Unlock()
			return
		}
		e.emitProgressLocked(*e.pendingProgress, e.opts.Clock())
		e.mu.Unlock()
		e.drain()
	})
}

func (e *Engine) emitProgressLocked(pct float64, now time.Time) {
	e.pendingProgress = nil
	e.lastProgress = now
	e.enqueueLocked(event{kind: evProgress, progress: pct})
}

// stopProgressLocked cancels a coalesced emission.
func (e *Engine) stopProgressLocked() {
	if e.progressTimer != nil {
		e.progressTimer.Stop()
		e.progressTimer = nil
	}
	e.pendingProgress = nil
}

// chapterChangedLocked emits the chapter title when it differs from the
// last one reported.
func (e *Engine) chapterChangedLocked(force bool) {
	title := e.currentChapterLocked()
	if !force && title == e.lastTitle {
		return
	}
	e.lastTitle = title
	e.enqueueLocked(event{kind: evChapter, title: title})
}

package engine

import (
	"context"

	"golang.org/x/net/html"

	"github.com/yuanying/epubreader/internal/annotation"
)

// Annotation is a highlight, note or bookmark.
type Annotation = annotation.Annotation

// AddAnnotation stores a and draws it when its chapter is mounted. The
// stored annotation, with its generated ID and cached text, is returned.
func (e *Engine) AddAnnotation(a Annotation) (Annotation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return Annotation{}, nil
	}
	return e.annotations.Add(a)
}

// RemoveAnnotation deletes an annotation and its overlay.
func (e *Engine) RemoveAnnotation(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return false
	}
	return e.annotations.Remove(id)
}

// LoadAnnotations replaces the annotation set. Invalid entries are skipped
// and reported in the error.
func (e *Engine) LoadAnnotations(list []Annotation) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return nil
	}
	return e.annotations.Load(list)
}

// Annotations returns the annotation set in locator order.
func (e *Engine) Annotations() []Annotation {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return nil
	}
	return e.annotations.List()
}

// Annotation returns one annotation by ID.
func (e *Engine) Annotation(id string) (Annotation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.annotations.Get(id)
}

// NavigateToAnnotation shows the annotation's position. It returns false for
// unknown IDs and for locators that no longer resolve.
func (e *Engine) NavigateToAnnotation(ctx context.Context, id string) bool {
	e.mu.Lock()
	loc, ok := e.annotations.Locator(id)
	e.mu.Unlock()
	if !ok {
		return false
	}
	return e.displayLocator(ctx, loc)
}

// HandleClick reports an activation of node on the rendering surface. When
// node is inside an annotation overlay, OnAnnotationClick receives it and
// HandleClick returns true.
func (e *Engine) HandleClick(node *html.Node) bool {
	e.mu.Lock()
	if e.destroyed || node == nil {
		e.mu.Unlock()
		return false
	}
	a, ok := e.annotations.At(node)
	if !ok {
		e.mu.Unlock()
		return false
	}
	e.enqueueLocked(event{kind: evAnnotationClick, click: AnnotationClick{
		ID:      a.ID,
		Type:    a.Type,
		Locator: a.Locator,
		Note:    a.Note,
	}})
	e.mu.Unlock()
	e.drain()
	return true
}

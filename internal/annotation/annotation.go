// Package annotation keeps the highlight, note and bookmark set of a book
// and overlays it onto the mounted chapter.
//
// Highlights and notes are drawn by wrapping the covered text in marker
// spans (dom.OverlayAttr). Markers are transparent to locator math, so
// adding or removing one never moves another annotation.
package annotation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/yuanying/epubreader/internal/cfi"
	"github.com/yuanying/epubreader/internal/dom"
)

// Type is the kind of an annotation.
type Type string

const (
	Highlight Type = "highlight"
	Note      Type = "note"
	Bookmark  Type = "bookmark"
)

// DefaultColor is used for highlights and notes without a color.
const DefaultColor = "#ffeb3b"

// Marker classes.
const (
	MarkerClass = "epub-annotation"
	// TypeAttr carries the annotation type on a marker.
	TypeAttr = "data-epub-annotation"
)

var (
	ErrUnknownType    = errors.New("annotation: unknown type")
	ErrInvalidLocator = errors.New("annotation: invalid locator")
)

// Annotation is a highlight, note or bookmark anchored on a locator.
type Annotation struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Locator   string    `json:"locator"`
	Color     string    `json:"color,omitempty"`
	Note      string    `json:"note,omitempty"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type entry struct {
	Annotation
	loc     cfi.Locator
	applied bool
}

// Manager is the in-memory annotation index. It is not safe for concurrent
// use; the engine serializes access.
type Manager struct {
	log     *zap.Logger
	entries map[string]*entry

	root  *html.Node
	spine int
}

// NewManager creates an empty manager.
func NewManager(log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		log:     log,
		entries: make(map[string]*entry),
		spine:   -1,
	}
}

// Add stores a and overlays it when its chapter is mounted. An annotation
// whose chapter is not mounted, or that does not resolve yet, stays pending
// and is applied on a later Mount. Adding an existing ID replaces it.
func (m *Manager) Add(a Annotation) (Annotation, error) {
	switch a.Type {
	case Highlight, Note, Bookmark:
	default:
		return Annotation{}, fmt.Errorf("%w: %q", ErrUnknownType, a.Type)
	}
	loc, err := cfi.Parse(a.Locator)
	if err != nil {
		return Annotation{}, fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.Type != Bookmark && a.Color == "" {
		a.Color = DefaultColor
	}
	a.Locator = loc.String()

	m.Remove(a.ID)
	e := &entry{Annotation: a, loc: loc}
	m.entries[a.ID] = e
	if m.root != nil && loc.Spine == m.spine {
		if !m.apply(e) {
			m.log.Debug("annotation pending", zap.String("id", a.ID), zap.String("locator", a.Locator))
		}
	}
	return e.Annotation, nil
}

// Remove deletes the annotation and unwraps its markers. It reports whether
// the ID was known.
func (m *Manager) Remove(id string) bool {
	e, ok := m.entries[id]
	if !ok {
		return false
	}
	if e.applied && m.root != nil {
		unwrap(m.root, id)
	}
	delete(m.entries, id)
	return true
}

// Load replaces the whole set with list. Entries that fail validation are
// skipped and reported in the returned error; the rest are loaded. Entries
// without an ID get one derived from their content, so loading the same list
// twice yields the same set.
func (m *Manager) Load(list []Annotation) error {
	m.Clear()
	var errs []error
	for _, a := range list {
		if a.ID == "" {
			a.ID = contentID(a)
		}
		if _, err := m.Add(a); err != nil {
			errs = append(errs, fmt.Errorf("annotation %q: %w", a.ID, err))
		}
	}
	return errors.Join(errs...)
}

func contentID(a Annotation) string {
	key := strings.Join([]string{string(a.Type), a.Locator, a.Color, a.Note}, "\x00")
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// Clear removes every annotation.
func (m *Manager) Clear() {
	for id := range m.entries {
		m.Remove(id)
	}
}

// Mount attaches the manager to a freshly mounted chapter and applies the
// annotations anchored in it.
func (m *Manager) Mount(spine int, root *html.Node) {
	m.root, m.spine = root, spine
	for _, e := range m.sorted() {
		e.applied = false
		if e.loc.Spine != spine {
			continue
		}
		if !m.apply(e) {
			m.log.Debug("annotation does not resolve", zap.String("id", e.ID), zap.String("locator", e.Locator))
		}
	}
}

// Unmount forgets the mounted chapter. Annotations stay in the index.
func (m *Manager) Unmount() {
	m.root, m.spine = nil, -1
	for _, e := range m.entries {
		e.applied = false
	}
}

// Get returns the annotation with the given ID.
func (m *Manager) Get(id string) (Annotation, bool) {
	e, ok := m.entries[id]
	if !ok {
		return Annotation{}, false
	}
	return e.Annotation, true
}

// Locator returns the parsed locator of the annotation.
func (m *Manager) Locator(id string) (cfi.Locator, bool) {
	e, ok := m.entries[id]
	if !ok {
		return cfi.Locator{}, false
	}
	return e.loc, true
}

// Applied reports whether the annotation is drawn in the mounted chapter.
func (m *Manager) Applied(id string) bool {
	e, ok := m.entries[id]
	return ok && e.applied
}

// List returns all annotations in locator order.
func (m *Manager) List() []Annotation {
	sorted := m.sorted()
	out := make([]Annotation, len(sorted))
	for i, e := range sorted {
		out[i] = e.Annotation
	}
	return out
}

// Len returns the number of annotations.
func (m *Manager) Len() int {
	return len(m.entries)
}

func (m *Manager) sorted() []*entry {
	out := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := cfi.Compare(out[i].loc, out[j].loc); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// At returns the annotation whose marker contains n, innermost first.
func (m *Manager) At(n *html.Node) (Annotation, bool) {
	for ; n != nil; n = n.Parent {
		if !dom.IsMarker(n) {
			continue
		}
		id, _ := dom.Attr(n, dom.OverlayAttr)
		if e, ok := m.entries[id]; ok {
			return e.Annotation, true
		}
	}
	return Annotation{}, false
}

// apply resolves e against the mounted root and draws it. Bookmarks have no
// markers; they only need to resolve.
func (m *Manager) apply(e *entry) bool {
	start, end, ok := cfi.Offsets(m.root, e.loc)
	if !ok {
		return false
	}
	if e.Text == "" && end > start {
		e.Text = strings.TrimSpace(dom.Slice(m.root, start, end))
	}
	if e.Type == Bookmark {
		e.applied = true
		return true
	}
	if end <= start {
		return false
	}
	wrap(m.root, start, end, func() *html.Node { return marker(e) })
	e.applied = true
	return true
}

func marker(e *entry) *html.Node {
	span := &html.Node{Type: html.ElementNode, Data: "span", DataAtom: atom.Span}
	dom.SetAttr(span, dom.OverlayAttr, e.ID)
	dom.SetAttr(span, TypeAttr, string(e.Type))
	dom.SetAttr(span, "class", MarkerClass+" "+MarkerClass+"-"+string(e.Type))
	style := "background-color: " + e.Color
	if e.Type == Note {
		style += "; border-bottom: 2px dotted " + e.Color
	}
	dom.SetAttr(span, "style", style)
	return span
}

type piece struct {
	node       *html.Node
	start, end int
}

// wrap encloses the text between chapter offsets start and end in marker
// spans, one per text node piece, splitting nodes at the boundaries.
func wrap(root *html.Node, start, end int, newMarker func() *html.Node) {
	var pieces []piece
	cum := 0
	dom.WalkText(root, func(t *html.Node) bool {
		l := dom.RuneLen(t.Data)
		s, e := max(start, cum), min(end, cum+l)
		if s < e {
			pieces = append(pieces, piece{node: t, start: s - cum, end: e - cum})
		}
		cum += l
		return cum < end
	})

	for _, p := range pieces {
		t := p.node
		if strings.TrimSpace(string([]rune(t.Data)[p.start:p.end])) == "" {
			continue
		}
		if p.end < dom.RuneLen(t.Data) {
			dom.SplitText(t, p.end)
		}
		if p.start > 0 {
			t = dom.SplitText(t, p.start)
		}
		span := newMarker()
		t.Parent.InsertBefore(span, t)
		t.Parent.RemoveChild(t)
		span.AppendChild(t)
	}
}

// unwrap removes the markers of id under root and merges the text nodes
// they leave behind.
func unwrap(root *html.Node, id string) {
	var markers []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if dom.IsMarker(c) {
				if v, _ := dom.Attr(c, dom.OverlayAttr); v == id {
					markers = append(markers, c)
				}
			}
			walk(c)
		}
	}
	walk(root)

	parents := make(map[*html.Node]bool)
	for _, mk := range markers {
		if p := mk.Parent; p != nil {
			parents[p] = true
			dom.Unwrap(mk)
		}
	}
	for p := range parents {
		if p.Parent != nil || p == root {
			normalizeText(p)
		}
	}
}

// normalizeText merges adjacent text children of n without descending into
// other elements.
func normalizeText(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.TextNode {
			continue
		}
		for next := c.NextSibling; next != nil && next.Type == html.TextNode; next = c.NextSibling {
			c.Data += next.Data
			n.RemoveChild(next)
		}
	}
}

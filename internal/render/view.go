// Package render mounts chapter trees into the host container and reflows
// them against a theme and a viewport. Layout is headless: line geometry is
// estimated from typography, which is enough to page, scroll and map scroll
// positions to character offsets.
package render

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/yuanying/epubreader/internal/dom"
)

// State is the lifecycle of the chapter held by a View.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateMounted
	StateUnmounting
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateMounted:
		return "mounted"
	case StateUnmounting:
		return "unmounting"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// CanTransition reports whether the view may move from s to next.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateUnloaded:
		return next == StateLoading
	case StateLoading:
		return next == StateMounted || next == StateUnloaded
	case StateMounted:
		return next == StateUnmounting || next == StateLoading
	case StateUnmounting:
		return next == StateUnloaded
	}
	return false
}

// Class names of the engine-owned subtree.
const (
	ViewClass    = "epub-view"
	ChapterClass = "epub-chapter"
	// SpineAttr carries the spine index of the mounted chapter.
	SpineAttr = "data-epub-spine"
)

// View owns the subtree appended under the host container. It is not safe
// for concurrent use; the engine serializes access.
type View struct {
	container *html.Node
	wrapper   *html.Node
	root      *html.Node

	theme    ThemeConfig
	viewport Viewport
	layout   *Layout
	scroll   float64
	spine    int
	state    State
}

// NewView creates a view rendering into container.
func NewView(container *html.Node, theme ThemeConfig, vp Viewport) *View {
	return &View{
		container: container,
		theme:     theme.Normalize(),
		viewport:  vp.normalize(),
		spine:     -1,
	}
}

func (v *View) transition(next State) error {
	if !v.state.CanTransition(next) {
		return fmt.Errorf("render: invalid transition %s -> %s", v.state, next)
	}
	v.state = next
	return nil
}

// State returns the lifecycle state of the view.
func (v *View) State() State {
	return v.state
}

// BeginLoad marks the start of a chapter load.
func (v *View) BeginLoad() error {
	return v.transition(StateLoading)
}

// AbortLoad returns a loading view to its previous content, or to unloaded
// when nothing was mounted.
func (v *View) AbortLoad() {
	if v.state != StateLoading {
		return
	}
	if v.root != nil {
		v.state = StateMounted
		return
	}
	v.state = StateUnloaded
}

// Mount takes ownership of body, replacing whatever chapter was mounted.
// The body becomes a div.epub-chapter inside the themed wrapper, preceded
// by the chapter style sheets.
func (v *View) Mount(spine int, body *html.Node, styles []string) error {
	if v.state != StateLoading {
		if err := v.transition(StateLoading); err != nil {
			return err
		}
	}
	v.detach()

	dom.Detach(body)
	body.Data = "div"
	body.DataAtom = atom.Div
	dom.SetAttr(body, "class", ChapterClass)
	dom.SetAttr(body, SpineAttr, fmt.Sprint(spine))

	wrapper := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, css := range styles {
		style := &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style}
		style.AppendChild(&html.Node{Type: html.TextNode, Data: css})
		wrapper.AppendChild(style)
	}
	wrapper.AppendChild(body)
	v.theme.Apply(wrapper)
	if v.container != nil {
		v.container.AppendChild(wrapper)
	}

	v.wrapper, v.root, v.spine = wrapper, body, spine
	v.scroll = 0
	v.state = StateMounted
	v.Relayout()
	return nil
}

// Unmount removes the chapter from the container.
func (v *View) Unmount() {
	if v.state == StateUnloaded {
		return
	}
	v.state = StateUnmounting
	v.detach()
	v.state = StateUnloaded
}

func (v *View) detach() {
	if v.wrapper != nil {
		dom.Detach(v.wrapper)
	}
	v.wrapper, v.root, v.layout = nil, nil, nil
	v.spine = -1
	v.scroll = 0
}

// Mounted reports whether a chapter is on screen.
func (v *View) Mounted() bool {
	return v.root != nil
}

// Root returns the mounted chapter root, the node locators are relative to.
func (v *View) Root() *html.Node {
	return v.root
}

// Spine returns the spine index of the mounted chapter, or -1.
func (v *View) Spine() int {
	return v.spine
}

// Theme returns the normalized theme in effect.
func (v *View) Theme() ThemeConfig {
	return v.theme
}

// Viewport returns the rendering surface size.
func (v *View) Viewport() Viewport {
	return v.viewport
}

// Layout returns the current layout, nil when nothing is mounted.
func (v *View) Layout() *Layout {
	return v.layout
}

// SetTheme applies a new theme and reflows.
func (v *View) SetTheme(t ThemeConfig) {
	v.theme = t.Normalize()
	if v.wrapper != nil {
		v.theme.Apply(v.wrapper)
	}
	v.Relayout()
}

// SetViewport resizes the surface and reflows.
func (v *View) SetViewport(vp Viewport) {
	v.viewport = vp.normalize()
	v.Relayout()
}

// Relayout recomputes line geometry. The scroll offset is clamped but
// otherwise kept; callers that track a text anchor scroll back to it.
func (v *View) Relayout() {
	if v.root == nil {
		v.layout = nil
		return
	}
	v.layout = Compute(v.root, v.theme, v.viewport)
	v.scroll = v.clamp(v.scroll)
}

func (v *View) clamp(y float64) float64 {
	if v.layout == nil {
		return 0
	}
	return math.Max(0, math.Min(y, v.layout.MaxScroll(v.viewport.Height)))
}

// ScrollTop returns the scroll offset in pixels.
func (v *View) ScrollTop() float64 {
	return v.scroll
}

// MaxScroll returns the largest scroll offset of the mounted chapter.
func (v *View) MaxScroll() float64 {
	if v.layout == nil {
		return 0
	}
	return v.layout.MaxScroll(v.viewport.Height)
}

// ScrollTo moves to y, clamped to the chapter.
func (v *View) ScrollTo(y float64) {
	v.scroll = v.clamp(y)
}

// ScrollBy moves by dy and reports whether the position changed.
func (v *View) ScrollBy(dy float64) bool {
	prev := v.scroll
	v.scroll = v.clamp(v.scroll + dy)
	return v.scroll != prev
}

// PageHeight is the scroll distance of one page.
func (v *View) PageHeight() float64 {
	return v.viewport.Height
}

// ScrollToOffset brings the line holding the chapter offset to the top.
func (v *View) ScrollToOffset(offset int) {
	if v.layout == nil {
		return
	}
	y := v.layout.YOf(offset)
	if i := v.layout.LineAt(offset); i == 0 {
		y = 0
	}
	v.scroll = v.clamp(y)
}

// OffsetAtTop returns the chapter offset of the first visible line.
func (v *View) OffsetAtTop() int {
	if v.layout == nil {
		return 0
	}
	if v.scroll <= 0 {
		return 0
	}
	return v.layout.OffsetAtY(v.scroll)
}

// AtStart reports whether the view shows the beginning of the chapter.
func (v *View) AtStart() bool {
	return v.scroll <= 0
}

// AtEnd reports whether the view shows the end of the chapter.
func (v *View) AtEnd() bool {
	return v.scroll >= v.MaxScroll()-0.5
}

// VisibleText returns the text of the lines inside the viewport.
func (v *View) VisibleText() []string {
	if v.layout == nil {
		return nil
	}
	var out []string
	bottom := v.scroll + v.viewport.Height
	for _, l := range v.layout.Lines {
		if l.Bottom() <= v.scroll || l.Image {
			continue
		}
		if l.Top >= bottom {
			break
		}
		if t := strings.TrimSpace(l.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// VisibleRange returns the chapter offsets covered by the viewport.
func (v *View) VisibleRange() (int, int) {
	if v.layout == nil || len(v.layout.Lines) == 0 {
		return 0, 0
	}
	first := v.layout.LineAtY(v.scroll)
	last := v.layout.LineAtY(v.scroll + v.viewport.Height - 1)
	return v.layout.Lines[first].Start, v.layout.Lines[last].End
}

// Destroy unmounts and forgets the container.
func (v *View) Destroy() {
	v.Unmount()
	v.container = nil
}

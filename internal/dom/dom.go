// Package dom provides tree helpers over golang.org/x/net/html nodes for a
// mounted chapter document.
//
// Overlay marker elements (spans carrying OverlayAttr) are transparent to
// every walk in this package: their children are treated as if they were
// children of the marker's parent, and text split across markers is seen as
// one logical text run. Offsets are counted in Unicode code points.
package dom

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// OverlayAttr marks synthetic wrapper elements inserted by the annotation
// overlay. Its value is the annotation ID.
const OverlayAttr = "data-epub-overlay"

// IsMarker reports whether n is an overlay marker element.
func IsMarker(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == OverlayAttr {
			return true
		}
	}
	return false
}

// Attr returns the value of the attribute key on n.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces an attribute on n.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RuneLen returns the number of code points in s.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Child is one logical child of an element: either a non-marker element or a
// maximal run of adjacent text nodes.
type Child struct {
	Element *html.Node
	Texts   []*html.Node
	// Step is the CFI step index: even for elements, odd for text runs.
	Step int
}

// IsText reports whether the child is a text run.
func (c Child) IsText() bool {
	return c.Element == nil
}

// Len returns the logical text length of the child.
func (c Child) Len() int {
	if c.Element != nil {
		return TextLen(c.Element)
	}
	n := 0
	for _, t := range c.Texts {
		n += RuneLen(t.Data)
	}
	return n
}

// LogicalChildren lists the logical children of n with CFI step indices.
// Text runs get odd indices (the run before the k-th element is 2k-1), and
// elements get even indices. Empty implied runs are not listed.
func LogicalChildren(n *html.Node) []Child {
	var out []Child
	elements := 0
	var walk func(p *html.Node)
	walk = func(p *html.Node) {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case c.Type == html.TextNode:
				if len(out) > 0 && out[len(out)-1].IsText() {
					out[len(out)-1].Texts = append(out[len(out)-1].Texts, c)
					continue
				}
				out = append(out, Child{Texts: []*html.Node{c}, Step: 2*elements + 1})
			case IsMarker(c):
				walk(c)
			case c.Type == html.ElementNode:
				elements++
				out = append(out, Child{Element: c, Step: 2 * elements})
			}
		}
	}
	walk(n)
	return out
}

// LogicalParent returns the nearest ancestor of n that is not a marker.
func LogicalParent(n *html.Node) *html.Node {
	p := n.Parent
	for p != nil && IsMarker(p) {
		p = p.Parent
	}
	return p
}

// TextLen returns the number of code points of text under n.
func TextLen(n *html.Node) int {
	if n == nil {
		return 0
	}
	if n.Type == html.TextNode {
		return RuneLen(n.Data)
	}
	total := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		total += TextLen(c)
	}
	return total
}

// Text returns the concatenated text under n.
func Text(n *html.Node) string {
	var b strings.Builder
	WalkText(n, func(t *html.Node) bool {
		b.WriteString(t.Data)
		return true
	})
	return b.String()
}

// WalkText calls fn for every text node under n in document order until fn
// returns false.
func WalkText(n *html.Node, fn func(*html.Node) bool) bool {
	if n.Type == html.TextNode {
		return fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !WalkText(c, fn) {
			return false
		}
	}
	return true
}

// TextNodes returns the text nodes under n in document order.
func TextNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	WalkText(n, func(t *html.Node) bool {
		out = append(out, t)
		return true
	})
	return out
}

// Contains reports whether n is root or a descendant of root.
func Contains(root, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == root {
			return true
		}
	}
	return false
}

// ChildIndex returns the physical index of n among its parent's children.
func ChildIndex(n *html.Node) int {
	i := 0
	for c := n.Parent.FirstChild; c != nil && c != n; c = c.NextSibling {
		i++
	}
	return i
}

// ChildAt returns the i-th physical child of n, or nil.
func ChildAt(n *html.Node, i int) *html.Node {
	c := n.FirstChild
	for ; c != nil && i > 0; c = c.NextSibling {
		i--
	}
	return c
}

// FindByID returns the first element under root whose id equals id.
func FindByID(root *html.Node, id string) *html.Node {
	if id == "" {
		return nil
	}
	var found *html.Node
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if v, ok := Attr(n, "id"); ok && v == id {
				found = n
				return false
			}
			if v, ok := Attr(n, "name"); ok && v == id && n.Data == "a" {
				found = n
				return false
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(root)
	return found
}

// Clone returns a deep copy of n detached from any tree.
func Clone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = append([]html.Attribute(nil), n.Attr...)
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.AppendChild(Clone(ch))
	}
	return c
}

// Detach removes n from its parent, if any.
func Detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// RemoveChildren detaches every child of n.
func RemoveChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

// SplitText splits text node t at code point offset off and returns the new
// node holding the tail. The tail is inserted right after t.
func SplitText(t *html.Node, off int) *html.Node {
	runes := []rune(t.Data)
	if off < 0 {
		off = 0
	}
	if off > len(runes) {
		off = len(runes)
	}
	tail := &html.Node{Type: html.TextNode, Data: string(runes[off:])}
	t.Data = string(runes[:off])
	t.Parent.InsertBefore(tail, t.NextSibling)
	return tail
}

// Unwrap replaces n with its children.
func Unwrap(n *html.Node) {
	p := n.Parent
	if p == nil {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		p.InsertBefore(c, n)
		c = next
	}
	p.RemoveChild(n)
}

// Normalize merges adjacent text nodes and drops empty ones under n.
func Normalize(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.TextNode {
			for next != nil && next.Type == html.TextNode {
				c.Data += next.Data
				after := next.NextSibling
				n.RemoveChild(next)
				next = after
			}
			if c.Data == "" {
				n.RemoveChild(c)
			}
		} else {
			Normalize(c)
		}
		c = next
	}
}

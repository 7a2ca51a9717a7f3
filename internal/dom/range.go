package dom

import (
	"errors"

	"golang.org/x/net/html"
)

// ErrOutsideRoot is returned when a boundary does not belong to the root.
var ErrOutsideRoot = errors.New("dom: boundary outside of root")

// Range is a selection over a mounted document, modelled on the DOM Range:
// a text container takes a code point offset, an element container takes a
// child index.
type Range struct {
	StartContainer *html.Node
	StartOffset    int
	EndContainer   *html.Node
	EndOffset      int
}

// Collapsed reports whether the range is empty.
func (r Range) Collapsed() bool {
	return r.StartContainer == r.EndContainer && r.StartOffset == r.EndOffset
}

// BoundaryOffset returns the chapter-level character offset of the boundary
// (node, off) relative to root.
func BoundaryOffset(root, node *html.Node, off int) (int, error) {
	if node == nil || !Contains(root, node) {
		return 0, ErrOutsideRoot
	}
	var target *html.Node
	if node.Type == html.TextNode {
		target = node
	} else {
		target = ChildAt(node, off)
	}

	count := 0
	found := false
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n == target {
			found = true
			return false
		}
		if n.Type == html.TextNode {
			count += RuneLen(n.Data)
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		// Boundary after the last child of node.
		if target == nil && n == node {
			found = true
			return false
		}
		return true
	}
	walk(root)
	if !found {
		return 0, ErrOutsideRoot
	}
	if node.Type == html.TextNode {
		l := RuneLen(node.Data)
		switch {
		case off < 0:
			off = 0
		case off > l:
			off = l
		}
		count += off
	}
	return count, nil
}

// Locate finds the text node holding chapter-level character offset off.
// With preferEnd, a position on a node boundary resolves to the end of the
// preceding node instead of the start of the following one. It returns nil
// when root has no text.
func Locate(root *html.Node, off int, preferEnd bool) (*html.Node, int) {
	if off < 0 {
		off = 0
	}
	var last *html.Node
	var hit *html.Node
	local := 0
	cum := 0
	WalkText(root, func(t *html.Node) bool {
		l := RuneLen(t.Data)
		if l == 0 {
			return true
		}
		last = t
		if preferEnd {
			if off <= cum+l && (off > cum || cum == 0) {
				hit, local = t, off-cum
				return false
			}
		} else if off < cum+l {
			hit, local = t, off-cum
			return false
		}
		cum += l
		return true
	})
	if hit != nil {
		return hit, local
	}
	if last == nil {
		return nil, 0
	}
	return last, RuneLen(last.Data)
}

// Slice returns the text between chapter-level offsets start and end.
func Slice(root *html.Node, start, end int) string {
	if end <= start {
		return ""
	}
	runes := []rune(Text(root))
	if start < 0 {
		start = 0
	}
	if end > len(runes) {
		end = len(runes)
	}
	if start >= end {
		return ""
	}
	return string(runes[start:end])
}

package cfi

import (
	"fmt"

	"golang.org/x/net/html"

	"github.com/yuanying/epubreader/internal/dom"
)

// FromRange computes the locator of a non-collapsed range inside root, the
// body of chapter spine. A collapsed range yields a point locator.
func FromRange(spine int, root *html.Node, r dom.Range) (Locator, error) {
	start, err := PointFromBoundary(root, r.StartContainer, r.StartOffset, false)
	if err != nil {
		return Locator{}, fmt.Errorf("range start: %w", err)
	}
	if r.Collapsed() {
		return Locator{Spine: spine, Start: start}, nil
	}
	end, err := PointFromBoundary(root, r.EndContainer, r.EndOffset, true)
	if err != nil {
		return Locator{}, fmt.Errorf("range end: %w", err)
	}
	if ComparePoints(end, start) < 0 {
		start, end = end, start
	}
	return Locator{Spine: spine, Start: start, End: &end}, nil
}

// PointFromBoundary computes the structural point of the boundary
// (node, off) inside root. Element boundaries are moved to the nearest text
// position: forward for starts, backward when preferEnd is set.
func PointFromBoundary(root, node *html.Node, off int, preferEnd bool) (Point, error) {
	if node == nil || !dom.Contains(root, node) {
		return Point{}, dom.ErrOutsideRoot
	}
	if node.Type != html.TextNode {
		c, err := dom.BoundaryOffset(root, node, off)
		if err != nil {
			return Point{}, err
		}
		return PointAt(root, c, preferEnd), nil
	}

	parent := dom.LogicalParent(node)
	if parent == nil || !dom.Contains(root, parent) {
		return Point{}, dom.ErrOutsideRoot
	}
	path, err := elementPath(root, parent)
	if err != nil {
		return Point{}, err
	}
	for _, ch := range dom.LogicalChildren(parent) {
		if !ch.IsText() {
			continue
		}
		prefix := 0
		for _, t := range ch.Texts {
			if t == node {
				l := dom.RuneLen(t.Data)
				switch {
				case off < 0:
					off = 0
				case off > l:
					off = l
				}
				return Point{Path: append(path, ch.Step), Offset: prefix + off}, nil
			}
			prefix += dom.RuneLen(t.Data)
		}
	}
	return Point{}, dom.ErrOutsideRoot
}

// elementPath returns the steps from the document root down to el, starting
// with BodyStep for root.
func elementPath(root, el *html.Node) ([]int, error) {
	var rev []int
	for n := el; n != root; {
		p := dom.LogicalParent(n)
		if p == nil {
			return nil, dom.ErrOutsideRoot
		}
		step := -1
		for _, ch := range dom.LogicalChildren(p) {
			if ch.Element == n {
				step = ch.Step
				break
			}
		}
		if step < 0 {
			return nil, dom.ErrOutsideRoot
		}
		rev = append(rev, step)
		n = p
	}
	path := make([]int, 0, len(rev)+1)
	path = append(path, BodyStep)
	for i := len(rev) - 1; i >= 0; i-- {
		path = append(path, rev[i])
	}
	return path, nil
}

// PointAt converts a chapter-level character offset into a point.
func PointAt(root *html.Node, offset int, preferEnd bool) Point {
	t, local := dom.Locate(root, offset, preferEnd)
	if t == nil {
		return Point{Path: []int{BodyStep}}
	}
	p, err := PointFromBoundary(root, t, local, preferEnd)
	if err != nil {
		return Point{Path: []int{BodyStep}}
	}
	return p
}

// RangeAt builds a range locator between two chapter-level offsets.
func RangeAt(spine int, root *html.Node, start, end int) Locator {
	s := PointAt(root, start, false)
	e := PointAt(root, end, true)
	return Locator{Spine: spine, Start: s, End: &e}
}

// target is a resolved path: the logical child addressed by the last step.
type target struct {
	parent *html.Node
	child  dom.Child
	// empty is set for an odd step naming an implied empty text run.
	empty bool
	// before is the element following an empty run, nil at the end.
	before *html.Node
	// offset is the character offset of the start of the child in root.
	offset int
}

// walkPath follows p.Path from root.
func walkPath(root *html.Node, path []int) (target, bool) {
	if len(path) == 0 || path[0] != BodyStep || root == nil {
		return target{}, false
	}
	if len(path) == 1 {
		return target{parent: root.Parent, child: dom.Child{Element: root, Step: BodyStep}}, true
	}
	cur := root
	acc := 0
	for i, step := range path[1:] {
		last := i == len(path)-2
		children := dom.LogicalChildren(cur)
		var hit *dom.Child
		for j := range children {
			ch := children[j]
			if ch.Step == step {
				hit = &children[j]
				break
			}
			if ch.Step > step {
				break
			}
			acc += ch.Len()
		}
		if hit == nil {
			// An odd step may name an implied empty run.
			if step%2 == 1 && last && step <= 2*countElements(children)+1 {
				var before *html.Node
				for _, ch := range children {
					if ch.Step == step+1 {
						before = ch.Element
					}
				}
				return target{parent: cur, empty: true, before: before, offset: acc}, true
			}
			return target{}, false
		}
		if last {
			return target{parent: cur, child: *hit, offset: acc}, true
		}
		if hit.IsText() {
			return target{}, false
		}
		cur = hit.Element
	}
	return target{}, false
}

func countElements(children []dom.Child) int {
	n := 0
	for _, ch := range children {
		if !ch.IsText() {
			n++
		}
	}
	return n
}

// CharOffset returns the chapter-level character offset of p inside root.
func CharOffset(root *html.Node, p Point) (int, bool) {
	t, ok := walkPath(root, p.Path)
	if !ok {
		return 0, false
	}
	if t.empty {
		if p.Offset != 0 {
			return 0, false
		}
		return t.offset, true
	}
	if !t.child.IsText() {
		return t.offset, true
	}
	if p.Offset > t.child.Len() {
		return 0, false
	}
	return t.offset + p.Offset, true
}

// ResolvePoint maps p to a concrete DOM boundary inside root.
func ResolvePoint(root *html.Node, p Point, preferEnd bool) (*html.Node, int, bool) {
	t, ok := walkPath(root, p.Path)
	if !ok {
		return nil, 0, false
	}
	if t.empty {
		if p.Offset != 0 {
			return nil, 0, false
		}
		if t.before != nil {
			return t.before.Parent, dom.ChildIndex(t.before), true
		}
		return t.parent, countChildren(t.parent), true
	}
	if !t.child.IsText() {
		el := t.child.Element
		if el == root || el.Parent == nil {
			return el, 0, true
		}
		return el.Parent, dom.ChildIndex(el), true
	}

	off := p.Offset
	if off > t.child.Len() {
		return nil, 0, false
	}
	cum := 0
	for i, tn := range t.child.Texts {
		l := dom.RuneLen(tn.Data)
		lastNode := i == len(t.child.Texts)-1
		if preferEnd {
			if off <= cum+l && (off > cum || cum == 0 || l == 0) {
				return tn, off - cum, true
			}
		} else if off < cum+l || lastNode {
			return tn, off - cum, true
		}
		cum += l
	}
	last := t.child.Texts[len(t.child.Texts)-1]
	return last, dom.RuneLen(last.Data), true
}

func countChildren(n *html.Node) int {
	i := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		i++
	}
	return i
}

// Resolve maps a locator onto the mounted body root. It reports false when
// the path no longer matches the document.
func Resolve(root *html.Node, l Locator) (dom.Range, bool) {
	sn, so, ok := ResolvePoint(root, l.Start, false)
	if !ok {
		return dom.Range{}, false
	}
	if l.End == nil {
		return dom.Range{StartContainer: sn, StartOffset: so, EndContainer: sn, EndOffset: so}, true
	}
	en, eo, ok := ResolvePoint(root, *l.End, true)
	if !ok {
		return dom.Range{}, false
	}
	return dom.Range{StartContainer: sn, StartOffset: so, EndContainer: en, EndOffset: eo}, true
}

// Offsets returns the chapter-level start and end offsets of l.
func Offsets(root *html.Node, l Locator) (int, int, bool) {
	s, ok := CharOffset(root, l.Start)
	if !ok {
		return 0, 0, false
	}
	if l.End == nil {
		return s, s, true
	}
	e, ok := CharOffset(root, *l.End)
	if !ok {
		return 0, 0, false
	}
	return s, e, true
}

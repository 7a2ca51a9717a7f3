// Package cfi encodes and resolves reading locators in the EPUB Canonical
// Fragment Identifier syntax.
//
// A locator addresses a spine item, a structural path inside the chapter
// body and a character offset. The body is always addressed as step 4 of the
// content document (head is 2). Paths are computed on the logical tree of
// package dom, so overlay markers never change a locator.
package cfi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// BodyStep is the CFI step of <body> inside <html>.
const BodyStep = 4

// spineStep is the CFI step of <spine> inside the package document.
const spineStep = 6

// ErrInvalid is returned for strings that are not parseable locators.
var ErrInvalid = errors.New("cfi: invalid locator")

// Point is a position inside a content document.
type Point struct {
	Path   []int
	Offset int
}

// Locator identifies a point or a range inside a book.
type Locator struct {
	Spine int
	Start Point
	End   *Point
}

// IsRange reports whether the locator spans a range.
func (l Locator) IsRange() bool {
	return l.End != nil
}

// Collapse returns the start point of l as a point locator.
func (l Locator) Collapse() Locator {
	return Locator{Spine: l.Spine, Start: clonePoint(l.Start)}
}

// EndPoint returns the end of the range, or the start for a point locator.
func (l Locator) EndPoint() Point {
	if l.End != nil {
		return *l.End
	}
	return l.Start
}

// String formats the locator as epubcfi(...).
func (l Locator) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "epubcfi(/%d/%d!", spineStep, 2*(l.Spine+1))
	if l.End == nil {
		writeSteps(&b, l.Start.Path)
		writeOffset(&b, l.Start)
		b.WriteString(")")
		return b.String()
	}

	common := commonPrefix(l.Start.Path, l.End.Path)
	if common == len(l.Start.Path) || common == len(l.End.Path) {
		common--
	}
	if common < 0 {
		common = 0
	}
	writeSteps(&b, l.Start.Path[:common])
	b.WriteString(",")
	writeSteps(&b, l.Start.Path[common:])
	writeOffset(&b, l.Start)
	b.WriteString(",")
	writeSteps(&b, l.End.Path[common:])
	writeOffset(&b, *l.End)
	b.WriteString(")")
	return b.String()
}

func writeSteps(b *strings.Builder, steps []int) {
	for _, s := range steps {
		b.WriteByte('/')
		b.WriteString(strconv.Itoa(s))
	}
}

func writeOffset(b *strings.Builder, p Point) {
	if len(p.Path) > 0 && p.Path[len(p.Path)-1]%2 == 1 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(p.Offset))
	}
}

func commonPrefix(a, b []int) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func clonePoint(p Point) Point {
	return Point{Path: append([]int(nil), p.Path...), Offset: p.Offset}
}

// Parse reads an epubcfi(...) string. Id assertions and temporal or spatial
// offsets are accepted and ignored.
func Parse(s string) (Locator, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "epubcfi(") || !strings.HasSuffix(s, ")") {
		return Locator{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	body := stripAssertions(s[len("epubcfi(") : len(s)-1])

	pkgPart, localPart, ok := strings.Cut(body, "!")
	if !ok {
		return Locator{}, fmt.Errorf("%w: missing indirection in %q", ErrInvalid, s)
	}
	pkgSteps, _, err := parsePoint(pkgPart)
	if err != nil || len(pkgSteps) == 0 {
		return Locator{}, fmt.Errorf("%w: bad spine step in %q", ErrInvalid, s)
	}
	itemStep := pkgSteps[len(pkgSteps)-1]
	if itemStep < 2 || itemStep%2 != 0 {
		return Locator{}, fmt.Errorf("%w: bad spine step in %q", ErrInvalid, s)
	}
	loc := Locator{Spine: itemStep/2 - 1}

	parts := strings.Split(localPart, ",")
	switch len(parts) {
	case 1:
		path, off, err := parsePoint(parts[0])
		if err != nil {
			return Locator{}, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
		}
		loc.Start = Point{Path: path, Offset: off}
	case 3:
		parent, _, err := parsePoint(parts[0])
		if err != nil {
			return Locator{}, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
		}
		startPath, startOff, err := parsePoint(parts[1])
		if err != nil {
			return Locator{}, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
		}
		endPath, endOff, err := parsePoint(parts[2])
		if err != nil {
			return Locator{}, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
		}
		loc.Start = Point{Path: concat(parent, startPath), Offset: startOff}
		loc.End = &Point{Path: concat(parent, endPath), Offset: endOff}
	default:
		return Locator{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	if len(loc.Start.Path) == 0 {
		return Locator{}, fmt.Errorf("%w: empty path in %q", ErrInvalid, s)
	}
	return loc, nil
}

// MustParse is Parse for constants in tests and fixtures.
func MustParse(s string) Locator {
	l, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return l
}

func concat(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// parsePoint parses "/4/2/1:12" into steps and an offset.
func parsePoint(s string) ([]int, int, error) {
	if i := strings.IndexAny(s, "~@"); i >= 0 {
		s = s[:i]
	}
	offset := 0
	if before, after, ok := strings.Cut(s, ":"); ok {
		n, err := strconv.Atoi(after)
		if err != nil || n < 0 {
			return nil, 0, fmt.Errorf("bad offset %q", after)
		}
		offset = n
		s = before
	}
	if s == "" {
		return nil, offset, nil
	}
	if s[0] != '/' {
		return nil, 0, fmt.Errorf("step must start with '/': %q", s)
	}
	fields := strings.Split(s[1:], "/")
	steps := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return nil, 0, fmt.Errorf("bad step %q", f)
		}
		steps = append(steps, n)
	}
	return steps, offset, nil
}

// stripAssertions removes [..] assertions, honouring ^ escapes.
func stripAssertions(s string) string {
	var b strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case depth > 0 && c == '^':
			i++
		case c == '[':
			depth++
		case c == ']' && depth > 0:
			depth--
		case depth == 0:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Compare orders locators by spine index, then document order of the start
// point, then offset, then end point. A point sorts before a range starting
// at the same position.
func Compare(a, b Locator) int {
	if c := cmpInt(a.Spine, b.Spine); c != 0 {
		return c
	}
	if c := ComparePoints(a.Start, b.Start); c != 0 {
		return c
	}
	switch {
	case a.End == nil && b.End == nil:
		return 0
	case a.End == nil:
		return -1
	case b.End == nil:
		return 1
	}
	return ComparePoints(*a.End, *b.End)
}

// ComparePoints orders two points of the same document.
func ComparePoints(a, b Point) int {
	for i := 0; i < len(a.Path) && i < len(b.Path); i++ {
		if c := cmpInt(a.Path[i], b.Path[i]); c != 0 {
			return c
		}
	}
	if c := cmpInt(len(a.Path), len(b.Path)); c != 0 {
		return c
	}
	return cmpInt(a.Offset, b.Offset)
}

// CompareStrings parses and compares two locator strings.
func CompareStrings(a, b string) (int, error) {
	la, err := Parse(a)
	if err != nil {
		return 0, err
	}
	lb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return Compare(la, lb), nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

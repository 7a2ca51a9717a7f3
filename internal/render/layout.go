package render

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/text/width"

	"github.com/yuanying/epubreader/internal/dom"
)

// Viewport is the size of the rendering surface in CSS pixels.
type Viewport struct {
	Width  float64
	Height float64
}

// DefaultViewport is used when the host does not size the surface.
var DefaultViewport = Viewport{Width: 800, Height: 600}

func (v Viewport) normalize() Viewport {
	if v.Width <= 0 {
		v.Width = DefaultViewport.Width
	}
	if v.Height <= 0 {
		v.Height = DefaultViewport.Height
	}
	return v
}

// Line is one laid-out line of the mounted chapter. Start and End are
// chapter-level character offsets; image lines have Start == End.
type Line struct {
	Start  int
	End    int
	Top    float64
	Height float64
	Text   string
	Image  bool
}

// Bottom returns the y coordinate below the line.
func (l Line) Bottom() float64 {
	return l.Top + l.Height
}

// Layout is the reflowed geometry of a chapter for one theme and viewport.
type Layout struct {
	Lines         []Line
	ContentHeight float64
	CharsPerLine  float64
	LineHeight    float64
	TextLen       int
}

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"body": true, "dd": true, "div": true, "dl": true, "dt": true,
	"figcaption": true, "figure": true, "footer": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "table": true,
	"tr": true, "td": true, "th": true, "ul": true,
}

// headingScale enlarges headings the way user agent style sheets do.
var headingScale = map[string]float64{
	"h1": 2, "h2": 1.5, "h3": 1.17, "h4": 1, "h5": 0.83, "h6": 0.67,
}

// Compute lays out the chapter rooted at root. Text is wrapped greedily at
// white space, wide (CJK) characters count double and may break anywhere.
// Images take a fixed share of the viewport.
func Compute(root *html.Node, theme ThemeConfig, vp Viewport) *Layout {
	theme = theme.Normalize()
	vp = vp.normalize()

	contentWidth := vp.Width - 2*theme.MarginHorizontal
	if theme.MaxWidth > 0 && contentWidth > theme.MaxWidth {
		contentWidth = theme.MaxWidth
	}
	if contentWidth < theme.FontSize {
		contentWidth = theme.FontSize
	}

	b := &builder{
		theme:        theme,
		contentWidth: contentWidth,
		imageHeight:  math.Max(theme.FontSize*theme.LineHeight, math.Min(contentWidth*0.6, (vp.Height-2*theme.MarginVertical)*0.8)),
		y:            theme.MarginVertical,
	}
	b.walk(root, 1)
	b.flush()

	l := &Layout{
		Lines:         b.lines,
		ContentHeight: b.y + theme.MarginVertical,
		CharsPerLine:  b.charsPerLine(1),
		LineHeight:    theme.FontSize * theme.LineHeight,
		TextLen:       b.offset,
	}
	return l
}

type builder struct {
	theme        ThemeConfig
	contentWidth float64
	imageHeight  float64

	lines  []Line
	y      float64
	offset int

	// pending block text
	runes []rune
	start int
	scale float64
}

func (b *builder) charsPerLine(scale float64) float64 {
	cw := b.theme.FontSize*scale*b.theme.charWidthFactor() + b.theme.LetterSpacing
	if cw <= 0 {
		cw = 1
	}
	return math.Max(1, math.Floor(b.contentWidth/cw))
}

func (b *builder) walk(n *html.Node, scale float64) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if len(b.runes) == 0 {
				b.start = b.offset
				b.scale = scale
			}
			r := []rune(c.Data)
			b.runes = append(b.runes, r...)
			b.offset += len(r)
		case html.ElementNode:
			name := c.Data
			switch {
			case name == "img" || name == "svg" || name == "image" || name == "video":
				b.flush()
				b.lines = append(b.lines, Line{Start: b.offset, End: b.offset, Top: b.y, Height: b.imageHeight, Image: true})
				b.y += b.imageHeight
				// Text inside an SVG is still counted but not laid out.
				b.offset += dom.TextLen(c)
			case name == "br":
				b.flush()
			case blockElements[name]:
				b.flush()
				s := scale
				if hs, ok := headingScale[name]; ok {
					s = hs
				}
				b.walk(c, s)
				b.flush()
				if name == "p" || headingScale[name] > 0 {
					b.y += b.theme.FontSize * s * 0.5
				}
			default:
				b.walk(c, scale)
			}
		}
	}
}

// flush wraps the pending block text into lines.
func (b *builder) flush() {
	runes, start, scale := b.runes, b.start, b.scale
	b.runes = b.runes[:0]
	if strings.TrimSpace(string(runes)) == "" {
		return
	}
	if scale <= 0 {
		scale = 1
	}
	cpl := b.charsPerLine(scale)
	lineHeight := b.theme.FontSize * scale * b.theme.LineHeight

	for pos := 0; pos < len(runes); {
		w, k, brk := 0.0, pos, -1
		for ; k < len(runes); k++ {
			cw := runeWidth(runes[k])
			if w+cw > cpl && k > pos {
				break
			}
			w += cw
			if unicode.IsSpace(runes[k]) || cw > 1 {
				brk = k + 1
			}
		}
		if k < len(runes) && brk > pos {
			k = brk
		}
		text := string(runes[pos:k])
		if strings.TrimSpace(text) != "" || len(b.lines) == 0 || b.lines[len(b.lines)-1].Image {
			b.lines = append(b.lines, Line{Start: start + pos, End: start + k, Top: b.y, Height: lineHeight, Text: text})
			b.y += lineHeight
		} else {
			// Trailing white space joins the previous line.
			b.lines[len(b.lines)-1].End = start + k
		}
		pos = k
	}
}

func runeWidth(r rune) float64 {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	}
	return 1
}

// LineAt returns the index of the line holding offset. Offsets that fall in
// white space between blocks map to the following line; offsets past the
// last line map to the last line. It returns -1 for an empty layout.
func (l *Layout) LineAt(offset int) int {
	if len(l.Lines) == 0 {
		return -1
	}
	i := sort.Search(len(l.Lines), func(i int) bool {
		ln := l.Lines[i]
		return ln.End > offset || (ln.Image && ln.Start >= offset)
	})
	if i == len(l.Lines) {
		return len(l.Lines) - 1
	}
	return i
}

// LineAtY returns the index of the first line whose bottom is below y.
func (l *Layout) LineAtY(y float64) int {
	if len(l.Lines) == 0 {
		return -1
	}
	i := sort.Search(len(l.Lines), func(i int) bool {
		return l.Lines[i].Bottom() > y
	})
	if i == len(l.Lines) {
		return len(l.Lines) - 1
	}
	return i
}

// OffsetAtY returns the character offset at the start of the first line
// visible at scroll position y.
func (l *Layout) OffsetAtY(y float64) int {
	i := l.LineAtY(y)
	if i < 0 {
		return 0
	}
	return l.Lines[i].Start
}

// YOf returns the top of the line holding offset.
func (l *Layout) YOf(offset int) float64 {
	i := l.LineAt(offset)
	if i < 0 {
		return 0
	}
	return l.Lines[i].Top
}

// MaxScroll returns the largest scroll offset for a viewport of height h.
func (l *Layout) MaxScroll(h float64) float64 {
	return math.Max(0, l.ContentHeight-h)
}

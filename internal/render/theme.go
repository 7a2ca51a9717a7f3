package render

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/yuanying/epubreader/internal/dom"
)

// Theme names.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
	ThemeSepia = "sepia"
)

const (
	minFontSize = 8
	maxFontSize = 72
)

// ThemeConfig is the presentation of the mounted chapter. Applying it never
// changes content structure.
type ThemeConfig struct {
	Theme            string
	FontSize         float64
	FontFamily       string
	LineHeight       float64
	LetterSpacing    float64
	TextAlign        string
	MarginHorizontal float64
	MarginVertical   float64
	MaxWidth         float64
	Brightness       float64
	Contrast         float64
}

// DefaultTheme returns the built-in presentation.
func DefaultTheme() ThemeConfig {
	return ThemeConfig{
		Theme:            ThemeLight,
		FontSize:         16,
		FontFamily:       "serif",
		LineHeight:       1.6,
		TextAlign:        "left",
		MarginHorizontal: 20,
		MarginVertical:   20,
		Brightness:       1,
		Contrast:         1,
	}
}

// Normalize fills unset fields from DefaultTheme and clamps the rest to
// usable ranges.
func (t ThemeConfig) Normalize() ThemeConfig {
	d := DefaultTheme()
	switch t.Theme {
	case ThemeLight, ThemeDark, ThemeSepia:
	default:
		t.Theme = d.Theme
	}
	if t.FontSize <= 0 {
		t.FontSize = d.FontSize
	}
	t.FontSize = clamp(t.FontSize, minFontSize, maxFontSize)
	if t.FontFamily == "" {
		t.FontFamily = d.FontFamily
	}
	if t.LineHeight <= 0 {
		t.LineHeight = d.LineHeight
	}
	t.LineHeight = clamp(t.LineHeight, 1, 3)
	switch t.TextAlign {
	case "left", "right", "center", "justify":
	default:
		t.TextAlign = d.TextAlign
	}
	t.MarginHorizontal = clamp(t.MarginHorizontal, 0, 400)
	t.MarginVertical = clamp(t.MarginVertical, 0, 400)
	if t.MaxWidth < 0 {
		t.MaxWidth = 0
	}
	if t.Brightness <= 0 {
		t.Brightness = d.Brightness
	}
	if t.Contrast <= 0 {
		t.Contrast = d.Contrast
	}
	t.Brightness = clamp(t.Brightness, 0.2, 2)
	t.Contrast = clamp(t.Contrast, 0.2, 2)
	return t
}

// Palette is the color scheme of a theme.
type Palette struct {
	Background string
	Foreground string
	Link       string
}

var palettes = map[string]Palette{
	ThemeLight: {Background: "#ffffff", Foreground: "#1a1a1a", Link: "#0b57d0"},
	ThemeDark:  {Background: "#121212", Foreground: "#e6e6e6", Link: "#8ab4f8"},
	ThemeSepia: {Background: "#f4ecd8", Foreground: "#5b4636", Link: "#8a5a2b"},
}

// Palette returns the colors of the theme.
func (t ThemeConfig) Palette() Palette {
	if p, ok := palettes[t.Theme]; ok {
		return p
	}
	return palettes[ThemeLight]
}

// Style renders the theme as an inline style declaration for the view
// wrapper.
func (t ThemeConfig) Style() string {
	p := t.Palette()
	decls := []string{
		"background-color: " + p.Background,
		"color: " + p.Foreground,
		"font-size: " + px(t.FontSize),
		"font-family: " + t.FontFamily,
		"line-height: " + num(t.LineHeight),
		"letter-spacing: " + px(t.LetterSpacing),
		"text-align: " + t.TextAlign,
		fmt.Sprintf("padding: %s %s", px(t.MarginVertical), px(t.MarginHorizontal)),
		fmt.Sprintf("filter: brightness(%s) contrast(%s)", num(t.Brightness), num(t.Contrast)),
		"overflow-y: auto",
	}
	if t.MaxWidth > 0 {
		decls = append(decls, "max-width: "+px(t.MaxWidth), "margin: 0 auto")
	}
	return strings.Join(decls, "; ")
}

// Apply sets the theme class and style on the view wrapper.
func (t ThemeConfig) Apply(wrapper *html.Node) {
	dom.SetAttr(wrapper, "class", "epub-view epub-theme-"+t.Theme)
	dom.SetAttr(wrapper, "style", t.Style())
}

// CharWidth is the advance of one narrow glyph of body text.
func (t ThemeConfig) CharWidth() float64 {
	return t.FontSize*t.charWidthFactor() + t.LetterSpacing
}

// LineAdvance is the height of one line of body text.
func (t ThemeConfig) LineAdvance() float64 {
	return t.FontSize * t.LineHeight
}

// charWidthFactor approximates the average advance of a glyph as a fraction
// of the font size.
func (t ThemeConfig) charWidthFactor() float64 {
	f := strings.ToLower(t.FontFamily)
	switch {
	case strings.Contains(f, "mono"), strings.Contains(f, "courier"):
		return 0.6
	case strings.Contains(f, "sans"):
		return 0.52
	case strings.Contains(f, "serif"):
		return 0.5
	}
	return 0.52
}

func px(v float64) string {
	return num(v) + "px"
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

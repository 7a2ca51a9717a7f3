package render

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/yuanying/epubreader/internal/dom"
)

// parseBody parses an HTML fragment and returns its body element.
func parseBody(t *testing.T, body string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader("<html><head></head><body>" + body + "</body></html>"))
	require.NoError(t, err)
	var find func(n *html.Node) *html.Node
	find = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode && n.Data == "body" {
			return n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if b := find(c); b != nil {
				return b
			}
		}
		return nil
	}
	b := find(doc)
	require.NotNil(t, b)
	return b
}

// narrowTheme yields 25 serif characters per line on a 200px viewport.
func narrowTheme() ThemeConfig {
	th := DefaultTheme()
	th.MarginHorizontal = 0
	th.MarginVertical = 0
	return th
}

func TestState_CanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateUnloaded, StateLoading, true},
		{StateUnloaded, StateMounted, false},
		{StateLoading, StateMounted, true},
		{StateLoading, StateUnloaded, true},
		{StateMounted, StateUnmounting, true},
		{StateMounted, StateLoading, true},
		{StateMounted, StateUnloaded, false},
		{StateUnmounting, StateUnloaded, true},
		{StateUnmounting, StateMounted, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestThemeConfig_Normalize(t *testing.T) {
	got := ThemeConfig{Theme: "neon", FontSize: 200, LineHeight: 0.2, TextAlign: "middle", MaxWidth: -1}.Normalize()
	assert.Equal(t, ThemeLight, got.Theme)
	assert.Equal(t, float64(maxFontSize), got.FontSize)
	assert.Equal(t, 1.0, got.LineHeight)
	assert.Equal(t, "left", got.TextAlign)
	assert.Equal(t, 0.0, got.MaxWidth)
	assert.Equal(t, "serif", got.FontFamily)
	assert.Equal(t, 1.0, got.Brightness)

	got = ThemeConfig{FontSize: 1}.Normalize()
	assert.Equal(t, float64(minFontSize), got.FontSize)
}

func TestThemeConfig_Apply(t *testing.T) {
	wrapper := &html.Node{Type: html.ElementNode, Data: "div"}
	th := DefaultTheme()
	th.Theme = ThemeDark
	th.MaxWidth = 640
	th.Apply(wrapper)

	class, _ := dom.Attr(wrapper, "class")
	assert.Equal(t, "epub-view epub-theme-dark", class)
	style, _ := dom.Attr(wrapper, "style")
	assert.Contains(t, style, "background-color: #121212")
	assert.Contains(t, style, "font-size: 16px")
	assert.Contains(t, style, "line-height: 1.6")
	assert.Contains(t, style, "max-width: 640px")
}

func TestCompute_WrapsAtSpaces(t *testing.T) {
	root := parseBody(t, "<p>aaaa bbbb cccc dddd eeee ffff</p>")
	l := Compute(root, narrowTheme(), Viewport{Width: 200, Height: 100})

	require.Len(t, l.Lines, 2)
	assert.Equal(t, 25.0, l.CharsPerLine)
	assert.Equal(t, 0, l.Lines[0].Start)
	assert.Equal(t, 25, l.Lines[0].End)
	assert.Equal(t, "aaaa bbbb cccc dddd eeee ", l.Lines[0].Text)
	assert.Equal(t, 25, l.Lines[1].Start)
	assert.Equal(t, 29, l.Lines[1].End)
	assert.Equal(t, 29, l.TextLen)
	assert.InDelta(t, 25.6, l.Lines[1].Top, 1e-9)
}

func TestCompute_WideCharacters(t *testing.T) {
	root := parseBody(t, "<p>日本語のテキスト</p>")
	l := Compute(root, narrowTheme(), Viewport{Width: 80, Height: 100})

	require.Len(t, l.Lines, 2)
	assert.Equal(t, "日本語のテ", l.Lines[0].Text)
	assert.Equal(t, 5, l.Lines[1].Start)
	assert.Equal(t, 8, l.Lines[1].End)
}

func TestCompute_BlocksAndImages(t *testing.T) {
	root := parseBody(t, `<p>Hello <b>world</b></p><img src="x.png"/><p>Second</p>`)
	l := Compute(root, narrowTheme(), Viewport{Width: 200, Height: 100})

	require.Len(t, l.Lines, 3)
	assert.Equal(t, "Hello world", l.Lines[0].Text)
	assert.True(t, l.Lines[1].Image)
	assert.Equal(t, 11, l.Lines[1].Start)
	assert.Equal(t, 11, l.Lines[1].End)
	assert.Equal(t, "Second", l.Lines[2].Text)
	assert.Equal(t, 11, l.Lines[2].Start)
	assert.Greater(t, l.Lines[2].Top, l.Lines[1].Top)

	assert.Equal(t, 0, l.LineAt(3))
	assert.Equal(t, 1, l.LineAt(11))
	assert.Equal(t, 2, l.LineAt(12))
	assert.Equal(t, 2, l.LineAt(100))
	assert.Equal(t, l.Lines[2].Top, l.YOf(14))
	assert.Equal(t, 11, l.OffsetAtY(l.Lines[2].Top+1))
}

func TestCompute_IgnoresWhitespaceBlocks(t *testing.T) {
	root := parseBody(t, "<div>\n  <p>One</p>\n  <p>Two</p>\n</div>")
	l := Compute(root, narrowTheme(), Viewport{Width: 200, Height: 100})

	require.Len(t, l.Lines, 2)
	assert.Equal(t, "One", l.Lines[0].Text)
	assert.Equal(t, "Two", l.Lines[1].Text)
	assert.Equal(t, dom.TextLen(root), l.TextLen)
}

func TestCompute_FontSizeChangesLineCount(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "<p>Paragraph %d has a few words of text in it.</p>", i)
	}
	root := parseBody(t, b.String())

	small := Compute(root, DefaultTheme(), Viewport{Width: 300, Height: 400})
	big := DefaultTheme()
	big.FontSize = 32
	large := Compute(root, big, Viewport{Width: 300, Height: 400})

	assert.Greater(t, len(large.Lines), len(small.Lines))
	assert.Greater(t, large.ContentHeight, small.ContentHeight)
	assert.Equal(t, small.TextLen, large.TextLen)
}

func longChapter(t *testing.T) *html.Node {
	var b strings.Builder
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "<p>Line number %d of a long chapter.</p>", i)
	}
	return parseBody(t, b.String())
}

func TestView_MountAndUnmount(t *testing.T) {
	container := &html.Node{Type: html.ElementNode, Data: "div"}
	v := NewView(container, DefaultTheme(), Viewport{Width: 400, Height: 300})
	assert.Equal(t, StateUnloaded, v.State())

	body := parseBody(t, "<p>Hello world</p>")
	require.NoError(t, v.BeginLoad())
	assert.Equal(t, StateLoading, v.State())
	require.NoError(t, v.Mount(2, body, []string{"p { margin: 0 }"}))

	assert.Equal(t, StateMounted, v.State())
	assert.Equal(t, 2, v.Spine())
	wrapper := container.FirstChild
	require.NotNil(t, wrapper)
	class, _ := dom.Attr(wrapper, "class")
	assert.Equal(t, "epub-view epub-theme-light", class)
	assert.Equal(t, "style", wrapper.FirstChild.Data)

	root := v.Root()
	assert.Equal(t, "div", root.Data)
	class, _ = dom.Attr(root, "class")
	assert.Equal(t, ChapterClass, class)
	spine, _ := dom.Attr(root, SpineAttr)
	assert.Equal(t, "2", spine)
	assert.Equal(t, "Hello world", dom.Text(root))
	assert.Equal(t, []string{"Hello world"}, v.VisibleText())

	v.Unmount()
	assert.Equal(t, StateUnloaded, v.State())
	assert.Nil(t, container.FirstChild)
	assert.Nil(t, v.Root())
	assert.Equal(t, -1, v.Spine())
}

func TestView_MountReplacesChapter(t *testing.T) {
	container := &html.Node{Type: html.ElementNode, Data: "div"}
	v := NewView(container, DefaultTheme(), Viewport{})
	require.NoError(t, v.Mount(0, parseBody(t, "<p>First</p>"), nil))
	require.NoError(t, v.BeginLoad())
	require.NoError(t, v.Mount(1, parseBody(t, "<p>Second</p>"), nil))

	assert.Nil(t, container.FirstChild.NextSibling)
	assert.Equal(t, "Second", dom.Text(v.Root()))
}

func TestView_AbortLoad(t *testing.T) {
	v := NewView(nil, DefaultTheme(), Viewport{})
	require.NoError(t, v.BeginLoad())
	v.AbortLoad()
	assert.Equal(t, StateUnloaded, v.State())

	require.NoError(t, v.Mount(0, parseBody(t, "<p>x</p>"), nil))
	require.NoError(t, v.BeginLoad())
	v.AbortLoad()
	assert.Equal(t, StateMounted, v.State())
}

func TestView_Scrolling(t *testing.T) {
	v := NewView(nil, DefaultTheme(), Viewport{Width: 400, Height: 200})
	require.NoError(t, v.Mount(0, longChapter(t), nil))

	assert.True(t, v.AtStart())
	assert.False(t, v.AtEnd())
	assert.Equal(t, 0, v.OffsetAtTop())

	prev := v.OffsetAtTop()
	for v.ScrollBy(v.PageHeight()) {
		off := v.OffsetAtTop()
		assert.GreaterOrEqual(t, off, prev)
		prev = off
	}
	assert.True(t, v.AtEnd())
	assert.Equal(t, v.MaxScroll(), v.ScrollTop())
	assert.False(t, v.ScrollBy(10))

	v.ScrollTo(-50)
	assert.True(t, v.AtStart())
}

func TestView_ScrollToOffset(t *testing.T) {
	v := NewView(nil, DefaultTheme(), Viewport{Width: 400, Height: 200})
	root := longChapter(t)
	require.NoError(t, v.Mount(0, root, nil))

	target := strings.Index(dom.Text(v.Root()), "Line number 20 ")
	require.Greater(t, target, 0)
	v.ScrollToOffset(target)

	top := v.OffsetAtTop()
	assert.LessOrEqual(t, top, target)
	start, end := v.VisibleRange()
	assert.LessOrEqual(t, start, target)
	assert.Greater(t, end, target)
	assert.Contains(t, v.VisibleText()[0], "Line number 20")
}

func TestView_SetThemeKeepsContent(t *testing.T) {
	v := NewView(nil, DefaultTheme(), Viewport{Width: 400, Height: 200})
	require.NoError(t, v.Mount(0, longChapter(t), nil))
	before := dom.Text(v.Root())
	lines := len(v.Layout().Lines)

	th := DefaultTheme()
	th.FontSize = 28
	th.Theme = ThemeSepia
	v.SetTheme(th)

	assert.Equal(t, before, dom.Text(v.Root()))
	assert.Greater(t, len(v.Layout().Lines), lines)
	assert.Equal(t, ThemeSepia, v.Theme().Theme)
}

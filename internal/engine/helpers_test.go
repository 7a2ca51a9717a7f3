package engine

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/yuanying/epubreader/internal/render"
)

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

func buildEPUB(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	add := func(name, body string, method uint16) {
		fw, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		require.NoError(t, err)
		_, err = fw.Write([]byte(body))
		require.NoError(t, err)
	}
	add("mimetype", "application/epub+zip", zip.Store)
	add("META-INF/container.xml", containerXML, zip.Deflate)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		add(name, files[name], zip.Deflate)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func chapterXHTML(title, body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>` + title + `</title></head>
<body>` + body + `</body></html>`
}

// filler returns n numbered paragraphs.
func filler(prefix string, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "<p>%s paragraph %d, some years ago never mind how long precisely.</p>", prefix, i)
	}
	return b.String()
}

// sampleBook is a three chapter EPUB 2 book. The first two chapters span
// several pages of the test viewport.
func sampleBook() map[string]string {
	return map[string]string{
		"OEBPS/content.opf": `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
    <dc:title>Sample Book</dc:title>
    <dc:creator opf:role="aut">Herman Melville</dc:creator>
    <dc:identifier id="bookid">urn:uuid:1234</dc:identifier>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="ch1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="text/ch2.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch3" href="text/ch3.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
    <itemref idref="ch3"/>
  </spine>
</package>`,
		"OEBPS/toc.ncx": `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <docTitle><text>Sample Book</text></docTitle>
  <navMap>
    <navPoint id="n1" playOrder="1"><navLabel><text>Loomings</text></navLabel><content src="text/ch1.xhtml"/></navPoint>
    <navPoint id="n2" playOrder="2"><navLabel><text>The Carpet-Bag</text></navLabel><content src="text/ch2.xhtml"/></navPoint>
    <navPoint id="n3" playOrder="3"><navLabel><text>The Spouter-Inn</text></navLabel><content src="text/ch3.xhtml#inn"/></navPoint>
  </navMap>
</ncx>`,
		"OEBPS/text/ch1.xhtml": chapterXHTML("Loomings",
			`<h1>Loomings</h1><p>Hello world, call me Ishmael.</p>`+filler("First", 30)),
		"OEBPS/text/ch2.xhtml": chapterXHTML("The Carpet-Bag",
			`<h1>The Carpet-Bag</h1><p>I stuffed a shirt or two into my old carpet-bag.</p>`+filler("Second", 30)),
		"OEBPS/text/ch3.xhtml": chapterXHTML("The Spouter-Inn",
			`<p>Entering that gable-ended inn.</p><h1 id="inn">The Spouter-Inn</h1><p>A whale of a picture.</p>`),
	}
}

// recorder collects callback invocations.
type recorder struct {
	mu       sync.Mutex
	progress []float64
	chapters []string
	selects  [][2]string
	clicks   []AnnotationClick
}

func (r *recorder) attach(e *Engine) {
	e.OnProgress(func(p float64) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.progress = append(r.progress, p)
	})
	e.OnChapterChange(func(title string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.chapters = append(r.chapters, title)
	})
	e.OnTextSelect(func(text, cfi string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.selects = append(r.selects, [2]string{text, cfi})
	})
	e.OnAnnotationClick(func(c AnnotationClick) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.clicks = append(r.clicks, c)
	})
}

func (r *recorder) snapshot() recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recorder{
		progress: append([]float64(nil), r.progress...),
		chapters: append([]string(nil), r.chapters...),
		selects:  append([][2]string(nil), r.selects...),
		clicks:   append([]AnnotationClick(nil), r.clicks...),
	}
}

func testOptions() Options {
	return Options{Viewport: render.Viewport{Width: 400, Height: 300}}
}

// newEngine creates an engine with progress throttling disabled.
func newEngine(t *testing.T) (*Engine, *html.Node) {
	t.Helper()
	container := &html.Node{Type: html.ElementNode, Data: "div"}
	opts := testOptions()
	opts.ProgressInterval = -1
	e := New(container, render.DefaultTheme(), opts)
	t.Cleanup(e.Destroy)
	return e, container
}

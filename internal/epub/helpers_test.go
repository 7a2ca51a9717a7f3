package epub

import (
	"archive/zip"
	"bytes"
	"sort"
	"testing"
)

const testContainerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// zipEntry is one file of a test archive.
type zipEntry struct {
	Name   string
	Body   string
	Method uint16
}

// buildZip writes entries, in order, into an in-memory zip.
func buildZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		fw, err := w.CreateHeader(&zip.FileHeader{Name: e.Name, Method: e.Method})
		if err != nil {
			t.Fatalf("failed to create %s: %v", e.Name, err)
		}
		if _, err := fw.Write([]byte(e.Body)); err != nil {
			t.Fatalf("failed to write %s: %v", e.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buf.Bytes()
}

// buildEPUB creates an EPUB with a stored mimetype and the standard
// container.xml pointing at OEBPS/content.opf, plus files.
func buildEPUB(t *testing.T, files map[string]string) []byte {
	t.Helper()
	entries := []zipEntry{
		{Name: "mimetype", Body: "application/epub+zip", Method: zip.Store},
		{Name: "META-INF/container.xml", Body: testContainerXML, Method: zip.Deflate},
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		entries = append(entries, zipEntry{Name: name, Body: files[name], Method: zip.Deflate})
	}
	return buildZip(t, entries...)
}

func chapterXHTML(title, body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>` + title + `</title></head>
<body>` + body + `</body></html>`
}

// threeChapterFiles returns an EPUB 2 book with an NCX and three chapters.
func threeChapterFiles() map[string]string {
	return map[string]string{
		"OEBPS/content.opf": `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
    <dc:title>Sample Book</dc:title>
    <dc:creator opf:role="aut">Herman Melville</dc:creator>
    <dc:creator opf:role="edt">Some Editor</dc:creator>
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
  <head><meta name="dtb:uid" content="urn:uuid:1234"/></head>
  <docTitle><text>Sample Book</text></docTitle>
  <navMap>
    <navPoint id="n1" playOrder="1"><navLabel><text>Loomings</text></navLabel><content src="text/ch1.xhtml"/></navPoint>
    <navPoint id="n2" playOrder="2"><navLabel><text>The Carpet-Bag</text></navLabel><content src="text/ch2.xhtml"/></navPoint>
    <navPoint id="n3" playOrder="3"><navLabel><text>The Spouter-Inn</text></navLabel><content src="text/ch3.xhtml#inn"/></navPoint>
  </navMap>
</ncx>`,
		"OEBPS/text/ch1.xhtml": chapterXHTML("Loomings", `<h1>Loomings</h1><p>Hello world, call me Ishmael.</p>`),
		"OEBPS/text/ch2.xhtml": chapterXHTML("The Carpet-Bag", `<h1>The Carpet-Bag</h1><p>I stuffed a shirt or two.</p>`),
		"OEBPS/text/ch3.xhtml": chapterXHTML("The Spouter-Inn", `<h1 id="inn">The Spouter-Inn</h1><p>A whale of a picture.</p>`),
	}
}

package epub

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestLoad(t *testing.T) {
	book, err := Load(buildEPUB(t, threeChapterFiles()), zap.NewNop())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if book.Title != "Sample Book" {
		t.Errorf("Title = %q, want %q", book.Title, "Sample Book")
	}
	if book.Author != "Herman Melville" {
		t.Errorf("Author = %q, want %q", book.Author, "Herman Melville")
	}
	if len(book.Spine) != 3 {
		t.Fatalf("Spine count = %d, want 3", len(book.Spine))
	}

	total := 0
	for i, si := range book.Spine {
		if si.Index != i {
			t.Errorf("Spine[%d].Index = %d", i, si.Index)
		}
		if si.Start != total {
			t.Errorf("Spine[%d].Start = %d, want %d", i, si.Start, total)
		}
		if si.CharCount == 0 {
			t.Errorf("Spine[%d].CharCount = 0", i)
		}
		total += si.CharCount
	}
	if book.TotalChars != total {
		t.Errorf("TotalChars = %d, want %d", book.TotalChars, total)
	}
	// "Loomings" + "Hello world, call me Ishmael."
	if want := len("Loomings") + len("Hello world, call me Ishmael."); book.Spine[0].CharCount != want {
		t.Errorf("Spine[0].CharCount = %d, want %d", book.Spine[0].CharCount, want)
	}

	if len(book.TOC) != 3 {
		t.Fatalf("TOC count = %d, want 3", len(book.TOC))
	}
	last := book.TOC[2]
	if last.Label != "The Spouter-Inn" || last.SpineIndex != 2 || last.Fragment != "inn" {
		t.Errorf("TOC[2] = %+v", last)
	}
	if last.Href != "OEBPS/text/ch3.xhtml#inn" {
		t.Errorf("TOC[2].Href = %q, want %q", last.Href, "OEBPS/text/ch3.xhtml#inn")
	}
}

func TestLoad_Errors(t *testing.T) {
	badSpine := threeChapterFiles()
	badSpine["OEBPS/content.opf"] = strings.Replace(badSpine["OEBPS/content.opf"], `idref="ch3"`, `idref="ghost"`, 1)

	emptySpine := threeChapterFiles()
	emptySpine["OEBPS/content.opf"] = `<package version="2.0" xmlns="http://www.idpf.org/2007/opf">
  <manifest><item id="ch1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/></manifest>
  <spine/>
</package>`

	noOPF := threeChapterFiles()
	delete(noOPF, "OEBPS/content.opf")

	tests := []struct {
		name    string
		data    []byte
		reason  string
		wrapped error
	}{
		{"not a zip", []byte("PK? no"), ReasonNotZip, nil},
		{"missing container", buildZip(t, zipEntry{Name: "mimetype", Body: "application/epub+zip"}), ReasonMissingContainer, ErrContainerNotFound},
		{"unknown idref", buildEPUB(t, badSpine), ReasonMalformedPackage, ErrUnknownIDRef},
		{"empty spine", buildEPUB(t, emptySpine), ReasonMalformedPackage, ErrEmptySpine},
		{"missing opf", buildEPUB(t, noOPF), ReasonMalformedPackage, ErrFileNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.data, nil)
			if !IsLoadError(err, tt.reason) {
				t.Fatalf("Load() error = %v, want LoadError(%q)", err, tt.reason)
			}
			if tt.wrapped != nil && !errors.Is(err, tt.wrapped) {
				t.Errorf("Load() error = %v, want it to wrap %v", err, tt.wrapped)
			}
		})
	}
}

func TestLoad_SynthesizedTOC(t *testing.T) {
	files := threeChapterFiles()
	delete(files, "OEBPS/toc.ncx")
	files["OEBPS/text/ch2.xhtml"] = `<html><body><p>No title here.</p></body></html>`

	book, err := Load(buildEPUB(t, files), nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(book.TOC) != 3 {
		t.Fatalf("TOC count = %d, want 3", len(book.TOC))
	}
	wantLabels := []string{"Loomings", "Chapter 2", "The Spouter-Inn"}
	for i, want := range wantLabels {
		if book.TOC[i].Label != want || book.TOC[i].SpineIndex != i {
			t.Errorf("TOC[%d] = %q/%d, want %q/%d", i, book.TOC[i].Label, book.TOC[i].SpineIndex, want, i)
		}
	}
}

func TestLoad_MissingChapterIsWarning(t *testing.T) {
	files := threeChapterFiles()
	delete(files, "OEBPS/text/ch2.xhtml")

	book, err := Load(buildEPUB(t, files), nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if book.Spine[1].CharCount != 0 {
		t.Errorf("Spine[1].CharCount = %d, want 0", book.Spine[1].CharCount)
	}
	if len(book.Warnings) == 0 {
		t.Error("Warnings is empty, want a warning for the missing chapter")
	}
}

func TestBook_TOCFromNavPoints(t *testing.T) {
	book := &Book{Spine: []*SpineItem{
		{Index: 0, Href: "OEBPS/a.xhtml"},
		{Index: 1, Href: "OEBPS/b.xhtml"},
	}}

	points := []NavPoint{
		{Label: "Part", Children: []NavPoint{
			{Label: "B", ContentPath: "OEBPS/b.xhtml", Fragment: "x"},
		}},
		{Label: "Gone", ContentPath: "OEBPS/missing.xhtml", Children: []NavPoint{
			{Label: "A", ContentPath: "OEBPS/A.XHTML"},
		}},
	}

	toc := book.tocFromNavPoints(points)
	if len(toc) != 2 {
		t.Fatalf("TOC count = %d, want 2", len(toc))
	}
	if toc[0].Label != "Part" || toc[0].SpineIndex != 1 || toc[0].Href != "OEBPS/b.xhtml#x" {
		t.Errorf("toc[0] = %+v, want Part -> OEBPS/b.xhtml#x", toc[0])
	}
	if len(toc[0].Children) != 1 {
		t.Errorf("toc[0] children = %d, want 1", len(toc[0].Children))
	}
	if toc[1].Label != "A" || toc[1].SpineIndex != 0 || toc[1].Href != "OEBPS/a.xhtml" {
		t.Errorf("toc[1] = %+v, want promoted A -> OEBPS/a.xhtml", toc[1])
	}
}

func TestAuthorOf(t *testing.T) {
	tests := []struct {
		name     string
		creators []Creator
		want     string
	}{
		{"authors only", []Creator{{Name: "A", Role: "aut"}, {Name: "E", Role: "edt"}, {Name: "B", Role: "aut"}}, "A, B"},
		{"no roles", []Creator{{Name: "X"}, {Name: " Y "}}, "X, Y"},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		if got := authorOf(tt.creators); got != tt.want {
			t.Errorf("%s: authorOf() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

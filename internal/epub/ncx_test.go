package epub

import (
	"strconv"
	"testing"
)

func TestSplitFragment(t *testing.T) {
	tests := []struct {
		src, wantPath, wantFragment string
	}{
		{"chapter1.xhtml", "chapter1.xhtml", ""},
		{"chapter1.xhtml#sec1", "chapter1.xhtml", "sec1"},
		{"chapter1.xhtml#", "chapter1.xhtml", ""},
		{"#only", "", "only"},
		{"", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			gotPath, gotFragment := splitFragment(tt.src)
			if gotPath != tt.wantPath || gotFragment != tt.wantFragment {
				t.Errorf("splitFragment(%q) = (%q, %q), want (%q, %q)",
					tt.src, gotPath, gotFragment, tt.wantPath, tt.wantFragment)
			}
		})
	}
}

func TestParseNCX_Nested(t *testing.T) {
	ncxXML := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head>
    <meta name="dtb:uid" content="nested-uid"/>
    <meta name="dtb:depth" content="2"/>
  </head>
  <docTitle><text>  Nested   Book </text></docTitle>
  <navMap>
    <navPoint id="p1" playOrder="1">
      <navLabel><text>Part 1</text></navLabel>
      <content src="text/part1.xhtml"/>
      <navPoint id="c1" playOrder="2">
        <navLabel><text>Chapter
          One</text></navLabel>
        <content src="text/ch1.xhtml#start"/>
      </navPoint>
      <navPoint id="c2" playOrder="3">
        <navLabel><text>Chapter Two</text></navLabel>
        <content src="../Misc/ch2.xhtml"/>
      </navPoint>
    </navPoint>
    <navPoint id="p2" playOrder="4">
      <navLabel><text>Part 2</text></navLabel>
      <content src="text/part2.xhtml"/>
    </navPoint>
  </navMap>
</ncx>`)

	ncx, err := parseNCX(ncxXML, "OEBPS")
	if err != nil {
		t.Fatalf("parseNCX() error = %v", err)
	}
	if ncx.UID != "nested-uid" || ncx.Depth != 2 {
		t.Errorf("UID/Depth = %q/%d, want nested-uid/2", ncx.UID, ncx.Depth)
	}
	if ncx.DocTitle != "Nested   Book" {
		t.Errorf("DocTitle = %q, want %q", ncx.DocTitle, "Nested   Book")
	}
	if len(ncx.NavPoints) != 2 {
		t.Fatalf("got %d top-level nav points, want 2", len(ncx.NavPoints))
	}

	part1 := ncx.NavPoints[0]
	if len(part1.Children) != 2 {
		t.Fatalf("Part 1 has %d children, want 2", len(part1.Children))
	}

	want := []NavPoint{
		{ID: "c1", PlayOrder: 2, Label: "Chapter One", ContentPath: "OEBPS/text/ch1.xhtml", Fragment: "start"},
		{ID: "c2", PlayOrder: 3, Label: "Chapter Two", ContentPath: "Misc/ch2.xhtml"},
	}
	for i, np := range part1.Children {
		w := want[i]
		if np.ID != w.ID || np.PlayOrder != w.PlayOrder || np.Label != w.Label ||
			np.ContentPath != w.ContentPath || np.Fragment != w.Fragment {
			t.Errorf("Children[%d] = %+v, want %+v", i, np, w)
		}
	}
	if ncx.NavPoints[1].Children != nil {
		t.Errorf("Part 2 children = %v, want nil", ncx.NavPoints[1].Children)
	}
}

func TestParseNCX_Empty(t *testing.T) {
	ncx, err := parseNCX([]byte(`<ncx><navMap></navMap></ncx>`), "")
	if err != nil {
		t.Fatalf("parseNCX() error = %v", err)
	}
	if len(ncx.NavPoints) != 0 {
		t.Errorf("got %d nav points, want 0", len(ncx.NavPoints))
	}
}

func TestFindNAVPath(t *testing.T) {
	tests := []struct {
		name     string
		manifest []ManifestItem
		wantPath string
		wantOK   bool
	}{
		{
			name: "nav property",
			manifest: []ManifestItem{
				{ID: "ch1", Href: "OEBPS/ch1.xhtml"},
				{ID: "nav", Href: "OEBPS/nav.xhtml", Properties: []string{"scripted", "nav"}},
			},
			wantPath: "OEBPS/nav.xhtml",
			wantOK:   true,
		},
		{
			name:     "no nav",
			manifest: []ManifestItem{{ID: "ch1", Href: "OEBPS/ch1.xhtml"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opf := testOPF(tt.manifest...)
			gotPath, gotOK := findNAVPath(opf)
			if gotPath != tt.wantPath || gotOK != tt.wantOK {
				t.Errorf("findNAVPath() = (%q, %v), want (%q, %v)", gotPath, gotOK, tt.wantPath, tt.wantOK)
			}
		})
	}
}

// testOPF builds an OPF with the given manifest items in document order.
func testOPF(items ...ManifestItem) *OPF {
	opf := &OPF{Manifest: make(map[string]ManifestItem)}
	for _, it := range items {
		opf.Manifest[it.ID] = it
		opf.ManifestOrder = append(opf.ManifestOrder, it.ID)
	}
	return opf
}

func TestParseNAV_Basic(t *testing.T) {
	navHTML := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>Navigation</title></head>
<body>
<nav epub:type="landmarks"><ol><li><a href="cover.xhtml">Cover</a></li></ol></nav>
<nav epub:type="toc">
  <h1>Table of Contents</h1>
  <ol>
    <li><a href="chapter1.xhtml">Chapter 1</a></li>
    <li><a href="chapter2.xhtml#s2">Chapter 2</a></li>
    <li><a href="../chapter3.xhtml">Chapter 3</a></li>
  </ol>
</nav>
</body>
</html>`)

	ncx, err := parseNAV(navHTML, "OEBPS")
	if err != nil {
		t.Fatalf("parseNAV() error = %v", err)
	}
	if ncx.DocTitle != "Navigation" {
		t.Errorf("DocTitle = %q, want %q", ncx.DocTitle, "Navigation")
	}
	if len(ncx.NavPoints) != 3 {
		t.Fatalf("got %d nav points, want 3", len(ncx.NavPoints))
	}
	for i, np := range ncx.NavPoints {
		wantID := "nav-" + strconv.Itoa(i+1)
		if np.ID != wantID || np.PlayOrder != i+1 {
			t.Errorf("NavPoints[%d] = (%q, %d), want (%q, %d)", i, np.ID, np.PlayOrder, wantID, i+1)
		}
	}
	if np := ncx.NavPoints[1]; np.ContentPath != "OEBPS/chapter2.xhtml" || np.Fragment != "s2" {
		t.Errorf("NavPoints[1] target = %q#%q, want OEBPS/chapter2.xhtml#s2", np.ContentPath, np.Fragment)
	}
	if got := ncx.NavPoints[2].ContentPath; got != "chapter3.xhtml" {
		t.Errorf("NavPoints[2].ContentPath = %q, want %q", got, "chapter3.xhtml")
	}
}

func TestParseNAV_Nested(t *testing.T) {
	navHTML := []byte(`<html xmlns:epub="http://www.idpf.org/2007/ops"><body>
<nav epub:type="toc">
  <ol>
    <li>
      <a href="part1.xhtml">Part 1</a>
      <ol>
        <li><a href="ch1.xhtml">Chapter 1</a></li>
        <li><a href="ch2.xhtml">Chapter 2</a></li>
      </ol>
    </li>
    <li><a href="part2.xhtml">Part 2</a></li>
  </ol>
</nav>
</body></html>`)

	ncx, err := parseNAV(navHTML, "")
	if err != nil {
		t.Fatalf("parseNAV() error = %v", err)
	}
	if len(ncx.NavPoints) != 2 {
		t.Fatalf("got %d top-level nav points, want 2", len(ncx.NavPoints))
	}
	part1 := ncx.NavPoints[0]
	if part1.Label != "Part 1" {
		t.Errorf("Label = %q, want %q", part1.Label, "Part 1")
	}
	if len(part1.Children) != 2 {
		t.Fatalf("Part 1 has %d children, want 2", len(part1.Children))
	}
	if part1.Children[1].PlayOrder != 3 || ncx.NavPoints[1].PlayOrder != 4 {
		t.Errorf("play order = %d/%d, want 3/4", part1.Children[1].PlayOrder, ncx.NavPoints[1].PlayOrder)
	}
}

func TestParseNAV_EpubTypeMultipleTokens(t *testing.T) {
	navHTML := []byte(`<html><body>
<nav epub:type="landmarks toc"><ol><li><a href="ch1.xhtml">Ch1</a></li></ol></nav>
</body></html>`)

	ncx, err := parseNAV(navHTML, "OEBPS")
	if err != nil {
		t.Fatalf("parseNAV() error = %v", err)
	}
	if len(ncx.NavPoints) != 1 || ncx.NavPoints[0].Label != "Ch1" {
		t.Errorf("NavPoints = %+v, want one Ch1 entry", ncx.NavPoints)
	}
}

func TestParseNAV_WrappedLink(t *testing.T) {
	navHTML := []byte(`<html><body>
<nav epub:type="toc"><ol><li><span><a href="ch1.xhtml">Ch1</a></span></li></ol></nav>
</body></html>`)

	ncx, err := parseNAV(navHTML, "OEBPS")
	if err != nil {
		t.Fatalf("parseNAV() error = %v", err)
	}
	if len(ncx.NavPoints) != 1 || ncx.NavPoints[0].ContentPath != "OEBPS/ch1.xhtml" {
		t.Errorf("NavPoints = %+v, want one entry for OEBPS/ch1.xhtml", ncx.NavPoints)
	}
}

func TestParseNAV_HeadingWithoutLink(t *testing.T) {
	navHTML := []byte(`<html><body>
<nav epub:type="toc">
  <ol>
    <li><span>Part 1</span>
      <ol><li><a href="ch1.xhtml">Ch1</a></li></ol>
    </li>
  </ol>
</nav>
</body></html>`)

	ncx, err := parseNAV(navHTML, "OEBPS")
	if err != nil {
		t.Fatalf("parseNAV() error = %v", err)
	}
	if len(ncx.NavPoints) != 1 {
		t.Fatalf("got %d top-level nav points, want 1", len(ncx.NavPoints))
	}
	part := ncx.NavPoints[0]
	if part.Label != "Part 1" || part.ContentPath != "" {
		t.Errorf("NavPoints[0] = %+v, want link-less Part 1", part)
	}
	if len(part.Children) != 1 || part.Children[0].Label != "Ch1" {
		t.Errorf("Children = %+v, want one Ch1 entry", part.Children)
	}
}

func TestParseNAV_NoEpubType(t *testing.T) {
	navHTML := []byte(`<html><body><nav><ol><li><a href="a.xhtml">A</a></li></ol></nav></body></html>`)

	ncx, err := parseNAV(navHTML, "")
	if err != nil {
		t.Fatalf("parseNAV() error = %v", err)
	}
	if len(ncx.NavPoints) != 1 {
		t.Errorf("got %d nav points, want 1", len(ncx.NavPoints))
	}
}

const navDocument = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<body><nav epub:type="toc"><ol><li><a href="chapter1.xhtml">NAV Chapter 1</a></li></ol></nav></body>
</html>`

const ncxFixture = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head><meta name="dtb:uid" content="ncx-uid"/></head>
  <navMap>
    <navPoint id="np1" playOrder="1">
      <navLabel><text>NCX Chapter 1</text></navLabel>
      <content src="chapter1.xhtml"/>
    </navPoint>
  </navMap>
</ncx>`

func TestLoadNCX(t *testing.T) {
	ncxItem := ManifestItem{ID: "ncx", Href: "OEBPS/toc.ncx", MediaType: "application/x-dtbncx+xml"}
	navItem := ManifestItem{ID: "nav", Href: "OEBPS/nav.xhtml", MediaType: "application/xhtml+xml", Properties: []string{"nav"}}

	tests := []struct {
		name      string
		files     map[string]string
		ncxPath   string
		items     []ManifestItem
		wantLabel string
		wantNil   bool
	}{
		{
			name:      "NCX preferred",
			files:     map[string]string{"OEBPS/toc.ncx": ncxFixture, "OEBPS/nav.xhtml": navDocument},
			ncxPath:   "OEBPS/toc.ncx",
			items:     []ManifestItem{ncxItem, navItem},
			wantLabel: "NCX Chapter 1",
		},
		{
			name:      "NAV fallback",
			files:     map[string]string{"OEBPS/nav.xhtml": navDocument},
			items:     []ManifestItem{navItem},
			wantLabel: "NAV Chapter 1",
		},
		{
			name:      "empty NCX falls back to NAV",
			files:     map[string]string{"OEBPS/toc.ncx": `<ncx><navMap/></ncx>`, "OEBPS/nav.xhtml": navDocument},
			ncxPath:   "OEBPS/toc.ncx",
			items:     []ManifestItem{ncxItem, navItem},
			wantLabel: "NAV Chapter 1",
		},
		{
			name:    "NCX file missing",
			files:   map[string]string{},
			ncxPath: "OEBPS/missing.ncx",
			wantNil: true,
		},
		{
			name:    "neither exists",
			files:   map[string]string{},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := OpenBytes(buildEPUB(t, tt.files))
			if err != nil {
				t.Fatalf("OpenBytes() error = %v", err)
			}
			opf := testOPF(tt.items...)
			opf.NCXPath = tt.ncxPath

			ncx, err := LoadNCX(a, opf)
			if err != nil {
				t.Fatalf("LoadNCX() error = %v", err)
			}
			if tt.wantNil {
				if ncx != nil {
					t.Errorf("LoadNCX() = %+v, want nil", ncx)
				}
				return
			}
			if ncx == nil || len(ncx.NavPoints) != 1 {
				t.Fatalf("LoadNCX() = %+v, want one nav point", ncx)
			}
			if ncx.NavPoints[0].Label != tt.wantLabel {
				t.Errorf("Label = %q, want %q", ncx.NavPoints[0].Label, tt.wantLabel)
			}
		})
	}
}

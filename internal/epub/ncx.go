package epub

import (
	"bytes"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// NCX represents the parsed navigation control structure from NCX or NAV document.
type NCX struct {
	UID       string
	Depth     int
	DocTitle  string
	NavPoints []NavPoint
}

// NavPoint represents a single navigation point in the table of contents.
type NavPoint struct {
	ID          string
	PlayOrder   int
	Label       string
	ContentPath string // fragment-free, absolute path within EPUB
	Fragment    string // fragment identifier (without #)
	Children    []NavPoint
}

// fileReader is the part of Archive the navigation loaders need.
type fileReader interface {
	ReadFile(path string) ([]byte, error)
}

type ncxDocument struct {
	Head struct {
		Meta []struct {
			Name    string `xml:"name,attr"`
			Content string `xml:"content,attr"`
		} `xml:"meta"`
	} `xml:"head"`
	DocTitle struct {
		Text string `xml:"text"`
	} `xml:"docTitle"`
	NavMap struct {
		NavPoints []ncxNavPoint `xml:"navPoint"`
	} `xml:"navMap"`
}

type ncxNavPoint struct {
	ID        string `xml:"id,attr"`
	PlayOrder string `xml:"playOrder,attr"`
	NavLabel  struct {
		Text string `xml:"text"`
	} `xml:"navLabel"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	NavPoints []ncxNavPoint `xml:"navPoint"`
}

// LoadNCX loads the table of contents, preferring the NCX referenced by the
// spine and falling back to the EPUB 3 navigation document. It returns
// nil, nil when the book has neither.
func LoadNCX(reader fileReader, opf *OPF) (*NCX, error) {
	if opf.NCXPath != "" {
		data, err := reader.ReadFile(opf.NCXPath)
		switch {
		case err == nil:
			ncx, perr := parseNCX(data, path.Dir(opf.NCXPath))
			if perr == nil && len(ncx.NavPoints) > 0 {
				return ncx, nil
			}
			if perr != nil && !hasNAV(opf) {
				return nil, perr
			}
		case !IsNotFound(err):
			return nil, err
		}
	}

	navPath, ok := findNAVPath(opf)
	if !ok {
		return nil, nil
	}
	data, err := reader.ReadFile(navPath)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return parseNAV(data, path.Dir(navPath))
}

func hasNAV(opf *OPF) bool {
	_, ok := findNAVPath(opf)
	return ok
}

// parseNCX parses an NCX document. ncxDir is the archive directory of the
// NCX, used to resolve content paths.
func parseNCX(data []byte, ncxDir string) (*NCX, error) {
	var doc ncxDocument
	if err := decodeXML(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse NCX: %w", err)
	}

	ncx := &NCX{DocTitle: strings.TrimSpace(doc.DocTitle.Text)}
	for _, m := range doc.Head.Meta {
		switch m.Name {
		case "dtb:uid":
			ncx.UID = m.Content
		case "dtb:depth":
			ncx.Depth, _ = strconv.Atoi(m.Content)
		}
	}
	ncx.NavPoints = convertNCXPoints(doc.NavMap.NavPoints, ncxDir)
	return ncx, nil
}

func convertNCXPoints(points []ncxNavPoint, dir string) []NavPoint {
	if len(points) == 0 {
		return nil
	}
	out := make([]NavPoint, 0, len(points))
	for _, p := range points {
		order, _ := strconv.Atoi(p.PlayOrder)
		var contentPath, fragment string
		if p.Content.Src != "" {
			contentPath, fragment = splitFragment(joinPath(dir, p.Content.Src))
		}
		out = append(out, NavPoint{
			ID:          p.ID,
			PlayOrder:   order,
			Label:       collapseSpace(p.NavLabel.Text),
			ContentPath: contentPath,
			Fragment:    fragment,
			Children:    convertNCXPoints(p.NavPoints, dir),
		})
	}
	return out
}

// findNAVPath returns the manifest href of the item with the "nav" property.
func findNAVPath(opf *OPF) (string, bool) {
	item, ok := opf.findItem(func(it ManifestItem) bool {
		return hasProperty(it, "nav")
	})
	return item.Href, ok
}

// parseNAV parses the toc nav of an EPUB 3 navigation document.
func parseNAV(data []byte, navDir string) (*NCX, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(stripBOM(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse NAV: %w", err)
	}

	var nav *goquery.Selection
	doc.Find("nav").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if hasToken(epubType(s), "toc") {
			nav = s
			return false
		}
		return true
	})
	if nav == nil {
		// Some generators omit epub:type; take the first nav with a list.
		nav = doc.Find("nav").FilterFunction(func(i int, s *goquery.Selection) bool {
			return s.Find("ol").Length() > 0
		}).First()
	}

	ncx := &NCX{DocTitle: collapseSpace(doc.Find("title").First().Text())}
	if nav == nil || nav.Length() == 0 {
		return ncx, nil
	}

	order := 0
	ncx.NavPoints = parseNAVList(nav.ChildrenFiltered("ol").First(), navDir, &order)
	return ncx, nil
}

func parseNAVList(ol *goquery.Selection, dir string, order *int) []NavPoint {
	var out []NavPoint
	ol.ChildrenFiltered("li").Each(func(i int, li *goquery.Selection) {
		*order++
		np := NavPoint{
			ID:        "nav-" + strconv.Itoa(*order),
			PlayOrder: *order,
		}

		link := li.Find("a").FilterFunction(func(i int, a *goquery.Selection) bool {
			return a.ParentsFiltered("ol").First().IsSelection(ol)
		}).First()
		if link.Length() > 0 {
			np.Label = collapseSpace(link.Text())
			if href, ok := link.Attr("href"); ok && href != "" {
				np.ContentPath, np.Fragment = splitFragment(joinPath(dir, href))
			}
		} else {
			np.Label = collapseSpace(ownText(li))
		}

		if sub := li.ChildrenFiltered("ol").First(); sub.Length() > 0 {
			np.Children = parseNAVList(sub, dir, order)
		}
		out = append(out, np)
	})
	return out
}

// epubType returns the epub:type attribute. The HTML parser keeps the
// prefixed name as the attribute key.
func epubType(s *goquery.Selection) string {
	if v, ok := s.Attr("epub:type"); ok {
		return v
	}
	for _, n := range s.Nodes {
		for _, a := range n.Attr {
			if a.Key == "type" && a.Namespace == "epub" {
				return a.Val
			}
		}
	}
	return ""
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if f == token {
			return true
		}
	}
	return false
}

// ownText returns the text of the direct text and inline children of s,
// excluding nested lists.
func ownText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.Data == "ol" || c.Data == "ul") {
				continue
			}
			b.WriteString(goquery.NewDocumentFromNode(c).Text())
		}
	}
	return b.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// splitFragment splits a source path into the path and fragment identifier.
func splitFragment(src string) (path, fragment string) {
	if src == "" {
		return "", ""
	}
	parts := strings.SplitN(src, "#", 2)
	path = parts[0]
	if len(parts) == 2 {
		fragment = parts[1]
	}
	return path, fragment
}

package epub

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Content represents a parsed XHTML content file
type Content struct {
	ID       string            // Manifest ID
	Path     string            // File path
	Document *goquery.Document // Parsed HTML document
	Title    string            // <title>, else the first heading
	CSSLinks []string          // Archive paths of linked style sheets
	Styles   []string          // Inline <style> sheets, removed from the tree
}

// LoadContent loads and parses an XHTML content file
// id: manifest item ID
// path: file path within EPUB (used for relative path resolution)
// content: XHTML file content
func LoadContent(id, path string, content []byte) (*Content, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(stripBOM(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse XHTML: %w", err)
	}

	c := &Content{
		ID:       id,
		Path:     path,
		Document: doc,
		CSSLinks: []string{},
	}

	// Scripts and inline sheets carry no reading text. They are taken out
	// here so every consumer of the body counts the same characters.
	doc.Find("script, noscript, template, iframe").Remove()
	doc.Find("style").Each(func(i int, s *goquery.Selection) {
		c.Styles = append(c.Styles, s.Text())
	})
	doc.Find("style").Remove()

	c.Title = collapseSpace(doc.Find("head title").First().Text())
	if c.Title == "" {
		c.Title = collapseSpace(doc.Find("body").Find("h1, h2, h3").First().Text())
	}

	doc.Find("link").Each(func(i int, s *goquery.Selection) {
		if rel, _ := s.Attr("rel"); !hasToken(rel, "stylesheet") {
			return
		}
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		if u, err := url.Parse(href); err == nil && u.Scheme != "" {
			return
		}
		p, _, _ := strings.Cut(ResolvePath(path, href), "#")
		c.CSSLinks = append(c.CSSLinks, p)
	})

	return c, nil
}

// Body returns the body element of the document. The HTML parser always
// synthesizes one, so the result is nil only for an empty document.
func (c *Content) Body() *html.Node {
	body := c.Document.Find("body").First()
	if body.Length() == 0 {
		return nil
	}
	return body.Get(0)
}

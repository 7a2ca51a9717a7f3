// Package resource rewrites the asset references of chapter documents so a
// mounted chapter is self-contained: images, stylesheets and fonts become
// data: URLs backed by the in-memory archive.
package resource

import (
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/yuanying/epubreader/internal/epub"
)

// MissingAttr is set on elements whose resource could not be served.
const MissingAttr = "data-epub-missing"

// Source reads archive entries.
type Source interface {
	ReadFile(path string) ([]byte, error)
}

// Options configures a Resolver.
type Options struct {
	// MaxImageWidth downscales wider raster images; zero uses the default,
	// a negative value disables downscaling.
	MaxImageWidth int
}

// Resolver turns parsed chapter documents into self-contained trees.
// It is safe for concurrent use.
type Resolver struct {
	src      Source
	maxWidth int
	log      *zap.Logger

	mu    sync.Mutex
	cache map[string]entry
}

type entry struct {
	url string
	err error
}

// Chapter is a resolved chapter document.
type Chapter struct {
	Path   string
	Title  string
	Body   *html.Node
	Styles []string
	Errors []*ResourceError
}

// New creates a resolver over src.
func New(src Source, opts Options, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	maxWidth := opts.MaxImageWidth
	if maxWidth == 0 {
		maxWidth = defaultMaxImageWidth
	}
	return &Resolver{
		src:      src,
		maxWidth: maxWidth,
		log:      log,
		cache:    make(map[string]entry),
	}
}

// Resolve rewrites c in place and returns its body with the chapter's
// sanitized style sheets. Missing resources never fail the chapter: they
// are replaced by a placeholder and reported in Chapter.Errors.
func (r *Resolver) Resolve(c *epub.Content) *Chapter {
	ch := &Chapter{Path: c.Path, Title: c.Title}
	doc := c.Document

	Sanitize(doc)

	for _, p := range c.CSSLinks {
		sheet, err := r.stylesheet(c.Path, p)
		if err != nil {
			r.fail(ch, c.Path, p, err)
			continue
		}
		ch.Styles = append(ch.Styles, sheet)
	}
	// Body links stay: removing them would shift element steps in locators.
	doc.Find("head link").Remove()

	for _, css := range c.Styles {
		ch.Styles = append(ch.Styles, r.rewriteCSS(ch, c.Path, SanitizeCSS(css)))
	}

	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok {
			return
		}
		r.rewriteAttr(ch, c.Path, s.Get(0), "src", "", src)
		s.RemoveAttr("srcset")
	})

	// SVG <image> keeps its namespace on xlink:href in the parsed tree.
	doc.Find("image").Each(func(i int, s *goquery.Selection) {
		n := s.Get(0)
		for _, a := range n.Attr {
			if a.Key == "href" {
				r.rewriteAttr(ch, c.Path, n, a.Key, a.Namespace, a.Val)
			}
		}
	})

	doc.Find("[style]").Each(func(i int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		s.SetAttr("style", r.rewriteCSS(ch, c.Path, SanitizeCSS(style)))
	})

	ch.Body = c.Body()
	return ch
}

func (r *Resolver) fail(ch *Chapter, chapter, ref string, err error) {
	re := &ResourceError{Chapter: chapter, Ref: ref, Err: err}
	var inner *ResourceError
	if errors.As(err, &inner) {
		re = inner
	}
	ch.Errors = append(ch.Errors, re)
	r.log.Warn("resource unavailable",
		zap.String("chapter", chapter),
		zap.String("ref", ref),
		zap.Error(err))
}

// rewriteAttr replaces the reference held by attribute key of n with a data
// URL, or with the placeholder when the archive cannot serve it.
func (r *Resolver) rewriteAttr(ch *Chapter, base string, n *html.Node, key, ns, ref string) {
	p, ok := archivePath(base, ref)
	if !ok {
		return
	}
	u, err := r.dataURL(p)
	if err != nil {
		r.fail(ch, base, ref, &ResourceError{Chapter: base, Ref: ref, Path: p, Err: err})
		u = placeholderDataURL()
		n.Attr = append(n.Attr, html.Attribute{Key: MissingAttr, Val: p})
	}
	for i := range n.Attr {
		if n.Attr[i].Key == key && n.Attr[i].Namespace == ns {
			n.Attr[i].Val = u
		}
	}
}

// stylesheet loads the linked style sheet at archive path p, sanitized and
// with its own references resolved against the sheet's location.
func (r *Resolver) stylesheet(chapter, p string) (string, error) {
	data, err := r.src.ReadFile(p)
	if err != nil {
		return "", &ResourceError{Chapter: chapter, Ref: p, Path: p, Err: err}
	}
	ch := &Chapter{}
	css := r.rewriteCSS(ch, p, SanitizeCSS(string(data)))
	for _, e := range ch.Errors {
		r.log.Debug("style sheet reference unavailable", zap.String("sheet", p), zap.Error(e))
	}
	return css, nil
}

func (r *Resolver) rewriteCSS(ch *Chapter, base, css string) string {
	return RewriteURLs(css, func(ref string) string {
		p, ok := archivePath(base, ref)
		if !ok {
			return ""
		}
		u, err := r.dataURL(p)
		if err != nil {
			r.fail(ch, base, ref, &ResourceError{Chapter: base, Ref: ref, Path: p, Err: err})
			return ""
		}
		return u
	})
}

// dataURL returns the cached data: URL of archive entry p.
func (r *Resolver) dataURL(p string) (string, error) {
	r.mu.Lock()
	if e, ok := r.cache[p]; ok {
		r.mu.Unlock()
		return e.url, e.err
	}
	r.mu.Unlock()

	e := r.load(p)

	r.mu.Lock()
	r.cache[p] = e
	r.mu.Unlock()
	return e.url, e.err
}

func (r *Resolver) load(p string) entry {
	data, err := r.src.ReadFile(p)
	if err != nil {
		return entry{err: err}
	}
	mediaType := mediaTypeOf(p)
	switch {
	case isRaster(mediaType):
		fitted, mt, ferr := fitImage(p, mediaType, data, r.maxWidth)
		if ferr != nil {
			r.log.Debug("image kept at original size", zap.String("path", p), zap.Error(ferr))
		}
		data, mediaType = fitted, mt
	case mediaType == "text/css":
		// Imported sheets are sanitized but their own references are not
		// followed, which keeps import cycles finite.
		data = []byte(SanitizeCSS(string(data)))
	}
	return entry{url: dataURL(mediaType, data)}
}

// archivePath resolves ref against the document at base. It reports false
// for references that do not point into the archive.
func archivePath(base, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false
	}
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return "", false
	}
	p, _, _ := strings.Cut(epub.ResolvePath(base, ref), "#")
	return p, p != ""
}

func dataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

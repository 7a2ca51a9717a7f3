package resource

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// forbiddenAttrs lists attributes removed from every element.
var forbiddenAttrs = map[string]bool{
	"contenteditable": true,
	"draggable":       true,
	"spellcheck":      true,
	"autofocus":       true,
}

// uriAttrs are attributes whose value is a URI and must not carry script.
var uriAttrs = map[string]bool{
	"href":       true,
	"src":        true,
	"action":     true,
	"formaction": true,
	"xlink:href": true,
}

// Sanitize strips script hooks and editing attributes from doc. Attributes
// in the engine's own data-epub- namespace are removed so that publisher
// markup cannot impersonate overlay markers. Elements are left in place:
// scripts are already gone once epub.LoadContent returns.
func Sanitize(doc *goquery.Document) {
	doc.Find("*").Each(func(i int, s *goquery.Selection) {
		node := s.Get(0)
		kept := node.Attr[:0]
		for _, a := range node.Attr {
			if dropAttr(a) {
				continue
			}
			kept = append(kept, a)
		}
		node.Attr = kept
	})
}

func dropAttr(a html.Attribute) bool {
	key := strings.ToLower(a.Key)
	if a.Namespace != "" {
		key = a.Namespace + ":" + key
	}
	switch {
	case strings.HasPrefix(key, "on"):
		return true
	case forbiddenAttrs[key]:
		return true
	case strings.HasPrefix(key, "data-epub-"):
		return true
	case uriAttrs[key]:
		v := strings.ToLower(strings.TrimSpace(a.Val))
		return strings.HasPrefix(v, "javascript:") || strings.HasPrefix(v, "vbscript:")
	}
	return false
}

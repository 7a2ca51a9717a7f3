package resource

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// pxValueRe and ptValueRe match absolute lengths converted to em so the
	// reader's font size drives the layout.
	pxValueRe = regexp.MustCompile(`(\d+(?:\.\d+)?)px\b`)
	ptValueRe = regexp.MustCompile(`(\d+(?:\.\d+)?)pt\b`)

	// declarationRe matches a CSS property-value pair.
	declarationRe = regexp.MustCompile(`(?is)^\s*([\w-]+)\s*:\s*(.*?)\s*;?\s*$`)

	negativeLengthRe = regexp.MustCompile(`(^|\s)-\d`)

	// urlRe matches url(...) references, quoted or not.
	urlRe = regexp.MustCompile(`url\(\s*(?:"([^"]*)"|'([^']*)'|([^)'"\s]*))\s*\)`)

	// importRe matches @import "x.css"; without url().
	importRe = regexp.MustCompile(`@import\s+(?:"([^"]*)"|'([^']*)')`)
)

// SanitizeCSS removes declarations that fight the engine's layout (fixed or
// absolute positioning, transforms, transitions, animations and negative
// margins) and converts px/pt lengths to em. Comments and string literals
// are passed through untouched.
func SanitizeCSS(css string) string {
	if css == "" {
		return ""
	}

	var out strings.Builder
	out.Grow(len(css))
	for i := 0; i < len(css); {
		switch ch := css[i]; {
		case ch == '/' && i+1 < len(css) && css[i+1] == '*':
			end := strings.Index(css[i+2:], "*/")
			if end < 0 {
				out.WriteString(css[i:])
				return out.String()
			}
			end += i + 4
			out.WriteString(css[i:end])
			i = end
		case ch == '{' || ch == '}' || ch == ';':
			out.WriteByte(ch)
			i++
		default:
			end := declarationEnd(css, i)
			decl := css[i:end]
			m := declarationRe.FindStringSubmatch(decl)
			switch {
			case m == nil || !strings.Contains(decl, ":"):
				out.WriteString(decl)
			case forbidden(m[1], m[2]):
				// Drop the declaration together with its terminator.
				if end < len(css) && css[end] == ';' {
					end++
				}
			default:
				out.WriteString(convertUnits(decl))
			}
			if end == i {
				out.WriteByte(ch)
				end++
			}
			i = end
		}
	}
	return out.String()
}

// declarationEnd returns the index of the ';', '{' or '}' ending the
// declaration that starts at pos. String literals are skipped.
func declarationEnd(css string, pos int) int {
	for i := pos; i < len(css); i++ {
		switch css[i] {
		case ';', '{', '}':
			return i
		case '"', '\'':
			quote := css[i]
			for i++; i < len(css) && css[i] != quote; i++ {
				if css[i] == '\\' {
					i++
				}
			}
		}
	}
	return len(css)
}

func forbidden(property, value string) bool {
	p := strings.ToLower(strings.TrimSpace(property))
	v := strings.ToLower(strings.TrimSpace(value))

	switch {
	case p == "position":
		return v == "fixed" || v == "absolute"
	case p == "transform", p == "transition", p == "animation":
		return true
	case strings.HasPrefix(p, "transition-"), strings.HasPrefix(p, "animation-"):
		return true
	case p == "margin" || strings.HasPrefix(p, "margin-"):
		return negativeLengthRe.MatchString(v)
	}
	return false
}

// convertUnits converts px (÷16) and pt (÷12) values to em outside url()
// references.
func convertUnits(s string) string {
	var out strings.Builder
	last := 0
	for _, loc := range urlRe.FindAllStringIndex(s, -1) {
		out.WriteString(scaleUnits(scaleUnits(s[last:loc[0]], pxValueRe, 16), ptValueRe, 12))
		out.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	out.WriteString(scaleUnits(scaleUnits(s[last:], pxValueRe, 16), ptValueRe, 12))
	return out.String()
}

func scaleUnits(s string, re *regexp.Regexp, base float64) string {
	return re.ReplaceAllStringFunc(s, func(match string) string {
		sub := re.FindStringSubmatch(match)
		val, err := strconv.ParseFloat(sub[1], 64)
		if err != nil {
			return match
		}
		return strconv.FormatFloat(val/base, 'f', -1, 64) + "em"
	})
}

// RewriteURLs replaces every url(...) and bare @import reference in css with
// the result of fn. References fn leaves empty are kept as they were.
func RewriteURLs(css string, fn func(ref string) string) string {
	css = urlRe.ReplaceAllStringFunc(css, func(match string) string {
		sub := urlRe.FindStringSubmatch(match)
		ref := firstNonEmpty(sub[1:]...)
		if ref == "" {
			return match
		}
		if rewritten := fn(ref); rewritten != "" {
			return `url("` + rewritten + `")`
		}
		return match
	})
	return importRe.ReplaceAllStringFunc(css, func(match string) string {
		sub := importRe.FindStringSubmatch(match)
		ref := firstNonEmpty(sub[1:]...)
		if rewritten := fn(ref); rewritten != "" {
			return `@import url("` + rewritten + `")`
		}
		return match
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

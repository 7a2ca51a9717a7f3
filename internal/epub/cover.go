package epub

import (
	"path"
	"strings"
)

// CoverInfo holds information about the detected cover image.
type CoverInfo struct {
	ManifestID      string
	Href            string
	MediaType       string
	DetectionMethod string // "properties", "meta", "guide", "filename"
}

// DetectCover finds the cover image of the package. Methods are tried in
// priority order:
//  1. properties="cover-image" (EPUB 3.0)
//  2. meta name="cover" (EPUB 2.0)
//  3. guide type="cover" matched to an image manifest item
//  4. an image whose basename contains "cover" (SVG excluded)
//
// Returns nil if no cover image is found.
func (opf *OPF) DetectCover() *CoverInfo {
	if item, ok := opf.findItem(func(it ManifestItem) bool {
		return hasProperty(it, "cover-image")
	}); ok {
		return coverFrom(item, "properties")
	}

	if item, ok := opf.Manifest[opf.Metadata.CoverID]; ok && opf.Metadata.CoverID != "" {
		return coverFrom(item, "meta")
	}

	for _, ref := range opf.Guide {
		if ref.Type != "cover" {
			continue
		}
		href, _ := splitFragment(ref.Href)
		if item, ok := opf.findItem(func(it ManifestItem) bool {
			return isImageMediaType(it.MediaType) && it.Href == href
		}); ok {
			return coverFrom(item, "guide")
		}
	}

	if item, ok := opf.findItem(func(it ManifestItem) bool {
		return isImageMediaType(it.MediaType) &&
			strings.Contains(strings.ToLower(path.Base(it.Href)), "cover")
	}); ok {
		return coverFrom(item, "filename")
	}

	return nil
}

// findItem returns the first manifest item in document order matching fn.
func (opf *OPF) findItem(fn func(ManifestItem) bool) (ManifestItem, bool) {
	for _, id := range opf.ManifestOrder {
		if item := opf.Manifest[id]; fn(item) {
			return item, true
		}
	}
	return ManifestItem{}, false
}

func hasProperty(item ManifestItem, prop string) bool {
	for _, p := range item.Properties {
		if p == prop {
			return true
		}
	}
	return false
}

func coverFrom(item ManifestItem, method string) *CoverInfo {
	return &CoverInfo{
		ManifestID:      item.ID,
		Href:            item.Href,
		MediaType:       item.MediaType,
		DetectionMethod: method,
	}
}

// isImageMediaType checks if a media type is a raster image (SVG excluded).
func isImageMediaType(mediaType string) bool {
	if mediaType == "image/svg+xml" {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}

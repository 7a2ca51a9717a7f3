package epub

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/yuanying/epubreader/internal/dom"
)

// Load opens an EPUB held in memory and assembles the Book: package
// metadata, spine with per-item character counts, and the table of contents.
// Fatal problems are reported as *LoadError; everything else becomes a
// warning on the book.
func Load(data []byte, log *zap.Logger) (*Book, error) {
	if log == nil {
		log = zap.NewNop()
	}

	archive, err := OpenBytes(data)
	if err != nil {
		return nil, err
	}

	opfData, err := archive.ReadFile(archive.OPFPath())
	if err != nil {
		return nil, loadError(ReasonMalformedPackage, err)
	}
	opf, err := ParseOPF(opfData, opfDir(archive.OPFPath()))
	if err != nil {
		return nil, loadError(ReasonMalformedPackage, err)
	}
	if len(opf.Spine) == 0 {
		return nil, loadError(ReasonMalformedPackage, ErrEmptySpine)
	}

	b := &Book{
		Title:    strings.TrimSpace(opf.Metadata.Title),
		Author:   authorOf(opf.Metadata.Creators),
		Metadata: opf.Metadata,
		Cover:    opf.DetectCover(),
		Warnings: archive.Warnings(),
		archive:  archive,
		opf:      opf,
	}

	for i, ref := range opf.Spine {
		item := opf.Manifest[ref.IDRef]
		si := &SpineItem{
			Index:     i,
			ID:        item.ID,
			Href:      item.Href,
			MediaType: item.MediaType,
			Linear:    ref.Linear,
			Start:     b.TotalChars,
		}
		if c, err := b.loadItem(si); err != nil {
			b.warnf("spine item %q: %v", item.Href, err)
		} else {
			si.Title = c.Title
			if body := c.Body(); body != nil {
				si.CharCount = dom.TextLen(body)
			}
		}
		b.TotalChars += si.CharCount
		b.Spine = append(b.Spine, si)
	}

	ncx, err := LoadNCX(archive, opf)
	if err != nil {
		b.warnf("table of contents: %v", err)
	}
	if ncx != nil {
		b.TOC = b.tocFromNavPoints(ncx.NavPoints)
		if b.Title == "" {
			b.Title = ncx.DocTitle
		}
	}
	if len(b.TOC) == 0 {
		b.TOC = b.synthesizeTOC()
	}

	for _, w := range b.Warnings {
		log.Warn("epub load warning", zap.String("warning", w))
	}
	log.Debug("book loaded",
		zap.String("title", b.Title),
		zap.Int("spine", len(b.Spine)),
		zap.Int("toc", len(b.TOC)),
		zap.Int("chars", b.TotalChars))

	return b, nil
}

// LoadChapter reads and parses the content document of spine item i. Each
// call returns a fresh tree.
func (b *Book) LoadChapter(i int) (*Content, error) {
	if i < 0 || i >= len(b.Spine) {
		return nil, fmt.Errorf("spine index %d out of range", i)
	}
	return b.loadItem(b.Spine[i])
}

func (b *Book) loadItem(si *SpineItem) (*Content, error) {
	data, err := b.archive.ReadFile(si.Href)
	if err != nil {
		return nil, err
	}
	return LoadContent(si.ID, si.Href, data)
}

// Archive returns the container the book was loaded from.
func (b *Book) Archive() *Archive {
	return b.archive
}

// SpineIndex returns the index of the spine item whose href matches p, which
// may carry a fragment. Matching falls back to a case-insensitive compare.
func (b *Book) SpineIndex(p string) (int, bool) {
	p, _ = splitFragment(normalizePath(p))
	for _, si := range b.Spine {
		if si.Href == p {
			return si.Index, true
		}
	}
	for _, si := range b.Spine {
		if strings.EqualFold(si.Href, p) {
			return si.Index, true
		}
	}
	return -1, false
}

// SpineTitle returns the best available title for spine item i.
func (b *Book) SpineTitle(i int) string {
	if i < 0 || i >= len(b.Spine) {
		return ""
	}
	if t := b.Spine[i].Title; t != "" {
		return t
	}
	return "Chapter " + strconv.Itoa(i+1)
}

func (b *Book) warnf(format string, args ...any) {
	b.Warnings = append(b.Warnings, fmt.Sprintf(format, args...))
}

// tocFromNavPoints maps navigation points onto spine items. Entries that do
// not resolve are dropped and their children promoted; entries without a
// link take the target of their first resolvable descendant.
func (b *Book) tocFromNavPoints(points []NavPoint) []TocItem {
	var out []TocItem
	for _, np := range points {
		children := b.tocFromNavPoints(np.Children)

		idx, ok := -1, false
		fragment := np.Fragment
		if np.ContentPath != "" {
			idx, ok = b.SpineIndex(np.ContentPath)
		}
		if !ok && np.ContentPath == "" && len(children) > 0 {
			idx, ok = children[0].SpineIndex, true
			fragment = children[0].Fragment
		}
		if !ok || np.Label == "" {
			out = append(out, children...)
			continue
		}

		item := TocItem{
			Label:      np.Label,
			Href:       b.Spine[idx].Href,
			SpineIndex: idx,
			Fragment:   fragment,
			Children:   children,
		}
		if fragment != "" {
			item.Href += "#" + fragment
		}
		out = append(out, item)
	}
	return out
}

// synthesizeTOC builds a flat table of contents from spine item titles.
func (b *Book) synthesizeTOC() []TocItem {
	toc := make([]TocItem, 0, len(b.Spine))
	for _, si := range b.Spine {
		if !si.Linear {
			continue
		}
		toc = append(toc, TocItem{
			Label:      b.SpineTitle(si.Index),
			Href:       si.Href,
			SpineIndex: si.Index,
		})
	}
	return toc
}

// authorOf joins the names of the creators with the "aut" role, falling back
// to all creators when none is marked.
func authorOf(creators []Creator) string {
	var names, all []string
	for _, c := range creators {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		all = append(all, name)
		if c.Role == "aut" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		names = all
	}
	return strings.Join(names, ", ")
}

func opfDir(opfPath string) string {
	dir := path.Dir(opfPath)
	if dir == "." {
		return ""
	}
	return dir
}

// IsNotFound reports whether err is a missing archive entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFileNotFound)
}

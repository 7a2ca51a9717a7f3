package epub

// OPF represents the parsed Open Package Format document
type OPF struct {
	Version       string
	Metadata      Metadata
	Manifest      map[string]ManifestItem // id -> item
	ManifestOrder []string                // manifest ids in document order
	Spine         []SpineRef
	Guide         []GuideReference
	NCXPath       string
}

// Metadata represents the metadata section of the OPF
type Metadata struct {
	Title       string
	Creators    []Creator
	Language    string
	Identifier  string
	Publisher   string
	Date        string
	Description string
	Subjects    []string
	Rights      string
	CoverID     string // EPUB 2.0 cover image manifest item ID (from meta name="cover")
}

// Creator represents a creator (author, editor, etc.) of the book
type Creator struct {
	Name string
	Role string // e.g., "aut" for author, "edt" for editor
	Lang string // xml:lang attribute
}

// ManifestItem represents an item in the manifest
type ManifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties []string
}

// SpineRef represents an item reference in the spine
type SpineRef struct {
	IDRef  string
	Linear bool
}

// GuideReference represents an EPUB 2.0 guide reference
type GuideReference struct {
	Type  string
	Title string
	Href  string
}

// Book is a loaded publication. It is immutable once Load returns.
type Book struct {
	Title      string
	Author     string
	Metadata   Metadata
	Spine      []*SpineItem
	TOC        []TocItem
	TotalChars int
	Cover      *CoverInfo
	Warnings   []string

	archive *Archive
	opf     *OPF
}

// SpineItem is one document of the linear reading order.
type SpineItem struct {
	Index     int
	ID        string
	Href      string
	MediaType string
	Linear    bool
	Title     string
	CharCount int
	// Start is the number of characters in all preceding spine items.
	Start int
}

// TocItem is an entry of the table of contents tree.
type TocItem struct {
	Label      string
	Href       string // archive path, optionally with #fragment
	SpineIndex int
	Fragment   string
	Children   []TocItem
}

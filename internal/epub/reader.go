package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
)

const expectedMimetype = "application/epub+zip"

// Archive provides access to the files of an OCF container held in memory.
type Archive struct {
	zipReader *zip.Reader
	files     map[string]*zip.File
	lower     map[string]*zip.File
	opfPath   string
	warnings  []string
}

// container.xml structure
type container struct {
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

// OpenBytes opens an EPUB held in memory and locates its package document.
func OpenBytes(data []byte) (*Archive, error) {
	return NewArchive(bytes.NewReader(data), int64(len(data)))
}

// NewArchive opens an EPUB from r.
func NewArchive(r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, loadError(ReasonNotZip, err)
	}

	a := &Archive{
		zipReader: zr,
		files:     make(map[string]*zip.File, len(zr.File)),
		lower:     make(map[string]*zip.File, len(zr.File)),
	}

	// Build file map with normalized paths
	for _, f := range zr.File {
		name := normalizePath(f.Name)
		if _, ok := a.files[name]; !ok {
			a.files[name] = f
		}
		if _, ok := a.lower[strings.ToLower(name)]; !ok {
			a.lower[strings.ToLower(name)] = f
		}
	}

	a.validateMimetype()

	if err := a.parseContainer(); err != nil {
		return nil, loadError(ReasonMissingContainer, err)
	}

	return a, nil
}

// OPFPath returns the path to the OPF file
func (a *Archive) OPFPath() string {
	return a.opfPath
}

// Warnings returns non-fatal problems found while opening the archive.
func (a *Archive) Warnings() []string {
	return append([]string(nil), a.warnings...)
}

// Has reports whether the archive contains p.
func (a *Archive) Has(p string) bool {
	return a.lookup(p) != nil
}

// ReadFile reads the contents of a file from the archive. The lookup falls
// back to a case-insensitive match.
func (a *Archive) ReadFile(p string) ([]byte, error) {
	f := a.lookup(p)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, p)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", p, err)
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

func (a *Archive) lookup(p string) *zip.File {
	p = normalizePath(p)
	if f, ok := a.files[p]; ok {
		return f
	}
	return a.lower[strings.ToLower(p)]
}

// validateMimetype checks the mimetype entry. Deviations are recorded as
// warnings since many readers accept such files.
func (a *Archive) validateMimetype() {
	f, ok := a.files["mimetype"]
	if !ok {
		a.warnings = append(a.warnings, "mimetype file not found")
		return
	}
	if f.Method != zip.Store {
		a.warnings = append(a.warnings, "mimetype must not be compressed")
	}
	content, err := a.ReadFile("mimetype")
	if err != nil {
		a.warnings = append(a.warnings, fmt.Sprintf("failed to read mimetype: %v", err))
		return
	}
	if strings.TrimSpace(string(content)) != expectedMimetype {
		a.warnings = append(a.warnings, fmt.Sprintf("invalid mimetype: %q", string(content)))
	}
}

// parseContainer parses container.xml to extract OPF path
func (a *Archive) parseContainer() error {
	content, err := a.ReadFile("META-INF/container.xml")
	if err != nil {
		return ErrContainerNotFound
	}

	var c container
	if err := decodeXML(content, &c); err != nil {
		return fmt.Errorf("failed to parse container.xml: %w", err)
	}

	// Find the OPF file path
	for _, rf := range c.Rootfiles.Rootfile {
		if rf.FullPath == "" {
			continue
		}
		if rf.MediaType == "application/oebps-package+xml" || rf.MediaType == "" {
			a.opfPath = normalizePath(rf.FullPath)
			return nil
		}
	}

	// If no media-type match, use the first one
	for _, rf := range c.Rootfiles.Rootfile {
		if rf.FullPath != "" {
			a.opfPath = normalizePath(rf.FullPath)
			return nil
		}
	}

	return ErrOPFPathNotFound
}

// normalizePath normalizes archive paths (removes ./ and leading /)
func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	return p
}

// ResolvePath resolves a relative reference against the directory of base.
// Both are archive paths; the result is cleaned and slash separated.
func ResolvePath(base, rel string) string {
	dir := path.Dir(base)
	if dir == "." {
		dir = ""
	}
	return joinPath(dir, rel)
}

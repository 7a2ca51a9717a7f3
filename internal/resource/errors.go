package resource

import "fmt"

// ResourceError reports an asset a chapter references but that could not be
// served. It is recovered locally: the reference is replaced by a
// placeholder and the chapter still renders.
type ResourceError struct {
	Chapter string // archive path of the referencing document
	Ref     string // reference as written in the document
	Path    string // resolved archive path
	Err     error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource %q referenced from %s: %v", e.Ref, e.Chapter, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

package epub

import (
	"errors"
	"fmt"
)

// Load failure reasons reported by LoadError.
const (
	ReasonNotZip           = "not a zip"
	ReasonMissingContainer = "missing container"
	ReasonMalformedPackage = "malformed package"
)

var (
	ErrFileNotFound      = errors.New("file not found in archive")
	ErrContainerNotFound = errors.New("META-INF/container.xml not found")
	ErrOPFPathNotFound   = errors.New("OPF path not found in container.xml")
	ErrUnknownIDRef      = errors.New("spine references unknown manifest item")
	ErrEmptySpine        = errors.New("spine has no items")
)

// LoadError is a fatal failure while loading a book.
type LoadError struct {
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return "load error: " + e.Reason
	}
	return fmt.Sprintf("load error: %s: %v", e.Reason, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func loadError(reason string, err error) error {
	return &LoadError{Reason: reason, Err: err}
}

// IsLoadError reports whether err is a LoadError with the given reason.
func IsLoadError(err error, reason string) bool {
	var le *LoadError
	return errors.As(err, &le) && le.Reason == reason
}

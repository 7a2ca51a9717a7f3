package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/yuanying/epubreader/internal/progress"
	"github.com/yuanying/epubreader/internal/render"
	"github.com/yuanying/epubreader/internal/search"
)

// Options configures an Engine. The zero value is usable.
type Options struct {
	Viewport render.Viewport
	// WordsPerMinute is the reading speed used when none is given.
	WordsPerMinute int
	SnippetLength  int
	MaxResults     int
	// ProgressInterval is the minimum time between two progress callbacks.
	// Zero uses the default; a negative value disables throttling.
	ProgressInterval time.Duration
	// MaxImageWidth downscales wider images; negative disables it.
	MaxImageWidth int

	Logger *zap.Logger
	// Clock is used for throttling; tests may replace it.
	Clock func() time.Time
}

// DefaultOptions returns the options used for unset fields.
func DefaultOptions() Options {
	return Options{
		Viewport:         render.DefaultViewport,
		WordsPerMinute:   progress.DefaultWordsPerMinute,
		SnippetLength:    search.DefaultSnippetLength,
		MaxResults:       search.DefaultMaxResults,
		ProgressInterval: 100 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Viewport.Width <= 0 {
		o.Viewport.Width = d.Viewport.Width
	}
	if o.Viewport.Height <= 0 {
		o.Viewport.Height = d.Viewport.Height
	}
	if o.WordsPerMinute <= 0 {
		o.WordsPerMinute = d.WordsPerMinute
	}
	if o.SnippetLength <= 0 {
		o.SnippetLength = d.SnippetLength
	}
	if o.MaxResults <= 0 {
		o.MaxResults = d.MaxResults
	}
	if o.ProgressInterval == 0 {
		o.ProgressInterval = d.ProgressInterval
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Package progress derives reading progress and remaining reading time from
// character offsets.
package progress

import (
	"fmt"
	"math"
	"time"
)

const (
	// CharsPerWord is the average word length, including the following space.
	CharsPerWord = 5.5
	// DefaultWordsPerMinute is an average adult reading speed.
	DefaultWordsPerMinute = 250
)

// Estimate is the remaining reading effort at a position.
type Estimate struct {
	Percentage     float64       `json:"percentage"`
	RemainingChars int           `json:"remainingChars"`
	RemainingWords int           `json:"remainingWords"`
	RemainingTime  time.Duration `json:"remainingTime"`
}

// Percentage returns cumulative/total as a percentage clamped to [0, 100].
// An empty book is complete.
func Percentage(cumulative, total int) float64 {
	if total <= 0 {
		return 100
	}
	p := float64(cumulative) / float64(total) * 100
	return math.Max(0, math.Min(100, p))
}

// Cumulative returns the book-level offset of a chapter-level offset, given
// the chapter's start and length.
func Cumulative(chapterStart, chapterLen, offset int) int {
	if offset < 0 {
		offset = 0
	}
	if offset > chapterLen {
		offset = chapterLen
	}
	return chapterStart + offset
}

// OffsetAt returns the book-level offset at percentage pct.
func OffsetAt(pct float64, total int) int {
	if total <= 0 || math.IsNaN(pct) {
		return 0
	}
	pct = math.Max(0, math.Min(100, pct))
	return int(math.Round(pct / 100 * float64(total)))
}

// ReadingTime estimates the time needed to read remainingChars characters
// at wpm words per minute. Non-positive arguments fall back to defaults.
func ReadingTime(remainingChars int, charsPerWord float64, wpm int) Estimate {
	if remainingChars < 0 {
		remainingChars = 0
	}
	if charsPerWord <= 0 {
		charsPerWord = CharsPerWord
	}
	if wpm <= 0 {
		wpm = DefaultWordsPerMinute
	}
	words := int(math.Ceil(float64(remainingChars) / charsPerWord))
	minutes := float64(words) / float64(wpm)
	return Estimate{
		RemainingChars: remainingChars,
		RemainingWords: words,
		RemainingTime:  time.Duration(minutes * float64(time.Minute)).Round(time.Second),
	}
}

// At combines Percentage and ReadingTime for a book-level offset.
func At(cumulative, total, wpm int) Estimate {
	if cumulative > total {
		cumulative = total
	}
	e := ReadingTime(total-cumulative, CharsPerWord, wpm)
	e.Percentage = Percentage(cumulative, total)
	return e
}

// FormatDuration renders d for people: "45s", "12 min", "1 h 05 min".
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%d min", int(math.Round(d.Minutes())))
	}
	h := int(d.Hours())
	m := int(math.Round((d - time.Duration(h)*time.Hour).Minutes()))
	if m == 60 {
		h, m = h+1, 0
	}
	return fmt.Sprintf("%d h %02d min", h, m)
}

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yuanying/epubreader/internal/epub"
	"github.com/yuanying/epubreader/internal/progress"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <book.epub>",
		Short: "Print book metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd, args)
			if err != nil {
				return err
			}
			defer func() { _ = opts.Logger.Sync() }()

			e, _, err := openBook(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Destroy()

			printInfo(cmd.OutOrStdout(), e.Book(), opts.Config.Engine.WordsPerMinute)
			return nil
		},
	}
}

func printInfo(w io.Writer, b *epub.Book, wpm int) {
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(w, "%-12s%s\n", k+":", v)
		}
	}
	m := b.Metadata
	row("Title", b.Title)
	row("Author", b.Author)
	row("Language", m.Language)
	row("Identifier", m.Identifier)
	row("Publisher", m.Publisher)
	row("Date", m.Date)
	if len(m.Subjects) > 0 {
		row("Subjects", strings.Join(m.Subjects, ", "))
	}
	row("Chapters", fmt.Sprint(len(b.Spine)))
	row("Characters", fmt.Sprint(b.TotalChars))
	est := progress.At(0, b.TotalChars, wpm)
	row("Reading", fmt.Sprintf("%s at %d wpm", progress.FormatDuration(est.RemainingTime), wpm))
	if b.Cover != nil {
		row("Cover", b.Cover.Href)
	}
	for _, warn := range b.Warnings {
		row("Warning", warn)
	}
}

func newTOCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toc <book.epub>",
		Short: "Print the table of contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd, args)
			if err != nil {
				return err
			}
			defer func() { _ = opts.Logger.Sync() }()

			e, _, err := openBook(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Destroy()

			printTOC(cmd.OutOrStdout(), e.TableOfContents(), 0)
			return nil
		},
	}
}

func printTOC(w io.Writer, items []epub.TocItem, depth int) {
	for _, it := range items {
		fmt.Fprintf(w, "%s%s  [%d] %s\n", strings.Repeat("  ", depth), it.Label, it.SpineIndex, it.Href)
		printTOC(w, it.Children, depth+1)
	}
}

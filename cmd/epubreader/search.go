package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yuanying/epubreader/internal/cfi"
	"github.com/yuanying/epubreader/internal/progress"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <book.epub> <query>",
		Short: "Search the full text of a book",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd, args)
			if err != nil {
				return err
			}
			defer func() { _ = opts.Logger.Sync() }()

			if limit, _ := cmd.Flags().GetInt("max"); limit > 0 {
				opts.Config.Engine.MaxResults = limit
			} else if limit < 0 {
				return fmt.Errorf("invalid --max %d (must be positive)", limit)
			}

			e, _, err := openBook(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Destroy()

			query := strings.Join(args[1:], " ")
			matches, err := e.SearchInBook(cmd.Context(), query)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			w := cmd.OutOrStdout()
			book := e.Book()
			for _, m := range matches {
				fmt.Fprintf(w, "%s  %s\n    %s\n", m.Locator, book.SpineTitle(m.SpineIndex), m)
			}
			fmt.Fprintf(w, "%d matches for %q\n", len(matches), query)
			opts.Logger.Debug("search finished", zap.String("query", query), zap.Int("matches", len(matches)))
			return nil
		},
	}
	cmd.Flags().Int("max", 0, "Maximum number of matches (default from config)")
	return cmd
}

func newLocateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locate <book.epub> <percentage|epubcfi(...)>",
		Short: "Convert between reading percentages and CFI locators",
		Long: `locate resolves a reading position.

Given a percentage (e.g. 42 or 42%) it prints the CFI locator at that
point of the book. Given an epubcfi(...) locator it prints the reading
percentage and chapter at that position.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd, args)
			if err != nil {
				return err
			}
			defer func() { _ = opts.Logger.Sync() }()

			ctx := cmd.Context()
			target := strings.TrimSpace(args[1])
			var pct float64
			isCFI := strings.HasPrefix(target, "epubcfi(")
			if isCFI {
				if _, err := cfi.Parse(target); err != nil {
					return err
				}
			} else {
				pct, err = strconv.ParseFloat(strings.TrimSuffix(target, "%"), 64)
				if err != nil || pct < 0 || pct > 100 {
					return fmt.Errorf("invalid position %q (must be a percentage between 0 and 100 or an epubcfi locator)", target)
				}
			}

			e, _, err := openBook(ctx, opts)
			if err != nil {
				return err
			}
			defer e.Destroy()

			if isCFI {
				if !e.DisplayCFI(ctx, target) {
					return fmt.Errorf("locator %s does not resolve in this book", target)
				}
			} else if !e.RestoreToPercentage(ctx, pct) {
				return fmt.Errorf("cannot restore position %v%%", pct)
			}

			est := e.CalculateReadingTime(0)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Locator:    %s\n", e.CurrentCFI())
			fmt.Fprintf(w, "Progress:   %.2f%%\n", e.Progress())
			fmt.Fprintf(w, "Chapter:    %s\n", e.CurrentChapter())
			fmt.Fprintf(w, "Remaining:  %s\n", progress.FormatDuration(est.RemainingTime))
			return nil
		},
	}
}

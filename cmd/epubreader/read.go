package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yuanying/epubreader/internal/annotation"
	"github.com/yuanying/epubreader/internal/cfi"
	"github.com/yuanying/epubreader/internal/engine"
	"github.com/yuanying/epubreader/internal/progress"
	"github.com/yuanying/epubreader/internal/render"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	chapterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// Header and footer rows around the page.
const chromeRows = 3

type keyMap struct {
	Next        key.Binding
	Prev        key.Binding
	NextChapter key.Binding
	PrevChapter key.Binding
	Search      key.Binding
	NextMatch   key.Binding
	Bookmark    key.Binding
	Theme       key.Binding
	Bigger      key.Binding
	Smaller     key.Binding
	Quit        key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Next:        key.NewBinding(key.WithKeys("right", "l", " ", "pgdown"), key.WithHelp("→", "page")),
		Prev:        key.NewBinding(key.WithKeys("left", "h", "pgup"), key.WithHelp("←", "back")),
		NextChapter: key.NewBinding(key.WithKeys("n"), key.WithHelp("n/p", "chapter")),
		PrevChapter: key.NewBinding(key.WithKeys("p")),
		Search:      key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		NextMatch:   key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "next match")),
		Bookmark:    key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "bookmark")),
		Theme:       key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "theme")),
		Bigger:      key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+/-", "font")),
		Smaller:     key.NewBinding(key.WithKeys("-")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) help() string {
	var parts []string
	for _, b := range []key.Binding{k.Next, k.Prev, k.NextChapter, k.Search, k.NextMatch, k.Bookmark, k.Theme, k.Bigger, k.Quit} {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " • ")
}

var themeCycle = []string{render.ThemeLight, render.ThemeDark, render.ThemeSepia}

type searchResultMsg struct {
	query   string
	matches []engine.SearchMatch
	err     error
}

type readerModel struct {
	ctx     context.Context
	engine  *engine.Engine
	log     *zap.Logger
	keys    keyMap
	title   string
	width   int
	height  int
	input   textinput.Model
	typing  bool
	query   string
	matches []engine.SearchMatch
	match   int
	status  string
	err     error
}

func newReaderModel(ctx context.Context, e *engine.Engine, title string, log *zap.Logger) *readerModel {
	ti := textinput.New()
	ti.Prompt = "/"
	ti.Placeholder = "search"
	ti.Width = 40
	return &readerModel{
		ctx:    ctx,
		engine: e,
		log:    log,
		keys:   defaultKeyMap(),
		title:  title,
		input:  ti,
	}
}

func (m *readerModel) Init() tea.Cmd {
	return nil
}

// terminalViewport sizes the layout surface so that one line of body text
// fills one terminal row.
func terminalViewport(theme render.ThemeConfig, cols, rows int) render.Viewport {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return render.Viewport{
		Width:  float64(cols)*theme.CharWidth() + 2*theme.MarginHorizontal,
		Height: float64(rows)*theme.LineAdvance() + 2*theme.MarginVertical,
	}
}

func (m *readerModel) resize() {
	m.engine.SetViewport(terminalViewport(m.engine.Theme(), m.width, m.height-chromeRows))
}

func (m *readerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case searchResultMsg:
		if msg.err != nil {
			m.log.Warn("search failed", zap.String("query", msg.query), zap.Error(msg.err))
			m.err = msg.err
			return m, nil
		}
		m.query, m.matches = msg.query, msg.matches
		m.match = firstMatchFrom(m.matches, m.engine.CurrentCFI())
		if len(m.matches) == 0 {
			m.status = fmt.Sprintf("no matches for %q", msg.query)
			return m, nil
		}
		m.showMatch()
		return m, nil

	case tea.KeyMsg:
		if m.typing {
			return m.updateInput(msg)
		}
		m.status, m.err = "", nil
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Next):
			if !m.engine.NextPage(m.ctx) {
				m.status = "end of book"
			}
		case key.Matches(msg, m.keys.Prev):
			if !m.engine.PreviousPage(m.ctx) {
				m.status = "start of book"
			}
		case key.Matches(msg, m.keys.NextChapter):
			m.engine.NextChapter(m.ctx)
		case key.Matches(msg, m.keys.PrevChapter):
			m.engine.PreviousChapter(m.ctx)
		case key.Matches(msg, m.keys.Search):
			m.typing = true
			m.input.SetValue("")
			return m, m.input.Focus()
		case key.Matches(msg, m.keys.NextMatch):
			if len(m.matches) > 0 {
				m.match = (m.match + 1) % len(m.matches)
				m.showMatch()
			}
		case key.Matches(msg, m.keys.Bookmark):
			a, err := m.engine.AddAnnotation(engine.Annotation{
				Type:    annotation.Bookmark,
				Locator: m.engine.CurrentCFI(),
			})
			if err != nil {
				m.err = err
			} else {
				m.status = "bookmarked " + a.Locator
			}
		case key.Matches(msg, m.keys.Theme):
			th := m.engine.Theme()
			th.Theme = nextTheme(th.Theme)
			m.engine.SetTheme(th)
			m.status = "theme " + th.Theme
		case key.Matches(msg, m.keys.Bigger):
			m.setFontSize(m.engine.Theme().FontSize + 2)
		case key.Matches(msg, m.keys.Smaller):
			m.setFontSize(m.engine.Theme().FontSize - 2)
		}
	}
	return m, nil
}

func (m *readerModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.typing = false
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		m.typing = false
		m.input.Blur()
		query := strings.TrimSpace(m.input.Value())
		if query == "" {
			return m, nil
		}
		m.status = "searching..."
		return m, m.search(query)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *readerModel) search(query string) tea.Cmd {
	return func() tea.Msg {
		matches, err := m.engine.SearchInBook(m.ctx, query)
		return searchResultMsg{query: query, matches: matches, err: err}
	}
}

// firstMatchFrom returns the index of the first match at or after the
// locator at, wrapping to the first match of the book.
func firstMatchFrom(matches []engine.SearchMatch, at string) int {
	for i, hit := range matches {
		if c, err := cfi.CompareStrings(hit.Locator, at); err == nil && c >= 0 {
			return i
		}
	}
	return 0
}

func (m *readerModel) showMatch() {
	hit := m.matches[m.match]
	if !m.engine.NavigateToSearchResult(m.ctx, hit) {
		m.err = fmt.Errorf("cannot show match %d", m.match+1)
		return
	}
	m.status = fmt.Sprintf("match %d/%d: %s", m.match+1, len(m.matches), hit)
}

func (m *readerModel) setFontSize(size float64) {
	m.engine.SetFontSize(size)
	m.status = fmt.Sprintf("font %vpx", m.engine.Theme().FontSize)
}

func nextTheme(current string) string {
	for i, t := range themeCycle {
		if t == current {
			return themeCycle[(i+1)%len(themeCycle)]
		}
	}
	return themeCycle[0]
}

func (m *readerModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString(" ")
	b.WriteString(chapterStyle.Render(m.engine.CurrentChapter()))
	b.WriteString("\n")

	palette := m.engine.Theme().Palette()
	page := lipgloss.NewStyle().
		Foreground(lipgloss.Color(palette.Foreground)).
		Background(lipgloss.Color(palette.Background))
	lines := m.engine.VisibleText()
	rows := m.height - chromeRows
	if rows < 1 {
		rows = len(lines)
	}
	for i := 0; i < rows; i++ {
		line := ""
		if i < len(lines) {
			line = lines[i]
		}
		if m.width > 0 {
			line = page.Width(m.width).Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	est := m.engine.CalculateReadingTime(0)
	fmt.Fprintf(&b, "%5.1f%% • %s left", m.engine.Progress(), progress.FormatDuration(est.RemainingTime))
	switch {
	case m.typing:
		b.WriteString("  ")
		b.WriteString(m.input.View())
	case m.err != nil:
		b.WriteString("  ")
		b.WriteString(errorStyle.Render(m.err.Error()))
	case m.status != "":
		b.WriteString("  ")
		b.WriteString(statusStyle.Render(m.status))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.keys.help()))
	return b.String()
}

func loadAnnotations(path string) ([]engine.Annotation, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var list []engine.Annotation
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return list, nil
}

func saveAnnotations(path string, list []engine.Annotation) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func newReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <book.epub>",
		Short: "Read a book in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd, args)
			if err != nil {
				return err
			}
			defer func() { _ = opts.Logger.Sync() }()

			// The terminal view places text edge to edge.
			opts.Config.Theme.MarginHorizontal = 0
			opts.Config.Theme.MarginVertical = 0

			ctx := cmd.Context()
			e, info, err := openBook(ctx, opts)
			if err != nil {
				return err
			}
			defer e.Destroy()

			notesPath, _ := cmd.Flags().GetString("annotations")
			if notesPath != "" {
				list, err := loadAnnotations(notesPath)
				if err != nil {
					return err
				}
				if err := e.LoadAnnotations(list); err != nil {
					opts.Logger.Warn("some annotations were skipped", zap.Error(err))
				}
			}
			if at, _ := cmd.Flags().GetString("at"); at != "" && !e.DisplayCFI(ctx, at) {
				opts.Logger.Warn("start position does not resolve", zap.String("cfi", at))
			}
			e.OnChapterChange(func(title string) {
				opts.Logger.Debug("chapter changed", zap.String("title", title))
			})

			title := info.Title
			if title == "" {
				title = opts.Path
			}
			p := tea.NewProgram(newReaderModel(ctx, e, title, opts.Logger), tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := p.Run(); err != nil {
				return err
			}

			if notesPath != "" {
				if err := saveAnnotations(notesPath, e.Annotations()); err != nil {
					return fmt.Errorf("save annotations: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped at %s (%.1f%%)\n", e.CurrentCFI(), e.Progress())
			return nil
		},
	}
	cmd.Flags().String("at", "", "Start at this epubcfi(...) locator")
	cmd.Flags().String("annotations", "", "JSON file to load and save bookmarks and highlights")
	return cmd
}

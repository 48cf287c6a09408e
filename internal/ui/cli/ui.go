package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"stubindex/internal/core/ports"
	"stubindex/internal/engine/index"
)

const maxRecentChanges = 8

var docStyle = lipgloss.NewStyle().Margin(1, 2)

type lookupFunc func(ctx context.Context, id index.ID, key string) ([]string, error)

type item struct {
	title, desc string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title }

// model is the watch-mode terminal UI: a lookup prompt over the live index
// and a log of the latest change batches.
type model struct {
	input   textinput.Model
	results list.Model
	lookup  lookupFunc

	changes    []ports.ScanResult
	lastUpdate time.Time
	status     string
}

type changeMsg struct {
	result ports.ScanResult
}

type lookupResultMsg struct {
	query string
	files []string
	err   error
}

func initialModel(lookup lookupFunc, initial ports.ScanResult) model {
	input := textinput.New()
	input.Placeholder = "ClassShortName:MyClass"
	input.Prompt = "lookup> "
	input.Focus()

	results := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	results.Title = "Results"
	results.SetShowHelp(false)

	m := model{input: input, results: results, lookup: lookup}
	if initial.RunID != "" {
		m.changes = []ports.ScanResult{initial}
		m.lastUpdate = time.Now()
	}
	return m
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m, m.runLookup(strings.TrimSpace(m.input.Value()))
		case tea.KeyUp, tea.KeyDown, tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.results, cmd = m.results.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		height := msg.Height - v - maxRecentChanges - 6
		if height < 5 {
			height = 5
		}
		m.results.SetSize(msg.Width-h, height)

	case changeMsg:
		m.changes = append([]ports.ScanResult{msg.result}, m.changes...)
		if len(m.changes) > maxRecentChanges {
			m.changes = m.changes[:maxRecentChanges]
		}
		m.lastUpdate = time.Now()

	case lookupResultMsg:
		if msg.err != nil {
			m.status = warnStyle.Render(msg.err.Error())
			m.results.SetItems(nil)
			return m, nil
		}
		items := make([]list.Item, 0, len(msg.files))
		for _, f := range msg.files {
			items = append(items, item{title: f, desc: msg.query})
		}
		m.results.SetItems(items)
		m.status = statusStyle.Render(fmt.Sprintf("%d files for %s", len(msg.files), msg.query))
	}
	return m, nil
}

// runLookup parses "<INDEX>:<KEY>" and queries the index off the UI loop.
func (m model) runLookup(query string) tea.Cmd {
	if query == "" || m.lookup == nil {
		return nil
	}
	lookup := m.lookup
	return func() tea.Msg {
		id, key, err := parseIndexArg(query, true)
		if err != nil {
			return lookupResultMsg{query: query, err: err}
		}
		files, err := lookup(context.Background(), id, key)
		return lookupResultMsg{query: query, files: files, err: err}
	}
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("stubindex watch"))
	if !m.lastUpdate.IsZero() {
		b.WriteString(statusStyle.Render("  last update " + m.lastUpdate.Format(time.TimeOnly)))
	}
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(m.status)
		b.WriteString("\n")
	}
	b.WriteString(m.results.View())
	b.WriteString("\n")

	b.WriteString(titleStyle.Render("Recent changes"))
	b.WriteString("\n")
	if len(m.changes) == 0 {
		b.WriteString(statusStyle.Render("waiting for changes"))
		b.WriteString("\n")
	}
	for _, c := range m.changes {
		line := fmt.Sprintf("%s  indexed %d  unchanged %d  occurrences %d", shortRunID(c.RunID), c.Files, c.Skipped, c.Occurrences)
		if c.Malformed > 0 || len(c.Warnings) > 0 {
			line = warnStyle.Render(fmt.Sprintf("%s  malformed %d  warnings %d", line, c.Malformed, len(c.Warnings)))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(statusStyle.Render("enter: lookup  up/down: scroll  esc: quit"))
	return docStyle.Render(b.String())
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runUI(app indexApp, initial ports.ScanResult) error {
	p := tea.NewProgram(initialModel(app.Lookup, initial), tea.WithAltScreen())
	app.SetChangeHandler(func(result ports.ScanResult) {
		p.Send(changeMsg{result: result})
	})
	defer app.SetChangeHandler(nil)

	_, err := p.Run()
	return err
}

package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sunholo/ailang/internal/verify"
)

// styles follows the common lipgloss convention of one package-level
// palette reused across every render call, rather than building styles
// inline per frame.
var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
	selStyle    = lipgloss.NewStyle().Reverse(true)
)

// Model is a bubbletea full-screen view over a verify.RunResult: a
// selectable atom list on the left, the selected atom's reports in a
// scrollable viewport on the right. Entered via `mumei inspect --full`
// as an alternative to the liner-based Inspector.
type Model struct {
	run      verify.RunResult
	byName   map[string]verify.Result
	names    []string
	selected int

	detail viewport.Model
	width  int
	height int
	ready  bool
}

// NewModel builds the full-screen Model for run.
func NewModel(run verify.RunResult) Model {
	m := Model{
		run:    run,
		byName: make(map[string]verify.Result, len(run.Results)),
	}
	for _, r := range run.Results {
		m.byName[r.AtomName] = r
		m.names = append(m.names, r.AtomName)
	}
	sort.Strings(m.names)
	return m
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		listWidth := m.width / 3
		if !m.ready {
			m.detail = viewport.New(m.width-listWidth-4, m.height-4)
			m.ready = true
		} else {
			m.detail.Width = m.width - listWidth - 4
			m.detail.Height = m.height - 4
		}
		m.detail.SetContent(m.renderDetail())
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "j", "down":
			m.move(1)
		case "k", "up":
			m.move(-1)
		}
	}
	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

func (m *Model) move(delta int) {
	if len(m.names) == 0 {
		return
	}
	m.selected = (m.selected + delta + len(m.names)) % len(m.names)
	m.detail.SetContent(m.renderDetail())
	m.detail.GotoTop()
}

func (m Model) View() string {
	if !m.ready {
		return "loading...\n"
	}
	listWidth := m.width / 3
	list := lipgloss.NewStyle().Width(listWidth).Render(m.renderList())
	detail := lipgloss.NewStyle().Width(m.width - listWidth - 2).Render(m.detail.View())
	body := lipgloss.JoinHorizontal(lipgloss.Top, list, detail)
	footer := mutedStyle.Render("j/k: move  q: quit")
	return lipgloss.JoinVertical(lipgloss.Left, m.renderSummary(), body, footer)
}

func (m Model) renderSummary() string {
	passed, failed := 0, 0
	for _, r := range m.run.Results {
		if r.Passed {
			passed++
		} else {
			failed++
		}
	}
	status := okStyle.Render("PASSED")
	if !m.run.Passed {
		status = failStyle.Render("FAILED")
	}
	return headerStyle.Render(fmt.Sprintf("%s  %d atoms, %d passed, %d failed", status, len(m.run.Results), passed, failed))
}

func (m Model) renderList() string {
	var b strings.Builder
	for i, name := range m.names {
		r := m.byName[name]
		marker := okStyle.Render("ok")
		if !r.Passed {
			marker = failStyle.Render("FAIL")
		}
		line := fmt.Sprintf("%-24s %s", truncate(name, 24), marker)
		if i == m.selected {
			line = selStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderDetail() string {
	if len(m.names) == 0 {
		return mutedStyle.Render("no atoms in this run")
	}
	r := m.byName[m.names[m.selected]]
	var b strings.Builder
	b.WriteString(headerStyle.Render(r.AtomName))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(r.Duration.String()))
	b.WriteString("\n\n")
	if len(r.Reports) == 0 {
		b.WriteString(mutedStyle.Render("no reports"))
		return b.String()
	}
	for _, rep := range r.Reports {
		marker := failStyle.Render("x")
		if rep.Warning {
			marker = warnStyle.Render("!")
		}
		b.WriteString(fmt.Sprintf("%s [%s/%s] %s\n", marker, rep.Phase, rep.Code, rep.Message))
		if rep.Counterexample != nil {
			keys := make([]string, 0, len(rep.Counterexample))
			for k := range rep.Counterexample {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				b.WriteString(fmt.Sprintf("    %s = %v\n", k, rep.Counterexample[k]))
			}
		}
	}
	return b.String()
}

func truncate(s string, l int) string {
	if len(s) > l {
		return s[:l-3] + "..."
	}
	return s
}

// Run starts the bubbletea program for run and blocks until the user quits.
func Run(run verify.RunResult) error {
	p := tea.NewProgram(NewModel(run), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

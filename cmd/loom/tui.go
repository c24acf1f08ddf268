package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type result struct {
	file string
	err  error
}

type closedMsg struct{}

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Faint(true)
)

// reportPlain is the line based fallback used when stdout is not a
// terminal.
func reportPlain(w io.Writer, total int, results <-chan result) int {
	var done, failed int
	for r := range results {
		done++
		if r.err != nil {
			failed++
			fmt.Fprintf(w, "[%d/%d] %s %s: %s\n", done, total, failStyle.Render("fail"), r.file, r.err)
			continue
		}
		fmt.Fprintf(w, "[%d/%d] %s %s\n", done, total, okStyle.Render("ok"), r.file)
	}
	return failed
}

type batchModel struct {
	results <-chan result

	bar    progress.Model
	total  int
	done   int
	failed int
	last   string
	errs   []string
}

func newBatchModel(total int, results <-chan result) batchModel {
	return batchModel{
		results: results,
		bar:     progress.New(progress.WithDefaultGradient()),
		total:   total,
	}
}

func runProgress(total int, results <-chan result) (int, error) {
	out, err := tea.NewProgram(newBatchModel(total, results)).Run()
	if err != nil {
		return 0, err
	}
	final := out.(batchModel)
	// the user may quit before the workers are done; keep counting
	// what is left so the exit status stays truthful
	for r := range results {
		final.done++
		if r.err != nil {
			final.failed++
		}
	}
	return final.failed, nil
}

func waitResult(ch <-chan result) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return r
	}
}

func (m batchModel) Init() tea.Cmd {
	return waitResult(m.results)
}

func (m batchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-8, 60)
	case result:
		m.done++
		m.last = msg.file
		if msg.err != nil {
			m.failed++
			if len(m.errs) < 5 {
				m.errs = append(m.errs, fmt.Sprintf("%s: %s", msg.file, msg.err))
			}
		}
		return m, waitResult(m.results)
	case closedMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m batchModel) View() string {
	var (
		str  strings.Builder
		frac float64
	)
	if m.total > 0 {
		frac = float64(m.done) / float64(m.total)
	}
	fmt.Fprintf(&str, "transforming %d/%d", m.done, m.total)
	if m.failed > 0 {
		str.WriteString("  ")
		str.WriteString(failStyle.Render(fmt.Sprintf("%d failed", m.failed)))
	}
	str.WriteString("\n")
	str.WriteString(m.bar.ViewAs(frac))
	str.WriteString("\n")
	if m.last != "" {
		str.WriteString(dimStyle.Render(m.last))
		str.WriteString("\n")
	}
	for _, e := range m.errs {
		str.WriteString(failStyle.Render("! "))
		str.WriteString(e)
		str.WriteString("\n")
	}
	return str.String()
}

// Package tui renders ensemble progress in the terminal.
package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"secuer/internal/domain"
	"secuer/internal/ensemble"
)

// maxLines bounds the run history shown under the bar.
const maxLines = 8

// RunMsg reports one finished ensemble run.
type RunMsg domain.RunOutcome

// DoneMsg ends the program once the pipeline returns.
type DoneMsg struct {
	Err error
}

// Model is the Bubble Tea model of the progress view.
type Model struct {
	bar      progress.Model
	total    int
	done     int
	failed   int
	lines    []string
	err      error
	finished bool
}

// New creates a progress view for total runs.
func New(total int) Model {
	return Model{bar: progress.New(progress.WithDefaultGradient()), total: total}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		_, fw := frameStyle.GetFrameSize()
		m.bar.Width = max(10, min(msg.Width-fw-4, 80))
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	case RunMsg:
		m.done++
		var line string
		if msg.Err != nil {
			m.failed++
			line = failStyle.Render(fmt.Sprintf("run %d (seed %d) failed: %v", msg.Index+1, msg.Seed, msg.Err))
		} else {
			line = okStyle.Render(fmt.Sprintf("run %d (seed %d): %d clusters", msg.Index+1, msg.Seed, msg.Clusters))
		}
		m.lines = append(m.lines, line)
		if len(m.lines) > maxLines {
			m.lines = m.lines[len(m.lines)-maxLines:]
		}
		return m, nil
	case DoneMsg:
		m.finished = true
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

// Percent returns the finished share of runs.
func (m Model) Percent() float64 {
	if m.total <= 0 {
		return 1
	}
	return float64(m.done) / float64(m.total)
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Secuer consensus"))
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(m.Percent()))
	b.WriteString("\n")
	status := fmt.Sprintf("%d/%d runs", m.done, m.total)
	if m.failed > 0 {
		status += fmt.Sprintf(", %d failed", m.failed)
	}
	b.WriteString(statusStyle.Render(status))
	if len(m.lines) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(m.lines, "\n"))
	}
	if m.finished {
		b.WriteString("\n")
		if m.err != nil {
			b.WriteString(failStyle.Render("error: " + m.err.Error()))
		} else {
			b.WriteString(okStyle.Render("building consensus finished"))
		}
	}
	return frameStyle.Render(b.String()) + "\n"
}

var (
	frameStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// Run shows the progress view on out while work executes. work receives the
// observer to hand to the ensemble coordinator; its error is returned.
func Run(out io.Writer, total int, work func(ensemble.Observer) error) error {
	p := tea.NewProgram(New(total), tea.WithOutput(out), tea.WithInput(nil))
	observer := func(o domain.RunOutcome) { p.Send(RunMsg(o)) }

	result := make(chan error, 1)
	go func() {
		err := work(observer)
		result <- err
		p.Send(DoneMsg{Err: err})
	}()
	_, viewErr := p.Run()
	if err := <-result; err != nil {
		return err
	}
	if viewErr != nil {
		return fmt.Errorf("progress view: %w", viewErr)
	}
	return nil
}

package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/plug/metrics"
)

// pollInterval is how often the running-task list is refreshed.
const pollInterval = 100 * time.Millisecond

// Source is what the progress view observes.
type Source struct {
	// Running returns the names of the tasks currently running.
	Running func() []string
	// Snapshot returns the build metrics.
	Snapshot func() metrics.Snapshot
}

type pollMsg struct{}

// DoneMsg ends the view with the build outcome.
type DoneMsg struct {
	Err error
}

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "cancel"),
	),
}

// ProgressModel is a Bubble Tea model showing the running tasks.
type ProgressModel struct {
	source  Source
	spinner spinner.Model
	title   string
	tasks   []string

	done     bool
	err      error
	final    metrics.Snapshot
	quitting bool
}

// NewProgressModel creates a progress model titled after the requested
// tasks.
func NewProgressModel(title string, source Source) ProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = TaskStyle
	return ProgressModel{source: source, spinner: s, title: title}
}

// Init implements tea.Model.
func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, poll())
}

func poll() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg { return pollMsg{} })
}

// Update implements tea.Model.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		m.tasks = nil
		if m.source.Snapshot != nil {
			m.final = m.source.Snapshot()
		}
		return m, tea.Quit

	case pollMsg:
		if m.done {
			return m, nil
		}
		if m.source.Running != nil {
			m.tasks = m.source.Running()
		}
		return m, poll()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// Canceled reports whether the user quit before the build finished.
func (m ProgressModel) Canceled() bool {
	return m.quitting && !m.done
}

// View implements tea.Model.
func (m ProgressModel) View() string {
	if m.quitting && !m.done {
		return MutedStyle.Render("canceling...") + "\n"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(m.title))
	b.WriteString("\n")

	if m.done {
		b.WriteString(m.renderSummary())
		b.WriteString("\n")
		return b.String()
	}

	if len(m.tasks) == 0 {
		b.WriteString(m.spinner.View() + " " + MutedStyle.Render("starting"))
	} else {
		b.WriteString(m.spinner.View() + " " + TaskStyle.Render(strings.Join(m.tasks, ", ")))
	}
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("Press q or Ctrl+C to cancel"))
	return b.String()
}

func (m ProgressModel) renderSummary() string {
	status := SuccessStyle.Render("build succeeded")
	if m.err != nil {
		status = ErrorStyle.Render("build failed")
	}

	boxes := []string{
		renderStatBox("Tasks", m.final.TasksCompleted, successColor),
		renderStatBox("Failed", m.final.TasksFailed, errorColor),
		renderStatBox("Stages", m.final.StagesRun, highlightColor),
		renderStatBox("Forks", m.final.ForkLaunchSuccess, warningColor),
	}
	return status + "\n" + lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

func renderStatBox(label string, value int64, color lipgloss.Color) string {
	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)
	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)
	return StatBoxStyle.BorderForeground(color).Render(content)
}

// RunProgress runs work while showing the progress view on out. Quitting
// the view cancels work's context; RunProgress always waits for work and
// returns its error.
func RunProgress(ctx context.Context, out io.Writer, title string, source Source, work func(ctx context.Context) error, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts = append([]tea.ProgramOption{
		tea.WithContext(ctx),
		tea.WithOutput(out),
		tea.WithoutSignalHandler(),
	}, opts...)
	p := tea.NewProgram(NewProgressModel(title, source), opts...)

	result := make(chan error, 1)
	go func() {
		err := work(ctx)
		result <- err
		p.Send(DoneMsg{Err: err})
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		cancel()
		<-result
		return fmt.Errorf("progress view: %w", err)
	}
	cancel()
	return <-result
}

// Package tui is an interactive terminal view of running uploads.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gelecek/folder-uploader/internal/model"
	"github.com/gelecek/folder-uploader/internal/service"
)

const (
	defaultLogLines = 200
	title           = "Gelecek Folder Uploader"
)

type Config struct {
	Interval  time.Duration
	LogLines  int
	Queue     []model.JobConfig // launched one by one with n
	Autostart bool              // launch the whole queue on start
	Grace     time.Duration     // wait for stopped jobs on exit
}

// Run shows the view until the user quits. The registry is owned by the view
// while Run is active. On exit all jobs are cancelled and drained.
func Run(ctx context.Context, registry *service.Registry, buffer *LogBuffer, cfg Config) error {
	m := New(ctx, registry, buffer, cfg)
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		err = nil
	}
	return errors.Join(err, drain(context.WithoutCancel(ctx), registry, cfg))
}

func drain(ctx context.Context, registry *service.Registry, cfg Config) error {
	if registry.ActiveCount() > 0 {
		registry.CancelAll(ctx)
	}
	deadline := time.Now().Add(cfg.Grace)
	for registry.Poll(ctx).Continue {
		if time.Now().After(deadline) {
			err := registry.Close(ctx)
			registry.Poll(ctx)
			return err
		}
		time.Sleep(cfg.Interval)
	}
	return nil
}

// LogBuffer keeps the last formatted log lines. It implements
// service.Observer.
type LogBuffer struct {
	max   int
	lines []string
}

func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = defaultLogLines
	}
	return &LogBuffer{max: size}
}

func (b *LogBuffer) Line(e service.Entry) {
	t := e.Time
	if t.IsZero() {
		t = time.Now()
	}
	b.add(fmt.Sprintf("[%s] %s", t.Format(time.TimeOnly), e.Format()))
}

func (b *LogBuffer) Idle() {
	b.add(fmt.Sprintf("[%s] %s", time.Now().Format(time.TimeOnly), service.IdleMessage))
}

func (b *LogBuffer) add(line string) {
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		b.lines = append([]string(nil), b.lines[len(b.lines)-b.max:]...)
	}
}

func (b *LogBuffer) Lines() []string {
	return b.lines
}

func (b *LogBuffer) Clear() {
	b.lines = nil
	b.add(fmt.Sprintf("[%s] Log cleared", time.Now().Format(time.TimeOnly)))
}

type tickMsg struct{}

type Model struct {
	ctx      context.Context
	registry *service.Registry
	buffer   *LogBuffer
	interval time.Duration
	queue    []model.JobConfig
	auto     bool

	jobs     []service.JobView
	result   service.PollResult
	busy     bool
	selected int
	status   string
	width    int
	height   int
	quitting bool
}

// New returns the view model. buffer must be the observer of registry.
func New(ctx context.Context, registry *service.Registry, buffer *LogBuffer, cfg Config) Model {
	if cfg.Interval <= 0 {
		cfg.Interval = model.DefaultPollInterval
	}
	return Model{
		ctx:      ctx,
		registry: registry,
		buffer:   buffer,
		interval: cfg.Interval,
		queue:    append([]model.JobConfig(nil), cfg.Queue...),
		auto:     cfg.Autostart,
		status:   "Ready",
	}
}

func (m Model) Init() tea.Cmd {
	if m.auto {
		return func() tea.Msg { return launchAllMsg{} }
	}
	return m.tickCmd()
}

type launchAllMsg struct{}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case launchAllMsg:
		for len(m.queue) > 0 {
			m = m.launchNext()
		}
		return m, m.tickCmd()
	case tickMsg:
		m = m.poll()
		return m, m.tickCmd()
	case tea.KeyMsg:
		return m.updateKey(msg)
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		if m.registry.ActiveCount() > 0 {
			m.registry.CancelAll(m.ctx)
		}
		m.quitting = true
		return m, tea.Quit
	case "n":
		if len(m.queue) == 0 {
			m.status = "No queued folders"
			return m, nil
		}
		m = m.launchNext()
	case "s":
		if m.selected >= len(m.jobs) {
			return m, nil
		}
		id := m.jobs[m.selected].ID
		err := m.registry.Cancel(m.ctx, id)
		switch {
		case err == nil:
			m.status = "Upload stopped"
		case errors.Is(err, model.ErrCancelNoOp):
			slog.InfoContext(m.ctx, "cancel ignored", "job_id", id, "reason", err)
		default:
			m.status = err.Error()
		}
	case "S":
		if n := m.registry.CancelAll(m.ctx); n > 0 {
			m.status = "Upload stopped"
		}
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.jobs)-1 {
			m.selected++
		}
	case "c":
		m.buffer.Clear()
	}
	m.refresh()
	return m, nil
}

// refresh reads the registry without polling it
func (m *Model) refresh() {
	m.jobs = m.registry.Snapshot()
	m.result = service.PollResult{
		Active:   m.registry.ActiveCount(),
		Tracked:  m.registry.Len(),
		Continue: m.registry.Len() > 0,
	}
	m.clampSelection()
}

func (m Model) launchNext() Model {
	cfg := m.queue[0]
	m.queue = m.queue[1:]
	if _, err := m.registry.Spawn(m.ctx, cfg); err != nil {
		m.buffer.Line(service.Entry{Folder: cfg.Folder, Kind: service.EntryError, Text: err.Error()})
		m.status = "Error: " + err.Error()
		return m
	}
	m.busy = true
	m.refresh()
	m.status = progress(m.result, m.jobs)
	return m
}

func (m Model) poll() Model {
	m.result = m.registry.Poll(m.ctx)
	m.jobs = m.registry.Snapshot()
	m.clampSelection()
	switch {
	case m.result.Continue:
		m.status = progress(m.result, m.jobs)
	case m.busy:
		m.busy = false
		m.status = "Ready"
		m.buffer.Idle()
	}
	return m
}

// progress is the status line while jobs are tracked
func progress(res service.PollResult, jobs []service.JobView) string {
	if res.Active > 0 {
		return fmt.Sprintf("%d job(s) running...", res.Active)
	}
	for _, j := range jobs {
		if j.Status.State == model.StateStopped {
			return "Stopping..."
		}
	}
	return "Finishing..."
}

func (m *Model) clampSelection() {
	if m.selected >= len(m.jobs) {
		m.selected = max(0, len(m.jobs)-1)
	}
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7dd3fc"))
	paneStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#475569")).Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f8fafc")).Background(lipgloss.Color("#334155"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#94a3b8"))
	stateStyles   = map[model.State]lipgloss.Style{
		model.StateRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("#38bdf8")),
		model.StateSucceeded: lipgloss.NewStyle().Foreground(lipgloss.Color("#4ade80")),
		model.StateFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("#f87171")),
		model.StateError:     lipgloss.NewStyle().Foreground(lipgloss.Color("#f87171")).Bold(true),
		model.StateStopped:   lipgloss.NewStyle().Foreground(lipgloss.Color("#fbbf24")),
	}
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	width := m.width
	if width <= 0 {
		width = 100
	}
	height := m.height
	if height <= 0 {
		height = 30
	}

	jobs := m.renderJobs()
	jobsHeight := lipgloss.Height(jobs)
	logHeight := max(3, height-jobsHeight-6)

	parts := []string{
		titleStyle.Render(title),
		paneStyle.Width(width - 2).Render(jobs),
		paneStyle.Width(width - 2).Render(m.renderLogs(logHeight)),
		m.status,
		mutedStyle.Render(fmt.Sprintf("n: next folder (%d queued) | s: stop selected | S: stop all | c: clear log | q: quit", len(m.queue))),
	}
	return strings.Join(parts, "\n")
}

func (m Model) renderJobs() string {
	if len(m.jobs) == 0 {
		return mutedStyle.Render("No upload jobs")
	}
	rows := make([]string, 0, len(m.jobs))
	for i, j := range m.jobs {
		state := strings.ToUpper(j.Status.String())
		if style, ok := stateStyles[j.Status.State]; ok {
			state = style.Render(state)
		}
		line := fmt.Sprintf("[%d] %s | List: %s | %s | %d line(s)", j.ID, filepath.Base(j.Folder), j.ListID, state, j.Lines)
		if i == m.selected {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		rows = append(rows, line)
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderLogs(height int) string {
	lines := m.buffer.Lines()
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	return strings.Join(lines, "\n")
}

package tui

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gelecek/folder-uploader/internal/model"
	"github.com/gelecek/folder-uploader/internal/service"
	"github.com/stretchr/testify/require"
)

const fakeUploader = `
while [ $# -gt 0 ]; do
  if [ "$1" = "--source" ]; then src="$2"; fi
  shift
done
case "$(basename "$src")" in
  a) echo one; echo two; exit 0 ;;
  *) echo started; exec sleep 30 ;;
esac
`

func newRegistry(t *testing.T, buffer *LogBuffer) *service.Registry {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}
	script := filepath.Join(t.TempDir(), service.ScriptName)
	require.NoError(t, os.WriteFile(script, []byte(fakeUploader), 0o755))
	r := service.NewRegistry(service.Command{Interpreter: sh, Script: script}, service.WithObserver(buffer))
	t.Cleanup(func() {
		require.NoError(t, drain(context.Background(), r, Config{Interval: 10 * time.Millisecond, Grace: 5 * time.Second}))
	})
	return r
}

func folder(t *testing.T, name string) model.JobConfig {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.Mkdir(dir, 0o755))
	return model.JobConfig{Folder: dir, ListID: "list-" + name}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	got, ok := next.(Model)
	require.True(t, ok)
	return got, cmd
}

func tickUntil(t *testing.T, m Model, cond func(Model) bool) Model {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		time.Sleep(10 * time.Millisecond)
		m, _ = update(t, m, tickMsg{})
		if cond(m) {
			return m
		}
		if time.Now().After(deadline) {
			require.FailNow(t, "condition not met", "view:\n%s", m.View())
		}
	}
}

func TestModel(t *testing.T) {
	buffer := NewLogBuffer(50)
	r := newRegistry(t, buffer)
	a, slow := folder(t, "a"), folder(t, "slow")
	m := New(t.Context(), r, buffer, Config{Interval: 10 * time.Millisecond, Queue: []model.JobConfig{a, slow}})
	require.NotNil(t, m.Init())
	require.Contains(t, m.View(), "No upload jobs")
	require.Contains(t, m.View(), "(2 queued)")

	m, _ = update(t, m, key("n"))
	require.Len(t, m.jobs, 1)
	require.Equal(t, "1 job(s) running...", m.status)
	require.Equal(t, service.PollResult{Active: 1, Tracked: 1, Continue: true}, m.result)

	m = tickUntil(t, m, func(m Model) bool { return m.result.Active == 0 })
	require.Contains(t, m.View(), "SUCCEEDED")
	require.Contains(t, m.View(), "a] two")

	m, _ = update(t, m, key("n"))
	m = tickUntil(t, m, func(m Model) bool { return len(m.jobs) == 1 && m.jobs[0].Lines == 1 })
	require.Contains(t, m.View(), "List: list-slow")

	m, _ = update(t, m, key("up"))
	require.Zero(t, m.selected)
	m, _ = update(t, m, key("s"))
	require.Equal(t, "Upload stopped", m.status)
	require.Equal(t, model.Stopped(), m.jobs[0].Status)
	require.Zero(t, m.result.Active)

	m = tickUntil(t, m, func(m Model) bool { return !m.result.Continue })
	require.Equal(t, "Ready", m.status)
	require.True(t, strings.HasSuffix(buffer.Lines()[len(buffer.Lines())-1], service.IdleMessage))

	m, _ = update(t, m, key("n"))
	require.Equal(t, "No queued folders", m.status)

	m, _ = update(t, m, key("c"))
	require.Len(t, buffer.Lines(), 1)
	require.Contains(t, buffer.Lines()[0], "Log cleared")

	m, cmd := update(t, m, key("q"))
	require.True(t, m.quitting)
	require.Empty(t, m.View())
	require.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_Autostart(t *testing.T) {
	buffer := NewLogBuffer(50)
	r := newRegistry(t, buffer)
	m := New(t.Context(), r, buffer, Config{
		Interval:  10 * time.Millisecond,
		Queue:     []model.JobConfig{folder(t, "slow"), folder(t, "slow"), {Folder: ""}},
		Autostart: true,
	})
	msg := m.Init()()
	m, _ = update(t, m, msg)
	require.Len(t, m.jobs, 2)
	require.Empty(t, m.queue)
	require.True(t, strings.HasPrefix(m.status, "Error: "))

	m, _ = update(t, m, key("down"))
	require.Equal(t, 1, m.selected)
	m, _ = update(t, m, key("down"))
	require.Equal(t, 1, m.selected)

	m, cmd := update(t, m, key("ctrl+c"))
	require.NotNil(t, cmd)
	require.Zero(t, r.ActiveCount(), "quit cancels running jobs")
}

func TestProgress(t *testing.T) {
	type given struct {
		result service.PollResult
		jobs   []service.JobView
	}
	cases := []struct {
		scenario string
		given    given
		then     string
	}{
		{
			"running",
			given{service.PollResult{Active: 2, Tracked: 3, Continue: true}, nil},
			"2 job(s) running...",
		},
		{
			"stopped job not drained",
			given{service.PollResult{Tracked: 2, Continue: true}, []service.JobView{{Status: model.Succeeded()}, {Status: model.Stopped()}}},
			"Stopping...",
		},
		{
			"finished job not pruned",
			given{service.PollResult{Tracked: 1, Continue: true}, []service.JobView{{Status: model.Failed(1)}}},
			"Finishing...",
		},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			require.Equal(t, tc.then, progress(tc.given.result, tc.given.jobs))
		})
	}
}

func TestLogBuffer(t *testing.T) {
	b := NewLogBuffer(2)
	for _, text := range []string{"1", "2", "3"} {
		b.Line(service.Entry{Time: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), Folder: "/a", Kind: service.EntryOutput, Text: text})
	}
	require.Equal(t, []string{"[10:00:00] [/a] 2", "[10:00:00] [/a] 3"}, b.Lines())
}

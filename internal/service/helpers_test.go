package service_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gelecek/folder-uploader/internal/model"
	"github.com/gelecek/folder-uploader/internal/service"
	"github.com/stretchr/testify/require"
)

// fakeUploader behaves according to the basename of the --source folder
const fakeUploader = `
while [ $# -gt 0 ]; do
  if [ "$1" = "--source" ]; then src="$2"; fi
  shift
done
case "$(basename "$src")" in
  a) echo one; echo two; echo three; exit 0 ;;
  b) echo "upload broken" >&2; exit 1 ;;
  mixed) echo out1; echo err1 >&2; echo out2; exit 0 ;;
  pwd) pwd; exit 0 ;;
  slow) echo started; exec sleep 30 ;;
  detached) echo hi; (sleep 3) & exit 0 ;;
  *) echo "unknown source $src" >&2; exit 2 ;;
esac
`

func fakeCommand(t *testing.T) service.Command {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}
	script := filepath.Join(t.TempDir(), service.ScriptName)
	require.NoError(t, os.WriteFile(script, []byte(fakeUploader), 0o644))
	return service.Command{
		Interpreter: sh,
		Script:      script,
	}
}

// folder creates a directory of a given basename
func folder(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.Mkdir(dir, 0o755))
	return dir
}

type recorder struct {
	mx      sync.Mutex
	entries []service.Entry
	idle    int
}

func (r *recorder) Line(e service.Entry) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recorder) Idle() {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.idle++
}

func (r *recorder) texts(kind service.EntryKind, folder string) []string {
	r.mx.Lock()
	defer r.mx.Unlock()
	var out []string
	for _, e := range r.entries {
		if e.Kind == kind && e.Folder == folder {
			out = append(out, e.Text)
		}
	}
	return out
}

// pollUntil polls r until cond holds, it fails the test after 10s
func pollUntil(t *testing.T, r *service.Registry, cond func(service.PollResult) bool) service.PollResult {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		res := r.Poll(context.Background())
		if cond(res) {
			return res
		}
		if time.Now().After(deadline) {
			require.FailNow(t, "condition not met", "last poll %+v, jobs %+v", res, r.Snapshot())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func idle(res service.PollResult) bool {
	return !res.Continue
}

// cleanupRegistry stops all leftovers, so no goroutine outlives the test
func cleanupRegistry(t *testing.T, r *service.Registry) {
	t.Cleanup(func() {
		_ = r.Close(context.Background())
		pollUntil(t, r, idle)
	})
}

func jobConfig(folder string) model.JobConfig {
	return model.JobConfig{
		Folder:   folder,
		Username: "admin",
		Password: "secret",
		Origin:   "http://luna.example.com",
		ListID:   "list-1",
	}
}

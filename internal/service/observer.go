package service

import (
	"fmt"
	"io"
	"sync"
	"time"
)

type EntryKind int

const (
	EntryOutput EntryKind = iota
	EntryStatus
	EntryError
	EntryInfo
)

// Entry is one line of the upload log presented to the user
type Entry struct {
	Time   time.Time
	JobID  uint64
	Folder string
	Kind   EntryKind
	Text   string
}

func (e Entry) Format() string {
	switch e.Kind {
	case EntryOutput:
		return fmt.Sprintf("[%s] %s", e.Folder, e.Text)
	case EntryStatus:
		return fmt.Sprintf("STATUS [%s]: %s", e.Folder, e.Text)
	case EntryError:
		return fmt.Sprintf("ERROR [%s]: %s", e.Folder, e.Text)
	default:
		return e.Text
	}
}

const IdleMessage = "=== All Upload Jobs Finished ==="

// Observer receives the upload log. It is called from the goroutine owning
// the Registry.
type Observer interface {
	Line(Entry)
	// Idle is called once the last tracked job has been removed
	Idle()
}

type nopObserver struct{}

func (nopObserver) Line(Entry) {}
func (nopObserver) Idle()      {}

// WriterObserver prints timestamped log lines to w
type WriterObserver struct {
	mx  sync.Mutex
	w   io.Writer
	now func() time.Time
}

func NewWriterObserver(w io.Writer) *WriterObserver {
	return &WriterObserver{w: w, now: time.Now}
}

func (o *WriterObserver) Line(e Entry) {
	t := e.Time
	if t.IsZero() {
		t = o.now()
	}
	o.write(t, e.Format())
}

func (o *WriterObserver) Idle() {
	o.write(o.now(), IdleMessage)
}

func (o *WriterObserver) write(t time.Time, msg string) {
	o.mx.Lock()
	defer o.mx.Unlock()
	_, _ = fmt.Fprintf(o.w, "[%s] %s\n", t.Format(time.TimeOnly), msg)
}

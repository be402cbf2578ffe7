package progress

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/keystone-cm/filedesk/internal/events"
)

type recordingReporter struct {
	updates []int64
}

func (r *recordingReporter) Start(total int64, description string) {}
func (r *recordingReporter) Update(current int64)                  { r.updates = append(r.updates, current) }
func (r *recordingReporter) Finish()                               {}
func (r *recordingReporter) Error(err error)                       {}

func TestProgressReader(t *testing.T) {
	rec := &recordingReporter{}
	pr := NewProgressReader(io.LimitReader(strings.NewReader(strings.Repeat("x", 10)), 10), rec)

	buf := make([]byte, 4)
	var total int
	for {
		n, err := pr.Read(buf)
		total += n
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
	}

	if total != 10 {
		t.Errorf("total = %d, want 10", total)
	}
	if pr.BytesRead() != 10 {
		t.Errorf("BytesRead() = %d, want 10", pr.BytesRead())
	}
	want := []int64{4, 8, 10}
	if len(rec.updates) != len(want) {
		t.Fatalf("updates = %v, want %v", rec.updates, want)
	}
	for i := range want {
		if rec.updates[i] != want[i] {
			t.Errorf("updates[%d] = %d, want %d", i, rec.updates[i], want[i])
		}
	}
}

func TestProgressReaderNilReporter(t *testing.T) {
	pr := NewProgressReader(strings.NewReader("abc"), nil)
	data, err := io.ReadAll(pr)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "abc" {
		t.Errorf("data = %q, want %q", data, "abc")
	}
}

func TestEventProgress(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()
	progressCh := bus.Subscribe(events.EventProgress)
	errorCh := bus.Subscribe(events.EventError)

	p := NewEventProgress(bus, "7", "report.pdf")
	p.Start(100, "report.pdf")
	p.Update(40)
	p.Finish()
	p.Error(errors.New("boom"))

	wantCurrent := []int64{0, 40, 100}
	for i, want := range wantCurrent {
		select {
		case ev := <-progressCh:
			pe := ev.(*events.ProgressEvent)
			if pe.BytesCurrent != want {
				t.Errorf("event %d BytesCurrent = %d, want %d", i, pe.BytesCurrent, want)
			}
			if pe.BytesTotal != 100 {
				t.Errorf("event %d BytesTotal = %d, want 100", i, pe.BytesTotal)
			}
			if pe.EntryID != "7" {
				t.Errorf("event %d EntryID = %q, want %q", i, pe.EntryID, "7")
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for progress event %d", i)
		}
	}

	select {
	case ev := <-errorCh:
		ee := ev.(*events.ErrorEvent)
		if ee.Op != "download" {
			t.Errorf("Op = %q, want %q", ee.Op, "download")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error event")
	}
}

func TestEventProgressNilBus(t *testing.T) {
	p := NewEventProgress(nil, "1", "a")
	p.Start(1, "a")
	p.Update(1)
	p.Finish()
	p.Error(errors.New("ignored"))
}

func TestCLIProgressWritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	p := NewCLIProgressTo(&buf)
	p.Start(1024, "file.bin")
	p.Update(1024)
	p.Finish()

	if !strings.Contains(buf.String(), "file.bin") {
		t.Errorf("output %q does not contain description", buf.String())
	}
}

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		path string
		max  int
		want string
	}{
		{"/a/b/c/d/file.txt", 3, "…/c/d/file.txt"},
		{"/a/b/c/d/file.txt", 2, "…/d/file.txt"},
		{"file.txt", 2, "file.txt"},
		{"dir/file.txt", 2, "file.txt"},
	}

	for _, tt := range tests {
		if got := truncatePath(tt.path, tt.max); got != tt.want {
			t.Errorf("truncatePath(%q, %d) = %q, want %q", tt.path, tt.max, got, tt.want)
		}
	}
}

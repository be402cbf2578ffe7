// Package progress reports download progress either as terminal bars or as
// events on the bus.
package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/keystone-cm/filedesk/internal/events"
)

// Reporter receives byte counts for a single transfer.
type Reporter interface {
	Start(total int64, description string)
	Update(current int64)
	Finish()
	Error(err error)
}

// CLIProgress draws a single progressbar on a terminal writer.
type CLIProgress struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

// NewCLIProgress returns a reporter drawing on stderr.
func NewCLIProgress() *CLIProgress {
	return NewCLIProgressTo(os.Stderr)
}

// NewCLIProgressTo returns a reporter drawing on w.
func NewCLIProgressTo(w io.Writer) *CLIProgress {
	return &CLIProgress{out: w}
}

// Start creates the bar. A non-positive total renders a spinner.
func (p *CLIProgress) Start(total int64, description string) {
	if total <= 0 {
		total = -1
	}
	out := p.out
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(out, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func (p *CLIProgress) Update(current int64) {
	if p.bar != nil {
		_ = p.bar.Set64(current)
	}
}

func (p *CLIProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func (p *CLIProgress) Error(err error) {
	if err == nil {
		return
	}
	if p.bar != nil {
		_ = p.bar.Exit()
	}
	fmt.Fprintf(p.out, "\nError: %v\n", err)
}

// EventProgress publishes ProgressEvents for one entry.
type EventProgress struct {
	eventBus *events.EventBus
	entryID  string
	name     string
	total    int64
}

// NewEventProgress creates a reporter publishing on bus.
func NewEventProgress(bus *events.EventBus, entryID, name string) *EventProgress {
	return &EventProgress{eventBus: bus, entryID: entryID, name: name}
}

func (p *EventProgress) Start(total int64, description string) {
	p.total = total
	p.eventBus.PublishProgress(p.entryID, p.name, 0, total)
}

func (p *EventProgress) Update(current int64) {
	p.eventBus.PublishProgress(p.entryID, p.name, current, p.total)
}

func (p *EventProgress) Finish() {
	p.eventBus.PublishProgress(p.entryID, p.name, p.total, p.total)
}

func (p *EventProgress) Error(err error) {
	if err != nil {
		p.eventBus.Publish(&events.ErrorEvent{
			BaseEvent: events.NewBase(events.EventError),
			EntryID:   p.entryID,
			Op:        "download",
			Error:     err,
		})
	}
}

// NoOpProgress discards everything.
type NoOpProgress struct{}

func NewNoOpProgress() *NoOpProgress { return &NoOpProgress{} }

func (NoOpProgress) Start(total int64, description string) {}
func (NoOpProgress) Update(current int64)                  {}
func (NoOpProgress) Finish()                               {}
func (NoOpProgress) Error(err error)                       {}

// ProgressReader wraps an io.Reader and reports the running byte count.
type ProgressReader struct {
	reader   io.Reader
	reporter Reporter
	current  int64
}

// NewProgressReader creates a progress-reporting reader.
func NewProgressReader(reader io.Reader, reporter Reporter) *ProgressReader {
	if reporter == nil {
		reporter = NoOpProgress{}
	}
	return &ProgressReader{reader: reader, reporter: reporter}
}

func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.current += int64(n)
		pr.reporter.Update(pr.current)
	}
	return n, err
}

// BytesRead returns the number of bytes read so far.
func (pr *ProgressReader) BytesRead() int64 {
	return pr.current
}

// truncatePath keeps only the last maxComponents elements of a path.
// Example: truncatePath("/a/b/c/d/file.txt", 3) → "…/c/d/file.txt"
func truncatePath(path string, maxComponents int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return filepath.Base(path)
	}
	return "…/" + strings.Join(parts[len(parts)-maxComponents:], "/")
}

func enableANSIOnWindows(f *os.File) {
	if runtime.GOOS == "windows" {
		enableWindowsANSI(f)
	}
}

package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// MultiBar renders one mpb bar per concurrent download.
type MultiBar struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool
	totalFiles int
}

// FileBar is a single entry's bar. It implements Reporter.
type FileBar struct {
	bar        *mpb.Bar
	ui         *MultiBar
	index      int
	entryID    string
	remoteName string
	localPath  string
	size       int64
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
}

// NewMultiBar creates a display for totalFiles downloads on stderr. When stderr
// is not a terminal bars are disabled and plain lines are printed instead.
func NewMultiBar(totalFiles int) *MultiBar {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))

	var p *mpb.Progress
	if isTerminal {
		enableANSIOnWindows(os.Stderr)
		p = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(80),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &MultiBar{
		progress:   p,
		out:        os.Stderr,
		isTerminal: isTerminal,
		totalFiles: totalFiles,
	}
}

// AddFileBar registers a bar for one download.
func (u *MultiBar) AddFileBar(index int, entryID, remoteName, localPath string, size int64) *FileBar {
	destPath := truncatePath(localPath, 2)
	now := time.Now()

	fb := &FileBar{
		ui:         u,
		index:      index,
		entryID:    entryID,
		remoteName: remoteName,
		localPath:  localPath,
		size:       size,
		startTime:  now,
		lastUpdate: now,
	}

	if u.isTerminal {
		fb.bar = u.progress.New(size,
			mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
			mpb.PrependDecorators(
				decor.Name(fmt.Sprintf("[%d/%d] %s ← %s", index, u.totalFiles, destPath, remoteName), decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 60, decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Fprintf(u.out, "Downloading [%d/%d]: %s ← %s\n", index, u.totalFiles, destPath, remoteName)
	}

	return fb
}

// Start resets the bar total once the real size is known.
func (f *FileBar) Start(total int64, description string) {
	f.startTime = time.Now()
	f.lastUpdate = f.startTime
	if total > 0 {
		f.size = total
		if f.bar != nil {
			f.bar.SetTotal(total, false)
		}
	}
}

// Update advances the bar to current bytes. Updates closer together than
// the refresh interval are coalesced.
func (f *FileBar) Update(current int64) {
	if f.bar == nil {
		return
	}
	const updateInterval = 300 * time.Millisecond

	now := time.Now()
	elapsed := now.Sub(f.lastUpdate)
	if elapsed < updateInterval {
		return
	}
	f.bar.EwmaIncrInt64(current-f.lastBytes, elapsed)
	f.lastBytes = current
	f.lastUpdate = now
}

// Finish marks the bar complete and prints a summary line.
func (f *FileBar) Finish() {
	elapsed := time.Since(f.startTime)
	if f.bar != nil {
		f.bar.SetCurrent(f.size)
		f.bar.SetTotal(f.size, true)
	}
	f.ui.println(fmt.Sprintf("✓ %s ← %s (%s, %.1f MiB, %s)",
		truncatePath(f.localPath, 2), f.remoteName, f.entryID,
		float64(f.size)/(1024*1024), elapsed.Round(time.Second)))
}

// Error aborts the bar, leaving it visible, and prints the failure.
func (f *FileBar) Error(err error) {
	if f.bar != nil {
		f.bar.Abort(false)
	}
	f.ui.println(fmt.Sprintf("✗ %s ← %s: %v", truncatePath(f.localPath, 2), f.remoteName, err))
}

// println writes through mpb so output lands above the live bars.
func (u *MultiBar) println(msg string) {
	if u.isTerminal {
		_, _ = u.progress.Write([]byte(msg + "\n"))
		return
	}
	fmt.Fprintln(u.out, msg)
}

// Wait blocks until every bar is complete or aborted.
func (u *MultiBar) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// Writer returns a writer that prints above the bars.
func (u *MultiBar) Writer() io.Writer {
	if u.isTerminal {
		return u.progress
	}
	return u.out
}

func (u *MultiBar) IsTerminal() bool {
	return u.isTerminal
}

package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/keystone-cm/filedesk/internal/api"
	inthttp "github.com/keystone-cm/filedesk/internal/http"
	"github.com/keystone-cm/filedesk/internal/models"
	"github.com/keystone-cm/filedesk/internal/progress"
)

func TestDownload(t *testing.T) {
	dir := newFakeDirectory(sampleEntries()...)
	dir.content["10"] = "hello"
	fs := newTestService(dir, nil)
	outDir := t.TempDir()

	localPath, err := fs.Download(context.Background(), file("10", "1", "f.txt", 5), outDir, nil)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if localPath != filepath.Join(outDir, "f.txt") {
		t.Errorf("localPath = %q, want %q", localPath, filepath.Join(outDir, "f.txt"))
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q, want %q", data, "hello")
	}

	leftovers, _ := filepath.Glob(filepath.Join(outDir, ".*.part"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestDownloadRejectsUnsafeNames(t *testing.T) {
	tests := []struct {
		name  string
		entry models.Entry
	}{
		{"folder", folder("1", "", "a")},
		{"traversal", file("11", "", "..", 1)},
		{"separator", file("12", "", "../../etc/passwd", 1)},
		{"empty name", file("13", "", "", 1)},
		{"empty id", file("", "", "x", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := newFakeDirectory()
			fs := newTestService(dir, nil)
			_, err := fs.Download(context.Background(), tt.entry, t.TempDir(), nil)
			if !api.IsValidationError(err) {
				t.Errorf("Download() error = %v, want ValidationError", err)
			}
			if got := len(dir.callList()); got != 0 {
				t.Errorf("directory calls = %d, want 0", got)
			}
		})
	}
}

func TestDownloadFailureLeavesNoFile(t *testing.T) {
	dir := newFakeDirectory(sampleEntries()...)
	dir.setErr("OpenDownload", &api.ConflictError{Op: "download", StatusCode: 404})
	fs := newTestService(dir, nil)
	outDir := t.TempDir()

	_, err := fs.Download(context.Background(), file("10", "1", "f.txt", 5), outDir, nil)
	if !api.IsConflictError(err) {
		t.Fatalf("Download() error = %v, want ConflictError", err)
	}
	if _, statErr := os.Stat(filepath.Join(outDir, "f.txt")); !os.IsNotExist(statErr) {
		t.Errorf("Stat() error = %v, want not exist", statErr)
	}
	if got := dir.callCount("OpenDownload"); got != 1 {
		t.Errorf("OpenDownload calls = %d, want 1 (conflicts are not retried)", got)
	}
}

func TestDownloadRetriesNetworkErrors(t *testing.T) {
	dir := newFakeDirectory(sampleEntries()...)
	dir.setErr("OpenDownload", &api.NetworkError{Op: "download", Err: errors.New("connection reset by peer")})
	fs := NewFileService(dir, nil,
		WithServiceLogger(discardLogger()),
		WithDownloadRetry(inthttp.Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}),
	)

	_, err := fs.Download(context.Background(), file("10", "1", "f.txt", 5), t.TempDir(), nil)
	if !api.IsNetworkError(err) {
		t.Fatalf("Download() error = %v, want NetworkError", err)
	}
	if got := dir.callCount("OpenDownload"); got != 3 {
		t.Errorf("OpenDownload calls = %d, want 3", got)
	}
}

type countingReporter struct {
	progress.NoOpProgress
	finished bool
	failed   error
}

func (r *countingReporter) Finish()         { r.finished = true }
func (r *countingReporter) Error(err error) { r.failed = err }

func TestDownloadManyResolvesCollisions(t *testing.T) {
	entries := []models.Entry{
		file("7", "1", "out.zip", 1),
		file("9", "4", "out.zip", 1),
		file("11", "1", "other.txt", 1),
		folder("1", "", "a"),
	}
	dir := newFakeDirectory(entries...)
	dir.content["7"] = "A"
	dir.content["9"] = "B"
	dir.content["11"] = "C"
	fs := newTestService(dir, nil)
	outDir := t.TempDir()

	reporters := map[models.EntryID]*countingReporter{}
	newReporter := func(index int, e models.Entry, localPath string) progress.Reporter {
		r := &countingReporter{}
		reporters[e.ID] = r
		return r
	}

	results := fs.DownloadMany(context.Background(), entries, outDir, 2, newReporter)
	if len(results) != 4 {
		t.Fatalf("len(results) = %d, want 4", len(results))
	}
	if !api.IsValidationError(results[3].Err) {
		t.Errorf("folder result error = %v, want ValidationError", results[3].Err)
	}

	var names []string
	for _, r := range results[:3] {
		if r.Err != nil {
			t.Fatalf("result %s error = %v", r.Entry.ID, r.Err)
		}
		names = append(names, filepath.Base(r.LocalPath))
		if !reporters[r.Entry.ID].finished {
			t.Errorf("reporter for %s not finished", r.Entry.ID)
		}
	}
	sort.Strings(names)
	want := []string{"other.txt", "out_7.zip", "out_9.zip"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	data, _ := os.ReadFile(filepath.Join(outDir, "out_9.zip"))
	if string(data) != "B" {
		t.Errorf("out_9.zip content = %q, want B", data)
	}
}

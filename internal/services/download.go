package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/keystone-cm/filedesk/internal/api"
	"github.com/keystone-cm/filedesk/internal/constants"
	"github.com/keystone-cm/filedesk/internal/diskspace"
	inthttp "github.com/keystone-cm/filedesk/internal/http"
	"github.com/keystone-cm/filedesk/internal/models"
	"github.com/keystone-cm/filedesk/internal/progress"
	"github.com/keystone-cm/filedesk/internal/validation"
)

// ReporterFunc builds the progress reporter for one file of a batch.
type ReporterFunc func(index int, entry models.Entry, localPath string) progress.Reporter

// LocalPath returns where entry would be written inside outDir.
func LocalPath(entry models.Entry, outDir string) (string, error) {
	if entry.ID == "" {
		return "", &api.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if entry.IsFolder() {
		return "", &api.ValidationError{Field: "id", Reason: fmt.Sprintf("%s is a folder", entry.ID)}
	}
	if err := validation.ValidateFilename(entry.Name); err != nil {
		return "", &api.ValidationError{Field: "name", Reason: err.Error(), Err: err}
	}
	localPath := filepath.Join(outDir, entry.Name)
	if err := validation.ValidatePathInDirectory(localPath, outDir); err != nil {
		return "", &api.ValidationError{Field: "name", Reason: err.Error(), Err: err}
	}
	return localPath, nil
}

// Download writes entry into outDir and returns the local path.
func (fs *FileService) Download(ctx context.Context, entry models.Entry, outDir string, reporter progress.Reporter) (string, error) {
	localPath, err := LocalPath(entry, outDir)
	if err != nil {
		return "", err
	}
	if _, err := fs.downloadTo(ctx, entry, localPath, reporter); err != nil {
		return "", err
	}
	return localPath, nil
}

// DownloadMany downloads entries into outDir with at most concurrency
// transfers in flight. Files that would land on the same local path get
// their id appended. Results are returned in input order.
func (fs *FileService) DownloadMany(ctx context.Context, entries []models.Entry, outDir string, concurrency int, newReporter ReporterFunc) []DownloadResult {
	if concurrency < constants.MinMaxConcurrent {
		concurrency = constants.MinMaxConcurrent
	}
	if concurrency > constants.MaxMaxConcurrent {
		concurrency = constants.MaxMaxConcurrent
	}

	results := make([]DownloadResult, len(entries))
	var planned []plannedDownload
	for i, e := range entries {
		results[i].Entry = e
		localPath, err := LocalPath(e, outDir)
		if err != nil {
			results[i].Err = err
			continue
		}
		planned = append(planned, plannedDownload{index: i, entry: e, localPath: localPath})
	}
	if n := resolveCollisions(planned); n > 0 {
		fs.logger.Info().Int("files", n).Msg("renamed downloads that shared a local name")
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for n, p := range planned {
		select {
		case <-ctx.Done():
			results[p.index].Err = ctx.Err()
			continue
		case sem <- struct{}{}:
		}

		var reporter progress.Reporter
		if newReporter != nil {
			reporter = newReporter(n+1, p.entry, p.localPath)
		}

		wg.Add(1)
		go func(p plannedDownload, reporter progress.Reporter) {
			defer wg.Done()
			defer func() { <-sem }()

			written, err := fs.downloadTo(ctx, p.entry, p.localPath, reporter)
			results[p.index].LocalPath = p.localPath
			results[p.index].Bytes = written
			results[p.index].Err = err
		}(p, reporter)
	}
	wg.Wait()
	return results
}

func (fs *FileService) downloadTo(ctx context.Context, entry models.Entry, localPath string, reporter progress.Reporter) (int64, error) {
	if reporter == nil {
		reporter = progress.NewNoOpProgress()
	}
	written, err := fs.fetchToFile(ctx, entry, localPath, reporter)
	if err != nil {
		reporter.Error(err)
		fs.handleMutationError("download", err)
		return 0, err
	}
	reporter.Finish()
	fs.logger.Info().Str("id", entry.ID.String()).Str("path", localPath).Int64("bytes", written).Msg("downloaded")
	return written, nil
}

func (fs *FileService) fetchToFile(ctx context.Context, entry models.Entry, localPath string, reporter progress.Reporter) (int64, error) {
	dir, err := fs.directory()
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := diskspace.CheckAvailableSpace(localPath, entry.Size, constants.DiskSpaceBufferPercent); err != nil {
		return 0, err
	}

	rawURL, err := dir.DownloadURL(ctx, entry.ID)
	if err != nil {
		return 0, err
	}

	var body io.ReadCloser
	var size int64
	retry := fs.downloadRetry
	retry.OnRetry = func(attempt int, err error, errType inthttp.ErrorType) {
		fs.logger.Warn().Int("attempt", attempt).Str("kind", inthttp.ErrorTypeName(errType)).Err(err).Msg("retrying download")
	}
	err = inthttp.ExecuteWithRetry(ctx, retry, func() error {
		var openErr error
		body, size, openErr = dir.OpenDownload(ctx, rawURL)
		return openErr
	})
	if err != nil {
		return 0, err
	}
	defer body.Close()

	if size <= 0 {
		size = entry.Size
	}
	reporter.Start(size, entry.Name)

	tmp, err := os.CreateTemp(filepath.Dir(localPath), "."+filepath.Base(localPath)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	written, err := io.Copy(tmp, progress.NewProgressReader(body, reporter))
	if err != nil {
		cleanup()
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if inthttp.IsTransportError(err) {
			return 0, &api.NetworkError{Op: "download", Err: err}
		}
		return 0, fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to move download into place: %w", err)
	}
	return written, nil
}

type plannedDownload struct {
	index     int
	entry     models.Entry
	localPath string
}

// resolveCollisions gives every planned download a unique local path by
// inserting the entry id before the extension of any shared path:
// two "out.zip" become "out_7.zip" and "out_9.zip". It returns the number
// of files renamed.
func resolveCollisions(planned []plannedDownload) int {
	byPath := make(map[string][]int)
	for i, p := range planned {
		byPath[p.localPath] = append(byPath[p.localPath], i)
	}

	renamed := 0
	for path, indices := range byPath {
		if len(indices) <= 1 {
			continue
		}
		ext := filepath.Ext(path)
		base := path[:len(path)-len(ext)]
		for _, idx := range indices {
			planned[idx].localPath = fmt.Sprintf("%s_%s%s", base, planned[idx].entry.ID, ext)
			renamed++
		}
	}
	return renamed
}

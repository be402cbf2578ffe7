package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/keystone-cm/filedesk/internal/models"
)

// fakeDirectory is an in-memory Directory that records every call.
type fakeDirectory struct {
	mu      sync.Mutex
	entries []models.Entry
	grants  []models.PermissionGrant
	content map[models.EntryID]string
	calls   []string

	// errs maps a method name to the error it should return.
	errs map[string]error
}

func newFakeDirectory(entries ...models.Entry) *fakeDirectory {
	return &fakeDirectory{
		entries: entries,
		content: make(map[models.EntryID]string),
		errs:    make(map[string]error),
	}
}

func (f *fakeDirectory) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	name := call
	if i := strings.IndexByte(call, ' '); i >= 0 {
		name = call[:i]
	}
	return f.errs[name]
}

func (f *fakeDirectory) setErr(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = err
}

func (f *fakeDirectory) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method || strings.HasPrefix(c, method+" ") {
			n++
		}
	}
	return n
}

func (f *fakeDirectory) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeDirectory) ListAll(ctx context.Context, search string) ([]models.Entry, error) {
	if err := f.record("ListAll"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Entry(nil), f.entries...), nil
}

func (f *fakeDirectory) ListChildren(ctx context.Context, parentID models.EntryID, search string) ([]models.Entry, error) {
	if err := f.record("ListChildren " + parentID.String()); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Entry
	for _, e := range f.entries {
		if e.ParentID == parentID && strings.Contains(e.Name, search) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeDirectory) CreateFolder(ctx context.Context, name string, parentID models.EntryID) (*models.Entry, error) {
	if err := f.record("CreateFolder " + name); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e := models.Entry{ID: models.EntryID(fmt.Sprintf("new%d", len(f.entries))), Name: name, Kind: models.KindFolder, ParentID: parentID}
	f.entries = append(f.entries, e)
	return &e, nil
}

func (f *fakeDirectory) update(id models.EntryID, fn func(*models.Entry)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.entries {
		if f.entries[i].ID == id {
			fn(&f.entries[i])
		}
	}
}

func (f *fakeDirectory) Rename(ctx context.Context, id models.EntryID, name string) error {
	if err := f.record("Rename " + id.String() + " " + name); err != nil {
		return err
	}
	f.update(id, func(e *models.Entry) { e.Name = name })
	return nil
}

func (f *fakeDirectory) Move(ctx context.Context, id, parentID models.EntryID) error {
	if err := f.record("Move " + id.String() + " " + parentID.String()); err != nil {
		return err
	}
	f.update(id, func(e *models.Entry) { e.ParentID = parentID })
	return nil
}

func (f *fakeDirectory) Delete(ctx context.Context, id models.EntryID) error {
	if err := f.record("Delete " + id.String()); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.entries[:0]
	for _, e := range f.entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	f.entries = kept
	return nil
}

func (f *fakeDirectory) SetStarred(ctx context.Context, id models.EntryID, starred bool) error {
	if err := f.record(fmt.Sprintf("SetStarred %s %t", id, starred)); err != nil {
		return err
	}
	f.update(id, func(e *models.Entry) { e.Starred = starred })
	return nil
}

func (f *fakeDirectory) DownloadURL(ctx context.Context, id models.EntryID) (string, error) {
	if err := f.record("DownloadURL " + id.String()); err != nil {
		return "", err
	}
	return "fake://" + id.String(), nil
}

func (f *fakeDirectory) OpenDownload(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	if err := f.record("OpenDownload " + rawURL); err != nil {
		return nil, 0, err
	}
	id := models.EntryID(strings.TrimPrefix(rawURL, "fake://"))
	f.mu.Lock()
	body := f.content[id]
	f.mu.Unlock()
	return io.NopCloser(strings.NewReader(body)), int64(len(body)), nil
}

func (f *fakeDirectory) AssignPermission(ctx context.Context, fileID models.EntryID, userID string, p models.Permission) error {
	return f.record(fmt.Sprintf("AssignPermission %s %s %s", fileID, userID, p))
}

func (f *fakeDirectory) RemovePermission(ctx context.Context, fileID models.EntryID, userID string, p models.Permission) error {
	return f.record(fmt.Sprintf("RemovePermission %s %s %s", fileID, userID, p))
}

func (f *fakeDirectory) ListPermissions(ctx context.Context, fileID models.EntryID) ([]models.PermissionGrant, error) {
	if err := f.record("ListPermissions " + fileID.String()); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PermissionGrant
	for _, g := range f.grants {
		if g.FileID == fileID {
			out = append(out, g)
		}
	}
	return out, nil
}

func folder(id, parent, name string) models.Entry {
	return models.Entry{ID: models.EntryID(id), ParentID: models.EntryID(parent), Name: name, Kind: models.KindFolder}
}

func file(id, parent, name string, size int64) models.Entry {
	return models.Entry{ID: models.EntryID(id), ParentID: models.EntryID(parent), Name: name, Kind: models.KindFile, Size: size}
}

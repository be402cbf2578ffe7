package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/keystone-cm/filedesk/internal/api"
	"github.com/keystone-cm/filedesk/internal/events"
	"github.com/keystone-cm/filedesk/internal/models"
	"github.com/keystone-cm/filedesk/internal/state"
)

func newTestBrowser(t *testing.T, dir *fakeDirectory, bus *events.EventBus, folderID models.EntryID) *Browser {
	t.Helper()
	b := NewBrowser(newTestService(dir, bus), state.NewFileListState(bus), bus)
	if err := b.Open(context.Background(), folderID); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return b
}

func waitNotification(t *testing.T, ch <-chan events.Event) *events.NotificationEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev.(*events.NotificationEvent)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
		return nil
	}
}

func TestBrowserOpen(t *testing.T) {
	b := newTestBrowser(t, newFakeDirectory(sampleEntries()...), nil, "1")

	if got := b.State().Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
	items := b.State().GetItems()
	if !items[0].IsFolder() {
		t.Errorf("first item %q is not a folder; folders sort first", items[0].Name)
	}
}

func TestBrowserDelete(t *testing.T) {
	dir := newFakeDirectory(sampleEntries()...)
	b := newTestBrowser(t, dir, nil, "1")

	if err := b.Delete(context.Background(), "10"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := b.State().FindByID("10"); ok {
		t.Error("item 10 still listed after delete")
	}
	if b.State().IsBusy("10") {
		t.Error("item 10 still busy after delete")
	}
}

func TestBrowserUnknownItem(t *testing.T) {
	b := newTestBrowser(t, newFakeDirectory(sampleEntries()...), nil, "1")
	if err := b.Delete(context.Background(), "99"); !errors.Is(err, ErrNotInView) {
		t.Errorf("Delete(99) error = %v, want ErrNotInView", err)
	}
}

// blockingDirectory holds Delete until release is closed.
type blockingDirectory struct {
	*fakeDirectory
	started chan struct{}
	release chan struct{}
}

func (d *blockingDirectory) Delete(ctx context.Context, id models.EntryID) error {
	close(d.started)
	<-d.release
	return d.fakeDirectory.Delete(ctx, id)
}

func TestBrowserRejectsSecondActionWhileBusy(t *testing.T) {
	fake := newFakeDirectory(sampleEntries()...)
	dir := &blockingDirectory{fakeDirectory: fake, started: make(chan struct{}), release: make(chan struct{})}
	b := NewBrowser(newTestService(dir, nil), state.NewFileListState(nil), nil)
	if err := b.Open(context.Background(), "1"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var deleteErr error
	go func() {
		defer wg.Done()
		deleteErr = b.Delete(context.Background(), "10")
	}()
	<-dir.started

	if op := b.State().Operation("10"); op.Kind != state.OpDeleting {
		t.Errorf("Operation(10) = %v, want deleting", op)
	}
	if err := b.Rename(context.Background(), "10", "g.txt"); !errors.Is(err, ErrBusy) {
		t.Errorf("Rename() while busy error = %v, want ErrBusy", err)
	}
	if err := b.Delete(context.Background(), "10"); !errors.Is(err, ErrBusy) {
		t.Errorf("second Delete() error = %v, want ErrBusy", err)
	}
	// A different item is not blocked.
	if err := b.ToggleStar(context.Background(), "2"); err != nil {
		t.Errorf("ToggleStar(2) error = %v", err)
	}

	close(dir.release)
	wg.Wait()
	if deleteErr != nil {
		t.Errorf("Delete() error = %v", deleteErr)
	}
	if got := fake.callCount("Rename"); got != 0 {
		t.Errorf("Rename calls = %d, want 0", got)
	}
}

func TestBrowserRename(t *testing.T) {
	dir := newFakeDirectory(sampleEntries()...)
	b := newTestBrowser(t, dir, nil, "1")

	if err := b.Rename(context.Background(), "10", "  g.txt "); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	e, _ := b.State().FindByID("10")
	if e.Name != "g.txt" {
		t.Errorf("Name = %q, want g.txt", e.Name)
	}

	if err := b.Rename(context.Background(), "10", "g.txt"); err != nil {
		t.Fatalf("Rename(same) error = %v", err)
	}
	if got := dir.callCount("Rename"); got != 1 {
		t.Errorf("Rename calls = %d, want 1", got)
	}
}

func TestBrowserMoveRemovesFromView(t *testing.T) {
	dir := newFakeDirectory(sampleEntries()...)
	b := newTestBrowser(t, dir, nil, "1")

	if err := b.Move(context.Background(), "10", "4"); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if _, ok := b.State().FindByID("10"); ok {
		t.Error("moved item still listed")
	}
}

func TestBrowserMoveRejectedLocally(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()
	notes := bus.Subscribe(events.EventNotification)
	dir := newFakeDirectory(sampleEntries()...)
	b := newTestBrowser(t, dir, bus, "1")

	err := b.Move(context.Background(), "2", "3")
	if !api.IsValidationError(err) {
		t.Fatalf("Move() error = %v, want ValidationError", err)
	}
	n := waitNotification(t, notes)
	if n.Level != events.ErrorLevel || n.Op != "move" || n.EntryID != "2" {
		t.Errorf("notification = %+v, want error for move of 2", n)
	}
	if _, ok := b.State().FindByID("2"); !ok {
		t.Error("item 2 removed after a rejected move")
	}
}

func TestBrowserToggleStarRollsBack(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()
	notes := bus.Subscribe(events.EventNotification)
	dir := newFakeDirectory(sampleEntries()...)
	b := newTestBrowser(t, dir, bus, "1")

	dir.setErr("SetStarred", &api.StatusError{Op: "star", StatusCode: 500})
	if err := b.ToggleStar(context.Background(), "10"); err == nil {
		t.Fatal("ToggleStar() error = nil, want failure")
	}
	e, _ := b.State().FindByID("10")
	if e.Starred {
		t.Error("Starred = true after failed toggle, want rolled back to false")
	}
	waitNotification(t, notes)

	dir.setErr("SetStarred", nil)
	if err := b.ToggleStar(context.Background(), "10"); err != nil {
		t.Fatalf("ToggleStar() error = %v", err)
	}
	e, _ = b.State().FindByID("10")
	if !e.Starred {
		t.Error("Starred = false after successful toggle")
	}
}

func TestBrowserConflictForcesRelist(t *testing.T) {
	dir := newFakeDirectory(sampleEntries()...)
	b := newTestBrowser(t, dir, nil, "1")
	before := dir.callCount("ListChildren")

	// Someone else already deleted it.
	dir.setErr("Rename", &api.ConflictError{Op: "rename", StatusCode: 404})
	dir.mu.Lock()
	dir.entries = dir.entries[:4]
	dir.mu.Unlock()

	err := b.Rename(context.Background(), "10", "x.txt")
	if !api.IsConflictError(err) {
		t.Fatalf("Rename() error = %v, want ConflictError", err)
	}
	if got := dir.callCount("ListChildren"); got != before+1 {
		t.Errorf("ListChildren calls = %d, want %d", got, before+1)
	}
	if _, ok := b.State().FindByID("10"); ok {
		t.Error("deleted item still listed after re-list")
	}
}

func TestBrowserNetworkErrorNotification(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()
	notes := bus.Subscribe(events.EventNotification)
	dir := newFakeDirectory(sampleEntries()...)
	b := newTestBrowser(t, dir, bus, "1")

	dir.setErr("Delete", &api.NetworkError{Op: "delete", Err: errors.New("connection refused")})
	if err := b.Delete(context.Background(), "10"); !api.IsNetworkError(err) {
		t.Fatalf("Delete() error = %v, want NetworkError", err)
	}
	n := waitNotification(t, notes)
	if n.Message != "Could not delete: the server is unreachable" {
		t.Errorf("Message = %q", n.Message)
	}
	if _, ok := b.State().FindByID("10"); !ok {
		t.Error("item removed after failed delete")
	}
}

func TestBrowserRefreshFailure(t *testing.T) {
	dir := newFakeDirectory(sampleEntries()...)
	b := newTestBrowser(t, dir, nil, "1")

	dir.setErr("ListChildren", &api.FetchError{Op: "list files", Err: errors.New("down")})
	if err := b.Refresh(context.Background(), true); !api.IsFetchError(err) {
		t.Fatalf("Refresh() error = %v, want FetchError", err)
	}
	if b.State().GetError() == nil {
		t.Error("GetError() = nil after failed refresh")
	}
	if b.State().IsLoading() {
		t.Error("IsLoading() = true after refresh returned")
	}
	if got := b.State().Count(); got != 0 {
		t.Errorf("Count() = %d, want 0 after failed refresh", got)
	}
}

func TestBrowserOpenFailureDropsPreviousFolderItems(t *testing.T) {
	dir := newFakeDirectory(sampleEntries()...)
	b := newTestBrowser(t, dir, nil, "1")

	dir.setErr("ListChildren", &api.FetchError{Op: "list files", Err: errors.New("down")})
	if err := b.Open(context.Background(), "4"); !api.IsFetchError(err) {
		t.Fatalf("Open() error = %v, want FetchError", err)
	}
	if got := b.State().GetCurrentFolder(); got != "4" {
		t.Errorf("GetCurrentFolder() = %q, want 4", got)
	}
	if got := b.State().Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
	if b.State().GetError() == nil {
		t.Error("GetError() = nil after failed open")
	}

	if err := b.Delete(context.Background(), "10"); !errors.Is(err, ErrNotInView) {
		t.Errorf("Delete() of item from previous folder error = %v, want ErrNotInView", err)
	}
	if n := dir.callCount("Delete"); n != 0 {
		t.Errorf("Delete calls = %d, want 0", n)
	}
}

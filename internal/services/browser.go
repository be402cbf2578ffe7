package services

import (
	"context"
	"fmt"

	"github.com/keystone-cm/filedesk/internal/api"
	"github.com/keystone-cm/filedesk/internal/events"
	"github.com/keystone-cm/filedesk/internal/logging"
	"github.com/keystone-cm/filedesk/internal/models"
	"github.com/keystone-cm/filedesk/internal/progress"
	"github.com/keystone-cm/filedesk/internal/state"
)

// Browser drives a FileListState: it lists the current folder and runs
// per-item actions, marking each item busy for the duration of its action.
// Distinct items may be acted on concurrently; a second action on a busy
// item fails with ErrBusy.
type Browser struct {
	files    *FileService
	state    *state.FileListState
	eventBus *events.EventBus
	logger   *logging.Logger
}

// NewBrowser creates a Browser over st.
func NewBrowser(files *FileService, st *state.FileListState, eventBus *events.EventBus) *Browser {
	return &Browser{
		files:    files,
		state:    st,
		eventBus: eventBus,
		logger:   files.logger,
	}
}

// State returns the list state the browser drives.
func (b *Browser) State() *state.FileListState {
	return b.state
}

// Open switches to folderID and lists it.
func (b *Browser) Open(ctx context.Context, folderID models.EntryID) error {
	b.state.SetCurrentFolder(folderID)
	return b.Refresh(ctx, false)
}

// Refresh re-lists the current folder.
func (b *Browser) Refresh(ctx context.Context, force bool) error {
	folderID := b.state.GetCurrentFolder()
	b.state.SetLoading(true)
	items, err := b.files.List(ctx, folderID, "", force)
	b.state.SetLoading(false)

	if err != nil {
		// Items from a previous folder must not stay actionable here.
		b.state.SetItems(nil)
		b.state.SetError(err)
		b.notifyFailure("list", folderID, err)
		return err
	}
	b.state.SetItems(items)
	return nil
}

// Delete removes the item and drops it from the list.
func (b *Browser) Delete(ctx context.Context, id models.EntryID) error {
	return b.run(ctx, id, state.OpDeleting, "delete", func(entry models.Entry) error {
		if err := b.files.Delete(ctx, entry); err != nil {
			return err
		}
		b.state.RemoveItem(id)
		return nil
	})
}

// Rename renames the item. A name equal to the current one after trimming
// succeeds without contacting the server.
func (b *Browser) Rename(ctx context.Context, id models.EntryID, name string) error {
	return b.run(ctx, id, state.OpRenaming, "rename", func(entry models.Entry) error {
		renamed, changed, err := b.files.Rename(ctx, entry, name)
		if err != nil || !changed {
			return err
		}
		b.state.UpdateItem(renamed)
		return nil
	})
}

// Move moves the item under dest. The item leaves the list unless dest is
// the folder being shown.
func (b *Browser) Move(ctx context.Context, id, dest models.EntryID) error {
	return b.run(ctx, id, state.OpMoving, "move", func(entry models.Entry) error {
		if err := b.files.Move(ctx, entry, dest); err != nil {
			return err
		}
		if dest != b.state.GetCurrentFolder() {
			b.state.RemoveItem(id)
			return nil
		}
		entry.ParentID = dest
		b.state.UpdateItem(entry)
		return nil
	})
}

// Download saves the item into outDir.
func (b *Browser) Download(ctx context.Context, id models.EntryID, outDir string, reporter progress.Reporter) (string, error) {
	var localPath string
	err := b.run(ctx, id, state.OpDownloading, "download", func(entry models.Entry) error {
		if reporter == nil {
			reporter = progress.NewEventProgress(b.eventBus, id.String(), entry.Name)
		}
		p, err := b.files.Download(ctx, entry, outDir, reporter)
		localPath = p
		return err
	})
	return localPath, err
}

// ToggleStar flips the starred flag immediately and rolls it back if the
// server refuses.
func (b *Browser) ToggleStar(ctx context.Context, id models.EntryID) error {
	return b.run(ctx, id, state.OpStarring, "star", func(entry models.Entry) error {
		want := !entry.Starred
		previous, ok := b.state.SetStarred(id, want)
		if !ok {
			return ErrNotInView
		}
		if err := b.files.SetStarred(ctx, entry, want); err != nil {
			b.state.SetStarred(id, previous)
			return err
		}
		return nil
	})
}

// run wraps fn with the per-item busy flag and failure reporting.
func (b *Browser) run(ctx context.Context, id models.EntryID, kind state.OperationKind, op string, fn func(models.Entry) error) error {
	entry, ok := b.state.FindByID(id)
	if !ok {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotInView)
	}
	if !b.state.BeginOperation(id, kind) {
		return fmt.Errorf("%s %s: %w", op, id, ErrBusy)
	}

	err := fn(entry)
	b.state.EndOperation(id)
	if err == nil {
		return nil
	}

	b.notifyFailure(op, id, err)
	if api.IsConflictError(err) {
		// The server no longer agrees with what is shown.
		if rerr := b.Refresh(ctx, true); rerr != nil {
			b.logger.Warn().Err(rerr).Msg("re-list after conflict failed")
		}
	}
	return err
}

func (b *Browser) notifyFailure(op string, id models.EntryID, err error) {
	switch {
	case api.IsNetworkError(err):
		b.logger.Warn().Str("op", op).Str("id", id.String()).Err(err).Msg("network unavailable")
	case api.IsValidationError(err):
		b.logger.Debug().Str("op", op).Str("id", id.String()).Err(err).Msg("rejected locally")
	default:
		b.logger.Error().Str("op", op).Str("id", id.String()).Err(err).Msg("operation failed")
	}
	b.eventBus.Notify(events.ErrorLevel, op, id.String(), failureMessage(op, err), err)
}

func failureMessage(op string, err error) string {
	switch {
	case api.IsNetworkError(err):
		return fmt.Sprintf("Could not %s: the server is unreachable", op)
	case api.IsUnauthorized(err):
		return fmt.Sprintf("Could not %s: not authorized", op)
	case api.IsConflictError(err):
		return fmt.Sprintf("Could not %s: the item changed on the server, list refreshed", op)
	default:
		return fmt.Sprintf("Could not %s: %v", op, err)
	}
}

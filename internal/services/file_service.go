package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/keystone-cm/filedesk/internal/api"
	"github.com/keystone-cm/filedesk/internal/events"
	"github.com/keystone-cm/filedesk/internal/hierarchy"
	inthttp "github.com/keystone-cm/filedesk/internal/http"
	"github.com/keystone-cm/filedesk/internal/logging"
	"github.com/keystone-cm/filedesk/internal/models"
	"github.com/keystone-cm/filedesk/internal/validation"
)

// FileService runs directory operations with local validation in front and
// cache invalidation behind.
type FileService struct {
	dir           Directory
	eventBus      *events.EventBus
	logger        *logging.Logger
	cache         *ListingCache
	downloadRetry inthttp.Config

	mu sync.RWMutex
}

// FileServiceOption configures a FileService.
type FileServiceOption func(*FileService)

// WithServiceLogger replaces the default stderr logger.
func WithServiceLogger(l *logging.Logger) FileServiceOption {
	return func(fs *FileService) { fs.logger = l }
}

// WithDownloadRetry overrides the retry policy used when opening download streams.
func WithDownloadRetry(cfg inthttp.Config) FileServiceOption {
	return func(fs *FileService) { fs.downloadRetry = cfg }
}

// NewFileService creates a FileService over dir.
func NewFileService(dir Directory, eventBus *events.EventBus, opts ...FileServiceOption) *FileService {
	fs := &FileService{
		dir:           dir,
		eventBus:      eventBus,
		cache:         NewListingCache(eventBus),
		downloadRetry: inthttp.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(fs)
	}
	if fs.logger == nil {
		fs.logger = logging.NewLogger(os.Stderr, eventBus)
	}
	return fs
}

// Cache exposes the listing cache.
func (fs *FileService) Cache() *ListingCache {
	return fs.cache
}

func (fs *FileService) directory() (Directory, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if fs.dir == nil {
		return nil, ErrNoDirectory
	}
	return fs.dir, nil
}

// List returns the children of parentID. Searches always go to the server;
// plain listings are served from the cache unless force is set.
func (fs *FileService) List(ctx context.Context, parentID models.EntryID, search string, force bool) ([]models.Entry, error) {
	dir, err := fs.directory()
	if err != nil {
		return nil, err
	}
	fetch := func(ctx context.Context) ([]models.Entry, error) {
		return dir.ListChildren(ctx, parentID, search)
	}
	if search != "" {
		return fetch(ctx)
	}
	return fs.cache.Children(ctx, parentID, force, fetch)
}

// ListAll returns every entry the user can see.
func (fs *FileService) ListAll(ctx context.Context, force bool) ([]models.Entry, error) {
	dir, err := fs.directory()
	if err != nil {
		return nil, err
	}
	return fs.cache.All(ctx, force, func(ctx context.Context) ([]models.Entry, error) {
		return dir.ListAll(ctx, "")
	})
}

// Hierarchy builds the folder tree from the full listing.
func (fs *FileService) Hierarchy(ctx context.Context, force bool) (*hierarchy.Hierarchy, error) {
	entries, err := fs.ListAll(ctx, force)
	if err != nil {
		return nil, err
	}
	h := hierarchy.New(entries)
	if orphans := h.Orphans(); len(orphans) > 0 {
		fs.logger.Debug().Int("count", len(orphans)).Msg("folders unreachable from root")
	}
	return h, nil
}

// Lookup finds an entry by id in the full listing.
func (fs *FileService) Lookup(ctx context.Context, id models.EntryID) (models.Entry, error) {
	entries, err := fs.ListAll(ctx, false)
	if err != nil {
		return models.Entry{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return models.Entry{}, fmt.Errorf("entry %s not found", id)
}

// MoveTargets lists every folder as a potential destination for source,
// with invalid destinations marked. On fetch failure it returns an empty
// slice and a FetchError.
func (fs *FileService) MoveTargets(ctx context.Context, source models.Entry) ([]hierarchy.Destination, error) {
	h, err := fs.Hierarchy(ctx, false)
	if err != nil {
		if !api.IsFetchError(err) {
			err = &api.FetchError{Op: "list move destinations", Err: err}
		}
		return []hierarchy.Destination{}, err
	}
	return h.Destinations(source), nil
}

// CreateFolder creates a folder under parentID.
func (fs *FileService) CreateFolder(ctx context.Context, name string, parentID models.EntryID) (*models.Entry, error) {
	clean, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	dir, err := fs.directory()
	if err != nil {
		return nil, err
	}

	created, err := dir.CreateFolder(ctx, clean, parentID)
	if err != nil {
		fs.handleMutationError("create", err)
		return nil, err
	}
	fs.logger.Info().Str("id", created.ID.String()).Str("name", created.Name).Msg("folder created")
	fs.cache.Invalidate("create", parentID)
	return created, nil
}

// Rename gives entry a new name and returns the entry as renamed. When the
// trimmed name equals the current name nothing is sent and changed is false.
func (fs *FileService) Rename(ctx context.Context, entry models.Entry, name string) (renamed models.Entry, changed bool, err error) {
	clean, err := normalizeName(name)
	if err != nil {
		return entry, false, err
	}
	if clean == entry.Name {
		return entry, false, nil
	}
	dir, err := fs.directory()
	if err != nil {
		return entry, false, err
	}

	if err := dir.Rename(ctx, entry.ID, clean); err != nil {
		fs.handleMutationError("rename", err)
		return entry, false, err
	}
	fs.cache.Invalidate("rename", entry.ParentID)
	entry.Name = clean
	return entry, true, nil
}

// Move relocates entry under dest after checking locally that the move is
// neither a no-op nor a move of a folder into itself or its own subtree.
func (fs *FileService) Move(ctx context.Context, entry models.Entry, dest models.EntryID) error {
	h, err := fs.Hierarchy(ctx, false)
	if err != nil {
		// Without a tree only the no-op and self checks can run; the server
		// still rejects the rest.
		fs.logger.Warn().Err(err).Msg("move check running without folder hierarchy")
		h = nil
	}
	if err := hierarchy.CheckMove(entry, dest, h); err != nil {
		return &api.ValidationError{Field: "parent_id", Reason: err.Error(), Err: err}
	}

	dir, err := fs.directory()
	if err != nil {
		return err
	}
	if err := dir.Move(ctx, entry.ID, dest); err != nil {
		fs.handleMutationError("move", err)
		return err
	}
	fs.cache.Invalidate("move", entry.ParentID, dest)
	return nil
}

// Delete removes entry.
func (fs *FileService) Delete(ctx context.Context, entry models.Entry) error {
	dir, err := fs.directory()
	if err != nil {
		return err
	}
	if err := dir.Delete(ctx, entry.ID); err != nil {
		fs.handleMutationError("delete", err)
		return err
	}
	if entry.IsFolder() {
		// Cached listings of the subtree are now stale as well.
		fs.cache.InvalidateAll("delete")
		return nil
	}
	fs.cache.Invalidate("delete", entry.ParentID)
	return nil
}

// SetStarred stars or unstars entry.
func (fs *FileService) SetStarred(ctx context.Context, entry models.Entry, starred bool) error {
	dir, err := fs.directory()
	if err != nil {
		return err
	}
	if err := dir.SetStarred(ctx, entry.ID, starred); err != nil {
		fs.handleMutationError("star", err)
		return err
	}
	fs.cache.Invalidate("star", entry.ParentID)
	return nil
}

// handleMutationError drops every cached listing when the server reports
// that the caller's view is out of date, and asks views to re-list.
func (fs *FileService) handleMutationError(op string, err error) {
	if !api.IsConflictError(err) {
		return
	}
	fs.logger.Warn().Str("op", op).Err(err).Msg("server state changed, resyncing")
	fs.cache.InvalidateAll("conflict")
	fs.eventBus.Publish(&events.ResyncRequiredEvent{
		BaseEvent: events.NewBase(events.EventResyncRequired),
		Op:        op,
		Error:     err,
	})
}

func normalizeName(name string) (string, error) {
	clean, err := validation.NormalizeName(name)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, validation.ErrBlankName) {
			reason = "must not be empty"
		}
		return "", &api.ValidationError{Field: "name", Reason: reason, Err: err}
	}
	return clean, nil
}

// Package services sits between the command line (or any other front end)
// and the remote directory. It owns the listing cache, runs local checks
// before mutations, and drives the list view state.
package services

import (
	"context"
	"errors"
	"io"

	"github.com/keystone-cm/filedesk/internal/api"
	"github.com/keystone-cm/filedesk/internal/models"
)

// Directory is the remote file store. *api.Client is the production
// implementation; tests substitute fakes.
type Directory interface {
	ListAll(ctx context.Context, search string) ([]models.Entry, error)
	ListChildren(ctx context.Context, parentID models.EntryID, search string) ([]models.Entry, error)
	CreateFolder(ctx context.Context, name string, parentID models.EntryID) (*models.Entry, error)
	Rename(ctx context.Context, id models.EntryID, name string) error
	Move(ctx context.Context, id, parentID models.EntryID) error
	Delete(ctx context.Context, id models.EntryID) error
	SetStarred(ctx context.Context, id models.EntryID, starred bool) error
	DownloadURL(ctx context.Context, id models.EntryID) (string, error)
	OpenDownload(ctx context.Context, rawURL string) (io.ReadCloser, int64, error)
	AssignPermission(ctx context.Context, fileID models.EntryID, userID string, p models.Permission) error
	RemovePermission(ctx context.Context, fileID models.EntryID, userID string, p models.Permission) error
	ListPermissions(ctx context.Context, fileID models.EntryID) ([]models.PermissionGrant, error)
}

var _ Directory = (*api.Client)(nil)

var (
	// ErrNoDirectory is returned when a service is used before a client is set.
	ErrNoDirectory = errors.New("remote directory not configured")

	// ErrBusy is returned when an item already has an operation in flight.
	ErrBusy = errors.New("an operation is already in progress for this item")

	// ErrNotInView is returned when an action names an item the list does not show.
	ErrNotInView = errors.New("item is not in the current listing")
)

// DownloadResult reports the outcome of one file in a batch download.
type DownloadResult struct {
	Entry     models.Entry
	LocalPath string
	Bytes     int64
	Err       error
}

// PermissionChange is a single assign or remove call produced by Reconcile.
type PermissionChange struct {
	FileID     models.EntryID
	Permission models.Permission
	Assign     bool // false means remove
}

package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/keystone-cm/filedesk/internal/api"
	"github.com/keystone-cm/filedesk/internal/logging"
	"github.com/keystone-cm/filedesk/internal/models"
)

// PermissionService reads and applies per-user permission grants.
type PermissionService struct {
	dir    Directory
	logger *logging.Logger
}

// NewPermissionService creates a PermissionService over dir.
func NewPermissionService(dir Directory, logger *logging.Logger) *PermissionService {
	if logger == nil {
		logger = logging.NewLogger(os.Stderr, nil)
	}
	return &PermissionService{dir: dir, logger: logger}
}

// Grants lists every grant on fileID.
func (ps *PermissionService) Grants(ctx context.Context, fileID models.EntryID) ([]models.PermissionGrant, error) {
	if ps.dir == nil {
		return nil, ErrNoDirectory
	}
	return ps.dir.ListPermissions(ctx, fileID)
}

// UserPermissions returns the permissions userID currently holds on fileID.
func (ps *PermissionService) UserPermissions(ctx context.Context, fileID models.EntryID, userID string) (models.PermissionSet, error) {
	grants, err := ps.Grants(ctx, fileID)
	if err != nil {
		return 0, err
	}
	var set models.PermissionSet
	for _, g := range grants {
		if g.UserID == userID {
			set = set.Add(g.Permission)
		}
	}
	return set, nil
}

// CurrentSelection builds the selection describing what userID holds on each
// entry. Entries whose grants cannot be fetched are returned with an empty
// set and the first fetch error.
func (ps *PermissionService) CurrentSelection(ctx context.Context, entries []models.Entry, userID string) ([]models.SelectionEntry, error) {
	out := make([]models.SelectionEntry, 0, len(entries))
	var firstErr error
	for _, e := range entries {
		set, err := ps.UserPermissions(ctx, e.ID, userID)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		out = append(out, models.NewSelectionEntry(e, set))
	}
	return out, firstErr
}

// PlanChanges diffs two selections. Entries present only in before lose
// every permission they had; entries only in after gain all of theirs.
func PlanChanges(before, after []models.SelectionEntry) []PermissionChange {
	prev := make(map[models.EntryID]models.PermissionSet, len(before))
	for _, s := range before {
		prev[s.ID] = prev[s.ID] | s.Permissions
	}

	var changes []PermissionChange
	seen := make(map[models.EntryID]bool, len(after))
	for _, s := range after {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		old := prev[s.ID]
		for _, p := range s.Permissions.Diff(old).Slice() {
			changes = append(changes, PermissionChange{FileID: s.ID, Permission: p, Assign: true})
		}
		for _, p := range old.Diff(s.Permissions).Slice() {
			changes = append(changes, PermissionChange{FileID: s.ID, Permission: p})
		}
	}
	for _, s := range before {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		for _, p := range prev[s.ID].Slice() {
			changes = append(changes, PermissionChange{FileID: s.ID, Permission: p})
		}
	}
	return changes
}

// Reconcile issues the assign and remove calls that turn before into after
// for userID. Every change is attempted; failures are joined into the
// returned error. The applied changes are returned either way.
func (ps *PermissionService) Reconcile(ctx context.Context, userID string, before, after []models.SelectionEntry) ([]PermissionChange, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &api.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if ps.dir == nil {
		return nil, ErrNoDirectory
	}

	var applied []PermissionChange
	var errs []error
	for _, c := range PlanChanges(before, after) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		var err error
		if c.Assign {
			err = ps.dir.AssignPermission(ctx, c.FileID, userID, c.Permission)
		} else {
			err = ps.dir.RemovePermission(ctx, c.FileID, userID, c.Permission)
		}
		if err != nil {
			verb := "remove"
			if c.Assign {
				verb = "assign"
			}
			errs = append(errs, fmt.Errorf("%s %s on %s: %w", verb, c.Permission, c.FileID, err))
			continue
		}
		ps.logger.Debug().Str("file", c.FileID.String()).Str("perm", c.Permission.String()).Bool("assign", c.Assign).Msg("permission updated")
		applied = append(applied, c)
	}
	return applied, errors.Join(errs...)
}

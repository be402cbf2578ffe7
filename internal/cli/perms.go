package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keystone-cm/filedesk/internal/events"
	"github.com/keystone-cm/filedesk/internal/models"
	"github.com/keystone-cm/filedesk/internal/services"
	"github.com/keystone-cm/filedesk/internal/state"
)

// newPermsCmd creates the 'perms' command group.
func newPermsCmd() *cobra.Command {
	permsCmd := &cobra.Command{
		Use:   "perms",
		Short: "Manage per-user permissions on files and folders",
		Long: `Permission commands.

Permissions: ` + permissionVocabulary(),
	}

	permsCmd.AddCommand(newPermsListCmd())
	permsCmd.AddCommand(newPermsGrantCmd())
	permsCmd.AddCommand(newPermsRevokeCmd())

	return permsCmd
}

func permissionVocabulary() string {
	names := make([]string, 0, len(models.AllPermissions()))
	for _, p := range models.AllPermissions() {
		names = append(names, p.String())
	}
	return strings.Join(names, ", ")
}

// newPermsListCmd creates the 'perms list' command.
func newPermsListCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "list <file-id>",
		Short: "List permission grants on an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp()
			if err != nil {
				return err
			}
			grants, err := a.perms.Grants(GetContext(), models.ParseEntryID(args[0]))
			if err != nil {
				return fmt.Errorf("failed to list permissions: %w", err)
			}

			w := cmd.OutOrStdout()
			var shown int
			for _, g := range grants {
				if userID != "" && g.UserID != userID {
					continue
				}
				if shown == 0 {
					fmt.Fprintf(w, "%-12s %-24s %-14s %s\n", "FILE ID", "USER", "PERMISSION", "GRANTED")
					fmt.Fprintln(w, strings.Repeat("-", 70))
				}
				granted := ""
				if !g.CreatedAt.IsZero() {
					granted = g.CreatedAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%-12s %-24s %-14s %s\n", g.FileID, g.UserID, g.Permission, granted)
				shown++
			}
			if shown == 0 {
				fmt.Fprintln(w, "No permissions found")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "Only show grants for this user")
	return cmd
}

// grantOptions are the flags for 'perms grant' and 'perms revoke'.
type grantOptions struct {
	userID string
	perms  string
	exact  bool
	dryRun bool
}

// newPermsGrantCmd creates the 'perms grant' command.
func newPermsGrantCmd() *cobra.Command {
	opts := &grantOptions{}

	cmd := &cobra.Command{
		Use:   "grant <id> [id...]",
		Short: "Grant permissions to a user on one or more entries",
		Long: `Grant permissions to a user.

By default the requested permissions are added to what the user already
holds. With --exact every listed entry ends up with exactly the requested
set, and permissions outside it are removed.

Examples:
  filedesk perms grant --user u42 --perm view,edit 10 11
  filedesk perms grant --user u42 --perm view --exact 10`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrant(GetContext(), cmd.OutOrStdout(), args, opts, false)
		},
	}

	bindGrantFlags(cmd, opts)
	cmd.Flags().BoolVar(&opts.exact, "exact", false, "Replace the user's permissions instead of adding to them")
	return cmd
}

// newPermsRevokeCmd creates the 'perms revoke' command.
func newPermsRevokeCmd() *cobra.Command {
	opts := &grantOptions{}

	cmd := &cobra.Command{
		Use:   "revoke <file-id> [file-id...]",
		Short: "Revoke permissions from a user",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrant(GetContext(), cmd.OutOrStdout(), args, opts, true)
		},
	}

	bindGrantFlags(cmd, opts)
	return cmd
}

func bindGrantFlags(cmd *cobra.Command, opts *grantOptions) {
	cmd.Flags().StringVarP(&opts.userID, "user", "u", "", "User id (required)")
	cmd.Flags().StringVar(&opts.perms, "perm", "", "Comma-separated permissions (required): "+permissionVocabulary())
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print the planned changes without applying them")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("perm")
}

func runGrant(ctx context.Context, w io.Writer, args []string, opts *grantOptions, revoke bool) error {
	requested, err := models.ParsePermissionSet(opts.perms)
	if err != nil {
		return err
	}
	if requested.IsEmpty() {
		return fmt.Errorf("--perm must name at least one permission")
	}

	a, err := getApp()
	if err != nil {
		return err
	}

	entries := make([]models.Entry, 0, len(args))
	for _, raw := range args {
		e, err := a.files.Lookup(ctx, models.ParseEntryID(raw))
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}

	return applyGrant(ctx, w, os.Stderr, a.perms, a.bus, entries, requested, opts, revoke)
}

// applyGrant plans and applies the permission changes for entries. When the
// current grants cannot be loaded an additive grant still goes ahead from an
// empty starting point; --exact and revoke need the current state and stop.
func applyGrant(ctx context.Context, w, warn io.Writer, perms *services.PermissionService, bus *events.EventBus,
	entries []models.Entry, requested models.PermissionSet, opts *grantOptions, revoke bool) error {
	before, loadErr := perms.CurrentSelection(ctx, entries, opts.userID)
	if loadErr != nil && (revoke || opts.exact) {
		return fmt.Errorf("failed to load current permissions: %w", loadErr)
	}

	picked, err := pickPermissions(entries, requested, bus, loadErr, warn)
	if err != nil {
		return err
	}

	var after []models.SelectionEntry
	if revoke {
		after = revokeFrom(before, picked)
	} else {
		after = mergeGrants(before, picked, opts.exact)
	}

	planned := services.PlanChanges(before, after)
	if len(planned) == 0 {
		fmt.Fprintln(w, "Nothing to change")
		return nil
	}
	if opts.dryRun {
		printChanges(w, planned, opts.userID)
		return nil
	}

	applied, err := perms.Reconcile(ctx, opts.userID, before, after)
	printChanges(w, applied, opts.userID)
	if err != nil {
		return fmt.Errorf("%d of %d permission changes failed: %w", len(planned)-len(applied), len(planned), err)
	}
	return nil
}

// pickPermissions runs entries through a picker: each entry is selected,
// the requested permissions are toggled on in the permission sheet, and the
// sheet and picker are confirmed. A grants fetch failure is recorded on the
// picker and reported to warn; it does not stop the pick.
func pickPermissions(entries []models.Entry, requested models.PermissionSet, bus *events.EventBus, grantsErr error, warn io.Writer) ([]models.SelectionEntry, error) {
	p := state.NewPicker(nil, bus)
	if grantsErr != nil {
		p.SetGrantsError(grantsErr)
	}
	for _, e := range entries {
		if p.IsSelected(e.ID) {
			continue
		}
		if err := p.Toggle(e); err != nil {
			return nil, err
		}
	}
	if err := p.OpenPermissions(); err != nil {
		return nil, err
	}
	for _, perm := range requested.Slice() {
		if err := p.TogglePermission(perm); err != nil {
			return nil, err
		}
	}
	if err := p.ConfirmPermissions(); err != nil {
		return nil, err
	}
	if err := p.GrantsError(); err != nil {
		fmt.Fprintf(warn, "Warning: could not load current permissions, existing grants were not checked: %v\n", err)
	}
	return p.Confirm()
}

// mergeGrants returns the target selection for a grant: picked as is when
// exact, otherwise the union of what each entry already has and the pick.
func mergeGrants(before, picked []models.SelectionEntry, exact bool) []models.SelectionEntry {
	if exact {
		return picked
	}
	current := make(map[models.EntryID]models.PermissionSet, len(before))
	for _, s := range before {
		current[s.ID] = s.Permissions
	}
	out := make([]models.SelectionEntry, len(picked))
	for i, s := range picked {
		s.Permissions = s.Permissions.Union(current[s.ID])
		out[i] = s
	}
	return out
}

// revokeFrom removes the picked permissions from each entry's current set.
func revokeFrom(before, picked []models.SelectionEntry) []models.SelectionEntry {
	remove := make(map[models.EntryID]models.PermissionSet, len(picked))
	for _, s := range picked {
		remove[s.ID] = s.Permissions
	}
	out := make([]models.SelectionEntry, len(before))
	for i, s := range before {
		s.Permissions = s.Permissions.Diff(remove[s.ID])
		out[i] = s
	}
	return out
}

func printChanges(w io.Writer, changes []services.PermissionChange, userID string) {
	for _, c := range changes {
		verb, sign := "grant", "+"
		if !c.Assign {
			verb, sign = "revoke", "-"
		}
		fmt.Fprintf(w, "%s %-6s %-14s on %s for %s\n", sign, verb, c.Permission, c.FileID, userID)
	}
}

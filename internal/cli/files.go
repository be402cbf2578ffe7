// Package cli provides file operation commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keystone-cm/filedesk/internal/api"
	"github.com/keystone-cm/filedesk/internal/constants"
	"github.com/keystone-cm/filedesk/internal/events"
	"github.com/keystone-cm/filedesk/internal/filter"
	"github.com/keystone-cm/filedesk/internal/hierarchy"
	"github.com/keystone-cm/filedesk/internal/models"
	"github.com/keystone-cm/filedesk/internal/pathutil"
	"github.com/keystone-cm/filedesk/internal/progress"
	"github.com/keystone-cm/filedesk/internal/services"
	"github.com/keystone-cm/filedesk/internal/state"
)

// newFilesCmd creates the 'files' command group.
func newFilesCmd() *cobra.Command {
	filesCmd := &cobra.Command{
		Use:   "files",
		Short: "File and folder operations (list, move, rename, delete, download)",
		Long:  `Commands for browsing and managing entries in the remote file store.`,
	}

	filesCmd.AddCommand(newFilesListCmd())
	filesCmd.AddCommand(newFilesTreeCmd())
	filesCmd.AddCommand(newFilesMkdirCmd())
	filesCmd.AddCommand(newFilesRenameCmd())
	filesCmd.AddCommand(newFilesMoveCmd())
	filesCmd.AddCommand(newFilesDeleteCmd())
	filesCmd.AddCommand(newFilesDownloadCmd())
	filesCmd.AddCommand(newFilesStarCmd(true))
	filesCmd.AddCommand(newFilesStarCmd(false))

	return filesCmd
}

// listOptions are the flags shared by 'files ls' and the 'ls' shortcut.
type listOptions struct {
	parent  string
	all     bool
	search  string
	sortBy  string
	desc    bool
	include string
	exclude string
	paths   string
	folders bool
	files   bool
}

func (o *listOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.parent, "parent", "p", "", "Folder to list (default: root)")
	cmd.Flags().BoolVarP(&o.all, "all", "a", false, "List every entry, not just one folder")
	cmd.Flags().StringVar(&o.search, "search", "", "Server-side name search")
	cmd.Flags().StringVar(&o.sortBy, "sort", "name", "Sort by name, size or created")
	cmd.Flags().BoolVar(&o.desc, "desc", false, "Sort descending")
	cmd.Flags().StringVar(&o.include, "include", "", "Include only names matching these patterns (comma-separated globs, e.g. \"*.csv,*.txt\")")
	cmd.Flags().StringVar(&o.exclude, "exclude", "", "Exclude names matching these patterns (comma-separated globs)")
	cmd.Flags().StringVar(&o.paths, "path", "", "Include only entries whose full path matches (comma-separated, \"**\" spans folders)")
	cmd.Flags().BoolVar(&o.folders, "folders", false, "Show folders only")
	cmd.Flags().BoolVar(&o.files, "files", false, "Show files only")
}

func (o *listOptions) filterConfig() filter.Config {
	return filter.Config{
		Include:     filter.ParsePatternList(o.include),
		Exclude:     filter.ParsePatternList(o.exclude),
		Paths:       filter.ParsePatternList(o.paths),
		FoldersOnly: o.folders,
		FilesOnly:   o.files,
	}
}

// newFilesListCmd creates the 'files ls' command.
func newFilesListCmd() *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List a folder",
		Long: `List the entries of one folder, or of the whole store with --all.

Examples:
  # Top-level entries, newest first
  filedesk files ls --sort created --desc

  # One folder
  filedesk files ls --parent 42

  # Every CSV anywhere under /projects
  filedesk files ls --all --path "projects/**" --include "*.csv"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(GetContext(), cmd.OutOrStdout(), opts)
		},
	}

	opts.bind(cmd)
	return cmd
}

func runList(ctx context.Context, w io.Writer, opts *listOptions) error {
	if opts.folders && opts.files {
		return fmt.Errorf("--folders and --files are mutually exclusive")
	}
	sortBy, err := state.ParseSortField(opts.sortBy)
	if err != nil {
		return err
	}

	a, err := getApp()
	if err != nil {
		return err
	}

	parent := parseDestination(opts.parent)
	st := state.NewFileListState(a.bus)

	var entries []models.Entry
	switch {
	case opts.all:
		entries, err = a.files.ListAll(ctx, false)
		if err == nil && opts.search != "" {
			entries = filter.Apply(entries, filter.Config{Search: []string{opts.search}}, nil)
		}
	case opts.search != "":
		entries, err = a.files.List(ctx, parent, opts.search, false)
	default:
		b := services.NewBrowser(a.files, st, a.bus)
		err = b.Open(ctx, parent)
		entries = st.GetItems()
	}
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}

	cfg := opts.filterConfig()
	var pathOf func(models.Entry) string
	if len(cfg.Paths) > 0 || opts.all {
		h, herr := a.files.Hierarchy(ctx, false)
		if herr != nil {
			return fmt.Errorf("failed to resolve paths: %w", herr)
		}
		pathOf = entryPath(h)
	}

	matched := filter.Apply(entries, cfg, pathOf)
	if len(matched) < len(entries) {
		fmt.Fprintf(w, "Filtered: %d of %d entries match filters\n", len(matched), len(entries))
	}

	st.SetItems(matched)
	st.SetSort(sortBy, !opts.desc)
	printRows(w, st.Rows(), pathOf)
	return nil
}

// entryPath resolves full paths for display; entries not reachable from the
// root fall back to their bare name.
func entryPath(h *hierarchy.Hierarchy) func(models.Entry) string {
	return func(e models.Entry) string {
		if p, ok := h.Path(e.ID); ok {
			return p
		}
		return e.Name
	}
}

func printRows(w io.Writer, rows []state.Row, pathOf func(models.Entry) string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No entries found")
		return
	}

	fmt.Fprintf(w, "Found %d entr%s:\n\n", len(rows), plural(len(rows), "y", "ies"))
	fmt.Fprintf(w, "%-12s %-6s %-40s %12s  %-10s %s\n", "ID", "KIND", "NAME", "SIZE", "CREATED", "")
	fmt.Fprintln(w, strings.Repeat("-", 90))

	for _, r := range rows {
		e := r.Entry
		name := e.Name
		if pathOf != nil {
			name = pathOf(e)
		}
		if e.IsFolder() {
			name += "/"
		}
		size := ""
		if !e.IsFolder() {
			size = formatSize(e.Size)
		}
		created := ""
		if !e.CreatedAt.IsZero() {
			created = e.CreatedAt.Format("2006-01-02")
		}
		mark := ""
		if e.Starred {
			mark = "*"
		}
		fmt.Fprintf(w, "%-12s %-6s %-40s %12s  %-10s %s\n", e.ID, e.Kind, name, size, created, mark)
	}
}

// newFilesTreeCmd creates the 'files tree' command.
func newFilesTreeCmd() *cobra.Command {
	var foldersOnly bool

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the folder hierarchy",
		Long: `Print every folder reachable from the root, depth first.
Files are listed under their folder unless --folders-only is set.
Folders whose parent chain never reaches the root are listed at the end.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp()
			if err != nil {
				return err
			}
			h, err := a.files.Hierarchy(GetContext(), false)
			if err != nil {
				return fmt.Errorf("failed to load hierarchy: %w", err)
			}
			printTree(cmd.OutOrStdout(), h, foldersOnly)
			return nil
		},
	}

	cmd.Flags().BoolVar(&foldersOnly, "folders-only", false, "Omit files")
	return cmd
}

func printTree(w io.Writer, h *hierarchy.Hierarchy, foldersOnly bool) {
	fmt.Fprintln(w, "/")
	if !foldersOnly {
		printFiles(w, h, models.RootID, 1)
	}
	for _, n := range h.Flatten() {
		indent := strings.Repeat("  ", n.Depth+1)
		fmt.Fprintf(w, "%s%s/  (%s)\n", indent, n.Label, n.Entry.ID)
		if !foldersOnly {
			printFiles(w, h, n.Entry.ID, n.Depth+2)
		}
	}

	if orphans := h.Orphans(); len(orphans) > 0 {
		fmt.Fprintf(w, "\nUnreachable from root (%d):\n", len(orphans))
		for _, e := range orphans {
			fmt.Fprintf(w, "  %s/  (%s, parent %s)\n", e.Name, e.ID, e.ParentID)
		}
	}
}

func printFiles(w io.Writer, h *hierarchy.Hierarchy, parent models.EntryID, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, e := range h.Children(parent) {
		if !e.IsFolder() {
			fmt.Fprintf(w, "%s%s  (%s, %s)\n", indent, e.Name, e.ID, formatSize(e.Size))
		}
	}
}

// newFilesMkdirCmd creates the 'files mkdir' command.
func newFilesMkdirCmd() *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "mkdir <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp()
			if err != nil {
				return err
			}
			created, err := a.files.CreateFolder(GetContext(), args[0], parseDestination(parent))
			if err != nil {
				return fmt.Errorf("failed to create folder: %w", err)
			}
			GetLogger().Info().Str("id", created.ID.String()).Str("name", created.Name).Msg("Folder created")
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created folder %s (%s)\n", created.Name, created.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&parent, "parent", "p", "", "Parent folder id (default: root)")
	return cmd
}

// newFilesRenameCmd creates the 'files rename' command.
func newFilesRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a file or folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := models.ParseEntryID(args[0])
			err := withItem(GetContext(), id, func(ctx context.Context, b *services.Browser) error {
				return b.Rename(ctx, id, args[1])
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Renamed %s\n", id)
			return nil
		},
	}
}

// newFilesMoveCmd creates the 'files mv' command.
func newFilesMoveCmd() *cobra.Command {
	var listTargets bool

	cmd := &cobra.Command{
		Use:   "mv <id> [dest-id|root]",
		Short: "Move a file or folder",
		Long: `Move an entry into another folder. Use "root" or "/" for the top level.

The destination is checked before anything is sent: moving an entry into
its current folder, into itself or into one of its own subfolders is
refused.

Use --targets to print every folder with the ones that are not valid
destinations for this entry marked.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			id := models.ParseEntryID(args[0])

			if listTargets {
				return printMoveTargets(ctx, cmd.OutOrStdout(), id)
			}
			if len(args) != 2 {
				return fmt.Errorf("destination is required (or use --targets)")
			}

			dest, err := resolveDestination(ctx, args[1])
			if err != nil {
				return err
			}
			err = withItem(ctx, id, func(ctx context.Context, b *services.Browser) error {
				return b.Move(ctx, id, dest)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Moved %s to %s\n", id, describeFolder(dest))
			return nil
		},
	}

	cmd.Flags().BoolVar(&listTargets, "targets", false, "List possible destinations instead of moving")
	return cmd
}

func printMoveTargets(ctx context.Context, w io.Writer, id models.EntryID) error {
	a, err := getApp()
	if err != nil {
		return err
	}
	source, err := a.files.Lookup(ctx, id)
	if err != nil {
		return err
	}
	targets, err := a.files.MoveTargets(ctx, source)
	if err != nil {
		return fmt.Errorf("failed to list destinations: %w", err)
	}

	fmt.Fprintf(w, "Destinations for %s:\n\n", source.Name)
	for _, d := range targets {
		indent := strings.Repeat("  ", d.Node.Depth+1)
		line := fmt.Sprintf("%s%s", indent, d.Node.Label)
		if !d.Node.Entry.ID.IsRoot() {
			line += fmt.Sprintf("  (%s)", d.Node.Entry.ID)
		}
		if d.Disabled {
			line += fmt.Sprintf("  [not allowed: %s]", d.Reason)
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

// newFilesDeleteCmd creates the 'files rm' command.
func newFilesDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "rm <id> [id...]",
		Aliases: []string{"delete"},
		Short:   "Delete files or folders",
		Long: `Delete one or more entries.

WARNING: This operation cannot be undone! Deleting a folder deletes
everything inside it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !yes {
				fmt.Fprintf(out, "You are about to delete %d entr%s. This cannot be undone.\n", len(args), plural(len(args), "y", "ies"))
				if !confirm(stdinReader, out, "Are you sure?") {
					fmt.Fprintln(out, "Deletion cancelled")
					return nil
				}
			}

			ctx := GetContext()
			var failed int
			for i, raw := range args {
				id := models.ParseEntryID(raw)
				fmt.Fprintf(out, "[%d/%d] Deleting %s...\n", i+1, len(args), id)
				err := withItem(ctx, id, func(ctx context.Context, b *services.Browser) error {
					return b.Delete(ctx, id)
				})
				if err != nil {
					failed++
					fmt.Fprintf(out, "✗ %v\n", err)
					continue
				}
				fmt.Fprintln(out, "✓ Deleted")
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d deletions failed", failed, len(args))
			}
			fmt.Fprintf(out, "\n✓ Successfully deleted %d entr%s\n", len(args), plural(len(args), "y", "ies"))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")
	return cmd
}

// newFilesDownloadCmd creates the 'files download' command.
func newFilesDownloadCmd() *cobra.Command {
	var outputDir string
	var maxConcurrent int

	cmd := &cobra.Command{
		Use:   "download <id> [id...]",
		Short: "Download files",
		Long: `Download one or more files into a local directory.

Free disk space is checked before each file is written. Files that would
land on the same local name get their id appended.

Examples:
  filedesk files download 10
  filedesk files download 10 11 12 --outdir ./results --max-concurrent 3`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(GetContext(), cmd.OutOrStdout(), args, outputDir, maxConcurrent)
		},
	}

	cmd.Flags().StringVarP(&outputDir, "outdir", "o", ".", "Output directory")
	cmd.Flags().IntVarP(&maxConcurrent, "max-concurrent", "m", constants.DefaultMaxConcurrent,
		fmt.Sprintf("Maximum concurrent downloads (%d-%d)", constants.MinMaxConcurrent, constants.MaxMaxConcurrent))
	return cmd
}

func runDownload(ctx context.Context, w io.Writer, args []string, outputDir string, maxConcurrent int) error {
	if maxConcurrent < constants.MinMaxConcurrent || maxConcurrent > constants.MaxMaxConcurrent {
		return fmt.Errorf("--max-concurrent must be between %d and %d, got %d",
			constants.MinMaxConcurrent, constants.MaxMaxConcurrent, maxConcurrent)
	}

	outputDir, err := pathutil.ResolveDir(outputDir)
	if err != nil {
		return fmt.Errorf("failed to resolve output directory: %w", err)
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

	if len(entries) == 1 {
		id := entries[0].ID
		var localPath string
		err := withItem(ctx, id, func(ctx context.Context, b *services.Browser) error {
			var derr error
			localPath, derr = b.Download(ctx, id, outputDir, progress.NewCLIProgress())
			return derr
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "✓ Saved %s\n", localPath)
		return nil
	}

	bars := progress.NewMultiBar(len(entries))
	results := a.files.DownloadMany(ctx, entries, outputDir, maxConcurrent,
		func(index int, e models.Entry, localPath string) progress.Reporter {
			return bars.AddFileBar(index, e.ID.String(), e.Name, localPath, e.Size)
		})
	bars.Wait()

	var failed int
	var total int64
	for _, r := range results {
		if r.Err != nil {
			failed++
			GetLogger().Error().Err(r.Err).Str("id", r.Entry.ID.String()).Msg("Download failed")
			continue
		}
		total += r.Bytes
	}
	fmt.Fprintf(w, "\nDownloaded %d of %d files (%s)\n", len(results)-failed, len(results), formatSize(total))
	if failed > 0 {
		return fmt.Errorf("%d download(s) failed", failed)
	}
	return nil
}

// newFilesStarCmd creates 'files star' or 'files unstar'.
func newFilesStarCmd(starred bool) *cobra.Command {
	use, short := "star", "Mark an entry as starred"
	if !starred {
		use, short = "unstar", "Remove the star from an entry"
	}

	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := models.ParseEntryID(args[0])
			err := withItem(GetContext(), id, func(ctx context.Context, b *services.Browser) error {
				e, _ := b.State().FindByID(id)
				if e.Starred == starred {
					return nil
				}
				return b.ToggleStar(ctx, id)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s %s\n", strings.ToUpper(use[:1])+use[1:]+"red", id)
			return nil
		},
	}
}

// withItem opens the folder holding id in a Browser and runs fn against it,
// so the action goes through the same busy tracking and failure
// notifications as any other list view. Notifications are echoed to stderr.
func withItem(ctx context.Context, id models.EntryID, fn func(context.Context, *services.Browser) error) error {
	a, err := getApp()
	if err != nil {
		return err
	}
	entry, err := a.files.Lookup(ctx, id)
	if err != nil {
		return err
	}

	notes := a.bus.Subscribe(events.EventNotification)
	defer a.bus.Unsubscribe(events.EventNotification, notes)

	b := a.newBrowser()
	if err := b.Open(ctx, entry.ParentID); err != nil {
		return err
	}
	err = fn(ctx, b)
	printNotifications(os.Stderr, notes)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrBusy):
		return fmt.Errorf("%s is busy with another operation", id)
	case api.IsUnauthorized(err):
		return fmt.Errorf("not authorized: check your token (%w)", err)
	default:
		return err
	}
}

// printNotifications drains pending notifications without blocking.
func printNotifications(w io.Writer, ch <-chan events.Event) {
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if n, ok := ev.(*events.NotificationEvent); ok {
				fmt.Fprintf(w, "%s: %s\n", n.Level, n.Message)
			}
		default:
			return
		}
	}
}

// parseDestination maps "", "root" and "/" to the root folder.
func parseDestination(s string) models.EntryID {
	return models.ParseEntryID(s)
}

// resolveDestination parses a typed destination and maps a legacy root id to
// the root unless a real folder carries that id.
func resolveDestination(ctx context.Context, s string) (models.EntryID, error) {
	dest := parseDestination(s)
	if dest.IsRoot() {
		return dest, nil
	}
	a, err := getApp()
	if err != nil {
		return "", err
	}
	h, err := a.files.Hierarchy(ctx, false)
	if err != nil {
		return "", err
	}
	return a.client.RootShim().NormalizeID(dest, func(id models.EntryID) bool {
		_, ok := h.Lookup(id)
		return ok
	}), nil
}

func describeFolder(id models.EntryID) string {
	if id.IsRoot() {
		return "/"
	}
	return "folder " + id.String()
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

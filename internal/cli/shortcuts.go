// Package cli provides command shortcuts for common operations.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keystone-cm/filedesk/internal/constants"
)

// AddShortcuts adds shortcut commands to the root command.
// Shortcuts provide convenient aliases for commonly-used operations.
func AddShortcuts(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newDownloadShortcut())
	rootCmd.AddCommand(newLsShortcut())
}

// newDownloadShortcut creates the 'download' shortcut command.
// Shortcut for: files download
func newDownloadShortcut() *cobra.Command {
	var outputDir string
	var maxConcurrent int

	cmd := &cobra.Command{
		Use:   "download <file-id> [file-id...]",
		Short: "Download files (shortcut for 'files download')",
		Long: `Shortcut for downloading files.

Equivalent to: filedesk files download <ids>

Examples:
  filedesk download 10
  filedesk download 10 11 --outdir ./downloads`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(GetContext(), cmd.OutOrStdout(), args, outputDir, maxConcurrent)
		},
	}

	cmd.Flags().StringVarP(&outputDir, "outdir", "o", ".", "Output directory for downloaded files")
	cmd.Flags().IntVarP(&maxConcurrent, "max-concurrent", "m", constants.DefaultMaxConcurrent,
		fmt.Sprintf("Maximum concurrent downloads (%d-%d)", constants.MinMaxConcurrent, constants.MaxMaxConcurrent))

	return cmd
}

// newLsShortcut creates the 'ls' shortcut command.
// Shortcut for: files ls
func newLsShortcut() *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "ls [folder-id]",
		Short: "List a folder (shortcut for 'files ls')",
		Long: `Shortcut for listing a folder.

Equivalent to: filedesk files ls --parent <folder-id>

Examples:
  filedesk ls
  filedesk ls 42 --sort size --desc`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.parent = args[0]
			}
			return runList(GetContext(), cmd.OutOrStdout(), opts)
		},
	}

	opts.bind(cmd)
	return cmd
}

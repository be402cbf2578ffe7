package cli

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestDownloadShortcut(t *testing.T) {
	cmd := newDownloadShortcut()
	if cmd == nil {
		t.Fatal("newDownloadShortcut() returned nil")
	}

	if cmd.Use != "download <file-id> [file-id...]" {
		t.Errorf("Use = %q, want %q", cmd.Use, "download <file-id> [file-id...]")
	}
	if cmd.RunE == nil {
		t.Error("RunE function is nil")
	}

	for _, name := range []string{"outdir", "max-concurrent"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("--%s flag not found", name)
		}
	}
}

func TestLsShortcut(t *testing.T) {
	cmd := newLsShortcut()
	if cmd == nil {
		t.Fatal("newLsShortcut() returned nil")
	}

	if cmd.Use != "ls [folder-id]" {
		t.Errorf("Use = %q, want %q", cmd.Use, "ls [folder-id]")
	}
	if err := cmd.Args(cmd, []string{"1", "2"}); err == nil {
		t.Error("Args accepted two folder ids")
	}

	for _, name := range []string{"parent", "all", "search", "sort", "desc", "include", "exclude", "path"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("--%s flag not found", name)
		}
	}
}

// TestAddShortcuts tests that shortcuts are added to root command
func TestAddShortcuts(t *testing.T) {
	rootCmd := &cobra.Command{Use: "filedesk"}
	AddShortcuts(rootCmd)

	found := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		found[cmd.Name()] = true
	}
	for _, name := range []string{"download", "ls"} {
		if !found[name] {
			t.Errorf("shortcut %q not registered", name)
		}
	}
}

func TestCommandTree(t *testing.T) {
	rootCmd := NewRootCmd()
	AddCommands(rootCmd)

	tests := [][]string{
		{"files", "ls"},
		{"files", "tree"},
		{"files", "mkdir"},
		{"files", "rename"},
		{"files", "mv"},
		{"files", "rm"},
		{"files", "download"},
		{"files", "star"},
		{"files", "unstar"},
		{"perms", "list"},
		{"perms", "grant"},
		{"perms", "revoke"},
		{"config", "init"},
		{"config", "show"},
		{"config", "path"},
		{"config", "test"},
		{"version"},
	}

	for _, path := range tests {
		cmd, _, err := rootCmd.Find(path)
		if err != nil {
			t.Errorf("Find(%v) error = %v", path, err)
			continue
		}
		if cmd.Name() != path[len(path)-1] {
			t.Errorf("Find(%v) = %q", path, cmd.Name())
		}
	}

	for _, flag := range []string{"config", "base-url", "token", "token-file", "verbose", "debug", "metrics"} {
		if rootCmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag --%s not found", flag)
		}
	}
}

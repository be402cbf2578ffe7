// Package cli provides configuration management commands.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/keystone-cm/filedesk/internal/api"
	"github.com/keystone-cm/filedesk/internal/auth"
	"github.com/keystone-cm/filedesk/internal/config"
	"github.com/keystone-cm/filedesk/internal/constants"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage filedesk configuration",
		Long: `Configuration management commands for filedesk.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  test  - Test API connection
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.GetDefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for filedesk.

The configuration is saved to ~/.config/filedesk/config.ini and the API
token to a separate file (~/.config/filedesk/token, mode 0600).

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := configPath()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			fmt.Fprintln(out, "filedesk Configuration Setup")
			fmt.Fprintln(out, "============================")
			fmt.Fprintln(out)

			cfg, err := runInitPrompts(stdinReader, out)
			if err != nil {
				return err
			}

			var apiToken string
			for apiToken == "" {
				apiToken, err = promptSecret("API token (required)")
				if err != nil {
					return err
				}
				if apiToken == "" {
					fmt.Fprintln(out, "  Error: API token is required")
				}
			}
			if err := auth.CheckExpiry(apiToken, time.Now(), 0); err != nil {
				fmt.Fprintf(out, "  Warning: %v\n", err)
			}

			return saveInitConfig(out, cfg, apiToken, path)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	return cmd
}

// runInitPrompts asks for everything except the token.
func runInitPrompts(r *bufio.Reader, out io.Writer) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error
	for cfg.BaseURL == "" {
		cfg.BaseURL, err = promptLine(r, out, "API base URL (required)", "")
		if err != nil {
			return nil, err
		}
	}
	if !strings.HasPrefix(cfg.BaseURL, "http") {
		cfg.BaseURL = "https://" + cfg.BaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	retries, err := promptLine(r, out, "Max retries", strconv.Itoa(cfg.MaxRetries))
	if err != nil {
		return nil, err
	}
	if v, err := strconv.Atoi(retries); err == nil && v >= 0 {
		cfg.MaxRetries = v
	}

	fmt.Fprintln(out)
	useProxy, err := promptLine(r, out, "Configure proxy? [y/N]", "n")
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(strings.ToLower(useProxy), "y") {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Proxy Configuration")
		fmt.Fprintln(out, "-------------------")
		fmt.Fprintln(out, "Proxy modes: no-proxy, system, basic, ntlm")
		if cfg.ProxyMode, err = promptLine(r, out, "Proxy mode", "system"); err != nil {
			return nil, err
		}
		if cfg.ProxyMode == "basic" || cfg.ProxyMode == "ntlm" {
			if cfg.ProxyHost, err = promptLine(r, out, "Proxy host", ""); err != nil {
				return nil, err
			}
			port, err := promptLine(r, out, "Proxy port", "8080")
			if err != nil {
				return nil, err
			}
			if v, err := strconv.Atoi(port); err == nil && v > 0 {
				cfg.ProxyPort = v
			}
			if cfg.ProxyUser, err = promptLine(r, out, "Proxy user (optional)", ""); err != nil {
				return nil, err
			}
		}
	}

	return cfg, nil
}

func saveInitConfig(out io.Writer, cfg *config.Config, apiToken, path string) error {
	tokenPath := config.GetDefaultTokenPath()
	if tokenPath == "" {
		return fmt.Errorf("could not determine config directory for the token file")
	}
	if err := config.WriteTokenFile(tokenPath, apiToken); err != nil {
		return fmt.Errorf("failed to save API token file: %w", err)
	}
	GetLogger().Info().Str("path", tokenPath).Msg("API token saved")

	cfg.TokenFile = tokenPath
	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	GetLogger().Info().Str("path", path).Msg("Configuration saved")

	fmt.Fprintln(out)
	fmt.Fprintf(out, "✓ Configuration saved to: %s\n", path)
	fmt.Fprintf(out, "✓ API token saved to: %s\n", tokenPath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Test your configuration with: filedesk config test")
	return nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (~/.config/filedesk/config.ini)
  2. Token file
  3. Environment variables (FILEDESK_TOKEN, FILEDESK_BASE_URL)
  4. Command-line flags (--token, --token-file, --base-url)

Priority: flags > environment > token file > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			printConfig(cmd.OutOrStdout(), cfg, configPath())
			return nil
		},
	}
}

func printConfig(w io.Writer, cfg *config.Config, path string) {
	fmt.Fprintln(w, "Current Configuration")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "API Settings:")
	fmt.Fprintf(w, "  Base URL:    %s\n", cfg.BaseURL)
	if cfg.Token != "" {
		// Never display any portion of the token.
		fmt.Fprintf(w, "  Token:       <set (%d chars)>\n", len(cfg.Token))
		if info, err := auth.Inspect(cfg.Token); err == nil && info.IsJWT && !info.ExpiresAt.IsZero() {
			fmt.Fprintf(w, "  Expires:     %s\n", info.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
		}
	} else {
		fmt.Fprintln(w, "  Token:       <not set>")
	}
	if cfg.TokenFile != "" {
		fmt.Fprintf(w, "  Token File:  %s\n", cfg.TokenFile)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Request Settings:")
	fmt.Fprintf(w, "  Timeout:     %s\n", cfg.Timeout)
	fmt.Fprintf(w, "  Max Retries: %d\n", cfg.MaxRetries)
	fmt.Fprintf(w, "  Read Rate:   %g/s\n", cfg.ReadRate)
	fmt.Fprintf(w, "  Write Rate:  %g/s\n", cfg.WriteRate)
	if len(cfg.LegacyRootIDs) > 0 {
		fmt.Fprintf(w, "  Legacy Root IDs: %s\n", strings.Join(cfg.LegacyRootIDs, ", "))
	}
	if cfg.LogFile != "" {
		fmt.Fprintf(w, "  Log File:    %s\n", cfg.LogFile)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Proxy Settings:")
	fmt.Fprintf(w, "  Proxy Mode: %s\n", cfg.ProxyMode)
	if cfg.ProxyHost != "" {
		fmt.Fprintf(w, "  Proxy Host: %s\n", cfg.ProxyHost)
		fmt.Fprintf(w, "  Proxy Port: %d\n", cfg.ProxyPort)
	}
	if cfg.NoProxy != "" {
		fmt.Fprintf(w, "  No Proxy:   %s\n", cfg.NoProxy)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Configuration file: %s\n", path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(w, "  (file does not exist - using defaults)")
	}
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test API connection",
		Long: `Test the API connection with current configuration.

Use this to verify your API token and network connectivity.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			log := GetLogger()

			fmt.Fprintln(out, "Testing API Connection")
			fmt.Fprintln(out, "======================")
			fmt.Fprintln(out)

			a, err := getApp()
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "API URL: %s\n", a.cfg.BaseURL)
			fmt.Fprintln(out, "Testing connection...")
			fmt.Fprintln(out)

			ctx, cancel := context.WithTimeout(GetContext(), constants.APIConnectionTestTimeout)
			defer cancel()

			start := time.Now()
			if err := a.client.Ping(ctx); err != nil {
				log.Error().Err(err).Msg("Connection test failed")
				fmt.Fprintln(out, "✗ Connection FAILED")
				fmt.Fprintf(out, "  Error: %v\n", err)
				if hint := connectionHint(err); hint != "" {
					fmt.Fprintf(out, "  Hint:  %s\n", hint)
				}
				return fmt.Errorf("connection test failed")
			}

			log.Info().Dur("elapsed", time.Since(start)).Msg("Connection test successful")
			fmt.Fprintln(out, "✓ Connection SUCCESSFUL")
			fmt.Fprintf(out, "  Round trip: %s\n", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func connectionHint(err error) string {
	switch {
	case api.IsUnauthorized(err):
		return "the token was rejected; run 'filedesk config init --force' to store a new one"
	case api.IsNetworkError(err):
		return "the server could not be reached; check base_url and proxy settings"
	default:
		return ""
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Long:  `Display the path to the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := configPath()
			if cfgFile == "" {
				fmt.Fprintln(out, "Default configuration path:")
			} else {
				fmt.Fprintln(out, "Configuration path (from --config flag):")
			}
			fmt.Fprintf(out, "  %s\n", path)
			fmt.Fprintln(out)

			if info, err := os.Stat(path); err == nil {
				fmt.Fprintln(out, "Status: ✓ File exists")
				fmt.Fprintf(out, "Size:   %d bytes\n", info.Size())
				fmt.Fprintf(out, "Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Status: File does not exist")
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Create a configuration file with: filedesk config init")
			}
			return nil
		},
	}
}

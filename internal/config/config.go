// Package config provides configuration management for filedesk.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/ini.v1"

	"github.com/keystone-cm/filedesk/internal/constants"
)

// SectionName is the INI section holding all filedesk settings.
const SectionName = "filedesk"

// Environment variables consulted by MergeWithFlags.
const (
	EnvBaseURL = "FILEDESK_BASE_URL"
	EnvToken   = "FILEDESK_TOKEN"
)

// Config holds everything needed to reach the file store.
//
// INI format:
//
//	[filedesk]
//	base_url = https://files.example.com/api
//	token_file = ~/.config/filedesk/token
//	timeout = 30s
//	max_retries = 5
//	read_rate = 10
//	write_rate = 4
//	legacy_root_ids = 1,2
//	log_file =
//	proxy_mode = no-proxy
//	proxy_host =
//	proxy_port = 0
//	proxy_user =
//	no_proxy =
type Config struct {
	// Connection settings
	BaseURL   string
	Token     string // never written to the INI file
	TokenFile string
	Timeout   time.Duration

	// Retry and rate limit settings
	MaxRetries int
	ReadRate   float64
	WriteRate  float64

	// LegacyRootIDs are parent ids the backend uses for top-level entries in
	// older listings. They are mapped to the root when no listed entry has that id.
	LegacyRootIDs []string

	// LogFile, when set, receives a copy of all log output.
	LogFile string

	// Proxy settings
	ProxyMode     string // "no-proxy", "ntlm", "basic", "system"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string // never written to the INI file
	NoProxy       string // Comma-separated list of hosts to bypass proxy
	ProxyWarmup   bool
}

// Validation errors
var (
	ErrMissingBaseURL   = errors.New("base_url is required")
	ErrMissingToken     = errors.New("API token is required (set via FILEDESK_TOKEN, --token or --token-file)")
	ErrInvalidBaseURL   = errors.New("base_url must be an absolute http(s) URL")
	ErrInvalidRetries   = errors.New("max_retries must be between 0 and 20")
	ErrInvalidRate      = errors.New("read_rate and write_rate must be positive")
	ErrInvalidProxy     = errors.New("proxy_mode must be one of no-proxy, system, basic, ntlm")
	ErrMissingProxyHost = errors.New("proxy_host is required for basic and ntlm proxy modes")
)

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Timeout:       constants.APIContextTimeout,
		MaxRetries:    constants.MaxRetries,
		ReadRate:      constants.ReadRatePerSecond,
		WriteRate:     constants.WriteRatePerSecond,
		LegacyRootIDs: []string{"1", "2"},
		ProxyMode:     "no-proxy",
	}
}

// Load reads configuration from an INI file.
// If the file doesn't exist, returns a config with default values and no error.
// If the file exists but is invalid, returns an error.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		path = GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	s := iniFile.Section(SectionName)
	cfg.BaseURL = s.Key("base_url").MustString(cfg.BaseURL)
	cfg.TokenFile = expandHome(s.Key("token_file").String())
	cfg.Timeout = s.Key("timeout").MustDuration(cfg.Timeout)
	cfg.MaxRetries = s.Key("max_retries").MustInt(cfg.MaxRetries)
	cfg.ReadRate = s.Key("read_rate").MustFloat64(cfg.ReadRate)
	cfg.WriteRate = s.Key("write_rate").MustFloat64(cfg.WriteRate)
	if s.HasKey("legacy_root_ids") {
		cfg.LegacyRootIDs = splitList(s.Key("legacy_root_ids").String())
	}
	cfg.LogFile = expandHome(s.Key("log_file").String())

	cfg.ProxyMode = s.Key("proxy_mode").MustString(cfg.ProxyMode)
	cfg.ProxyHost = s.Key("proxy_host").String()
	cfg.ProxyPort = s.Key("proxy_port").MustInt(0)
	cfg.ProxyUser = s.Key("proxy_user").String()
	cfg.NoProxy = s.Key("no_proxy").String()
	cfg.ProxyWarmup = s.Key("proxy_warmup").MustBool(false)

	return cfg, nil
}

// Save writes configuration to an INI file.
// Creates parent directories if they don't exist. Secrets (token, proxy
// password) are never written.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = GetDefaultConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()
	s, err := iniFile.NewSection(SectionName)
	if err != nil {
		return fmt.Errorf("failed to create %s section: %w", SectionName, err)
	}
	s.Key("base_url").SetValue(cfg.BaseURL)
	s.Key("token_file").SetValue(cfg.TokenFile)
	s.Key("timeout").SetValue(cfg.Timeout.String())
	s.Key("max_retries").SetValue(strconv.Itoa(cfg.MaxRetries))
	s.Key("read_rate").SetValue(strconv.FormatFloat(cfg.ReadRate, 'f', -1, 64))
	s.Key("write_rate").SetValue(strconv.FormatFloat(cfg.WriteRate, 'f', -1, 64))
	s.Key("legacy_root_ids").SetValue(strings.Join(cfg.LegacyRootIDs, ","))
	s.Key("log_file").SetValue(cfg.LogFile)
	s.Key("proxy_mode").SetValue(cfg.ProxyMode)
	s.Key("proxy_host").SetValue(cfg.ProxyHost)
	s.Key("proxy_port").SetValue(strconv.Itoa(cfg.ProxyPort))
	s.Key("proxy_user").SetValue(cfg.ProxyUser)
	s.Key("no_proxy").SetValue(cfg.NoProxy)
	s.Key("proxy_warmup").SetValue(strconv.FormatBool(cfg.ProxyWarmup))

	// Use temporary file + rename for atomicity
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// MergeWithFlags layers environment variables, the token file and
// command-line flags over the loaded file values.
// Token priority (highest to lowest):
//  1. --token flag
//  2. FILEDESK_TOKEN environment variable
//  3. --token-file flag
//  4. token_file from the config file
//  5. Default token file (~/.config/filedesk/token)
//
// Base URL priority: --base-url flag > FILEDESK_BASE_URL > config file.
func (c *Config) MergeWithFlags(token, tokenFilePath, baseURL string) {
	var sources []string

	var fileToken string
	for _, candidate := range []string{GetDefaultTokenPath(), c.TokenFile, tokenFilePath} {
		if candidate == "" {
			continue
		}
		if t, err := ReadTokenFile(candidate); err == nil {
			fileToken = t
			sources = append(sources, "token file "+candidate)
		}
	}

	envToken := os.Getenv(EnvToken)
	if envToken != "" {
		sources = append(sources, EnvToken+" environment variable")
	}
	if token != "" {
		sources = append(sources, "--token flag")
	}

	if len(sources) > 1 {
		log.Debug().Strs("sources", sources).Msgf("Multiple token sources detected, using %s", sources[len(sources)-1])
	}

	if fileToken != "" {
		c.Token = fileToken
	}
	if envToken != "" {
		c.Token = envToken
	}
	if token != "" {
		c.Token = strings.TrimSpace(token)
	}

	if envURL := os.Getenv(EnvBaseURL); envURL != "" {
		c.BaseURL = envURL
	}
	if baseURL != "" {
		c.BaseURL = baseURL
	}

	// Ensure HTTPS scheme
	if c.BaseURL != "" && !strings.HasPrefix(c.BaseURL, "http") {
		c.BaseURL = "https://" + c.BaseURL
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
}

// Validate checks if the configuration is usable for API calls.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return ErrMissingBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidBaseURL
	}
	if strings.TrimSpace(c.Token) == "" {
		return ErrMissingToken
	}
	if c.MaxRetries < 0 || c.MaxRetries > 20 {
		return ErrInvalidRetries
	}
	if c.ReadRate <= 0 || c.WriteRate <= 0 {
		return ErrInvalidRate
	}
	switch strings.ToLower(c.ProxyMode) {
	case "", "no-proxy", "system":
	case "basic", "ntlm":
		if c.ProxyHost == "" {
			return ErrMissingProxyHost
		}
	default:
		return ErrInvalidProxy
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

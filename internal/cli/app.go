package cli

import (
	"fmt"
	"os"
	"sync"

	"github.com/keystone-cm/filedesk/internal/api"
	"github.com/keystone-cm/filedesk/internal/config"
	"github.com/keystone-cm/filedesk/internal/events"
	"github.com/keystone-cm/filedesk/internal/services"
	"github.com/keystone-cm/filedesk/internal/state"
)

// app bundles what every remote command needs. It is built once per
// invocation by getApp.
type app struct {
	cfg    *config.Config
	client *api.Client
	bus    *events.EventBus
	files  *services.FileService
	perms  *services.PermissionService
}

var (
	current   *app
	closeOnce sync.Once
)

// loadConfig reads the config file and layers env vars, the token file and
// flags on top. Priority: flags > environment > token file > config file > defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg.MergeWithFlags(token, tokenFile, baseURL)
	return cfg, nil
}

// getApp loads and validates configuration and creates the API client and
// services. This is the standard way to reach the server from a command.
func getApp() (*app, error) {
	if current != nil {
		return current, nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log := GetLogger()
	if cfg.LogFile != "" {
		if err := log.AddFile(cfg.LogFile); err != nil {
			log.Warn().Err(err).Str("path", cfg.LogFile).Msg("Could not open log file")
		}
	}

	client, err := api.NewClient(cfg,
		api.WithLogger(log.Zerolog()),
		api.WithMetrics(api.NewMetrics()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	bus := events.NewEventBus(256)
	current = &app{
		cfg:    cfg,
		client: client,
		bus:    bus,
		files:  services.NewFileService(client, bus, services.WithServiceLogger(log)),
		perms:  services.NewPermissionService(client, log),
	}
	return current, nil
}

// newBrowser returns a list renderer bound to the app's file service.
func (a *app) newBrowser() *services.Browser {
	return services.NewBrowser(a.files, state.NewFileListState(a.bus), a.bus)
}

// closeApp prints metrics when requested and releases the log file.
func closeApp() {
	closeOnce.Do(func() {
		if current == nil {
			return
		}
		if dumpMetrics {
			if err := current.client.Metrics().WriteText(os.Stderr); err != nil {
				GetLogger().Warn().Err(err).Msg("Could not write metrics")
			}
		}
		current.bus.Close()
		if err := GetLogger().Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
	})
}

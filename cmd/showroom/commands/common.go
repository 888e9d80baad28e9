package commands

import (
	"errors"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/showroom/internal/config"
	"git.home.luguber.info/inful/showroom/internal/observability"
)

// DefaultConfigPath is used when --config is not given.
const DefaultConfigPath = "showroom.yaml"

// Global context passed to subcommands.
type Global struct {
	Logging *observability.Logging
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"${default_config}" env:"SHOWROOM_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run       RunCmd       `cmd:"" default:"withargs" help:"Run the kiosk runtime (sync, heartbeat, playback, local API)"`
	Init      InitCmd      `cmd:"" help:"Write an example configuration file"`
	Provision ProvisionCmd `cmd:"" help:"Provision this device's identity and register it with the fleet"`
	Sync      SyncCmd      `cmd:"" help:"Fetch the store document once and print a summary"`
	Playlist  PlaylistCmd  `cmd:"" help:"Print the idle playlist built from the current document"`
}

// AfterApply runs after flag parsing; sets up console logging before the
// config file is read. Commands that load the config replace it.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply(g *Global) error {
	level := "info"
	if c.Verbose {
		level = "debug"
	}
	g.Logging = observability.NewLogging(config.LoggingConfig{Level: level}, nil).Install()
	return nil
}

// loadConfig reads the config file and switches logging to its settings.
// A missing default config file falls back to the built-in defaults, in
// which case the returned path is empty.
func loadConfig(g *Global, root *CLI) (*config.Config, string, error) {
	path := root.Config
	if path == DefaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	logCfg := cfg.Logging
	if root.Verbose {
		logCfg.Level = "debug"
	}
	if g.Logging != nil {
		_ = g.Logging.Close()
	}
	g.Logging = observability.NewLogging(logCfg, nil).Install()
	slog.Debug("Configuration loaded", slog.String("path", path))
	return cfg, path, nil
}

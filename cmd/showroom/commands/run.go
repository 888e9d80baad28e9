package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/showroom/internal/config"
	"git.home.luguber.info/inful/showroom/internal/events"
	"git.home.luguber.info/inful/showroom/internal/kiosk"
	"git.home.luguber.info/inful/showroom/internal/logfields"
	"git.home.luguber.info/inful/showroom/internal/observability"
)

const stopTimeout = 30 * time.Second

// RunCmd implements the 'run' command.
type RunCmd struct {
	Addr       string `help:"Override the local API listen address"`
	NoPlayback bool   `name:"no-playback" help:"Disable the idle playback engine"`
}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	cfg, path, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	if r.Addr != "" {
		cfg.HTTP.Addr = r.Addr
	}
	if r.NoPlayback {
		cfg.Playback.Enabled = false
	}
	return RunKiosk(cfg, path, g.Logging)
}

// RunKiosk runs the kiosk until SIGINT/SIGTERM or a remote restart request.
// A restart exits cleanly and leaves relaunching to the service manager.
func RunKiosk(cfg *config.Config, configPath string, logging *observability.Logging) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	restart := make(chan events.RestartRequested, 1)
	rt, err := kiosk.New(ctx, cfg, kiosk.Options{
		ConfigPath: configPath,
		Logging:    logging,
		OnRestart: func(evt events.RestartRequested) {
			select {
			case restart <- evt:
			default:
			}
		},
	})
	if err != nil {
		return err
	}

	if err := rt.Start(ctx); err != nil {
		_ = rt.Close(context.Background())
		return err
	}

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received, stopping kiosk...")
	case evt := <-restart:
		slog.Info("Exiting for remote restart request", logfields.Key(evt.RequestID))
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	if err := rt.Close(stopCtx); err != nil {
		return fmt.Errorf("failed to stop kiosk: %w", err)
	}
	if logging != nil {
		return logging.Close()
	}
	return nil
}

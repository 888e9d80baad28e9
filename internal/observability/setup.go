package observability

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"git.home.luguber.info/inful/showroom/internal/config"
)

// Logging owns the process logger: its level can be changed at runtime and
// the optional rotating file is closed on shutdown.
type Logging struct {
	Logger *slog.Logger
	level  *slog.LevelVar
	file   *lumberjack.Logger
}

// NewLogging builds a logger from cfg writing to console and, when
// cfg.File is set, to a rotating file as well. A nil console means stderr.
func NewLogging(cfg config.LoggingConfig, console io.Writer) *Logging {
	if console == nil {
		console = os.Stderr
	}
	l := &Logging{level: new(slog.LevelVar)}
	l.level.Set(config.NormalizeLogLevel(cfg.Level).SlogLevel())

	out := console
	if cfg.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(console, l.file)
	}

	opts := &slog.HandlerOptions{Level: l.level}
	var h slog.Handler
	if config.NormalizeLogFormat(cfg.Format) == config.LogFormatJSON {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	l.Logger = slog.New(NewContextHandler(h))
	return l
}

// Install makes the logger the slog default.
func (l *Logging) Install() *Logging {
	slog.SetDefault(l.Logger)
	return l
}

// SetLevel changes the minimum level of every handler built by NewLogging.
func (l *Logging) SetLevel(raw string) {
	next := config.NormalizeLogLevel(raw).SlogLevel()
	if l.level.Level() != next {
		slog.Info("Log level changed", slog.String("level", next.String()))
	}
	l.level.Set(next)
}

// Level reports the current minimum level.
func (l *Logging) Level() slog.Level { return l.level.Level() }

// Close flushes and closes the log file, if any.
func (l *Logging) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

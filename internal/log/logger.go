// Package log wraps slog with a component attribute so every line can be
// traced back to the subsystem that wrote it.
package log

import (
	"log/slog"
	"os"
)

type Logger struct {
	*slog.Logger
	base      slog.Handler
	component string
}

type Config struct {
	Level     slog.Level
	Component string
	Handler   slog.Handler
}

func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		Component: "findash",
	}
}

func New(config Config) *Logger {
	handler := config.Handler
	if handler == nil {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: config.Level})
	}
	return &Logger{
		Logger:    slog.New(handler).With("component", config.Component),
		base:      handler,
		component: config.Component,
	}
}

// WithComponent returns a logger labeled with a different component.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:    slog.New(l.base).With("component", component),
		base:      l.base,
		component: component,
	}
}

func (l *Logger) Component() string {
	return l.component
}

// SetDefault installs the logger as the process default, so package-level
// slog calls carry the component attribute too.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}

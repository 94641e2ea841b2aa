// Package log configures the process wide slog logger and the attributes every
// component tags its records with.
package log

import (
	"io"
	"log/slog"
	"os"
)

const (
	ModuleKey   = "module"
	NodeIDKey   = "node_id"
	NodeTypeKey = "node_type"
	FlowIDKey   = "flow_id"
)

// ParseLevel accepts debug, info, warn and error in any case, with an optional
// offset such as "debug-2". Anything else means info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}

	return level
}

// New returns a text logger writing to w.
func New(w io.Writer, logLevel string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(logLevel),
	}))
}

// Setup installs a stderr text logger as the slog default.
func Setup(logLevel string) {
	slog.SetDefault(New(os.Stderr, logLevel))
}

func WithModule(module string) *slog.Logger {
	return slog.With(ModuleKey, module)
}

// WithNode tags logger with a node identity.
func WithNode(logger *slog.Logger, nodeID, nodeType string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}

	return logger.With(NodeIDKey, nodeID, NodeTypeKey, nodeType)
}

// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/dukex/microred/pkg/registry"
)

func registerNodePlugins(reg *registry.Registry, log *slog.Logger, pluginsPath string) {
	if pluginsPath == "" {
		return
	}

	plugins, err := reg.LoadNodePlugins(pluginsPath)
	if err != nil {
		panic(err)
	}

	for _, plugin := range plugins {
		log.Info("Loaded node plugin", "type", plugin.ID())
	}
}

// NewRegistry registers the built-in nodes, then any plugin found under
// pluginsPath, so plugins may replace built-in types.
func NewRegistry(log *slog.Logger, pluginsPath string) *registry.Registry {
	reg := registry.NewRegistry(log)
	reg.RegisterDefaultNodes()

	registerNodePlugins(reg, log, pluginsPath)

	return reg
}

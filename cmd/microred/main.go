// Package main provides the microred command: it builds flows from a flow file
// and drives them on a single event loop.
package main

import (
	"context"
	"os"

	"github.com/dukex/microred/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("microred")

	cmd := NewCommand()

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// NewCommand returns the root command with every subcommand attached.
func NewCommand() *cli.Command {
	return &cli.Command{
		Name:                  "microred",
		Usage:                 "Run Node-RED style flows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:  "plugins-path",
				Usage: "Path to the directory containing node plugins",
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			RunCommand(),
			ValidateCommand(),
			NodesCommand(),
		},
	}
}

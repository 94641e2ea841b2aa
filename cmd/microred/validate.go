package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dukex/microred/pkg/cmd"
	"github.com/dukex/microred/pkg/flowfile"
	"github.com/dukex/microred/pkg/log"
	"github.com/dukex/microred/pkg/models"
	"github.com/dukex/microred/pkg/registry"
	cli "github.com/urfave/cli/v3"
)

func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check a flow file without starting it",
		ArgsUsage: "<flow file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "flows",
				Aliases: []string{"f"},
				Usage:   "Flow file (JSON or YAML)",
				Sources: cli.EnvVars("FLOWS_FILE"),
			},
		},
		Action: func(_ context.Context, command *cli.Command) error {
			path := command.String("flows")
			if command.Args().Present() {
				path = command.Args().First()
			}

			if path == "" {
				return fmt.Errorf("%w: no flow file given", flowfile.ErrInvalidFlowFile)
			}

			reg := cmd.NewRegistry(log.WithModule("validate"), command.String("plugins-path"))

			return Validate(command.Root().Writer, path, reg)
		},
	}
}

// Validate loads the flow file and checks every node type is registered. It
// does not set nodes up, so no connection is opened.
func Validate(w io.Writer, path string, reg *registry.Registry) error {
	items, err := flowfile.Load(path)
	if err != nil {
		return err
	}

	flows, nodes := 0, 0

	for _, item := range items {
		if item.IsTab() {
			flows++

			continue
		}

		if _, ok := reg.Factory(item.Type); !ok {
			return fmt.Errorf("item %s: %w: %s", item.ID, registry.ErrUnknownNodeType, item.Type)
		}

		nodes++
	}

	_, err = fmt.Fprintf(w, "%s: %d flows, %d nodes (plus the %q flow)\n", path, flows, nodes, models.ConfigFlowID)

	return err
}

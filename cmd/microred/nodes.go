package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dukex/microred/pkg/cmd"
	"github.com/dukex/microred/pkg/log"
	"github.com/dukex/microred/pkg/registry"
	cli "github.com/urfave/cli/v3"
)

func NodesCommand() *cli.Command {
	return &cli.Command{
		Name:  "nodes",
		Usage: "List the registered node types",
		Action: func(_ context.Context, command *cli.Command) error {
			reg := cmd.NewRegistry(log.WithModule("nodes"), command.String("plugins-path"))

			return ListNodes(command.Root().Writer, reg)
		},
	}
}

func ListNodes(w io.Writer, reg *registry.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "TYPE\tNAME\tDESCRIPTION")

	for _, factory := range reg.GetAvailableNodes() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", factory.ID(), factory.Name(), factory.Description())
	}

	return tw.Flush()
}

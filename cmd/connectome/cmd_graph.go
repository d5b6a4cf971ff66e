package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/connectome/internal/connmgr"
	"github.com/nvandessel/connectome/internal/visualization"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <network.yaml>",
		Short: "Visualize the projections between populations",
		Long: `Build a network and output its population-level connectivity in DOT
(Graphviz) or JSON format. Each edge aggregates the connections of one
synapse type between two populations.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				format = string(visualization.FormatJSON)
			}
			switch visualization.Format(format) {
			case visualization.FormatDOT, visualization.FormatJSON:
			default:
				return fmt.Errorf("unsupported format %q (use 'dot' or 'json')", format)
			}

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			k, pops, err := e.buildKernel(ctx, args[0])
			if err != nil {
				return err
			}
			conns, err := k.Connections(ctx, connmgr.All)
			if err != nil {
				return err
			}
			g := visualization.Build(k.Network(), pops, conns)

			var buf bytes.Buffer
			if visualization.Format(format) == visualization.FormatJSON {
				if err := writeJSON(&buf, g); err != nil {
					return fmt.Errorf("encode JSON: %w", err)
				}
			} else {
				buf.WriteString(visualization.RenderDOT(g))
			}

			if output == "" {
				_, err := cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(output, buf.Bytes(), 0644); err != nil {
				return fmt.Errorf("write graph file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Graph written to %s\n", output)
			return nil
		},
	}

	cmd.Flags().String("format", "dot", "Output format: dot or json")
	cmd.Flags().StringP("output", "o", "", "Write the graph to this file instead of stdout")
	addKernelFlags(cmd)
	return cmd
}

package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/nvandessel/connectome/internal/connector"
	"github.com/nvandessel/connectome/internal/connmgr"
	"github.com/nvandessel/connectome/internal/constants"
	"github.com/nvandessel/connectome/internal/node"
	"github.com/nvandessel/connectome/internal/synapse"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <network.yaml>",
		Short: "Print the kernel status after building a network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			prepare, _ := cmd.Flags().GetBool("prepare")

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			k, _, err := e.buildKernel(ctx, args[0])
			if err != nil {
				return err
			}
			if prepare {
				err = k.Prepare(ctx)
			} else {
				err = k.UpdateDelayExtrema(ctx)
			}
			if err != nil {
				return err
			}

			status := k.Status().Raw()
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), status)
			}
			for _, key := range slices.Sorted(maps.Keys(status)) {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %v\n", key+":", status[key])
			}
			return nil
		},
	}
	cmd.Flags().Bool("prepare", false, "Prepare the connection storage before reporting")
	addKernelFlags(cmd)
	return cmd
}

func newModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models <network.yaml>",
		Short: "List synapse models with defaults and connection counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			verbose, _ := cmd.Flags().GetBool("verbose")

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			k, _, err := e.buildKernel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			models, err := k.SynapseModels()
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"models": models,
					"count":  len(models),
				})
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-4s %-32s %-6s %s\n", "ID", "MODEL", "DELAY", "CONNECTIONS")
			for _, m := range models {
				hasDelay := "no"
				if m.HasDelay {
					hasDelay = "yes"
				}
				fmt.Fprintf(w, "%-4d %-32s %-6s %d\n", m.ID, m.Name, hasDelay, m.NumConnections)
				if verbose {
					for _, key := range slices.Sorted(maps.Keys(m.Defaults)) {
						fmt.Fprintf(w, "       %s = %v\n", key, m.Defaults[key])
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolP("verbose", "v", false, "Show model defaults")
	addKernelFlags(cmd)
	return cmd
}

func newConnectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connections <network.yaml>",
		Short: "List the connections of a network",
		Long: `Build a network and list its connections, optionally filtered.

Examples:
  connectome connections net.yaml --source 1 --source 2
  connectome connections net.yaml --synapse-model stdp_synapse --limit 20
  connectome connections net.yaml --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			sources, _ := cmd.Flags().GetUintSlice("source")
			targets, _ := cmd.Flags().GetUintSlice("target")
			model, _ := cmd.Flags().GetString("synapse-model")
			label, _ := cmd.Flags().GetInt64("label")
			limit, _ := cmd.Flags().GetInt("limit")
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			if limit == 0 {
				limit = constants.DefaultListLimit
			}
			limit = min(limit, constants.MaxListLimit)

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			k, _, err := e.buildKernel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			conns, err := k.Connections(cmd.Context(), connmgr.Filter{
				Sources:      toGIDs(sources),
				Targets:      toGIDs(targets),
				SynapseModel: model,
				Label:        label,
			})
			if err != nil {
				return err
			}
			total := len(conns)
			if len(conns) > limit {
				conns = conns[:limit]
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"connections": conns,
					"count":       len(conns),
					"total":       total,
				})
			}
			printConnections(cmd, conns)
			if total > len(conns) {
				fmt.Fprintf(cmd.OutOrStdout(), "... %d more (raise --limit)\n", total-len(conns))
			}
			return nil
		},
	}
	cmd.Flags().UintSlice("source", nil, "Source node ids (repeatable)")
	cmd.Flags().UintSlice("target", nil, "Target node ids (repeatable)")
	cmd.Flags().String("synapse-model", "", "Only connections of this synapse model")
	cmd.Flags().Int64("label", synapse.Unlabeled, "Only connections with this label")
	cmd.Flags().Int("limit", constants.DefaultListLimit, "Maximum connections to print")
	addKernelFlags(cmd)
	return cmd
}

func printConnections(cmd *cobra.Command, conns []connector.Descriptor) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%8s %8s %6s %-20s %6s %10s %8s\n", "SOURCE", "TARGET", "THREAD", "MODEL", "PORT", "WEIGHT", "DELAY")
	for _, c := range conns {
		fmt.Fprintf(w, "%8d %8d %6d %-20s %6d %10.4g %8.4g\n", c.Source, c.Target, c.Thread, c.SynapseModel, c.Port, c.Weight, c.Delay)
	}
}

func toGIDs(ids []uint) []node.GID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]node.GID, len(ids))
	for i, id := range ids {
		out[i] = node.GID(id)
	}
	return out
}

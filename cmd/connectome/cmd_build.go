package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/connectome/internal/delay"
	"github.com/nvandessel/connectome/internal/kernel"
	"github.com/nvandessel/connectome/internal/network"
	"github.com/nvandessel/connectome/internal/store"
)

// buildResult is the JSON form of a build summary.
type buildResult struct {
	Network        string           `json:"network"`
	Populations    map[string]int   `json:"populations"`
	Processes      int              `json:"processes"`
	Threads        int              `json:"threads"`
	NumConnections int64            `json:"num_connections"`
	Models         map[string]int64 `json:"models"`
	MinDelayMS     float64          `json:"min_delay_ms"`
	MaxDelayMS     float64          `json:"max_delay_ms"`
	Prepared       bool             `json:"prepared"`
	SnapshotID     string           `json:"snapshot_id,omitempty"`
	ElapsedMS      int64            `json:"elapsed_ms"`
}

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <network.yaml>",
		Short: "Build a network and report its connections",
		Long: `Build the connections of a network description and print a summary.

With --snapshot the connection table is saved to the snapshot store before
the network is prepared. --prepare sorts the connections for delivery and
reduces the delay window over all processes.

Examples:
  connectome build net.yaml
  connectome build net.yaml --processes 2 --threads 4 --prepare
  connectome build net.yaml --snapshot after-build --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			prepare, _ := cmd.Flags().GetBool("prepare")
			snapName, _ := cmd.Flags().GetString("snapshot")

			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			start := time.Now()
			k, pops, err := e.buildKernel(ctx, args[0])
			if err != nil {
				return err
			}

			var snapID string
			if snapName != "" {
				snapID, err = saveSnapshot(ctx, e, k, snapName)
				if err != nil {
					return err
				}
			}

			if prepare {
				if err := k.Prepare(ctx); err != nil {
					return fmt.Errorf("failed to prepare: %w", err)
				}
			} else if err := k.UpdateDelayExtrema(ctx); err != nil {
				return fmt.Errorf("failed to reduce delay extrema: %w", err)
			}

			res, err := summarize(k, pops)
			if err != nil {
				return err
			}
			res.SnapshotID = snapID
			res.ElapsedMS = time.Since(start).Milliseconds()

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			printBuild(cmd, res)
			return nil
		},
	}

	cmd.Flags().Bool("prepare", false, "Prepare the connection storage after building")
	cmd.Flags().String("snapshot", "", "Save the built connections as a snapshot with this name")
	addKernelFlags(cmd)
	return cmd
}

// saveSnapshot captures k and stores it under name.
func saveSnapshot(ctx context.Context, e *env, k *kernel.Kernel, name string) (string, error) {
	snap, err := k.Snapshot(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to capture snapshot: %w", err)
	}
	if errs := store.ValidateSnapshot(snap, k.HasDelay); len(errs) > 0 {
		for _, ve := range errs {
			e.logger.Error("snapshot validation", "issue", ve.String())
		}
		return "", fmt.Errorf("snapshot %q failed validation with %d issues", name, len(errs))
	}

	st, err := e.openStore()
	if err != nil {
		return "", err
	}
	defer st.Close()

	id, err := st.SaveSnapshot(ctx, snap)
	if err != nil {
		return "", fmt.Errorf("failed to save snapshot: %w", err)
	}
	e.logger.Info("snapshot saved", "id", id, "name", name, "connections", snap.NumConnections)
	return id, nil
}

func summarize(k *kernel.Kernel, pops network.Populations) (*buildResult, error) {
	st := k.Status()
	res := &buildResult{
		Populations:    make(map[string]int, len(pops)),
		Processes:      k.NumProcesses(),
		NumConnections: k.NumConnections(),
		Models:         make(map[string]int64),
	}
	res.Network, _, _ = st.String(kernel.KeyNetwork)
	threads, _, _ := st.Int(kernel.KeyNumThreads)
	res.Threads = int(threads)
	res.MinDelayMS, _, _ = st.Float(delay.KeyMinDelay)
	res.MaxDelayMS, _, _ = st.Float(delay.KeyMaxDelay)
	res.Prepared, _, _ = st.Bool(kernel.KeyPrepared)
	for name, ids := range pops {
		res.Populations[name] = len(ids)
	}

	models, err := k.SynapseModels()
	if err != nil {
		return nil, fmt.Errorf("failed to list synapse models: %w", err)
	}
	for _, m := range models {
		if m.NumConnections > 0 {
			res.Models[m.Name] = m.NumConnections
		}
	}
	return res, nil
}

func printBuild(cmd *cobra.Command, res *buildResult) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Network %q built in %dms\n", res.Network, res.ElapsedMS)
	fmt.Fprintf(w, "  layout:       %d processes x %d threads\n", res.Processes, res.Threads)
	fmt.Fprintf(w, "  connections:  %d\n", res.NumConnections)
	fmt.Fprintf(w, "  delay window: [%g, %g] ms\n", res.MinDelayMS, res.MaxDelayMS)
	if res.Prepared {
		fmt.Fprintln(w, "  prepared:     yes")
	}

	fmt.Fprintln(w, "\nPopulations:")
	for _, name := range slices.Sorted(maps.Keys(res.Populations)) {
		fmt.Fprintf(w, "  %-20s %d\n", name, res.Populations[name])
	}
	if len(res.Models) > 0 {
		fmt.Fprintln(w, "\nConnections by synapse model:")
		for _, name := range slices.Sorted(maps.Keys(res.Models)) {
			fmt.Fprintf(w, "  %-20s %d\n", name, res.Models[name])
		}
	}
	if res.SnapshotID != "" {
		fmt.Fprintf(w, "\nSaved snapshot %s\n", res.SnapshotID)
	}
}

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/connectome/internal/config"
	"github.com/nvandessel/connectome/internal/mcp"
	"github.com/nvandessel/connectome/internal/metrics"
	"github.com/nvandessel/connectome/internal/store"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server <network.yaml>",
		Short: "Serve a built network over MCP (stdio)",
		Long: `Build a network and serve it to MCP clients over stdin/stdout.

Tools: connectome_status, connectome_models, connectome_num_connections,
connectome_connections, connectome_synapse_status, connectome_connect and
connectome_snapshot. Every call is recorded in ~/.connectome/audit.jsonl.

When metrics.enabled is set, Prometheus metrics are served on metrics.addr
for the lifetime of the server.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			noStore, _ := cmd.Flags().GetBool("no-store")
			auditDir, _ := cmd.Flags().GetString("audit-dir")

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

			var st store.SnapshotStore
			if !noStore {
				if st, err = e.openStore(); err != nil {
					return err
				}
			}

			if auditDir == "" {
				if auditDir, err = config.HomeDir(); err != nil {
					return err
				}
			}

			if e.cfg.Metrics.Enabled {
				go func() {
					if err := metrics.Serve(ctx, e.cfg.Metrics.Addr, e.logger); err != nil {
						e.logger.Error("metrics endpoint stopped", "error", err)
					}
				}()
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "connectome",
				Version:  version,
				Kernel:   k,
				Store:    st,
				AuditDir: filepath.Clean(auditDir),
				Logger:   e.logger,
			})
			if err != nil {
				if st != nil {
					st.Close()
				}
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			return server.Run(ctx)
		},
	}
	cmd.Flags().Bool("no-store", false, "Do not open the snapshot store (connectome_snapshot will fail)")
	cmd.Flags().String("audit-dir", "", "Directory for audit.jsonl (default ~/.connectome)")
	addKernelFlags(cmd)
	return cmd
}

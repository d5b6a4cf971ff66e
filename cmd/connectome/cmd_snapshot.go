package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/connectome/internal/archive"
	"github.com/nvandessel/connectome/internal/node"
	"github.com/nvandessel/connectome/internal/store"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage saved connection snapshots",
		Long: `List, inspect, export and import connection snapshots.

Snapshots are written by 'connectome build --snapshot' and the
connectome_snapshot MCP tool. Archives are gzip-compressed files that can
be moved between machines.

Examples:
  connectome snapshot list
  connectome snapshot show <id> --source 3
  connectome snapshot export <id>
  connectome snapshot import ~/.connectome/archives/20260101-120000-net.connectome.gz
  connectome snapshot prune --keep-last 5`,
	}

	cmd.AddCommand(
		newSnapshotListCmd(),
		newSnapshotShowCmd(),
		newSnapshotDeleteCmd(),
		newSnapshotExportCmd(),
		newSnapshotImportCmd(),
		newSnapshotVerifyCmd(),
		newSnapshotArchivesCmd(),
		newSnapshotPruneCmd(),
	)
	return cmd
}

// withStore runs fn against the configured snapshot store.
func withStore(cmd *cobra.Command, fn func(e *env, st store.SnapshotStore) error) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(e, st)
}

func newSnapshotListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved snapshots, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			return withStore(cmd, func(e *env, st store.SnapshotStore) error {
				infos, err := st.ListSnapshots(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list snapshots: %w", err)
				}
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), map[string]any{
						"snapshots":   infos,
						"total_count": len(infos),
					})
				}

				w := cmd.OutOrStdout()
				if len(infos) == 0 {
					fmt.Fprintln(w, "No snapshots found")
					return nil
				}
				for _, s := range infos {
					fmt.Fprintf(w, "%s  %-24s %10d connections  %dx%d  %s\n",
						s.ID, s.Name, s.NumConnections, s.Processes, s.Threads,
						s.CreatedAt.Local().Format("2006-01-02 15:04:05"))
				}
				return nil
			})
		},
	}
}

func newSnapshotShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a snapshot and its connections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			source, _ := cmd.Flags().GetUint64("source")
			target, _ := cmd.Flags().GetUint64("target")
			model, _ := cmd.Flags().GetString("synapse-model")
			limit, _ := cmd.Flags().GetInt("limit")

			return withStore(cmd, func(e *env, st store.SnapshotStore) error {
				snap, err := st.GetSnapshot(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				conns, err := st.QueryConnections(cmd.Context(), args[0], store.ConnectionQuery{
					Source:       node.GID(source),
					Target:       node.GID(target),
					SynapseModel: model,
					Limit:        limit,
				})
				if err != nil {
					return fmt.Errorf("failed to query connections: %w", err)
				}

				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), map[string]any{
						"snapshot":    snap.SnapshotInfo,
						"connections": conns,
						"count":       len(conns),
					})
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Snapshot %s (%s)\n", snap.ID, snap.Name)
				fmt.Fprintf(w, "  created:      %s\n", snap.CreatedAt.Local().Format(time.RFC3339))
				fmt.Fprintf(w, "  layout:       %d processes x %d threads, resolution %g ms\n", snap.Processes, snap.Threads, snap.ResolutionMS)
				fmt.Fprintf(w, "  delay window: [%g, %g] ms\n", snap.MinDelayMS, snap.MaxDelayMS)
				fmt.Fprintf(w, "  connections:  %d\n\n", snap.NumConnections)
				printConnections(cmd, conns)
				return nil
			})
		},
	}
	cmd.Flags().Uint64("source", 0, "Only connections from this node")
	cmd.Flags().Uint64("target", 0, "Only connections to this node")
	cmd.Flags().String("synapse-model", "", "Only connections of this synapse model")
	cmd.Flags().Int("limit", 0, "Maximum connections to print (default 100)")
	return cmd
}

func newSnapshotDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			return withStore(cmd, func(e *env, st store.SnapshotStore) error {
				if err := st.DeleteSnapshot(cmd.Context(), args[0]); err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), map[string]string{"status": "deleted", "id": args[0]})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted snapshot %s\n", args[0])
				return nil
			})
		},
	}
}

func newSnapshotExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a snapshot to a compressed archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			output, _ := cmd.Flags().GetString("output")

			return withStore(cmd, func(e *env, st store.SnapshotStore) error {
				if output == "" {
					info, err := st.GetSnapshot(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					dir, err := archive.DefaultDir()
					if err != nil {
						return err
					}
					output = archive.GeneratePath(dir, info.Name, time.Now())
				}

				header, err := archive.Export(cmd.Context(), st, args[0], output)
				if err != nil {
					return fmt.Errorf("failed to export snapshot: %w", err)
				}
				e.logger.Info("snapshot exported", "id", args[0], "path", output)

				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), map[string]any{
						"path":   output,
						"header": header,
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d connections to %s\n", header.NumConnections, output)
				return nil
			})
		},
	}
	cmd.Flags().StringP("output", "o", "", "Archive path (default: timestamped file in ~/.connectome/archives)")
	return cmd
}

func newSnapshotImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <archive>",
		Short: "Import a snapshot archive into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			return withStore(cmd, func(e *env, st store.SnapshotStore) error {
				id, err := archive.Import(cmd.Context(), st, args[0])
				if err != nil {
					return fmt.Errorf("failed to import %s: %w", args[0], err)
				}
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), map[string]string{"status": "imported", "id": id})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported snapshot %s\n", id)
				return nil
			})
		},
	}
}

func newSnapshotVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <archive>",
		Short: "Verify the checksum of a snapshot archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			header, err := archive.Verify(args[0])
			if err != nil {
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"valid": false, "error": err.Error()})
				}
				return fmt.Errorf("archive %s is invalid: %w", args[0], err)
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"valid": true, "header": header})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %s (%q, %d connections, %s)\n", args[0], header.Name, header.NumConnections, header.Checksum)
			return nil
		},
	}
}

func newSnapshotArchivesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archives",
		Short: "List exported archives, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			dir, err := archiveDir(cmd)
			if err != nil {
				return err
			}
			list, err := archive.List(dir)
			if err != nil {
				return fmt.Errorf("failed to list archives: %w", err)
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"archives":    list,
					"total_count": len(list),
					"directory":   dir,
				})
			}
			w := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintf(w, "No archives found in %s\n", dir)
				return nil
			}
			fmt.Fprintf(w, "Archives in %s:\n", dir)
			for _, a := range list {
				fmt.Fprintf(w, "  %s  %8d bytes  %s\n", a.CreatedAt.Local().Format("2006-01-02 15:04:05"), a.Size, a.Path)
			}
			return nil
		},
	}
	cmd.Flags().String("dir", "", "Archive directory (default ~/.connectome/archives)")
	return cmd
}

func newSnapshotPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old archives",
		Long: `Delete archives not kept by any retention rule.

Examples:
  connectome snapshot prune --keep-last 5
  connectome snapshot prune --older-than 30d
  connectome snapshot prune --keep-last 3 --older-than 2w`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			keepLast, _ := cmd.Flags().GetInt("keep-last")
			olderThan, _ := cmd.Flags().GetString("older-than")

			var policy archive.Union
			if cmd.Flags().Changed("keep-last") {
				if keepLast < 0 {
					return fmt.Errorf("--keep-last must not be negative")
				}
				policy = append(policy, archive.KeepLast(keepLast))
			}
			if olderThan != "" {
				age, err := archive.ParseAge(olderThan)
				if err != nil {
					return err
				}
				policy = append(policy, archive.KeepNewerThan{MaxAge: age})
			}
			if len(policy) == 0 {
				return fmt.Errorf("specify --keep-last or --older-than")
			}

			dir, err := archiveDir(cmd)
			if err != nil {
				return err
			}
			deleted, err := archive.Prune(dir, policy)
			if err != nil {
				return fmt.Errorf("failed to prune archives: %w", err)
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"deleted": deleted, "count": len(deleted)})
			}
			for _, p := range deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", p)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d archives\n", len(deleted))
			return nil
		},
	}
	cmd.Flags().Int("keep-last", 0, "Keep the N newest archives")
	cmd.Flags().String("older-than", "", "Delete archives older than this age (e.g. 30d, 2w, 72h)")
	cmd.Flags().String("dir", "", "Archive directory (default ~/.connectome/archives)")
	return cmd
}

func archiveDir(cmd *cobra.Command) (string, error) {
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		return dir, nil
	}
	return archive.DefaultDir()
}

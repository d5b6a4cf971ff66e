package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nvandessel/connectome/internal/config"
	"github.com/nvandessel/connectome/internal/kernel"
	"github.com/nvandessel/connectome/internal/logging"
	"github.com/nvandessel/connectome/internal/network"
	"github.com/nvandessel/connectome/internal/store"
)

// env is what a command has after loading the configuration.
type env struct {
	cfg       *config.ConnectomeConfig
	logger    *slog.Logger
	decisions *logging.DecisionLogger
}

// addKernelFlags registers flags that override the kernel configuration.
func addKernelFlags(cmd *cobra.Command) {
	cmd.Flags().Int("threads", 0, "Threads per process (overrides kernel.threads)")
	cmd.Flags().Int("processes", 0, "Simulated processes (overrides kernel.processes)")
	cmd.Flags().Uint64("seed", 0, "Random seed (overrides kernel.seed)")
}

// loadEnv loads the configuration, applies flag overrides and sets up
// logging. Logs go to stderr so stdout stays machine readable.
func loadEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if f := cmd.Flags().Lookup("threads"); f != nil && f.Changed {
		cfg.Kernel.Threads, _ = cmd.Flags().GetInt("threads")
	}
	if f := cmd.Flags().Lookup("processes"); f != nil && f.Changed {
		cfg.Kernel.Processes, _ = cmd.Flags().GetInt("processes")
	}
	if f := cmd.Flags().Lookup("seed"); f != nil && f.Changed {
		cfg.Kernel.Seed, _ = cmd.Flags().GetUint64("seed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var logger *slog.Logger
	if cfg.Logging.Format == "json" {
		logger = logging.NewJSONLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	} else {
		logger = logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	}

	traceDir := cfg.Logging.TraceDir
	if traceDir == "" {
		if traceDir, err = config.HomeDir(); err != nil {
			return nil, err
		}
	}

	return &env{
		cfg:       cfg,
		logger:    logger,
		decisions: logging.NewDecisionLogger(traceDir, cfg.Logging.Level),
	}, nil
}

func (e *env) close() {
	e.decisions.Close()
}

// buildKernel loads the network description at path into a new kernel.
func (e *env) buildKernel(ctx context.Context, path string) (*kernel.Kernel, network.Populations, error) {
	n, err := network.Load(path)
	if err != nil {
		return nil, nil, err
	}
	k, err := kernel.New(kernel.Options{Config: e.cfg, Logger: e.logger, Decisions: e.decisions})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create kernel: %w", err)
	}
	pops, err := k.Load(ctx, n)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build network %s: %w", path, err)
	}
	return k, pops, nil
}

// openStore opens the configured snapshot store.
func (e *env) openStore() (store.SnapshotStore, error) {
	path, err := e.cfg.StorePath()
	if err != nil {
		return nil, err
	}
	st, err := store.NewSnapshotStore(e.cfg.Store.Backend, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	return st, nil
}

// signalContext is cancelled on interrupt.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

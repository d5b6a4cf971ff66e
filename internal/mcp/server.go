// Package mcp provides an MCP (Model Context Protocol) server exposing a
// loaded connectome: connection queries, synapse status, single-pair
// connects and snapshots.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/connectome/internal/archive"
	"github.com/nvandessel/connectome/internal/kernel"
	"github.com/nvandessel/connectome/internal/logging"
	"github.com/nvandessel/connectome/internal/ratelimit"
	"github.com/nvandessel/connectome/internal/store"
)

// Server wraps the MCP SDK server around a kernel.
type Server struct {
	server       *sdk.Server
	kernel       *kernel.Kernel
	store        store.SnapshotStore
	logger       *slog.Logger
	auditLogger  *AuditLogger
	toolLimiters ratelimit.ToolLimiters
	archiveDirs  []string

	// mu serializes kernel access. Snapshots run collective reductions
	// that must not interleave.
	mu sync.Mutex
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "connectome")
	Version string // Server version
	Kernel  *kernel.Kernel

	// Store receives snapshots taken through connectome_snapshot. Without
	// a store that tool fails. The server closes it.
	Store store.SnapshotStore

	// AuditDir holds audit.jsonl. Empty disables auditing.
	AuditDir string

	// ArchiveDirs are the directories connectome_snapshot may export into.
	// Empty means ~/.connectome/archives.
	ArchiveDirs []string

	Logger *slog.Logger
}

// NewServer creates a new MCP server with the connectome tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil || cfg.Kernel == nil {
		return nil, fmt.Errorf("mcp server needs a kernel")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	archiveDirs := cfg.ArchiveDirs
	if len(archiveDirs) == 0 {
		dir, err := archive.DefaultDir()
		if err != nil {
			return nil, err
		}
		archiveDirs = []string{dir}
	}

	s := &Server{
		server:       mcpServer,
		kernel:       cfg.Kernel,
		store:        cfg.Store,
		logger:       logger,
		auditLogger:  NewAuditLogger(cfg.AuditDir),
		toolLimiters: ratelimit.NewToolLimiters(),
		archiveDirs:  archiveDirs,
	}

	if err := s.registerTools(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	if err := s.registerResources(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to register resources: %w", err)
	}
	return s, nil
}

// Run serves MCP over stdio. It blocks until the client disconnects, the
// context is cancelled or the process is signalled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			s.logger.Info("mcp server interrupted")
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Info("mcp server running", "transport", "stdio", "audit", s.auditLogger.Path())
	err := s.server.Run(ctx, &sdk.StdioTransport{})
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close closes the audit log and the snapshot store.
func (s *Server) Close() error {
	var firstErr error
	if err := s.auditLogger.Close(); err != nil {
		firstErr = err
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.store = nil
	}
	return firstErr
}

package mcp

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/connectome/internal/archive"
	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/connmgr"
	"github.com/nvandessel/connectome/internal/constants"
	"github.com/nvandessel/connectome/internal/dict"
	"github.com/nvandessel/connectome/internal/kernel"
	"github.com/nvandessel/connectome/internal/node"
	"github.com/nvandessel/connectome/internal/pathutil"
	"github.com/nvandessel/connectome/internal/sanitize"
	"github.com/nvandessel/connectome/internal/store"
	"github.com/nvandessel/connectome/internal/synapse"
)

const statusResourceURI = "connectome://status"

// registerTools registers all connectome MCP tools with the server.
func (s *Server) registerTools() error {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "connectome_status",
		Description: "Report the kernel status: delay window, connection totals, process layout",
	}, s.handleStatus)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "connectome_models",
		Description: "List registered synapse models with their defaults and connection counts",
	}, s.handleModels)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "connectome_num_connections",
		Description: "Count connections, optionally of one synapse model",
	}, s.handleNumConnections)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "connectome_connections",
		Description: "List connections filtered by source, target, synapse model and label",
	}, s.handleConnections)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "connectome_synapse_status",
		Description: "Get the parameters of one connection addressed by its descriptor",
	}, s.handleSynapseStatus)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "connectome_connect",
		Description: "Connect one source node to one target node",
	}, s.handleConnect)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "connectome_snapshot",
		Description: "Capture every connection and save it to the snapshot store",
	}, s.handleSnapshot)

	return nil
}

// registerResources registers MCP resources for auto-loading into context.
func (s *Server) registerResources() error {
	s.server.AddResource(&sdk.Resource{
		URI:         statusResourceURI,
		Name:        "connectome-status",
		Description: "Summary of the loaded network: layout, delay window and connections per synapse model.",
		MIMEType:    "text/markdown",
	}, s.handleStatusResource)
	return nil
}

func (s *Server) handleStatusResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.kernel.Status()
	models, err := s.kernel.SynapseModels()
	if err != nil {
		return nil, fmt.Errorf("failed to list synapse models: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Connectome\n\n")
	name, _, _ := st.String(kernel.KeyNetwork)
	if label := sanitize.Text(name); label != "" {
		fmt.Fprintf(&b, "Network: %s\n\n", label)
	}
	procs, _, _ := st.Int(kernel.KeyNumProcesses)
	threads, _, _ := st.Int(kernel.KeyNumThreads)
	fmt.Fprintf(&b, "- processes: %d\n- threads per process: %d\n", procs, threads)
	fmt.Fprintf(&b, "- connections: %d\n", s.kernel.NumConnections())
	if prepared, _, _ := st.Bool(kernel.KeyPrepared); prepared {
		b.WriteString("- prepared: yes\n")
	}

	b.WriteString("\n| synapse model | connections |\n|---|---|\n")
	for _, m := range models {
		if m.NumConnections == 0 {
			continue
		}
		fmt.Fprintf(&b, "| %s | %d |\n", m.Name, m.NumConnections)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      statusResourceURI,
				MIMEType: "text/markdown",
				Text:     b.String(),
			},
		},
	}, nil
}

// handleStatus implements the connectome_status tool.
func (s *Server) handleStatus(ctx context.Context, req *sdk.CallToolRequest, args StatusInput) (_ *sdk.CallToolResult, _ StatusOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("connectome_status", false, start, retErr, sanitizeToolParams(map[string]any{}))
	}()

	if err := s.toolLimiters.Check("connectome_status"); err != nil {
		return nil, StatusOutput{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.kernel.Status()
	out := StatusOutput{
		NumConnections: s.kernel.NumConnections(),
		Status:         st.Raw(),
	}
	out.Network, _, _ = st.String(kernel.KeyNetwork)
	out.Prepared, _, _ = st.Bool(kernel.KeyPrepared)
	return nil, out, nil
}

// handleModels implements the connectome_models tool.
func (s *Server) handleModels(ctx context.Context, req *sdk.CallToolRequest, args ModelsInput) (_ *sdk.CallToolResult, _ ModelsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("connectome_models", false, start, retErr, sanitizeToolParams(map[string]any{
			"synapse_model": args.Name,
		}))
	}()

	if err := s.toolLimiters.Check("connectome_models"); err != nil {
		return nil, ModelsOutput{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	models, err := s.kernel.SynapseModels()
	if err != nil {
		return nil, ModelsOutput{}, fmt.Errorf("failed to list synapse models: %w", err)
	}
	if args.Name != "" {
		var found []kernel.ModelInfo
		for _, m := range models {
			if m.Name == args.Name {
				found = append(found, m)
			}
		}
		if len(found) == 0 {
			return nil, ModelsOutput{}, fmt.Errorf("%w: %q", connerr.ErrUnknownSynapseType, args.Name)
		}
		models = found
	}
	return nil, ModelsOutput{Models: models, Count: len(models)}, nil
}

// handleNumConnections implements the connectome_num_connections tool.
func (s *Server) handleNumConnections(ctx context.Context, req *sdk.CallToolRequest, args NumConnectionsInput) (_ *sdk.CallToolResult, _ NumConnectionsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("connectome_num_connections", false, start, retErr, sanitizeToolParams(map[string]any{
			"synapse_model": args.SynapseModel,
		}))
	}()

	if err := s.toolLimiters.Check("connectome_num_connections"); err != nil {
		return nil, NumConnectionsOutput{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if args.SynapseModel == "" {
		return nil, NumConnectionsOutput{NumConnections: s.kernel.NumConnections()}, nil
	}
	models, err := s.kernel.SynapseModels()
	if err != nil {
		return nil, NumConnectionsOutput{}, fmt.Errorf("failed to list synapse models: %w", err)
	}
	for _, m := range models {
		if m.Name == args.SynapseModel {
			return nil, NumConnectionsOutput{SynapseModel: m.Name, NumConnections: m.NumConnections}, nil
		}
	}
	return nil, NumConnectionsOutput{}, fmt.Errorf("%w: %q", connerr.ErrUnknownSynapseType, args.SynapseModel)
}

// handleConnections implements the connectome_connections tool.
func (s *Server) handleConnections(ctx context.Context, req *sdk.CallToolRequest, args ConnectionsInput) (_ *sdk.CallToolResult, _ ConnectionsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("connectome_connections", false, start, retErr, sanitizeToolParams(map[string]any{
			"source": args.Source, "target": args.Target, "synapse_model": args.SynapseModel,
			"synapse_label": args.SynapseLabel, "limit": args.Limit,
		}))
	}()

	if err := s.toolLimiters.Check("connectome_connections"); err != nil {
		return nil, ConnectionsOutput{}, err
	}

	limit, err := listLimit(args.Limit)
	if err != nil {
		return nil, ConnectionsOutput{}, err
	}
	f := connmgr.Filter{
		Sources:      toGIDs(args.Source),
		Targets:      toGIDs(args.Target),
		SynapseModel: args.SynapseModel,
		Label:        synapse.Unlabeled,
	}
	if args.SynapseLabel != nil {
		f.Label = *args.SynapseLabel
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conns, err := s.kernel.Connections(ctx, f)
	if err != nil {
		return nil, ConnectionsOutput{}, fmt.Errorf("failed to list connections: %w", err)
	}
	out := ConnectionsOutput{Total: len(conns)}
	if len(conns) > limit {
		conns = conns[:limit]
		out.Truncated = true
	}
	out.Connections = conns
	out.Count = len(conns)
	return nil, out, nil
}

// handleSynapseStatus implements the connectome_synapse_status tool.
func (s *Server) handleSynapseStatus(ctx context.Context, req *sdk.CallToolRequest, args SynapseStatusInput) (_ *sdk.CallToolResult, _ SynapseStatusOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("connectome_synapse_status", false, start, retErr, sanitizeToolParams(map[string]any{
			"source": args.Source, "target": args.Target, "thread": args.Thread,
			"synapse_id": args.SynapseID, "port": args.Port,
		}))
	}()

	if err := s.toolLimiters.Check("connectome_synapse_status"); err != nil {
		return nil, SynapseStatusOutput{}, err
	}

	if args.Source == 0 {
		return nil, SynapseStatusOutput{}, fmt.Errorf("'source' parameter is required")
	}
	if args.Target == 0 {
		return nil, SynapseStatusOutput{}, fmt.Errorf("'target' parameter is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.kernel.SynapseStatus(node.GID(args.Source), node.GID(args.Target), args.Thread, synapse.SynID(args.SynapseID), args.Port)
	if err != nil {
		return nil, SynapseStatusOutput{}, err
	}
	return nil, SynapseStatusOutput{Status: d.Raw()}, nil
}

// handleConnect implements the connectome_connect tool.
func (s *Server) handleConnect(ctx context.Context, req *sdk.CallToolRequest, args ConnectInput) (_ *sdk.CallToolResult, _ ConnectOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("connectome_connect", true, start, retErr, sanitizeToolParams(map[string]any{
			"source": args.Source, "target": args.Target, "synapse_model": args.SynapseModel,
			"weight": args.Weight, "delay": args.Delay, "params": args.Params,
		}))
	}()

	if err := s.toolLimiters.Check("connectome_connect"); err != nil {
		return nil, ConnectOutput{}, err
	}

	if args.Source == 0 {
		return nil, ConnectOutput{}, fmt.Errorf("'source' parameter is required")
	}
	if args.Target == 0 {
		return nil, ConnectOutput{}, fmt.Errorf("'target' parameter is required")
	}
	model := args.SynapseModel
	if model == "" {
		model = synapse.StaticSynapse
	}
	weight, delayMS := math.NaN(), math.NaN()
	if args.Weight != nil {
		weight = *args.Weight
	}
	if args.Delay != nil {
		delayMS = *args.Delay
	}
	var params *dict.Map
	if len(args.Params) > 0 {
		params = dict.From(args.Params)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kernel.ConnectPair(ctx, node.GID(args.Source), node.GID(args.Target), model, params, delayMS, weight); err != nil {
		return nil, ConnectOutput{}, fmt.Errorf("failed to connect %d -> %d: %w", args.Source, args.Target, err)
	}
	s.logger.Info("connected pair via mcp", "source", args.Source, "target", args.Target, "synapse_model", model)

	return nil, ConnectOutput{
		SynapseModel:   model,
		NumConnections: s.kernel.NumConnections(),
		Message:        fmt.Sprintf("Connected %d -> %d with %s", args.Source, args.Target, model),
	}, nil
}

// handleSnapshot implements the connectome_snapshot tool.
func (s *Server) handleSnapshot(ctx context.Context, req *sdk.CallToolRequest, args SnapshotInput) (_ *sdk.CallToolResult, _ SnapshotOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("connectome_snapshot", true, start, retErr, sanitizeToolParams(map[string]any{
			"name": args.Name, "archive_path": args.ArchivePath,
		}))
	}()

	if err := s.toolLimiters.Check("connectome_snapshot"); err != nil {
		return nil, SnapshotOutput{}, err
	}

	name := sanitize.Text(args.Name)
	if name == "" {
		return nil, SnapshotOutput{}, fmt.Errorf("'name' parameter is required")
	}
	var archivePath string
	if args.ArchivePath != "" {
		resolved, err := pathutil.Resolve(args.ArchivePath, s.archiveDirs)
		if err != nil {
			return nil, SnapshotOutput{}, err
		}
		if !strings.HasSuffix(resolved, constants.ArchiveExtension) {
			return nil, SnapshotOutput{}, fmt.Errorf("archive path must end in %s", constants.ArchiveExtension)
		}
		archivePath = resolved
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return nil, SnapshotOutput{}, fmt.Errorf("no snapshot store configured")
	}
	snap, err := s.kernel.Snapshot(ctx, name)
	if err != nil {
		return nil, SnapshotOutput{}, fmt.Errorf("failed to capture snapshot: %w", err)
	}
	if errs := store.ValidateSnapshot(snap, s.kernel.HasDelay); len(errs) > 0 {
		return nil, SnapshotOutput{}, fmt.Errorf("snapshot failed validation with %d issues, first: %s", len(errs), errs[0])
	}
	id, err := s.store.SaveSnapshot(ctx, snap)
	if err != nil {
		return nil, SnapshotOutput{}, fmt.Errorf("failed to save snapshot: %w", err)
	}
	s.logger.Info("snapshot saved via mcp", "id", id, "name", name, "connections", snap.NumConnections)

	out := SnapshotOutput{
		ID:             id,
		Name:           snap.Name,
		NumConnections: snap.NumConnections,
		MinDelayMS:     snap.MinDelayMS,
		MaxDelayMS:     snap.MaxDelayMS,
	}
	if archivePath != "" {
		header, err := archive.Export(ctx, s.store, id, archivePath)
		if err != nil {
			return nil, SnapshotOutput{}, fmt.Errorf("snapshot %s saved but export failed: %w", id, err)
		}
		out.ArchivePath = archivePath
		out.Checksum = header.Checksum
	}
	return nil, out, nil
}

// listLimit resolves a requested listing limit.
func listLimit(n int) (int, error) {
	switch {
	case n < 0:
		return 0, fmt.Errorf("limit must not be negative, got %d", n)
	case n == 0:
		return constants.DefaultListLimit, nil
	default:
		return min(n, constants.MaxListLimit), nil
	}
}

func toGIDs(ids []uint64) []node.GID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]node.GID, len(ids))
	for i, id := range ids {
		out[i] = node.GID(id)
	}
	return out
}

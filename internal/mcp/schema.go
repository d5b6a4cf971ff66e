package mcp

import (
	"github.com/nvandessel/connectome/internal/connector"
	"github.com/nvandessel/connectome/internal/kernel"
)

// StatusInput defines the input for the connectome_status tool.
type StatusInput struct{}

// StatusOutput defines the output for the connectome_status tool.
type StatusOutput struct {
	Network        string         `json:"network,omitempty" jsonschema:"Name of the loaded network"`
	NumConnections int64          `json:"num_connections" jsonschema:"Total connections over all processes"`
	Prepared       bool           `json:"prepared" jsonschema:"Whether connection storage has been prepared for simulation"`
	Status         map[string]any `json:"status" jsonschema:"Full kernel status dictionary"`
}

// ModelsInput defines the input for the connectome_models tool.
type ModelsInput struct {
	Name string `json:"name,omitempty" jsonschema:"Only report this synapse model"`
}

// ModelsOutput defines the output for the connectome_models tool.
type ModelsOutput struct {
	Models []kernel.ModelInfo `json:"models" jsonschema:"Registered synapse models with defaults and connection counts"`
	Count  int                `json:"count" jsonschema:"Number of models returned"`
}

// NumConnectionsInput defines the input for the connectome_num_connections tool.
type NumConnectionsInput struct {
	SynapseModel string `json:"synapse_model,omitempty" jsonschema:"Count only connections of this synapse model"`
}

// NumConnectionsOutput defines the output for the connectome_num_connections tool.
type NumConnectionsOutput struct {
	SynapseModel   string `json:"synapse_model,omitempty"`
	NumConnections int64  `json:"num_connections"`
}

// ConnectionsInput defines the input for the connectome_connections tool.
type ConnectionsInput struct {
	Source       []uint64 `json:"source,omitempty" jsonschema:"Source node ids (empty matches any)"`
	Target       []uint64 `json:"target,omitempty" jsonschema:"Target node ids (empty matches any)"`
	SynapseModel string   `json:"synapse_model,omitempty" jsonschema:"Synapse model name (empty matches any)"`
	SynapseLabel *int64   `json:"synapse_label,omitempty" jsonschema:"Only connections carrying this label"`
	Limit        int      `json:"limit,omitempty" jsonschema:"Maximum connections to return (default 100)"`
}

// ConnectionsOutput defines the output for the connectome_connections tool.
type ConnectionsOutput struct {
	Connections []connector.Descriptor `json:"connections"`
	Count       int                    `json:"count" jsonschema:"Connections returned"`
	Total       int                    `json:"total" jsonschema:"Connections matching the query"`
	Truncated   bool                   `json:"truncated,omitempty"`
}

// SynapseStatusInput defines the input for the connectome_synapse_status tool.
// A connection is addressed by the fields of its descriptor.
type SynapseStatusInput struct {
	Source    uint64 `json:"source" jsonschema:"Source node id"`
	Target    uint64 `json:"target" jsonschema:"Target node id"`
	Thread    int    `json:"thread" jsonschema:"Thread owning the target"`
	SynapseID int    `json:"synapse_id" jsonschema:"Synapse type id"`
	Port      int    `json:"port" jsonschema:"Index of the connection in its storage"`
}

// SynapseStatusOutput defines the output for the connectome_synapse_status tool.
type SynapseStatusOutput struct {
	Status map[string]any `json:"status"`
}

// ConnectInput defines the input for the connectome_connect tool.
type ConnectInput struct {
	Source       uint64         `json:"source" jsonschema:"Source node id"`
	Target       uint64         `json:"target" jsonschema:"Target node id"`
	SynapseModel string         `json:"synapse_model,omitempty" jsonschema:"Synapse model (default static_synapse)"`
	Weight       *float64       `json:"weight,omitempty" jsonschema:"Weight (default: the model's default)"`
	Delay        *float64       `json:"delay,omitempty" jsonschema:"Delay in ms (default: the model's default)"`
	Params       map[string]any `json:"params,omitempty" jsonschema:"Further synapse parameters"`
}

// ConnectOutput defines the output for the connectome_connect tool.
type ConnectOutput struct {
	SynapseModel   string `json:"synapse_model"`
	NumConnections int64  `json:"num_connections" jsonschema:"Total connections after the call"`
	Message        string `json:"message"`
}

// SnapshotInput defines the input for the connectome_snapshot tool.
type SnapshotInput struct {
	Name        string `json:"name" jsonschema:"Snapshot name"`
	ArchivePath string `json:"archive_path,omitempty" jsonschema:"Also export the snapshot to this .connectome.gz file (must be inside an allowed archive directory)"`
}

// SnapshotOutput defines the output for the connectome_snapshot tool.
type SnapshotOutput struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	NumConnections int64   `json:"num_connections"`
	MinDelayMS     float64 `json:"min_delay_ms"`
	MaxDelayMS     float64 `json:"max_delay_ms"`
	ArchivePath    string  `json:"archive_path,omitempty"`
	Checksum       string  `json:"checksum,omitempty"`
}

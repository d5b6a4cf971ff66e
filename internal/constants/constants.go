// Package constants provides named constants used throughout the connectome codebase.
// This centralizes defaults shared by configuration, the CLI and the servers.
package constants

// Kernel defaults.
const (
	// DefaultThreads is the number of worker threads when none is configured.
	DefaultThreads = 1

	// DefaultProcesses is the size of the reduction group when none is configured.
	// Values above one run that many in-process members.
	DefaultProcesses = 1

	// DefaultResolutionMS is the simulation step in milliseconds.
	DefaultResolutionMS = 0.1

	// DefaultSeed seeds the per-thread and global connection streams.
	DefaultSeed = 12345
)

// Storage locations and names.
const (
	// HomeDirName is the per-user directory holding config, snapshots and traces.
	HomeDirName = ".connectome"

	// ConfigFileName is the YAML config file inside HomeDirName.
	ConfigFileName = "config.yaml"

	// SnapshotDBName is the default SQLite snapshot database inside HomeDirName.
	SnapshotDBName = "snapshots.db"

	// ArchiveExtension is appended to exported snapshot archives.
	ArchiveExtension = ".connectome.gz"
)

// Metrics defaults.
const (
	// DefaultMetricsAddr is where /metrics is served when metrics are enabled.
	DefaultMetricsAddr = "127.0.0.1:9464"
)

// Listing limits used by the CLI and the MCP tools.
const (
	// DefaultListLimit caps connection listings that did not ask for a limit.
	DefaultListLimit = 100

	// MaxListLimit is the largest listing any caller may request.
	MaxListLimit = 10000
)

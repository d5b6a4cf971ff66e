package constants

// Backend names a snapshot store implementation.
type Backend string

const (
	// BackendMemory keeps snapshots in process memory only
	BackendMemory Backend = "memory"

	// BackendSQLite persists snapshots in a SQLite database
	BackendSQLite Backend = "sqlite"
)

// Valid returns true if the backend is a recognized value.
func (b Backend) Valid() bool {
	switch b {
	case BackendMemory, BackendSQLite:
		return true
	}
	return false
}

// String returns the string representation of the backend.
func (b Backend) String() string {
	return string(b)
}

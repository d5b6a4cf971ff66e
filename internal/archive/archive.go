package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nvandessel/connectome/internal/config"
	"github.com/nvandessel/connectome/internal/constants"
	"github.com/nvandessel/connectome/internal/sanitize"
	"github.com/nvandessel/connectome/internal/store"
)

// DefaultDir returns ~/.connectome/archives.
func DefaultDir() (string, error) {
	home, err := config.HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "archives"), nil
}

// GeneratePath returns a timestamped archive path for a snapshot name.
func GeneratePath(dir, name string, now time.Time) string {
	slug := sanitize.Slug(name)
	if slug == "" {
		slug = "snapshot"
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", now.UTC().Format("20060102-150405"), slug, constants.ArchiveExtension))
}

// Export writes snapshot id of st to path.
func Export(ctx context.Context, st store.SnapshotStore, id, path string) (*Header, error) {
	snap, err := st.GetSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	return Write(path, snap, map[string]string{
		"resolution": fmt.Sprintf("%g", snap.ResolutionMS),
		"threads":    fmt.Sprintf("%d", snap.Threads),
		"processes":  fmt.Sprintf("%d", snap.Processes),
	})
}

// Import reads the archive at path into st and returns the stored id. A
// snapshot whose id st already holds is stored under a new id.
func Import(ctx context.Context, st store.SnapshotStore, path string) (string, error) {
	_, snap, err := Read(path)
	if err != nil {
		return "", err
	}
	if _, err := st.GetSnapshot(ctx, snap.ID); err == nil {
		snap.ID = ""
	}
	return st.SaveSnapshot(ctx, snap)
}

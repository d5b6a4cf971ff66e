package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/connectome/internal/constants"
)

// Info describes an archive file on disk.
type Info struct {
	Path      string
	Size      int64
	CreatedAt time.Time
}

// Policy selects the archives to keep from a newest-first list.
type Policy interface {
	Keep(archives []Info) []Info
}

// KeepLast keeps the N most recent archives.
type KeepLast int

func (n KeepLast) Keep(archives []Info) []Info {
	if len(archives) <= int(n) {
		return archives
	}
	return archives[:max(int(n), 0)]
}

// KeepNewerThan keeps archives created within the duration before now.
type KeepNewerThan struct {
	MaxAge time.Duration
	Now    func() time.Time
}

func (p KeepNewerThan) Keep(archives []Info) []Info {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	cutoff := now().Add(-p.MaxAge)
	var keep []Info
	for _, a := range archives {
		if a.CreatedAt.After(cutoff) {
			keep = append(keep, a)
		}
	}
	return keep
}

// Union keeps an archive if any of its policies does.
type Union []Policy

func (u Union) Keep(archives []Info) []Info {
	kept := make(map[string]bool)
	for _, p := range u {
		for _, a := range p.Keep(archives) {
			kept[a.Path] = true
		}
	}
	var out []Info
	for _, a := range archives {
		if kept[a.Path] {
			out = append(out, a)
		}
	}
	return out
}

// List returns the archives in dir, newest first. A missing dir is empty.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading archive directory: %w", err)
	}

	var archives []Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), constants.ArchiveExtension) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		fi, err := e.Info()
		if err != nil {
			continue
		}
		info := Info{Path: path, Size: fi.Size(), CreatedAt: fi.ModTime()}
		if h, err := ReadHeader(path); err == nil && !h.CreatedAt.IsZero() {
			info.CreatedAt = h.CreatedAt
		}
		archives = append(archives, info)
	}

	slices.SortFunc(archives, func(a, b Info) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.Path, a.Path)
	})
	return archives, nil
}

// Prune deletes the archives in dir that policy does not keep.
func Prune(dir string, policy Policy) (deleted []string, err error) {
	archives, err := List(dir)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]bool)
	for _, a := range policy.Keep(archives) {
		keep[a.Path] = true
	}
	for _, a := range archives {
		if keep[a.Path] {
			continue
		}
		if err := os.Remove(a.Path); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", filepath.Base(a.Path), err)
		}
		deleted = append(deleted, a.Path)
	}
	return deleted, nil
}

// ParseAge parses durations like "30d", "2w" or any time.ParseDuration form.
func ParseAge(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	num, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	switch s[len(s)-1] {
	case 'd':
		return time.Duration(num) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unknown duration suffix in %q", s)
}

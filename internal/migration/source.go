package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// Source discovers migration files and serves their content.
type Source interface {
	// Discover lists all valid forward migrations in ascending version
	// order. Rollback companions and malformed names are excluded.
	Discover() ([]Migration, error)
	// ReadMigration returns the forward script content.
	ReadMigration(m Migration) ([]byte, error)
	// Checksum digests the forward script content for ledger bookkeeping.
	Checksum(m Migration) (string, error)
	// ReadRollback returns the paired rollback script for an applied
	// version, or ErrNoRollbackScript when none exists.
	ReadRollback(version, name string) ([]byte, error)
}

// DirSource reads migrations from a single directory. Malformed filenames
// are skipped with a warning so one bad file never blocks the batch.
type DirSource struct {
	fsys   fs.FS
	logger *slog.Logger
}

// NewDirSource creates a source over a directory on disk.
func NewDirSource(dir string, logger *slog.Logger) *DirSource {
	return NewFSSource(os.DirFS(dir), logger)
}

// NewFSSource creates a source over any fs.FS, such as fstest.MapFS in tests.
func NewFSSource(fsys fs.FS, logger *slog.Logger) *DirSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirSource{fsys: fsys, logger: logger}
}

func (s *DirSource) Discover() ([]Migration, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}
	var migrations []Migration
	for _, entry := range entries {
		filename := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(filename, ".sql") {
			continue
		}
		if isRollbackFilename(filename) {
			continue
		}
		version, name, err := parseFilename(filename)
		if err != nil {
			s.logger.Warn("skipping invalid migration filename", "file", filename)
			continue
		}
		migrations = append(migrations, Migration{
			Version: version,
			Name:    name,
			Path:    filename,
		})
	}
	sort.Slice(migrations, func(i, j int) bool {
		if migrations[i].Version != migrations[j].Version {
			return migrations[i].Version < migrations[j].Version
		}
		return migrations[i].Path < migrations[j].Path
	})
	return migrations, nil
}

func (s *DirSource) ReadMigration(m Migration) ([]byte, error) {
	content, err := fs.ReadFile(s.fsys, m.Path)
	if err != nil {
		return nil, fmt.Errorf("read migration %s: %w", m.Path, err)
	}
	return content, nil
}

func (s *DirSource) Checksum(m Migration) (string, error) {
	content, err := fs.ReadFile(s.fsys, m.Path)
	if err != nil {
		return "", fmt.Errorf("checksum migration %s: %w", m.Path, err)
	}
	return checksum(content), nil
}

func (s *DirSource) ReadRollback(version, name string) ([]byte, error) {
	path := rollbackFilename(version, name)
	content, err := fs.ReadFile(s.fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoRollbackScript, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read rollback %s: %w", path, err)
	}
	return content, nil
}

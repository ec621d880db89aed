package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStorage keeps fleet snapshots as flat files under one directory.
type FileStorage struct {
	basePath string
}

func NewFileStorage(basePath string) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &FileStorage{basePath: basePath}, nil
}

// resolve rejects names that would escape the snapshot directory.
func (fs *FileStorage) resolve(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\\") || name == ".." {
		return "", fmt.Errorf("invalid snapshot name %q", name)
	}
	return filepath.Join(fs.basePath, name), nil
}

// Save writes the snapshot to a temporary file and renames it into
// place, so a crash mid-write never leaves a truncated snapshot that a
// later restore would trust.
func (fs *FileStorage) Save(ctx context.Context, name string, data io.Reader) error {
	path, err := fs.resolve(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(fs.basePath, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

func (fs *FileStorage) Load(ctx context.Context, name string) (io.ReadCloser, error) {
	path, err := fs.resolve(name)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	return file, nil
}

// List returns snapshot names with the given prefix, oldest first. The
// timestamped naming scheme makes lexical order chronological.
func (fs *FileStorage) List(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		return nil, fmt.Errorf("read snapshot directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), prefix) && !strings.Contains(entry.Name(), ".tmp-") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (fs *FileStorage) Delete(ctx context.Context, name string) error {
	path, err := fs.resolve(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

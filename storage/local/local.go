// Package local stores objects as files in a single directory.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kbukum/tokenkeeper/logger"
	"github.com/kbukum/tokenkeeper/storage"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
	// tempPrefix marks in-flight writes; List never reports them.
	tempPrefix = ".tmp-"
)

func init() {
	storage.RegisterFactory(storage.ProviderLocal, func(_ context.Context, cfg storage.Config, _ *logger.Logger) (storage.Storage, error) {
		return NewStorage(cfg.Dir)
	})
}

// Storage implements storage.Storage on the local filesystem.
type Storage struct {
	basePath string
}

// NewStorage creates the directory if needed and returns a storage rooted at it.
func NewStorage(basePath string) (*Storage, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return nil, fmt.Errorf("storage: create base directory: %w", err)
	}
	return &Storage{basePath: abs}, nil
}

// Dir returns the absolute root directory.
func (s *Storage) Dir() string { return s.basePath }

func (s *Storage) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return filepath.Join(s.basePath, key), nil
}

// Put writes to a temporary file in the same directory, syncs it and renames
// it over the destination.
func (s *Storage) Put(ctx context.Context, key string, data []byte) (err error) {
	fullPath, err := s.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.basePath, tempPrefix+key+"-*")
	if err != nil {
		return fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err = tmp.Chmod(filePerm); err != nil {
		return fmt.Errorf("storage: chmod temp file: %w", err)
	}
	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("storage: write file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("storage: sync file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("storage: close file: %w", err)
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = os.Rename(tmpName, fullPath); err != nil {
		return fmt.Errorf("storage: rename file: %w", err)
	}
	return nil
}

// Get reads the file for key.
func (s *Storage) Get(_ context.Context, key string) ([]byte, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("storage: read file: %w", err)
	}
	return data, nil
}

// Delete removes the file for key.
func (s *Storage) Delete(_ context.Context, key string) error {
	fullPath, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("storage: delete file: %w", err)
	}
	return nil
}

// Exists checks whether the file for key exists.
func (s *Storage) Exists(_ context.Context, key string) (bool, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: stat file: %w", err)
	}
	return true, nil
}

// List returns the regular files in the directory whose name starts with prefix.
func (s *Storage) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []storage.ObjectInfo{}, nil
		}
		return nil, fmt.Errorf("storage: list files: %w", err)
	}

	files := make([]storage.ObjectInfo, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, tempPrefix) || !strings.HasPrefix(name, prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		files = append(files, storage.ObjectInfo{
			Key:          name,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Key < files[j].Key
	})
	return files, nil
}

// Location returns the absolute file path for key.
func (s *Storage) Location(key string) string {
	return filepath.Join(s.basePath, key)
}

// compile-time check
var _ storage.Storage = (*Storage)(nil)

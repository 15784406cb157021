package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	fileMode = 0o600
	dirMode  = 0o700
)

// FileStore writes the record to <dir>/<key>.json. Writes go to a temp file in the
// same directory and are renamed into place, so readers never see a partial record.
type FileStore struct {
	key  string
	dir  string
	path string
}

// NewFileStore opens a file store rooted at dir, creating dir when missing.
func NewFileStore(dir, key string) (*FileStore, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if dir == "" {
		return nil, errors.New("file store requires a directory")
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("create token dir: %w", err)
	}
	return &FileStore{
		key:  key,
		dir:  dir,
		path: filepath.Join(dir, key+".json"),
	}, nil
}

// DefaultDir returns the per-user directory used when no storage dir is configured.
func DefaultDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".gosession")
	}
	return filepath.Join(base, "gosession")
}

func (s *FileStore) Key() string { return s.key }

// Path is the file the record lives in.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("read token file: %w", err)
	}
	return decodeRecord(data)
}

func (s *FileStore) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+s.key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp token file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp token file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp token file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

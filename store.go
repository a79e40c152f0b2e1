package flatbank

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

//go:generate mockgen -destination=mocks/store.go -package=mocks github.com/arhyth/flatbank Store

// Store durably round-trips one whole keyed collection. v is always a
// pointer to the collection; there are no partial reads or writes.
type Store interface {
	// Load fills v from the backing resource. If the resource does not exist
	// yet, v is left as is and saved, so a snapshot always exists afterwards.
	Load(v any) error
	// Save overwrites the backing resource with v.
	Save(v any) error
}

type FileStore struct {
	path string
}

var (
	_ Store = (*FileStore)(nil)
)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (fst *FileStore) Load(v any) error {
	bits, err := os.ReadFile(fst.path)
	if errors.Is(err, fs.ErrNotExist) {
		return fst.Save(v)
	}
	if err != nil {
		return fmt.Errorf("read snapshot %s: %w", fst.path, err)
	}
	if err = json.Unmarshal(bits, v); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", fst.path, err)
	}
	return nil
}

// Save writes to a sibling temp file and renames it over the snapshot so a
// reader never sees a half-written file.
func (fst *FileStore) Save(v any) error {
	bits, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", fst.path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(fst.path), filepath.Base(fst.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write snapshot %s: %w", fst.path, err)
	}
	tmpName := tmp.Name()
	if err = tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot %s: %w", fst.path, err)
	}
	if _, err = tmp.Write(bits); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot %s: %w", fst.path, err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync snapshot %s: %w", fst.path, err)
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot %s: %w", fst.path, err)
	}
	if err = os.Rename(tmpName, fst.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot %s: %w", fst.path, err)
	}
	return nil
}

// NewStores builds the credential and account stores for the configured
// driver. The returned func releases any connections they hold.
func NewStores(cfg *Config) (users Store, accts Store, closeFn func(), err error) {
	switch cfg.Storage.Driver {
	case StoragePostgres:
		pool, err := NewPostgresPool(cfg.Storage.ConnStr)
		if err != nil {
			return nil, nil, nil, err
		}
		ustore, err := NewPostgresStore(pool, "users")
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		astore, err := NewPostgresStore(pool, "accounts")
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return ustore, astore, pool.Close, nil
	default:
		return NewFileStore(cfg.Storage.UsersFile), NewFileStore(cfg.Storage.AccountsFile), func() {}, nil
	}
}

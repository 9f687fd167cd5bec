package localstorage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/bartossh/Rampart/logger"
)

const (
	dirName = "rampart"
	dbName  = "storage"
	dirMode = 0o700

	memTableSize     = 8 << 20
	valueLogFileSize = 16 << 20
)

var (
	ErrOpenFailed   = errors.New("local storage open failed")
	ErrReadFailed   = errors.New("local storage read failed")
	ErrWriteFailed  = errors.New("local storage write failed")
	ErrCorrupted    = errors.New("local storage content corrupted")
	ErrEncodeFailed = errors.New("value cannot be encoded")
)

// Config holds the location of the storage.
type Config struct {
	Path string `yaml:"path"` // database directory, storage is kept in memory when empty
}

// DefaultPath returns the database directory inside the user configuration directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, dirName, dbName), nil
}

type badgerLogger struct {
	log logger.Logger
}

func (l badgerLogger) Errorf(f string, v ...any)   { l.log.Error(line(f, v...)) }
func (l badgerLogger) Warningf(f string, v ...any) { l.log.Warn(line(f, v...)) }
func (l badgerLogger) Infof(f string, v ...any)    { l.log.Debug(line(f, v...)) }
func (l badgerLogger) Debugf(f string, v ...any)   { l.log.Debug(line(f, v...)) }

func line(f string, v ...any) string {
	return strings.TrimSpace(fmt.Sprintf("badger: "+f, v...))
}

// Store is a key value store of JSON encoded values kept in badger.
// Only one process may hold an on-disk store open at a time.
type Store struct {
	db   *badger.DB
	path string
}

// New opens the store at cfg.Path, in memory when the path is empty.
// log receives badger diagnostics and may be nil.
func New(cfg Config, log logger.Logger) (*Store, error) {
	var opt badger.Options
	switch cfg.Path {
	case "":
		opt = badger.DefaultOptions("").WithInMemory(true)
	default:
		if err := os.MkdirAll(cfg.Path, dirMode); err != nil {
			return nil, errors.Join(ErrOpenFailed, err)
		}
		opt = badger.DefaultOptions(cfg.Path).WithValueLogFileSize(valueLogFileSize)
	}
	opt = opt.WithMemTableSize(memTableSize).WithLogger(nil)
	if log != nil {
		opt = opt.WithLogger(badgerLogger{log: log})
	}

	db, err := badger.Open(opt)
	if err != nil {
		return nil, errors.Join(ErrOpenFailed, err)
	}
	return &Store{db: db, path: cfg.Path}, nil
}

// NewMemory opens an in memory store.
func NewMemory() (*Store, error) {
	return New(Config{}, nil)
}

// Path returns the database directory, empty for in memory store.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Exists reports whether key is stored.
func (s *Store) Exists(key string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, errors.Join(ErrReadFailed, err)
	}
}

// Get decodes value stored under key in to v. Returns false when key is absent.
func (s *Store) Get(key string, v any) (bool, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	case err != nil:
		return false, errors.Join(ErrReadFailed, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, errors.Join(ErrCorrupted, fmt.Errorf("key %q: %w", key, err))
	}
	return true, nil
}

// Set stores v under key.
func (s *Store) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Join(ErrEncodeFailed, err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	}); err != nil {
		return errors.Join(ErrWriteFailed, err)
	}
	return nil
}

// Remove deletes key. Removing absent key is not an error.
func (s *Store) Remove(key string) error {
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	}); err != nil {
		return errors.Join(ErrWriteFailed, err)
	}
	return nil
}

// Clear removes all the keys.
func (s *Store) Clear() error {
	if err := s.db.DropAll(); err != nil {
		return errors.Join(ErrWriteFailed, err)
	}
	return nil
}

// Snapshot copies every key in to a new in memory store.
func (s *Store) Snapshot() (*Store, error) {
	mem, err := NewMemory()
	if err != nil {
		return nil, err
	}
	err = s.db.View(func(src *badger.Txn) error {
		return mem.db.Update(func(dst *badger.Txn) error {
			it := src.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Rewind(); it.Valid(); it.Next() {
				item := it.Item()
				v, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				if err := dst.Set(item.KeyCopy(nil), v); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		mem.Close()
		return nil, errors.Join(ErrReadFailed, err)
	}
	return mem, nil
}

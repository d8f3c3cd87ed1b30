package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"srtpanel/internal/models"
)

// Default panel account created on first run. A deliberate, documented weak
// default intended to be changed immediately; the panel login is not a
// security boundary for the media server itself.
const (
	DefaultAdminUsername = "admin"
	DefaultAdminPassword = "admin123"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidProfile     = errors.New("invalid server profile")
	ErrProfileNotFound    = errors.New("server profile not found")
	ErrAccountNotFound    = errors.New("account not found")
)

type dataset struct {
	Profiles        []models.ServerProfile `json:"profiles"`
	ActiveProfileID string                 `json:"activeProfileId"`
	AuthRecords     []models.AuthRecord    `json:"authRecords"`
	PreviewStates   map[string]bool        `json:"previewStates"`
}

func newDataset() dataset {
	return dataset{PreviewStates: make(map[string]bool)}
}

// Storage is the JSON-file backed panel datastore. All mutations clone the
// dataset, persist the clone, and only then swap it in, so a failed write
// leaves the in-memory state untouched.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
	skipBootstrap   bool
	lastPersist     time.Time
}

// NewStorage opens (or creates) the JSON datastore at path. When no panel
// account exists yet the default admin account is synthesized and persisted.
func NewStorage(path string, opts ...Option) (*Storage, error) {
	store := &Storage{filePath: path}
	for _, opt := range opts {
		opt.applyJSON(store)
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	if err := store.bootstrapDefaultAccount(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	// Decode into a fresh dataset and swap only on success, so a malformed
	// file never clobbers the dataset already in memory.
	loaded := newDataset()
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&loaded); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}

	if loaded.PreviewStates == nil {
		loaded.PreviewStates = make(map[string]bool)
	}
	s.data = loaded
	return nil
}

// Reload re-reads the datastore file, discarding the in-memory dataset. Used
// by the file watcher when the store is edited outside the process.
func (s *Storage) Reload() error {
	return s.load()
}

func (s *Storage) bootstrapDefaultAccount() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.skipBootstrap || len(s.data.AuthRecords) > 0 {
		return nil
	}
	hash, err := hashPassword(DefaultAdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap default account: %w", err)
	}
	updated := cloneDataset(s.data)
	updated.AuthRecords = append(updated.AuthRecords, models.AuthRecord{
		Username:     DefaultAdminUsername,
		PasswordHash: hash,
	})
	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

func (s *Storage) persistDataset(data dataset) error {
	if s.persistOverride != nil {
		if err := s.persistOverride(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "panel-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	s.lastPersist = time.Now()
	return nil
}

// persistedWithin reports whether the store itself wrote the file within the
// given window, letting the watcher ignore self-inflicted change events.
func (s *Storage) persistedWithin(window time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.lastPersist.IsZero() && time.Since(s.lastPersist) < window
}

func cloneDataset(src dataset) dataset {
	clone := dataset{ActiveProfileID: src.ActiveProfileID}
	if src.Profiles != nil {
		clone.Profiles = append([]models.ServerProfile(nil), src.Profiles...)
	}
	if src.AuthRecords != nil {
		clone.AuthRecords = append([]models.AuthRecord(nil), src.AuthRecords...)
	}
	clone.PreviewStates = make(map[string]bool, len(src.PreviewStates))
	for name, visible := range src.PreviewStates {
		clone.PreviewStates[name] = visible
	}
	return clone
}

// Ping reports whether the backing file location remains reachable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := os.Stat(filepath.Dir(s.filePath)); err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	return nil
}

// FilePath returns the location of the backing JSON document.
func (s *Storage) FilePath() string {
	return s.filePath
}

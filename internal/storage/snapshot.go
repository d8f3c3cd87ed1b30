package storage

import (
	"context"
	"fmt"

	"srtpanel/internal/models"
)

// Snapshot is a full copy of the panel dataset, used by the JSON-to-Postgres
// migration tool. Password hashes are carried verbatim so accounts survive
// the move.
type Snapshot struct {
	Profiles        []models.ServerProfile
	ActiveProfileID string
	Accounts        []models.AuthRecord
	PreviewStates   map[string]bool
}

// SnapshotCounts reports how many rows a snapshot holds per table.
type SnapshotCounts struct {
	Accounts int
	Profiles int
	Previews int
}

func (s Snapshot) Counts() SnapshotCounts {
	return SnapshotCounts{
		Accounts: len(s.Accounts),
		Profiles: len(s.Profiles),
		Previews: len(s.PreviewStates),
	}
}

// LoadSnapshotFromJSON reads the JSON datastore at path without synthesizing
// the default admin account, so an empty file migrates as empty.
func LoadSnapshotFromJSON(path string) (Snapshot, error) {
	store, err := NewStorage(path, WithoutDefaultAccount())
	if err != nil {
		return Snapshot{}, err
	}
	return store.Snapshot(), nil
}

// Snapshot returns a deep copy of the current dataset.
func (s *Storage) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := cloneDataset(s.data)
	return Snapshot{
		Profiles:        data.Profiles,
		ActiveProfileID: data.ActiveProfileID,
		Accounts:        data.AuthRecords,
		PreviewStates:   data.PreviewStates,
	}
}

// SnapshotImporter is implemented by repositories that can ingest a whole
// dataset in one transaction.
type SnapshotImporter interface {
	ImportSnapshot(ctx context.Context, snap Snapshot) error
}

// ImportSnapshotToPostgres loads the snapshot into repo, which must be a
// Postgres repository.
func ImportSnapshotToPostgres(ctx context.Context, repo Repository, snap Snapshot) error {
	importer, ok := repo.(SnapshotImporter)
	if !ok {
		return fmt.Errorf("repository %T does not support snapshot import", repo)
	}
	return importer.ImportSnapshot(ctx, snap)
}

package storage

import (
	"path/filepath"
	"testing"
)

func TestSnapshotCopiesDataset(t *testing.T) {
	store := newTestStore(t)

	profile, _, err := store.AddProfile(ProfileParams{Name: "studio", URL: "http://mtx.local:9997"})
	if err != nil {
		t.Fatalf("AddProfile error: %v", err)
	}
	if err := store.SetPreviewVisible("cam1", false); err != nil {
		t.Fatalf("SetPreviewVisible error: %v", err)
	}

	snap := store.Snapshot()
	counts := snap.Counts()
	if counts.Accounts != 1 || counts.Profiles != 1 || counts.Previews != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	if snap.ActiveProfileID != profile.ID {
		t.Fatalf("expected active profile %q, got %q", profile.ID, snap.ActiveProfileID)
	}
	if snap.Accounts[0].PasswordHash == "" {
		t.Fatal("expected snapshot to carry the password hash")
	}

	// Mutating the snapshot must not leak back into the store.
	snap.Profiles[0].Name = "changed"
	if got, _ := store.GetProfile(profile.ID); got.Name != "studio" {
		t.Fatalf("snapshot mutation leaked into store: %q", got.Name)
	}
}

func TestLoadSnapshotFromJSONSkipsBootstrap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panel.json")

	snap, err := LoadSnapshotFromJSON(path)
	if err != nil {
		t.Fatalf("LoadSnapshotFromJSON error: %v", err)
	}
	if counts := snap.Counts(); counts.Accounts != 0 || counts.Profiles != 0 {
		t.Fatalf("expected empty snapshot, got %+v", counts)
	}
}

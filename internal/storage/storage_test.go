package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T, extra ...Option) *Storage {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	store, err := NewStorage(path, extra...)
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	return store
}

func TestBootstrapDefaultAccount(t *testing.T) {
	store := newTestStore(t)

	record, err := store.Authenticate(DefaultAdminUsername, DefaultAdminPassword)
	if err != nil {
		t.Fatalf("Authenticate default account: %v", err)
	}
	if record.Username != DefaultAdminUsername {
		t.Fatalf("unexpected username %q", record.Username)
	}
	if _, err := store.Authenticate(DefaultAdminUsername, "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestWithoutDefaultAccountSkipsBootstrap(t *testing.T) {
	store := newTestStore(t, WithoutDefaultAccount())

	if _, err := store.Authenticate(DefaultAdminUsername, DefaultAdminPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestChangePasswordRequiresOldPassword(t *testing.T) {
	store := newTestStore(t)

	if err := store.ChangePassword(DefaultAdminUsername, "wrong", "longenough"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := store.ChangePassword(DefaultAdminUsername, DefaultAdminPassword, "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := store.ChangePassword(DefaultAdminUsername, DefaultAdminPassword, "swordfish42"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := store.Authenticate(DefaultAdminUsername, "swordfish42"); err != nil {
		t.Fatalf("Authenticate with new password: %v", err)
	}
	if _, err := store.Authenticate(DefaultAdminUsername, DefaultAdminPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password should no longer work, got %v", err)
	}
}

func TestFirstProfileActivatesAutomatically(t *testing.T) {
	store := newTestStore(t)

	first, activated, err := store.AddProfile(ProfileParams{Name: "Primary", URL: "http://10.0.0.5:9997/"})
	if err != nil {
		t.Fatalf("AddProfile: %v", err)
	}
	if !activated {
		t.Fatal("first profile should activate automatically")
	}
	if first.URL != "http://10.0.0.5:9997" {
		t.Fatalf("trailing slash should be stripped, got %q", first.URL)
	}

	_, activated, err = store.AddProfile(ProfileParams{Name: "Backup", URL: "http://10.0.0.6:9997"})
	if err != nil {
		t.Fatalf("AddProfile second: %v", err)
	}
	if activated {
		t.Fatal("second profile must not steal activation")
	}

	active, ok := store.GetActiveProfile()
	if !ok || active.ID != first.ID {
		t.Fatalf("expected %s active, got %+v ok=%v", first.ID, active, ok)
	}
}

func TestDeleteActiveProfilePromotesSuccessor(t *testing.T) {
	store := newTestStore(t)

	first, _, err := store.AddProfile(ProfileParams{Name: "A", URL: "http://a:9997"})
	if err != nil {
		t.Fatalf("AddProfile A: %v", err)
	}
	second, _, err := store.AddProfile(ProfileParams{Name: "B", URL: "http://b:9997"})
	if err != nil {
		t.Fatalf("AddProfile B: %v", err)
	}

	if err := store.DeleteProfile(first.ID); err != nil {
		t.Fatalf("DeleteProfile: %v", err)
	}
	active, ok := store.GetActiveProfile()
	if !ok || active.ID != second.ID {
		t.Fatalf("expected %s promoted, got %+v ok=%v", second.ID, active, ok)
	}

	if err := store.DeleteProfile(second.ID); err != nil {
		t.Fatalf("DeleteProfile last: %v", err)
	}
	if _, ok := store.GetActiveProfile(); ok {
		t.Fatal("no profile should remain active")
	}
}

func TestDeleteProfileNotFound(t *testing.T) {
	store := newTestStore(t)

	if err := store.DeleteProfile("missing"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestAddProfilePersistFailureLeavesDataUntouched(t *testing.T) {
	store := newTestStore(t)

	persistErr := errors.New("disk full")
	store.persistOverride = func(dataset) error { return persistErr }

	if _, _, err := store.AddProfile(ProfileParams{Name: "Doomed", URL: "http://x:9997"}); !errors.Is(err, persistErr) {
		t.Fatalf("expected persist error, got %v", err)
	}
	store.persistOverride = nil

	if profiles := store.ListProfiles(); len(profiles) != 0 {
		t.Fatalf("failed add must not mutate dataset, got %d profiles", len(profiles))
	}
}

func TestReloadPicksUpExternalEdits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")

	store, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	profile, _, err := store.AddProfile(ProfileParams{Name: "Shared", URL: "http://shared:9997"})
	if err != nil {
		t.Fatalf("AddProfile: %v", err)
	}

	other, err := NewStorage(path, WithoutDefaultAccount())
	if err != nil {
		t.Fatalf("NewStorage second handle: %v", err)
	}
	if _, _, err := other.AddProfile(ProfileParams{Name: "External", URL: "http://external:9997"}); err != nil {
		t.Fatalf("AddProfile external: %v", err)
	}

	if err := store.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	profiles := store.ListProfiles()
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles after reload, got %d", len(profiles))
	}
	if _, ok := store.GetProfile(profile.ID); !ok {
		t.Fatal("original profile lost after reload")
	}
}

func TestReloadFailureLeavesDataUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")

	store, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	if _, _, err := store.AddProfile(ProfileParams{Name: "Survivor", URL: "http://survivor:9997"}); err != nil {
		t.Fatalf("AddProfile: %v", err)
	}

	if err := os.WriteFile(path, []byte(`{"profiles":null,"authRecords":"oops"}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := store.Reload(); err == nil {
		t.Fatal("expected decode error from mangled file")
	}
	if profiles := store.ListProfiles(); len(profiles) != 1 {
		t.Fatalf("failed reload must keep the dataset, got %d profiles", len(profiles))
	}
	if _, err := store.Authenticate(DefaultAdminUsername, DefaultAdminPassword); err != nil {
		t.Fatalf("account lost after failed reload: %v", err)
	}
}

func TestPreviewStatesDefaultVisible(t *testing.T) {
	store := newTestStore(t)

	if !store.PreviewVisible("never-touched") {
		t.Fatal("unknown channels default to visible")
	}
	if err := store.SetPreviewVisible("cam1", false); err != nil {
		t.Fatalf("SetPreviewVisible: %v", err)
	}
	if store.PreviewVisible("cam1") {
		t.Fatal("cam1 should be hidden")
	}
	if err := store.SetPreviewsVisible([]string{"cam1", "cam2"}, true); err != nil {
		t.Fatalf("SetPreviewsVisible: %v", err)
	}
	states := store.PreviewStates()
	if !states["cam1"] || !states["cam2"] {
		t.Fatalf("expected both visible, got %v", states)
	}
}

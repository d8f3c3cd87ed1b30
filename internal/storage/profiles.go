package storage

import (
	"fmt"
	"strings"

	"srtpanel/internal/models"
)

// ProfileParams captures the attributes settable when creating or updating a
// server profile.
type ProfileParams struct {
	Name     string
	URL      string
	Username string
	Password string
}

func (p ProfileParams) normalize() (ProfileParams, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.URL = strings.TrimRight(strings.TrimSpace(p.URL), "/")
	p.Username = strings.TrimSpace(p.Username)
	p.Password = strings.TrimSpace(p.Password)
	if p.Name == "" {
		return ProfileParams{}, fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}
	if p.URL == "" {
		return ProfileParams{}, fmt.Errorf("%w: url is required", ErrInvalidProfile)
	}
	return p, nil
}

// AddProfile stores a new server profile. The first profile ever added becomes
// active automatically; the returned bool reports whether activation happened.
func (s *Storage) AddProfile(params ProfileParams) (models.ServerProfile, bool, error) {
	params, err := params.normalize()
	if err != nil {
		return models.ServerProfile{}, false, err
	}
	id, err := generateID()
	if err != nil {
		return models.ServerProfile{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	profile := models.ServerProfile{
		ID:       id,
		Name:     params.Name,
		URL:      params.URL,
		Username: params.Username,
		Password: params.Password,
	}
	updated.Profiles = append(updated.Profiles, profile)

	activated := false
	if updated.ActiveProfileID == "" {
		updated.ActiveProfileID = profile.ID
		activated = true
	}

	if err := s.persistDataset(updated); err != nil {
		return models.ServerProfile{}, false, err
	}
	s.data = updated
	return profile, activated, nil
}

// UpdateProfile replaces the stored attributes of an existing profile.
func (s *Storage) UpdateProfile(id string, params ProfileParams) (models.ServerProfile, error) {
	params, err := params.normalize()
	if err != nil {
		return models.ServerProfile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	index := profileIndex(updated.Profiles, id)
	if index < 0 {
		return models.ServerProfile{}, ErrProfileNotFound
	}
	profile := updated.Profiles[index]
	profile.Name = params.Name
	profile.URL = params.URL
	profile.Username = params.Username
	profile.Password = params.Password
	updated.Profiles[index] = profile

	if err := s.persistDataset(updated); err != nil {
		return models.ServerProfile{}, err
	}
	s.data = updated
	return profile, nil
}

// DeleteProfile removes a profile. Deleting the active profile promotes the
// first remaining profile in stored order, or clears activity when none
// remain; callers should re-read GetActiveProfile afterwards.
func (s *Storage) DeleteProfile(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	index := profileIndex(updated.Profiles, id)
	if index < 0 {
		return ErrProfileNotFound
	}
	updated.Profiles = append(updated.Profiles[:index], updated.Profiles[index+1:]...)

	if updated.ActiveProfileID == id {
		if len(updated.Profiles) > 0 {
			updated.ActiveProfileID = updated.Profiles[0].ID
		} else {
			updated.ActiveProfileID = ""
		}
	}

	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

// SetActiveProfile marks the identified profile as the one the panel talks to.
func (s *Storage) SetActiveProfile(id string) (models.ServerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	index := profileIndex(updated.Profiles, id)
	if index < 0 {
		return models.ServerProfile{}, ErrProfileNotFound
	}
	updated.ActiveProfileID = id

	if err := s.persistDataset(updated); err != nil {
		return models.ServerProfile{}, err
	}
	s.data = updated
	return updated.Profiles[index], nil
}

// ListProfiles returns the stored profiles in insertion order.
func (s *Storage) ListProfiles() []models.ServerProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ServerProfile(nil), s.data.Profiles...)
}

// GetProfile looks up a profile by ID.
func (s *Storage) GetProfile(id string) (models.ServerProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index := profileIndex(s.data.Profiles, id); index >= 0 {
		return s.data.Profiles[index], true
	}
	return models.ServerProfile{}, false
}

// GetActiveProfile returns the currently active profile, if any.
func (s *Storage) GetActiveProfile() (models.ServerProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.ActiveProfileID == "" {
		return models.ServerProfile{}, false
	}
	if index := profileIndex(s.data.Profiles, s.data.ActiveProfileID); index >= 0 {
		return s.data.Profiles[index], true
	}
	return models.ServerProfile{}, false
}

func profileIndex(profiles []models.ServerProfile, id string) int {
	for i, profile := range profiles {
		if profile.ID == id {
			return i
		}
	}
	return -1
}

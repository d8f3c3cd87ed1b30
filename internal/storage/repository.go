package storage

import (
	"context"

	"srtpanel/internal/models"
)

// Repository exposes the local datastore operations required by the panel's
// HTTP handlers and operator tooling. Both the JSON-file and Postgres
// implementations satisfy it.
type Repository interface {
	Ping(ctx context.Context) error

	Authenticate(username, password string) (models.AuthRecord, error)
	ChangePassword(username, oldPassword, newPassword string) error
	SetPassword(username, password string) error

	AddProfile(params ProfileParams) (models.ServerProfile, bool, error)
	UpdateProfile(id string, params ProfileParams) (models.ServerProfile, error)
	DeleteProfile(id string) error
	SetActiveProfile(id string) (models.ServerProfile, error)
	ListProfiles() []models.ServerProfile
	GetProfile(id string) (models.ServerProfile, bool)
	GetActiveProfile() (models.ServerProfile, bool)

	PreviewVisible(channel string) bool
	SetPreviewVisible(channel string, visible bool) error
	SetPreviewsVisible(channels []string, visible bool) error
	PreviewStates() map[string]bool
}

package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var panelSchema = []string{
	`CREATE TABLE IF NOT EXISTS panel_accounts (
		username TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS panel_profiles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		url TEXT NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		password TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS panel_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS panel_previews (
		channel TEXT PRIMARY KEY,
		visible BOOLEAN NOT NULL
	)`,
}

func (r *postgresRepository) ensureSchema() error {
	ctx, cancel := r.opContext()
	defer cancel()

	for _, stmt := range panelSchema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// ImportSnapshot replays a JSON datastore snapshot into Postgres. Existing
// rows with matching keys are overwritten; rows absent from the snapshot are
// left alone.
func (r *postgresRepository) ImportSnapshot(ctx context.Context, snap Snapshot) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollbackTx(ctx, tx)

	for _, account := range snap.Accounts {
		_, err := tx.Exec(ctx, "INSERT INTO panel_accounts (username, password_hash) VALUES ($1, $2) ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash",
			account.Username, account.PasswordHash)
		if err != nil {
			return fmt.Errorf("import account %s: %w", account.Username, err)
		}
	}

	for position, profile := range snap.Profiles {
		_, err := tx.Exec(ctx, "INSERT INTO panel_profiles (id, name, url, username, password, position) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, url = EXCLUDED.url, username = EXCLUDED.username, password = EXCLUDED.password, position = EXCLUDED.position",
			profile.ID, profile.Name, profile.URL, profile.Username, profile.Password, position)
		if err != nil {
			return fmt.Errorf("import profile %s: %w", profile.ID, err)
		}
	}

	if err := setActiveProfileID(ctx, tx, snap.ActiveProfileID); err != nil {
		return err
	}

	for channel, visible := range snap.PreviewStates {
		_, err := tx.Exec(ctx, "INSERT INTO panel_previews (channel, visible) VALUES ($1, $2) ON CONFLICT (channel) DO UPDATE SET visible = EXCLUDED.visible",
			channel, visible)
		if err != nil {
			return fmt.Errorf("import preview state %s: %w", channel, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

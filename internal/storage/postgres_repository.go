package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"srtpanel/internal/models"
)

const activeProfileSettingKey = "active_profile_id"

type postgresRepository struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
}

// NewPostgresRepository opens a Postgres-backed repository and ensures the
// panel schema exists. The pool is tuned through the same Option values the
// JSON store accepts; JSON-only options are ignored.
func NewPostgresRepository(dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	repo := &postgresRepository{pool: pool, cfg: cfg}
	if err := repo.ensureSchema(); err != nil {
		pool.Close()
		return nil, err
	}
	if !cfg.SkipBootstrap {
		if err := repo.bootstrapDefaultAccount(); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return repo, nil
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *postgresRepository) opContext() (context.Context, context.CancelFunc) {
	timeout := r.cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

func rollbackTx(ctx context.Context, tx pgx.Tx) {
	_ = tx.Rollback(ctx)
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *postgresRepository) bootstrapDefaultAccount() error {
	ctx, cancel := r.opContext()
	defer cancel()

	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM panel_accounts").Scan(&count); err != nil {
		return fmt.Errorf("count accounts: %w", err)
	}
	if count > 0 {
		return nil
	}
	hashed, err := hashPassword(DefaultAdminPassword)
	if err != nil {
		return fmt.Errorf("hash default password: %w", err)
	}
	_, err = r.pool.Exec(ctx, "INSERT INTO panel_accounts (username, password_hash) VALUES ($1, $2) ON CONFLICT (username) DO NOTHING", DefaultAdminUsername, hashed)
	if err != nil {
		return fmt.Errorf("insert default account: %w", err)
	}
	return nil
}

func (r *postgresRepository) Authenticate(username, password string) (models.AuthRecord, error) {
	if password == "" {
		return models.AuthRecord{}, errors.New("password is required")
	}
	ctx, cancel := r.opContext()
	defer cancel()

	var record models.AuthRecord
	err := r.pool.QueryRow(ctx, "SELECT username, password_hash FROM panel_accounts WHERE username = $1", username).Scan(&record.Username, &record.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.AuthRecord{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.AuthRecord{}, fmt.Errorf("load account: %w", err)
	}
	if err := verifyPassword(record.PasswordHash, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return models.AuthRecord{}, ErrInvalidCredentials
		}
		return models.AuthRecord{}, err
	}
	return record, nil
}

func (r *postgresRepository) ChangePassword(username, oldPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if _, err := r.Authenticate(username, oldPassword); err != nil {
		return err
	}
	return r.SetPassword(username, newPassword)
}

func (r *postgresRepository) SetPassword(username, password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	ctx, cancel := r.opContext()
	defer cancel()

	tag, err := r.pool.Exec(ctx, "UPDATE panel_accounts SET password_hash = $2 WHERE username = $1", username, hashed)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *postgresRepository) AddProfile(params ProfileParams) (models.ServerProfile, bool, error) {
	params, err := params.normalize()
	if err != nil {
		return models.ServerProfile{}, false, err
	}
	id, err := generateID()
	if err != nil {
		return models.ServerProfile{}, false, err
	}
	ctx, cancel := r.opContext()
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.ServerProfile{}, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollbackTx(ctx, tx)

	_, err = tx.Exec(ctx, "INSERT INTO panel_profiles (id, name, url, username, password, position) VALUES ($1, $2, $3, $4, $5, COALESCE((SELECT MAX(position) + 1 FROM panel_profiles), 0))",
		id, params.Name, params.URL, params.Username, params.Password)
	if err != nil {
		return models.ServerProfile{}, false, fmt.Errorf("insert profile: %w", err)
	}

	activated := false
	active, err := activeProfileID(ctx, tx)
	if err != nil {
		return models.ServerProfile{}, false, err
	}
	if active == "" {
		if err := setActiveProfileID(ctx, tx, id); err != nil {
			return models.ServerProfile{}, false, err
		}
		activated = true
	}
	if err := tx.Commit(ctx); err != nil {
		return models.ServerProfile{}, false, fmt.Errorf("commit profile: %w", err)
	}
	profile := models.ServerProfile{ID: id, Name: params.Name, URL: params.URL, Username: params.Username, Password: params.Password}
	return profile, activated, nil
}

func (r *postgresRepository) UpdateProfile(id string, params ProfileParams) (models.ServerProfile, error) {
	params, err := params.normalize()
	if err != nil {
		return models.ServerProfile{}, err
	}
	ctx, cancel := r.opContext()
	defer cancel()

	tag, err := r.pool.Exec(ctx, "UPDATE panel_profiles SET name = $2, url = $3, username = $4, password = $5 WHERE id = $1",
		id, params.Name, params.URL, params.Username, params.Password)
	if err != nil {
		return models.ServerProfile{}, fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ServerProfile{}, ErrProfileNotFound
	}
	return models.ServerProfile{ID: id, Name: params.Name, URL: params.URL, Username: params.Username, Password: params.Password}, nil
}

func (r *postgresRepository) DeleteProfile(id string) error {
	ctx, cancel := r.opContext()
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollbackTx(ctx, tx)

	tag, err := tx.Exec(ctx, "DELETE FROM panel_profiles WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}

	active, err := activeProfileID(ctx, tx)
	if err != nil {
		return err
	}
	if active == id {
		var next string
		err := tx.QueryRow(ctx, "SELECT id FROM panel_profiles ORDER BY position, id LIMIT 1").Scan(&next)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("select successor profile: %w", err)
		}
		if err := setActiveProfileID(ctx, tx, next); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

func (r *postgresRepository) SetActiveProfile(id string) (models.ServerProfile, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.ServerProfile{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollbackTx(ctx, tx)

	profile, err := scanProfile(tx.QueryRow(ctx, "SELECT id, name, url, username, password FROM panel_profiles WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ServerProfile{}, ErrProfileNotFound
	}
	if err != nil {
		return models.ServerProfile{}, fmt.Errorf("load profile: %w", err)
	}
	if err := setActiveProfileID(ctx, tx, id); err != nil {
		return models.ServerProfile{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.ServerProfile{}, fmt.Errorf("commit activation: %w", err)
	}
	return profile, nil
}

func (r *postgresRepository) ListProfiles() []models.ServerProfile {
	ctx, cancel := r.opContext()
	defer cancel()

	rows, err := r.pool.Query(ctx, "SELECT id, name, url, username, password FROM panel_profiles ORDER BY position, id")
	if err != nil {
		return nil
	}
	defer rows.Close()

	var profiles []models.ServerProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil
		}
		profiles = append(profiles, profile)
	}
	return profiles
}

func (r *postgresRepository) GetProfile(id string) (models.ServerProfile, bool) {
	ctx, cancel := r.opContext()
	defer cancel()

	profile, err := scanProfile(r.pool.QueryRow(ctx, "SELECT id, name, url, username, password FROM panel_profiles WHERE id = $1", id))
	if err != nil {
		return models.ServerProfile{}, false
	}
	return profile, true
}

func (r *postgresRepository) GetActiveProfile() (models.ServerProfile, bool) {
	ctx, cancel := r.opContext()
	defer cancel()

	profile, err := scanProfile(r.pool.QueryRow(ctx, "SELECT p.id, p.name, p.url, p.username, p.password FROM panel_profiles p JOIN panel_settings s ON s.value = p.id WHERE s.key = $1", activeProfileSettingKey))
	if err != nil {
		return models.ServerProfile{}, false
	}
	return profile, true
}

func (r *postgresRepository) PreviewVisible(channel string) bool {
	ctx, cancel := r.opContext()
	defer cancel()

	var visible bool
	err := r.pool.QueryRow(ctx, "SELECT visible FROM panel_previews WHERE channel = $1", channel).Scan(&visible)
	if err != nil {
		return true
	}
	return visible
}

func (r *postgresRepository) SetPreviewVisible(channel string, visible bool) error {
	return r.SetPreviewsVisible([]string{channel}, visible)
}

func (r *postgresRepository) SetPreviewsVisible(channels []string, visible bool) error {
	if len(channels) == 0 {
		return nil
	}
	ctx, cancel := r.opContext()
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollbackTx(ctx, tx)

	for _, channel := range channels {
		channel = strings.TrimSpace(channel)
		if channel == "" {
			continue
		}
		_, err := tx.Exec(ctx, "INSERT INTO panel_previews (channel, visible) VALUES ($1, $2) ON CONFLICT (channel) DO UPDATE SET visible = EXCLUDED.visible", channel, visible)
		if err != nil {
			return fmt.Errorf("upsert preview %s: %w", channel, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit previews: %w", err)
	}
	return nil
}

func (r *postgresRepository) PreviewStates() map[string]bool {
	ctx, cancel := r.opContext()
	defer cancel()

	rows, err := r.pool.Query(ctx, "SELECT channel, visible FROM panel_previews")
	if err != nil {
		return map[string]bool{}
	}
	defer rows.Close()

	states := make(map[string]bool)
	for rows.Next() {
		var channel string
		var visible bool
		if err := rows.Scan(&channel, &visible); err != nil {
			return states
		}
		states[channel] = visible
	}
	return states
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (models.ServerProfile, error) {
	var profile models.ServerProfile
	err := row.Scan(&profile.ID, &profile.Name, &profile.URL, &profile.Username, &profile.Password)
	return profile, err
}

func activeProfileID(ctx context.Context, tx pgx.Tx) (string, error) {
	var id string
	err := tx.QueryRow(ctx, "SELECT value FROM panel_settings WHERE key = $1", activeProfileSettingKey).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load active profile: %w", err)
	}
	return id, nil
}

func setActiveProfileID(ctx context.Context, tx pgx.Tx, id string) error {
	if id == "" {
		if _, err := tx.Exec(ctx, "DELETE FROM panel_settings WHERE key = $1", activeProfileSettingKey); err != nil {
			return fmt.Errorf("clear active profile: %w", err)
		}
		return nil
	}
	_, err := tx.Exec(ctx, "INSERT INTO panel_settings (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value", activeProfileSettingKey, id)
	if err != nil {
		return fmt.Errorf("set active profile: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arcbridge/toolgate/internal/core/domain"
)

// RegistryStore persists C1's server configuration rows.
type RegistryStore struct {
	db *sqlx.DB
}

func NewRegistryStore(db *sqlx.DB) *RegistryStore { return &RegistryStore{db: db} }

type serverRow struct {
	ID              string `db:"id"`
	Name            string `db:"name"`
	TransportJSON   string `db:"transport_json"`
	AuthJSON        string `db:"auth_json"`
	HealthCheckJSON string `db:"health_check_json"`
	RateLimitsJSON  string `db:"rate_limits_json"`
	MetadataJSON    string `db:"metadata_json"`
	Enabled         bool   `db:"enabled"`
	CreatedAt       int64  `db:"created_at"`
	UpdatedAt       int64  `db:"updated_at"`
}

func rowFromConfig(cfg *domain.ServerConfig) (serverRow, error) {
	transport, err := json.Marshal(cfg.Transport)
	if err != nil {
		return serverRow{}, fmt.Errorf("marshal transport: %w", err)
	}
	auth, err := json.Marshal(cfg.Auth)
	if err != nil {
		return serverRow{}, fmt.Errorf("marshal auth: %w", err)
	}
	health, err := json.Marshal(cfg.HealthCheck)
	if err != nil {
		return serverRow{}, fmt.Errorf("marshal health check: %w", err)
	}
	rateLimits, err := json.Marshal(cfg.RateLimits)
	if err != nil {
		return serverRow{}, fmt.Errorf("marshal rate limits: %w", err)
	}
	metadata, err := json.Marshal(cfg.Metadata)
	if err != nil {
		return serverRow{}, fmt.Errorf("marshal metadata: %w", err)
	}
	return serverRow{
		ID:              cfg.ID,
		Name:            cfg.Name,
		TransportJSON:   string(transport),
		AuthJSON:        string(auth),
		HealthCheckJSON: string(health),
		RateLimitsJSON:  string(rateLimits),
		MetadataJSON:    string(metadata),
		Enabled:         cfg.Enabled,
		CreatedAt:       cfg.CreatedAt.UnixMilli(),
		UpdatedAt:       cfg.UpdatedAt.UnixMilli(),
	}, nil
}

func (r serverRow) toConfig() (*domain.ServerConfig, error) {
	cfg := &domain.ServerConfig{ID: r.ID, Name: r.Name, Enabled: r.Enabled}
	if err := json.Unmarshal([]byte(r.TransportJSON), &cfg.Transport); err != nil {
		return nil, fmt.Errorf("unmarshal transport: %w", err)
	}
	if err := json.Unmarshal([]byte(r.AuthJSON), &cfg.Auth); err != nil {
		return nil, fmt.Errorf("unmarshal auth: %w", err)
	}
	if err := json.Unmarshal([]byte(r.HealthCheckJSON), &cfg.HealthCheck); err != nil {
		return nil, fmt.Errorf("unmarshal health check: %w", err)
	}
	if err := json.Unmarshal([]byte(r.RateLimitsJSON), &cfg.RateLimits); err != nil {
		return nil, fmt.Errorf("unmarshal rate limits: %w", err)
	}
	if err := json.Unmarshal([]byte(r.MetadataJSON), &cfg.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	cfg.CreatedAt = time.UnixMilli(r.CreatedAt)
	cfg.UpdatedAt = time.UnixMilli(r.UpdatedAt)
	return cfg, nil
}

func (s *RegistryStore) Create(ctx context.Context, cfg *domain.ServerConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	row, err := rowFromConfig(cfg)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO servers
			(id, name, transport_json, auth_json, health_check_json, rate_limits_json, metadata_json, enabled, created_at, updated_at)
		VALUES
			(:id, :name, :transport_json, :auth_json, :health_check_json, :rate_limits_json, :metadata_json, :enabled, :created_at, :updated_at)`,
		row)
	if err != nil {
		return fmt.Errorf("insert server: %w", err)
	}
	return nil
}

func (s *RegistryStore) Update(ctx context.Context, cfg *domain.ServerConfig) error {
	row, err := rowFromConfig(cfg)
	if err != nil {
		return err
	}
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE servers SET
			name=:name, transport_json=:transport_json, auth_json=:auth_json,
			health_check_json=:health_check_json, rate_limits_json=:rate_limits_json,
			metadata_json=:metadata_json, enabled=:enabled, updated_at=:updated_at
		WHERE id=:id`, row)
	if err != nil {
		return fmt.Errorf("update server: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("server %q not found", cfg.ID)
	}
	return nil
}

func (s *RegistryStore) Get(ctx context.Context, id string) (*domain.ServerConfig, error) {
	var row serverRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM servers WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("server %q not found: %w", id, err)
	}
	return row.toConfig()
}

func (s *RegistryStore) GetByName(ctx context.Context, name string) (*domain.ServerConfig, error) {
	var row serverRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM servers WHERE name = ?`, name); err != nil {
		return nil, fmt.Errorf("server %q not found: %w", name, err)
	}
	return row.toConfig()
}

func (s *RegistryStore) List(ctx context.Context) ([]*domain.ServerConfig, error) {
	var rows []serverRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM servers ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	out := make([]*domain.ServerConfig, 0, len(rows))
	for _, row := range rows {
		cfg, err := row.toConfig()
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (s *RegistryStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE servers SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("server %q not found", id)
	}
	return nil
}

func (s *RegistryStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM servers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete server: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("server %q not found", id)
	}
	return nil
}

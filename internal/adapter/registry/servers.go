package registry

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arcbridge/toolgate/internal/core/domain"
)

// ServerStore is the persistence seam; internal/store.RegistryStore implements it.
type ServerStore interface {
	Create(ctx context.Context, cfg *domain.ServerConfig) error
	Update(ctx context.Context, cfg *domain.ServerConfig) error
	Get(ctx context.Context, id string) (*domain.ServerConfig, error)
	GetByName(ctx context.Context, name string) (*domain.ServerConfig, error)
	List(ctx context.Context) ([]*domain.ServerConfig, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	Delete(ctx context.Context, id string) error
}

// ServerRegistry is C1: a write-through cache over the persisted server
// configuration table, so reads on the hot invocation path never touch
// SQLite.
type ServerRegistry struct {
	store ServerStore
	byID  *xsync.Map[string, *domain.ServerConfig]
}

func NewServerRegistry(store ServerStore) (*ServerRegistry, error) {
	r := &ServerRegistry{store: store, byID: xsync.NewMap[string, *domain.ServerConfig]()}
	existing, err := store.List(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load server registry: %w", err)
	}
	for _, cfg := range existing {
		r.byID.Store(cfg.ID, cfg)
	}
	return r, nil
}

func (r *ServerRegistry) Create(ctx context.Context, cfg *domain.ServerConfig) error {
	if err := r.store.Create(ctx, cfg); err != nil {
		return err
	}
	r.byID.Store(cfg.ID, cfg)
	return nil
}

func (r *ServerRegistry) Update(ctx context.Context, cfg *domain.ServerConfig) error {
	if err := r.store.Update(ctx, cfg); err != nil {
		return err
	}
	r.byID.Store(cfg.ID, cfg)
	return nil
}

func (r *ServerRegistry) Get(ctx context.Context, id string) (*domain.ServerConfig, error) {
	if cfg, ok := r.byID.Load(id); ok {
		return cfg, nil
	}
	return r.store.Get(ctx, id)
}

func (r *ServerRegistry) GetByName(ctx context.Context, name string) (*domain.ServerConfig, error) {
	var found *domain.ServerConfig
	r.byID.Range(func(_ string, cfg *domain.ServerConfig) bool {
		if cfg.Name == name {
			found = cfg
			return false
		}
		return true
	})
	if found != nil {
		return found, nil
	}
	return r.store.GetByName(ctx, name)
}

func (r *ServerRegistry) List(ctx context.Context) ([]*domain.ServerConfig, error) {
	out := make([]*domain.ServerConfig, 0, r.byID.Size())
	r.byID.Range(func(_ string, cfg *domain.ServerConfig) bool {
		out = append(out, cfg)
		return true
	})
	return out, nil
}

func (r *ServerRegistry) SetEnabled(ctx context.Context, id string, enabled bool) error {
	if err := r.store.SetEnabled(ctx, id, enabled); err != nil {
		return err
	}
	if cfg, ok := r.byID.Load(id); ok {
		cfg.Enabled = enabled
	}
	return nil
}

func (r *ServerRegistry) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	r.byID.Delete(id)
	return nil
}

// Connector is the subset of C3 Reconcile needs to bring the connection set
// in line with the diffed registry.
type Connector interface {
	Connect(ctx context.Context, cfg *domain.ServerConfig) error
	Disconnect(serverID string) error
}

// Reconcile diffs desired against the currently registered servers by name,
// the way a config-driven manager reloads its server set: unseen names are
// created and (if enabled) connected, vanished names are disconnected and
// deleted, unchanged names are left alone. This is CRUD-adjacent but owned
// by the core dataplane because C3's connection lifecycle depends on it.
func (r *ServerRegistry) Reconcile(ctx context.Context, desired []*domain.ServerConfig, pool Connector) error {
	existing, err := r.List(ctx)
	if err != nil {
		return err
	}
	existingByName := make(map[string]*domain.ServerConfig, len(existing))
	for _, cfg := range existing {
		existingByName[cfg.Name] = cfg
	}
	desiredByName := make(map[string]*domain.ServerConfig, len(desired))
	for _, cfg := range desired {
		desiredByName[cfg.Name] = cfg
	}

	for name, cfg := range desiredByName {
		if _, ok := existingByName[name]; ok {
			continue
		}
		if err := r.Create(ctx, cfg); err != nil {
			return fmt.Errorf("reconcile create %q: %w", name, err)
		}
		if cfg.Enabled {
			if err := pool.Connect(ctx, cfg); err != nil {
				return fmt.Errorf("reconcile connect %q: %w", name, err)
			}
		}
	}

	for name, cfg := range existingByName {
		if _, ok := desiredByName[name]; ok {
			continue
		}
		_ = pool.Disconnect(cfg.ID)
		if err := r.Delete(ctx, cfg.ID); err != nil {
			return fmt.Errorf("reconcile delete %q: %w", name, err)
		}
	}
	return nil
}

// Package tokencache implements C2: the auth-material cache that computes
// the headers C3 attaches to a downstream call, refreshing OAuth2 client-
// credentials tokens ahead of expiry through a cached per-server token
// source; static API-key headers are rebuilt from the config on each call.
package tokencache

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/arcbridge/toolgate/internal/core/domain"
)

type Cache struct {
	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

func New() *Cache {
	return &Cache{sources: make(map[string]oauth2.TokenSource)}
}

// AuthHeaders returns the headers to attach to a request against cfg's
// server, refreshing an OAuth2 token if it has expired.
func (c *Cache) AuthHeaders(ctx context.Context, cfg *domain.ServerConfig) (map[string]string, error) {
	switch cfg.Auth.Kind {
	case domain.AuthNone:
		return nil, nil
	case domain.AuthAPIKey:
		header := cfg.Auth.Header
		if header == "" {
			header = "Authorization"
		}
		return map[string]string{header: cfg.Auth.Prefix + cfg.Auth.Key}, nil
	case domain.AuthOAuth2:
		token, err := c.oauth2Token(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("refresh oauth2 token for %q: %w", cfg.Name, err)
		}
		return map[string]string{"Authorization": "Bearer " + token}, nil
	default:
		return nil, fmt.Errorf("unknown auth kind %q for server %q", cfg.Auth.Kind, cfg.Name)
	}
}

func (c *Cache) oauth2Token(ctx context.Context, cfg *domain.ServerConfig) (string, error) {
	c.mu.Lock()
	source, ok := c.sources[cfg.ID]
	if !ok {
		conf := &clientcredentials.Config{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			TokenURL:     cfg.Auth.TokenURL,
			Scopes:       cfg.Auth.Scopes,
		}
		source = conf.TokenSource(context.Background())
		c.sources[cfg.ID] = source
	}
	c.mu.Unlock()

	token, err := source.Token()
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// Invalidate drops a server's cached token source, forcing a fresh fetch on
// the next AuthHeaders call (used after an auth-related downstream failure).
func (c *Cache) Invalidate(serverID string) {
	c.mu.Lock()
	delete(c.sources, serverID)
	c.mu.Unlock()
}

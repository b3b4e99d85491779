// Package registry implements C1 (persisted server configuration) and C4
// (the runtime tool catalog), both backed by xsync concurrent maps keyed
// on the gateway's own value types.
package registry

import (
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arcbridge/toolgate/internal/core/domain"
)

// ToolCatalog is C4: a qualified-name index over every tool exposed by every
// connected server, rebuilt per-server on (re)connect and torn down on
// disconnect.
type ToolCatalog struct {
	// entries maps qualified name -> entry.
	entries *xsync.Map[string, *domain.ToolEntry]
	// byServer maps serverId -> set of qualified names, so UnregisterServer
	// can drop exactly that server's entries without a full scan.
	byServer *xsync.Map[string, map[string]struct{}]
	mu       sync.Mutex // guards byServer's inner map mutation
	now      func() time.Time
}

func NewToolCatalog() *ToolCatalog {
	return &ToolCatalog{
		entries:  xsync.NewMap[string, *domain.ToolEntry](),
		byServer: xsync.NewMap[string, map[string]struct{}](),
		now:      time.Now,
	}
}

func (c *ToolCatalog) RegisterServerTools(serverID, serverName string, tools []domain.ToolDescriptor) error {
	names := make(map[string]struct{}, len(tools))
	now := c.now()
	for _, t := range tools {
		qualified := serverName + "/" + t.Name
		c.entries.Store(qualified, &domain.ToolEntry{
			QualifiedName: qualified,
			ServerID:      serverID,
			ServerName:    serverName,
			ToolName:      t.Name,
			Description:   t.Description,
			InputSchema:   t.InputSchema,
			RegisteredAt:  now,
		})
		names[qualified] = struct{}{}
	}
	c.mu.Lock()
	c.byServer.Store(serverID, names)
	c.mu.Unlock()
	return nil
}

func (c *ToolCatalog) UnregisterServer(serverID string) error {
	c.mu.Lock()
	names, ok := c.byServer.Load(serverID)
	c.byServer.Delete(serverID)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	for name := range names {
		c.entries.Delete(name)
	}
	return nil
}

// Resolve looks up a tool by exact qualified name, falling back to the
// first entry whose qualified name ends with "/<shortName>".
func (c *ToolCatalog) Resolve(nameOrShort string) (*domain.ToolEntry, bool) {
	if entry, ok := c.entries.Load(nameOrShort); ok {
		return entry, true
	}
	suffix := "/" + nameOrShort
	var found *domain.ToolEntry
	c.entries.Range(func(key string, entry *domain.ToolEntry) bool {
		if strings.HasSuffix(key, suffix) {
			found = entry
			return false
		}
		return true
	})
	if found == nil {
		return nil, false
	}
	return found, true
}

func (c *ToolCatalog) RecordUsage(qualifiedName string) {
	entry, ok := c.entries.Load(qualifiedName)
	if !ok {
		return
	}
	now := c.now()
	entry.UsageCount++
	entry.LastUsedAt = &now
}

func (c *ToolCatalog) List() []*domain.ToolEntry {
	out := make([]*domain.ToolEntry, 0, c.entries.Size())
	c.entries.Range(func(_ string, entry *domain.ToolEntry) bool {
		out = append(out, entry)
		return true
	})
	return out
}

func (c *ToolCatalog) Stats() domain.RegistryStats {
	byServer := make(map[string]int)
	total := 0
	c.entries.Range(func(_ string, entry *domain.ToolEntry) bool {
		byServer[entry.ServerID]++
		total++
		return true
	})
	return domain.RegistryStats{
		TotalServers:  len(byServer),
		TotalTools:    total,
		ToolsByServer: byServer,
		LastUpdated:   c.now(),
	}
}

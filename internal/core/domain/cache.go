package domain

// CacheEntryType distinguishes cache namespaces. Only "tool" is populated
// by the router today; the type tag exists so future namespaces (e.g.
// "list_tools" catalog snapshots) share the same key scheme.
type CacheEntryType string

const ToolCacheType CacheEntryType = "tool"

// CacheEntry is C5's persisted/memory row shape.
type CacheEntry struct {
	Key         string // "<type>:<serverId>:<toolName>:<paramsHash>"
	Type        CacheEntryType
	ServerID    string
	ToolName    string
	ParamsHash  string
	Value       []byte // JSON-encoded response
	ExpiresAt   int64  // unix-ms, absolute
	TTLSeconds  int
	HitCount    int64
	LastHitAt   *int64
}

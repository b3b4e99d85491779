package domain

import "time"

// ToolEntry is C4's in-memory catalog record for one tool on one connected
// server, addressed by its globally-unique qualified name.
type ToolEntry struct {
	QualifiedName string // "<serverName>/<toolName>"
	ServerID      string
	ServerName    string
	ToolName      string
	Description   string
	InputSchema   []byte
	Category      string
	Tags          []string // <= 5
	UsageCount    int64
	LastUsedAt    *time.Time
	RegisteredAt  time.Time
}

// RegistryStats summarises the current tool catalog for operators.
type RegistryStats struct {
	TotalServers int
	TotalTools   int
	ToolsByServer map[string]int
	LastUpdated  time.Time
}

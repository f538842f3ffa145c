package backends

import (
	"fmt"
	"hash/crc32"
	"strings"
)

// Dependency represents a structured dependency on another migration
type Dependency struct {
	Connection string // Connection name (e.g., "core", "guard")
	Schema     string // Schema name (optional, for cross-schema dependencies)
	Target     string // Migration version or name to depend on
	TargetType string // "version" or "name" (default: "name")
}

// MigrationScript represents a migration script known to the source
type MigrationScript struct {
	Schema                 string
	Version                string // Required: dotted or timestamp version
	Name                   string
	Connection             string
	Backend                string
	Format                 string // "sql" or "json"; empty means derived from the backend
	UpSQL                  string
	DownSQL                string
	Location               string       // Where the script was loaded from, if anywhere
	Dependencies           []string     // Optional: list of migration names this migration depends on
	StructuredDependencies []Dependency // Optional: structured dependencies
}

// ID identifies a script across backends and connections: {version}_{name}_{backend}_{connection}
func (m *MigrationScript) ID() string {
	return fmt.Sprintf("%s_%s_%s_%s", m.Version, m.Name, m.Backend, m.Connection)
}

// ScriptFormat returns the script format, falling back to the backend convention
func (m *MigrationScript) ScriptFormat() string {
	if m.Format != "" {
		return strings.ToLower(m.Format)
	}
	if IsDocumentBackend(m.Backend) {
		return "json"
	}
	return "sql"
}

// ScriptName is the file name the up script is stored under
func (m *MigrationScript) ScriptName() string {
	return fmt.Sprintf("%s_%s.up.%s", m.Version, m.Name, m.ScriptFormat())
}

// Checksum is the CRC32 (IEEE) of the up script
func (m *MigrationScript) Checksum() int32 {
	return int32(crc32.ChecksumIEEE([]byte(m.UpSQL)))
}

// IsDocumentBackend reports whether scripts for the backend are JSON documents
func IsDocumentBackend(backend string) bool {
	return backend == "etcd" || backend == "mongodb"
}

// ConnectionConfig holds configuration for a backend connection
type ConnectionConfig struct {
	Backend  string // "postgresql", "etcd"
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Schema   string
	Extra    map[string]string // Additional backend-specific config
}

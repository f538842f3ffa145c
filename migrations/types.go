package migrations

import "github.com/toolsascode/bfm/info/internal/backends"

// MigrationScript is a public alias for backends.MigrationScript
// This allows migration files outside the bfm module to use this type
type MigrationScript = backends.MigrationScript

// Dependency is a public alias for backends.Dependency
type Dependency = backends.Dependency

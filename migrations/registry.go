package migrations

import "github.com/toolsascode/bfm/info/internal/registry"

// GlobalRegistry provides public access to the global migration registry.
// Scripts registered here are resolved alongside the ones loaded from the
// SFM directory.
var GlobalRegistry = registry.GlobalRegistry

// Register adds a script to the global registry. A script with the same ID
// replaces the earlier one.
func Register(script *MigrationScript) error {
	return GlobalRegistry.Register(script)
}

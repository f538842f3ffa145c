// Package migrations provides the public API for registering migration scripts
// from Go code. Registered scripts are reported by the info service exactly
// like scripts loaded from the SFM directory.
//
// Example usage in a migration file:
//
//	package core
//
//	import (
//		_ "embed"
//
//		"github.com/toolsascode/bfm/info/migrations"
//	)
//
//	//go:embed 20250101120000_create_users.up.sql
//	var upSQL string
//
//	func init() {
//		_ = migrations.Register(&migrations.MigrationScript{
//			Version:    "20250101120000",
//			Name:       "create_users",
//			Connection: "core",
//			Backend:    "postgresql",
//			UpSQL:      upSQL,
//			StructuredDependencies: []migrations.Dependency{
//				{Connection: "core", Target: "20241201000000", TargetType: "version"},
//			},
//		})
//	}
package migrations

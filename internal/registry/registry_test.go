package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolsascode/bfm/info/internal/backends"
)

func script(version, name, connection, backend string) *backends.MigrationScript {
	return &backends.MigrationScript{
		Version:    version,
		Name:       name,
		Connection: connection,
		Backend:    backend,
		UpSQL:      "-- " + name,
	}
}

func names(scripts []*backends.MigrationScript) []string {
	out := make([]string, 0, len(scripts))
	for _, s := range scripts {
		out = append(out, s.Name)
	}
	return out
}

func TestInMemoryRegistry_Register(t *testing.T) {
	reg := NewInMemoryRegistry()

	require.NoError(t, reg.Register(script("20240101120000", "create_users", "core", "postgresql")))
	assert.Len(t, reg.GetAll(), 1)

	// Same ID replaces the existing script.
	replacement := script("20240101120000", "create_users", "core", "postgresql")
	replacement.UpSQL = "CREATE TABLE users (id int);"
	require.NoError(t, reg.Register(replacement))
	all := reg.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, replacement.UpSQL, all[0].UpSQL)
}

func TestInMemoryRegistry_RegisterRejectsInvalidScripts(t *testing.T) {
	tests := []struct {
		name   string
		script *backends.MigrationScript
	}{
		{name: "nil", script: nil},
		{name: "no name", script: script("1", "", "core", "postgresql")},
		{name: "bad version", script: script("v1", "init", "core", "postgresql")},
		{name: "empty version", script: script("", "init", "core", "postgresql")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewInMemoryRegistry()
			assert.Error(t, reg.Register(tt.script))
			assert.Empty(t, reg.GetAll())
		})
	}
}

func TestInMemoryRegistry_Unregister(t *testing.T) {
	reg := NewInMemoryRegistry()
	m := script("1", "init", "core", "postgresql")
	require.NoError(t, reg.Register(m))

	reg.Unregister(m.ID())
	assert.Empty(t, reg.GetAll())

	reg.Unregister("unknown")
}

func TestInMemoryRegistry_FindByTarget(t *testing.T) {
	reg := NewInMemoryRegistry()
	m1 := script("20240101120000", "migration1", "test", "postgresql")
	m1.Schema = "public"
	require.NoError(t, reg.Register(m1))
	require.NoError(t, reg.Register(script("20240101120001", "migration2", "test", "postgresql")))
	require.NoError(t, reg.Register(script("20240101120000", "migration3", "other", "postgresql")))
	require.NoError(t, reg.Register(script("20240101120002", "flags", "metadata", "etcd")))

	tests := []struct {
		name   string
		target *MigrationTarget
		want   []string
	}{
		{name: "nil target", target: nil, want: []string{"migration1", "migration3", "migration2", "flags"}},
		{name: "filter by connection", target: &MigrationTarget{Connection: "test"}, want: []string{"migration1", "migration2"}},
		{name: "filter by backend", target: &MigrationTarget{Backend: "etcd"}, want: []string{"flags"}},
		{name: "filter by schema", target: &MigrationTarget{Schema: "public"}, want: []string{"migration1"}},
		{name: "combined filters", target: &MigrationTarget{Backend: "postgresql", Connection: "other"}, want: []string{"migration3"}},
		{name: "no match", target: &MigrationTarget{Connection: "missing"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reg.FindByTarget(tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
		})
	}
}

func TestInMemoryRegistry_Lookups(t *testing.T) {
	reg := NewInMemoryRegistry()
	require.NoError(t, reg.Register(script("1", "bootstrap", "core", "postgresql")))
	require.NoError(t, reg.Register(script("1", "bootstrap", "guard", "postgresql")))
	require.NoError(t, reg.Register(script("2", "seed", "metadata", "etcd")))

	assert.Len(t, reg.GetByConnection("core"), 1)
	assert.Len(t, reg.GetByBackend("postgresql"), 2)
	assert.Len(t, reg.GetMigrationByName("bootstrap"), 2)
	assert.Len(t, reg.GetMigrationByVersion("2"), 1)
	assert.Empty(t, reg.GetMigrationByVersion("3"))
}

func TestMigrationScriptHelpers(t *testing.T) {
	sqlScript := script("20250115000000", "bootstrap_solution", "core", "postgresql")
	assert.Equal(t, "20250115000000_bootstrap_solution_postgresql_core", sqlScript.ID())
	assert.Equal(t, "sql", sqlScript.ScriptFormat())
	assert.Equal(t, "20250115000000_bootstrap_solution.up.sql", sqlScript.ScriptName())

	jsonScript := script("20250115000000", "seed_feature_flags", "metadata", "etcd")
	assert.Equal(t, "json", jsonScript.ScriptFormat())
	assert.Equal(t, "20250115000000_seed_feature_flags.up.json", jsonScript.ScriptName())

	explicit := script("1", "x", "core", "postgresql")
	explicit.Format = "JSON"
	assert.Equal(t, "json", explicit.ScriptFormat())

	a := script("1", "x", "core", "postgresql")
	b := script("1", "x", "core", "postgresql")
	assert.Equal(t, a.Checksum(), b.Checksum())
	b.UpSQL += " "
	assert.NotEqual(t, a.Checksum(), b.Checksum())
}

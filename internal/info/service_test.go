package info

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolsascode/bfm/info/internal/version"
)

type stubResolver struct {
	migrations []ResolvedMigration
	err        error
	calls      int
}

func (r *stubResolver) ResolveMigrations(ctx context.Context) ([]ResolvedMigration, error) {
	r.calls++
	return r.migrations, r.err
}

type stubHistory struct {
	migrations []AppliedMigration
	err        error
}

func (h *stubHistory) AllAppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	return h.migrations, h.err
}

func v(s string) version.Version {
	return version.MustParse(s)
}

func res(ver string) ResolvedMigration {
	return ResolvedMigration{
		Version:     v(ver),
		Description: "migration " + ver,
		Script:      "V" + ver + "__migration.sql",
		Checksum:    Checksum(int32(len(ver)) * 7),
		Type:        TypeSQL,
	}
}

func app(rank int, ver string, success bool) AppliedMigration {
	r := res(ver)
	return AppliedMigration{
		InstalledRank: rank,
		Version:       r.Version,
		Description:   r.Description,
		Type:          r.Type,
		Script:        r.Script,
		Checksum:      r.Checksum,
		InstalledOn:   time.Date(2025, 1, 15, 0, 0, rank, 0, time.UTC),
		InstalledBy:   "bfm",
		ExecutionTime: 12 * time.Millisecond,
		Success:       success,
	}
}

func marker(rank int, ver string, typ MigrationType) AppliedMigration {
	return AppliedMigration{
		InstalledRank: rank,
		Version:       v(ver),
		Description:   "<< marker >>",
		Type:          typ,
		Success:       true,
	}
}

func refreshed(t *testing.T, resolved []ResolvedMigration, applied []AppliedMigration, opts Options) *Service {
	t.Helper()
	svc := NewService(&stubResolver{migrations: resolved}, &stubHistory{migrations: applied}, opts)
	require.NoError(t, svc.Refresh(context.Background()))
	return svc
}

func versionsOf(infos []*MigrationInfo) []string {
	out := make([]string, 0, len(infos))
	for _, m := range infos {
		out = append(out, m.Version().String())
	}
	return out
}

func stateOf(t *testing.T, svc *Service, ver string) State {
	t.Helper()
	for _, m := range svc.All() {
		if m.Version().Equal(v(ver)) {
			return m.State()
		}
	}
	t.Fatalf("version %s not found", ver)
	return 0
}

func TestScenarioPendingAfterApplied(t *testing.T) {
	svc := refreshed(t,
		[]ResolvedMigration{res("1"), res("2"), res("3")},
		[]AppliedMigration{app(1, "1", true), app(2, "2", true)},
		DefaultOptions())

	require.NotNil(t, svc.Current())
	assert.Equal(t, "2", svc.Current().Version().String())
	assert.Equal(t, []string{"3"}, versionsOf(svc.Pending()))
	assert.NoError(t, svc.Validate())
}

func TestScenarioGapAboveLastApplied(t *testing.T) {
	svc := refreshed(t,
		[]ResolvedMigration{res("1"), res("3")},
		[]AppliedMigration{app(1, "1", true), app(2, "2", true)},
		DefaultOptions())

	assert.Equal(t, StatePending, stateOf(t, svc, "3"))
	assert.Equal(t, StateMissingSuccess, stateOf(t, svc, "2"))
}

func TestScenarioOutOfOrder(t *testing.T) {
	resolved := []ResolvedMigration{res("1"), res("2")}
	applied := []AppliedMigration{app(1, "1", true), app(2, "3", true)}

	strict := refreshed(t, resolved, applied, DefaultOptions())
	assert.Equal(t, StateIgnored, stateOf(t, strict, "2"))
	assert.Empty(t, strict.OutOfOrder())
	assert.Empty(t, strict.Pending())

	opts := DefaultOptions()
	opts.OutOfOrder = true
	relaxed := refreshed(t, resolved, applied, opts)
	assert.Equal(t, StateOutOfOrder, stateOf(t, relaxed, "2"))
	assert.Equal(t, []string{"2"}, versionsOf(relaxed.OutOfOrder()))
}

func TestScenarioMissingFailed(t *testing.T) {
	svc := refreshed(t, nil, []AppliedMigration{app(1, "5", false)}, DefaultOptions())

	assert.Equal(t, StateMissingFailed, stateOf(t, svc, "5"))
	assert.Equal(t, []string{"5"}, versionsOf(svc.Failed()))
	require.NotNil(t, svc.Current())
	assert.Equal(t, "5", svc.Current().Version().String())

	svc = refreshed(t, []ResolvedMigration{res("6")}, []AppliedMigration{app(1, "5", false)}, DefaultOptions())
	assert.Equal(t, StateMissingFailed, stateOf(t, svc, "5"))

	svc = refreshed(t, []ResolvedMigration{res("4")}, []AppliedMigration{app(1, "5", false)}, DefaultOptions())
	assert.Equal(t, StateFutureFailed, stateOf(t, svc, "5"))
	assert.Equal(t, []string{"5"}, versionsOf(svc.Future()))
}

func TestScenarioSchemaMarker(t *testing.T) {
	svc := refreshed(t,
		[]ResolvedMigration{res("1")},
		[]AppliedMigration{marker(1, "0", TypeSchema), app(2, "1", true)},
		DefaultOptions())

	assert.Equal(t, StateBaseline, stateOf(t, svc, "0"))
	assert.Equal(t, []string{"1"}, versionsOf(svc.Applied()))
	assert.Empty(t, svc.Pending())
	assert.Equal(t, "0", svc.Context().Schema.String())

	only := refreshed(t, nil, []AppliedMigration{marker(1, "0", TypeSchema)}, DefaultOptions())
	require.NotNil(t, only.Current())
	assert.Equal(t, StateBaseline, only.Current().State())
	assert.Empty(t, only.Applied())
}

func TestDeriveStateTable(t *testing.T) {
	base := &Context{
		LastResolved: v("5"),
		LastApplied:  v("4"),
		Baseline:     v("2"),
		Schema:       version.Empty,
		Target:       version.Latest,
	}
	r := func(ver string) *ResolvedMigration { m := res(ver); return &m }
	a := func(ver string, ok bool) *AppliedMigration { m := app(1, ver, ok); return &m }
	mk := func(ver string, typ MigrationType) *AppliedMigration { m := marker(1, ver, typ); return &m }

	tests := []struct {
		name     string
		ver      string
		resolved *ResolvedMigration
		applied  *AppliedMigration
		ctx      *Context
		want     State
	}{
		{"baseline marker", "2", nil, mk("2", TypeBaseline), base, StateBaseline},
		{"schema marker resolved too", "0", r("0"), mk("0", TypeSchema), base, StateBaseline},
		{"future success", "6", nil, a("6", true), base, StateFutureSuccess},
		{"future failed", "6", nil, a("6", false), base, StateFutureFailed},
		{"missing success", "3", nil, a("3", true), base, StateMissingSuccess},
		{"missing failed", "3", nil, a("3", false), base, StateMissingFailed},
		{"missing at last resolved", "5", nil, a("5", true), base, StateMissingSuccess},
		{"success", "3", r("3"), a("3", true), base, StateSuccess},
		{"failed", "3", r("3"), a("3", false), base, StateFailed},
		{"below baseline", "1", r("1"), nil, base, StateBelowBaseline},
		{"at baseline", "2", r("2"), nil, base, StateBelowBaseline},
		{"ignored", "3", r("3"), nil, base, StateIgnored},
		{"out of order", "3", r("3"), nil, &Context{LastApplied: v("4"), Baseline: version.Empty, Target: version.Latest, OutOfOrder: true}, StateOutOfOrder},
		{"pending", "5", r("5"), nil, base, StatePending},
		{"above target", "5", r("5"), nil, base.withTarget(v("4.5")), StateAboveTarget},
		{"at target", "5", r("5"), nil, base.withTarget(v("5")), StatePending},
		{"out of order above target", "3", r("3"), nil, &Context{LastApplied: v("4"), Baseline: version.Empty, Target: v("2"), OutOfOrder: true}, StateAboveTarget},
		{"ignored wins over target", "3", r("3"), nil, base.withTarget(v("2.5")), StateIgnored},
		{"unresolved current target", "5", r("5"), nil, base.withTarget(version.Current), StatePending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveState(v(tt.ver), tt.resolved, tt.applied, tt.ctx))
		})
	}
}

func TestContextObserve(t *testing.T) {
	c := newContext(version.Latest, false, true)
	c.observe(
		[]ResolvedMigration{res("3"), res("10"), res("2")},
		[]AppliedMigration{marker(1, "0", TypeSchema), marker(2, "1", TypeBaseline), app(3, "2", true), marker(4, "1.5", TypeBaseline)},
	)

	assert.Equal(t, "10", c.LastResolved.String())
	assert.Equal(t, "2", c.LastApplied.String())
	assert.Equal(t, "0", c.Schema.String())
	assert.Equal(t, "1.5", c.Baseline.String())

	empty := newContext(version.Latest, false, true)
	empty.observe(nil, nil)
	assert.True(t, empty.LastResolved.IsEmpty())
	assert.True(t, empty.LastApplied.IsEmpty())
	assert.True(t, empty.Baseline.IsEmpty())
	assert.True(t, empty.Schema.IsEmpty())
}

func TestAllSortedAndUnique(t *testing.T) {
	svc := refreshed(t,
		[]ResolvedMigration{res("10"), res("2"), res("1.1"), res("3")},
		[]AppliedMigration{app(1, "1.1", true), app(2, "2", true), app(3, "7", false), app(4, "1.10", true)},
		DefaultOptions())

	all := svc.All()
	assert.Equal(t, []string{"1.1", "1.10", "2", "3", "7", "10"}, versionsOf(all))
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].Version().Less(all[i].Version()))
	}
}

func TestUnionCompleteness(t *testing.T) {
	resolved := []ResolvedMigration{res("1"), res("2"), res("4")}
	applied := []AppliedMigration{app(1, "1", true), app(2, "3", true), app(3, "5", false)}
	svc := refreshed(t, resolved, applied, DefaultOptions())

	seen := map[string]int{}
	for _, m := range svc.All() {
		seen[m.Version().Key()]++
	}
	for _, ver := range []string{"1", "2", "3", "4", "5"} {
		assert.Equal(t, 1, seen[ver], "version %s", ver)
	}
	assert.Len(t, seen, 5)
}

func TestEquivalentVersionsMerge(t *testing.T) {
	svc := refreshed(t,
		[]ResolvedMigration{res("1.0")},
		[]AppliedMigration{app(1, "1", true)},
		DefaultOptions())

	require.Len(t, svc.All(), 1)
	assert.Equal(t, StateSuccess, svc.All()[0].State())
}

func TestCurrentIsHighestApplied(t *testing.T) {
	svc := refreshed(t,
		[]ResolvedMigration{res("1"), res("2"), res("3"), res("4")},
		[]AppliedMigration{app(1, "1", true), app(2, "3", false)},
		DefaultOptions())

	require.NotNil(t, svc.Current())
	assert.Equal(t, "3", svc.Current().Version().String())
	assert.Equal(t, StateFailed, svc.Current().State())

	none := refreshed(t, []ResolvedMigration{res("1")}, nil, DefaultOptions())
	assert.Nil(t, none.Current())
}

func TestRefreshIdempotent(t *testing.T) {
	svc := NewService(
		&stubResolver{migrations: []ResolvedMigration{res("1"), res("2"), res("3")}},
		&stubHistory{migrations: []AppliedMigration{app(1, "1", true), app(2, "4", false)}},
		DefaultOptions())

	require.NoError(t, svc.Refresh(context.Background()))
	first := svc.All()
	require.NoError(t, svc.Refresh(context.Background()))
	second := svc.All()

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Version(), second[i].Version())
		assert.Equal(t, first[i].State(), second[i].State())
		assert.Equal(t, first[i].Checksum(), second[i].Checksum())
	}
}

func TestNewResolvedMigrationDoesNotReclassify(t *testing.T) {
	resolved := []ResolvedMigration{res("1"), res("2"), res("3"), res("5")}
	applied := []AppliedMigration{marker(1, "0", TypeSchema), app(2, "1", true), app(3, "3", false)}
	opts := DefaultOptions()
	opts.OutOfOrder = true

	before := refreshed(t, resolved, applied, opts)
	after := refreshed(t, append(resolved, res("9")), applied, opts)

	for _, m := range before.All() {
		assert.Equal(t, m.State(), stateOf(t, after, m.Version().String()), "version %s", m.Version())
	}
	assert.Equal(t, StatePending, stateOf(t, after, "9"))
}

func TestTargetVersion(t *testing.T) {
	opts := DefaultOptions()
	opts.Target = v("2")
	svc := refreshed(t,
		[]ResolvedMigration{res("1"), res("2"), res("3")},
		[]AppliedMigration{app(1, "1", true)},
		opts)

	assert.Equal(t, []string{"2"}, versionsOf(svc.Pending()))
	assert.Equal(t, StateAboveTarget, stateOf(t, svc, "3"))
	assert.Equal(t, "2", svc.Target().String())
}

func TestCurrentTargetIsResolvedAfterClassification(t *testing.T) {
	opts := DefaultOptions()
	opts.Target = version.Current
	svc := refreshed(t,
		[]ResolvedMigration{res("1"), res("2"), res("3")},
		[]AppliedMigration{app(1, "1", true), app(2, "2", true)},
		opts)

	assert.Equal(t, "2", svc.Target().String())
	assert.Empty(t, svc.Pending())
	assert.Equal(t, StateAboveTarget, stateOf(t, svc, "3"))
	assert.Equal(t, StateSuccess, stateOf(t, svc, "2"))

	empty := refreshed(t, []ResolvedMigration{res("1")}, nil, opts)
	assert.True(t, empty.Target().IsEmpty())
	assert.Equal(t, StateAboveTarget, stateOf(t, empty, "1"))
}

func TestZeroTargetMeansLatest(t *testing.T) {
	svc := refreshed(t, []ResolvedMigration{res("1")}, nil, Options{PendingOrFuture: true})
	assert.True(t, svc.Target().IsLatest())
	assert.Equal(t, []string{"1"}, versionsOf(svc.Pending()))
}

func TestViews(t *testing.T) {
	opts := DefaultOptions()
	opts.OutOfOrder = true
	svc := refreshed(t,
		[]ResolvedMigration{res("1"), res("2"), res("3"), res("5"), res("7")},
		[]AppliedMigration{
			marker(1, "0", TypeSchema),
			app(2, "1", true),
			app(3, "3", true),
			app(4, "4", false),
			app(5, "5", false),
			app(6, "8", true),
		},
		opts)

	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "7", "8"}, versionsOf(svc.All()))
	assert.Empty(t, svc.Pending())
	assert.Equal(t, []string{"1", "3", "4", "5", "8"}, versionsOf(svc.Applied()))
	assert.Equal(t, []string{"0", "1", "2", "3", "5", "7"}, versionsOf(svc.Resolved()))
	assert.Equal(t, []string{"4", "5"}, versionsOf(svc.Failed()))
	assert.Equal(t, []string{"8"}, versionsOf(svc.Future()))
	assert.Equal(t, []string{"2", "7"}, versionsOf(svc.OutOfOrder()))
	assert.Equal(t, "8", svc.Current().Version().String())

	summary := svc.Summary()
	assert.Equal(t, 1, summary[StateBaseline])
	assert.Equal(t, 2, summary[StateSuccess])
	assert.Equal(t, 1, summary[StateMissingFailed])
	assert.Equal(t, 1, summary[StateFailed])
	assert.Equal(t, 1, summary[StateFutureSuccess])
	assert.Equal(t, 2, summary[StateOutOfOrder])
	assert.Zero(t, summary[StatePending])
}

func TestViewsReturnCopies(t *testing.T) {
	checksum := Checksum(42)
	resolved := []ResolvedMigration{{Version: v("1"), Description: "one", Checksum: checksum, Type: TypeSQL}}
	svc := refreshed(t, resolved, nil, DefaultOptions())

	all := svc.All()
	all[0] = nil
	require.NotNil(t, svc.All()[0])

	*checksum = 7
	resolved[0].Description = "changed"
	r, ok := svc.All()[0].Resolved()
	require.True(t, ok)
	assert.Equal(t, int32(42), *r.Checksum)
	assert.Equal(t, "one", r.Description)

	*r.Checksum = 9
	assert.Equal(t, int32(42), *svc.All()[0].Checksum())
}

func TestQueriesBeforeRefresh(t *testing.T) {
	svc := NewService(&stubResolver{}, &stubHistory{}, DefaultOptions())

	assert.Empty(t, svc.All())
	assert.Nil(t, svc.Current())
	assert.Empty(t, svc.Pending())
	assert.NoError(t, svc.Validate())
	assert.True(t, svc.Target().IsLatest())
}

func TestRefreshPropagatesCollaboratorErrors(t *testing.T) {
	boom := errors.New("boom")

	svc := NewService(&stubResolver{err: boom}, &stubHistory{}, DefaultOptions())
	err := svc.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to resolve migrations")

	svc = NewService(&stubResolver{}, &stubHistory{err: boom}, DefaultOptions())
	err = svc.Refresh(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to read applied migrations")
}

func TestFailedRefreshKeepsPreviousSnapshot(t *testing.T) {
	resolver := &stubResolver{migrations: []ResolvedMigration{res("1")}}
	svc := NewService(resolver, &stubHistory{}, DefaultOptions())
	require.NoError(t, svc.Refresh(context.Background()))

	resolver.err = errors.New("unavailable")
	require.Error(t, svc.Refresh(context.Background()))
	assert.Equal(t, []string{"1"}, versionsOf(svc.All()))
}

func TestConcurrentReadsDuringRefresh(t *testing.T) {
	svc := NewService(
		&stubResolver{migrations: []ResolvedMigration{res("1"), res("2"), res("3")}},
		&stubHistory{migrations: []AppliedMigration{app(1, "1", true)}},
		DefaultOptions())
	require.NoError(t, svc.Refresh(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = svc.Refresh(context.Background())
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.Len(t, svc.All(), 3)
				assert.Equal(t, "1", svc.Current().Version().String())
			}
		}()
	}
	wg.Wait()
}

package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/toolsascode/bfm/info/internal/info"
	"github.com/toolsascode/bfm/info/internal/logger"
	"github.com/toolsascode/bfm/info/internal/state"
	"github.com/toolsascode/bfm/info/internal/version"
)

// Supported database/sql driver names
const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

// Config describes where the history table lives
type Config struct {
	Driver   string
	Host     string
	Port     string
	Username string
	Password string
	Database string
	SSLMode  string
	Schema   string
	Table    string
}

// ConnString builds a postgres URL understood by both lib/pq and pgx
func (c Config) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   c.Host + ":" + c.Port,
		Path:   "/" + c.Database,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	} else if c.Username != "" {
		u.User = url.User(c.Username)
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u.RawQuery = url.Values{"sslmode": []string{sslMode}}.Encode()
	return u.String()
}

// Store implements state.HistoryStore on a SQL schema history table
type Store struct {
	db     *sql.DB
	schema string
	table  string
	user   string
}

// NewStore opens the database with the configured driver
func NewStore(cfg Config) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverPQ
	}
	if driver != DriverPQ && driver != DriverPGX {
		return nil, fmt.Errorf("unsupported postgres driver: %s", driver)
	}

	db, err := sql.Open(driver, cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return NewStoreFromDB(db, cfg.Schema, cfg.Table, cfg.Username), nil
}

// NewStoreFromDB wraps an existing database handle
func NewStoreFromDB(db *sql.DB, schema, table, installedBy string) *Store {
	if table == "" {
		table = "bfm_schema_history"
	}
	if installedBy == "" {
		installedBy = "bfm"
	}
	return &Store{db: db, schema: schema, table: table, user: installedBy}
}

// tableName returns the quoted, schema-qualified history table name
func (s *Store) tableName() string {
	if s.schema != "" && s.schema != "public" {
		return fmt.Sprintf("%s.%s", quoteIdentifier(s.schema), quoteIdentifier(s.table))
	}
	return quoteIdentifier(s.table)
}

func (s *Store) createTableSQL() string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			installed_rank INTEGER NOT NULL PRIMARY KEY,
			version VARCHAR(50) NOT NULL,
			description VARCHAR(200) NOT NULL,
			type VARCHAR(20) NOT NULL,
			script VARCHAR(1000) NOT NULL,
			checksum INTEGER,
			installed_by VARCHAR(100) NOT NULL,
			installed_on TIMESTAMP NOT NULL DEFAULT now(),
			execution_time INTEGER NOT NULL,
			success BOOLEAN NOT NULL
		)
	`, s.tableName())
}

func (s *Store) selectSQL() string {
	return fmt.Sprintf(`
		SELECT installed_rank, version, description, type, script, checksum,
		       installed_by, installed_on, execution_time, success
		FROM %s ORDER BY installed_rank
	`, s.tableName())
}

func (s *Store) insertSQL() string {
	return fmt.Sprintf(`
		INSERT INTO %s (installed_rank, version, description, type, script, checksum,
		                installed_by, installed_on, execution_time, success)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, s.tableName())
}

// Initialize creates the schema and history table. A SCHEMA marker is
// recorded when this call created the schema.
func (s *Store) Initialize(ctx context.Context) error {
	createdSchema := false
	if s.schema != "" && s.schema != "public" {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)", s.schema).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check schema: %w", err)
		}
		if !exists {
			if _, err := s.db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoteIdentifier(s.schema))); err != nil {
				return fmt.Errorf("failed to create schema: %w", err)
			}
			createdSchema = true
		}
	}

	if _, err := s.db.ExecContext(ctx, s.createTableSQL()); err != nil {
		return fmt.Errorf("failed to create %s table: %w", s.table, err)
	}

	indexSQL := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (success)", quoteIdentifier(s.table+"_s_idx"), s.tableName())
	if _, err := s.db.ExecContext(ctx, indexSQL); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if createdSchema {
		if err := s.insert(ctx, state.SchemaMarker(1, s.user, time.Now().UTC())); err != nil {
			return fmt.Errorf("failed to record schema marker: %w", err)
		}
		logger.Infof("Created schema %s and history table %s", s.schema, s.tableName())
	}
	return nil
}

// AllAppliedMigrations implements info.HistoryStore
func (s *Store) AllAppliedMigrations(ctx context.Context) ([]info.AppliedMigration, error) {
	rows, err := s.db.QueryContext(ctx, s.selectSQL())
	if err != nil {
		return nil, fmt.Errorf("failed to query migration history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var applied []info.AppliedMigration
	for rows.Next() {
		m, err := scanApplied(rows)
		if err != nil {
			return nil, err
		}
		applied = append(applied, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read migration history: %w", err)
	}
	return applied, nil
}

// RecordBaseline inserts a BASELINE marker; the history must hold nothing but
// a SCHEMA marker
func (s *Store) RecordBaseline(ctx context.Context, v version.Version, description, installedBy string) error {
	if err := state.CheckBaselineVersion(v); err != nil {
		return err
	}
	applied, err := s.AllAppliedMigrations(ctx)
	if err != nil {
		return err
	}
	if err := state.CanBaseline(applied); err != nil {
		return err
	}
	if installedBy == "" {
		installedBy = s.user
	}
	marker := state.BaselineMarker(state.NextRank(applied), v, description, installedBy, time.Now().UTC())
	if err := s.insert(ctx, marker); err != nil {
		return fmt.Errorf("failed to record baseline: %w", err)
	}
	return nil
}

func (s *Store) insert(ctx context.Context, m info.AppliedMigration) error {
	_, err := s.db.ExecContext(ctx, s.insertSQL(), insertArgs(m)...)
	return err
}

// HealthCheck pings the database
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func insertArgs(m info.AppliedMigration) []interface{} {
	var checksum sql.NullInt32
	if m.Checksum != nil {
		checksum = sql.NullInt32{Int32: *m.Checksum, Valid: true}
	}
	return []interface{}{
		m.InstalledRank,
		m.Version.String(),
		m.Description,
		string(m.Type),
		m.Script,
		checksum,
		m.InstalledBy,
		m.InstalledOn,
		int(m.ExecutionTime / time.Millisecond),
		m.Success,
	}
}

// rowScanner is satisfied by *sql.Rows and *sql.Row
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplied(row rowScanner) (info.AppliedMigration, error) {
	var (
		m             info.AppliedMigration
		rawVersion    string
		rawType       string
		checksum      sql.NullInt32
		executionTime int
	)
	err := row.Scan(
		&m.InstalledRank,
		&rawVersion,
		&m.Description,
		&rawType,
		&m.Script,
		&checksum,
		&m.InstalledBy,
		&m.InstalledOn,
		&executionTime,
		&m.Success,
	)
	if err != nil {
		return info.AppliedMigration{}, fmt.Errorf("failed to scan migration record: %w", err)
	}

	v, err := version.Parse(rawVersion)
	if err != nil {
		return info.AppliedMigration{}, fmt.Errorf("history entry %d: %w", m.InstalledRank, err)
	}
	m.Version = v
	m.Type = info.MigrationType(strings.ToUpper(rawType))
	if checksum.Valid {
		m.Checksum = info.Checksum(checksum.Int32)
	}
	m.ExecutionTime = time.Duration(executionTime) * time.Millisecond
	return m, nil
}

// quoteIdentifier quotes a PostgreSQL identifier to prevent SQL injection
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

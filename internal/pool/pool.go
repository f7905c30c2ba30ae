package pool

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/math15/visagate/internal/model"
)

// Pool provides SQLite-based storage for egress identities.
// It manages connection pooling and implements the acquisition contract:
// selection and usage stamping are a single atomic SQL statement.
type Pool struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures Pool behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging. Recommended: the pool is
	// written on every acquisition and must be durable immediately.
	EnableWAL bool
}

// DefaultOptions returns the default pool options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the egress pool database in the specified directory.
// If CreateIfNotExists is false and the database doesn't exist, an error is
// returned.
func Open(dbDir string, opts Options) (*Pool, error) {
	dbPath := filepath.Join(dbDir, "egress.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("pool database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check pool database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create pool directory: %w", err)
		}
	}

	// modernc.org/sqlite connection string: mode=rw prevents creating new
	// files, mode=rwc allows creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool database: %w", err)
	}

	// SQLite only supports one writer. A single connection also makes the
	// acquire-and-stamp statement linearizable across worker goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	p := &Pool{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := p.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return p, nil
}

// Close closes the database connection.
func (p *Pool) Close() error {
	return p.db.Close()
}

// createTables creates the pool schema if it doesn't exist.
func (p *Pool) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS identities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		host TEXT NOT NULL,
		port INTEGER NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		password TEXT NOT NULL DEFAULT '',
		region TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		validation_status TEXT NOT NULL DEFAULT 'pending',
		last_validated DATETIME,
		usage_count INTEGER NOT NULL DEFAULT 0,
		last_used DATETIME,
		network_failures INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(host, port, username)
	);

	CREATE INDEX IF NOT EXISTS idx_identities_region ON identities(region);
	CREATE INDEX IF NOT EXISTS idx_identities_last_used ON identities(last_used);
	CREATE INDEX IF NOT EXISTS idx_identities_status ON identities(validation_status);
	`

	_, err := p.db.ExecContext(context.Background(), schema)
	return err
}

// identityColumns is the column list every identity query selects, in the
// order scanIdentity expects.
const identityColumns = `id, host, port, username, password, region, active,
	validation_status, last_validated, usage_count, last_used, network_failures`

// Insert adds a new identity to the pool. The region tag is derived from the
// username; an explicit region on the identity wins. Returns ErrDuplicate if
// (host, port, username) already exists.
func (p *Pool) Insert(ctx context.Context, id *model.EgressIdentity) (int64, error) {
	region := id.Region
	if region == "" {
		region = model.RegionFromUsername(id.Username)
	}
	status := id.Status
	if status == "" {
		status = model.StatusPending
	}

	query := `
	INSERT INTO identities (host, port, username, password, region, active, validation_status)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := p.db.ExecContext(ctx, query,
		id.Host, id.Port, id.Username, id.Password, region, boolToInt(id.Active), string(status),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("failed to insert identity: %w", err)
	}

	return result.LastInsertId()
}

// Acquire selects an eligible identity and stamps its usage in one atomic
// statement.
//
// Eligibility: active, not banned, and matching the region filter (empty
// region means any). With avoidRecent, never-used identities are preferred
// and the rest are ordered least-recently-used first; when every candidate
// has been used, the globally least-recently-used one is returned rather
// than failing. Without avoidRecent the candidate is chosen at random.
//
// Returns ErrPoolExhausted only when zero identities pass the eligibility
// filter.
func (p *Pool) Acquire(ctx context.Context, region string, avoidRecent bool) (*model.EgressIdentity, error) {
	order := "RANDOM()"
	if avoidRecent {
		// NULL last_used sorts first, then oldest. This spreads load across
		// distinct identities instead of hammering one IP in succession.
		order = "CASE WHEN last_used IS NULL THEN 0 ELSE 1 END, last_used ASC"
	}

	// Selection and stamp must be one statement: two concurrent acquisitions
	// must not return the same identity while alternatives exist.
	query := fmt.Sprintf(`
	UPDATE identities
	SET usage_count = usage_count + 1, last_used = ?
	WHERE id = (
		SELECT id FROM identities
		WHERE active = 1
		  AND validation_status != 'banned'
		  AND (? = '' OR region = ?)
		ORDER BY %s
		LIMIT 1
	)
	RETURNING %s
	`, order, identityColumns)

	row := p.db.QueryRowContext(ctx, query, formatTime(time.Now().UTC()), region, region)
	id, err := scanIdentity(row)
	if err == sql.ErrNoRows {
		return nil, ErrPoolExhausted
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire identity: %w", err)
	}

	return id, nil
}

// RecordUse increments the usage counter and stamps last_used in a single
// SQL-side update. Safe to call concurrently; increments are never lost.
// Acquire already stamps usage, so this is only needed when an identity is
// reused beyond its acquisition (e.g. handed to a browser session).
func (p *Pool) RecordUse(ctx context.Context, id int64) error {
	result, err := p.db.ExecContext(ctx,
		`UPDATE identities SET usage_count = usage_count + 1, last_used = ? WHERE id = ?`,
		formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to record use: %w", err)
	}
	return checkAffected(result)
}

// SetValidation updates the validation status and stamps last_validated.
// Status changes do not affect selection eligibility except that banned
// identities are excluded from Acquire.
func (p *Pool) SetValidation(ctx context.Context, id int64, status model.ValidationStatus) error {
	result, err := p.db.ExecContext(ctx,
		`UPDATE identities SET validation_status = ?, last_validated = ? WHERE id = ?`,
		string(status), formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set validation status: %w", err)
	}
	return checkAffected(result)
}

// SetActive flips the active flag. Logical deactivation is the preferred
// form of removal; Remove exists for explicit administrative deletion.
func (p *Pool) SetActive(ctx context.Context, id int64, active bool) error {
	result, err := p.db.ExecContext(ctx,
		`UPDATE identities SET active = ? WHERE id = ?`,
		boolToInt(active), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set active flag: %w", err)
	}
	return checkAffected(result)
}

// RecordNetworkFailure increments the consecutive-network-failure counter
// and demotes the identity to banned when the counter reaches threshold.
// The increment-and-demote is one atomic statement, so concurrent workers
// observing failures on the same identity cannot overshoot or undercount.
// Returns the new failure count and whether the identity is now banned.
func (p *Pool) RecordNetworkFailure(ctx context.Context, id int64, threshold int) (int, bool, error) {
	query := `
	UPDATE identities
	SET network_failures = network_failures + 1,
	    validation_status = CASE
			WHEN network_failures + 1 >= ? THEN 'banned'
			ELSE validation_status
		END
	WHERE id = ?
	RETURNING network_failures, validation_status
	`

	var failures int
	var status string
	err := p.db.QueryRowContext(ctx, query, threshold, id).Scan(&failures, &status)
	if err == sql.ErrNoRows {
		return 0, false, ErrNotFound
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to record network failure: %w", err)
	}

	return failures, model.ValidationStatus(status) == model.StatusBanned, nil
}

// ResetNetworkFailures clears the consecutive-failure counter after a
// successful exchange through the identity.
func (p *Pool) ResetNetworkFailures(ctx context.Context, id int64) error {
	result, err := p.db.ExecContext(ctx,
		`UPDATE identities SET network_failures = 0 WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("failed to reset network failures: %w", err)
	}
	return checkAffected(result)
}

// Get retrieves an identity by ID. Returns ErrNotFound if it doesn't exist.
func (p *Pool) Get(ctx context.Context, id int64) (*model.EgressIdentity, error) {
	query := fmt.Sprintf(`SELECT %s FROM identities WHERE id = ?`, identityColumns)

	row := p.db.QueryRowContext(ctx, query, id)
	identity, err := scanIdentity(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return identity, nil
}

// List returns identities, optionally filtered by region and active flag.
// Results are ordered by region then host for stable administrative output.
func (p *Pool) List(ctx context.Context, region string, activeOnly bool) ([]*model.EgressIdentity, error) {
	query := fmt.Sprintf(`SELECT %s FROM identities WHERE 1=1`, identityColumns)
	args := make([]any, 0, 2)

	if region != "" {
		query += " AND region = ?"
		args = append(args, region)
	}
	if activeOnly {
		query += " AND active = 1"
	}
	query += " ORDER BY region, host, port"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var results []*model.EgressIdentity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		results = append(results, identity)
	}

	return results, rows.Err()
}

// Remove physically deletes an identity. Explicit administrative removal
// only; prefer SetActive(false) for soft removal.
func (p *Pool) Remove(ctx context.Context, id int64) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM identities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove identity: %w", err)
	}
	return checkAffected(result)
}

// Stats summarizes the pool for administrative reporting.
type Stats struct {
	// Total is the number of identities in the pool.
	Total int

	// Active is the number with the active flag set and not banned.
	Active int

	// Banned is the number demoted to banned.
	Banned int

	// ByRegion maps region tags to identity counts.
	ByRegion map[string]int

	// ByStatus maps validation statuses to identity counts.
	ByStatus map[string]int
}

// Stats computes pool summary counts.
func (p *Pool) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByRegion: make(map[string]int),
		ByStatus: make(map[string]int),
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT region, validation_status, active, COUNT(*) FROM identities GROUP BY region, validation_status, active`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pool stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var region, status string
		var active, count int
		if err := rows.Scan(&region, &status, &active, &count); err != nil {
			return nil, fmt.Errorf("failed to scan pool stats: %w", err)
		}
		stats.Total += count
		stats.ByRegion[region] += count
		stats.ByStatus[status] += count
		if model.ValidationStatus(status) == model.StatusBanned {
			stats.Banned += count
		} else if active == 1 {
			stats.Active += count
		}
	}

	return stats, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanIdentity.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanIdentity scans one identity row in identityColumns order.
func scanIdentity(row rowScanner) (*model.EgressIdentity, error) {
	var id model.EgressIdentity
	var active int
	var status string
	var lastValidated, lastUsed sql.NullString

	err := row.Scan(
		&id.ID,
		&id.Host,
		&id.Port,
		&id.Username,
		&id.Password,
		&id.Region,
		&active,
		&status,
		&lastValidated,
		&id.UsageCount,
		&lastUsed,
		&id.NetworkFailures,
	)
	if err != nil {
		return nil, err
	}

	id.Active = active == 1
	id.Status = model.ValidationStatus(status)
	if lastValidated.Valid {
		id.LastValidated = parseTimestamp(lastValidated.String)
	}
	if lastUsed.Valid {
		id.LastUsed = parseTimestamp(lastUsed.String)
	}

	return &id, nil
}

// checkAffected converts a zero-row update into ErrNotFound.
func checkAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// boolToInt converts a bool to SQLite's integer representation.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timestampFormat is how the pool writes DATETIME values, matching SQLite's
// default datetime format so comparisons with CURRENT_TIMESTAMP work.
const timestampFormat = "2006-01-02 15:04:05.999999999"

// formatTime renders a timestamp for storage. Nanosecond precision keeps
// least-recently-used ordering stable across rapid successive acquisitions.
func formatTime(t time.Time) string {
	return t.Format(timestampFormat)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timestampFormat,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on
// configuration. If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

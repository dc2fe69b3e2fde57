package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS programmes (
        network       TEXT NOT NULL,
        advertiser_id TEXT NOT NULL,
        country       TEXT NOT NULL,
        name          TEXT NOT NULL,
        status        TEXT NOT NULL DEFAULT '',
        relationship  TEXT NOT NULL DEFAULT '',
        first_seen    TIMESTAMPTZ NOT NULL,
        last_seen     TIMESTAMPTZ NOT NULL,
        PRIMARY KEY (network, advertiser_id, country)
    );
    CREATE TABLE IF NOT EXISTS alert_log (
        id            BIGSERIAL PRIMARY KEY,
        ts            TIMESTAMPTZ NOT NULL,
        event         TEXT NOT NULL,
        country       TEXT NOT NULL,
        advertiser_id TEXT,
        name          TEXT NOT NULL DEFAULT '',
        details       TEXT NOT NULL DEFAULT '',
        email_sent    BOOLEAN NOT NULL,
        email_info    TEXT NOT NULL DEFAULT ''
    );
    CREATE TABLE IF NOT EXISTS earnings_snapshots (
        run_id          UUID NOT NULL,
        run_at          TIMESTAMPTZ NOT NULL,
        network         TEXT NOT NULL,
        window_start    DATE NOT NULL,
        window_end      DATE NOT NULL,
        countries       TEXT[] NOT NULL DEFAULT '{}',
        sub_ids         TEXT[] NOT NULL DEFAULT '{}',
        sub_id_contains BOOLEAN NOT NULL DEFAULT FALSE,
        currency        TEXT NOT NULL,
        source_currency TEXT NOT NULL DEFAULT '',
        fx_rate         NUMERIC NOT NULL DEFAULT 1,
        total           NUMERIC NOT NULL DEFAULT 0,
        confirmed       NUMERIC NOT NULL DEFAULT 0,
        pending         NUMERIC NOT NULL DEFAULT 0,
        raw_rows        INTEGER NOT NULL DEFAULT 0,
        filtered_rows   INTEGER NOT NULL DEFAULT 0,
        reason          TEXT NOT NULL DEFAULT '',
        created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (run_id, network)
    );`

	listProgrammesSQL = `SELECT
        network,
        advertiser_id,
        country,
        name,
        status,
        relationship,
        first_seen,
        last_seen
    FROM programmes
    WHERE network = $1
      AND country = $2
    ORDER BY advertiser_id;`

	upsertProgrammeSQL = `INSERT INTO programmes (
        network,
        advertiser_id,
        country,
        name,
        status,
        relationship,
        first_seen,
        last_seen
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (network, advertiser_id, country) DO UPDATE
    SET
        name         = EXCLUDED.name,
        status       = EXCLUDED.status,
        relationship = EXCLUDED.relationship,
        last_seen    = EXCLUDED.last_seen;`

	deleteProgrammeSQL = `DELETE FROM programmes
    WHERE network = $1
      AND advertiser_id = $2
      AND country = $3;`

	insertAlertLogSQL = `INSERT INTO alert_log (
        ts,
        event,
        country,
        advertiser_id,
        name,
        details,
        email_sent,
        email_info
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    ) RETURNING id;`

	listRecentAlertLogSQL = `SELECT
        id,
        ts,
        event,
        country,
        advertiser_id,
        name,
        details,
        email_sent,
        email_info
    FROM alert_log
    ORDER BY ts DESC
    LIMIT $1;`

	insertEarningsSQL = `INSERT INTO earnings_snapshots (
        run_id,
        run_at,
        network,
        window_start,
        window_end,
        countries,
        sub_ids,
        sub_id_contains,
        currency,
        source_currency,
        fx_rate,
        total,
        confirmed,
        pending,
        raw_rows,
        filtered_rows,
        reason
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
    );`

	listEarningsBetweenSQL = `SELECT
        run_id,
        run_at,
        network,
        window_start,
        window_end,
        countries,
        sub_ids,
        sub_id_contains,
        currency,
        source_currency,
        fx_rate,
        total,
        confirmed,
        pending,
        raw_rows,
        filtered_rows,
        reason,
        created_at
    FROM earnings_snapshots
    WHERE run_at >= $1
      AND run_at < $2
    ORDER BY run_at, network;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ProgrammeStore defines operations for the programme state store.
type ProgrammeStore interface {
	ListProgrammes(ctx context.Context, network, country string) (map[string]ProgrammeRecord, error)
	ApplyDiff(ctx context.Context, network, country string, upserts []ProgrammeRecord, removals []string) error
}

// AlertLogStore defines the append-only alert audit trail.
type AlertLogStore interface {
	InsertAlertLog(ctx context.Context, entry AlertLogEntry) (int64, error)
	ListRecentAlertLog(ctx context.Context, limit int) ([]AlertLogEntry, error)
}

// EarningsStore persists per-network snapshot rows.
type EarningsStore interface {
	InsertEarnings(ctx context.Context, rows []EarningsRow) error
	ListEarningsBetween(ctx context.Context, from, to time.Time) ([]EarningsRow, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to programmes, the alert log and snapshots.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, createSchemaSQL); execErr != nil {
		return fmt.Errorf("ensure schema: %w", execErr)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort
		}
		conn.Release()
	}
	return unlock, true, nil
}

// ListProgrammes loads the previous state for a network and country,
// keyed by advertiser ID.
func (s *Store) ListProgrammes(ctx context.Context, network, country string) (map[string]ProgrammeRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listProgrammesSQL, network, country)
	if queryErr != nil {
		return nil, fmt.Errorf("list programmes: %w", queryErr)
	}
	defer rows.Close()

	records := make(map[string]ProgrammeRecord)
	for rows.Next() {
		var rec ProgrammeRecord
		if err := rows.Scan(
			&rec.Network,
			&rec.AdvertiserID,
			&rec.Country,
			&rec.Name,
			&rec.Status,
			&rec.Relationship,
			&rec.FirstSeen,
			&rec.LastSeen,
		); err != nil {
			return nil, err
		}
		records[rec.AdvertiserID] = rec
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// ApplyDiff writes one sync cycle's upserts and removals in a single
// transaction so a crash never leaves the state half applied.
func (s *Store) ApplyDiff(ctx context.Context, network, country string, upserts []ProgrammeRecord, removals []string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin diff tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range upserts {
		if _, execErr := tx.Exec(ctx, upsertProgrammeSQL,
			network,
			rec.AdvertiserID,
			country,
			rec.Name,
			rec.Status,
			rec.Relationship,
			rec.FirstSeen,
			rec.LastSeen,
		); execErr != nil {
			return fmt.Errorf("upsert programme %s: %w", rec.AdvertiserID, execErr)
		}
	}
	for _, id := range removals {
		if _, execErr := tx.Exec(ctx, deleteProgrammeSQL, network, id, country); execErr != nil {
			return fmt.Errorf("delete programme %s: %w", id, execErr)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit diff tx: %w", err)
	}
	return nil
}

// InsertAlertLog appends one audit entry and returns its ID.
func (s *Store) InsertAlertLog(ctx context.Context, entry AlertLogEntry) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var advertiserID interface{}
	if entry.AdvertiserID != nil {
		advertiserID = *entry.AdvertiserID
	}

	var id int64
	if scanErr := pool.QueryRow(ctx, insertAlertLogSQL,
		entry.TS,
		entry.Event,
		entry.Country,
		advertiserID,
		entry.Name,
		entry.Details,
		entry.EmailSent,
		entry.EmailInfo,
	).Scan(&id); scanErr != nil {
		return 0, fmt.Errorf("insert alert log: %w", scanErr)
	}
	return id, nil
}

// ListRecentAlertLog lists the newest audit entries.
func (s *Store) ListRecentAlertLog(ctx context.Context, limit int) ([]AlertLogEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertLogSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list alert log: %w", queryErr)
	}
	defer rows.Close()

	entries := make([]AlertLogEntry, 0, limit)
	for rows.Next() {
		var entry AlertLogEntry
		var advertiserID sql.NullString
		if err := rows.Scan(
			&entry.ID,
			&entry.TS,
			&entry.Event,
			&entry.Country,
			&advertiserID,
			&entry.Name,
			&entry.Details,
			&entry.EmailSent,
			&entry.EmailInfo,
		); err != nil {
			return nil, err
		}
		if advertiserID.Valid {
			value := advertiserID.String
			entry.AdvertiserID = &value
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// InsertEarnings persists all rows of one snapshot run.
func (s *Store) InsertEarnings(ctx context.Context, earnings []EarningsRow) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin earnings tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, row := range earnings {
		if _, execErr := tx.Exec(ctx, insertEarningsSQL,
			row.RunID,
			row.RunAt,
			row.Network,
			row.WindowStart,
			row.WindowEnd,
			row.Countries,
			row.SubIDs,
			row.SubIDContains,
			row.Currency,
			row.SourceCurrency,
			row.FXRate.String(),
			row.Total.String(),
			row.Confirmed.String(),
			row.Pending.String(),
			row.RawRows,
			row.FilteredRows,
			row.Reason,
		); execErr != nil {
			return fmt.Errorf("insert earnings row %s: %w", row.Network, execErr)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit earnings tx: %w", err)
	}
	return nil
}

// ListEarningsBetween lists snapshot rows within a time window.
func (s *Store) ListEarningsBetween(ctx context.Context, from, to time.Time) ([]EarningsRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listEarningsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list earnings between: %w", queryErr)
	}
	defer rows.Close()

	out := make([]EarningsRow, 0)
	for rows.Next() {
		row, scanErr := scanEarningsRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanEarningsRow(rows pgx.Rows) (EarningsRow, error) {
	var (
		row          EarningsRow
		fxStr        string
		totalStr     string
		confirmedStr string
		pendingStr   string
	)

	if err := rows.Scan(
		&row.RunID,
		&row.RunAt,
		&row.Network,
		&row.WindowStart,
		&row.WindowEnd,
		&row.Countries,
		&row.SubIDs,
		&row.SubIDContains,
		&row.Currency,
		&row.SourceCurrency,
		&fxStr,
		&totalStr,
		&confirmedStr,
		&pendingStr,
		&row.RawRows,
		&row.FilteredRows,
		&row.Reason,
		&row.CreatedAt,
	); err != nil {
		return EarningsRow{}, err
	}

	var convErr error
	if row.FXRate, convErr = decimal.NewFromString(fxStr); convErr != nil {
		return EarningsRow{}, fmt.Errorf("parse fx rate: %w", convErr)
	}
	if row.Total, convErr = decimal.NewFromString(totalStr); convErr != nil {
		return EarningsRow{}, fmt.Errorf("parse total: %w", convErr)
	}
	if row.Confirmed, convErr = decimal.NewFromString(confirmedStr); convErr != nil {
		return EarningsRow{}, fmt.Errorf("parse confirmed: %w", convErr)
	}
	if row.Pending, convErr = decimal.NewFromString(pendingStr); convErr != nil {
		return EarningsRow{}, fmt.Errorf("parse pending: %w", convErr)
	}
	return row, nil
}

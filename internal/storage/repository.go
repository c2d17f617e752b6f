package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS rate_observations (
        id            BIGSERIAL PRIMARY KEY,
        currency_code INTEGER     NOT NULL,
        observed_at   TIMESTAMPTZ NOT NULL,
        sell_rate     NUMERIC     NOT NULL,
        buy_rate      NUMERIC     NOT NULL,
        created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE INDEX IF NOT EXISTS rate_observations_currency_observed_idx
        ON rate_observations (currency_code, observed_at);`,
	`CREATE TABLE IF NOT EXISTS alerts (
        id            BIGSERIAL PRIMARY KEY,
        currency_code INTEGER     NOT NULL,
        spread        TEXT        NOT NULL,
        created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
}

const (
	// The insert is skipped when the latest row for the currency carries the
	// same rates, so dedup holds without a read-then-write race.
	appendObservationSQL = `INSERT INTO rate_observations (
        currency_code,
        observed_at,
        sell_rate,
        buy_rate
    )
    SELECT $1, $2, $3::numeric, $4::numeric
    WHERE NOT EXISTS (
        SELECT 1 FROM (
            SELECT sell_rate, buy_rate
            FROM rate_observations
            WHERE currency_code = $1
            ORDER BY observed_at DESC, id DESC
            LIMIT 1
        ) last
        WHERE last.sell_rate = $3::numeric
          AND last.buy_rate  = $4::numeric
    );`

	listObservationsBetweenSQL = `SELECT
        observed_at,
        sell_rate::text,
        buy_rate::text
    FROM rate_observations
    WHERE currency_code = $1
      AND observed_at >= $2
      AND ($3::timestamptz IS NULL OR observed_at < $3)
    ORDER BY observed_at, id;`

	countObservationsSQL = `SELECT COUNT(*) FROM rate_observations WHERE currency_code = $1;`

	insertAlertSQL = `INSERT INTO alerts (
        currency_code,
        spread
    ) VALUES (
        $1,$2
    )
    RETURNING id, currency_code, spread, created_at;`

	latestAlertSQL = `SELECT spread
    FROM alerts
    WHERE currency_code = $1
    ORDER BY created_at DESC, id DESC
    LIMIT 1;`

	listRecentAlertsSQL = `SELECT
        id,
        currency_code,
        spread,
        created_at
    FROM alerts
    WHERE currency_code = $1
    ORDER BY created_at DESC, id DESC
    LIMIT $2;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, spread string) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
}

// querier is the subset of *pgxpool.Pool the Store issues statements through.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store keeps history and alerts for one currency in PostgreSQL.
type Store struct {
	db       querier
	pool     *pgxpool.Pool
	currency int
}

// NewStore wires a pgx pool into a Store scoped to currency.
func NewStore(pool *pgxpool.Pool, currency int) *Store {
	s := &Store{pool: pool, currency: currency}
	if pool != nil {
		s.db = pool
	}
	return s
}

func newStoreWithQuerier(db querier, currency int) *Store {
	return &Store{db: db, currency: currency}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getDB() (querier, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	if s == nil || s.pool == nil {
		return nil, false, ErrNotConfigured
	}

	conn, err := s.pool.Acquire(ctx)
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
		// a failed unlock is released with the session anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// Append inserts obs unless the latest stored row has the same rates.
func (s *Store) Append(ctx context.Context, obs Observation) (bool, error) {
	db, err := s.getDB()
	if err != nil {
		return false, err
	}

	tag, execErr := db.Exec(ctx, appendObservationSQL,
		s.currency,
		obs.Timestamp.UTC(),
		obs.SellRate.String(),
		obs.BuyRate.String(),
	)
	if execErr != nil {
		return false, fmt.Errorf("append observation: %w", execErr)
	}
	return tag.RowsAffected() > 0, nil
}

// LoadWindow lists observations with observed_at >= now-window.
func (s *Store) LoadWindow(ctx context.Context, now time.Time, window time.Duration) ([]Observation, error) {
	return s.ListBetween(ctx, windowStart(now, window), time.Time{})
}

// ListBetween lists observations within [from, to); a zero to is unbounded.
func (s *Store) ListBetween(ctx context.Context, from, to time.Time) ([]Observation, error) {
	db, err := s.getDB()
	if err != nil {
		return []Observation{}, err
	}

	var upper interface{}
	if !to.IsZero() {
		upper = to.UTC()
	}

	rows, queryErr := db.Query(ctx, listObservationsBetweenSQL, s.currency, from.UTC(), upper)
	if queryErr != nil {
		return []Observation{}, fmt.Errorf("list observations: %w", queryErr)
	}
	defer rows.Close()

	observations := make([]Observation, 0)
	for rows.Next() {
		obs, scanErr := scanObservation(rows)
		if scanErr != nil {
			return []Observation{}, scanErr
		}
		observations = append(observations, obs)
	}
	if rows.Err() != nil {
		return []Observation{}, rows.Err()
	}
	return observations, nil
}

// Count counts stored observations for the currency.
func (s *Store) Count(ctx context.Context) (int, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := db.QueryRow(ctx, countObservationsSQL, s.currency).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count observations: %w", scanErr)
	}
	return int(count), nil
}

// Load returns the spread of the most recent alert.
func (s *Store) Load(ctx context.Context) (string, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return "", false, err
	}
	var spread string
	if scanErr := db.QueryRow(ctx, latestAlertSQL, s.currency).Scan(&spread); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("load last alert: %w", scanErr)
	}
	return spread, true, nil
}

// Save records a new alert, which becomes the last signal.
func (s *Store) Save(ctx context.Context, spread string) error {
	_, err := s.InsertAlert(ctx, spread)
	return err
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, spread string) (AlertRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return AlertRecord{}, err
	}

	var rec AlertRecord
	if scanErr := db.QueryRow(ctx, insertAlertSQL, s.currency, spread).Scan(
		&rec.ID,
		&rec.CurrencyCode,
		&rec.Spread,
		&rec.CreatedAt,
	); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, queryErr := db.Query(ctx, listRecentAlertsSQL, s.currency, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		if err := rows.Scan(&rec.ID, &rec.CurrencyCode, &rec.Spread, &rec.CreatedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func scanObservation(rows pgx.Rows) (Observation, error) {
	var (
		observedAt time.Time
		sellStr    string
		buyStr     string
	)
	if err := rows.Scan(&observedAt, &sellStr, &buyStr); err != nil {
		return Observation{}, err
	}

	sell, err := decimal.NewFromString(sellStr)
	if err != nil {
		return Observation{}, fmt.Errorf("parse sell rate: %w", err)
	}
	buy, err := decimal.NewFromString(buyStr)
	if err != nil {
		return Observation{}, fmt.Errorf("parse buy rate: %w", err)
	}

	return Observation{Timestamp: observedAt, SellRate: sell, BuyRate: buy}, nil
}

var (
	_ HistoryStore   = (*Store)(nil)
	_ SignalStore    = (*Store)(nil)
	_ AlertStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)

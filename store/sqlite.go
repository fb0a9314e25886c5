package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/shelfwatch/shelfwatch/product"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS products (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	url          TEXT NOT NULL UNIQUE,
	source       TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	brand        TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	image_url    TEXT NOT NULL DEFAULT '',
	price        REAL,
	rating       REAL,
	availability INTEGER,
	raw          TEXT,
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS price_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id  INTEGER NOT NULL REFERENCES products(id),
	price       REAL NOT NULL,
	currency    TEXT NOT NULL DEFAULT 'USD',
	recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_price_history_product
	ON price_history(product_id, recorded_at);

CREATE TABLE IF NOT EXISTS alerts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id   INTEGER NOT NULL REFERENCES products(id),
	target_price REAL NOT NULL,
	direction    TEXT NOT NULL DEFAULT 'below',
	active       INTEGER NOT NULL DEFAULT 1,
	created_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS outbox_events (
	id            TEXT PRIMARY KEY,
	event_type    TEXT NOT NULL,
	aggregate_id  TEXT NOT NULL,
	payload       TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	retry_count   INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at    TIMESTAMP NOT NULL,
	processed_at  TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_outbox_status
	ON outbox_events(status, created_at);
`

// SQLiteStore is the default backend. modernc.org/sqlite is pure Go, so
// ":memory:" works everywhere, including tests.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens (creating if needed) the database at dsn and applies the
// schema.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", dsn, err)
	}
	// SQLite allows one writer; serializing through a single connection
	// avoids SQLITE_BUSY under concurrent API traffic.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type sqliteExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) UpsertProduct(ctx context.Context, rec *product.Record) (int64, error) {
	return upsertProductSQLite(ctx, s.db, rec)
}

func upsertProductSQLite(ctx context.Context, q sqliteExecer, rec *product.Record) (int64, error) {
	raw, err := encodeRaw(rec.Raw)
	if err != nil {
		return 0, fmt.Errorf("encode raw: %w", err)
	}
	now := time.Now().UTC()

	var id int64
	err = q.QueryRowContext(ctx, `
		INSERT INTO products
			(url, source, title, brand, description, image_url,
			 price, rating, availability, raw, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			source = excluded.source,
			title = excluded.title,
			brand = excluded.brand,
			description = excluded.description,
			image_url = excluded.image_url,
			price = excluded.price,
			rating = excluded.rating,
			availability = excluded.availability,
			raw = excluded.raw,
			updated_at = excluded.updated_at
		RETURNING id`,
		rec.URL, rec.Source, rec.Title, rec.Brand, rec.Description, rec.ImageURL,
		rec.Price, rec.Rating, boolToNull(rec.Availability), raw, now, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert product: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) AppendPriceHistory(ctx context.Context, productID int64, price float64, currency string) error {
	return appendPriceHistorySQLite(ctx, s.db, productID, price, currency)
}

func appendPriceHistorySQLite(ctx context.Context, q sqliteExecer, productID int64, price float64, currency string) error {
	if currency == "" {
		currency = "USD"
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO price_history (product_id, price, currency, recorded_at)
		VALUES (?, ?, ?, ?)`,
		productID, price, currency, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append price history: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TrackProduct(ctx context.Context, rec *product.Record, event *OutboxEvent) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id, err := upsertProductSQLite(ctx, tx, rec)
	if err != nil {
		return 0, err
	}
	if rec.Price != nil {
		if err := appendPriceHistorySQLite(ctx, tx, id, *rec.Price, ""); err != nil {
			return 0, err
		}
	}
	if event != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO outbox_events
				(id, event_type, aggregate_id, payload, status, retry_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			event.ID.String(), event.EventType, event.AggregateID,
			string(event.Payload), OutboxStatusPending, 0, time.Now().UTC()); err != nil {
			return 0, fmt.Errorf("insert outbox event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return id, nil
}

const productColumns = `id, url, source, title, brand, description, image_url,
	price, rating, availability, raw, created_at, updated_at`

func (s *SQLiteStore) GetProduct(ctx context.Context, id int64) (*Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	return scanProductSQLite(row)
}

func (s *SQLiteStore) GetProductByURL(ctx context.Context, url string) (*Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE url = ?`, url)
	return scanProductSQLite(row)
}

func (s *SQLiteStore) ListProducts(ctx context.Context, limit, offset int) ([]Product, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products
		 ORDER BY updated_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProductSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProductSQLite(row rowScanner) (*Product, error) {
	var (
		p     Product
		price sql.NullFloat64
		rate  sql.NullFloat64
		avail sql.NullInt64
		raw   sql.NullString
	)
	err := row.Scan(&p.ID, &p.Record.URL, &p.Record.Source, &p.Record.Title,
		&p.Record.Brand, &p.Record.Description, &p.Record.ImageURL,
		&price, &rate, &avail, &raw, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan product: %w", err)
	}
	if price.Valid {
		p.Record.Price = &price.Float64
	}
	if rate.Valid {
		p.Record.Rating = &rate.Float64
	}
	if avail.Valid {
		v := avail.Int64 != 0
		p.Record.Availability = &v
	}
	if raw.Valid {
		p.Record.Raw = decodeRaw(&raw.String)
	}
	p.Record.ScrapedAt = p.UpdatedAt
	return &p, nil
}

func (s *SQLiteStore) PriceHistory(ctx context.Context, productID int64, since time.Time) ([]PricePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT price, currency, recorded_at FROM price_history
		WHERE product_id = ? AND recorded_at >= ?
		ORDER BY recorded_at ASC, id ASC`, productID, since)
	if err != nil {
		return nil, fmt.Errorf("price history: %w", err)
	}
	defer rows.Close()

	var out []PricePoint
	for rows.Next() {
		var pt PricePoint
		if err := rows.Scan(&pt.Price, &pt.Currency, &pt.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan price point: %w", err)
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetAlert(ctx context.Context, alert *Alert) (int64, error) {
	direction := alert.Direction
	if direction == "" {
		direction = "below"
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO alerts (product_id, target_price, direction, active, created_at)
		VALUES (?, ?, ?, 1, ?)
		RETURNING id`,
		alert.ProductID, alert.TargetPrice, direction, time.Now().UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("set alert: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) ActiveAlerts(ctx context.Context) ([]Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, target_price, direction, active, created_at
		FROM alerts WHERE active = 1 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("active alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var a Alert
		var active int64
		if err := rows.Scan(&a.ID, &a.ProductID, &a.TargetPrice, &a.Direction,
			&active, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Active = active != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeactivateAlert(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) PendingOutbox(ctx context.Context, limit int) ([]OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, aggregate_id, payload, status, retry_count,
		       created_at, processed_at
		FROM outbox_events
		WHERE status IN (?, ?)
		ORDER BY created_at ASC
		LIMIT ?`,
		OutboxStatusPending, OutboxStatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("pending outbox: %w", err)
	}
	defer rows.Close()

	var out []OutboxEvent
	for rows.Next() {
		var (
			ev        OutboxEvent
			idStr     string
			payload   string
			processed sql.NullTime
		)
		if err := rows.Scan(&idStr, &ev.EventType, &ev.AggregateID, &payload,
			&ev.Status, &ev.RetryCount, &ev.CreatedAt, &processed); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		if ev.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parse outbox id %q: %w", idStr, err)
		}
		ev.Payload = []byte(payload)
		if processed.Valid {
			ev.ProcessedAt = &processed.Time
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkOutboxProcessed(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events SET status = ?, processed_at = ? WHERE id = ?`,
		OutboxStatusProcessed, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("mark outbox processed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) MarkOutboxFailed(ctx context.Context, id uuid.UUID, cause error) error {
	var retries int
	err := s.db.QueryRowContext(ctx,
		`SELECT retry_count FROM outbox_events WHERE id = ?`, id.String()).Scan(&retries)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}

	retries++
	status := OutboxStatusFailed
	if retries >= maxOutboxRetries {
		status = OutboxStatusDeadLetter
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = ?, retry_count = ?, error_message = ?
		WHERE id = ?`,
		status, retries, msg, id.String())
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}

// boolToNull maps a tri-state availability onto a nullable integer column.
func boolToNull(b *bool) any {
	if b == nil {
		return nil
	}
	if *b {
		return int64(1)
	}
	return int64(0)
}

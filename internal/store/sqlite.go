package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"watch-deal-finder/internal/models"
)

const sqliteFile = "deals.db"

// SQLiteStore keeps each deal as a JSON document next to the columns used for
// filtering.
type SQLiteStore struct {
	db        *sql.DB
	batchSize int
}

func NewSQLite(dataDir string, batchSize int) (*SQLiteStore, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_timeout=5000", filepath.Join(dataDir, sqliteFile))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db, batchSize: batchSize}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS deals (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		brand TEXT NOT NULL,
		price_base REAL NOT NULL DEFAULT 0,
		score INTEGER,
		margin REAL,
		doc TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deals_brand ON deals(brand);
	CREATE INDEX IF NOT EXISTS idx_deals_source ON deals(source);
	CREATE INDEX IF NOT EXISTS idx_deals_score ON deals(score DESC);
	CREATE INDEX IF NOT EXISTS idx_deals_updated_at ON deals(updated_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

const sqliteUpsert = `
	INSERT INTO deals (id, source, brand, price_base, score, margin, doc, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		source = excluded.source,
		brand = excluded.brand,
		price_base = excluded.price_base,
		score = excluded.score,
		margin = excluded.margin,
		doc = json_patch(deals.doc, excluded.doc),
		updated_at = excluded.updated_at`

// UpsertDeals writes deals in one transaction per batch.
func (s *SQLiteStore) UpsertDeals(ctx context.Context, deals []*models.Deal) (int, error) {
	total := 0
	for _, batch := range batches(deals, s.batchSize) {
		n, err := s.upsertBatch(ctx, batch)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *SQLiteStore) upsertBatch(ctx context.Context, batch []*models.Deal) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range batch {
		doc, err := encodeDeal(d)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx,
			d.ID, d.Source, d.Brand, d.PriceBase, d.Score, d.EstimatedMargin,
			string(doc), updatedAt(d).UnixMilli(),
		); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(batch), nil
}

func (s *SQLiteStore) GetDeal(ctx context.Context, id string) (*models.Deal, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM deals WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get deal %s: %w", id, err)
	}
	return decodeDeal([]byte(doc))
}

func (s *SQLiteStore) ListDeals(ctx context.Context, filters *models.DealFilters) ([]*models.Deal, error) {
	where, args := filterClause(filters, func(int) string { return "?" })
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM deals`+where+` ORDER BY updated_at DESC, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	deals := make([]*models.Deal, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		d, err := decodeDeal([]byte(doc))
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func updatedAt(d *models.Deal) time.Time {
	if d.LastUpdated.IsZero() {
		return time.Now().UTC()
	}
	return d.LastUpdated
}

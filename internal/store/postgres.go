package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"watch-deal-finder/internal/models"
)

const pgMaxConns = 4

// PostgresStore keeps deals as JSONB documents; upserts are sent as one
// pgx.Batch per chunk.
type PostgresStore struct {
	pool      *pgxpool.Pool
	batchSize int
}

func NewPostgres(ctx context.Context, dsn string, batchSize int) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("PG_DSN is required for the postgres store")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("PG_DSN parse: %w", err)
	}
	cfg.MaxConns = pgMaxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("PG connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PG ping: %w", err)
	}

	s := &PostgresStore{pool: pool, batchSize: batchSize}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS deals (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		brand TEXT NOT NULL,
		price_base DOUBLE PRECISION NOT NULL DEFAULT 0,
		score INTEGER,
		margin DOUBLE PRECISION,
		doc JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_deals_brand ON deals(brand);
	CREATE INDEX IF NOT EXISTS idx_deals_source ON deals(source);
	CREATE INDEX IF NOT EXISTS idx_deals_score ON deals(score DESC);
	CREATE INDEX IF NOT EXISTS idx_deals_updated_at ON deals(updated_at DESC);
	`)
	return err
}

const pgUpsert = `
	INSERT INTO deals (id, source, brand, price_base, score, margin, doc, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
	ON CONFLICT (id) DO UPDATE SET
		source = EXCLUDED.source,
		brand = EXCLUDED.brand,
		price_base = EXCLUDED.price_base,
		score = EXCLUDED.score,
		margin = EXCLUDED.margin,
		doc = deals.doc || EXCLUDED.doc,
		updated_at = EXCLUDED.updated_at`

func (s *PostgresStore) UpsertDeals(ctx context.Context, deals []*models.Deal) (int, error) {
	total := 0
	for _, chunk := range batches(deals, s.batchSize) {
		b := &pgx.Batch{}
		for _, d := range chunk {
			doc, err := encodeDeal(d)
			if err != nil {
				return total, err
			}
			b.Queue(pgUpsert,
				d.ID, d.Source, d.Brand, d.PriceBase, d.Score, d.EstimatedMargin,
				string(doc), updatedAt(d),
			)
		}

		br := s.pool.SendBatch(ctx, b)
		for k := 0; k < len(chunk); k++ {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return total, fmt.Errorf("upsert %s: %w", chunk[k].ID, err)
			}
			total += int(tag.RowsAffected())
		}
		if err := br.Close(); err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *PostgresStore) GetDeal(ctx context.Context, id string) (*models.Deal, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM deals WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get deal %s: %w", id, err)
	}
	return decodeDeal(doc)
}

func (s *PostgresStore) ListDeals(ctx context.Context, filters *models.DealFilters) ([]*models.Deal, error) {
	where, args := filterClause(filters, func(n int) string { return "$" + strconv.Itoa(n) })
	rows, err := s.pool.Query(ctx, `SELECT doc FROM deals`+where+` ORDER BY updated_at DESC, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	deals := make([]*models.Deal, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		d, err := decodeDeal(doc)
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"curveVolume/internal/model"
	"curveVolume/internal/storage"
)

// Store provides Postgres persistence for entities and replay state.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Get loads one document.
func (s *Store) Get(ctx context.Context, kind model.Kind, id string) ([]byte, error) {
	var doc []byte
	row := s.pool.QueryRow(ctx, `SELECT doc FROM entities WHERE kind=$1 AND id=$2`, string(kind), id)
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

// PutBatch upserts documents in one transaction, so a batch is either
// fully visible or not at all.
func (s *Store) PutBatch(ctx context.Context, docs []storage.Document) error {
	if len(docs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, d := range docs {
		batch.Queue(`
			INSERT INTO entities (kind, id, doc, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (kind, id)
			DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()
		`, string(d.Kind), d.ID, string(d.Data))
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for range docs {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return err
			}
		}
		return br.Close()
	})
}

// LoadState returns the last processed position for a name.
func (s *Store) LoadState(ctx context.Context, name string) (model.Position, bool, error) {
	if name == "" {
		return model.Position{}, false, fmt.Errorf("state name required")
	}
	var block, txIndex, logIndex int64
	row := s.pool.QueryRow(ctx, `SELECT block, tx_index, log_index FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block, &txIndex, &logIndex); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Position{}, false, nil
		}
		return model.Position{}, false, err
	}
	return model.Position{Block: uint64(block), TxIndex: uint64(txIndex), LogIndex: uint64(logIndex)}, true, nil
}

// SaveState upserts the last processed position for a name.
func (s *Store) SaveState(ctx context.Context, name string, pos model.Position) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, block, tx_index, log_index, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE
		SET block = EXCLUDED.block, tx_index = EXCLUDED.tx_index,
		    log_index = EXCLUDED.log_index, updated_at = now()
	`, name, int64(pos.Block), int64(pos.TxIndex), int64(pos.LogIndex))
	return err
}

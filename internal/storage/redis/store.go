// Package redis stores entities as plain string keys.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"curveVolume/internal/model"
	"curveVolume/internal/storage"
)

// Store keeps each document under prefix:kind:id.
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore connects to addr and pings it.
func NewStore(ctx context.Context, addr, password string, db int, prefix string) (*Store, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewStoreWithClient(client, prefix), nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "curve"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(kind model.Kind, id string) string {
	return s.prefix + ":" + string(kind) + ":" + id
}

// Get loads one document.
func (s *Store) Get(ctx context.Context, kind model.Kind, id string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(kind, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// PutBatch writes every document in one MULTI/EXEC pipeline.
func (s *Store) PutBatch(ctx context.Context, docs []storage.Document) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, d := range docs {
			pipe.Set(ctx, s.key(d.Kind, d.ID), d.Data, 0)
		}
		return nil
	})
	return err
}

package storage

import (
	"context"
	"errors"

	"curveVolume/internal/model"
)

// ErrNotFound is returned by a Backend for a missing document.
var ErrNotFound = errors.New("document not found")

// LogSink defines a sink for raw log records.
type LogSink interface {
	PutLogBatch(logs []model.LogRecord) error
}

// Document is one persisted entity in JSON form.
type Document struct {
	Kind model.Kind
	ID   string
	Data []byte
}

// Backend is a key/document store addressed by (kind, id).
type Backend interface {
	Get(ctx context.Context, kind model.Kind, id string) ([]byte, error)
	PutBatch(ctx context.Context, docs []Document) error
}

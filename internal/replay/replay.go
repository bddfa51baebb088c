// Package replay feeds a typed event file through the processor in chain
// order, flushing the entity session in batches. Each batch carries a
// cursor document with the position of its last event, so a restart
// resumes exactly after the last batch the store accepted.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"curveVolume/internal/metrics"
	"curveVolume/internal/model"
	"curveVolume/internal/processor"
	"curveVolume/internal/storage"
)

const (
	defaultBatchSize = 500
	defaultName      = "processor"
)

// Publisher receives every flushed batch.
type Publisher interface {
	Publish(ctx context.Context, docs []storage.Document) error
}

// Config controls a replay.
type Config struct {
	Input string
	// Name identifies the replay cursor in the store.
	Name string
	// BatchSize is the number of applied events per session flush.
	BatchSize int
	// From forces a restart after this position, ignoring saved state.
	From *model.Position
}

// Replayer applies typed events to a processor.
type Replayer struct {
	cfg       Config
	proc      *processor.Processor
	state     StateStore
	publisher Publisher
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// Stats summarizes one run.
type Stats struct {
	Total    int
	Applied  int
	Skipped  int
	Failed   int
	Flushed  int
	Position model.Position
}

func New(cfg Config, proc *processor.Processor, state StateStore, publisher Publisher, logger *zap.Logger, m *metrics.Metrics) *Replayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Name == "" {
		cfg.Name = defaultName
	}
	return &Replayer{cfg: cfg, proc: proc, state: state, publisher: publisher, logger: logger, metrics: m}
}

// Run replays cfg.Input.
func (r *Replayer) Run(ctx context.Context) (Stats, error) {
	if r.proc == nil {
		return Stats{}, fmt.Errorf("processor is nil")
	}
	file, err := os.Open(r.cfg.Input)
	if err != nil {
		return Stats{}, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()
	return r.Replay(ctx, file)
}

// Replay applies every record of in that comes after the resume position.
// Records at or before the last applied position are skipped, so
// overlapping inputs are safe.
func (r *Replayer) Replay(ctx context.Context, in io.Reader) (stats Stats, err error) {
	defer func() {
		// staged effects of a failed batch must not leak into a retry
		if err != nil {
			r.proc.Session().Discard()
		}
	}()
	last, resumed, err := r.start(ctx)
	if err != nil {
		return stats, err
	}
	if resumed {
		r.logger.Info("resume replay",
			zap.Uint64("block", last.Block),
			zap.Uint64("tx_index", last.TxIndex),
			zap.Uint64("log_index", last.LogIndex),
		)
	}
	stats.Position = last

	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	pending := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			stats.Failed++
			r.metrics.Dropped("decode")
			r.logger.Warn("decode typed event", zap.Error(err))
			continue
		}

		pos := record.Position()
		if resumed && !pos.After(last) {
			stats.Skipped++
			continue
		}

		if err := r.proc.Handle(ctx, record); err != nil {
			return stats, err
		}
		last, resumed = pos, true
		stats.Applied++
		pending++

		if pending >= r.cfg.BatchSize {
			if err := r.flush(ctx, last, &stats); err != nil {
				return stats, err
			}
			pending = 0
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}

	if pending > 0 || r.proc.Session().Pending() > 0 {
		if err := r.flush(ctx, last, &stats); err != nil {
			return stats, err
		}
	}

	r.logger.Info("replay complete",
		zap.Int("total", stats.Total),
		zap.Int("applied", stats.Applied),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Int("flushed", stats.Flushed),
	)
	return stats, nil
}

func (r *Replayer) start(ctx context.Context) (model.Position, bool, error) {
	if r.cfg.From != nil {
		return *r.cfg.From, true, nil
	}
	var cursor model.ReplayCursor
	found, err := r.proc.Session().Load(ctx, model.KindReplayCursor, r.cfg.Name, &cursor)
	if err != nil {
		return model.Position{}, false, err
	}
	if r.state == nil {
		return cursor.Position, found, nil
	}
	pos, saved, err := r.state.Load(ctx)
	if err != nil {
		return model.Position{}, false, err
	}
	switch {
	case found && (!saved || cursor.Position.After(pos)):
		return cursor.Position, true, nil
	case saved:
		return pos, true, nil
	}
	return model.Position{}, false, nil
}

// flush publishes the staged batch, then writes it to the store together
// with the cursor, then records the position. A failed publish or store
// write leaves the cursor where it was, so a restart applies the batch
// once more against the same stored state and publishes it again.
func (r *Replayer) flush(ctx context.Context, pos model.Position, stats *Stats) error {
	session := r.proc.Session()
	if staged := session.Staged(); r.publisher != nil && len(staged) > 0 {
		if err := r.publisher.Publish(ctx, staged); err != nil {
			return fmt.Errorf("publish batch: %w", err)
		}
	}
	if err := session.Save(&model.ReplayCursor{ID: r.cfg.Name, Position: pos}); err != nil {
		return err
	}
	docs, err := session.Flush(ctx)
	if err != nil {
		return err
	}
	r.metrics.Flushed(len(docs))
	if r.state != nil {
		if err := r.state.Save(ctx, pos); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
	}
	stats.Flushed += len(docs)
	stats.Position = pos
	r.logger.Debug("batch flushed", zap.Int("documents", len(docs)), zap.Uint64("block", pos.Block))
	return nil
}

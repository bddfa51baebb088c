package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"curveVolume/internal/model"
)

// LogFile appends raw log records to a JSONL file. Every batch is synced
// before PutLogBatch returns, so a checkpoint written afterwards never
// points past data that is not on disk.
type LogFile struct {
	path string

	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
}

func NewLogFile(path string) *LogFile {
	return &LogFile{path: path}
}

func (s *LogFile) open() error {
	if s.file != nil {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	s.file = file
	s.buf = bufio.NewWriter(file)
	return nil
}

// PutLogBatch appends a batch of log records as JSON lines.
func (s *LogFile) PutLogBatch(logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.open(); err != nil {
		return err
	}

	enc := json.NewEncoder(s.buf)
	for _, record := range logs {
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("write log record: %w", err)
		}
	}
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync output: %w", err)
	}
	return nil
}

// Close flushes and closes the file. It is safe to call more than once.
func (s *LogFile) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.buf.Flush()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file, s.buf = nil, nil
	return err
}

package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"websearch/pkg/models"
	"websearch/pkg/utils"
)

// Scanner buffer cap for a single JSONL line. Records carry outlink
// lists, index entries carry term maps; both can exceed bufio's 64KB
// default on large pages.
const maxRecordLineBytes = 8 << 20

// RecordStore is the append-only JSONL document store produced by the
// crawler and consumed by the indexer. One record per line; chunks are
// flushed and synced atomically under a mutex so a crash loses at most
// the chunk being written.
type RecordStore struct {
	path string
	mu   sync.Mutex
	log  *logrus.Entry
}

// NewRecordStore returns a store backed by the JSONL file at path.
// The parent directory is created if missing.
func NewRecordStore(path string, logger *logrus.Entry) (*RecordStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: cannot create record directory %s: %w", utils.ErrFilesystem, dir, err)
		}
	}
	return &RecordStore{path: path, log: logger}, nil
}

// Path returns the backing file path.
func (s *RecordStore) Path() string { return s.path }

// Truncate removes any existing record file. Used when starting a
// fresh (non-resume) crawl.
func (s *RecordStore) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: truncating record file %s: %w", utils.ErrFilesystem, s.path, err)
	}
	return nil
}

// AppendChunk appends records to the store as one durable write:
// buffered marshal of every record, then flush and fsync before the
// file is closed. An empty chunk is a no-op.
func (s *RecordStore) AppendChunk(records []models.CrawlRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("%w: opening record file %s: %w", utils.ErrFilesystem, s.path, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	enc := json.NewEncoder(writer)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("%w: encoding record '%s': %w", utils.ErrParsing, records[i].URL, err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("%w: flushing record file %s: %w", utils.ErrFilesystem, s.path, err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("%w: syncing record file %s: %w", utils.ErrFilesystem, s.path, err)
	}

	s.log.Debugf("Appended chunk of %d records to %s", len(records), s.path)
	return nil
}

// Iterate streams every record to fn in file order. Malformed lines do
// not abort the scan: they are reported through onBad (which may be
// nil) and skipped. fn returning an error stops iteration.
func (s *RecordStore) Iterate(fn func(rec models.CrawlRecord) error, onBad func(line int, err error)) error {
	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("%w: opening record file %s: %w", utils.ErrFilesystem, s.path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec models.CrawlRecord
		if errJson := json.Unmarshal(line, &rec); errJson != nil {
			s.log.Warnf("Skipping malformed record at %s:%d: %v", s.path, lineNo, errJson)
			if onBad != nil {
				onBad(lineNo, fmt.Errorf("%w: line %d: %w", utils.ErrIndexRecord, lineNo, errJson))
			}
			continue
		}
		if rec.URL == "" {
			s.log.Warnf("Skipping record without URL at %s:%d", s.path, lineNo)
			if onBad != nil {
				onBad(lineNo, fmt.Errorf("%w: line %d: missing url", utils.ErrIndexRecord, lineNo))
			}
			continue
		}

		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: scanning record file %s: %w", utils.ErrFilesystem, s.path, err)
	}
	return nil
}

// Count returns the number of well-formed records in the store.
func (s *RecordStore) Count() (int, error) {
	n := 0
	err := s.Iterate(func(models.CrawlRecord) error {
		n++
		return nil
	}, nil)
	return n, err
}

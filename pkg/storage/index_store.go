package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"websearch/pkg/models"
	"websearch/pkg/utils"
)

// IndexStore persists ranked index entries as JSONL plus a sidecar
// stats file holding corpus-wide BM25 normalization data. The entry
// file is rewritten whole on each index build; the writer flushes in
// chunks so memory stays bounded on large corpora.
type IndexStore struct {
	entryPath string
	statsPath string
	log       *logrus.Entry
}

// NewIndexStore returns a store writing entries to entryPath and
// corpus stats to statsPath.
func NewIndexStore(entryPath, statsPath string, logger *logrus.Entry) (*IndexStore, error) {
	for _, p := range []string{entryPath, statsPath} {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("%w: cannot create index directory %s: %w", utils.ErrFilesystem, dir, err)
			}
		}
	}
	return &IndexStore{entryPath: entryPath, statsPath: statsPath, log: logger}, nil
}

// WriteEntries replaces the entry file with the given entries,
// flushing the buffered writer every chunkSize entries.
func (s *IndexStore) WriteEntries(entries []models.IndexEntry, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = 100
	}

	file, err := os.Create(s.entryPath)
	if err != nil {
		return fmt.Errorf("%w: creating index file %s: %w", utils.ErrFilesystem, s.entryPath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	enc := json.NewEncoder(writer)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			return fmt.Errorf("%w: encoding index entry for '%s': %w", utils.ErrParsing, entries[i].URL, err)
		}
		if (i+1)%chunkSize == 0 {
			if err := writer.Flush(); err != nil {
				return fmt.Errorf("%w: flushing index file %s: %w", utils.ErrFilesystem, s.entryPath, err)
			}
			s.log.Debugf("Index write progress: %d/%d entries", i+1, len(entries))
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("%w: flushing index file %s: %w", utils.ErrFilesystem, s.entryPath, err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("%w: syncing index file %s: %w", utils.ErrFilesystem, s.entryPath, err)
	}

	s.log.Infof("Wrote %d index entries to %s", len(entries), s.entryPath)
	return nil
}

// WriteStats replaces the sidecar stats file.
func (s *IndexStore) WriteStats(stats *models.CorpusStats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding corpus stats: %w", utils.ErrParsing, err)
	}
	if err := os.WriteFile(s.statsPath, data, 0644); err != nil {
		return fmt.Errorf("%w: writing corpus stats %s: %w", utils.ErrFilesystem, s.statsPath, err)
	}
	s.log.Infof("Wrote corpus stats (%d docs, %d terms) to %s", stats.DocCount, len(stats.DocFreq), s.statsPath)
	return nil
}

// LoadEntries reads every index entry back in file order. Malformed
// lines are logged and skipped so one damaged line cannot take the
// whole index offline.
func (s *IndexStore) LoadEntries() ([]models.IndexEntry, error) {
	file, err := os.Open(s.entryPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening index file %s: %w", utils.ErrFilesystem, s.entryPath, err)
	}
	defer file.Close()

	var entries []models.IndexEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry models.IndexEntry
		if errJson := json.Unmarshal(line, &entry); errJson != nil {
			s.log.Warnf("Skipping malformed index entry at %s:%d: %v", s.entryPath, lineNo, errJson)
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: scanning index file %s: %w", utils.ErrFilesystem, s.entryPath, err)
	}
	return entries, nil
}

// LoadStats reads the sidecar stats file.
func (s *IndexStore) LoadStats() (*models.CorpusStats, error) {
	data, err := os.ReadFile(s.statsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading corpus stats %s: %w", utils.ErrFilesystem, s.statsPath, err)
	}
	var stats models.CorpusStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("%w: decoding corpus stats %s: %w", utils.ErrParsing, s.statsPath, err)
	}
	if stats.DocFreq == nil {
		stats.DocFreq = make(map[string]int)
	}
	return &stats, nil
}

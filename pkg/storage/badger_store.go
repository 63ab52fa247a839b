package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"websearch/pkg/log"
	"websearch/pkg/models"
	"websearch/pkg/utils"
)

const (
	pageKeyPrefix = "page:"      // Prefix for page URL keys in DB
	visitedDBDir  = "visited_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements the VisitedStore interface using BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	ctx      context.Context // Parent context
	keyCount atomic.Int64    // Cached key count for O(1) GetVisitedCount
}

// NewBadgerStore initializes and returns a new BadgerStore. The store
// lives under stateDir in a directory derived from the session label,
// so concurrent crawls with distinct labels never share state.
func NewBadgerStore(ctx context.Context, stateDir, sessionLabel string, resume bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{
		log: logger,
		ctx: ctx,
	}

	dbDirName := utils.SanitizeFilename(sessionLabel) + "_" + visitedDBDir
	dbPath := filepath.Join(stateDir, dbDirName)

	if !resume {
		logger.Warnf("Resume flag is false. REMOVING existing state directory: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			// Log error but attempt to continue; Badger might recover or create new files
			logger.Errorf("Failed to remove existing state directory %s: %v", dbPath, err)
		}
	}

	logger.Infof("Initializing visited URL database at: %s (Resume: %v)", dbPath, resume)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("cannot create state directory %s: %w", dbPath, err)
	}

	badgerLogger := log.NewBadgerAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1) // Only the latest state matters

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", dbPath, err)
	}

	// Initialize key count from existing data (matters for resume mode)
	if resume {
		count, err := store.countKeys()
		if err != nil {
			logger.Warnf("Failed to count existing keys on resume: %v", err)
		} else {
			store.keyCount.Store(int64(count))
			logger.Infof("Loaded existing key count on resume: %d", count)
		}
	}

	logger.Info("Visited URL database initialized successfully.")
	return store, nil
}

// countKeys performs a one-time full key scan (used only during initialization on resume).
func (s *BadgerStore) countKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// MarkPending implements the StateStore interface. It claims a URL for
// a worker by writing a pending entry, but only if no entry exists yet.
func (s *BadgerStore) MarkPending(normalizedURL string, depth int) (bool, error) {
	if s.db == nil {
		return false, utils.ErrStoreClosed
	}
	added := false
	key := []byte(pageKeyPrefix + normalizedURL)

	entryBytes, errJson := json.Marshal(&models.PageDBEntry{
		State:       models.StatePending,
		Depth:       depth,
		LastAttempt: time.Now().UTC(),
	})
	if errJson != nil {
		return false, fmt.Errorf("%w: marshal pending entry for key '%s': %w", utils.ErrParsing, string(key), errJson)
	}

	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			errSet := txn.SetEntry(badger.NewEntry(key, entryBytes))
			if errSet == nil {
				added = true
			}
			return errSet
		}
		// Key already exists or another error occurred
		return errGet
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in MarkPending: %v", err)
		return false, fmt.Errorf("%w: marking page key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if added {
		s.keyCount.Add(1)
	}

	return added, nil
}

// CheckState implements the StateStore interface
func (s *BadgerStore) CheckState(normalizedURL string) (models.FetchState, *models.PageDBEntry, error) {
	state := models.StateUnset
	var entry *models.PageDBEntry
	key := []byte(pageKeyPrefix + normalizedURL)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			state = models.StateUnset
			return nil // Not found is not an error here
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting page key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}

		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				state = models.StatePending // Key exists but carries no data yet
				return nil
			}

			var decodedEntry models.PageDBEntry
			if errJson := json.Unmarshal(val, &decodedEntry); errJson != nil {
				s.log.Warnf("Failed to unmarshal PageDBEntry for key '%s': %v. Treating as 'pending'.", string(key), errJson)
				state = models.StatePending
				return nil
			}

			entry = &decodedEntry
			state = decodedEntry.State
			s.log.Debugf("Page key '%s' found, decoded state: %s", string(key), state)
			return nil
		})
	})

	if errView != nil {
		s.log.Errorf("DB View error in CheckState for key '%s': %v", string(key), errView)
		return models.StateUnset, nil, errView
	}

	return state, entry, nil
}

// UpdateState implements the StateStore interface
func (s *BadgerStore) UpdateState(normalizedURL string, entry *models.PageDBEntry) error {
	if s.db == nil {
		return utils.ErrStoreClosed
	}
	key := []byte(pageKeyPrefix + normalizedURL)

	entryBytes, errJson := json.Marshal(entry)
	if errJson != nil {
		wrappedErr := fmt.Errorf("%w: failed to marshal PageDBEntry for key '%s': %w", utils.ErrParsing, string(key), errJson)
		s.log.Error(wrappedErr)
		return wrappedErr
	}

	isNew := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			isNew = true
		}
		return txn.SetEntry(badger.NewEntry(key, entryBytes))
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in UpdateState: %v", err)
		return fmt.Errorf("%w: failed setting page state for key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}

	s.log.Debugf("Successfully updated page state for key '%s' to '%s'", string(key), entry.State)
	return nil
}

// GetVisitedCount implements the StoreAdmin interface.
// Returns the cached key count (O(1)) maintained by atomic increments on writes.
func (s *BadgerStore) GetVisitedCount() (int, error) {
	return int(s.keyCount.Load()), nil
}

// RunGC runs BadgerDB's value log garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				s.log.Info("DB GC: Database is nil or closed, skipping GC cycle.")
				continue
			}

			s.log.Info("Running BadgerDB value log garbage collection...")
			var err error
			for {
				// Run GC while the log has at least 50% reclaimable space
				err = s.db.RunValueLogGC(0.5)
				if err != nil {
					break
				}
				s.log.Info("BadgerDB GC cycle completed.")
			}

			if errors.Is(err, badger.ErrNoRewrite) {
				s.log.Info("BadgerDB GC finished (no rewrite needed).")
			} else {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Infof("Stopping BadgerDB garbage collection goroutine due to context cancellation: %v", ctx.Err())
			return
		}
	}
}

// RequeueIncomplete implements the StoreAdmin interface
func (s *BadgerStore) RequeueIncomplete(ctx context.Context, workChan chan<- models.WorkItem) (int, int, error) {
	s.log.Info("Resume Mode: Scanning database for incomplete tasks to requeue...")
	requeuedCount := 0
	scanErrors := 0
	scanStartTime := time.Now()

	scanErr := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true // Need values to check state
		it := txn.NewIterator(opts)
		defer it.Close()

		keyPrefixBytes := []byte(pageKeyPrefix)

		for it.Seek(keyPrefixBytes); it.ValidForPrefix(keyPrefixBytes); it.Next() {
			select {
			case <-ctx.Done():
				s.log.Warnf("Resume scan interrupted by context cancellation: %v", ctx.Err())
				return ctx.Err()
			default:
			}

			item := it.Item()
			keyBytesWithPrefix := item.KeyCopy(nil)
			urlToRequeue := string(keyBytesWithPrefix[len(keyPrefixBytes):])

			errGetValue := item.Value(func(valBytes []byte) error {
				shouldRequeue := false
				requeueDepth := 0

				if len(valBytes) == 0 { // Empty value is implicitly pending
					s.log.Debugf("Resume Scan: Found empty value for '%s'. Requeueing (Depth 0).", urlToRequeue)
					shouldRequeue = true
				} else {
					var entry models.PageDBEntry
					if errJson := json.Unmarshal(valBytes, &entry); errJson != nil {
						s.log.Errorf("Resume Scan: Failed unmarshal PageDBEntry for '%s': %v. Skipping.", urlToRequeue, errJson)
						scanErrors++
						return nil // Continue iteration
					}
					if !entry.State.IsTerminal() {
						s.log.Debugf("Resume Scan: Requeueing '%s' (State: %s, Depth: %d)", urlToRequeue, entry.State, entry.Depth)
						shouldRequeue = true
						requeueDepth = entry.Depth
					}
				}

				if shouldRequeue {
					select {
					case workChan <- models.WorkItem{URL: urlToRequeue, Depth: requeueDepth}:
						requeuedCount++
					case <-ctx.Done():
						s.log.Warnf("Resume scan interrupted while sending '%s' to queue: %v", urlToRequeue, ctx.Err())
						return ctx.Err()
					}
				}
				return nil
			})

			if errGetValue != nil {
				if errors.Is(errGetValue, context.Canceled) || errors.Is(errGetValue, context.DeadlineExceeded) {
					return errGetValue
				}
				s.log.Errorf("Resume Scan: Error getting value for key '%s': %v", urlToRequeue, errGetValue)
				scanErrors++
			}
		}
		return nil
	})

	durationScan := time.Since(scanStartTime)
	if scanErr != nil && !errors.Is(scanErr, context.Canceled) && !errors.Is(scanErr, context.DeadlineExceeded) {
		s.log.Errorf("Error during DB scan for resume: %v.", scanErr)
	}
	s.log.Infof("Resume Scan Complete: Requeued %d tasks in %v. Errors: %d.", requeuedCount, durationScan, scanErrors)

	return requeuedCount, scanErrors, scanErr
}

// LoadTerminal implements the StoreAdmin interface. It streams every
// URL whose stored state is terminal, so the frontier can mark them
// visited before the crawl resumes.
func (s *BadgerStore) LoadTerminal(ctx context.Context, fn func(url string)) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		keyPrefixBytes := []byte(pageKeyPrefix)

		for it.Seek(keyPrefixBytes); it.ValidForPrefix(keyPrefixBytes); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			keyBytesWithPrefix := item.KeyCopy(nil)
			url := string(keyBytesWithPrefix[len(keyPrefixBytes):])

			errVal := item.Value(func(valBytes []byte) error {
				if len(valBytes) == 0 {
					return nil
				}
				var entry models.PageDBEntry
				if errJson := json.Unmarshal(valBytes, &entry); errJson != nil {
					return nil // Malformed entries are handled by RequeueIncomplete
				}
				if entry.State.IsTerminal() {
					fn(url)
				}
				return nil
			})
			if errVal != nil {
				return errVal
			}
		}
		return nil
	})
}

// Close implements the StoreAdmin interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Info("Closing visited DB...")
		err := s.db.Close()
		if err != nil {
			s.log.Errorf("Error closing visited DB: %v", err)
			return err
		}
		s.log.Info("Visited DB closed.")
		return nil
	}
	s.log.Info("Visited DB already closed or was not initialized.")
	return nil
}

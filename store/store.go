// Package store keeps named collections of fingerprints in badger and
// answers near-duplicate queries against them.
package store

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/use-agent/neardup/config"
	"github.com/use-agent/neardup/metrics"
	"github.com/use-agent/neardup/simhash"
)

const (
	keyPrefix = "fp:"
	maxIDLen  = 512
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidName is returned for malformed collection names or record IDs.
	ErrInvalidName = errors.New("store: invalid name")

	collectionName = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)
)

// Record is one stored fingerprint.
type Record struct {
	ID          string
	Fingerprint uint64
}

// Match is a stored record near a query fingerprint.
type Match struct {
	Record
	Distance int
}

// Stats summarises the store.
type Stats struct {
	Collections int
	Records     int
	LSMBytes    int64
	VLogBytes   int64
}

// collectionIndex is the query index of one collection. Index IDs are
// positions in records.
type collectionIndex struct {
	index   *simhash.Index
	records []Record
}

// Store is a badger-backed fingerprint store. It is safe for concurrent use.
type Store struct {
	db        *badger.DB
	rotations []int

	mu       sync.Mutex
	indexes  map[string]*collectionIndex
	versions map[string]uint64
}

// Open opens the badger database described by cfg. rotations configure the
// per-collection query indexes.
func Open(cfg config.StoreConfig, rotations []int) (*Store, error) {
	if len(rotations) == 0 {
		rotations = simhash.DefaultRotations
	}
	if err := simhash.ValidateSearch(0, rotations); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(cfg.Path).WithLoggingLevel(badger.WARNING)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.WARNING)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	slog.Info("fingerprint store opened", "path", cfg.Path, "in_memory", cfg.InMemory)

	return &Store{
		db:        db,
		rotations: slices.Clone(rotations),
		indexes:   make(map[string]*collectionIndex),
		versions:  make(map[string]uint64),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func validCollection(name string) error {
	if !collectionName.MatchString(name) {
		return fmt.Errorf("%w: collection %q", ErrInvalidName, name)
	}
	return nil
}

func validID(id string) error {
	if id == "" || len(id) > maxIDLen {
		return fmt.Errorf("%w: id %q", ErrInvalidName, id)
	}
	return nil
}

func collectionPrefix(collection string) []byte {
	return []byte(keyPrefix + collection + ":")
}

func recordKey(collection, id string) []byte {
	return append(collectionPrefix(collection), id...)
}

func encodeFingerprint(fp uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, fp)
}

func decodeFingerprint(val []byte) (uint64, error) {
	if len(val) != 8 {
		return 0, fmt.Errorf("store: corrupt value of %d bytes", len(val))
	}
	return binary.BigEndian.Uint64(val), nil
}

// invalidate drops the cached index of collection. Callers hold no lock.
func (s *Store) invalidate(collection string) {
	s.mu.Lock()
	delete(s.indexes, collection)
	s.versions[collection]++
	s.mu.Unlock()
}

// Put stores records in collection, replacing existing IDs. When records
// repeats an ID the last one wins. It returns the number of distinct IDs
// written.
func (s *Store) Put(collection string, records []Record) (int, error) {
	if err := validCollection(collection); err != nil {
		return 0, err
	}
	last := make(map[string]int, len(records))
	for i, r := range records {
		if err := validID(r.ID); err != nil {
			return 0, err
		}
		last[r.ID] = i
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for i, r := range records {
		if last[r.ID] != i {
			continue
		}
		if err := wb.Set(recordKey(collection, r.ID), encodeFingerprint(r.Fingerprint)); err != nil {
			return 0, fmt.Errorf("store: put: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("store: put: %w", err)
	}

	s.invalidate(collection)
	metrics.StoreOp("put")
	return len(last), nil
}

// Get returns one record.
func (s *Store) Get(collection, id string) (Record, error) {
	if err := validCollection(collection); err != nil {
		return Record{}, err
	}
	if err := validID(id); err != nil {
		return Record{}, err
	}

	var fp uint64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(collection, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			fp, err = decodeFingerprint(val)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("store: get: %w", err)
	}

	metrics.StoreOp("get")
	return Record{ID: id, Fingerprint: fp}, nil
}

// Delete removes one record.
func (s *Store) Delete(collection, id string) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	if err := validID(id); err != nil {
		return err
	}

	key := recordKey(collection, id)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	if err != nil {
		return fmt.Errorf("store: delete: %w", err)
	}

	s.invalidate(collection)
	metrics.StoreOp("delete")
	return nil
}

// Drop removes a whole collection and returns how many records it held.
func (s *Store) Drop(collection string) (int, error) {
	if err := validCollection(collection); err != nil {
		return 0, err
	}

	prefix := collectionPrefix(collection)
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: drop: %w", err)
	}
	if count == 0 {
		return 0, fmt.Errorf("%w: collection %s", ErrNotFound, collection)
	}
	if err := s.db.DropPrefix(prefix); err != nil {
		return 0, fmt.Errorf("store: drop: %w", err)
	}

	s.invalidate(collection)
	metrics.StoreOp("drop")
	slog.Info("collection dropped", "collection", collection, "records", count)
	return count, nil
}

// List returns every record of collection sorted by ID.
func (s *Store) List(collection string) ([]Record, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}

	prefix := collectionPrefix(collection)
	var records []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			id := strings.TrimPrefix(string(item.Key()), string(prefix))
			err := item.Value(func(val []byte) error {
				fp, err := decodeFingerprint(val)
				if err != nil {
					return err
				}
				records = append(records, Record{ID: id, Fingerprint: fp})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}

	metrics.StoreOp("list")
	return records, nil
}

// index returns the query index of collection, building it if needed.
func (s *Store) index(collection string) (*collectionIndex, error) {
	s.mu.Lock()
	if ci, ok := s.indexes[collection]; ok {
		s.mu.Unlock()
		return ci, nil
	}
	version := s.versions[collection]
	s.mu.Unlock()

	records, err := s.List(collection)
	if err != nil {
		return nil, err
	}
	ix, err := simhash.NewIndex(s.rotations...)
	if err != nil {
		return nil, err
	}
	for i, r := range records {
		ix.Add(r.Fingerprint, uint64(i))
	}
	ix.Finish()
	ci := &collectionIndex{index: ix, records: records}

	s.mu.Lock()
	if s.versions[collection] == version {
		s.indexes[collection] = ci
	}
	s.mu.Unlock()

	slog.Debug("collection index built", "collection", collection, "records", len(records))
	return ci, nil
}

// Query returns the records of collection within maxDistance of fp, nearest
// first. Candidates come from the banded index, so a match that differs from
// fp inside every band can be missed.
func (s *Store) Query(collection string, fp uint64, maxDistance int) ([]Match, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	if err := simhash.ValidateDistance(maxDistance); err != nil {
		return nil, err
	}

	ci, err := s.index(collection)
	if err != nil {
		return nil, err
	}
	ids, err := ci.index.Query(fp, maxDistance)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(ids))
	for _, id := range ids {
		r := ci.records[id]
		matches = append(matches, Match{Record: r, Distance: simhash.HammingDistance(fp, r.Fingerprint)})
	}
	slices.SortFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	metrics.StoreOp("query")
	return matches, nil
}

// Stats counts collections and records and reports the database size.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		last := ""
		for it.Rewind(); it.Valid(); it.Next() {
			rest := strings.TrimPrefix(string(it.Item().Key()), keyPrefix)
			name, _, _ := strings.Cut(rest, ":")
			if name != last {
				st.Collections++
				last = name
			}
			st.Records++
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	st.LSMBytes, st.VLogBytes = s.db.Size()
	return st, nil
}

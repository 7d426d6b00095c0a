// Package storage is a BadgerDB implementation of contract.DocumentStore.
//
// A document lives under the key "doc:{collection}|{id}" so that a prefix
// scan of a collection never walks its sub-collections. Values are protobuf
// Structs. Writes go through Badger transactions; a commit conflicting with a
// concurrent writer is re-run from scratch against the fresh state, which is
// what makes Transact an atomic read-modify-write.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"roomsync/contract"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	keyPrefix         = "doc:"
	defaultMaxRetries = 64
)

var ErrTooManyConflicts = errors.New("transaction aborted after repeated conflicts")

type Store struct {
	db         *badger.DB
	log        *slog.Logger
	clock      *Clock
	registry   *Registry
	newID      func() string
	maxRetries int
}

type Option func(*Store)

// WithClock replaces the wall clock used for server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.clock = NewClock(now) }
}

// WithIDGenerator replaces uuid generation for created documents.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

func WithMaxRetries(n int) Option {
	return func(s *Store) { s.maxRetries = n }
}

func NewStore(db *badger.DB, log *slog.Logger, opts ...Option) *Store {
	s := &Store{
		db:         db,
		log:        log,
		clock:      NewClock(nil),
		registry:   NewRegistry(),
		newID:      uuid.NewString,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenInMemory opens a throwaway Badger instance, used by tests and demos.
func OpenInMemory(log *slog.Logger, opts ...Option) (*Store, func() error, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, nil, err
	}
	return NewStore(db, log, opts...), db.Close, nil
}

// Now is the current server time.
func (s *Store) Now() time.Time { return s.clock.Now() }

func (s *Store) Registry() *Registry { return s.registry }

func documentKey(path string) []byte {
	collection, id := splitPath(path)
	return []byte(keyPrefix + collection + "|" + id)
}

func collectionPrefix(collection string) []byte {
	return []byte(keyPrefix + collection + "|")
}

// PathFromKey is the inverse of the key layout, for inspection tools.
func PathFromKey(key []byte) (string, bool) {
	raw, ok := strings.CutPrefix(string(key), keyPrefix)
	if !ok {
		return "", false
	}
	collection, id, ok := strings.Cut(raw, "|")
	if !ok {
		return "", false
	}
	return collection + "/" + id, true
}

// DecodeValue exposes the value codec to inspection tools.
func DecodeValue(data []byte) (contract.Fields, error) {
	return decodeFields(data)
}

// EncodeValue is the inverse of DecodeValue. Server timestamps resolve to now.
func EncodeValue(fields contract.Fields, now time.Time) ([]byte, error) {
	return encodeFields(fields, now)
}

// DocumentKey is the Badger key of the document at path.
func DocumentKey(path string) []byte {
	return documentKey(path)
}

func (s *Store) Get(ctx context.Context, path string) (contract.Document, error) {
	if err := ctx.Err(); err != nil {
		return contract.Document{}, err
	}
	var doc contract.Document
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		doc, err = getDocument(txn, path)
		return err
	})
	return doc, err
}

func (s *Store) Find(ctx context.Context, q contract.Query) ([]contract.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filters, err := s.normalizeFilters(q.Filters)
	if err != nil {
		return nil, err
	}
	q.Filters = filters
	var docs []contract.Document
	err = s.db.View(func(txn *badger.Txn) error {
		var err error
		docs, err = findDocuments(txn, q, s.log)
		return err
	})
	return docs, err
}

// Watch registers the query before reading the first snapshot so that no
// write committed in between is missed.
func (s *Store) Watch(ctx context.Context, q contract.Query, onSnapshot contract.SnapshotFunc) (contract.Subscription, error) {
	filters, err := s.normalizeFilters(q.Filters)
	if err != nil {
		return nil, err
	}
	q.Filters = filters
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		store:      s,
		query:      q,
		onSnapshot: onSnapshot,
		dirty:      make(chan struct{}, 1),
		ctx:        subCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	sub.id = s.registry.Subscribe(q.Collection, sub)
	go sub.run()
	return sub, nil
}

func (s *Store) Create(ctx context.Context, collection string, fields contract.Fields) (string, error) {
	var id string
	err := s.Transact(ctx, func(tx contract.Tx) error {
		var err error
		id, err = tx.Create(collection, fields)
		return err
	})
	return id, err
}

func (s *Store) Set(ctx context.Context, path string, fields contract.Fields) error {
	return s.Transact(ctx, func(tx contract.Tx) error {
		return tx.Set(path, fields)
	})
}

func (s *Store) MergeWrite(ctx context.Context, path string, fields contract.Fields) error {
	return s.Transact(ctx, func(tx contract.Tx) error {
		return tx.Merge(path, fields)
	})
}

func (s *Store) Delete(ctx context.Context, path string) error {
	return s.Transact(ctx, func(tx contract.Tx) error {
		return tx.Delete(path)
	})
}

// Update hands fn the current document (nil Fields when missing) and
// stores whatever fn returns. Returning nil fields leaves the document as is.
func (s *Store) Update(ctx context.Context, path string, fn func(current contract.Document) (contract.Fields, error)) error {
	return s.Transact(ctx, func(tx contract.Tx) error {
		current, err := tx.Get(path)
		if err != nil && !errors.Is(err, contract.ErrDocumentNotFound) {
			return err
		}
		if err != nil {
			_, id := splitPath(path)
			current = contract.Document{ID: id, Path: path}
		}
		next, err := fn(current)
		if err != nil || next == nil {
			return err
		}
		return tx.Set(path, next)
	})
}

func (s *Store) AddToSet(ctx context.Context, path, field string, value any) error {
	return s.updateSet(ctx, path, field, value, true)
}

func (s *Store) RemoveFromSet(ctx context.Context, path, field string, value any) error {
	return s.updateSet(ctx, path, field, value, false)
}

func (s *Store) updateSet(ctx context.Context, path, field string, value any, add bool) error {
	return s.Transact(ctx, func(tx contract.Tx) error {
		current, err := tx.Get(path)
		if err != nil {
			return err
		}
		want, err := normalize(value, s.clock.Now())
		if err != nil {
			return err
		}
		existing, _ := lookup(current.Fields, field)
		items, _ := existing.([]any)
		out := make([]any, 0, len(items)+1)
		found := false
		for _, item := range items {
			if typeRank(item) == typeRank(want) && compareValues(item, want) == 0 {
				found = true
				if !add {
					continue
				}
			}
			out = append(out, item)
		}
		if add && !found {
			out = append(out, want)
		}
		return tx.Merge(path, contract.Fields{field: out})
	})
}

// Transact runs fn inside a Badger read-write transaction. On a write
// conflict the whole function is re-run, so fn must only touch the store
// through tx.
func (s *Store) Transact(ctx context.Context, fn func(tx contract.Tx) error) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := &tx{store: s, now: s.clock.Now()}
		err := s.db.Update(func(txn *badger.Txn) error {
			t.txn = txn
			t.touched = t.touched[:0]
			return fn(t)
		})
		if errors.Is(err, badger.ErrConflict) {
			s.log.Debug("Transaction conflict, retrying", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return err
		}
		s.registry.Notify(t.touched)
		return nil
	}
	return fmt.Errorf("%w (%d attempts)", ErrTooManyConflicts, s.maxRetries)
}

func (s *Store) normalizeFilters(filters []contract.Filter) ([]contract.Filter, error) {
	now := s.clock.Now()
	out := make([]contract.Filter, 0, len(filters))
	for _, f := range filters {
		value, err := normalize(f.Value, now)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", f.Field, err)
		}
		out = append(out, contract.Filter{Field: f.Field, Op: f.Op, Value: value})
	}
	return out, nil
}

func getDocument(txn *badger.Txn, path string) (contract.Document, error) {
	item, err := txn.Get(documentKey(path))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return contract.Document{}, fmt.Errorf("%w: %s", contract.ErrDocumentNotFound, path)
	}
	if err != nil {
		return contract.Document{}, err
	}
	var fields contract.Fields
	err = item.Value(func(val []byte) error {
		var err error
		fields, err = decodeFields(val)
		return err
	})
	if err != nil {
		return contract.Document{}, err
	}
	_, id := splitPath(path)
	return contract.Document{ID: id, Path: path, Fields: fields}, nil
}

// findDocuments scans one collection. Undecodable values are logged and skipped.
func findDocuments(txn *badger.Txn, q contract.Query, log *slog.Logger) ([]contract.Document, error) {
	prefix := collectionPrefix(q.Collection)
	options := badger.DefaultIteratorOptions
	options.Prefix = prefix
	it := txn.NewIterator(options)
	defer it.Close()

	var docs []contract.Document
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		id := string(item.Key()[len(prefix):])
		var fields contract.Fields
		err := item.Value(func(val []byte) error {
			var err error
			fields, err = decodeFields(val)
			return err
		})
		if err != nil {
			log.Warn("Skipping undecodable document", "collection", q.Collection, "id", id, "error", err)
			continue
		}
		if !matches(fields, q.Filters) {
			continue
		}
		docs = append(docs, contract.Document{ID: id, Path: contract.Path(q.Collection, id), Fields: fields})
	}
	sortDocuments(docs, q.Orders)
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

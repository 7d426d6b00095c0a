package storage

import (
	"errors"
	"roomsync/contract"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// tx implements contract.Tx on top of one Badger read-write transaction.
// Every ServerTime written through it resolves to the same instant.
type tx struct {
	store   *Store
	txn     *badger.Txn
	now     time.Time
	touched []string
}

func (t *tx) Get(path string) (contract.Document, error) {
	return getDocument(t.txn, path)
}

func (t *tx) Find(q contract.Query) ([]contract.Document, error) {
	filters, err := t.store.normalizeFilters(q.Filters)
	if err != nil {
		return nil, err
	}
	q.Filters = filters
	return findDocuments(t.txn, q, t.store.log)
}

func (t *tx) Create(collection string, fields contract.Fields) (string, error) {
	id := t.store.newID()
	if err := t.Set(contract.Path(collection, id), fields); err != nil {
		return "", err
	}
	return id, nil
}

func (t *tx) Set(path string, fields contract.Fields) error {
	data, err := encodeFields(fields, t.now)
	if err != nil {
		return err
	}
	if err = t.txn.Set(documentKey(path), data); err != nil {
		return err
	}
	t.touched = append(t.touched, path)
	return nil
}

func (t *tx) Merge(path string, fields contract.Fields) error {
	current, err := t.Get(path)
	if err != nil && !errors.Is(err, contract.ErrDocumentNotFound) {
		return err
	}
	return t.Set(path, contract.Fields(merge(current.Fields, fields)))
}

func (t *tx) Delete(path string) error {
	if err := t.txn.Delete(documentKey(path)); err != nil {
		return err
	}
	t.touched = append(t.touched, path)
	return nil
}

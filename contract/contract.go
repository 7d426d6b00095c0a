//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"roomsync/domain"
	"roomsync/domain/event"
)

// SnapshotFunc receives the full current result set of a watched query.
type SnapshotFunc func(docs []Document)

// Subscription is a live query. Cancel is synchronous: once it returns no
// further snapshot is delivered. It must not be called from inside the
// subscription's own SnapshotFunc.
type Subscription interface {
	Cancel()
}

// Tx is the view of the store inside an atomic read-modify-write.
type Tx interface {
	Get(path string) (Document, error)
	Find(q Query) ([]Document, error)
	Create(collection string, fields Fields) (string, error)
	Set(path string, fields Fields) error
	Merge(path string, fields Fields) error
	Delete(path string) error
}

// DocumentStore is the shared, multi-writer backing store.
type DocumentStore interface {
	Get(ctx context.Context, path string) (Document, error)
	Find(ctx context.Context, q Query) ([]Document, error)
	Watch(ctx context.Context, q Query, onSnapshot SnapshotFunc) (Subscription, error)
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	Set(ctx context.Context, path string, fields Fields) error
	// MergeWrite keeps unspecified fields; dotted keys address nested maps.
	MergeWrite(ctx context.Context, path string, fields Fields) error
	// Update is a single-document read-modify-write.
	Update(ctx context.Context, path string, fn func(current Document) (Fields, error)) error
	// Transact commits every write of fn atomically or none of them.
	Transact(ctx context.Context, fn func(tx Tx) error) error
	AddToSet(ctx context.Context, path, field string, value any) error
	RemoveFromSet(ctx context.Context, path, field string, value any) error
	Delete(ctx context.Context, path string) error
}

// IdentityProvider tells who is signed in.
type IdentityProvider interface {
	CurrentUser() *domain.Identity
	// Watch calls fn with the new identity on each sign-in (non nil) and
	// sign-out (nil) transition. The returned func stops watching.
	Watch(fn func(identity *domain.Identity)) (cancel func())
}

type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// IRegistry resolves the sinks interested in a room. An empty roomID asks
// for the sinks that take every event.
type IRegistry interface {
	SinksFor(roomID domain.RoomID) []EventSink
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"formboard/api/internal/config"
)

var (
	// ErrSlotTaken is the conflict outcome of ClaimAdminSlot.
	ErrSlotTaken = errors.New("admin slot already claimed")
	ErrNotFound  = errors.New("document not found")
)

// Error reports an I/O failure against a backing store.
type Error struct {
	Op      string
	Backend string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func storeError(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSlotTaken) || errors.Is(err, ErrNotFound) {
		return err
	}
	return &Error{Op: op, Backend: backend, Err: err}
}

// RemoteStore is the shared multi-client document store.
type RemoteStore interface {
	AddSubmission(ctx context.Context, item Submission) (string, error)
	DeleteSubmission(ctx context.Context, id string) error
	ListSubmissions(ctx context.Context) ([]Submission, error)
	// WatchSubmissions pushes a full, newest-first snapshot on subscribe and after
	// every change until ctx is cancelled.
	WatchSubmissions(ctx context.Context) (<-chan []Submission, error)
	GetAdminClaim(ctx context.Context) (*AdminClaim, error)
	WatchAdminClaim(ctx context.Context) (<-chan *AdminClaim, error)
	// ClaimAdminSlot writes claim only if the slot is empty, atomically.
	// It returns ErrSlotTaken when another claim already exists.
	ClaimAdminSlot(ctx context.Context, claim AdminClaim) error
	Ping(ctx context.Context) error
	Close() error
}

// OpenRemote connects to the remote store described by settings. For Postgres
// the schema migrations in migrationsDir are applied first.
func OpenRemote(ctx context.Context, settings config.RemoteSettings, migrationsDir string) (RemoteStore, error) {
	switch settings.Driver {
	case config.RemoteDriverRedis:
		redisStore, err := NewRedisStore(settings.URL, settings.KeyPrefix)
		if err != nil {
			return nil, err
		}
		return redisStore, nil
	case config.RemoteDriverPostgres:
		db, err := Open(ctx, settings.URL)
		if err != nil {
			return nil, err
		}
		if err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
			_ = db.Close()
			return nil, err
		}
		return NewPostgresStore(db, settings.URL, settings.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported remote driver %q", settings.Driver)
	}
}

// SortNewestFirst orders submissions by descending creation time, breaking
// ties by descending id so repeated reads are stable.
func SortNewestFirst(items []Submission) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return strings.Compare(items[i].ID, items[j].ID) > 0
	})
}

// PushLatest replaces any undelivered value in a one-slot channel with v.
func PushLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

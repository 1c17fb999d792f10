// Package submission stores and lists form entries through a local or remote
// backend chosen at startup.
package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"formboard/api/internal/localstore"
	"formboard/api/internal/session"
	"formboard/api/internal/store"
)

// KeySubmissions holds the JSON list of local submissions.
const KeySubmissions = "formboard.submissions"

// Backend is one place submissions live.
type Backend interface {
	Mode() session.Mode
	// Add stores item and returns it with its assigned ID.
	Add(ctx context.Context, item store.Submission) (store.Submission, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]store.Submission, error)
	Watch(ctx context.Context) (<-chan []store.Submission, error)
}

// LocalBackend keeps submissions in the profile's local store. Watchers in
// this process are notified after each write.
type LocalBackend struct {
	kv localstore.Store

	mu     sync.Mutex
	nextID int
	subs   map[int]chan []store.Submission
}

func NewLocalBackend(kv localstore.Store) *LocalBackend {
	return &LocalBackend{kv: kv, subs: make(map[int]chan []store.Submission)}
}

func (b *LocalBackend) Mode() session.Mode {
	return session.ModeLocal
}

// Add assigns a millisecond timestamp ID, bumped forward when another entry
// already uses it.
func (b *LocalBackend) Add(ctx context.Context, item store.Submission) (store.Submission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items, err := b.load(ctx)
	if err != nil {
		return store.Submission{}, err
	}

	taken := make(map[string]bool, len(items))
	for _, existing := range items {
		taken[existing.ID] = true
	}
	id := item.CreatedAt.UnixMilli()
	for taken[strconv.FormatInt(id, 10)] {
		id++
	}
	item.ID = strconv.FormatInt(id, 10)

	items = append(items, item)
	if err := b.save(ctx, items); err != nil {
		return store.Submission{}, err
	}
	b.broadcast(items)
	return item, nil
}

func (b *LocalBackend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	items, err := b.load(ctx)
	if err != nil {
		return err
	}
	kept := items[:0]
	found := false
	for _, item := range items {
		if item.ID == id {
			found = true
			continue
		}
		kept = append(kept, item)
	}
	if !found {
		return store.ErrNotFound
	}
	if err := b.save(ctx, kept); err != nil {
		return err
	}
	b.broadcast(kept)
	return nil
}

// Has reports whether id names a locally stored submission.
func (b *LocalBackend) Has(ctx context.Context, id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	items, err := b.load(ctx)
	if err != nil {
		return false
	}
	for _, item := range items {
		if item.ID == id {
			return true
		}
	}
	return false
}

func (b *LocalBackend) List(ctx context.Context) ([]store.Submission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	store.SortNewestFirst(items)
	return items, nil
}

// Watch sends the current list, then a fresh list after every local write,
// until ctx is cancelled.
func (b *LocalBackend) Watch(ctx context.Context) (<-chan []store.Submission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	store.SortNewestFirst(items)

	out := make(chan []store.Submission, 1)
	out <- items
	b.nextID++
	subID := b.nextID
	b.subs[subID] = out

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, subID)
		close(out)
	}()
	return out, nil
}

// broadcast must be called with b.mu held.
func (b *LocalBackend) broadcast(items []store.Submission) {
	for _, ch := range b.subs {
		snapshot := make([]store.Submission, len(items))
		copy(snapshot, items)
		store.SortNewestFirst(snapshot)
		store.PushLatest(ch, snapshot)
	}
}

func (b *LocalBackend) load(ctx context.Context) ([]store.Submission, error) {
	raw, ok, err := b.kv.Get(ctx, KeySubmissions)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return []store.Submission{}, nil
	}
	var items []store.Submission
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode local submissions: %w", err)
	}
	return items, nil
}

func (b *LocalBackend) save(ctx context.Context, items []store.Submission) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode local submissions: %w", err)
	}
	return b.kv.Set(ctx, KeySubmissions, string(data))
}

// RemoteBackend adapts a store.RemoteStore.
type RemoteBackend struct {
	remote store.RemoteStore
}

func NewRemoteBackend(remote store.RemoteStore) *RemoteBackend {
	return &RemoteBackend{remote: remote}
}

func (b *RemoteBackend) Mode() session.Mode {
	return session.ModeRemote
}

func (b *RemoteBackend) Add(ctx context.Context, item store.Submission) (store.Submission, error) {
	id, err := b.remote.AddSubmission(ctx, item)
	if err != nil {
		return store.Submission{}, err
	}
	item.ID = id
	return item, nil
}

func (b *RemoteBackend) Delete(ctx context.Context, id string) error {
	return b.remote.DeleteSubmission(ctx, id)
}

func (b *RemoteBackend) List(ctx context.Context) ([]store.Submission, error) {
	return b.remote.ListSubmissions(ctx)
}

func (b *RemoteBackend) Watch(ctx context.Context) (<-chan []store.Submission, error) {
	return b.remote.WatchSubmissions(ctx)
}

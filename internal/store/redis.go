package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"formboard/api/internal/util"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	eventSubmissions = "submissions"
	eventAdminSlot   = "admin_slot"

	// maxClaimAttempts bounds optimistic retries when the watched slot changes
	// between WATCH and EXEC.
	maxClaimAttempts = 8
)

// RedisStore implements RemoteStore on Redis. Submissions are JSON strings
// indexed by a sorted set scored by creation time; changes are announced on a
// pub/sub channel.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis-backed remote store
func NewRedisStore(redisURL, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, prefix), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "formboard"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":submissions"
}

func (s *RedisStore) docKey(id string) string {
	return s.prefix + ":submission:" + id
}

func (s *RedisStore) slotKey() string {
	return s.prefix + ":admin_slot"
}

func (s *RedisStore) channel() string {
	return s.prefix + ":events"
}

func (s *RedisStore) AddSubmission(ctx context.Context, item Submission) (string, error) {
	item.ID = util.NewDocumentID()
	data, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("marshal submission: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.docKey(item.ID), data, 0)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(item.CreatedAt.UnixMilli()), Member: item.ID})
		return nil
	})
	if err != nil {
		return "", storeError("redis", "add submission", err)
	}

	s.publish(ctx, eventSubmissions)
	return item.ID, nil
}

func (s *RedisStore) DeleteSubmission(ctx context.Context, id string) error {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.Del(ctx, s.docKey(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return storeError("redis", "delete submission", err)
	}
	if removed.Val() == 0 {
		return ErrNotFound
	}

	s.publish(ctx, eventSubmissions)
	return nil
}

func (s *RedisStore) ListSubmissions(ctx context.Context) ([]Submission, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, storeError("redis", "list submissions", err)
	}
	items := make([]Submission, 0, len(ids))
	if len(ids) == 0 {
		return items, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storeError("redis", "load submissions", err)
	}
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// Index entry whose document was removed concurrently.
			continue
		}
		var item Submission
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			log.WithError(err).Warnf("redis store: skipping unreadable submission %s", ids[i])
			continue
		}
		items = append(items, item)
	}
	SortNewestFirst(items)
	return items, nil
}

func (s *RedisStore) WatchSubmissions(ctx context.Context) (<-chan []Submission, error) {
	sub, err := s.subscribe(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan []Submission, 1)
	go func() {
		defer close(out)
		defer sub.Close()

		push := func() {
			items, err := s.ListSubmissions(ctx)
			if err != nil {
				log.WithError(err).Warn("redis store: refresh submissions snapshot failed")
				return
			}
			PushLatest(out, items)
		}

		push()
		events := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-events:
				if !ok {
					return
				}
				if msg.Payload == eventSubmissions {
					push()
				}
			}
		}
	}()
	return out, nil
}

func (s *RedisStore) GetAdminClaim(ctx context.Context) (*AdminClaim, error) {
	raw, err := s.client.Get(ctx, s.slotKey()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("redis", "get admin claim", err)
	}

	var claim AdminClaim
	if err := json.Unmarshal([]byte(raw), &claim); err != nil {
		return nil, fmt.Errorf("unmarshal admin claim: %w", err)
	}
	return &claim, nil
}

func (s *RedisStore) WatchAdminClaim(ctx context.Context) (<-chan *AdminClaim, error) {
	sub, err := s.subscribe(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan *AdminClaim, 1)
	go func() {
		defer close(out)
		defer sub.Close()

		push := func() {
			claim, err := s.GetAdminClaim(ctx)
			if err != nil {
				log.WithError(err).Warn("redis store: refresh admin slot failed")
				return
			}
			PushLatest(out, claim)
		}

		push()
		events := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-events:
				if !ok {
					return
				}
				if msg.Payload == eventAdminSlot {
					push()
				}
			}
		}
	}()
	return out, nil
}

// ClaimAdminSlot runs WATCH/GET/MULTI/SET/EXEC so that the emptiness check and
// the write commit together. A concurrent writer aborts EXEC, and the retry
// then observes the winner's claim.
func (s *RedisStore) ClaimAdminSlot(ctx context.Context, claim AdminClaim) error {
	data, err := json.Marshal(claim)
	if err != nil {
		return fmt.Errorf("marshal admin claim: %w", err)
	}
	key := s.slotKey()

	txf := func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return ErrSlotTaken
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			s.publish(ctx, eventAdminSlot)
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return storeError("redis", "claim admin slot", err)
	}
	return storeError("redis", "claim admin slot", errors.New("too much contention on admin slot"))
}

func (s *RedisStore) subscribe(ctx context.Context) (*redis.PubSub, error) {
	sub := s.client.Subscribe(ctx, s.channel())
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, storeError("redis", "subscribe", err)
	}
	return sub, nil
}

func (s *RedisStore) publish(ctx context.Context, event string) {
	if err := s.client.Publish(ctx, s.channel(), event).Err(); err != nil {
		log.WithError(err).Warnf("redis store: publish %s change failed", event)
	}
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

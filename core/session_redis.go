package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "gate:session:"
	eventKeyPrefix   = "gate:events:"
)

// RedisBackend keeps one hash per visitor ({token, expire_at}) and announces
// every change on a per-visitor pub/sub channel, which gives mounted guards
// in other tabs and processes a way to notice a logout.
type RedisBackend struct {
	client  redis.UniversalClient
	visitor *VisitorIdentity
}

func NewRedisBackend(client redis.UniversalClient, visitor *VisitorIdentity) *RedisBackend {
	return &RedisBackend{client: client, visitor: visitor}
}

// For returns the store of one visitor.
func (b *RedisBackend) For(visitorID string) *RedisStore {
	return &RedisStore{client: b.client, visitor: visitorID}
}

// Open implements StoreProvider.
func (b *RedisBackend) Open(w http.ResponseWriter, r *http.Request) (Store, error) {
	id, err := b.visitor.ID(w, r)
	if err != nil {
		return nil, err
	}
	return b.For(id), nil
}

// Sweep clears every stored credential whose token is missing or whose
// expire_at is missing, malformed or not after now, publishing a clear event for each. It returns how many
// entries were removed.
func (b *RedisBackend) Sweep(ctx context.Context, now time.Time) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := b.client.Scan(ctx, cursor, sessionKeyPrefix+"*", 200).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		for _, key := range keys {
			store := b.For(strings.TrimPrefix(key, sessionKeyPrefix))
			cred, err := store.Get(ctx)
			if err != nil {
				return removed, err
			}
			if cred == (Credential{}) {
				continue
			}
			// a half-written entry (expire_at without token) goes as well
			if exp, ok := cred.Expiry(); ok && cred.Present() && now.Before(exp) {
				continue
			}
			if err := store.Clear(ctx); err != nil {
				return removed, err
			}
			removed++
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// RedisStore is the Store of one visitor inside a RedisBackend.
type RedisStore struct {
	client  redis.UniversalClient
	visitor string
}

func (s *RedisStore) key() string     { return sessionKeyPrefix + s.visitor }
func (s *RedisStore) channel() string { return eventKeyPrefix + s.visitor }

func (s *RedisStore) Get(ctx context.Context) (Credential, error) {
	vals, err := s.client.HGetAll(ctx, s.key()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Credential{}, nil
		}
		return Credential{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return Credential{Token: vals[KeyToken], ExpireAt: vals[KeyExpireAt]}, nil
}

// Set replaces both fields in one transaction so a previous expire_at never
// survives next to a new token.
func (s *RedisStore) Set(ctx context.Context, token string, expireAt time.Time) error {
	if token == "" {
		return ErrEmptyToken
	}
	fields := []interface{}{KeyToken, token}
	if v := FormatExpireAt(expireAt); v != "" {
		fields = append(fields, KeyExpireAt, v)
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key())
		pipe.HSet(ctx, s.key(), fields...)
		pipe.Publish(ctx, s.channel(), string(EventSet))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Clear deletes the hash, which removes token and expire_at together.
func (s *RedisStore) Clear(ctx context.Context) error {
	n, err := s.client.Del(ctx, s.key()).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if n == 0 {
		return nil
	}
	if err := s.client.Publish(ctx, s.channel(), string(EventClear)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Subscribe listens on the visitor's channel until cancel is called. When
// redis cannot be reached no events are delivered.
func (s *RedisStore) Subscribe(fn func(SessionEvent)) func() {
	ctx, stop := context.WithCancel(context.Background())
	pubsub := s.client.Subscribe(ctx, s.channel())

	// wait for the subscription to be confirmed so no event published right
	// after Subscribe returns is lost
	waitCtx, cancelWait := context.WithTimeout(ctx, 3*time.Second)
	_, err := pubsub.Receive(waitCtx)
	cancelWait()
	if err != nil {
		stop()
		_ = pubsub.Close()
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fn(SessionEvent{Kind: SessionEventKind(msg.Payload)})
			}
		}
	}()

	return func() {
		stop()
		_ = pubsub.Close()
		<-done
	}
}

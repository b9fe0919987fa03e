package core

import (
	"fmt"

	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
)

// NewCookieCodec builds the gorilla cookie store shared by the credential
// cookie, the visitor cookie and CSRF.
func NewCookieCodec(cfg Config) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(cfg.SessionKey))
	store.MaxAge(cfg.SessionMaxAge)
	return store
}

// NewStoreProvider selects the session backend named by cfg.SessionBackend.
// redisClient is only needed for the redis backend.
func NewStoreProvider(cfg Config, cookies *sessions.CookieStore, redisClient redis.UniversalClient) (StoreProvider, error) {
	switch cfg.SessionBackend {
	case BackendCookie, "":
		return NewCookieBackend(cfg, cookies), nil
	case BackendMemory:
		return NewMemoryBackend(NewVisitorIdentity(cfg, cookies)), nil
	case BackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("session backend %q needs a redis client", cfg.SessionBackend)
		}
		return NewRedisBackend(redisClient, NewVisitorIdentity(cfg, cookies)), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}

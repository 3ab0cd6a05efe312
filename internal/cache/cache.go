package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/networth/tracker/internal/domain/user"
	"github.com/networth/tracker/internal/observability"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned on a cache miss; absence is not a failure.
var ErrMiss = errors.New("cache miss")

type Config struct {
	Addr     string
	Password string
	DB       int
}

// Cache is a redis-backed read-through cache for user snapshots plus a
// session-token existence index. User snapshots live under
// user:email:<email>; issued tokens under session:<token>.
type Cache struct {
	redisdb *redis.Client
	ttl     time.Duration
	prom    *observability.Prom
}

func New(cfg Config, ttl time.Duration, prom *observability.Prom) *Cache {
	redisdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	return &Cache{redisdb: redisdb, ttl: ttl, prom: prom}
}

// NewWithClient wires an existing client (tests use miniredis here).
func NewWithClient(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{redisdb: rdb, ttl: ttl}
}

func (c *Cache) observe(kind, result string) {
	if c.prom != nil {
		c.prom.ObserveCacheLookup(kind, result)
	}
}

// userSnapshot is the cached projection of a user row. The password
// hash travels inside the cache only; the API-facing entity never
// marshals it.
type userSnapshot struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func userKey(email string) string {
	return "user:email:" + email
}

func sessionKey(token string) string {
	return "session:" + token
}

// GetUserByEmail looks up a cached snapshot. Misses return ErrMiss.
func (c *Cache) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	raw, err := c.redisdb.Get(ctx, userKey(email)).Bytes()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.observe("user", "miss")
			return user.User{}, ErrMiss
		}

		c.observe("user", "error")
		return user.User{}, err
	}

	var snap userSnapshot

	if err := json.Unmarshal(raw, &snap); err != nil {
		// corrupt entry; treat as a miss so the store is consulted
		c.observe("user", "miss")
		return user.User{}, ErrMiss
	}

	c.observe("user", "hit")

	return user.User{
		ID:           snap.ID,
		Email:        snap.Email,
		PasswordHash: snap.PasswordHash,
		Name:         snap.Name,
		CreatedAt:    snap.CreatedAt,
		UpdatedAt:    snap.UpdatedAt,
	}, nil
}

// SaveUser upserts the snapshot for its email key. Last writer wins.
func (c *Cache) SaveUser(ctx context.Context, u user.User) error {
	snap := userSnapshot{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}

	raw, err := json.Marshal(snap)

	if err != nil {
		return err
	}

	return c.redisdb.Set(ctx, userKey(u.Email), raw, c.ttl).Err()
}

// PutSession records an issued token so validate-token can see it.
// TTL matches the token lifetime, so the entry and the token expire
// together.
func (c *Cache) PutSession(ctx context.Context, token string, ttl time.Duration) error {
	return c.redisdb.Set(ctx, sessionKey(token), "1", ttl).Err()
}

// SessionExists reports whether the token was issued by this system
// and has not yet expired out of the session namespace.
func (c *Cache) SessionExists(ctx context.Context, token string) (bool, error) {
	n, err := c.redisdb.Exists(ctx, sessionKey(token)).Result()

	if err != nil {
		c.observe("session", "error")
		return false, err
	}

	if n > 0 {
		c.observe("session", "hit")
	} else {
		c.observe("session", "miss")
	}

	return n > 0, nil
}

// Raw exposes the redis client for collaborators that share the
// connection (the rate limiter).
func (c *Cache) Raw() *redis.Client {
	return c.redisdb
}

// Ping checks redis connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.redisdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *Cache) Close() error {
	return c.redisdb.Close()
}

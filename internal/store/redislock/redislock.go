package redislock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/booking"
)

const (
	defaultPrefix = "travelbook:attempt:"
	// DefaultTTL outlives the default finality timeout for all three calls.
	DefaultTTL = 10 * time.Minute
)

var errEmptyAttemptID = errors.New("attempt id is required")

// releaseScript deletes the key only while it still names the releasing attempt.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Guard implements booking.AttemptGuard with Redis SET NX.
type Guard struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ booking.AttemptGuard = (*Guard)(nil)

// Option configures a Guard.
type Option func(*Guard)

// WithTTL bounds how long an abandoned lock blocks the account.
func WithTTL(ttl time.Duration) Option {
	return func(guard *Guard) {
		if ttl > 0 {
			guard.ttl = ttl
		}
	}
}

// WithPrefix namespaces the lock keys.
func WithPrefix(prefix string) Option {
	return func(guard *Guard) {
		if strings.TrimSpace(prefix) != "" {
			guard.prefix = prefix
		}
	}
}

// New creates a Redis-backed attempt guard.
func New(client goredis.UniversalClient, options ...Option) *Guard {
	guard := &Guard{client: client, prefix: defaultPrefix, ttl: DefaultTTL}
	for _, option := range options {
		if option != nil {
			option(guard)
		}
	}
	return guard
}

// NewClient creates a Redis client and verifies connectivity.
func NewClient(ctx context.Context, addr string, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

// Acquire claims account for attemptID. A second claim fails with
// booking.ErrAttemptInFlight until the first is released or expires.
func (guard *Guard) Acquire(ctx context.Context, account booking.Address, attemptID string) (func(context.Context) error, error) {
	if strings.TrimSpace(attemptID) == "" {
		return nil, errEmptyAttemptID
	}
	key := guard.key(account)
	result, err := guard.client.SetArgs(ctx, key, attemptID, goredis.SetArgs{
		Mode: "NX",
		TTL:  guard.ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("%w: account %s", booking.ErrAttemptInFlight, account)
		}
		return nil, fmt.Errorf("redis attempt acquire: %w", err)
	}
	if result != "OK" {
		return nil, fmt.Errorf("%w: account %s", booking.ErrAttemptInFlight, account)
	}
	release := func(releaseCtx context.Context) error {
		if err := releaseScript.Run(releaseCtx, guard.client, []string{key}, attemptID).Err(); err != nil && !errors.Is(err, goredis.Nil) {
			return fmt.Errorf("redis attempt release: %w", err)
		}
		return nil
	}
	return release, nil
}

// Holder returns the attempt currently holding account, if any.
func (guard *Guard) Holder(ctx context.Context, account booking.Address) (string, bool, error) {
	value, err := guard.client.Get(ctx, guard.key(account)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis attempt holder: %w", err)
	}
	return value, true, nil
}

func (guard *Guard) key(account booking.Address) string {
	return guard.prefix + strings.ToLower(account.String())
}

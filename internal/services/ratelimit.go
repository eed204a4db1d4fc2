package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/huangang/taskflow/internal/config"
	"github.com/huangang/taskflow/internal/models"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WindowState is the counter of one (identifier, endpoint) window.
type WindowState struct {
	Count       int
	WindowStart time.Time
}

// WindowStore keeps fixed-window counters. Hit must count the request
// atomically per key: concurrent hits on one key never undercount.
type WindowStore interface {
	// Hit counts one request at now, starting a new window when none exists
	// or the current one is at least window old.
	Hit(ctx context.Context, identifier, endpoint string, now time.Time, window time.Duration) (WindowState, error)
	// Peek returns the current window without counting.
	Peek(ctx context.Context, identifier, endpoint string, now time.Time, window time.Duration) (WindowState, bool, error)
}

// GormWindowStore keeps one rate_limit_windows row per key, updated in place.
type GormWindowStore struct {
	db *gorm.DB
}

func NewGormWindowStore(db *gorm.DB) *GormWindowStore {
	return &GormWindowStore{db: db}
}

func (s *GormWindowStore) Hit(ctx context.Context, identifier, endpoint string, now time.Time, window time.Duration) (WindowState, error) {
	var state WindowState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// expired window: start over
		res := tx.Model(&models.RateLimitWindow{}).
			Where("identifier = ? AND endpoint = ? AND window_start <= ?", identifier, endpoint, now.Add(-window)).
			Updates(map[string]interface{}{"request_count": 1, "window_start": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			state = WindowState{Count: 1, WindowStart: now}
			return nil
		}

		incremented, err := increment(tx, identifier, endpoint)
		if err != nil {
			return err
		}
		if !incremented {
			row := models.RateLimitWindow{Identifier: identifier, Endpoint: endpoint, RequestCount: 1, WindowStart: now}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				state = WindowState{Count: 1, WindowStart: now}
				return nil
			}
			// lost the insert race; the row exists now
			if _, err := increment(tx, identifier, endpoint); err != nil {
				return err
			}
		}

		var row models.RateLimitWindow
		if err := tx.Where("identifier = ? AND endpoint = ?", identifier, endpoint).Take(&row).Error; err != nil {
			return err
		}
		state = WindowState{Count: row.RequestCount, WindowStart: row.WindowStart}
		return nil
	})
	return state, err
}

func increment(tx *gorm.DB, identifier, endpoint string) (bool, error) {
	res := tx.Model(&models.RateLimitWindow{}).
		Where("identifier = ? AND endpoint = ?", identifier, endpoint).
		UpdateColumn("request_count", gorm.Expr("request_count + 1"))
	return res.RowsAffected > 0, res.Error
}

func (s *GormWindowStore) Peek(ctx context.Context, identifier, endpoint string, _ time.Time, _ time.Duration) (WindowState, bool, error) {
	var row models.RateLimitWindow
	err := s.db.WithContext(ctx).Where("identifier = ? AND endpoint = ?", identifier, endpoint).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return WindowState{}, false, nil
	}
	if err != nil {
		return WindowState{}, false, err
	}
	return WindowState{Count: row.RequestCount, WindowStart: row.WindowStart}, true, nil
}

// Sweep deletes windows that started before cutoff.
func (s *GormWindowStore) Sweep(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("window_start < ?", cutoff).Delete(&models.RateLimitWindow{})
	return res.RowsAffected, res.Error
}

// hitScript counts a request and starts the key's expiry on the first one,
// so the key disappears exactly when its window ends.
var hitScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// RedisWindowStore keeps counters as expiring Redis keys. Window expiry
// follows the Redis server clock.
type RedisWindowStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisWindowStore(client redis.UniversalClient) *RedisWindowStore {
	return &RedisWindowStore{client: client, prefix: "taskflow:ratelimit:"}
}

func (s *RedisWindowStore) key(identifier, endpoint string) string {
	return s.prefix + identifier + "|" + endpoint
}

func (s *RedisWindowStore) Hit(ctx context.Context, identifier, endpoint string, now time.Time, window time.Duration) (WindowState, error) {
	res, err := hitScript.Run(ctx, s.client, []string{s.key(identifier, endpoint)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return WindowState{}, err
	}
	if len(res) != 2 {
		return WindowState{}, fmt.Errorf("unexpected rate limit script reply: %v", res)
	}
	return WindowState{Count: int(res[0]), WindowStart: windowStart(now, window, res[1])}, nil
}

func (s *RedisWindowStore) Peek(ctx context.Context, identifier, endpoint string, now time.Time, window time.Duration) (WindowState, bool, error) {
	key := s.key(identifier, endpoint)
	count, err := s.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return WindowState{}, false, nil
	}
	if err != nil {
		return WindowState{}, false, err
	}
	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return WindowState{}, false, err
	}
	return WindowState{Count: count, WindowStart: windowStart(now, window, ttl.Milliseconds())}, true, nil
}

func windowStart(now time.Time, window time.Duration, pttlMillis int64) time.Time {
	if pttlMillis < 0 {
		return now
	}
	remaining := time.Duration(pttlMillis) * time.Millisecond
	return now.Add(remaining - window)
}

// RateDecision is the outcome of one Check.
type RateDecision struct {
	Allowed bool
	Count   int
	Limit   int
	ResetAt time.Time
}

// RetryAfter is the time left until the window resets.
func (d RateDecision) RetryAfter(now time.Time) time.Duration {
	if wait := d.ResetAt.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// RateLimiter admits requests per (identifier, endpoint) with fixed windows.
// Bursts of up to twice the limit can pass across a window boundary.
type RateLimiter struct {
	store WindowStore
	clock Clock
	cfg   config.RateLimitConfig
}

func NewRateLimiter(store WindowStore, clock Clock, cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{store: store, clock: clock, cfg: cfg}
}

// Now is the limiter's notion of the current time.
func (l *RateLimiter) Now() time.Time {
	return l.clock.Now()
}

// Check counts one request and reports whether it is admitted. Store
// failures are reported as ErrUnavailable.
func (l *RateLimiter) Check(ctx context.Context, identifier, endpoint string) (RateDecision, error) {
	window, max := l.cfg.LimitFor(endpoint)
	now := l.clock.Now()
	state, err := l.store.Hit(ctx, identifier, endpoint, now, window)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return RateDecision{}, err
		}
		return RateDecision{}, fmt.Errorf("%w: rate limit store: %w", ErrUnavailable, err)
	}
	return RateDecision{
		Allowed: state.Count <= max,
		Count:   state.Count,
		Limit:   max,
		ResetAt: state.WindowStart.Add(window),
	}, nil
}

// Allow counts one request and reports whether it is admitted.
func (l *RateLimiter) Allow(ctx context.Context, identifier, endpoint string) (bool, error) {
	d, err := l.Check(ctx, identifier, endpoint)
	return d.Allowed, err
}

// RateStatus describes a key's current window without counting a request.
type RateStatus struct {
	Endpoint  string    `json:"endpoint"`
	Count     int       `json:"count"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at,omitempty"`
}

func (l *RateLimiter) Status(ctx context.Context, identifier, endpoint string) (*RateStatus, error) {
	window, max := l.cfg.LimitFor(endpoint)
	status := &RateStatus{Endpoint: endpoint, Limit: max, Remaining: max}

	now := l.clock.Now()
	state, ok, err := l.store.Peek(ctx, identifier, endpoint, now, window)
	if err != nil {
		return nil, fmt.Errorf("%w: rate limit store: %w", ErrUnavailable, err)
	}
	if !ok {
		return status, nil
	}
	resetAt := state.WindowStart.Add(window)
	if !resetAt.After(now) {
		return status, nil
	}
	status.Count = state.Count
	status.ResetAt = resetAt
	if state.Count < max {
		status.Remaining = max - state.Count
	} else {
		status.Remaining = 0
	}
	return status, nil
}

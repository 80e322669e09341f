// Package cache implements the keyed, per-class-TTL CacheLayer of §4.2,
// generalized from backend/internal/cache/query_cache.go's QueryCache
// (sha256 cache keys, gzip-compressed JSON values, pattern invalidation)
// from a single default-TTL query cache into a fixed TTL-class table. One
// Layer type serves every caller; there are no separate typed views.
package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrMiss is returned by Get on a cache miss; callers must treat it the
// same as any other cache failure — degrade to a miss, never propagate.
var ErrMiss = errors.New("cache: miss")

// Class names the fixed TTL buckets from §4.2.
type Class string

const (
	ClassFunnelConfig      Class = "funnelConfig"
	ClassFunnelList        Class = "funnelList"
	ClassConversionMetrics Class = "conversionMetrics"
	ClassDailyMetrics      Class = "dailyMetrics"
	ClassLiveMetrics       Class = "liveMetrics"
	ClassUserState         Class = "userState"
	ClassCohortAnalysis    Class = "cohortAnalysis"
	ClassPathAnalysis      Class = "pathAnalysis"
)

var classTTL = map[Class]time.Duration{
	ClassFunnelConfig:      5 * time.Minute,
	ClassFunnelList:        2 * time.Minute,
	ClassConversionMetrics: 15 * time.Minute,
	ClassDailyMetrics:      time.Hour,
	ClassLiveMetrics:       30 * time.Second,
	ClassUserState:         time.Minute,
	ClassCohortAnalysis:    time.Hour,
	ClassPathAnalysis:      30 * time.Minute,
}

// TTLFor returns the fixed TTL for class, used by callers to keep a
// response's cache_duration_seconds accurate.
func TTLFor(class Class) time.Duration { return classTTL[class] }

// Layer is a Redis-backed keyed store with per-class TTL. Reads/writes are
// safe for concurrent use; Redis itself serializes access, so no local
// lock is required on top of it (contrast with RealtimeStateTracker's
// in-process active-funnel cache, which does need one).
type Layer struct {
	rdb        *redis.Client
	logger     *zap.Logger
	compress   bool
}

func New(rdb *redis.Client, logger *zap.Logger) *Layer {
	return &Layer{rdb: rdb, logger: logger, compress: true}
}

// KeyFor builds the deterministic key described in §4.2: a category prefix
// followed by sorted (k,v) pairs, e.g. "funnel:config:funnelId=1:tenantId=2".
func KeyFor(category string, params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(category)
	for _, k := range keys {
		fmt.Fprintf(&b, ":%s=%v", k, params[k])
	}
	return b.String()
}

// hashKey keeps very long keys (e.g. comparisons over many funnel IDs)
// bounded, the same way QueryCache.CacheKey sha256-hashes its query+params.
func hashKey(key string) string {
	if len(key) <= 200 {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	return key[:100] + ":" + hex.EncodeToString(sum[:])
}

// Get returns a previously Set value decoded as type T. Any Redis error,
// including a genuine miss, degrades to ErrMiss per §7's cache-failure
// policy ("cache failures degrade gracefully, treated as miss").
func Get[T any](ctx context.Context, l *Layer, key string) (T, error) {
	var zero T
	raw, err := l.rdb.Get(ctx, hashKey(key)).Bytes()
	if err != nil {
		if l.logger != nil && !errors.Is(err, redis.Nil) {
			l.logger.Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
		}
		return zero, ErrMiss
	}
	plain, err := decompress(raw)
	if err != nil {
		return zero, ErrMiss
	}
	var out T
	if err := json.Unmarshal(plain, &out); err != nil {
		return zero, ErrMiss
	}
	return out, nil
}

// Set stores value under key with the given TTL. Write failures are
// logged and swallowed — a cache write is never load-bearing.
func (l *Layer) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	compressed, err := compress(raw)
	if err != nil {
		compressed = raw
	}
	if err := l.rdb.Set(ctx, hashKey(key), compressed, ttl).Err(); err != nil && l.logger != nil {
		l.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// SetClass is Set using the fixed TTL for class.
func (l *Layer) SetClass(ctx context.Context, class Class, key string, value any) {
	l.Set(ctx, key, value, TTLFor(class))
}

// GetClass is Get parameterized over a TTL class for symmetry with SetClass.
func GetClass[T any](ctx context.Context, l *Layer, class Class, key string) (T, error) {
	return Get[T](ctx, l, key)
}

func (l *Layer) Delete(ctx context.Context, key string) {
	l.rdb.Del(ctx, hashKey(key))
}

// InvalidatePattern deletes every key matching a glob pattern via SCAN,
// mirroring QueryCache.InvalidatePattern's cursor-based scan (never KEYS,
// which blocks the whole server on a large keyspace).
func (l *Layer) InvalidatePattern(ctx context.Context, pattern string) int {
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := l.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			if l.logger != nil {
				l.logger.Warn("cache scan failed", zap.String("pattern", pattern), zap.Error(err))
			}
			return deleted
		}
		if len(keys) > 0 {
			deleted += int(l.rdb.Del(ctx, keys...).Val())
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted
}

// InvalidateFunnel deletes the per-funnel config/conversion/live patterns
// plus the workspace-wide funnel list, exactly as §4.2 specifies.
func (l *Layer) InvalidateFunnel(ctx context.Context, funnelID, tenantID, workspaceID int64) {
	for _, category := range []string{"funnel:config", "funnel:conversion", "funnel:live"} {
		pattern := fmt.Sprintf("%s:funnelId=%d:tenantId=%d:workspaceId=%d*", category, funnelID, tenantID, workspaceID)
		l.InvalidatePattern(ctx, pattern)
	}
	l.InvalidatePattern(ctx, fmt.Sprintf("funnel:list:tenantId=%d:workspaceId=%d*", tenantID, workspaceID))
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

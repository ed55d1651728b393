// Package cache is the Redis-backed fingerprint cache and rate limiter shared
// by concurrent runs. Every operation fails open: a missing client or a Redis
// error reads as a miss and never blocks the workflow.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pushkal/server/internal/analysis/model"
	logx "github.com/pushkal/server/pkg/logger"
)

const scanCount = 100

type Cache struct {
	rdb redis.Cmdable
	cfg model.CacheConfig
}

// New wraps rdb. A nil rdb yields a disabled cache that misses on every read.
func New(rdb redis.Cmdable, cfg model.CacheConfig) *Cache {
	return &Cache{rdb: rdb, cfg: cfg}
}

func (c *Cache) Connected() bool {
	return c != nil && c.rdb != nil
}

// ================ Core operations ================

// Get decodes the JSON value at key into dst and reports whether it was found.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	if !c.Connected() {
		return false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logx.Warn().Err(err).Str("key", key).Msg("cache get failed")
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logx.Warn().Err(err).Str("key", key).Msg("cache value undecodable")
		return false
	}
	return true
}

// Set stores value as JSON with ttl; a non-positive ttl uses the default TTL.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if !c.Connected() {
		return false
	}
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	b, err := json.Marshal(value)
	if err != nil {
		logx.Warn().Err(err).Str("key", key).Msg("cache value unencodable")
		return false
	}
	if err := c.rdb.SetEx(ctx, key, b, ttl).Err(); err != nil {
		logx.Warn().Err(err).Str("key", key).Msg("cache set failed")
		return false
	}
	return true
}

func (c *Cache) Delete(ctx context.Context, key string) bool {
	if !c.Connected() {
		return false
	}
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		logx.Warn().Err(err).Str("key", key).Msg("cache delete failed")
		return false
	}
	return true
}

// DeletePattern removes every key matching a glob pattern and returns how
// many were deleted.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) int {
	if !c.Connected() {
		return 0
	}
	var keys []string
	iter := c.rdb.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logx.Warn().Err(err).Str("pattern", pattern).Msg("cache scan failed")
		return 0
	}
	if len(keys) == 0 {
		return 0
	}
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		logx.Warn().Err(err).Str("pattern", pattern).Msg("cache delete pattern failed")
		return 0
	}
	return int(n)
}

// ================ File metadata ================

func fileKey(sessionID string, fileID int64) string {
	return fmt.Sprintf("file:%s:%d", sessionID, fileID)
}

func sessionFilesKey(sessionID string) string {
	return "files:" + sessionID
}

func (c *Cache) GetFileMetadata(ctx context.Context, sessionID string, fileID int64) (*model.FileInfo, bool) {
	var fi model.FileInfo
	if !c.Get(ctx, fileKey(sessionID, fileID), &fi) {
		return nil, false
	}
	return &fi, true
}

func (c *Cache) SetFileMetadata(ctx context.Context, sessionID string, fi model.FileInfo) bool {
	return c.Set(ctx, fileKey(sessionID, fi.ID), fi, c.cfg.FileMetadataTTL)
}

func (c *Cache) GetSessionFiles(ctx context.Context, sessionID string) ([]model.FileInfo, bool) {
	var files []model.FileInfo
	if !c.Get(ctx, sessionFilesKey(sessionID), &files) {
		return nil, false
	}
	return files, true
}

func (c *Cache) SetSessionFiles(ctx context.Context, sessionID string, files []model.FileInfo) bool {
	return c.Set(ctx, sessionFilesKey(sessionID), files, c.cfg.FileMetadataTTL)
}

// InvalidateSessionFiles drops the per-file and file-list entries of a session.
func (c *Cache) InvalidateSessionFiles(ctx context.Context, sessionID string) int {
	n := c.DeletePattern(ctx, fmt.Sprintf("file:%s:*", globEscape(sessionID)))
	if !c.Connected() {
		return n
	}
	key := sessionFilesKey(sessionID)
	deleted, err := c.rdb.Del(ctx, key).Result()
	if err != nil {
		logx.Warn().Err(err).Str("key", key).Msg("cache delete failed")
		return n
	}
	return n + int(deleted)
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// globEscape quotes the glob metacharacters of s for SCAN MATCH.
func globEscape(s string) string {
	return globEscaper.Replace(s)
}

// ================ Analysis results ================

// Fingerprint hashes the trimmed query with the sorted file keys, so the
// order files are supplied in does not matter.
func Fingerprint(query string, fileKeys []string) string {
	sorted := append([]string(nil), fileKeys...)
	sort.Strings(sorted)

	d := xxhash.New()
	_, _ = d.WriteString(strings.TrimSpace(query))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strings.Join(sorted, "\x1f"))
	return fmt.Sprintf("%016x", d.Sum64())
}

func analysisKey(sessionID, fingerprint string) string {
	return fmt.Sprintf("analysis:%s:%s", sessionID, fingerprint)
}

func (c *Cache) GetAnalysisResult(ctx context.Context, sessionID, query string, fileKeys []string) (*model.TerminalState, bool) {
	fp := Fingerprint(query, fileKeys)
	var st model.TerminalState
	if !c.Get(ctx, analysisKey(sessionID, fp), &st) {
		return nil, false
	}
	logx.Info().Str("session_id", sessionID).Str("fingerprint", fp).Msg("analysis cache hit")
	return &st, true
}

func (c *Cache) SetAnalysisResult(ctx context.Context, sessionID, query string, fileKeys []string, st *model.TerminalState) bool {
	fp := Fingerprint(query, fileKeys)
	ok := c.Set(ctx, analysisKey(sessionID, fp), st, c.cfg.AnalysisResultTTL)
	if ok {
		logx.Info().Str("session_id", sessionID).Str("fingerprint", fp).Msg("analysis cached")
	}
	return ok
}

// InvalidateSession drops file metadata and cached analyses of a session,
// used when its file set changes.
func (c *Cache) InvalidateSession(ctx context.Context, sessionID string) int {
	n := c.InvalidateSessionFiles(ctx, sessionID)
	n += c.DeletePattern(ctx, analysisKey(globEscape(sessionID), "*"))
	return n
}

var _ model.ResultCache = (*Cache)(nil)

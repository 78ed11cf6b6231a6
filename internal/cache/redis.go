// Package cache はRedisを使用したタスクの読み取りキャッシュを提供する。
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/task"
)

const (
	keyPrefix     = "taskman:task:"
	versionPrefix = "taskman:taskver:"

	// versionGrace は世代キーをエントリより長く保持する時間。共有読み込みの上限時間より十分長くする。
	versionGrace = time.Hour
)

// setIfVersionScript は世代キーの値がARGV[2]と一致する場合のみエントリを格納する。
// 世代キーが存在しない場合は0として扱う。
var setIfVersionScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[2]) or '0')
if current ~= tonumber(ARGV[2]) then
  return 0
end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// invalidateScript は世代を進めてからエントリを削除する。
var invalidateScript = redis.NewScript(`
local version = redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[2], ARGV[1])
redis.call('DEL', KEYS[1])
return version
`)

// NewRedisClient はredis://形式のURLからクライアントを生成し、疎通を確認する。
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// cachedTask はRedisに格納するタスクのJSON表現。
type cachedTask struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RedisTaskCache はtask.CacheのRedis実装。
// キーは taskman:task:{ownerID}:{taskID} とし、所有者が異なる参照ではヒットしない。
// 世代は taskman:taskver:{ownerID}:{taskID} に保持する。
type RedisTaskCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisTaskCache はRedisTaskCacheを生成する。
func NewRedisTaskCache(client redis.Cmdable, ttl time.Duration) *RedisTaskCache {
	return &RedisTaskCache{
		client: client,
		ttl:    ttl,
	}
}

// Key はタスクのキャッシュキーを返す。
func Key(ownerID, taskID string) string {
	return keyPrefix + ownerID + ":" + taskID
}

// VersionKey はタスクの世代キーを返す。
func VersionKey(ownerID, taskID string) string {
	return versionPrefix + ownerID + ":" + taskID
}

// Get はキャッシュ済みのタスクを返す。
func (c *RedisTaskCache) Get(ctx context.Context, ownerID, taskID string) (*model.Task, bool, error) {
	data, err := c.client.Get(ctx, Key(ownerID, taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get error: %w", err)
	}

	var ct cachedTask
	if err := json.Unmarshal(data, &ct); err != nil {
		return nil, false, fmt.Errorf("cache unmarshal error: %w", err)
	}
	// キーと中身の所有者が食い違うエントリは使わない
	if ct.UserID != ownerID {
		return nil, false, nil
	}

	return &model.Task{
		ID:          ct.ID,
		Title:       ct.Title,
		Description: ct.Description,
		Status:      model.TaskStatus(ct.Status),
		UserID:      ct.UserID,
		CreatedAt:   ct.CreatedAt,
		UpdatedAt:   ct.UpdatedAt,
	}, true, nil
}

// Version はタスクの現在の世代を返す。
func (c *RedisTaskCache) Version(ctx context.Context, ownerID, taskID string) (int64, error) {
	v, err := c.client.Get(ctx, VersionKey(ownerID, taskID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache version error: %w", err)
	}
	return v, nil
}

// SetIfVersion は世代がversionのままの場合に限りタスクをTTL付きで格納する。
func (c *RedisTaskCache) SetIfVersion(ctx context.Context, t *model.Task, version int64) (bool, error) {
	data, err := json.Marshal(cachedTask{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		UserID:      t.UserID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	})
	if err != nil {
		return false, fmt.Errorf("cache marshal error: %w", err)
	}

	stored, err := setIfVersionScript.Run(ctx, c.client,
		[]string{Key(t.UserID, t.ID), VersionKey(t.UserID, t.ID)},
		data, version, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("cache set error: %w", err)
	}
	return stored == 1, nil
}

// Invalidate は世代を進め、タスクのエントリを削除する。
func (c *RedisTaskCache) Invalidate(ctx context.Context, ownerID, taskID string) error {
	err := invalidateScript.Run(ctx, c.client,
		[]string{Key(ownerID, taskID), VersionKey(ownerID, taskID)},
		(c.ttl + versionGrace).Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("cache invalidate error: %w", err)
	}
	return nil
}

// compile-time interface check
var _ task.Cache = (*RedisTaskCache)(nil)

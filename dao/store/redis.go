package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"T2V/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisStore 基于 Redis 的任务存储。
// 主记录是 hash，上游ID索引是 string，最近列表是按创建时间打分的 zset。
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore 连接 Redis 并校验连通性
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Create(ctx context.Context, t *models.Task) error {
	images, err := json.Marshal(t.InputImages)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	hk := taskKey(t.TaskID)
	pipe.HSet(ctx, hk, map[string]interface{}{
		"task_id":          t.TaskID,
		"provider_task_id": t.ProviderTaskID,
		"mode":             t.Mode,
		"prompt":           t.Prompt,
		"input_images":     string(images),
		"duration":         t.Duration,
		"aspect_ratio":     t.AspectRatio,
		"status":           t.Status,
		"progress":         t.Progress,
		"origin_video_url": t.OriginVideoURL,
		"local_video_url":  t.LocalVideoURL,
		"error":            t.Error,
		"created_at":       t.CreatedAt,
	})
	pipe.Expire(ctx, hk, s.ttl)
	pipe.Set(ctx, providerKey(t.ProviderTaskID), t.TaskID, s.ttl)
	pipe.ZAdd(ctx, recentKey, &redis.Z{
		Score:  float64(t.CreatedAt),
		Member: t.TaskID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Get(ctx context.Context, taskID string) (*models.Task, error) {
	res, err := s.client.HGetAll(ctx, taskKey(taskID)).Result()
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, models.ErrTaskNotFound
	}
	return taskFromHash(taskID, res), nil
}

func (s *RedisStore) ResolveProviderID(ctx context.Context, providerTaskID string) (string, error) {
	id, err := s.client.Get(ctx, providerKey(providerTaskID)).Result()
	if err == redis.Nil {
		return "", models.ErrTaskNotFound
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// applyStatusScript 原子比较/更新：终态不可覆盖，写入同时刷新主记录
// 和上游ID索引的TTL。返回 1 表示写入生效，0 表示任务不存在或已是终态。
var applyStatusScript = redis.NewScript(`
local old = redis.call('HGET', KEYS[1], 'status')
if not old then
	return 0
end
if old == 'success' or old == 'fail' then
	return 0
end
if ARGV[1] ~= '' then
	redis.call('HSET', KEYS[1], 'status', ARGV[1])
end
if ARGV[2] ~= '-1' then
	redis.call('HSET', KEYS[1], 'progress', ARGV[2])
end
if ARGV[3] ~= '' then
	redis.call('HSET', KEYS[1], 'origin_video_url', ARGV[3])
end
if ARGV[4] ~= '' then
	redis.call('HSET', KEYS[1], 'error', ARGV[4])
end
redis.call('PEXPIRE', KEYS[1], ARGV[5])
local pid = redis.call('HGET', KEYS[1], 'provider_task_id')
if pid and pid ~= '' then
	redis.call('PEXPIRE', 'video:provider:'..pid, ARGV[5])
end
return 1
`)

func (s *RedisStore) ApplyStatus(ctx context.Context, taskID string, upd StatusUpdate) (bool, error) {
	res, err := applyStatusScript.Run(ctx, s.client,
		[]string{taskKey(taskID)},
		upd.Status,
		strconv.Itoa(upd.Progress),
		upd.OriginVideoURL,
		upd.Error,
		s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *RedisStore) SetLocalVideo(ctx context.Context, taskID, localURL string) error {
	// 转存成功，清掉之前重试失败留下的软错误
	return s.setFields(ctx, taskID, map[string]interface{}{
		"local_video_url": localURL,
		"error":           "",
	})
}

func (s *RedisStore) SetDownloadError(ctx context.Context, taskID, msg string) error {
	return s.setFields(ctx, taskID, map[string]interface{}{"error": msg})
}

func (s *RedisStore) setFields(ctx context.Context, taskID string, fields map[string]interface{}) error {
	hk := taskKey(taskID)
	exists, err := s.client.Exists(ctx, hk).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return models.ErrTaskNotFound
	}
	pid, _ := s.client.HGet(ctx, hk, "provider_task_id").Result()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, hk, fields)
	pipe.Expire(ctx, hk, s.ttl)
	if pid != "" {
		pipe.Expire(ctx, providerKey(pid), s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) ListRecent(ctx context.Context, limit int) ([]*models.Task, error) {
	tasks := make([]*models.Task, 0, limit)
	var dangling []string
	var start int64
	for len(tasks) < limit {
		batch := int64(limit - len(tasks))
		ids, err := s.client.ZRevRange(ctx, recentKey, start, start+batch-1).Result()
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			t, err := s.Get(ctx, id)
			if err == models.ErrTaskNotFound {
				// 主记录已过期。不能在分页中途 ZRem：删除会让
				// 后续条目的 rank 前移，按 rank 翻页就会跳过活任务
				dangling = append(dangling, id)
				continue
			}
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
			if len(tasks) == limit {
				break
			}
		}
		start += int64(len(ids))
	}
	if len(dangling) > 0 {
		members := make([]interface{}, len(dangling))
		for i, id := range dangling {
			members[i] = id
		}
		if err := s.client.ZRem(ctx, recentKey, members...).Err(); err != nil {
			zap.L().Warn("failed to prune dangling recent entries",
				zap.Int("count", len(dangling)), zap.Error(err))
		}
	}
	return tasks, nil
}

func (s *RedisStore) Delete(ctx context.Context, taskID string) error {
	hk := taskKey(taskID)
	pid, err := s.client.HGet(ctx, hk, "provider_task_id").Result()
	if err == redis.Nil {
		return models.ErrTaskNotFound
	}
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, hk)
	if pid != "" {
		pipe.Del(ctx, providerKey(pid))
	}
	pipe.ZRem(ctx, recentKey, taskID)
	_, err = pipe.Exec(ctx)
	return err
}

func taskFromHash(taskID string, res map[string]string) *models.Task {
	t := &models.Task{
		TaskID:         taskID,
		ProviderTaskID: res["provider_task_id"],
		Mode:           res["mode"],
		Prompt:         res["prompt"],
		AspectRatio:    res["aspect_ratio"],
		Status:         res["status"],
		OriginVideoURL: res["origin_video_url"],
		LocalVideoURL:  res["local_video_url"],
		Error:          res["error"],
	}
	if v := res["input_images"]; v != "" {
		_ = json.Unmarshal([]byte(v), &t.InputImages)
	}
	if n, err := strconv.Atoi(res["duration"]); err == nil {
		t.Duration = n
	}
	if n, err := strconv.Atoi(res["progress"]); err == nil {
		t.Progress = n
	}
	if n, err := strconv.ParseInt(res["created_at"], 10, 64); err == nil {
		t.CreatedAt = n
	}
	return t
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/z-wentao/tubenotes/pkg/models"
)

const (
	redisKeyPrefix = "tubenotes:job:"
	redisIndexKey  = "tubenotes:jobs:index"
)

// RedisJobStore keeps recent jobs in Redis with a TTL. A sorted set indexes
// job ids by creation time.
type RedisJobStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisJobStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisJobStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return &RedisJobStore{client: client, ttl: ttl}, nil
}

func jobKey(jobID string) string {
	return redisKeyPrefix + jobID
}

func (rs *RedisJobStore) Save(ctx context.Context, job *models.AnalysisJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.JobID, err)
	}

	_, err = rs.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, jobKey(job.JobID), data, rs.ttl)
		p.ZAdd(ctx, redisIndexKey, redis.Z{
			Score:  float64(job.CreatedAt.UnixMilli()),
			Member: job.JobID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.JobID, err)
	}
	return nil
}

func (rs *RedisJobStore) Get(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	data, err := rs.client.Get(ctx, jobKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}

	var job models.AnalysisJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return &job, nil
}

// Update is read-modify-write without a lock; the worker is the only
// writer once a job is queued.
func (rs *RedisJobStore) Update(ctx context.Context, jobID string, fn func(*models.AnalysisJob)) error {
	job, err := rs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	fn(job)
	return rs.Save(ctx, job)
}

// List returns live jobs newest first and drops expired ids from the index.
func (rs *RedisJobStore) List(ctx context.Context) ([]*models.AnalysisJob, error) {
	ids, err := rs.client.ZRevRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read job index: %w", err)
	}
	if len(ids) == 0 {
		return []*models.AnalysisJob{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKey(id)
	}
	values, err := rs.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read jobs: %w", err)
	}

	jobs := make([]*models.AnalysisJob, 0, len(ids))
	var expired []any
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var job models.AnalysisJob
		if err := json.Unmarshal([]byte(s), &job); err != nil {
			continue
		}
		jobs = append(jobs, &job)
	}
	if len(expired) > 0 {
		rs.client.ZRem(ctx, redisIndexKey, expired...)
	}
	return jobs, nil
}

func (rs *RedisJobStore) Delete(ctx context.Context, jobID string) error {
	n, err := rs.client.Del(ctx, jobKey(jobID)).Result()
	if err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	rs.client.ZRem(ctx, redisIndexKey, jobID)
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return nil
}

func (rs *RedisJobStore) Close() error {
	return rs.client.Close()
}

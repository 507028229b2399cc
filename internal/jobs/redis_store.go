package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dp-pcs/ttv-pipeline/internal/domain"
)

// RedisStore persists jobs as JSON values with a recency index, so records
// survive process restarts and can be shared by multiple instances.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a store on an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ttv"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

// jobKey builds the record key for one job.
func (s *RedisStore) jobKey(id string) string {
	return fmt.Sprintf("%s:job:%s", s.prefix, id)
}

// indexKey is the sorted set scoring jobs by creation time.
func (s *RedisStore) indexKey() string {
	return s.prefix + ":jobs"
}

// Create inserts a new job record and indexes it.
func (s *RedisStore) Create(ctx context.Context, job domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	ok, err := s.client.SetNX(ctx, s.jobKey(job.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("store job %s: %w", job.ID, err)
	}
	if !ok {
		return errors.New("job already exists: " + job.ID)
	}

	return s.client.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(job.CreatedAt.UnixNano()),
		Member: job.ID,
	}).Err()
}

// Get returns one job.
func (s *RedisStore) Get(ctx context.Context, id string) (domain.Job, error) {
	data, err := s.client.Get(ctx, s.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Job{}, ErrNotFound
	}
	if err != nil {
		return domain.Job{}, fmt.Errorf("load job %s: %w", id, err)
	}

	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return domain.Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, nil
}

// List returns a page of jobs, most recent first.
func (s *RedisStore) List(ctx context.Context, limit, offset int) ([]domain.Job, error) {
	start := int64(offset)
	if start < 0 {
		start = 0
	}
	stop := int64(-1)
	if limit > 0 {
		stop = start + int64(limit) - 1
	}

	ids, err := s.client.ZRevRange(ctx, s.indexKey(), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	out := make([]domain.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Record expired between index read and fetch.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

// updateRetries bounds optimistic retries when concurrent writers keep
// dirtying the same record.
const updateRetries = 5

// Update applies mutate inside a WATCH/MULTI transaction. The cancel path
// and the owning worker write the same record concurrently; a key dirtied
// between read and write fails the transaction and the whole
// read-mutate-write runs again against the fresh record.
func (s *RedisStore) Update(ctx context.Context, id string, mutate func(*domain.Job) error) (domain.Job, error) {
	key := s.jobKey(id)
	var out domain.Job

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load job %s: %w", id, err)
		}

		var job domain.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("decode job %s: %w", id, err)
		}
		if err := mutate(&job); err != nil {
			return err
		}
		job.UpdatedAt = s.now().UTC()

		payload, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job %s: %w", id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err != nil {
			return err
		}
		out = job
		return nil
	}

	for attempt := 0; attempt < updateRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.Job{}, err
		}
		return out, nil
	}
	return domain.Job{}, fmt.Errorf("update job %s: retries exhausted under concurrent writes", id)
}

// Delete removes a job record and its index entry.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	removed, err := s.client.Del(ctx, s.jobKey(id)).Result()
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return s.client.ZRem(ctx, s.indexKey(), id).Err()
}

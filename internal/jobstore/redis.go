// internal/jobstore/redis.go
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"insight-workflows/internal/models"
)

const (
	jobKeyPrefix   = "workflow:job:"
	stageSetPrefix = "workflow:jobs:"

	// casRetries bounds optimistic-lock retries under WATCH contention.
	casRetries = 5
)

// RedisStore persists jobs in Redis for operators who want jobs to survive a
// process restart. State transitions use WATCH-based compare-and-set so the
// terminal-state invariants hold under concurrent writers.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration // 0 = keep forever
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func jobKey(requestID string) string {
	return jobKeyPrefix + requestID
}

func stageSetKey(stageType models.StageType) string {
	return stageSetPrefix + string(stageType)
}

func (s *RedisStore) Create(ctx context.Context, stageType models.StageType, input json.RawMessage) (*models.WorkflowJob, error) {
	now := time.Now().UTC()
	job := &models.WorkflowJob{
		RequestID: uuid.New().String(),
		StageType: stageType,
		State:     models.JobQueued,
		Input:     append(json.RawMessage(nil), input...),
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, jobKey(job.RequestID), data, s.ttl)
	pipe.SAdd(ctx, stageSetKey(stageType), job.RequestID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("store job: %w", err)
	}

	return job, nil
}

func (s *RedisStore) Get(ctx context.Context, requestID string) (*models.WorkflowJob, error) {
	data, err := s.client.Get(ctx, jobKey(requestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}

	var job models.WorkflowJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

func (s *RedisStore) Transition(ctx context.Context, requestID string, from, to models.JobState, outcome *Outcome) (*models.WorkflowJob, error) {
	key := jobKey(requestID)
	var updated *models.WorkflowJob

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrNotFound, requestID)
		}
		if err != nil {
			return fmt.Errorf("load job: %w", err)
		}

		var job models.WorkflowJob
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("unmarshal job: %w", err)
		}

		if err := validateTransition(&job, from, to, outcome); err != nil {
			return err
		}

		applyTransition(&job, to, outcome)
		job.UpdatedAt = time.Now().UTC()

		next, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}

		updated = &job
		return nil
	}

	for i := 0; i < casRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("%w: transition retries exhausted for %s", ErrConflict, requestID)
}

func (s *RedisStore) List(ctx context.Context, stageType models.StageType) ([]*models.WorkflowJob, error) {
	var ids []string
	var err error

	if stageType != "" {
		ids, err = s.client.SMembers(ctx, stageSetKey(stageType)).Result()
	} else {
		for _, st := range []models.StageType{models.StageSituationScan, models.StageDeepAnalysis, models.StageSolutionFinding} {
			members, merr := s.client.SMembers(ctx, stageSetKey(st)).Result()
			if merr != nil {
				return nil, fmt.Errorf("list jobs: %w", merr)
			}
			ids = append(ids, members...)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	out := make([]*models.WorkflowJob, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Expired under TTL retention; drop the stale index entry.
			s.client.SRem(ctx, stageSetKey(stageType), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

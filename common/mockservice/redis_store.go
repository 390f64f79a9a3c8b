package mockservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kp-forecasting/forecast-client/common/clients"
	"github.com/kp-forecasting/forecast-client/common/redis"
)

const (
	taskKeyPrefix         = "forecast:task:"
	artifactKeyPrefix     = "forecast:artifact:"
	artifactMetaKeyPrefix = "forecast:artifact-meta:"
)

// RedisStore keeps tasks as hashes and artifacts as plain keys, all expiring after ttl
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store on top of client
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) SaveTask(ctx context.Context, task Task) error {
	return s.client.SetHash(ctx, taskKeyPrefix+task.ID, map[string]string{
		"task_id":          task.ID,
		"product_id":       task.ProductID,
		"file_name":        task.FileName,
		"state":            string(task.State),
		"result_reference": task.ResultReference,
		"error_detail":     task.ErrorDetail,
		"created_at":       task.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":       task.UpdatedAt.Format(time.RFC3339Nano),
	}, s.ttl)
}

func (s *RedisStore) GetTask(ctx context.Context, id string) (Task, error) {
	fields, err := s.client.GetAllHash(ctx, taskKeyPrefix+id)
	if errors.Is(err, redis.ErrKeyNotFound) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}

	state, ok := clients.ParseTaskState(fields["state"])
	if !ok {
		return Task{}, fmt.Errorf("task %s has invalid state %q", id, fields["state"])
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, fields["updated_at"])

	return Task{
		ID:              fields["task_id"],
		ProductID:       fields["product_id"],
		FileName:        fields["file_name"],
		State:           state,
		ResultReference: fields["result_reference"],
		ErrorDetail:     fields["error_detail"],
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}, nil
}

func (s *RedisStore) SaveArtifact(ctx context.Context, ref string, artifact StoredArtifact) error {
	if err := s.client.Set(ctx, artifactKeyPrefix+ref, artifact.Data, s.ttl); err != nil {
		return err
	}
	return s.client.SetHash(ctx, artifactMetaKeyPrefix+ref, map[string]string{
		"file_name":    artifact.FileName,
		"content_type": artifact.ContentType,
	}, s.ttl)
}

func (s *RedisStore) GetArtifact(ctx context.Context, ref string) (StoredArtifact, error) {
	meta, err := s.client.GetAllHash(ctx, artifactMetaKeyPrefix+ref)
	if errors.Is(err, redis.ErrKeyNotFound) {
		return StoredArtifact{}, ErrNotFound
	}
	if err != nil {
		return StoredArtifact{}, err
	}

	data, err := s.client.Get(ctx, artifactKeyPrefix+ref)
	if errors.Is(err, redis.ErrKeyNotFound) {
		return StoredArtifact{}, ErrNotFound
	}
	if err != nil {
		return StoredArtifact{}, err
	}

	return StoredArtifact{
		FileName:    meta["file_name"],
		ContentType: meta["content_type"],
		Data:        data,
	}, nil
}

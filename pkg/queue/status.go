package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const statusKeyPrefix = "task_status:"

// saveAttempts bounds the optimistic retries of Save under contention.
const saveAttempts = 5

// StatusStore keeps task status records in redis with a TTL.
type StatusStore struct {
	redis *redis.Client
	ttl   time.Duration
	// beforeWrite runs between the read and the write of Save; tests use it
	// to interleave writers.
	beforeWrite func()
}

func NewStatusStore(client *redis.Client, ttl time.Duration) *StatusStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &StatusStore{redis: client, ttl: ttl}
}

func statusKey(taskID string) string {
	return statusKeyPrefix + taskID
}

// Save overwrites the record for status.TaskID. Completed and cancelled
// records are final: later saves for the same task are dropped, so a worker
// that was cancelled mid-page cannot overwrite the cancellation. The check
// and the write run under WATCH, and a concurrent change to the record
// restarts them.
func (s *StatusStore) Save(ctx context.Context, status *TaskStatus) error {
	if status == nil || status.TaskID == "" {
		return errors.New("status has no task id")
	}
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	key := statusKey(status.TaskID)
	write := func(tx *redis.Tx) error {
		prev, readErr := readStatus(tx.Get(ctx, key))
		switch {
		case readErr == nil && prev.Final():
			return nil
		case readErr != nil && !errors.Is(readErr, ErrTaskNotFound) && !errors.Is(readErr, errCorruptStatus):
			return readErr
		}
		if s.beforeWrite != nil {
			s.beforeWrite()
		}
		_, txErr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return txErr
	}

	for i := 0; i < saveAttempts; i++ {
		err = s.redis.Watch(ctx, write, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

func (s *StatusStore) Get(ctx context.Context, taskID string) (*TaskStatus, error) {
	status, err := readStatus(s.redis.Get(ctx, statusKey(taskID)))
	if errors.Is(err, ErrTaskNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return status, err
}

var errCorruptStatus = errors.New("corrupt status record")

func readStatus(cmd *redis.StringCmd) (*TaskStatus, error) {
	data, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	var status TaskStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptStatus, err)
	}
	return &status, nil
}

func (s *StatusStore) Delete(ctx context.Context, taskID string) error {
	return s.redis.Del(ctx, statusKey(taskID)).Err()
}

func (s *StatusStore) Close() error {
	return s.redis.Close()
}

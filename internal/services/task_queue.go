package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/huangang/taskflow/internal/config"
	"github.com/huangang/taskflow/internal/models"
	"github.com/huangang/taskflow/pkg/logger"
)

const (
	TaskTypeIndex = "task:index"
)

type IndexOp string

const (
	IndexOpUpsert IndexOp = "upsert"
	IndexOpDelete IndexOp = "delete"
)

// IndexEvent carries what the search collaborator needs to (re)index a task.
type IndexEvent struct {
	Op          IndexOp   `json:"op"`
	TaskID      string    `json:"task_id"`
	ProjectID   string    `json:"project_id"`
	TaskKey     string    `json:"task_key"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func newIndexEvent(op IndexOp, task *models.Task, at time.Time) *IndexEvent {
	event := &IndexEvent{
		Op:         op,
		TaskID:     task.ID,
		ProjectID:  task.ProjectID,
		TaskKey:    task.TaskKey,
		OccurredAt: at,
	}
	if op == IndexOpUpsert {
		event.Title = task.Title
		event.Description = task.Description
	}
	return event
}

// TaskQueue publishes index events after the mutation that produced them
// has committed.
type TaskQueue interface {
	// Enqueue adds an event to the queue
	Enqueue(ctx context.Context, event *IndexEvent) error
	// IsAsync returns true if queue processes events asynchronously
	IsAsync() bool
	// Close gracefully shuts down the queue
	Close() error
}

// Global task queue instance
var (
	globalTaskQueue TaskQueue
	taskQueueOnce   sync.Once
)

// InitTaskQueue initializes the global task queue based on config. Without
// Redis, events are handed to indexer in process.
func InitTaskQueue(cfg *config.Config, indexer Indexer) TaskQueue {
	taskQueueOnce.Do(func() {
		if cfg.Redis.Enabled {
			queue, err := NewAsyncQueue(&cfg.Redis)
			if err == nil {
				logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Redis.Addr)
				globalTaskQueue = queue
				return
			}
			logger.Warn().Err(err).Msg("[TaskQueue] Redis unavailable, falling back to sync mode")
		} else {
			logger.Infof("[TaskQueue] Sync queue initialized (Redis disabled)")
		}
		queue := NewSyncQueue()
		queue.SetProcessor(indexer.Index)
		globalTaskQueue = queue
	})
	return globalTaskQueue
}

// GetTaskQueue returns the global task queue instance
func GetTaskQueue() TaskQueue {
	return globalTaskQueue
}

// AsyncQueue implements TaskQueue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
}

// NewAsyncQueue creates a new Redis-based async queue
func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	client := asynq.NewClient(redisOpt)

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

func (q *AsyncQueue) Enqueue(ctx context.Context, event *IndexEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	t := asynq.NewTask(TaskTypeIndex, payload)
	info, err := q.client.EnqueueContext(ctx, t,
		asynq.Queue("default"),
		asynq.MaxRetry(5),
	)
	if err != nil {
		return err
	}

	logger.Debug().Str("id", info.ID).Str("task_key", event.TaskKey).Msg("[AsyncQueue] index event enqueued")
	return nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue implements TaskQueue with in-process processing (no Redis)
type SyncQueue struct {
	processor func(context.Context, *IndexEvent) error
	wg        sync.WaitGroup
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

// SetProcessor sets the function that handles events
func (q *SyncQueue) SetProcessor(processor func(context.Context, *IndexEvent) error) {
	q.processor = processor
}

// Enqueue hands the event to the processor on its own goroutine so the
// request that produced it does not wait for indexing.
func (q *SyncQueue) Enqueue(_ context.Context, event *IndexEvent) error {
	if q.processor == nil {
		logger.Debug().Str("task_key", event.TaskKey).Msg("[SyncQueue] no processor set, event dropped")
		return nil
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if err := q.processor(context.Background(), event); err != nil {
			logger.Warn().Err(err).Str("task_key", event.TaskKey).Msg("[SyncQueue] event processing failed")
		}
	}()

	return nil
}

func (q *SyncQueue) IsAsync() bool {
	return false
}

// Close waits for in-flight events.
func (q *SyncQueue) Close() error {
	q.wg.Wait()
	return nil
}

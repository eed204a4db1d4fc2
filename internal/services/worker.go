package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/huangang/taskflow/internal/config"
	"github.com/huangang/taskflow/pkg/logger"
)

// Indexer is the search collaborator that consumes index events.
type Indexer interface {
	Index(ctx context.Context, event *IndexEvent) error
}

// LogIndexer records events in the log; it stands in when no search backend
// is configured.
type LogIndexer struct{}

func (LogIndexer) Index(_ context.Context, event *IndexEvent) error {
	logger.Info().
		Str("op", string(event.Op)).
		Str("task_id", event.TaskID).
		Str("task_key", event.TaskKey).
		Msg("[Indexer] task indexed")
	return nil
}

// Worker processes index events from the Redis queue
type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	indexer Indexer
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewWorker returns nil when Redis is disabled.
func NewWorker(cfg *config.RedisConfig, indexer Indexer) *Worker {
	if !cfg.Enabled {
		return nil
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Warn().Err(err).Str("type", task.Type()).Msg("[Worker] task failed")
			}),
			Logger: workerLogger{},
		},
	)

	return &Worker{
		server:  server,
		mux:     asynq.NewServeMux(),
		indexer: indexer,
	}
}

// Start begins processing events
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.mux.HandleFunc(TaskTypeIndex, w.handleIndexTask)

	w.running = true
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		logger.Infof("[Worker] Starting async worker...")
		if err := w.server.Run(w.mux); err != nil {
			logger.Errorf("[Worker] Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	logger.Infof("[Worker] Shutting down...")
	w.server.Shutdown()
	w.running = false
	w.wg.Wait()
	logger.Infof("[Worker] Shutdown complete")
}

func (w *Worker) handleIndexTask(ctx context.Context, t *asynq.Task) error {
	var event IndexEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		logger.Warn().Err(err).Msg("[Worker] dropping malformed index event")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return w.indexer.Index(ctx, &event)
}

// workerLogger routes asynq's internal logging through zerolog.
type workerLogger struct{}

func (workerLogger) Debug(args ...interface{}) { logger.Debug().Msg("[asynq] " + fmt.Sprint(args...)) }
func (workerLogger) Info(args ...interface{})  { logger.Info().Msg("[asynq] " + fmt.Sprint(args...)) }
func (workerLogger) Warn(args ...interface{})  { logger.Warn().Msg("[asynq] " + fmt.Sprint(args...)) }
func (workerLogger) Error(args ...interface{}) { logger.Error().Msg("[asynq] " + fmt.Sprint(args...)) }
func (workerLogger) Fatal(args ...interface{}) { logger.Fatal().Msg("[asynq] " + fmt.Sprint(args...)) }

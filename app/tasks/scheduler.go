package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const maxRetryDelay = 30 * time.Second

var ErrQueueFull = errors.New("task queue is full")

// Scheduler enqueues a fresh task every interval and executes queued tasks
// on a single worker, so runs never overlap within the process.
type Scheduler struct {
	newTask   func() TaskInterface
	interval  time.Duration
	baseDelay time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	taskQueue chan TaskInterface
}

func NewScheduler(newTask func() TaskInterface, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		newTask:   newTask,
		interval:  interval,
		baseDelay: time.Second,
		ctx:       ctx,
		cancel:    cancel,
		taskQueue: make(chan TaskInterface, 10),
	}
}

// Start runs a task immediately and then once per interval. A non-positive
// interval disables scheduling.
func (s *Scheduler) Start() {
	if s.interval <= 0 {
		zap.L().Info("Scheduler disabled")
		return
	}

	s.wg.Add(1)
	go s.worker()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueue()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueue()
			}
		}
	}()

	zap.L().Info("Scheduler started", zap.Duration("interval", s.interval))
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (s *Scheduler) enqueue() {
	if err := s.EnqueueTask(s.newTask()); err != nil {
		zap.L().Warn("Failed to enqueue task", zap.Error(err))
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(task TaskInterface) {
	task.BeginAttempt()

	err := task.Execute(s.ctx)
	task.EndAttempt(err)
	if err == nil {
		return
	}

	zap.L().Error("Task execution failed",
		zap.String("type", string(task.GetType())),
		zap.String("id", task.GetID()),
		zap.Int("attempt", task.GetAttempts()),
		zap.Error(err))

	if !task.CanRetry() {
		zap.L().Error("Task failed after maximum retries",
			zap.String("type", string(task.GetType())),
			zap.String("id", task.GetID()),
			zap.Int("max_retries", task.GetMaxRetries()),
			zap.Error(err))
		return
	}

	retryDelay := min(s.baseDelay<<uint(task.GetAttempts()-1), maxRetryDelay)

	zap.L().Warn("Task retry scheduled",
		zap.String("type", string(task.GetType())),
		zap.Int("retry", task.GetAttempts()),
		zap.Int("max_retries", task.GetMaxRetries()),
		zap.Duration("delay", retryDelay))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-s.ctx.Done():
			zap.L().Debug("Scheduler stopped, skipping task retry", zap.String("id", task.GetID()))
		case <-time.After(retryDelay):
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				zap.L().Error("Failed to re-enqueue task for retry",
					zap.String("id", task.GetID()),
					zap.Error(retryErr))
			}
		}
	}()
}

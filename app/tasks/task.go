package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/tradewire/app/pipeline"
)

type TaskType string

const (
	TaskTypeRunPipeline TaskType = "run_pipeline"
)

const (
	DefaultMaxRetries = 3
)

// TaskInterface is what the scheduler executes. One task covers a scheduled
// run and all of its retries.
type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	BeginAttempt()
	EndAttempt(err error)
	GetAttempts() int
	GetMaxRetries() int
	CanRetry() bool
	GetDuration() time.Duration
}

// Task holds the attempt history shared by every task type.
type Task struct {
	ID         string
	Type       TaskType
	Attempts   int
	MaxRetries int
	StartedAt  *time.Time // start of the current attempt
	LastError  error
	LastResult *pipeline.RunResult // nil until a run has completed
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) BeginAttempt() {
	now := time.Now()
	t.StartedAt = &now
	t.Attempts++
}

func (t *Task) EndAttempt(err error) {
	t.LastError = err
}

func (t *Task) GetAttempts() int {
	return t.Attempts
}

func (t *Task) GetMaxRetries() int {
	return t.MaxRetries
}

// CanRetry reports whether another attempt is allowed after the current one.
func (t *Task) CanRetry() bool {
	return t.Attempts <= t.MaxRetries
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

func (t *Task) recordResult(result pipeline.RunResult) {
	t.LastResult = &result
}

func NewTask(taskType TaskType) Task {
	return Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		MaxRetries: DefaultMaxRetries,
	}
}

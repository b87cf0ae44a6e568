package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lysyi3m/tradewire/app/database"
	"github.com/lysyi3m/tradewire/app/pipeline"
)

// ErrRunInProgress is returned when another run holds the lock, in this
// process or, with a lock file, in another one.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// PipelineRun is the single entry point shared by the scheduler, the HTTP
// trigger and one-shot mode. Runs never overlap in one process. An optional
// advisory file lock extends that across processes. Every completed run is
// recorded.
type PipelineRun struct {
	runner   Runner
	runs     RunRecorder
	lockPath string

	mu sync.Mutex
}

// NewPipelineRun creates a PipelineRun. An empty lockPath disables locking.
func NewPipelineRun(runner Runner, runs RunRecorder, lockPath string) *PipelineRun {
	return &PipelineRun{runner: runner, runs: runs, lockPath: lockPath}
}

// Run executes one pipeline run. A failure to record the run is logged and
// does not change the result.
func (p *PipelineRun) Run(ctx context.Context) (pipeline.RunResult, error) {
	if !p.mu.TryLock() {
		return pipeline.RunResult{}, ErrRunInProgress
	}
	defer p.mu.Unlock()

	if p.lockPath != "" {
		lock := flock.New(p.lockPath)
		locked, err := lock.TryLock()
		if err != nil {
			return pipeline.RunResult{}, eris.Wrapf(err, "tasks: acquire lock %s", p.lockPath)
		}
		if !locked {
			return pipeline.RunResult{}, ErrRunInProgress
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				zap.L().Warn("Failed to release run lock", zap.String("path", p.lockPath), zap.Error(err))
			}
		}()
	}

	result := p.runner.Run(ctx)

	if p.runs != nil {
		// The run context may already be cancelled; the audit row is still
		// worth writing.
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		if err := p.runs.RecordRun(recordCtx, toRunRecord(result)); err != nil {
			zap.L().Error("Failed to record run", zap.Error(err))
		}
	}

	return result, nil
}

func toRunRecord(r pipeline.RunResult) database.RunRecord {
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	return database.RunRecord{
		ID:                    uuid.NewString(),
		StartedAt:             r.StartedAt,
		FinishedAt:            r.FinishedAt,
		ItemsChecked:          r.ItemsChecked,
		NewItemsFound:         r.NewItemsFound,
		TransactionsExtracted: r.TransactionsExtracted,
		TransactionsAdded:     r.TransactionsAdded,
		Errors:                errs,
	}
}

type RunPipelineTask struct {
	Task
	run *PipelineRun
}

func NewRunPipelineTask(run *PipelineRun) *RunPipelineTask {
	return &RunPipelineTask{
		Task: NewTask(TaskTypeRunPipeline),
		run:  run,
	}
}

// Execute fails only when the run aborted before processing items, so the
// scheduler retries fetch and admission outages. Item errors are part of a
// successful run.
func (t *RunPipelineTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result, err := t.run.Run(ctx)
	if errors.Is(err, ErrRunInProgress) {
		zap.L().Info("Run already in progress, skipping", zap.String("id", t.GetID()))
		return nil
	}
	if err != nil {
		return err
	}
	t.recordResult(result)

	if result.Aborted() {
		return eris.Errorf("run aborted: %v", result.Errors)
	}

	zap.L().Info("Task completed",
		zap.String("type", string(t.GetType())),
		zap.Int("attempt", t.GetAttempts()),
		zap.Duration("duration", t.GetDuration()),
		zap.Int("new_items", result.NewItemsFound),
		zap.Int("added", result.TransactionsAdded),
		zap.Int("errors", len(result.Errors)))

	return nil
}

package tasks

import (
	"context"

	"github.com/lysyi3m/tradewire/app/database"
	"github.com/lysyi3m/tradewire/app/pipeline"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to run the pipeline on an interval.
// Example usage:
//
//	scheduler := NewScheduler(func() TaskInterface { return NewRunPipelineTask(pr) }, interval)
//	scheduler.Start()
//	defer scheduler.Stop()
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

type Runner interface {
	Run(ctx context.Context) pipeline.RunResult
}

type RunRecorder interface {
	RecordRun(ctx context.Context, run database.RunRecord) error
}

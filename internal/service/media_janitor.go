package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/course-cms-api/pkg/jobs"
)

type blobDeleter interface {
	Delete(name string) error
}

// cleanupRecorder counts removals by outcome.
type cleanupRecorder interface {
	RecordMediaCleanup(result string)
}

// MediaJanitor removes orphaned blobs in the background so item writes do not
// wait on the filesystem. When the queue is stopped or full it deletes inline.
type MediaJanitor struct {
	store   blobDeleter
	queue   *jobs.Queue[string]
	metrics cleanupRecorder
	logger  *zap.Logger
}

// NewMediaJanitor builds a janitor; call Start before use. metrics may be nil.
func NewMediaJanitor(store blobDeleter, metrics *MetricsService, cfg jobs.QueueConfig) *MediaJanitor {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	j := &MediaJanitor{store: store, metrics: metrics, logger: cfg.Logger}
	j.queue = jobs.NewQueue("media-cleanup", j.handle, cfg)
	return j
}

// Start launches the cleanup workers.
func (j *MediaJanitor) Start(ctx context.Context) { j.queue.Start(ctx) }

// Stop halts the workers.
func (j *MediaJanitor) Stop() { j.queue.Stop() }

// Remove schedules a blob for deletion.
func (j *MediaJanitor) Remove(path string) {
	if path == "" {
		return
	}
	if err := j.queue.TryEnqueue(jobs.Job[string]{ID: path, Payload: path}); err == nil {
		j.record("queued")
		return
	}
	if err := j.store.Delete(path); err != nil {
		j.record("failed")
		j.logger.Warn("failed to remove stored media", zap.String("path", path), zap.Error(err))
		return
	}
	j.record("inline")
}

func (j *MediaJanitor) handle(_ context.Context, job jobs.Job[string]) error {
	if err := j.store.Delete(job.Payload); err != nil {
		if job.Attempt >= j.queue.MaxRetries() {
			j.record("failed")
		}
		return fmt.Errorf("remove %s: %w", job.Payload, err)
	}
	return nil
}

func (j *MediaJanitor) record(result string) {
	if j.metrics != nil {
		j.metrics.RecordMediaCleanup(result)
	}
}

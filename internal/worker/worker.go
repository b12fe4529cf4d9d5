package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/storyvoice/internal/pipeline"
	"github.com/bobarin/storyvoice/internal/queue"
)

// RenderStore persists render progress.
type RenderStore interface {
	UpdateRenderStage(ctx context.Context, id uuid.UUID, stage string) error
	CompleteRender(ctx context.Context, id uuid.UUID, audioPath string, byteSize int64, segmentCount int) error
	FailRender(ctx context.Context, id uuid.UUID, errorStage, errorMessage string) error
}

// JobSource hands out queued jobs.
type JobSource interface {
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error)
}

// AudioStore receives finished renders.
type AudioStore interface {
	Upload(ctx context.Context, objectPath string, data []byte, contentType string) error
	GenerateStoragePath(renderID uuid.UUID, filename string) string
}

// Renderer runs the narration pipeline.
type Renderer interface {
	RunObserved(ctx context.Context, text string, onStage pipeline.StageFunc) (*pipeline.Result, error)
}

const (
	dequeueTimeout = 5 * time.Second
	dequeueBackoff = time.Second
	stageTimeout   = 5 * time.Second
)

type Worker struct {
	db        RenderStore
	queue     JobSource
	storage   AudioStore
	renderer  Renderer
	uploadSem chan struct{} // Limits concurrent Supabase uploads to prevent congestion
}

func New(database RenderStore, q JobSource, stor AudioStore, renderer Renderer) *Worker {
	return &Worker{
		db:        database,
		queue:     q,
		storage:   stor,
		renderer:  renderer,
		uploadSem: make(chan struct{}, 2),
	}
}

// uploadWithLimit wraps an upload call with a semaphore to prevent Supabase congestion.
func (w *Worker) uploadWithLimit(ctx context.Context, label string, fn func() error) error {
	log.Printf("[Upload] %s waiting for upload slot...", label)
	select {
	case w.uploadSem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("upload cancelled while waiting for slot: %w", ctx.Err())
	}
	defer func() { <-w.uploadSem }()

	log.Printf("[Upload] %s uploading...", label)
	return fn()
}

// Start processes render jobs with the given number of consumers until ctx is done.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("[Worker] Started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, queue.QueueRenderAudio, w.handleRender)
	}

	<-ctx.Done()
	log.Println("[Worker] Shutting down...")
}

func (w *Worker) processQueue(ctx context.Context, queueName string, handler func(context.Context, *queue.Job) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, queueName, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Worker] Error dequeuing from %s: %v", queueName, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueBackoff):
			}
			continue
		}

		if job == nil {
			continue // No job available, retry
		}

		log.Printf("[Worker] Processing job %s (type: %s, render: %s)", job.ID, job.Type, job.RenderID)

		if err := handler(ctx, job); err != nil {
			log.Printf("[Worker] Job %s failed: %v", job.ID, err)
		} else {
			log.Printf("[Worker] Job %s completed successfully", job.ID)
		}
	}
}

// handleRender runs the pipeline for one job, publishing each stage, and
// uploads the result. Every outcome is recorded on the render.
func (w *Worker) handleRender(ctx context.Context, job *queue.Job) error {
	renderID := job.RenderID

	onStage := func(stage pipeline.Stage) {
		if stage == pipeline.StageFailed || stage == pipeline.StageDone {
			return
		}
		w.recordStage(ctx, renderID, stage.String())
	}

	result, err := w.renderer.RunObserved(ctx, job.Text, onStage)
	if err != nil {
		w.fail(renderID, failedStage(err), err)
		return fmt.Errorf("failed to render audio: %w", err)
	}

	w.recordStage(ctx, renderID, "uploading")
	audioPath := w.storage.GenerateStoragePath(renderID, "generated_audio.mp3")
	if err := w.uploadWithLimit(ctx, renderID.String(), func() error {
		return w.storage.Upload(ctx, audioPath, result.Audio, "audio/mpeg")
	}); err != nil {
		w.fail(renderID, "uploading", err)
		return fmt.Errorf("failed to upload audio: %w", err)
	}

	if err := w.db.CompleteRender(ctx, renderID, audioPath, int64(len(result.Audio)), len(result.Script)); err != nil {
		w.fail(renderID, "completing", err)
		return fmt.Errorf("failed to complete render: %w", err)
	}
	return nil
}

func (w *Worker) recordStage(ctx context.Context, renderID uuid.UUID, stage string) {
	if err := w.db.UpdateRenderStage(ctx, renderID, stage); err != nil {
		log.Printf("[Worker] Failed to update render %s stage to %s: %v", renderID, stage, err)
	}
}

// fail records the failure on a fresh context so a cancelled job still ends up marked failed.
func (w *Worker) fail(renderID uuid.UUID, stage string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), stageTimeout)
	defer cancel()

	if err := w.db.FailRender(ctx, renderID, stage, cause.Error()); err != nil {
		log.Printf("[Worker] Failed to mark render %s failed: %v", renderID, err)
	}
}

func failedStage(err error) string {
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage.String()
	}
	return "unknown"
}

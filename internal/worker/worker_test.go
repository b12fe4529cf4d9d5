package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/storyvoice/internal/models"
	"github.com/bobarin/storyvoice/internal/pipeline"
	"github.com/bobarin/storyvoice/internal/queue"
)

type fakeStore struct {
	mu        sync.Mutex
	stages    []string
	completed *completion
	failed    *failure

	completeErr error
}

type completion struct {
	path     string
	size     int64
	segments int
}

type failure struct {
	stage, message string
}

func (f *fakeStore) UpdateRenderStage(ctx context.Context, id uuid.UUID, stage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, stage)
	return nil
}

func (f *fakeStore) CompleteRender(ctx context.Context, id uuid.UUID, audioPath string, byteSize int64, segmentCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completed = &completion{audioPath, byteSize, segmentCount}
	return nil
}

func (f *fakeStore) FailRender(ctx context.Context, id uuid.UUID, errorStage, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = &failure{errorStage, errorMessage}
	return nil
}

type fakeStorage struct {
	err      error
	uploaded map[string][]byte
}

func (f *fakeStorage) Upload(ctx context.Context, objectPath string, data []byte, contentType string) error {
	if f.err != nil {
		return f.err
	}
	if f.uploaded == nil {
		f.uploaded = map[string][]byte{}
	}
	f.uploaded[objectPath] = data
	return nil
}

func (f *fakeStorage) GenerateStoragePath(renderID uuid.UUID, filename string) string {
	return "renders/" + renderID.String() + "/" + filename
}

type fakeRenderer struct {
	result *pipeline.Result
	err    error
	stages []pipeline.Stage
}

func (f *fakeRenderer) RunObserved(ctx context.Context, text string, onStage pipeline.StageFunc) (*pipeline.Result, error) {
	for _, s := range f.stages {
		onStage(s)
	}
	return f.result, f.err
}

func TestHandleRenderSuccess(t *testing.T) {
	store := &fakeStore{}
	stor := &fakeStorage{}
	renderer := &fakeRenderer{
		result: &pipeline.Result{
			Audio:  []byte("mp3"),
			Script: models.Script{{SpeakerName: "Narrator", SpeakerText: "a"}, {SpeakerName: "Bob", SpeakerText: "b"}},
		},
		stages: []pipeline.Stage{pipeline.StageAnalyzingCharacters, pipeline.StageAssembling, pipeline.StageDone},
	}
	w := New(store, nil, stor, renderer)

	job := &queue.Job{ID: uuid.New(), RenderID: uuid.New(), Text: "story"}
	require.NoError(t, w.handleRender(context.Background(), job))

	wantPath := "renders/" + job.RenderID.String() + "/generated_audio.mp3"
	assert.Equal(t, []byte("mp3"), stor.uploaded[wantPath])
	assert.Equal(t, []string{"analyzing_characters", "assembling", "uploading"}, store.stages)
	require.NotNil(t, store.completed)
	assert.Equal(t, completion{wantPath, 3, 2}, *store.completed)
	assert.Nil(t, store.failed)
}

func TestHandleRenderPipelineFailure(t *testing.T) {
	store := &fakeStore{}
	renderer := &fakeRenderer{err: &pipeline.StageError{
		Stage:        pipeline.StageSynthesizingSegments,
		SegmentIndex: 3,
		Err:          errors.New("ElevenLabs returned status 500: boom"),
	}}
	w := New(store, nil, &fakeStorage{}, renderer)

	err := w.handleRender(context.Background(), &queue.Job{ID: uuid.New(), RenderID: uuid.New()})
	require.Error(t, err)

	require.NotNil(t, store.failed)
	assert.Equal(t, "synthesizing_segments", store.failed.stage)
	assert.Contains(t, store.failed.message, "segment 3")
	assert.Nil(t, store.completed)
}

func TestHandleRenderUploadFailure(t *testing.T) {
	store := &fakeStore{}
	renderer := &fakeRenderer{result: &pipeline.Result{Audio: []byte("mp3")}}
	w := New(store, nil, &fakeStorage{err: errors.New("upload failed with status 403: denied")}, renderer)

	err := w.handleRender(context.Background(), &queue.Job{ID: uuid.New(), RenderID: uuid.New()})
	require.Error(t, err)

	require.NotNil(t, store.failed)
	assert.Equal(t, "uploading", store.failed.stage)
	assert.Nil(t, store.completed)
}

func TestHandleRenderCompleteFailureMarksRenderFailed(t *testing.T) {
	store := &fakeStore{completeErr: errors.New("connection reset")}
	renderer := &fakeRenderer{result: &pipeline.Result{Audio: []byte("mp3")}}
	w := New(store, nil, &fakeStorage{}, renderer)

	err := w.handleRender(context.Background(), &queue.Job{ID: uuid.New(), RenderID: uuid.New()})
	require.ErrorContains(t, err, "failed to complete render")

	require.NotNil(t, store.failed)
	assert.Equal(t, "completing", store.failed.stage)
	assert.Equal(t, "connection reset", store.failed.message)
	assert.Nil(t, store.completed)
}

type fakeSource struct {
	mu   sync.Mutex
	jobs []*queue.Job
}

func (f *fakeSource) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error) {
	f.mu.Lock()
	if len(f.jobs) > 0 {
		job := f.jobs[0]
		f.jobs = f.jobs[1:]
		f.mu.Unlock()
		return job, nil
	}
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

func TestProcessQueueHandlesJobsUntilCancelled(t *testing.T) {
	src := &fakeSource{jobs: []*queue.Job{{ID: uuid.New()}, {ID: uuid.New()}}}
	w := New(&fakeStore{}, src, &fakeStorage{}, &fakeRenderer{})

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var handled int
	done := make(chan struct{})
	go func() {
		w.processQueue(ctx, queue.QueueRenderAudio, func(ctx context.Context, job *queue.Job) error {
			mu.Lock()
			handled++
			mu.Unlock()
			return nil
		})
		close(done)
	}()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return handled == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processQueue did not stop")
	}
}

package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bobarin/adreel/internal/models"
	"github.com/bobarin/adreel/internal/pipeline"
	"github.com/bobarin/adreel/internal/queue"
	"github.com/google/uuid"
)

type fakeStore struct {
	mu        sync.Mutex
	job       *models.Job
	claimable bool
	stages    []models.JobStage
	completed *models.JobResult
	failed    *models.JobStage
	failMsg   string
	artifacts []*models.JobArtifact
	getErr    error
	claimErr  error
}

func (s *fakeStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.job, nil
}

func (s *fakeStore) MarkJobRunning(ctx context.Context, id uuid.UUID) (bool, error) {
	if s.claimErr != nil {
		return false, s.claimErr
	}
	return s.claimable, nil
}

func (s *fakeStore) UpdateJobStage(ctx context.Context, id uuid.UUID, stage models.JobStage, workDir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages = append(s.stages, stage)
	return nil
}

func (s *fakeStore) CompleteJob(ctx context.Context, id uuid.UUID, result *models.JobResult) error {
	s.completed = result
	return nil
}

func (s *fakeStore) FailJob(ctx context.Context, id uuid.UUID, failedStage models.JobStage, msg string) error {
	s.failed = &failedStage
	s.failMsg = msg
	return nil
}

func (s *fakeStore) CreateArtifact(ctx context.Context, a *models.JobArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = append(s.artifacts, a)
	return nil
}

type fakeQueue struct {
	enqueued []queue.Message
}

func (q *fakeQueue) Dequeue(ctx context.Context, timeout time.Duration) (*queue.Message, error) {
	return nil, nil
}

func (q *fakeQueue) EnqueueJob(ctx context.Context, jobID uuid.UUID, attempt int) error {
	q.enqueued = append(q.enqueued, queue.Message{JobID: jobID, Attempt: attempt})
	return nil
}

// scriptedPipeline writes the files a real run would and replays stages.
type scriptedPipeline struct {
	dir     string
	failAt  models.JobStage
	gotIn   pipeline.JobInput
	started bool
}

func (p *scriptedPipeline) Run(ctx context.Context, jobID uuid.UUID, in pipeline.JobInput, observe pipeline.StageObserver) (*models.JobResult, error) {
	p.started = true
	p.gotIn = in
	write := func(name string) string {
		path := filepath.Join(p.dir, name)
		os.WriteFile(path, []byte(name), 0644)
		return path
	}

	r := &models.JobResult{JobID: jobID, WorkDir: p.dir, Stage: models.StageStart}
	observe(models.StageStart, r)
	r.AvatarVideoPath = write("avatar.mp4")
	observe(models.StageAvatarRendered, r)

	if p.failAt != "" {
		r.Stage = models.StageFailed
		observe(models.StageFailed, r)
		return r, &pipeline.StageError{Stage: p.failAt, Err: errors.New("provider exploded")}
	}

	r.Scenes = []models.SceneDescription{
		{Index: 0, ArtifactPath: write("broll_000.mp4")},
		{Index: 1},
	}
	r.ScenesPlanned, r.ScenesRendered = 2, 1
	r.CompositeVideoPath = write("final_video.mp4")
	r.FinalVideoPath = r.CompositeVideoPath
	r.Stage = models.StageDone
	observe(models.StageDone, r)
	return r, nil
}

type fakeArtifactStore struct {
	mu   sync.Mutex
	keys []string
	fail map[string]bool
}

func (s *fakeArtifactStore) Name() string { return "fake" }

func (s *fakeArtifactStore) UploadFile(ctx context.Context, localPath, key, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[filepath.Base(localPath)] {
		return "", errors.New("503")
	}
	s.keys = append(s.keys, key)
	return "https://cdn.example/" + key, nil
}

func queuedJob(t *testing.T, input models.JSONB) *models.Job {
	t.Helper()
	return &models.Job{ID: uuid.New(), Input: input, Status: models.JobStatusQueued}
}

func TestHandleJobSuccess(t *testing.T) {
	job := queuedJob(t, models.JSONB{"product_name": "Acqua", "description": "bottle", "product_image_b64": "aGVsbG8=", "voice_id": "v1"})
	store := &fakeStore{job: job, claimable: true}
	p := &scriptedPipeline{dir: t.TempDir()}
	artifacts := &fakeArtifactStore{fail: map[string]bool{"broll_000.mp4": true}}
	w := New(store, &fakeQueue{}, p, artifacts, time.Minute, 2)

	if err := w.HandleJob(t.Context(), job.ID); err != nil {
		t.Fatalf("HandleJob: %v", err)
	}

	if string(p.gotIn.ProductImage) != "hello" || p.gotIn.VoiceID != "v1" || p.gotIn.Product.ProductName != "Acqua" {
		t.Errorf("pipeline input = %+v", p.gotIn)
	}
	if p.gotIn.Product.ProductImageB64 != "" {
		t.Error("decoded image should not be carried as base64 too")
	}
	if store.completed == nil || store.failed != nil {
		t.Fatalf("completed = %v, failed = %v", store.completed, store.failed)
	}
	wantStages := []models.JobStage{models.StageStart, models.StageAvatarRendered, models.StageDone}
	if len(store.stages) != len(wantStages) {
		t.Fatalf("stages = %v", store.stages)
	}
	for i := range wantStages {
		if store.stages[i] != wantStages[i] {
			t.Errorf("stage %d = %s, want %s", i, store.stages[i], wantStages[i])
		}
	}

	if len(store.artifacts) != 3 {
		t.Fatalf("artifacts = %d, want 3", len(store.artifacts))
	}
	for _, a := range store.artifacts {
		switch a.Type {
		case models.ArtifactTypeSceneVideo:
			if a.SceneIndex == nil || *a.SceneIndex != 0 || a.StorageURL != nil {
				t.Errorf("scene artifact = %+v", a)
			}
		default:
			if a.StorageURL == nil {
				t.Errorf("%s should have been uploaded", a.Type)
			}
		}
	}
}

func TestHandleJobFailureRecordsStage(t *testing.T) {
	job := queuedJob(t, models.JSONB{"product_name": "Acqua", "description": "bottle"})
	store := &fakeStore{job: job, claimable: true}
	w := New(store, &fakeQueue{}, &scriptedPipeline{dir: t.TempDir(), failAt: models.StageComposited}, nil, 0, 1)

	if err := w.HandleJob(t.Context(), job.ID); err == nil {
		t.Fatal("expected error")
	}
	if store.failed == nil || *store.failed != models.StageComposited {
		t.Errorf("failed stage = %v", store.failed)
	}
	if store.completed != nil {
		t.Error("failed job must not be completed")
	}
	for _, s := range store.stages {
		if s == models.StageFailed {
			t.Error("FAILED is persisted by FailJob, not UpdateJobStage")
		}
	}
	if len(store.artifacts) != 1 || store.artifacts[0].StorageURL != nil {
		t.Errorf("artifacts = %+v", store.artifacts)
	}
}

func TestHandleJobSkipsUnclaimed(t *testing.T) {
	store := &fakeStore{claimable: false}
	p := &scriptedPipeline{dir: t.TempDir()}
	w := New(store, &fakeQueue{}, p, nil, 0, 1)

	if err := w.HandleJob(t.Context(), uuid.New()); err != nil {
		t.Fatalf("HandleJob: %v", err)
	}
	if p.started {
		t.Error("pipeline must not run for an already claimed job")
	}
}

func TestHandleJobBadImage(t *testing.T) {
	job := queuedJob(t, models.JSONB{"product_name": "Acqua", "description": "bottle", "product_image_b64": "%%%"})
	store := &fakeStore{job: job, claimable: true}
	p := &scriptedPipeline{dir: t.TempDir()}
	w := New(store, &fakeQueue{}, p, nil, 0, 1)

	if err := w.HandleJob(t.Context(), job.ID); err == nil {
		t.Fatal("expected decode error")
	}
	if p.started || store.failed == nil || *store.failed != models.StageStart {
		t.Errorf("started = %v, failed = %v", p.started, store.failed)
	}
}

func TestHandleJobLoadErrorAfterClaimFailsJob(t *testing.T) {
	job := queuedJob(t, models.JSONB{"product_name": "Acqua", "description": "bottle"})
	store := &fakeStore{job: job, claimable: true, getErr: errors.New("connection reset")}
	p := &scriptedPipeline{dir: t.TempDir()}
	w := New(store, &fakeQueue{}, p, nil, time.Minute, 1)

	if err := w.HandleJob(t.Context(), job.ID); err == nil {
		t.Fatal("expected error")
	}
	if p.started {
		t.Error("pipeline ran without a loaded job")
	}
	if store.failed == nil || *store.failed != models.StageStart {
		t.Fatalf("failed stage = %v, a claimed job must not stay running", store.failed)
	}
	if store.completed != nil {
		t.Error("job should not be completed")
	}
}

func TestHandleMessageRetriesClaimErrors(t *testing.T) {
	jobID := uuid.New()
	store := &fakeStore{claimErr: errors.New("connection refused")}
	q := &fakeQueue{}
	w := New(store, q, &scriptedPipeline{dir: t.TempDir()}, nil, time.Minute, 1)

	w.handleMessage(t.Context(), &queue.Message{JobID: jobID, Attempt: 1})
	if len(q.enqueued) != 1 {
		t.Fatalf("enqueued = %d, want 1", len(q.enqueued))
	}
	if got := q.enqueued[0]; got.JobID != jobID || got.Attempt != 2 {
		t.Errorf("re-enqueued %+v, want attempt 2 of %s", got, jobID)
	}
	if store.failed != nil {
		t.Error("an unclaimed job must stay queued, not failed")
	}

	w.handleMessage(t.Context(), &queue.Message{JobID: jobID, Attempt: maxClaimAttempts})
	if len(q.enqueued) != 1 {
		t.Errorf("enqueued = %d after the last attempt, want no more", len(q.enqueued))
	}
}

func TestHandleMessageDoesNotRetryPipelineFailures(t *testing.T) {
	job := queuedJob(t, models.JSONB{"product_name": "Acqua", "description": "bottle"})
	store := &fakeStore{job: job, claimable: true}
	q := &fakeQueue{}
	w := New(store, q, &scriptedPipeline{dir: t.TempDir(), failAt: models.StageAvatarRendered}, nil, time.Minute, 1)

	w.handleMessage(t.Context(), &queue.Message{JobID: job.ID, Attempt: 1})
	if len(q.enqueued) != 0 {
		t.Errorf("enqueued = %d, a failed run must not be requeued", len(q.enqueued))
	}
	if store.failed == nil {
		t.Error("failure not recorded")
	}
}

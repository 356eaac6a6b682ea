package worker

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/bobarin/adreel/internal/models"
	"github.com/bobarin/adreel/internal/pipeline"
	"github.com/bobarin/adreel/internal/queue"
	"github.com/bobarin/adreel/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	dequeueTimeout = 5 * time.Second
	persistTimeout = 30 * time.Second

	// maxClaimAttempts bounds how often a message is put back after the
	// claim itself could not reach the database.
	maxClaimAttempts = 3
)

// ErrClaimFailed marks a job whose queued->running transition could not be
// attempted. The row is still queued, so the message can be retried.
var ErrClaimFailed = errors.New("failed to claim job")

// JobStore is the job persistence the worker needs; *db.DB satisfies it.
type JobStore interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	MarkJobRunning(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateJobStage(ctx context.Context, id uuid.UUID, stage models.JobStage, workDir string) error
	CompleteJob(ctx context.Context, id uuid.UUID, result *models.JobResult) error
	FailJob(ctx context.Context, id uuid.UUID, failedStage models.JobStage, errorMessage string) error
	CreateArtifact(ctx context.Context, artifact *models.JobArtifact) error
}

type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Message, error)
	EnqueueJob(ctx context.Context, jobID uuid.UUID, attempt int) error
}

// Pipeline runs one ad job; *pipeline.Orchestrator satisfies it.
type Pipeline interface {
	Run(ctx context.Context, jobID uuid.UUID, in pipeline.JobInput, observe pipeline.StageObserver) (*models.JobResult, error)
}

type Worker struct {
	db         JobStore
	queue      JobQueue
	pipeline   Pipeline
	store      storage.ArtifactStore // nil keeps artifacts local
	jobTimeout time.Duration
	uploadSem  *semaphore.Weighted // Limits concurrent uploads across all jobs
}

func New(database JobStore, q JobQueue, p Pipeline, store storage.ArtifactStore, jobTimeout time.Duration, maxUploads int) *Worker {
	if maxUploads < 1 {
		maxUploads = 1
	}
	return &Worker{
		db:         database,
		queue:      q,
		pipeline:   p,
		store:      store,
		jobTimeout: jobTimeout,
		uploadSem:  semaphore.NewWeighted(int64(maxUploads)),
	}
}

// Start runs concurrency queue consumers until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("Worker started with concurrency: %d", concurrency)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processQueue(ctx)
		}()
	}

	<-ctx.Done()
	log.Println("Worker shutting down...")
	wg.Wait()
}

func (w *Worker) processQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := w.queue.Dequeue(ctx, dequeueTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("Error dequeuing from %s: %v", queue.QueueAdJobs, err)
				time.Sleep(time.Second)
				continue
			}
			if msg == nil {
				continue // No job available, retry
			}

			w.handleMessage(ctx, msg)
		}
	}
}

// handleMessage runs one dequeued message. Claim errors put the message back
// with a bumped attempt until maxClaimAttempts is reached.
func (w *Worker) handleMessage(ctx context.Context, msg *queue.Message) {
	err := w.HandleJob(ctx, msg.JobID)
	if err == nil {
		return
	}
	log.Printf("Job %s failed (attempt %d): %v", msg.JobID, msg.Attempt, err)

	if !errors.Is(err, ErrClaimFailed) || ctx.Err() != nil {
		return
	}
	if msg.Attempt >= maxClaimAttempts {
		log.Printf("[Worker] Job %s: giving up after %d claim attempts", msg.JobID, msg.Attempt)
		return
	}
	if qErr := w.queue.EnqueueJob(ctx, msg.JobID, msg.Attempt+1); qErr != nil {
		log.Printf("[Worker] Failed to re-enqueue job %s: %v", msg.JobID, qErr)
	}
}

// HandleJob claims a queued job, runs the pipeline and persists the outcome.
// A job that is no longer queued is skipped.
func (w *Worker) HandleJob(ctx context.Context, jobID uuid.UUID) error {
	claimed, err := w.db.MarkJobRunning(ctx, jobID)
	if err != nil {
		return fmt.Errorf("%w %s: %v", ErrClaimFailed, jobID, err)
	}
	if !claimed {
		log.Printf("[Worker] Job %s is not queued, skipping", jobID)
		return nil
	}

	// From here on the row is running; every exit must record an outcome.
	job, err := w.db.GetJob(ctx, jobID)
	if err != nil {
		err = fmt.Errorf("failed to load claimed job: %w", err)
		w.persistFailure(ctx, jobID, models.StageStart, err)
		return err
	}

	in, err := jobInput(job)
	if err != nil {
		w.persistFailure(ctx, jobID, models.StageStart, err)
		return err
	}

	runCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	log.Printf("Processing job %s (%s)", jobID, in.Product.ProductName)
	result, runErr := w.pipeline.Run(runCtx, jobID, in, func(stage models.JobStage, r *models.JobResult) {
		if stage == models.StageFailed {
			return
		}
		if err := w.db.UpdateJobStage(ctx, jobID, stage, r.WorkDir); err != nil {
			log.Printf("[Worker] Failed to record stage %s for job %s: %v", stage, jobID, err)
		}
	})

	// Persist even when the job deadline has passed.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	w.publishArtifacts(persistCtx, jobID, result)

	if runErr != nil {
		stage := models.StageStart
		var stageErr *pipeline.StageError
		if errors.As(runErr, &stageErr) {
			stage = stageErr.Stage
		}
		w.persistFailure(persistCtx, jobID, stage, runErr)
		return runErr
	}

	if err := w.db.CompleteJob(persistCtx, jobID, result); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	log.Printf("Job %s completed successfully (%d/%d scenes)", jobID, result.ScenesRendered, result.ScenesPlanned)
	return nil
}

func (w *Worker) persistFailure(ctx context.Context, jobID uuid.UUID, stage models.JobStage, err error) {
	if dbErr := w.db.FailJob(ctx, jobID, stage, err.Error()); dbErr != nil {
		log.Printf("[Worker] Failed to record failure for job %s: %v", jobID, dbErr)
	}
}

func jobInput(job *models.Job) (pipeline.JobInput, error) {
	var req models.CreateJobRequest
	if err := job.Input.Decode(&req); err != nil {
		return pipeline.JobInput{}, fmt.Errorf("failed to decode job input: %w", err)
	}

	in := pipeline.JobInput{
		Product:  req.ProductInfo,
		AvatarID: req.AvatarID,
		VoiceID:  req.VoiceID,
	}
	if req.ProductImageB64 != "" {
		img, err := base64.StdEncoding.DecodeString(req.ProductImageB64)
		if err != nil {
			return pipeline.JobInput{}, fmt.Errorf("failed to decode product image: %w", err)
		}
		in.ProductImage = img
	}
	in.Product.ProductImageB64 = ""
	return in, nil
}

type pendingArtifact struct {
	kind       models.ArtifactType
	path       string
	sceneIndex *int
}

// collectArtifacts lists the files a run left behind, final video last.
func collectArtifacts(r *models.JobResult) []pendingArtifact {
	if r == nil {
		return nil
	}
	var out []pendingArtifact
	if r.AvatarVideoPath != "" {
		out = append(out, pendingArtifact{kind: models.ArtifactTypeAvatarVideo, path: r.AvatarVideoPath})
	}
	for _, s := range r.Scenes {
		if s.ArtifactPath == "" {
			continue
		}
		idx := s.Index
		out = append(out, pendingArtifact{kind: models.ArtifactTypeSceneVideo, path: s.ArtifactPath, sceneIndex: &idx})
	}
	if r.CompositeVideoPath != "" {
		out = append(out, pendingArtifact{kind: models.ArtifactTypeCompositeVideo, path: r.CompositeVideoPath})
	}
	if r.CaptionedVideoPath != "" {
		out = append(out, pendingArtifact{kind: models.ArtifactTypeCaptionedVideo, path: r.CaptionedVideoPath})
	}
	return out
}

// publishArtifacts uploads every artifact (when a store is configured) and
// records one row per file. Upload failures leave the row without a URL.
func (w *Worker) publishArtifacts(ctx context.Context, jobID uuid.UUID, r *models.JobResult) {
	pending := collectArtifacts(r)
	rows := make([]*models.JobArtifact, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range pending {
		info, err := os.Stat(p.path)
		if err != nil {
			log.Printf("[Worker] Skipping missing artifact %s: %v", p.path, err)
			continue
		}
		contentType := storage.ContentTypeFor(p.path)
		size := info.Size()
		rows[i] = &models.JobArtifact{
			ID:          uuid.New(),
			JobID:       jobID,
			Type:        p.kind,
			SceneIndex:  p.sceneIndex,
			LocalPath:   p.path,
			ContentType: &contentType,
			ByteSize:    &size,
		}
		if w.store == nil {
			continue
		}

		row := rows[i]
		g.Go(func() error {
			url, err := w.upload(gctx, jobID, row)
			if err != nil {
				log.Printf("[Upload] %s failed: %v", row.LocalPath, err)
				return nil
			}
			row.StorageURL = &url
			return nil
		})
	}
	_ = g.Wait()

	for _, row := range rows {
		if row == nil {
			continue
		}
		if err := w.db.CreateArtifact(ctx, row); err != nil {
			log.Printf("[Worker] Failed to record artifact %s: %v", row.LocalPath, err)
		}
	}
}

func (w *Worker) upload(ctx context.Context, jobID uuid.UUID, a *models.JobArtifact) (string, error) {
	key := storage.ObjectKey(jobID, a.LocalPath)
	log.Printf("[Upload] %s waiting for upload slot...", key)
	if err := w.uploadSem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("upload cancelled while waiting for slot: %w", err)
	}
	defer w.uploadSem.Release(1)

	log.Printf("[Upload] %s uploading to %s...", key, w.store.Name())
	return w.store.UploadFile(ctx, a.LocalPath, key, *a.ContentType)
}

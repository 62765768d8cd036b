package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/hrassist/internal/chunker"
	"github.com/kalambet/hrassist/internal/loader"
	"github.com/kalambet/hrassist/internal/storage"
)

// JobType is the queue type of document upload jobs.
const JobType = "ingest_document"

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string, permanent bool) error
}

// Ingester ingests a batch of sources.
type Ingester interface {
	Ingest(ctx context.Context, sources []Source) Report
}

// Payload is the JSON body of an ingest_document job. Data is base64 in JSON.
type Payload struct {
	Name   string `json:"name"`
	Format string `json:"format,omitempty"`
	Data   []byte `json:"data"`
}

// NewJob builds a queued upload job for one document.
func NewJob(name string, format loader.Format, data []byte) (storage.Job, error) {
	payload, err := json.Marshal(Payload{Name: name, Format: string(format), Data: data})
	if err != nil {
		return storage.Job{}, fmt.Errorf("encoding payload: %w", err)
	}
	return storage.Job{
		ID:          uuid.New().String(),
		Type:        JobType,
		PayloadJSON: string(payload),
	}, nil
}

// Worker processes ingest_document jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	ingester Ingester
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, ingester Ingester, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		ingester: ingester,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single ingest_document job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		permanent := isPermanent(err)
		w.logger.Warn("job failed", "job_id", job.ID, "permanent", permanent, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error(), permanent); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

var errBadPayload = errors.New("invalid job payload")

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("%w: %w", errBadPayload, err)
	}
	if payload.Name == "" {
		return fmt.Errorf("%w: missing document name", errBadPayload)
	}

	src := Source{Name: payload.Name, Data: payload.Data}
	if payload.Format != "" {
		f, err := loader.ParseFormat(payload.Format)
		if err != nil {
			return err
		}
		src.Format = f
	}

	rep := w.ingester.Ingest(ctx, []Source{src})
	if len(rep.Results) != 1 {
		return fmt.Errorf("ingest returned %d results for 1 document", len(rep.Results))
	}
	if ierr := rep.Results[0].Err; ierr != nil {
		return ierr
	}
	return nil
}

// isPermanent reports whether retrying the job cannot help: the document
// itself is unreadable or empty.
func isPermanent(err error) bool {
	if errors.Is(err, errBadPayload) ||
		errors.Is(err, loader.ErrUnsupportedFormat) ||
		errors.Is(err, chunker.ErrEmptyDocument) {
		return true
	}
	var ierr *IngestionError
	return errors.As(err, &ierr) && ierr.Stage == StageLoad
}

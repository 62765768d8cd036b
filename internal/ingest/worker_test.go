package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/hrassist/internal/loader"
	"github.com/kalambet/hrassist/internal/storage"
)

func enqueueTestJob(t *testing.T, store *storage.Store, name, content string) string {
	t.Helper()
	job, err := NewJob(name, "", []byte(content))
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	if err := store.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	return job.ID
}

// resetRunAfter sets run_after to now so the job is immediately claimable after FailJob backoff.
func resetRunAfter(t *testing.T, store *storage.Store, jobID string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := store.DB().Exec(`UPDATE jobs SET run_after = ? WHERE id = ?`, now, jobID)
	if err != nil {
		t.Fatalf("resetRunAfter: %v", err)
	}
}

func jobStatus(t *testing.T, store *storage.Store, jobID string) storage.Job {
	t.Helper()
	job, err := store.GetJob(jobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	return job
}

func TestWorker_ProcessesJob(t *testing.T) {
	p, store, idx := newTestPipeline(t, &mockEmbedder{})
	jobID := enqueueTestJob(t, store, "holidays.txt", "The office is closed on public holidays.")

	w := NewWorker(store, p, 0)
	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}

	if got := jobStatus(t, store, jobID); got.Status != storage.JobCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	doc, err := store.GetDocument(DocumentID("holidays.txt"))
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Format != string(loader.Text) || doc.ChunkCount != 1 {
		t.Errorf("document = %+v", doc)
	}
	if n, _ := idx.Count(context.Background()); n != 1 {
		t.Errorf("index holds %d records, want 1", n)
	}
}

func TestWorker_NoJobs(t *testing.T) {
	p, store, _ := newTestPipeline(t, &mockEmbedder{})
	w := NewWorker(store, p, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if didWork {
		t.Error("RunOnce returned true with an empty queue")
	}
}

func TestWorker_RetryOnFailure(t *testing.T) {
	var calls atomic.Int32
	p, store, _ := newTestPipeline(t, &mockEmbedder{
		embedFn: func(_ context.Context, texts []string) ([][]float32, error) {
			n := calls.Add(1)
			if n <= 2 {
				return nil, fmt.Errorf("transient error %d", n)
			}
			return fixedVectors(texts), nil
		},
	})
	jobID := enqueueTestJob(t, store, "retry.txt", "retry content")
	w := NewWorker(store, p, 0)
	ctx := context.Background()

	for attempt := 1; attempt <= 2; attempt++ {
		didWork, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce %d error: %v", attempt, err)
		}
		if !didWork {
			t.Fatalf("RunOnce %d returned false", attempt)
		}
		got := jobStatus(t, store, jobID)
		if got.Status != storage.JobPending || got.Attempts != attempt {
			t.Errorf("after fail %d: status=%q attempts=%d, want pending/%d", attempt, got.Status, got.Attempts, attempt)
		}
		resetRunAfter(t, store, jobID)
	}

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce 3 error: %v", err)
	}
	if got := jobStatus(t, store, jobID); got.Status != storage.JobCompleted {
		t.Errorf("after 3rd attempt: status=%q, want completed", got.Status)
	}
}

func TestWorker_MaxRetriesExceeded(t *testing.T) {
	p, store, _ := newTestPipeline(t, &mockEmbedder{
		embedFn: func(_ context.Context, _ []string) ([][]float32, error) {
			return nil, fmt.Errorf("embedding service down")
		},
	})
	jobID := enqueueTestJob(t, store, "max.txt", "max retry content")
	w := NewWorker(store, p, 0)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		didWork, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce %d error: %v", i, err)
		}
		if !didWork {
			t.Fatalf("RunOnce %d returned false", i)
		}
		if i < 3 {
			resetRunAfter(t, store, jobID)
		}
	}

	if got := jobStatus(t, store, jobID); got.Status != storage.JobFailed {
		t.Errorf("final status = %q, want %q", got.Status, storage.JobFailed)
	}
}

func TestWorker_PermanentFailures(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty document", `{"name":"empty.txt","data":""}`},
		{"unsupported format", `{"name":"notes.txt","format":"docx","data":"aGVsbG8="}`},
		{"bad json", `{"name":`},
		{"missing name", `{"data":"aGVsbG8="}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, store, _ := newTestPipeline(t, &mockEmbedder{})
			job := storage.Job{ID: "job-1", Type: JobType, PayloadJSON: tt.payload, MaxAttempts: 3}
			if err := store.EnqueueJob(job); err != nil {
				t.Fatalf("EnqueueJob: %v", err)
			}

			w := NewWorker(store, p, 0)
			if _, err := w.RunOnce(context.Background()); err != nil {
				t.Fatalf("RunOnce error: %v", err)
			}

			got := jobStatus(t, store, "job-1")
			if got.Status != storage.JobFailed || got.Attempts != 1 {
				t.Errorf("status=%q attempts=%d, want failed after 1 attempt", got.Status, got.Attempts)
			}
			if got.LastError == "" {
				t.Error("LastError not recorded")
			}
		})
	}
}

func TestWorker_ConcurrentEnqueue(t *testing.T) {
	p, store, _ := newTestPipeline(t, &mockEmbedder{})

	const goroutines = 5
	const jobsPerGoroutine = 10
	const total = goroutines * jobsPerGoroutine

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for j := 0; j < jobsPerGoroutine; j++ {
				job, err := NewJob(fmt.Sprintf("doc-%d-%d.txt", g, j), loader.Text, []byte(fmt.Sprintf("content %d-%d", g, j)))
				if err != nil {
					t.Errorf("NewJob: %v", err)
					return
				}
				if err := store.EnqueueJob(job); err != nil {
					t.Errorf("EnqueueJob %s: %v", job.ID, err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	w := NewWorker(store, p, 0)
	ctx := context.Background()
	deadline := time.After(5 * time.Second)
	processed := 0
	for processed < total {
		select {
		case <-deadline:
			t.Fatalf("timed out after processing %d/%d jobs", processed, total)
		default:
		}
		didWork, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce error at job %d: %v", processed, err)
		}
		if didWork {
			processed++
		}
	}

	docs, err := store.ListDocuments()
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != total {
		t.Errorf("catalog has %d documents, want %d", len(docs), total)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	p, store, _ := newTestPipeline(t, &mockEmbedder{})
	w := NewWorker(store, p, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	jobID := enqueueTestJob(t, store, "live.txt", "picked up while running")
	deadline := time.Now().Add(2 * time.Second)
	for jobStatus(t, store, jobID).Status != storage.JobCompleted {
		if time.Now().After(deadline) {
			t.Fatal("job not processed by Run")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

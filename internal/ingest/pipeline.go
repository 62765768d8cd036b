// Package ingest turns document bytes into searchable chunks: load, chunk,
// embed, and replace the document's records in the vector index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/hrassist/internal/chunker"
	"github.com/kalambet/hrassist/internal/loader"
	"github.com/kalambet/hrassist/internal/metrics"
	"github.com/kalambet/hrassist/internal/retrieval"
	"github.com/kalambet/hrassist/internal/storage"
)

// Pipeline stages reported in IngestionError.Stage.
const (
	StageLoad    = "load"
	StageChunk   = "chunk"
	StageEmbed   = "embed"
	StageIndex   = "index"
	StageCatalog = "catalog"
)

const defaultConcurrency = 4

// documentNamespace seeds the name-based document IDs.
var documentNamespace = uuid.MustParse("6f1c3b52-8d7e-4a41-9b0f-2e5d7c9a1b44")

// DocumentID returns the stable identifier for a document name. Ingesting
// the same name again replaces the earlier version.
func DocumentID(name string) string {
	return uuid.NewSHA1(documentNamespace, []byte(name)).String()
}

// Source is one document to ingest. An empty Format is detected from the
// name and content.
type Source struct {
	Name   string
	Path   string
	Format loader.Format
	Data   []byte
}

// IngestionError reports a document that failed at one stage. It never
// aborts the rest of a batch.
type IngestionError struct {
	DocumentID string
	Name       string
	Stage      string
	Err        error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingesting %s (%s): %v", e.Name, e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// Result is the outcome for one document.
type Result struct {
	DocumentID string
	Name       string
	Format     loader.Format
	Chunks     int
	Err        *IngestionError
}

// OK reports whether the document was ingested.
func (r Result) OK() bool { return r.Err == nil }

// Report lists per-document results in input order.
type Report struct {
	Results []Result
}

// Succeeded returns the number of ingested documents.
func (r Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.OK() {
			n++
		}
	}
	return n
}

// Failures returns the errors of the documents that were not ingested.
func (r Report) Failures() []*IngestionError {
	var out []*IngestionError
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res.Err)
		}
	}
	return out
}

// BatchEmbedder embeds chunk texts.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is the part of the vector index the pipeline writes to.
type Index interface {
	Replace(ctx context.Context, documentID string, records []retrieval.VectorRecord) error
	Delete(ctx context.Context, documentID string) (int, error)
}

// Catalog stores document metadata next to the index.
type Catalog interface {
	SaveDocument(doc storage.Document) error
	DeleteDocument(id string) error
}

// Pipeline ingests documents. Different documents run concurrently; two
// ingestions of the same document ID are serialized.
type Pipeline struct {
	embedder    BatchEmbedder
	index       Index
	catalog     Catalog
	chunker     *chunker.Chunker
	locks       *keyedMutex
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

// NewPipeline creates a Pipeline. A nil chunker uses the default window.
func NewPipeline(embedder BatchEmbedder, index Index, catalog Catalog, ch *chunker.Chunker) *Pipeline {
	if ch == nil {
		ch = chunker.New(chunker.DefaultSize, chunker.DefaultOverlap)
	}
	return &Pipeline{
		embedder:    embedder,
		index:       index,
		catalog:     catalog,
		chunker:     ch,
		locks:       newKeyedMutex(),
		concurrency: defaultConcurrency,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      slog.Default(),
	}
}

// Ingest processes every source and reports each one individually.
func (p *Pipeline) Ingest(ctx context.Context, sources []Source) Report {
	results := make([]Result, len(sources))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			results[i] = p.ingestOne(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	return Report{Results: results}
}

func (p *Pipeline) ingestOne(ctx context.Context, src Source) Result {
	id := DocumentID(src.Name)
	res := Result{DocumentID: id, Name: src.Name, Format: src.Format}
	fail := func(stage string, err error) Result {
		res.Err = &IngestionError{DocumentID: id, Name: src.Name, Stage: stage, Err: err}
		p.logger.Warn("document ingestion failed", "document", src.Name, "stage", stage, "error", err)
		metrics.ObserveIngestion(stage)
		return res
	}

	if res.Format == "" {
		f, err := loader.Detect(src.Name, src.Data)
		if err != nil {
			return fail(StageLoad, err)
		}
		res.Format = f
	}

	text, err := loader.Load(res.Format, src.Data)
	if err != nil {
		return fail(StageLoad, err)
	}

	chunks, err := p.chunker.Split(id, text)
	if err != nil {
		return fail(StageChunk, err)
	}

	unlock := p.locks.Lock(id)
	defer unlock()

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fail(StageEmbed, err)
	}

	now := p.now()
	records := make([]retrieval.VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = retrieval.VectorRecord{
			ID:           retrieval.RecordID(id, c.Index),
			DocumentID:   id,
			DocumentName: src.Name,
			ChunkIndex:   c.Index,
			Text:         c.Text,
			Start:        c.Start,
			End:          c.End,
			Embedding:    vecs[i],
			CreatedAt:    now,
		}
	}
	if err := p.index.Replace(ctx, id, records); err != nil {
		return fail(StageIndex, err)
	}

	source := src.Path
	if source == "" {
		source = src.Name
	}
	doc := storage.Document{
		ID:         id,
		Name:       src.Name,
		Source:     source,
		Format:     string(res.Format),
		Content:    text,
		ChunkCount: len(chunks),
		IngestedAt: now,
	}
	if err := p.catalog.SaveDocument(doc); err != nil {
		return fail(StageCatalog, err)
	}

	res.Chunks = len(chunks)
	metrics.ObserveIngestion("ok")
	p.logger.Info("document ingested", "document", src.Name, "id", id, "format", res.Format, "chunks", len(chunks))
	return res
}

// IngestDir ingests the regular files directly inside dir, in name order.
// Hidden files are ignored; files with an unsupported extension get a
// failed report entry.
func (p *Pipeline) IngestDir(ctx context.Context, dir string) (Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Report{}, fmt.Errorf("reading document dir: %w", err)
	}

	var (
		results []Result
		sources []Source
		slots   []int
	)
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		src, err := readSource(path)
		if err != nil {
			results = append(results, Result{
				DocumentID: DocumentID(e.Name()),
				Name:       e.Name(),
				Err:        &IngestionError{DocumentID: DocumentID(e.Name()), Name: e.Name(), Stage: StageLoad, Err: err},
			})
			metrics.ObserveIngestion(StageLoad)
			continue
		}
		slots = append(slots, len(results))
		results = append(results, Result{})
		sources = append(sources, src)
	}

	rep := p.Ingest(ctx, sources)
	for i, r := range rep.Results {
		results[slots[i]] = r
	}
	return Report{Results: results}, nil
}

// IngestFile ingests a single file from disk.
func (p *Pipeline) IngestFile(ctx context.Context, path string) Result {
	src, err := readSource(path)
	if err != nil {
		name := filepath.Base(path)
		metrics.ObserveIngestion(StageLoad)
		return Result{
			DocumentID: DocumentID(name),
			Name:       name,
			Err:        &IngestionError{DocumentID: DocumentID(name), Name: name, Stage: StageLoad, Err: err},
		}
	}
	return p.Ingest(ctx, []Source{src}).Results[0]
}

func readSource(path string) (Source, error) {
	f, err := loader.FormatFromPath(path)
	if err != nil {
		return Source{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return Source{Name: filepath.Base(path), Path: path, Format: f, Data: data}, nil
}

// RemoveDocument deletes a document's chunks and catalog entry. It returns
// storage.ErrNotFound when neither existed.
func (p *Pipeline) RemoveDocument(ctx context.Context, id string) error {
	unlock := p.locks.Lock(id)
	defer unlock()

	n, err := p.index.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	err = p.catalog.DeleteDocument(id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if n == 0 {
			return storage.ErrNotFound
		}
	case err != nil:
		return fmt.Errorf("deleting catalog entry: %w", err)
	}
	p.logger.Info("document removed", "id", id, "chunks", n)
	return nil
}

// keyedMutex hands out one mutex per key and drops it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the mutex for key and returns its release func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

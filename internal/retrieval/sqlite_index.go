package retrieval

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

var _ VectorIndex = (*SQLiteIndex)(nil)

// SQLiteIndex stores vectors in the chunks table and answers queries with a
// brute-force cosine scan. The table is created by storage migrations.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex wraps an existing *sql.DB.
func NewSQLiteIndex(db *sql.DB) *SQLiteIndex {
	return &SQLiteIndex{db: db}
}

const upsertChunkSQL = `
	INSERT INTO chunks (id, document_id, document_name, chunk_index, text, start_offset, end_offset, embedding, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		document_id = excluded.document_id,
		document_name = excluded.document_name,
		chunk_index = excluded.chunk_index,
		text = excluded.text,
		start_offset = excluded.start_offset,
		end_offset = excluded.end_offset,
		embedding = excluded.embedding,
		created_at = excluded.created_at`

func (s *SQLiteIndex) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertRecords(ctx, tx, records)
	})
}

func (s *SQLiteIndex) Replace(ctx context.Context, documentID string, records []VectorRecord) error {
	for _, r := range records {
		if r.DocumentID != documentID {
			return fmt.Errorf("record %s belongs to document %s, not %s", r.ID, r.DocumentID, documentID)
		}
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
			return fmt.Errorf("deleting chunks of %s: %w", documentID, err)
		}
		return insertRecords(ctx, tx, records)
	})
}

func (s *SQLiteIndex) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertRecords(ctx context.Context, tx *sql.Tx, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	dim, err := storedDimension(ctx, tx)
	if err != nil {
		return err
	}
	if dim == 0 {
		dim = len(records[0].Embedding)
	}

	stmt, err := tx.PrepareContext(ctx, upsertChunkSQL)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range records {
		if len(r.Embedding) == 0 || len(r.Embedding) != dim {
			return fmt.Errorf("record %s: %w: got %d, want %d", r.ID, ErrDimensionMismatch, len(r.Embedding), dim)
		}
		id := r.ID
		if id == "" {
			id = RecordID(r.DocumentID, r.ChunkIndex)
		}
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := stmt.ExecContext(ctx, id, r.DocumentID, r.DocumentName, r.ChunkIndex, r.Text,
			r.Start, r.End, encodeFloat32s(r.Embedding), createdAt.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("inserting record %s: %w", id, err)
		}
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// storedDimension returns the vector length already in the index, or 0 when
// the index is empty.
func storedDimension(ctx context.Context, q querier) (int, error) {
	var n sql.NullInt64
	err := q.QueryRowContext(ctx, `SELECT length(embedding) FROM chunks LIMIT 1`).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading index dimension: %w", err)
	}
	return int(n.Int64) / 4, nil
}

// seqScore holds only the row sequence and score during the scan phase.
type seqScore struct {
	Seq   int64
	Score float32
}

// Search scans every stored vector, keeps the topK best in a min-heap and
// then loads the full rows for the winners.
func (s *SQLiteIndex) Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT seq, embedding FROM chunks ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	h := &seqScoreHeap{}
	var buf []float32
	for rows.Next() {
		var seq int64
		var blob []byte
		if err := rows.Scan(&seq, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for row %d: %w", seq, err)
		}
		if len(buf) != len(vector) {
			return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(vector), len(buf))
		}

		item := seqScore{Seq: seq, Score: cosine(vector, buf, queryNorm)}
		if h.Len() < topK {
			heap.Push(h, item)
		} else if h.worse((*h)[0], item) {
			(*h)[0] = item
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	if h.Len() == 0 {
		return nil, nil
	}

	scores := make(map[int64]float32, h.Len())
	args := make([]any, 0, h.Len())
	for _, item := range *h {
		scores[item.Seq] = item.Score
		args = append(args, item.Seq)
	}

	fullRows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, document_id, document_name, chunk_index, text, start_offset, end_offset, embedding, created_at
		FROM chunks WHERE seq IN (?`+strings.Repeat(",?", len(args)-1)+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching top-K records: %w", err)
	}
	defer fullRows.Close()

	type ranked struct {
		seq int64
		rec ScoredRecord
	}
	var results []ranked
	for fullRows.Next() {
		var seq int64
		var r VectorRecord
		var blob []byte
		var createdAt string
		if err := fullRows.Scan(&seq, &r.ID, &r.DocumentID, &r.DocumentName, &r.ChunkIndex, &r.Text,
			&r.Start, &r.End, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning full record: %w", err)
		}
		if r.Embedding, err = decodeFloat32s(blob); err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", r.ID, err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for %s: %w", r.ID, err)
		}
		results = append(results, ranked{seq: seq, rec: ScoredRecord{VectorRecord: r, Score: scores[seq]}})
	}
	if err := fullRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating full records: %w", err)
	}

	// IN does not preserve order.
	sort.Slice(results, func(i, j int) bool {
		if results[i].rec.Score != results[j].rec.Score {
			return results[i].rec.Score > results[j].rec.Score
		}
		return results[i].seq < results[j].seq
	})

	out := make([]ScoredRecord, len(results))
	for i, r := range results {
		out[i] = r.rec
	}
	return out, nil
}

func (s *SQLiteIndex) Delete(ctx context.Context, documentID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks of %s: %w", documentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// ChunksOf returns the records of one document ordered by chunk index.
func (s *SQLiteIndex) ChunksOf(ctx context.Context, documentID string) ([]VectorRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, document_name, chunk_index, text, start_offset, end_offset, embedding, created_at
		FROM chunks WHERE document_id = ? ORDER BY chunk_index ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks of %s: %w", documentID, err)
	}
	defer rows.Close()

	var records []VectorRecord
	for rows.Next() {
		var r VectorRecord
		var blob []byte
		var createdAt string
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.DocumentName, &r.ChunkIndex, &r.Text,
			&r.Start, &r.End, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if r.Embedding, err = decodeFloat32s(blob); err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", r.ID, err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for %s: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
func decodeFloat32s(b []byte) ([]float32, error) {
	return decodeFloat32sInto(nil, b)
}

// decodeFloat32sInto decodes into buf, reusing its backing array when large
// enough.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes dot(a,b) / (aNorm * |b|). aNorm is the precomputed norm of a.
func cosine(a, b []float32, aNorm float32) float32 {
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// seqScoreHeap is a min-heap whose root is the current worst candidate:
// lowest score, and among equal scores the latest inserted row.
type seqScoreHeap []seqScore

func (h seqScoreHeap) worse(a, b seqScore) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Seq > b.Seq
}

func (h seqScoreHeap) Len() int           { return len(h) }
func (h seqScoreHeap) Less(i, j int) bool { return h.worse(h[i], h[j]) }
func (h seqScoreHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *seqScoreHeap) Push(x any)        { *h = append(*h, x.(seqScore)) }
func (h *seqScoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/launchforge/launchpad/internal/domain"
)

// defaultBatchSize bounds how many rows one archive object holds.
const defaultBatchSize = 5000

// AuditArchiveStore is the slice of the audit store the archiver needs.
type AuditArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.AuditEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventArchiveStore is the slice of the event journal the archiver needs.
type EventArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ProcessedEvent, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ArchiveImpl implements domain.Archiver by draining rows older than the
// cutoff from the primary store into JSONL objects in cold storage, then
// deleting them. Each batch is uploaded before the next is read, so a failed
// sweep never loses rows; at worst it re-uploads a batch on the next run.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	audit     AuditArchiveStore
	events    EventArchiveStore
	batchSize int
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, audit AuditArchiveStore, events EventArchiveStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:    writer,
		audit:     audit,
		events:    events,
		batchSize: defaultBatchSize,
	}
}

// WithBatchSize overrides the per-object row limit.
func (a *ArchiveImpl) WithBatchSize(n int) *ArchiveImpl {
	if n > 0 {
		a.batchSize = n
	}
	return a
}

// ArchiveAuditLog uploads audit entries older than the cutoff and deletes
// them from the primary store. It returns the number of rows removed.
//
// Each batch is deleted only after its upload succeeds. A batch that fills
// the limit is pruned with a cutoff just short of its newest row, so rows
// sharing that timestamp stay for the next pass.
func (a *ArchiveImpl) ArchiveAuditLog(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for batch := 0; ; batch++ {
		entries, err := a.audit.ListBefore(ctx, before, a.batchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive audit log: %w", err)
		}
		if len(entries) == 0 {
			return total, nil
		}

		path := archivePath("audit", before, batch)
		if err := a.uploadJSONL(ctx, path, len(entries), func(i int) any { return entries[i] }); err != nil {
			return total, err
		}

		prune := before
		full := len(entries) == a.batchSize
		if full {
			prune = entries[len(entries)-1].CreatedAt
		}

		deleted, err := a.audit.DeleteBefore(ctx, prune)
		if err != nil {
			return total, fmt.Errorf("s3blob: prune audit log: %w", err)
		}
		total += deleted

		if !full {
			return total, nil
		}
	}
}

// ArchiveProcessedEvents uploads reconciler journal rows older than the
// cutoff and deletes them from the primary store. It returns the number of
// rows removed. Batching works the same way as ArchiveAuditLog.
func (a *ArchiveImpl) ArchiveProcessedEvents(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for batch := 0; ; batch++ {
		events, err := a.events.ListBefore(ctx, before, a.batchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive processed events: %w", err)
		}
		if len(events) == 0 {
			return total, nil
		}

		path := archivePath("events", before, batch)
		if err := a.uploadJSONL(ctx, path, len(events), func(i int) any { return events[i] }); err != nil {
			return total, err
		}

		prune := before
		full := len(events) == a.batchSize
		if full {
			prune = events[len(events)-1].ProcessedAt
		}

		deleted, err := a.events.DeleteBefore(ctx, prune)
		if err != nil {
			return total, fmt.Errorf("s3blob: prune processed events: %w", err)
		}
		total += deleted

		if !full {
			return total, nil
		}
	}
}

// uploadJSONL serializes n records as newline-delimited JSON and uploads the
// blob in one shot.
func (a *ArchiveImpl) uploadJSONL(ctx context.Context, path string, n int, record func(int) any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := 0; i < n; i++ {
		if err := enc.Encode(record(i)); err != nil {
			return fmt.Errorf("s3blob: encode archive record: %w", err)
		}
	}

	if err := a.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: upload archive %s: %w", path, err)
	}
	return nil
}

// archivePath builds a date-partitioned object key, e.g.
// archive/audit/2026/08/audit-1756598400-0.jsonl.
func archivePath(kind string, cutoff time.Time, batch int) string {
	return fmt.Sprintf("archive/%s/%04d/%02d/%s-%d-%d.jsonl",
		kind, cutoff.Year(), int(cutoff.Month()), kind, cutoff.Unix(), batch)
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)

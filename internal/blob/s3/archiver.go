package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/curatorlabs/marketd/internal/domain"
)

// ArchiveImpl implements domain.Archiver by reading old records from the
// ledger event journal, serializing them to JSONL, and uploading the result
// to S3. Deletion from the journal is intentionally not performed here; the
// operation history stays queryable, the archive is the cold copy observers
// can backfill from.
type ArchiveImpl struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	events domain.EventStore
}

// NewArchiver creates an ArchiveImpl over the given writer, reader, and
// journal. The reader may be nil; it is only used to skip cutoff dates that
// were already uploaded.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, events domain.EventStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		reader: reader,
		events: events,
	}
}

// jsonlEvent is the archived line format: the journal row plus its payload
// inlined, so the archive is self-describing without the database.
type jsonlEvent struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// ArchiveEvents uploads all journal entries created strictly before the
// cutoff as one JSONL object, keyed by the cutoff date. It returns the
// number of archived records; zero records uploads nothing.
func (a *ArchiveImpl) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	path := fmt.Sprintf("archive/events/%s.jsonl", before.UTC().Format("2006-01-02"))

	// A daemon restart re-runs the same cutoff date; the existing object is
	// authoritative, so skip the upload.
	if a.reader != nil {
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive events: head %s: %w", path, err)
		}
		if exists {
			return 0, nil
		}
	}

	events, err := a.events.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events: list: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ev := range events {
		line := jsonlEvent{
			ID:        ev.ID,
			Type:      string(ev.Type),
			Payload:   ev.Payload,
			CreatedAt: ev.CreatedAt,
		}
		if err := enc.Encode(line); err != nil {
			return 0, fmt.Errorf("s3blob: archive events: encode record %d: %w", ev.ID, err)
		}
	}

	if err := a.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive events: upload %s: %w", path, err)
	}
	return int64(len(events)), nil
}

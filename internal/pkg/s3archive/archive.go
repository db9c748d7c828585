package s3archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/app/models"
)

const scanLogBatchSize = 1000

// Result describes one finished archive upload.
type Result struct {
	ObjectKey string
	Entries   int
	Bytes     int64
}

// WriteScanLogs encodes entries as JSON lines.
func WriteScanLogs(w io.Writer, entries []models.ScanLog) error {
	enc := json.NewEncoder(w)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			return err
		}
	}
	return nil
}

// ArchiveEventScanLogs exports an event's full scan log as one JSON-lines
// object. The log is append-only, so the export is a point-in-time copy and
// the rows stay in the database.
func ArchiveEventScanLogs(ctx context.Context, db *gorm.DB, up Uploader, event *models.Event, at time.Time) (*Result, error) {
	var buf bytes.Buffer
	entries := 0
	err := models.EachEventScanLog(db.WithContext(ctx), event.ID, scanLogBatchSize, func(batch []models.ScanLog) error {
		entries += len(batch)
		return WriteScanLogs(&buf, batch)
	})
	if err != nil {
		return nil, fmt.Errorf("read scan log for event %s: %w", event.UUID, err)
	}

	key := ObjectKey(event.UUID, at)
	size := int64(buf.Len())
	if err := up.Upload(ctx, key, &buf, size, "application/x-ndjson"); err != nil {
		return nil, err
	}
	log.Infof("[S3Archive] Archived %d scan log entries of event %s to %s", entries, event.UUID, key)
	return &Result{ObjectKey: key, Entries: entries, Bytes: size}, nil
}

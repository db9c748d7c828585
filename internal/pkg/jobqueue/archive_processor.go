package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/app/models"
	"github.com/ManuelReschke/TicketFox/internal/pkg/s3archive"
)

// ErrArchiveDisabled is returned when no archive bucket is configured.
var ErrArchiveDisabled = errors.New("scan-log archive is disabled")

// ScanLogArchiver runs archive_scan_logs jobs.
type ScanLogArchiver struct {
	db       *gorm.DB
	uploader s3archive.Uploader
	now      func() time.Time
}

func NewScanLogArchiver(db *gorm.DB, uploader s3archive.Uploader) *ScanLogArchiver {
	return &ScanLogArchiver{db: db, uploader: uploader, now: func() time.Time { return time.Now().UTC() }}
}

func (a *ScanLogArchiver) Handle(ctx context.Context, job *Job) error {
	if a.uploader == nil {
		return ErrArchiveDisabled
	}
	payload, err := ArchiveScanLogsJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid archive_scan_logs payload: %w", err)
	}
	event, err := models.FindEventByUUID(a.db.WithContext(ctx), payload.EventUUID)
	if err != nil {
		return fmt.Errorf("load event %s: %w", payload.EventUUID, err)
	}
	_, err = s3archive.ArchiveEventScanLogs(ctx, a.db, a.uploader, event, a.now())
	return err
}

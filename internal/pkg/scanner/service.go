package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/app/models"
	"github.com/ManuelReschke/TicketFox/internal/pkg/validation"
)

const DefaultTxTimeout = 2 * time.Second

// Verifier checks a ticket signature. *security.TicketSigner implements it.
type Verifier interface {
	Verify(token, signature string) bool
}

type Options struct {
	TxTimeout time.Duration
	Now       func() time.Time
}

// Service admits tickets at the door. A ticket is admitted at most once: the
// row is locked with NOWAIT and the used transition is a compare-and-set.
type Service struct {
	repo     Repository
	verifier Verifier
	opts     Options
}

func NewService(repo Repository, verifier Verifier, opts Options) *Service {
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = DefaultTxTimeout
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{repo: repo, verifier: verifier, opts: opts}
}

func NewServiceFromDB(db *gorm.DB, verifier Verifier, opts Options) *Service {
	return NewService(NewRepository(db), verifier, opts)
}

// ScanTicket processes one scan. Every outcome is a value; errors mean the
// request was malformed or storage failed.
//
// Each call that passes signature verification appends exactly one scan log
// entry. signature_invalid is answered before storage is read, so those
// attempts only show up in the application log.
func (s *Service) ScanTicket(ctx context.Context, req ScanRequest) (*ScanOutcome, error) {
	req.Token = strings.TrimSpace(req.Token)
	req.Signature = strings.TrimSpace(req.Signature)
	if fields := validation.Struct(req); fields != nil {
		return nil, &ValidationError{Fields: fields}
	}

	if s.verifier == nil || !s.verifier.Verify(req.Token, req.Signature) {
		log.Warnf("[Scanner] Security: rejected signature for token %s from device %s (%s)",
			tokenHint(req.Token), req.DeviceID, req.ScannedBy)
		return &ScanOutcome{Result: ResultSignatureInvalid}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	var (
		out   *ScanOutcome
		found *models.Ticket
	)
	err := s.repo.Transaction(ctx, func(tx Tx) error {
		out, found = nil, nil
		now := s.opts.Now()

		ticket, err := tx.FindTicketByToken(req.Token)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			out = &ScanOutcome{Result: ResultNotFound}
			return s.appendLog(tx, out, s.logEntry(req, nil, ResultNotFound))
		}
		if err != nil {
			return err
		}
		found = ticket

		if req.OperatorID != 0 {
			owner, err := tx.EventOperatorID(ticket.EventID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if owner != req.OperatorID {
				// Nothing about another operator's ticket goes back to the device.
				out = &ScanOutcome{Result: ResultWrongEvent}
				log.Warnf("[Scanner] Operator %d scanned ticket %d of event %d owned by another operator",
					req.OperatorID, ticket.ID, ticket.EventID)
				return s.appendLog(tx, out, s.logEntry(req, ticket, ResultWrongEvent))
			}
		}

		if req.EventID != 0 && ticket.EventID != req.EventID {
			out = &ScanOutcome{Result: ResultWrongEvent, Ticket: ticket}
			return s.appendLog(tx, out, s.logEntry(req, ticket, ResultWrongEvent))
		}

		locked, err := tx.LockTicketNoWait(ticket.ID)
		if err != nil {
			return err
		}

		switch locked.Status {
		case models.TicketStatusUsed:
			out = &ScanOutcome{Result: ResultAlreadyScanned, Ticket: locked, PreviousScan: previousScan(locked)}
		case models.TicketStatusIssued:
			affected, err := tx.MarkTicketUsed(locked.ID, now, req.ScannedBy, req.DeviceID)
			if err != nil {
				return err
			}
			if affected == 1 {
				locked.Status = models.TicketStatusUsed
				locked.UsedAt = &now
				locked.ScannedBy = req.ScannedBy
				locked.ScanDeviceID = req.DeviceID
				out = &ScanOutcome{Result: ResultAdmitted, Ticket: locked}
			} else {
				out = &ScanOutcome{Result: ResultAlreadyScanned, Ticket: locked, PreviousScan: previousScan(locked)}
			}
		default:
			out = &ScanOutcome{Result: ResultNotValid, Ticket: locked}
		}
		return s.appendLog(tx, out, s.logEntry(req, locked, out.Result))
	})

	if errors.Is(err, ErrTicketLocked) && found != nil {
		entry := s.logEntry(req, found, ResultConcurrent)
		if err := s.repo.AppendScanLog(ctx, entry); err != nil {
			return nil, fmt.Errorf("log concurrent scan: %w", err)
		}
		out = &ScanOutcome{Result: ResultConcurrent, Ticket: found, ScanLogID: entry.ID}
		log.Infof("[Scanner] Ticket %d is being scanned elsewhere, device %s told to retry", found.ID, req.DeviceID)
		return out, nil
	}
	if err != nil {
		log.Errorf("[Scanner] Scan of token %s failed: %v", tokenHint(req.Token), err)
		return nil, fmt.Errorf("scan ticket: %w", err)
	}

	switch out.Result {
	case ResultAdmitted:
		log.Infof("[Scanner] Ticket %d admitted by %s on %s", out.Ticket.ID, req.ScannedBy, req.DeviceID)
	case ResultAlreadyScanned:
		log.Warnf("[Scanner] Ticket %d presented again at %s", out.Ticket.ID, req.DeviceID)
	}
	return out, nil
}

func (s *Service) appendLog(tx Tx, out *ScanOutcome, entry *models.ScanLog) error {
	if err := tx.AppendScanLog(entry); err != nil {
		return err
	}
	out.ScanLogID = entry.ID
	return nil
}

func (s *Service) logEntry(req ScanRequest, ticket *models.Ticket, result Result) *models.ScanLog {
	entry := &models.ScanLog{
		Token:           req.Token,
		DeviceID:        req.DeviceID,
		ScannedBy:       req.ScannedBy,
		Result:          string(result),
		ClientScannedAt: req.ClientScannedAt,
	}
	if ticket != nil {
		id, eventID := ticket.ID, ticket.EventID
		entry.TicketID = &id
		entry.EventID = &eventID
	}
	if req.EventID != 0 {
		eventID := req.EventID
		entry.EventID = &eventID
	}
	return entry
}

func previousScan(t *models.Ticket) *PreviousScan {
	if t.UsedAt == nil {
		return nil
	}
	return &PreviousScan{At: *t.UsedAt, DeviceID: t.ScanDeviceID, ScannedBy: t.ScannedBy}
}

// tokenHint keeps full tokens out of the logs.
func tokenHint(token string) string {
	if len(token) <= 6 {
		return token
	}
	return token[:6] + "..."
}

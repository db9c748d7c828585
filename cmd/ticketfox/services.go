package main

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/app/controllers"
	"github.com/ManuelReschke/TicketFox/app/repository"
	apiv1 "github.com/ManuelReschke/TicketFox/internal/api/v1"
	"github.com/ManuelReschke/TicketFox/internal/pkg/config"
	"github.com/ManuelReschke/TicketFox/internal/pkg/hcaptcha"
	"github.com/ManuelReschke/TicketFox/internal/pkg/inventory"
	"github.com/ManuelReschke/TicketFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TicketFox/internal/pkg/mail"
	"github.com/ManuelReschke/TicketFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/TicketFox/internal/pkg/payments"
	"github.com/ManuelReschke/TicketFox/internal/pkg/s3archive"
	"github.com/ManuelReschke/TicketFox/internal/pkg/scanner"
	"github.com/ManuelReschke/TicketFox/internal/pkg/security"
	"github.com/ManuelReschke/TicketFox/internal/pkg/statistics"
)

type services struct {
	orders   *inventory.Service
	gateway  *payments.Service
	scans    *scanner.Service
	manager  *jobqueue.Manager
	archives bool
}

// setupServices builds the domain services, the background manager and the
// global controller the router delegates to.
func setupServices(cfg *config.Config, db *gorm.DB, basePath string) *services {
	signer := security.NewTicketSigner(cfg.TicketSigningSecret)

	s := &services{
		orders: inventory.NewServiceFromDB(db, inventory.Options{
			ReservationTTL: cfg.ReservationTTL,
			TxTimeout:      cfg.OrderTxTimeout,
		}),
		gateway: payments.NewServiceFromDB(db, signer, payments.Options{
			Provider:      cfg.PaymentProvider,
			WebhookSecret: cfg.PaymentWebhookSecret,
			Tolerance:     cfg.PaymentWebhookTolerance,
			TxTimeout:     cfg.WebhookTxTimeout,
		}),
		scans: scanner.NewServiceFromDB(db, signer, scanner.Options{
			TxTimeout: cfg.ScanTxTimeout,
		}),
	}

	queue := jobqueue.NewQueue(jobqueue.QueueOptions{
		Workers:    cfg.JobQueueWorkers,
		RetryDelay: cfg.JobRetryDelay,
	})
	mailer := jobqueue.NewOrderEmailProcessor(jobqueue.NewOrderEmailStore(db), mail.NewSMTPMailerFromEnv(), cfg.MailRatePerSecond)
	queue.RegisterHandler(jobqueue.JobTypeSendOrderEmail, mailer.Handle)

	s3cfg, err := s3archive.LoadConfig()
	if err != nil {
		log.Errorf("[S3Archive] Invalid configuration, archive disabled: %v", err)
	} else if s3cfg.IsEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := s3archive.NewClient(ctx, s3cfg)
		cancel()
		if err != nil {
			log.Errorf("[S3Archive] Bucket unavailable, archive disabled: %v", err)
		} else {
			queue.RegisterHandler(jobqueue.JobTypeArchiveScanLogs, jobqueue.NewScanLogArchiver(db, client).Handle)
			s.archives = true
		}
	}

	admissions := counter.Default()
	s.manager = jobqueue.NewManager(queue, jobqueue.Dependencies{
		Sweeper:  s.orders,
		Purger:   s.gateway,
		Outbox:   jobqueue.NewOutbox(db),
		Counters: admissions,
	}, jobqueue.ManagerOptions{
		DispatchInterval: cfg.MailDispatchInterval,
		MailBatchSize:    cfg.MailBatchSize,
		SweepInterval:    cfg.SweepInterval,
		SweepBatchSize:   cfg.SweepBatchSize,
		LedgerRetention:  cfg.PaymentLedgerRetention,
	})
	jobqueue.SetManager(s.manager)

	if _, err := apiv1.LoadSpec(context.Background(), basePath+"public/docs/v1/openapi.yml"); err != nil {
		log.Warnf("[Server] OpenAPI document: %v", err)
	}

	repos := repository.Initialize(db)
	deps := controllers.Dependencies{
		Orders:          s.orders,
		Payments:        s.gateway,
		Scanner:         s.scans,
		Stats:           statistics.NewServiceFromDB(db),
		Cache:           controllers.RedisAvailabilityCache{},
		AvailabilityTTL: cfg.AvailabilityTTL,
		Repos:           repos,
		OnAdmitted: func(eventID uint) {
			if err := admissions.Add(context.Background(), eventID); err != nil {
				log.Warnf("[Scan] Admission counter for event %d: %v", eventID, err)
			}
		},
	}
	if captcha := hcaptcha.NewFromEnv(); captcha.Enabled() {
		deps.Captcha = captcha
	}
	if s.archives {
		deps.Archives = s.manager
	}
	controllers.InitializeTicketingController(deps)

	return s
}

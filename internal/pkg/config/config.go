package config

import (
	"errors"
	"time"

	"github.com/ManuelReschke/TicketFox/internal/pkg/env"
)

// Config is the runtime configuration shared by the HTTP server and the
// background manager. Values come from the .env file or the process
// environment, see env.GetEnv.
type Config struct {
	TicketSigningSecret string

	ReservationTTL  time.Duration
	OrderTxTimeout  time.Duration
	ScanTxTimeout   time.Duration
	SweepInterval   time.Duration
	SweepBatchSize  int
	AvailabilityTTL time.Duration

	PaymentProvider         string
	PaymentWebhookSecret    string
	PaymentWebhookTolerance time.Duration
	WebhookTxTimeout        time.Duration
	PaymentLedgerRetention  time.Duration

	MailDispatchInterval time.Duration
	MailBatchSize        int
	MailRatePerSecond    int

	JobQueueWorkers int
	JobRetryDelay   time.Duration
}

// Load reads the configuration once. Missing secrets are not an error here:
// the signer and the webhook gateway fail closed on an empty secret.
func Load() *Config {
	return &Config{
		TicketSigningSecret: env.GetEnv("TICKET_SIGNING_SECRET", ""),

		ReservationTTL:  env.GetEnvDuration("RESERVATION_TTL", 15*time.Minute),
		OrderTxTimeout:  env.GetEnvDuration("ORDER_TX_TIMEOUT", 5*time.Second),
		ScanTxTimeout:   env.GetEnvDuration("SCAN_TX_TIMEOUT", 2*time.Second),
		SweepInterval:   env.GetEnvDuration("RESERVATION_SWEEP_INTERVAL", time.Minute),
		SweepBatchSize:  env.GetEnvInt("RESERVATION_SWEEP_BATCH", 200),
		AvailabilityTTL: env.GetEnvDuration("AVAILABILITY_CACHE_TTL", 2*time.Second),

		PaymentProvider:         env.GetEnv("PAYMENT_PROVIDER", "stripe"),
		PaymentWebhookSecret:    env.GetEnv("PAYMENT_WEBHOOK_SECRET", ""),
		PaymentWebhookTolerance: env.GetEnvDuration("PAYMENT_WEBHOOK_TOLERANCE", 5*time.Minute),
		WebhookTxTimeout:        env.GetEnvDuration("WEBHOOK_TX_TIMEOUT", 10*time.Second),
		PaymentLedgerRetention:  env.GetEnvDuration("PAYMENT_LEDGER_RETENTION", 30*24*time.Hour),

		MailDispatchInterval: env.GetEnvDuration("MAIL_DISPATCH_INTERVAL", 10*time.Second),
		MailBatchSize:        env.GetEnvInt("MAIL_BATCH_SIZE", 50),
		MailRatePerSecond:    env.GetEnvInt("MAIL_RATE_PER_SECOND", 5),

		JobQueueWorkers: env.GetEnvInt("JOB_QUEUE_WORKERS", 3),
		JobRetryDelay:   env.GetEnvDuration("JOB_RETRY_DELAY", time.Minute),
	}
}

// Validate reports configuration that would make the service unusable.
func (c *Config) Validate() error {
	if c.TicketSigningSecret == "" {
		return errors.New("TICKET_SIGNING_SECRET is required")
	}
	if len(c.TicketSigningSecret) < 32 {
		return errors.New("TICKET_SIGNING_SECRET must be at least 32 characters")
	}
	if c.PaymentWebhookSecret == "" {
		return errors.New("PAYMENT_WEBHOOK_SECRET is required")
	}
	if c.ReservationTTL < time.Minute {
		return errors.New("RESERVATION_TTL must be at least 1m")
	}
	if c.MailRatePerSecond <= 0 {
		return errors.New("MAIL_RATE_PER_SECOND must be positive")
	}
	return nil
}

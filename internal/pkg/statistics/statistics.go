package statistics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/app/models"
	"github.com/ManuelReschke/TicketFox/internal/pkg/cache"
)

const (
	CacheKeyEventStats = "statistics:event:%d"
	CacheExpiration    = 30 * time.Second
)

// EventStats summarises sales and admissions of one event.
type EventStats struct {
	EventID         uint      `json:"eventId"`
	OrdersPaid      int64     `json:"ordersPaid"`
	OrdersPending   int64     `json:"ordersPending"`
	TicketsIssued   int64     `json:"ticketsIssued"`
	TicketsUsed     int64     `json:"ticketsUsed"`
	TicketsRefunded int64     `json:"ticketsRefunded"`
	RevenueCents    int64     `json:"revenueCents"`
	AdmittedCount   int64     `json:"admittedCount"`
	ComputedAt      time.Time `json:"computedAt"`
}

// Counter computes fresh statistics from the primary store.
type Counter interface {
	CountEvent(event *models.Event) (*EventStats, error)
}

// Cache is the subset of the redis cache used for statistics.
type Cache interface {
	GetJSON(c context.Context, key string, v interface{}) error
	SetJSON(c context.Context, key string, v interface{}, expiration time.Duration) error
}

type Service struct {
	counter Counter
	cache   Cache
	ttl     time.Duration
}

func NewService(counter Counter, c Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = CacheExpiration
	}
	return &Service{counter: counter, cache: c, ttl: ttl}
}

// NewServiceFromDB counts with gorm and caches in redis.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(&gormCounter{db: db}, RedisCache{}, CacheExpiration)
}

// EventStats returns the cached statistics of the event or computes them.
// A cache failure degrades to a direct count.
func (s *Service) EventStats(ctx context.Context, event *models.Event) (*EventStats, error) {
	key := fmt.Sprintf(CacheKeyEventStats, event.ID)
	if s.cache != nil {
		var cached EventStats
		err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			log.Warnf("[Statistics] Cache read for event %d failed: %v", event.ID, err)
		}
	}

	stats, err := s.counter.CountEvent(event)
	if err != nil {
		return nil, fmt.Errorf("count event %d: %w", event.ID, err)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, stats, s.ttl); err != nil {
			log.Warnf("[Statistics] Cache write for event %d failed: %v", event.ID, err)
		}
	}
	return stats, nil
}

// RedisCache adapts the package level redis helpers.
type RedisCache struct{}

func (RedisCache) GetJSON(c context.Context, key string, v interface{}) error {
	return cache.GetJSON(c, key, v)
}

func (RedisCache) SetJSON(c context.Context, key string, v interface{}, expiration time.Duration) error {
	return cache.SetJSON(c, key, v, expiration)
}

type gormCounter struct {
	db *gorm.DB
}

type statusCount struct {
	Status string
	Count  int64
	Sum    int64
}

func (g *gormCounter) CountEvent(event *models.Event) (*EventStats, error) {
	stats := &EventStats{
		EventID:       event.ID,
		AdmittedCount: event.AdmittedCount,
		ComputedAt:    time.Now().UTC(),
	}

	var orders []statusCount
	if err := g.db.Model(&models.Order{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(total_cents), 0) AS sum").
		Where("event_id = ?", event.ID).
		Group("status").
		Scan(&orders).Error; err != nil {
		return nil, err
	}
	for _, row := range orders {
		switch row.Status {
		case models.OrderStatusPaid:
			stats.OrdersPaid = row.Count
			stats.RevenueCents = row.Sum
		case models.OrderStatusPending:
			stats.OrdersPending = row.Count
		}
	}

	var tickets []statusCount
	if err := g.db.Model(&models.Ticket{}).
		Select("status, COUNT(*) AS count").
		Where("event_id = ?", event.ID).
		Group("status").
		Scan(&tickets).Error; err != nil {
		return nil, err
	}
	for _, row := range tickets {
		switch row.Status {
		case models.TicketStatusIssued:
			stats.TicketsIssued = row.Count
		case models.TicketStatusUsed:
			stats.TicketsUsed = row.Count
		case models.TicketStatusRefunded:
			stats.TicketsRefunded = row.Count
		}
	}
	return stats, nil
}

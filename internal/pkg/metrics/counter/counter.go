package counter

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/internal/pkg/cache"
	"github.com/ManuelReschke/TicketFox/internal/pkg/database"
)

const admissionsKey = "ticketfox:counters:admitted"

// Admissions buffers door admissions per event in a Redis hash and folds
// them into events.admitted_count in batches, keeping the scan path free
// of writes to the hot event row.
type Admissions struct {
	client *redis.Client
	db     *gorm.DB
	key    string
}

func NewAdmissions(client *redis.Client, db *gorm.DB) *Admissions {
	return &Admissions{client: client, db: db, key: admissionsKey}
}

// Default uses the shared cache client and database pool.
func Default() *Admissions {
	return NewAdmissions(cache.GetClient(), database.GetDB())
}

// Add counts one admission for the event.
func (a *Admissions) Add(ctx context.Context, eventID uint) error {
	return a.client.HIncrBy(ctx, a.key, strconv.FormatUint(uint64(eventID), 10), 1).Err()
}

// Flush applies the buffered counts in one UPDATE and then subtracts what
// it applied, so admissions counted during the flush stay buffered. When
// the UPDATE fails nothing is subtracted and the next flush retries.
func (a *Admissions) Flush(ctx context.Context) (int, error) {
	data, err := a.client.HGetAll(ctx, a.key).Result()
	if err != nil {
		return 0, err
	}
	pairs := parseIncrements(data)
	if len(pairs) == 0 {
		return 0, nil
	}

	sql, args := buildIncrementSQL("events", "admitted_count", pairs)
	if err := a.db.WithContext(ctx).Exec(sql, args...).Error; err != nil {
		return 0, err
	}

	pipe := a.client.TxPipeline()
	for _, p := range pairs {
		pipe.HIncrBy(ctx, a.key, strconv.FormatUint(p.id, 10), -p.inc)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		// The rows are updated; a second flush would count these again.
		log.Errorf("[Counter] Admissions applied but not drained: %v", err)
		return len(pairs), err
	}
	return len(pairs), nil
}

type increment struct {
	id  uint64
	inc int64
}

// parseIncrements drops malformed fields and zero increments and sorts by
// id so concurrent flushes lock rows in the same order.
func parseIncrements(data map[string]string) []increment {
	pairs := make([]increment, 0, len(data))
	for k, v := range data {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			continue
		}
		inc, err := strconv.ParseInt(v, 10, 64)
		if err != nil || inc == 0 {
			continue
		}
		pairs = append(pairs, increment{id: id, inc: inc})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })
	return pairs
}

// buildIncrementSQL composes
// UPDATE <table> SET <column> = <column> + CASE id WHEN ? THEN ? ... END WHERE id IN (...)
func buildIncrementSQL(table, column string, pairs []increment) (string, []interface{}) {
	var b strings.Builder
	args := make([]interface{}, 0, len(pairs)*3)
	b.WriteString("UPDATE " + table + " SET " + column + " = " + column + " + CASE id")
	for _, p := range pairs {
		b.WriteString(" WHEN ? THEN ?")
		args = append(args, p.id, p.inc)
	}
	b.WriteString(" END WHERE id IN (")
	for i, p := range pairs {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("?")
		args = append(args, p.id)
	}
	b.WriteString(")")
	return b.String(), args
}

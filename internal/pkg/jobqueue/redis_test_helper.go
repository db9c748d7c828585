package jobqueue

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/TicketFox/internal/pkg/env"
)

// testRedis connects to CACHE_HOST or skips the test when no Redis is
// reachable.
func testRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", env.GetEnv("CACHE_HOST", "127.0.0.1"), env.GetEnv("CACHE_PORT", "6379")),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       env.GetEnvInt("CACHE_TEST_DB", 14),
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Skipping Redis-dependent test: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// testQueue builds a queue in a namespace of its own and removes the
// namespace after the test.
func testQueue(t *testing.T, opts QueueOptions) *Queue {
	t.Helper()

	client := testRedis(t)
	if opts.Namespace == "" {
		opts.Namespace = "test:" + strings.ReplaceAll(t.Name(), "/", ":") + ":" + uuid.NewString()[:8]
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 20 * time.Millisecond
	}
	q := NewQueueWithClient(client, opts)

	t.Cleanup(func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, opts.Namespace+":*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	})
	return q
}

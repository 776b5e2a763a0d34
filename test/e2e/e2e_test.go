// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finpost-workers/internal/common/config"
	"finpost-workers/internal/common/database"
	"finpost-workers/internal/common/logger"
	"finpost-workers/internal/queue"
	"finpost-workers/internal/ratelimit"
	"finpost-workers/internal/subscription"
	"finpost-workers/pkg/plans"
)

// These tests run against real Postgres and Redis instances. They are gated
// behind E2E_TESTS=true so the regular test run stays hermetic.

func requireE2E(t *testing.T) *config.Config {
	t.Helper()
	if os.Getenv("E2E_TESTS") != "true" {
		t.Skip("set E2E_TESTS=true to run against real services")
	}
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func createDatabaseTables(t *testing.T, pg *database.PostgresClient) {
	t.Helper()
	schema, err := os.ReadFile("../../migrations/001_schema.sql")
	require.NoError(t, err)
	_, err = pg.DB.Exec(string(schema))
	require.NoError(t, err)
}

func TestFullE2E(t *testing.T) {
	cfg := requireE2E(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	log := logger.NewTestLogger(t)
	t.Log("🚀 Starting full E2E test with real services...")

	// 1. Check all external services are available
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err, "❌ PostgreSQL not reachable")
	defer pg.Close()
	require.NoError(t, pg.Ping(ctx))

	rdb, err := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, err, "❌ Redis not reachable")
	defer rdb.Close()
	require.NoError(t, rdb.Ping(ctx))
	t.Log("✅ All services reachable")

	// 2. Create tables and start from a clean slate
	createDatabaseTables(t, pg)
	_, err = pg.DB.Exec("TRUNCATE queue_items, published_content, payment_records, usage_records, subscriptions CASCADE")
	require.NoError(t, err)
	require.NoError(t, rdb.Client.FlushDB(ctx).Err())

	t.Run("QueueRoundTrip", func(t *testing.T) {
		store := queue.NewStore(pg.DB, log)

		id, err := store.Enqueue(ctx, "🔔 opening bell", queue.PlatformTelegram, queue.PriorityHigh, "e2e", map[string]interface{}{
			"content_type": "opening_bell",
		})
		require.NoError(t, err)

		claimed, err := store.ClaimNext(ctx, queue.PlatformTelegram, 5)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, id, claimed[0].ID)
		assert.Equal(t, queue.StatusProcessing, claimed[0].Status)

		require.NoError(t, store.MarkResult(ctx, id, queue.StatusPosted, ""))

		item, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusPosted, item.Status)
		t.Log("✅ Queue round trip complete")
	})

	t.Run("ConcurrentClaimsNeverOverlap", func(t *testing.T) {
		store := queue.NewStore(pg.DB, log)

		const items = 40
		enqueued := make(map[string]bool, items)
		for i := 0; i < items; i++ {
			id, err := store.Enqueue(ctx, fmt.Sprintf("update %d", i), queue.PlatformSlack, queue.PriorityNormal, "e2e", map[string]interface{}{
				"content_type": "market_update",
			})
			require.NoError(t, err)
			enqueued[id] = true
		}

		// Hammer ClaimNext from several publishers at once; SKIP LOCKED must
		// hand each item to exactly one claimer.
		const claimers = 8
		var mu sync.Mutex
		seen := make(map[string]int, items)
		var wg sync.WaitGroup
		for c := 0; c < claimers; c++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					claimed, err := store.ClaimNext(ctx, queue.PlatformSlack, 3)
					if err != nil || len(claimed) == 0 {
						return
					}
					mu.Lock()
					for _, it := range claimed {
						seen[it.ID]++
					}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Len(t, seen, items, "every enqueued item must be claimed")
		for id, n := range seen {
			assert.Equalf(t, 1, n, "item %s claimed %d times", id, n)
			assert.True(t, enqueued[id])
		}
		t.Log("✅ Concurrent claimers never shared an item")
	})

	t.Run("RateLimiterCooldown", func(t *testing.T) {
		limiter := ratelimit.NewLimiter(rdb.Client, cfg.Cooldowns, log)

		ok, err := limiter.CanPublish(ctx, "market_update")
		require.NoError(t, err)
		assert.True(t, ok, "first publish of the day must be admitted")

		require.NoError(t, limiter.RecordPublish(ctx, "market_update", time.Now()))

		ok, err = limiter.CanPublish(ctx, "market_update")
		require.NoError(t, err)
		assert.False(t, ok, "cooldown must hold across a fresh check")
		t.Log("✅ Rate limiter cooldown holds in real Redis")
	})

	t.Run("SubscriptionLifecycle", func(t *testing.T) {
		catalog, err := plans.Load("../../configs/plans.json")
		require.NoError(t, err)

		mgr := subscription.NewManager(subscription.NewStore(pg.DB, log), catalog, 7, log)
		userID := fmt.Sprintf("e2e-user-%d", time.Now().UnixNano())

		sub, err := mgr.CreateSubscription(ctx, userID, "pro", "monthly")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusTrial, sub.Status)

		allowed, err := mgr.CheckAccess(ctx, userID, "market_updates")
		require.NoError(t, err)
		assert.True(t, allowed)

		paymentID := fmt.Sprintf("pi_e2e_%d", time.Now().UnixNano())
		require.NoError(t, mgr.OnPaymentSucceeded(ctx, sub.ID, "stripe", paymentID, "INR", decimal.NewFromInt(499)))

		allowed, err = mgr.CheckAccess(ctx, userID, "market_updates")
		require.NoError(t, err)
		assert.True(t, allowed)

		require.NoError(t, mgr.CancelSubscription(ctx, sub.ID, false, "e2e teardown"))
		allowed, err = mgr.CheckAccess(ctx, userID, "market_updates")
		require.NoError(t, err)
		assert.False(t, allowed, "a canceled subscription keeps no access")
		t.Log("✅ Subscription lifecycle complete against real Postgres")
	})
}

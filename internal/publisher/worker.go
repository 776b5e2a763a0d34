// Package publisher runs the tick loop that turns market sessions into
// posted content. Each tick is independent: classify the session, work out
// which slots came due, gate them through the rate limiter, enqueue, then
// drain the queue to the channels. A failed tick logs and the next tick
// starts clean.
package publisher

import (
	"context"
	"time"

	"finpost-workers/internal/channels"
	"finpost-workers/internal/common/logger"
	"finpost-workers/internal/common/metrics"
	"finpost-workers/internal/common/observability"
	"finpost-workers/internal/content"
	"finpost-workers/internal/market"
	"finpost-workers/internal/queue"
)

// limiter gates publishes per content type.
type limiter interface {
	CanPublish(ctx context.Context, key string) (bool, error)
	RecordPublish(ctx context.Context, key string, at time.Time) error
}

// store is the queue surface the worker drives.
type store interface {
	Enqueue(ctx context.Context, content string, platform queue.Platform, priority queue.Priority, source string, metadata map[string]interface{}) (string, error)
	ClaimNext(ctx context.Context, platform queue.Platform, max int) ([]*queue.Item, error)
	MarkResult(ctx context.Context, id string, status queue.Status, errMsg string) error
}

// auditor records the publish trail.
type auditor interface {
	RecordPublished(ctx context.Context, item *queue.Item, session market.Session)
}

// failureAlerter hears about channel send outcomes.
type failureAlerter interface {
	ChannelFailure(ctx context.Context, platform string, err error)
	ChannelRecovered(platform string)
}

// sweeper finalizes expired subscriptions as a tick side job.
type sweeper interface {
	FinalizeExpired(ctx context.Context) (int, error)
}

// Worker is the publish loop.
type Worker struct {
	calendar  *market.Calendar
	limiter   limiter
	store     store
	generator content.Generator
	registry  *channels.Registry
	platforms []queue.Platform
	audit     auditor
	alerts    failureAlerter
	subs      sweeper
	obs       *observability.Observability
	logger    logger.Logger

	tickInterval time.Duration
	maxPerTick   int
	now          func() time.Time
	lastTick     time.Time
}

// Options carries the worker's collaborators. audit, alerts, subs and obs
// may be nil; the worker degrades to log-only for those concerns.
type Options struct {
	Calendar      *market.Calendar
	Limiter       limiter
	Store         store
	Generator     content.Generator
	Registry      *channels.Registry
	Platforms     []queue.Platform
	Audit         auditor
	Alerts        failureAlerter
	Subscriptions sweeper
	Observability *observability.Observability
	Logger        logger.Logger
	TickInterval  time.Duration
	MaxPerTick    int
}

func NewWorker(opts Options) *Worker {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Minute
	}
	if opts.MaxPerTick <= 0 {
		opts.MaxPerTick = 10
	}
	return &Worker{
		calendar:     opts.Calendar,
		limiter:      opts.Limiter,
		store:        opts.Store,
		generator:    opts.Generator,
		registry:     opts.Registry,
		platforms:    opts.Platforms,
		audit:        opts.Audit,
		alerts:       opts.Alerts,
		subs:         opts.Subscriptions,
		obs:          opts.Observability,
		logger:       opts.Logger.WithFields(map[string]interface{}{"component": "publisher"}),
		tickInterval: opts.TickInterval,
		maxPerTick:   opts.MaxPerTick,
		now:          time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (w *Worker) WithClock(now func() time.Time) *Worker {
	w.now = now
	return w
}

// Run ticks until the context is canceled. A panic or error inside one tick
// never takes the loop down.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("publisher started", map[string]interface{}{
		"tick_interval": w.tickInterval.String(),
		"platforms":     len(w.platforms),
	})

	// A fresh start publishes nothing retroactively: slots that came due
	// before the process existed belong to a previous run, not this one.
	if w.lastTick.IsZero() {
		w.lastTick = w.now()
	}

	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	// Cancellation stops the loop, not a tick in flight. A half-delivered
	// tick would re-send items on the next start, so each tick runs on a
	// context detached from the shutdown signal.
	w.Tick(context.WithoutCancel(ctx))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("publisher stopping", nil)
			return
		case <-ticker.C:
			w.Tick(context.WithoutCancel(ctx))
		}
	}
}

// Tick runs one full cycle: due-slot enqueue then queue drain.
func (w *Worker) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("tick panicked", map[string]interface{}{"panic": r})
		}
	}()

	start := w.now()
	timer := time.Now()

	session := w.calendar.Classify(start)
	due := w.calendar.DueSlots(start, w.lastTick)
	w.lastTick = start

	for _, contentType := range due {
		w.enqueueSlot(ctx, session, contentType)
	}

	for _, platform := range w.platforms {
		w.drain(ctx, platform, session)
	}

	if w.subs != nil {
		if n, err := w.subs.FinalizeExpired(ctx); err != nil {
			w.logger.WithError(err).Error("finalize expired subscriptions", nil)
		} else if n > 0 {
			w.logger.Info("subscriptions finalized", map[string]interface{}{"count": n})
		}
	}

	elapsed := time.Since(timer)
	metrics.TickDuration.Observe(elapsed.Seconds())
	if w.obs != nil {
		w.obs.RecordPublishDuration(ctx, elapsed, "tick")
	}
	w.logger.Debug("tick complete", map[string]interface{}{
		"session":   string(session),
		"due_slots": len(due),
		"duration":  elapsed.String(),
	})
}

// enqueueSlot generates the slot's content once per platform and enqueues
// it, subject to the per-content-type cooldown.
func (w *Worker) enqueueSlot(ctx context.Context, session market.Session, contentType market.ContentType) {
	if !eligible(session, contentType) {
		w.logger.Debug("slot not eligible in session", map[string]interface{}{
			"content_type": string(contentType),
			"session":      string(session),
		})
		return
	}

	ok, err := w.limiter.CanPublish(ctx, string(contentType))
	if err != nil {
		w.logger.WithError(err).Error("rate limit check", map[string]interface{}{
			"content_type": string(contentType),
		})
		return
	}
	if !ok {
		metrics.PublishesSkipped.WithLabelValues(string(contentType)).Inc()
		w.logger.Debug("slot inside cooldown, skipped", map[string]interface{}{
			"content_type": string(contentType),
		})
		return
	}

	for _, platform := range w.platforms {
		text, err := w.generator.Generate(ctx, contentType, platform)
		if err != nil {
			w.logger.WithError(err).Error("generate content", map[string]interface{}{
				"content_type": string(contentType),
				"platform":     string(platform),
			})
			continue
		}

		metadata := map[string]interface{}{
			"content_type": string(contentType),
			"session":      string(session),
		}
		id, err := w.store.Enqueue(ctx, text, platform, priorityFor(contentType), "scheduler", metadata)
		if err != nil {
			w.logger.WithError(err).Error("enqueue slot content", map[string]interface{}{
				"content_type": string(contentType),
				"platform":     string(platform),
			})
			continue
		}
		w.logger.Info("slot enqueued", map[string]interface{}{
			"item_id":      id,
			"content_type": string(contentType),
			"platform":     string(platform),
		})
	}
}

// drain claims up to maxPerTick items for a platform and sends them.
func (w *Worker) drain(ctx context.Context, platform queue.Platform, session market.Session) {
	items, err := w.store.ClaimNext(ctx, platform, w.maxPerTick)
	if err != nil {
		w.logger.WithError(err).Error("claim queue items", map[string]interface{}{
			"platform": string(platform),
		})
		return
	}

	for _, item := range items {
		w.deliver(ctx, item, session)
	}
}

func (w *Worker) deliver(ctx context.Context, item *queue.Item, session market.Session) {
	msg := channels.Message{
		Platform: item.Platform,
		Text:     item.Content,
		Metadata: item.Metadata,
	}

	if err := w.registry.Send(ctx, msg); err != nil {
		metrics.PublishesTotal.WithLabelValues(string(item.Platform), "failed").Inc()
		if w.obs != nil {
			w.obs.RecordPublish(ctx, string(item.Platform), "failed")
		}
		if w.alerts != nil {
			w.alerts.ChannelFailure(ctx, string(item.Platform), err)
		}
		w.logger.WithError(err).Error("channel send failed", map[string]interface{}{
			"item_id":  item.ID,
			"platform": string(item.Platform),
		})
		if markErr := w.store.MarkResult(ctx, item.ID, queue.StatusFailed, err.Error()); markErr != nil {
			w.logger.WithError(markErr).Error("mark item failed", map[string]interface{}{"item_id": item.ID})
		}
		return
	}

	metrics.PublishesTotal.WithLabelValues(string(item.Platform), "posted").Inc()
	if w.obs != nil {
		w.obs.RecordPublish(ctx, string(item.Platform), "posted")
	}
	if w.alerts != nil {
		w.alerts.ChannelRecovered(string(item.Platform))
	}
	if err := w.store.MarkResult(ctx, item.ID, queue.StatusPosted, ""); err != nil {
		w.logger.WithError(err).Error("mark item posted", map[string]interface{}{"item_id": item.ID})
	}
	// The cooldown starts when a send lands, not when the slot is enqueued.
	// A failed send leaves the limiter untouched so the next eligible tick
	// may retry.
	if ct, ok := item.Metadata["content_type"].(string); ok && ct != "" {
		if err := w.limiter.RecordPublish(ctx, ct, w.now()); err != nil {
			w.logger.WithError(err).Error("record rate limit state", map[string]interface{}{
				"content_type": ct,
			})
		}
	}
	if w.audit != nil {
		w.audit.RecordPublished(ctx, item, session)
	}
	w.logger.Info("published", map[string]interface{}{
		"item_id":  item.ID,
		"platform": string(item.Platform),
	})
}

func eligible(session market.Session, contentType market.ContentType) bool {
	for _, ct := range market.EligibleContentTypes(session) {
		if ct == contentType {
			return true
		}
	}
	return false
}

func priorityFor(contentType market.ContentType) queue.Priority {
	switch contentType {
	case market.ContentNewsAlert:
		return queue.PriorityUrgent
	case market.ContentOpeningBell, market.ContentClosingSummary:
		return queue.PriorityHigh
	default:
		return queue.PriorityNormal
	}
}

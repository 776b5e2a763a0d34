// Package queue is the durable publishing queue. Items are Postgres rows;
// claims are made atomic with FOR UPDATE SKIP LOCKED so an independent process
// (dashboard, second worker) racing on the same pending rows can never claim
// an item twice.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	xerrors "finpost-workers/internal/common/errors"
	"finpost-workers/internal/common/logger"
	"finpost-workers/internal/common/metrics"

	"github.com/google/uuid"
)

type Store struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

func NewStore(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "queue"}),
		now:    time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Enqueue inserts a pending item and returns its id. Content and platform are
// the only required fields; metadata may be nil.
func (s *Store) Enqueue(ctx context.Context, content string, platform Platform, priority Priority, source string, metadata map[string]interface{}) (string, error) {
	if content == "" {
		return "", fmt.Errorf("enqueue: content is required")
	}
	if !ValidPlatform(platform) {
		return "", xerrors.NewUnknownPlatformError(string(platform))
	}
	if priority == "" {
		priority = PriorityNormal
	}

	metaJSON := []byte("{}")
	if metadata != nil {
		var err error
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			return "", fmt.Errorf("enqueue: marshal metadata: %w", err)
		}
	}

	id := uuid.NewString()
	query := `INSERT INTO queue_items (id, content, platform, priority, status, source, metadata_json, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.ExecContext(ctx, query,
		id, content, string(platform), string(priority), string(StatusPending), source, metaJSON, s.now().UTC(),
	)
	if err != nil {
		return "", xerrors.NewQueryExecutionFailedError("enqueue", err)
	}

	metrics.QueueItemsEnqueued.WithLabelValues(string(platform)).Inc()
	s.logger.Info("item enqueued", map[string]interface{}{
		"itemId":   id,
		"platform": platform,
		"priority": priority,
		"source":   source,
	})
	return id, nil
}

// ClaimNext atomically claims up to max pending items for a platform, ordered
// by priority (urgent > high > normal > low) then created_at ascending. A
// claim race lost to another caller is not an error; the loser just sees
// fewer (possibly zero) items.
func (s *Store) ClaimNext(ctx context.Context, platform Platform, max int) ([]*Item, error) {
	if max <= 0 {
		return nil, nil
	}

	query := `
	UPDATE queue_items SET status = $1
	WHERE id IN (
		SELECT id FROM queue_items
		WHERE status = $2 AND platform = $3
		ORDER BY CASE priority
			WHEN 'urgent' THEN 0
			WHEN 'high'   THEN 1
			WHEN 'normal' THEN 2
			ELSE 3
		END, created_at ASC
		LIMIT $4
		FOR UPDATE SKIP LOCKED
	)
	RETURNING id, content, platform, priority, status, source, metadata_json, error, created_at, processed_at`

	rows, err := s.db.QueryContext(ctx, query,
		string(StatusProcessing), string(StatusPending), string(platform), max,
	)
	if err != nil {
		return nil, xerrors.NewQueryExecutionFailedError("claim_next", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("claim_next: scan: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.NewQueryExecutionFailedError("claim_next", err)
	}

	if len(items) > 0 {
		metrics.QueueItemsClaimed.WithLabelValues(string(platform)).Add(float64(len(items)))
	}
	return sortClaimed(items), nil
}

// sortClaimed restores priority-then-FIFO order; RETURNING does not guarantee
// the subselect's ordering.
func sortClaimed(items []*Item) []*Item {
	rank := map[Priority]int{PriorityUrgent: 0, PriorityHigh: 1, PriorityNormal: 2, PriorityLow: 3}
	for i := 1; i < len(items); i++ {
		for j := i; j > 0; j-- {
			a, b := items[j-1], items[j]
			if rank[a.Priority] > rank[b.Priority] ||
				(rank[a.Priority] == rank[b.Priority] && a.CreatedAt.After(b.CreatedAt)) {
				items[j-1], items[j] = b, a
			} else {
				break
			}
		}
	}
	return items
}

// MarkResult transitions a processing item to posted or failed, or a pending
// item to rejected. Re-marking an already-terminal item is an idempotent
// no-op, logged at info.
func (s *Store) MarkResult(ctx context.Context, id string, status Status, errMsg string) error {
	if !status.Terminal() {
		return xerrors.NewInvalidTransitionError(id, "", string(status))
	}

	fromStatus := StatusProcessing
	if status == StatusRejected {
		fromStatus = StatusPending
	}

	query := `UPDATE queue_items SET status = $1, error = $2, processed_at = $3
	          WHERE id = $4 AND status = $5`
	res, err := s.db.ExecContext(ctx, query,
		string(status), errMsg, s.now().UTC(), id, string(fromStatus),
	)
	if err != nil {
		return xerrors.NewQueryExecutionFailedError("mark_result", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark_result: rows affected: %w", err)
	}
	if affected == 0 {
		current, lookupErr := s.Get(ctx, id)
		if lookupErr != nil {
			return lookupErr
		}
		if current.Status.Terminal() {
			s.logger.Info("mark_result on terminal item is a no-op", map[string]interface{}{
				"itemId": id,
				"status": current.Status,
			})
			return nil
		}
		return xerrors.NewInvalidTransitionError(id, string(current.Status), string(status))
	}

	return nil
}

// Get fetches a single item by id.
func (s *Store) Get(ctx context.Context, id string) (*Item, error) {
	query := `SELECT id, content, platform, priority, status, source, metadata_json, error, created_at, processed_at
	          FROM queue_items WHERE id = $1`
	row := s.db.QueryRowContext(ctx, query, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, xerrors.ErrItemNotFound
		}
		return nil, xerrors.NewQueryExecutionFailedError("get", err)
	}
	return item, nil
}

// StatusCounts returns item counts grouped by status for the dashboard.
func (s *Store) StatusCounts(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, xerrors.NewQueryExecutionFailedError("status_counts", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[Status(st)] = n
	}
	return counts, rows.Err()
}

// PlatformDistribution returns item counts grouped by platform for the dashboard.
func (s *Store) PlatformDistribution(ctx context.Context) (map[Platform]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT platform, COUNT(*) FROM queue_items GROUP BY platform`)
	if err != nil {
		return nil, xerrors.NewQueryExecutionFailedError("platform_distribution", err)
	}
	defer rows.Close()

	counts := make(map[Platform]int)
	for rows.Next() {
		var p string
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, err
		}
		counts[Platform(p)] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*Item, error) {
	var (
		item      Item
		platform  string
		priority  string
		status    string
		metaJSON  []byte
		errMsg    sql.NullString
		processed sql.NullTime
	)
	err := row.Scan(&item.ID, &item.Content, &platform, &priority, &status,
		&item.Source, &metaJSON, &errMsg, &item.CreatedAt, &processed)
	if err != nil {
		return nil, err
	}
	item.Platform = Platform(platform)
	item.Priority = Priority(priority)
	item.Status = Status(status)
	if errMsg.Valid {
		item.Error = errMsg.String
	}
	if processed.Valid {
		t := processed.Time
		item.ProcessedAt = &t
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &item.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &item, nil
}

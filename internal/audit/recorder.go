// Package audit keeps the durable trail of everything published. Postgres is
// the source of truth; Elasticsearch indexing is best effort and never fails
// a publish.
package audit

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"

	apperrors "finpost-workers/internal/common/errors"
	"finpost-workers/internal/common/logger"
	"finpost-workers/internal/market"
	"finpost-workers/internal/queue"
)

// Entry is one published post as recorded in the trail.
type Entry struct {
	ID          string         `json:"id"`
	QueueItemID string         `json:"queue_item_id"`
	Platform    string         `json:"platform"`
	ContentType string         `json:"content_type"`
	Content     string         `json:"content"`
	Session     string         `json:"session"`
	PublishedAt time.Time      `json:"published_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

const esIndex = "published-content"

// Recorder writes audit entries.
type Recorder struct {
	db     *sql.DB
	es     *elasticsearch.Client
	logger logger.Logger
}

// NewRecorder builds a recorder. es may be nil when search indexing is
// disabled.
func NewRecorder(db *sql.DB, es *elasticsearch.Client, log logger.Logger) *Recorder {
	return &Recorder{db: db, es: es, logger: log}
}

// Record persists the entry. The Postgres insert is authoritative; an
// Elasticsearch failure is logged and swallowed.
func (r *Recorder) Record(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.PublishedAt.IsZero() {
		entry.PublishedAt = time.Now().UTC()
	}

	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	query := `
		INSERT INTO published_content (id, queue_item_id, platform, content_type,
			content, session, published_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID, entry.QueueItemID, entry.Platform, entry.ContentType,
		entry.Content, entry.Session, entry.PublishedAt, metadata)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("insert published content", err)
	}

	r.indexBestEffort(ctx, entry)
	return nil
}

func (r *Recorder) indexBestEffort(ctx context.Context, entry *Entry) {
	if r.es == nil {
		return
	}

	doc, err := json.Marshal(entry)
	if err != nil {
		r.logger.WithError(err).Warn("marshal audit entry for indexing", nil)
		return
	}

	res, err := r.es.Index(esIndex, bytes.NewReader(doc),
		r.es.Index.WithContext(ctx),
		r.es.Index.WithDocumentID(entry.ID))
	if err != nil {
		r.logger.WithError(err).Warn("index audit entry", map[string]interface{}{"entry_id": entry.ID})
		return
	}
	defer res.Body.Close()
	if res.IsError() {
		r.logger.Warn("elasticsearch rejected audit entry", map[string]interface{}{
			"entry_id": entry.ID,
			"status":   res.StatusCode,
		})
	}
}

// RecordPublished maps a delivered queue item into the trail. Errors are
// logged, not returned: the item is already posted and the publish outcome
// must not be rewritten over a bookkeeping failure.
func (r *Recorder) RecordPublished(ctx context.Context, item *queue.Item, session market.Session) {
	contentType := ""
	if ct, ok := item.Metadata["content_type"].(string); ok {
		contentType = ct
	}

	entry := &Entry{
		QueueItemID: item.ID,
		Platform:    string(item.Platform),
		ContentType: contentType,
		Content:     item.Content,
		Session:     string(session),
		Metadata:    item.Metadata,
	}
	if err := r.Record(ctx, entry); err != nil {
		r.logger.WithError(err).Error("record published content", map[string]interface{}{
			"queue_item_id": item.ID,
		})
	}
}

// CountSince reports how many entries were published for a platform after
// the cutoff. Used by operational tooling.
func (r *Recorder) CountSince(ctx context.Context, platform string, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM published_content WHERE platform = $1 AND published_at >= $2`,
		platform, since).Scan(&count)
	if err != nil {
		return 0, apperrors.NewQueryExecutionFailedError("count published content", err)
	}
	return count, nil
}

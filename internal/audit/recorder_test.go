// internal/audit/recorder_test.go
package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finpost-workers/internal/common/logger"
	"finpost-workers/internal/market"
	"finpost-workers/internal/queue"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestRecorder(t *testing.T) (*Recorder, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRecorder(db, nil, logger.NewTestLogger(t)), mock
}

// ==========================
// Record Tests
// ==========================

func TestRecorder_Record(t *testing.T) {
	recorder, mock := createTestRecorder(t)
	publishedAt := time.Date(2026, 1, 5, 9, 15, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO published_content`).
		WithArgs("entry-1", "item-1", "telegram", "opening_bell",
			"🔔 markets are open", "open", publishedAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := recorder.Record(context.Background(), &Entry{
		ID:          "entry-1",
		QueueItemID: "item-1",
		Platform:    "telegram",
		ContentType: "opening_bell",
		Content:     "🔔 markets are open",
		Session:     "open",
		PublishedAt: publishedAt,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_RecordAssignsIDAndTimestamp(t *testing.T) {
	recorder, mock := createTestRecorder(t)

	mock.ExpectExec(`INSERT INTO published_content`).
		WithArgs(sqlmock.AnyArg(), "item-2", "slack", "", "text", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &Entry{QueueItemID: "item-2", Platform: "slack", Content: "text"}
	require.NoError(t, recorder.Record(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.PublishedAt.IsZero())
}

func TestRecorder_RecordInsertFailure(t *testing.T) {
	recorder, mock := createTestRecorder(t)

	mock.ExpectExec(`INSERT INTO published_content`).
		WillReturnError(assert.AnError)

	err := recorder.Record(context.Background(), &Entry{QueueItemID: "item-3", Platform: "telegram"})
	require.Error(t, err)
}

// ==========================
// RecordPublished Tests
// ==========================

func TestRecorder_RecordPublishedMapsItem(t *testing.T) {
	recorder, mock := createTestRecorder(t)

	mock.ExpectExec(`INSERT INTO published_content`).
		WithArgs(sqlmock.AnyArg(), "item-4", "telegram", "market_update",
			"📊 update", "open", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	recorder.RecordPublished(context.Background(), &queue.Item{
		ID:       "item-4",
		Content:  "📊 update",
		Platform: queue.PlatformTelegram,
		Metadata: map[string]interface{}{"content_type": "market_update"},
	}, market.SessionOpen)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_RecordPublishedSwallowsStoreError(t *testing.T) {
	recorder, mock := createTestRecorder(t)

	mock.ExpectExec(`INSERT INTO published_content`).
		WillReturnError(assert.AnError)

	assert.NotPanics(t, func() {
		recorder.RecordPublished(context.Background(), &queue.Item{
			ID:       "item-5",
			Platform: queue.PlatformTelegram,
		}, market.SessionOpen)
	})
}

// ==========================
// Query Tests
// ==========================

func TestRecorder_CountSince(t *testing.T) {
	recorder, mock := createTestRecorder(t)
	since := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM published_content`).
		WithArgs("telegram", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	count, err := recorder.CountSince(context.Background(), "telegram", since)
	require.NoError(t, err)
	assert.Equal(t, int64(12), count)
}

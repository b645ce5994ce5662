package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, *sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := New(db)
	store.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return store, db, mock
}

func TestAppendWritesAfterHead(t *testing.T) {
	store, db, mock := newMockStore(t)
	streamID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0)")).
		WithArgs(streamID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO events")).
		WithArgs(streamID.String(), "machine", "MachineUpdated", sqlmock.AnyArg(), sqlmock.AnyArg(), 3, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO events")).
		WithArgs(streamID.String(), "machine", "MachineStatusChanged", sqlmock.AnyArg(), sqlmock.AnyArg(), 4, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	err = store.Append(context.Background(), tx, streamID, "machine", []Event{
		{EventType: "MachineUpdated", Payload: json.RawMessage(`{}`)},
		{EventType: "MachineStatusChanged", Payload: json.RawMessage(`{}`)},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendUniqueViolationIsConflict(t *testing.T) {
	store, db, mock := newMockStore(t)
	streamID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0)")).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO events")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)

	err = store.Append(context.Background(), tx, streamID, "machine", []Event{{EventType: "MachineRegistered"}})
	require.ErrorIs(t, err, ErrConcurrencyConflict)
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendNothingSkipsDatabase(t *testing.T) {
	store, db, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), tx, uuid.New(), "machine", nil))
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadOrdersByVersion(t *testing.T) {
	store, _, mock := newMockStore(t)
	streamID := uuid.New()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	columns := []string{"id", "stream_id", "stream_type", "event_type", "payload", "metadata", "version", "recorded_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM events")).
		WithArgs(streamID.String()).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(1), streamID.String(), "machine", "MachineRegistered", []byte(`{"brand":"CAT"}`), []byte(`null`), 1, at).
			AddRow(int64(7), streamID.String(), "machine", "MaintenanceAlarmDeleted", []byte(`{}`), []byte(`{"actor":"u-1"}`), 2, at))

	events, err := store.Load(context.Background(), streamID)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "MachineRegistered", events[0].EventType)
	assert.Equal(t, streamID, events[0].StreamID)
	assert.JSONEq(t, `{"brand":"CAT"}`, string(events[0].Payload))
	assert.Nil(t, events[0].Metadata)
	assert.Equal(t, "u-1", events[1].Metadata["actor"])
	assert.Equal(t, 2, events[1].Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadEmptyStream(t *testing.T) {
	store, _, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM events")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "stream_id", "stream_type", "event_type", "payload", "metadata", "version", "recorded_at"}))

	_, err := store.Load(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrStreamNotFound)
}

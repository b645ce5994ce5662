package machine

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetmaint/internal/domainerr"
	"fleetmaint/internal/eventstore"
)

var (
	machineRowColumns = []string{"id", "serial_number", "brand", "model", "nickname", "machine_type_id",
		"owner_id", "created_by_id", "status", "version", "created_at", "updated_at"}
	alarmRowColumns = []string{"id", "machine_id", "title", "description", "related_parts", "interval_hours",
		"accumulated_hours", "is_active", "times_triggered", "last_triggered_at", "created_by", "created_at", "updated_at"}
	eventRowColumns = []string{"id", "stream_id", "stream_type", "event_type", "payload", "metadata", "version", "recorded_at"}
)

func newMockRepository(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewPostgresRepository(db, eventstore.New(db))
	repo.now = func() time.Time { return testNow }
	return repo, mock
}

func machineRow(id MachineID, version int) *sqlmock.Rows {
	return sqlmock.NewRows(machineRowColumns).
		AddRow(id.String(), "CAT-320D-0001", "Caterpillar", "320D", nil, "excavator",
			"owner-1", "user-1", "OPERATIONAL", int64(version), testNow, testNow)
}

func TestPostgresFindByIDLoadsAlarmsInOrder(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := NewMachineID()
	first, second := NewAlarmID(), NewAlarmID()
	triggered := testNow.Add(-time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("FROM machines WHERE id = $1")).
		WithArgs(id.String()).
		WillReturnRows(machineRow(id, 4))
	mock.ExpectQuery(regexp.QuoteMeta("FROM maintenance_alarms WHERE machine_id = $1 ORDER BY seq ASC")).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows(alarmRowColumns).
			AddRow(first.String(), id.String(), "Oil", "5W-30", "{filter,oil}", 500.0, 120.5, true, int64(2), triggered, "tech", testNow, testNow).
			AddRow(second.String(), id.String(), "Tracks", nil, "{}", 1000.0, 0.0, false, int64(0), nil, "tech", testNow, testNow))

	m, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, id, m.ID())
	assert.Equal(t, 4, m.Version())
	_, hasNickname := m.Nickname()
	assert.False(t, hasNickname)

	alarms := m.MaintenanceAlarms()
	require.Len(t, alarms, 2)
	assert.Equal(t, first, alarms[0].ID)
	assert.Equal(t, []string{"filter", "oil"}, alarms[0].RelatedParts)
	require.NotNil(t, alarms[0].Description)
	assert.Equal(t, "5W-30", *alarms[0].Description)
	require.NotNil(t, alarms[0].LastTriggeredAt)
	assert.Equal(t, 2, alarms[0].TimesTriggered)
	assert.Equal(t, second, alarms[1].ID)
	assert.Equal(t, []string{}, alarms[1].RelatedParts)
	assert.Nil(t, alarms[1].LastTriggeredAt)
}

func TestPostgresFindByIDNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := NewMachineID()

	mock.ExpectQuery(regexp.QuoteMeta("FROM machines WHERE id = $1")).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows(machineRowColumns))

	_, err := repo.FindByID(context.Background(), id)
	assert.True(t, domainerr.HasCode(err, domainerr.CodeNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByIDDriverFailure(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := NewMachineID()

	mock.ExpectQuery(regexp.QuoteMeta("FROM machines")).
		WillReturnError(errors.New("connection reset by peer"))

	_, err := repo.FindByID(context.Background(), id)
	assert.True(t, domainerr.HasCode(err, domainerr.CodePersistence))
}

func TestPostgresCreateRecordsRegistration(t *testing.T) {
	repo, mock := newMockRepository(t)
	m := newTestMachine(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO machines")).
		WithArgs(m.ID().String(), "CAT-320D-0001", "Caterpillar", "320D", sqlmock.AnyArg(), "excavator",
			"owner-1", "user-1", "OPERATIONAL", 1, testNow, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0)")).
		WithArgs(m.ID().String()).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO events")).
		WithArgs(m.ID().String(), AggregateType, EventMachineRegistered, sqlmock.AnyArg(), sqlmock.AnyArg(), 1, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), m))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateDuplicateSerial(t *testing.T) {
	repo, mock := newMockRepository(t)
	m := newTestMachine(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO machines")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "machines_serial_number_key"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), m)
	require.True(t, domainerr.HasCode(err, domainerr.CodeConflict))
	assert.Contains(t, err.Error(), "CAT****01")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateDuplicateID(t *testing.T) {
	repo, mock := newMockRepository(t)
	m := newTestMachine(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO machines")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "machines_pkey"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), m)
	require.True(t, domainerr.HasCode(err, domainerr.CodeConflict))
	assert.Contains(t, err.Error(), "already exists")
}

func TestPostgresSaveRejectsStaleVersion(t *testing.T) {
	repo, mock := newMockRepository(t)
	m := newTestMachine(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM machines WHERE id = $1 FOR UPDATE")).
		WithArgs(m.ID().String()).
		WillReturnRows(machineRow(m.ID(), 2))
	mock.ExpectQuery(regexp.QuoteMeta("FROM maintenance_alarms")).
		WillReturnRows(sqlmock.NewRows(alarmRowColumns))
	mock.ExpectRollback()

	require.NoError(t, m.UpdateProps(Patch{Model: strPtr("330")}, testNow))
	err := repo.Save(context.Background(), m)
	require.True(t, domainerr.HasCode(err, domainerr.CodeConflict))
	assert.Equal(t, 1, m.Version())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveRecordsChanges(t *testing.T) {
	repo, mock := newMockRepository(t)
	m := newTestMachine(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(machineRow(m.ID(), 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM maintenance_alarms")).
		WillReturnRows(sqlmock.NewRows(alarmRowColumns))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE machines")).
		WithArgs("Caterpillar", "320D", sqlmock.AnyArg(), "excavator", "RETIRED", sqlmock.AnyArg(), m.ID().String(), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0)")).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO events")).
		WithArgs(m.ID().String(), AggregateType, EventMachineStatusChanged, sqlmock.AnyArg(), sqlmock.AnyArg(), 2, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mock.ExpectCommit()

	require.NoError(t, m.ChangeStatus(StatusRetired, testNow))
	require.NoError(t, repo.Save(context.Background(), m))
	assert.Equal(t, 2, m.Version())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := NewMachineID()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM machines WHERE id = $1")).
		WithArgs(id.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), id)
	assert.True(t, domainerr.HasCode(err, domainerr.CodeNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateAlarmRecordsNoHistory(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := NewMachineID()
	alarmID := NewAlarmID()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(machineRow(id, 3))
	mock.ExpectQuery(regexp.QuoteMeta("FROM maintenance_alarms")).
		WillReturnRows(sqlmock.NewRows(alarmRowColumns).
			AddRow(alarmID.String(), id.String(), "Oil", nil, "{}", 500.0, 480.0, true, int64(1), nil, "tech", testNow, testNow))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE maintenance_alarms")).
		WithArgs("Oil", sqlmock.AnyArg(), sqlmock.AnyArg(), 500.0, 0.0, true, testNow, alarmID.String(), id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE machines SET version = version + 1")).
		WithArgs(testNow, id.String(), 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	zero := 0.0
	alarm, err := repo.UpdateMaintenanceAlarm(context.Background(), id, alarmID, AlarmPatch{AccumulatedHours: &zero})
	require.NoError(t, err)
	assert.Zero(t, alarm.AccumulatedHours)
	assert.Equal(t, 1, alarm.TimesTriggered)
	require.NoError(t, mock.ExpectationsWereMet())
}

// payloadContains matches an event payload holding every fragment.
type payloadContains []string

func (p payloadContains) Match(v driver.Value) bool {
	raw, ok := v.([]byte)
	if !ok {
		return false
	}
	for _, fragment := range p {
		if !bytes.Contains(raw, []byte(fragment)) {
			return false
		}
	}
	return true
}

func expectHistoryAppend(mock sqlmock.Sqlmock, id MachineID, head int, eventType string, payload payloadContains) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0)")).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(head))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO events")).
		WithArgs(id.String(), AggregateType, eventType, payload, sqlmock.AnyArg(), head+1, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(head + 1)))
}

func TestPostgresAddAlarmRecordsHistory(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := NewMachineID()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(id.String()).
		WillReturnRows(machineRow(id, 2))
	mock.ExpectQuery(regexp.QuoteMeta("FROM maintenance_alarms")).
		WillReturnRows(sqlmock.NewRows(alarmRowColumns))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO maintenance_alarms")).
		WithArgs(sqlmock.AnyArg(), id.String(), "Hydraulic filter", sqlmock.AnyArg(), sqlmock.AnyArg(), 250.0,
			0.0, true, 0, "tech-1", testNow, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE machines SET version = version + 1")).
		WithArgs(testNow, id.String(), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectHistoryAppend(mock, id, 1, EventMaintenanceAlarmAdded, payloadContains{`"title":"Hydraulic filter"`})
	mock.ExpectCommit()

	alarm, err := repo.AddMaintenanceAlarm(context.Background(), id, AlarmProps{
		Title:         "Hydraulic filter",
		RelatedParts:  []string{"filter"},
		IntervalHours: 250,
		CreatedBy:     "tech-1",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.False(t, alarm.ID.IsZero())
	assert.Zero(t, alarm.AccumulatedHours)
	assert.True(t, alarm.IsActive)
	assert.Zero(t, alarm.TimesTriggered)
}

func TestPostgresAlarmWriteConflict(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := NewMachineID()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(machineRow(id, 5))
	mock.ExpectQuery(regexp.QuoteMeta("FROM maintenance_alarms")).
		WillReturnRows(sqlmock.NewRows(alarmRowColumns))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO maintenance_alarms")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE machines SET version = version + 1")).
		WithArgs(testNow, id.String(), 5).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.AddMaintenanceAlarm(context.Background(), id, AlarmProps{
		Title:         "Oil",
		IntervalHours: 500,
		CreatedBy:     "tech",
	})
	require.True(t, domainerr.HasCode(err, domainerr.CodeConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteAlarmKeepsHistory(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := NewMachineID()
	alarmID := NewAlarmID()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(id.String()).
		WillReturnRows(machineRow(id, 3))
	mock.ExpectQuery(regexp.QuoteMeta("FROM maintenance_alarms")).
		WillReturnRows(sqlmock.NewRows(alarmRowColumns).
			AddRow(alarmID.String(), id.String(), "Tracks", nil, "{}", 1000.0, 10.0, true, int64(0), nil, "tech", testNow, testNow))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM maintenance_alarms WHERE id = $1 AND machine_id = $2")).
		WithArgs(alarmID.String(), id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE machines SET version = version + 1")).
		WithArgs(sqlmock.AnyArg(), id.String(), 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectHistoryAppend(mock, id, 2, EventMaintenanceAlarmDeleted,
		payloadContains{alarmID.String(), `"title":"Tracks"`})
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteMaintenanceAlarm(context.Background(), id, alarmID))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteAlarmNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := NewMachineID()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(machineRow(id, 3))
	mock.ExpectQuery(regexp.QuoteMeta("FROM maintenance_alarms")).
		WillReturnRows(sqlmock.NewRows(alarmRowColumns))
	mock.ExpectRollback()

	err := repo.DeleteMaintenanceAlarm(context.Background(), id, NewAlarmID())
	require.True(t, domainerr.HasCode(err, domainerr.CodeNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresHistory(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := NewMachineID()

	mock.ExpectQuery(regexp.QuoteMeta("FROM events")).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows(eventRowColumns).
			AddRow(int64(1), id.String(), AggregateType, EventMachineRegistered, []byte(`{}`), []byte(`null`), 1, testNow).
			AddRow(int64(9), id.String(), AggregateType, EventMachineDeleted, []byte(`{}`), []byte(`null`), 2, testNow))

	entries, err := repo.History(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []string{EventMachineRegistered, EventMachineDeleted}, eventTypes(entries))
	assert.Equal(t, 2, entries[1].Sequence)

	mock.ExpectQuery(regexp.QuoteMeta("FROM events")).
		WillReturnRows(sqlmock.NewRows(eventRowColumns))
	_, err = repo.History(context.Background(), id)
	assert.True(t, domainerr.HasCode(err, domainerr.CodeNotFound))

	mock.ExpectQuery(regexp.QuoteMeta("FROM events")).
		WillReturnError(sql.ErrConnDone)
	_, err = repo.History(context.Background(), id)
	assert.True(t, domainerr.HasCode(err, domainerr.CodePersistence))
}

// internal/machine/postgres_repository.go
package machine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fleetmaint/internal/domainerr"
	"fleetmaint/internal/eventstore"
)

const uniqueViolation = "23505"

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresRepository stores machines in the machines and maintenance_alarms
// tables and records history in the event store within the same transaction.
type PostgresRepository struct {
	db     *sql.DB
	events *eventstore.Store
	tracer trace.Tracer
	now    func() time.Time
}

func NewPostgresRepository(db *sql.DB, events *eventstore.Store) *PostgresRepository {
	return &PostgresRepository{
		db:     db,
		events: events,
		tracer: otel.Tracer("fleetmaint/machine"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

const machineColumns = `id, serial_number, brand, model, nickname, machine_type_id, owner_id, created_by_id, status, version, created_at, updated_at`

const alarmColumns = `id, machine_id, title, description, related_parts, interval_hours, accumulated_hours, is_active, times_triggered, last_triggered_at, created_by, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, m *Machine) error {
	ctx, span := r.start(ctx, "machine.create", m.id)
	defer span.End()

	return r.inTx(ctx, func(tx *sql.Tx) error {
		var nickname sql.NullString
		if m.nickname != nil {
			nickname = sql.NullString{String: *m.nickname, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO machines (`+machineColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, m.id.String(), m.serialNumber.Value(), m.brand, m.model, nickname, m.machineTypeID,
			m.ownerID, m.createdByID, string(m.status), m.version, m.createdAt, m.updatedAt)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				if pqErr.Constraint == "machines_pkey" {
					return machineExists(m.id)
				}
				return duplicateSerial(m.serialNumber)
			}
			return persistence("failed to insert machine", err)
		}
		return r.record(ctx, tx, m.id, registeredEvent(m))
	})
}

func (r *PostgresRepository) FindByID(ctx context.Context, id MachineID) (*Machine, error) {
	ctx, span := r.start(ctx, "machine.find", id)
	defer span.End()

	return r.load(ctx, r.db, id, false)
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Machine, error) {
	ctx, span := r.tracer.Start(ctx, "machine.list")
	defer span.End()

	var (
		conds []string
		args  []any
	)
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conds = append(conds, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + machineColumns + ` FROM machines`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence("failed to list machines", err)
	}
	defer rows.Close()

	var (
		snapshots []Snapshot
		ids       []string
	)
	for rows.Next() {
		s, err := scanMachine(rows)
		if err != nil {
			return nil, persistence("failed to scan machine", err)
		}
		snapshots = append(snapshots, s)
		ids = append(ids, s.ID.String())
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("failed to list machines", err)
	}
	if len(snapshots) == 0 {
		return nil, nil
	}

	alarms, err := r.loadAlarms(ctx, r.db, `WHERE machine_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}

	machines := make([]*Machine, 0, len(snapshots))
	for _, s := range snapshots {
		s.Alarms = alarms[s.ID.String()]
		m, err := FromSnapshot(s)
		if err != nil {
			return nil, err
		}
		machines = append(machines, m)
	}
	span.SetAttributes(attribute.Int("machines.listed", len(machines)))
	return machines, nil
}

func (r *PostgresRepository) Save(ctx context.Context, m *Machine) error {
	ctx, span := r.start(ctx, "machine.save", m.id)
	defer span.End()

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		before, err := r.load(ctx, tx, m.id, true)
		if err != nil {
			return err
		}
		if before.version != m.version {
			span.SetAttributes(attribute.Bool("conflict.detected", true))
			return staleVersion(m.id, m.version)
		}

		var nickname sql.NullString
		if m.nickname != nil {
			nickname = sql.NullString{String: *m.nickname, Valid: true}
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE machines
			SET brand = $1, model = $2, nickname = $3, machine_type_id = $4, status = $5,
			    version = version + 1, updated_at = $6
			WHERE id = $7 AND version = $8
		`, m.brand, m.model, nickname, m.machineTypeID, string(m.status), m.updatedAt, m.id.String(), m.version)
		if err != nil {
			return persistence("failed to update machine", err)
		}
		if err := expectOneRow(res, staleVersion(m.id, m.version)); err != nil {
			return err
		}

		return r.record(ctx, tx, m.id, changeEvents(before, m)...)
	})
	if err != nil {
		return err
	}
	m.version++
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id MachineID) error {
	ctx, span := r.start(ctx, "machine.delete", id)
	defer span.End()

	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM machines WHERE id = $1`, id.String())
		if err != nil {
			return persistence("failed to delete machine", err)
		}
		if err := expectOneRow(res, machineNotFound(id)); err != nil {
			return err
		}
		return r.record(ctx, tx, id, HistoryEvent{Type: EventMachineDeleted, Data: MachineDeletedEvent{ID: id}})
	})
}

func (r *PostgresRepository) AddMaintenanceAlarm(ctx context.Context, id MachineID, props AlarmProps) (MaintenanceAlarm, error) {
	ctx, span := r.start(ctx, "machine.alarm.add", id)
	defer span.End()

	var alarm MaintenanceAlarm
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		m, err := r.load(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if alarm, err = m.AddMaintenanceAlarm(props, r.now()); err != nil {
			return err
		}

		var description sql.NullString
		if alarm.Description != nil {
			description = sql.NullString{String: *alarm.Description, Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO maintenance_alarms (id, machine_id, title, description, related_parts, interval_hours,
			    accumulated_hours, is_active, times_triggered, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, alarm.ID.String(), id.String(), alarm.Title, description, pq.Array(alarm.RelatedParts), alarm.IntervalHours,
			alarm.AccumulatedHours, alarm.IsActive, alarm.TimesTriggered, alarm.CreatedBy, alarm.CreatedAt, alarm.UpdatedAt)
		if err != nil {
			return persistence("failed to insert maintenance alarm", err)
		}
		if err := r.bumpVersion(ctx, tx, m); err != nil {
			return err
		}
		return r.record(ctx, tx, id, HistoryEvent{Type: EventMaintenanceAlarmAdded, Data: MaintenanceAlarmAddedEvent{
			MachineID:     id,
			AlarmID:       alarm.ID,
			Title:         alarm.Title,
			IntervalHours: alarm.IntervalHours,
			CreatedBy:     alarm.CreatedBy,
		}})
	})
	if err != nil {
		return MaintenanceAlarm{}, err
	}
	return alarm, nil
}

// UpdateMaintenanceAlarm writes a partial update. Nothing is recorded in the
// history: only triggering produces alarm events.
func (r *PostgresRepository) UpdateMaintenanceAlarm(ctx context.Context, id MachineID, alarmID AlarmID, patch AlarmPatch) (MaintenanceAlarm, error) {
	ctx, span := r.start(ctx, "machine.alarm.update", id)
	defer span.End()
	span.SetAttributes(attribute.String("alarm.id", alarmID.String()))

	var alarm MaintenanceAlarm
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		m, err := r.load(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if alarm, err = m.UpdateMaintenanceAlarm(alarmID, patch, r.now()); err != nil {
			return err
		}

		var description sql.NullString
		if alarm.Description != nil {
			description = sql.NullString{String: *alarm.Description, Valid: true}
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE maintenance_alarms
			SET title = $1, description = $2, related_parts = $3, interval_hours = $4,
			    accumulated_hours = $5, is_active = $6, updated_at = $7
			WHERE id = $8 AND machine_id = $9
		`, alarm.Title, description, pq.Array(alarm.RelatedParts), alarm.IntervalHours,
			alarm.AccumulatedHours, alarm.IsActive, alarm.UpdatedAt, alarmID.String(), id.String())
		if err != nil {
			return persistence("failed to update maintenance alarm", err)
		}
		if err := expectOneRow(res, alarmNotFound(id, alarmID)); err != nil {
			return err
		}
		return r.bumpVersion(ctx, tx, m)
	})
	if err != nil {
		return MaintenanceAlarm{}, err
	}
	return alarm, nil
}

// DeleteMaintenanceAlarm removes the alarm row. Events that mention the alarm
// stay in the event store.
func (r *PostgresRepository) DeleteMaintenanceAlarm(ctx context.Context, id MachineID, alarmID AlarmID) error {
	ctx, span := r.start(ctx, "machine.alarm.delete", id)
	defer span.End()
	span.SetAttributes(attribute.String("alarm.id", alarmID.String()))

	return r.inTx(ctx, func(tx *sql.Tx) error {
		m, err := r.load(ctx, tx, id, true)
		if err != nil {
			return err
		}
		alarm, ok := m.MaintenanceAlarm(alarmID)
		if !ok {
			return alarmNotFound(id, alarmID)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM maintenance_alarms WHERE id = $1 AND machine_id = $2`,
			alarmID.String(), id.String()); err != nil {
			return persistence("failed to delete maintenance alarm", err)
		}
		if err := r.bumpVersion(ctx, tx, m); err != nil {
			return err
		}
		return r.record(ctx, tx, id, HistoryEvent{Type: EventMaintenanceAlarmDeleted, Data: MaintenanceAlarmDeletedEvent{
			MachineID: id,
			AlarmID:   alarmID,
			Title:     alarm.Title,
		}})
	})
}

func (r *PostgresRepository) History(ctx context.Context, id MachineID) ([]HistoryEntry, error) {
	ctx, span := r.start(ctx, "machine.history", id)
	defer span.End()

	events, err := r.events.Load(ctx, id.UUID())
	if errors.Is(err, eventstore.ErrStreamNotFound) {
		return nil, machineNotFound(id)
	}
	if err != nil {
		return nil, persistence("failed to load machine history", err)
	}

	entries := make([]HistoryEntry, len(events))
	for i, e := range events {
		entries[i] = HistoryEntry{
			Sequence:   e.Version,
			EventType:  e.EventType,
			Data:       e.Payload,
			RecordedAt: e.RecordedAt,
		}
	}
	return entries, nil
}

func (r *PostgresRepository) start(ctx context.Context, name string, id MachineID) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("machine.id", id.String())))
}

func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return persistence("failed to commit transaction", err)
	}
	return nil
}

// bumpVersion advances the machine version, failing when it moved since load.
func (r *PostgresRepository) bumpVersion(ctx context.Context, tx *sql.Tx, m *Machine) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE machines SET version = version + 1, updated_at = $1
		WHERE id = $2 AND version = $3
	`, m.updatedAt, m.id.String(), m.version)
	if err != nil {
		return persistence("failed to bump machine version", err)
	}
	if err := expectOneRow(res, staleVersion(m.id, m.version)); err != nil {
		return err
	}
	m.version++
	return nil
}

func (r *PostgresRepository) record(ctx context.Context, tx *sql.Tx, id MachineID, events ...HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := make([]eventstore.Event, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e.Data)
		if err != nil {
			return persistence("failed to encode history event", err)
		}
		batch = append(batch, eventstore.Event{EventType: e.Type, Payload: payload})
	}
	err := r.events.Append(ctx, tx, id.UUID(), AggregateType, batch)
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		return domainerr.Wrap(domainerr.CodeConflict, fmt.Sprintf("history of machine %s was written concurrently", id), err)
	}
	if err != nil {
		return persistence("failed to record history", err)
	}
	return nil
}

func (r *PostgresRepository) load(ctx context.Context, q querier, id MachineID, forUpdate bool) (*Machine, error) {
	query := `SELECT ` + machineColumns + ` FROM machines WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	s, err := scanMachine(q.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, machineNotFound(id)
	}
	if err != nil {
		return nil, persistence("failed to load machine", err)
	}

	alarms, err := r.loadAlarms(ctx, q, `WHERE machine_id = $1`, id.String())
	if err != nil {
		return nil, err
	}
	s.Alarms = alarms[id.String()]
	return FromSnapshot(s)
}

// loadAlarms returns alarms grouped by machine id, each group in insertion order.
func (r *PostgresRepository) loadAlarms(ctx context.Context, q querier, where string, args ...any) (map[string][]MaintenanceAlarm, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+alarmColumns+` FROM maintenance_alarms `+where+` ORDER BY seq ASC`, args...)
	if err != nil {
		return nil, persistence("failed to load maintenance alarms", err)
	}
	defer rows.Close()

	out := make(map[string][]MaintenanceAlarm)
	for rows.Next() {
		var (
			a           MaintenanceAlarm
			rawID       uuid.UUID
			machineID   uuid.UUID
			description sql.NullString
			parts       pq.StringArray
			lastTrigger sql.NullTime
		)
		if err := rows.Scan(&rawID, &machineID, &a.Title, &description, &parts, &a.IntervalHours,
			&a.AccumulatedHours, &a.IsActive, &a.TimesTriggered, &lastTrigger, &a.CreatedBy,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, persistence("failed to scan maintenance alarm", err)
		}
		a.ID = AlarmID{value: rawID}
		if description.Valid {
			d := description.String
			a.Description = &d
		}
		a.RelatedParts = []string(parts)
		if a.RelatedParts == nil {
			a.RelatedParts = []string{}
		}
		if lastTrigger.Valid {
			t := lastTrigger.Time
			a.LastTriggeredAt = &t
		}
		out[machineID.String()] = append(out[machineID.String()], a)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("failed to load maintenance alarms", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMachine(row scanner) (Snapshot, error) {
	var (
		s        Snapshot
		rawID    uuid.UUID
		nickname sql.NullString
		status   string
	)
	err := row.Scan(&rawID, &s.SerialNumber, &s.Brand, &s.Model, &nickname, &s.MachineTypeID,
		&s.OwnerID, &s.CreatedByID, &status, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Snapshot{}, err
	}
	s.ID = MachineID{value: rawID}
	s.Status = Status(status)
	if nickname.Valid {
		n := nickname.String
		s.Nickname = &n
	}
	return s, nil
}

func expectOneRow(res sql.Result, otherwise error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return persistence("failed to read affected rows", err)
	}
	if n == 0 {
		return otherwise
	}
	return nil
}

func persistence(message string, err error) error {
	return domainerr.Wrap(domainerr.CodePersistence, message, err)
}

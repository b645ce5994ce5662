// internal/machine/events.go
package machine

import (
	"encoding/json"
	"time"
)

// AggregateType is the history stream type for machines.
const AggregateType = "machine"

const (
	EventMachineRegistered       = "MachineRegistered"
	EventMachineUpdated          = "MachineUpdated"
	EventMachineStatusChanged    = "MachineStatusChanged"
	EventMachineDeleted          = "MachineDeleted"
	EventMaintenanceAlarmAdded   = "MaintenanceAlarmAdded"
	EventMaintenanceAlarmDeleted = "MaintenanceAlarmDeleted"
)

// HistoryEntry is one recorded event of a machine.
type HistoryEntry struct {
	Sequence   int             `json:"sequence"`
	EventType  string          `json:"event_type"`
	Data       json.RawMessage `json:"data"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// HistoryEvent is an event waiting to be recorded.
type HistoryEvent struct {
	Type string
	Data any
}

// MachineRegisteredEvent is recorded when a machine is created.
type MachineRegisteredEvent struct {
	ID           MachineID `json:"id"`
	SerialNumber string    `json:"serial_number"`
	Brand        string    `json:"brand"`
	Model        string    `json:"model"`
	OwnerID      string    `json:"owner_id"`
	CreatedByID  string    `json:"created_by_id"`
	Status       Status    `json:"status"`
}

// MachineUpdatedEvent carries the descriptive fields after an update.
type MachineUpdatedEvent struct {
	ID            MachineID `json:"id"`
	Brand         string    `json:"brand"`
	Model         string    `json:"model"`
	Nickname      *string   `json:"nickname,omitempty"`
	MachineTypeID string    `json:"machine_type_id"`
}

type MachineStatusChangedEvent struct {
	ID   MachineID `json:"id"`
	From Status    `json:"from"`
	To   Status    `json:"to"`
}

type MachineDeletedEvent struct {
	ID MachineID `json:"id"`
}

type MaintenanceAlarmAddedEvent struct {
	MachineID     MachineID `json:"machine_id"`
	AlarmID       AlarmID   `json:"alarm_id"`
	Title         string    `json:"title"`
	IntervalHours float64   `json:"interval_hours"`
	CreatedBy     string    `json:"created_by"`
}

// MaintenanceAlarmDeletedEvent outlives the alarm it refers to.
type MaintenanceAlarmDeletedEvent struct {
	MachineID MachineID `json:"machine_id"`
	AlarmID   AlarmID   `json:"alarm_id"`
	Title     string    `json:"title"`
}

func registeredEvent(m *Machine) HistoryEvent {
	return HistoryEvent{Type: EventMachineRegistered, Data: MachineRegisteredEvent{
		ID:           m.id,
		SerialNumber: m.serialNumber.Value(),
		Brand:        m.brand,
		Model:        m.model,
		OwnerID:      m.ownerID,
		CreatedByID:  m.createdByID,
		Status:       m.status,
	}}
}

// changeEvents derives what to record when before becomes after.
func changeEvents(before, after *Machine) []HistoryEvent {
	var events []HistoryEvent
	if before.brand != after.brand || before.model != after.model ||
		before.machineTypeID != after.machineTypeID || !sameNickname(before.nickname, after.nickname) {
		events = append(events, HistoryEvent{Type: EventMachineUpdated, Data: MachineUpdatedEvent{
			ID:            after.id,
			Brand:         after.brand,
			Model:         after.model,
			Nickname:      after.nickname,
			MachineTypeID: after.machineTypeID,
		}})
	}
	if before.status != after.status {
		events = append(events, HistoryEvent{Type: EventMachineStatusChanged, Data: MachineStatusChangedEvent{
			ID:   after.id,
			From: before.status,
			To:   after.status,
		}})
	}
	return events
}

func sameNickname(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

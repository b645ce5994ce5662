// internal/machine/repository.go
package machine

import (
	"context"

	"fleetmaint/internal/domainerr"
)

// Repository persists machines. Every write is conditioned on the stored
// version and fails with CONFLICT when another writer got there first.
type Repository interface {
	Create(ctx context.Context, m *Machine) error
	FindByID(ctx context.Context, id MachineID) (*Machine, error)
	List(ctx context.Context, filter ListFilter) ([]*Machine, error)
	// Save writes descriptive fields and status, expecting m.Version() to be current.
	Save(ctx context.Context, m *Machine) error
	Delete(ctx context.Context, id MachineID) error

	AddMaintenanceAlarm(ctx context.Context, id MachineID, props AlarmProps) (MaintenanceAlarm, error)
	UpdateMaintenanceAlarm(ctx context.Context, id MachineID, alarmID AlarmID, patch AlarmPatch) (MaintenanceAlarm, error)
	DeleteMaintenanceAlarm(ctx context.Context, id MachineID, alarmID AlarmID) error
}

// HistoryReader exposes the recorded events of a machine. Entries survive
// deletion of the alarm or machine they describe.
type HistoryReader interface {
	History(ctx context.Context, id MachineID) ([]HistoryEntry, error)
}

// Store is what the service layer needs from a backend.
type Store interface {
	Repository
	HistoryReader
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	OwnerID string
	Status  Status
	Limit   int
}

func (f ListFilter) matches(m *Machine) bool {
	if f.OwnerID != "" && m.ownerID != f.OwnerID {
		return false
	}
	if f.Status != "" && m.status != f.Status {
		return false
	}
	return true
}

var errInvalidStoredID = domainerr.New(domainerr.CodePersistence, "stored machine has no id")

func machineNotFound(id MachineID) error {
	return domainerr.Newf(domainerr.CodeNotFound, "machine %s not found", id)
}

func staleVersion(id MachineID, version int) error {
	return domainerr.Newf(domainerr.CodeConflict, "machine %s was modified concurrently (expected version %d)", id, version)
}

func duplicateSerial(serial SerialNumber) error {
	return domainerr.Newf(domainerr.CodeConflict, "serial number %s is already registered", serial.Masked())
}

func machineExists(id MachineID) error {
	return domainerr.Newf(domainerr.CodeConflict, "machine %s already exists", id)
}

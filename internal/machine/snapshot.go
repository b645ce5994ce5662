// internal/machine/snapshot.go
package machine

import (
	"time"
)

// Snapshot is the exported state of a machine, used by repositories and the
// HTTP layer.
type Snapshot struct {
	ID            MachineID          `json:"id"`
	SerialNumber  string             `json:"serial_number"`
	Brand         string             `json:"brand"`
	Model         string             `json:"model"`
	Nickname      *string            `json:"nickname,omitempty"`
	DisplayName   string             `json:"display_name"`
	MachineTypeID string             `json:"machine_type_id"`
	OwnerID       string             `json:"owner_id"`
	CreatedByID   string             `json:"created_by_id"`
	Status        Status             `json:"status"`
	Alarms        []MaintenanceAlarm `json:"alarms"`
	Version       int                `json:"version"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{
		ID:            m.id,
		SerialNumber:  m.serialNumber.Value(),
		Brand:         m.brand,
		Model:         m.model,
		DisplayName:   m.DisplayName(),
		MachineTypeID: m.machineTypeID,
		OwnerID:       m.ownerID,
		CreatedByID:   m.createdByID,
		Status:        m.status,
		Alarms:        m.MaintenanceAlarms(),
		Version:       m.version,
		CreatedAt:     m.createdAt,
		UpdatedAt:     m.updatedAt,
	}
	if m.nickname != nil {
		n := *m.nickname
		s.Nickname = &n
	}
	return s
}

// FromSnapshot rebuilds a machine from stored state. The serial number and
// status are revalidated.
func FromSnapshot(s Snapshot) (*Machine, error) {
	if s.ID.IsZero() {
		return nil, errInvalidStoredID
	}
	serial, err := NewSerialNumber(s.SerialNumber)
	if err != nil {
		return nil, err
	}
	status, err := ParseStatus(string(s.Status))
	if err != nil {
		return nil, err
	}
	m := &Machine{
		id:            s.ID,
		serialNumber:  serial,
		brand:         s.Brand,
		model:         s.Model,
		machineTypeID: s.MachineTypeID,
		ownerID:       s.OwnerID,
		createdByID:   s.CreatedByID,
		status:        status,
		version:       s.Version,
		createdAt:     s.CreatedAt,
		updatedAt:     s.UpdatedAt,
	}
	if s.Nickname != nil {
		n := *s.Nickname
		m.nickname = &n
	}
	m.alarms = make([]MaintenanceAlarm, len(s.Alarms))
	for i, a := range s.Alarms {
		m.alarms[i] = a.clone()
	}
	return m, nil
}

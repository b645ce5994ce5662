// internal/machine/domain.go
package machine

import (
	"strings"
	"time"

	"fleetmaint/internal/domainerr"
)

const MaxNicknameLength = 50

// Machine is the aggregate root owning a machine's identity, ownership,
// status and maintenance alarms.
type Machine struct {
	id            MachineID
	serialNumber  SerialNumber
	brand         string
	model         string
	nickname      *string
	machineTypeID string
	ownerID       string
	createdByID   string
	status        Status
	alarms        []MaintenanceAlarm
	version       int
	createdAt     time.Time
	updatedAt     time.Time
}

// Props is the input for New. Empty ID generates one; empty Status means OPERATIONAL.
type Props struct {
	ID            string
	SerialNumber  string
	Brand         string
	Model         string
	Nickname      *string
	MachineTypeID string
	OwnerID       string
	CreatedByID   string
	Status        string
	Now           time.Time
}

// New validates every field before building the machine; the first failure is returned.
func New(p Props) (*Machine, error) {
	id := NewMachineID()
	if strings.TrimSpace(p.ID) != "" {
		parsed, err := ParseMachineID(p.ID)
		if err != nil {
			return nil, err
		}
		id = parsed
	}

	serial, err := NewSerialNumber(p.SerialNumber)
	if err != nil {
		return nil, err
	}
	if err := requireText("brand", p.Brand); err != nil {
		return nil, err
	}
	if err := requireText("model", p.Model); err != nil {
		return nil, err
	}
	if p.Nickname != nil {
		if err := validateNickname(*p.Nickname); err != nil {
			return nil, err
		}
	}
	if err := requireText("machine type id", p.MachineTypeID); err != nil {
		return nil, err
	}
	if err := requireText("owner id", p.OwnerID); err != nil {
		return nil, err
	}
	if err := requireText("created by id", p.CreatedByID); err != nil {
		return nil, err
	}

	status := StatusOperational
	if strings.TrimSpace(p.Status) != "" {
		if status, err = ParseStatus(p.Status); err != nil {
			return nil, err
		}
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	m := &Machine{
		id:            id,
		serialNumber:  serial,
		brand:         strings.TrimSpace(p.Brand),
		model:         strings.TrimSpace(p.Model),
		machineTypeID: strings.TrimSpace(p.MachineTypeID),
		ownerID:       strings.TrimSpace(p.OwnerID),
		createdByID:   strings.TrimSpace(p.CreatedByID),
		status:        status,
		version:       1,
		createdAt:     now,
		updatedAt:     now,
	}
	if p.Nickname != nil {
		m.nickname = normalizeOptional(*p.Nickname)
	}
	return m, nil
}

func (m *Machine) ID() MachineID              { return m.id }
func (m *Machine) SerialNumber() SerialNumber { return m.serialNumber }
func (m *Machine) Brand() string              { return m.brand }
func (m *Machine) Model() string              { return m.model }
func (m *Machine) MachineTypeID() string      { return m.machineTypeID }
func (m *Machine) OwnerID() string            { return m.ownerID }
func (m *Machine) CreatedByID() string        { return m.createdByID }
func (m *Machine) Status() Status             { return m.status }
func (m *Machine) Version() int               { return m.version }
func (m *Machine) CreatedAt() time.Time       { return m.createdAt }
func (m *Machine) UpdatedAt() time.Time       { return m.updatedAt }

// Nickname returns the nickname and whether one is set.
func (m *Machine) Nickname() (string, bool) {
	if m.nickname == nil {
		return "", false
	}
	return *m.nickname, true
}

func (m *Machine) IsOperational() bool { return m.status == StatusOperational }
func (m *Machine) IsRetired() bool     { return m.status == StatusRetired }

// DisplayName is the nickname when set, otherwise "brand model".
func (m *Machine) DisplayName() string {
	if m.nickname != nil {
		return *m.nickname
	}
	return m.brand + " " + m.model
}

// Patch is a sparse set of descriptive fields. Nil fields are left untouched.
// A present empty Nickname clears it.
type Patch struct {
	Brand         *string
	Model         *string
	Nickname      *string
	MachineTypeID *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Brand == nil && p.Model == nil && p.Nickname == nil && p.MachineTypeID == nil
}

// UpdateProps validates every present field, then applies them all. On error
// the machine is unchanged.
func (m *Machine) UpdateProps(p Patch, now time.Time) error {
	if p.Brand != nil {
		if err := requireText("brand", *p.Brand); err != nil {
			return err
		}
	}
	if p.Model != nil {
		if err := requireText("model", *p.Model); err != nil {
			return err
		}
	}
	if p.Nickname != nil {
		if err := validateNickname(*p.Nickname); err != nil {
			return err
		}
	}
	if p.MachineTypeID != nil {
		if err := requireText("machine type id", *p.MachineTypeID); err != nil {
			return err
		}
	}

	if p.Brand != nil {
		m.brand = strings.TrimSpace(*p.Brand)
	}
	if p.Model != nil {
		m.model = strings.TrimSpace(*p.Model)
	}
	if p.Nickname != nil {
		m.nickname = normalizeOptional(*p.Nickname)
	}
	if p.MachineTypeID != nil {
		m.machineTypeID = strings.TrimSpace(*p.MachineTypeID)
	}
	m.touch(now)
	return nil
}

// ChangeStatus accepts any valid status. Whether the move is allowed is a
// TransitionPolicy decision made by the caller.
func (m *Machine) ChangeStatus(s Status, now time.Time) error {
	if !s.Valid() {
		return domainerr.Newf(domainerr.CodeInvalidStatus, "unknown machine status %q", string(s))
	}
	m.status = s
	m.touch(now)
	return nil
}

// MaintenanceAlarms returns a copy of the alarms in insertion order.
func (m *Machine) MaintenanceAlarms() []MaintenanceAlarm {
	out := make([]MaintenanceAlarm, len(m.alarms))
	for i, a := range m.alarms {
		out[i] = a.clone()
	}
	return out
}

func (m *Machine) MaintenanceAlarm(id AlarmID) (MaintenanceAlarm, bool) {
	if i := m.alarmIndex(id); i >= 0 {
		return m.alarms[i].clone(), true
	}
	return MaintenanceAlarm{}, false
}

// AddMaintenanceAlarm appends a new alarm with zero accumulated hours.
func (m *Machine) AddMaintenanceAlarm(p AlarmProps, now time.Time) (MaintenanceAlarm, error) {
	if err := p.Validate(); err != nil {
		return MaintenanceAlarm{}, err
	}
	a := MaintenanceAlarm{
		ID:               NewAlarmID(),
		Title:            strings.TrimSpace(p.Title),
		RelatedParts:     normalizeParts(p.RelatedParts),
		IntervalHours:    p.IntervalHours,
		AccumulatedHours: 0,
		IsActive:         true,
		TimesTriggered:   0,
		CreatedBy:        strings.TrimSpace(p.CreatedBy),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if p.Description != nil {
		a.Description = normalizeOptional(*p.Description)
	}
	m.alarms = append(m.alarms, a)
	m.touch(now)
	return a.clone(), nil
}

// UpdateMaintenanceAlarm applies a partial update to one alarm. Counters
// tied to triggering are never touched here.
func (m *Machine) UpdateMaintenanceAlarm(id AlarmID, p AlarmPatch, now time.Time) (MaintenanceAlarm, error) {
	i := m.alarmIndex(id)
	if i < 0 {
		return MaintenanceAlarm{}, alarmNotFound(m.id, id)
	}
	if err := p.validate(); err != nil {
		return MaintenanceAlarm{}, err
	}
	p.apply(&m.alarms[i])
	m.alarms[i].UpdatedAt = now
	m.touch(now)
	return m.alarms[i].clone(), nil
}

// ResetMaintenanceAlarm sets accumulated hours back to zero.
func (m *Machine) ResetMaintenanceAlarm(id AlarmID, now time.Time) (MaintenanceAlarm, error) {
	zero := 0.0
	return m.UpdateMaintenanceAlarm(id, AlarmPatch{AccumulatedHours: &zero}, now)
}

func (m *Machine) RemoveMaintenanceAlarm(id AlarmID, now time.Time) error {
	i := m.alarmIndex(id)
	if i < 0 {
		return alarmNotFound(m.id, id)
	}
	m.alarms = append(m.alarms[:i], m.alarms[i+1:]...)
	m.touch(now)
	return nil
}

func (m *Machine) alarmIndex(id AlarmID) int {
	for i := range m.alarms {
		if m.alarms[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *Machine) touch(now time.Time) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	m.updatedAt = now
}

func (m *Machine) clone() *Machine {
	c := *m
	if m.nickname != nil {
		n := *m.nickname
		c.nickname = &n
	}
	c.alarms = m.MaintenanceAlarms()
	return &c
}

func requireText(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return domainerr.Newf(domainerr.CodeValidation, "%s cannot be blank", field)
	}
	return nil
}

func validateNickname(n string) error {
	if len([]rune(strings.TrimSpace(n))) > MaxNicknameLength {
		return domainerr.Newf(domainerr.CodeValidation, "nickname exceeds %d characters", MaxNicknameLength)
	}
	return nil
}

func alarmNotFound(machineID MachineID, alarmID AlarmID) error {
	return domainerr.Newf(domainerr.CodeNotFound, "maintenance alarm %s not found on machine %s", alarmID, machineID)
}

// internal/machine/ids.go
package machine

import (
	"strings"

	"github.com/google/uuid"

	"fleetmaint/internal/domainerr"
)

// MachineID identifies a machine. The zero value is invalid.
type MachineID struct {
	value uuid.UUID
}

// NewMachineID generates a random identifier.
func NewMachineID() MachineID {
	return MachineID{value: uuid.New()}
}

// ParseMachineID validates raw and returns the identifier or an INVALID_ID error.
func ParseMachineID(raw string) (MachineID, error) {
	v, err := parseUUID("machine", raw)
	if err != nil {
		return MachineID{}, err
	}
	return MachineID{value: v}, nil
}

// MustMachineID panics on invalid input. Intended for tests and constants.
func MustMachineID(raw string) MachineID {
	id, err := ParseMachineID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func (id MachineID) String() string  { return id.value.String() }
func (id MachineID) UUID() uuid.UUID { return id.value }
func (id MachineID) IsZero() bool    { return id.value == uuid.Nil }

// AlarmID identifies a maintenance alarm within its machine.
type AlarmID struct {
	value uuid.UUID
}

func NewAlarmID() AlarmID {
	return AlarmID{value: uuid.New()}
}

func ParseAlarmID(raw string) (AlarmID, error) {
	v, err := parseUUID("alarm", raw)
	if err != nil {
		return AlarmID{}, err
	}
	return AlarmID{value: v}, nil
}

func MustAlarmID(raw string) AlarmID {
	id, err := ParseAlarmID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func (id AlarmID) String() string  { return id.value.String() }
func (id AlarmID) UUID() uuid.UUID { return id.value }
func (id AlarmID) IsZero() bool    { return id.value == uuid.Nil }

func parseUUID(kind, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, domainerr.Newf(domainerr.CodeInvalidID, "%s id is required", kind)
	}
	v, err := uuid.Parse(raw)
	if err != nil || v == uuid.Nil {
		return uuid.Nil, domainerr.Newf(domainerr.CodeInvalidID, "%s id %q is malformed", kind, raw)
	}
	return v, nil
}

func (id MachineID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *MachineID) UnmarshalText(text []byte) error {
	v, err := ParseMachineID(string(text))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

func (id AlarmID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *AlarmID) UnmarshalText(text []byte) error {
	v, err := ParseAlarmID(string(text))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

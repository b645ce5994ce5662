// internal/machine/status.go
package machine

import (
	"strings"

	"fleetmaint/internal/domainerr"
)

// Status is the operating state of a machine.
type Status string

const (
	StatusOperational  Status = "OPERATIONAL"
	StatusMaintenance  Status = "MAINTENANCE"
	StatusOutOfService Status = "OUT_OF_SERVICE"
	StatusRetired      Status = "RETIRED"
)

// Statuses lists every valid status in declaration order.
var Statuses = []Status{StatusOperational, StatusMaintenance, StatusOutOfService, StatusRetired}

func (s Status) Valid() bool {
	switch s {
	case StatusOperational, StatusMaintenance, StatusOutOfService, StatusRetired:
		return true
	}
	return false
}

// ParseStatus accepts any casing and surrounding whitespace.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", domainerr.Newf(domainerr.CodeInvalidStatus, "unknown machine status %q", raw)
	}
	return s, nil
}

// TransitionPolicy decides whether a machine may move between two statuses.
// The aggregate itself accepts any valid status; callers consult a policy first.
type TransitionPolicy interface {
	Allow(from, to Status) bool
}

type unrestricted struct{}

func (unrestricted) Allow(Status, Status) bool { return true }

// Unrestricted allows every transition.
var Unrestricted TransitionPolicy = unrestricted{}

// TransitionTable maps a status to the statuses it may move to. A status with
// no entry is unrestricted; an entry with an empty list is terminal.
// Staying in the same status is always allowed.
type TransitionTable map[Status][]Status

func (t TransitionTable) Allow(from, to Status) bool {
	if from == to {
		return true
	}
	targets, ok := t[from]
	if !ok {
		return true
	}
	for _, s := range targets {
		if s == to {
			return true
		}
	}
	return false
}

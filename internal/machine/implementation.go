// internal/machine/implementation.go
package machine

import (
	"context"
	"strings"
	"time"

	"fleetmaint/internal/domainerr"
	"fleetmaint/internal/usecase"
)

// service implements the Service interface.
type service struct {
	store       Store
	transitions TransitionPolicy
	now         func() time.Time
}

// NewService creates a machine service. A nil policy allows every transition.
func NewService(store Store, transitions TransitionPolicy) Service {
	if transitions == nil {
		transitions = Unrestricted
	}
	return &service{
		store:       store,
		transitions: transitions,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RegisterMachine validates the input as a whole and stores the new machine.
func (s *service) RegisterMachine(ctx context.Context, in RegisterInput) (Snapshot, error) {
	return usecase.Run(ctx, "RegisterMachine", []any{"owner_id", in.OwnerID}, func(ctx context.Context) (Snapshot, error) {
		m, err := New(Props{
			SerialNumber:  in.SerialNumber,
			Brand:         in.Brand,
			Model:         in.Model,
			Nickname:      in.Nickname,
			MachineTypeID: in.MachineTypeID,
			OwnerID:       in.OwnerID,
			CreatedByID:   in.CreatedByID,
			Status:        in.Status,
			Now:           s.now(),
		})
		if err != nil {
			return Snapshot{}, err
		}
		if err := s.store.Create(ctx, m); err != nil {
			return Snapshot{}, err
		}
		return m.Snapshot(), nil
	})
}

func (s *service) GetMachine(ctx context.Context, machineID string) (Snapshot, error) {
	return usecase.Run(ctx, "GetMachine", []any{"machine_id", machineID}, func(ctx context.Context) (Snapshot, error) {
		id, err := ParseMachineID(machineID)
		if err != nil {
			return Snapshot{}, err
		}
		m, err := s.store.FindByID(ctx, id)
		if err != nil {
			return Snapshot{}, err
		}
		return m.Snapshot(), nil
	})
}

func (s *service) ListMachines(ctx context.Context, in ListInput) ([]Snapshot, error) {
	return usecase.Run(ctx, "ListMachines", []any{"owner_id", in.OwnerID}, func(ctx context.Context) ([]Snapshot, error) {
		filter := ListFilter{OwnerID: strings.TrimSpace(in.OwnerID), Limit: in.Limit}
		if strings.TrimSpace(in.Status) != "" {
			status, err := ParseStatus(in.Status)
			if err != nil {
				return nil, err
			}
			filter.Status = status
		}
		if filter.Limit < 0 {
			return nil, domainerr.New(domainerr.CodeValidation, "limit cannot be negative")
		}

		machines, err := s.store.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		out := make([]Snapshot, len(machines))
		for i, m := range machines {
			out[i] = m.Snapshot()
		}
		return out, nil
	})
}

func (s *service) UpdateMachine(ctx context.Context, machineID string, patch Patch, expectedVersion int) (Snapshot, error) {
	return usecase.Run(ctx, "UpdateMachine", []any{"machine_id", machineID}, func(ctx context.Context) (Snapshot, error) {
		m, err := s.loadForWrite(ctx, machineID, expectedVersion)
		if err != nil {
			return Snapshot{}, err
		}
		if patch.Empty() {
			return m.Snapshot(), nil
		}
		if err := m.UpdateProps(patch, s.now()); err != nil {
			return Snapshot{}, err
		}
		if err := s.store.Save(ctx, m); err != nil {
			return Snapshot{}, err
		}
		return m.Snapshot(), nil
	})
}

// ChangeStatus consults the transition policy before touching the aggregate.
func (s *service) ChangeStatus(ctx context.Context, machineID, status string, expectedVersion int) (Snapshot, error) {
	return usecase.Run(ctx, "ChangeMachineStatus", []any{"machine_id", machineID, "status", status}, func(ctx context.Context) (Snapshot, error) {
		to, err := ParseStatus(status)
		if err != nil {
			return Snapshot{}, err
		}
		m, err := s.loadForWrite(ctx, machineID, expectedVersion)
		if err != nil {
			return Snapshot{}, err
		}
		from := m.Status()
		if from == to {
			return m.Snapshot(), nil
		}
		if !s.transitions.Allow(from, to) {
			return Snapshot{}, domainerr.Newf(domainerr.CodeInvalidTransition, "machine cannot move from %s to %s", from, to)
		}
		if err := m.ChangeStatus(to, s.now()); err != nil {
			return Snapshot{}, err
		}
		if err := s.store.Save(ctx, m); err != nil {
			return Snapshot{}, err
		}
		return m.Snapshot(), nil
	})
}

func (s *service) History(ctx context.Context, machineID string) ([]HistoryEntry, error) {
	return usecase.Run(ctx, "MachineHistory", []any{"machine_id", machineID}, func(ctx context.Context) ([]HistoryEntry, error) {
		id, err := ParseMachineID(machineID)
		if err != nil {
			return nil, err
		}
		return s.store.History(ctx, id)
	})
}

func (s *service) loadForWrite(ctx context.Context, machineID string, expectedVersion int) (*Machine, error) {
	id, err := ParseMachineID(machineID)
	if err != nil {
		return nil, err
	}
	m, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if expectedVersion != 0 && expectedVersion != m.Version() {
		return nil, staleVersion(id, expectedVersion)
	}
	return m, nil
}

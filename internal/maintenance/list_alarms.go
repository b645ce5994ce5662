// internal/maintenance/list_alarms.go
package maintenance

import (
	"context"

	"fleetmaint/internal/machine"
	"fleetmaint/internal/usecase"
)

type ListAlarmsInput struct {
	MachineID string
	// IsActive filters by state when set; nil returns every alarm.
	IsActive *bool
}

// ListMaintenanceAlarms returns a machine's alarms in insertion order.
type ListMaintenanceAlarms struct {
	repo machine.Repository
}

func NewListMaintenanceAlarms(repo machine.Repository) *ListMaintenanceAlarms {
	return &ListMaintenanceAlarms{repo: repo}
}

func (uc *ListMaintenanceAlarms) Execute(ctx context.Context, in ListAlarmsInput) ([]machine.MaintenanceAlarm, error) {
	return usecase.Run(ctx, "ListMaintenanceAlarms", []any{"machine_id", in.MachineID}, func(ctx context.Context) ([]machine.MaintenanceAlarm, error) {
		id, err := machine.ParseMachineID(in.MachineID)
		if err != nil {
			return nil, err
		}
		m, err := uc.repo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}

		alarms := m.MaintenanceAlarms()
		if in.IsActive == nil {
			return alarms, nil
		}
		filtered := make([]machine.MaintenanceAlarm, 0, len(alarms))
		for _, a := range alarms {
			if a.IsActive == *in.IsActive {
				filtered = append(filtered, a)
			}
		}
		return filtered, nil
	})
}

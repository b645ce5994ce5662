// internal/maintenance/reset_alarm.go
package maintenance

import (
	"context"

	"fleetmaint/internal/domainerr"
	"fleetmaint/internal/machine"
	"fleetmaint/internal/usecase"
)

type ResetAlarmInput struct {
	MachineID string
	AlarmID   string
	// ResetToZero defaults to true. When false the alarm is returned unchanged.
	ResetToZero *bool
}

// ResetMaintenanceAlarm is the manual reset path: it zeroes accumulated hours
// and leaves trigger counters, timestamps and history alone.
type ResetMaintenanceAlarm struct {
	repo machine.Repository
}

func NewResetMaintenanceAlarm(repo machine.Repository) *ResetMaintenanceAlarm {
	return &ResetMaintenanceAlarm{repo: repo}
}

func (uc *ResetMaintenanceAlarm) Execute(ctx context.Context, in ResetAlarmInput) (machine.MaintenanceAlarm, error) {
	kvs := []any{"machine_id", in.MachineID, "alarm_id", in.AlarmID}
	return usecase.Run(ctx, "ResetMaintenanceAlarm", kvs, func(ctx context.Context) (machine.MaintenanceAlarm, error) {
		id, err := machine.ParseMachineID(in.MachineID)
		if err != nil {
			return machine.MaintenanceAlarm{}, err
		}
		alarmID, err := machine.ParseAlarmID(in.AlarmID)
		if err != nil {
			return machine.MaintenanceAlarm{}, err
		}

		if in.ResetToZero != nil && !*in.ResetToZero {
			m, err := uc.repo.FindByID(ctx, id)
			if err != nil {
				return machine.MaintenanceAlarm{}, err
			}
			alarm, ok := m.MaintenanceAlarm(alarmID)
			if !ok {
				return machine.MaintenanceAlarm{}, domainerr.Newf(domainerr.CodeNotFound, "maintenance alarm %s not found on machine %s", alarmID, id)
			}
			return alarm, nil
		}

		zero := 0.0
		return uc.repo.UpdateMaintenanceAlarm(ctx, id, alarmID, machine.AlarmPatch{AccumulatedHours: &zero})
	})
}

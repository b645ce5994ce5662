// internal/maintenance/delete_alarm.go
package maintenance

import (
	"context"

	"fleetmaint/internal/machine"
	"fleetmaint/internal/usecase"
)

type DeleteAlarmInput struct {
	MachineID string
	AlarmID   string
}

// DeleteMaintenanceAlarm hard-deletes an alarm. Its history entries stay.
type DeleteMaintenanceAlarm struct {
	repo machine.Repository
}

func NewDeleteMaintenanceAlarm(repo machine.Repository) *DeleteMaintenanceAlarm {
	return &DeleteMaintenanceAlarm{repo: repo}
}

func (uc *DeleteMaintenanceAlarm) Execute(ctx context.Context, in DeleteAlarmInput) error {
	kvs := []any{"machine_id", in.MachineID, "alarm_id", in.AlarmID}
	return usecase.RunErr(ctx, "DeleteMaintenanceAlarm", kvs, func(ctx context.Context) error {
		id, err := machine.ParseMachineID(in.MachineID)
		if err != nil {
			return err
		}
		alarmID, err := machine.ParseAlarmID(in.AlarmID)
		if err != nil {
			return err
		}
		return uc.repo.DeleteMaintenanceAlarm(ctx, id, alarmID)
	})
}

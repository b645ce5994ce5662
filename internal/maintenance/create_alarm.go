// internal/maintenance/create_alarm.go
package maintenance

import (
	"context"

	"fleetmaint/internal/machine"
	"fleetmaint/internal/usecase"
)

// CreateAlarmInput is the primitive input of CreateMaintenanceAlarm.
type CreateAlarmInput struct {
	MachineID     string   `json:"-"`
	Title         string   `json:"title"`
	Description   *string  `json:"description,omitempty"`
	RelatedParts  []string `json:"related_parts"`
	IntervalHours float64  `json:"interval_hours"`
	CreatedBy     string   `json:"created_by"`

	// Ignored: a new alarm always starts at zero hours and active.
	AccumulatedHours float64 `json:"accumulated_hours,omitempty"`
	IsActive         *bool   `json:"is_active,omitempty"`
}

// CreateMaintenanceAlarm appends an alarm to a machine.
type CreateMaintenanceAlarm struct {
	repo machine.Repository
}

func NewCreateMaintenanceAlarm(repo machine.Repository) *CreateMaintenanceAlarm {
	return &CreateMaintenanceAlarm{repo: repo}
}

func (uc *CreateMaintenanceAlarm) Execute(ctx context.Context, in CreateAlarmInput) (machine.MaintenanceAlarm, error) {
	return usecase.Run(ctx, "CreateMaintenanceAlarm", []any{"machine_id", in.MachineID}, func(ctx context.Context) (machine.MaintenanceAlarm, error) {
		id, err := machine.ParseMachineID(in.MachineID)
		if err != nil {
			return machine.MaintenanceAlarm{}, err
		}

		props := machine.AlarmProps{
			Title:         in.Title,
			Description:   in.Description,
			RelatedParts:  in.RelatedParts,
			IntervalHours: in.IntervalHours,
			CreatedBy:     in.CreatedBy,
		}
		if err := props.Validate(); err != nil {
			return machine.MaintenanceAlarm{}, err
		}

		return uc.repo.AddMaintenanceAlarm(ctx, id, props)
	})
}

// internal/maintenance/service.go
package maintenance

import (
	"context"

	"fleetmaint/internal/machine"
)

// Service groups the maintenance use cases for the transport layer.
type Service interface {
	CreateAlarm(ctx context.Context, in CreateAlarmInput) (machine.MaintenanceAlarm, error)
	ListAlarms(ctx context.Context, in ListAlarmsInput) ([]machine.MaintenanceAlarm, error)
	ResetAlarm(ctx context.Context, in ResetAlarmInput) (machine.MaintenanceAlarm, error)
	DeleteAlarm(ctx context.Context, in DeleteAlarmInput) error
	DeleteMachine(ctx context.Context, in DeleteMachineInput) error
}

type service struct {
	create        *CreateMaintenanceAlarm
	list          *ListMaintenanceAlarms
	reset         *ResetMaintenanceAlarm
	deleteAlarm   *DeleteMaintenanceAlarm
	deleteMachine *DeleteMachine
}

// NewService wires every use case to the same repository.
func NewService(repo machine.Repository, policy Authorizer) Service {
	return &service{
		create:        NewCreateMaintenanceAlarm(repo),
		list:          NewListMaintenanceAlarms(repo),
		reset:         NewResetMaintenanceAlarm(repo),
		deleteAlarm:   NewDeleteMaintenanceAlarm(repo),
		deleteMachine: NewDeleteMachine(repo, policy),
	}
}

func (s *service) CreateAlarm(ctx context.Context, in CreateAlarmInput) (machine.MaintenanceAlarm, error) {
	return s.create.Execute(ctx, in)
}

func (s *service) ListAlarms(ctx context.Context, in ListAlarmsInput) ([]machine.MaintenanceAlarm, error) {
	return s.list.Execute(ctx, in)
}

func (s *service) ResetAlarm(ctx context.Context, in ResetAlarmInput) (machine.MaintenanceAlarm, error) {
	return s.reset.Execute(ctx, in)
}

func (s *service) DeleteAlarm(ctx context.Context, in DeleteAlarmInput) error {
	return s.deleteAlarm.Execute(ctx, in)
}

func (s *service) DeleteMachine(ctx context.Context, in DeleteMachineInput) error {
	return s.deleteMachine.Execute(ctx, in)
}

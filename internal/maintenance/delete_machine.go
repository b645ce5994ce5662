// internal/maintenance/delete_machine.go
package maintenance

import (
	"context"

	"fleetmaint/internal/access"
	"fleetmaint/internal/machine"
	"fleetmaint/internal/usecase"
)

type DeleteMachineInput struct {
	MachineID        string
	RequestingUserID string
	UserType         string
}

// Authorizer decides whether a user may delete a machine owned by ownerID.
type Authorizer interface {
	AuthorizeMachineDeletion(userType access.UserType, requesterID, ownerID string) error
}

// DeleteMachine removes a machine after the ownership check. Open alarms do
// not block deletion.
type DeleteMachine struct {
	repo   machine.Repository
	policy Authorizer
}

// NewDeleteMachine uses access.DefaultPolicy when policy is nil.
func NewDeleteMachine(repo machine.Repository, policy Authorizer) *DeleteMachine {
	if policy == nil {
		policy = access.DefaultPolicy()
	}
	return &DeleteMachine{repo: repo, policy: policy}
}

func (uc *DeleteMachine) Execute(ctx context.Context, in DeleteMachineInput) error {
	kvs := []any{"machine_id", in.MachineID, "user_id", in.RequestingUserID, "user_type", in.UserType}
	return usecase.RunErr(ctx, "DeleteMachine", kvs, func(ctx context.Context) error {
		id, err := machine.ParseMachineID(in.MachineID)
		if err != nil {
			return err
		}
		m, err := uc.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := uc.policy.AuthorizeMachineDeletion(access.UserType(in.UserType), in.RequestingUserID, m.OwnerID()); err != nil {
			return err
		}
		return uc.repo.Delete(ctx, id)
	})
}

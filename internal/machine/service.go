// internal/machine/service.go
package machine

import (
	"context"
)

// Service defines the machine registry operations.
type Service interface {
	RegisterMachine(ctx context.Context, in RegisterInput) (Snapshot, error)
	GetMachine(ctx context.Context, machineID string) (Snapshot, error)
	ListMachines(ctx context.Context, in ListInput) ([]Snapshot, error)
	// UpdateMachine applies a partial update. expectedVersion 0 skips the
	// caller-side version check; the repository still rejects stale writes.
	UpdateMachine(ctx context.Context, machineID string, patch Patch, expectedVersion int) (Snapshot, error)
	ChangeStatus(ctx context.Context, machineID, status string, expectedVersion int) (Snapshot, error)
	History(ctx context.Context, machineID string) ([]HistoryEntry, error)
}

// RegisterInput carries primitive fields for a new machine.
type RegisterInput struct {
	SerialNumber  string  `json:"serial_number"`
	Brand         string  `json:"brand"`
	Model         string  `json:"model"`
	Nickname      *string `json:"nickname,omitempty"`
	MachineTypeID string  `json:"machine_type_id"`
	OwnerID       string  `json:"owner_id"`
	CreatedByID   string  `json:"created_by_id"`
	Status        string  `json:"status,omitempty"`
}

type ListInput struct {
	OwnerID string
	Status  string
	Limit   int
}

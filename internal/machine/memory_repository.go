// internal/machine/memory_repository.go
package machine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryRepository keeps machines in process. Aggregates are copied on the
// way in and out so callers never share state with the store.
type MemoryRepository struct {
	mu       sync.Mutex
	machines *cache.Cache
	history  *cache.Cache
	now      func() time.Time
}

// NewMemoryRepository returns an empty store whose entries never expire.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		machines: cache.New(cache.NoExpiration, 0),
		history:  cache.New(cache.NoExpiration, 0),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Create(ctx context.Context, m *Machine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.machines.Get(m.id.String()); found {
		return machineExists(m.id)
	}
	for _, item := range r.machines.Items() {
		if item.Object.(*Machine).serialNumber.Equals(m.serialNumber) {
			return duplicateSerial(m.serialNumber)
		}
	}

	r.machines.Set(m.id.String(), m.clone(), cache.NoExpiration)
	return r.record(m.id, registeredEvent(m))
}

func (r *MemoryRepository) FindByID(ctx context.Context, id MachineID) (*Machine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.load(id)
	if err != nil {
		return nil, err
	}
	return m.clone(), nil
}

func (r *MemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Machine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Machine
	for _, item := range r.machines.Items() {
		m := item.Object.(*Machine)
		if filter.matches(m) {
			out = append(out, m.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].createdAt.Equal(out[j].createdAt) {
			return out[i].id.String() < out[j].id.String()
		}
		return out[i].createdAt.Before(out[j].createdAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) Save(ctx context.Context, m *Machine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.load(m.id)
	if err != nil {
		return err
	}
	if stored.version != m.version {
		return staleVersion(m.id, m.version)
	}

	next := m.clone()
	next.alarms = stored.MaintenanceAlarms()
	next.version = stored.version + 1
	r.machines.Set(m.id.String(), next, cache.NoExpiration)
	m.version = next.version

	return r.record(m.id, changeEvents(stored, next)...)
}

func (r *MemoryRepository) Delete(ctx context.Context, id MachineID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.load(id); err != nil {
		return err
	}
	r.machines.Delete(id.String())
	return r.record(id, HistoryEvent{Type: EventMachineDeleted, Data: MachineDeletedEvent{ID: id}})
}

func (r *MemoryRepository) AddMaintenanceAlarm(ctx context.Context, id MachineID, props AlarmProps) (MaintenanceAlarm, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.load(id)
	if err != nil {
		return MaintenanceAlarm{}, err
	}
	next := stored.clone()
	alarm, err := next.AddMaintenanceAlarm(props, r.now())
	if err != nil {
		return MaintenanceAlarm{}, err
	}
	next.version++
	r.machines.Set(id.String(), next, cache.NoExpiration)

	return alarm, r.record(id, HistoryEvent{Type: EventMaintenanceAlarmAdded, Data: MaintenanceAlarmAddedEvent{
		MachineID:     id,
		AlarmID:       alarm.ID,
		Title:         alarm.Title,
		IntervalHours: alarm.IntervalHours,
		CreatedBy:     alarm.CreatedBy,
	}})
}

func (r *MemoryRepository) UpdateMaintenanceAlarm(ctx context.Context, id MachineID, alarmID AlarmID, patch AlarmPatch) (MaintenanceAlarm, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.load(id)
	if err != nil {
		return MaintenanceAlarm{}, err
	}
	next := stored.clone()
	alarm, err := next.UpdateMaintenanceAlarm(alarmID, patch, r.now())
	if err != nil {
		return MaintenanceAlarm{}, err
	}
	next.version++
	r.machines.Set(id.String(), next, cache.NoExpiration)
	return alarm, nil
}

func (r *MemoryRepository) DeleteMaintenanceAlarm(ctx context.Context, id MachineID, alarmID AlarmID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.load(id)
	if err != nil {
		return err
	}
	alarm, ok := stored.MaintenanceAlarm(alarmID)
	if !ok {
		return alarmNotFound(id, alarmID)
	}
	next := stored.clone()
	if err := next.RemoveMaintenanceAlarm(alarmID, r.now()); err != nil {
		return err
	}
	next.version++
	r.machines.Set(id.String(), next, cache.NoExpiration)

	return r.record(id, HistoryEvent{Type: EventMaintenanceAlarmDeleted, Data: MaintenanceAlarmDeletedEvent{
		MachineID: id,
		AlarmID:   alarmID,
		Title:     alarm.Title,
	}})
}

func (r *MemoryRepository) History(ctx context.Context, id MachineID) ([]HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.entries(id)
	if len(entries) == 0 {
		return nil, machineNotFound(id)
	}
	return append([]HistoryEntry(nil), entries...), nil
}

func (r *MemoryRepository) load(id MachineID) (*Machine, error) {
	v, found := r.machines.Get(id.String())
	if !found {
		return nil, machineNotFound(id)
	}
	return v.(*Machine), nil
}

func (r *MemoryRepository) entries(id MachineID) []HistoryEntry {
	v, found := r.history.Get(id.String())
	if !found {
		return nil
	}
	return v.([]HistoryEntry)
}

func (r *MemoryRepository) record(id MachineID, events ...HistoryEvent) error {
	entries := r.entries(id)
	for _, e := range events {
		data, err := json.Marshal(e.Data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", e.Type, err)
		}
		entries = append(entries, HistoryEntry{
			Sequence:   len(entries) + 1,
			EventType:  e.Type,
			Data:       data,
			RecordedAt: r.now(),
		})
	}
	r.history.Set(id.String(), entries, cache.NoExpiration)
	return nil
}

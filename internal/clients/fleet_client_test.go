package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetmaint/internal/access"
	"fleetmaint/internal/domainerr"
	"fleetmaint/internal/machine"
	"fleetmaint/internal/maintenance"
	"fleetmaint/internal/server"
)

func newTestServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(server.NewRouter(server.Deps{
		Store:       machine.NewMemoryRepository(),
		Transitions: machine.Unrestricted,
		Access:      access.DefaultPolicy(),
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func registerMachine(t *testing.T, c *FleetClient, serial, owner string) machine.Snapshot {
	t.Helper()
	m, err := c.RegisterMachine(context.Background(), machine.RegisterInput{
		SerialNumber:  serial,
		Brand:         "Caterpillar",
		Model:         "320D",
		MachineTypeID: "excavator",
		OwnerID:       owner,
		CreatedByID:   "user-1",
	})
	require.NoError(t, err)
	return m
}

func requireCode(t *testing.T, err error, code domainerr.Code) {
	t.Helper()
	derr, ok := domainerr.As(err)
	require.True(t, ok, "expected domain error, got %v", err)
	assert.Equal(t, code, derr.Code)
}

func TestFleetClientMachineLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	url := newTestServer(t)
	c := NewFleetClient(url+"/", WithIdentity("owner-1", "CLIENT"))

	m := registerMachine(t, c, "cat320d-0001", "owner-1")
	assert.Equal(t, "CAT320D-0001", m.SerialNumber)

	got, err := c.GetMachine(ctx, m.ID.String())
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	listed, err := c.ListMachines(ctx, "owner-1", "")
	require.NoError(t, err)
	require.Len(t, listed, 1)

	changed, err := c.ChangeStatus(ctx, m.ID.String(), "MAINTENANCE", m.Version)
	require.NoError(t, err)
	assert.Equal(t, machine.StatusMaintenance, changed.Status)

	_, err = c.ChangeStatus(ctx, m.ID.String(), "OPERATIONAL", m.Version)
	requireCode(t, err, domainerr.CodeConflict)

	require.NoError(t, c.DeleteMachine(ctx, m.ID.String()))

	_, err = c.GetMachine(ctx, m.ID.String())
	requireCode(t, err, domainerr.CodeNotFound)

	history, err := c.History(ctx, m.ID.String())
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, machine.EventMachineRegistered, history[0].EventType)
	assert.Equal(t, machine.EventMachineDeleted, history[2].EventType)
}

func TestFleetClientAlarms(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewFleetClient(newTestServer(t))
	m := registerMachine(t, c, "KOM-PC210-7", "owner-1")

	alarm, err := c.CreateAlarm(ctx, maintenance.CreateAlarmInput{
		MachineID:     m.ID.String(),
		Title:         "Hydraulic filter",
		RelatedParts:  []string{"filter"},
		IntervalHours: 500,
		CreatedBy:     "tech-1",
	})
	require.NoError(t, err)
	assert.True(t, alarm.IsActive)

	active := true
	alarms, err := c.ListAlarms(ctx, m.ID.String(), &active)
	require.NoError(t, err)
	require.Len(t, alarms, 1)

	inactive := false
	alarms, err = c.ListAlarms(ctx, m.ID.String(), &inactive)
	require.NoError(t, err)
	assert.Empty(t, alarms)

	reset, err := c.ResetAlarm(ctx, m.ID.String(), alarm.ID.String(), nil)
	require.NoError(t, err)
	assert.Zero(t, reset.AccumulatedHours)

	require.NoError(t, c.DeleteAlarm(ctx, m.ID.String(), alarm.ID.String()))
	err = c.DeleteAlarm(ctx, m.ID.String(), alarm.ID.String())
	requireCode(t, err, domainerr.CodeNotFound)

	_, err = c.CreateAlarm(ctx, maintenance.CreateAlarmInput{MachineID: m.ID.String(), Title: "x", CreatedBy: "t"})
	requireCode(t, err, domainerr.CodeValidation)
}

func TestFleetClientDeleteDeniedForOtherClient(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	url := newTestServer(t)
	owner := NewFleetClient(url)
	m := registerMachine(t, owner, "VOL-EC220", "owner-1")

	stranger := NewFleetClient(url, WithIdentity("owner-2", "CLIENT"))
	requireCode(t, stranger.DeleteMachine(ctx, m.ID.String()), domainerr.CodeAccessDenied)
}

func TestFleetClientNonDomainErrors(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := NewFleetClient(srv.URL, WithHTTPClient(srv.Client())).GetMachine(context.Background(), "x")
	require.Error(t, err)
	_, ok := domainerr.As(err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "502")
}

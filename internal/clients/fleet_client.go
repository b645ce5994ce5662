// internal/clients/fleet_client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fleetmaint/internal/domainerr"
	"fleetmaint/internal/machine"
	"fleetmaint/internal/maintenance"
)

// FleetClient calls the fleetd HTTP API. Error responses are decoded back
// into *domainerr.Error so callers can branch on the code.
type FleetClient struct {
	baseURL    string
	httpClient *http.Client
	userID     string
	userType   string
}

// Option customizes a FleetClient.
type Option func(*FleetClient)

// WithHTTPClient replaces the default client with a 30s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(fc *FleetClient) { fc.httpClient = c }
}

// WithIdentity sets the caller identity sent on machine deletion.
func WithIdentity(userID, userType string) Option {
	return func(fc *FleetClient) {
		fc.userID = userID
		fc.userType = userType
	}
}

func NewFleetClient(baseURL string, opts ...Option) *FleetClient {
	c := &FleetClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *FleetClient) RegisterMachine(ctx context.Context, in machine.RegisterInput) (machine.Snapshot, error) {
	var out machine.Snapshot
	err := c.do(ctx, http.MethodPost, "/machines", in, http.StatusCreated, &out)
	return out, err
}

func (c *FleetClient) GetMachine(ctx context.Context, id string) (machine.Snapshot, error) {
	var out machine.Snapshot
	err := c.do(ctx, http.MethodGet, "/machines/"+url.PathEscape(id), nil, http.StatusOK, &out)
	return out, err
}

func (c *FleetClient) ListMachines(ctx context.Context, ownerID, status string) ([]machine.Snapshot, error) {
	q := url.Values{}
	if ownerID != "" {
		q.Set("owner_id", ownerID)
	}
	if status != "" {
		q.Set("status", status)
	}
	path := "/machines"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []machine.Snapshot
	err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &out)
	return out, err
}

func (c *FleetClient) ChangeStatus(ctx context.Context, id, status string, expectedVersion int) (machine.Snapshot, error) {
	body := struct {
		Status  string `json:"status"`
		Version int    `json:"version,omitempty"`
	}{status, expectedVersion}
	var out machine.Snapshot
	err := c.do(ctx, http.MethodPut, "/machines/"+url.PathEscape(id)+"/status", body, http.StatusOK, &out)
	return out, err
}

// DeleteMachine sends the identity configured with WithIdentity.
func (c *FleetClient) DeleteMachine(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/machines/"+url.PathEscape(id), nil, http.StatusNoContent, nil)
}

func (c *FleetClient) History(ctx context.Context, id string) ([]machine.HistoryEntry, error) {
	var out []machine.HistoryEntry
	err := c.do(ctx, http.MethodGet, "/machines/"+url.PathEscape(id)+"/history", nil, http.StatusOK, &out)
	return out, err
}

func (c *FleetClient) CreateAlarm(ctx context.Context, in maintenance.CreateAlarmInput) (machine.MaintenanceAlarm, error) {
	var out machine.MaintenanceAlarm
	err := c.do(ctx, http.MethodPost, alarmsPath(in.MachineID), in, http.StatusCreated, &out)
	return out, err
}

// ListAlarms filters by state when active is set.
func (c *FleetClient) ListAlarms(ctx context.Context, machineID string, active *bool) ([]machine.MaintenanceAlarm, error) {
	path := alarmsPath(machineID)
	if active != nil {
		path += "?active=" + strconv.FormatBool(*active)
	}
	var out []machine.MaintenanceAlarm
	err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &out)
	return out, err
}

func (c *FleetClient) ResetAlarm(ctx context.Context, machineID, alarmID string, resetToZero *bool) (machine.MaintenanceAlarm, error) {
	path := alarmsPath(machineID) + "/" + url.PathEscape(alarmID) + "/reset"
	if resetToZero != nil {
		path += "?reset_to_zero=" + strconv.FormatBool(*resetToZero)
	}
	var out machine.MaintenanceAlarm
	err := c.do(ctx, http.MethodPost, path, nil, http.StatusOK, &out)
	return out, err
}

func (c *FleetClient) DeleteAlarm(ctx context.Context, machineID, alarmID string) error {
	return c.do(ctx, http.MethodDelete, alarmsPath(machineID)+"/"+url.PathEscape(alarmID), nil, http.StatusNoContent, nil)
}

func alarmsPath(machineID string) string {
	return "/machines/" + url.PathEscape(machineID) + "/alarms"
}

func (c *FleetClient) do(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.userID != "" {
		req.Header.Set(maintenance.HeaderUserID, c.userID)
	}
	if c.userType != "" {
		req.Header.Set(maintenance.HeaderUserType, c.userType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var derr domainerr.Error
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(data, &derr); err != nil || derr.Code == "" {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return &derr
}

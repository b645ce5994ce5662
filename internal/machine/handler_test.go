package machine

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/machines", NewHandler(NewService(NewMemoryRepository(), nil)).Routes)
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const registerBody = `{"serial_number":"cat-320d-0001","brand":"Caterpillar","model":"320D",
	"machine_type_id":"excavator","owner_id":"owner-1","created_by_id":"user-1"}`

func TestHandlerRegisterThenGet(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t)

	rec := doRequest(t, h, http.MethodPost, "/machines", registerBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "/machines/"+created.ID.String(), rec.Header().Get("Location"))
	assert.Equal(t, "CAT-320D-0001", created.SerialNumber)

	rec = doRequest(t, h, http.MethodGet, "/machines/"+created.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/machines/"+created.ID.String()+"/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []HistoryEntry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&history))
	require.Len(t, history, 1)
	assert.Equal(t, EventMachineRegistered, history[0].EventType)
}

func TestHandlerErrors(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"malformed id", http.MethodGet, "/machines/xyz", "", http.StatusBadRequest, "INVALID_ID"},
		{"unknown machine", http.MethodGet, "/machines/" + NewMachineID().String(), "", http.StatusNotFound, "NOT_FOUND"},
		{"bad serial", http.MethodPost, "/machines", strings.Replace(registerBody, "cat-320d-0001", "a", 1), http.StatusBadRequest, "INVALID_SERIAL_NUMBER"},
		{"unknown field", http.MethodPost, "/machines", `{"serial":"x"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"empty body", http.MethodPost, "/machines", "", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad limit", http.MethodGet, "/machines?limit=ten", "", http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := doRequest(t, h, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code)

			var body struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestHandlerUpdateAndStatus(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t)
	rec := doRequest(t, h, http.MethodPost, "/machines", registerBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	path := "/machines/" + created.ID.String()

	rec = doRequest(t, h, http.MethodPatch, path, `{"nickname":"Digger","version":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
	assert.Equal(t, "Digger", updated.DisplayName)
	assert.Equal(t, 2, updated.Version)

	rec = doRequest(t, h, http.MethodPatch, path, `{"brand":"CAT","version":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, h, http.MethodPut, path+"/status", `{"status":"maintenance"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/machines?status=MAINTENANCE&owner_id=owner-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)

	rec = doRequest(t, h, http.MethodGet, "/machines?owner_id=nobody", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

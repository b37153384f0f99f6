package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"bookcore/internal/db"
	"bookcore/internal/events"
	"bookcore/internal/lifecycle"
	"bookcore/internal/lock"
	"bookcore/internal/model"
	"bookcore/internal/report"
	"bookcore/internal/schedule"
)

const testAPIKey = "valid-key"

type testServer struct {
	handler   http.Handler
	store     *db.DB
	staffID   int64
	productID int64
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 1, day, hour, minute, 0, 0, time.UTC)
}

func setupTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	logger := zerolog.New(io.Discard)

	store, err := db.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cal := schedule.NewCalendar()
	for wd := time.Monday; wd <= time.Friday; wd++ {
		cal.SetWeekly(wd, schedule.MustInterval("09:00", "17:00"))
	}
	staff := &model.Resource{BusinessID: 1, Kind: model.ResourceStaff, Name: "Anna", Active: true, Capacity: 1, Calendar: cal}
	product := &model.Resource{BusinessID: 1, Kind: model.ResourceRentalProduct, Name: "Kayak", Active: true, Capacity: 2, Calendar: cal}
	require.NoError(t, store.UpsertResource(t.Context(), staff))
	require.NoError(t, store.UpsertResource(t.Context(), product))

	svc := lifecycle.NewService(store, events.NewEventBus(logger), lock.NewLocal(), &logger,
		lifecycle.WithClock(func() time.Time { return at(1, 0, 0) }))
	exporter := report.NewExporter(store, store, time.UTC, logger)

	if cfg.APIKey == "" {
		cfg.APIKey = testAPIKey
	}
	srv := NewHTTPServer(cfg, svc, store, exporter, logger)
	return &testServer{handler: srv.Handler(), store: store, staffID: staff.ID, productID: product.ID}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, business string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", testAPIKey)
	if business != "" {
		req.Header.Set(BusinessHeader, business)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorsBody struct {
	Errors map[string][]string `json:"errors"`
}

type createdBody struct {
	Kind        model.Kind `json:"kind"`
	Reservation struct {
		ID       int64        `json:"id"`
		Status   model.Status `json:"status"`
		Quantity int          `json:"quantity"`
	} `json:"reservation"`
	Actions []string `json:"actions"`
}

func appointmentBody(staffID int64, start, end time.Time) map[string]any {
	return map[string]any{"staff_id": staffID, "start_time": start, "end_time": end, "customer_name": "Client"}
}

func TestMiddleware(t *testing.T) {
	ts := setupTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/resources", nil)
	req.Header.Set(BusinessHeader, "1")
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = ts.do(t, http.MethodGet, "/api/v1/resources", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[errorResponse](t, w).Error, BusinessHeader)

	w = ts.do(t, http.MethodGet, "/api/v1/resources", nil, "abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/resources", nil, "1")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[map[string][]map[string]any](t, w)
	assert.Len(t, list["resources"], 2)
}

func TestRateLimit(t *testing.T) {
	ts := setupTestServer(t, Config{RateLimitPerSecond: 0.001, RateLimitBurst: 1})

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/policy", nil, "1").Code)
	assert.Equal(t, http.StatusTooManyRequests, ts.do(t, http.MethodGet, "/api/v1/policy", nil, "1").Code)
}

func TestCreateAppointment(t *testing.T) {
	ts := setupTestServer(t, Config{})

	w := ts.do(t, http.MethodPost, "/api/v1/appointments", appointmentBody(ts.staffID, at(5, 10, 0), at(5, 11, 0)), "1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[createdBody](t, w)
	assert.Equal(t, model.KindAppointment, created.Kind)
	assert.Equal(t, model.StatusPending, created.Reservation.Status)
	assert.Equal(t, []string{"confirm", "cancel"}, created.Actions)

	tests := []struct {
		name      string
		body      any
		business  string
		wantCode  int
		wantField string
		wantMsg   string
	}{
		{
			name:      "overlapping",
			body:      appointmentBody(ts.staffID, at(5, 10, 30), at(5, 11, 30)),
			wantCode:  http.StatusUnprocessableEntity,
			wantField: "base",
			wantMsg:   "Booking conflicts with another existing booking for this staff member, considering buffer time",
		},
		{
			name:      "end before start",
			body:      appointmentBody(ts.staffID, at(5, 12, 0), at(5, 11, 0)),
			wantCode:  http.StatusUnprocessableEntity,
			wantField: "end_time",
			wantMsg:   "must be after the start time",
		},
		{
			name:      "outside working hours",
			body:      appointmentBody(ts.staffID, at(5, 17, 0), at(5, 18, 0)),
			wantCode:  http.StatusUnprocessableEntity,
			wantField: "base",
			wantMsg:   "Staff member is not available at the selected time",
		},
		{
			name:      "product is not staff",
			body:      appointmentBody(ts.productID, at(5, 12, 0), at(5, 13, 0)),
			wantCode:  http.StatusUnprocessableEntity,
			wantField: "staff_member",
			wantMsg:   "must be a staff member",
		},
		{
			name:     "other tenant",
			body:     appointmentBody(ts.staffID, at(5, 12, 0), at(5, 13, 0)),
			business: "2",
			wantCode: http.StatusNotFound,
		},
		{
			name:     "unknown field",
			body:     `{"staff_id": 1, "colour": "red"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing staff",
			body:     map[string]any{"start_time": at(5, 12, 0), "end_time": at(5, 13, 0)},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			biz := tt.business
			if biz == "" {
				biz = "1"
			}
			w := ts.do(t, http.MethodPost, "/api/v1/appointments", tt.body, biz)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantField != "" {
				assert.Contains(t, decode[errorsBody](t, w).Errors[tt.wantField], tt.wantMsg)
			}
		})
	}
}

func TestCreateRental_Capacity(t *testing.T) {
	ts := setupTestServer(t, Config{})
	body := map[string]any{"product_id": ts.productID, "start_time": at(5, 9, 0), "end_time": at(6, 16, 0), "quantity": 2}

	w := ts.do(t, http.MethodPost, "/api/v1/rentals", body, "1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 2, decode[createdBody](t, w).Reservation.Quantity)

	body["quantity"] = 1
	w = ts.do(t, http.MethodPost, "/api/v1/rentals", body, "1")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, []string{"exceeds available quantity (0 available)"}, decode[errorsBody](t, w).Errors["quantity"])

	w = ts.do(t, http.MethodGet, "/api/v1/resources/"+itoa(ts.productID)+"/capacity?start=2026-01-05T12:00:00Z&end=2026-01-05T13:00:00Z", nil, "1")
	require.Equal(t, http.StatusOK, w.Code)
	capacity := decode[map[string]any](t, w)
	assert.Equal(t, float64(0), capacity["available_quantity"])
	assert.Equal(t, false, capacity["available"])
}

func TestPredicates(t *testing.T) {
	ts := setupTestServer(t, Config{})
	base := "/api/v1/resources/" + itoa(ts.staffID)

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantKey  string
		want     any
	}{
		{"open instant", base + "/available-at?at=2026-01-05T09:00:00Z", http.StatusOK, "available", true},
		{"closing instant", base + "/available-at?at=2026-01-05T17:00:00Z", http.StatusOK, "available", false},
		{"weekend", base + "/available-at?at=2026-01-10T12:00:00Z", http.StatusOK, "available", false},
		{"missing at", base + "/available-at", http.StatusBadRequest, "", nil},
		{"bad at", base + "/available-at?at=monday", http.StatusBadRequest, "", nil},
		{"range inside", base + "/schedule-allows?start=2026-01-05T09:00:00Z&end=2026-01-05T17:00:00Z", http.StatusOK, "allowed", true},
		{"range past close", base + "/schedule-allows?start=2026-01-05T16:00:00Z&end=2026-01-05T17:30:00Z", http.StatusOK, "allowed", false},
		{"inverted range", base + "/schedule-allows?start=2026-01-05T12:00:00Z&end=2026-01-05T11:00:00Z", http.StatusBadRequest, "", nil},
		{"unknown resource", "/api/v1/resources/999/available-at?at=2026-01-05T09:00:00Z", http.StatusNotFound, "", nil},
		{"bad id", "/api/v1/resources/abc/available-at?at=2026-01-05T09:00:00Z", http.StatusBadRequest, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodGet, tt.path, nil, "1")
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantKey != "" {
				assert.Equal(t, tt.want, decode[map[string]any](t, w)[tt.wantKey])
			}
		})
	}
}

func TestSlots(t *testing.T) {
	ts := setupTestServer(t, Config{})
	w := ts.do(t, http.MethodPost, "/api/v1/appointments", appointmentBody(ts.staffID, at(5, 10, 0), at(5, 11, 0)), "1")
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/resources/"+itoa(ts.staffID)+"/slots?date=2026-01-05&duration_mins=60", nil, "1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode[struct {
		Date  string `json:"date"`
		Slots []struct {
			StartTime time.Time `json:"start_time"`
			Available bool      `json:"available"`
		} `json:"slots"`
	}](t, w)
	assert.Equal(t, "2026-01-05", body.Date)
	require.Len(t, body.Slots, 8)
	assert.True(t, body.Slots[0].Available)
	assert.False(t, body.Slots[1].Available, "10:00 is booked")

	w = ts.do(t, http.MethodGet, "/api/v1/resources/"+itoa(ts.staffID)+"/slots?date=05.01.2026", nil, "1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateCalendar(t *testing.T) {
	ts := setupTestServer(t, Config{})
	path := "/api/v1/resources/" + itoa(ts.staffID) + "/calendar"

	w := ts.do(t, http.MethodPut, path, `{"monday": [{"start": "17:00", "end": "09:00"}], "funday": []}`, "1")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	msgs := decode[errorsBody](t, w).Errors["availability"]
	assert.Contains(t, msgs, `contains invalid key "funday"`)
	assert.Contains(t, msgs, "monday[0] start time must be before end time")

	w = ts.do(t, http.MethodPut, path, `{"saturday": [{"start": "10:00", "end": "14:00"}]}`, "1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/v1/resources/"+itoa(ts.staffID)+"/available-at?at=2026-01-10T12:00:00Z", nil, "1")
	assert.Equal(t, true, decode[map[string]any](t, w)["available"])
}

func TestPolicy(t *testing.T) {
	ts := setupTestServer(t, Config{})

	w := ts.do(t, http.MethodGet, "/api/v1/policy", nil, "1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode[map[string]any](t, w)["buffer_time_mins"])

	w = ts.do(t, http.MethodPut, "/api/v1/policy", map[string]any{"min_duration_mins": 60, "max_duration_mins": 30}, "1")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, []string{"must be greater than or equal to the minimum duration"}, decode[errorsBody](t, w).Errors["max_duration_mins"])

	w = ts.do(t, http.MethodPut, "/api/v1/policy", map[string]any{"buffer_time_mins": 30}, "1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/v1/appointments", appointmentBody(ts.staffID, at(5, 10, 0), at(5, 11, 0)), "1")
	require.Equal(t, http.StatusCreated, w.Code)
	w = ts.do(t, http.MethodPost, "/api/v1/appointments", appointmentBody(ts.staffID, at(5, 11, 15), at(5, 12, 0)), "1")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "inside the buffer")
}

func TestReservationLifecycle(t *testing.T) {
	ts := setupTestServer(t, Config{})

	w := ts.do(t, http.MethodPost, "/api/v1/appointments", appointmentBody(ts.staffID, at(5, 10, 0), at(5, 11, 0)), "1")
	require.Equal(t, http.StatusCreated, w.Code)
	id := itoa(decode[createdBody](t, w).Reservation.ID)

	w = ts.do(t, http.MethodGet, "/api/v1/reservations/"+id, nil, "2")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPatch, "/api/v1/reservations/"+id, map[string]any{"start_time": at(5, 14, 0), "end_time": at(5, 15, 0)}, "1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/v1/reservations/"+id+"/transitions", map[string]any{"action": "confirm"}, "1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	confirmed := decode[createdBody](t, w)
	assert.Equal(t, model.StatusConfirmed, confirmed.Reservation.Status)
	assert.Equal(t, []string{"complete", "cancel"}, confirmed.Actions)

	w = ts.do(t, http.MethodPost, "/api/v1/reservations/"+id+"/transitions", map[string]any{"action": "return"}, "1")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/reservations/"+id+"/transitions", map[string]any{}, "1")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/reservations/"+id+"/transitions", map[string]any{"action": "cancel", "reason": "sick"}, "1")
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/reservations/"+id, nil, "1")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[createdBody](t, w)
	assert.Equal(t, model.StatusCancelled, got.Reservation.Status)
	assert.Empty(t, got.Actions)

	w = ts.do(t, http.MethodPatch, "/api/v1/reservations/"+id, map[string]any{"start_time": at(5, 15, 0), "end_time": at(5, 16, 0)}, "1")
	assert.Equal(t, http.StatusConflict, w.Code, "cancelled reservations cannot move")
}

func TestExport(t *testing.T) {
	ts := setupTestServer(t, Config{})
	w := ts.do(t, http.MethodPost, "/api/v1/appointments", appointmentBody(ts.staffID, at(5, 10, 0), at(5, 11, 0)), "1")
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/reservations/export?from=2026-01-05&to=2026-01-05", nil, "1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "reservations_1_2026-01-05_2026-01-05.xlsx")

	f, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("appointments")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	tests := []struct {
		name  string
		query string
	}{
		{"bad from", "from=x&to=2026-01-05"},
		{"inverted", "from=2026-01-06&to=2026-01-05"},
		{"too long", "from=2026-01-01&to=2027-06-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodGet, "/api/v1/reservations/export?"+tt.query, nil, "1")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

package api

import (
	"bytes"
	"net/http"
	"time"

	"bookcore/internal/lifecycle"
	"bookcore/internal/model"
	"bookcore/internal/policy"
	"bookcore/internal/report"
	"bookcore/internal/schedule"
)

// MaxExportDaysRange is the longest period one export may cover.
const MaxExportDaysRange = 366

type reservationResponse struct {
	Kind        model.Kind         `json:"kind"`
	Reservation model.Reservation  `json:"reservation"`
	Actions     []lifecycle.Action `json:"actions"`
}

func (s *HTTPServer) reservationResponse(res model.Reservation) reservationResponse {
	actions := s.svc.FSM().Actions(res.Kind(), res.Core().Status)
	if actions == nil {
		actions = []lifecycle.Action{}
	}
	return reservationResponse{Kind: res.Kind(), Reservation: res, Actions: actions}
}

// TransitionRequest is the body of POST /api/v1/reservations/{id}/transitions.
type TransitionRequest struct {
	Action lifecycle.Action `json:"action"`
	Reason string           `json:"reason,omitempty"`
}

// POST /api/v1/appointments
func (s *HTTPServer) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	biz, ok := business(w, r)
	if !ok {
		return
	}
	var req lifecycle.AppointmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.StaffID <= 0 {
		writeError(w, http.StatusBadRequest, "staff_id is required")
		return
	}

	appt, err := s.svc.CreateAppointment(r.Context(), biz, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.reservationResponse(appt))
}

// POST /api/v1/rentals
func (s *HTTPServer) handleCreateRental(w http.ResponseWriter, r *http.Request) {
	biz, ok := business(w, r)
	if !ok {
		return
	}
	var req lifecycle.RentalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProductID <= 0 {
		writeError(w, http.StatusBadRequest, "product_id is required")
		return
	}

	rental, err := s.svc.CreateRental(r.Context(), biz, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.reservationResponse(rental))
}

// GET /api/v1/reservations/{id}
func (s *HTTPServer) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	biz, ok := business(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := s.svc.Reservation(r.Context(), biz, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.reservationResponse(res))
}

// handleReschedule moves a reservation and, for rentals, changes its quantity.
// PATCH /api/v1/reservations/{id}
func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request) {
	biz, ok := business(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req lifecycle.RescheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.svc.Reschedule(r.Context(), biz, id, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.reservationResponse(res))
}

// POST /api/v1/reservations/{id}/transitions
func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request) {
	biz, ok := business(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req TransitionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}

	res, err := s.svc.Transition(r.Context(), biz, id, req.Action, req.Reason)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.reservationResponse(res))
}

// GET /api/v1/policy
func (s *HTTPServer) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	biz, ok := business(w, r)
	if !ok {
		return
	}
	p, err := s.svc.Policy(r.Context(), biz)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PUT /api/v1/policy
func (s *HTTPServer) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	biz, ok := business(w, r)
	if !ok {
		return
	}
	var p policy.BookingPolicy
	if !decodeBody(w, r, &p) {
		return
	}
	saved, err := s.svc.UpdatePolicy(r.Context(), biz, &p)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// handleExport streams reservations starting between two dates (inclusive)
// as XLSX.
// GET /api/v1/reservations/export?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	biz, ok := business(w, r)
	if !ok {
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}

	fromDate, err := schedule.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from format; expected YYYY-MM-DD")
		return
	}
	toDate, err := schedule.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to format; expected YYYY-MM-DD")
		return
	}
	if toDate.Before(fromDate) {
		writeError(w, http.StatusBadRequest, "from must be before or equal to to")
		return
	}
	if fromDate.AddDays(MaxExportDaysRange).Before(toDate) {
		writeError(w, http.StatusBadRequest, "date range exceeds maximum of 366 days")
		return
	}

	loc := s.svc.Location()
	from := fromDate.Time(loc)
	to := toDate.AddDays(1).Time(loc)

	var buf bytes.Buffer
	if _, err := s.exporter.ExportReservations(r.Context(), biz, from, to, &buf); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.Filename(biz, from, to.Add(-time.Nanosecond))+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

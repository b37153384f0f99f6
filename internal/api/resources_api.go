package api

import (
	"io"
	"net/http"
	"strconv"

	"bookcore/internal/schedule"
	"bookcore/internal/slots"
)

// handleListResources returns the resources of the business.
// GET /api/v1/resources
func (s *HTTPServer) handleListResources(w http.ResponseWriter, r *http.Request) {
	biz, ok := business(w, r)
	if !ok {
		return
	}
	list, err := s.resources.ListResources(r.Context(), biz)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": list})
}

// GET /api/v1/resources/{id}
func (s *HTTPServer) handleGetResource(w http.ResponseWriter, r *http.Request) {
	biz, ok := business(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := s.resources.GetResource(r.Context(), biz, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAvailableAt reports whether the calendar is open at an instant.
// GET /api/v1/resources/{id}/available-at?at=RFC3339
func (s *HTTPServer) handleAvailableAt(w http.ResponseWriter, r *http.Request) {
	biz, ok := business(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, ok := queryTime(w, r, "at")
	if !ok {
		return
	}
	available, err := s.svc.AvailableAt(r.Context(), biz, id, t)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": available})
}

// GET /api/v1/resources/{id}/schedule-allows?start=RFC3339&end=RFC3339
func (s *HTTPServer) handleScheduleAllows(w http.ResponseWriter, r *http.Request) {
	biz, ok := business(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	start, ok := queryTime(w, r, "start")
	if !ok {
		return
	}
	end, ok := queryTime(w, r, "end")
	if !ok {
		return
	}
	allowed, err := s.svc.ScheduleAllows(r.Context(), biz, id, start, end)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"allowed": allowed})
}

// handleCapacity returns free units for a range and whether quantity fits.
// GET /api/v1/resources/{id}/capacity?start=RFC3339&end=RFC3339&quantity=N
func (s *HTTPServer) handleCapacity(w http.ResponseWriter, r *http.Request) {
	biz, ok := business(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	start, ok := queryTime(w, r, "start")
	if !ok {
		return
	}
	end, ok := queryTime(w, r, "end")
	if !ok {
		return
	}
	quantity := 1
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		q, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "quantity must be an integer")
			return
		}
		quantity = q
	}

	free, err := s.svc.AvailableQuantity(r.Context(), biz, id, start, end)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	available, err := s.svc.AvailableFor(r.Context(), biz, id, start, end, quantity)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"available_quantity": free,
		"quantity":           quantity,
		"available":          available,
	})
}

type slotsResponse struct {
	Date  schedule.Date `json:"date"`
	Slots []slots.Slot  `json:"slots"`
}

// GET /api/v1/resources/{id}/slots?date=YYYY-MM-DD&duration_mins=N
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	biz, ok := business(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	day, err := schedule.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}
	var duration *int
	if raw := r.URL.Query().Get("duration_mins"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "duration_mins must be a positive integer")
			return
		}
		duration = &d
	}

	list, err := s.svc.Slots(r.Context(), biz, id, day, duration)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []slots.Slot{}
	}
	writeJSON(w, http.StatusOK, slotsResponse{Date: day, Slots: list})
}

// handleUpdateCalendar replaces the availability document of a resource.
// PUT /api/v1/resources/{id}/calendar
func (s *HTTPServer) handleUpdateCalendar(w http.ResponseWriter, r *http.Request) {
	biz, ok := business(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body too large")
		return
	}

	cal, err := s.svc.UpdateCalendar(r.Context(), biz, id, body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"availability": cal})
}

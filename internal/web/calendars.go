package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"myhebrewdates/internal/calendar"
	"myhebrewdates/internal/model"
)

const maxBodyBytes = 1 << 20

// calendarResponse is a calendar with its public links.
type calendarResponse struct {
	*model.Calendar
	calendar.Links
}

func (s *Server) calendarDTO(cal *model.Calendar) calendarResponse {
	if cal.HebrewDates == nil {
		cal.HebrewDates = []model.HebrewDate{}
	}
	return calendarResponse{Calendar: cal, Links: s.svc.LinksFor(cal.Token)}
}

func (s *Server) handleListCalendars(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	cals, err := s.svc.List(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]calendarResponse, 0, len(cals))
	for i := range cals {
		out = append(out, s.calendarDTO(&cals[i]))
	}
	writeJSON(w, http.StatusOK, struct {
		Calendars []calendarResponse `json:"calendars"`
	}{Calendars: out})
}

func (s *Server) handleCreateCalendar(w http.ResponseWriter, r *http.Request) {
	var in calendar.CalendarInput
	if !decodeJSON(w, r, &in) {
		return
	}
	cal, err := s.svc.Create(r.Context(), userFrom(r.Context()).ID, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/calendars/"+strconv.FormatUint(uint64(cal.ID), 10))
	writeJSON(w, http.StatusCreated, s.calendarDTO(cal))
}

func (s *Server) handleGetCalendar(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	cal, err := s.svc.Get(r.Context(), userFrom(r.Context()).ID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.calendarDTO(cal))
}

func (s *Server) handleUpdateCalendar(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in calendar.CalendarInput
	if !decodeJSON(w, r, &in) {
		return
	}
	cal, err := s.svc.Update(r.Context(), userFrom(r.Context()).ID, id, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.calendarDTO(cal))
}

func (s *Server) handleDeleteCalendar(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.svc.Delete(r.Context(), userFrom(r.Context()).ID, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleShare renders the public view of a calendar from its cached feed.
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Share(r.Context(), r.PathValue("token"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleDownload serves /<token>.ics and the legacy /<token>.ical.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	token, ok := strings.CutSuffix(file, ".ics")
	if !ok {
		token, ok = strings.CutSuffix(file, ".ical")
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	dl, err := s.svc.Download(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+dl.Filename+`"`)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte(dl.Body))
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusNotFound, "not found")
		return 0, false
	}
	return uint(id), true
}

// decodeJSON reads a single JSON object into v, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		msg := "invalid JSON body"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "request body too large"
		}
		writeError(w, http.StatusBadRequest, msg)
		return false
	}
	return true
}

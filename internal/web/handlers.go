package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/example/land-scheduler/internal/analytics"
	"github.com/example/land-scheduler/internal/areas"
	"github.com/example/land-scheduler/internal/auth"
	"github.com/example/land-scheduler/internal/customers"
	"github.com/example/land-scheduler/internal/ledger"
	"github.com/example/land-scheduler/internal/slots"
)

// --- auth ---

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondErr(w, http.StatusBadRequest, "invalid request body")
		return
	}

	uid, err := s.Auth.Authenticate(r.Context(), body.Username, body.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondErr(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		s.respondStoreErr(w, err)
		return
	}

	token, err := s.Auth.IssueToken(uid)
	if err != nil {
		s.respondStoreErr(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"token": token, "user_id": uid})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// --- areas ---

type areaJSON struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Link        string `json:"link"`
	IsActive    bool   `json:"is_active"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toAreaJSON(a areas.Area) areaJSON {
	return areaJSON{
		ID:          a.ID,
		Name:        a.Name,
		Description: a.Description,
		Link:        a.Link,
		IsActive:    a.IsActive,
		CreatedAt:   a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type areaBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Link        string `json:"link"`
	IsActive    *bool  `json:"is_active"`
}

func (s *Server) handleAreaList(w http.ResponseWriter, r *http.Request) {
	list, err := s.Areas.List(r.Context())
	if err != nil {
		s.respondStoreErr(w, err)
		return
	}
	out := make([]areaJSON, 0, len(list))
	for _, a := range list {
		out = append(out, toAreaJSON(a))
	}
	respond(w, http.StatusOK, out)
}

func (s *Server) handleAreaCreate(w http.ResponseWriter, r *http.Request) {
	var body areaBody
	if err := decodeBody(r, &body); err != nil {
		respondErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a := areas.Area{Name: body.Name, Description: body.Description, Link: body.Link, IsActive: true}
	if body.IsActive != nil {
		a.IsActive = *body.IsActive
	}
	if err := a.Validate(); err != nil {
		respondErr(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.Areas.Create(r.Context(), a)
	if err != nil {
		s.respondStoreErr(w, err)
		return
	}
	created, err := s.Areas.Get(r.Context(), id)
	if err != nil {
		s.respondStoreErr(w, err)
		return
	}
	respond(w, http.StatusCreated, toAreaJSON(created))
}

func (s *Server) handleAreaGet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	a, err := s.Areas.Get(r.Context(), id)
	if err != nil {
		s.respondStoreErr(w, err)
		return
	}
	respond(w, http.StatusOK, toAreaJSON(a))
}

func (s *Server) handleAreaUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	current, err := s.Areas.Get(r.Context(), id)
	if err != nil {
		s.respondStoreErr(w, err)
		return
	}

	var body areaBody
	if err := decodeBody(r, &body); err != nil {
		respondErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Name != "" {
		current.Name = body.Name
	}
	if body.Description != "" {
		current.Description = body.Description
	}
	if body.Link != "" {
		current.Link = body.Link
	}
	if body.IsActive != nil {
		current.IsActive = *body.IsActive
	}
	if err := current.Validate(); err != nil {
		respondErr(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.Areas.Update(r.Context(), current); err != nil {
		s.respondStoreErr(w, err)
		return
	}
	respond(w, http.StatusOK, toAreaJSON(current))
}

func (s *Server) handleAreaDelete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.Areas.Delete(r.Context(), id); err != nil {
		s.respondStoreErr(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"deleted": id})
}

// --- customers ---

type customerJSON struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	PhoneNumber       string `json:"phone_number"`
	NationalID        string `json:"national_id"`
	AreaID            int64  `json:"area_id"`
	AreaName          string `json:"area_name"`
	ReservationStatus string `json:"reservation_status"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

func toCustomerJSON(c customers.Customer) customerJSON {
	return customerJSON{
		ID:                c.ID,
		Name:              c.Name,
		PhoneNumber:       c.PhoneNumber,
		NationalID:        c.NationalID,
		AreaID:            c.AreaID,
		AreaName:          c.AreaName,
		ReservationStatus: c.ReservationStatus,
		CreatedAt:         c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type customerBody struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	NationalID  string `json:"national_id"`
	AreaID      int64  `json:"area_id"`
}

func (s *Server) handleCustomerList(w http.ResponseWriter, r *http.Request) {
	list, err := s.Customers.List(r.Context(), queryInt64(r, "area_id"))
	if err != nil {
		s.respondStoreErr(w, err)
		return
	}
	out := make([]customerJSON, 0, len(list))
	for _, c := range list {
		out = append(out, toCustomerJSON(c))
	}
	respond(w, http.StatusOK, out)
}

func (s *Server) handleCustomerCreate(w http.ResponseWriter, r *http.Request) {
	var body customerBody
	if err := decodeBody(r, &body); err != nil {
		respondErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c := customers.Customer{
		Name:        body.Name,
		PhoneNumber: body.PhoneNumber,
		NationalID:  body.NationalID,
		AreaID:      body.AreaID,
	}
	if err := c.Validate(); err != nil {
		respondErr(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.Customers.Create(r.Context(), c)
	if err != nil {
		s.respondStoreErr(w, err)
		return
	}
	created, err := s.Customers.Get(r.Context(), id)
	if err != nil {
		s.respondStoreErr(w, err)
		return
	}
	respond(w, http.StatusCreated, toCustomerJSON(created))
}

func (s *Server) handleCustomerGet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	c, err := s.Customers.Get(r.Context(), id)
	if err != nil {
		s.respondStoreErr(w, err)
		return
	}
	respond(w, http.StatusOK, toCustomerJSON(c))
}

func (s *Server) handleCustomerUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	current, err := s.Customers.Get(r.Context(), id)
	if err != nil {
		s.respondStoreErr(w, err)
		return
	}

	var body customerBody
	if err := decodeBody(r, &body); err != nil {
		respondErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Name != "" {
		current.Name = body.Name
	}
	if body.PhoneNumber != "" {
		current.PhoneNumber = body.PhoneNumber
	}
	if body.NationalID != "" {
		current.NationalID = body.NationalID
	}
	if body.AreaID > 0 {
		current.AreaID = body.AreaID
	}
	if err := current.Validate(); err != nil {
		respondErr(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.Customers.Update(r.Context(), current); err != nil {
		s.respondStoreErr(w, err)
		return
	}
	updated, err := s.Customers.Get(r.Context(), id)
	if err != nil {
		s.respondStoreErr(w, err)
		return
	}
	respond(w, http.StatusOK, toCustomerJSON(updated))
}

func (s *Server) handleCustomerDelete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.Customers.Delete(r.Context(), id); err != nil {
		s.respondStoreErr(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"deleted": id})
}

// --- reservation slots ---

type slotJSON struct {
	ID                int64  `json:"id"`
	AreaID            int64  `json:"area_id"`
	AreaName          string `json:"area_name"`
	ScheduledDatetime string `json:"scheduled_datetime"`
	IsProcessed       bool   `json:"is_processed"`
	State             string `json:"state"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

func toSlotJSON(s slots.Slot, now time.Time) slotJSON {
	return slotJSON{
		ID:                s.ID,
		AreaID:            s.AreaID,
		AreaName:          s.AreaName,
		ScheduledDatetime: s.ScheduledAt.UTC().Format(time.RFC3339),
		IsProcessed:       s.IsProcessed,
		State:             s.State(now),
		CreatedAt:         s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type slotBody struct {
	AreaID            int64  `json:"area_id"`
	ScheduledDatetime string `json:"scheduled_datetime"`
}

func (b slotBody) scheduledAt() (time.Time, error) {
	return time.Parse(time.RFC3339, b.ScheduledDatetime)
}

func (s *Server) handleSlotList(w http.ResponseWriter, r *http.Request) {
	var processed *bool
	if v := r.URL.Query().Get("is_processed"); v != "" {
		p, err := strconv.ParseBool(v)
		if err != nil {
			respondErr(w, http.StatusBadRequest, "is_processed must be true or false")
			return
		}
		processed = &p
	}

	list, err := s.Slots.List(r.Context(), queryInt64(r, "area_id"), processed)
	if err != nil {
		s.respondStoreErr(w, err)
		return
	}
	now := time.Now()
	out := make([]slotJSON, 0, len(list))
	for _, sl := range list {
		out = append(out, toSlotJSON(sl, now))
	}
	respond(w, http.StatusOK, out)
}

func (s *Server) handleSlotCreate(w http.ResponseWriter, r *http.Request) {
	var body slotBody
	if err := decodeBody(r, &body); err != nil {
		respondErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	at, err := body.scheduledAt()
	if err != nil {
		respondErr(w, http.StatusBadRequest, "scheduled_datetime must be RFC 3339")
		return
	}

	sl := slots.Slot{AreaID: body.AreaID, ScheduledAt: at}
	if err := sl.Validate(time.Now()); err != nil {
		respondErr(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.Slots.Create(r.Context(), sl)
	if err != nil {
		s.respondStoreErr(w, err)
		return
	}
	created, err := s.Slots.Get(r.Context(), id)
	if err != nil {
		s.respondStoreErr(w, err)
		return
	}
	respond(w, http.StatusCreated, toSlotJSON(created, time.Now()))
}

func (s *Server) handleSlotGet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	sl, err := s.Slots.Get(r.Context(), id)
	if err != nil {
		s.respondStoreErr(w, err)
		return
	}
	respond(w, http.StatusOK, toSlotJSON(sl, time.Now()))
}

func (s *Server) handleSlotUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	var body slotBody
	if err := decodeBody(r, &body); err != nil {
		respondErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	at, err := body.scheduledAt()
	if err != nil {
		respondErr(w, http.StatusBadRequest, "scheduled_datetime must be RFC 3339")
		return
	}
	if !at.After(time.Now()) {
		respondErr(w, http.StatusBadRequest, slots.ErrPastSchedule.Error())
		return
	}

	if err := s.Slots.Update(r.Context(), id, at); err != nil {
		s.respondStoreErr(w, err)
		return
	}
	updated, err := s.Slots.Get(r.Context(), id)
	if err != nil {
		s.respondStoreErr(w, err)
		return
	}
	respond(w, http.StatusOK, toSlotJSON(updated, time.Now()))
}

func (s *Server) handleSlotDelete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.Slots.Delete(r.Context(), id); err != nil {
		s.respondStoreErr(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"deleted": id})
}

// --- analytics ---

type attemptJSON struct {
	ID                 int64  `json:"id"`
	ReservationSlotID  int64  `json:"reservation_slot_id"`
	CustomerID         int64  `json:"customer_id"`
	CustomerName       string `json:"customer_name"`
	CustomerNationalID string `json:"customer_national_id"`
	AreaID             int64  `json:"area_id"`
	AreaName           string `json:"area_name"`
	ScheduledDatetime  string `json:"scheduled_datetime"`
	ResponseStatus     string `json:"response_status"`
	ResponseCode       int    `json:"response_code"`
	ResponseMessage    string `json:"response_message"`
	RequestSentAt      string `json:"request_sent_at"`
	ResponseReceivedAt string `json:"response_received_at,omitempty"`
}

func toAttemptJSON(a ledger.Attempt) attemptJSON {
	out := attemptJSON{
		ID:                 a.ID,
		ReservationSlotID:  a.SlotID,
		CustomerID:         a.CustomerID,
		CustomerName:       a.CustomerName,
		CustomerNationalID: a.CustomerNationalID,
		AreaID:             a.AreaID,
		AreaName:           a.AreaName,
		ScheduledDatetime:  a.ScheduledAt.UTC().Format(time.RFC3339),
		ResponseStatus:     a.ResponseStatus,
		ResponseCode:       a.ResponseCode,
		ResponseMessage:    a.ResponseMessage,
		RequestSentAt:      a.RequestSentAt.UTC().Format(time.RFC3339),
	}
	if a.ResponseReceivedAt != nil {
		out.ResponseReceivedAt = a.ResponseReceivedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	from, err := queryTime(r, "start_date")
	if err != nil {
		respondErr(w, http.StatusBadRequest, "start_date must be RFC 3339")
		return
	}
	to, err := queryTime(r, "end_date")
	if err != nil {
		respondErr(w, http.StatusBadRequest, "end_date must be RFC 3339")
		return
	}

	sum, err := s.Analytics.Summary(r.Context(), analytics.Filter{
		AreaID: queryInt64(r, "area_id"),
		From:   from,
		To:     to,
	})
	if err != nil {
		s.respondStoreErr(w, err)
		return
	}
	respond(w, http.StatusOK, sum)
}

func (s *Server) handleAttemptList(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && status != ledger.StatusSuccess && status != ledger.StatusFailed {
		respondErr(w, http.StatusBadRequest, "status must be SUCCESS or FAILED")
		return
	}
	from, err := queryTime(r, "start_date")
	if err != nil {
		respondErr(w, http.StatusBadRequest, "start_date must be RFC 3339")
		return
	}
	to, err := queryTime(r, "end_date")
	if err != nil {
		respondErr(w, http.StatusBadRequest, "end_date must be RFC 3339")
		return
	}

	list, err := s.Attempts.List(r.Context(), ledger.Filter{
		AreaID: queryInt64(r, "area_id"),
		Status: status,
		From:   from,
		To:     to,
	})
	if err != nil {
		s.respondStoreErr(w, err)
		return
	}
	out := make([]attemptJSON, 0, len(list))
	for _, a := range list {
		out = append(out, toAttemptJSON(a))
	}
	respond(w, http.StatusOK, out)
}

func (s *Server) handleAttemptGet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondErr(w, http.StatusBadRequest, "invalid id")
		return
	}
	a, err := s.Attempts.Get(r.Context(), id)
	if err != nil {
		s.respondStoreErr(w, err)
		return
	}
	respond(w, http.StatusOK, toAttemptJSON(a))
}

// Package web exposes the admin REST surface: auth, CRUD over areas /
// customers / reservation slots, and the analytics read side. Writes to
// slots are rejected once a slot is due; the engine owns it from there.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/example/land-scheduler/internal/analytics"
	"github.com/example/land-scheduler/internal/areas"
	"github.com/example/land-scheduler/internal/auth"
	"github.com/example/land-scheduler/internal/customers"
	"github.com/example/land-scheduler/internal/db"
	"github.com/example/land-scheduler/internal/ledger"
	"github.com/example/land-scheduler/internal/slots"
)

type AreaStore interface {
	Create(ctx context.Context, a areas.Area) (int64, error)
	Get(ctx context.Context, id int64) (areas.Area, error)
	List(ctx context.Context) ([]areas.Area, error)
	Update(ctx context.Context, a areas.Area) error
	Delete(ctx context.Context, id int64) error
}

type CustomerStore interface {
	Create(ctx context.Context, c customers.Customer) (int64, error)
	Get(ctx context.Context, id int64) (customers.Customer, error)
	List(ctx context.Context, areaID int64) ([]customers.Customer, error)
	Update(ctx context.Context, c customers.Customer) error
	Delete(ctx context.Context, id int64) error
}

type SlotStore interface {
	Create(ctx context.Context, s slots.Slot) (int64, error)
	Get(ctx context.Context, id int64) (slots.Slot, error)
	List(ctx context.Context, areaID int64, processed *bool) ([]slots.Slot, error)
	Update(ctx context.Context, id int64, scheduledAt time.Time) error
	Delete(ctx context.Context, id int64) error
}

type AttemptStore interface {
	Get(ctx context.Context, id int64) (ledger.Attempt, error)
	List(ctx context.Context, f ledger.Filter) ([]ledger.Attempt, error)
}

type SummaryService interface {
	Summary(ctx context.Context, f analytics.Filter) (analytics.Summary, error)
}

type Server struct {
	Auth      *auth.Store
	Areas     AreaStore
	Customers CustomerStore
	Slots     SlotStore
	Attempts  AttemptStore
	Analytics SummaryService
	Log       *slog.Logger
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Post("/api/auth/login", s.handleLogin)
	r.Get("/api/external/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.RequireAuth)

		r.Route("/api/areas", func(r chi.Router) {
			r.Get("/", s.handleAreaList)
			r.Post("/", s.handleAreaCreate)
			r.Get("/{id}", s.handleAreaGet)
			r.Put("/{id}", s.handleAreaUpdate)
			r.Delete("/{id}", s.handleAreaDelete)
		})

		r.Route("/api/customers", func(r chi.Router) {
			r.Get("/", s.handleCustomerList)
			r.Post("/", s.handleCustomerCreate)
			r.Get("/{id}", s.handleCustomerGet)
			r.Put("/{id}", s.handleCustomerUpdate)
			r.Delete("/{id}", s.handleCustomerDelete)
		})

		r.Route("/api/reservations", func(r chi.Router) {
			r.Get("/", s.handleSlotList)
			r.Post("/", s.handleSlotCreate)
			r.Get("/{id}", s.handleSlotGet)
			r.Put("/{id}", s.handleSlotUpdate)
			r.Delete("/{id}", s.handleSlotDelete)
		})

		r.Route("/api/analytics", func(r chi.Router) {
			r.Get("/summary", s.handleSummary)
			r.Get("/attempts", s.handleAttemptList)
			r.Get("/attempts/{id}", s.handleAttemptGet)
		})
	})

	return r
}

// Start serves until ctx is canceled, then shuts down gracefully.
func Start(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// --- response envelope, matching what the UI consumes ---

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func respondErr(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": msg})
}

func (s *Server) respondStoreErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		respondErr(w, http.StatusNotFound, "not found")
	case errors.Is(err, slots.ErrSlotLocked):
		respondErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, areas.ErrDuplicateName),
		errors.Is(err, customers.ErrDuplicateNationalID):
		respondErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, slots.ErrAreaInactive),
		errors.Is(err, customers.ErrAreaInactive),
		errors.Is(err, slots.ErrPastSchedule):
		respondErr(w, http.StatusBadRequest, err.Error())
	default:
		s.Log.Error("request failed", "error", err)
		respondErr(w, http.StatusInternalServerError, "internal error")
	}
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func queryInt64(r *http.Request, key string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return v
}

func queryTime(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

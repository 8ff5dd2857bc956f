package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"classifieds_ad_publisher/adform"
	"classifieds_ad_publisher/metrics"
	"classifieds_ad_publisher/publisher"
)

var tracer = otel.Tracer("classifieds_ad_publisher/server")

// Listings persists accepted drafts and reads published listings back.
type Listings interface {
	adform.Persister
	Get(ctx context.Context, id string) (*adform.Listing, error)
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Generator adform.DescriptionGenerator
	Moderator adform.Moderator
	Listings  Listings
	JWTSecret string
	Logger    *zap.Logger
	Metrics   *metrics.Manager
}

type Server struct {
	deps   Deps
	logger *zap.Logger
	store  *sessionStore
}

func New(deps Deps) (*Server, error) {
	if deps.Generator == nil || deps.Moderator == nil || deps.Listings == nil {
		return nil, errors.New("generator, moderator and listings are required")
	}
	if deps.JWTSecret == "" {
		return nil, errors.New("jwt secret required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Server{deps: deps, logger: deps.Logger, store: newStore()}, nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/api/catalog", s.handleCatalog)
	r.Get("/api/listings/{id}", s.handleListingGet)
	r.Handle("/metrics", s.deps.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(jwtAuth([]byte(s.deps.JWTSecret), s.logger))

		r.Post("/api/drafts", s.handleDraftCreate)
		r.Route("/api/drafts/{id}", func(r chi.Router) {
			r.Get("/", s.withSession(s.handleDraftGet))
			r.Patch("/", s.withSession(s.handleDraftPatch))
			r.Delete("/", s.withSession(s.handleDraftDelete))
			r.Post("/advance", s.withSession(s.handleAdvance))
			r.Post("/retreat", s.withSession(s.handleRetreat))
			r.Post("/generate", s.withSession(s.handleGenerate))
			r.Post("/submit", s.withSession(s.handleSubmit))
		})
	})
	return r
}

// Shutdown abandons all live sessions; in-flight calls are cancelled.
func (s *Server) Shutdown() {
	s.store.closeAll()
}

// --- Handlers ---

type draftResp struct {
	SessionID string       `json:"session_id"`
	State     adform.State `json:"state"`
}

type moveResp struct {
	Moved bool         `json:"moved"`
	State adform.State `json:"state"`
}

type catalogResp struct {
	Categories []adform.Category  `json:"categories"`
	Regions    []string           `json:"regions"`
	Conditions []adform.Condition `json:"conditions"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, catalogResp{
		Categories: adform.Categories,
		Regions:    adform.Regions,
		Conditions: []adform.Condition{adform.ConditionNew, adform.ConditionUsed, adform.ConditionRefurbished},
	})
}

func (s *Server) handleListingGet(w http.ResponseWriter, r *http.Request) {
	listing, err := s.deps.Listings.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, publisher.ErrListingNotFound) {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	if err != nil {
		s.logger.Error("read listing", zap.Error(err))
		writeError(w, http.StatusBadGateway, "listing store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleDraftCreate(w http.ResponseWriter, r *http.Request) {
	seller := sellerID(r.Context())
	id := uuid.NewString()
	m, err := adform.New(id, seller, s.deps.Generator, s.deps.Moderator, s.deps.Listings,
		adform.WithLogger(s.logger),
		adform.WithMetrics(s.deps.Metrics),
		adform.OnTransition(func(from, to adform.SubmissionState) {
			s.logger.Info("submission state changed",
				zap.String("session_id", id),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}),
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.store.set(m)
	writeJSON(w, http.StatusCreated, draftResp{SessionID: id, State: m.State()})
}

func (s *Server) handleDraftGet(w http.ResponseWriter, _ *http.Request, m *adform.Machine) {
	writeJSON(w, http.StatusOK, m.State())
}

// handleDraftPatch applies {"field": value, ...} in field-name order and stops
// at the first bad field; earlier fields stay applied.
func (s *Server) handleDraftPatch(w http.ResponseWriter, r *http.Request, m *adform.Machine) {
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	names := make([]string, 0, len(req))
	for name := range req {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value, err := fieldValue(req[name])
		if err == nil {
			err = m.SetField(adform.Field(name), value)
		}
		if err != nil {
			writeError(w, statusFor(err), fmt.Sprintf("%s: %v", name, err))
			return
		}
	}
	writeJSON(w, http.StatusOK, m.State())
}

func (s *Server) handleDraftDelete(w http.ResponseWriter, _ *http.Request, m *adform.Machine) {
	m.Close()
	s.store.remove(m.ID())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdvance(w http.ResponseWriter, _ *http.Request, m *adform.Machine) {
	moved := m.Advance()
	writeJSON(w, http.StatusOK, moveResp{Moved: moved, State: m.State()})
}

func (s *Server) handleRetreat(w http.ResponseWriter, _ *http.Request, m *adform.Machine) {
	moved := m.Retreat()
	writeJSON(w, http.StatusOK, moveResp{Moved: moved, State: m.State()})
}

// handleGenerate starts generation and returns at once; clients poll the
// session state for the description.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, m *adform.Machine) {
	done, err := m.RequestGenerationAsync(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	go func() {
		if err := <-done; err != nil {
			s.logger.Debug("generation result dropped", zap.String("session_id", m.ID()), zap.Error(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, m.State())
}

// handleSubmit starts moderation and persistence; the outcome shows up in the
// session state.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, m *adform.Machine) {
	done, err := m.SubmitAsync(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	go func() {
		out := <-done
		if out.Err != nil && !errors.Is(out.Err, adform.ErrStale) {
			s.logger.Warn("submission failed", zap.String("session_id", m.ID()), zap.Error(out.Err))
		}
	}()
	writeJSON(w, http.StatusAccepted, m.State())
}

// --- Helpers ---

type sessionHandler func(http.ResponseWriter, *http.Request, *adform.Machine)

func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := s.store.get(chi.URLParam(r, "id"), sellerID(r.Context()))
		if !ok {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h(w, r, m)
	}
}

// fieldValue accepts JSON strings, booleans and numbers for form fields.
func fieldValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("%w: unsupported JSON value", adform.ErrInvalidValue)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, adform.ErrUnknownField), errors.Is(err, adform.ErrInvalidValue):
		return http.StatusBadRequest
	case errors.Is(err, adform.ErrBusy), errors.Is(err, adform.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, adform.ErrClosed):
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// observe logs each request, records its latency and wraps it in a span.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		span.SetName(r.Method + " " + route)
		span.SetAttributes(attribute.Int("http.status_code", ww.Status()))
		s.deps.Metrics.ObserveHTTP(route, r.Method, elapsed)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

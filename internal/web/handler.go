// Package web serves the weather-email form as server-rendered HTML, with a
// small JSON surface over the same per-session state.
package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/gometeo/weathermail/internal/form"
	"github.com/gometeo/weathermail/internal/model"
	"github.com/gometeo/weathermail/internal/session"
)

const cookieName = "weathermail_session"

//go:embed templates/*.html
var templateFS embed.FS

// Pinger is implemented by dependencies the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the form pages and the per-session JSON API.
type Handler struct {
	api        form.API
	sessions   session.Store
	auditor    form.Auditor
	logger     *slog.Logger
	tmpl       *template.Template
	staleAfter time.Duration
	now        func() time.Time
}

// NewHandler wires the form to api. A session whose submission has been
// loading for longer than staleAfter is treated as idle again.
func NewHandler(api form.API, sessions session.Store, auditor form.Auditor, staleAfter time.Duration, logger *slog.Logger) *Handler {
	tmpl := template.Must(template.New("").Funcs(template.FuncMap{
		"pathEscape": url.PathEscape,
	}).ParseFS(templateFS, "templates/*.html"))

	return &Handler{
		api:        api,
		sessions:   sessions,
		auditor:    auditor,
		logger:     logger,
		tmpl:       tmpl,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Router returns the routes with logging and no-cache middleware applied.
func (h *Handler) Router() http.Handler {
	router := mux.NewRouter()
	router.UseEncodedPath()

	router.HandleFunc("/", h.Index).Methods(http.MethodGet)
	router.HandleFunc("/submit", h.Submit).Methods(http.MethodPost)
	router.HandleFunc("/logs/{id}/delete", h.DeleteLog).Methods(http.MethodPost)
	router.HandleFunc("/session/clear", h.ClearSession).Methods(http.MethodPost)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/state", h.State).Methods(http.MethodGet)
	api.HandleFunc("/logs/refresh", h.RefreshLogs).Methods(http.MethodPost)
	api.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	router.Use(LoggingMiddleware(h.logger))
	router.Use(noCacheMiddleware)

	return router
}

// Index renders the form. A visitor without stored state gets the history
// log fetched first.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	ctrl, found, err := h.open(w, r)
	if err != nil {
		h.logger.Error("Session load failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		// A failed fetch is already logged and renders an empty history.
		_ = ctrl.FetchLogs(r.Context())
	}
	h.render(w, http.StatusOK, ctrl.Snapshot())
}

// Submit accepts either a form post or a JSON SendRequest.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	city, email, err := readSubmission(r)
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	ctrl, _, err := h.open(w, r)
	if err != nil {
		h.logger.Error("Session load failed", "error", err)
		sendError(w, http.StatusInternalServerError, "internal error", "")
		return
	}

	_, err = ctrl.Submit(r.Context(), city, email)
	if errors.Is(err, form.ErrSubmitInFlight) {
		if wantsJSON(r) {
			sendError(w, http.StatusConflict, "submission in progress", "")
		} else {
			h.render(w, http.StatusConflict, ctrl.Snapshot())
		}
		return
	}

	status := http.StatusOK
	switch {
	case errors.Is(err, form.ErrMissingFields):
		status = http.StatusBadRequest
	case err != nil:
		status = http.StatusBadGateway
	}
	h.respond(w, r, status, ctrl.Snapshot())
}

func (h *Handler) DeleteLog(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(mux.Vars(r)["id"])
	if err != nil || id == "" {
		sendError(w, http.StatusBadRequest, "invalid log id", "")
		return
	}

	ctrl, _, err := h.open(w, r)
	if err != nil {
		h.logger.Error("Session load failed", "error", err)
		sendError(w, http.StatusInternalServerError, "internal error", "")
		return
	}

	status := http.StatusOK
	if err := ctrl.DeleteLog(r.Context(), id); err != nil {
		status = http.StatusBadGateway
	}
	h.respond(w, r, status, ctrl.Snapshot())
}

func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	ctrl, found, err := h.open(w, r)
	if err != nil {
		h.logger.Error("Session load failed", "error", err)
		sendError(w, http.StatusInternalServerError, "internal error", "")
		return
	}
	if !found {
		// A failed fetch is already logged and returns an empty history.
		_ = ctrl.FetchLogs(r.Context())
	}
	sendJSON(w, http.StatusOK, ctrl.Snapshot())
}

func (h *Handler) RefreshLogs(w http.ResponseWriter, r *http.Request) {
	ctrl, _, err := h.open(w, r)
	if err != nil {
		h.logger.Error("Session load failed", "error", err)
		sendError(w, http.StatusInternalServerError, "internal error", "")
		return
	}
	if err := ctrl.FetchLogs(r.Context()); err != nil {
		sendError(w, http.StatusBadGateway, "could not fetch logs", err.Error())
		return
	}
	sendJSON(w, http.StatusOK, ctrl.Snapshot())
}

// ClearSession forgets the visitor's form state. The next page load starts
// from an empty form and fetches the history again.
func (h *Handler) ClearSession(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(cookieName); err == nil && session.ValidID(c.Value) {
		if err := h.sessions.Delete(r.Context(), c.Value); err != nil {
			h.logger.Error("Session delete failed", "error", err)
			sendError(w, http.StatusInternalServerError, "internal error", "")
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HealthCheck probes the session store when it supports it.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}

	if p, ok := h.sessions.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			health["sessions"] = "unhealthy"
			health["status"] = "degraded"
			h.logger.Error("Health check: session store unavailable", "error", err)
		} else {
			health["sessions"] = "healthy"
		}
	}

	status := http.StatusOK
	if health["status"] == "degraded" {
		status = http.StatusServiceUnavailable
	}
	sendJSON(w, status, health)
}

// open loads the visitor's state into a controller. Each change is written
// back as a field-level diff against the previous snapshot, so a request only
// ever persists what it changed itself: a delete or refresh never touches the
// loading flag a concurrent submit owns. found is false for a new visitor.
func (h *Handler) open(w http.ResponseWriter, r *http.Request) (*form.Controller, bool, error) {
	ctx := r.Context()

	id := ""
	if c, err := r.Cookie(cookieName); err == nil && session.ValidID(c.Value) {
		id = c.Value
	}
	if id == "" {
		id = session.NewID()
		http.SetCookie(w, &http.Cookie{
			Name:     cookieName,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	st, found, err := h.sessions.Load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if st.Stale(h.now(), h.staleAfter) {
		h.logger.Warn("Clearing stale loading flag", "session", id, "since", st.LoadingSince)
		st.Loading = false
		st.LoadingSince = time.Time{}
	}

	saveCtx := context.WithoutCancel(ctx)
	prev := st
	ctrl := form.New(h.api, h.logger,
		form.WithState(st),
		form.WithAuditor(h.auditor),
		form.WithClock(h.now),
		form.WithObserver(func(cur form.State) {
			base := prev
			prev = cur
			err := h.sessions.Update(saveCtx, id, func(stored *form.State) {
				applyChanges(stored, base, cur)
			})
			if err != nil {
				h.logger.Error("Session save failed", "session", id, "error", err)
			}
		}),
	)
	return ctrl, found, nil
}

// applyChanges copies into stored the field groups that differ between prev
// and cur.
func applyChanges(stored *form.State, prev, cur form.State) {
	if cur.Loading != prev.Loading || !cur.LoadingSince.Equal(prev.LoadingSince) {
		stored.Loading = cur.Loading
		stored.LoadingSince = cur.LoadingSince
	}
	if cur.Message != prev.Message || cur.Status != prev.Status {
		stored.Message = cur.Message
		stored.Status = cur.Status
	}
	if cur.City != prev.City || cur.Email != prev.Email {
		stored.City = cur.City
		stored.Email = cur.Email
	}
	if !slices.Equal(cur.Logs, prev.Logs) || (cur.Logs == nil) != (prev.Logs == nil) {
		stored.Logs = cur.Logs
	}
}

type page struct {
	State form.State
}

func (h *Handler) render(w http.ResponseWriter, status int, st form.State) {
	var buf bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&buf, "index.html", page{State: st}); err != nil {
		h.logger.Error("Template render failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// respond sends JSON clients the state and redirects browsers back to the form.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, st form.State) {
	if wantsJSON(r) {
		sendJSON(w, status, st)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func readSubmission(r *http.Request) (string, string, error) {
	if isJSON(r.Header.Get("Content-Type")) {
		var body model.SendRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", "", err
		}
		return body.City, body.Email, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", "", err
	}
	return r.FormValue("city"), r.FormValue("email"), nil
}

func wantsJSON(r *http.Request) bool {
	return isJSON(r.Header.Get("Accept")) || isJSON(r.Header.Get("Content-Type"))
}

func isJSON(header string) bool {
	return strings.Contains(header, "application/json")
}

func sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func sendError(w http.ResponseWriter, status int, errorMsg, details string) {
	sendJSON(w, status, model.ErrorResponse{
		Error:   errorMsg,
		Message: details,
	})
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aadithya-v/sitecookie"
)

// maxSettingsBytes caps an uploaded settings document.
const maxSettingsBytes = 64 << 10

// headerIdentity reads the demo identity from X-User-Roles, a comma-separated
// role list. A request without the header is anonymous.
func headerIdentity(r *http.Request) sitecookie.Identity {
	raw := strings.TrimSpace(r.Header.Get("X-User-Roles"))
	if raw == "" {
		return sitecookie.Anonymous
	}
	var roles []string
	for _, role := range strings.Split(raw, ",") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	return sitecookie.Identity{LoggedIn: true, Roles: sitecookie.NewRoleSet(roles...)}
}

func newRouter(m *sitecookie.Manager, tenants sitecookie.TenantResolver, identify sitecookie.IdentityResolver, log zerolog.Logger) chi.Router {
	h := &handlers{m: m, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.With(m.Middleware(tenants, identify)).Get("/", h.demo)

	r.Route("/admin", func(admin chi.Router) {
		admin.Get("/tenants/{id}/settings", h.exportSettings)
		admin.Post("/tenants/{id}/settings", h.importSettings)
		admin.Get("/reports", h.report)
		admin.Post("/flush", h.flush)
	})

	return r
}

type handlers struct {
	m   *sitecookie.Manager
	log zerolog.Logger
}

func (h *handlers) demo(w http.ResponseWriter, r *http.Request) {
	issued, ok := sitecookie.IssuedFromContext(r.Context())
	if !ok {
		http.Error(w, "unknown tenant", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!doctype html><title>sitecookie</title><p>Cookie <code>%s</code> set, session <code>%s</code>, expires %s.</p>",
		html.EscapeString(issued.Name), html.EscapeString(issued.SessionID), issued.ExpiresAt.UTC().Format("2006-01-02 15:04:05 MST"))
}

func tenantID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, sitecookie.ErrInvalidTenant
	}
	return id, nil
}

func (h *handlers) exportSettings(w http.ResponseWriter, r *http.Request) {
	id, err := tenantID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	data, err := h.m.ExportSettings(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Int64("tenant_id", id).Msg("settings export failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="cookie-settings-%d.json"`, id))
	_, _ = w.Write(data)
}

func (h *handlers) importSettings(w http.ResponseWriter, r *http.Request) {
	id, err := tenantID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSettingsBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	if err := h.m.ImportSettings(r.Context(), id, body); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, sitecookie.ErrInvalidSettings) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *handlers) report(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("cookie")
	if name == "" {
		writeError(w, http.StatusBadRequest, errors.New("cookie query parameter required"))
		return
	}
	rows, err := h.m.Report(r.Context(), name)
	if err != nil {
		h.log.Error().Err(err).Str("cookie", name).Msg("report failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handlers) flush(w http.ResponseWriter, r *http.Request) {
	result, err := h.m.FlushBatch(r.Context())
	body := map[string]any{
		"attempted": result.Attempted,
		"inserted":  result.Inserted,
		"failed":    result.Failed,
	}
	if err != nil {
		body["error"] = err.Error()
		writeJSON(w, http.StatusInternalServerError, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

// Package transport adapts the shared router onto HTTP and WebSocket,
// and mounts the admin control plane on its own chi router. Both TGP
// paths share exactly one Router instance, so there is no bypass of its
// verification guarantees.
package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/tbcnet/gateway/internal/admin"
	"github.com/tbcnet/gateway/internal/router"
)

// HealthInfo is the /health response shape.
type HealthInfo struct {
	Status    string         `json:"status"`
	Version   string         `json:"version"`
	Protocol  string         `json:"protocol"`
	Timestamp time.Time      `json:"timestamp"`
	Endpoints map[string]string `json:"endpoints"`
	Security  SecurityInfo   `json:"security"`
}

// SecurityInfo names the active verification layers and the fail mode.
type SecurityInfo struct {
	Layers []string `json:"layers"`
	Mode   string   `json:"mode"`
}

// AdminHealthInfo is the /admin/health response shape.
type AdminHealthInfo struct {
	Status        string `json:"status"`
	Service       string `json:"service"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	TBCID         string `json:"tbc_id"`
}

// NewTGPRouter builds the gorilla/mux router serving POST /tgp, GET
// /tgp/ws, and GET /health.
func NewTGPRouter(r *router.Router, wsPath, allowOrigin string, health func() HealthInfo, log *logrus.Entry) *mux.Router {
	m := mux.NewRouter()
	m.Use(RequestLogger(log))
	m.Use(CORS(allowOrigin))

	m.HandleFunc("/tgp", tgpHandler(r, log)).Methods(http.MethodPost)
	m.HandleFunc(wsPath, wsHandler(r, allowOrigin, log)).Methods(http.MethodGet)
	m.HandleFunc("/health", healthHandler(health)).Methods(http.MethodGet)
	return m
}

func tgpHandler(r *router.Router, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			log.WithError(err).Warn("failed to read request body")
			body = nil
		}
		out := r.Route(req.Context(), body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
	}
}

func healthHandler(health func() HealthInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(health())
	}
}

// NewAdminRouter builds the go-chi router serving GET /admin/health and
// POST /admin/exec, kept on a separate mux from the TGP surface so the
// two historically-used routing libraries in this stack both get a
// genuine, independently exercised home.
func NewAdminRouter(ctrl *admin.Controller, adminHealth func() AdminHealthInfo, allowOrigin string, log *logrus.Entry) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chiLogger(log))
	r.Use(chiCORS(allowOrigin))

	r.Get("/admin/health", func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewEncoder(w).Encode(adminHealth())
	})

	r.Post("/admin/exec", func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			writeJSON(w, 400, map[string]any{"success": false, "error": "failed to read request body"})
			return
		}
		signedReq, err := admin.ParseSignedRequest(body)
		if err != nil {
			writeJSON(w, 400, map[string]any{"success": false, "error": "malformed signed request"})
			return
		}
		result := ctrl.Exec(signedReq)
		writeJSON(w, result.HTTPStatus, result)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func chiLogger(log *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Info("admin request")
			next.ServeHTTP(w, r)
		})
	}
}

func chiCORS(allowOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			next.ServeHTTP(w, r)
		})
	}
}

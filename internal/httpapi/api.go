package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"wayfarer.app/internal/auth"
	"wayfarer.app/internal/obs"
)

// ReadyProbe reports whether downstream dependencies answer (DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the session and recovery managers.
type API struct {
	mux        *http.ServeMux
	sessions   *auth.Service
	recovery   *auth.Recovery
	logins     *auth.AttemptLimiter
	readyProbe ReadyProbe
	version    string

	maxBodyBytes int64
	rateBurst    int
	ratePerSec   int
}

// New wires routes for the auth surface, the protected user surface, and
// the operational endpoints.
func New(sessions *auth.Service, recovery *auth.Recovery, rp ReadyProbe, version string) *API {
	a := &API{
		mux:          http.NewServeMux(),
		sessions:     sessions,
		recovery:     recovery,
		logins:       auth.NewAttemptLimiter(10, 10),
		readyProbe:   rp,
		version:      version,
		maxBodyBytes: 1 << 20,
		rateBurst:    30,
		ratePerSec:   10,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/auth/register", a.handleRegister)
	a.mux.HandleFunc("/auth/login", a.handleLogin)
	a.mux.HandleFunc("/auth/token", a.handleRefresh)
	a.mux.HandleFunc("/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/auth/forgot-password", a.handleForgotPassword)
	a.mux.HandleFunc("/auth/reset-password", a.handleResetPassword)

	a.mux.HandleFunc("/users/me", a.handleMe)
	a.mux.HandleFunc("/users/role", a.handleUpdateRole)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- operational handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "wayfarer-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

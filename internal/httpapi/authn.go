package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"wayfarer.app/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// The auth surface and operational endpoints carry no bearer token. Logout
// is public here because it must accept an expired access token; its handler
// checks header presence itself.
var publicPaths = []string{
	"/auth/register",
	"/auth/login",
	"/auth/token",
	"/auth/logout",
	"/auth/forgot-password",
	"/auth/reset-password",
	"/healthz",
	"/readyz",
	"/metrics",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		accountID, err := a.sessions.Authenticate(token)
		if err != nil {
			// Expired and malformed tokens both answer 401 so the client
			// agent knows a refresh attempt is the next move; 403 is
			// reserved for role failures.
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				writeError(w, r, http.StatusUnauthorized, "token expired")
			case errors.Is(err, auth.ErrInvalidToken):
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithAccountID(r.Context(), accountID)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin resolves the bound identity against the store and checks the
// admin role. Runs only on admin endpoints; ordinary protected requests
// trust the token's claims without a store round trip.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing identity")
		return false
	}
	acc, err := a.sessions.Store().FindAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "account not found")
		} else {
			writeError(w, r, http.StatusInternalServerError, "account lookup failed")
		}
		return false
	}
	if acc.Role != auth.RoleAdmin {
		w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
		writeError(w, r, http.StatusForbidden, "admin role required")
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"wayfarer.app/internal/audit"
	"wayfarer.app/internal/auth"
	"wayfarer.app/internal/obs"
)

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// refreshRequest carries the refresh token in the body. Refresh tokens are
// never attached as headers.
type refreshRequest struct {
	Token string `json:"token"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	acc, err := a.sessions.Register(r.Context(), req.FirstName, req.LastName, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateEmail):
			obs.ObserveAuth("register", "duplicate_email")
			writeError(w, r, http.StatusBadRequest, "email already exists")
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, "first name, last name, email and password are required")
		default:
			obs.ObserveAuth("register", "error")
			writeError(w, r, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	obs.ObserveAuth("register", "ok")
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{"account_id": acc.ID})
	writeJSON(w, http.StatusCreated, map[string]any{"message": "account registered"})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if !a.logins.Allow(req.Email) {
		obs.ObserveAuth("login", "throttled")
		w.Header().Set("Retry-After", "60")
		writeError(w, r, http.StatusTooManyRequests, "too many login attempts")
		return
	}

	pair, err := a.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNotFound):
			obs.ObserveAuth("login", "not_found")
			writeError(w, r, http.StatusNotFound, "account not found")
		case errors.Is(err, auth.ErrInvalidCredential):
			obs.ObserveAuth("login", "invalid_credential")
			writeError(w, r, http.StatusUnauthorized, "invalid password")
		default:
			obs.ObserveAuth("login", "error")
			writeError(w, r, http.StatusInternalServerError, "login failed")
		}
		return
	}

	obs.ObserveAuth("login", "ok")
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{"email": strings.ToLower(strings.TrimSpace(req.Email))})
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, r, http.StatusUnauthorized, "missing refresh token")
		return
	}

	access, _, err := a.sessions.Refresh(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidRefreshToken) {
			obs.ObserveAuth("refresh", "invalid_token")
			writeError(w, r, http.StatusForbidden, "invalid refresh token")
			return
		}
		obs.ObserveAuth("refresh", "error")
		writeError(w, r, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	obs.ObserveAuth("refresh", "ok")
	writeJSON(w, http.StatusOK, refreshResponse{AccessToken: access})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	// The access token may be expired at logout time; only its presence is
	// required here. Session teardown is keyed on the refresh token.
	if _, err := extractBearerToken(r.Header.Get(authHeader)); err != nil {
		writeError(w, r, http.StatusForbidden, "missing token")
		return
	}
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.sessions.Logout(r.Context(), req.Token); err != nil {
		if errors.Is(err, auth.ErrInvalidRefreshToken) {
			obs.ObserveAuth("logout", "invalid_token")
			writeError(w, r, http.StatusForbidden, "invalid refresh token")
			return
		}
		obs.ObserveAuth("logout", "error")
		writeError(w, r, http.StatusInternalServerError, "failed to log out")
		return
	}

	obs.ObserveAuth("logout", "ok")
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.recovery.RequestReset(r.Context(), req.Email); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "account not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "failed to issue reset code")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.reset_requested", map[string]any{"email": strings.ToLower(strings.TrimSpace(req.Email))})
	writeJSON(w, http.StatusOK, map[string]any{"message": "verification code sent"})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	err := a.recovery.VerifyAndReset(r.Context(), req.Email, req.Code, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "account not found")
		case errors.Is(err, auth.ErrInvalidResetCode), errors.Is(err, auth.ErrInvalidInput):
			obs.ObserveAuth("reset", "invalid_code")
			writeError(w, r, http.StatusBadRequest, "verification code is invalid or has expired")
		default:
			obs.ObserveAuth("reset", "error")
			writeError(w, r, http.StatusInternalServerError, "failed to reset password")
		}
		return
	}

	obs.ObserveAuth("reset", "ok")
	_ = audit.LogEvent(r.Context(), "auth.password_reset", map[string]any{"email": strings.ToLower(strings.TrimSpace(req.Email))})
	writeJSON(w, http.StatusOK, map[string]any{"message": "password has been reset"})
}

package httpapi

import (
	"errors"
	"net/http"

	"wayfarer.app/internal/audit"
	"wayfarer.app/internal/auth"
)

type profileResponse struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

type updateRoleRequest struct {
	Email string `json:"email"`
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing identity")
		return
	}

	acc, err := a.sessions.Store().FindAccount(r.Context(), accountID)
	if err != nil {
		// The token outlives the account; a deleted principal surfaces here.
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "account not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "failed to fetch account")
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		FirstName: acc.FirstName,
		LastName:  acc.LastName,
		Role:      string(acc.Role),
	})
}

func (a *API) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}

	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	target, err := a.sessions.Store().FindAccountByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "account not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "account lookup failed")
		return
	}
	if err := a.sessions.Store().SetRole(r.Context(), target.ID, auth.RoleAdmin); err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to update role")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.role_updated", map[string]any{
		"target": target.ID,
		"role":   string(auth.RoleAdmin),
	})
	writeJSON(w, http.StatusOK, map[string]any{"message": "role updated"})
}

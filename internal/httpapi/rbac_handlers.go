package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"keygate.io/internal/audit"
	"keygate.io/internal/auth"
	"keygate.io/internal/obs"
)

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims := a.requirePermission(w, r, auth.PermManageUsers)
	if claims == nil {
		return
	}
	var req struct {
		Username string `json:"username"`
		Secret   string `json:"secret"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := a.svc.RegisterUser(r.Context(), claims.ClientID, req.Username, req.Secret)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.registered", map[string]any{
		"user_id":   user.ID,
		"client_id": user.ClientID,
		"username":  user.Username,
	})
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims := a.requirePermission(w, r, auth.PermManageRoles)
	if claims == nil {
		return
	}
	var req struct {
		Name        string   `json:"name"`
		Permissions []string `json:"permissions"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	role, err := a.svc.CreateRole(r.Context(), claims.ClientID, req.Name, req.Permissions)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.created", map[string]any{
		"role_id":   role.ID,
		"client_id": role.ClientID,
		"role_name": role.Name,
	})
	writeJSON(w, http.StatusCreated, role)
}

// handleUserScoped routes /v1/users/{id}/roles. Other subpaths are 404.
func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "roles" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	a.handleAssignRoles(w, r, parts[0])
}

func (a *API) handleAssignRoles(w http.ResponseWriter, r *http.Request, userID string) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	var req struct {
		RoleIDs []string `json:"role_ids"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.svc.AssignRole(r.Context(), claims, userID, req.RoleIDs); err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			obs.ObserveAuthzDecision("deny")
		}
		writeServiceError(w, r, err)
		return
	}
	obs.ObserveAuthzDecision("allow")
	_ = audit.LogEvent(r.Context(), "user.roles_assigned", map[string]any{
		"user_id":  userID,
		"role_ids": req.RoleIDs,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

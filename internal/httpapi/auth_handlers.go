package httpapi

import (
	"errors"
	"net/http"

	"keygate.io/internal/audit"
	"keygate.io/internal/auth"
	"keygate.io/internal/obs"
)

func (a *API) handleRegisterClient(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		Name   string `json:"name"`
		Secret string `json:"secret"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	client, err := a.svc.RegisterClient(r.Context(), req.Name, req.Secret)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "client.registered", map[string]any{
		"client_id":   client.ID,
		"client_name": client.Name,
	})
	writeJSON(w, http.StatusCreated, client)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		ClientID string `json:"client_id"`
		Username string `json:"username"`
		Secret   string `json:"secret"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	pair, err := a.svc.Login(r.Context(), req.ClientID, req.Username, req.Secret)
	if err != nil {
		if errors.Is(err, auth.ErrAuthFailed) {
			obs.ObserveLogin("user", "failed")
		}
		writeServiceError(w, r, err)
		return
	}
	obs.ObserveLogin("user", "ok")
	observePairIssued()
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"client_id": req.ClientID,
		"username":  req.Username,
	})
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleClientLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		Name   string `json:"name"`
		Secret string `json:"secret"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	pair, err := a.svc.LoginClient(r.Context(), req.Name, req.Secret)
	if err != nil {
		if errors.Is(err, auth.ErrAuthFailed) {
			obs.ObserveLogin("client", "failed")
		}
		writeServiceError(w, r, err)
		return
	}
	obs.ObserveLogin("client", "ok")
	observePairIssued()
	_ = audit.LogEvent(r.Context(), "auth.client_login", map[string]any{
		"client_name": req.Name,
	})
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	pair, err := a.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	obs.ObserveRefreshRotation()
	obs.ObserveRevocation()
	observePairIssued()
	_ = audit.LogEvent(r.Context(), "auth.refresh", nil)
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.svc.Logout(r.Context(), req.RefreshToken); err != nil {
		writeServiceError(w, r, err)
		return
	}
	obs.ObserveRevocation()
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func observePairIssued() {
	obs.ObserveTokenIssued("access")
	obs.ObserveTokenIssued("refresh")
}

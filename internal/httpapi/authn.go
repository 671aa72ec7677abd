package httpapi

import (
	"net/http"
	"strings"

	"keygate.io/internal/auth"
	"keygate.io/internal/obs"
)

// publicPath reports whether a route is reachable without a bearer token.
// Registration and the auth endpoints authenticate by payload, not header.
func publicPath(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics", "/v1/clients":
		return true
	}
	return strings.HasPrefix(path, "/v1/auth/")
}

// withAuth validates the bearer token on protected routes and attaches the
// resulting claims to the request context.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := a.svc.ValidateAccess(token)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithClaims(r.Context(), claims)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// requirePermission enforces one permission tag on the request's claims and
// records the decision. Returns the claims on success, nil after writing the
// error response on failure.
func (a *API) requirePermission(w http.ResponseWriter, r *http.Request, permission string) *auth.Claims {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return nil
	}
	if err := auth.Authorize(claims, permission); err != nil {
		obs.ObserveAuthzDecision("deny")
		writeServiceError(w, r, err)
		return nil
	}
	obs.ObserveAuthzDecision("allow")
	return claims
}

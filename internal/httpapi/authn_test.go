package httpapi

import (
	"net/http"
	"testing"
)

func TestPublicPath(t *testing.T) {
	public := []string{
		"/healthz", "/readyz", "/metrics", "/v1/clients",
		"/v1/auth/login", "/v1/auth/client-login", "/v1/auth/refresh", "/v1/auth/logout",
	}
	for _, p := range public {
		if !publicPath(p) {
			t.Errorf("expected %s to be public", p)
		}
	}
	protected := []string{"/v1/users", "/v1/users/u1/roles", "/v1/roles", "/"}
	for _, p := range protected {
		if publicPath(p) {
			t.Errorf("expected %s to be protected", p)
		}
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc.def.ghi", "abc.def.ghi", true},
		{"Bearer   spaced  ", "spaced", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"abc.def.ghi", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		r, err := http.NewRequest(http.MethodGet, "/v1/users", nil)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		got, ok := bearerToken(r)
		if ok != tc.ok || got != tc.want {
			t.Errorf("bearerToken(%q) = %q, %v; want %q, %v", tc.header, got, ok, tc.want, tc.ok)
		}
	}
}

// Package api implements the HTTP surface of the tracking sync service.
package api

import (
    "crypto/subtle"
    "net/http"
    "strings"
)

type Principal struct {
    Role string // admin, customer
}

// getPrincipal resolves the caller's role.
// - With an admin token configured, only a matching Authorization: Bearer grants admin.
// - Without one, the X-Role header is trusted (dev and behind-proxy setups).
func (s *Server) getPrincipal(r *http.Request) Principal {
    if s.AdminToken != "" {
        authz := r.Header.Get("Authorization")
        if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
            tok := strings.TrimSpace(authz[len("Bearer "):])
            if subtle.ConstantTimeCompare([]byte(tok), []byte(s.AdminToken)) == 1 {
                return Principal{Role: "admin"}
            }
        }
        return Principal{Role: "customer"}
    }
    role := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Role")))
    if role == "" { role = "customer" }
    return Principal{Role: role}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// requireAdmin writes a 403 and returns false for non-admin callers.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
    if s.getPrincipal(r).IsAdmin() { return true }
    writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
    return false
}

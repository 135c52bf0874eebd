package api

import (
    "net/http"
    "time"

    "pickupmtaani/internal/buildinfo"
    "pickupmtaani/internal/config"
)

// DebugJSON handles GET /v1/admin/debug: build info and the effective
// settings with secrets reduced to presence flags.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    if !s.requireAdmin(w, r) { return }
    info := map[string]any{
        "build": buildinfo.Info(),
        "time":  s.clock().UTC().Format(time.RFC3339),
    }
    if s.Config != nil {
        info["config"] = redacted(*s.Config)
    }
    if en, ok := s.Runner.(interface{ Enabled() bool }); ok {
        info["schedulerEnabled"] = en.Enabled()
    }
    writeJSON(w, http.StatusOK, info)
}

func redacted(c config.Config) map[string]any {
    return map[string]any{
        "HAS_API_KEY":      c.Carrier.APIKey != "",
        "BASE_URL":         c.Carrier.BaseURL,
        "HAS_BUSINESS_ID":  c.Carrier.BusinessID != "",
        "SENDER_AGENT_ID":  c.Carrier.SenderAgentID,
        "VERBOSE":          c.Carrier.Verbose,
        "SYNC_INTERVAL":    c.Sync.Interval.String(),
        "LOCK_TTL":         c.Sync.LockTTL.String(),
        "PAGE_SIZE":        c.Sync.PageSize,
        "ALLOW_REGRESSION": c.Sync.AllowRegression,
        "HAS_DATABASE_URL": c.Store.DatabaseURL != "",
        "HAS_REDIS_URL":    c.Redis.URL != "",
        "HAS_ADMIN_TOKEN":  c.HTTP.AdminToken != "",
        "RATES_ENABLED":    c.Rates.Enabled,
    }
}

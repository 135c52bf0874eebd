// Package buildinfo exposes link-time version data for health output and startup logs.
package buildinfo

import "runtime/debug"

// Set with -ldflags "-X pickupmtaani/internal/buildinfo.Version=..."
var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

func Info() map[string]string {
    out := map[string]string{
        "version": Version,
        "commit":  Commit,
        "builtAt": BuiltAt,
    }
    if bi, ok := debug.ReadBuildInfo(); ok {
        out["go"] = bi.GoVersion
        if Commit == "" {
            for _, s := range bi.Settings {
                if s.Key == "vcs.revision" { out["commit"] = s.Value }
            }
        }
    }
    return out
}

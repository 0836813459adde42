package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyProjectID  = "project_id"
	KeyTraceID    = "trace_id"
	KeyJobRef     = "job_ref"
	KeyStage      = "stage"
	KeyStatus     = "status"
	KeyChannel    = "channel"
	KeyConnID     = "conn_id"
	KeyKey        = "key"
	KeyURL        = "url"
	KeyPath       = "path"
	KeyMethod     = "method"
	KeyHost       = "host"
	KeyProvider   = "provider"
	KeyDurationMS = "duration_ms"
	KeyExitCode   = "exit_code"
	KeyUserAgent  = "user_agent"
	KeyRemoteAddr = "remote_addr"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func ProjectID(id string) slog.Attr   { return slog.String(KeyProjectID, id) }
func TraceID(id string) slog.Attr     { return slog.String(KeyTraceID, id) }
func JobRef(ref string) slog.Attr     { return slog.String(KeyJobRef, ref) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func Channel(name string) slog.Attr   { return slog.String(KeyChannel, name) }
func ConnID(id string) slog.Attr      { return slog.String(KeyConnID, id) }
func Key(k string) slog.Attr          { return slog.String(KeyKey, k) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func Host(h string) slog.Attr         { return slog.String(KeyHost, h) }
func Provider(name string) slog.Attr  { return slog.String(KeyProvider, name) }
func ExitCode(code int) slog.Attr     { return slog.Int(KeyExitCode, code) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func UserAgent(ua string) slog.Attr   { return slog.String(KeyUserAgent, ua) }
func RemoteAddr(a string) slog.Attr   { return slog.String(KeyRemoteAddr, a) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

package httpapi

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger used by the HTTP layer. Nop until SetLogger.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off":
		return LevelOff
	case "error":
		return LevelError
	case "info", "":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = parseLevel(os.Getenv("QWENEDIT_HTTP_LOG_LEVEL"))

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// requestLog carries the per-request level and correlation fields for one
// process call.
type requestLog struct {
	lvl   LogLevel
	log   zerolog.Logger
	start time.Time
}

func newRequestLog(r *http.Request) *requestLog {
	l := zlog.With().Str("path", r.URL.Path)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		l = l.Str("request_id", rid)
	}
	return &requestLog{lvl: requestLogLevel(r), log: l.Logger(), start: time.Now()}
}

func (rl *requestLog) debug(msg string, fields map[string]any) {
	if rl.lvl >= LevelDebug {
		rl.log.Debug().Fields(fields).Msg(msg)
	}
}

func (rl *requestLog) begin(prompt string) {
	if rl.lvl >= LevelInfo {
		rl.log.Info().Str("prompt", prompt).Msg("process start")
	}
}

// end logs the outcome. Server-side failures are logged at error level
// unless the request turned logging off.
func (rl *requestLog) end(status int, err error) {
	dur := time.Since(rl.start)
	switch {
	case err != nil && status >= http.StatusInternalServerError && rl.lvl >= LevelError:
		rl.log.Error().Int("status", status).Dur("dur", dur).Err(err).Msg("process end")
	case rl.lvl >= LevelInfo:
		ev := rl.log.Info().Int("status", status).Dur("dur", dur)
		if err != nil {
			ev = ev.Err(err)
		}
		ev.Msg("process end")
	}
}

package audit

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bloodlink/bloodlink/internal/platform/auth"
)

const apiPrefix = "/api/v1/"

// Sink receives finished entries; *Recorder is the production Sink.
type Sink interface {
	Record(e *Entry) bool
}

// Middleware audits mutating requests under /api/v1. Reads are not
// recorded.
func Middleware(sink Sink) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !isAuditable(req.Method, path) {
				return next(c)
			}

			err := next(c)

			actor := auth.ActorFromContext(req.Context())
			entry := &Entry{
				ActorEmail: actor.Email,
				ActorRole:  actor.Role,
				Action:     action(req.Method, path),
				Resource:   resource(path),
				HN:         hnFromPath(path),
				Method:     req.Method,
				Path:       path,
				StatusCode: statusCode(c, err),
				IPAddress:  c.RealIP(),
				CreatedAt:  time.Now().UTC(),
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}
			sink.Record(entry)
			return err
		}
	}
}

func isAuditable(method, path string) bool {
	if !strings.HasPrefix(path, apiPrefix) {
		return false
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func action(method, path string) string {
	if strings.HasSuffix(path, "/transition") {
		return "transition"
	}
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodDelete:
		return "delete"
	default:
		return "update"
	}
}

// resource is the first path segment after the API prefix:
// /api/v1/patients/123456789/transition -> patients.
func resource(path string) string {
	seg := strings.SplitN(strings.TrimPrefix(path, apiPrefix), "/", 2)[0]
	if seg == "" {
		return "unknown"
	}
	return seg
}

func hnFromPath(path string) string {
	rest, ok := strings.CutPrefix(path, apiPrefix+"patients/")
	if !ok {
		return ""
	}
	seg := strings.SplitN(rest, "/", 2)[0]
	if len(seg) != 9 {
		return ""
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return seg
}

// statusCode reports what the client will see. Handler errors are turned
// into responses after middleware returns, so the recorder's status is not
// yet final when err is set.
func statusCode(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

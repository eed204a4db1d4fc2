package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/taskflow/pkg/logger"
)

const auditBodyLimit = 2000

// routeVerbs are trailing route segments that name the action themselves.
var routeVerbs = map[string]bool{"move": true, "parent": true, "archive": true, "unarchive": true, "token": true}

var sensitiveKeys = map[string]bool{"password": true, "secret": true, "token": true, "access_token": true}

// AuditLog writes one access line per write request. The domain history of a
// change lives in the activity log; this line records who called what.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			c.Next()
			return
		}

		var body string
		if c.Request.Body != nil {
			raw, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(raw))
			body = auditBody(raw)
		}

		c.Next()

		status := c.Writer.Status()
		resource, action := describeRoute(c.FullPath(), method)

		event := logger.Info()
		if status >= 400 {
			event = logger.Warn()
		}
		event.
			Bool("audit", true).
			Str("user_id", GetUserID(c)).
			Str("resource", resource).
			Str("action", action).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Str("ip", c.ClientIP()).
			Str("body", body).
			Msgf("%s %s.%s", GetEmail(c), resource, action)
	}
}

// describeRoute names the resource and action of a route pattern, e.g.
// POST /api/projects/:id/tasks is ("task", "create") and
// POST /api/tasks/:id/move is ("task", "move").
func describeRoute(fullPath, method string) (resource, action string) {
	var static []string
	for _, seg := range strings.Split(strings.TrimPrefix(fullPath, "/api/"), "/") {
		if seg != "" && !strings.HasPrefix(seg, ":") {
			static = append(static, seg)
		}
	}
	if len(static) == 0 {
		return "unknown", strings.ToLower(method)
	}

	last := static[len(static)-1]
	if routeVerbs[last] && len(static) > 1 {
		return singular(static[len(static)-2]), last
	}

	switch method {
	case http.MethodPost:
		action = "create"
	case http.MethodPut, http.MethodPatch:
		action = "update"
	case http.MethodDelete:
		action = "delete"
	default:
		action = strings.ToLower(method)
	}
	return singular(last), action
}

func singular(s string) string {
	switch {
	case strings.HasSuffix(s, "ies"):
		return strings.TrimSuffix(s, "ies") + "y"
	case strings.HasSuffix(s, "s"):
		return strings.TrimSuffix(s, "s")
	}
	return s
}

// auditBody renders a JSON request body with credentials masked. Bodies
// that are not JSON objects are not logged.
func auditBody(raw []byte) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ""
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "[non-json body]"
	}
	maskSensitive(doc)
	out, err := json.Marshal(doc)
	if err != nil {
		return "[unencodable body]"
	}
	if len(out) > auditBodyLimit {
		return string(out[:auditBodyLimit]) + "...[truncated]"
	}
	return string(out)
}

func maskSensitive(doc map[string]interface{}) {
	for k, v := range doc {
		if sensitiveKeys[strings.ToLower(k)] {
			doc[k] = "***"
			continue
		}
		if nested, ok := v.(map[string]interface{}); ok {
			maskSensitive(nested)
		}
	}
}

package middleware

import (
	"bytes"
	"io"
	log "log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

const auditBodyLimit = 16384

// 审计日志中替换为 "***" 的字段
var redactedFields = []string{"password", "token"}

type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r *responseBodyWriter) Write(b []byte) (int, error) {
	if r.body.Len() < auditBodyLimit {
		r.body.Write(b)
	}
	return r.ResponseWriter.Write(b)
}

func (r *responseBodyWriter) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// AuditMiddleware 记录请求与响应. 登录凭据与 JWT 脱敏, WebSocket 升级请求只记录一行
func AuditMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		query := redactQuery(c.Request.URL.Query())
		if c.IsWebsocket() {
			log.InfoContext(ctx, "Recv WebSocket",
				log.String("path", c.Request.URL.Path),
				log.String("query", query),
			)
			c.Next()
			return
		}

		var reqBody []byte
		if c.Request.Body != nil {
			reqBody, _ = io.ReadAll(io.LimitReader(c.Request.Body, auditBodyLimit+1))
			rest, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(append(append([]byte{}, reqBody...), rest...)))
		}

		log.InfoContext(ctx, "Recv Request",
			log.String("method", c.Request.Method),
			log.String("path", c.Request.URL.Path),
			log.String("query", query),
			log.String("req_body", RedactJSON(reqBody)),
		)

		w := &responseBodyWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = w
		startTime := time.Now()

		c.Next()

		log.InfoContext(ctx, "Send Response",
			log.Int("status", c.Writer.Status()),
			log.Duration("latency", time.Since(startTime)),
			log.String("res_body", RedactJSON(w.body.Bytes())),
		)
	}
}

// RedactJSON 把 JSON 中的敏感字段替换为 "***"; 非 JSON 内容原样返回
func RedactJSON(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return string(body)
	}
	if !redactValue(doc) {
		return string(body)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return string(body)
	}
	return string(out)
}

func redactValue(v interface{}) bool {
	changed := false
	switch node := v.(type) {
	case map[string]interface{}:
		for k, child := range node {
			if isRedacted(k) {
				node[k] = "***"
				changed = true
				continue
			}
			if redactValue(child) {
				changed = true
			}
		}
	case []interface{}:
		for _, child := range node {
			if redactValue(child) {
				changed = true
			}
		}
	}
	return changed
}

func isRedacted(key string) bool {
	key = strings.ToLower(key)
	for _, f := range redactedFields {
		if strings.Contains(key, f) {
			return true
		}
	}
	return false
}

func redactQuery(values url.Values) string {
	for k := range values {
		if isRedacted(k) {
			values.Set(k, "***")
		}
	}
	decoded, err := url.QueryUnescape(values.Encode())
	if err != nil {
		return values.Encode()
	}
	return decoded
}

package logger

import (
	"bytes"
	"io"
	log "log/slog"
	"net/http"
	"time"
)

const (
	bodyLogLimit   = 1000
	esSlowDuration = 500 * time.Millisecond
)

// ESTransport 记录聊天检索/索引请求; bulk 索引只记录大小, 不记录消息正文
type ESTransport struct {
	Transport http.RoundTripper
}

func NewESTransport(next http.RoundTripper) *ESTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &ESTransport{Transport: next}
}

func (t *ESTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	var reqBody []byte
	if req.Body != nil {
		reqBody, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	resp, err := t.Transport.RoundTrip(req)
	elapsed := time.Since(start)

	fields := []any{
		log.String("method", req.Method),
		log.String("path", req.URL.Path),
		log.Duration("latency", elapsed),
	}
	if req.Method == http.MethodPost && len(reqBody) > 0 && isSearchPath(req.URL.Path) {
		fields = append(fields, log.String("req_body", clip(string(reqBody), bodyLogLimit)))
	} else {
		fields = append(fields, log.Int("req_bytes", len(reqBody)))
	}

	if err != nil {
		log.ErrorContext(req.Context(), "ES_REQUEST_ERROR", append(fields, log.Any("err", err))...)
		return nil, err
	}

	fields = append(fields, log.Int("status", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest && resp.Body != nil {
		resBody, _ := io.ReadAll(resp.Body)
		resp.Body = io.NopCloser(bytes.NewReader(resBody))
		fields = append(fields, log.String("res_body", clip(string(resBody), bodyLogLimit)))
		log.WarnContext(req.Context(), "ES_REQUEST_FAILED", fields...)
		return resp, nil
	}

	if elapsed > esSlowDuration {
		log.WarnContext(req.Context(), "ES_REQUEST_SLOW", fields...)
	} else {
		log.InfoContext(req.Context(), "ES_REQUEST", fields...)
	}
	return resp, nil
}

func isSearchPath(path string) bool {
	return len(path) >= 8 && path[len(path)-8:] == "/_search"
}

func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "...[truncated]"
}

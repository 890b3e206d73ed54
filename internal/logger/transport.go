package logger

import (
	"net/http"
	"time"
)

// Transport：出站 HTTP 访问日志，记录方法、地址、状态与耗时
// 约束：不读取响应体；next 为空时使用 http.DefaultTransport
func Transport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return roundTripFunc(func(r *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := next.RoundTrip(r)
		dur := time.Since(start).Milliseconds()
		if err != nil {
			L().Debug("http_out", "method", r.Method, "url", r.URL.String(), "duration_ms", dur, "err", err)
			return nil, err
		}
		L().Debug("http_out",
			"method", r.Method,
			"url", r.URL.String(),
			"status", resp.StatusCode,
			"content_length", resp.ContentLength,
			"duration_ms", dur,
		)
		return resp, nil
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

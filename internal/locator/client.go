package locator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"store-scrape/internal/geo"
	"store-scrape/internal/logger"
	"store-scrape/internal/metrics"
)

const maxBody = 8 << 20

// ErrBadTemplate：URL 模板既没有 {lat}/{lng} 占位，也不是两个 %v 动词
var ErrBadTemplate = errors.New("locator: url template needs {lat} and {lng} or two %v verbs")

// TransientFetchError：单次调用的网络错误或响应格式错误，可重试
type TransientFetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *TransientFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// Client：附近门店查询客户端
// 约束：可被多个区域并发调用；每次调用独立执行重试，不共享重试状态
type Client struct {
	URL     string
	HTTP    *http.Client
	Retry   RetryPolicy
	Limiter *MinuteLimiter
	Cache   Cache
}

// NewClient：使用 URL 模板与请求超时创建客户端，重试策略取默认值
func NewClient(urlTemplate string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		URL:   urlTemplate,
		HTTP:  &http.Client{Timeout: timeout, Transport: logger.Transport(nil)},
		Retry: DefaultRetryPolicy(),
	}
}

// BuildURL：将坐标填入模板
func BuildURL(tmpl string, c geo.Coordinate) (string, error) {
	lat := strconv.FormatFloat(c.Lat, 'f', -1, 64)
	lng := strconv.FormatFloat(c.Lng, 'f', -1, 64)
	if strings.Contains(tmpl, "{lat}") && strings.Contains(tmpl, "{lng}") {
		return strings.NewReplacer("{lat}", lat, "{lng}", lng).Replace(tmpl), nil
	}
	if strings.Count(tmpl, "%v") == 2 && !strings.Contains(strings.ReplaceAll(tmpl, "%v", ""), "%") {
		return fmt.Sprintf(tmpl, lat, lng), nil
	}
	return "", ErrBadTemplate
}

// FetchNearby：查询离坐标最近的门店
// 参数：ctx 控制取消与超时；c 为查询中心
// 返回：接口 Data 字段中的门店，顺序与接口一致
// 异常：重试用尽返回 ErrRetriesExhausted；模板错误返回 ErrBadTemplate，不重试
func (cl *Client) FetchNearby(ctx context.Context, c geo.Coordinate) ([]StoreRecord, error) {
	ctx, span := otel.Tracer("store-scrape/locator").Start(ctx, "locator.FetchNearby")
	defer span.End()
	span.SetAttributes(attribute.Float64("lat", c.Lat), attribute.Float64("lng", c.Lng))

	u, err := BuildURL(cl.URL, c)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if cl.Cache != nil {
		if raw, ok, err := cl.Cache.Get(ctx, c); err != nil {
			logger.L().Warn("locator_cache_get_error", "coord", c.String(), "err", err)
		} else if ok {
			var stores []StoreRecord
			if err := json.Unmarshal(raw, &stores); err == nil {
				metrics.CacheHitsTotal.Inc()
				span.SetAttributes(attribute.Bool("cache_hit", true), attribute.Int("stores", len(stores)))
				logger.L().Debug("locator_cache_hit", "coord", c.String(), "stores", len(stores))
				return stores, nil
			}
		}
		metrics.CacheMissesTotal.Inc()
	}

	type result struct {
		stores []StoreRecord
		raw    []byte
	}
	res, err := Do(ctx, cl.Retry, func(attempt int) (result, error) {
		if err := cl.Limiter.Wait(ctx); err != nil {
			return result{}, err
		}
		stores, raw, err := cl.fetchOnce(ctx, u, attempt)
		return result{stores, raw}, err
	})
	if err != nil {
		metrics.LocatorFailTotal.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	metrics.LocatorSuccessTotal.Inc()
	span.SetAttributes(attribute.Int("stores", len(res.stores)))
	if cl.Cache != nil {
		if err := cl.Cache.Set(ctx, c, res.raw); err != nil {
			logger.L().Warn("locator_cache_set_error", "coord", c.String(), "err", err)
		}
	}
	return res.stores, nil
}

func (cl *Client) fetchOnce(ctx context.Context, u string, attempt int) ([]StoreRecord, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/json")
	hc := cl.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	t0 := time.Now()
	metrics.LocatorRequestsTotal.Inc()
	logger.L().Debug("locator_req", "url", u, "attempt", attempt)
	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		logger.L().Error("locator_http_error", "url", u, "err", err)
		return nil, nil, &TransientFetchError{URL: u, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	metrics.LocatorDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
	if err != nil {
		return nil, nil, &TransientFetchError{URL: u, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &TransientFetchError{URL: u, Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}
	stores, raw, err := decodeNearby(body)
	if err != nil {
		logger.L().Error("locator_decode_error", "url", u, "err", err)
		return nil, nil, &TransientFetchError{URL: u, Status: resp.StatusCode, Err: err}
	}
	logger.L().Debug("locator_resp", "url", u, "stores", len(stores), "duration_ms", time.Since(t0).Milliseconds())
	return stores, raw, nil
}

// decodeNearby：解析 {"Data": [...]}；Data 缺失视为格式错误，null 视为空列表
func decodeNearby(body []byte) ([]StoreRecord, []byte, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, nil, err
	}
	raw, ok := env["Data"]
	if !ok {
		return nil, nil, errors.New(`response has no "Data" field`)
	}
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return []StoreRecord{}, []byte("[]"), nil
	}
	var stores []StoreRecord
	if err := json.Unmarshal(raw, &stores); err != nil {
		return nil, nil, fmt.Errorf("decode Data: %w", err)
	}
	return stores, raw, nil
}

// 包 config：从 .env 与环境变量读取运行配置
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"store-scrape/internal/locator"
	"store-scrape/internal/search"
)

// Config：抓取运行配置；命令行参数在此基础上覆盖
type Config struct {
	LocatorURL     string
	LocatorTimeout time.Duration
	Retry          locator.RetryPolicy
	RatePerMin     int

	SeedSource string // csv | db
	SeedFile   string

	OutputRoot string
	Sinks      []string

	Coverage   search.CoverageMode
	MaxQueries int
	Workers    int
	Regions    []string

	CacheEnable bool
	CacheTTL    time.Duration

	MetricsAddr    string
	TracingEnabled bool
}

// LoadEnvFiles：依次加载 .env 与 data/env/.env，已存在的环境变量不被覆盖
func LoadEnvFiles() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
}

// FromEnv：读取环境变量并填充默认值
// 约束：数值解析失败时回退默认值；仅 COVERAGE_MODE / SEED_SOURCE 的非法取值返回错误
func FromEnv() (Config, error) {
	c := Config{
		LocatorURL:     os.Getenv("LOCATOR_URL"),
		LocatorTimeout: time.Duration(envInt("LOCATOR_TIMEOUT_S", 10)) * time.Second,
		Retry: locator.RetryPolicy{
			MaxAttempts: envInt("FETCH_MAX_ATTEMPTS", 10),
			MinDelay:    time.Duration(envInt("FETCH_MIN_DELAY_MS", 1000)) * time.Millisecond,
			MaxDelay:    time.Duration(envInt("FETCH_MAX_DELAY_MS", 5000)) * time.Millisecond,
		},
		RatePerMin:     envInt("RATE_LIMIT_PER_MIN", 0),
		SeedSource:     strings.ToLower(envStr("SEED_SOURCE", "csv")),
		SeedFile:       envStr("SEED_FILE", "zip_codes.csv"),
		OutputRoot:     envStr("OUTPUT_ROOT", "scrapes"),
		Sinks:          SplitList(envStr("SINKS", "csv")),
		MaxQueries:     envInt("MAX_QUERIES", 0),
		Workers:        envInt("WORKERS", 1),
		Regions:        SplitList(os.Getenv("REGIONS")),
		CacheEnable:    envBool("CACHE_ENABLE"),
		CacheTTL:       time.Duration(envInt("CACHE_TTL_S", 86400)) * time.Second,
		MetricsAddr:    os.Getenv("METRICS_ADDR"),
		TracingEnabled: envBool("TRACING_ENABLED"),
	}
	mode, err := search.ParseCoverageMode(os.Getenv("COVERAGE_MODE"))
	if err != nil {
		return c, err
	}
	c.Coverage = mode
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate：检查取值组合
func (c Config) Validate() error {
	switch c.SeedSource {
	case "csv", "db":
	default:
		return fmt.Errorf("SEED_SOURCE must be csv or db, got %q", c.SeedSource)
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be >= 1, got %d", c.Workers)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("FETCH_MAX_ATTEMPTS must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.MaxDelay < c.Retry.MinDelay {
		return fmt.Errorf("FETCH_MAX_DELAY_MS must not be below FETCH_MIN_DELAY_MS")
	}
	return nil
}

// SplitList：逗号分隔列表，去空白与空项
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envStr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, e := strconv.Atoi(v); e == nil && n >= 0 {
			return n
		}
	}
	return def
}

func envBool(k string) bool {
	return strings.ToLower(os.Getenv(k)) == "true"
}

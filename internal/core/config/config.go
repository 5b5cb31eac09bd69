package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type Config struct {
	Addr        string
	LogLevel    string
	UpstreamURL string

	// CacheExpireTime is the staleness threshold for cached regions; the
	// reaper wakes at a quarter of it.
	CacheExpireTime time.Duration

	// PerfMonitoring gates the background reaper and stats recording,
	// mirroring the wider performance layer's flag.
	PerfMonitoring bool

	DefaultQueryRadiusM float64

	StoreBackend    string // memory | bounded | redis
	StoreMaxRegions int
	RedisAddr       string
	StoreOpTimeout  time.Duration

	IndexEnabled bool
	IndexRes     int

	PruneBothWays bool

	MetricsEnabled bool

	Invalidation InvalidationCfg
}

func FromEnv() Config {
	indexRes := getint("H3_INDEX_RES", 7)
	if indexRes < 0 {
		indexRes = 0
	}
	if indexRes > 15 {
		indexRes = 15
	}

	return Config{
		Addr:        getenv("ADDR", ":8090"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		UpstreamURL: getenv("UPSTREAM_URL", "http://localhost:8080/api/feed"),

		CacheExpireTime: getduration("CACHE_EXPIRE_TIME", time.Minute),
		PerfMonitoring:  getbool("PERF_MONITORING_ENABLED", true),

		DefaultQueryRadiusM: getfloat("DEFAULT_QUERY_RADIUS_M", 1000),

		StoreBackend:    strings.ToLower(getenv("STORE_BACKEND", "memory")),
		StoreMaxRegions: getint("STORE_MAX_REGIONS", 1024),
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		StoreOpTimeout:  getduration("STORE_OP_TIMEOUT", 250*time.Millisecond),

		IndexEnabled: getbool("H3_INDEX_ENABLED", false),
		IndexRes:     indexRes,

		PruneBothWays: getbool("PRUNE_BOTH_WAYS", false),

		MetricsEnabled: getbool("METRICS_ENABLED", true),

		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "region-invalidation"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "region-invalidator"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

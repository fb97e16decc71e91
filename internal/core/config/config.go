// Package config reads service settings from the environment.
package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

type PersistCfg struct {
	Driver    string // file|redis|buntdb|none
	Path      string
	RedisAddr string
	RedisKey  string
	OpTimeout time.Duration
}

type TilingCfg struct {
	MaxEntries     int
	MaxDepth       int
	HighCoverage   float64
	DefaultMaxArea float64
	DefaultMinArea float64
	DefaultCover   float64
	DefaultBBox    bool
}

type RenderCfg struct {
	ChunkSize       int
	Workers         int
	Timeout         time.Duration
	CacheSize       int
	ShutdownTimeout time.Duration
}

type StreamCfg struct {
	Delay        time.Duration
	Sink         string // none|kafka
	KafkaBrokers string
	KafkaTopic   string
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	LogSampleN int
	Persist    PersistCfg
	Tiling     TilingCfg
	Render     RenderCfg
	Stream     StreamCfg
	Metrics    MetricsCfg
}

func FromEnv() Config {
	workers := getint("RENDER_WORKERS", 0)
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	chunk := getint("RENDER_CHUNK_SIZE", 1000)
	if chunk <= 0 {
		chunk = 1000
	}
	depth := getint("TILING_MAX_DEPTH", 15)
	if depth < 0 {
		depth = 0
	}

	return Config{
		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),
		Persist: PersistCfg{
			Driver:    strings.ToLower(getenv("PERSIST_DRIVER", "file")),
			Path:      getenv("PERSIST_PATH", "data/rtree-data.json"),
			RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
			RedisKey:  getenv("REDIS_INDEX_KEY", "tiling:rtree"),
			OpTimeout: getduration("PERSIST_OP_TIMEOUT", 2*time.Second),
		},
		Tiling: TilingCfg{
			MaxEntries:     getint("RTREE_MAX_ENTRIES", 32),
			MaxDepth:       depth,
			HighCoverage:   getfloat("TILING_HIGH_COVERAGE", 0.95),
			DefaultMaxArea: getfloat("TILING_DEFAULT_MAX_AREA", 1000),
			DefaultMinArea: getfloat("TILING_DEFAULT_MIN_AREA", 10),
			DefaultCover:   getfloat("TILING_DEFAULT_COVERAGE", 0.10),
			DefaultBBox:    getbool("TILING_DEFAULT_INCLUDE_BBOX", true),
		},
		Render: RenderCfg{
			ChunkSize:       chunk,
			Workers:         workers,
			Timeout:         getduration("RENDER_TIMEOUT", 30*time.Second),
			CacheSize:       getint("RENDER_CACHE_SIZE", 128),
			ShutdownTimeout: getduration("RENDER_SHUTDOWN_TIMEOUT", 60*time.Second),
		},
		Stream: StreamCfg{
			Delay:        getduration("STREAM_DELAY", 100*time.Millisecond),
			Sink:         strings.ToLower(getenv("STREAM_SINK", "none")),
			KafkaBrokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			KafkaTopic:   getenv("KAFKA_CHUNK_TOPIC", "tiles-chunks"),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", true),
			Addr:    getenv("METRICS_ADDR", ""),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

// Brokers splits the comma separated broker list.
func (s StreamCfg) Brokers() []string {
	var out []string
	for b := range strings.SplitSeq(s.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
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

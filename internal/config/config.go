package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/AlexKimmel/admitgate/internal/ratelimit"
)

type Server struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
	IdleTimeoutMS  int    `yaml:"idle_timeout_ms"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

type Observability struct {
	LogLevel       string `yaml:"log_level"`       // "debug","info","warn","error"
	PrometheusPath string `yaml:"prometheus_path"` // e.g. "/metrics"
	Tracing        bool   `yaml:"tracing"`         // stdout span exporter
}

// Admission is the single process-wide quota.
type Admission struct {
	Limit                  int  `yaml:"limit"`
	WindowSeconds          int  `yaml:"window_seconds"`
	JanitorIntervalSeconds int  `yaml:"janitor_interval_seconds"` // 0 = one window
	TrustForwardedFor      bool `yaml:"trust_forwarded_for"`
}

type APIKey struct {
	ID       string            `yaml:"id"`
	Secret   string            `yaml:"secret"`
	Metadata map[string]string `yaml:"metadata"`
}

type Auth struct {
	Header   string   `yaml:"header"`
	Required bool     `yaml:"required"`
	Keys     []APIKey `yaml:"keys"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Stats struct {
	Backend    string `yaml:"backend"` // "none", "memory", "redis"
	Prefix     string `yaml:"prefix"`
	TTLSeconds int    `yaml:"ttl_seconds"`
	Redis      Redis  `yaml:"redis"`
}

type Routes struct {
	ID    string `yaml:"id"`
	Match struct {
		PathPrefix string   `yaml:"path_prefix"`
		Methods    []string `yaml:"methods"`
	} `yaml:"match"`

	Upstream struct {
		URL       string `yaml:"url"`
		TimeoutMS int    `yaml:"timeout_ms"`
	} `yaml:"upstream"`
}

type Root struct {
	Server        Server        `yaml:"server"`
	Observability Observability `yaml:"observability"`
	Admission     Admission     `yaml:"admission"`
	Auth          Auth          `yaml:"auth"`
	Stats         Stats         `yaml:"stats"`
	Routes        []Routes      `yaml:"routes"`
}

func (s Server) ReadTimeout() time.Duration {
	if s.ReadTimeoutMS == 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

func (s Server) WriteTimeout() time.Duration {
	if s.WriteTimeoutMS == 0 {
		return 10 * time.Second
	}
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

func (s Server) IdleTimeout() time.Duration {
	if s.IdleTimeoutMS == 0 {
		return 60 * time.Second
	}
	return time.Duration(s.IdleTimeoutMS) * time.Millisecond
}

func (s Server) MaxBody() int64 {
	if s.MaxBodyBytes == 0 {
		return 10 << 20
	}
	return s.MaxBodyBytes
} // default 10MB

func (a Admission) Window() time.Duration {
	return time.Duration(a.WindowSeconds) * time.Second
}

func (a Admission) JanitorInterval() time.Duration {
	if a.JanitorIntervalSeconds <= 0 {
		return a.Window()
	}
	return time.Duration(a.JanitorIntervalSeconds) * time.Second
}

// Policy validates the admission block.
func (a Admission) Policy() (ratelimit.Policy, error) {
	return ratelimit.NewPolicy(a.Limit, a.Window())
}

func (s Stats) TTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}

// Load reads the YAML file at path (a missing file is fine), then .env and
// ADMITGATE_* environment overrides, then fills defaults.
func Load(path string) (*Root, error) {
	// Seeded before decoding so an explicit zero survives to Validate.
	cfg := Root{
		Admission: Admission{Limit: 100, WindowSeconds: 3600},
	}

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	_ = godotenv.Load()
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Routes {
		if cfg.Routes[i].Upstream.TimeoutMS <= 0 {
			cfg.Routes[i].Upstream.TimeoutMS = 3000
		}
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.PrometheusPath == "" {
		cfg.Observability.PrometheusPath = "/metrics"
	}
	if cfg.Auth.Header == "" {
		cfg.Auth.Header = "X-API-Key"
	}
	if cfg.Stats.Backend == "" {
		cfg.Stats.Backend = "none"
	}
	if cfg.Stats.Prefix == "" {
		cfg.Stats.Prefix = "admitgate:stats"
	}
	if cfg.Stats.TTLSeconds == 0 {
		cfg.Stats.TTLSeconds = 86400
	}
	if cfg.Stats.Redis.Addr == "" {
		cfg.Stats.Redis.Addr = "localhost:6379"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configs the service must not start with.
func (c *Root) Validate() error {
	if _, err := c.Admission.Policy(); err != nil {
		return fmt.Errorf("admission: %w", err)
	}
	switch c.Stats.Backend {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("stats.backend: unsupported value %q", c.Stats.Backend)
	}
	for _, rt := range c.Routes {
		if rt.ID == "" || rt.Match.PathPrefix == "" || rt.Upstream.URL == "" {
			return fmt.Errorf("route %q: id, match.path_prefix and upstream.url are required", rt.ID)
		}
	}
	return nil
}

func applyEnv(cfg *Root) error {
	if v := getEnv("ADMITGATE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := getEnv("ADMITGATE_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := getEnv("ADMITGATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ADMITGATE_LIMIT: %w", err)
		}
		cfg.Admission.Limit = n
	}
	if v := getEnv("ADMITGATE_WINDOW_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ADMITGATE_WINDOW_SECONDS: %w", err)
		}
		cfg.Admission.WindowSeconds = n
	}
	if v := getEnv("ADMITGATE_STATS_BACKEND"); v != "" {
		cfg.Stats.Backend = strings.ToLower(v)
	}
	if v := getEnv("ADMITGATE_REDIS_ADDR"); v != "" {
		cfg.Stats.Redis.Addr = v
	}
	if v := os.Getenv("ADMITGATE_REDIS_PASSWORD"); v != "" {
		cfg.Stats.Redis.Password = v
	}
	return nil
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

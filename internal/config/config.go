// Package config loads the service configuration: a YAML file with
// defaults, overridden by environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Protocol  ProtocolConfig  `yaml:"protocol"`
	Relayer   RelayerConfig   `yaml:"relayer"`
	Stores    StoresConfig    `yaml:"stores"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	API       APIConfig       `yaml:"api"`
	Security  SecurityConfig  `yaml:"security"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Guard     GuardConfig     `yaml:"guard"`
	Quote     QuoteConfig     `yaml:"quote"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type AppConfig struct {
	Name            string        `yaml:"name"`
	UseMemory       bool          `yaml:"use_memory"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type ShareConfig struct {
	Kind   string `yaml:"kind"` // liquidity_stakers|treasury|mev_bounty
	Weight uint16 `yaml:"weight"`
}

type ProtocolConfig struct {
	ProgramID          string        `yaml:"program_id"`
	FeeBps             uint16        `yaml:"fee_bps"`
	FeeShares          []ShareConfig `yaml:"fee_shares"`
	MaxAmountIn        uint64        `yaml:"max_amount_in"`
	AuthorizedSettlers []string      `yaml:"authorized_settlers"`
}

// RelayerConfig restricts HTTP reveals to intents naming this relayer.
// Empty accepts any relayer.
type RelayerConfig struct {
	PublicKey string `yaml:"public_key"`
}

type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

type ClickHouseConfig struct {
	DSN            string `yaml:"dsn"`
	Database       string `yaml:"database"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Prefix       string        `yaml:"prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type StoresConfig struct {
	Postgres   PostgresConfig   `yaml:"postgres"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Redis      RedisConfig      `yaml:"redis"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	Name          string `yaml:"name"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type PubSubConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

type WSConfig struct {
	Enabled bool `yaml:"enabled"`
}

type APIConfig struct {
	HTTP HTTPConfig `yaml:"http"`
	WS   WSConfig   `yaml:"ws"`
}

type JWTConfig struct {
	Enabled       bool          `yaml:"enabled"`
	PublicKeyPath string        `yaml:"public_key_path"`
	Audience      string        `yaml:"audience"`
	Issuer        string        `yaml:"issuer"`
	Leeway        time.Duration `yaml:"leeway"`
}

type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
	// OpenOperatorRoutes mounts the fee and provisioning routes without a
	// token when JWT is disabled. Local in-memory runs only.
	OpenOperatorRoutes bool `yaml:"open_operator_routes"`
}

type RateLimitConfig struct {
	Enabled      bool `yaml:"enabled"`
	RefillPerSec int  `yaml:"refill_per_sec"`
	Burst        int  `yaml:"burst"`
}

type GuardConfig struct {
	RevealLockTTL time.Duration `yaml:"reveal_lock_ttl"`
}

type QuoteConfig struct {
	URL         string        `yaml:"url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	SlippageBps uint16        `yaml:"slippage_bps"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a configuration that runs entirely in memory.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:            "intent-settlement",
			UseMemory:       true,
			ShutdownTimeout: 30 * time.Second,
		},
		Protocol: ProtocolConfig{
			FeeBps: 30,
		},
		Stores: StoresConfig{
			Redis: RedisConfig{
				Prefix:       "settlement",
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
			},
		},
		PubSub: PubSubConfig{NATS: NATSConfig{SubjectPrefix: "settlement"}},
		API: APIConfig{
			HTTP: HTTPConfig{
				Addr:         ":8080",
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
				IdleTimeout:  60 * time.Second,
			},
			WS: WSConfig{Enabled: true},
		},
		Security:  SecurityConfig{JWT: JWTConfig{Leeway: time.Minute}},
		RateLimit: RateLimitConfig{RefillPerSec: 10, Burst: 20},
		Guard:     GuardConfig{RevealLockTTL: 30 * time.Second},
		Quote:     QuoteConfig{Timeout: 5 * time.Second, MaxRetries: 3},
		Metrics:   MetricsConfig{Addr: ":9090"},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	str("PROGRAM_ID", &c.Protocol.ProgramID)
	str("RELAYER_PUBLIC_KEY", &c.Relayer.PublicKey)
	str("POSTGRES_DSN", &c.Stores.Postgres.DSN)
	str("CLICKHOUSE_DSN", &c.Stores.ClickHouse.DSN)
	str("REDIS_ADDR", &c.Stores.Redis.Addr)
	str("REDIS_PASSWORD", &c.Stores.Redis.Password)
	str("NATS_URL", &c.PubSub.NATS.URL)
	str("HTTP_ADDR", &c.API.HTTP.Addr)
	str("JWT_PUBLIC_KEY_PATH", &c.Security.JWT.PublicKeyPath)
	str("QUOTE_URL", &c.Quote.URL)
	str("METRICS_ADDR", &c.Metrics.Addr)

	if v := getenv("FEE_BPS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("FEE_BPS: %w", err)
		}
		c.Protocol.FeeBps = uint16(n)
	}
	if v := getenv("AUTHORIZED_SETTLERS"); v != "" {
		c.Protocol.AuthorizedSettlers = splitList(v)
	}
	if c.Stores.Postgres.DSN != "" {
		c.App.UseMemory = false
	}
	if c.Security.JWT.PublicKeyPath != "" {
		c.Security.JWT.Enabled = true
	}
	if v := getenv("OPEN_OPERATOR_ROUTES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("OPEN_OPERATOR_ROUTES: %w", err)
		}
		c.Security.OpenOperatorRoutes = b
	}
	return nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	if !c.App.UseMemory && c.Stores.Postgres.DSN == "" {
		errs = append(errs, errors.New("stores.postgres.dsn is required unless app.use_memory is set"))
	}
	if c.Security.JWT.Enabled && c.Security.JWT.PublicKeyPath == "" {
		errs = append(errs, errors.New("security.jwt.public_key_path is required when jwt is enabled"))
	}
	if c.Security.OpenOperatorRoutes && !c.App.UseMemory {
		errs = append(errs, errors.New("security.open_operator_routes is only allowed with app.use_memory"))
	}
	if c.RateLimit.Enabled {
		if c.Stores.Redis.Addr == "" {
			errs = append(errs, errors.New("rate_limit requires stores.redis.addr"))
		}
		if c.RateLimit.RefillPerSec <= 0 || c.RateLimit.Burst <= 0 {
			errs = append(errs, errors.New("rate_limit.refill_per_sec and burst must be positive"))
		}
	}
	if c.API.HTTP.Addr == "" {
		errs = append(errs, errors.New("api.http.addr is required"))
	}
	return errors.Join(errs...)
}

// LoadEnvFile sets variables from a KEY=VALUE file without overriding
// variables already present. A missing file is not an error.
func LoadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

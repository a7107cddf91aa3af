package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/service"
	"github.com/aussiebroadwan/lpr/pkg/jwtx"
)

const (
	DefaultConfigFile = "lprd.yaml"
	DefaultListenAddr = ":8080"

	// EnvPrefix is prepended to every environment override, e.g.
	// LPR_REDIS_URL for redis.url.
	EnvPrefix = "LPR"
)

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"` // memory | redis
}

type RedisConfig struct {
	URL         string `mapstructure:"url"`
	PoolSize    int    `mapstructure:"poolSize"`
	ClusterMode bool   `mapstructure:"clusterMode"`
	Prefix      string `mapstructure:"prefix"`
}

type AuditConfig struct {
	Driver string `mapstructure:"driver"` // memory | redis | sqlite
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type KeysConfig struct {
	Source      string        `mapstructure:"source"` // file | sqlite
	Dir         string        `mapstructure:"dir"`
	Algorithm   string        `mapstructure:"algorithm"`
	GracePeriod time.Duration `mapstructure:"gracePeriod"`
	// VerifyOnly lets a node start with public keys only.
	VerifyOnly bool `mapstructure:"verifyOnly"`
}

type SecretsConfig struct {
	MasterKeyFile    string `mapstructure:"masterKeyFile"`
	PseudonymKeyFile string `mapstructure:"pseudonymKeyFile"`
}

type PolicyConfig struct {
	MinTTL               time.Duration `mapstructure:"minTTL"`
	MaxTTL               time.Duration `mapstructure:"maxTTL"`
	DefaultTTL           time.Duration `mapstructure:"defaultTTL"`
	DefaultRatePerSecond float64       `mapstructure:"defaultRatePerSecond"`
	DefaultBurst         int           `mapstructure:"defaultBurst"`
}

type TimeoutsConfig struct {
	Store time.Duration `mapstructure:"store"`
}

type JitterConfig struct {
	Min time.Duration `mapstructure:"min"`
	Max time.Duration `mapstructure:"max"`
}

type HousekeepingConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type APIConfig struct {
	// Token is the bearer token collaborators present. Caller names the
	// collaborator in logs and revocation records.
	Token  string `mapstructure:"token"`
	Caller string `mapstructure:"caller"`
}

type Config struct {
	ListenAddr          string             `mapstructure:"listenAddr"`
	Env                 string             `mapstructure:"env"`
	Log                 LogConfig          `mapstructure:"log"`
	Store               StoreConfig        `mapstructure:"store"`
	Redis               RedisConfig        `mapstructure:"redis"`
	Audit               AuditConfig        `mapstructure:"audit"`
	SQLite              SQLiteConfig       `mapstructure:"sqlite"`
	Keys                KeysConfig         `mapstructure:"keys"`
	Secrets             SecretsConfig      `mapstructure:"secrets"`
	Policy              PolicyConfig       `mapstructure:"policy"`
	Timeouts            TimeoutsConfig     `mapstructure:"timeouts"`
	Jitter              JitterConfig       `mapstructure:"jitter"`
	Housekeeping        HousekeepingConfig `mapstructure:"housekeeping"`
	API                 APIConfig          `mapstructure:"api"`
	ShutdownGracePeriod time.Duration      `mapstructure:"shutdownGracePeriod"`
}

// setDefaults registers every key so environment overrides apply even when
// the config file omits it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("listenAddr", DefaultListenAddr)
	v.SetDefault("env", "dev")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.poolSize", 0)
	v.SetDefault("redis.clusterMode", false)
	v.SetDefault("redis.prefix", "")
	v.SetDefault("audit.driver", "memory")
	v.SetDefault("sqlite.path", "lpr.db")
	v.SetDefault("keys.source", "file")
	v.SetDefault("keys.dir", "keys")
	v.SetDefault("keys.algorithm", jwtx.AlgorithmES256)
	v.SetDefault("keys.gracePeriod", service.DefaultKeyGracePeriod)
	v.SetDefault("keys.verifyOnly", false)
	v.SetDefault("secrets.masterKeyFile", "")
	v.SetDefault("secrets.pseudonymKeyFile", "")
	v.SetDefault("policy.minTTL", domain.DefaultTTLBounds.Min)
	v.SetDefault("policy.maxTTL", domain.DefaultTTLBounds.Max)
	v.SetDefault("policy.defaultTTL", domain.DefaultTTLBounds.Default)
	v.SetDefault("policy.defaultRatePerSecond", domain.DefaultPolicy().RatePerSecond)
	v.SetDefault("policy.defaultBurst", domain.DefaultPolicy().Burst)
	v.SetDefault("timeouts.store", service.DefaultStoreTimeout)
	v.SetDefault("jitter.min", service.DefaultJitterMin)
	v.SetDefault("jitter.max", service.DefaultJitterMax)
	v.SetDefault("housekeeping.interval", time.Minute)
	v.SetDefault("api.token", "")
	v.SetDefault("api.caller", "collaborator")
	v.SetDefault("shutdownGracePeriod", 10*time.Second)
}

// Sanitize fills zero values and rejects configurations the engine cannot
// run safely with.
func (c *Config) Sanitize() error {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.ShutdownGracePeriod <= 0 {
		c.ShutdownGracePeriod = 10 * time.Second
	}
	if c.Keys.GracePeriod <= 0 {
		c.Keys.GracePeriod = service.DefaultKeyGracePeriod
	}
	if c.Keys.Algorithm == "" {
		c.Keys.Algorithm = jwtx.AlgorithmES256
	}

	switch c.Store.Driver {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("config: redis.url is required for store.driver=redis")
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}

	switch c.Audit.Driver {
	case "memory", "sqlite":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("config: redis.url is required for audit.driver=redis")
		}
	default:
		return fmt.Errorf("config: unknown audit.driver %q", c.Audit.Driver)
	}

	switch c.Keys.Source {
	case "file":
		if c.Keys.Dir == "" {
			return errors.New("config: keys.dir is required for keys.source=file")
		}
	case "sqlite":
		if c.Secrets.MasterKeyFile == "" {
			return errors.New("config: secrets.masterKeyFile is required for keys.source=sqlite")
		}
	default:
		return fmt.Errorf("config: unknown keys.source %q", c.Keys.Source)
	}
	if (c.Keys.Source == "sqlite" || c.Audit.Driver == "sqlite") && c.SQLite.Path == "" {
		return errors.New("config: sqlite.path is required")
	}

	switch c.Keys.Algorithm {
	case jwtx.AlgorithmES256, jwtx.AlgorithmEdDSA:
	default:
		return fmt.Errorf("config: unsupported keys.algorithm %q", c.Keys.Algorithm)
	}

	if err := c.TTLBounds().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	// A retired key must verify every receipt it signed.
	if c.Keys.GracePeriod < c.Policy.MaxTTL {
		return fmt.Errorf("config: keys.gracePeriod %s is shorter than policy.maxTTL %s", c.Keys.GracePeriod, c.Policy.MaxTTL)
	}
	if err := c.DefaultPolicy().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Jitter.Max < c.Jitter.Min {
		return fmt.Errorf("config: jitter.max %s is below jitter.min %s", c.Jitter.Max, c.Jitter.Min)
	}
	return nil
}

// TTLBounds returns the configured issuance lifetime limits.
func (c *Config) TTLBounds() domain.TTLBounds {
	return domain.TTLBounds{Min: c.Policy.MinTTL, Max: c.Policy.MaxTTL, Default: c.Policy.DefaultTTL}
}

// DefaultPolicy returns the policy applied to requests that carry none.
func (c *Config) DefaultPolicy() domain.Policy {
	p := domain.DefaultPolicy()
	p.RatePerSecond = c.Policy.DefaultRatePerSecond
	p.Burst = c.Policy.DefaultBurst
	return p
}

// LoadConfig reads filename, overlays LPR_* environment variables and
// sanitizes the result. A missing DefaultConfigFile is not an error; an
// empty filename skips the file.
func LoadConfig(filename string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filename != "" {
		v.SetConfigFile(filename)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !(filename == DefaultConfigFile && errors.Is(err, fs.ErrNotExist)) {
				return nil, fmt.Errorf("config: read %s: %w", filename, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Sanitize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

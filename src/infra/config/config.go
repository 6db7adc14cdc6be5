// Package config loads service configuration from an optional YAML file,
// a .env file and ARENA_* environment variables, in rising precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "ARENA"

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	HTTP      HTTPConfig               `mapstructure:"http" yaml:"http"`
	Auth      AuthConfig               `mapstructure:"auth" yaml:"auth"`
	Log       LogConfig                `mapstructure:"log" yaml:"log"`
	Engine    EngineConfig             `mapstructure:"engine" yaml:"engine"`
	Scheduler SchedulerConfig          `mapstructure:"scheduler" yaml:"scheduler"`
	Storage   StorageConfig            `mapstructure:"storage" yaml:"storage"`
	Evidence  EvidenceConfig           `mapstructure:"evidence" yaml:"evidence"`
	Notify    NotifyConfig             `mapstructure:"notify" yaml:"notify"`
	Balances  map[string]int64         `mapstructure:"balances" yaml:"balances,omitempty"`
	Profiles  map[string]ProfileConfig `mapstructure:"profiles" yaml:"profiles,omitempty"`
}

type HTTPConfig struct {
	Address         string        `mapstructure:"address" yaml:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// AuthConfig verifies HS256 bearer tokens. Tokens carrying AdminRole in
// their "role" claim may call operator endpoints.
type AuthConfig struct {
	Secret    string `mapstructure:"secret" yaml:"secret"`
	Issuer    string `mapstructure:"issuer" yaml:"issuer"`
	AdminRole string `mapstructure:"admin_role" yaml:"admin_role"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
	File        string `mapstructure:"file" yaml:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

type EngineConfig struct {
	Shards              int                      `mapstructure:"shards" yaml:"shards"`
	MatchmakingTimeout  time.Duration            `mapstructure:"matchmaking_timeout" yaml:"matchmaking_timeout"`
	ReadyGrace          time.Duration            `mapstructure:"ready_grace" yaml:"ready_grace"`
	VerificationWindow  time.Duration            `mapstructure:"verification_window" yaml:"verification_window"`
	DefaultPlayDuration time.Duration            `mapstructure:"default_play_duration" yaml:"default_play_duration"`
	PlayDurations       map[string]time.Duration `mapstructure:"play_durations" yaml:"play_durations"`
	RatingWindow        int                      `mapstructure:"rating_window" yaml:"rating_window"`
	SweepBatch          int                      `mapstructure:"sweep_batch" yaml:"sweep_batch"`
}

type SchedulerConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

type StorageConfig struct {
	Driver      string `mapstructure:"driver" yaml:"driver"`
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url"`
	MaxConns    int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// EvidenceConfig enables the object-storage evidence check when Bucket is set.
type EvidenceConfig struct {
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Region    string `mapstructure:"region" yaml:"region"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
}

type NotifyConfig struct {
	QueueSize         int           `mapstructure:"queue_size" yaml:"queue_size"`
	BatchSize         int           `mapstructure:"batch_size" yaml:"batch_size"`
	FlushInterval     time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`
	WebhookURL        string        `mapstructure:"webhook_url" yaml:"webhook_url"`
	WebhookSecret     string        `mapstructure:"webhook_secret" yaml:"webhook_secret"`
	DiscordWebhookURL string        `mapstructure:"discord_webhook_url" yaml:"discord_webhook_url"`
	DiscordUsername   string        `mapstructure:"discord_username" yaml:"discord_username"`
}

// ProfileConfig seeds a player profile at boot, keyed by user id. Keys are
// read in lower case.
type ProfileConfig struct {
	DisplayName string `mapstructure:"display_name" yaml:"display_name,omitempty"`
	Rating      int    `mapstructure:"rating" yaml:"rating"`
	Ammo        string `mapstructure:"ammo" yaml:"ammo,omitempty"`
	Suspended   bool   `mapstructure:"suspended" yaml:"suspended,omitempty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.address", ":8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.allowed_origins", []string{})

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.admin_role", "admin")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("engine.shards", 8)
	v.SetDefault("engine.matchmaking_timeout", 2*time.Minute)
	v.SetDefault("engine.ready_grace", 30*time.Second)
	v.SetDefault("engine.verification_window", 10*time.Minute)
	v.SetDefault("engine.default_play_duration", 12*time.Minute)
	v.SetDefault("engine.play_durations", map[string]time.Duration{"codm": 10 * time.Minute})
	v.SetDefault("engine.rating_window", 0)
	v.SetDefault("engine.sweep_batch", 500)

	v.SetDefault("scheduler.interval", 5*time.Second)

	v.SetDefault("storage.driver", StorageMemory)
	v.SetDefault("storage.database_url", "")
	v.SetDefault("storage.max_conns", 10)

	v.SetDefault("evidence.bucket", "")
	v.SetDefault("evidence.region", "")
	v.SetDefault("evidence.endpoint", "")
	v.SetDefault("evidence.access_key", "")
	v.SetDefault("evidence.secret_key", "")

	v.SetDefault("notify.queue_size", 1024)
	v.SetDefault("notify.batch_size", 50)
	v.SetDefault("notify.flush_interval", 2*time.Second)
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.webhook_secret", "")
	v.SetDefault("notify.discord_webhook_url", "")
	v.SetDefault("notify.discord_username", "Arena")
}

// Load reads path when given, otherwise an arena.yaml in . or ./config if
// one exists. A .env file in the working directory is loaded first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("arena")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.Secret) == "" {
		errs = append(errs, errors.New("auth.secret is required"))
	}
	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("storage.database_url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not memory or postgres", c.Storage.Driver))
	}
	if c.Engine.Shards <= 0 {
		errs = append(errs, errors.New("engine.shards must be positive"))
	}
	if c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("scheduler.interval must be positive"))
	}
	for game, d := range c.Engine.PlayDurations {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("engine.play_durations.%s must be positive", game))
		}
	}
	for user, p := range c.Profiles {
		if strings.TrimSpace(user) == "" {
			errs = append(errs, errors.New("profiles: user id must not be blank"))
		}
		if p.Rating < 0 {
			errs = append(errs, fmt.Errorf("profiles.%s.rating must not be negative", user))
		}
	}
	return errors.Join(errs...)
}

const redacted = "<redacted>"

// YAML renders the effective configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	out := *c
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&out.Auth.Secret)
	mask(&out.Storage.DatabaseURL)
	mask(&out.Evidence.SecretKey)
	mask(&out.Notify.WebhookSecret)
	mask(&out.Notify.DiscordWebhookURL)
	return yaml.Marshal(&out)
}

package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Breaker   BreakerConfig   `mapstructure:"circuit_breaker"`
	Webhooks  WebhooksConfig  `mapstructure:"webhooks"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// Enabled=false falls back to the in-process counter store; limits
	// are then per-instance, not cluster-wide.
	Enabled bool `mapstructure:"enabled"`
}

type JWTConfig struct {
	Secret          string        `mapstructure:"secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// EndpointPolicy overrides the plan default for a path. Path is matched
// exactly first, then by longest prefix.
type EndpointPolicy struct {
	Path           string        `mapstructure:"path"`
	Requests       int           `mapstructure:"requests"`
	Window         time.Duration `mapstructure:"window"`
	SkipForPlans   []string      `mapstructure:"skip_for_plans"`
	BypassForAdmin bool          `mapstructure:"bypass_for_admin"`
	UseIPFallback  bool          `mapstructure:"use_ip_fallback"`
	AuthEndpoint   bool          `mapstructure:"auth_endpoint"`
}

type PlanLimit struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type RateLimitConfig struct {
	PlanDefaults        map[string]PlanLimit `mapstructure:"plan_defaults"`
	Endpoints           []EndpointPolicy     `mapstructure:"endpoints"`
	BypassPaths         []string             `mapstructure:"bypass_paths"`
	BruteForceThreshold int                  `mapstructure:"brute_force_threshold"`
	BruteForceWindow    time.Duration        `mapstructure:"brute_force_window"`
	SweepInterval       time.Duration        `mapstructure:"sweep_interval"`
}

type BreakerConfig struct {
	Threshold       int           `mapstructure:"threshold"`
	RecoveryTimeout time.Duration `mapstructure:"recovery_timeout"`
}

type WebhooksConfig struct {
	DeliveryTimeout  time.Duration `mapstructure:"delivery_timeout"`
	DisableThreshold int           `mapstructure:"disable_threshold"`
	MaxConcurrent    int           `mapstructure:"max_concurrent"`
	RetryLookbackHrs int           `mapstructure:"retry_lookback_hours"`
	RetryInterval    time.Duration `mapstructure:"retry_interval"`
}

type BillingConfig struct {
	// Shared secret for verifying inbound payment provider webhooks.
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

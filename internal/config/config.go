package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/ehr-chainview/internal/contract"
	"github.com/jwalitptl/ehr-chainview/pkg/messaging/redis"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Contracts ContractsConfig `mapstructure:"contracts"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Security  SecurityConfig  `mapstructure:"security"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// RequestTimeout bounds handlers that wait on the chain.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

type ChainConfig struct {
	// RPCURL may be http(s) or ws(s). Websocket endpoints get head
	// subscriptions; http ones are polled.
	RPCURL          string        `mapstructure:"rpc_url"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	ReceiptTimeout  time.Duration `mapstructure:"receipt_timeout"`
	MaxBlockSpan    uint64        `mapstructure:"max_block_span"`
	FetchWorkers    int           `mapstructure:"fetch_workers"`
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

type ContractsConfig struct {
	HospitalManagement             string `mapstructure:"hospital_management"`
	DoctorManagement               string `mapstructure:"doctor_management"`
	PatientManagement              string `mapstructure:"patient_management"`
	EMRSystem                      string `mapstructure:"emr_system"`
	ResearchOrganizationManagement string `mapstructure:"research_organization_management"`
	// DeployBlock is the first block event queries scan from.
	DeployBlock uint64 `mapstructure:"deploy_block"`
}

type RefreshConfig struct {
	ViewTimeout     time.Duration `mapstructure:"view_timeout"`
	IdleUnmount     time.Duration `mapstructure:"idle_unmount"`
	LiveWorkers     int           `mapstructure:"live_workers"`
	LiveCacheTTL    time.Duration `mapstructure:"live_cache_ttl"`
	AuditLimit      int           `mapstructure:"audit_limit"`
	PublishSnapshot bool          `mapstructure:"publish_snapshots"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
	Issuer      string `mapstructure:"issuer"`
}

type AuthConfig struct {
	// AdminWallets may sign in to the admin dashboard.
	AdminWallets []string      `mapstructure:"admin_wallets"`
	NonceTTL     time.Duration `mapstructure:"nonce_ttl"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	Retention     time.Duration `mapstructure:"retention"`
	CleanupEvery  time.Duration `mapstructure:"cleanup_interval"`
}

// envOverrides are read with the EHR_ prefix, e.g. EHR_RPC_URL. Empty
// values leave the file setting alone.
type envOverrides struct {
	Port         int      `envconfig:"PORT"`
	LogLevel     string   `envconfig:"LOG_LEVEL"`
	RPCURL       string   `envconfig:"RPC_URL"`
	DBHost       string   `envconfig:"DB_HOST"`
	DBPort       int      `envconfig:"DB_PORT"`
	DBUser       string   `envconfig:"DB_USER"`
	DBPassword   string   `envconfig:"DB_PASSWORD"`
	DBName       string   `envconfig:"DB_NAME"`
	RedisURL     string   `envconfig:"REDIS_URL"`
	JWTSecret    string   `envconfig:"JWT_SECRET"`
	AdminWallets []string `envconfig:"ADMIN_WALLETS"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "3m")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", false)
	v.SetDefault("chain.rpc_url", "http://127.0.0.1:8545")
	v.SetDefault("chain.poll_interval", "4s")
	v.SetDefault("chain.call_timeout", "10s")
	v.SetDefault("chain.receipt_timeout", "2m")
	v.SetDefault("chain.fetch_workers", 4)
	v.SetDefault("chain.breaker_failures", 3)
	v.SetDefault("chain.breaker_timeout", "10s")
	v.SetDefault("refresh.view_timeout", "30s")
	v.SetDefault("refresh.idle_unmount", "5m")
	v.SetDefault("refresh.live_workers", 8)
	v.SetDefault("refresh.live_cache_ttl", "2m")
	v.SetDefault("refresh.audit_limit", 200)
	v.SetDefault("refresh.publish_snapshots", true)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("jwt.expiry_hours", 12)
	v.SetDefault("jwt.issuer", "ehr-chainview")
	v.SetDefault("auth.nonce_ttl", "5m")
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("security.allowed_origins", []string{"*"})
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", "5s")
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", "30s")
	v.SetDefault("outbox.retention", "168h")
	v.SetDefault("outbox.cleanup_interval", "1h")
}

// LoadConfig reads config.yml from path, or from the usual search paths
// when path is empty, then applies EHR_ environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("ehr", &env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	cfg.applyEnv(env)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(env envOverrides) {
	if env.Port != 0 {
		c.Server.Port = env.Port
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
	if env.RPCURL != "" {
		c.Chain.RPCURL = env.RPCURL
	}
	if env.DBHost != "" {
		c.Database.Host = env.DBHost
	}
	if env.DBPort != 0 {
		c.Database.Port = env.DBPort
	}
	if env.DBUser != "" {
		c.Database.User = env.DBUser
	}
	if env.DBPassword != "" {
		c.Database.Password = env.DBPassword
	}
	if env.DBName != "" {
		c.Database.Name = env.DBName
	}
	if env.RedisURL != "" {
		c.Redis.URL = env.RedisURL
	}
	if env.JWTSecret != "" {
		c.JWT.Secret = env.JWTSecret
	}
	if len(env.AdminWallets) > 0 {
		c.Auth.AdminWallets = env.AdminWallets
	}
}

func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return errors.New("chain.rpc_url is required")
	}
	if len(c.JWT.Secret) < 16 {
		return errors.New("jwt.secret must be at least 16 characters")
	}
	for name, addr := range c.Contracts.addresses() {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("contracts.%s: %q is not an address", name, addr)
		}
	}
	for _, w := range c.Auth.AdminWallets {
		if !common.IsHexAddress(w) {
			return fmt.Errorf("auth.admin_wallets: %q is not an address", w)
		}
	}
	return nil
}

func (c ContractsConfig) addresses() map[string]string {
	return map[string]string{
		"hospital_management":              c.HospitalManagement,
		"doctor_management":                c.DoctorManagement,
		"patient_management":               c.PatientManagement,
		"emr_system":                       c.EMRSystem,
		"research_organization_management": c.ResearchOrganizationManagement,
	}
}

// Deployment converts the configured addresses.
func (c ContractsConfig) Deployment() contract.Deployment {
	return contract.Deployment{
		HospitalManagement:             common.HexToAddress(c.HospitalManagement),
		DoctorManagement:               common.HexToAddress(c.DoctorManagement),
		PatientManagement:              common.HexToAddress(c.PatientManagement),
		EMRSystem:                      common.HexToAddress(c.EMRSystem),
		ResearchOrganizationManagement: common.HexToAddress(c.ResearchOrganizationManagement),
	}
}

// AdminAddresses returns the admin wallets as addresses.
func (c AuthConfig) AdminAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.AdminWallets))
	for _, w := range c.AdminWallets {
		out = append(out, common.HexToAddress(strings.TrimSpace(w)))
	}
	return out
}

// Subscribes reports whether the RPC endpoint supports head subscriptions.
func (c ChainConfig) Subscribes() bool {
	return strings.HasPrefix(c.RPCURL, "ws://") || strings.HasPrefix(c.RPCURL, "wss://")
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Razorpay    RazorpayConfig
	Ledger      LedgerConfig
	Idempotency IdempotencyConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ApplySchema     bool
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type JWTConfig struct {
	SecretKey string
}

type RazorpayConfig struct {
	WebhookSecret string
}

type LedgerConfig struct {
	Currency string
}

type IdempotencyConfig struct {
	TTL           time.Duration
	PurgeInterval time.Duration
	// ClaimLease is how long an unsettled webhook claim blocks redeliveries.
	ClaimLease time.Duration
}

var envKeys = map[string]string{
	"server.port":                "PORT",
	"server.allowed_origins":     "SERVER_ALLOWED_ORIGINS",
	"database.host":              "DATABASE_HOST",
	"database.port":              "DATABASE_PORT",
	"database.user":              "DATABASE_USER",
	"database.password":          "DATABASE_PASSWORD",
	"database.name":              "DATABASE_NAME",
	"database.ssl_mode":          "DATABASE_SSL_MODE",
	"database.apply_schema":      "DATABASE_APPLY_SCHEMA",
	"redis.host":                 "REDIS_HOST",
	"redis.port":                 "REDIS_PORT",
	"redis.password":             "REDIS_PASSWORD",
	"redis.db":                   "REDIS_DB",
	"jwt.secret_key":             "JWT_SECRET_KEY",
	"razorpay.webhook_secret":    "RAZORPAY_WEBHOOK_SECRET",
	"ledger.currency":            "LEDGER_CURRENCY",
	"idempotency.ttl":            "IDEMPOTENCY_TTL",
	"idempotency.purge_interval": "IDEMPOTENCY_PURGE_INTERVAL",
	"idempotency.claim_lease":    "IDEMPOTENCY_CLAIM_LEASE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "walletpay")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.apply_schema", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("ledger.currency", "INR")
	v.SetDefault("idempotency.ttl", 7*24*time.Hour)
	v.SetDefault("idempotency.purge_interval", time.Hour)
	v.SetDefault("idempotency.claim_lease", 2*time.Minute)
}

// Load reads configuration from the environment and, when present, the
// .env file at path. Environment variables win over the file.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			log.Printf("Config file not found, using defaults: %v", err)
		}
		// .env keys arrive under their variable names; lift them onto the
		// dotted keys underneath the environment.
		for key, env := range envKeys {
			if fileKey := strings.ToLower(env); v.InConfig(fileKey) {
				v.SetDefault(key, v.Get(fileKey))
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			RequestTimeout:  v.GetDuration("server.request_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			AllowedOrigins:  splitList(v.GetString("server.allowed_origins")),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetString("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.ssl_mode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			ApplySchema:     v.GetBool("database.apply_schema"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetString("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT:      JWTConfig{SecretKey: v.GetString("jwt.secret_key")},
		Razorpay: RazorpayConfig{WebhookSecret: v.GetString("razorpay.webhook_secret")},
		Ledger:   LedgerConfig{Currency: strings.ToUpper(v.GetString("ledger.currency"))},
		Idempotency: IdempotencyConfig{
			TTL:           v.GetDuration("idempotency.ttl"),
			PurgeInterval: v.GetDuration("idempotency.purge_interval"),
			ClaimLease:    v.GetDuration("idempotency.claim_lease"),
		},
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWT.SecretKey == "" {
		errs = append(errs, errors.New("jwt.secret_key is required"))
	}
	if len(c.Ledger.Currency) != 3 {
		errs = append(errs, errors.New("ledger.currency must be a 3 letter ISO code"))
	}
	if c.Idempotency.TTL <= 0 {
		errs = append(errs, errors.New("idempotency.ttl must be positive"))
	}
	if c.Idempotency.ClaimLease <= c.Server.RequestTimeout {
		errs = append(errs, errors.New("idempotency.claim_lease must be longer than server.request_timeout"))
	}
	if c.Razorpay.WebhookSecret == "" {
		log.Printf("Warning: razorpay.webhook_secret is empty, webhook signatures will not be verified")
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

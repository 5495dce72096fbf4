// Package config loads service configuration from a YAML file and the
// environment using Viper. Environment variables use the ACCOUNTS_ prefix
// with dots replaced by underscores, e.g. ACCOUNTS_AUTH_USER_POOL_ID.
package config

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/spf13/viper"
)

const EnvPrefix = "ACCOUNTS"

const (
	ProviderCognito = "cognito"
	ProviderAuth0   = "auth0"

	LockMemory = "memory"
	LockRedis  = "redis"
)

type Config struct {
	Server   Server   `mapstructure:"server"`
	Auth     Auth     `mapstructure:"auth"`
	Provider Provider `mapstructure:"provider"`
	Database Database `mapstructure:"database"`
	Lock     Lock     `mapstructure:"lock"`
	Sync     Sync     `mapstructure:"sync"`
	Log      Log      `mapstructure:"log"`
}

type Server struct {
	Addr          string        `mapstructure:"addr"`
	Path          string        `mapstructure:"path"`
	AllowedOrigin string        `mapstructure:"allowed_origin"`
	MetricsPath   string        `mapstructure:"metrics_path"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// Auth configures token validation. Issuer and JWKSURL override the values
// derived from the provider settings.
type Auth struct {
	Region            string        `mapstructure:"region"`
	UserPoolID        string        `mapstructure:"user_pool_id"`
	Issuer            string        `mapstructure:"issuer"`
	JWKSURL           string        `mapstructure:"jwks_url"`
	AdminGroup        string        `mapstructure:"admin_group"`
	DeveloperGroup    string        `mapstructure:"developer_group"`
	JWKSCacheTTL      time.Duration `mapstructure:"jwks_cache_ttl"`
	RequireAdminToken bool          `mapstructure:"require_admin_token"`
}

type Provider struct {
	Kind  string `mapstructure:"kind"`
	Auth0 Auth0  `mapstructure:"auth0"`
}

type Auth0 struct {
	Domain       string `mapstructure:"domain"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

type Database struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type Lock struct {
	Kind          string        `mapstructure:"kind"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type Sync struct {
	PageSize    int `mapstructure:"page_size"`
	Concurrency int `mapstructure:"concurrency"`
}

type Log struct {
	Env   string `mapstructure:"env"`
	Level string `mapstructure:"level"`
	// ActivityStream writes normalized activity events to stdout as JSON lines.
	ActivityStream bool `mapstructure:"activity_stream"`
}

var defaults = map[string]any{
	"server.addr":                  ":8080",
	"server.path":                  "/admin/users",
	"server.allowed_origin":        "*",
	"server.metrics_path":          "/metrics",
	"server.shutdown_grace":        10 * time.Second,
	"auth.region":                  "",
	"auth.user_pool_id":            "",
	"auth.issuer":                  "",
	"auth.jwks_url":                "",
	"auth.admin_group":             "admin",
	"auth.developer_group":         "developer",
	"auth.jwks_cache_ttl":          10 * time.Minute,
	"auth.require_admin_token":     true,
	"provider.kind":                ProviderCognito,
	"provider.auth0.domain":        "",
	"provider.auth0.client_id":     "",
	"provider.auth0.client_secret": "",
	"database.driver":              "sqlite",
	"database.dsn":                 "file:accounts.db?cache=shared",
	"lock.kind":                    LockMemory,
	"lock.redis_addr":              "localhost:6379",
	"lock.redis_password":          "",
	"lock.redis_db":                0,
	"lock.ttl":                     30 * time.Second,
	"sync.page_size":               60,
	"sync.concurrency":             4,
	"log.env":                      "dev",
	"log.level":                    "info",
	"log.activity_stream":          false,
}

// Load reads path when it is not empty, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase is Load for commands that only touch the database. Provider,
// auth and lock settings are not validated.
func LoadDatabase(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateDatabase(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected provider and lock backends are configured.
func (c Config) Validate() error {
	if err := validation.ValidateStruct(&c.Provider,
		validation.Field(&c.Provider.Kind, validation.Required, validation.In(ProviderCognito, ProviderAuth0)),
	); err != nil {
		return err
	}

	switch c.Provider.Kind {
	case ProviderCognito:
		if err := validation.ValidateStruct(&c.Auth,
			validation.Field(&c.Auth.Region, validation.Required),
			validation.Field(&c.Auth.UserPoolID, validation.Required),
		); err != nil {
			return err
		}
	case ProviderAuth0:
		if err := validation.ValidateStruct(&c.Provider.Auth0,
			validation.Field(&c.Provider.Auth0.Domain, validation.Required),
			validation.Field(&c.Provider.Auth0.ClientID, validation.Required),
			validation.Field(&c.Provider.Auth0.ClientSecret, validation.Required),
		); err != nil {
			return err
		}
	}

	if err := validation.ValidateStruct(&c.Lock,
		validation.Field(&c.Lock.Kind, validation.Required, validation.In(LockMemory, LockRedis)),
	); err != nil {
		return err
	}
	if c.Lock.Kind == LockRedis && c.Lock.RedisAddr == "" {
		return errors.New("config: lock.redis_addr is required for the redis lock")
	}

	if c.Auth.AdminGroup == c.Auth.DeveloperGroup {
		return errors.New("config: auth.admin_group and auth.developer_group must differ")
	}

	return c.ValidateDatabase()
}

// ValidateDatabase checks the database section.
func (c Config) ValidateDatabase() error {
	return validation.ValidateStruct(&c.Database,
		validation.Field(&c.Database.Driver, validation.Required),
		validation.Field(&c.Database.DSN, validation.Required),
	)
}

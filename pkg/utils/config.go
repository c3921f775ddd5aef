package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"journaltransporter/pkg/database"
)

const EnvPrefix = "TRANSPORTER"

type Config struct {
	Env    string
	DB     database.Config
	HTTP   HTTPConfig
	Grpc   GrpcConfig
	Auth   AuthConfig
	Events EventsConfig
	Log    LogConfig
}

type HTTPConfig struct {
	Addr           string
	TrustedProxies []string
	MaxBodyBytes   int64
}

type GrpcConfig struct {
	Addr string
}

type AuthConfig struct {
	JWTSecret    string
	JWTIssuer    string
	JWTDuration  time.Duration
	CookieName   string
	CookieSecure bool
}

// EventsConfig controls the import event feed. An empty TCPAddr disables the raw TCP feed;
// the WebSocket feed is always served by the HTTP API.
type EventsConfig struct {
	TCPAddr string
	History int
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// Load reads configuration. Priority, highest first:
// TRANSPORTER_* env vars, the config file (explicit path or ./transporter.toml), defaults.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("transporter")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// a missing default file is fine, an explicit one is not
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Env: v.GetString("env"),
		DB: database.Config{
			Path: v.GetString("db.path"),
		},
		HTTP: HTTPConfig{
			Addr:           v.GetString("http.addr"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
			MaxBodyBytes:   v.GetInt64("http.max_body_bytes"),
		},
		Grpc: GrpcConfig{
			Addr: v.GetString("grpc.addr"),
		},
		Auth: AuthConfig{
			JWTSecret:    v.GetString("auth.jwt_secret"),
			JWTIssuer:    v.GetString("auth.jwt_issuer"),
			JWTDuration:  time.Duration(v.GetInt("auth.jwt_ttl_hours")) * time.Hour,
			CookieName:   v.GetString("auth.cookie_name"),
			CookieSecure: v.GetBool("auth.cookie_secure"),
		},
		Events: EventsConfig{
			TCPAddr: v.GetString("events.tcp_addr"),
			History: v.GetInt("events.history"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("db.path", database.DefaultConfig().Path)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.trusted_proxies", []string{"127.0.0.1"})
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("grpc.addr", ":9090")
	// dev default (change for production)
	v.SetDefault("auth.jwt_secret", "dev-secret-change-me")
	v.SetDefault("auth.jwt_issuer", "journal-transporter")
	v.SetDefault("auth.jwt_ttl_hours", 24)
	v.SetDefault("auth.cookie_name", "transporter_session")
	v.SetDefault("auth.cookie_secure", false)
	v.SetDefault("events.tcp_addr", "")
	v.SetDefault("events.history", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
}

func (c *Config) validate() error {
	if c.DB.Path == "" {
		return fmt.Errorf("db.path is required")
	}
	if c.Auth.JWTDuration <= 0 {
		return fmt.Errorf("auth.jwt_ttl_hours must be positive")
	}
	if c.Env == "production" && c.Auth.JWTSecret == "dev-secret-change-me" {
		return fmt.Errorf("auth.jwt_secret must be set in production")
	}
	return nil
}

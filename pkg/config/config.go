package config

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	BaseURL    string `mapstructure:"BASE_URL"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConns    int           `mapstructure:"MAX_IDLE_CONNS"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
		Metrics struct {
			Enable bool `mapstructure:"ENABLE"`
			Port   int  `mapstructure:"PORT"`
		} `mapstructure:"METRICS"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Supabase struct {
		URL            string `mapstructure:"URL"`
		ServiceRoleKey string `mapstructure:"SERVICE_ROLE_KEY"`
		JWTSecret      string `mapstructure:"JWT_SECRET"`
	} `mapstructure:"SUPABASE"`
	AccessControl struct {
		Model  string `mapstructure:"MODEL"`
		Policy string `mapstructure:"POLICY"`
	} `mapstructure:"ACCESS_CONTROL"`
	N8N struct {
		BaseURL       string        `mapstructure:"BASE_URL"`
		IngestSecret  string        `mapstructure:"INGEST_SECRET"`
		Timeout       time.Duration `mapstructure:"TIMEOUT"`
		NotifyEnabled bool          `mapstructure:"NOTIFY_ENABLED"`
	} `mapstructure:"N8N"`
	Stripe struct {
		SecretKey string `mapstructure:"SECRET_KEY"`
	} `mapstructure:"STRIPE"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Vault struct {
		Enable    bool   `mapstructure:"ENABLE"`
		MountPath string `mapstructure:"MOUNT_PATH"`
	} `mapstructure:"VAULT"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

// envAliases binds the variable names shared with the web app.
var envAliases = map[string][]string{
	"SUPABASE.URL":              {"NEXT_PUBLIC_SUPABASE_URL", "SUPABASE_URL"},
	"SUPABASE.SERVICE_ROLE_KEY": {"SUPABASE_SERVICE_ROLE_KEY"},
	"SUPABASE.JWT_SECRET":       {"SUPABASE_JWT_SECRET"},
	"BASE_URL":                  {"NEXT_PUBLIC_BASE_URL", "BASE_URL"},
	"N8N.BASE_URL":              {"N8N_BASE_URL"},
	"N8N.INGEST_SECRET":         {"N8N_INGEST_SECRET"},
	"STRIPE.SECRET_KEY":         {"STRIPE_SECRET_KEY"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "guarantee-controlplane")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("TLS.ENABLE", false)
	v.SetDefault("TLS.CERT_PATH", "")
	v.SetDefault("TLS.KEY_PATH", "")
	v.SetDefault("OTEL.ADDR", "")
	v.SetDefault("OTEL.PROTOCOL", "http")
	v.SetDefault("PYROSCOPE.ADDR", "")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", "5432")
	v.SetDefault("DATABASE.DBNAME", "postgres")
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 20)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", 30*time.Minute)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 5*time.Minute)
	v.SetDefault("DATABASE.METRICS.ENABLE", false)
	v.SetDefault("DATABASE.METRICS.PORT", 9091)
	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 4*time.Second)
	v.SetDefault("SUPABASE.URL", "")
	v.SetDefault("SUPABASE.SERVICE_ROLE_KEY", "")
	v.SetDefault("SUPABASE.JWT_SECRET", "")
	v.SetDefault("ACCESS_CONTROL.MODEL", "")
	v.SetDefault("ACCESS_CONTROL.POLICY", "")
	v.SetDefault("BASE_URL", "http://localhost:3000")
	v.SetDefault("N8N.BASE_URL", "")
	v.SetDefault("N8N.INGEST_SECRET", "")
	v.SetDefault("N8N.TIMEOUT", 10*time.Second)
	v.SetDefault("N8N.NOTIFY_ENABLED", true)
	v.SetDefault("STRIPE.SECRET_KEY", "")
	v.SetDefault("FLAGSMITH.ADDR", "")
	v.SetDefault("FLAGSMITH.API_KEY", "")
	v.SetDefault("VAULT.ENABLE", false)
	v.SetDefault("VAULT.MOUNT_PATH", "secret")
}

// Load reads config.yaml (optional) and the environment into a Config.
func Load(v *viper.Viper) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, envs := range envAliases {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func LoadConfig(p Params) *Config {
	cfg, err := Load(viper.New())
	if err != nil {
		zap.L().Error("failed to load config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil && cfg.Vault.Enable {
		if err := overlayVault(context.Background(), p.Vault, cfg); err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
	}

	return cfg
}

// overlayVault replaces secrets with the KV v2 entry stored under the APP_ENV path.
func overlayVault(ctx context.Context, client *vault.Client, cfg *Config) error {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath(cfg.Vault.MountPath))
	if err != nil {
		return err
	}
	zap.L().Info("Success Get Secret")

	get := func(key, fallback string) string {
		if val, ok := secret.Data.Data[key].(string); ok && val != "" {
			return val
		}
		return fallback
	}

	cfg.Database.User = get("postgres_user", cfg.Database.User)
	cfg.Database.Password = get("postgres_password", cfg.Database.Password)
	cfg.Redis.Password = get("redis_password", cfg.Redis.Password)
	cfg.Supabase.ServiceRoleKey = get("supabase_service_role_key", cfg.Supabase.ServiceRoleKey)
	cfg.Supabase.JWTSecret = get("supabase_jwt_secret", cfg.Supabase.JWTSecret)
	cfg.N8N.IngestSecret = get("n8n_ingest_secret", cfg.N8N.IngestSecret)
	cfg.Stripe.SecretKey = get("stripe_secret_key", cfg.Stripe.SecretKey)
	cfg.Flagsmith.ApiKey = get("flagsmith_api_key", cfg.Flagsmith.ApiKey)

	return nil
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix          = "PETSYNC"
	defaultHTTPAddress = "0.0.0.0:8080"
	defaultLogLevel    = "info"
	defaultLogFormat   = "json"
	defaultRegion      = "us-east-1"
)

// Drivers del backend remoto.
const (
	RemoteNone     = "none"
	RemoteREST     = "rest"
	RemotePostgres = "postgres"
	RemoteSQLite   = "sqlite"
)

// Drivers de storage de binarios.
const (
	StorageNone   = "none"
	StorageMemory = "memory"
	StorageS3     = "s3"
)

// AppConfig captura la configuración de runtime del servicio.
type AppConfig struct {
	HTTPAddress string
	LogLevel    string
	LogFormat   string

	Remote  RemoteConfig
	Storage StorageConfig
	Auth    AuthConfig

	SyncTimeout time.Duration
}

type RemoteConfig struct {
	Driver  string
	URL     string
	APIKey  string
	DSN     string
	Timeout time.Duration
}

type StorageConfig struct {
	Driver      string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
	URLTTL      time.Duration
}

type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// NewViper devuelve un viper con defaults y bindings de env.
func NewViper() *viper.Viper {
	v := viper.New()
	ApplyDefaults(v)
	return v
}

// ApplyDefaults configura defaults y env (PETSYNC_REMOTE_URL, etc).
func ApplyDefaults(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.address", defaultHTTPAddress)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.format", defaultLogFormat)

	v.SetDefault("remote.driver", RemoteNone)
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.api_key", "")
	v.SetDefault("remote.dsn", "")
	v.SetDefault("remote.timeout", 10*time.Second)

	v.SetDefault("storage.driver", StorageNone)
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", defaultRegion)
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.path_style", false)
	v.SetDefault("storage.url_ttl", 15*time.Minute)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "")

	v.SetDefault("sync.timeout", 30*time.Second)
}

// Load parsea la configuración desde viper.
func Load(v *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress: v.GetString("http.address"),
		LogLevel:    v.GetString("log.level"),
		LogFormat:   v.GetString("log.format"),
		Remote: RemoteConfig{
			Driver:  strings.ToLower(strings.TrimSpace(v.GetString("remote.driver"))),
			URL:     strings.TrimSpace(v.GetString("remote.url")),
			APIKey:  strings.TrimSpace(v.GetString("remote.api_key")),
			DSN:     strings.TrimSpace(v.GetString("remote.dsn")),
			Timeout: v.GetDuration("remote.timeout"),
		},
		Storage: StorageConfig{
			Driver:      strings.ToLower(strings.TrimSpace(v.GetString("storage.driver"))),
			S3Bucket:    strings.TrimSpace(v.GetString("storage.s3.bucket")),
			S3Region:    strings.TrimSpace(v.GetString("storage.s3.region")),
			S3Endpoint:  strings.TrimSpace(v.GetString("storage.s3.endpoint")),
			S3PathStyle: v.GetBool("storage.s3.path_style"),
			URLTTL:      v.GetDuration("storage.url_ttl"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
			JWTIssuer: strings.TrimSpace(v.GetString("auth.jwt_issuer")),
		},
		SyncTimeout: v.GetDuration("sync.timeout"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// validate no exige credenciales del backend REST: sin url/api key el controller cae al seed.
func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}

	switch c.Remote.Driver {
	case RemoteNone, RemoteREST:
	case RemotePostgres, RemoteSQLite:
		if c.Remote.DSN == "" {
			return fmt.Errorf("remote.dsn is required for remote.driver=%s", c.Remote.Driver)
		}
	default:
		return fmt.Errorf("remote.driver must be one of none|rest|postgres|sqlite, got %q", c.Remote.Driver)
	}

	switch c.Storage.Driver {
	case StorageNone, StorageMemory:
	case StorageS3:
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for storage.driver=s3")
		}
	default:
		return fmt.Errorf("storage.driver must be one of none|memory|s3, got %q", c.Storage.Driver)
	}

	if c.SyncTimeout <= 0 {
		return fmt.Errorf("sync.timeout must be positive")
	}
	if c.Storage.URLTTL <= 0 {
		return fmt.Errorf("storage.url_ttl must be positive")
	}
	return nil
}

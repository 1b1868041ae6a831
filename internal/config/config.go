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

// ConfigPath is the default config location, relative to the working directory.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// Mode selects collaborator capabilities: "remote" calls the four
	// external services, "standalone" runs the in-process providers.
	Mode string `yaml:"mode"`

	AuthServiceURL     string `yaml:"authServiceURL"`
	DocumentServiceURL string `yaml:"documentServiceURL"`
	CryptoServiceURL   string `yaml:"cryptoServiceURL"`
	LedgerServiceURL   string `yaml:"ledgerServiceURL"`

	// JWTSecret enables local validation of auth-service bearer tokens
	// (the auth service signs HS256 with a shared secret). Empty means
	// every restore goes through GET /check-token.
	JWTSecret string `yaml:"jwtSecret"`
	JWTLeeway string `yaml:"jwtLeeway"`

	// StateDir holds the durable session token and, with the "file"
	// registry backend, the serialized document set.
	StateDir        string `yaml:"stateDir"`
	RegistryBackend string `yaml:"registryBackend"` // memory | file | postgres
	DatabaseURL     string `yaml:"databaseURL"`

	PayloadBackend string `yaml:"payloadBackend"` // none | dir | minio
	PayloadDir     string `yaml:"payloadDir"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	LedgerQueueBackend string `yaml:"ledgerQueueBackend"` // none | redis | amqp
	LedgerQueueStream  string `yaml:"ledgerQueueStream"`
	LedgerQueueGroup   string `yaml:"ledgerQueueGroup"`
	LedgerWorkers      int    `yaml:"ledgerWorkers"`
	AMQPURL            string `yaml:"amqpURL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	RegisterRateLimitPerMinute int `yaml:"registerRateLimitPerMinute"`
	LoginRateLimitPerMinute    int `yaml:"loginRateLimitPerMinute"`
	UploadRateLimitPerMinute   int `yaml:"uploadRateLimitPerMinute"`

	MaxUploadBytes    int64    `yaml:"maxUploadBytes"`
	AllowedExtensions []string `yaml:"allowedExtensions"`
	TrustedProxyCIDRs []string `yaml:"trustedProxyCidrs"`

	DemoUserEmail      string `yaml:"demoUserEmail"`
	DemoUserBcryptHash string `yaml:"demoUserBcryptHash"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("SECURESIGN_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("SECURESIGN_MODE"); v != "" {
		cfg.Mode = strings.TrimSpace(v)
	}
	if v := os.Getenv("SECURESIGN_AUTH_SERVICE_URL"); v != "" {
		cfg.AuthServiceURL = v
	}
	if v := os.Getenv("SECURESIGN_DOCUMENT_SERVICE_URL"); v != "" {
		cfg.DocumentServiceURL = v
	}
	if v := os.Getenv("SECURESIGN_CRYPTO_SERVICE_URL"); v != "" {
		cfg.CryptoServiceURL = v
	}
	if v := os.Getenv("SECURESIGN_LEDGER_SERVICE_URL"); v != "" {
		cfg.LedgerServiceURL = v
	}
	if v := os.Getenv("SECURESIGN_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("SECURESIGN_STATE_DIR"); v != "" {
		cfg.StateDir = strings.TrimSpace(v)
	}
	if v := os.Getenv("SECURESIGN_REGISTRY_BACKEND"); v != "" {
		cfg.RegistryBackend = strings.TrimSpace(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("SECURESIGN_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("SECURESIGN_ALLOWED_EXTENSIONS"); v != "" {
		cfg.AllowedExtensions = splitCSV(v)
	}
	if v := os.Getenv("SECURESIGN_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("SECURESIGN_REGISTER_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RegisterRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("SECURESIGN_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("SECURESIGN_UPLOAD_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.UploadRateLimitPerMinute = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	mode := strings.TrimSpace(cfg.Mode)
	if mode != "" && mode != "remote" && mode != "standalone" {
		return fmt.Errorf("config: unknown mode %q (use remote or standalone)", cfg.Mode)
	}
	if mode != "standalone" {
		if cfg.AuthServiceURL == "" {
			return errors.New("config: authServiceURL is required in remote mode")
		}
		if cfg.DocumentServiceURL == "" {
			return errors.New("config: documentServiceURL is required in remote mode")
		}
		if cfg.CryptoServiceURL == "" {
			return errors.New("config: cryptoServiceURL is required in remote mode")
		}
		if cfg.LedgerServiceURL == "" {
			return errors.New("config: ledgerServiceURL is required in remote mode")
		}
	}
	if cfg.StateDir == "" {
		return errors.New("config: stateDir is required")
	}
	switch cfg.RegistryBackend {
	case "", "memory", "file":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for the postgres registry backend")
		}
	default:
		return fmt.Errorf("config: unknown registryBackend %q", cfg.RegistryBackend)
	}
	switch cfg.PayloadBackend {
	case "", "none", "dir":
	case "minio":
		if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioEndpoint and minioBucket are required for the minio payload backend")
		}
	default:
		return fmt.Errorf("config: unknown payloadBackend %q", cfg.PayloadBackend)
	}
	switch cfg.LedgerQueueBackend {
	case "", "none":
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for the redis ledger queue")
		}
	case "amqp":
		if strings.TrimSpace(cfg.AMQPURL) == "" {
			return errors.New("config: amqpURL is required for the amqp ledger queue")
		}
	default:
		return fmt.Errorf("config: unknown ledgerQueueBackend %q", cfg.LedgerQueueBackend)
	}
	hasLimits := cfg.RegisterRateLimitPerMinute > 0 || cfg.LoginRateLimitPerMinute > 0 || cfg.UploadRateLimitPerMinute > 0
	if hasLimits && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for distributed rate limiting")
	}
	if cfg.RegisterRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 || cfg.UploadRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseJWTLeeway parses the optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}

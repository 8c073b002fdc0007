package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr          string        `yaml:"addr"`
	JWTSecret     string        `yaml:"jwt_secret"`
	APITimeout    time.Duration `yaml:"timeout"`
	DatabasePath  string        `yaml:"database_path"`
	TokenDuration time.Duration `yaml:"token_duration"`

	// PublicBaseURL is the externally reachable frontend origin, used to
	// build one-time RSVP edit links.
	PublicBaseURL string `yaml:"public_base_url"`

	// AdminRegistrationToken gates self-registration once at least one
	// admin account exists. Empty disables self-registration entirely.
	AdminRegistrationToken string `yaml:"admin_registration_token"`

	AllowedOrigins  []string `yaml:"allowed_origins"`
	MaxRequestBytes int64    `yaml:"max_request_bytes"`
	BcryptCost      int      `yaml:"bcrypt_cost"`
	SeedDemo        bool     `yaml:"seed_demo"`

	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	LoginRateLimit RateLimitConfig `yaml:"login_rate_limit"`
	Courier        CourierConfig   `yaml:"courier"`
	Workers        WorkersConfig   `yaml:"workers"`
}

type RateLimitConfig struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

// CourierConfig configures the outbound notification delivery client.
// Enabled false keeps delivery on the development log sender.
type CourierConfig struct {
	Enabled                 bool          `yaml:"enabled"`
	BaseURL                 string        `yaml:"base_url"`
	APIKey                  string        `yaml:"api_key"`
	FromName                string        `yaml:"from_name"`
	Timeout                 time.Duration `yaml:"timeout"`
	Retries                 int           `yaml:"retries"`
	Backoff                 time.Duration `yaml:"backoff"`
	CircuitFailureThreshold int           `yaml:"circuit_failure_threshold"`
	CircuitReset            time.Duration `yaml:"circuit_reset"`
}

type WorkersConfig struct {
	Count        int           `yaml:"count"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Addr:                   getEnv("GATHER_ADDR", ":8080"),
		JWTSecret:              getEnv("GATHER_JWT_SECRET", "supersecretkey"),
		APITimeout:             15 * time.Second,
		DatabasePath:           getEnv("GATHER_DATABASE_PATH", "gather.db"),
		TokenDuration:          4 * time.Hour,
		PublicBaseURL:          getEnv("GATHER_PUBLIC_BASE_URL", "http://localhost:5173"),
		AdminRegistrationToken: getEnv("GATHER_ADMIN_REGISTRATION_TOKEN", ""),
		AllowedOrigins:         []string{"*"},
		MaxRequestBytes:        1 << 20,
		BcryptCost:             0, // 0 means the bcrypt default cost
		SeedDemo:               getEnvBool("GATHER_SEED_DEMO", false),
		RateLimit:              RateLimitConfig{Max: 100, Window: 15 * time.Minute},
		LoginRateLimit:         RateLimitConfig{Max: 5, Window: 15 * time.Minute},
		Courier: CourierConfig{
			Enabled:                 false,
			BaseURL:                 getEnv("GATHER_COURIER_URL", "http://localhost:8025"),
			APIKey:                  getEnv("GATHER_COURIER_API_KEY", ""),
			FromName:                "Gather Events",
			Timeout:                 10 * time.Second,
			Retries:                 2,
			Backoff:                 500 * time.Millisecond,
			CircuitFailureThreshold: 5,
			CircuitReset:            30 * time.Second,
		},
		Workers: WorkersConfig{
			Count:        2,
			PollInterval: 500 * time.Millisecond,
			MaxAttempts:  5,
		},
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks the loaded configuration and fills gaps with safe
// defaults. The shipped JWT secret is rejected outside development.
func (c *Config) Validate() error {
	env := getEnv("GATHER_ENV", "development")
	if env != "development" && c.JWTSecret == "supersecretkey" {
		return fmt.Errorf("jwt_secret must be set to a real secret when GATHER_ENV=%s", env)
	}
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.Courier.Enabled && c.Courier.BaseURL == "" {
		return fmt.Errorf("courier.base_url is required when courier is enabled")
	}

	if c.MaxRequestBytes <= 0 {
		c.MaxRequestBytes = 1 << 20
	}
	if c.RateLimit.Max <= 0 {
		c.RateLimit.Max = 100
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = 15 * time.Minute
	}
	if c.LoginRateLimit.Max <= 0 {
		c.LoginRateLimit.Max = 5
	}
	if c.LoginRateLimit.Window <= 0 {
		c.LoginRateLimit.Window = 15 * time.Minute
	}
	if c.Courier.Timeout <= 0 {
		c.Courier.Timeout = 10 * time.Second
	}
	if c.Courier.Retries < 0 {
		c.Courier.Retries = 0
	}
	if c.Courier.CircuitFailureThreshold <= 0 {
		c.Courier.CircuitFailureThreshold = 5
	}
	if c.Courier.CircuitReset <= 0 {
		c.Courier.CircuitReset = 30 * time.Second
	}
	if c.Workers.Count <= 0 {
		c.Workers.Count = 2
	}
	if c.Workers.PollInterval <= 0 {
		c.Workers.PollInterval = 500 * time.Millisecond
	}
	if c.Workers.MaxAttempts <= 0 {
		c.Workers.MaxAttempts = 5
	}

	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

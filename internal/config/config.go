package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the router process.
// Values come from env vars, optionally seeded from a .env file.
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Telnyx   TelnyxConfig
	Spaces   SpacesConfig
	Notifier NotifierConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Bridge   BridgeConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicURL is the externally reachable base URL of this process,
	// used as the webhook callback target for outbound calls.
	PublicURL string
}

type DBConfig struct {
	// Driver selects the database/sql driver: "sqlite" (default) or "postgres".
	Driver string
	DSN    string
}

type TelnyxConfig struct {
	APIKey       string
	APIBaseURL   string
	ConnectionID string

	// HumanNumber is the representative's phone number dialed on transfer.
	HumanNumber string
	// FromNumber is the caller id used for outbound calls.
	FromNumber string

	Voice    string
	Language string
}

type SpacesConfig struct {
	// Enabled turns on recording mirroring to an S3-compatible bucket.
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	// PublicBaseURL is the CDN/public prefix for mirrored objects.
	PublicBaseURL string
}

type NotifierConfig struct {
	WebhookURL string

	SettleDelay       time.Duration
	RetryDelay        time.Duration
	NetworkRetryDelay time.Duration
	MaxAttempts       int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration

	OperatorUser     string
	OperatorPassword string
}

type RedisConfig struct {
	// Addr is optional; when set, webhook dedup uses redis instead of the
	// in-process cache.
	Addr string
}

type BridgeConfig struct {
	// NoAnswerTimeout is how long a dialed representative may ring before the
	// pending association is torn down.
	NoAnswerTimeout time.Duration
	// GreetingDelay is the pause after speaking to the representative before
	// requesting the bridge.
	GreetingDelay time.Duration
	// MenuDelay is the pause after answering before the IVR menu plays.
	MenuDelay time.Duration
}

// Load reads configuration from the environment. A .env file for the current
// APP_ENV is loaded first when present; a missing file is not an error.
func Load() (Config, error) {
	loadDotEnv()

	c := Config{}
	var parseErrs []error

	c.App.Env = getString("APP_ENV", "local")
	c.App.Port, parseErrs = getInt("APP_PORT", 8080, parseErrs)
	c.App.PublicURL = strings.TrimRight(getString("PUBLIC_URL", ""), "/")

	c.DB.Driver = getString("DB_DRIVER", "sqlite")
	c.DB.DSN = getString("DB_DSN", "./calls.db")

	c.Telnyx.APIKey = os.Getenv("TELNYX_API_KEY")
	c.Telnyx.APIBaseURL = getString("TELNYX_API_BASE_URL", "https://api.telnyx.com/v2")
	c.Telnyx.ConnectionID = os.Getenv("TELNYX_CONNECTION_ID")
	c.Telnyx.HumanNumber = os.Getenv("HUMAN_PHONE_NUMBER")
	c.Telnyx.FromNumber = os.Getenv("TELNYX_FROM_NUMBER")
	c.Telnyx.Voice = getString("TELNYX_VOICE", "female")
	c.Telnyx.Language = getString("TELNYX_LANGUAGE", "en-US")

	c.Spaces.Enabled = getBool("SPACES_ENABLED", false)
	c.Spaces.Endpoint = getString("SPACES_ENDPOINT", "nyc3.digitaloceanspaces.com")
	c.Spaces.Region = getString("SPACES_REGION", "nyc3")
	c.Spaces.AccessKey = os.Getenv("SPACES_ACCESS_KEY")
	c.Spaces.SecretKey = os.Getenv("SPACES_SECRET_KEY")
	c.Spaces.Bucket = os.Getenv("SPACES_BUCKET")
	c.Spaces.PublicBaseURL = strings.TrimRight(os.Getenv("SPACES_PUBLIC_BASE_URL"), "/")

	c.Notifier.WebhookURL = os.Getenv("ZAPIER_WEBHOOK_URL")
	c.Notifier.SettleDelay = getDuration("NOTIFY_SETTLE_DELAY", 10*time.Second)
	c.Notifier.RetryDelay = getDuration("NOTIFY_RETRY_DELAY", 30*time.Second)
	c.Notifier.NetworkRetryDelay = getDuration("NOTIFY_NETWORK_RETRY_DELAY", 60*time.Second)
	c.Notifier.MaxAttempts, parseErrs = getInt("NOTIFY_MAX_ATTEMPTS", 5, parseErrs)

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = getString("JWT_ISSUER", "call-router")
	c.Auth.AccessTokenTTL = getDuration("JWT_ACCESS_TTL", 12*time.Hour)
	c.Auth.OperatorUser = getString("OPERATOR_USER", "operator")
	c.Auth.OperatorPassword = os.Getenv("OPERATOR_PASSWORD")

	c.Redis.Addr = os.Getenv("REDIS_ADDR")

	c.Bridge.NoAnswerTimeout = getDuration("HUMAN_NO_ANSWER_TIMEOUT", 35*time.Second)
	c.Bridge.GreetingDelay = getDuration("BRIDGE_GREETING_DELAY", 3*time.Second)
	c.Bridge.MenuDelay = getDuration("IVR_MENU_DELAY", 1*time.Second)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DB.Driver))
	}
	if c.DB.DSN == "" {
		errs = append(errs, errors.New("DB_DSN is required"))
	}

	if c.Telnyx.APIKey == "" {
		errs = append(errs, errors.New("TELNYX_API_KEY is required"))
	}
	if c.Telnyx.ConnectionID == "" {
		errs = append(errs, errors.New("TELNYX_CONNECTION_ID is required"))
	}
	if c.Telnyx.HumanNumber == "" {
		errs = append(errs, errors.New("HUMAN_PHONE_NUMBER is required"))
	}

	if c.Spaces.Enabled {
		if c.Spaces.AccessKey == "" || c.Spaces.SecretKey == "" {
			errs = append(errs, errors.New("SPACES_ACCESS_KEY and SPACES_SECRET_KEY are required when SPACES_ENABLED"))
		}
		if c.Spaces.Bucket == "" {
			errs = append(errs, errors.New("SPACES_BUCKET is required when SPACES_ENABLED"))
		}
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.OperatorPassword == "" {
		errs = append(errs, errors.New("OPERATOR_PASSWORD is required"))
	}

	if c.Notifier.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be positive, got %d", c.Notifier.MaxAttempts))
	}
	if c.Bridge.NoAnswerTimeout <= 0 {
		errs = append(errs, errors.New("HUMAN_NO_ANSWER_TIMEOUT must be positive"))
	}

	return joinErrors(errs)
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// WebhookURL is the callback URL handed to the carrier for outbound calls.
func (c *Config) WebhookURL() string {
	if c.App.PublicURL == "" {
		return ""
	}
	return c.App.PublicURL + "/webhooks/telnyx"
}

func loadDotEnv() {
	env := os.Getenv("APP_ENV")
	candidates := []string{".env"}
	if env != "" {
		candidates = append([]string{".env." + env}, candidates...)
	}
	for _, f := range candidates {
		if _, err := os.Stat(f); err == nil {
			// Already-set env vars win over file contents.
			_ = godotenv.Load(f)
			return
		}
	}
}

func getString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getInt(key string, def int, errs []error) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func getBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}

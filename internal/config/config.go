package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"berserk/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	HTTP         HTTPConfig         `yaml:"http"`
	Stripe       StripeConfig       `yaml:"stripe"`
	Booking      BookingConfig      `yaml:"booking"`
	Availability AvailabilityConfig `yaml:"availability"`
	Database     DatabaseConfig     `yaml:"database"`
	Backup       BackupConfig       `yaml:"backup"`
	Redis        RedisConfig        `yaml:"redis"`
	Dedup        DedupConfig        `yaml:"dedup"`
	Worker       WorkerConfig       `yaml:"worker"`
	SMTP         SMTPConfig         `yaml:"smtp"`
	Telegram     TelegramConfig     `yaml:"telegram"`
	Google       GoogleConfig       `yaml:"google"`
	Admin        AdminConfig        `yaml:"admin"`
	Logging      LoggingConfig      `yaml:"logging"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Artists      []models.Artist    `yaml:"artists"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type HTTPConfig struct {
	Port            int             `yaml:"port"`
	ReadTimeout     time.Duration   `yaml:"read_timeout"`
	WriteTimeout    time.Duration   `yaml:"write_timeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	MaxWebhookBytes int64           `yaml:"max_webhook_bytes"`
	MaxBodyBytes    int64           `yaml:"max_body_bytes"`
	AllowedOrigins  []string        `yaml:"allowed_origins"`
	TrustedProxies  []string        `yaml:"trusted_proxies"` // CIDRs or addresses allowed to set X-Forwarded-For
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type StripeConfig struct {
	SecretKey        string        `yaml:"secret_key"`
	WebhookSecret    string        `yaml:"webhook_secret"`
	WebhookTolerance time.Duration `yaml:"webhook_tolerance"`
	Timeout          time.Duration `yaml:"timeout"`
	APIURL           string        `yaml:"api_url"` // overrides the API base, e.g. stripe-mock
}

type BookingConfig struct {
	BaseURL       string `yaml:"base_url"`
	DepositAmount int64  `yaml:"deposit_amount"`
	InPersonFee   int64  `yaml:"in_person_fee"` // cents, shown by the wizard
	Currency      string `yaml:"currency"`
	ProductName   string `yaml:"product_name"`
	ProductImage  string `yaml:"product_image"`
}

type AvailabilityConfig struct {
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	FirstHour       int     `yaml:"first_hour"`
	LastHour        int     `yaml:"last_hour"`
	Probability     float64 `yaml:"probability"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type DedupConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type WorkerConfig struct {
	QueueKey      string        `yaml:"queue_key"`
	DeadLetterKey string        `yaml:"dead_letter_key"`
	MaxRetries    int           `yaml:"max_retries"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

type SMTPConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	From        string        `yaml:"from"`
	StudioEmail string        `yaml:"studio_email"`
	TLSPolicy   string        `yaml:"tls_policy"` // mandatory, opportunistic or none
	Timeout     time.Duration `yaml:"timeout"`
}

type TelegramConfig struct {
	BotToken     string  `yaml:"bot_token"`
	ManagerChats []int64 `yaml:"manager_chats"`
	Debug        bool    `yaml:"debug"`
}

type GoogleConfig struct {
	CredentialsFile      string `yaml:"credentials_file"`
	BookingSpreadSheetID string `yaml:"bookings_spreadsheet_id"`
	SheetName            string `yaml:"sheet_name"`
}

type AdminConfig struct {
	HeaderAPIKey string          `yaml:"header_api_key"`
	HeaderExtra  string          `yaml:"header_extra"`
	APIKeys      []APIClientKey  `yaml:"api_keys"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

// Load reads the YAML config at configPath, expanding ${VAR} from the
// environment and an optional .env file.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Stripe.SecretKey == "" {
		return errors.New("stripe secret key is required")
	}
	if c.Stripe.WebhookSecret == "" {
		return errors.New("stripe webhook secret is required")
	}
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Booking.DepositAmount <= 0 {
		return errors.New("booking deposit amount must be positive")
	}
	if c.Booking.BaseURL == "" {
		return errors.New("booking base url is required")
	}
	if u, err := url.Parse(c.Booking.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("booking base url %q is not absolute", c.Booking.BaseURL)
	}
	if p := c.Availability.Probability; p < 0 || p > 1 {
		return fmt.Errorf("availability probability %v out of range", p)
	}

	return ValidateArtists(c.Artists)
}

// ValidateArtists rejects empty and duplicate roster ids.
func ValidateArtists(artists []models.Artist) error {
	ids := make(map[string]bool)
	for _, a := range artists {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("artist '%s' has empty id", a.Name)
		}
		if ids[a.ID] {
			return fmt.Errorf("duplicate artist id found: %s", a.ID)
		}
		ids[a.ID] = true
	}
	return nil
}

// Artist looks up a roster entry by id.
func (c *Config) Artist(id string) (models.Artist, bool) {
	for _, a := range c.Artists {
		if a.ID == id {
			return a, true
		}
	}
	return models.Artist{}, false
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "berserk"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 30 * time.Second
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.HTTP.MaxWebhookBytes == 0 {
		c.HTTP.MaxWebhookBytes = 64 << 10
	}
	if c.HTTP.MaxBodyBytes == 0 {
		c.HTTP.MaxBodyBytes = 32 << 10
	}
	if c.HTTP.RateLimit.RPS == 0 {
		c.HTTP.RateLimit.RPS = 1
	}
	if c.HTTP.RateLimit.Burst == 0 {
		c.HTTP.RateLimit.Burst = 5
	}

	if c.Stripe.Timeout == 0 {
		c.Stripe.Timeout = 15 * time.Second
	}
	if c.Stripe.WebhookTolerance == 0 {
		c.Stripe.WebhookTolerance = 5 * time.Minute
	}

	if c.Booking.DepositAmount == 0 {
		c.Booking.DepositAmount = models.DefaultDepositAmount
	}
	if c.Booking.InPersonFee == 0 {
		c.Booking.InPersonFee = 10000
	}
	if c.Booking.Currency == "" {
		c.Booking.Currency = models.DefaultCurrency
	}
	if c.Booking.ProductName == "" {
		c.Booking.ProductName = "Tattoo Consultation"
	}
	c.Booking.BaseURL = strings.TrimRight(c.Booking.BaseURL, "/")

	if c.Availability.CacheTTLSeconds == 0 {
		c.Availability.CacheTTLSeconds = models.DefaultAvailabilityTTLSeconds
	}
	if c.Availability.FirstHour == 0 {
		c.Availability.FirstHour = 10
	}
	if c.Availability.LastHour == 0 {
		c.Availability.LastHour = 17
	}
	if c.Availability.Probability == 0 {
		c.Availability.Probability = 0.7
	}

	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 7
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}

	if c.Dedup.TTL == 0 {
		c.Dedup.TTL = models.DefaultDedupTTLHours * time.Hour
	}

	if c.Worker.QueueKey == "" {
		c.Worker.QueueKey = "berserk:notify:queue"
	}
	if c.Worker.DeadLetterKey == "" {
		c.Worker.DeadLetterKey = "berserk:notify:dlq"
	}
	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 5
	}
	if c.Worker.BaseDelay == 0 {
		c.Worker.BaseDelay = 2 * time.Second
	}
	if c.Worker.MaxDelay == 0 {
		c.Worker.MaxDelay = time.Minute
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = 5 * time.Second
	}
	if c.Worker.BufferSize == 0 {
		c.Worker.BufferSize = 256
	}

	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.Google.SheetName == "" {
		c.Google.SheetName = "Bookings"
	}

	if c.Admin.HeaderAPIKey == "" {
		c.Admin.HeaderAPIKey = "x-api-key"
	}
	if c.Admin.HeaderExtra == "" {
		c.Admin.HeaderExtra = "x-api-extra"
	}
	if c.Admin.RateLimit.RPS == 0 {
		c.Admin.RateLimit.RPS = 5
	}
	if c.Admin.RateLimit.Burst == 0 {
		c.Admin.RateLimit.Burst = 10
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}

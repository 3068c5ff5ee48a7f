package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port          string `env:"PORT" envDefault:"3000"`
	Mode          string `env:"GIN_MODE" envDefault:"debug"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
	ServiceName   string `env:"SERVICE_NAME" envDefault:"Membership Service"`

	// Database configuration
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"membership-api.db"`

	// Redis configuration
	RedisURL string `env:"REDIS_URL"`

	// Paystack configuration
	PaystackSecretKey string        `env:"PAYSTACK_SECRET_KEY"`
	PaystackBaseURL   string        `env:"PAYSTACK_BASE_URL" envDefault:"https://api.paystack.co"`
	Currency          string        `env:"PAYSTACK_CURRENCY" envDefault:"GHS"`
	ProviderTimeout   time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"15s"`

	// Telegram configuration
	TelegramBotToken    string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramAPIEndpoint string `env:"TELEGRAM_API_ENDPOINT" envDefault:"https://api.telegram.org/bot%s/%s"`
	OperatorID          string `env:"OPERATOR_ID"`
	APIKey              string `env:"API_KEY"`
	AdminAPIKey         string `env:"ADMIN_API_KEY"`

	// Brevo email configuration
	BrevoAPIKey    string `env:"BREVO_API_KEY"`
	BrevoFromEmail string `env:"BREVO_FROM_EMAIL"`
	BrevoFromName  string `env:"BREVO_FROM_NAME" envDefault:"Membership Service"`

	// Outbound subscription events
	EventWebhookURL    string `env:"EVENT_WEBHOOK_URL"`
	EventWebhookSecret string `env:"EVENT_WEBHOOK_SECRET"`

	// Expiry sweeper
	SweepSchedule     string        `env:"SWEEP_SCHEDULE" envDefault:"@every 1h"`
	SweepStartupDelay time.Duration `env:"SWEEP_STARTUP_DELAY" envDefault:"5s"`
	SweepConcurrency  int           `env:"SWEEP_CONCURRENCY" envDefault:"4"`

	VerifyRateLimitSeconds int `env:"VERIFY_RATE_LIMIT_SECONDS" envDefault:"10"`

	// Gated groups, one chat per plan
	GroupFreeTrial      int64  `env:"GROUP_FREE_TRIAL"`
	GroupVIPSignals     int64  `env:"GROUP_VIP_SIGNALS"`
	GroupProTrader      int64  `env:"GROUP_PRO_TRADER"`
	GroupLifetime       int64  `env:"GROUP_LIFETIME"`
	InviteLinkFreeTrial string `env:"TELEGRAM_FREE_TRIAL_LINK"`
	InviteLinkVIP       string `env:"TELEGRAM_VIP_SIGNALS_LINK"`
	InviteLinkProTrader string `env:"TELEGRAM_PRO_TRADER_LINK"`
	InviteLinkLifetime  string `env:"TELEGRAM_LIFETIME_ACCESS_LINK"`
}

// GroupBinding ties a plan to the chat it unlocks.
type GroupBinding struct {
	ChatID     int64
	InviteLink string
}

var AppConfig *Config

func InitConfig() error {
	// Load .env file, a missing file is fine
	_ = godotenv.Load()

	cfg, err := Load()
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

// Load parses the process environment into a fresh Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return cfg, nil
}

// Validate reports settings the server cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.PaystackSecretKey == "" {
		errs = append(errs, errors.New("PAYSTACK_SECRET_KEY is not set"))
	}
	if c.TelegramBotToken == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is not set"))
	}
	if c.OperatorID == "" {
		errs = append(errs, errors.New("OPERATOR_ID is not set"))
	}
	if c.SweepConcurrency < 1 {
		errs = append(errs, errors.New("SWEEP_CONCURRENCY must be positive"))
	}
	return errors.Join(errs...)
}

// CallbackURL is where the provider sends the browser after checkout.
func (c *Config) CallbackURL() string {
	if c.PublicBaseURL == "" {
		return ""
	}
	return c.PublicBaseURL + "/payment/callback"
}

// Groups returns the gated chat for every plan id.
func (c *Config) Groups() map[string]GroupBinding {
	return map[string]GroupBinding{
		"free-trial":      {ChatID: c.GroupFreeTrial, InviteLink: c.InviteLinkFreeTrial},
		"vip-signals":     {ChatID: c.GroupVIPSignals, InviteLink: c.InviteLinkVIP},
		"pro-trader-plan": {ChatID: c.GroupProTrader, InviteLink: c.InviteLinkProTrader},
		"lifetime-access": {ChatID: c.GroupLifetime, InviteLink: c.InviteLinkLifetime},
	}
}

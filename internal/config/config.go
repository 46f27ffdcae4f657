package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Placeholder values shipped in sample .env files. They count as unset.
const (
	PlaceholderAPIKey        = "YOUR_API_KEY_HERE"
	PlaceholderAPISecret     = "YOUR_API_SECRET_HERE"
	PlaceholderWebhookSecret = "YOUR_WEBHOOK_SECRET_HERE"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Coinbase CoinbaseConfig `mapstructure:"coinbase"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ServiceName  string        `mapstructure:"service_name"`
}

type CoinbaseConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	APISecret string        `mapstructure:"api_secret"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// HasAPIKey reports whether a real API key was supplied.
func (c CoinbaseConfig) HasAPIKey() bool {
	return isSet(c.APIKey, PlaceholderAPIKey)
}

// HasAPISecret reports whether a real API secret was supplied.
func (c CoinbaseConfig) HasAPISecret() bool {
	return isSet(c.APISecret, PlaceholderAPISecret)
}

type WebhookConfig struct {
	Path            string `mapstructure:"path"`
	Secret          string `mapstructure:"secret"`
	SignatureHeader string `mapstructure:"signature_header"`
	MaxBodySize     int64  `mapstructure:"max_body_size"`

	// VerificationEnabled is derived by Load: false when no real secret is
	// configured, in which case the receiver accepts unsigned requests.
	VerificationEnabled bool `mapstructure:"-"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// env bindings for keys that keep the provider's conventional variable names.
var envBindings = map[string]string{
	"server.port":         "PORT",
	"coinbase.base_url":   "COINBASE_API_URL",
	"coinbase.api_key":    "COINBASE_API_KEY",
	"coinbase.api_secret": "COINBASE_API_SECRET",
	"webhook.secret":      "COINBASE_WEBHOOK_SECRET",
	"logging.level":       "LOG_LEVEL",
	"logging.format":      "LOG_FORMAT",
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("coinhook")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/coinhook")
	}

	setDefaults(v)

	v.SetEnvPrefix("COINHOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, "COINHOOK_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Coinbase.BaseURL = strings.TrimRight(cfg.Coinbase.BaseURL, "/")
	cfg.Webhook.VerificationEnabled = isSet(cfg.Webhook.Secret, PlaceholderWebhookSecret)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.service_name", "coinbase-webhook-handler")

	v.SetDefault("coinbase.base_url", "https://api.coinbase.com/v2")
	v.SetDefault("coinbase.api_key", "")
	v.SetDefault("coinbase.api_secret", "")
	v.SetDefault("coinbase.timeout", 15*time.Second)

	v.SetDefault("webhook.path", "/webhook/coinbase")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.signature_header", "X-Coinbase-Signature")
	v.SetDefault("webhook.max_body_size", 256*1024)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func isSet(value, placeholder string) bool {
	value = strings.TrimSpace(value)
	return value != "" && value != placeholder
}

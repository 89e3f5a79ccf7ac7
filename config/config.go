package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Port        int               `mapstructure:"port"`
	Proxy       string            `mapstructure:"proxy"`
	Log         LogConfig         `mapstructure:"log"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Login       LoginConfig       `mapstructure:"login"`
	Challenge   ChallengeConfig   `mapstructure:"challenge"`
	Captcha     CaptchaConfig     `mapstructure:"captcha"`
	OCR         OCRConfig         `mapstructure:"ocr"`
	GeoIP       GeoIPConfig       `mapstructure:"geoip"`
	Fingerprint FingerprintConfig `mapstructure:"fingerprint"`
	Store       StoreConfig       `mapstructure:"store"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Profile string        `mapstructure:"profile"`
	JA3     string        `mapstructure:"ja3"`
}

type AuthConfig struct {
	URL string `mapstructure:"url"`
}

type LoginConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`
}

type ChallengeConfig struct {
	MaxRounds    int    `mapstructure:"max_rounds"`
	Locale       string `mapstructure:"locale"`
	URL          string `mapstructure:"url"`
	ImageDropURL string `mapstructure:"image_drop_url"`
}

type CaptchaConfig struct {
	MaxDistance int    `mapstructure:"max_distance"`
	DumpDir     string `mapstructure:"dump_dir"`
}

type OCRConfig struct {
	Language string `mapstructure:"language"`
}

type GeoIPConfig struct {
	Database string `mapstructure:"database"`
}

type FingerprintConfig struct {
	Timezone string `mapstructure:"timezone"`
	Language string `mapstructure:"language"`
}

type StoreConfig struct {
	Backend   string        `mapstructure:"backend"`
	File      string        `mapstructure:"file"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisTTL  time.Duration `mapstructure:"redis_ttl"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

var defaults = map[string]interface{}{
	"port":                     2323,
	"proxy":                    "",
	"log.level":                "info",
	"log.file":                 "logs/ogameapi.log",
	"http.timeout":             30 * time.Second,
	"http.profile":             "chrome_124",
	"http.ja3":                 "",
	"auth.url":                 "https://gameforge.com/api/v1/auth/thin/sessions",
	"login.timeout":            2 * time.Minute,
	"login.max_attempts":       3,
	"login.backoff_base":       2 * time.Second,
	"login.backoff_max":        30 * time.Second,
	"challenge.max_rounds":     10,
	"challenge.locale":         "en-GB",
	"challenge.url":            "https://challenge.gameforge.com",
	"challenge.image_drop_url": "https://image-drop-challenge.gameforge.com",
	"captcha.max_distance":     6,
	"captcha.dump_dir":         "",
	"ocr.language":             "eng",
	"geoip.database":           "",
	"fingerprint.timezone":     "Europe/Berlin",
	"fingerprint.language":     "de-DE,de,en-US,en",
	"store.backend":            "file",
	"store.file":               "bearer_tokens.json",
	"store.redis_addr":         "localhost:6379",
	"store.redis_ttl":          24 * time.Hour,
	"ratelimit.rps":            2.0,
	"ratelimit.burst":          5,
}

// Flags registers the command line overrides Load understands.
func Flags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("ogameapi", pflag.ContinueOnError)
	flags.StringP("config", "c", "", "path to a config file (yaml, json or toml)")
	flags.IntP("port", "p", 2323, "port the API listens on")
	flags.String("proxy", "", "default proxy for login tasks")
	flags.String("log-level", "info", "debug, info, warn or error")
	return flags
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("OGAMEAPI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load merges defaults, the config file, environment and flags, later ones win.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := newViper()

	path := ""
	if flags != nil {
		path, _ = flags.GetString("config")
		if err := v.BindPFlag("port", flags.Lookup("port")); err != nil {
			return nil, err
		}
		if err := v.BindPFlag("proxy", flags.Lookup("proxy")); err != nil {
			return nil, err
		}
		if err := v.BindPFlag("log.level", flags.Lookup("log-level")); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config - %s", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config - %s", err)
	}

	if cfg.Login.MaxAttempts < 1 {
		return nil, fmt.Errorf("login.max_attempts must be at least 1")
	}
	if cfg.Challenge.MaxRounds < 1 {
		return nil, fmt.Errorf("challenge.max_rounds must be at least 1")
	}
	return &cfg, nil
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type WS struct {
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

type Room struct {
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	ChatHistory     int           `mapstructure:"chat_history"`
	ChatMaxLength   int           `mapstructure:"chat_max_length"`
	EmptyGrace      time.Duration `mapstructure:"empty_grace"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type Database struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type Redis struct {
	URL string `mapstructure:"url"`
}

type YouTube struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	APIKey       string `mapstructure:"api_key"`
	APIBase      string `mapstructure:"api_base"`
	TokenURL     string `mapstructure:"token_url"`
}

type SoundCloud struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	APIBase      string `mapstructure:"api_base"`
	TokenURL     string `mapstructure:"token_url"`
}

type Providers struct {
	RefreshTimeout time.Duration `mapstructure:"refresh_timeout"`
	ExpirySkew     time.Duration `mapstructure:"expiry_skew"`
	YouTube        YouTube       `mapstructure:"youtube"`
	SoundCloud     SoundCloud    `mapstructure:"soundcloud"`
}

type Config struct {
	Mode          string    `mapstructure:"mode"`
	Port          int       `mapstructure:"port"`
	StaticPath    string    `mapstructure:"static_path"`
	Secret        string    `mapstructure:"secret"`
	SessionSecret string    `mapstructure:"session_secret"`
	CORSOrigins   []string  `mapstructure:"cors_origins"`
	WS            WS        `mapstructure:"ws"`
	Room          Room      `mapstructure:"room"`
	Database      Database  `mapstructure:"database"`
	Redis         Redis     `mapstructure:"redis"`
	Providers     Providers `mapstructure:"providers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "")
	v.SetDefault("session_secret", "")
	v.SetDefault("cors_origins", []string{})

	v.SetDefault("ws.read_limit", 32768)
	v.SetDefault("ws.ping_period", "54s")
	v.SetDefault("ws.send_buffer", 64)
	v.SetDefault("ws.rate_limit", 20)
	v.SetDefault("ws.rate_interval", "1s")

	v.SetDefault("room.tick_interval", "1s")
	v.SetDefault("room.chat_history", 200)
	v.SetDefault("room.chat_max_length", 1000)
	v.SetDefault("room.empty_grace", "5m")
	v.SetDefault("room.cleanup_interval", "1m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:tandem.db?cache=shared")
	v.SetDefault("redis.url", "")

	v.SetDefault("providers.refresh_timeout", "10s")
	v.SetDefault("providers.expiry_skew", "30s")
	v.SetDefault("providers.youtube.client_id", "")
	v.SetDefault("providers.youtube.client_secret", "")
	v.SetDefault("providers.youtube.api_key", "")
	v.SetDefault("providers.youtube.api_base", "https://www.googleapis.com/youtube/v3")
	v.SetDefault("providers.youtube.token_url", "https://accounts.google.com/o/oauth2/token")
	v.SetDefault("providers.soundcloud.client_id", "")
	v.SetDefault("providers.soundcloud.client_secret", "")
	v.SetDefault("providers.soundcloud.api_base", "https://api.soundcloud.com")
	v.SetDefault("providers.soundcloud.token_url", "https://api.soundcloud.com/oauth2/token")
}

// Load reads config/config.<CONFIG_ENV>.yaml over the defaults; TANDEM_*
// environment variables override both (TANDEM_WS_PING_PERIOD for ws.ping_period).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("TANDEM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("db", cfg.Database.Driver).Bool("redis", cfg.Redis.URL != "").Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return fmt.Errorf("config: secret is required (TANDEM_SECRET)")
	}
	if c.SessionSecret == "" {
		c.SessionSecret = c.Secret
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	if c.WS.SendBuffer <= 0 {
		return fmt.Errorf("config: ws.send_buffer must be positive")
	}
	if c.Room.EmptyGrace < 0 || c.Room.CleanupInterval <= 0 {
		return fmt.Errorf("config: room.empty_grace and room.cleanup_interval must be positive")
	}
	return nil
}

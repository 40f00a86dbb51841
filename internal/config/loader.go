package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "EVENTBOARD_"

// Config captures environment driven configuration values for the event board service.
type Config struct {
	HTTPPort  int
	SQLiteDSN string
	LogLevel  string

	JWTSecret string
	TokenTTL  time.Duration

	Timezone string
	Location *time.Location

	GeocoderURL       string
	GeocoderUserAgent string
	GeocoderTimeout   time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	ProposalTTL        time.Duration
	SweepSchedule      string
	LoginRatePerMinute int
}

// SMTPEnabled reports whether outgoing mail is configured.
func (c Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

func defaults() Config {
	return Config{
		HTTPPort:           8080,
		SQLiteDSN:          "data/eventboard.db",
		LogLevel:           "info",
		TokenTTL:           24 * time.Hour,
		Timezone:           "UTC",
		Location:           time.UTC,
		GeocoderURL:        "https://nominatim.openstreetmap.org",
		GeocoderUserAgent:  "event-board/1.0",
		GeocoderTimeout:    10 * time.Second,
		SMTPPort:           587,
		ProposalTTL:        30 * time.Minute,
		SweepSchedule:      "@every 5m",
		LoginRatePerMinute: 10,
	}
}

// Load parses configuration values from the current process environment.
//
// A .env file in the working directory is loaded first without overriding
// variables that are already set. When EVENTBOARD_CONFIG_FILE names a YAML
// file its keys (http_port, jwt_secret, ...) provide values the environment
// has not set. Missing and invalid variables are reported together.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf(".env の読み込みに失敗しました: %w", err)
	}

	file := map[string]string{}
	if path := strings.TrimSpace(os.Getenv(envPrefix + "CONFIG_FILE")); path != "" {
		loaded, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		file = loaded
	}

	lookup := func(name string) string {
		if v := strings.TrimSpace(os.Getenv(envPrefix + name)); v != "" {
			return v
		}
		return strings.TrimSpace(file[strings.ToLower(name)])
	}

	cfg := defaults()
	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 4)

	positiveInt := func(name string, target *int, allowZero bool) {
		value := lookup(name)
		if value == "" {
			return
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 || (n == 0 && !allowZero) {
			invalid = append(invalid, envPrefix+name)
			return
		}
		*target = n
	}
	duration := func(name string, target *time.Duration) {
		value := lookup(name)
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			invalid = append(invalid, envPrefix+name)
			return
		}
		*target = d
	}
	text := func(name string, target *string) {
		if value := lookup(name); value != "" {
			*target = value
		}
	}

	positiveInt("HTTP_PORT", &cfg.HTTPPort, false)
	text("SQLITE_DSN", &cfg.SQLiteDSN)
	text("LOG_LEVEL", &cfg.LogLevel)

	if secret := lookup("JWT_SECRET"); secret == "" {
		missing = append(missing, envPrefix+"JWT_SECRET")
	} else {
		cfg.JWTSecret = secret
	}
	duration("TOKEN_TTL", &cfg.TokenTTL)

	if tz := lookup("TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			invalid = append(invalid, envPrefix+"TIMEZONE")
		} else {
			cfg.Timezone, cfg.Location = tz, loc
		}
	}

	text("GEOCODER_URL", &cfg.GeocoderURL)
	text("GEOCODER_USER_AGENT", &cfg.GeocoderUserAgent)
	duration("GEOCODER_TIMEOUT", &cfg.GeocoderTimeout)

	text("SMTP_HOST", &cfg.SMTPHost)
	positiveInt("SMTP_PORT", &cfg.SMTPPort, false)
	text("SMTP_USERNAME", &cfg.SMTPUsername)
	text("SMTP_PASSWORD", &cfg.SMTPPassword)
	text("SMTP_FROM", &cfg.SMTPFrom)

	duration("PROPOSAL_TTL", &cfg.ProposalTTL)
	text("SWEEP_SCHEDULE", &cfg.SweepSchedule)
	positiveInt("LOGIN_RATE", &cfg.LoginRatePerMinute, true)

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("必須の環境変数が設定されていません: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func readFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルを読み込めません: %w", err)
	}
	values := map[string]string{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("設定ファイルの形式が不正です: %w", err)
	}
	normalized := make(map[string]string, len(values))
	for k, v := range values {
		normalized[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return normalized, nil
}

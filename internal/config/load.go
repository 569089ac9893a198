// Package config loads and validates the bot configuration.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"karmabot/internal/domain"
	"karmabot/internal/pacing"
	logx "karmabot/pkg/logx"
)

const (
	DefaultMaxDailyActions = 50
	DefaultAuthURL         = "https://www.reddit.com"
	DefaultAPIURL          = "https://oauth.reddit.com"
	DefaultRatePerSec      = 1.0
	DefaultBurst           = 5
	DefaultPlatformTimeout = 30 * time.Second
	DefaultGeminiModel     = "gemini-2.5-flash"
	DefaultStatusAddr      = "127.0.0.1:8080"
	DefaultReportSchedule  = "55 23 * * *"
	DefaultChatRatePerSec  = 1
)

// Environment overrides for secrets.
const (
	EnvGeminiAPIKey  = "KARMABOT_GEMINI_API_KEY"
	EnvTelegramToken = "KARMABOT_TELEGRAM_TOKEN"
	EnvStatusToken   = "KARMABOT_STATUS_TOKEN"
)

// Load reads, overrides from the environment, defaults and validates the
// configuration at path. Every failure is a *domain.ConfigurationError.
func Load(path string) (*Config, error) {
	cfg, err := Parse(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse strictly decodes the file at path. YAML is accepted for .yaml and
// .yml extensions.
func Parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigurationError{Err: err}
	}
	return decode(path, b)
}

func decode(path string, b []byte) (*Config, error) {
	jb, format, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, &domain.ConfigurationError{Err: err}
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, &domain.ConfigurationError{Err: fmt.Errorf("%s decode: %w", format, err)}
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			err = errors.New("trailing data")
		}
		return nil, &domain.ConfigurationError{Err: fmt.Errorf("%s decode: %w", format, err)}
	}
	return &cfg, nil
}

// ApplyEnv overrides secrets from the environment when set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvGeminiAPIKey)); v != "" {
		c.TextGen.APIKey = v
	}
	if v := strings.TrimSpace(getenv(EnvTelegramToken)); v != "" {
		c.Telegram.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvStatusToken)); v != "" {
		c.Status.Token = v
	}
}

// ApplyDefaults fills omitted settings.
func (c *Config) ApplyDefaults() {
	if c.MaxDailyActions == 0 {
		c.MaxDailyActions = DefaultMaxDailyActions
	}
	for i := range c.Accounts {
		a := &c.Accounts[i]
		if strings.TrimSpace(a.UserAgent) == "" {
			a.UserAgent = "karmabot/1.0 (by /u/" + a.Username + ")"
		}
	}

	p := &c.Platform
	if p.AuthURL == "" {
		p.AuthURL = DefaultAuthURL
	}
	if p.APIURL == "" {
		p.APIURL = DefaultAPIURL
	}
	if p.RatePerSec == 0 {
		p.RatePerSec = DefaultRatePerSec
	}
	if p.Burst == 0 {
		p.Burst = DefaultBurst
	}

	if c.TextGen.Driver == "" {
		if c.TextGen.APIKey != "" {
			c.TextGen.Driver = "gemini"
		} else {
			c.TextGen.Driver = "echo"
		}
	}
	if c.TextGen.Model == "" {
		c.TextGen.Model = DefaultGeminiModel
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File.Path == "" {
		c.Logging.File.Path = logx.DefaultFilePath
	}
	if c.Logging.Telegram.MinLevel == "" {
		c.Logging.Telegram.MinLevel = "warn"
	}
	if c.Logging.Telegram.RatePerSec == 0 {
		c.Logging.Telegram.RatePerSec = DefaultChatRatePerSec
	}

	if c.Status.Addr == "" {
		c.Status.Addr = DefaultStatusAddr
	}
	if c.Report.Schedule == "" {
		c.Report.Schedule = DefaultReportSchedule
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "none"
	}
	if c.Storage.Path == "" {
		switch c.Storage.Driver {
		case "sqlite", "sqlite3":
			c.Storage.Path = "./data/karmabot.db"
		case "file":
			c.Storage.Path = "./data/karmabot"
		}
	}
}

// Validate reports every invalid setting, joined. Each one is a
// *domain.ConfigurationError.
func (c *Config) Validate() error {
	var errs []error
	bad := func(field string, err error) {
		errs = append(errs, &domain.ConfigurationError{Field: field, Err: err})
	}

	if len(c.Accounts) == 0 {
		bad("accounts", errors.New("at least one account is required"))
	}
	for i, a := range c.Accounts {
		field := fmt.Sprintf("accounts[%d]", i)
		switch {
		case strings.TrimSpace(a.ClientID) == "":
			bad(field+".client_id", errors.New("required"))
		case strings.TrimSpace(a.ClientSecret) == "":
			bad(field+".client_secret", errors.New("required"))
		case strings.TrimSpace(a.Username) == "":
			bad(field+".username", errors.New("required"))
		case a.Password == "":
			bad(field+".password", errors.New("required"))
		}
	}
	if c.MaxDailyActions < 0 {
		bad("max_daily_actions", errors.New("must not be negative"))
	}
	if err := c.Pacing().Validate(); err != nil {
		bad("human_simulation", err)
	}
	if _, err := c.Location(); err != nil {
		bad("timezone", err)
	}

	if c.Platform.RatePerSec < 0 {
		bad("platform.rate_per_sec", errors.New("must be >= 0"))
	}
	if c.Platform.Burst < 0 {
		bad("platform.burst", errors.New("must be >= 0"))
	}
	if _, err := ParseDurationField("platform.timeout", c.Platform.Timeout); err != nil {
		bad("platform.timeout", err)
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		bad("storage.busy_timeout", err)
	}

	switch c.TextGen.Driver {
	case "echo":
	case "gemini":
		if strings.TrimSpace(c.TextGen.APIKey) == "" {
			bad("textgen.api_key", fmt.Errorf("required for gemini (or set %s)", EnvGeminiAPIKey))
		}
	default:
		bad("textgen.driver", fmt.Errorf("unknown driver %q", c.TextGen.Driver))
	}

	switch strings.ToLower(c.Storage.Driver) {
	case "", "none", "file", "sqlite", "sqlite3":
	default:
		bad("storage.driver", fmt.Errorf("unknown driver %q", c.Storage.Driver))
	}

	if c.Report.Enabled {
		if _, err := cron.ParseStandard(c.Report.Schedule); err != nil {
			bad("report.schedule", err)
		}
	}
	if c.Status.Enabled && !IsLoopbackAddr(c.Status.Addr) && strings.TrimSpace(c.Status.Token) == "" {
		bad("status.token", fmt.Errorf("required when listening on non-loopback %q (or set %s)", c.Status.Addr, EnvStatusToken))
	}
	if c.Logging.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == 0) {
		bad("logging.telegram", errors.New("requires telegram.token and telegram.chat_id"))
	}

	return errors.Join(errs...)
}

// Pacing resolves the human-simulation block against the defaults.
func (c *Config) Pacing() pacing.Config {
	p := pacing.DefaultConfig()
	h := c.HumanSimulation
	if h.MinDelayBetweenActions != nil {
		p.MinDelaySeconds = *h.MinDelayBetweenActions
	}
	if h.MaxDelayBetweenActions != nil {
		p.MaxDelaySeconds = *h.MaxDelayBetweenActions
	}
	if h.ActiveHoursStart != nil {
		p.ActiveHoursStart = *h.ActiveHoursStart
	}
	if h.ActiveHoursEnd != nil {
		p.ActiveHoursEnd = *h.ActiveHoursEnd
	}
	if h.WeekendActivityReduction != nil {
		p.WeekendActivityReduction = *h.WeekendActivityReduction
	}
	return p
}

// Location resolves Timezone; empty means time.Local.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// PlatformTimeout returns the HTTP timeout for platform calls.
func (c *Config) PlatformTimeout() time.Duration {
	d, _ := ParseDurationOrDefault("platform.timeout", c.Platform.Timeout, DefaultPlatformTimeout)
	return d
}

// StorageBusyTimeout returns the sqlite busy timeout (0 means driver default).
func (c *Config) StorageBusyTimeout() time.Duration {
	d, _ := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	return d
}

// LogConfig maps the logging block onto logx.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: boolOr(c.Logging.Console, true),
		File: logx.FileConfig{
			Enabled: boolOr(c.Logging.File.Enabled, true),
			Path:    c.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    c.Logging.Telegram.Enabled,
			MinLevel:   c.Logging.Telegram.MinLevel,
			RatePerSec: c.Logging.Telegram.RatePerSec,
		},
	}
}

// Intn is the randomness PickAccount needs; *math/rand.Rand satisfies it.
type Intn interface {
	Intn(n int) int
}

// PickAccount chooses one configured account uniformly at random.
func (c *Config) PickAccount(r Intn) AccountConfig {
	return c.Accounts[r.Intn(len(c.Accounts))]
}

// IsLoopbackAddr reports whether a listen address only binds loopback.
func IsLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

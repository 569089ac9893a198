package config

// Config is the on-disk configuration. It is read once at startup and
// never mutated afterwards.
type Config struct {
	Accounts           []AccountConfig `json:"accounts"`
	RepostCommunities  []string        `json:"repost_communities"`
	CommentCommunities []string        `json:"comment_communities"`
	MaxDailyActions    int             `json:"max_daily_actions,omitempty"`

	HumanSimulation HumanSimulationConfig `json:"human_simulation"`

	// Timezone is an IANA name used for calendar dates and active hours.
	// Empty means the host's local time.
	Timezone string `json:"timezone,omitempty"`

	// DryRun logs reposts and replies instead of sending them.
	DryRun bool `json:"dry_run,omitempty"`

	Platform PlatformConfig `json:"platform"`
	TextGen  TextGenConfig  `json:"textgen"`
	Logging  LoggingConfig  `json:"logging"`
	Telegram TelegramConfig `json:"telegram"`
	Status   StatusConfig   `json:"status"`
	Storage  StorageConfig  `json:"storage"`
	Report   ReportConfig   `json:"report"`
}

// AccountConfig holds script-app OAuth credentials for one platform account.
type AccountConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	UserAgent    string `json:"user_agent,omitempty"`
}

// HumanSimulationConfig controls pacing. Omitted fields take defaults;
// pointers distinguish an explicit 0 from "not set".
type HumanSimulationConfig struct {
	MinDelayBetweenActions   *int     `json:"min_delay_between_actions,omitempty"`
	MaxDelayBetweenActions   *int     `json:"max_delay_between_actions,omitempty"`
	ActiveHoursStart         *int     `json:"active_hours_start,omitempty"`
	ActiveHoursEnd           *int     `json:"active_hours_end,omitempty"` // 1..24, 24 is midnight
	WeekendActivityReduction *float64 `json:"weekend_activity_reduction,omitempty"`
}

// PlatformConfig controls the API client.
//
// Timeout is a Go duration string (e.g. "30s").
type PlatformConfig struct {
	AuthURL    string  `json:"auth_url,omitempty"`
	APIURL     string  `json:"api_url,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
	Timeout    string  `json:"timeout,omitempty"`
}

// TextGenConfig selects the reply generator.
//
// Driver values: "gemini", "echo". Empty picks gemini when an API key is
// present, echo otherwise.
type TextGenConfig struct {
	Driver       string `json:"driver,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
	Model        string `json:"model,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

type LoggingConfig struct {
	Level    string            `json:"level"`
	Console  *bool             `json:"console,omitempty"`
	File     LoggingFileConfig `json:"file"`
	Telegram LoggingChatConfig `json:"telegram"`
}

type LoggingFileConfig struct {
	Enabled *bool  `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// LoggingChatConfig forwards warnings and errors to the Telegram chat.
type LoggingChatConfig struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// StatusConfig controls the read-only HTTP status endpoint.
type StatusConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	// Token is required when Addr is not loopback.
	Token string `json:"token,omitempty"`
}

// StorageConfig controls the activity journal.
//
// Driver values: "file", "sqlite", "none" (default).
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// ReportConfig controls the daily digest. Schedule is a standard
// 5-field cron expression.
type ReportConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
}

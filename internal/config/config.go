package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Meta       MetaConfig       `yaml:"meta"`
	Slack      SlackConfig      `yaml:"slack"`
	Sheets     SheetsConfig     `yaml:"sheets"`
	Thresholds ThresholdConfig  `yaml:"thresholds"`
	Retry      RetryConfig      `yaml:"retry"`
	State      StateConfig      `yaml:"state"`
	Archive    ArchiveConfig    `yaml:"archive"`
}

// ServerConfig holds the approval web server settings.
type ServerConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	PollIntervalMinutes int    `yaml:"poll_interval_minutes"`
}

// MetaConfig holds Meta Marketing API credentials and targets.
type MetaConfig struct {
	AccessToken string   `yaml:"access_token"`
	APIVersion  string   `yaml:"api_version"`
	BaseURL     string   `yaml:"base_url"`
	AccountID   string   `yaml:"account_id"`
	CampaignIDs []string `yaml:"campaign_ids"`
}

// SlackConfig holds chat notification and approval settings.
type SlackConfig struct {
	BotToken     string `yaml:"bot_token"`
	ChannelID    string `yaml:"channel_id"`
	BaseURL      string `yaml:"base_url"`
	ApproveEmoji string `yaml:"approve_emoji"`
	RejectEmoji  string `yaml:"reject_emoji"`
}

// Enabled reports whether Slack notifications are configured.
func (s SlackConfig) Enabled() bool {
	return s.BotToken != "" && s.ChannelID != ""
}

// SheetsConfig holds Google Sheets collaborator settings.
type SheetsConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	SheetName       string `yaml:"sheet_name"`
	ApprovalColumn  string `yaml:"approval_column"`
	SubjectIDColumn string `yaml:"subject_id_column"`
}

// Enabled reports whether the spreadsheet collaborator is configured.
func (s SheetsConfig) Enabled() bool {
	return s.CredentialsFile != "" && s.SpreadsheetID != ""
}

// ThresholdConfig enumerates the metric-evaluation knobs. These are
// explicit configuration, not business logic baked into control flow.
type ThresholdConfig struct {
	ImpressionThreshold int64 `yaml:"impression_threshold"`
	MinAdCount          int   `yaml:"min_ad_count"`
	TopCTRCount         int   `yaml:"top_ctr_count"`
	LookbackDays        int   `yaml:"lookback_days"`
	FullHistoryDays     int   `yaml:"full_history_days"`
}

// RetryConfig holds the resilient API client settings.
type RetryConfig struct {
	MaxAttempts           int `yaml:"max_attempts"`
	BaseDelaySeconds      int `yaml:"base_delay_seconds"`
	SubjectTimeoutSeconds int `yaml:"subject_timeout_seconds"`
}

// BaseDelay returns the backoff unit as a duration.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelaySeconds) * time.Second
}

// SubjectTimeout returns the per-subject wall-clock budget.
func (r RetryConfig) SubjectTimeout() time.Duration {
	return time.Duration(r.SubjectTimeoutSeconds) * time.Second
}

// StateConfig holds the local state-file layout.
type StateConfig struct {
	Dir string `yaml:"dir"`
}

// ArchiveConfig holds optional S3 state archival settings.
type ArchiveConfig struct {
	Enabled  bool   `yaml:"enabled"`
	S3Bucket string `yaml:"s3_bucket"`
	S3Region string `yaml:"s3_region"`
}

// Load reads configuration from a YAML file and applies defaults.
// A missing file is not an error: the tools are commonly driven purely
// by environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.PollIntervalMinutes == 0 {
		cfg.Server.PollIntervalMinutes = 2
	}
	if cfg.Meta.APIVersion == "" {
		cfg.Meta.APIVersion = "v21.0"
	}
	if cfg.Meta.BaseURL == "" {
		cfg.Meta.BaseURL = "https://graph.facebook.com"
	}
	if cfg.Slack.BaseURL == "" {
		cfg.Slack.BaseURL = "https://slack.com/api"
	}
	if cfg.Slack.ApproveEmoji == "" {
		cfg.Slack.ApproveEmoji = "white_check_mark"
	}
	if cfg.Slack.RejectEmoji == "" {
		cfg.Slack.RejectEmoji = "x"
	}
	if cfg.Sheets.SheetName == "" {
		cfg.Sheets.SheetName = "Sheet1"
	}
	if cfg.Sheets.ApprovalColumn == "" {
		cfg.Sheets.ApprovalColumn = "Approval"
	}
	if cfg.Sheets.SubjectIDColumn == "" {
		cfg.Sheets.SubjectIDColumn = "Ad ID"
	}
	if cfg.Thresholds.ImpressionThreshold == 0 {
		cfg.Thresholds.ImpressionThreshold = 500
	}
	if cfg.Thresholds.MinAdCount == 0 {
		cfg.Thresholds.MinAdCount = 4
	}
	if cfg.Thresholds.TopCTRCount == 0 {
		cfg.Thresholds.TopCTRCount = 5
	}
	if cfg.Thresholds.LookbackDays == 0 {
		cfg.Thresholds.LookbackDays = 14
	}
	if cfg.Thresholds.FullHistoryDays == 0 {
		cfg.Thresholds.FullHistoryDays = 730
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelaySeconds == 0 {
		cfg.Retry.BaseDelaySeconds = 60
	}
	if cfg.Retry.SubjectTimeoutSeconds == 0 {
		cfg.Retry.SubjectTimeoutSeconds = 300
	}
	if cfg.State.Dir == "" {
		cfg.State.Dir = "."
	}
	if cfg.Archive.S3Region == "" {
		cfg.Archive.S3Region = "us-west-2"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on a scheduler.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if token := os.Getenv("ACCESS_TOKEN"); token != "" {
		cfg.Meta.AccessToken = token
	} else if token := os.Getenv("META_ACCESS_TOKEN"); token != "" {
		cfg.Meta.AccessToken = token
	}
	if accountID := os.Getenv("ACCOUNT_ID"); accountID != "" {
		cfg.Meta.AccountID = accountID
	}
	if ids := os.Getenv("CAMPAIGN_IDS"); ids != "" {
		cfg.Meta.CampaignIDs = splitIDList(ids)
	}
	if token := os.Getenv("SLACK_BOT_TOKEN"); token != "" {
		cfg.Slack.BotToken = token
	}
	if channel := os.Getenv("SLACK_CHANNEL_ID"); channel != "" {
		cfg.Slack.ChannelID = channel
	}
	if creds := os.Getenv("GOOGLE_CREDENTIALS_FILE"); creds != "" {
		cfg.Sheets.CredentialsFile = creds
	}
	if id := os.Getenv("SPREADSHEET_ID"); id != "" {
		cfg.Sheets.SpreadsheetID = id
	}
	if dir := os.Getenv("STATE_DIR"); dir != "" {
		cfg.State.Dir = dir
	}
	if bucket := os.Getenv("ARCHIVE_S3_BUCKET"); bucket != "" {
		cfg.Archive.S3Bucket = bucket
		cfg.Archive.Enabled = true
	}
	if v := os.Getenv("IMPRESSION_THRESHOLD"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Thresholds.ImpressionThreshold = n
		}
	}
	if v := os.Getenv("MIN_AD_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Thresholds.MinAdCount = n
		}
	}

	return cfg, nil
}

// splitIDList parses comma-separated entity id lists, dropping blanks.
func splitIDList(s string) []string {
	parts := strings.Split(s, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"

meta:
  access_token: "test-token"
  account_id: "123456"
  campaign_ids:
    - "111"
    - "222"

slack:
  bot_token: "xoxb-test"
  channel_id: "C12345"

thresholds:
  impression_threshold: 300
  min_ad_count: 5

retry:
  max_attempts: 5
  base_delay_seconds: 30

state:
  dir: "./state"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "test-token", cfg.Meta.AccessToken)
	assert.Equal(t, []string{"111", "222"}, cfg.Meta.CampaignIDs)
	assert.Equal(t, int64(300), cfg.Thresholds.ImpressionThreshold)
	assert.Equal(t, 5, cfg.Thresholds.MinAdCount)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 30, cfg.Retry.BaseDelaySeconds)
	assert.Equal(t, "./state", cfg.State.Dir)

	// Defaults fill the gaps the file left
	assert.Equal(t, "v21.0", cfg.Meta.APIVersion)
	assert.Equal(t, "https://graph.facebook.com", cfg.Meta.BaseURL)
	assert.Equal(t, "white_check_mark", cfg.Slack.ApproveEmoji)
	assert.Equal(t, "x", cfg.Slack.RejectEmoji)
	assert.Equal(t, 5, cfg.Thresholds.TopCTRCount)
	assert.Equal(t, 730, cfg.Thresholds.FullHistoryDays)
	assert.Equal(t, 300, cfg.Retry.SubjectTimeoutSeconds)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, int64(500), cfg.Thresholds.ImpressionThreshold)
	assert.Equal(t, 4, cfg.Thresholds.MinAdCount)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 60, cfg.Retry.BaseDelaySeconds)
	assert.Equal(t, ".", cfg.State.Dir)
	assert.False(t, cfg.Slack.Enabled())
	assert.False(t, cfg.Sheets.Enabled())
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("ACCESS_TOKEN", "env-token")
	t.Setenv("CAMPAIGN_IDS", " 100, 200 ,,300 ")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-env")
	t.Setenv("SLACK_CHANNEL_ID", "C999")
	t.Setenv("MIN_AD_COUNT", "6")

	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Meta.AccessToken)
	assert.Equal(t, []string{"100", "200", "300"}, cfg.Meta.CampaignIDs)
	assert.True(t, cfg.Slack.Enabled())
	assert.Equal(t, 6, cfg.Thresholds.MinAdCount)
}

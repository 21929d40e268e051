// Package slackapi is the chat collaborator: it posts notifications and
// approval requests, and reads emoji reactions back as approval signals.
package slackapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ignite/ad-autopilot/internal/pkg/httpretry"
)

// ErrMessageNotFound is returned when the referenced message no longer
// exists (deleted, or the channel was purged).
var ErrMessageNotFound = errors.New("slackapi: message not found")

// Config holds Slack client configuration
type Config struct {
	BotToken  string
	ChannelID string
	BaseURL   string
}

// Client is a minimal Slack Web API client
type Client struct {
	baseURL    string
	botToken   string
	channelID  string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a new Slack Web API client
func NewClient(config Config) *Client {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://slack.com/api"
	}
	return &Client{
		baseURL:    baseURL,
		botToken:   config.BotToken,
		channelID:  config.ChannelID,
		httpClient: httpretry.NewRetryClient(&http.Client{Timeout: 30 * time.Second}, 3, 2*time.Second),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// apiResponse is the common Slack envelope; every call reports ok/error.
type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	TS    string `json:"ts"`
	User  string `json:"user"`
	Team  string `json:"team"`

	Message *struct {
		Reactions []struct {
			Name  string `json:"name"`
			Count int    `json:"count"`
		} `json:"reactions"`
	} `json:"message"`
}

func (c *Client) postJSON(ctx context.Context, method string, payload interface{}) (*apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("slackapi: marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("slackapi: creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.botToken)
	req.Header.Set("Content-Type", "application/json")

	return c.execute(req, method)
}

func (c *Client) getForm(ctx context.Context, method string, params url.Values) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+method+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("slackapi: creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.botToken)

	return c.execute(req, method)
}

func (c *Client) execute(req *http.Request, method string) (*apiResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("slackapi: %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("slackapi: parsing %s response: %w", method, err)
	}
	if !out.OK {
		if out.Error == "message_not_found" {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("slackapi: %s failed: %s", method, out.Error)
	}
	return &out, nil
}

// PostMessage posts a plain-text message to the configured channel and
// returns the message timestamp, which acts as the message reference.
func (c *Client) PostMessage(ctx context.Context, text string) (string, error) {
	resp, err := c.postJSON(ctx, "chat.postMessage", map[string]interface{}{
		"channel": c.channelID,
		"text":    text,
	})
	if err != nil {
		return "", err
	}
	return resp.TS, nil
}

// PostBlocks posts a Block Kit message with a plain-text fallback and
// returns the message timestamp.
func (c *Client) PostBlocks(ctx context.Context, blocks []Block, fallback string) (string, error) {
	resp, err := c.postJSON(ctx, "chat.postMessage", map[string]interface{}{
		"channel": c.channelID,
		"blocks":  blocks,
		"text":    fallback,
	})
	if err != nil {
		return "", err
	}
	return resp.TS, nil
}

// GetReactions returns the emoji names currently attached to a message.
// A missing message maps to ErrMessageNotFound so callers can treat the
// approval signal as unknown rather than pending.
func (c *Client) GetReactions(ctx context.Context, messageTS string) ([]string, error) {
	params := url.Values{
		"channel":   {c.channelID},
		"timestamp": {messageTS},
	}
	resp, err := c.getForm(ctx, "reactions.get", params)
	if err != nil {
		return nil, err
	}

	var names []string
	if resp.Message != nil {
		for _, r := range resp.Message.Reactions {
			names = append(names, r.Name)
		}
	}
	return names, nil
}

// AuthTest verifies the bot token and returns the bot user and team.
func (c *Client) AuthTest(ctx context.Context) (user, team string, err error) {
	resp, err := c.getForm(ctx, "auth.test", url.Values{})
	if err != nil {
		return "", "", err
	}
	return resp.User, resp.Team, nil
}

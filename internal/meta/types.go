package meta

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Config holds Meta Marketing API client configuration
type Config struct {
	AccessToken string
	BaseURL     string
	APIVersion  string
	AccountID   string
	MaxAttempts int
	BaseDelay   int // seconds between rate-limited attempts, scaled linearly
}

// Campaign is the campaign-level view used during discovery
type Campaign struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	EffectiveStatus string `json:"effective_status"`
}

// AdSet is the list view of an ad set under a campaign
type AdSet struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	EffectiveStatus string `json:"effective_status"`
}

// AdSetDetail carries everything needed to reconstruct an ad set
type AdSetDetail struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	CampaignID       string          `json:"campaign_id"`
	AccountID        string          `json:"account_id"`
	Targeting        json.RawMessage `json:"targeting,omitempty"`
	BidAmount        int64           `json:"bid_amount,omitempty"`
	BillingEvent     string          `json:"billing_event,omitempty"`
	OptimizationGoal string          `json:"optimization_goal,omitempty"`
	DailyBudget      string          `json:"daily_budget,omitempty"`
	LifetimeBudget   string          `json:"lifetime_budget,omitempty"`
	Status           string          `json:"status,omitempty"`
}

// Ad is the ad-level list view
type Ad struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Status          string       `json:"status"`
	EffectiveStatus string       `json:"effective_status"`
	Creative        *CreativeRef `json:"creative,omitempty"`
}

// CreativeRef references an ad creative
type CreativeRef struct {
	ID           string `json:"id,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// AdDetail is the single-ad view with parent references
type AdDetail struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CampaignID string `json:"campaign_id"`
	AdSetID    string `json:"adset_id"`
}

// Action is one conversion-action bucket from the insights API
type Action struct {
	ActionType string `json:"action_type"`
	Value      string `json:"value"`
}

// Count parses the action value; malformed values count as zero.
func (a Action) Count() int64 {
	n, err := strconv.ParseInt(a.Value, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Insights is a parsed performance snapshot for one entity over a window.
// The Graph API returns all numeric fields as strings.
type Insights struct {
	Impressions int64
	Clicks      int64
	Spend       float64
	CTR         float64
	Actions     []Action
}

type rawInsights struct {
	Impressions string   `json:"impressions"`
	Clicks      string   `json:"clicks"`
	Spend       string   `json:"spend"`
	CTR         string   `json:"ctr"`
	Actions     []Action `json:"actions"`
}

// UnmarshalJSON parses the string-typed numeric fields the platform emits.
func (i *Insights) UnmarshalJSON(data []byte) error {
	var raw rawInsights
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	i.Impressions, _ = strconv.ParseInt(raw.Impressions, 10, 64)
	i.Clicks, _ = strconv.ParseInt(raw.Clicks, 10, 64)
	i.Spend, _ = strconv.ParseFloat(raw.Spend, 64)
	i.CTR, _ = strconv.ParseFloat(raw.CTR, 64)
	i.Actions = raw.Actions
	return nil
}

// TokenInfo is the debug_token view of the current access token.
type TokenInfo struct {
	AppID     string   `json:"app_id"`
	IsValid   bool     `json:"is_valid"`
	Scopes    []string `json:"scopes"`
	ExpiresAt int64    `json:"expires_at"`
}

// HasScope reports whether the token carries the given permission.
func (t *TokenInfo) HasScope(scope string) bool {
	for _, s := range t.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// CreateAdSetParams holds the fields for field-by-field ad set reconstruction
type CreateAdSetParams struct {
	Name             string
	CampaignID       string
	Targeting        json.RawMessage
	BillingEvent     string
	OptimizationGoal string
	DailyBudget      string
	LifetimeBudget   string
	BidAmount        int64
	Status           string
}

// APIError is a platform-rejected request. It is not retried
// automatically; the error payload is preserved for logging.
type APIError struct {
	StatusCode int
	Code       int
	Subcode    int
	Type       string
	Message    string
	FBTraceID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("meta: API error (status %d, code %d): %s", e.StatusCode, e.Code, e.Message)
}

// graphErrorEnvelope is the platform's error payload shape.
type graphErrorEnvelope struct {
	Error *struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		Subcode   int    `json:"error_subcode"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

// Rate-limit error codes documented for the Marketing API: 4 (app-level),
// 17 (user-level), 613 (custom throttling), 80004 (ads management).
var rateLimitCodes = map[int]bool{4: true, 17: true, 613: true, 80004: true}

// IsRateLimitBody reports whether a response body embeds the platform's
// "request limit reached" error. The Graph API signals throttling inside
// an HTTP 400, not only via 429.
func IsRateLimitBody(statusCode int, body []byte) bool {
	if statusCode != 400 {
		return false
	}
	var env graphErrorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return false
	}
	return rateLimitCodes[env.Error.Code]
}

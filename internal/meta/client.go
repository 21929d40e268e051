package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/ad-autopilot/internal/pkg/httpretry"
)

// Client is the Meta Marketing API (Graph API) client
type Client struct {
	baseURL     string
	apiVersion  string
	accessToken string
	accountID   string
	httpClient  httpretry.HTTPDoer
}

// NewClient creates a new Meta Marketing API client
func NewClient(config Config) *Client {
	baseDelay := time.Duration(config.BaseDelay) * time.Second
	return &Client{
		baseURL:     config.BaseURL,
		apiVersion:  config.APIVersion,
		accessToken: config.AccessToken,
		accountID:   config.AccountID,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: 120 * time.Second,
		}, config.MaxAttempts, baseDelay,
			httpretry.WithRateLimitDetector(IsRateLimitBody)),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// AccountID returns the configured ad account id.
func (c *Client) AccountID() string {
	return c.accountID
}

// objectURL builds the versioned URL for a Graph object path.
func (c *Client) objectURL(path string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.apiVersion, path)
}

// doGet performs an authenticated GET and decodes the response into out.
func (c *Client) doGet(ctx context.Context, path string, params url.Values, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", c.accessToken)
	return c.doGetURL(ctx, c.objectURL(path)+"?"+params.Encode(), out)
}

// doGetURL performs a GET against a fully-formed URL. Pagination follows
// the opaque paging.next URLs returned by the platform, which already
// carry auth and field parameters.
func (c *Client) doGetURL(ctx context.Context, fullURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("meta: creating request: %w", err)
	}
	return c.execute(req, out)
}

// doPostForm performs an authenticated form-encoded POST, the write shape
// the Graph API expects.
func (c *Client) doPostForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	if form == nil {
		form = url.Values{}
	}
	form.Set("access_token", c.accessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.objectURL(path),
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("meta: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.execute(req, out)
}

func (c *Client) execute(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("meta: request failed: %w", err)
	}
	defer resp.Body.Close()

	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("meta: reading response: %w", err)
	}

	// The platform embeds errors in 200 bodies for some endpoints, so
	// check the payload regardless of status code.
	var env graphErrorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       env.Error.Code,
			Subcode:    env.Error.Subcode,
			Type:       env.Error.Type,
			Message:    env.Error.Message,
			FBTraceID:  env.Error.FBTraceID,
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("meta: failed to parse response: %w", err)
		}
	}
	return nil
}

// Window is a time-ranged metric source. Lifetime and rolling windows are
// distinct sources and are never merged.
type Window struct {
	Since time.Time
	Until time.Time
}

// RollingWindow returns the last-N-days window ending now.
func RollingWindow(days int) Window {
	now := time.Now()
	return Window{Since: now.AddDate(0, 0, -days), Until: now}
}

// timeRange encodes the window in the Graph API's time_range format.
func (w Window) timeRange() string {
	tr, _ := json.Marshal(map[string]string{
		"since": w.Since.Format("2006-01-02"),
		"until": w.Until.Format("2006-01-02"),
	})
	return string(tr)
}

// GetCampaign retrieves a campaign's name and effective status
func (c *Client) GetCampaign(ctx context.Context, campaignID string) (*Campaign, error) {
	params := url.Values{"fields": {"id,name,effective_status"}}
	var out Campaign
	if err := c.doGet(ctx, campaignID, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAdSet retrieves the full ad set detail needed for reconstruction
func (c *Client) GetAdSet(ctx context.Context, adSetID string) (*AdSetDetail, error) {
	params := url.Values{"fields": {"id,name,campaign_id,account_id,targeting,bid_amount,billing_event,optimization_goal,daily_budget,lifetime_budget,status"}}
	var out AdSetDetail
	if err := c.doGet(ctx, adSetID, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type adSetListPage struct {
	Data   []AdSet `json:"data"`
	Paging *paging `json:"paging"`
}

type adListPage struct {
	Data   []Ad    `json:"data"`
	Paging *paging `json:"paging"`
}

type paging struct {
	Next string `json:"next"`
}

// ListAdSets retrieves all ad sets under a campaign, following pagination
func (c *Client) ListAdSets(ctx context.Context, campaignID string) ([]AdSet, error) {
	params := url.Values{
		"fields": {"id,name,effective_status"},
		"limit":  {"100"},
	}
	params.Set("access_token", c.accessToken)

	var adsets []AdSet
	next := c.objectURL(campaignID+"/adsets") + "?" + params.Encode()
	for next != "" {
		var page adSetListPage
		if err := c.doGetURL(ctx, next, &page); err != nil {
			return nil, err
		}
		adsets = append(adsets, page.Data...)
		next = ""
		if page.Paging != nil {
			next = page.Paging.Next
		}
	}
	return adsets, nil
}

// ListAds retrieves all ads in an ad set, following pagination
func (c *Client) ListAds(ctx context.Context, adSetID string) ([]Ad, error) {
	params := url.Values{
		"fields": {"id,name,status,effective_status,creative"},
		"limit":  {"100"},
	}
	params.Set("access_token", c.accessToken)

	var ads []Ad
	next := c.objectURL(adSetID+"/ads") + "?" + params.Encode()
	for next != "" {
		var page adListPage
		if err := c.doGetURL(ctx, next, &page); err != nil {
			return nil, err
		}
		ads = append(ads, page.Data...)
		next = ""
		if page.Paging != nil {
			next = page.Paging.Next
		}
	}
	return ads, nil
}

type insightsPage struct {
	Data []Insights `json:"data"`
}

// GetInsights retrieves a performance snapshot for any entity (ad or ad
// set) over the given window. An empty data array means the entity never
// delivered; that is a zero snapshot, not an error.
func (c *Client) GetInsights(ctx context.Context, entityID string, window Window) (Insights, error) {
	params := url.Values{
		"fields":     {"impressions,spend,clicks,ctr,actions"},
		"time_range": {window.timeRange()},
	}
	var page insightsPage
	if err := c.doGet(ctx, entityID+"/insights", params, &page); err != nil {
		return Insights{}, err
	}
	if len(page.Data) == 0 {
		return Insights{}, nil
	}
	return page.Data[0], nil
}

// CreateAdSet creates a new ad set under the configured account by
// field-by-field reconstruction. Returns the new ad set id.
func (c *Client) CreateAdSet(ctx context.Context, p CreateAdSetParams) (string, error) {
	if p.CampaignID == "" {
		return "", fmt.Errorf("meta: CreateAdSet requires a campaign id")
	}
	if c.accountID == "" {
		return "", fmt.Errorf("meta: CreateAdSet requires an account id")
	}

	form := url.Values{}
	form.Set("name", p.Name)
	form.Set("campaign_id", p.CampaignID)
	if len(p.Targeting) > 0 {
		form.Set("targeting", string(p.Targeting))
	}
	if p.BillingEvent != "" {
		form.Set("billing_event", p.BillingEvent)
	} else {
		form.Set("billing_event", "IMPRESSIONS")
	}
	if p.OptimizationGoal != "" {
		form.Set("optimization_goal", p.OptimizationGoal)
	} else {
		form.Set("optimization_goal", "REACH")
	}
	if p.DailyBudget != "" {
		form.Set("daily_budget", p.DailyBudget)
	} else if p.LifetimeBudget != "" {
		form.Set("lifetime_budget", p.LifetimeBudget)
	}
	if p.BidAmount > 0 {
		form.Set("bid_amount", strconv.FormatInt(p.BidAmount, 10))
	}
	if p.Status != "" {
		form.Set("status", p.Status)
	} else {
		form.Set("status", "ACTIVE")
	}

	var out struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("act_%s/adsets", c.accountID)
	if err := c.doPostForm(ctx, path, form, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CopyAd duplicates an ad into the target ad set via the platform's
// native copy endpoint, in active state. Returns the new ad id.
func (c *Client) CopyAd(ctx context.Context, adID, targetAdSetID string) (string, error) {
	form := url.Values{
		"adset_id":      {targetAdSetID},
		"status_option": {"ACTIVE"},
	}
	var out struct {
		CopiedAdID string `json:"copied_ad_id"`
	}
	if err := c.doPostForm(ctx, adID+"/copies", form, &out); err != nil {
		return "", err
	}
	return out.CopiedAdID, nil
}

// UpdateStatus mutates the status field of any entity (ad or ad set)
func (c *Client) UpdateStatus(ctx context.Context, entityID, status string) error {
	form := url.Values{"status": {status}}
	return c.doPostForm(ctx, entityID, form, nil)
}

// AdStatus is the pair of status fields used for pause idempotence checks
type AdStatus struct {
	Status          string `json:"status"`
	EffectiveStatus string `json:"effective_status"`
}

// Effective returns the effective status, falling back to the configured
// status when the platform omits it.
func (s AdStatus) Effective() string {
	if s.EffectiveStatus != "" {
		return s.EffectiveStatus
	}
	return s.Status
}

// GetAdStatus retrieves the current status fields of an ad
func (c *Client) GetAdStatus(ctx context.Context, adID string) (AdStatus, error) {
	params := url.Values{"fields": {"status,effective_status"}}
	var out AdStatus
	if err := c.doGet(ctx, adID, params, &out); err != nil {
		return AdStatus{}, err
	}
	return out, nil
}

// GetAdDetails retrieves an ad's name and parent references
func (c *Client) GetAdDetails(ctx context.Context, adID string) (*AdDetail, error) {
	params := url.Values{"fields": {"id,name,campaign_id,adset_id"}}
	var out AdDetail
	if err := c.doGet(ctx, adID, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetName retrieves just the name of any entity
func (c *Client) GetName(ctx context.Context, entityID string) (string, error) {
	params := url.Values{"fields": {"name"}}
	var out struct {
		Name string `json:"name"`
	}
	if err := c.doGet(ctx, entityID, params, &out); err != nil {
		return "", err
	}
	return out.Name, nil
}

// GetCreativeThumbnail retrieves the creative thumbnail URL for an ad.
// Returns an empty string when the ad has no creative image.
func (c *Client) GetCreativeThumbnail(ctx context.Context, adID string) (string, error) {
	params := url.Values{"fields": {"creative{thumbnail_url}"}}
	var out struct {
		Creative CreativeRef `json:"creative"`
	}
	if err := c.doGet(ctx, adID, params, &out); err != nil {
		return "", err
	}
	return out.Creative.ThumbnailURL, nil
}

// DebugToken inspects the current access token's validity and scopes
func (c *Client) DebugToken(ctx context.Context) (*TokenInfo, error) {
	params := url.Values{"input_token": {c.accessToken}}
	var out struct {
		Data TokenInfo `json:"data"`
	}
	if err := c.doGet(ctx, "debug_token", params, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// Package sheets talks to the Google Sheets REST API for the
// spreadsheet-backed approval channel: candidate rows are appended for
// reviewers, and the approval column is read back on execution runs.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/ignite/ad-autopilot/internal/pkg/httpretry"
)

const spreadsheetScope = "https://www.googleapis.com/auth/spreadsheets"

// ErrNotConfigured is returned when the client is used without
// credentials or a spreadsheet id.
var ErrNotConfigured = errors.New("sheets: client not configured")

// Config holds Google Sheets client configuration
type Config struct {
	CredentialsFile string
	SpreadsheetID   string
	SheetName       string
	BaseURL         string
}

// Client is a minimal Sheets v4 values client
type Client struct {
	baseURL       string
	spreadsheetID string
	sheetName     string
	httpClient    httpretry.HTTPDoer
}

// NewClient creates a Sheets client authenticated with a service
// account JSON key. The key file never leaves the process.
func NewClient(ctx context.Context, config Config) (*Client, error) {
	if config.CredentialsFile == "" || config.SpreadsheetID == "" {
		return nil, ErrNotConfigured
	}

	keyJSON, err := os.ReadFile(config.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sheets: reading credentials file: %w", err)
	}
	jwtConfig, err := google.JWTConfigFromJSON(keyJSON, spreadsheetScope)
	if err != nil {
		return nil, fmt.Errorf("sheets: parsing credentials: %w", err)
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://sheets.googleapis.com/v4/spreadsheets"
	}
	sheetName := config.SheetName
	if sheetName == "" {
		sheetName = "Sheet1"
	}

	authClient := oauth2.NewClient(ctx, jwtConfig.TokenSource(ctx))
	authClient.Timeout = 30 * time.Second

	return &Client{
		baseURL:       baseURL,
		spreadsheetID: config.SpreadsheetID,
		sheetName:     sheetName,
		httpClient:    httpretry.NewRetryClient(authClient, 3, 2*time.Second),
	}, nil
}

// NewUnauthenticatedClient builds a client without OAuth, for tests
// against a local server.
func NewUnauthenticatedClient(config Config) *Client {
	sheetName := config.SheetName
	if sheetName == "" {
		sheetName = "Sheet1"
	}
	return &Client{
		baseURL:       config.BaseURL,
		spreadsheetID: config.SpreadsheetID,
		sheetName:     sheetName,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

type valueRange struct {
	Range  string     `json:"range,omitempty"`
	Values [][]string `json:"values"`
}

type sheetsError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sheets: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sheets: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr sheetsError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("sheets: API error %d: %s", apiErr.Error.Code, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("sheets: unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

// ReadAllRows returns every populated row of the configured sheet,
// including the header row.
func (c *Client) ReadAllRows(ctx context.Context) ([][]string, error) {
	rangeRef := url.PathEscape(c.sheetName)
	endpoint := fmt.Sprintf("%s/%s/values/%s", c.baseURL, c.spreadsheetID, rangeRef)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("sheets: creating request: %w", err)
	}
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var vr valueRange
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, fmt.Errorf("sheets: parsing values: %w", err)
	}
	return vr.Values, nil
}

// AppendRows appends rows after the last populated row of the sheet.
func (c *Client) AppendRows(ctx context.Context, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	payload, err := json.Marshal(valueRange{Values: rows})
	if err != nil {
		return fmt.Errorf("sheets: marshaling rows: %w", err)
	}

	rangeRef := url.PathEscape(c.sheetName)
	endpoint := fmt.Sprintf("%s/%s/values/%s:append?valueInputOption=USER_ENTERED", c.baseURL, c.spreadsheetID, rangeRef)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sheets: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req)
	return err
}

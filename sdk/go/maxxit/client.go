package maxxit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the Maxxit onboarding REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Account mirrors the linked external messaging account returned by the API.
type Account struct {
	ID             string `json:"id"`
	TelegramUserID string `json:"telegram_user_id,omitempty"`
	Username       string `json:"telegram_username,omitempty"`
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
}

// AgentIdentity is the response of the generate-agent operation.
type AgentIdentity struct {
	AgentAddress string `json:"agentAddress"`
	IsNew        bool   `json:"isNew"`
}

// LinkOffer is the response of the generate-link operation.
type LinkOffer struct {
	AlreadyLinked bool     `json:"alreadyLinked"`
	LinkCode      string   `json:"linkCode,omitempty"`
	DeepLink      string   `json:"deepLink,omitempty"`
	BotUsername   string   `json:"botUsername,omitempty"`
	TelegramUser  *Account `json:"telegramUser,omitempty"`
}

// LinkStatus is the response of the poll-link-status operation.
type LinkStatus struct {
	Connected    bool     `json:"connected"`
	TelegramUser *Account `json:"telegramUser,omitempty"`
}

// ConfirmResult is the response of the confirm-link operation.
type ConfirmResult struct {
	Success bool   `json:"success"`
	Wallet  string `json:"wallet"`
}

// AgentInfo describes the activated trading agent.
type AgentInfo struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Deployment describes where the agent identity lives.
type Deployment struct {
	Address string `json:"address"`
	Network string `json:"network"`
}

// SetupResult is the response of the finalize-setup operation.
type SetupResult struct {
	Success      bool        `json:"success"`
	Agent        *AgentInfo  `json:"agent"`
	Deployment   *Deployment `json:"deployment"`
	AgentAddress string      `json:"agentAddress"`
}

// SetupStatus is the response of the check-setup operation.
type SetupStatus struct {
	IsSetupComplete    bool               `json:"isSetupComplete"`
	Agent              *AgentInfo         `json:"agent,omitempty"`
	TelegramUser       *Account           `json:"telegramUser,omitempty"`
	AgentAddress       string             `json:"agentAddress,omitempty"`
	TradingPreferences map[string]float64 `json:"tradingPreferences,omitempty"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("maxxit api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("maxxit api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the onboarding API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// GenerateAgent provisions (or returns) the agent identity for a wallet.
func (c *Client) GenerateAgent(ctx context.Context, walletAddress string) (AgentIdentity, error) {
	var identity AgentIdentity
	payload := map[string]string{"walletAddress": walletAddress}
	if err := c.post(ctx, "/api/v1/onboarding/generate-agent", payload, &identity); err != nil {
		return AgentIdentity{}, err
	}
	return identity, nil
}

// GenerateLink requests a one-time link code for the wallet.
func (c *Client) GenerateLink(ctx context.Context, walletAddress string) (LinkOffer, error) {
	var offer LinkOffer
	payload := map[string]string{"walletAddress": walletAddress}
	if err := c.post(ctx, "/api/v1/onboarding/generate-link", payload, &offer); err != nil {
		return LinkOffer{}, err
	}
	return offer, nil
}

// ConfirmLink reports an out-of-band confirmation for a link code. It exists
// for demo deployments; production confirmations arrive through the bot.
func (c *Client) ConfirmLink(ctx context.Context, linkCode string, account Account) (ConfirmResult, error) {
	var result ConfirmResult
	payload := struct {
		LinkCode     string  `json:"linkCode"`
		TelegramUser Account `json:"telegramUser"`
	}{LinkCode: linkCode, TelegramUser: account}
	if err := c.post(ctx, "/api/v1/onboarding/confirm-link", payload, &result); err != nil {
		return ConfirmResult{}, err
	}
	return result, nil
}

// PollLinkStatus checks whether the wallet has been linked yet. The code is
// optional and only meaningful on demo deployments with auto-confirmation.
func (c *Client) PollLinkStatus(ctx context.Context, walletAddress, linkCode string) (LinkStatus, error) {
	endpoint := "/api/v1/onboarding/poll-link-status?wallet=" + url.QueryEscape(walletAddress)
	if linkCode != "" {
		endpoint += "&code=" + url.QueryEscape(linkCode)
	}
	var status LinkStatus
	if err := c.get(ctx, endpoint, &status); err != nil {
		return LinkStatus{}, err
	}
	return status, nil
}

// FinalizeSetup submits trading preferences and completes onboarding.
func (c *Client) FinalizeSetup(ctx context.Context, walletAddress, accountRef string, preferences map[string]float64) (SetupResult, error) {
	var result SetupResult
	payload := struct {
		WalletAddress      string             `json:"walletAddress"`
		AccountRef         string             `json:"accountRef,omitempty"`
		TradingPreferences map[string]float64 `json:"tradingPreferences"`
	}{WalletAddress: walletAddress, AccountRef: accountRef, TradingPreferences: preferences}
	if err := c.post(ctx, "/api/v1/onboarding/finalize-setup", payload, &result); err != nil {
		return SetupResult{}, err
	}
	return result, nil
}

// CheckSetup fetches the onboarding completion state for a wallet.
func (c *Client) CheckSetup(ctx context.Context, walletAddress string) (SetupStatus, error) {
	endpoint := "/api/v1/onboarding/check-setup?wallet=" + url.QueryEscape(walletAddress)
	var status SetupStatus
	if err := c.get(ctx, endpoint, &status); err != nil {
		return SetupStatus{}, err
	}
	return status, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr APIError
		apiErr.StatusCode = resp.StatusCode
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr}); err != nil {
				// try direct decode into apiErr if server returned flat payload
				_ = json.Unmarshal(data, &apiErr)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

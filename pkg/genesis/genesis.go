package genesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/genesismon/genesismon/pkg/log"
)

const (
	defaultAuthBaseURL = "https://auth.genesisenergy.co.nz/auth.genesisenergy.co.nz"
	defaultDataBaseURL = "https://web-api.genesisenergy.co.nz"

	genesisClientID = "8e41676f-7601-4490-9786-85d74f387f47"
	redirectURI     = "https://myaccount.genesisenergy.co.nz/auth/redirect"
	policyName      = "B2C_1A_signin"
	oauthScope      = "openid offline_access " + genesisClientID
	brandID         = "GENE"

	// tokens are renewed this far before they actually expire
	tokenExpiryBuffer = 5 * time.Minute
)

// Client talks to the Genesis Energy consumer portal. There is no published
// API: signing in emulates the myaccount browser flow against the B2C
// identity host, and data calls carry the resulting bearer token to the
// private web API.
type Client struct {
	client      *http.Client
	authBaseURL string
	dataBaseURL string
	email       string
	password    string
	userAgent   string
	timeout     time.Duration

	// session state, guarded by mu; tokens are never persisted so every
	// process start begins with a fresh login
	mu                 sync.RWMutex
	accessToken        string
	accessTokenExpiry  time.Time
	refreshToken       string
	refreshTokenExpiry time.Time
}

// flexInt tolerates TTL fields that the identity host returns either as
// bare numbers or as quoted strings depending on the flow.
type flexInt int64

func (n *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*n = flexInt(v)
	return nil
}

type tokenResult struct {
	AccessToken           string  `json:"access_token"`
	ExpiresIn             flexInt `json:"expires_in"`
	RefreshToken          string  `json:"refresh_token"`
	RefreshTokenExpiresIn flexInt `json:"refresh_token_expires_in"`
}

// EnsureValidToken guarantees a usable access token is cached, refreshing
// or logging in as needed. Data calls run this themselves before every
// request; the poller also calls it up front so a dead session fails one
// cycle instead of twenty separate calls.
func (c *Client) EnsureValidToken(ctx context.Context) error {
	_, err := c.ensureValidToken(ctx)
	return err
}

func (c *Client) ensureValidToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.tokenUsable() {
		token := c.accessToken
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// whoever won the lock may have already renewed the session
	if c.tokenUsable() {
		return c.accessToken, nil
	}

	log.Ctx(ctx).DebugContext(ctx, "access token missing or about to expire")

	if c.refreshUsable() {
		switch err := c.refreshAccessToken(ctx); {
		case err == nil:
			if c.tokenUsable() {
				return c.accessToken, nil
			}
			log.Ctx(ctx).WarnContext(ctx, "refreshed access token is not usable, logging in")
		case IsConnectError(err):
			// the network itself is down so a full login is doomed too
			return "", err
		default:
			log.Ctx(ctx).WarnContext(ctx, "token refresh failed, logging in", slog.Any("error", err))
		}
	}

	if err := c.login(ctx); err != nil {
		return "", err
	}
	if !c.tokenUsable() {
		return "", &AuthError{Reason: "token invalid immediately after login"}
	}
	return c.accessToken, nil
}

// tokenUsable reports whether the cached access token is good for at least
// the renewal buffer. Callers must hold c.mu.
func (c *Client) tokenUsable() bool {
	return c.accessToken != "" && time.Now().Add(tokenExpiryBuffer).Before(c.accessTokenExpiry)
}

// refreshUsable reports whether the refresh token is worth trying. An
// unknown expiry counts as usable; the token endpoint is the only real
// authority and a 400/401 from it clears the token. Callers must hold c.mu.
func (c *Client) refreshUsable() bool {
	if c.refreshToken == "" {
		return false
	}
	return c.refreshTokenExpiry.IsZero() || time.Now().Before(c.refreshTokenExpiry)
}

// refreshAccessToken exchanges the cached refresh token for a new access
// token. Must be called with c.mu held. A 400/401 answer means the refresh
// token itself is dead and it is dropped so the caller falls back to a full
// login; transport failures come back as ConnectError so the caller can
// skip that doomed login.
func (c *Client) refreshAccessToken(ctx context.Context) error {
	log.Ctx(ctx).DebugContext(ctx, "refreshing access token")

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", genesisClientID)
	form.Set("scope", oauthScope)
	form.Set("redirect_uri", redirectURI)
	form.Set("refresh_token", c.refreshToken)

	u := c.authBaseURL + "/oauth2/v2.0/token?p=" + policyName
	req, err := http.NewRequestWithContext(ctx, "POST", u, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return &ConnectError{Reason: "token refresh", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			// the refresh token itself was rejected, drop it so the caller
			// goes straight to a full login next time
			log.Ctx(ctx).InfoContext(ctx, "refresh token rejected", slog.Int("status", resp.StatusCode))
			c.refreshToken = ""
			c.refreshTokenExpiry = time.Time{}
		}
		return fmt.Errorf("token refresh status %d", resp.StatusCode)
	}

	var res tokenResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return fmt.Errorf("failed to decode token refresh response: %w", err)
	}
	if res.AccessToken == "" || res.ExpiresIn == 0 {
		return fmt.Errorf("token refresh response missing access_token or expires_in")
	}

	now := time.Now()
	c.accessToken = res.AccessToken
	c.accessTokenExpiry = now.Add(time.Duration(res.ExpiresIn) * time.Second)
	if res.RefreshToken != "" && res.RefreshToken != c.refreshToken {
		// rotation: the old refresh token is dead the moment a new one
		// arrives
		c.refreshToken = res.RefreshToken
		if res.RefreshTokenExpiresIn > 0 {
			c.refreshTokenExpiry = now.Add(time.Duration(res.RefreshTokenExpiresIn) * time.Second)
		}
		log.Ctx(ctx).DebugContext(ctx, "refresh token rotated")
	}
	log.Ctx(ctx).DebugContext(ctx, "access token refreshed", slog.Time("expiry", c.accessTokenExpiry))
	return nil
}

func (c *Client) newDataGetRequest(ctx context.Context, endpoint string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(c.dataBaseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}
	u.RawQuery = params.Encode()
	return http.NewRequestWithContext(ctx, "GET", u.String(), nil)
}

func (c *Client) newDataPostJSONRequest(ctx context.Context, endpoint string, data interface{}) (*http.Request, error) {
	u, err := url.Parse(c.dataBaseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// doCall performs one authenticated call against the data API and returns
// the raw JSON body (nil for 204 or an empty body). A valid token is
// ensured first and that failure comes back unchanged. There is no retry
// here: a 401 clears the cached token so the NEXT call re-authenticates,
// while this one reports the failure.
func (c *Client) doCall(req *http.Request) (json.RawMessage, error) {
	ctx := req.Context()

	token, err := c.ensureValidToken(ctx)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("brand-id", brandID)

	log.Ctx(ctx).DebugContext(ctx, "genesis api call", slog.String("method", req.Method), slog.String("path", req.URL.Path))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ConnectError{Reason: fmt.Sprintf("%s %s", req.Method, req.URL.Path), Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		log.Ctx(ctx).InfoContext(ctx, "api rejected access token", slog.String("path", req.URL.Path))
		c.mu.Lock()
		// only drop the token we actually sent, a concurrent refresh may
		// have replaced it already
		if c.accessToken == token {
			c.accessToken = ""
			c.accessTokenExpiry = time.Time{}
		}
		c.mu.Unlock()
		return nil, &AuthError{Reason: fmt.Sprintf("unauthorized for %s", req.URL.Path)}
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectError{Reason: fmt.Sprintf("reading %s response", req.URL.Path), Err: err}
	}
	if len(body) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, &ConnectError{Reason: fmt.Sprintf("invalid json from %s", req.URL.Path)}
	}
	return json.RawMessage(body), nil
}

type usageQuery struct {
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	IntervalType string `json:"intervalType"`
}

// GetElectricityUsage returns hourly electricity usage for the window
// ending today and starting days days back.
func (c *Client) GetElectricityUsage(ctx context.Context, days int) (json.RawMessage, error) {
	now := time.Now()
	return c.GetElectricityUsageRange(ctx, now.AddDate(0, 0, -days), now)
}

// GetElectricityUsageRange returns hourly electricity usage between two
// dates (whole days).
func (c *Client) GetElectricityUsageRange(ctx context.Context, start, end time.Time) (json.RawMessage, error) {
	payload := usageQuery{
		StartDate:    start.Format(time.DateOnly),
		EndDate:      end.Format(time.DateOnly),
		IntervalType: "HOURLY",
	}
	req, err := c.newDataPostJSONRequest(ctx, "v2/private/electricity/site-usage", payload)
	if err != nil {
		return nil, err
	}
	return c.doCall(req)
}

// GetGasUsage returns hourly natural gas usage for the window ending today
// and starting days days back.
func (c *Client) GetGasUsage(ctx context.Context, days int) (json.RawMessage, error) {
	now := time.Now()
	return c.GetGasUsageRange(ctx, now.AddDate(0, 0, -days), now)
}

// GetGasUsageRange returns hourly natural gas usage between two dates
// (whole days). Unlike electricity this endpoint takes its window as query
// parameters.
func (c *Client) GetGasUsageRange(ctx context.Context, start, end time.Time) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("startDate", start.Format(time.DateOnly))
	params.Set("endDate", end.Format(time.DateOnly))
	params.Set("intervalType", "HOURLY")
	req, err := c.newDataGetRequest(ctx, "v2/private/naturalgas/advanced/usage", params)
	if err != nil {
		return nil, err
	}
	return c.doCall(req)
}

// GetEVPlanUsage returns EV plan usage. Accounts without an EV plan get an
// error from the portal, which callers generally treat as expected.
func (c *Client) GetEVPlanUsage(ctx context.Context) (json.RawMessage, error) {
	req, err := c.newDataGetRequest(ctx, "v2/private/ev-plan-usage", nil)
	if err != nil {
		return nil, err
	}
	return c.doCall(req)
}

// GetPowerShoutInfo returns Power Shout eligibility and account info.
func (c *Client) GetPowerShoutInfo(ctx context.Context) (json.RawMessage, error) {
	return c.getData(ctx, "v2/private/powershoutcurrency")
}

// GetPowerShoutBalance returns the current Power Shout hour balance.
func (c *Client) GetPowerShoutBalance(ctx context.Context) (json.RawMessage, error) {
	return c.getData(ctx, "v2/private/powershoutcurrency/balance")
}

// GetPowerShoutBookings returns past and upcoming Power Shout bookings.
func (c *Client) GetPowerShoutBookings(ctx context.Context) (json.RawMessage, error) {
	return c.getData(ctx, "v2/private/powershoutcurrency/bookings")
}

// GetPowerShoutOffers returns currently available Power Shout offers.
func (c *Client) GetPowerShoutOffers(ctx context.Context) (json.RawMessage, error) {
	return c.getData(ctx, "v2/private/powershoutcurrency/offers")
}

// GetPowerShoutExpiringHours returns Power Shout hours that are about to
// expire.
func (c *Client) GetPowerShoutExpiringHours(ctx context.Context) (json.RawMessage, error) {
	return c.getData(ctx, "v2/private/powershoutcurrency/expiringHours")
}

type bookingRequest struct {
	StartDate      string `json:"startDate"`
	Duration       int    `json:"duration"`
	CustomerNumber string `json:"customerNumber"`
	AccountNumber  string `json:"accountNumber"`
	ICP            string `json:"icp"`
}

// BookPowerShout reserves a free-power window of durationHours starting at
// start. The customer number, account number and ICP identify which supply
// point the hours are spent on.
func (c *Client) BookPowerShout(ctx context.Context, start time.Time, durationHours int, customerNumber, accountNumber, icp string) error {
	body := bookingRequest{
		StartDate:      start.UTC().Format(time.RFC3339),
		Duration:       durationHours,
		CustomerNumber: customerNumber,
		AccountNumber:  accountNumber,
		ICP:            icp,
	}
	req, err := c.newDataPostJSONRequest(ctx, "v2/private/powershoutcurrency/book", body)
	if err != nil {
		return err
	}
	_, err = c.doCall(req)
	if err != nil {
		return err
	}
	log.Ctx(ctx).InfoContext(ctx, "powershout booked",
		slog.Time("start", start),
		slog.Int("durationHours", durationHours),
		slog.String("icp", icp),
	)
	return nil
}

// GetBillingPlans returns the plans attached to the account.
func (c *Client) GetBillingPlans(ctx context.Context) (json.RawMessage, error) {
	return c.getData(ctx, "v2/private/billing/plans")
}

// GetNextBestAction returns the portal's suggested next action for the
// account.
func (c *Client) GetNextBestAction(ctx context.Context) (json.RawMessage, error) {
	return c.getData(ctx, "v2/private/next-best-action")
}

// GetGenerationMix returns the current national generation mix.
func (c *Client) GetGenerationMix(ctx context.Context) (json.RawMessage, error) {
	return c.getData(ctx, "v2/private/generation-mix")
}

// GetWidgetHero returns the dashboard hero widget payload.
func (c *Client) GetWidgetHero(ctx context.Context) (json.RawMessage, error) {
	return c.getData(ctx, "v2/private/widget/hero")
}

// GetWidgetBillSummary returns the bill summary widget payload.
func (c *Client) GetWidgetBillSummary(ctx context.Context) (json.RawMessage, error) {
	return c.getData(ctx, "v2/private/widget/bill-summary")
}

// GetWidgetPropertyList returns the property list widget payload.
func (c *Client) GetWidgetPropertyList(ctx context.Context) (json.RawMessage, error) {
	return c.getData(ctx, "v2/private/widget/property-list")
}

// GetWidgetPropertySwitcher returns the property switcher widget payload.
func (c *Client) GetWidgetPropertySwitcher(ctx context.Context) (json.RawMessage, error) {
	return c.getData(ctx, "v2/private/widget/property-switcher")
}

// GetWidgetSidekick returns the sidekick widget payload.
func (c *Client) GetWidgetSidekick(ctx context.Context) (json.RawMessage, error) {
	return c.getData(ctx, "v2/private/widget/sidekick")
}

// GetWidgetDashboardPowerShout returns the dashboard Power Shout widget
// payload.
func (c *Client) GetWidgetDashboardPowerShout(ctx context.Context) (json.RawMessage, error) {
	return c.getData(ctx, "v2/private/widget/dashboard-powershout")
}

// GetWidgetEcoTracker returns the eco tracker widget payload.
func (c *Client) GetWidgetEcoTracker(ctx context.Context) (json.RawMessage, error) {
	return c.getData(ctx, "v2/private/widget/eco-tracker")
}

// GetWidgetDashboardList returns the dashboard list widget payload.
func (c *Client) GetWidgetDashboardList(ctx context.Context) (json.RawMessage, error) {
	return c.getData(ctx, "v2/private/widget/dashboard-list")
}

// GetWidgetActionTileList returns the action tile list widget payload.
func (c *Client) GetWidgetActionTileList(ctx context.Context) (json.RawMessage, error) {
	return c.getData(ctx, "v2/private/widget/action-tile-list")
}

func (c *Client) getData(ctx context.Context, endpoint string) (json.RawMessage, error) {
	req, err := c.newDataGetRequest(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.doCall(req)
}

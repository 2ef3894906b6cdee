package genesis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/genesismon/genesismon/pkg/common"
	"github.com/genesismon/genesismon/pkg/log"
)

// invalidCredentialsMarker is the string the password step embeds in its
// error page when the credentials themselves are wrong, as opposed to the
// flow breaking for some other reason.
const invalidCredentialsMarker = "The username or password provided in the request are invalid"

// pageSettings is the JSON blob the authorize page assigns to a SETTINGS
// variable in an inline script. Only two of its fields matter to us.
type pageSettings struct {
	TransID string `json:"transId"`
	CSRF    string `json:"csrf"`
}

// extractSettings scans an authorize-page body line by line for the
// SETTINGS assignment and decodes it.
func extractSettings(page string) (pageSettings, bool) {
	for _, line := range strings.Split(page, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, "var SETTINGS = ") || !strings.HasSuffix(line, ";") {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(line, "var SETTINGS = "), ";")
		var s pageSettings
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return pageSettings{}, false
		}
		return s, true
	}
	return pageSettings{}, false
}

// login performs the interactive sign-in flow against the B2C policy and
// stores the resulting token pair. Must be called with c.mu held.
//
// Six steps, each feeding state to the next: the authorize page yields a
// transaction id and csrf token, the email and password are submitted as
// separate self-asserted steps (with a rotated csrf cookie in between), the
// combined-signin confirmation 302s back to the app with an authorization
// code, and the code is exchanged for tokens. Every attempt runs on its own
// short-lived client with a fresh cookie jar so state from a failed attempt
// never leaks into the next one.
func (c *Client) login(ctx context.Context) error {
	log.Ctx(ctx).InfoContext(ctx, "logging in to genesis")

	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	lc := common.BrowserHTTPClient(c.timeout, c.userAgent)
	lc.Jar = jar

	// step 1: fetch the authorize page and pull the transaction id and
	// csrf token out of its embedded settings
	params := url.Values{}
	params.Set("p", policyName)
	params.Set("client_id", genesisClientID)
	params.Set("response_type", "code")
	params.Set("response_mode", "query")
	params.Set("scope", oauthScope)
	params.Set("redirect_uri", redirectURI)

	req, err := http.NewRequestWithContext(ctx, "GET", c.authBaseURL+"/oauth2/v2.0/authorize?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := lc.Do(req)
	if err != nil {
		return &ConnectError{Reason: "authorize page", Err: err}
	}
	page, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return &ConnectError{Reason: "reading authorize page", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return &ConnectError{Reason: fmt.Sprintf("authorize page status %d", resp.StatusCode)}
	}
	settings, ok := extractSettings(string(page))
	if !ok {
		return &ConnectError{Reason: "authorize page missing settings payload"}
	}
	transID, csrf := settings.TransID, settings.CSRF
	if transID == "" || csrf == "" {
		return &ConnectError{Reason: "authorize page settings missing transId or csrf"}
	}

	// step 2: submit the email
	form := url.Values{}
	form.Set("request_type", "RESPONSE")
	form.Set("email", c.email)
	resp, err = c.postSelfAsserted(ctx, lc, transID, csrf, form)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &ConnectError{Reason: fmt.Sprintf("email step status %d", resp.StatusCode)}
	}

	// step 3: confirm the email step; the response rotates the csrf via a
	// cookie which replaces the page token for the rest of the flow
	q := url.Values{}
	q.Set("csrf_token", csrf)
	q.Set("tx", transID)
	q.Set("p", policyName)
	req, err = http.NewRequestWithContext(ctx, "GET", c.authBaseURL+"/"+policyName+"/api/SelfAsserted/confirmed?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err = lc.Do(req)
	if err != nil {
		return &ConnectError{Reason: "email confirm step", Err: err}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &ConnectError{Reason: fmt.Sprintf("email confirm step status %d", resp.StatusCode)}
	}
	csrf = ""
	for _, ck := range resp.Cookies() {
		if ck.Name == "x-ms-cpim-csrf" {
			csrf = ck.Value
		}
	}
	if csrf == "" {
		return &ConnectError{Reason: "email confirm step did not set csrf cookie"}
	}

	// step 4: submit the password; a rejected password comes back as a
	// non-200 page carrying a known marker string
	form = url.Values{}
	form.Set("request_type", "RESPONSE")
	form.Set("signInName", c.email)
	form.Set("password", c.password)
	resp, err = c.postSelfAsserted(ctx, lc, transID, csrf, form)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if strings.Contains(string(body), invalidCredentialsMarker) {
			return &AuthError{Reason: "invalid username or password"}
		}
		return &ConnectError{Reason: fmt.Sprintf("password step status %d", resp.StatusCode)}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	// step 5: the combined-signin confirmation must 302 back to the app
	// with the authorization code (or error) in its location query
	q = url.Values{}
	q.Set("rememberMe", "false")
	q.Set("csrf_token", csrf)
	q.Set("tx", transID)
	q.Set("p", policyName)
	req, err = http.NewRequestWithContext(ctx, "GET", c.authBaseURL+"/"+policyName+"/api/CombinedSigninAndSignup/confirmed?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	noRedirect := *lc
	noRedirect.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err = noRedirect.Do(req)
	if err != nil {
		return &ConnectError{Reason: "signin confirm step", Err: err}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		return &ConnectError{Reason: fmt.Sprintf("signin confirm step status %d, expected a redirect", resp.StatusCode)}
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return &ConnectError{Reason: "signin confirm step missing location header"}
	}
	locURL, err := url.Parse(loc)
	if err != nil {
		return &ConnectError{Reason: "signin confirm step bad location header", Err: err}
	}
	locq := locURL.Query()
	if locq.Has("error") {
		return &AuthError{Reason: fmt.Sprintf("signin rejected: %s", locq.Get("error"))}
	}
	code := locq.Get("code")
	if code == "" {
		return &ConnectError{Reason: "signin confirm step location missing auth code"}
	}

	// step 6: exchange the authorization code for the token pair
	q = url.Values{}
	q.Set("p", policyName)
	q.Set("grant_type", "authorization_code")
	q.Set("client_id", genesisClientID)
	q.Set("scope", oauthScope)
	q.Set("redirect_uri", redirectURI)
	q.Set("code", code)
	req, err = http.NewRequestWithContext(ctx, "GET", c.authBaseURL+"/"+policyName+"/oauth2/v2.0/token?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err = lc.Do(req)
	if err != nil {
		return &ConnectError{Reason: "token exchange", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &ConnectError{Reason: fmt.Sprintf("token exchange status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	var res tokenResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return &ConnectError{Reason: "decoding token exchange response", Err: err}
	}
	if res.AccessToken == "" {
		return &AuthError{Reason: "token exchange response missing access token"}
	}

	now := time.Now()
	c.accessToken = res.AccessToken
	c.accessTokenExpiry = time.Time{}
	if res.ExpiresIn > 0 {
		c.accessTokenExpiry = now.Add(time.Duration(res.ExpiresIn) * time.Second)
	}
	c.refreshToken = res.RefreshToken
	c.refreshTokenExpiry = time.Time{}
	if res.RefreshTokenExpiresIn > 0 {
		c.refreshTokenExpiry = now.Add(time.Duration(res.RefreshTokenExpiresIn) * time.Second)
	}

	log.Ctx(ctx).InfoContext(ctx, "genesis login successful")
	return nil
}

// postSelfAsserted submits one self-asserted form step, authenticated by
// the current csrf token in a header.
func (c *Client) postSelfAsserted(ctx context.Context, lc *http.Client, transID, csrf string, form url.Values) (*http.Response, error) {
	u := c.authBaseURL + "/" + policyName + "/SelfAsserted?tx=" + url.QueryEscape(transID) + "&p=" + policyName
	req, err := http.NewRequestWithContext(ctx, "POST", u, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRF-TOKEN", csrf)
	resp, err := lc.Do(req)
	if err != nil {
		return nil, &ConnectError{Reason: "self-asserted step", Err: err}
	}
	return resp, nil
}

package genesis

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		a := newAuthFlowServer()
		ts := httptest.NewServer(a.handler())
		defer ts.Close()

		c := newTestClient(ts)
		require.NoError(t, c.EnsureValidToken(context.Background()))

		for _, step := range []string{"authorize", "email", "emailConfirm", "password", "signinConfirm", "token"} {
			assert.Equal(t, 1, a.count(step), "step %s should run exactly once", step)
		}
		assert.Equal(t, "at-login", c.accessToken)
		assert.Equal(t, "rt-login", c.refreshToken)
		assert.WithinDuration(t, time.Now().Add(time.Hour), c.accessTokenExpiry, 5*time.Second)
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), c.refreshTokenExpiry, 5*time.Second)
	})

	t.Run("StringTTLs", func(t *testing.T) {
		// the identity host sometimes quotes the TTL fields
		a := newAuthFlowServer()
		a.tokenJSON = `{"access_token":"at-login","expires_in":"3600","refresh_token":"rt-login","refresh_token_expires_in":"86400"}`
		ts := httptest.NewServer(a.handler())
		defer ts.Close()

		c := newTestClient(ts)
		require.NoError(t, c.EnsureValidToken(context.Background()))
		assert.WithinDuration(t, time.Now().Add(time.Hour), c.accessTokenExpiry, 5*time.Second)
	})

	t.Run("InvalidCredentials", func(t *testing.T) {
		a := newAuthFlowServer()
		a.passwordStatus = 400
		a.passwordBody = `{"status":"400","message":"The username or password provided in the request are invalid. Please try again."}`
		ts := httptest.NewServer(a.handler())
		defer ts.Close()

		c := newTestClient(ts)
		err := c.EnsureValidToken(context.Background())
		require.Error(t, err)
		assert.True(t, IsAuthError(err), "bad credentials should be an auth error, got %v", err)
		assert.Equal(t, 0, a.count("signinConfirm"), "flow should stop at the password step")
		assert.Equal(t, 0, a.count("token"))
		assert.Empty(t, c.accessToken)
	})

	t.Run("PasswordStepBroken", func(t *testing.T) {
		a := newAuthFlowServer()
		a.passwordStatus = 500
		a.passwordBody = "oops"
		ts := httptest.NewServer(a.handler())
		defer ts.Close()

		c := newTestClient(ts)
		err := c.EnsureValidToken(context.Background())
		require.Error(t, err)
		assert.True(t, IsConnectError(err), "a 500 without the credentials marker is not an auth failure, got %v", err)
	})

	t.Run("RedirectMissingCode", func(t *testing.T) {
		a := newAuthFlowServer()
		a.location = "https://myaccount.genesisenergy.co.nz/auth/redirect?state=xyz"
		ts := httptest.NewServer(a.handler())
		defer ts.Close()

		c := newTestClient(ts)
		err := c.EnsureValidToken(context.Background())
		require.Error(t, err)
		assert.True(t, IsConnectError(err))
		assert.Equal(t, 0, a.count("token"))
	})

	t.Run("RedirectWithError", func(t *testing.T) {
		a := newAuthFlowServer()
		a.location = "https://myaccount.genesisenergy.co.nz/auth/redirect?error=access_denied&error_description=AADB2C90225"
		ts := httptest.NewServer(a.handler())
		defer ts.Close()

		c := newTestClient(ts)
		err := c.EnsureValidToken(context.Background())
		require.Error(t, err)
		assert.True(t, IsAuthError(err))
		assert.Contains(t, err.Error(), "access_denied")
		assert.Equal(t, 0, a.count("token"))
	})

	t.Run("NoRedirect", func(t *testing.T) {
		a := newAuthFlowServer()
		a.signinStatus = 200
		ts := httptest.NewServer(a.handler())
		defer ts.Close()

		c := newTestClient(ts)
		err := c.EnsureValidToken(context.Background())
		require.Error(t, err)
		assert.True(t, IsConnectError(err))
	})

	t.Run("MissingSettings", func(t *testing.T) {
		a := newAuthFlowServer()
		a.authorizeBody = "<html><body>sign in</body></html>"
		ts := httptest.NewServer(a.handler())
		defer ts.Close()

		c := newTestClient(ts)
		err := c.EnsureValidToken(context.Background())
		require.Error(t, err)
		assert.True(t, IsConnectError(err))
		assert.Equal(t, 0, a.count("email"), "flow should stop at the authorize page")
	})

	t.Run("CsrfCookieMissing", func(t *testing.T) {
		a := newAuthFlowServer()
		a.confirmNoCookie = true
		ts := httptest.NewServer(a.handler())
		defer ts.Close()

		c := newTestClient(ts)
		err := c.EnsureValidToken(context.Background())
		require.Error(t, err)
		assert.True(t, IsConnectError(err))
		assert.Equal(t, 0, a.count("password"), "flow should stop before the password step")
	})

	t.Run("TokenMissingAccessToken", func(t *testing.T) {
		a := newAuthFlowServer()
		a.tokenJSON = `{"expires_in":3600}`
		ts := httptest.NewServer(a.handler())
		defer ts.Close()

		c := newTestClient(ts)
		err := c.EnsureValidToken(context.Background())
		require.Error(t, err)
		assert.True(t, IsAuthError(err))
	})

	t.Run("TokenWithoutTTLRejected", func(t *testing.T) {
		// a token with no expiry is stored but never considered usable, so
		// the post-login check has to flag it
		a := newAuthFlowServer()
		a.tokenJSON = `{"access_token":"at-login","refresh_token":"rt-login"}`
		ts := httptest.NewServer(a.handler())
		defer ts.Close()

		c := newTestClient(ts)
		err := c.EnsureValidToken(context.Background())
		require.Error(t, err)
		assert.True(t, IsAuthError(err))
	})
}

func TestExtractSettings(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		page := "<html>\n<script>\nvar SETTINGS = {\"transId\":\"StateProperties=abc\",\"csrf\":\"tok\",\"hosts\":{}};\n</script>\n</html>"
		s, ok := extractSettings(page)
		require.True(t, ok)
		assert.Equal(t, "StateProperties=abc", s.TransID)
		assert.Equal(t, "tok", s.CSRF)
	})

	t.Run("CRLF", func(t *testing.T) {
		page := "var SETTINGS = {\"transId\":\"t\",\"csrf\":\"c\"};\r\nvar other = 1;\r\n"
		s, ok := extractSettings(page)
		require.True(t, ok)
		assert.Equal(t, "t", s.TransID)
	})

	t.Run("Missing", func(t *testing.T) {
		_, ok := extractSettings("<html><body>nothing here</body></html>")
		assert.False(t, ok)
	})

	t.Run("BadJSON", func(t *testing.T) {
		_, ok := extractSettings("var SETTINGS = {broken;")
		assert.False(t, ok)
	})
}

func TestTokenResultDecode(t *testing.T) {
	t.Run("NumericTTL", func(t *testing.T) {
		var res tokenResult
		require.NoError(t, json.Unmarshal([]byte(`{"access_token":"a","expires_in":900,"refresh_token_expires_in":7200}`), &res))
		assert.Equal(t, flexInt(900), res.ExpiresIn)
		assert.Equal(t, flexInt(7200), res.RefreshTokenExpiresIn)
	})

	t.Run("QuotedTTL", func(t *testing.T) {
		var res tokenResult
		require.NoError(t, json.Unmarshal([]byte(`{"expires_in":"900"}`), &res))
		assert.Equal(t, flexInt(900), res.ExpiresIn)
	})

	t.Run("NullTTL", func(t *testing.T) {
		var res tokenResult
		require.NoError(t, json.Unmarshal([]byte(`{"expires_in":null,"refresh_token_expires_in":""}`), &res))
		assert.Equal(t, flexInt(0), res.ExpiresIn)
		assert.Equal(t, flexInt(0), res.RefreshTokenExpiresIn)
	})

	t.Run("Garbage", func(t *testing.T) {
		var res tokenResult
		assert.Error(t, json.Unmarshal([]byte(`{"expires_in":"soon"}`), &res))
	})
}

package genesis

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/genesismon/genesismon/pkg/common"
	"github.com/levenlabs/go-lflag"
)

// Configured sets up the portal client based on flags.
// It uses lflag to register command-line flags for configuration.
func Configured() *Client {
	c := &Client{}

	email := lflag.RequiredString("genesis-email", "Email address of the Genesis Energy account")
	password := lflag.RequiredString("genesis-password", "Password of the Genesis Energy account")
	authBase := lflag.String("genesis-auth-url", defaultAuthBaseURL, "Base URL of the Genesis Energy identity host")
	dataBase := lflag.String("genesis-api-url", defaultDataBaseURL, "Base URL of the Genesis Energy web API")
	userAgent := lflag.String("genesis-user-agent", "", "User-Agent presented to Genesis Energy, defaults to a desktop browser")
	timeout := lflag.Duration("genesis-timeout", time.Minute, "Timeout for individual requests to Genesis Energy")

	lflag.Do(func() {
		c.email = *email
		c.password = *password
		c.authBaseURL = strings.TrimRight(*authBase, "/")
		c.dataBaseURL = *dataBase
		c.userAgent = *userAgent
		c.timeout = *timeout
		c.client = common.BrowserHTTPClient(c.timeout, c.userAgent)
	})

	return c
}

// Validate ensures the configuration is valid.
func (c *Client) Validate() error {
	if c.email == "" {
		return fmt.Errorf("genesis-email is required")
	}
	if c.password == "" {
		return fmt.Errorf("genesis-password is required")
	}
	if _, err := url.Parse(c.authBaseURL); err != nil {
		return fmt.Errorf("failed to parse auth url (%s): %w", c.authBaseURL, err)
	}
	if _, err := url.Parse(c.dataBaseURL); err != nil {
		return fmt.Errorf("failed to parse api url (%s): %w", c.dataBaseURL, err)
	}
	return nil
}

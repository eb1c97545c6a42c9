package sinvoice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

const loginPath = "/auth/login"

var errMissingAccessToken = errors.New("login response has no access_token")

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login performs the login exchange and returns a session token.
// With a TokenCache configured, a cached token that has not expired is returned instead.
func (c *Client) Login(ctx context.Context) (*SessionToken, error) {
	if c.tokenCache != nil {
		if token, ok := c.tokenCache.Get(c.cacheKey()); ok {
			c.logger.Trace().Msg("Using cached S-Invoice session token")
			return &token, nil
		}
	}

	token, err := c.login(ctx)
	if err != nil {
		return nil, err
	}

	if c.tokenCache != nil && !c.tokenCache.Put(c.cacheKey(), *token) {
		c.logger.Debug().Msg("S-Invoice token has no known lifetime, not caching it")
	}

	return token, nil
}

// login always talks to the remote; a single attempt, no retry
func (c *Client) login(ctx context.Context) (*SessionToken, error) {
	body := loginRequest{
		Username: c.cfg.Username,
		Password: c.cfg.Password,
	}

	var token SessionToken
	if err := c.send(ctx, loginPath, body, EncodingJSON, "", &token); err != nil {
		return nil, translate(KindAuthentication, err)
	}

	if token.AccessToken == "" {
		return nil, &Error{
			Kind:    KindAuthentication,
			Message: "Unexpected error: " + errMissingAccessToken.Error(),
			Cause:   errMissingAccessToken,
		}
	}

	c.logger.Debug().
		Str("cluster", token.ClusterID).
		Int64("expires_in", token.ExpiresIn).
		Msg("Logged in to S-Invoice")

	return &token, nil
}

// cacheKey identifies this client's credentials in a shared TokenCache.
// The password enters as a digest so a wrong password never reuses another client's token.
func (c *Client) cacheKey() string {
	sum := sha256.Sum256([]byte(c.cfg.Password))
	return c.baseURL + "\x00" + c.cfg.Username + "\x00" + hex.EncodeToString(sum[:])
}

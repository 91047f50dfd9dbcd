package oempro

import (
	"context"
	"net/url"
)

const commandUserLogin = "User.Login"

// Login verifies the provided username and password then logs the user in.
// On success the session token is kept by the client and sent with every
// later command.
//
// API: User.Login
//
// Errors:
//   - 1 Username is missing, 2 Password is missing, 3 Invalid login information.
//   - 4, 5 Image verification failures.
func (c *Client) Login(ctx context.Context, username, password string) (int, error) {
	params := url.Values{}
	params.Set("Username", username)
	params.Set("Password", password)
	params.Set("RememberMe", "yes")

	var resp loginResponse
	if err := c.do(ctx, commandUserLogin, params, &resp); err != nil {
		return 0, err
	}

	c.setSession(Session{ID: resp.SessionID, UserID: int(resp.UserInfo.UserID)})
	c.logger.V(1).Info("Logged in", "userID", int(resp.UserInfo.UserID))
	return int(resp.UserInfo.UserID), nil
}

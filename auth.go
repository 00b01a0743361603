package studykit

import (
	"context"
	"encoding/json"

	"github.com/studykit/studykit/internal/gateway"
	"github.com/studykit/studykit/internal/localstore"
	"github.com/studykit/studykit/internal/session"
)

// accountResponse is the service reply to login and register calls. The
// gateway already rejects success:false envelopes; only the user document
// matters here.
type accountResponse struct {
	User struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Role string `json:"role"`
	} `json:"user"`
}

// Login authenticates against the service and installs the user in the
// session. Role permissions come from the loaded content snapshot; without
// one the user has no feature permissions until content loads.
func (c *Client) Login(ctx context.Context, username, password string) (User, error) {
	if username == "" || password == "" {
		return User{}, &ValidationError{Field: "credentials", Reason: "username and password required"}
	}
	return c.signIn(ctx, gateway.EventLogin, map[string]any{
		"username": username,
		"password": password,
	})
}

// AdminLogin authenticates through the separate admin flow.
func (c *Client) AdminLogin(ctx context.Context, username, password string) (User, error) {
	if username == "" || password == "" {
		return User{}, &ValidationError{Field: "credentials", Reason: "username and password required"}
	}
	return c.signIn(ctx, gateway.EventAdminLogin, map[string]any{
		"username": username,
		"password": password,
	})
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, username, password, name string) (User, error) {
	if username == "" || password == "" {
		return User{}, &ValidationError{Field: "credentials", Reason: "username and password required"}
	}
	return c.signIn(ctx, gateway.EventRegisterUser, map[string]any{
		"username": username,
		"password": password,
		"name":     name,
	})
}

func (c *Client) signIn(ctx context.Context, event string, payload map[string]any) (User, error) {
	raw, err := c.gw.Send(ctx, event, payload)
	if err != nil {
		return User{}, err
	}
	var resp accountResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.User.ID == "" {
		return User{}, &RemoteError{Op: event, Message: "response missing user", Category: gateway.Irrecoverable}
	}

	u := session.User{
		ID:   resp.User.ID,
		Name: resp.User.Name,
		Role: resp.User.Role,
	}
	if snap, ok := c.store.Snapshot(); ok {
		u.Permissions = snap.PermissionsForRole(u.Role)
	}
	c.store.SetUser(u)
	c.restoreUserMarkers(u.ID)
	c.log.Info().Str("user", u.ID).Str("role", u.Role).Msg("signed in")
	return u, nil
}

// restoreUserMarkers seeds the session with the persisted per-user sets.
func (c *Client) restoreUserMarkers(userID string) {
	if viewed, err := c.local.GetStringSet(localstore.ViewedLecturesKey(userID)); err == nil {
		c.store.LoadViewedLectures(setToSlice(viewed))
	}
	if marks, err := c.local.GetStringSet(localstore.BookmarksKey(userID)); err == nil {
		c.store.LoadBookmarks(setToSlice(marks))
	}
}

// Logout clears the session. Persistent per-user markers and the content
// cache survive; running activities are terminated.
func (c *Client) Logout() {
	c.store.Reset()
}

// CurrentUser returns the signed-in user, if any.
func (c *Client) CurrentUser() (User, bool) {
	return c.store.User()
}

// HasPermission reports whether the signed-in user's role grants perm.
func (c *Client) HasPermission(perm string) bool {
	return c.store.HasPermission(perm)
}

// AdminUpdateUser modifies another account. Synchronous: the caller needs
// the verdict immediately.
func (c *Client) AdminUpdateUser(ctx context.Context, userID string, fields map[string]any) error {
	if userID == "" {
		return &ValidationError{Field: "userID", Reason: "must not be empty"}
	}
	payload := map[string]any{"userId": userID}
	for k, v := range fields {
		payload[k] = v
	}
	_, err := c.gw.Send(ctx, gateway.EventAdminUpdateUser, payload)
	return err
}

func setToSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k, present := range set {
		if present {
			out = append(out, k)
		}
	}
	return out
}

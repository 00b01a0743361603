package studykit

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/studykit/studykit/internal/content"
	"github.com/studykit/studykit/internal/gateway"
)

// LeaderboardEntry is one row of the score ranking.
type LeaderboardEntry struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
	Rank   int    `json:"rank"`
}

// Leaderboard fetches the current score ranking.
func (c *Client) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	raw, err := c.gw.Request(ctx, gateway.KindLeaderboard, nil)
	if err != nil {
		return nil, err
	}
	var entries []LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &RemoteError{Op: gateway.KindLeaderboard, Message: "malformed leaderboard: " + err.Error(), Category: gateway.Recoverable}
	}
	return entries, nil
}

// Message is one user-to-user or broadcast message.
type Message struct {
	ID     string `json:"id"`
	From   string `json:"from"`
	To     string `json:"to,omitempty"`
	Text   string `json:"text"`
	SentAt string `json:"sentAt,omitempty"`
}

// Messages fetches the signed-in user's messages.
func (c *Client) Messages(ctx context.Context) ([]Message, error) {
	u, err := c.currentUser()
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("userId", u.ID)
	raw, err := c.gw.Request(ctx, gateway.KindMessages, params)
	if err != nil {
		return nil, err
	}
	var msgs []Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, &RemoteError{Op: gateway.KindMessages, Message: "malformed messages: " + err.Error(), Category: gateway.Recoverable}
	}
	return msgs, nil
}

// SendMessage sends a message to another user. Synchronous: the sender
// expects delivery confirmation.
func (c *Client) SendMessage(ctx context.Context, to, text string) error {
	u, err := c.currentUser()
	if err != nil {
		return err
	}
	if text == "" {
		return &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	_, err = c.gw.Send(ctx, gateway.EventSendMessage, map[string]any{
		"from": u.ID,
		"to":   to,
		"text": text,
	})
	return err
}

// UserCard is the per-user statistics document shown on the profile card.
type UserCard struct {
	UserID        string `json:"userId"`
	Streak        int    `json:"streak"`
	TotalAnswered int    `json:"totalAnswered"`
	TotalCorrect  int    `json:"totalCorrect"`
	Level         string `json:"level,omitempty"`
}

// UserCardData fetches the signed-in user's statistics card.
func (c *Client) UserCardData(ctx context.Context) (UserCard, error) {
	u, err := c.currentUser()
	if err != nil {
		return UserCard{}, err
	}
	params := url.Values{}
	params.Set("userId", u.ID)
	raw, err := c.gw.Request(ctx, gateway.KindUserCardData, params)
	if err != nil {
		return UserCard{}, err
	}
	var card UserCard
	if err := json.Unmarshal(raw, &card); err != nil {
		return UserCard{}, &RemoteError{Op: gateway.KindUserCardData, Message: "malformed card: " + err.Error(), Category: gateway.Recoverable}
	}
	return card, nil
}

// UpdateUserCardData pushes card field changes in the background.
func (c *Client) UpdateUserCardData(fields map[string]any) (string, error) {
	u, err := c.currentUser()
	if err != nil {
		return "", err
	}
	payload := map[string]any{"userId": u.ID}
	for k, v := range fields {
		payload[k] = v
	}
	return c.submit("card/"+u.ID, gateway.EventUpdateUserCardData, payload), nil
}

// IncorrectQuestions fetches the ids of the user's past mistakes and
// resolves them against the loaded snapshot. Mistakes no longer present in
// the content are silently dropped.
func (c *Client) IncorrectQuestions(ctx context.Context) ([]content.Question, error) {
	snap, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	u, err := c.currentUser()
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("userId", u.ID)
	raw, err := c.gw.Request(ctx, gateway.KindIncorrectQuestions, params)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, &RemoteError{Op: gateway.KindIncorrectQuestions, Message: "malformed id list: " + err.Error(), Category: gateway.Recoverable}
	}

	byID := make(map[string]content.Question, len(snap.Questions))
	for _, q := range snap.Questions {
		byID[q.ID] = q
	}
	var out []content.Question
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

// ClearQuizLogs asks the service to forget the user's quiz history.
// Dispatched in the background; returns the outbox write id.
func (c *Client) ClearQuizLogs() (string, error) {
	return c.clearLogs(gateway.EventClearQuizLogs)
}

// ClearLectureLogs asks the service to forget the user's lecture history.
func (c *Client) ClearLectureLogs() (string, error) {
	return c.clearLogs(gateway.EventClearLectureLogs)
}

// ClearAllLogs asks the service to forget all of the user's history.
func (c *Client) ClearAllLogs() (string, error) {
	return c.clearLogs(gateway.EventClearAllLogs)
}

func (c *Client) clearLogs(event string) (string, error) {
	u, err := c.currentUser()
	if err != nil {
		return "", err
	}
	return c.submit("logs/"+u.ID, event, map[string]any{"userId": u.ID}), nil
}

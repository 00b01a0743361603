// Package gateway is the single request/response client for the remote
// content/user-data service. Reads are GET calls keyed by a request kind with
// a cache-busting timestamp; writes are POST calls tagged with an eventType.
// All failure modes normalize to *RemoteError.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// Doer is the minimal HTTP client surface, for dependency injection.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Gateway marshals requests to the remote service and unmarshals responses.
type Gateway struct {
	endpoint string
	http     Doer
	log      zerolog.Logger
	now      func() time.Time
}

// New constructs a Gateway for the given service endpoint.
func New(endpoint string, httpClient Doer, log zerolog.Logger) *Gateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Gateway{
		endpoint: endpoint,
		http:     httpClient,
		log:      log.With().Str("component", "gateway").Logger(),
		now:      time.Now,
	}
}

// writeEnvelope is the optional response shape consulted on writes and on
// object-shaped read bodies.
type writeEnvelope struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Request performs a read. The cache-busting t parameter defeats intermediary
// caching between the client and the service.
func (g *Gateway) Request(ctx context.Context, kind string, params url.Values) (json.RawMessage, error) {
	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("request", kind)
	q.Set("t", fmt.Sprintf("%d", g.now().UnixNano()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, transportError(kind, err)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, transportError(kind, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(kind, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.log.Warn().Str("kind", kind).Int("status", resp.StatusCode).Msg("read failed")
		return nil, statusError(kind, resp.StatusCode, string(body))
	}

	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, decodeError(kind, err)
	}
	if msg, flagged := errorField(raw); flagged {
		return nil, logicError(kind, msg)
	}
	return raw, nil
}

// Send performs a write. The payload is merged with the eventType tag into a
// single JSON object. The returned body is non-nil when the service replied
// with one; fire-and-forget callers are free to ignore it.
func (g *Gateway) Send(ctx context.Context, eventType string, payload map[string]any) (json.RawMessage, error) {
	doc := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		doc[k] = v
	}
	doc["eventType"] = eventType

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, logicError(eventType, "marshal payload: "+err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, transportError(eventType, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, transportError(eventType, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(eventType, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.log.Warn().Str("event", eventType).Int("status", resp.StatusCode).Msg("write failed")
		return nil, statusError(eventType, resp.StatusCode, string(respBody))
	}
	if len(respBody) == 0 {
		return nil, nil
	}

	var raw json.RawMessage
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, decodeError(eventType, err)
	}
	var env writeEnvelope
	// Non-object bodies are fine; only an explicit failure envelope matters.
	if err := json.Unmarshal(raw, &env); err == nil {
		if env.Error != "" {
			return nil, logicError(eventType, env.Error)
		}
		if env.Success != nil && !*env.Success {
			msg := env.Message
			if msg == "" {
				msg = "request rejected"
			}
			return nil, logicError(eventType, msg)
		}
	}
	return raw, nil
}

// errorField reports whether an object-shaped body carries an explicit
// error string.
func errorField(raw json.RawMessage) (string, bool) {
	var env writeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", false // arrays and scalars have no envelope
	}
	if env.Error != "" {
		return env.Error, true
	}
	return "", false
}

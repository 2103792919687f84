// Package realtime talks to the hosted realtime speech provider: minting
// short-lived session credentials, exchanging SDP offers for answers, and
// decoding the structured events the session streams back.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://api.openai.com/v1"

// ErrCredentialExpired is returned when the signaling endpoint rejects the
// session credential. The caller should start a fresh attempt.
var ErrCredentialExpired = errors.New("realtime: session credential invalid or expired")

// StatusError carries an upstream HTTP failure so handlers can propagate the
// status without leaking secrets in the message.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("realtime: upstream status %d: %s", e.StatusCode, e.Message)
}

// VADConfig tunes the provider's server-side turn detection.
type VADConfig struct {
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
}

// DefaultVAD is the turn-taking tuning used for prospect calls.
var DefaultVAD = VADConfig{Threshold: 0.5, PrefixPaddingMs: 300, SilenceDurationMs: 500}

// SessionRequest parameterizes one voice session.
type SessionRequest struct {
	Model        string
	Instructions string
	Voice        string
	VAD          VADConfig
}

// Client is a REST client for the realtime provider.
type Client struct {
	http    *resty.Client
	apiKey  string
	baseURL string
}

type Option func(*Client)

// WithBaseURL overrides the provider endpoint (tests, proxies).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		http:    resty.New().SetTimeout(30 * time.Second),
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.SetBaseURL(c.baseURL)
	return c
}

type sessionBody struct {
	Session struct {
		Type         string `json:"type"`
		Model        string `json:"model"`
		Instructions string `json:"instructions"`
		Audio        struct {
			Output struct {
				Voice string `json:"voice"`
			} `json:"output"`
			Input struct {
				TurnDetection struct {
					Type string `json:"type"`
					VADConfig
				} `json:"turn_detection"`
			} `json:"input"`
		} `json:"audio"`
	} `json:"session"`
}

type clientSecretResponse struct {
	Value string `json:"value"`
}

// CreateClientSecret mints a short-lived, session-scoped credential. The
// long-lived API key never leaves the server.
func (c *Client) CreateClientSecret(ctx context.Context, req SessionRequest) (string, error) {
	var body sessionBody
	body.Session.Type = "realtime"
	body.Session.Model = req.Model
	body.Session.Instructions = req.Instructions
	body.Session.Audio.Output.Voice = req.Voice
	body.Session.Audio.Input.TurnDetection.Type = "server_vad"
	body.Session.Audio.Input.TurnDetection.VADConfig = req.VAD

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/realtime/client_secrets")
	if err != nil {
		return "", fmt.Errorf("realtime: create client secret: %w", err)
	}
	if resp.IsError() {
		return "", &StatusError{StatusCode: resp.StatusCode(), Message: upstreamMessage(resp.Body())}
	}

	var parsed clientSecretResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return "", fmt.Errorf("realtime: parse client secret response: %w", err)
	}
	if parsed.Value == "" {
		return "", errors.New("realtime: no client secret in response")
	}
	return parsed.Value, nil
}

// ExchangeOffer posts an SDP offer authenticated by the session credential
// and returns the answer SDP.
func (c *Client) ExchangeOffer(ctx context.Context, clientSecret, offerSDP string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(clientSecret).
		SetHeader("Content-Type", "application/sdp").
		SetBody(offerSDP).
		Post("/realtime/calls")
	if err != nil {
		return "", fmt.Errorf("realtime: exchange offer: %w", err)
	}
	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		return "", ErrCredentialExpired
	}
	if resp.IsError() {
		return "", &StatusError{StatusCode: resp.StatusCode(), Message: upstreamMessage(resp.Body())}
	}
	return string(resp.Body()), nil
}

// upstreamMessage pulls a human-readable message out of an upstream error
// body without forwarding the raw payload.
func upstreamMessage(body []byte) string {
	var wrapped struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error.Message != "" {
		return wrapped.Error.Message
	}
	return "request rejected"
}

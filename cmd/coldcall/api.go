package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/FeliciaLa/coldcall-pro/internal/call"
	"github.com/FeliciaLa/coldcall-pro/internal/scorecard"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const anonCookieName = "ccp_anon"

// apiEnvelope mirrors the server's response body.
type apiEnvelope struct {
	Code   int             `json:"code"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
	Reason string          `json:"reason"`
}

type accessStatus struct {
	CanSimulate          bool   `json:"canSimulate"`
	HasFreeSim           bool   `json:"hasFreeSim"`
	SimulationsRemaining *int   `json:"simulationsRemaining"`
	HasPaid              bool   `json:"hasPaid"`
	Reason               string `json:"reason"`
}

type scenarioInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ProspectName  string `json:"prospectName"`
	ProspectTitle string `json:"prospectTitle"`
	Company       string `json:"company"`
	Difficulty    string `json:"difficulty"`
	Objective     string `json:"objective"`
}

type sessionInfo struct {
	Token string `json:"token"`
	Model string `json:"model"`
	Voice string `json:"voice"`
}

// apiClient talks to the practice server. The anonymous identity is a local
// UUID stored next to the user's config, sent as the same cookie a browser
// would carry.
type apiClient struct {
	http *resty.Client
}

func newAPIClient(serverURL string) (*apiClient, error) {
	id, err := loadIdentity()
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(serverURL, "/") + "/api/v1").
		SetCookie(&http.Cookie{Name: anonCookieName, Value: id})
	return &apiClient{http: client}, nil
}

func identityPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "coldcall-pro", "identity"), nil
}

func loadIdentity() (string, error) {
	path, err := identityPath()
	if err != nil {
		return "", err
	}
	if raw, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id, nil
		}
	}
	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", err
	}
	return id, nil
}

func (a *apiClient) get(ctx context.Context, path string, out interface{}) error {
	resp, err := a.http.R().SetContext(ctx).Get(path)
	if err != nil {
		return err
	}
	return a.decode(resp, out)
}

func (a *apiClient) post(ctx context.Context, path string, body, out interface{}) error {
	resp, err := a.http.R().SetContext(ctx).SetBody(body).Post(path)
	if err != nil {
		return err
	}
	return a.decode(resp, out)
}

func (a *apiClient) decode(resp *resty.Response, out interface{}) error {
	var envelope apiEnvelope
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode(), resp.Status())
	}
	if resp.StatusCode() == http.StatusForbidden && envelope.Reason != "" {
		return &call.SessionDeniedError{Reason: envelope.Reason}
	}
	if resp.IsError() {
		return fmt.Errorf("%s (%d)", envelope.Msg, resp.StatusCode())
	}
	if out != nil && len(envelope.Data) > 0 {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}

func (a *apiClient) Access(ctx context.Context) (*accessStatus, error) {
	var status accessStatus
	if err := a.get(ctx, "/access", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (a *apiClient) Scenarios(ctx context.Context) ([]scenarioInfo, error) {
	var list []scenarioInfo
	if err := a.get(ctx, "/scenarios", &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Session mints a call session for the scenario.
func (a *apiClient) Session(ctx context.Context, scenarioID string) (*sessionInfo, error) {
	var sess sessionInfo
	if err := a.post(ctx, "/sessions", map[string]string{"scenarioId": scenarioID}, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// CreateSession implements the controller's session source.
func (a *apiClient) CreateSession(ctx context.Context, scenarioID string) (string, error) {
	sess, err := a.Session(ctx, scenarioID)
	if err != nil {
		return "", err
	}
	return sess.Token, nil
}

func (a *apiClient) Scorecard(ctx context.Context, scenarioID string, transcript []call.Entry, durationSeconds int) (*scorecard.Result, error) {
	var out struct {
		Scorecard *scorecard.Result `json:"scorecard"`
	}
	body := map[string]interface{}{
		"scenarioId":      scenarioID,
		"transcript":      transcript,
		"durationSeconds": durationSeconds,
	}
	if err := a.post(ctx, "/scorecards", body, &out); err != nil {
		return nil, err
	}
	return out.Scorecard, nil
}

func (a *apiClient) CompleteFreeCall(ctx context.Context, scenarioID string, durationSeconds int) error {
	body := map[string]interface{}{
		"scenarioId":      scenarioID,
		"durationSeconds": durationSeconds,
	}
	return a.post(ctx, "/calls/free", body, nil)
}

func (a *apiClient) Checkout(ctx context.Context) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := a.post(ctx, "/checkout", map[string]string{}, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// Package api implements the HTTP client for the assistant backend.
// The backend is a black-box service: every call here maps one-to-one
// onto its public contract, and any transport or HTTP failure surfaces
// as an error for the controller's generic error path.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/samlabs/sam-gateway/internal/types"
	"github.com/samlabs/sam-gateway/internal/util"
	"golang.org/x/oauth2/clientcredentials"
)

const requestTimeout = 30 * time.Second

// Error is an HTTP-level failure from the backend. Detail carries the
// server-supplied message when the error body contained one.
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// Detail extracts the server-supplied detail message from err, or ""
// when none is available. Callers fall back to a per-operation generic
// message.
func Detail(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}

// Client talks to the assistant backend API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Options configures a Client.
type Options struct {
	BaseURL string

	// OAuth2 client credentials for gateway-to-backend service auth.
	// Empty values disable authentication.
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// New creates a backend client. When OAuth2 credentials are configured,
// requests carry a client-credentials bearer token.
func New(opts Options) *Client {
	httpClient := &http.Client{Timeout: requestTimeout}

	if opts.ClientID != "" && opts.ClientSecret != "" && opts.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
		}
		httpClient = cc.Client(context.Background())
		httpClient.Timeout = requestTimeout
	}

	return &Client{
		baseURL:    opts.BaseURL,
		httpClient: httpClient,
	}
}

// SendText submits typed text for a conversational turn.
func (c *Client) SendText(ctx context.Context, text, platform string, accountID int64, sessionID string) (*types.TurnResponse, error) {
	body := map[string]any{
		"text":                text,
		"platform_account_id": accountID,
	}
	if sessionID != "" {
		body["session_id"] = sessionID
	}

	endpoint := c.baseURL + "/chat/process_text?platform=" + url.QueryEscape(platform)
	return c.postTurn(ctx, endpoint, "application/json", jsonBody(body))
}

// UploadAudio submits a recorded voice clip for transcription and reply.
func (c *Client) UploadAudio(ctx context.Context, clip []byte, platform string, accountID int64, sessionID string) (*types.TurnResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", "recording.wav")
	if err != nil {
		return nil, util.WrapError("build upload form", err)
	}
	if _, err := part.Write(clip); err != nil {
		return nil, util.WrapError("write upload form", err)
	}
	if err := mw.Close(); err != nil {
		return nil, util.WrapError("finalize upload form", err)
	}

	endpoint := fmt.Sprintf("%s/chat/process_voice?platform=%s&platform_account_id=%d",
		c.baseURL, url.QueryEscape(platform), accountID)
	if sessionID != "" {
		endpoint += "&session_id=" + url.QueryEscape(sessionID)
	}

	return c.postTurn(ctx, endpoint, mw.FormDataContentType(), &buf)
}

// ExecuteAction executes an already-decided action, either a deferred
// command or a direct volume get/set.
func (c *Client) ExecuteAction(ctx context.Context, cmd *types.Command, platform string, accountID int64, sessionID string) (*types.TurnResponse, error) {
	body := map[string]any{
		"action":              cmd.Type,
		"parameters":          cmd.Params,
		"platform":            platform,
		"platform_account_id": accountID,
	}
	if sessionID != "" {
		body["session_id"] = sessionID
	}

	return c.postTurn(ctx, c.baseURL+"/chat/execute", "application/json", jsonBody(body))
}

// PlatformStatus queries connection and device status for a platform.
func (c *Client) PlatformStatus(ctx context.Context, platform string, accountID int64) (*types.PlatformStatus, error) {
	endpoint := c.baseURL + "/adapter/" + url.PathEscape(platform) + "/status"
	if accountID != 0 {
		endpoint += "?platform_account_id=" + strconv.FormatInt(accountID, 10)
	}

	resp, err := c.do(ctx, http.MethodGet, endpoint, "", nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	var status types.PlatformStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, util.WrapError("decode platform status", err)
	}
	return &status, nil
}

// SynthesizeSpeech requests a streamed speech clip for the given text
// and returns the raw audio bytes.
func (c *Client) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	endpoint := c.baseURL + "/voice/tts/stream?text=" + url.QueryEscape(text)

	resp, err := c.do(ctx, http.MethodPost, endpoint, "application/json", bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	clip, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, util.WrapError("read speech stream", err)
	}
	return clip, nil
}

// AuthURL returns the platform's OAuth login URL.
func (c *Client) AuthURL(ctx context.Context, platform string) (string, error) {
	endpoint := c.baseURL + "/adapter/" + url.PathEscape(platform) + "/login"

	resp, err := c.do(ctx, http.MethodGet, endpoint, "", nil)
	if err != nil {
		return "", err
	}
	defer closeBody(resp)

	var out struct {
		AuthURL string `json:"auth_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", util.WrapError("decode auth URL", err)
	}
	return out.AuthURL, nil
}

// postTurn posts a request and decodes the standard turn response.
func (c *Client) postTurn(ctx context.Context, endpoint, contentType string, body io.Reader) (*types.TurnResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, endpoint, contentType, body)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	var turn types.TurnResponse
	if err := json.NewDecoder(resp.Body).Decode(&turn); err != nil {
		return nil, util.WrapError("decode turn response", err)
	}
	return &turn, nil
}

// do issues a request and converts non-2xx statuses into *Error with
// the server-supplied detail when present.
func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body io.Reader) (*http.Response, error) {
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, util.WrapError("build request", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var detail struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&detail); err == nil {
			apiErr.Detail = detail.Detail
		}
		closeBody(resp)
		return nil, apiErr
	}

	return resp, nil
}

func jsonBody(v any) io.Reader {
	data, _ := json.Marshal(v) //nolint:errcheck // map of JSON-safe values cannot fail
	return bytes.NewReader(data)
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse
	_ = resp.Body.Close()                                       //nolint:errcheck // best-effort cleanup
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/tradewatch/agent/internal/errors"
)

// submitRate caps outbound batch submissions. The collector enforces a
// daily quota server-side; the client keeps a polite ceiling well below it.
var submitRate = rate.Every(time.Second)

// Client talks to the collector over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Client for the given base URL. timeout bounds each
// request; there is no retrying at this layer.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(submitRate, 1),
	}
}

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.post(ctx, "auth.login", "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates a new account. The caller logs in afterwards.
func (c *Client) Register(ctx context.Context, req *RegisterRequest) error {
	return c.post(ctx, "auth.register", "", req, nil)
}

// Refresh exchanges a refresh token for a fresh access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	var resp RefreshResponse
	err := c.post(ctx, "auth.refresh", "", &RefreshRequest{RefreshToken: refreshToken}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitTrades sends one batch of trade events with the access token
// attached. The client-side limiter smooths out bursts of immediate
// sync triggers.
func (c *Client) SubmitTrades(ctx context.Context, token string, req *SubmitRequest) (*SubmitResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTransport, "submit canceled while throttled", err)
	}
	var resp SubmitResponse
	if err := c.post(ctx, "trades.submit", token, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// envelope is the fixed request wrapper.
type envelope struct {
	Input interface{} `json:"input"`
}

// resultEnvelope is the fixed success-response wrapper.
type resultEnvelope struct {
	Result struct {
		Data json.RawMessage `json:"data"`
	} `json:"result"`
}

// post sends one enveloped request and unwraps one envelope level from the
// response. Non-2xx statuses are classified into the error taxonomy; the
// engine and the session manager branch on codes, never on raw statuses.
func (c *Client) post(ctx context.Context, procedure, token string, input, out interface{}) error {
	body, err := json.Marshal(envelope{Input: input})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode request", err)
	}

	url := fmt.Sprintf("%s/trpc/%s", c.baseURL, procedure)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrTransport, "no response from collector", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrTransport, "failed to read response", err)
	}

	if err := classifyStatus(resp.StatusCode, respBody); err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	var wrapped resultEnvelope
	if err := json.Unmarshal(respBody, &wrapped); err != nil {
		return apperrors.Wrap(apperrors.ErrServer, "malformed response envelope", err)
	}
	if err := json.Unmarshal(wrapped.Result.Data, out); err != nil {
		return apperrors.Wrap(apperrors.ErrServer, "malformed response payload", err)
	}
	return nil
}

func classifyStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}

	switch {
	case status == http.StatusUnauthorized:
		return &apperrors.AppError{
			Code:       apperrors.ErrUnauthorized,
			Message:    "collector rejected credentials",
			HTTPStatus: status,
		}
	case status == http.StatusTooManyRequests:
		return &apperrors.AppError{
			Code:       apperrors.ErrRateLimited,
			Message:    "collector rate limit exceeded",
			HTTPStatus: status,
		}
	default:
		return apperrors.Server(status, fmt.Sprintf("collector error: %s", msg))
	}
}

// Package relayclient is the Go client for the match relay API. It holds
// one player's bearer token, so one Client instance maps to one seat in
// one or more matches.
package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"chessrelay/pkg/matchdto"
)

type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int

	token string
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithToken resumes a seat from a previously issued player token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the player token issued by CreateMatch or Join.
func (c *Client) Token() string { return c.token }

func (c *Client) CreateMatch(ctx context.Context, playWhite bool, joinSecret string) (*matchdto.CreateMatchResponse, error) {
	req := matchdto.CreateMatchRequest{PlayWhite: playWhite, JoinSecret: joinSecret}
	var resp matchdto.CreateMatchResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/match", req, &resp, false); err != nil {
		return nil, err
	}
	c.token = resp.PlayerToken
	return &resp, nil
}

func (c *Client) Status(ctx context.Context, matchID string) (*matchdto.StatusResponse, error) {
	var resp matchdto.StatusResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/match/"+matchID+"/status", nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Join(ctx context.Context, matchID, joinSecret string) (*matchdto.JoinMatchResponse, error) {
	req := matchdto.JoinMatchRequest{JoinSecret: joinSecret}
	var resp matchdto.JoinMatchResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/match/"+matchID+"/join", req, &resp, false); err != nil {
		return nil, err
	}
	c.token = resp.PlayerToken
	return &resp, nil
}

func (c *Client) Cancel(ctx context.Context, matchID string) error {
	return c.doJSON(ctx, fasthttp.MethodPost, "/api/match/"+matchID+"/cancel", nil, nil, false)
}

// Move submits one move. A soft rejection (illegal move, out of turn)
// comes back with OK=false and a reason, not an error.
func (c *Client) Move(ctx context.Context, matchID, from, to, promotion string) (*matchdto.MoveResponse, error) {
	req := matchdto.MoveRequest{From: from, To: to, Promotion: promotion}
	var resp matchdto.MoveResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/match/"+matchID+"/move", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckIn is the poll primitive: it refreshes this player's heartbeat and
// returns the current view of the match. Safe to retry.
func (c *Client) CheckIn(ctx context.Context, matchID string) (*matchdto.CheckInResponse, error) {
	var resp matchdto.CheckInResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/match/"+matchID+"/checkin", nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Resign(ctx context.Context, matchID string) error {
	return c.doJSON(ctx, fasthttp.MethodPost, "/api/match/"+matchID+"/resign", nil, nil, false)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	url := c.baseURL + path
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(url)
	req.Header.SetContentType("application/json")
	if c.token != "" {
		req.Header.Set("X-Player-Token", c.token)
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry {
		attempts = c.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			if attempt == attempts || !retry {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			err := apiError(status, resp.Body())
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return err
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

// APIError carries the server's status code and error body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("relay api error: status=%d message=%s", e.StatusCode, e.Message)
}

func apiError(status int, body []byte) error {
	var parsed matchdto.ErrorResponse
	msg := string(body)
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		msg = parsed.Error
	}
	return &APIError{StatusCode: status, Message: truncate(msg, 512)}
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

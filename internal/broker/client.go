package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/simcheck/simcheck/internal/middleware"
	"github.com/simcheck/simcheck/internal/provider"
)

const (
	defaultClientTimeout = 20 * time.Second
	maxBrokerResponse    = 1 << 20
)

// Client is the device side of the broker. It satisfies the orchestrator's
// provider contract, so a device never holds provider credentials.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// NewClient returns a broker client for baseURL. A nil httpClient selects a
// default client; timeout bounds each call and defaults to 20s.
func NewClient(baseURL string, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient, timeout: timeout}
}

// AcquireToken is a no-op: the broker acquires the token when it creates the
// check and hands it back in Check.AccessToken.
func (c *Client) AcquireToken(context.Context) (provider.AccessToken, error) {
	return provider.AccessToken{}, nil
}

// CreateCheck asks the broker to create a check for a canonical number.
func (c *Client) CreateCheck(ctx context.Context, _ provider.AccessToken, phoneNumber string) (provider.Check, error) {
	const op = "create check"
	var env Envelope[CheckData]
	if err := c.do(ctx, op, http.MethodPost, "/api/subscribercheck", CreateCheckRequest{PhoneNumber: phoneNumber}, &env); err != nil {
		return provider.Check{}, err
	}
	if env.Data.CheckID == "" || env.Data.CheckURL == "" {
		return provider.Check{}, provider.NewProtocolError(op, "broker response missing check_id or check_url")
	}
	return provider.Check{ID: env.Data.CheckID, URL: env.Data.CheckURL, AccessToken: env.Data.AccessToken}, nil
}

// Exchange asks the broker to redeem the code for the check result.
func (c *Client) Exchange(ctx context.Context, token provider.AccessToken, checkID, code string) (provider.Result, error) {
	const op = "exchange code"
	path := "/api/subscribercheck/" + url.PathEscape(checkID) + "/exchange"
	var env struct {
		Data struct {
			Match       *bool `json:"match"`
			NoSimChange *bool `json:"no_sim_change"`
		} `json:"data"`
	}
	if err := c.do(ctx, op, http.MethodPost, path, ExchangeRequest{Code: code, AccessToken: token.Value}, &env); err != nil {
		return provider.Result{}, err
	}
	if env.Data.Match == nil || env.Data.NoSimChange == nil {
		return provider.Result{}, provider.NewProtocolError(op, "broker response missing match or no_sim_change")
	}
	return provider.Result{Match: *env.Data.Match, NoSimChange: *env.Data.NoSimChange}, nil
}

// GetCheck fetches the provider's representation of a check through the broker.
func (c *Client) GetCheck(ctx context.Context, token provider.AccessToken, checkID string) (json.RawMessage, error) {
	path := "/api/subscribercheck/" + url.PathEscape(checkID)
	if token.Value != "" {
		path += "?" + url.Values{"access_token": {token.Value}}.Encode()
	}
	var env CheckStatusEnvelope
	if err := c.do(ctx, "get check", http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.IdempotencyKeyHeader, uuid.NewString())
	}
	if id := middleware.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(middleware.RequestIDHeader, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		detail := err.Error()
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			detail = fmt.Sprintf("broker timed out after %s", c.timeout)
		case errors.Is(ctx.Err(), context.Canceled):
			detail = "request cancelled"
		}
		return provider.NewNetworkError(op, detail, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBrokerResponse))
	if err != nil {
		return provider.NewNetworkError(op, "read broker response: "+err.Error(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return rehydrate(op, resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &provider.Error{Kind: provider.KindProtocol, Op: op, Detail: "decode broker response", Err: err}
	}
	return nil
}

// rehydrate turns a broker error body back into the provider error it was
// rendered from.
func rehydrate(op string, status int, raw []byte) error {
	var body ErrorResponse
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		return &provider.Error{Kind: provider.KindProvider, Op: op, Status: status, Detail: http.StatusText(status)}
	}

	e := &provider.Error{Op: op, Status: status, Detail: body.ErrorDescription}
	if body.ProviderStatus != 0 {
		e.Status = body.ProviderStatus
	}
	switch kind := provider.Kind(body.Error); kind {
	case provider.KindAuth, provider.KindProvider, provider.KindNetwork, provider.KindExchange, provider.KindProtocol:
		e.Kind = kind
	default:
		e.Kind = provider.KindProvider
	}
	return e
}

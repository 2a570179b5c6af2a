package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultBaseURL is the EU region of the provider API.
	DefaultBaseURL      = "https://eu.api.tru.id"
	defaultCheckVersion = "v0.1"
	defaultTimeout      = 20 * time.Second
	subscriberScope     = "subscriber_check"
	maxResponseBytes    = 1 << 20
	maxDetailBytes      = 200
)

// Config holds the settings needed to talk to the provider API.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	// CheckVersion selects the check-creation API version, "v0.1" or "v0.2".
	CheckVersion string
	// Timeout bounds each individual network call.
	Timeout time.Duration
	// HTTPClient overrides the client used for every call. Optional.
	HTTPClient *http.Client
}

// Client talks to the provider's token, check and exchange endpoints.
type Client struct {
	cfg    Config
	http   *http.Client
	token  *http.Client
	creds  *clientcredentials.Config
	logger *slog.Logger
}

// New builds a provider client. An empty BaseURL selects DefaultBaseURL.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.CheckVersion == "" {
		cfg.CheckVersion = defaultCheckVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tokenClient := *httpClient
	tokenClient.Transport = &basicAuthTransport{base: httpClient.Transport}
	return &Client{
		cfg:   cfg,
		http:  httpClient,
		token: &tokenClient,
		creds: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.BaseURL + "/oauth2/v1/token",
			Scopes:       []string{subscriberScope},
			// basicAuthTransport moves the credentials into the header.
			AuthStyle: oauth2.AuthStyleInParams,
		},
		logger: logger,
	}
}

// basicAuthTransport sends the client credentials as
// Basic base64(id:secret) without the form escaping x/oauth2 applies in
// AuthStyleInHeader. The provider compares the raw pair.
type basicAuthTransport struct {
	base http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if req.Body == nil {
		return base.RoundTrip(req)
	}
	raw, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}
	form, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, err
	}
	id, secret := form.Get("client_id"), form.Get("client_secret")
	form.Del("client_id")
	form.Del("client_secret")
	encoded := form.Encode()

	out := req.Clone(req.Context())
	out.Body = io.NopCloser(strings.NewReader(encoded))
	out.ContentLength = int64(len(encoded))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(encoded)), nil
	}
	out.SetBasicAuth(id, secret)
	return base.RoundTrip(out)
}

// AcquireToken obtains a fresh access token with the client-credentials grant.
// Tokens are not cached; every attempt acquires its own.
func (c *Client) AcquireToken(ctx context.Context) (AccessToken, error) {
	const op = "acquire token"
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.token)

	tok, err := c.creds.Token(ctx)
	if err != nil {
		return AccessToken{}, tokenError(op, err)
	}
	c.logger.Debug("provider token acquired", slog.Time("expiry", tok.Expiry))
	return AccessToken{Value: tok.AccessToken, Expiry: tok.Expiry}, nil
}

func tokenError(op string, err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		e := &Error{Kind: KindAuth, Op: op, Err: err}
		if rErr.Response != nil {
			e.Status = rErr.Response.StatusCode
		}
		switch {
		case rErr.ErrorDescription != "":
			e.Detail = rErr.ErrorDescription
		case rErr.ErrorCode != "":
			e.Detail = rErr.ErrorCode
		default:
			e.Detail = errorDetail(e.Status, rErr.Body)
		}
		return e
	}
	// x/oauth2 reports a 2xx without a token as the plain error
	// "oauth2: server response missing access_token", not a RetrieveError.
	if strings.Contains(err.Error(), "server response missing access_token") {
		return &Error{Kind: KindProtocol, Op: op, Detail: "token response missing access_token", Err: err}
	}
	return &Error{Kind: KindAuth, Op: op, Detail: err.Error(), Err: err}
}

type createCheckResponse struct {
	CheckID string `json:"check_id"`
	Links   struct {
		CheckURL struct {
			Href string `json:"href"`
		} `json:"check_url"`
	} `json:"_links"`
}

// CreateCheck registers a subscriber check for a canonical phone number and
// returns its identifier and the one-time check URL.
func (c *Client) CreateCheck(ctx context.Context, token AccessToken, phoneNumber string) (Check, error) {
	const op = "create check"
	payload, err := json.Marshal(phoneNumber)
	if err != nil {
		return Check{}, fmt.Errorf("%s: encode body: %w", op, err)
	}
	endpoint := fmt.Sprintf("%s/subscriber_check/%s/checks", c.cfg.BaseURL, c.cfg.CheckVersion)

	status, body, err := c.send(ctx, op, http.MethodPost, endpoint, token, payload)
	if err != nil {
		return Check{}, err
	}
	if status < 200 || status > 299 {
		return Check{}, &Error{Kind: KindProvider, Op: op, Status: status, Detail: errorDetail(status, body)}
	}

	var resp createCheckResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Check{}, &Error{Kind: KindProtocol, Op: op, Detail: "decode response", Err: err}
	}
	if resp.CheckID == "" {
		return Check{}, NewProtocolError(op, "response missing check_id")
	}
	if resp.Links.CheckURL.Href == "" {
		return Check{}, NewProtocolError(op, "response missing _links.check_url.href")
	}
	c.logger.Debug("provider check created", slog.String("check_id", resp.CheckID))
	return Check{ID: resp.CheckID, URL: resp.Links.CheckURL.Href}, nil
}

type exchangeRequest struct {
	CheckID string `json:"check_id"`
	Code    string `json:"code"`
}

type exchangeResponse struct {
	CheckID     string `json:"check_id"`
	Match       *bool  `json:"match"`
	NoSimChange *bool  `json:"no_sim_change"`
}

// Exchange trades the code returned by the cellular redirect for the final
// result of the check. Any 4xx is an exchange rejection.
func (c *Client) Exchange(ctx context.Context, token AccessToken, checkID, code string) (Result, error) {
	const op = "exchange code"
	payload, err := json.Marshal(exchangeRequest{CheckID: checkID, Code: code})
	if err != nil {
		return Result{}, fmt.Errorf("%s: encode body: %w", op, err)
	}
	endpoint := c.cfg.BaseURL + "/subscriber_check/v0.2/checks/exchange-code"

	status, body, err := c.send(ctx, op, http.MethodPost, endpoint, token, payload)
	if err != nil {
		return Result{}, err
	}
	switch {
	case status >= 400 && status < 500:
		return Result{}, &Error{Kind: KindExchange, Op: op, Status: status, Detail: errorDetail(status, body)}
	case status < 200 || status > 299:
		return Result{}, &Error{Kind: KindProvider, Op: op, Status: status, Detail: errorDetail(status, body)}
	}

	var resp exchangeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Result{}, &Error{Kind: KindProtocol, Op: op, Detail: "decode response", Err: err}
	}
	if resp.Match == nil || resp.NoSimChange == nil {
		return Result{}, NewProtocolError(op, "response missing match or no_sim_change")
	}
	if resp.CheckID != "" && resp.CheckID != checkID {
		return Result{}, NewProtocolError(op, fmt.Sprintf("response is for check %s, not %s", resp.CheckID, checkID))
	}
	return Result{Match: *resp.Match, NoSimChange: *resp.NoSimChange}, nil
}

// GetCheck returns the provider's current representation of a check verbatim.
func (c *Client) GetCheck(ctx context.Context, token AccessToken, checkID string) (json.RawMessage, error) {
	const op = "get check"
	endpoint := fmt.Sprintf("%s/subscriber_check/%s/checks/%s", c.cfg.BaseURL, c.cfg.CheckVersion, url.PathEscape(checkID))

	status, body, err := c.send(ctx, op, http.MethodGet, endpoint, token, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &Error{Kind: KindProvider, Op: op, Status: status, Detail: errorDetail(status, body)}
	}
	if !json.Valid(body) {
		return nil, NewProtocolError(op, "response is not valid JSON")
	}
	return json.RawMessage(body), nil
}

// send performs one bearer-authenticated call bounded by the configured
// timeout and returns the status and body. Only transport failures are errors.
func (c *Client) send(ctx context.Context, op, method, endpoint string, token AccessToken, payload []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, NewNetworkError(op, describeTransport(ctx, err, c.cfg.Timeout), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, NewNetworkError(op, "read response: "+err.Error(), err)
	}
	c.logger.Debug("provider call",
		slog.String("op", op),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)
	return resp.StatusCode, respBody, nil
}

func describeTransport(ctx context.Context, err error, timeout time.Duration) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("timed out after %s", timeout)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return "request cancelled"
	}
	return err.Error()
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// errorDetail extracts a human readable reason from a provider error body.
func errorDetail(status int, body []byte) string {
	var parsed struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Detail           string `json:"detail"`
		Title            string `json:"title"`
		Message          string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		for _, s := range []string{parsed.ErrorDescription, parsed.Detail, parsed.Title, parsed.Message, parsed.Error} {
			if s != "" {
				return s
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return truncate(text, maxDetailBytes)
	}
	return http.StatusText(status)
}

package broker

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simcheck/simcheck/internal/provider"
)

// StaticProvider simulates the provider for local development. Every check it
// creates points back at RedirectBase, where the broker's development route
// answers with an exchange code, so the whole flow runs without credentials.
type StaticProvider struct {
	RedirectBase string

	mu     sync.Mutex
	issued map[string]string
}

// NewStaticProvider returns a StaticProvider whose check URLs live under base.
func NewStaticProvider(base string) *StaticProvider {
	return &StaticProvider{RedirectBase: strings.TrimRight(base, "/"), issued: map[string]string{}}
}

// AcquireToken returns a synthetic token.
func (p *StaticProvider) AcquireToken(context.Context) (provider.AccessToken, error) {
	return provider.AccessToken{Value: "static-" + uuid.NewString(), Expiry: time.Now().Add(time.Hour)}, nil
}

// CreateCheck registers a synthetic check with its one-time code.
func (p *StaticProvider) CreateCheck(_ context.Context, _ provider.AccessToken, _ string) (provider.Check, error) {
	id := uuid.NewString()
	p.mu.Lock()
	p.issued[id] = uuid.NewString()
	p.mu.Unlock()
	return provider.Check{ID: id, URL: p.RedirectBase + "/dev/checks/" + id + "/redirect"}, nil
}

// Code returns the exchange code for a check created by this provider.
func (p *StaticProvider) Code(checkID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	code, ok := p.issued[checkID]
	return code, ok
}

// Exchange approves a known code once. Unknown or reused codes are rejected
// the way the provider rejects them.
func (p *StaticProvider) Exchange(_ context.Context, _ provider.AccessToken, checkID, code string) (provider.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	want, ok := p.issued[checkID]
	if !ok {
		return provider.Result{}, &provider.Error{Kind: provider.KindExchange, Op: "exchange code", Status: 404, Detail: "check not found"}
	}
	if want == "" || want != code {
		return provider.Result{}, &provider.Error{Kind: provider.KindExchange, Op: "exchange code", Status: 409, Detail: "code already used or invalid"}
	}
	p.issued[checkID] = ""
	return provider.Result{Match: true, NoSimChange: true}, nil
}

// GetCheck reports the synthetic check state.
func (p *StaticProvider) GetCheck(_ context.Context, _ provider.AccessToken, checkID string) (json.RawMessage, error) {
	p.mu.Lock()
	code, ok := p.issued[checkID]
	p.mu.Unlock()
	if !ok {
		return nil, &provider.Error{Kind: provider.KindProvider, Op: "get check", Status: 404, Detail: "Not Found"}
	}
	status := "ACCEPTED"
	if code == "" {
		status = "COMPLETED"
	}
	return json.Marshal(map[string]any{
		"check_id":      checkID,
		"status":        status,
		"match":         status == "COMPLETED",
		"no_sim_change": status == "COMPLETED",
	})
}

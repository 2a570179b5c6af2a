package verify

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"

	"github.com/simcheck/simcheck/internal/cellular"
	"github.com/simcheck/simcheck/internal/provider"
)

type fakeProvider struct {
	tokenErr    error
	check       provider.Check
	createErr   error
	result      provider.Result
	exchangeErr error

	createdFor     string
	exchangeCalls  int
	exchangedCode  string
	exchangedCheck string
	exchangeToken  string
}

func (f *fakeProvider) AcquireToken(context.Context) (provider.AccessToken, error) {
	if f.tokenErr != nil {
		return provider.AccessToken{}, f.tokenErr
	}
	return provider.AccessToken{Value: "tok"}, nil
}

func (f *fakeProvider) CreateCheck(_ context.Context, _ provider.AccessToken, phoneNumber string) (provider.Check, error) {
	f.createdFor = phoneNumber
	if f.createErr != nil {
		return provider.Check{}, f.createErr
	}
	return f.check, nil
}

func (f *fakeProvider) Exchange(_ context.Context, token provider.AccessToken, checkID, code string) (provider.Result, error) {
	f.exchangeCalls++
	f.exchangedCheck = checkID
	f.exchangedCode = code
	f.exchangeToken = token.Value
	if f.exchangeErr != nil {
		return provider.Result{}, f.exchangeErr
	}
	return f.result, nil
}

type fakeRedirector struct {
	outcome cellular.Outcome
	before  func()
	url     string
}

func (f *fakeRedirector) ExecuteOverCellular(_ context.Context, checkURL string) cellular.Outcome {
	f.url = checkURL
	if f.before != nil {
		f.before()
	}
	return f.outcome
}

func codeOutcome(checkID, code string) cellular.Outcome {
	return cellular.HTTPResult{Status: http.StatusOK, Body: cellular.ExchangeCode{CheckID: checkID, Code: code}}
}

func defaultCheck() provider.Check {
	return provider.Check{ID: "c1", URL: "https://u"}
}

func TestRunVerified(t *testing.T) {
	p := &fakeProvider{check: defaultCheck(), result: provider.Result{Match: true, NoSimChange: true}}
	r := &fakeRedirector{outcome: codeOutcome("c1", "xyz")}

	var delivered []Attempt
	o := New(p, r, nil, WithSink(SinkFunc(func(_ context.Context, a Attempt) {
		delivered = append(delivered, a)
	})))

	attempt := o.Run(context.Background(), "447700900000")
	if attempt.State != StateVerified {
		t.Fatalf("expected verified, got %s (%v)", attempt.State, attempt.Err)
	}
	if attempt.Result != (provider.Result{Match: true, NoSimChange: true}) {
		t.Fatalf("unexpected result: %+v", attempt.Result)
	}
	if attempt.CheckID != "c1" {
		t.Fatalf("unexpected check id %q", attempt.CheckID)
	}
	if p.createdFor != "447700900000" {
		t.Fatalf("check created for %q", p.createdFor)
	}
	if r.url != "https://u" {
		t.Fatalf("redirect used %q", r.url)
	}
	if p.exchangedCheck != "c1" || p.exchangedCode != "xyz" {
		t.Fatalf("exchange called with (%q, %q)", p.exchangedCheck, p.exchangedCode)
	}
	if len(delivered) != 1 || delivered[0].State != StateVerified {
		t.Fatalf("expected one verified delivery, got %+v", delivered)
	}
}

func TestRunPassesFlagsThrough(t *testing.T) {
	p := &fakeProvider{check: defaultCheck(), result: provider.Result{Match: true, NoSimChange: false}}
	o := New(p, &fakeRedirector{outcome: codeOutcome("c1", "xyz")}, nil)

	attempt := o.Run(context.Background(), "447700900000")
	if !attempt.Verified() {
		t.Fatalf("expected verified, got %s", attempt.State)
	}
	if attempt.Result.Passed() {
		t.Fatal("sim change must not pass")
	}
}

func TestRunCellularNetworkError(t *testing.T) {
	p := &fakeProvider{check: defaultCheck()}
	r := &fakeRedirector{outcome: cellular.NetworkError{Description: "no route to host"}}

	attempt := New(p, r, nil).Run(context.Background(), "447700900000")
	if attempt.State != StateFailed {
		t.Fatalf("expected failed, got %s", attempt.State)
	}
	if !errors.Is(attempt.Err, provider.ErrNetwork) {
		t.Fatalf("expected network error, got %v", attempt.Err)
	}
	if p.exchangeCalls != 0 {
		t.Fatalf("exchange must not be invoked, got %d calls", p.exchangeCalls)
	}
}

func TestRunExchangeRejected(t *testing.T) {
	p := &fakeProvider{
		check:       defaultCheck(),
		exchangeErr: &provider.Error{Kind: provider.KindExchange, Op: "exchange code", Status: http.StatusConflict, Detail: "code already used"},
	}
	attempt := New(p, &fakeRedirector{outcome: codeOutcome("c1", "xyz")}, nil).Run(context.Background(), "447700900000")
	if attempt.State != StateFailed {
		t.Fatalf("expected failed, got %s", attempt.State)
	}
	if !errors.Is(attempt.Err, &provider.Error{Kind: provider.KindExchange, Status: http.StatusConflict}) {
		t.Fatalf("expected exchange error with 409, got %v", attempt.Err)
	}
}

func TestRunErrorBodyOn200(t *testing.T) {
	p := &fakeProvider{check: defaultCheck()}
	r := &fakeRedirector{outcome: cellular.HTTPResult{
		Status: http.StatusOK,
		Body:   cellular.ErrorBody{Error: "sim_changed", Description: "SIM changed recently"},
	}}

	attempt := New(p, r, nil).Run(context.Background(), "447700900000")
	if !errors.Is(attempt.Err, &provider.Error{Kind: provider.KindProvider, Status: http.StatusOK}) {
		t.Fatalf("expected provider error, got %v", attempt.Err)
	}
	var pErr *provider.Error
	if !errors.As(attempt.Err, &pErr) || pErr.Detail != "sim_changed: SIM changed recently" {
		t.Fatalf("unexpected detail: %v", attempt.Err)
	}
	if p.exchangeCalls != 0 {
		t.Fatal("exchange must not be invoked on an error body")
	}
}

func TestRunMalformedBodyIsProtocolError(t *testing.T) {
	p := &fakeProvider{check: defaultCheck()}
	r := &fakeRedirector{outcome: cellular.HTTPResult{
		Status: http.StatusOK,
		Body:   cellular.ErrorBody{Error: "invalid_response", Description: "<html>", Malformed: true},
	}}
	attempt := New(p, r, nil).Run(context.Background(), "447700900000")
	if !errors.Is(attempt.Err, provider.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", attempt.Err)
	}
}

func TestRunMismatchedExchangeCheckID(t *testing.T) {
	p := &fakeProvider{check: defaultCheck()}
	attempt := New(p, &fakeRedirector{outcome: codeOutcome("c2", "xyz")}, nil).Run(context.Background(), "447700900000")
	if !errors.Is(attempt.Err, provider.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", attempt.Err)
	}
	if p.exchangeCalls != 0 {
		t.Fatal("exchange must not be invoked for a foreign check")
	}
}

func TestRunExchangeCodeWithNon200Status(t *testing.T) {
	p := &fakeProvider{check: defaultCheck()}
	r := &fakeRedirector{outcome: cellular.HTTPResult{Status: http.StatusAccepted, Body: cellular.ExchangeCode{CheckID: "c1", Code: "xyz"}}}
	attempt := New(p, r, nil).Run(context.Background(), "447700900000")
	if !errors.Is(attempt.Err, provider.ErrProvider) {
		t.Fatalf("expected provider error, got %v", attempt.Err)
	}
}

func TestRunTokenFailure(t *testing.T) {
	p := &fakeProvider{tokenErr: &provider.Error{Kind: provider.KindAuth, Status: http.StatusUnauthorized}}
	r := &fakeRedirector{}
	attempt := New(p, r, nil).Run(context.Background(), "447700900000")
	if !errors.Is(attempt.Err, provider.ErrAuth) {
		t.Fatalf("expected auth error, got %v", attempt.Err)
	}
	if attempt.CheckID != "" {
		t.Fatalf("no check should exist, got %q", attempt.CheckID)
	}
	if p.createdFor != "" || r.url != "" {
		t.Fatal("later steps must not run after a token failure")
	}
}

func TestRunUntypedTokenFailureIsAuthError(t *testing.T) {
	p := &fakeProvider{tokenErr: errors.New("boom")}
	attempt := New(p, &fakeRedirector{}, nil).Run(context.Background(), "447700900000")
	if provider.KindOf(attempt.Err) != provider.KindAuth {
		t.Fatalf("expected auth kind, got %v", attempt.Err)
	}
}

func TestRunCreateCheckFailure(t *testing.T) {
	p := &fakeProvider{createErr: &provider.Error{Kind: provider.KindProvider, Status: http.StatusBadRequest}}
	r := &fakeRedirector{}
	attempt := New(p, r, nil).Run(context.Background(), "447700900000")
	if !errors.Is(attempt.Err, &provider.Error{Kind: provider.KindProvider, Status: http.StatusBadRequest}) {
		t.Fatalf("expected provider error, got %v", attempt.Err)
	}
	if r.url != "" {
		t.Fatal("redirect must not run after create failure")
	}
}

func TestRunUntypedStepFailuresCarryKind(t *testing.T) {
	cases := []struct {
		name string
		p    *fakeProvider
	}{
		{"create", &fakeProvider{createErr: errors.New("build request: bad url")}},
		{"exchange", &fakeProvider{
			check:       provider.Check{ID: "c1", URL: "https://u"},
			exchangeErr: errors.New("connection reset"),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &fakeRedirector{outcome: codeOutcome("c1", "xyz")}
			attempt := New(tc.p, r, nil).Run(context.Background(), "447700900000")
			if attempt.State != StateFailed {
				t.Fatalf("expected failed, got %s", attempt.State)
			}
			if provider.KindOf(attempt.Err) != provider.KindNetwork {
				t.Fatalf("expected network kind, got %q (%v)", provider.KindOf(attempt.Err), attempt.Err)
			}
		})
	}
}

func TestRunUsesBrokerAccessToken(t *testing.T) {
	p := &fakeProvider{
		check:  provider.Check{ID: "c1", URL: "https://u", AccessToken: "brokered"},
		result: provider.Result{Match: true, NoSimChange: true},
	}
	New(p, &fakeRedirector{outcome: codeOutcome("c1", "xyz")}, nil).Run(context.Background(), "447700900000")
	if p.exchangeToken != "brokered" {
		t.Fatalf("expected brokered token for exchange, got %q", p.exchangeToken)
	}
}

func TestRunObserverSequence(t *testing.T) {
	tests := []struct {
		name string
		p    *fakeProvider
		r    *fakeRedirector
		want []State
	}{
		{
			name: "verified",
			p:    &fakeProvider{check: defaultCheck(), result: provider.Result{Match: true, NoSimChange: true}},
			r:    &fakeRedirector{outcome: codeOutcome("c1", "xyz")},
			want: []State{StateTokenAcquired, StateCheckCreated, StateCellularRedirectDone, StateVerified},
		},
		{
			name: "cellular failure",
			p:    &fakeProvider{check: defaultCheck()},
			r:    &fakeRedirector{outcome: cellular.NetworkError{Description: "down"}},
			want: []State{StateTokenAcquired, StateCheckCreated, StateCellularRedirectDone, StateFailed},
		},
		{
			name: "token failure",
			p:    &fakeProvider{tokenErr: provider.ErrAuth},
			r:    &fakeRedirector{},
			want: []State{StateFailed},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got []State
			from := StateIdle
			o := New(tc.p, tc.r, nil, WithObserver(func(prev, next State) {
				if prev != from {
					t.Fatalf("transition from %s but previous state was %s", prev, from)
				}
				from = next
				got = append(got, next)
			}))
			o.Run(context.Background(), "447700900000")
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("expected %v got %v", tc.want, got)
			}
		})
	}
}

func TestRunCancelledIsNotDelivered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &fakeProvider{check: defaultCheck()}
	r := &fakeRedirector{outcome: codeOutcome("c1", "xyz"), before: cancel}

	delivered := 0
	o := New(p, r, nil, WithSink(SinkFunc(func(context.Context, Attempt) { delivered++ })))
	attempt := o.Run(ctx, "447700900000")

	if attempt.State != StateFailed {
		t.Fatalf("expected failed, got %s", attempt.State)
	}
	if !errors.Is(attempt.Err, provider.ErrNetwork) || !errors.Is(attempt.Err, context.Canceled) {
		t.Fatalf("expected cancelled network error, got %v", attempt.Err)
	}
	if p.exchangeCalls != 0 {
		t.Fatal("exchange must not run after cancellation")
	}
	if delivered != 0 {
		t.Fatalf("cancelled attempt must not be delivered, got %d", delivered)
	}
}

func TestRunConcurrentAttemptsAreIndependent(t *testing.T) {
	o := New(&stubProvider{}, &echoRedirector{}, nil)

	results := make(chan Attempt, 8)
	for i := 0; i < cap(results); i++ {
		go func() { results <- o.Run(context.Background(), "447700900000") }()
	}
	for i := 0; i < cap(results); i++ {
		a := <-results
		if !a.Verified() {
			t.Fatalf("attempt %d failed: %v", i, a.Err)
		}
	}
}

// stubProvider is stateless so it can be shared across goroutines.
type stubProvider struct{}

func (stubProvider) AcquireToken(context.Context) (provider.AccessToken, error) {
	return provider.AccessToken{Value: "tok"}, nil
}

func (stubProvider) CreateCheck(context.Context, provider.AccessToken, string) (provider.Check, error) {
	return defaultCheck(), nil
}

func (stubProvider) Exchange(_ context.Context, _ provider.AccessToken, checkID, code string) (provider.Result, error) {
	if checkID != "c1" || code != "xyz" {
		return provider.Result{}, provider.ErrExchange
	}
	return provider.Result{Match: true, NoSimChange: true}, nil
}

type echoRedirector struct{}

func (echoRedirector) ExecuteOverCellular(context.Context, string) cellular.Outcome {
	return codeOutcome("c1", "xyz")
}

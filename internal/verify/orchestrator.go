// Package verify runs a single subscriber check attempt end to end and
// reports exactly one terminal outcome for it.
package verify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/simcheck/simcheck/internal/cellular"
	"github.com/simcheck/simcheck/internal/provider"
)

// State is a step of a verification attempt.
type State string

const (
	StateIdle                 State = "idle"
	StateTokenAcquired        State = "token_acquired"
	StateCheckCreated         State = "check_created"
	StateCellularRedirectDone State = "cellular_redirect_done"
	StateVerified             State = "verified"
	StateFailed               State = "failed"
)

// Provider is the token, check and exchange surface the orchestrator needs.
// *provider.Client talks to the provider directly; *broker.Client goes
// through the backend broker so credentials stay off the device.
type Provider interface {
	AcquireToken(ctx context.Context) (provider.AccessToken, error)
	CreateCheck(ctx context.Context, token provider.AccessToken, phoneNumber string) (provider.Check, error)
	Exchange(ctx context.Context, token provider.AccessToken, checkID, code string) (provider.Result, error)
}

// Redirector drives a check URL over cellular data.
type Redirector interface {
	ExecuteOverCellular(ctx context.Context, checkURL string) cellular.Outcome
}

// Attempt is the terminal record of one Run.
type Attempt struct {
	State   State
	CheckID string
	// Result is set when State is StateVerified; flags are passed through
	// from the provider unchanged.
	Result provider.Result
	// Err is set when State is StateFailed.
	Err error
}

// Verified reports whether the attempt reached StateVerified. Whether the
// flags amount to a pass is for the caller to decide, see Result.Passed.
func (a Attempt) Verified() bool {
	return a.State == StateVerified
}

// Sink receives the terminal attempt. It is not called when the attempt's
// context was cancelled before completion.
type Sink interface {
	Deliver(ctx context.Context, attempt Attempt)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, attempt Attempt)

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, attempt Attempt) { f(ctx, attempt) }

// Observer is told about every state transition, terminal ones included.
type Observer func(from, to State)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSink registers the terminal event sink.
func WithSink(s Sink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithObserver registers a transition observer.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observe = fn }
}

// Orchestrator composes the provider and the cellular redirect. It keeps no
// per-attempt state, so concurrent Run calls are independent.
type Orchestrator struct {
	provider   Provider
	redirector Redirector
	logger     *slog.Logger
	sink       Sink
	observe    Observer
}

// New builds an Orchestrator.
func New(p Provider, r Redirector, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	o := &Orchestrator{provider: p, redirector: r, logger: logger}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type run struct {
	o       *Orchestrator
	state   State
	checkID string
}

func (r *run) to(next State) {
	r.o.logger.Debug("verification transition",
		slog.String("from", string(r.state)),
		slog.String("to", string(next)),
		slog.String("check_id", r.checkID),
	)
	if r.o.observe != nil {
		r.o.observe(r.state, next)
	}
	r.state = next
}

func (r *run) fail(err error) Attempt {
	r.to(StateFailed)
	return Attempt{State: StateFailed, CheckID: r.checkID, Err: err}
}

// Run performs one attempt for a canonical phone number. Every error is
// terminal; nothing is retried.
func (o *Orchestrator) Run(ctx context.Context, phoneNumber string) Attempt {
	attempt := o.run(ctx, phoneNumber)
	if ctx.Err() != nil {
		o.logger.Info("verification abandoned", slog.String("check_id", attempt.CheckID))
		return attempt
	}
	if attempt.Verified() {
		o.logger.Info("verification completed",
			slog.String("check_id", attempt.CheckID),
			slog.Bool("match", attempt.Result.Match),
			slog.Bool("no_sim_change", attempt.Result.NoSimChange),
		)
	} else {
		o.logger.Warn("verification failed",
			slog.String("check_id", attempt.CheckID),
			slog.String("kind", string(provider.KindOf(attempt.Err))),
			slog.Any("error", attempt.Err),
		)
	}
	if o.sink != nil {
		o.sink.Deliver(ctx, attempt)
	}
	return attempt
}

func (o *Orchestrator) run(ctx context.Context, phoneNumber string) Attempt {
	r := &run{o: o, state: StateIdle}

	token, err := o.provider.AcquireToken(ctx)
	if err := firstErr(ctx, err); err != nil {
		return r.fail(withKind(err, provider.KindAuth, "acquire token"))
	}
	r.to(StateTokenAcquired)

	check, err := o.provider.CreateCheck(ctx, token, phoneNumber)
	if err := firstErr(ctx, err); err != nil {
		return r.fail(withKind(err, provider.KindNetwork, "create check"))
	}
	r.checkID = check.ID
	if check.AccessToken != "" {
		token = provider.AccessToken{Value: check.AccessToken}
	}
	r.to(StateCheckCreated)

	outcome := o.redirector.ExecuteOverCellular(ctx, check.URL)
	r.to(StateCellularRedirectDone)
	if err := ctx.Err(); err != nil {
		return r.fail(cancelled(err))
	}

	code, err := exchangeCode(outcome, check.ID)
	if err != nil {
		return r.fail(err)
	}

	result, err := o.provider.Exchange(ctx, token, check.ID, code)
	if err := firstErr(ctx, err); err != nil {
		return r.fail(withKind(err, provider.KindNetwork, "exchange code"))
	}
	r.to(StateVerified)
	return Attempt{State: StateVerified, CheckID: check.ID, Result: result}
}

// exchangeCode maps the cellular outcome to the code to exchange, or to the
// terminal error for the attempt.
func exchangeCode(outcome cellular.Outcome, checkID string) (string, error) {
	const op = "cellular redirect"
	switch out := outcome.(type) {
	case cellular.NetworkError:
		return "", provider.NewNetworkError(op, out.Description, nil)
	case cellular.HTTPResult:
		switch body := out.Body.(type) {
		case cellular.ExchangeCode:
			if out.Status != http.StatusOK {
				return "", &provider.Error{Kind: provider.KindProvider, Op: op, Status: out.Status, Detail: "exchange code returned with non-200 status"}
			}
			if body.CheckID != "" && body.CheckID != checkID {
				return "", provider.NewProtocolError(op, fmt.Sprintf("exchange code is for check %s, not %s", body.CheckID, checkID))
			}
			return body.Code, nil
		case cellular.ErrorBody:
			if body.Malformed {
				return "", &provider.Error{Kind: provider.KindProtocol, Op: op, Status: out.Status, Detail: body.Description}
			}
			detail := body.Error
			if body.Description != "" {
				detail += ": " + body.Description
			}
			return "", &provider.Error{Kind: provider.KindProvider, Op: op, Status: out.Status, Detail: detail}
		}
	}
	return "", provider.NewProtocolError(op, fmt.Sprintf("unhandled outcome %T", outcome))
}

// withKind gives an error without a provider kind the kind of the step that
// failed, so every failed attempt reports one.
func withKind(err error, kind provider.Kind, op string) error {
	if provider.KindOf(err) != "" {
		return err
	}
	return &provider.Error{Kind: kind, Op: op, Detail: err.Error(), Err: err}
}

// firstErr prefers cancellation over whatever error the step produced, so an
// abandoned attempt is always reported as such.
func firstErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cancelled(cerr)
	}
	return err
}

func cancelled(err error) error {
	return provider.NewNetworkError("verification", "attempt cancelled", err)
}

// Package broker keeps provider client credentials on the server. Devices ask
// it to create checks and exchange codes; it holds the client secret, acquires
// tokens and forwards the calls to the provider.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/simcheck/simcheck/internal/logging"
	"github.com/simcheck/simcheck/internal/phone"
	"github.com/simcheck/simcheck/internal/provider"
)

// ErrInvalidInput marks request data the broker refuses before calling the provider.
var ErrInvalidInput = errors.New("invalid input")

// Provider is the provider surface the broker forwards to.
type Provider interface {
	AcquireToken(ctx context.Context) (provider.AccessToken, error)
	CreateCheck(ctx context.Context, token provider.AccessToken, phoneNumber string) (provider.Check, error)
	Exchange(ctx context.Context, token provider.AccessToken, checkID, code string) (provider.Result, error)
	GetCheck(ctx context.Context, token provider.AccessToken, checkID string) (json.RawMessage, error)
}

// Service implements the broker operations on top of a Provider.
type Service struct {
	provider Provider
	strict   bool
	logger   *slog.Logger
}

// NewService builds a broker service. With strict set, numbers must also pass
// libphonenumber validation before a check is created.
func NewService(p Provider, strict bool, logger *slog.Logger) (*Service, error) {
	if p == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{provider: p, strict: strict, logger: logger}, nil
}

// CreateInput is a check request. PhoneNumber is canonical when DialCode is
// empty; otherwise it is raw user input normalized with DialCode.
type CreateInput struct {
	DialCode    string
	PhoneNumber string
}

// CheckResult is a created check plus the token the device must present for
// the follow-up calls.
type CheckResult struct {
	CheckID     string
	CheckURL    string
	AccessToken string
}

// CreateCheck acquires a fresh token and creates a check for the number.
func (s *Service) CreateCheck(ctx context.Context, in CreateInput) (CheckResult, error) {
	number, err := s.canonical(in)
	if err != nil {
		return CheckResult{}, err
	}

	token, err := s.provider.AcquireToken(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	check, err := s.provider.CreateCheck(ctx, token, number)
	if err != nil {
		return CheckResult{}, err
	}

	s.logger.Info("subscriber check created",
		slog.String("check_id", check.ID),
		logging.Phone("phone", number),
		slog.String("country", phone.Country(number)),
	)
	return CheckResult{CheckID: check.ID, CheckURL: check.URL, AccessToken: token.Value}, nil
}

// GetCheck returns the provider's view of a check. Without an access token a
// new one is acquired.
func (s *Service) GetCheck(ctx context.Context, checkID, accessToken string) (json.RawMessage, error) {
	if strings.TrimSpace(checkID) == "" {
		return nil, fmt.Errorf("%w: check id is required", ErrInvalidInput)
	}
	token, err := s.token(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return s.provider.GetCheck(ctx, token, checkID)
}

// Exchange trades a code for the check result. Without an access token a new
// one is acquired.
func (s *Service) Exchange(ctx context.Context, checkID, code, accessToken string) (provider.Result, error) {
	if strings.TrimSpace(checkID) == "" {
		return provider.Result{}, fmt.Errorf("%w: check id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(code) == "" {
		return provider.Result{}, fmt.Errorf("%w: code is required", ErrInvalidInput)
	}
	token, err := s.token(ctx, accessToken)
	if err != nil {
		return provider.Result{}, err
	}
	result, err := s.provider.Exchange(ctx, token, checkID, code)
	if err != nil {
		return provider.Result{}, err
	}
	s.logger.Info("subscriber check exchanged",
		slog.String("check_id", checkID),
		slog.Bool("match", result.Match),
		slog.Bool("no_sim_change", result.NoSimChange),
	)
	return result, nil
}

func (s *Service) token(ctx context.Context, accessToken string) (provider.AccessToken, error) {
	if accessToken != "" {
		return provider.AccessToken{Value: accessToken}, nil
	}
	return s.provider.AcquireToken(ctx)
}

func (s *Service) canonical(in CreateInput) (string, error) {
	number := strings.TrimSpace(in.PhoneNumber)
	if number == "" {
		return "", fmt.Errorf("%w: phone_number is required", ErrInvalidInput)
	}
	if in.DialCode != "" {
		if !strings.HasPrefix(in.DialCode, "+") || !phone.IsCanonical(in.DialCode[1:]) {
			return "", fmt.Errorf("%w: dial_code must look like +44", ErrInvalidInput)
		}
		number = phone.Normalize(in.DialCode, number)
	}
	if !phone.IsCanonical(number) {
		return "", fmt.Errorf("%w: phone_number must be digits with country code", ErrInvalidInput)
	}
	if s.strict {
		if err := phone.Validate(number); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	return number, nil
}

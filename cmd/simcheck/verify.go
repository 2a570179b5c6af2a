package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/simcheck/simcheck/internal/broker"
	"github.com/simcheck/simcheck/internal/cellular"
	"github.com/simcheck/simcheck/internal/config"
	"github.com/simcheck/simcheck/internal/logging"
	"github.com/simcheck/simcheck/internal/notification"
	"github.com/simcheck/simcheck/internal/phone"
	"github.com/simcheck/simcheck/internal/provider"
	"github.com/simcheck/simcheck/internal/verify"
)

// errNotVerified makes the process exit non-zero after the result was printed.
var errNotVerified = errors.New("phone not verified")

type verifyOptions struct {
	dialCode  string
	number    string
	brokerURL string
	iface     string
	logLevel  string
}

type verifyOutput struct {
	State       verify.State `json:"state"`
	CheckID     string       `json:"check_id,omitempty"`
	Match       bool         `json:"match"`
	NoSimChange bool         `json:"no_sim_change"`
	Kind        string       `json:"kind"`
	Message     string       `json:"message"`
}

func newVerifyCmd() *cobra.Command {
	var opts verifyOptions
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run one subscriber check over the cellular interface",
		Long: `Run one subscriber check. With --broker-url (or BROKER_URL) the broker
creates the check and exchanges the code; otherwise PROVIDER_CLIENT_ID and
PROVIDER_CLIENT_SECRET are used to talk to the provider directly.

Exits 0 only when the number matched and the SIM has not changed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVerify(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.dialCode, "dial-code", "", `Dial code, for example "+44"`)
	cmd.Flags().StringVar(&opts.number, "phone", "", "Phone number as typed")
	cmd.Flags().StringVar(&opts.brokerURL, "broker-url", "", "Broker base URL (default $BROKER_URL)")
	cmd.Flags().StringVar(&opts.iface, "interface", "", "Cellular interface name (default $CELLULAR_INTERFACE)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level written to stderr (default $LOG_LEVEL)")
	_ = cmd.MarkFlagRequired("dial-code")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func runVerify(cmd *cobra.Command, opts verifyOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.brokerURL == "" {
		opts.brokerURL = cfg.BrokerURL
	}
	if opts.iface == "" {
		opts.iface = cfg.CellularInterface
	}
	if opts.logLevel == "" {
		opts.logLevel = cfg.LogLevel
	}
	logger := logging.NewTo(cmd.ErrOrStderr(), opts.logLevel)

	number := phone.Normalize(opts.dialCode, opts.number)
	if !phone.IsCanonical(number) {
		return fmt.Errorf("%q does not look like a phone number", opts.number)
	}
	if cfg.StrictPhone {
		if err := phone.Validate(number); err != nil {
			return fmt.Errorf("%s: %w", phone.E164(number), err)
		}
	}

	var p verify.Provider
	if opts.brokerURL != "" {
		p = broker.NewClient(opts.brokerURL, nil, cfg.RequestTimeout)
	} else {
		if err := cfg.RequireProviderCredentials(); err != nil {
			return fmt.Errorf("no broker configured and %w", err)
		}
		p = provider.New(provider.Config{
			BaseURL:      cfg.ProviderBaseURL,
			ClientID:     cfg.ProviderClientID,
			ClientSecret: cfg.ProviderClientSecret,
			CheckVersion: cfg.CheckAPIVersion,
			Timeout:      cfg.RequestTimeout,
		}, logger)
	}

	executor := cellular.New(opts.iface,
		cellular.WithTimeout(cfg.RequestTimeout),
		cellular.WithMaxRedirects(cfg.MaxRedirects),
		cellular.WithLogger(logger),
	)
	orchestrator := verify.New(p, executor, logger,
		verify.WithSink(notification.NewSink(notification.NewLoggerNotifier(logger), "cli", logger)),
		verify.WithObserver(func(from, to verify.State) {
			logger.Debug("state", slog.String("from", string(from)), slog.String("to", string(to)))
		}),
	)

	logger.Info("verification started", logging.Phone("phone", number), slog.String("interface", opts.iface))
	attempt := orchestrator.Run(cmd.Context(), number)
	if err := cmd.Context().Err(); err != nil {
		return fmt.Errorf("verification cancelled: %w", err)
	}

	msg := notification.ForAttempt(attempt)
	if jsonOutput(cmd) {
		if err := writeJSON(cmd.OutOrStdout(), verifyOutput{
			State:       attempt.State,
			CheckID:     attempt.CheckID,
			Match:       attempt.Result.Match,
			NoSimChange: attempt.Result.NoSimChange,
			Kind:        msg.Kind,
			Message:     msg.Body,
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), msg.Body)
	}

	if msg.Kind != notification.KindVerified {
		return errNotVerified
	}
	return nil
}

package notification

import (
	"context"
	"log/slog"

	"github.com/simcheck/simcheck/internal/verify"
)

const (
	// KindVerified indicates the number matched and the SIM has not changed.
	KindVerified = "verified"
	// KindVerificationFailed indicates the check completed but did not pass.
	KindVerificationFailed = "verification_failed"
	// KindError indicates the attempt failed before a result was obtained.
	KindError = "error"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Title       string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// ForAttempt builds the user facing message for a terminal attempt.
func ForAttempt(attempt verify.Attempt) Message {
	switch {
	case attempt.Verified() && attempt.Result.Passed():
		return Message{Kind: KindVerified, Title: "Phone Verified", Body: "Phone Verified"}
	case attempt.Verified():
		return Message{Kind: KindVerificationFailed, Title: "Verification failed", Body: "Verification failed"}
	default:
		body := "verification did not complete"
		if attempt.Err != nil {
			body = attempt.Err.Error()
		}
		return Message{Kind: KindError, Title: "Something went wrong", Body: body}
	}
}

// NewSink adapts a Notifier into an orchestrator sink addressed to destination.
// Send failures are logged and otherwise ignored; the attempt is already final.
func NewSink(n Notifier, destination string, logger *slog.Logger) verify.Sink {
	return verify.SinkFunc(func(ctx context.Context, attempt verify.Attempt) {
		msg := ForAttempt(attempt)
		msg.Destination = destination
		if err := n.Send(ctx, msg); err != nil && logger != nil {
			logger.Warn("notification failed", slog.String("kind", msg.Kind), slog.Any("error", err))
		}
	})
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("title", message.Title),
		slog.String("body", message.Body),
	)
	return nil
}

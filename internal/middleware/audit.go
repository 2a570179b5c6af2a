package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Audit writes one structured record per request. Bodies are never logged:
// they carry phone numbers, codes and access tokens. The record names the
// check a request concerns and whether it was an idempotent replay.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		attrs := []slog.Attr{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if route := c.Route(); route != nil && route.Path != "" {
			attrs = append(attrs, slog.String("route", route.Path))
		}
		if checkID := c.Params("checkId"); checkID != "" {
			attrs = append(attrs, slog.String("check_id", checkID))
		}
		if requestID := GetRequestID(c); requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if len(c.Response().Header.Peek(ReplayedHeader)) > 0 {
			attrs = append(attrs, slog.Bool("replayed", true))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
		}

		logger.LogAttrs(c.UserContext(), auditLevel(status, err), "request completed", attrs...)
		return err
	}
}

func auditLevel(status int, err error) slog.Level {
	switch {
	case err != nil, status >= fiber.StatusInternalServerError:
		return slog.LevelError
	case status >= fiber.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

package broker

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/simcheck/simcheck/internal/provider"
)

// Handler exposes the broker operations over HTTP.
type Handler struct {
	service *Service
}

// NewHandler constructs a broker handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// CreateCheck handles POST /api/subscribercheck.
func (h *Handler) CreateCheck(c *fiber.Ctx) error {
	var req CreateCheckRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, http.StatusBadRequest, errInvalidRequest, "request body must be JSON with phone_number", 0)
	}

	result, err := h.service.CreateCheck(c.UserContext(), CreateInput{DialCode: req.DialCode, PhoneNumber: req.PhoneNumber})
	if err != nil {
		return h.renderError(c, err)
	}

	return c.Status(http.StatusOK).JSON(Envelope[CheckData]{
		Message: messageSuccess,
		Data: CheckData{
			CheckID:     result.CheckID,
			CheckURL:    result.CheckURL,
			AccessToken: result.AccessToken,
		},
	})
}

// GetCheck handles GET /api/subscribercheck/:checkId.
func (h *Handler) GetCheck(c *fiber.Ctx) error {
	raw, err := h.service.GetCheck(c.UserContext(), c.Params("checkId"), c.Query("access_token"))
	if err != nil {
		return h.renderError(c, err)
	}
	return c.Status(http.StatusOK).JSON(CheckStatusEnvelope{Message: messageCheckFetched, Data: raw})
}

// Exchange handles POST /api/subscribercheck/:checkId/exchange.
func (h *Handler) Exchange(c *fiber.Ctx) error {
	var req ExchangeRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, http.StatusBadRequest, errInvalidRequest, "request body must be JSON with code", 0)
	}

	result, err := h.service.Exchange(c.UserContext(), c.Params("checkId"), req.Code, req.AccessToken)
	if err != nil {
		return h.renderError(c, err)
	}
	return c.Status(http.StatusOK).JSON(Envelope[ResultData]{
		Message: messageSuccess,
		Data:    ResultData{Match: result.Match, NoSimChange: result.NoSimChange},
	})
}

// StaticRedirect stands in for the provider's check URL in development. It
// answers with the exchange code the way the provider does at the end of the
// redirect chain.
func StaticRedirect(p *StaticProvider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		checkID := c.Params("checkId")
		code, ok := p.Code(checkID)
		if !ok {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "not_found", "error_description": "unknown check"})
		}
		if code == "" {
			return c.Status(http.StatusOK).JSON(fiber.Map{"error": "check_completed", "error_description": "check already redeemed"})
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{"check_id": checkID, "code": code})
	}
}

// statusFor maps an error to the broker's HTTP status and error code.
func statusFor(err error) (int, string) {
	if errors.Is(err, ErrInvalidInput) {
		return http.StatusBadRequest, errInvalidRequest
	}

	var pErr *provider.Error
	if !errors.As(err, &pErr) {
		return http.StatusInternalServerError, "internal_error"
	}
	kind := string(pErr.Kind)
	switch pErr.Kind {
	case provider.KindAuth, provider.KindProtocol:
		return http.StatusBadGateway, kind
	case provider.KindNetwork:
		return http.StatusGatewayTimeout, kind
	case provider.KindExchange:
		if pErr.Status >= 400 && pErr.Status < 500 {
			return pErr.Status, kind
		}
		return http.StatusBadRequest, kind
	case provider.KindProvider:
		if pErr.Status >= 400 && pErr.Status < 500 {
			return http.StatusBadRequest, kind
		}
		return http.StatusBadGateway, kind
	default:
		return http.StatusInternalServerError, kind
	}
}

func (h *Handler) renderError(c *fiber.Ctx, err error) error {
	status, code := statusFor(err)
	description := err.Error()
	upstream := 0
	var pErr *provider.Error
	if errors.As(err, &pErr) {
		upstream = pErr.Status
		if pErr.Detail != "" {
			description = pErr.Detail
		}
	}
	if status == http.StatusInternalServerError {
		h.service.logger.Error("broker request failed", slog.String("path", c.Path()), slog.Any("error", err))
		description = "internal error"
	}
	return writeError(c, status, code, description, upstream)
}

func writeError(c *fiber.Ctx, status int, code, description string, upstream int) error {
	return c.Status(status).JSON(ErrorResponse{
		Error:            code,
		ErrorDescription: description,
		ProviderStatus:   upstream,
	})
}

package webhook

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/consultbook/consultbook/internal/domain/booking"
	"github.com/consultbook/consultbook/pkg/wallclock"
)

// MaxBodyBytes caps a single delivery.
const MaxBodyBytes = 1 << 20

type Handler struct {
	pipeline *Pipeline
}

func NewHandler(p *Pipeline) *Handler {
	return &Handler{pipeline: p}
}

// RegisterRoutes mounts the provider callback. It sits outside the bearer
// auth group; deliveries authenticate with the shared token instead.
func (h *Handler) RegisterRoutes(e *echo.Echo, mw ...echo.MiddlewareFunc) {
	e.POST("/payment-webhook", h.ReceivePayment, mw...)
}

// ReceivePayment handles POST /payment-webhook.
func (h *Handler) ReceivePayment(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, MaxBodyBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unable to read body")
	}
	if len(body) > MaxBodyBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "body too large")
	}

	ev, err := h.pipeline.Parse(body)
	if err != nil {
		return mapError(err)
	}
	res, err := h.pipeline.Process(c.Request().Context(), ev)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"received": true,
		"outcome":  res.Outcome,
	})
}

func mapError(err error) error {
	var inv *InvalidWebhookError
	var ve *booking.ValidationError
	var fe *wallclock.FormatError
	switch {
	case errors.As(err, &inv):
		return echo.NewHTTPError(http.StatusBadRequest, inv.Reason)
	case errors.As(err, &ve), errors.As(err, &fe):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "webhook processing failed").SetInternal(err)
	}
}

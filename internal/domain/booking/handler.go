package booking

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/consultbook/consultbook/internal/platform/auth"
	"github.com/consultbook/consultbook/pkg/pagination"
	"github.com/consultbook/consultbook/pkg/wallclock"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/bookings", auth.RequireRole(auth.RoleClient, auth.RoleConsultant))
	read.GET("", h.ListBookings)
	read.GET("/:id", h.GetBooking)
	read.PATCH("/:id/status", h.UpdateStatus)

	admin := api.Group("/bookings", auth.RequireRole(auth.RoleAdmin))
	admin.POST("", h.CreateBooking)
}

type statusRequest struct {
	Status string `json:"status"`
}

// CreateBooking allocates a slot directly, bypassing payment.
func (h *Handler) CreateBooking(c echo.Context) error {
	var req AllocationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.Allocate(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBooking(c echo.Context) error {
	caller, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.GetBooking(c.Request().Context(), caller, id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, b)
}

// ListBookings lists the caller's bookings. Admins may filter by
// consultant_id or user_id.
func (h *Handler) ListBookings(c echo.Context) error {
	caller, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()

	var items []*Booking
	var total int
	switch {
	case caller.IsAdmin() && c.QueryParam("consultant_id") != "":
		cid, perr := uuid.Parse(c.QueryParam("consultant_id"))
		if perr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid consultant_id")
		}
		items, total, err = h.svc.ListForConsultant(ctx, cid, pg.Limit, pg.Offset)
	case caller.IsAdmin() && c.QueryParam("user_id") != "":
		uid, perr := uuid.Parse(c.QueryParam("user_id"))
		if perr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid user_id")
		}
		items, total, err = h.svc.ListForUser(ctx, uid, pg.Limit, pg.Offset)
	default:
		items, total, err = h.svc.ListBookings(ctx, caller, pg.Limit, pg.Offset)
	}
	if err != nil {
		return mapError(err)
	}
	if items == nil {
		items = []*Booking{}
	}
	resp := pagination.NewResponse(items, total, pg).WithNext(c.Request().URL.Path, c.QueryParams())
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	caller, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	next, ok := ParseStatus(req.Status)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status: "+req.Status)
	}
	b, err := h.svc.UpdateStatus(c.Request().Context(), caller, id, next)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func mapError(err error) error {
	var ve *ValidationError
	var fe *wallclock.FormatError
	switch {
	case errors.As(err, &ve), errors.As(err, &fe):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrServiceNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSlotUnavailable), errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

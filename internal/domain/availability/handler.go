package availability

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/consultbook/consultbook/internal/platform/auth"
	"github.com/consultbook/consultbook/pkg/wallclock"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/consultants/:id", auth.RequireRole(auth.RoleClient, auth.RoleConsultant))
	read.GET("/availability", h.GetAvailability)
	read.GET("/slots", h.GetAvailableSlots)
	read.GET("/available-dates", h.GetAvailableDates)

	write := api.Group("/consultants/:id", auth.RequireRole(auth.RoleConsultant))
	write.PUT("/availability", h.UpdateWeek)
	write.PUT("/availability/:day", h.UpdateDay)
}

type weeklyRequest struct {
	WeeklyAvailability []DayUpdate `json:"weeklyAvailability"`
}

func (h *Handler) GetAvailability(c echo.Context) error {
	id, err := consultantParam(c)
	if err != nil {
		return err
	}
	week, err := h.svc.GetAvailability(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, week)
}

func (h *Handler) UpdateDay(c echo.Context) error {
	id, err := consultantParam(c)
	if err != nil {
		return err
	}
	caller, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	var upd DayUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	upd.Day = c.Param("day")
	day, err := h.svc.UpdateDay(c.Request().Context(), caller, id, upd)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, day)
}

func (h *Handler) UpdateWeek(c echo.Context) error {
	id, err := consultantParam(c)
	if err != nil {
		return err
	}
	caller, err := auth.MustIdentity(c)
	if err != nil {
		return err
	}
	var req weeklyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	week, err := h.svc.UpdateWeek(c.Request().Context(), caller, id, req.WeeklyAvailability)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, week)
}

func (h *Handler) GetAvailableSlots(c echo.Context) error {
	id, err := consultantParam(c)
	if err != nil {
		return err
	}
	date := c.QueryParam("date")
	if date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date is required")
	}
	slots, err := h.svc.GetAvailableSlots(c.Request().Context(), id, date)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, slots)
}

func (h *Handler) GetAvailableDates(c echo.Context) error {
	id, err := consultantParam(c)
	if err != nil {
		return err
	}
	dates, err := h.svc.GetAvailableDates(c.Request().Context(), id, c.QueryParam("start"), c.QueryParam("end"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, dates)
}

func consultantParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid consultant id")
	}
	return id, nil
}

func mapError(err error) error {
	var ve *ValidationError
	var fe *wallclock.FormatError
	switch {
	case errors.As(err, &ve), errors.As(err, &fe):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

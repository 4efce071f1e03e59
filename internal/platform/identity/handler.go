package identity

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/consultbook/consultbook/internal/platform/auth"
)

type Handler struct {
	provider Provider
}

func NewHandler(p Provider) *Handler {
	return &Handler{provider: p}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("/users", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/:id/role", h.GetRole)
	admin.PUT("/:id/role", h.SetRole)
}

type roleBody struct {
	Role string `json:"role"`
}

func (h *Handler) GetRole(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	role, err := h.provider.GetRole(c.Request().Context(), id)
	if errors.Is(err, ErrUserNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, roleBody{Role: role})
}

func (h *Handler) SetRole(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body roleBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !ValidRole(body.Role) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown role: "+body.Role)
	}
	err = h.provider.SetRole(c.Request().Context(), id, body.Role)
	if errors.Is(err, ErrUserNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, body)
}

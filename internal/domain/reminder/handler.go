package reminder

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/glucohealth/glucohealth/internal/platform/auth"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:id/reminders", h.ListPatientReminders, auth.RequireRole(auth.RoleNurse))
	api.POST("/reminders/tick", h.RunTick, auth.RequireExactRole(auth.RoleAdmin))
}

func (h *Handler) ListPatientReminders(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	markers, err := h.engine.Markers(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, markers)
}

// RunTick runs one reminder tick immediately. Admin only.
func (h *Handler) RunTick(c echo.Context) error {
	report, err := h.engine.Tick(c.Request().Context())
	if errors.Is(err, ErrTickInProgress) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

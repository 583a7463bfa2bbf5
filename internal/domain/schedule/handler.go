package schedule

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/glucohealth/glucohealth/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/me/treatment/schedules/:date", h.GetMySchedule, auth.RequireExactRole(auth.RolePatient))
	api.GET("/patients/:id/treatment/schedules/:date", h.GetPatientSchedule, auth.RequireRole(auth.RoleNurse))
}

// parseDay accepts YYYY-MM-DD, read in loc, or an RFC 3339 instant.
func parseDay(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(time.DateOnly, raw, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid date: expected YYYY-MM-DD or RFC 3339")
	}
	return t, nil
}

func (h *Handler) GetMySchedule(c echo.Context) error {
	patientID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	return h.schedule(c, patientID)
}

func (h *Handler) GetPatientSchedule(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return h.schedule(c, patientID)
}

func (h *Handler) schedule(c echo.Context, patientID uuid.UUID) error {
	day, err := parseDay(c.Param("date"), h.svc.Location())
	if err != nil {
		return err
	}
	out, err := h.svc.BuildSchedule(c.Request().Context(), patientID, day)
	if errors.Is(err, ErrPatientNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, out)
}

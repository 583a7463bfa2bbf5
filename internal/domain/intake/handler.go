package intake

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/glucohealth/glucohealth/internal/platform/auth"
	"github.com/glucohealth/glucohealth/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	me := api.Group("/patients/me/medicaments-taken", auth.RequireExactRole(auth.RolePatient))
	me.POST("", h.CreateMyTaking)
	me.GET("", h.ListMyTakings)
	me.GET("/:id", h.GetMyTaking)
	me.PUT("/:id", h.ReplaceMyTaking)
	me.DELETE("/:id", h.DeleteMyTaking)

	staff := api.Group("", auth.RequireRole(auth.RoleNurse))
	staff.GET("/medicaments-taken", h.ListTakings)
	staff.GET("/medicaments-taken/:id", h.GetTaking)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/medicaments-taken", h.CreateTaking)
	admin.PUT("/medicaments-taken/:id", h.ReplaceTaking)
	admin.DELETE("/medicaments-taken/:id", h.DeleteTaking)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrTakingNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func parseUUID(raw, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func optionalUUID(c echo.Context, name string) (uuid.UUID, error) {
	v := c.QueryParam(name)
	if v == "" {
		return uuid.Nil, nil
	}
	return parseUUID(v, name)
}

func optionalTime(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+": expected RFC 3339")
	}
	return &t, nil
}

func filterFromQuery(c echo.Context) (Filter, error) {
	var (
		f   Filter
		err error
	)
	if f.PatientID, err = optionalUUID(c, "patient_id"); err != nil {
		return f, err
	}
	if f.TreatmentID, err = optionalUUID(c, "treatment_id"); err != nil {
		return f, err
	}
	if f.MedicamentID, err = optionalUUID(c, "medicament_id"); err != nil {
		return f, err
	}
	if f.From, err = optionalTime(c, "from"); err != nil {
		return f, err
	}
	if f.To, err = optionalTime(c, "to"); err != nil {
		return f, err
	}
	return f, nil
}

func bindInput(c echo.Context) (Input, error) {
	var in Input
	if err := c.Bind(&in); err != nil {
		return in, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return in, nil
}

// -- Staff --

func (h *Handler) CreateTaking(c echo.Context) error {
	in, err := bindInput(c)
	if err != nil {
		return err
	}
	t, err := h.svc.CreateTaking(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) ListTakings(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	page, err := h.svc.ListTakings(c.Request().Context(), f, pagination.FromContext(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) GetTaking(c echo.Context) error {
	id, err := parseUUID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	t, err := h.svc.GetTaking(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ReplaceTaking(c echo.Context) error {
	id, err := parseUUID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	in, err := bindInput(c)
	if err != nil {
		return err
	}
	t, err := h.svc.ReplaceTaking(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteTaking(c echo.Context) error {
	id, err := parseUUID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteTaking(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Patient self-service --

func (h *Handler) CreateMyTaking(c echo.Context) error {
	patientID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	in, err := bindInput(c)
	if err != nil {
		return err
	}
	t, err := h.svc.CreatePatientTaking(c.Request().Context(), patientID, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) ListMyTakings(c echo.Context) error {
	patientID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	page, err := h.svc.ListPatientTakings(c.Request().Context(), patientID, f, pagination.FromContext(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) GetMyTaking(c echo.Context) error {
	patientID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	id, err := parseUUID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	t, err := h.svc.GetPatientTaking(c.Request().Context(), patientID, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ReplaceMyTaking(c echo.Context) error {
	patientID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	id, err := parseUUID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	in, err := bindInput(c)
	if err != nil {
		return err
	}
	t, err := h.svc.ReplacePatientTaking(c.Request().Context(), patientID, id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteMyTaking(c echo.Context) error {
	patientID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	id, err := parseUUID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatientTaking(c.Request().Context(), patientID, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

package identity

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/glucohealth/glucohealth/internal/platform/auth"
	"github.com/glucohealth/glucohealth/internal/platform/notification"
	"github.com/glucohealth/glucohealth/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/login", h.Login)
	api.GET("/users/me", h.GetMe)

	// Patient self-service
	me := api.Group("/patients/me", auth.RequireExactRole(auth.RolePatient))
	me.GET("", h.GetMyPatient)
	me.PUT("", h.ReplaceMyPatient)
	me.DELETE("", h.DeleteMyPatient)

	// Patients – admin, nurse
	staff := api.Group("", auth.RequireRole(auth.RoleNurse))
	staff.POST("/patients", h.CreatePatient)
	staff.GET("/patients", h.ListPatients)
	staff.GET("/patients/:id", h.GetPatient)
	staff.PUT("/patients/:id", h.ReplacePatient)

	// Nurse self-service
	nurseMe := api.Group("/nurses/me", auth.RequireExactRole(auth.RoleNurse))
	nurseMe.GET("", h.GetMyNurse)
	nurseMe.PUT("", h.ReplaceMyNurse)
	nurseMe.DELETE("", h.DeleteMyNurse)

	// Admin only
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.DELETE("/patients/:id", h.DeletePatient)
	admin.POST("/nurses", h.CreateNurse)
	admin.GET("/nurses", h.ListNurses)
	admin.GET("/nurses/:id", h.GetNurse)
	admin.PUT("/nurses/:id", h.ReplaceNurse)
	admin.DELETE("/nurses/:id", h.DeleteNurse)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrPatientNotFound), errors.Is(err, ErrNurseNotFound), errors.Is(err, ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, notification.ErrDispatchFailed):
		return echo.NewHTTPError(http.StatusBadGateway, "could not send signup email")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func filterFromQuery(c echo.Context) UserFilter {
	return UserFilter{
		Email:      c.QueryParam("email"),
		NationalID: c.QueryParam("national_id"),
		FullName:   c.QueryParam("full_name"),
	}
}

// -- Auth --

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}
	res, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) GetMe(c echo.Context) error {
	id, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	u, err := h.svc.GetUser(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

// -- Patients --

func (h *Handler) CreatePatient(c echo.Context) error {
	var in PatientInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.CreatePatient(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	page, err := h.svc.ListPatients(c.Request().Context(), filterFromQuery(c), pagination.FromContext(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	return h.getPatient(c, id)
}

func (h *Handler) getPatient(c echo.Context, id uuid.UUID) error {
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ReplacePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	return h.replacePatient(c, id)
}

func (h *Handler) replacePatient(c echo.Context, id uuid.UUID) error {
	var in PatientInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.ReplacePatient(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetMyPatient(c echo.Context) error {
	id, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	return h.getPatient(c, id)
}

func (h *Handler) ReplaceMyPatient(c echo.Context) error {
	id, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	return h.replacePatient(c, id)
}

func (h *Handler) DeleteMyPatient(c echo.Context) error {
	id, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Nurses --

func (h *Handler) CreateNurse(c echo.Context) error {
	var in UserInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n, err := h.svc.CreateNurse(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) ListNurses(c echo.Context) error {
	page, err := h.svc.ListNurses(c.Request().Context(), filterFromQuery(c), pagination.FromContext(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) GetNurse(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	return h.getNurse(c, id)
}

func (h *Handler) getNurse(c echo.Context, id uuid.UUID) error {
	n, err := h.svc.GetNurse(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) ReplaceNurse(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	return h.replaceNurse(c, id)
}

func (h *Handler) replaceNurse(c echo.Context, id uuid.UUID) error {
	var in UserInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n, err := h.svc.ReplaceNurse(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) DeleteNurse(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteNurse(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetMyNurse(c echo.Context) error {
	id, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	return h.getNurse(c, id)
}

func (h *Handler) ReplaceMyNurse(c echo.Context) error {
	id, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	return h.replaceNurse(c, id)
}

func (h *Handler) DeleteMyNurse(c echo.Context) error {
	id, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteNurse(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

package patient

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/scribehealth/recordstore/internal/domain/audit"
	"github.com/scribehealth/recordstore/internal/domain/tenant"
	"github.com/scribehealth/recordstore/internal/platform/db"
	"github.com/scribehealth/recordstore/internal/platform/scope"
	"github.com/scribehealth/recordstore/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients", h.CreatePatient)
	api.GET("/patients", h.ListPatients)
	api.GET("/patients/:id", h.GetPatient)
	api.PUT("/patients/:id", h.UpdatePatient)
}

func requestMeta(c echo.Context) audit.RequestMeta {
	return audit.RequestMeta{IPAddress: c.RealIP(), UserAgent: c.Request().UserAgent()}
}

// writeError maps the service error taxonomy onto HTTP. Cross-tenant
// violations surface as 404: the violation is logged server-side but the
// response must not confirm the resource exists elsewhere.
func writeError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	switch {
	case errors.Is(err, scope.ErrScopeMissing):
		he = echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	case errors.Is(err, scope.ErrCrossTenantViolation), errors.Is(err, db.ErrNotFound):
		he = echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, tenant.ErrTenantInactive):
		he = echo.NewHTTPError(http.StatusForbidden, "tenant is deactivated")
	case errors.Is(err, db.ErrDuplicateKey):
		he = echo.NewHTTPError(http.StatusConflict, "mrn already in use")
	case errors.Is(err, audit.ErrChainConflict):
		he = echo.NewHTTPError(http.StatusConflict, "concurrent write, retry the request")
	case errors.Is(err, db.ErrStoreUnavailable):
		he = echo.NewHTTPError(http.StatusServiceUnavailable, "store unavailable")
	default:
		he = echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	// Keep the cause attached so the request logger can classify it.
	return he.SetInternal(err)
}

type patientRequest struct {
	MRN       string `json:"mrn"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	BirthDate string `json:"birth_date"`
}

func (h *Handler) CreatePatient(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	}

	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	p := &Patient{MRN: req.MRN, FirstName: req.FirstName, LastName: req.LastName, BirthDate: req.BirthDate}
	if err := h.svc.Create(c.Request().Context(), sc, p, requestMeta(c)); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	p, err := h.svc.Get(c.Request().Context(), sc, id)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	p := &Patient{ID: id, TenantID: sc.TenantID(), MRN: req.MRN, FirstName: req.FirstName, LastName: req.LastName, BirthDate: req.BirthDate}
	fields := []string{"mrn", "first_name", "last_name", "birth_date"}
	if err := h.svc.Update(c.Request().Context(), sc, p, fields, requestMeta(c)); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	}
	pg := pagination.FromContext(c)

	items, total, err := h.svc.List(c.Request().Context(), sc, pg.Limit, pg.Offset)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

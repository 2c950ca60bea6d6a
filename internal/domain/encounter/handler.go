package encounter

import (
	"errors"
	"net/http"
	"time"

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
	api.POST("/encounters", h.CreateEncounter)
	api.GET("/encounters/:id", h.GetEncounter)
	api.POST("/encounters/:id/end", h.EndEncounter)
	api.GET("/patients/:patientId/encounters", h.ListPatientEncounters)
}

func writeError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	switch {
	case errors.Is(err, scope.ErrScopeMissing):
		he = echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	case errors.Is(err, scope.ErrCrossTenantViolation), errors.Is(err, db.ErrNotFound):
		he = echo.NewHTTPError(http.StatusNotFound, "encounter not found")
	case errors.Is(err, tenant.ErrTenantInactive):
		he = echo.NewHTTPError(http.StatusForbidden, "tenant is deactivated")
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

type createEncounterRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	Reason    string    `json:"reason"`
	StartedAt time.Time `json:"started_at"`
}

func (h *Handler) CreateEncounter(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	}

	var req createEncounterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	e := &Encounter{PatientID: req.PatientID, Reason: req.Reason, StartedAt: req.StartedAt}
	meta := audit.RequestMeta{IPAddress: c.RealIP(), UserAgent: c.Request().UserAgent()}
	if err := h.svc.Create(c.Request().Context(), sc, e, meta); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) GetEncounter(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	e, err := h.svc.Get(c.Request().Context(), sc, id)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) EndEncounter(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if err := h.svc.End(c.Request().Context(), sc, id); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListPatientEncounters(c echo.Context) error {
	sc, err := scope.FromEcho(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	}
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	pg := pagination.FromContext(c)

	items, total, err := h.svc.ListByPatient(c.Request().Context(), sc, patientID, pg.Limit, pg.Offset)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

package tenant

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/scribehealth/recordstore/internal/domain/audit"
	"github.com/scribehealth/recordstore/internal/platform/auth"
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

// Tenant lifecycle is operator surface, admin role throughout.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("/tenants", auth.RequireRole("admin"))
	admin.POST("", h.CreateTenant)
	admin.GET("", h.ListTenants)
	admin.GET("/:id", h.GetTenant)
	admin.POST("/:id/deactivate", h.DeactivateTenant)
	admin.DELETE("/:id", h.DeleteTenant)
}

type createTenantRequest struct {
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	RetentionYears int    `json:"retention_years"`
}

func requestMeta(c echo.Context) audit.RequestMeta {
	return audit.RequestMeta{IPAddress: c.RealIP(), UserAgent: c.Request().UserAgent()}
}

func actorFrom(c echo.Context) (uuid.UUID, error) {
	s, err := scope.FromEcho(c)
	if err != nil {
		return uuid.Nil, err
	}
	return s.ActorID(), nil
}

func (h *Handler) CreateTenant(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	}

	var req createTenantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	t, err := h.svc.Create(c.Request().Context(), req.Name, req.Slug, req.RetentionYears, actor, requestMeta(c))
	if err != nil {
		if errors.Is(err, db.ErrDuplicateKey) {
			return echo.NewHTTPError(http.StatusConflict, "slug already in use")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetTenant(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListTenants(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DeactivateTenant(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if err := h.svc.Deactivate(c.Request().Context(), id, actor, requestMeta(c)); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeleteTenant(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if err := h.svc.Delete(c.Request().Context(), id, actor, requestMeta(c)); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

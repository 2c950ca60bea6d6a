package audit

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/scribehealth/recordstore/internal/platform/auth"
	"github.com/scribehealth/recordstore/internal/platform/db"
	"github.com/scribehealth/recordstore/internal/platform/scope"
	"github.com/scribehealth/recordstore/pkg/pagination"
)

type Handler struct {
	ledger *Ledger
	tx     db.TxRunner
}

func NewHandler(ledger *Ledger, tx db.TxRunner) *Handler {
	return &Handler{ledger: ledger, tx: tx}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/audit-events", h.ListEvents)
	api.GET("/audit-events/:seq", h.GetEvent)

	admin := api.Group("", auth.RequireRole("admin"))
	admin.POST("/audit-events/verify", h.VerifyChain)
	admin.POST("/audit-events/:seq/corrections", h.CorrectEvent)
}

func (h *Handler) ListEvents(c echo.Context) error {
	s, err := scope.FromEcho(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	}
	pg := pagination.FromContext(c)

	var from, to time.Time
	if v := c.QueryParam("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from timestamp")
		}
	}
	if v := c.QueryParam("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to timestamp")
		}
	}

	items, total, err := h.ledger.Timeline(c.Request().Context(), s, from, to, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetEvent(c echo.Context) error {
	s, err := scope.FromEcho(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	}
	seq, err := strconv.ParseInt(c.Param("seq"), 10, 64)
	if err != nil || seq < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid seq")
	}

	e, err := h.ledger.Get(c.Request().Context(), s, seq)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "audit event not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) VerifyChain(c echo.Context) error {
	s, err := scope.FromEcho(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	}

	fromSeq := int64(1)
	if v := c.QueryParam("from_seq"); v != "" {
		if fromSeq, err = strconv.ParseInt(v, 10, 64); err != nil || fromSeq < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from_seq")
		}
	}
	var toSeq int64
	if v := c.QueryParam("to_seq"); v != "" {
		if toSeq, err = strconv.ParseInt(v, 10, 64); err != nil || toSeq < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to_seq")
		}
	}

	res, err := h.ledger.VerifyChain(c.Request().Context(), s, fromSeq, toSeq)
	if err != nil {
		var verr *ChainVerificationError
		if errors.As(err, &verr) {
			// The chain being broken is a valid answer, not a server error.
			return c.JSON(http.StatusOK, map[string]interface{}{
				"intact":    false,
				"tenant_id": verr.TenantID,
				"seq":       verr.Seq,
				"event_id":  verr.EventID,
				"reason":    verr.Reason,
			})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

type correctionRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CorrectEvent(c echo.Context) error {
	s, err := scope.FromEcho(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing scope")
	}
	seq, err := strconv.ParseInt(c.Param("seq"), 10, 64)
	if err != nil || seq < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid seq")
	}

	var req correctionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Reason == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reason is required")
	}

	meta := RequestMeta{IPAddress: c.RealIP(), UserAgent: c.Request().UserAgent()}
	// Corrections have no business mutation of their own, so they open
	// their own transaction to serialize on the chain tail like every
	// other append.
	var e *Event
	err = h.tx.InTx(c.Request().Context(), func(ctx context.Context) error {
		e, err = h.ledger.AppendCorrection(ctx, s, seq, req.Reason, meta)
		return err
	})
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "audit event not found")
		}
		if errors.Is(err, ErrChainConflict) {
			return echo.NewHTTPError(http.StatusConflict, "concurrent write, retry the request")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, e)
}

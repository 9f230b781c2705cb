// Package api serves live series queries and flow operations over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"dtfcapture/internal/constants"
	"dtfcapture/internal/flow"
	"dtfcapture/internal/logger"
	"dtfcapture/internal/notification"
	"dtfcapture/internal/series"
	"dtfcapture/internal/state"
	"dtfcapture/pkg/concurrency"
	pkgerrors "dtfcapture/pkg/errors"
	"dtfcapture/pkg/logging"
)

type SeriesSource interface {
	FetchDaily(ctx context.Context, start, end *time.Time) ([]series.Observation, error)
	FetchWeekly(ctx context.Context, start, end *time.Time) ([]series.Observation, error)
}

type Reprocessor interface {
	Resolve(ctx context.Context, captureDate *time.Time, flowID *uuid.UUID) (flow.Context, error)
	ReprocessFlow(ctx context.Context, fc flow.Context) error
}

type StateReader interface {
	GetByFlowID(ctx context.Context, flowID uuid.UUID) (*state.State, error)
	ListFailedOrIncomplete(ctx context.Context, limit int) ([]*state.State, error)
}

type BaseHandler struct {
	Notifier notification.Notifier
	Logger   logger.Logger
}

// HandleError maps err to a status. Source timeouts answer 504, source
// rejections and network failures 502; anything else is unexpected, answers
// 500 and is reported through the notifier.
func (h *BaseHandler) HandleError(c *gin.Context, operation string, err error) {
	ctx := c.Request.Context()
	status, body, unexpected := classify(err)

	if unexpected {
		h.Logger.ErrorwCtx(ctx, "Unexpected API error", "operation", operation, "error", err, "path", c.Request.URL.Path)
		correlationID := logging.GetRequestID(ctx)
		if notifyErr := h.Notifier.Error(ctx, notification.APIError(correlationID, operation, err), err); notifyErr != nil {
			h.Logger.WarnwCtx(ctx, "Failed to notify API error", "operation", operation, "error", notifyErr)
		}
	} else {
		h.Logger.WarnwCtx(ctx, "Request error", "operation", operation, "status", status, "error", err, "path", c.Request.URL.Path)
	}

	c.JSON(status, body)
}

func classify(err error) (int, map[string]interface{}, bool) {
	var urlErr *url.Error
	switch {
	case pkgerrors.HasCode(err, pkgerrors.ErrSourceTimeout):
		return http.StatusGatewayTimeout, pkgerrors.ToErrorResponse(err), false
	case pkgerrors.HasCode(err, pkgerrors.ErrSourceRejected), pkgerrors.HasCode(err, pkgerrors.ErrSourceUnavailable):
		return http.StatusBadGateway, pkgerrors.ToErrorResponse(err), false
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable, pkgerrors.ToErrorResponse(pkgerrors.ErrServiceUnavailable.WithCause(err)), false
	case errors.As(err, &urlErr):
		return http.StatusBadGateway, pkgerrors.ToErrorResponse(pkgerrors.ErrSourceUnavailable.WithCause(err)), false
	case pkgerrors.IsValidation(err), pkgerrors.IsNotFound(err):
		return pkgerrors.ToHTTPStatus(err), pkgerrors.ToErrorResponse(err), false
	}
	return http.StatusInternalServerError, pkgerrors.ToErrorResponse(err), true
}

type Handler struct {
	BaseHandler
	source  SeriesSource
	flows   Reprocessor
	states  StateReader
	pool    *concurrency.WorkerPool
	baseCtx context.Context
}

// NewHandler runs accepted reprocess requests on pool, detached from the
// request but bound to baseCtx.
func NewHandler(baseCtx context.Context, source SeriesSource, flows Reprocessor, states StateReader, pool *concurrency.WorkerPool, notifier notification.Notifier, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{Notifier: notifier, Logger: log},
		source:      source,
		flows:       flows,
		states:      states,
		pool:        pool,
		baseCtx:     baseCtx,
	}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")
	{
		dtf := v1.Group("/dtf")
		{
			dtf.GET("/daily", h.GetDaily)
			dtf.GET("/weekly", h.GetWeekly)
			dtf.POST("/reprocess", h.Reprocess)
		}

		flows := v1.Group("/flows")
		{
			flows.GET("/incomplete", h.ListIncomplete)
			flows.GET("/:flowId", h.GetFlow)
		}
	}
}

// GetDaily queries the source live. Unparseable bounds are ignored.
// @Summary      Daily DTF series
// @Tags         dtf
// @Produce      json
// @Param        start  query     string  false  "First date (yyyy-MM-dd)"
// @Param        end    query     string  false  "Last date (yyyy-MM-dd)"
// @Success      200    {object}  SeriesResponse
// @Failure      502    {object}  map[string]interface{}
// @Failure      504    {object}  map[string]interface{}
// @Router       /dtf/daily [get]
func (h *Handler) GetDaily(c *gin.Context) {
	start, end := parseOptionalDate(c.Query("start")), parseOptionalDate(c.Query("end"))

	obs, err := h.source.FetchDaily(c.Request.Context(), start, end)
	if err != nil {
		h.HandleError(c, "GetDaily", err)
		return
	}
	c.JSON(http.StatusOK, newSeriesResponse(SeriesDaily, start, end, obs))
}

// @Summary      Weekly DTF series
// @Tags         dtf
// @Produce      json
// @Param        start  query     string  false  "First date (yyyy-MM-dd)"
// @Param        end    query     string  false  "Last date (yyyy-MM-dd)"
// @Success      200    {object}  SeriesResponse
// @Router       /dtf/weekly [get]
func (h *Handler) GetWeekly(c *gin.Context) {
	start, end := parseOptionalDate(c.Query("start")), parseOptionalDate(c.Query("end"))

	obs, err := h.source.FetchWeekly(c.Request.Context(), start, end)
	if err != nil {
		h.HandleError(c, "GetWeekly", err)
		return
	}
	c.JSON(http.StatusOK, newSeriesResponse(SeriesWeekly, start, end, obs))
}

// Reprocess resolves the flow synchronously and replays it in the background.
// A flow without a processing state is unknown and answers 404.
// @Summary      Reprocess a flow
// @Tags         flows
// @Accept       json
// @Produce      json
// @Param        request  body      ReprocessRequest  true  "Capture date and/or flow id"
// @Success      202      {object}  ReprocessResponse
// @Failure      400      {object}  map[string]interface{}
// @Failure      404      {object}  map[string]interface{}
// @Failure      503      {object}  map[string]interface{}
// @Router       /dtf/reprocess [post]
func (h *Handler) Reprocess(c *gin.Context) {
	ctx := c.Request.Context()

	var req ReprocessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, pkgerrors.ToErrorResponse(pkgerrors.ErrValidation.WithCause(err)))
		return
	}

	captureDate, flowID, err := req.Parse()
	if err != nil {
		c.JSON(http.StatusBadRequest, pkgerrors.ToErrorResponse(err))
		return
	}

	fc, err := h.flows.Resolve(ctx, captureDate, flowID)
	if err != nil {
		h.HandleError(c, "Reprocess", err)
		return
	}
	if _, err := h.states.GetByFlowID(ctx, fc.ID); err != nil {
		h.HandleError(c, "Reprocess", err)
		return
	}

	runCtx := flow.Attach(h.baseCtx, fc)
	accepted := h.pool.TrySubmit(func() {
		if err := h.flows.ReprocessFlow(runCtx, fc); err != nil {
			h.Logger.ErrorwCtx(runCtx, "Reprocess failed", "method", "api.Reprocess", "error", err)
		}
	})
	if !accepted {
		c.JSON(http.StatusServiceUnavailable, pkgerrors.ToErrorResponse(
			pkgerrors.ErrServiceUnavailable.WithDetail("message", "reprocess queue is full")))
		return
	}

	h.Logger.InfowCtx(ctx, "Reprocess accepted", "flow_id", fc.ID.String(), "capture_date", fc.DateString())
	c.JSON(http.StatusAccepted, ReprocessResponse{FlowID: fc.ID.String(), CaptureDate: fc.DateString()})
}

// @Summary      Processing state of a flow
// @Tags         flows
// @Produce      json
// @Param        flowId  path  string  true  "Flow id"
// @Router       /flows/{flowId} [get]
func (h *Handler) GetFlow(c *gin.Context) {
	id, err := uuid.Parse(c.Param("flowId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, pkgerrors.ToErrorResponse(pkgerrors.ErrValidation.WithDetail("flow_id", c.Param("flowId"))))
		return
	}

	st, err := h.states.GetByFlowID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, "GetFlow", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Failed or incomplete flows
// @Tags         flows
// @Produce      json
// @Param        limit  query     int  false  "Maximum rows"
// @Success      200    {object}  FlowsResponse
// @Router       /flows/incomplete [get]
func (h *Handler) ListIncomplete(c *gin.Context) {
	limit := constants.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, pkgerrors.ToErrorResponse(pkgerrors.ErrValidation.WithDetail("limit", raw)))
			return
		}
		limit = n
	}
	if limit > constants.MaxLimit {
		limit = constants.MaxLimit
	}

	states, err := h.states.ListFailedOrIncomplete(c.Request.Context(), limit)
	if err != nil {
		h.HandleError(c, "ListIncomplete", err)
		return
	}
	if states == nil {
		states = []*state.State{}
	}
	c.JSON(http.StatusOK, FlowsResponse{Count: len(states), Flows: states})
}

// Parse validates the identifiers. At least one must be present.
func (r ReprocessRequest) Parse() (*time.Time, *uuid.UUID, error) {
	var captureDate *time.Time
	var flowID *uuid.UUID

	if r.CaptureDate != nil && *r.CaptureDate != "" {
		t, err := flow.ParseDate(*r.CaptureDate)
		if err != nil {
			return nil, nil, pkgerrors.ErrValidation.WithDetail("capture_date", *r.CaptureDate)
		}
		captureDate = &t
	}
	if r.FlowID != nil && *r.FlowID != "" {
		id, err := uuid.Parse(*r.FlowID)
		if err != nil {
			return nil, nil, pkgerrors.ErrValidation.WithDetail("flow_id", *r.FlowID)
		}
		flowID = &id
	}
	if captureDate == nil && flowID == nil {
		return nil, nil, pkgerrors.ErrValidation.WithDetail("message", "capture_date or flow_id is required")
	}
	return captureDate, flowID, nil
}

package api

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/domain/models"
	"github.com/Alwyn-Tan/dma-strategy-backend/internal/usecase"
	xhttp "github.com/Alwyn-Tan/dma-strategy-backend/pkg/http"
	xlogger "github.com/Alwyn-Tan/dma-strategy-backend/pkg/logger"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/metrics"
)

// StockHandler exposes the price, signal and code endpoints over Echo.
type StockHandler struct {
	logger    *xlogger.Logger
	analytics *usecase.StockAnalytics
	metrics   *metrics.Recorder
}

func NewStockHandler(logger *xlogger.Logger, analytics *usecase.StockAnalytics, rec *metrics.Recorder) *StockHandler {
	return &StockHandler{logger: logger, analytics: analytics, metrics: rec}
}

func (h *StockHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/stock-data", h.StockData)
	g.GET("/signals", h.Signals)
	g.GET("/codes", h.Codes)
}

// StockData serves OHLCV rows with moving averages. The response is the
// bare row list unless meta or performance is requested, in which case
// it is an envelope with data/meta and an optional performance block.
func (h *StockHandler) StockData(c echo.Context) error {
	h.count("stock_data")
	req := &models.StockQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.analytics.StockData(c.Request().Context(), req)
	if err != nil {
		h.logger.Error("stock data usecase error", xlogger.String("code", req.Code), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	setDataHeaders(c, res.Meta)
	if req.IncludeMeta || req.IncludePerformance {
		return xhttp.SuccessResponse(c, res)
	}
	return xhttp.SuccessResponse(c, res.Data)
}

// Signals serves filtered crossover signals with generation metadata.
func (h *StockHandler) Signals(c echo.Context) error {
	h.count("signals")
	req := &models.SignalsQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.analytics.Signals(c.Request().Context(), req)
	if err != nil {
		h.logger.Error("signals usecase error", xlogger.String("code", req.Code), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

// Codes lists the symbols available locally.
func (h *StockHandler) Codes(c echo.Context) error {
	h.count("codes")
	res, err := h.analytics.Codes(c.Request().Context())
	if err != nil {
		h.logger.Error("codes usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *StockHandler) count(endpoint string) {
	if h.metrics != nil {
		h.metrics.RecordRequest(endpoint)
	}
}

// setDataHeaders mirrors the provenance meta into response headers so
// clients can check freshness without parsing the body.
func setDataHeaders(c echo.Context, meta *models.StockMeta) {
	if meta == nil {
		return
	}
	hdr := c.Response().Header()
	hdr.Set("X-Data-Status", meta.DataStatus)
	hdr.Set("X-Data-Range", fmt.Sprintf("%s,%s", deref(meta.DataRange.MinDate), deref(meta.DataRange.MaxDate)))
	hdr.Set("X-Data-Last-Updated", deref(meta.LastModified))
	hdr.Set("X-Data-Refresh", meta.Refresh.Status)
	hdr.Set("X-Data-Refresh-Reason", meta.Refresh.Reason)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

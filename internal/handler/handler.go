package handler

import (
	"errors"
	"net/http"

	"market-echo/internal/domain"
	"market-echo/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type Handler struct {
	tracer             trace.Tracer
	analysisService    *service.AnalysisService
	marketService      *service.MarketService
	transactionService *service.TransactionService
	metrics            http.Handler
}

func New(
	tracer trace.Tracer,
	analysisService *service.AnalysisService,
	marketService *service.MarketService,
	transactionService *service.TransactionService,
	metrics http.Handler,
) *Handler {
	return &Handler{
		tracer:             tracer,
		analysisService:    analysisService,
		marketService:      marketService,
		transactionService: transactionService,
		metrics:            metrics,
	}
}

// RegisterRoutes mounts every endpoint. apiMiddleware applies to /api only.
func (h *Handler) RegisterRoutes(r *gin.Engine, apiMiddleware ...gin.HandlerFunc) {
	r.GET("/health", h.Health)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics))
	}

	api := r.Group("/api", apiMiddleware...)
	api.GET("/analysis/:symbol", h.GetAnalysis)
	api.GET("/news/:symbol", h.GetNews)
	api.GET("/prices/:symbol", h.GetPrice)
	api.POST("/transactions", h.CreateTransaction)
}

// Health godoc
// @Summary      Health check
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Envelope is the body of every /api response.
type Envelope struct {
	Success bool             `json:"success"`
	Data    any              `json:"data,omitempty"`
	Error   string           `json:"error,omitempty"`
	Kind    domain.ErrorKind `json:"kind,omitempty"`
}

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, Envelope{Success: true, Data: data})
}

func respondError(c *gin.Context, status int, kind domain.ErrorKind, msg string) {
	c.JSON(status, Envelope{Success: false, Error: msg, Kind: kind})
}

func respondErr(c *gin.Context, err error) {
	respondError(c, statusFor(err), domain.KindOf(err), err.Error())
}

func statusFor(err error) int {
	var ae *domain.AnalysisError
	if errors.As(err, &ae) {
		return ae.HTTPStatus()
	}
	switch domain.KindOf(err) {
	case domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindPriceUnavailable:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func unavailable(c *gin.Context, what string) {
	respondError(c, http.StatusServiceUnavailable, domain.KindInternal, what+" unavailable")
}

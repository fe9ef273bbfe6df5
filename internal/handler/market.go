package handler

import (
	"errors"
	"net/http"

	"market-echo/internal/domain"
	"market-echo/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

type PriceResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

type NewsResponse struct {
	Symbol    string            `json:"symbol"`
	Headlines []domain.Headline `json:"headlines"`
}

// GetPrice godoc
// @Summary      Get current price
// @Tags         market
// @Produce      json
// @Param        symbol  path  string  true  "Ticker symbol (e.g., AAPL)"
// @Success      200  {object}  Envelope{data=PriceResponse}
// @Failure      404  {object}  Envelope
// @Failure      500  {object}  Envelope
// @Router       /api/prices/{symbol} [get]
func (h *Handler) GetPrice(c *gin.Context) {
	if h.marketService == nil {
		unavailable(c, "market service")
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-price")
	defer span.End()

	symbol := domain.NormalizeSymbol(c.Param("symbol"))
	span.SetAttributes(attribute.String("symbol", symbol))

	price, err := h.marketService.Price(ctx, symbol)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, PriceResponse{Symbol: symbol, Price: price})
}

// GetNews godoc
// @Summary      Get recent headlines
// @Tags         market
// @Produce      json
// @Param        symbol  path  string  true  "Ticker symbol (e.g., AAPL)"
// @Success      200  {object}  Envelope{data=NewsResponse}
// @Failure      500  {object}  Envelope
// @Router       /api/news/{symbol} [get]
func (h *Handler) GetNews(c *gin.Context) {
	if h.marketService == nil {
		unavailable(c, "market service")
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-news")
	defer span.End()

	symbol := domain.NormalizeSymbol(c.Param("symbol"))
	span.SetAttributes(attribute.String("symbol", symbol))

	headlines, err := h.marketService.News(ctx, symbol)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, NewsResponse{Symbol: symbol, Headlines: headlines})
}

// CreateTransaction godoc
// @Summary      Record a transaction
// @Description  Captures the current price and headlines for the symbol and stores them with an embedding of the headlines
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Param        body  body  service.RecordRequest  true  "Transaction"
// @Success      201  {object}  Envelope{data=domain.Transaction}
// @Failure      400  {object}  Envelope
// @Failure      404  {object}  Envelope
// @Failure      500  {object}  Envelope
// @Router       /api/transactions [post]
func (h *Handler) CreateTransaction(c *gin.Context) {
	if h.transactionService == nil {
		unavailable(c, "transaction service")
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.create-transaction")
	defer span.End()

	var req service.RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, domain.KindInvalidRequest, "invalid JSON body")
		return
	}

	tx, err := h.transactionService.Record(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrNewsUnavailable) || errors.Is(err, domain.ErrPriceNotFound) {
			respondError(c, http.StatusNotFound, domain.KindOf(err), err.Error())
			return
		}
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusCreated, tx)
}

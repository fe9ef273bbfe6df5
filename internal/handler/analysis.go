package handler

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"market-echo/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// GetAnalysis godoc
// @Summary      Analyse a symbol against similar past transactions
// @Description  Fetches current news and price, retrieves the most similar past transactions, computes trend and risk, and asks the reasoning service to challenge the recommendation
// @Tags         analysis
// @Produce      json
// @Param        symbol               path   string  true   "Ticker symbol (e.g., AAPL)"
// @Param        limit                query  int     false  "Number of similar transactions (default 5, max 50)"  default(5)
// @Param        volatilityThreshold  query  number  false  "Volatility ratio above which risk is high"  default(0.05)
// @Param        trendThreshold       query  number  false  "Percent change above which a trend is reported"  default(1.0)
// @Success      200  {object}  Envelope{data=domain.AnalysisResult}
// @Failure      400  {object}  Envelope
// @Failure      404  {object}  Envelope
// @Failure      500  {object}  Envelope
// @Router       /api/analysis/{symbol} [get]
func (h *Handler) GetAnalysis(c *gin.Context) {
	if h.analysisService == nil {
		unavailable(c, "analysis service")
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-analysis")
	defer span.End()

	req := h.analysisService.Defaults()
	req.Symbol = domain.NormalizeSymbol(c.Param("symbol"))
	if req.Symbol == "" {
		respondError(c, http.StatusBadRequest, domain.KindInvalidRequest, "symbol is required")
		return
	}
	span.SetAttributes(attribute.String("symbol", req.Symbol))

	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, http.StatusBadRequest, domain.KindInvalidRequest, "limit must be a positive integer")
			return
		}
		if n > domain.MaxSimilarLimit {
			n = domain.MaxSimilarLimit
		}
		req.Limit = n
	}

	var ok bool
	if req.VolatilityThreshold, ok = positiveQuery(c, "volatilityThreshold", req.VolatilityThreshold); !ok {
		respondError(c, http.StatusBadRequest, domain.KindInvalidRequest, "volatilityThreshold must be a positive number")
		return
	}
	if req.TrendThreshold, ok = positiveQuery(c, "trendThreshold", req.TrendThreshold); !ok {
		respondError(c, http.StatusBadRequest, domain.KindInvalidRequest, "trendThreshold must be a positive number")
		return
	}

	result, err := h.analysisService.Analyze(ctx, req)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

func positiveQuery(c *gin.Context, key string, fallback float64) (float64, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || !(v > 0) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

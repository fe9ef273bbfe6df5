package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyInput           = errors.New("empty embedding input")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrPriceNotFound        = errors.New("price not found")
	ErrNewsUnavailable      = errors.New("news unavailable")
	ErrInsufficientHistory  = errors.New("insufficient history")
	ErrValidationParse      = errors.New("validation response could not be parsed")
	ErrUpstreamTimeout      = errors.New("upstream timeout")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidLimit         = errors.New("limit must be >= 1")
	ErrTransactionNotFound  = errors.New("transaction not found")
)

type ErrorKind string

const (
	KindEmbeddingUnavailable ErrorKind = "embedding_unavailable"
	KindPriceUnavailable     ErrorKind = "price_unavailable"
	KindNewsUnavailable      ErrorKind = "news_unavailable"
	KindRetrievalFailed      ErrorKind = "retrieval_failed"
	KindInsufficientHistory  ErrorKind = "insufficient_history"
	KindValidationParse      ErrorKind = "validation_parse_error"
	KindValidationFailed     ErrorKind = "validation_unavailable"
	KindUpstreamTimeout      ErrorKind = "upstream_timeout"
	KindInvalidRequest       ErrorKind = "invalid_request"
	KindInternal             ErrorKind = "internal"
)

type Stage string

const (
	StageStart        Stage = "START"
	StageNews         Stage = "NEWS"
	StageEmbedding    Stage = "EMBEDDING"
	StageRetrieval    Stage = "RETRIEVAL"
	StagePriceLookup  Stage = "PRICE_LOOKUP"
	StageTrendCompute Stage = "TREND_COMPUTE"
	StageValidation   Stage = "VALIDATION"
	StageDone         Stage = "DONE"
	StageError        Stage = "ERROR"
)

// AnalysisError is a terminal failure of one analysis request.
type AnalysisError struct {
	Kind   ErrorKind
	Stage  Stage
	Symbol string
	Err    error
}

func (e *AnalysisError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed for %s: %s", e.Stage, e.Symbol, e.Kind)
	}
	return fmt.Sprintf("%s failed for %s: %v", e.Stage, e.Symbol, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the wrapped call ran out of time.
func (e *AnalysisError) Timeout() bool {
	return errors.Is(e.Err, ErrUpstreamTimeout)
}

func (e *AnalysisError) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindPriceUnavailable:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Warning records a non-terminal failure absorbed during an analysis.
type Warning struct {
	Stage   Stage     `json:"stage"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// KindOf returns the machine-readable kind for err, falling back to internal.
func KindOf(err error) ErrorKind {
	var ae *AnalysisError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ae):
		return ae.Kind
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidLimit):
		return KindInvalidRequest
	case errors.Is(err, ErrEmbeddingUnavailable), errors.Is(err, ErrEmptyInput):
		return KindEmbeddingUnavailable
	case errors.Is(err, ErrPriceNotFound):
		return KindPriceUnavailable
	case errors.Is(err, ErrNewsUnavailable):
		return KindNewsUnavailable
	case errors.Is(err, ErrInsufficientHistory):
		return KindInsufficientHistory
	case errors.Is(err, ErrValidationParse):
		return KindValidationParse
	case errors.Is(err, ErrUpstreamTimeout):
		return KindUpstreamTimeout
	default:
		return KindInternal
	}
}

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-loyalty-ledger/internal/catalog"
	"github.com/imrishuroy/go-loyalty-ledger/internal/idempotency"
	"github.com/imrishuroy/go-loyalty-ledger/internal/identity"
	"github.com/imrishuroy/go-loyalty-ledger/internal/intake"
	"github.com/imrishuroy/go-loyalty-ledger/internal/ledger"
	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
	"github.com/imrishuroy/go-loyalty-ledger/internal/summary"
	"github.com/imrishuroy/go-loyalty-ledger/internal/validation"
)

// ReplayStore persists Idempotency-Key outcomes. *idempotency.Store satisfies it.
type ReplayStore interface {
	CreateIfNotExists(ctx context.Context, key, operation, requestHash string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.IdempotencyRecord, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// HandlerConfig groups dependencies for the API routes.
type HandlerConfig struct {
	Store    *store.Store
	Gateway  *intake.Gateway
	Catalog  *catalog.Catalog
	Ledger   *ledger.Ledger
	Reader   *summary.Reader
	Identity *identity.Resolver
	// Replay is optional. Without it the Idempotency-Key header is not required
	// and nothing is replayed.
	Replay ReplayStore
	Logger *slog.Logger
}

type handler struct {
	cfg      HandlerConfig
	validate *validatorv10.Validate
	logger   *slog.Logger
}

// Register mounts every /v1 route on r.
func Register(r *gin.Engine, cfg HandlerConfig) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{cfg: cfg, validate: validation.New(), logger: logger}

	v1 := r.Group("/v1")
	v1.POST("/orders", h.processOrder)
	v1.POST("/refunds", h.processRefund)

	m := v1.Group("/merchants/:merchant")
	m.POST("/offers", h.createOffer)
	m.GET("/offers", h.listOffers)
	m.GET("/offers/:offer", h.getOffer)
	m.PATCH("/offers/:offer", h.updateOffer)
	m.POST("/offers/:offer/variations", h.linkVariation)
	m.GET("/offers/:offer/variations", h.listVariations)
	m.DELETE("/variations/:variation", h.unlinkVariation)

	m.GET("/customers/:customer/summary", h.customerSummary)
	m.GET("/customers/:customer/rewards", h.customerRewards)
	m.PUT("/rewards/:reward/discount", h.attachDiscount)
	m.POST("/rewards/:reward/redeem", h.redeemReward)
	m.GET("/audit", h.auditEvents)
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, intake.ErrMissingOrderID),
		errors.Is(err, intake.ErrMissingMerchantID),
		errors.Is(err, intake.ErrMissingRefundID),
		errors.Is(err, catalog.ErrInvalidOffer):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrOfferNotFound),
		errors.Is(err, catalog.ErrVariationNotFound),
		errors.Is(err, ledger.ErrRewardNotFound),
		errors.Is(err, ledger.ErrEventNotFound),
		errors.Is(err, summary.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrDuplicateOffer),
		errors.Is(err, catalog.ErrVariationMapped),
		errors.Is(err, catalog.ErrOfferInactive),
		errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, ledger.ErrNotRefundable):
		return http.StatusConflict
	case errors.Is(err, intake.ErrOrderNotProcessed):
		// 5xx so the replay record stays retryable under the same key.
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// errorBody returns the status and JSON body for err.
func errorBody(err error) (int, gin.H) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		return status, gin.H{"error": "internal_error"}
	}
	return status, gin.H{"error": err.Error()}
}

func (h *handler) fail(c *gin.Context, err error) {
	status, body := errorBody(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.JSON(status, body)
}

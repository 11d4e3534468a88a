package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-loyalty-ledger/internal/idempotency"
)

const idempotencyHeader = "Idempotency-Key"

// withReplay runs fn at most once per Idempotency-Key. A finished request is
// answered from the stored response; one still running gets 202. Reusing a
// key with a different body is rejected with 422.
func (h *handler) withReplay(c *gin.Context, scope, operation string, body []byte, fn func() (int, any)) {
	ctx := c.Request.Context()

	if h.cfg.Replay == nil {
		status, resp := fn()
		c.JSON(status, resp)
		return
	}

	idempKey := c.GetHeader(idempotencyHeader)
	if idempKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idempotency_key"})
		return
	}
	key := scope + ":" + idempKey
	hash := idempotency.HashRequest(body)

	created, err := h.cfg.Replay.CreateIfNotExists(ctx, key, operation, hash)
	if err != nil {
		h.logger.ErrorContext(ctx, "idempotency create failed", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed"})
		return
	}

	if !created {
		rec, err := h.cfg.Replay.Get(ctx, key)
		if err != nil {
			h.logger.ErrorContext(ctx, "idempotency lookup failed", "key", key, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed"})
			return
		}
		if rec == nil {
			// expired between the conditional put and the read
			c.JSON(http.StatusConflict, gin.H{"error": "idempotency_record_missing", "retry": true})
			return
		}
		if !rec.Matches(hash) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "idempotency_key_reused"})
			return
		}
		switch rec.Status {
		case idempotency.StatusDone:
			c.Header("Idempotent-Replayed", "true")
			c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
		case idempotency.StatusInProgress:
			c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress", "operation": rec.Operation})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown_idempotency_status"})
		}
		return
	}

	status, resp := fn()
	payload, err := json.Marshal(resp)
	if err != nil {
		_ = h.cfg.Replay.MarkFailed(ctx, key, fmt.Sprintf("marshal_response: %v", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	// server errors stay retryable under the same key
	if status >= http.StatusInternalServerError {
		if err := h.cfg.Replay.MarkFailed(ctx, key, fmt.Sprintf("status_%d", status)); err != nil {
			h.logger.WarnContext(ctx, "idempotency mark failed", "key", key, "error", err)
		}
	} else if err := h.cfg.Replay.MarkDone(ctx, key, string(payload), status); err != nil {
		h.logger.WarnContext(ctx, "idempotency mark done", "key", key, "error", err)
	}

	c.Data(status, "application/json; charset=utf-8", payload)
}

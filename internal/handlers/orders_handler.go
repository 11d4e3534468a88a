package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-loyalty-ledger/internal/intake"
	"github.com/imrishuroy/go-loyalty-ledger/internal/orders"
	"github.com/imrishuroy/go-loyalty-ledger/internal/validation"
)

type orderResponse struct {
	intake.Result
	IdentifiedBy string `json:"identified_by,omitempty"`
}

func sourceOrDefault(s string) orders.Source {
	if s == "" {
		return orders.SourceManual
	}
	return orders.Source(s)
}

// processOrder handles POST /v1/orders.
func (h *handler) processOrder(c *gin.Context) {
	ctx := c.Request.Context()

	var req validation.ProcessOrderRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	order, err := orders.ParseOrder(req.Order)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_order", "msg": err.Error()})
		return
	}

	customerID, method := req.CustomerID, ""
	if customerID == "" && h.cfg.Identity != nil {
		if id := h.cfg.Identity.Resolve(ctx, req.MerchantID, order); id.Found {
			customerID, method = id.CustomerID, string(id.Method)
		}
	}

	h.withReplay(c, req.MerchantID+":orders", "order:"+req.MerchantID+":"+order.ID, validation.RawBody(c), func() (int, any) {
		res, err := h.cfg.Gateway.ProcessOrder(ctx, order, req.MerchantID, customerID, sourceOrDefault(req.Source))
		if err != nil {
			h.logger.ErrorContext(ctx, "process order", "merchant_id", req.MerchantID, "order_id", order.ID, "error", err)
			return errorBody(err)
		}
		return http.StatusOK, orderResponse{Result: res, IdentifiedBy: method}
	})
}

// processRefund handles POST /v1/refunds.
func (h *handler) processRefund(c *gin.Context) {
	ctx := c.Request.Context()

	var req validation.ProcessRefundRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	refund, err := orders.ParseRefund(req.Refund)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_refund", "msg": err.Error()})
		return
	}

	h.withReplay(c, req.MerchantID+":refunds", "refund:"+req.MerchantID+":"+refund.ID, validation.RawBody(c), func() (int, any) {
		res, err := h.cfg.Gateway.ProcessRefund(ctx, refund, req.MerchantID, sourceOrDefault(req.Source))
		if err != nil {
			h.logger.ErrorContext(ctx, "process refund", "merchant_id", req.MerchantID, "refund_id", refund.ID, "error", err)
			return errorBody(err)
		}
		return http.StatusOK, res
	})
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-loyalty-ledger/internal/audit"
	"github.com/imrishuroy/go-loyalty-ledger/internal/ledger"
	"github.com/imrishuroy/go-loyalty-ledger/internal/orders"
	"github.com/imrishuroy/go-loyalty-ledger/internal/summary"
	"github.com/imrishuroy/go-loyalty-ledger/internal/validation"
)

type summaryView struct {
	summary.CustomerSummary
	Remaining int `json:"remaining"`
}

// customerSummary handles GET /v1/merchants/:merchant/customers/:customer/summary.
// With ?offer_id= it returns that single row.
func (h *handler) customerSummary(c *gin.Context) {
	ctx := c.Request.Context()
	merchantID, customerID := c.Param("merchant"), c.Param("customer")

	if offerID := c.Query("offer_id"); offerID != "" {
		s, err := h.cfg.Reader.Get(ctx, merchantID, customerID, offerID)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, summaryView{CustomerSummary: s, Remaining: s.Remaining()})
		return
	}

	rows, err := h.cfg.Reader.ListForCustomer(ctx, merchantID, customerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	views := make([]summaryView, 0, len(rows))
	for _, s := range rows {
		views = append(views, summaryView{CustomerSummary: s, Remaining: s.Remaining()})
	}
	c.JSON(http.StatusOK, gin.H{"merchant_id": merchantID, "customer_id": customerID, "offers": views})
}

func (h *handler) customerRewards(c *gin.Context) {
	rewards, err := ledger.ListRewards(c.Request.Context(), h.cfg.Store,
		c.Param("merchant"), c.Param("customer"), c.Query("offer_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rewards": rewards})
}

// attachDiscount records the upstream discount id provisioned for an earned reward.
func (h *handler) attachDiscount(c *gin.Context) {
	var req validation.AttachDiscountRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	r, err := h.cfg.Ledger.AttachDiscount(c.Request.Context(), c.Param("merchant"), c.Param("reward"), req.DiscountID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate(c, r)
	c.JSON(http.StatusOK, r)
}

// redeemReward marks an earned reward redeemed outside the order feed.
func (h *handler) redeemReward(c *gin.Context) {
	var req validation.RedeemRewardRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	r, err := h.cfg.Ledger.MarkRedeemed(c.Request.Context(), c.Param("merchant"), c.Param("reward"), req.OrderID, string(orders.SourceManual))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate(c, r)
	c.JSON(http.StatusOK, r)
}

func (h *handler) invalidate(c *gin.Context, r ledger.Reward) {
	if h.cfg.Reader != nil {
		h.cfg.Reader.Invalidate(c.Request.Context(), r.MerchantID, r.CustomerID)
	}
}

func (h *handler) auditEvents(c *gin.Context) {
	f := audit.Filter{
		CustomerID: c.Query("customer_id"),
		RewardID:   c.Query("reward_id"),
		Action:     audit.Action(c.Query("action")),
		Limit:      100,
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		f.Limit = n
	}

	events, err := audit.List(c.Request.Context(), h.cfg.Store, c.Param("merchant"), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

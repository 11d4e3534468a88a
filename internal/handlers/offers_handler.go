package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-loyalty-ledger/internal/catalog"
	"github.com/imrishuroy/go-loyalty-ledger/internal/validation"
)

func (h *handler) createOffer(c *gin.Context) {
	var req validation.CreateOfferRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	offer, err := h.cfg.Catalog.CreateOffer(c.Request.Context(), catalog.OfferInput{
		MerchantID:       c.Param("merchant"),
		BrandName:        req.BrandName,
		SizeGroup:        req.SizeGroup,
		Name:             req.Name,
		Description:      req.Description,
		RequiredQuantity: req.RequiredQuantity,
		WindowMonths:     req.WindowMonths,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Location", "/v1/merchants/"+offer.MerchantID+"/offers/"+offer.ID)
	c.JSON(http.StatusCreated, offer)
}

func (h *handler) listOffers(c *gin.Context) {
	offers, err := h.cfg.Catalog.ListOffers(c.Request.Context(), c.Param("merchant"), c.Query("active") == "true")
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offers": offers})
}

func (h *handler) getOffer(c *gin.Context) {
	offer, err := catalog.GetOffer(c.Request.Context(), h.cfg.Store, c.Param("merchant"), c.Param("offer"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

func (h *handler) updateOffer(c *gin.Context) {
	var req validation.UpdateOfferRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	offer, err := h.cfg.Catalog.UpdateOffer(c.Request.Context(), c.Param("merchant"), c.Param("offer"), catalog.OfferUpdate{
		Name:             req.Name,
		Description:      req.Description,
		RequiredQuantity: req.RequiredQuantity,
		WindowMonths:     req.WindowMonths,
		Active:           req.Active,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

func (h *handler) linkVariation(c *gin.Context) {
	var req validation.LinkVariationRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	v, err := h.cfg.Catalog.LinkVariation(c.Request.Context(), c.Param("merchant"), c.Param("offer"), catalog.VariationInput{
		VariationID:   req.VariationID,
		ItemName:      req.ItemName,
		VariationName: req.VariationName,
		SKU:           req.SKU,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h *handler) listVariations(c *gin.Context) {
	vs, err := h.cfg.Catalog.Variations(c.Request.Context(), c.Param("merchant"), c.Param("offer"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"variations": vs})
}

func (h *handler) unlinkVariation(c *gin.Context) {
	if err := h.cfg.Catalog.UnlinkVariation(c.Request.Context(), c.Param("merchant"), c.Param("variation")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

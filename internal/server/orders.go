package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	promodomain "github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
)

func (s *Server) RecalculateOrder(c *gin.Context) {
	orderID, err := parseOrderID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.adjuster.Adjust(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) EnsurePromotionsEligible(c *gin.Context) {
	orderID, err := parseOrderID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	eligible, err := s.checkout.EnsurePromotionsEligible(c.Request.Context(), orderID)
	var drift promodomain.ValidationErrors
	if err != nil && !errors.As(err, &drift) {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"eligible": eligible,
		"errors":   toValidationErrors(drift),
	}})
}

type applyCouponCodeRequest struct {
	Code string `json:"code"`
}

func (s *Server) ApplyCouponCode(c *gin.Context) {
	orderID, err := parseOrderID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req applyCouponCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		AbortWithError(c, newValidationError("code", "required", "code is required"))
		return
	}

	resp, err := s.checkout.ApplyCode(c.Request.Context(), orderID, req.Code)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RemoveCouponCode(c *gin.Context) {
	orderID, err := parseOrderID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.checkout.RemoveCode(c.Request.Context(), orderID, c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

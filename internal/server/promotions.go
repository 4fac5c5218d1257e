package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	promodomain "github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
)

func (s *Server) CreatePromotion(c *gin.Context) {
	var req promodomain.CreatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.promotionSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListPromotions(c *gin.Context) {
	var query struct {
		Advertised string `form:"advertised"`
		Coupons    string `form:"coupons"`
		Active     string `form:"active"`
		HasActions string `form:"has_actions"`
		At         string `form:"at"`
		Automatic  string `form:"automatic"`
		CategoryID string `form:"category_id"`
		Limit      int    `form:"limit"`
		Offset     int    `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := promodomain.ListPromotionRequest{
		CategoryID: strings.TrimSpace(query.CategoryID),
		Limit:      query.Limit,
		Offset:     query.Offset,
	}
	for _, flag := range []struct {
		field  string
		value  string
		target *bool
	}{
		{"advertised", query.Advertised, &req.Advertised},
		{"coupons", query.Coupons, &req.Coupons},
		{"has_actions", query.HasActions, &req.HasActions},
	} {
		parsed, err := parseOptionalBool(flag.value)
		if err != nil {
			AbortWithError(c, newValidationError(flag.field, "invalid_"+flag.field, "invalid "+flag.field))
			return
		}
		if parsed != nil {
			*flag.target = *parsed
		}
	}

	automatic, err := parseOptionalBool(query.Automatic)
	if err != nil {
		AbortWithError(c, newValidationError("automatic", "invalid_automatic", "invalid automatic"))
		return
	}
	req.Automatic = automatic

	active, err := parseOptionalBool(query.Active)
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}
	at, err := parseOptionalTime(query.At, false)
	if err != nil {
		AbortWithError(c, newValidationError("at", "invalid_at", "invalid at"))
		return
	}
	if at != nil || (active != nil && *active) {
		if at == nil {
			now := nowUTC()
			at = &now
		}
		req.ActiveAt = at
	}

	resp, err := s.promotionSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListAdvertisedPromotions(c *gin.Context) {
	resp, err := s.promotionSvc.Advertised(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPromotion(c *gin.Context) {
	resp, err := s.promotionSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DestroyPromotion(c *gin.Context) {
	if err := s.promotionSvc.Destroy(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) AddPromotionRule(c *gin.Context) {
	var req promodomain.AddRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.PromotionID = c.Param("id")

	resp, err := s.promotionSvc.AddRule(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) RemovePromotionRule(c *gin.Context) {
	if err := s.promotionSvc.RemoveRule(c.Request.Context(), c.Param("id"), c.Param("rule_id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) AddPromotionAction(c *gin.Context) {
	var req promodomain.AddActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.PromotionID = c.Param("id")

	resp, err := s.promotionSvc.AddAction(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) RemovePromotionAction(c *gin.Context) {
	if err := s.promotionSvc.RemoveAction(c.Request.Context(), c.Param("id"), c.Param("action_id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) AddPromotionCodes(c *gin.Context) {
	var req promodomain.AddCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.PromotionID = c.Param("id")

	resp, err := s.promotionSvc.AddCodes(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) CreatePromotionCodeBatch(c *gin.Context) {
	var req promodomain.CreateCodeBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.PromotionID = c.Param("id")

	resp, err := s.promotionSvc.CreateCodeBatch(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetPromotionUsage(c *gin.Context) {
	resp, err := s.promotionSvc.Usage(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPromotionEligibility(c *gin.Context) {
	orderID := strings.TrimSpace(c.Query("order_id"))
	if orderID == "" {
		AbortWithError(c, newValidationError("order_id", "required", "order_id is required"))
		return
	}

	resp, err := s.promotionSvc.Eligibility(c.Request.Context(), c.Param("id"), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ca-refa/licita-monitor/pkg/repository"
)

// keywordRuleRequest is the request body for creating/updating a keyword
// rule. validator tags enforce non-empty term and non-negative weights.
type keywordRuleRequest struct {
	Term              string `json:"term" binding:"required"`
	TitleWeight       int    `json:"title_weight" binding:"min=0"`
	DescriptionWeight int    `json:"description_weight" binding:"min=0"`
	ProductsWeight    int    `json:"products_weight" binding:"min=0"`
}

// organismRuleRequest is the request body for upserting an organism rule.
type organismRuleRequest struct {
	Kind   repository.OrganismRuleKind `json:"kind" binding:"required,oneof=priority unwanted"`
	Points *int                        `json:"points"`
}

func (s *Server) handleListKeywordRules(c *gin.Context) {
	rules, err := s.repo.ListKeywordRules(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (s *Server) handleAddKeywordRule(c *gin.Context) {
	var req keywordRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule := repository.KeywordRule{
		Term:              req.Term,
		TitleWeight:       req.TitleWeight,
		DescriptionWeight: req.DescriptionWeight,
		ProductsWeight:    req.ProductsWeight,
	}
	if err := s.repo.AddKeywordRule(c.Request.Context(), rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := s.rules.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rule saved but cache refresh failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleDeleteKeywordRule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := s.repo.DeleteKeywordRule(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := s.rules.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rule deleted but cache refresh failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListOrganismRules(c *gin.Context) {
	rules, err := s.repo.ListOrganismRules(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (s *Server) handleSetOrganismRule(c *gin.Context) {
	organismID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req organismRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule := repository.OrganismRule{OrganismID: organismID, Kind: req.Kind, Points: req.Points}
	if err := s.repo.SetOrganismRule(c.Request.Context(), rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := s.rules.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rule saved but cache refresh failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleDeleteOrganismRule(c *gin.Context) {
	organismID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := s.repo.DeleteOrganismRule(c.Request.Context(), organismID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := s.rules.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rule deleted but cache refresh failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

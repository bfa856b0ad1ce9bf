package agent

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type bidRequest struct {
	House  string          `json:"house" binding:"required"`
	Item   int             `json:"item" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
}

func (s *Service) registerRoutes() {
	r := s.node.HTTPRouter()

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.agent.Status())
	})

	r.GET("/listings", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"listings": s.agent.Listings(),
		})
	})

	r.GET("/inventory", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"inventory": s.agent.Inventory(),
		})
	})

	r.POST("/balance", func(c *gin.Context) {
		s.agent.RequestBalance()
		c.JSON(http.StatusAccepted, gin.H{"status": "requested"})
	})

	r.POST("/leave", func(c *gin.Context) {
		err := s.agent.TryDisconnect(c.Request.Context())
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"status": "left"})
		case errors.Is(err, ErrLeadingBids):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		}
	})

	r.POST("/bids", func(c *gin.Context) {
		var req bidRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		err := s.agent.BidOnItem(req.House, req.Item, req.Amount)
		switch {
		case err == nil:
			c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
		case errors.Is(err, ErrUnknownHouse), errors.Is(err, ErrUnknownItem):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, ErrInsufficientFunds):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		}
	})
}

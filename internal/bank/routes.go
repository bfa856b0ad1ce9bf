package bank

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (s *Service) registerRoutes() {
	r := s.node.HTTPRouter()

	r.GET("/accounts", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"accounts": s.bank.Ledger().Snapshot(),
		})
	})

	r.GET("/accounts/:number", func(c *gin.Context) {
		n, err := strconv.Atoi(c.Param("number"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "account number must be an integer"})
			return
		}
		acct, ok := s.bank.Ledger().Account(n)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.JSON(http.StatusOK, acct.Snapshot())
	})

	r.GET("/houses", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"houses": s.bank.Houses(),
			"agents": s.bank.Agents(),
		})
	})
}

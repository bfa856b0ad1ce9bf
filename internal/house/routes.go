package house

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Service) registerRoutes() {
	r := s.node.HTTPRouter()

	r.GET("/listing", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"house":   s.house.Info(),
			"items":   s.house.Items(),
			"backlog": s.house.Backlog(),
			"closing": s.house.Closing(),
		})
	})

	r.GET("/clients", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"clients": s.house.Clients(),
		})
	})
}

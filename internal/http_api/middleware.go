package http_api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/core-coin/solvere/internal/models"
)

const (
	apiKeyHeader     = "X-API-Key"
	adminTokenHeader = "X-Admin-Token"

	merchantContextKey = "merchant"
)

// requireAPIKey authenticates the merchant owning the X-API-Key header.
func (s *HTTPServer) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		merchant, err := s.solvere.GetMerchantByAPIKey(c.Request.Context(), c.GetHeader(apiKeyHeader))
		if err != nil {
			status, msg := s.classify(err)
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}
		c.Set(merchantContextKey, merchant)
		c.Next()
	}
}

func (s *HTTPServer) requireAdminToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(adminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func authenticatedMerchant(c *gin.Context) *models.Merchant {
	v, _ := c.Get(merchantContextKey)
	m, _ := v.(*models.Merchant)
	return m
}

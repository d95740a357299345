package middleware

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// JWTPayload represents the decoded JWT payload
type JWTPayload struct {
	Sub          string `json:"sub"`
	CustomerID   string `json:"customer_id"`
	Email        string `json:"email"`
	TenantID     string `json:"tenant_id"`
	CustomerType string `json:"customer_type"`
}

// CustomerAuthMiddleware validates customer JWT tokens and extracts the
// customer ID and buyer classification. Signature verification happens at
// the gateway; this middleware only decodes the already-verified payload.
// For storefront routes where customers access their own cart.
func CustomerAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		tokenParts := strings.Split(parts[1], ".")
		if len(tokenParts) != 3 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid JWT format"})
			c.Abort()
			return
		}

		payload, err := base64.RawURLEncoding.DecodeString(tokenParts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid JWT payload"})
			c.Abort()
			return
		}

		var jwtPayload JWTPayload
		if err := json.Unmarshal(payload, &jwtPayload); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid JWT payload structure"})
			c.Abort()
			return
		}

		customerID := jwtPayload.CustomerID
		if customerID == "" {
			customerID = jwtPayload.Sub
		}
		if customerID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Customer ID not found in token"})
			c.Abort()
			return
		}

		c.Set("customer_id", customerID)
		c.Set("customer_email", jwtPayload.Email)
		if jwtPayload.CustomerType != "" {
			c.Set("buyer_class", strings.ToUpper(jwtPayload.CustomerType))
		}
		if jwtPayload.TenantID != "" && c.GetString("tenant_id") == "" {
			c.Set("tenant_id", jwtPayload.TenantID)
		}

		c.Next()
	}
}

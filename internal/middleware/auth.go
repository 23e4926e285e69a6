package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier validates a bearer token and returns the authenticated user
// id. Token issuance (OTP flow) lives in the external auth service; the core
// only consumes the result.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier constructs a TokenVerifier over the shared HMAC secret.
func NewTokenVerifier(secret []byte) *TokenVerifier {
	return &TokenVerifier{secret: secret}
}

// Verify parses and validates the token, returning the subject user id.
func (v *TokenVerifier) Verify(token string) (int, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	switch sub := claims["sub"].(type) {
	case string:
		userID, err := strconv.Atoi(sub)
		if err != nil || userID == 0 {
			return 0, ErrInvalidToken
		}
		return userID, nil
	case float64:
		if sub == 0 {
			return 0, ErrInvalidToken
		}
		return int(sub), nil
	default:
		return 0, ErrInvalidToken
	}
}

// AuthMiddleware validates the Authorization header and stores the
// authenticated user id on the request context.
func AuthMiddleware(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		userID, err := verifier.Verify(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}

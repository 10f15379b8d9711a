package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gbrlsnchs/jwt/v3"
	"github.com/gin-gonic/gin"
)

const (
	RoleMember = "member"
	RoleSystem = "system"

	actorIDKey   = "actor_id"
	actorRoleKey = "actor_role"
)

// Claims is the payload of a service token
type Claims struct {
	jwt.Payload
	UserID int64  `json:"uid"`
	Role   string `json:"role"`
}

// Authenticator signs and verifies HS256 service tokens
type Authenticator struct {
	alg *jwt.HMACSHA
	now func() time.Time
}

// NewAuthenticator creates an authenticator for secret
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{alg: jwt.NewHS256([]byte(secret)), now: time.Now}
}

// Issue signs a token for userID valid for ttl
func (a *Authenticator) Issue(userID int64, role string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Payload: jwt.Payload{
			Issuer:         "commerce-ledger",
			IssuedAt:       jwt.NumericDate(now),
			ExpirationTime: jwt.NumericDate(now.Add(ttl)),
		},
		UserID: userID,
		Role:   role,
	}
	token, err := jwt.Sign(&claims, a.alg)
	if err != nil {
		return "", err
	}
	return string(token), nil
}

// Verify checks the signature and expiry of token
func (a *Authenticator) Verify(token string) (*Claims, error) {
	var claims Claims
	expiry := jwt.ValidatePayload(&claims.Payload, jwt.ExpirationTimeValidator(a.now()))
	if _, err := jwt.Verify([]byte(token), a.alg, &claims, expiry); err != nil {
		return nil, err
	}
	if claims.UserID <= 0 {
		return nil, errors.New("token has no user")
	}
	if claims.Role != RoleMember && claims.Role != RoleSystem {
		return nil, errors.New("token has an unknown role")
	}
	return &claims, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// acting user in the gin context
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
			return
		}

		claims, err := a.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid token",
				"details": err.Error(),
			})
			return
		}

		c.Set(actorIDKey, claims.UserID)
		c.Set(actorRoleKey, claims.Role)
		c.Next()
	}
}

func actorID(c *gin.Context) int64 {
	return c.GetInt64(actorIDKey)
}

func actorRole(c *gin.Context) string {
	return c.GetString(actorRoleKey)
}

// requireRole aborts unless the actor has role
func requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if actorRole(c) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden", "details": "requires role " + role})
			return
		}
		c.Next()
	}
}

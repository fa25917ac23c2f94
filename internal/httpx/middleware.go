package httpx

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set("rid", rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		rid, _ := c.Get("rid")
		log.Printf("[http] rid=%v %s %s status=%d dur=%s",
			rid, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Context keys set by Auth.
const (
	UserKey = "uid"
	RoleKey = "role"
)

// Auth validates a Bearer JWT (HS256) and stores the subject claim as the
// caller's user id. Everything past this middleware can treat the id as opaque.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, role, err := parseBearer(c.GetHeader("Authorization"), secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(UserKey, uid)
		if role != "" {
			c.Set(RoleKey, role)
		}
		c.Next()
	}
}

// AdminOnly rejects tokens without the admin role claim. Runs after Auth.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(RoleKey) != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func parseBearer(header, secret string) (sub, role string, err error) {
	if secret == "" {
		return "", "", errors.New("jwt secret is empty")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", "", errors.New("invalid authorization header")
	}
	tok, err := jwt.Parse(strings.TrimSpace(parts[1]), func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return "", "", err
	}
	sub, err = tok.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", "", errors.New("missing subject claim")
	}
	if mc, ok := tok.Claims.(jwt.MapClaims); ok {
		role, _ = mc["role"].(string)
	}
	return sub, role, nil
}

package httpkit

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"lead_protection_backend/platform/apperr"
	"lead_protection_backend/platform/config"
	"lead_protection_backend/platform/logger"
)

const (
	errMissingToken = "missing token"
	errInvalidToken = "invalid token"

	tokenTypeAccess = "access"
	clockSkew       = 30 * time.Second
)

// AccessClaims is the access token issued by the identity service. Roles and
// territories feed the lead access guard.
type AccessClaims struct {
	jwt.RegisteredClaims
	Type        string   `json:"type"`
	Roles       []string `json:"roles,omitempty"`
	Territories []string `json:"territories,omitempty"`
}

// AuthRequired rejects requests without a valid HS256 access token and stores
// the caller's id, roles and territories on the gin context.
func AuthRequired(cfg config.JWTConfig) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	secret := []byte(cfg.GetJWTAccessSecret())

	return func(c *gin.Context) {
		rawToken, ok := extractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c, errMissingToken)
			return
		}

		claims, err := parseAccessClaims(parser, secret, rawToken)
		if err != nil {
			abortUnauthorized(c, errInvalidToken)
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil || userID == uuid.Nil {
			abortUnauthorized(c, errInvalidToken)
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Set(ContextRolesKey, cleanList(claims.Roles, false))
		c.Set(ContextTerritoriesKey, cleanList(claims.Territories, true))
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.UserIDKey, userID.String()))
		c.Next()
	}
}

func parseAccessClaims(parser *jwt.Parser, secret []byte, rawToken string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, err := parser.ParseWithClaims(rawToken, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}); err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeAccess {
		return nil, errors.New("not an access token")
	}
	return claims, nil
}

// cleanList trims and drops empty entries. Territory ids are upper-cased to
// match how leads store them.
func cleanList(values []string, upper bool) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if upper {
			v = strings.ToUpper(v)
		}
		out = append(out, v)
	}
	return out
}

func extractBearerToken(authHeader string) (string, bool) {
	scheme, rawToken, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	rawToken = strings.TrimSpace(rawToken)
	return rawToken, rawToken != ""
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: message, Code: apperr.KindUnauthorized.String()})
}

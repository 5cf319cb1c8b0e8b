package httpkit

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lead_protection_backend/platform/apperr"
)

// Identity is the verified caller behind a request. Roles and territories
// come straight from the access token; what they permit is decided by the
// lead access policy.
type Identity interface {
	UserID() uuid.UUID
	Roles() []string
	// Territories returns the territory ids the user covers.
	Territories() []string
	HasRole(role string) bool
}

type identity struct {
	userID      uuid.UUID
	roles       []string
	territories []string
}

func (i identity) UserID() uuid.UUID        { return i.userID }
func (i identity) Roles() []string          { return i.roles }
func (i identity) Territories() []string    { return i.territories }
func (i identity) HasRole(role string) bool { return slices.Contains(i.roles, role) }

// GetIdentity returns the identity AuthRequired stored on c. ok is false when
// the request was not authenticated.
func GetIdentity(c *gin.Context) (Identity, bool) {
	raw, exists := c.Get(ContextUserIDKey)
	if !exists {
		return nil, false
	}
	uid, ok := raw.(uuid.UUID)
	if !ok || uid == uuid.Nil {
		return nil, false
	}

	id := identity{userID: uid}
	if roles, ok := c.Get(ContextRolesKey); ok {
		id.roles, _ = roles.([]string)
	}
	if territories, ok := c.Get(ContextTerritoriesKey); ok {
		id.territories, _ = territories.([]string)
	}
	return id, true
}

// MustGetIdentity returns the caller or aborts with 401 and returns nil.
func MustGetIdentity(c *gin.Context) Identity {
	id, ok := GetIdentity(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: apperr.KindUnauthorized.String()})
		return nil
	}
	return id
}

// Package handler contains the Gin HTTP handlers of the incident service.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/2001118301/bullying-detection-system/internal/identity"
	"github.com/2001118301/bullying-detection-system/internal/users"
)

const ctxCurrentUser = "current_user"

// userLookup resolves the current registration of a user id,
// satisfied by *users.UserService.
type userLookup interface {
	Lookup(ctx context.Context, userID string) (*users.User, error)
}

// Authenticator guards routes that need a logged-in user. The session token
// only names the user; role and device are always read from the ledger, so a
// re-registration takes effect on the next request.
type Authenticator struct {
	sessions *identity.SessionIssuer
	users    userLookup
	logger   *zap.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(sessions *identity.SessionIssuer, users userLookup, logger *zap.Logger) *Authenticator {
	return &Authenticator{sessions: sessions, users: users, logger: logger}
}

// Require returns the middleware chain that verifies the Bearer token and
// loads the user it names.
func (a *Authenticator) Require() []gin.HandlerFunc {
	return []gin.HandlerFunc{identity.RequireSession(a.sessions), a.loadUser}
}

func (a *Authenticator) loadUser(c *gin.Context) {
	claims := identity.SessionFromCtx(c)
	if claims == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token is missing!"})
		return
	}
	u, err := a.users.Lookup(c.Request.Context(), claims.UserID)
	if err != nil {
		if !errors.Is(err, users.ErrNotFound) {
			a.logger.Error("resolve session user", zap.String("user_id", claims.UserID), zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not found!"})
		return
	}
	c.Set(ctxCurrentUser, u)
	c.Next()
}

// CurrentUser returns the user loaded by Authenticator, or nil.
func CurrentUser(c *gin.Context) *users.User {
	v, _ := c.Get(ctxCurrentUser)
	u, _ := v.(*users.User)
	return u
}

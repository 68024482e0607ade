package v1

import (
	"context"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/apperror"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/auth"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const identityKey = "identity"

// Authenticator сопоставляет bearer-токен личности
type Authenticator interface {
	Authenticate(ctx context.Context, credential string, mode auth.Mode) (auth.Identity, error)
}

// BearerAuthMiddleware - middleware для аутентификации по bearer-токену (режим required)
func BearerAuthMiddleware(authenticator Authenticator, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := authenticator.Authenticate(c.Request.Context(), c.GetHeader("Authorization"), auth.ModeRequired)
		if err != nil {
			log.WithError(err).WithField("path", c.FullPath()).Warn("Request authentication failed")
			abortWithError(c, err)
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// RequireRole пропускает только перечисленные роли; ставится после BearerAuthMiddleware
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := identityFrom(c)
		for _, role := range roles {
			if identity.Role == role {
				c.Next()
				return
			}
		}
		required := models.RoleAdmin
		if len(roles) > 0 {
			required = roles[0]
		}
		abortWithError(c, apperror.Authorization(string(required)))
	}
}

func identityFrom(c *gin.Context) auth.Identity {
	if v, ok := c.Get(identityKey); ok {
		if identity, ok := v.(auth.Identity); ok {
			return identity
		}
	}
	return auth.Anonymous()
}

package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/apperror"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/metrics"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/models"
	"github.com/sirupsen/logrus"
)

// Mode - режим проверки учетных данных
type Mode string

const (
	// ModeOptional: невалидный или отсутствующий токен дает анонимную личность
	ModeOptional Mode = "optional"
	// ModeRequired: невалидный или отсутствующий токен отклоняет действие
	ModeRequired Mode = "required"
)

// Identity - личность владельца соединения или запроса
type Identity struct {
	UserID        string      `json:"userId,omitempty"`
	Role          models.Role `json:"role"`
	Authenticated bool        `json:"authenticated"`
}

func Anonymous() Identity {
	return Identity{Role: models.RoleAnonymous}
}

// UserFinder ищет пользователя во внешнем хранилище
type UserFinder interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

// Gate сопоставляет bearer-токен пользователю и роли
type Gate struct {
	verifier TokenVerifier
	users    UserFinder
	timeout  time.Duration
	logger   *logrus.Logger
}

func NewGate(verifier TokenVerifier, users UserFinder, timeout time.Duration, logger *logrus.Logger) *Gate {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Gate{
		verifier: verifier,
		users:    users,
		timeout:  timeout,
		logger:   logger,
	}
}

// Authenticate проверяет токен. В режиме optional любые сбои приводят к анонимной личности,
// в режиме required возвращается AuthenticationError (или TransientDependencyError при таймауте хранилища).
func (g *Gate) Authenticate(ctx context.Context, credential string, mode Mode) (Identity, error) {
	log := g.logger.WithFields(logrus.Fields{
		"component": "auth",
		"method":    "Authenticate",
		"mode":      mode,
	})

	token := BearerToken(credential)
	if token == "" {
		metrics.AuthAttempts.WithLabelValues(string(mode), "missing").Inc()
		return g.reject(mode, apperror.Authentication("credential required"))
	}

	claims, err := g.verifier.VerifyToken(token)
	if err != nil {
		outcome := "invalid"
		if errors.Is(err, ErrTokenExpired) {
			outcome = "expired"
		}
		metrics.AuthAttempts.WithLabelValues(string(mode), outcome).Inc()
		log.WithError(err).Debug("Token verification failed")
		return g.reject(mode, apperror.Authentication("invalid or expired credential"))
	}

	user, err := g.findUser(ctx, claims.UserID)
	if err != nil {
		if apperror.IsKind(err, apperror.KindNotFound) {
			metrics.AuthAttempts.WithLabelValues(string(mode), "unknown_user").Inc()
			log.WithField("user_id", claims.UserID).Warn("Token references unknown user")
			return g.reject(mode, apperror.Authentication("invalid or expired credential"))
		}
		metrics.AuthAttempts.WithLabelValues(string(mode), "store_unavailable").Inc()
		log.WithError(err).WithField("user_id", claims.UserID).Warn("User lookup failed")
		if mode == ModeOptional {
			return Anonymous(), nil
		}
		return Identity{}, apperror.Transient(err)
	}

	if user.Status != models.UserActive {
		metrics.AuthAttempts.WithLabelValues(string(mode), "inactive_user").Inc()
		return g.reject(mode, apperror.Authentication("account is not active"))
	}

	role := user.Role
	if !role.Valid() || role == models.RoleAnonymous {
		role = models.RoleCitizen
	}

	metrics.AuthAttempts.WithLabelValues(string(mode), "success").Inc()
	return Identity{UserID: user.ID, Role: role, Authenticated: true}, nil
}

// findUser повторяет чтение один раз без задержки, если сбой временный.
// Каждая попытка получает собственный таймаут.
func (g *Gate) findUser(ctx context.Context, id string) (*models.User, error) {
	user, err := g.findUserOnce(ctx, id)
	if err == nil || apperror.IsKind(err, apperror.KindNotFound) || ctx.Err() != nil {
		return user, err
	}
	return g.findUserOnce(ctx, id)
}

func (g *Gate) findUserOnce(ctx context.Context, id string) (*models.User, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.users.FindUserByID(attemptCtx, id)
}

func (g *Gate) reject(mode Mode, err error) (Identity, error) {
	if mode == ModeOptional {
		return Anonymous(), nil
	}
	return Identity{}, err
}

// BearerToken извлекает токен из заголовка "Bearer <token>" или возвращает строку как есть
func BearerToken(credential string) string {
	credential = strings.TrimSpace(credential)
	if len(credential) > 7 && strings.EqualFold(credential[:7], "bearer ") {
		return strings.TrimSpace(credential[7:])
	}
	return credential
}

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/apperror"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/auth"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/auth/mocks"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// newTestGate вспомогательная функция для создания шлюза с моками
func newTestGate(t *testing.T) (*auth.Gate, *mocks.MockTokenVerifier, *mocks.MockUserFinder) {
	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockTokenVerifier(ctrl)
	users := mocks.NewMockUserFinder(ctrl)

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах

	return auth.NewGate(verifier, users, 50*time.Millisecond, logger), verifier, users
}

func TestAuthenticate_Success(t *testing.T) {
	gate, verifier, users := newTestGate(t)
	ctx := context.Background()

	verifier.EXPECT().VerifyToken("good").Return(auth.Claims{UserID: "u1"}, nil).Times(1)
	users.EXPECT().FindUserByID(gomock.Any(), "u1").
		Return(&models.User{ID: "u1", Role: models.RoleResponder, Status: models.UserActive}, nil).Times(1)

	id, err := gate.Authenticate(ctx, "Bearer good", auth.ModeRequired)

	require.NoError(t, err)
	assert.Equal(t, auth.Identity{UserID: "u1", Role: models.RoleResponder, Authenticated: true}, id)
}

func TestAuthenticate_MissingCredential(t *testing.T) {
	gate, _, _ := newTestGate(t)

	id, err := gate.Authenticate(context.Background(), "", auth.ModeOptional)
	require.NoError(t, err)
	assert.Equal(t, auth.Anonymous(), id)

	_, err = gate.Authenticate(context.Background(), "  ", auth.ModeRequired)
	assert.True(t, apperror.IsKind(err, apperror.KindAuthentication))
}

func TestAuthenticate_ExpiredTokenTreatedAsAbsent(t *testing.T) {
	gate, verifier, _ := newTestGate(t)

	verifier.EXPECT().VerifyToken("old").Return(auth.Claims{}, auth.ErrTokenExpired).Times(2)

	id, err := gate.Authenticate(context.Background(), "old", auth.ModeOptional)
	require.NoError(t, err)
	assert.False(t, id.Authenticated)
	assert.Equal(t, models.RoleAnonymous, id.Role)

	_, err = gate.Authenticate(context.Background(), "old", auth.ModeRequired)
	assert.True(t, apperror.IsKind(err, apperror.KindAuthentication))
}

func TestAuthenticate_StoreTimeoutRetriedOnce(t *testing.T) {
	gate, verifier, users := newTestGate(t)

	verifier.EXPECT().VerifyToken("tok").Return(auth.Claims{UserID: "u1"}, nil).Times(2)
	users.EXPECT().FindUserByID(gomock.Any(), "u1").
		Return(nil, apperror.Transient(context.DeadlineExceeded)).Times(4)

	id, err := gate.Authenticate(context.Background(), "tok", auth.ModeOptional)
	require.NoError(t, err)
	assert.Equal(t, auth.Anonymous(), id)

	_, err = gate.Authenticate(context.Background(), "tok", auth.ModeRequired)
	assert.True(t, apperror.IsKind(err, apperror.KindTransient))
}

func TestAuthenticate_RetrySucceeds(t *testing.T) {
	gate, verifier, users := newTestGate(t)

	verifier.EXPECT().VerifyToken("tok").Return(auth.Claims{UserID: "u2"}, nil)
	gomock.InOrder(
		users.EXPECT().FindUserByID(gomock.Any(), "u2").Return(nil, errors.New("connection reset")),
		users.EXPECT().FindUserByID(gomock.Any(), "u2").
			Return(&models.User{ID: "u2", Role: models.RoleAdmin, Status: models.UserActive}, nil),
	)

	id, err := gate.Authenticate(context.Background(), "tok", auth.ModeRequired)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, id.Role)
}

// Первая попытка зависает до таймаута, повтор должен получить свежий дедлайн
func TestAuthenticate_RetryAfterTimeoutGetsFreshDeadline(t *testing.T) {
	gate, verifier, users := newTestGate(t)

	verifier.EXPECT().VerifyToken("tok").Return(auth.Claims{UserID: "u4"}, nil)
	gomock.InOrder(
		users.EXPECT().FindUserByID(gomock.Any(), "u4").
			DoAndReturn(func(ctx context.Context, _ string) (*models.User, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}),
		users.EXPECT().FindUserByID(gomock.Any(), "u4").
			DoAndReturn(func(ctx context.Context, _ string) (*models.User, error) {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return &models.User{ID: "u4", Role: models.RoleResponder, Status: models.UserActive}, nil
			}),
	)

	id, err := gate.Authenticate(context.Background(), "tok", auth.ModeRequired)
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{UserID: "u4", Role: models.RoleResponder, Authenticated: true}, id)
}

func TestAuthenticate_CanceledContextIsNotRetried(t *testing.T) {
	gate, verifier, users := newTestGate(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	verifier.EXPECT().VerifyToken("tok").Return(auth.Claims{UserID: "u5"}, nil)
	users.EXPECT().FindUserByID(gomock.Any(), "u5").Return(nil, context.Canceled).Times(1)

	_, err := gate.Authenticate(ctx, "tok", auth.ModeRequired)
	assert.True(t, apperror.IsKind(err, apperror.KindTransient))
}

func TestAuthenticate_UnknownOrSuspendedUser(t *testing.T) {
	gate, verifier, users := newTestGate(t)

	verifier.EXPECT().VerifyToken(gomock.Any()).Return(auth.Claims{UserID: "u3"}, nil).Times(2)
	gomock.InOrder(
		users.EXPECT().FindUserByID(gomock.Any(), "u3").Return(nil, apperror.NotFound("user")).Times(1),
		users.EXPECT().FindUserByID(gomock.Any(), "u3").
			Return(&models.User{ID: "u3", Role: models.RoleCitizen, Status: models.UserSuspended}, nil).Times(1),
	)

	_, err := gate.Authenticate(context.Background(), "a", auth.ModeRequired)
	assert.True(t, apperror.IsKind(err, apperror.KindAuthentication))

	_, err = gate.Authenticate(context.Background(), "b", auth.ModeRequired)
	assert.True(t, apperror.IsKind(err, apperror.KindAuthentication))
}

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := auth.NewJWTVerifier("secret-for-tests", "accident-traffic")

	token, err := v.GenerateToken("user-42", time.Minute)
	require.NoError(t, err)

	claims, err := v.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.UserID)
	assert.WithinDuration(t, time.Now().Add(time.Minute), claims.ExpiresAt, 5*time.Second)

	_, err = auth.NewJWTVerifier("other-secret", "accident-traffic").VerifyToken(token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)

	expired, err := v.GenerateToken("user-42", -time.Minute)
	require.NoError(t, err)
	_, err = v.VerifyToken(expired)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", auth.BearerToken("Bearer abc"))
	assert.Equal(t, "abc", auth.BearerToken("bearer  abc "))
	assert.Equal(t, "abc", auth.BearerToken("abc"))
	assert.Equal(t, "", auth.BearerToken(""))
}

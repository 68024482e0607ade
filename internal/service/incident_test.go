package service_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/apperror"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/auth"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/models"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/service"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/service/mocks"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	citizen = auth.Identity{UserID: "u-1", Role: models.RoleCitizen, Authenticated: true}
	admin   = auth.Identity{UserID: "a-1", Role: models.RoleAdmin, Authenticated: true}
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах
	return logger
}

// newTestIncidentService вспомогательная функция для создания инстанса сервиса с моками.
func newTestIncidentService(t *testing.T) (service.IncidentService, *mocks.MockIncidentRepository, *mocks.MockEventDispatcher) {
	ctrl := gomock.NewController(t)
	repoMock := mocks.NewMockIncidentRepository(ctrl)
	dispatcherMock := mocks.NewMockEventDispatcher(ctrl)

	return service.NewIncidentService(repoMock, dispatcherMock, quietLogger()), repoMock, dispatcherMock
}

func TestGetIncident_Success_FromCache(t *testing.T) {
	// Подготовка
	svc, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	expectedIncident := &models.Incident{
		ID:   incidentID,
		Type: models.TypeAccident,
	}

	// Ожидания
	repoMock.EXPECT().
		GetIncidentFromCache(ctx, incidentID).
		Return(expectedIncident, nil).
		Times(1)

	// Действие
	incident, err := svc.GetIncident(ctx, incidentID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expectedIncident, incident)
}

func TestGetIncident_Success_FromDB(t *testing.T) {
	// Подготовка
	svc, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	expectedIncident := &models.Incident{
		ID:   incidentID,
		Type: models.TypeHazard,
	}

	// Ожидания
	// 1. Ошибка кеша не мешает чтению из БД
	repoMock.EXPECT().
		GetIncidentFromCache(ctx, incidentID).
		Return(nil, fmt.Errorf("redis down")).
		Times(1)

	// 2. Попадание в БД
	repoMock.EXPECT().
		GetByID(ctx, incidentID).
		Return(expectedIncident, nil).
		Times(1)

	// 3. Запись в кеш
	repoMock.EXPECT().
		SetIncidentCache(ctx, expectedIncident).
		Return(nil).
		Times(1)

	// Действие
	incident, err := svc.GetIncident(ctx, incidentID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expectedIncident, incident)
}

func TestGetIncident_NotFound(t *testing.T) {
	// Подготовка
	svc, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()

	// Ожидания
	repoMock.EXPECT().GetIncidentFromCache(ctx, incidentID).Return(nil, nil).Times(1)
	repoMock.EXPECT().GetByID(ctx, incidentID).Return(nil, apperror.NotFound("incident")).Times(1)

	// Действие
	incident, err := svc.GetIncident(ctx, incidentID)

	// Проверки
	require.Error(t, err)
	assert.Nil(t, incident)
	assert.ErrorContains(t, err, "could not get incident")
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestCreateIncident_Success(t *testing.T) {
	// Подготовка
	svc, repoMock, dispatcherMock := newTestIncidentService(t)
	ctx := context.Background()
	incidentToCreate := &models.Incident{
		Type:      models.TypeAccident,
		Severity:  models.SeverityCritical,
		Latitude:  12.97,
		Longitude: 77.59,
		Status:    models.StatusResolved,
	}

	// Ожидания
	repoMock.EXPECT().
		Create(ctx, gomock.Any()).
		DoAndReturn(func(ctx context.Context, inc *models.Incident) error {
			// Симулируем, что БД присвоила ID
			assert.Equal(t, models.StatusPending, inc.Status)
			assert.Equal(t, citizen.UserID, inc.ReporterID)
			inc.ID = uuid.New()
			return nil
		}).Times(1)

	dispatcherMock.EXPECT().Created(incidentToCreate, citizen).Return(3).Times(1)

	// Действие
	err := svc.CreateIncident(ctx, citizen, incidentToCreate)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, incidentToCreate.Status)
	assert.NotEqual(t, uuid.Nil, incidentToCreate.ID)
}

func TestCreateIncident_Validation(t *testing.T) {
	tests := []struct {
		name     string
		incident models.Incident
		field    string
	}{
		{"unknown type", models.Incident{Type: "meteor", Severity: models.SeverityLow}, "type"},
		{"unknown severity", models.Incident{Type: models.TypeAccident, Severity: "extreme"}, "severity"},
		{"bad latitude", models.Incident{Type: models.TypeAccident, Severity: models.SeverityLow, Latitude: 91}, "latitude"},
		{"bad longitude", models.Incident{Type: models.TypeAccident, Severity: models.SeverityLow, Longitude: -181}, "longitude"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repoMock, dispatcherMock := newTestIncidentService(t)
			repoMock.EXPECT().Create(gomock.Any(), gomock.Any()).Times(0)
			dispatcherMock.EXPECT().Created(gomock.Any(), gomock.Any()).Times(0)

			inc := tt.incident
			err := svc.CreateIncident(context.Background(), citizen, &inc)

			require.Error(t, err)
			f := apperror.ToFailure(err)
			assert.Equal(t, apperror.KindValidation, f.Code)
			assert.Equal(t, tt.field, f.Field)
		})
	}
}

func TestCreateIncident_RepositoryError(t *testing.T) {
	svc, repoMock, dispatcherMock := newTestIncidentService(t)
	ctx := context.Background()

	repoMock.EXPECT().Create(ctx, gomock.Any()).Return(fmt.Errorf("connection refused")).Times(1)
	dispatcherMock.EXPECT().Created(gomock.Any(), gomock.Any()).Times(0)

	err := svc.CreateIncident(ctx, citizen, &models.Incident{Type: models.TypeWeather, Severity: models.SeverityLow})

	require.Error(t, err)
	assert.ErrorContains(t, err, "could not create incident")
}

func TestVerifyIncident_Success(t *testing.T) {
	// Подготовка
	svc, repoMock, dispatcherMock := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	existing := &models.Incident{ID: incidentID, Status: models.StatusPending, ReporterID: "u-1"}
	verified := &models.Incident{ID: incidentID, Status: models.StatusActive, ReporterID: "u-1"}

	// Ожидания
	repoMock.EXPECT().GetByID(ctx, incidentID).Return(existing, nil).Times(1)
	repoMock.EXPECT().UpdateStatus(ctx, incidentID, models.StatusPending, models.StatusActive).Return(verified, nil).Times(1)
	repoMock.EXPECT().InvalidateIncidentCache(ctx, incidentID).Return(nil).Times(1)
	dispatcherMock.EXPECT().Verified(verified).Return(1).Times(1)

	// Действие
	incident, err := svc.VerifyIncident(ctx, admin, incidentID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, incident.Status)
}

func TestVerifyIncident_IllegalTransition(t *testing.T) {
	svc, repoMock, dispatcherMock := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()

	repoMock.EXPECT().GetByID(ctx, incidentID).Return(&models.Incident{ID: incidentID, Status: models.StatusResolved}, nil).Times(1)
	repoMock.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	dispatcherMock.EXPECT().Verified(gomock.Any()).Times(0)

	_, err := svc.VerifyIncident(ctx, admin, incidentID)

	require.Error(t, err)
	f := apperror.ToFailure(err)
	assert.Equal(t, apperror.KindValidation, f.Code)
	assert.Equal(t, "status", f.Field)
}

func TestRejectIncident_DispatchesStatusChange(t *testing.T) {
	svc, repoMock, dispatcherMock := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	rejected := &models.Incident{ID: incidentID, Status: models.StatusRejected}

	repoMock.EXPECT().GetByID(ctx, incidentID).Return(&models.Incident{ID: incidentID, Status: models.StatusPending}, nil).Times(1)
	repoMock.EXPECT().UpdateStatus(ctx, incidentID, models.StatusPending, models.StatusRejected).Return(rejected, nil).Times(1)
	repoMock.EXPECT().InvalidateIncidentCache(ctx, incidentID).Return(fmt.Errorf("redis down")).Times(1)
	dispatcherMock.EXPECT().StatusChanged(rejected, models.StatusPending).Return(0).Times(1)

	incident, err := svc.RejectIncident(ctx, admin, incidentID)

	require.NoError(t, err)
	assert.Equal(t, rejected, incident)
}

func TestUpdateStatus_Resolve(t *testing.T) {
	svc, repoMock, dispatcherMock := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	resolved := &models.Incident{ID: incidentID, Status: models.StatusResolved}

	repoMock.EXPECT().GetByID(ctx, incidentID).Return(&models.Incident{ID: incidentID, Status: models.StatusActive}, nil).Times(1)
	repoMock.EXPECT().UpdateStatus(ctx, incidentID, models.StatusActive, models.StatusResolved).Return(resolved, nil).Times(1)
	repoMock.EXPECT().InvalidateIncidentCache(ctx, incidentID).Return(nil).Times(1)
	dispatcherMock.EXPECT().StatusChanged(resolved, models.StatusActive).Return(2).Times(1)

	incident, err := svc.UpdateStatus(ctx, admin, incidentID, models.StatusResolved)

	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, incident.Status)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	svc, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()

	repoMock.EXPECT().GetByID(ctx, incidentID).Return(nil, apperror.NotFound("incident")).Times(1)

	_, err := svc.UpdateStatus(ctx, admin, incidentID, models.StatusResolved)

	require.Error(t, err)
	assert.ErrorContains(t, err, "not available for status change")
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestUpdateStatus_ConcurrentChange(t *testing.T) {
	svc, repoMock, dispatcherMock := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()

	repoMock.EXPECT().GetByID(ctx, incidentID).Return(&models.Incident{ID: incidentID, Status: models.StatusPending}, nil).Times(1)
	repoMock.EXPECT().
		UpdateStatus(ctx, incidentID, models.StatusPending, models.StatusActive).
		Return(nil, apperror.Validation("status", "incident is no longer pending")).
		Times(1)
	dispatcherMock.EXPECT().StatusChanged(gomock.Any(), gomock.Any()).Times(0)

	_, err := svc.UpdateStatus(ctx, admin, incidentID, models.StatusActive)

	require.Error(t, err)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestClearIncident_Success(t *testing.T) {
	svc, repoMock, dispatcherMock := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	cleared := &models.Incident{ID: incidentID, Status: models.StatusActive}

	repoMock.EXPECT().Clear(ctx, incidentID).Return(cleared, nil).Times(1)
	repoMock.EXPECT().InvalidateIncidentCache(ctx, incidentID).Return(nil).Times(1)
	dispatcherMock.EXPECT().Cleared(cleared).Return(4).Times(1)

	incident, err := svc.ClearIncident(ctx, admin, incidentID)

	require.NoError(t, err)
	assert.Equal(t, cleared, incident)
}

func TestListIncidents_Success(t *testing.T) {
	// Подготовка
	svc, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	expectedIncidents := []*models.Incident{
		{ID: uuid.New(), Type: models.TypeAccident},
		{ID: uuid.New(), Type: models.TypeRoadClosure},
	}

	// Ожидания: некорректная пагинация заменяется значениями по умолчанию
	repoMock.EXPECT().ListIncidents(ctx, 1, 20).Return(expectedIncidents, nil).Times(1)

	// Действие
	incidents, err := svc.ListIncidents(ctx, 0, 500)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expectedIncidents, incidents)
}

func TestIncidentExists(t *testing.T) {
	svc, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	id := uuid.New()

	repoMock.EXPECT().IncidentExists(ctx, id).Return(true, nil).Times(1)
	exists, err := svc.IncidentExists(ctx, id)
	require.NoError(t, err)
	assert.True(t, exists)

	repoMock.EXPECT().IncidentExists(ctx, id).Return(false, fmt.Errorf("timeout")).Times(1)
	_, err = svc.IncidentExists(ctx, id)
	assert.ErrorContains(t, err, "could not check incident")
}

package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/apperror"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/geo"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/models"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/service"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestAnalyticsService(t *testing.T, timeout time.Duration) (service.AnalyticsService, *mocks.MockSnapshotSource) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockSnapshotSource(ctrl)
	return service.NewAnalyticsService(source, timeout, 3, quietLogger()), source
}

func TestCongestion_UsesRadiusFilter(t *testing.T) {
	svc, source := newTestAnalyticsService(t, time.Second)
	center := geo.Point{Lat: 12.97, Lng: 77.59}

	source.EXPECT().
		IncidentSnapshot(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, filter models.SnapshotFilter) ([]models.Incident, error) {
			require.NotNil(t, filter.Latitude)
			require.NotNil(t, filter.Longitude)
			assert.Equal(t, 12.97, *filter.Latitude)
			assert.Equal(t, 77.59, *filter.Longitude)
			assert.Equal(t, 5.0, filter.RadiusKm)
			assert.ElementsMatch(t, []models.Status{models.StatusPending, models.StatusActive}, filter.Statuses)
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			return []models.Incident{{
				Type:      models.TypeAccident,
				Severity:  models.SeverityHigh,
				Latitude:  12.971,
				Longitude: 77.591,
				CreatedAt: time.Now(),
			}}, nil
		}).Times(1)

	res, err := svc.Congestion(context.Background(), center, 5)

	require.NoError(t, err)
	assert.Equal(t, 1, res.IncidentCount)
	assert.Greater(t, res.Score, 0.0)
}

func TestCongestion_InvalidArea(t *testing.T) {
	svc, source := newTestAnalyticsService(t, time.Second)
	source.EXPECT().IncidentSnapshot(gomock.Any(), gomock.Any()).Times(0)

	tests := []struct {
		name   string
		center geo.Point
		radius float64
		field  string
	}{
		{"latitude", geo.Point{Lat: 100}, 5, "lat"},
		{"longitude", geo.Point{Lng: 200}, 5, "lng"},
		{"zero radius", geo.Point{}, 0, "radius"},
		{"radius too large", geo.Point{}, 51, "radius"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Congestion(context.Background(), tt.center, tt.radius)
			require.Error(t, err)
			assert.Equal(t, tt.field, apperror.ToFailure(err).Field)
		})
	}
}

func TestSnapshot_RetriedOnceOnTransientFailure(t *testing.T) {
	svc, source := newTestAnalyticsService(t, time.Second)

	gomock.InOrder(
		source.EXPECT().IncidentSnapshot(gomock.Any(), gomock.Any()).Return(nil, fmt.Errorf("connection reset")).Times(1),
		source.EXPECT().IncidentSnapshot(gomock.Any(), gomock.Any()).Return([]models.Incident{}, nil).Times(1),
	)

	hotspots, err := svc.Hotspots(context.Background(), service.HotspotQuery{Days: 7})

	require.NoError(t, err)
	assert.Empty(t, hotspots)
}

func TestSnapshot_TimeoutReturnsTransient(t *testing.T) {
	svc, source := newTestAnalyticsService(t, 20*time.Millisecond)

	source.EXPECT().
		IncidentSnapshot(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ models.SnapshotFilter) ([]models.Incident, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}).Times(2)

	_, err := svc.PeakHours(context.Background(), service.PeakHoursQuery{Days: 30})

	require.Error(t, err)
	f := apperror.ToFailure(err)
	assert.Equal(t, apperror.KindTransient, f.Code)
	assert.True(t, f.Retryable)
}

func TestHotspots_Validation(t *testing.T) {
	svc, source := newTestAnalyticsService(t, time.Second)
	source.EXPECT().IncidentSnapshot(gomock.Any(), gomock.Any()).Times(0)

	_, err := svc.Hotspots(context.Background(), service.HotspotQuery{Days: 0})
	assert.Equal(t, "days", apperror.ToFailure(err).Field)

	_, err = svc.Hotspots(context.Background(), service.HotspotQuery{Days: 7, MinIncidents: -1})
	assert.Equal(t, "minIncidents", apperror.ToFailure(err).Field)

	_, err = svc.Hotspots(context.Background(), service.HotspotQuery{Days: 7, Threshold: 120})
	assert.Equal(t, "threshold", apperror.ToFailure(err).Field)
}

func TestPeakHours_AreaIsOptional(t *testing.T) {
	svc, source := newTestAnalyticsService(t, time.Second)
	created := time.Now().UTC().Add(-time.Hour)

	source.EXPECT().
		IncidentSnapshot(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, filter models.SnapshotFilter) ([]models.Incident, error) {
			assert.Nil(t, filter.Latitude)
			assert.Nil(t, filter.Longitude)
			return []models.Incident{{CreatedAt: created}}, nil
		}).Times(1)

	res, err := svc.PeakHours(context.Background(), service.PeakHoursQuery{Days: 7})

	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalIncidents)
	assert.Equal(t, created.Hour(), res.PeakHour)
}

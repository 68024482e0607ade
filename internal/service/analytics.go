package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/analytics"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/apperror"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/geo"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/metrics"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	congestionWindow = 24 * time.Hour
	maxAnalyticsDays = 365
	maxRadiusKm      = 50
)

// SnapshotSource отдает выборку инцидентов для аналитики
type SnapshotSource interface {
	IncidentSnapshot(ctx context.Context, filter models.SnapshotFilter) ([]models.Incident, error)
}

// HotspotQuery - параметры поиска горячих точек
type HotspotQuery struct {
	Days         int
	MinIncidents int
	Threshold    float64
}

// PeakHoursQuery - параметры анализа часов пик; Center nil означает всю область
type PeakHoursQuery struct {
	Center   *geo.Point
	RadiusKm float64
	Days     int
}

// AnalyticsService определяет контракт аналитики по инцидентам
type AnalyticsService interface {
	Congestion(ctx context.Context, center geo.Point, radiusKm float64) (analytics.CongestionResult, error)
	Hotspots(ctx context.Context, q HotspotQuery) ([]analytics.Hotspot, error)
	PeakHours(ctx context.Context, q PeakHoursQuery) (analytics.PeakHours, error)
}

type analyticsService struct {
	source           SnapshotSource
	timeout          time.Duration
	hotspotPrecision int
	logger           *logrus.Logger
	now              func() time.Time
}

func NewAnalyticsService(source SnapshotSource, timeout time.Duration, hotspotPrecision int, logger *logrus.Logger) AnalyticsService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &analyticsService{
		source:           source,
		timeout:          timeout,
		hotspotPrecision: hotspotPrecision,
		logger:           logger,
		now:              time.Now,
	}
}

// Congestion считает загруженность по активным инцидентам за последние сутки
func (s *analyticsService) Congestion(ctx context.Context, center geo.Point, radiusKm float64) (analytics.CongestionResult, error) {
	start := time.Now()
	if err := validateArea(center, radiusKm); err != nil {
		return analytics.CongestionResult{}, err
	}

	now := s.now()
	lat, lng := center.Lat, center.Lng
	incidents, err := s.snapshot(ctx, "congestion", models.SnapshotFilter{
		Since:     now.Add(-congestionWindow),
		Latitude:  &lat,
		Longitude: &lng,
		RadiusKm:  radiusKm,
		Statuses:  []models.Status{models.StatusPending, models.StatusActive},
	})
	if err != nil {
		observe("congestion", start, err)
		return analytics.CongestionResult{}, err
	}

	result, err := analytics.Congestion(incidents, center, radiusKm, now)
	observe("congestion", start, err)
	if err != nil {
		return analytics.CongestionResult{}, apperror.Validation("radius", err.Error())
	}
	return result, nil
}

// Hotspots ищет горячие точки за последние q.Days дней
func (s *analyticsService) Hotspots(ctx context.Context, q HotspotQuery) ([]analytics.Hotspot, error) {
	start := time.Now()
	if err := validateDays(q.Days); err != nil {
		return nil, err
	}
	if q.MinIncidents == 0 {
		q.MinIncidents = analytics.DefaultMinIncidents
	}
	if q.MinIncidents < 1 {
		return nil, apperror.Validation("minIncidents", "must be at least 1")
	}
	if q.Threshold < 0 || q.Threshold > 100 {
		return nil, apperror.Validation("threshold", "must be between 0 and 100")
	}

	now := s.now()
	since := now.AddDate(0, 0, -q.Days)
	incidents, err := s.snapshot(ctx, "hotspots", models.SnapshotFilter{
		Since:    since,
		Statuses: []models.Status{models.StatusPending, models.StatusActive, models.StatusResolved},
	})
	if err != nil {
		observe("hotspots", start, err)
		return nil, err
	}

	hotspots := analytics.Hotspots(incidents, analytics.HotspotOptions{
		Precision:    s.hotspotPrecision,
		MinIncidents: q.MinIncidents,
		Threshold:    q.Threshold,
		Since:        since,
		Now:          now,
	})
	observe("hotspots", start, nil)
	return hotspots, nil
}

// PeakHours строит гистограмму по часам за последние q.Days дней
func (s *analyticsService) PeakHours(ctx context.Context, q PeakHoursQuery) (analytics.PeakHours, error) {
	start := time.Now()
	if err := validateDays(q.Days); err != nil {
		return analytics.PeakHours{}, err
	}

	now := s.now()
	filter := models.SnapshotFilter{
		Since:    now.AddDate(0, 0, -q.Days),
		Statuses: []models.Status{models.StatusPending, models.StatusActive, models.StatusResolved},
	}
	if q.Center != nil {
		if err := validateArea(*q.Center, q.RadiusKm); err != nil {
			return analytics.PeakHours{}, err
		}
		lat, lng := q.Center.Lat, q.Center.Lng
		filter.Latitude, filter.Longitude, filter.RadiusKm = &lat, &lng, q.RadiusKm
	}

	incidents, err := s.snapshot(ctx, "peak_hours", filter)
	if err != nil {
		observe("peak_hours", start, err)
		return analytics.PeakHours{}, err
	}

	result := analytics.PeakHourAnalysis(incidents, now, time.UTC)
	observe("peak_hours", start, nil)
	return result, nil
}

// snapshot читает выборку с таймаутом; временный сбой повторяется один раз без задержки
func (s *analyticsService) snapshot(ctx context.Context, kind string, filter models.SnapshotFilter) ([]models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "analytics",
		"method":  kind,
	})

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		incidents, err := s.source.IncidentSnapshot(attemptCtx, filter)
		cancel()
		if err == nil {
			log.WithField("count", len(incidents)).Debug("Incident snapshot fetched")
			return incidents, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			break
		}
		log.WithError(err).WithField("attempt", attempt).Warn("Incident snapshot fetch failed")
	}

	log.WithError(lastErr).Error("Failed to fetch incident snapshot")
	if !retryable(lastErr) {
		return nil, fmt.Errorf("service: could not fetch incident snapshot: %w", lastErr)
	}
	return nil, apperror.Transient(lastErr)
}

func retryable(err error) bool {
	switch apperror.KindOf(err) {
	case apperror.KindValidation, apperror.KindNotFound, apperror.KindAuthentication, apperror.KindAuthorization:
		return false
	}
	return !errors.Is(err, context.Canceled)
}

func observe(kind string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.AnalyticsDuration.WithLabelValues(kind, status).Observe(time.Since(start).Seconds())
}

func validateArea(center geo.Point, radiusKm float64) error {
	if err := center.Validate(); err != nil {
		field := "lat"
		if errors.Is(err, geo.ErrInvalidLongitude) {
			field = "lng"
		}
		return apperror.Validation(field, err.Error())
	}
	if radiusKm <= 0 || radiusKm > maxRadiusKm {
		return apperror.Validation("radius", fmt.Sprintf("must be in (0, %d] km", maxRadiusKm))
	}
	return nil
}

func validateDays(days int) error {
	if days < 1 || days > maxAnalyticsDays {
		return apperror.Validation("days", fmt.Sprintf("must be between 1 and %d", maxAnalyticsDays))
	}
	return nil
}

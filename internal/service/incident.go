package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/apperror"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/auth"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/geo"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// IncidentRepository определяет контракт для работы с бд инцидентов
type IncidentRepository interface {
	Create(ctx context.Context, incident *models.Incident) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	// UpdateStatus меняет статус, только если текущий статус равен from
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.Status) (*models.Incident, error)
	Clear(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	ListIncidents(ctx context.Context, page, pageSize int) ([]*models.Incident, error)
	IncidentSnapshot(ctx context.Context, filter models.SnapshotFilter) ([]models.Incident, error)
	IncidentExists(ctx context.Context, id uuid.UUID) (bool, error)

	GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	SetIncidentCache(ctx context.Context, incident *models.Incident) error
	InvalidateIncidentCache(ctx context.Context, id uuid.UUID) error
}

// EventDispatcher рассылает переходы жизненного цикла подписчикам
type EventDispatcher interface {
	Created(inc *models.Incident, actor auth.Identity) int
	Verified(inc *models.Incident) int
	StatusChanged(inc *models.Incident, previous models.Status) int
	Cleared(inc *models.Incident) int
}

// IncidentService определяет контракт бизнес-логики управления инцидентами
type IncidentService interface {
	CreateIncident(ctx context.Context, actor auth.Identity, incident *models.Incident) error
	GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	ListIncidents(ctx context.Context, page, pageSize int) ([]*models.Incident, error)
	VerifyIncident(ctx context.Context, actor auth.Identity, id uuid.UUID) (*models.Incident, error)
	RejectIncident(ctx context.Context, actor auth.Identity, id uuid.UUID) (*models.Incident, error)
	UpdateStatus(ctx context.Context, actor auth.Identity, id uuid.UUID, status models.Status) (*models.Incident, error)
	ClearIncident(ctx context.Context, actor auth.Identity, id uuid.UUID) (*models.Incident, error)
	IncidentExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type incidentService struct {
	repo       IncidentRepository
	dispatcher EventDispatcher
	logger     *logrus.Logger
}

func NewIncidentService(repo IncidentRepository, dispatcher EventDispatcher, logger *logrus.Logger) IncidentService {
	return &incidentService{
		repo:       repo,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// CreateIncident создает инцидент в статусе pending и рассылает incident:created
func (s *incidentService) CreateIncident(ctx context.Context, actor auth.Identity, incident *models.Incident) error {
	log := s.logger.WithFields(logrus.Fields{
		"service": "incident",
		"method":  "CreateIncident",
		"type":    incident.Type,
		"actor":   actor.UserID,
	})
	log.Info("Attempting to create a new incident")

	if err := validateIncident(incident); err != nil {
		return err
	}

	incident.Status = models.StatusPending
	incident.ReporterID = actor.UserID
	if err := s.repo.Create(ctx, incident); err != nil {
		log.WithError(err).Error("Failed to create incident in repository")
		return fmt.Errorf("service: could not create incident: %w", err)
	}

	delivered := s.dispatcher.Created(incident, actor)
	log.WithFields(logrus.Fields{
		"incident_id": incident.ID,
		"delivered":   delivered,
	}).Info("Incident created successfully")
	return nil
}

// GetIncident получает инцидент по ID, сначала из кеша
func (s *incidentService) GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "GetIncident",
		"incident_id": id,
	})

	cached, err := s.repo.GetIncidentFromCache(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to read incident cache, falling back to database")
	}
	if cached != nil {
		log.Debug("Incident served from cache")
		return cached, nil
	}

	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to get incident in repository")
		return nil, fmt.Errorf("service: could not get incident: %w", err)
	}

	if err := s.repo.SetIncidentCache(ctx, incident); err != nil {
		log.WithError(err).Warn("Failed to cache incident")
	}
	return incident, nil
}

// ListIncidents возвращает список инцидентов с пагинацией
func (s *incidentService) ListIncidents(ctx context.Context, page, pageSize int) ([]*models.Incident, error) {
	if page < 1 {
		page = 1
	}

	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	log := s.logger.WithFields(logrus.Fields{
		"service":   "incident",
		"method":    "ListIncidents",
		"page":      page,
		"page_size": pageSize,
	})

	incidents, err := s.repo.ListIncidents(ctx, page, pageSize)
	if err != nil {
		log.WithError(err).Error("Failed to list incidents from repository")
		return nil, fmt.Errorf("service: could not list incidents: %w", err)
	}

	log.WithField("count", len(incidents)).Debug("Incidents listed successfully")
	return incidents, nil
}

// VerifyIncident подтверждает инцидент (pending -> active) и уведомляет автора
func (s *incidentService) VerifyIncident(ctx context.Context, actor auth.Identity, id uuid.UUID) (*models.Incident, error) {
	incident, _, err := s.transition(ctx, "VerifyIncident", actor, id, models.StatusActive)
	if err != nil {
		return nil, err
	}
	s.dispatcher.Verified(incident)
	return incident, nil
}

// RejectIncident отклоняет инцидент (pending -> rejected)
func (s *incidentService) RejectIncident(ctx context.Context, actor auth.Identity, id uuid.UUID) (*models.Incident, error) {
	incident, previous, err := s.transition(ctx, "RejectIncident", actor, id, models.StatusRejected)
	if err != nil {
		return nil, err
	}
	s.dispatcher.StatusChanged(incident, previous)
	return incident, nil
}

// UpdateStatus выполняет любой допустимый переход статуса
func (s *incidentService) UpdateStatus(ctx context.Context, actor auth.Identity, id uuid.UUID, status models.Status) (*models.Incident, error) {
	incident, previous, err := s.transition(ctx, "UpdateStatus", actor, id, status)
	if err != nil {
		return nil, err
	}
	s.dispatcher.StatusChanged(incident, previous)
	return incident, nil
}

// ClearIncident отмечает, что дорога освобождена
func (s *incidentService) ClearIncident(ctx context.Context, actor auth.Identity, id uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "ClearIncident",
		"incident_id": id,
		"actor":       actor.UserID,
	})

	incident, err := s.repo.Clear(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to clear incident")
		return nil, fmt.Errorf("service: could not clear incident: %w", err)
	}
	s.invalidate(ctx, log, id)

	s.dispatcher.Cleared(incident)
	log.Info("Incident cleared")
	return incident, nil
}

func (s *incidentService) IncidentExists(ctx context.Context, id uuid.UUID) (bool, error) {
	exists, err := s.repo.IncidentExists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("service: could not check incident: %w", err)
	}
	return exists, nil
}

func (s *incidentService) transition(ctx context.Context, method string, actor auth.Identity, id uuid.UUID, to models.Status) (*models.Incident, models.Status, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      method,
		"incident_id": id,
		"actor":       actor.UserID,
		"to":          to,
	})

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Attempted to change status of an unavailable incident")
		return nil, "", fmt.Errorf("service: incident %s not available for status change: %w", id, err)
	}
	if !current.Status.CanTransition(to) {
		return nil, "", apperror.Validation("status", fmt.Sprintf("cannot change status from %s to %s", current.Status, to))
	}

	updated, err := s.repo.UpdateStatus(ctx, id, current.Status, to)
	if err != nil {
		log.WithError(err).Error("Failed to update incident status in repository")
		return nil, "", fmt.Errorf("service: could not update incident status: %w", err)
	}
	s.invalidate(ctx, log, id)

	log.WithField("from", current.Status).Info("Incident status changed")
	return updated, current.Status, nil
}

func (s *incidentService) invalidate(ctx context.Context, log *logrus.Entry, id uuid.UUID) {
	if err := s.repo.InvalidateIncidentCache(ctx, id); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache")
	}
}

func validateIncident(incident *models.Incident) error {
	if _, err := models.ParseIncidentType(string(incident.Type)); err != nil {
		return apperror.Validation("type", "must be one of the known incident types")
	}
	if !incident.Severity.Valid() {
		return apperror.Validation("severity", "must be one of low, moderate, high, severe, critical")
	}
	p := geo.Point{Lat: incident.Latitude, Lng: incident.Longitude}
	if err := p.Validate(); err != nil {
		field := "latitude"
		if errors.Is(err, geo.ErrInvalidLongitude) {
			field = "longitude"
		}
		return apperror.Validation(field, err.Error())
	}
	return nil
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/apperror"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/models"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	defaultSnapshotLimit = 5000
	defaultCacheTTL      = 5 * time.Minute
)

const incidentColumns = `
	id,
	type,
	severity,
	status,
	description,
	ST_Y(location::geometry) as latitude,
	ST_X(location::geometry) as longitude,
	city,
	state,
	COALESCE(reporter_id, '') as reporter_id,
	created_at,
	updated_at,
	cleared_at`

type IncidentRepository struct {
	db          *pgxpool.Pool
	redisClient *redis.Client
	cacheTTL    time.Duration
}

func NewIncidentRepository(db *pgxpool.Pool, redisClient *redis.Client, cacheTTL time.Duration) service.IncidentRepository {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &IncidentRepository{
		db:          db,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
	}
}

// scanner - общий интерфейс pgx.Row и pgx.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanIncident(row scanner) (*models.Incident, error) {
	incident := &models.Incident{}
	err := row.Scan(
		&incident.ID,
		&incident.Type,
		&incident.Severity,
		&incident.Status,
		&incident.Description,
		&incident.Latitude,
		&incident.Longitude,
		&incident.City,
		&incident.State,
		&incident.ReporterID,
		&incident.CreatedAt,
		&incident.UpdatedAt,
		&incident.ClearedAt,
	)
	if err != nil {
		return nil, err
	}
	return incident, nil
}

// Create создает новую запись об инциденте в бд
func (r *IncidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	query := `
		INSERT INTO incidents (type, severity, status, description, location, city, state, reporter_id)
		VALUES ($1, $2, $3, $4, ST_SetSRID(ST_MakePoint($5, $6), 4326), $7, $8, NULLIF($9, ''))
		RETURNING id, created_at, updated_at;
	`
	err := r.db.QueryRow(ctx, query,
		incident.Type,
		incident.Severity,
		incident.Status,
		incident.Description,
		incident.Longitude,
		incident.Latitude,
		incident.City,
		incident.State,
		incident.ReporterID,
	).Scan(&incident.ID, &incident.CreatedAt, &incident.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

// GetByID возвращает инцидент по его UUID
func (r *IncidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1;`
	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("incident")
		}
		return nil, fmt.Errorf("failed to get incident by id: %w", err)
	}
	return incident, nil
}

// UpdateStatus атомарно меняет статус from -> to
func (r *IncidentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.Status) (*models.Incident, error) {
	query := `
		UPDATE incidents SET
			status = $1,
			updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING ` + incidentColumns + `;
	`
	incident, err := scanIncident(r.db.QueryRow(ctx, query, to, id, from))
	if err == nil {
		return incident, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update incident status: %w", err)
	}

	// строка не обновлена: инцидента нет или статус уже изменился
	exists, existsErr := r.IncidentExists(ctx, id)
	if existsErr != nil {
		return nil, existsErr
	}
	if !exists {
		return nil, apperror.NotFound("incident")
	}
	return nil, apperror.Validation("status", fmt.Sprintf("incident is no longer %s", from))
}

// Clear отмечает время освобождения дороги; повторный вызов не меняет отметку
func (r *IncidentRepository) Clear(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	query := `
		UPDATE incidents SET
			cleared_at = COALESCE(cleared_at, NOW()),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + incidentColumns + `;
	`
	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("incident")
		}
		return nil, fmt.Errorf("failed to clear incident: %w", err)
	}
	return incident, nil
}

// List возвращает список инцидентов с пагинацией
func (r *IncidentRepository) ListIncidents(ctx context.Context, page, pageSize int) ([]*models.Incident, error) {
	// рассчитываем смещение
	offset := (page - 1) * pageSize

	query := `SELECT ` + incidentColumns + `
		FROM incidents
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2;
	`
	rows, err := r.db.Query(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]*models.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident row: %w", err)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return incidents, nil
}

// IncidentSnapshot возвращает выборку для аналитики.
// Если точка не задана, фильтр по расстоянию не применяется.
func (r *IncidentRepository) IncidentSnapshot(ctx context.Context, filter models.SnapshotFilter) ([]models.Incident, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultSnapshotLimit
	}

	statuses := make([]string, 0, len(filter.Statuses))
	for _, s := range filter.Statuses {
		statuses = append(statuses, string(s))
	}

	query := `SELECT ` + incidentColumns + `
		FROM incidents
		WHERE
			created_at >= $1
			AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
			AND (
				$3::float8 IS NULL
				OR ST_DWithin(
					location,
					ST_SetSRID(ST_MakePoint($4::float8, $3::float8), 4326)::geography,
					$5 * 1000
				)
			)
		ORDER BY created_at DESC
		LIMIT $6;
	`
	rows, err := r.db.Query(ctx, query,
		filter.Since,
		statuses,
		filter.Latitude,
		filter.Longitude,
		filter.RadiusKm,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query incident snapshot: %w", err)
	}
	defer rows.Close()

	incidents := make([]models.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident row in IncidentSnapshot: %w", err)
		}
		incidents = append(incidents, *incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration in IncidentSnapshot: %w", err)
	}
	return incidents, nil
}

// IncidentExists проверяет наличие инцидента
func (r *IncidentRepository) IncidentExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM incidents WHERE id = $1);`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check incident existence: %w", err)
	}
	return exists, nil
}

func incidentCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("incident:%s", id.String())
}

// GetIncidentFromCache пытается получить инцидент из Redis
func (r *IncidentRepository) GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	val, err := r.redisClient.Get(ctx, incidentCacheKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get incident from cache: %w", err)
	}

	incident := &models.Incident{}
	if err := json.Unmarshal(val, incident); err != nil {
		return nil, fmt.Errorf("failed to unmarshal incident from cache: %w", err)
	}
	return incident, nil
}

// SetIncidentCache сохраняет инцидент в Redis
func (r *IncidentRepository) SetIncidentCache(ctx context.Context, incident *models.Incident) error {
	val, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("failed to marshal incident for cache: %w", err)
	}
	if err := r.redisClient.Set(ctx, incidentCacheKey(incident.ID), val, r.cacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set incident in cache: %w", err)
	}
	return nil
}

// InvalidateIncidentCache удаляет инцидент из Redis кэша
func (r *IncidentRepository) InvalidateIncidentCache(ctx context.Context, id uuid.UUID) error {
	if err := r.redisClient.Del(ctx, incidentCacheKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate incident cache: %w", err)
	}
	return nil
}

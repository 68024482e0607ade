package v1

import (
	"time"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/apperror"
	"github.com/google/uuid"
)

// CreateIncidentRequest DTO для создания инцидента
// @Description DTO для создания инцидента
type CreateIncidentRequest struct {
	Type        string   `json:"type" validate:"required,oneof=accident traffic_jam road_closure construction weather hazard other"`
	Severity    string   `json:"severity" validate:"required,oneof=low moderate high severe critical"`
	Description string   `json:"description,omitempty" validate:"max=2000"`
	Latitude    *float64 `json:"latitude" validate:"required,latitude"`
	Longitude   *float64 `json:"longitude" validate:"required,longitude"`
	City        string   `json:"city,omitempty" validate:"max=100"`
	State       string   `json:"state,omitempty" validate:"required_with=City,max=100"`
}

// UpdateStatusRequest DTO для смены статуса
// @Description DTO для смены статуса
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active resolved rejected"`
}

// IncidentResponse DTO для ответа с информацией об инциденте
// @Description DTO для ответа с информацией об инциденте
type IncidentResponse struct {
	ID          uuid.UUID  `json:"id"`
	Type        string     `json:"type"`
	Severity    string     `json:"severity"`
	Status      string     `json:"status"`
	Description string     `json:"description,omitempty"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	City        string     `json:"city,omitempty"`
	State       string     `json:"state,omitempty"`
	ReporterID  string     `json:"reporter_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClearedAt   *time.Time `json:"cleared_at,omitempty"`
}

// CongestionQuery параметры запроса загруженности
type CongestionQuery struct {
	Lat    *float64 `form:"lat" validate:"required,latitude"`
	Lng    *float64 `form:"lng" validate:"required,longitude"`
	Radius float64  `form:"radius,default=5" validate:"gt=0,lte=50"`
}

// HotspotsQuery параметры поиска горячих точек
type HotspotsQuery struct {
	Days         int     `form:"days,default=30" validate:"gte=1,lte=365"`
	MinIncidents int     `form:"minIncidents,default=3" validate:"gte=1"`
	Threshold    float64 `form:"threshold,default=30" validate:"gte=0,lte=100"`
}

// PeakHoursQuery параметры анализа часов пик; lat/lng задаются вместе
type PeakHoursQuery struct {
	Lat    *float64 `form:"lat" validate:"omitempty,latitude"`
	Lng    *float64 `form:"lng" validate:"omitempty,longitude"`
	Radius float64  `form:"radius,default=5" validate:"gt=0,lte=50"`
	Days   int      `form:"days,default=30" validate:"gte=1,lte=365"`
}

// ErrorResponse - тело ответа с ошибкой
// @Description Тело ответа с ошибкой
type ErrorResponse struct {
	Error *apperror.Failure `json:"error"`
}

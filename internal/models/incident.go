package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity - уровень опасности инцидента, упорядочен по возрастанию
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeveritySevere   Severity = "severe"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityModerate: 2,
	SeverityHigh:     3,
	SeveritySevere:   4,
	SeverityCritical: 5,
}

// Rank возвращает порядковый номер уровня (0 для неизвестного)
func (s Severity) Rank() int {
	return severityRank[s]
}

// Score переводит уровень в шкалу 0..100
func (s Severity) Score() float64 {
	return float64(s.Rank()) * 20
}

// Valid сообщает, известен ли уровень
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// RequiresResponse - severe и critical требуют реакции спасателей
func (s Severity) RequiresResponse() bool {
	return s.Rank() >= SeveritySevere.Rank()
}

// Status - состояние жизненного цикла инцидента
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
	StatusRejected Status = "rejected"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusRejected},
	StatusActive:  {StatusResolved},
}

// CanTransition проверяет допустимость перехода pending -> active -> resolved | pending -> rejected
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal сообщает, что инцидент больше не меняет статус
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusRejected
}

// IncidentType - категория инцидента
type IncidentType string

const (
	TypeAccident     IncidentType = "accident"
	TypeTrafficJam   IncidentType = "traffic_jam"
	TypeRoadClosure  IncidentType = "road_closure"
	TypeConstruction IncidentType = "construction"
	TypeWeather      IncidentType = "weather"
	TypeHazard       IncidentType = "hazard"
	TypeOther        IncidentType = "other"
)

// AllIncidentTypes - полный список категорий
var AllIncidentTypes = []IncidentType{
	TypeAccident, TypeTrafficJam, TypeRoadClosure, TypeConstruction, TypeWeather, TypeHazard, TypeOther,
}

// TrafficRelated сообщает, влияет ли категория на загруженность дорог
func (t IncidentType) TrafficRelated() bool {
	switch t {
	case TypeAccident, TypeTrafficJam, TypeRoadClosure:
		return true
	}
	return false
}

// ParseIncidentType нормализует строку в категорию
func ParseIncidentType(s string) (IncidentType, error) {
	t := IncidentType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllIncidentTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown incident type %q", s)
}

type Incident struct {
	ID          uuid.UUID    `json:"id"`
	Type        IncidentType `json:"type"`
	Severity    Severity     `json:"severity"`
	Status      Status       `json:"status"`
	Description string       `json:"description,omitempty"`
	Latitude    float64      `json:"latitude"`
	Longitude   float64      `json:"longitude"`
	City        string       `json:"city,omitempty"`
	State       string       `json:"state,omitempty"`
	ReporterID  string       `json:"reporter_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	ClearedAt   *time.Time   `json:"cleared_at,omitempty"`
}

// SnapshotFilter - фильтр выборки инцидентов для аналитики
type SnapshotFilter struct {
	Since     time.Time
	Latitude  *float64
	Longitude *float64
	RadiusKm  float64
	Statuses  []Status
	Limit     int
}

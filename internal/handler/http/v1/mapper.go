package v1

import (
	"strings"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/models"
)

// DTOToIncidentModel преобразует DTO создания в доменную модель
func DTOToIncidentModel(dto CreateIncidentRequest) *models.Incident {
	incident := &models.Incident{
		Type:        models.IncidentType(dto.Type),
		Severity:    models.Severity(dto.Severity),
		Description: strings.TrimSpace(dto.Description),
		City:        strings.TrimSpace(dto.City),
		State:       strings.TrimSpace(dto.State),
	}
	if dto.Latitude != nil {
		incident.Latitude = *dto.Latitude
	}
	if dto.Longitude != nil {
		incident.Longitude = *dto.Longitude
	}
	return incident
}

// ModelToIncidentResponse преобразует доменную модель в DTO для ответа
func ModelToIncidentResponse(model *models.Incident) *IncidentResponse {
	return &IncidentResponse{
		ID:          model.ID,
		Type:        string(model.Type),
		Severity:    string(model.Severity),
		Status:      string(model.Status),
		Description: model.Description,
		Latitude:    model.Latitude,
		Longitude:   model.Longitude,
		City:        model.City,
		State:       model.State,
		ReporterID:  model.ReporterID,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
		ClearedAt:   model.ClearedAt,
	}
}

// ModelsToIncidentResponses преобразует слайс моделей в слайс DTO
func ModelsToIncidentResponses(models []*models.Incident) []*IncidentResponse {
	responses := make([]*IncidentResponse, len(models))
	for i, model := range models {
		responses[i] = ModelToIncidentResponse(model)
	}
	return responses
}

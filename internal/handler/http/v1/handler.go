package v1

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/apperror"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/geo"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/models"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	incidentService  service.IncidentService
	analyticsService service.AnalyticsService
	authenticator    Authenticator
	logger           *logrus.Logger
	validate         *validator.Validate
}

func NewHandler(incidentService service.IncidentService, analyticsService service.AnalyticsService, authenticator Authenticator, logger *logrus.Logger) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			if name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]; name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})
	return &Handler{
		incidentService:  incidentService,
		analyticsService: analyticsService,
		authenticator:    authenticator,
		logger:           logger,
		validate:         v,
	}
}

// @Summary Create a new incident
// @Description Report a new incident. It starts as pending and is broadcast to nearby subscribers. Requires bearer token.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param incident body CreateIncidentRequest true "Incident creation request"
// @Success 201 {object} IncidentResponse
// @Failure 400 {object} ErrorResponse "Invalid request body or validation error"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /incidents [post]
func (h *Handler) createIncident(c *gin.Context) {
	var input CreateIncidentRequest
	log := h.logger.WithField("method", "createIncident")

	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		abortWithError(c, apperror.Validation("body", "invalid request body"))
		return
	}

	if err := h.validateStruct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		abortWithError(c, err)
		return
	}

	model := DTOToIncidentModel(input)
	if err := h.incidentService.CreateIncident(c.Request.Context(), identityFrom(c), model); err != nil {
		h.respondError(c, log, err, "Failed to create incident in service")
		return
	}
	c.JSON(http.StatusCreated, ModelToIncidentResponse(model))
}

// @Summary Get a list of incidents
// @Description Get a paginated list of all incidents, newest first.
// @Tags Incidents
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Number of items per page" default(20)
// @Success 200 {array} IncidentResponse
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /incidents [get]
func (h *Handler) listIncidents(c *gin.Context) {
	log := h.logger.WithField("method", "listIncidents")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	incidents, err := h.incidentService.ListIncidents(c.Request.Context(), page, pageSize)
	if err != nil {
		h.respondError(c, log, err, "Failed to list incident from service")
		return
	}

	c.JSON(http.StatusOK, ModelsToIncidentResponses(incidents))
}

// @Summary Get incident by ID
// @Description Get a single incident by its ID.
// @Tags Incidents
// @Produce json
// @Param id path string true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} ErrorResponse "Invalid incident ID"
// @Failure 404 {object} ErrorResponse "Incident not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /incidents/{id} [get]
func (h *Handler) getIncident(c *gin.Context) {
	id, ok := parseIncidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getIncident").WithField("id", id)

	incident, err := h.incidentService.GetIncident(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, log, err, "Failed to get incident from service")
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Verify an incident
// @Description Move a pending incident to active and notify its reporter. Requires admin role.
// @Tags Incidents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} ErrorResponse "Invalid incident ID or illegal transition"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Incident not found"
// @Router /incidents/{id}/verify [post]
func (h *Handler) verifyIncident(c *gin.Context) {
	id, ok := parseIncidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "verifyIncident").WithField("id", id)

	incident, err := h.incidentService.VerifyIncident(c.Request.Context(), identityFrom(c), id)
	if err != nil {
		h.respondError(c, log, err, "Failed to verify incident in service")
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Reject an incident
// @Description Move a pending incident to rejected. Requires admin role.
// @Tags Incidents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} ErrorResponse "Invalid incident ID or illegal transition"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Incident not found"
// @Router /incidents/{id}/reject [post]
func (h *Handler) rejectIncident(c *gin.Context) {
	id, ok := parseIncidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "rejectIncident").WithField("id", id)

	incident, err := h.incidentService.RejectIncident(c.Request.Context(), identityFrom(c), id)
	if err != nil {
		h.respondError(c, log, err, "Failed to reject incident in service")
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Change incident status
// @Description Apply a legal status transition. Requires responder or admin role.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Param status body UpdateStatusRequest true "New status"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} ErrorResponse "Invalid request or illegal transition"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Incident not found"
// @Router /incidents/{id}/status [patch]
func (h *Handler) updateStatus(c *gin.Context) {
	id, ok := parseIncidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "updateStatus").WithField("id", id)

	var input UpdateStatusRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		abortWithError(c, apperror.Validation("body", "invalid request body"))
		return
	}
	if err := h.validateStruct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		abortWithError(c, err)
		return
	}

	incident, err := h.incidentService.UpdateStatus(c.Request.Context(), identityFrom(c), id, models.Status(input.Status))
	if err != nil {
		h.respondError(c, log, err, "Failed to update incident status in service")
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Mark incident as cleared
// @Description Record that the road is clear again. Requires responder or admin role.
// @Tags Incidents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} ErrorResponse "Invalid incident ID"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Incident not found"
// @Router /incidents/{id}/clear [post]
func (h *Handler) clearIncident(c *gin.Context) {
	id, ok := parseIncidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "clearIncident").WithField("id", id)

	incident, err := h.incidentService.ClearIncident(c.Request.Context(), identityFrom(c), id)
	if err != nil {
		h.respondError(c, log, err, "Failed to clear incident in service")
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Congestion score
// @Description Congestion index 0..100 for incidents around a point during the last 24 hours.
// @Tags Analytics
// @Produce json
// @Param lat query number true "Latitude"
// @Param lng query number true "Longitude"
// @Param radius query number false "Radius in km" default(5)
// @Success 200 {object} analytics.CongestionResult
// @Failure 400 {object} ErrorResponse "Validation error"
// @Failure 503 {object} ErrorResponse "Incident store unavailable"
// @Router /analytics/congestion [get]
func (h *Handler) congestion(c *gin.Context) {
	log := h.logger.WithField("method", "congestion")

	var q CongestionQuery
	if !h.bindQuery(c, log, &q) {
		return
	}

	result, err := h.analyticsService.Congestion(c.Request.Context(), geo.Point{Lat: *q.Lat, Lng: *q.Lng}, q.Radius)
	if err != nil {
		h.respondError(c, log, err, "Failed to compute congestion")
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary Incident hotspots
// @Description Grid cells with recurring incidents, highest score first.
// @Tags Analytics
// @Produce json
// @Param days query int false "Look-back window in days" default(30)
// @Param minIncidents query int false "Minimum incidents per cell" default(3)
// @Param threshold query number false "Minimum score" default(30)
// @Success 200 {array} analytics.Hotspot
// @Failure 400 {object} ErrorResponse "Validation error"
// @Failure 503 {object} ErrorResponse "Incident store unavailable"
// @Router /analytics/hotspots [get]
func (h *Handler) hotspots(c *gin.Context) {
	log := h.logger.WithField("method", "hotspots")

	var q HotspotsQuery
	if !h.bindQuery(c, log, &q) {
		return
	}

	result, err := h.analyticsService.Hotspots(c.Request.Context(), service.HotspotQuery{
		Days:         q.Days,
		MinIncidents: q.MinIncidents,
		Threshold:    q.Threshold,
	})
	if err != nil {
		h.respondError(c, log, err, "Failed to compute hotspots")
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary Peak hours
// @Description Hour-of-day incident histogram with recency decay. Area filter is optional.
// @Tags Analytics
// @Produce json
// @Param lat query number false "Latitude"
// @Param lng query number false "Longitude"
// @Param radius query number false "Radius in km" default(5)
// @Param days query int false "Look-back window in days" default(30)
// @Success 200 {object} analytics.PeakHours
// @Failure 400 {object} ErrorResponse "Validation error"
// @Failure 503 {object} ErrorResponse "Incident store unavailable"
// @Router /analytics/peak-hours [get]
func (h *Handler) peakHours(c *gin.Context) {
	log := h.logger.WithField("method", "peakHours")

	var q PeakHoursQuery
	if !h.bindQuery(c, log, &q) {
		return
	}
	if (q.Lat == nil) != (q.Lng == nil) {
		abortWithError(c, apperror.Validation("lng", "lat and lng must be given together"))
		return
	}

	query := service.PeakHoursQuery{RadiusKm: q.Radius, Days: q.Days}
	if q.Lat != nil {
		query.Center = &geo.Point{Lat: *q.Lat, Lng: *q.Lng}
	}
	result, err := h.analyticsService.PeakHours(c.Request.Context(), query)
	if err != nil {
		h.respondError(c, log, err, "Failed to compute peak hours")
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary Get application health status
// @Description Get health status of the application
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string "Status OK"
// @Router /system/health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) bindQuery(c *gin.Context, log *logrus.Entry, dst any) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		log.WithError(err).Warn("Failed to bind query")
		abortWithError(c, apperror.Validation("query", "invalid query parameters"))
		return false
	}
	if err := h.validateStruct(dst); err != nil {
		log.WithError(err).Warn("Validation failed")
		abortWithError(c, err)
		return false
	}
	return true
}

func (h *Handler) validateStruct(v any) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperror.Validation("body", "is invalid")
	}
	fe := fieldErrs[0]
	return apperror.Validation(fe.Field(), "failed on the '"+fe.Tag()+"' rule")
}

// respondError пишет ответ по классу ошибки; внутренние ошибки логируются как Error
func (h *Handler) respondError(c *gin.Context, log *logrus.Entry, err error, msg string) {
	switch apperror.KindOf(err) {
	case apperror.KindInternal:
		log.WithError(err).Error(msg)
	case apperror.KindTransient:
		log.WithError(err).Warn(msg)
	default:
		log.WithError(err).Debug(msg)
	}
	abortWithError(c, err)
}

func parseIncidentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithError(c, apperror.Validation("id", "invalid incident ID"))
		return uuid.Nil, false
	}
	return id, true
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusCode(err), ErrorResponse{Error: apperror.ToFailure(err)})
}

func statusCode(err error) int {
	switch apperror.KindOf(err) {
	case apperror.KindValidation:
		return http.StatusBadRequest
	case apperror.KindAuthentication:
		return http.StatusUnauthorized
	case apperror.KindAuthorization:
		return http.StatusForbidden
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

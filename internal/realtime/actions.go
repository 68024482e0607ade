package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/apperror"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/geo"
	"github.com/go-playground/validator/v10"
)

// Действия клиента по постоянному соединению
const (
	ActionLocationSubscribe   = "location:subscribe"
	ActionLocationUpdate      = "location:update"
	ActionLocationUnsubscribe = "location:unsubscribe"
	ActionCitySubscribe       = "city:subscribe"
	ActionIncidentSubscribe   = "incident:subscribe"
	ActionIncidentUnsubscribe = "incident:unsubscribe"
	ActionStatus              = "status"
	ActionServerStats         = "server:stats"
	ActionPing                = "ping"
)

// События сервера
const (
	EventConnectionSuccess = "connection:success"
	EventServerShutdown    = "server:shutdown"
	EventAck               = "ack"
	EventError             = "error"
)

// DefaultRadiusKm - радиус location:update, если его нет ни в запросе, ни в прошлой подписке
const DefaultRadiusKm = 10

// LocationRequest - location:subscribe
type LocationRequest struct {
	Lat    *float64 `json:"lat" validate:"required,latitude"`
	Lng    *float64 `json:"lng" validate:"required,longitude"`
	Radius *float64 `json:"radius" validate:"required,gt=0,lte=50"`
}

// LocationUpdateRequest - location:update, радиус необязателен
type LocationUpdateRequest struct {
	Lat    *float64 `json:"lat" validate:"required,latitude"`
	Lng    *float64 `json:"lng" validate:"required,longitude"`
	Radius *float64 `json:"radius" validate:"omitempty,gt=0,lte=50"`
}

// CityRequest - city:subscribe
type CityRequest struct {
	City  string `json:"city" validate:"required,max=100"`
	State string `json:"state" validate:"required,max=100"`
}

// IncidentRequest - incident:subscribe / incident:unsubscribe
type IncidentRequest struct {
	IncidentID string `json:"incidentId" validate:"required,uuid"`
}

// Ack - результат действия без данных
type Ack struct {
	Success bool              `json:"success"`
	Error   *apperror.Failure `json:"error,omitempty"`
}

// SubscribeResult - результат location:subscribe
type SubscribeResult struct {
	Success   bool `json:"success"`
	RoomCount int  `json:"roomCount"`
}

// StatusResult - результат status
type StatusResult struct {
	Success       bool              `json:"success"`
	ConnectionID  string            `json:"connectionId"`
	Authenticated bool              `json:"authenticated"`
	UserID        string            `json:"userId,omitempty"`
	Role          string            `json:"role"`
	State         string            `json:"state"`
	Rooms         []string          `json:"rooms"`
	Location      *geo.Subscription `json:"location"`
}

// StatsResult - результат server:stats
type StatsResult struct {
	Success            bool           `json:"success"`
	TotalConnections   int            `json:"totalConnections"`
	AuthenticatedUsers int            `json:"authenticatedUsers"`
	Responders         int            `json:"responders"`
	TransportBreakdown map[string]int `json:"transportBreakdown"`
	Rooms              int            `json:"rooms"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// В сообщениях используем имена полей из JSON
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeRequest разбирает и проверяет тело действия; ошибки - ValidationError с именем поля
func decodeRequest(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return apperror.Validation(typeErr.Field, "must be a "+jsonTypeName(typeErr.Type))
		}
		return apperror.Validation("data", "malformed payload")
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperror.Validation("data", "is invalid")
	}
	fe := fieldErrs[0]
	return apperror.Validation(fe.Field(), describe(fe))
}

func jsonTypeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Float32, reflect.Float64, reflect.Int, reflect.Int64, reflect.Int32:
		return "number"
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	}
	return "valid value"
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "latitude":
		return "must be a number between -90 and 90"
	case "longitude":
		return "must be a number between -180 and 180"
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "uuid":
		return "must be a valid UUID"
	}
	return "is invalid"
}

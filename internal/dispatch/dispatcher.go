package dispatch

import (
	"sync"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/auth"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/geo"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/models"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/realtime"
	"github.com/sirupsen/logrus"
)

// События жизненного цикла инцидента
const (
	EventIncidentCreated  = "incident:created"
	EventIncidentUpdated  = "incident:updated"
	EventIncidentVerified = "incident:verified"
	EventIncidentResolved = "incident:resolved"
	EventIncidentCleared  = "incident:cleared"
)

// Broadcaster - получатель готового набора комнат (локальный реестр или ретранслятор)
type Broadcaster interface {
	BroadcastMany(rooms []realtime.Room, msg realtime.Message) int
}

// IncidentEvent - полезная нагрузка событий инцидента
type IncidentEvent struct {
	Incident         *models.Incident `json:"incident"`
	PreviousStatus   models.Status    `json:"previousStatus,omitempty"`
	RequiresResponse bool             `json:"requiresResponse,omitempty"`
}

type Options struct {
	Grid            geo.Grid
	CreatedRadiusKm float64
	UpdatedRadiusKm float64
}

// Dispatcher вычисляет комнаты-получатели для каждого перехода инцидента.
// Рассылки сериализуются, поэтому в одной комнате события идут в порядке вызова.
type Dispatcher struct {
	out    Broadcaster
	opts   Options
	logger *logrus.Logger
	mu     sync.Mutex
}

func NewDispatcher(out Broadcaster, opts Options, logger *logrus.Logger) *Dispatcher {
	if opts.CreatedRadiusKm <= 0 {
		opts.CreatedRadiusKm = 10
	}
	if opts.UpdatedRadiusKm <= 0 {
		opts.UpdatedRadiusKm = 5
	}
	return &Dispatcher{out: out, opts: opts, logger: logger}
}

// Created: ячейки сетки в широком радиусе, город, спасатели и (для привилегированного автора) администраторы
func (d *Dispatcher) Created(inc *models.Incident, actor auth.Identity) int {
	rooms := d.gridRooms(inc, d.opts.CreatedRadiusKm)
	if inc.City != "" && inc.State != "" {
		rooms = append(rooms, realtime.NewCity(inc.City, inc.State))
	}
	rooms = append(rooms, realtime.Responders())
	if actor.Role.Privileged() {
		rooms = append(rooms, realtime.Admins())
	}

	return d.send(EventIncidentCreated, rooms, inc, IncidentEvent{
		Incident:         inc,
		RequiresResponse: inc.Severity.RequiresResponse(),
	})
}

// Verified доставляется только автору сообщения
func (d *Dispatcher) Verified(inc *models.Incident) int {
	if inc.ReporterID == "" {
		return 0
	}
	return d.send(EventIncidentVerified, []realtime.Room{realtime.UserRoom{ID: inc.ReporterID}}, nil, IncidentEvent{Incident: inc})
}

// StatusChanged: комната инцидента и узкий радиус; при закрытии инцидента - еще и автор
func (d *Dispatcher) StatusChanged(inc *models.Incident, previous models.Status) int {
	event := EventIncidentUpdated
	rooms := []realtime.Room{realtime.IncidentRoom{ID: inc.ID.String()}}
	rooms = append(rooms, d.gridRooms(inc, d.opts.UpdatedRadiusKm)...)
	if inc.Status == models.StatusResolved {
		event = EventIncidentResolved
		if inc.ReporterID != "" {
			rooms = append(rooms, realtime.UserRoom{ID: inc.ReporterID})
		}
	}
	return d.send(event, rooms, inc, IncidentEvent{Incident: inc, PreviousStatus: previous})
}

// Cleared: комната инцидента и ячейки вокруг места
func (d *Dispatcher) Cleared(inc *models.Incident) int {
	rooms := []realtime.Room{realtime.IncidentRoom{ID: inc.ID.String()}}
	rooms = append(rooms, d.gridRooms(inc, d.opts.UpdatedRadiusKm)...)
	return d.send(EventIncidentCleared, rooms, inc, IncidentEvent{Incident: inc})
}

func (d *Dispatcher) send(event string, rooms []realtime.Room, located *models.Incident, payload IncidentEvent) int {
	msg := realtime.Message{Event: event, Data: payload}
	if located != nil {
		msg.Geo = &geo.Point{Lat: located.Latitude, Lng: located.Longitude}
	}

	d.mu.Lock()
	delivered := d.out.BroadcastMany(rooms, msg)
	d.mu.Unlock()

	d.logger.WithFields(logrus.Fields{
		"component":   "dispatch",
		"event":       event,
		"incident_id": payload.Incident.ID,
		"rooms":       len(rooms),
		"delivered":   delivered,
	}).Debug("Incident event dispatched")
	return delivered
}

func (d *Dispatcher) gridRooms(inc *models.Incident, radiusKm float64) []realtime.Room {
	cells, err := d.opts.Grid.CellsCovering(geo.Point{Lat: inc.Latitude, Lng: inc.Longitude}, radiusKm)
	if err != nil {
		d.logger.WithError(err).WithFields(logrus.Fields{
			"component":   "dispatch",
			"incident_id": inc.ID,
		}).Warn("Skipping grid fan-out for incident")
		return nil
	}
	rooms := make([]realtime.Room, 0, len(cells))
	for _, c := range cells {
		rooms = append(rooms, realtime.GridCell{Cell: c})
	}
	return rooms
}

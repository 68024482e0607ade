package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/apperror"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/auth"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/geo"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/metrics"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Authenticator определяет контракт шлюза аутентификации
type Authenticator interface {
	Authenticate(ctx context.Context, credential string, mode auth.Mode) (auth.Identity, error)
}

// IncidentLookup проверяет существование инцидента во внешнем хранилище
type IncidentLookup interface {
	IncidentExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Options - параметры менеджера соединений
type Options struct {
	Grid           geo.Grid
	OutboundBuffer int
	Overflow       OverflowPolicy
	LookupTimeout  time.Duration
}

// ConnectRequest - данные рукопожатия транспорта
type ConnectRequest struct {
	Credential string
	Transport  string
	RemoteAddr string
}

// Manager владеет соединениями и их членством в комнатах
type Manager struct {
	registry  *Registry
	auth      Authenticator
	incidents IncidentLookup
	opts      Options
	logger    *logrus.Logger

	mu    sync.RWMutex
	conns map[string]*Connection
}

func NewManager(registry *Registry, authenticator Authenticator, incidents IncidentLookup, opts Options, logger *logrus.Logger) *Manager {
	if opts.OutboundBuffer < 1 {
		opts.OutboundBuffer = 64
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 2 * time.Second
	}
	if opts.Grid == (geo.Grid{}) {
		opts.Grid = geo.NewGrid(geo.DefaultPrecision)
	}
	return &Manager{
		registry:  registry,
		auth:      authenticator,
		incidents: incidents,
		opts:      opts,
		logger:    logger,
		conns:     make(map[string]*Connection),
	}
}

// Connect проводит соединение Connecting -> Authenticating -> Active.
// Аутентификация необязательна: невалидный токен дает анонимное соединение.
func (m *Manager) Connect(ctx context.Context, req ConnectRequest) (*Connection, error) {
	c := newConnection(req.Transport, req.RemoteAddr, m.opts.OutboundBuffer, m.opts.Overflow)
	log := m.logger.WithFields(logrus.Fields{
		"component":     "connections",
		"connection_id": c.id,
		"transport":     req.Transport,
	})

	if err := c.transition(StateAuthenticating); err != nil {
		return nil, err
	}
	identity, err := m.auth.Authenticate(ctx, req.Credential, auth.ModeOptional)
	if err != nil {
		log.WithError(err).Warn("Optional authentication failed, continuing as anonymous")
		identity = auth.Anonymous()
	}

	c.stateMu.Lock()
	c.identity = identity
	c.stateMu.Unlock()
	if err := c.transition(StateActive); err != nil {
		return nil, err
	}

	for _, r := range autoRooms(identity.UserID, identity.Authenticated, identity.Role) {
		if err := m.join(c, r); err != nil {
			m.Disconnect(c)
			return nil, fmt.Errorf("realtime: auto-join %s: %w", r.Key(), err)
		}
	}

	m.mu.Lock()
	m.conns[c.id] = c
	m.mu.Unlock()
	metrics.Connections.WithLabelValues(string(identity.Role)).Inc()

	_ = c.Send(Message{Event: EventConnectionSuccess, Data: map[string]any{
		"connectionId":  c.id,
		"authenticated": identity.Authenticated,
		"role":          identity.Role,
		"userId":        identity.UserID,
	}})

	log.WithFields(logrus.Fields{
		"user_id": identity.UserID,
		"role":    identity.Role,
	}).Info("Connection established")
	return c, nil
}

// Disconnect освобождает все комнаты соединения. Безусловен и идемпотентен.
func (m *Manager) Disconnect(c *Connection) {
	rooms, ok := c.detach()
	if !ok {
		return
	}
	for _, r := range rooms {
		m.registry.Leave(r, c)
	}
	c.sub.Store(nil)
	c.Close()

	m.mu.Lock()
	_, registered := m.conns[c.id]
	delete(m.conns, c.id)
	m.mu.Unlock()
	if registered {
		metrics.Connections.WithLabelValues(string(c.Identity().Role)).Dec()
	}

	m.logger.WithFields(logrus.Fields{
		"component":     "connections",
		"connection_id": c.id,
		"rooms":         len(rooms),
	}).Info("Connection closed")
}

// Handle выполняет действие клиента и возвращает структурированный результат
func (m *Manager) Handle(ctx context.Context, c *Connection, action string, data json.RawMessage) any {
	var (
		result any
		err    error
	)
	switch action {
	case ActionLocationSubscribe:
		var req LocationRequest
		if err = decodeRequest(data, &req); err == nil {
			result, err = m.SubscribeLocation(c, req)
		}
	case ActionLocationUpdate:
		var req LocationUpdateRequest
		if err = decodeRequest(data, &req); err == nil {
			result, err = m.UpdateLocation(c, req)
		}
	case ActionLocationUnsubscribe:
		result, err = m.UnsubscribeLocation(c)
	case ActionCitySubscribe:
		var req CityRequest
		if err = decodeRequest(data, &req); err == nil {
			result, err = m.SubscribeCity(c, req)
		}
	case ActionIncidentSubscribe:
		var req IncidentRequest
		if err = decodeRequest(data, &req); err == nil {
			result, err = m.SubscribeIncident(ctx, c, req)
		}
	case ActionIncidentUnsubscribe:
		var req IncidentRequest
		if err = decodeRequest(data, &req); err == nil {
			result, err = m.UnsubscribeIncident(c, req)
		}
	case ActionStatus:
		result = m.Status(c)
	case ActionServerStats:
		result, err = m.ServerStats(c)
	case ActionPing:
		result = Ack{Success: true}
	default:
		err = apperror.Validation("event", fmt.Sprintf("unknown action %q", action))
	}

	if err != nil {
		if apperror.KindOf(err) == apperror.KindInternal {
			m.logger.WithFields(logrus.Fields{
				"component":     "connections",
				"connection_id": c.id,
				"action":        action,
			}).WithError(err).Error("Action failed")
		}
		return Ack{Success: false, Error: apperror.ToFailure(err)}
	}
	return result
}

// SubscribeLocation заменяет пространственную подписку: сначала освобождает старые ячейки, затем входит в новые
func (m *Manager) SubscribeLocation(c *Connection, req LocationRequest) (SubscribeResult, error) {
	if err := validateStruct(&req); err != nil {
		return SubscribeResult{}, err
	}
	sub := geo.Subscription{Center: geo.Point{Lat: *req.Lat, Lng: *req.Lng}, RadiusKm: *req.Radius}
	count, err := m.replaceSubscription(c, sub)
	if err != nil {
		return SubscribeResult{}, err
	}
	return SubscribeResult{Success: true, RoomCount: count}, nil
}

// UpdateLocation - как SubscribeLocation, но без радиуса берет прежний
func (m *Manager) UpdateLocation(c *Connection, req LocationUpdateRequest) (Ack, error) {
	if err := validateStruct(&req); err != nil {
		return Ack{}, err
	}
	radius := float64(DefaultRadiusKm)
	if req.Radius != nil {
		radius = *req.Radius
	} else if prev := c.sub.Load(); prev != nil {
		radius = prev.RadiusKm
	}
	sub := geo.Subscription{Center: geo.Point{Lat: *req.Lat, Lng: *req.Lng}, RadiusKm: radius}
	if _, err := m.replaceSubscription(c, sub); err != nil {
		return Ack{}, err
	}
	return Ack{Success: true}, nil
}

// UnsubscribeLocation освобождает все ячейки и очищает подписку
func (m *Manager) UnsubscribeLocation(c *Connection) (Ack, error) {
	if err := m.requireActive(c); err != nil {
		return Ack{}, err
	}
	m.releaseGrid(c)
	c.sub.Store(nil)
	return Ack{Success: true}, nil
}

func (m *Manager) SubscribeCity(c *Connection, req CityRequest) (Ack, error) {
	if err := validateStruct(&req); err != nil {
		return Ack{}, err
	}
	if err := m.requireActive(c); err != nil {
		return Ack{}, err
	}
	if err := m.join(c, NewCity(req.City, req.State)); err != nil {
		return Ack{}, joinFailure(err)
	}
	return Ack{Success: true}, nil
}

// SubscribeIncident входит в комнату инцидента. Ошибка NotFound - только если хранилище подтвердило отсутствие.
func (m *Manager) SubscribeIncident(ctx context.Context, c *Connection, req IncidentRequest) (Ack, error) {
	if err := validateStruct(&req); err != nil {
		return Ack{}, err
	}
	if err := m.requireActive(c); err != nil {
		return Ack{}, err
	}
	id, err := uuid.Parse(req.IncidentID)
	if err != nil {
		return Ack{}, apperror.Validation("incidentId", "must be a valid UUID")
	}

	if m.incidents != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, m.opts.LookupTimeout)
		exists, err := m.incidents.IncidentExists(lookupCtx, id)
		cancel()
		switch {
		case err != nil:
			m.logger.WithFields(logrus.Fields{
				"component":   "connections",
				"incident_id": id,
			}).WithError(err).Warn("Incident lookup failed, subscribing anyway")
		case !exists:
			return Ack{}, apperror.NotFound("incident")
		}
	}

	if err := m.join(c, IncidentRoom{ID: id.String()}); err != nil {
		return Ack{}, joinFailure(err)
	}
	return Ack{Success: true}, nil
}

// UnsubscribeIncident - выход из комнаты, в которой соединение не состоит, считается успехом
func (m *Manager) UnsubscribeIncident(c *Connection, req IncidentRequest) (Ack, error) {
	if err := validateStruct(&req); err != nil {
		return Ack{}, err
	}
	id, err := uuid.Parse(req.IncidentID)
	if err != nil {
		return Ack{}, apperror.Validation("incidentId", "must be a valid UUID")
	}
	m.leave(c, IncidentRoom{ID: id.String()})
	return Ack{Success: true}, nil
}

func (m *Manager) Status(c *Connection) StatusResult {
	identity := c.Identity()
	return StatusResult{
		Success:       true,
		ConnectionID:  c.id,
		Authenticated: identity.Authenticated,
		UserID:        identity.UserID,
		Role:          string(identity.Role),
		State:         c.State().String(),
		Rooms:         c.Rooms(),
		Location:      c.sub.Load(),
	}
}

// ServerStats доступна только роли admin
func (m *Manager) ServerStats(c *Connection) (StatsResult, error) {
	identity := c.Identity()
	if !identity.Authenticated {
		return StatsResult{}, apperror.Authentication("authentication required")
	}
	if identity.Role != models.RoleAdmin {
		return StatsResult{}, apperror.Authorization(string(models.RoleAdmin))
	}

	stats := StatsResult{Success: true, TransportBreakdown: map[string]int{}}
	m.mu.RLock()
	for _, conn := range m.conns {
		id := conn.Identity()
		stats.TotalConnections++
		if id.Authenticated {
			stats.AuthenticatedUsers++
		}
		if id.Role == models.RoleResponder {
			stats.Responders++
		}
		stats.TransportBreakdown[conn.transport]++
	}
	m.mu.RUnlock()
	stats.Rooms = m.registry.RoomCount()
	return stats, nil
}

// Count - число активных соединений
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Shutdown уведомляет всех о остановке, ждет grace и закрывает соединения
func (m *Manager) Shutdown(ctx context.Context, grace time.Duration) {
	conns := m.snapshot()
	for _, c := range conns {
		_ = c.Send(Message{Event: EventServerShutdown, Data: map[string]any{
			"message": "server is shutting down",
		}})
	}
	m.logger.WithField("connections", len(conns)).Info("Shutdown notice sent, waiting grace period")

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	for _, c := range m.snapshot() {
		m.Disconnect(c)
	}
}

func (m *Manager) snapshot() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	return conns
}

func (m *Manager) replaceSubscription(c *Connection, sub geo.Subscription) (int, error) {
	if err := m.requireActive(c); err != nil {
		return 0, err
	}
	cells, err := m.opts.Grid.CellsCovering(sub.Center, sub.RadiusKm)
	if err != nil {
		return 0, apperror.Validation("radius", err.Error())
	}

	m.releaseGrid(c)
	c.sub.Store(&sub)
	for _, cell := range cells {
		if err := m.join(c, GridCell{Cell: cell}); err != nil {
			c.sub.CompareAndSwap(&sub, nil)
			return 0, joinFailure(err)
		}
	}
	return len(cells), nil
}

func (m *Manager) releaseGrid(c *Connection) {
	for _, r := range c.gridRooms() {
		m.leave(c, r)
	}
}

// join добавляет соединение в комнату. Если Disconnect успел снять соединение
// между входом в реестр и записью комнаты, членство откатывается.
func (m *Manager) join(c *Connection, r Room) error {
	if _, err := m.registry.Join(r, c); err != nil {
		return err
	}
	if !c.addRoom(r) {
		m.registry.Leave(r, c)
		return ErrConnectionClosed
	}
	return nil
}

func joinFailure(err error) error {
	if errors.Is(err, ErrConnectionClosed) {
		return apperror.Validation("connection", "is not active")
	}
	return apperror.Internal(err)
}

func (m *Manager) leave(c *Connection, r Room) {
	m.registry.Leave(r, c)
	c.removeRoom(r)
}

func (m *Manager) requireActive(c *Connection) error {
	if c.State() != StateActive {
		return apperror.Validation("connection", "is not active")
	}
	return nil
}

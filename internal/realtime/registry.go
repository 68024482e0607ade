package realtime

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/geo"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/metrics"
	"github.com/sirupsen/logrus"
)

var (
	// ErrFiltered - участник сознательно отказался от сообщения (например, вне радиуса подписки)
	ErrFiltered = errors.New("message filtered by member")
	// ErrInvariant - нарушение внутреннего инварианта реестра
	ErrInvariant = errors.New("room registry invariant violated")
	// ErrRegistryClosed - реестр остановлен
	ErrRegistryClosed = errors.New("room registry closed")
)

// Message - событие, отправляемое соединению
type Message struct {
	Event string `json:"event"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`

	// Geo - место события для точной проверки радиуса на стороне получателя.
	// Учитывается только при доставке через комнаты-ячейки сетки.
	Geo *geo.Point `json:"-"`
}

// Member - участник комнаты. Deliver не должен блокироваться и не должен обращаться к реестру.
type Member interface {
	ID() string
	Deliver(msg Message) error
}

type room struct {
	key     string
	mu      sync.Mutex
	members map[string]Member
	// closed выставляется, когда ушел последний участник; закрытая комната больше не принимает входы
	closed bool
}

// Registry сопоставляет комнаты и подписанные соединения.
// Операции над разными комнатами не блокируют друг друга, над одной комнатой - линеаризуемы.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	closed bool
	logger *logrus.Logger
}

func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*room),
		logger: logger,
	}
}

// Join добавляет участника в комнату. Повторный вход - не ошибка; возвращает true, если участник новый.
func (r *Registry) Join(target Room, m Member) (bool, error) {
	key := target.Key()

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return false, ErrRegistryClosed
	}
	rm := r.rooms[key]
	r.mu.RUnlock()

	if rm != nil {
		if added, ok := rm.add(m); ok {
			return added, nil
		}
	}

	// Комната отсутствует или закрыта: создаем под эксклюзивной блокировкой
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, ErrRegistryClosed
	}
	if rm = r.rooms[key]; rm != nil {
		if added, ok := rm.add(m); ok {
			return added, nil
		}
	}
	rm = &room{key: key, members: map[string]Member{m.ID(): m}}
	r.rooms[key] = rm
	return true, nil
}

// Leave удаляет участника из комнаты. Выход без входа - не ошибка; возвращает true, если участник был в комнате.
func (r *Registry) Leave(target Room, m Member) bool {
	key := target.Key()

	r.mu.RLock()
	rm := r.rooms[key]
	r.mu.RUnlock()
	if rm == nil {
		return false
	}

	rm.mu.Lock()
	if rm.closed {
		if len(rm.members) != 0 {
			r.reportInvariant(key, fmt.Sprintf("closed room holds %d members", len(rm.members)))
		}
		rm.mu.Unlock()
		return false
	}
	if _, ok := rm.members[m.ID()]; !ok {
		rm.mu.Unlock()
		return false
	}
	delete(rm.members, m.ID())
	empty := len(rm.members) == 0
	if empty {
		rm.closed = true
	}
	rm.mu.Unlock()

	if empty {
		r.mu.Lock()
		if r.rooms[key] == rm {
			delete(r.rooms, key)
		}
		r.mu.Unlock()
	}
	return true
}

// Broadcast доставляет сообщение всем участникам комнаты. Пустая комната - не ошибка.
func (r *Registry) Broadcast(target Room, msg Message) int {
	return r.BroadcastMany([]Room{target}, msg)
}

// BroadcastMany доставляет сообщение участникам нескольких комнат,
// каждому соединению не более одного раза. Сбой доставки одному участнику не прерывает рассылку.
// Участник, отфильтровавший сообщение из ячейки сетки, может получить его через другую комнату.
func (r *Registry) BroadcastMany(targets []Room, msg Message) int {
	delivered := 0
	seenRooms := make(map[string]struct{}, len(targets))
	seenMembers := make(map[string]struct{})

	for _, target := range targets {
		key := target.Key()
		if _, dup := seenRooms[key]; dup {
			continue
		}
		seenRooms[key] = struct{}{}

		r.mu.RLock()
		rm := r.rooms[key]
		r.mu.RUnlock()
		if rm == nil {
			continue
		}

		routed := msg
		if _, grid := target.(GridCell); !grid {
			routed.Geo = nil
		}

		// Доставка под блокировкой комнаты: участник либо получает сообщение, либо уже удален
		rm.mu.Lock()
		for id, member := range rm.members {
			if _, dup := seenMembers[id]; dup {
				continue
			}
			err := member.Deliver(routed)
			if errors.Is(err, ErrFiltered) {
				metrics.DeliveriesDropped.WithLabelValues("filtered").Inc()
				continue
			}
			seenMembers[id] = struct{}{}
			if err != nil {
				r.deliveryFailed(key, id, msg.Event, err)
				continue
			}
			delivered++
		}
		rm.mu.Unlock()
	}

	metrics.Broadcasts.WithLabelValues(msg.Event).Inc()
	metrics.Deliveries.Add(float64(delivered))
	return delivered
}

// Members возвращает число и отсортированный список участников (для диагностики администратором)
func (r *Registry) Members(target Room) (int, []string) {
	key := target.Key()

	r.mu.RLock()
	rm := r.rooms[key]
	r.mu.RUnlock()
	if rm == nil {
		return 0, []string{}
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.closed {
		return 0, []string{}
	}
	ids := make([]string, 0, len(rm.members))
	for id := range rm.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return len(ids), ids
}

// RoomCount - число непустых комнат
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Verify проверяет инварианты всех комнат: комната в реестре открыта и не пуста
func (r *Registry) Verify() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for key, rm := range r.rooms {
		rm.mu.Lock()
		switch {
		case rm.closed:
			errs = append(errs, fmt.Errorf("%w: closed room %s still registered", ErrInvariant, key))
		case len(rm.members) == 0:
			errs = append(errs, fmt.Errorf("%w: empty room %s retained", ErrInvariant, key))
		}
		rm.mu.Unlock()
	}
	for _, err := range errs {
		r.reportInvariant("", err.Error())
	}
	return errors.Join(errs...)
}

// Close останавливает реестр: новые входы отклоняются, все комнаты освобождаются
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for key, rm := range r.rooms {
		rm.mu.Lock()
		rm.closed = true
		rm.members = map[string]Member{}
		rm.mu.Unlock()
		delete(r.rooms, key)
	}
}

// add возвращает ok=false, если комната уже закрыта
func (rm *room) add(m Member) (added bool, ok bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.closed {
		return false, false
	}
	if _, exists := rm.members[m.ID()]; exists {
		return false, true
	}
	rm.members[m.ID()] = m
	return true, true
}

func (r *Registry) deliveryFailed(key, memberID, event string, err error) {
	reason := "member_error"
	switch {
	case errors.Is(err, ErrConnectionClosed):
		reason = "closed"
	case errors.Is(err, ErrSlowConsumer):
		reason = "slow_consumer"
	}
	metrics.DeliveriesDropped.WithLabelValues(reason).Inc()
	r.logger.WithFields(logrus.Fields{
		"component":     "registry",
		"room":          key,
		"connection_id": memberID,
		"event":         event,
	}).WithError(err).Warn("Failed to deliver message to room member")
}

func (r *Registry) reportInvariant(key, detail string) {
	metrics.InvariantViolations.Inc()
	r.logger.WithFields(logrus.Fields{
		"component":           "registry",
		"room":                key,
		"invariant_violation": true,
	}).Error(detail)
}

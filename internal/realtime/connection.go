package realtime

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/auth"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/geo"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/metrics"
	"github.com/google/uuid"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSlowConsumer     = errors.New("outbound buffer overflow")
	ErrInvalidState     = errors.New("invalid connection state transition")
)

// State - стадия жизненного цикла соединения
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// OverflowPolicy - поведение при переполнении исходящего буфера
type OverflowPolicy int

const (
	DropOldest OverflowPolicy = iota
	DisconnectOnOverflow
)

// Connection - состояние одного живого сеанса. Подписки и комнаты меняются только
// обработчиками самого соединения; реестр хранит лишь ссылку на участника.
type Connection struct {
	id          string
	transport   string
	remoteAddr  string
	connectedAt time.Time

	stateMu  sync.Mutex
	state    State
	identity auth.Identity
	rooms    map[string]Room

	// sub читается рассылкой из чужих горутин, поэтому атомарный указатель
	sub atomic.Pointer[geo.Subscription]

	outMu    sync.Mutex
	out      chan Message
	closed   bool
	policy   OverflowPolicy
	onClose  func()
	closeErr error
}

func newConnection(transport, remoteAddr string, buffer int, policy OverflowPolicy) *Connection {
	if buffer < 1 {
		buffer = 1
	}
	return &Connection{
		id:          uuid.NewString(),
		transport:   transport,
		remoteAddr:  remoteAddr,
		connectedAt: time.Now(),
		state:       StateConnecting,
		identity:    auth.Anonymous(),
		rooms:       make(map[string]Room),
		out:         make(chan Message, buffer),
		policy:      policy,
	}
}

func (c *Connection) ID() string        { return c.id }
func (c *Connection) Transport() string { return c.transport }

func (c *Connection) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Connection) Identity() auth.Identity {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.identity
}

// Subscription возвращает текущую пространственную подписку или nil
func (c *Connection) Subscription() *geo.Subscription {
	return c.sub.Load()
}

// Rooms возвращает отсортированные ключи комнат соединения
func (c *Connection) Rooms() []string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	keys := make([]string, 0, len(c.rooms))
	for key := range c.rooms {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Outbound - очередь сообщений для писателя транспорта; закрывается при закрытии соединения
func (c *Connection) Outbound() <-chan Message {
	return c.out
}

// OnClose задает действие при закрытии (обычно закрытие сокета)
func (c *Connection) OnClose(fn func()) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	c.onClose = fn
}

// Deliver реализует Member: не блокируется, учитывает радиус подписки для событий из ячеек сетки
func (c *Connection) Deliver(msg Message) error {
	if msg.Geo != nil {
		if sub := c.sub.Load(); sub != nil && !sub.Contains(*msg.Geo) {
			return ErrFiltered
		}
	}
	return c.Send(msg)
}

// Send помещает сообщение в исходящий буфер
func (c *Connection) Send(msg Message) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.out <- msg:
		return nil
	default:
	}

	if c.policy == DisconnectOnOverflow {
		c.closeLocked(ErrSlowConsumer)
		return ErrSlowConsumer
	}

	// drop-oldest: освобождаем место, выбрасывая самое старое сообщение
	select {
	case <-c.out:
		metrics.DeliveriesDropped.WithLabelValues("overflow_drop_oldest").Inc()
	default:
	}
	select {
	case c.out <- msg:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close закрывает исходящий буфер; повторный вызов безопасен
func (c *Connection) Close() {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	c.closeLocked(nil)
}

// CloseReason - причина закрытия, если соединение закрыто из-за переполнения
func (c *Connection) CloseReason() error {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	return c.closeErr
}

func (c *Connection) closeLocked(reason error) {
	if c.closed {
		return
	}
	c.closed = true
	c.closeErr = reason
	close(c.out)
	if c.onClose != nil {
		go c.onClose()
	}
}

// transition выполняет переход Connecting -> Authenticating -> Active -> Disconnected.
// В Disconnected можно перейти из любого состояния.
func (c *Connection) transition(to State) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.transitionLocked(to)
}

func (c *Connection) transitionLocked(to State) error {
	from := c.state
	valid := (to == StateDisconnected && from != StateDisconnected) ||
		(to == from+1 && to != StateDisconnected)
	if !valid {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, from, to)
	}
	c.state = to
	return nil
}

// addRoom запоминает комнату, только пока соединение не отключено
func (c *Connection) addRoom(r Room) bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.state == StateDisconnected {
		return false
	}
	c.rooms[r.Key()] = r
	return true
}

func (c *Connection) removeRoom(r Room) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	delete(c.rooms, r.Key())
}

// gridRooms возвращает текущие комнаты-ячейки соединения
func (c *Connection) gridRooms() []Room {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	var rooms []Room
	for _, r := range c.rooms {
		if _, ok := r.(GridCell); ok {
			rooms = append(rooms, r)
		}
	}
	return rooms
}

// detach переводит соединение в Disconnected и забирает все его комнаты
func (c *Connection) detach() ([]Room, bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.state == StateDisconnected {
		return nil, false
	}
	c.state = StateDisconnected
	rooms := make([]Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		rooms = append(rooms, r)
	}
	c.rooms = make(map[string]Room)
	return rooms, true
}

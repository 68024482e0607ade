package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/geo"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/metrics"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/realtime"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	publishTimeout = 2 * time.Second
	queueSize      = 1024
)

// Envelope - рассылка, переданная между узлами
type Envelope struct {
	Origin string          `json:"origin"`
	Rooms  []string        `json:"rooms"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
	Geo    *geo.Point      `json:"geo,omitempty"`
}

// Local - реестр комнат текущего узла
type Local interface {
	BroadcastMany(rooms []realtime.Room, msg realtime.Message) int
}

// Publisher доставляет рассылку локально и ставит ее в очередь на публикацию в Redis
type Publisher struct {
	local   Local
	rdb     *redis.Client
	channel string
	origin  string
	queue   chan Envelope
	logger  *logrus.Logger
}

// NewPublisher создает Publisher
func NewPublisher(local Local, rdb *redis.Client, channel, origin string, logger *logrus.Logger) *Publisher {
	return &Publisher{
		local:   local,
		rdb:     rdb,
		channel: channel,
		origin:  origin,
		queue:   make(chan Envelope, queueSize),
		logger:  logger,
	}
}

// BroadcastMany не ждет Redis: при переполненной очереди рассылка для других узлов отбрасывается
func (p *Publisher) BroadcastMany(rooms []realtime.Room, msg realtime.Message) int {
	delivered := p.local.BroadcastMany(rooms, msg)

	env, err := p.envelope(rooms, msg)
	if err != nil {
		metrics.RelayMessages.WithLabelValues("out", "encode_error").Inc()
		p.logger.WithError(err).WithField("event", msg.Event).Error("Failed to encode relay envelope")
		return delivered
	}
	select {
	case p.queue <- env:
	default:
		metrics.RelayMessages.WithLabelValues("out", "dropped").Inc()
		p.logger.WithField("event", msg.Event).Warn("Relay queue is full, dropping cross-node fan-out")
	}
	return delivered
}

// Start публикует конверты из очереди до отмены контекста
func (p *Publisher) Start(ctx context.Context) {
	p.logger.WithField("channel", p.channel).Info("Starting relay publisher...")
	go func() {
		for {
			select {
			case <-ctx.Done():
				p.logger.Info("Stopping relay publisher.")
				return
			case env := <-p.queue:
				if err := p.publish(ctx, env); err != nil {
					metrics.RelayMessages.WithLabelValues("out", "error").Inc()
					p.logger.WithError(err).WithField("event", env.Event).Error("Failed to publish relay envelope")
					continue
				}
				metrics.RelayMessages.WithLabelValues("out", "ok").Inc()
			}
		}
	}()
}

func (p *Publisher) publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal relay envelope: %w", err)
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.rdb.Publish(pubCtx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish relay envelope to Redis: %w", err)
	}
	return nil
}

func (p *Publisher) envelope(rooms []realtime.Room, msg realtime.Message) (Envelope, error) {
	env := Envelope{Origin: p.origin, Event: msg.Event, Geo: msg.Geo, Rooms: make([]string, 0, len(rooms))}
	for _, r := range rooms {
		env.Rooms = append(env.Rooms, realtime.Canonical(r))
	}
	if msg.Data != nil {
		data, err := json.Marshal(msg.Data)
		if err != nil {
			return Envelope{}, err
		}
		env.Data = data
	}
	return env, nil
}

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/metrics"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/realtime"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrOwnEnvelope - конверт опубликован этим же узлом
var ErrOwnEnvelope = errors.New("relay: envelope from own origin")

// Worker получает рассылки других узлов и повторяет их в локальном реестре
type Worker struct {
	local   Local
	rdb     *redis.Client
	channel string
	origin  string
	logger  *logrus.Logger
}

// NewWorker создает Worker
func NewWorker(local Local, rdb *redis.Client, channel, origin string, logger *logrus.Logger) *Worker {
	return &Worker{
		local:   local,
		rdb:     rdb,
		channel: channel,
		origin:  origin,
		logger:  logger,
	}
}

// Start подписывается на канал и обрабатывает конверты до отмены контекста
func (w *Worker) Start(ctx context.Context) error {
	ps := w.rdb.Subscribe(ctx, w.channel)
	// дожидаемся подтверждения подписки
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("failed to subscribe to relay channel %s: %w", w.channel, err)
	}

	w.logger.WithField("channel", w.channel).Info("Starting relay worker...")
	go func() {
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				w.logger.Info("Stopping relay worker.")
				return
			case msg, ok := <-ch:
				if !ok {
					w.logger.Warn("Relay subscription closed")
					return
				}
				if _, err := w.Handle([]byte(msg.Payload)); err != nil && !errors.Is(err, ErrOwnEnvelope) {
					metrics.RelayMessages.WithLabelValues("in", "error").Inc()
					w.logger.WithError(err).Error("Failed to process relay envelope")
				}
			}
		}
	}()
	return nil
}

// Handle разбирает конверт и рассылает его локально; возвращает число доставок
func (w *Worker) Handle(payload []byte) (int, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return 0, fmt.Errorf("failed to unmarshal relay envelope: %w", err)
	}
	if env.Origin == w.origin {
		return 0, ErrOwnEnvelope
	}

	rooms := make([]realtime.Room, 0, len(env.Rooms))
	for _, key := range env.Rooms {
		r, err := realtime.ParseRoom(key)
		if err != nil {
			w.logger.WithError(err).WithField("room", key).Warn("Skipping unknown room in relay envelope")
			continue
		}
		rooms = append(rooms, r)
	}

	msg := realtime.Message{Event: env.Event, Geo: env.Geo}
	if len(env.Data) > 0 {
		msg.Data = env.Data
	}
	delivered := w.local.BroadcastMany(rooms, msg)
	metrics.RelayMessages.WithLabelValues("in", "ok").Inc()
	return delivered, nil
}

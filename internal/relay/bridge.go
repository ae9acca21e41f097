package relay

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"

	"eduhub-realtime/internal/realtime"
	"eduhub-realtime/pkg/log"
)

const bridgePattern = "realtime:*"

// Bridge feeds frames published by backend services (grade updates,
// announcements, exam alerts) into the hub. Services publish a complete
// frame on the Redis channel "realtime:<room>"; an empty room suffix
// broadcasts to every session.
type Bridge struct {
	client *redis.Client
	hub    *Hub
	logger log.Logger

	pubsub *redis.PubSub
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBridge creates a new Redis bridge.
func NewBridge(client *redis.Client, hub *Hub, logger log.Logger) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())

	return &Bridge{
		client: client,
		hub:    hub,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start subscribes to the realtime pattern and begins forwarding.
func (b *Bridge) Start() error {
	b.pubsub = b.client.PSubscribe(b.ctx, bridgePattern)

	if _, err := b.pubsub.Receive(b.ctx); err != nil {
		return err
	}
	b.logger.Infof(b.ctx, "relay: redis bridge started, listening on pattern %s", bridgePattern)

	go b.listen()
	return nil
}

func (b *Bridge) listen() {
	defer close(b.done)

	ch := b.pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			b.logger.Info(context.Background(), "relay: redis bridge shutting down...")
			return

		case msg, ok := <-ch:
			if !ok {
				b.logger.Error(b.ctx, "relay: redis pub/sub channel closed")
				return
			}
			b.handleMessage(msg.Channel, msg.Payload)
		}
	}
}

func (b *Bridge) handleMessage(channel, payload string) {
	room := strings.TrimPrefix(channel, "realtime:")
	if room == channel {
		b.logger.Warnf(b.ctx, "relay: invalid bridge channel: %s", channel)
		return
	}

	data := []byte(payload)
	if _, err := realtime.DecodeFrame(data); err != nil {
		b.logger.Warnf(b.ctx, "relay: dropping malformed bridge frame on %s: %v", channel, err)
		return
	}
	b.hub.Broadcast(room, data)
}

// Stop shuts the bridge down and closes the subscription.
func (b *Bridge) Stop() {
	b.cancel()
	if b.pubsub != nil {
		b.pubsub.Close()
	}
	<-b.done
}

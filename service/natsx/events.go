package natsx

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"vhrealtime/service/storage"
)

const BizChatMessageCreated = "chat.message.created"

// ChatEventPublisher announces persisted chat messages on the bus. Publishing is
// asynchronous and best effort: when the queue is full the event is dropped.
type ChatEventPublisher struct {
	pub   *NatsxSyncPublisher
	queue chan storage.ChatMessage
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
	log   *zap.Logger
}

func NewChatEventPublisher(s Sender, queueSize int, log *zap.Logger) *ChatEventPublisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &ChatEventPublisher{
		pub:   &NatsxSyncPublisher{P: s, Retries: 2, Backoff: 200 * time.Millisecond},
		queue: make(chan storage.ChatMessage, queueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		log:   log.Named("natsx"),
	}
	go p.run()
	return p
}

// MessageCreated never blocks the caller.
func (p *ChatEventPublisher) MessageCreated(m storage.ChatMessage) {
	select {
	case <-p.stop:
		p.log.Debug("publisher closed, event dropped", zap.String("id", m.ID))
		return
	default:
	}
	select {
	case p.queue <- m:
	default:
		p.log.Warn("event queue full, event dropped", zap.String("id", m.ID))
	}
}

func (p *ChatEventPublisher) run() {
	defer close(p.done)
	for {
		select {
		case m := <-p.queue:
			p.publish(m)
		case <-p.stop:
			// drain what was accepted before Close
			for {
				select {
				case m := <-p.queue:
					p.publish(m)
				default:
					return
				}
			}
		}
	}
}

func (p *ChatEventPublisher) publish(m storage.ChatMessage) {
	data, err := json.Marshal(m)
	if err != nil {
		p.log.Error("encode chat event", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hdr := map[string]string{"Content-Type": "application/json"}
	if err := p.pub.Publish(ctx, BizChatMessageCreated, data, hdr, m.ID); err != nil {
		p.log.Warn("publish chat event failed", zap.String("id", m.ID), zap.Error(err))
	}
}

// Close stops accepting events and waits for the queue to drain or ctx to expire.
func (p *ChatEventPublisher) Close(ctx context.Context) error {
	p.once.Do(func() { close(p.stop) })
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

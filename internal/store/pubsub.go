package store

import (
	"context"
	"sync"
)

// Message is one pubsub delivery, mirroring redis.Message so subscribers do
// not care which backend produced it.
type Message struct {
	Channel string
	Payload string
}

// Subscription is a live pubsub subscription. Closing it stops delivery and
// closes the message channel.
type Subscription interface {
	Channel() <-chan *Message
	Close() error
}

// memSubscription is the in-memory Subscription used when Redis is down.
type memSubscription struct {
	channels map[string]bool
	msgChan  chan *Message
	closeCh  chan struct{}
	closed   bool
	mu       sync.RWMutex
}

func newMemSubscription(channels []string) *memSubscription {
	channelMap := make(map[string]bool, len(channels))
	for _, ch := range channels {
		channelMap[ch] = true
	}
	return &memSubscription{
		channels: channelMap,
		msgChan:  make(chan *Message, 100),
		closeCh:  make(chan struct{}),
	}
}

func (m *memSubscription) Channel() <-chan *Message {
	return m.msgChan
}

func (m *memSubscription) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.closeCh)
		close(m.msgChan)
	}
	return nil
}

// send delivers a message without blocking; a full buffer drops the message.
func (m *memSubscription) send(msg *Message) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed || !m.channels[msg.Channel] {
		return
	}
	select {
	case m.msgChan <- msg:
	default:
	}
}

// PubSubHub fans published messages out to in-memory subscriptions.
type PubSubHub struct {
	subscribers map[string][]*memSubscription
	mu          sync.RWMutex
}

func NewPubSubHub() *PubSubHub {
	return &PubSubHub{
		subscribers: make(map[string][]*memSubscription),
	}
}

// Subscribe registers a new subscription for the given channels. The
// subscription is torn down when the context is canceled or Close is called.
func (h *PubSubHub) Subscribe(ctx context.Context, channels ...string) Subscription {
	sub := newMemSubscription(channels)

	h.mu.Lock()
	for _, channel := range channels {
		h.subscribers[channel] = append(h.subscribers[channel], sub)
	}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.closeCh:
		}

		h.mu.Lock()
		defer h.mu.Unlock()
		for _, channel := range channels {
			subs := h.subscribers[channel]
			for i, s := range subs {
				if s == sub {
					h.subscribers[channel] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(h.subscribers[channel]) == 0 {
				delete(h.subscribers, channel)
			}
		}
	}()

	return sub
}

// Publish sends a message to every subscriber of the channel.
func (h *PubSubHub) Publish(channel, payload string) {
	h.mu.RLock()
	subs := make([]*memSubscription, len(h.subscribers[channel]))
	copy(subs, h.subscribers[channel])
	h.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	msg := &Message{Channel: channel, Payload: payload}
	for _, sub := range subs {
		sub.send(msg)
	}
}

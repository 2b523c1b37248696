package event

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Update is one committed mutation pushed to subscribers. Delivery is
// at-least-once and ordered per event; different events carry no ordering
// guarantee relative to each other.
type Update struct {
	Type    string         `json:"type"`
	EventID string         `json:"eventId"`
	Payload map[string]any `json:"payload,omitempty"`
}

const (
	UpdateSnapshot       = "event.snapshot"
	UpdateEventCreated   = "event.created"
	UpdateEventUpdated   = "event.updated"
	UpdateEventDeleted   = "event.deleted"
	UpdateTrackAdded     = "track.added"
	UpdateTrackRemoved   = "track.removed"
	UpdateTrackVoted     = "track.voted"
	UpdateTrackUnvoted   = "track.unvoted"
	UpdatePlayback       = "playback.changed"
	UpdateInviteCreated  = "invite.created"
	UpdateInviteAnswered = "invite.answered"
)

// Channel is the subscribe/publish primitive carrying every ledger and
// coordinator mutation to connected clients.
type Channel interface {
	Publish(ctx context.Context, u Update) error
	Subscribe(ctx context.Context, eventID string) (*Subscription, error)
}

// Subscription yields a stream of updates with an explicit unsubscribe.
// The channel closes after Unsubscribe or when the transport drops; a
// client recovers from a drop by resubscribing and taking a fresh snapshot.
type Subscription struct {
	updates chan Update
	stop    func()
	once    sync.Once
}

func (s *Subscription) Updates() <-chan Update { return s.updates }

func (s *Subscription) Unsubscribe() {
	s.once.Do(s.stop)
}

// broadcastChannel is the firehose every mutation is mirrored to; the
// websocket fanout subscribes there.
const broadcastChannel = "broadcast"

func eventChannel(eventID string) string { return "events:" + eventID }

// RedisChannel implements Channel on Redis pub/sub. Redis preserves publish
// order per channel, which gives the per-event ordering guarantee.
type RedisChannel struct {
	rdb *redis.Client
}

func NewRedisChannel(rdb *redis.Client) *RedisChannel {
	return &RedisChannel{rdb: rdb}
}

func (c *RedisChannel) Publish(ctx context.Context, u Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return errf(KindInvalid, "encode update: %v", err)
	}
	if err := c.rdb.Publish(ctx, eventChannel(u.EventID), string(data)).Err(); err != nil {
		return &Error{Kind: KindUnavailable, Msg: "publish: " + err.Error()}
	}
	if err := c.rdb.Publish(ctx, broadcastChannel, string(data)).Err(); err != nil {
		return &Error{Kind: KindUnavailable, Msg: "publish: " + err.Error()}
	}
	return nil
}

func (c *RedisChannel) Subscribe(ctx context.Context, eventID string) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, eventChannel(eventID))
	// Force the SUBSCRIBE round trip so a failed transport surfaces here
	// instead of as a silently empty stream.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, &Error{Kind: KindUnavailable, Msg: "subscribe: " + err.Error()}
	}

	done := make(chan struct{})
	sub := &Subscription{
		updates: make(chan Update, 64),
		stop: func() {
			close(done)
			_ = pubsub.Close()
		},
	}
	go forwardUpdates(pubsub.Channel(), sub, done)
	return sub, nil
}

// forwardUpdates pipes decoded messages into the subscription until the
// source closes or the subscriber stops. The done escape keeps a stopped
// subscriber with a full buffer from wedging the forwarder forever.
func forwardUpdates(in <-chan *redis.Message, sub *Subscription, done <-chan struct{}) {
	defer close(sub.updates)
	for {
		select {
		case <-done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var u Update
			if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
				log.Printf("deezeroom: drop malformed update: %v", err)
				continue
			}
			select {
			case sub.updates <- u:
			case <-done:
				return
			}
		}
	}
}

// MemChannel is an in-process Channel used by the tests and the
// dependency-free wiring. A slow subscriber blocks the publisher rather
// than losing updates.
type MemChannel struct {
	mu   sync.Mutex
	subs map[string][]chan Update
}

func NewMemChannel() *MemChannel {
	return &MemChannel{subs: map[string][]chan Update{}}
}

func (c *MemChannel) Publish(ctx context.Context, u Update) error {
	// Delivery happens under the lock so an Unsubscribe cannot close a
	// channel mid-send.
	c.mu.Lock()
	defer c.mu.Unlock()
	targets := append([]chan Update(nil), c.subs[u.EventID]...)
	targets = append(targets, c.subs[broadcastChannel]...)

	for _, ch := range targets {
		select {
		case ch <- u:
		case <-ctx.Done():
			return &Error{Kind: KindUnavailable, Msg: ctx.Err().Error()}
		}
	}
	return nil
}

func (c *MemChannel) Subscribe(ctx context.Context, eventID string) (*Subscription, error) {
	return c.subscribeKey(eventID), nil
}

// SubscribeAll taps the firehose, mirroring the Redis "broadcast" channel.
func (c *MemChannel) SubscribeAll() *Subscription {
	return c.subscribeKey(broadcastChannel)
}

func (c *MemChannel) subscribeKey(key string) *Subscription {
	ch := make(chan Update, 64)
	c.mu.Lock()
	c.subs[key] = append(c.subs[key], ch)
	c.mu.Unlock()

	return &Subscription{
		updates: ch,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			list := c.subs[key]
			for i, s := range list {
				if s == ch {
					c.subs[key] = append(list[:i], list[i+1:]...)
					break
				}
			}
			close(ch)
		},
	}
}

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/yourastro/backend/internal/models"
)

type EventType string

const (
	EventMessage    EventType = "message"
	EventPeerJoin   EventType = "peer_join"
	EventPeerLeave  EventType = "peer_leave"
	EventEnded      EventType = "ended"
	EventLowBalance EventType = "low_balance"
)

// Event is the wire format published on a session channel.
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"sessionId"`
	PeerID    string          `json:"peerId,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Balance   int64           `json:"balance,omitempty"`
	Message   *models.Message `json:"message,omitempty"`
	At        time.Time       `json:"at"`
}

// Handlers receive session events on the subscriber's dispatch goroutine.
// Nil handlers are skipped.
type Handlers struct {
	OnMessage   func(models.Message)
	OnPeerJoin  func(peerID string)
	OnPeerLeave func(peerID string)
	OnEnded     func(reason string)
}

var ErrAlreadySubscribed = errors.New("session already subscribed")

// Bridge delivers session-scoped events (chat messages, presence
// join/leave, end-of-session) over Redis pub/sub. At most one
// subscription per session is allowed at a time; Unsubscribe guarantees
// no handler fires after it returns.
type Bridge struct {
	redis       *redis.Client
	presenceTTL time.Duration

	mu   sync.Mutex
	subs map[string]*subscription
}

type subscription struct {
	pubsub *redis.PubSub
	stop   chan struct{}
	done   chan struct{}
}

func NewBridge(rdb *redis.Client, presenceTTL time.Duration) *Bridge {
	return &Bridge{
		redis:       rdb,
		presenceTTL: presenceTTL,
		subs:        make(map[string]*subscription),
	}
}

func channelFor(sessionID string) string {
	return "session:" + sessionID
}

func presenceKey(sessionID, peerID string) string {
	return fmt.Sprintf("session:%s:presence:%s", sessionID, peerID)
}

// Subscribe opens the session channel and starts the dispatch goroutine.
// Subscribing to an already-subscribed session is an error.
func (b *Bridge) Subscribe(ctx context.Context, sessionID string, h Handlers) error {
	b.mu.Lock()
	if _, ok := b.subs[sessionID]; ok {
		b.mu.Unlock()
		return ErrAlreadySubscribed
	}

	pubsub := b.redis.Subscribe(ctx, channelFor(sessionID))
	sub := &subscription{
		pubsub: pubsub,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	b.subs[sessionID] = sub
	b.mu.Unlock()

	// Confirm the subscription before returning so no published event
	// can slip past between Subscribe and the first receive.
	if _, err := pubsub.Receive(ctx); err != nil {
		b.mu.Lock()
		delete(b.subs, sessionID)
		b.mu.Unlock()
		pubsub.Close()
		close(sub.done)
		return err
	}

	go b.dispatch(sessionID, sub, h)
	return nil
}

// Unsubscribe tears the channel down and waits for the dispatch
// goroutine to exit. After it returns no handler runs for the session.
func (b *Bridge) Unsubscribe(sessionID string) error {
	b.mu.Lock()
	sub, ok := b.subs[sessionID]
	if !ok {
		b.mu.Unlock()
		return nil
	}
	delete(b.subs, sessionID)
	b.mu.Unlock()

	close(sub.stop)
	err := sub.pubsub.Close()
	<-sub.done
	return err
}

func (b *Bridge) dispatch(sessionID string, sub *subscription, h Handlers) {
	defer close(sub.done)

	ch := sub.pubsub.Channel()

	// Presence watch: peers heartbeat a TTL key; when a joined peer's
	// key disappears we synthesize a leave.
	watchEvery := b.presenceTTL / 3
	if watchEvery < time.Second {
		watchEvery = time.Second
	}
	ticker := time.NewTicker(watchEvery)
	defer ticker.Stop()

	joined := make(map[string]bool)

	for {
		select {
		case <-sub.stop:
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(raw.Payload), &ev); err != nil {
				log.Printf("[REALTIME] Dropping malformed event on %s: %v", raw.Channel, err)
				continue
			}
			switch ev.Type {
			case EventMessage:
				if ev.Message != nil && h.OnMessage != nil {
					h.OnMessage(*ev.Message)
				}
			case EventPeerJoin:
				joined[ev.PeerID] = true
				if h.OnPeerJoin != nil {
					h.OnPeerJoin(ev.PeerID)
				}
			case EventPeerLeave:
				delete(joined, ev.PeerID)
				if h.OnPeerLeave != nil {
					h.OnPeerLeave(ev.PeerID)
				}
			case EventEnded:
				if h.OnEnded != nil {
					h.OnEnded(ev.Reason)
				}
			}
		case <-ticker.C:
			for peerID := range joined {
				exists, err := b.redis.Exists(context.Background(), presenceKey(sessionID, peerID)).Result()
				if err != nil {
					log.Printf("[REALTIME] Presence check failed for %s: %v", sessionID, err)
					continue
				}
				if exists == 0 {
					delete(joined, peerID)
					if h.OnPeerLeave != nil {
						h.OnPeerLeave(peerID)
					}
				}
			}
		}
	}
}

func (b *Bridge) publish(ctx context.Context, sessionID string, ev Event) error {
	ev.SessionID = sessionID
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, channelFor(sessionID), string(data)).Err()
}

// PublishMessage fans a stored chat message out to both parties.
func (b *Bridge) PublishMessage(ctx context.Context, msg models.Message) error {
	return b.publish(ctx, msg.SessionID, Event{Type: EventMessage, Message: &msg})
}

// Join marks the peer present (heartbeat key) and announces the join.
func (b *Bridge) Join(ctx context.Context, sessionID, peerID string) error {
	if err := b.redis.Set(ctx, presenceKey(sessionID, peerID), "1", b.presenceTTL).Err(); err != nil {
		return err
	}
	return b.publish(ctx, sessionID, Event{Type: EventPeerJoin, PeerID: peerID})
}

// Heartbeat refreshes the peer's presence TTL.
func (b *Bridge) Heartbeat(ctx context.Context, sessionID, peerID string) error {
	return b.redis.Set(ctx, presenceKey(sessionID, peerID), "1", b.presenceTTL).Err()
}

// Leave removes presence and announces a deliberate departure.
func (b *Bridge) Leave(ctx context.Context, sessionID, peerID string) error {
	if err := b.redis.Del(ctx, presenceKey(sessionID, peerID)).Err(); err != nil {
		log.Printf("[REALTIME] Failed to clear presence for %s: %v", sessionID, err)
	}
	return b.publish(ctx, sessionID, Event{Type: EventPeerLeave, PeerID: peerID})
}

// PublishEnded notifies subscribers that the session reached a terminal
// state.
func (b *Bridge) PublishEnded(ctx context.Context, sessionID, reason string) error {
	return b.publish(ctx, sessionID, Event{Type: EventEnded, Reason: reason})
}

// PublishLowBalance warns the session parties that the payer's wallet
// dropped below the warning threshold. The session keeps running.
func (b *Bridge) PublishLowBalance(ctx context.Context, sessionID string, balance int64) error {
	return b.publish(ctx, sessionID, Event{Type: EventLowBalance, Balance: balance})
}

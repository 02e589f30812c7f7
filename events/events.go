package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Event kinds published by the moderation core.
const (
	KindModerationActionRequested = "moderation.action.requested"
	KindTrustUpdated              = "user.trust.updated"
)

// Meta identifies the origin of an event.
type Meta struct {
	Source string `json:"source"`
	UserID string `json:"userId,omitempty"`
}

// ModerationActionRequested is the payload for moderation.action.requested.
type ModerationActionRequested struct {
	TargetType       string         `json:"targetType"`
	TargetID         string         `json:"targetId"`
	ActionType       string         `json:"actionType"`
	Severity         string         `json:"severity"`
	Reasoning        string         `json:"reasoning"`
	AIConfidence     float64        `json:"aiConfidence"`
	ViolationContext map[string]any `json:"violationContext,omitempty"`
	RequestedAt      time.Time      `json:"requestedAt"`
}

// TrustUpdated is the payload for user.trust.updated. The score maps are left
// nil by this core; the trust service computes and fills them downstream.
type TrustUpdated struct {
	UserID             string             `json:"userId"`
	Reason             string             `json:"reason"`
	ModerationActionID uint64             `json:"moderationActionId"`
	PreviousScores     map[string]float64 `json:"previousScores,omitempty"`
	NewScores          map[string]float64 `json:"newScores,omitempty"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// Event is the envelope delivered to subscribers. Payload holds the
// kind-specific JSON document.
type Event struct {
	ID        uint64          `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Meta      Meta            `json:"meta"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Sink is anything events can be delivered to. EventManager is the in-process
// implementation; an external broker bridge would satisfy the same interface.
type Sink interface {
	AddEvent(ctx context.Context, evt *Event) error
}

// EventManager fans events out to in-process subscribers. Delivery is
// best-effort per subscriber: a slow consumer with a full buffer drops the
// event rather than blocking the manager loop.
type EventManager struct {
	subs []*Subscriber

	ops        chan *operation
	closed     chan struct{}
	bufferSize int

	logger *slog.Logger
}

func NewEventManager(logger *slog.Logger) *EventManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventManager{
		ops:        make(chan *operation),
		closed:     make(chan struct{}),
		bufferSize: 1024,
		logger:     logger.With("system", "events"),
	}
}

const (
	opSubscribe = iota
	opUnsubscribe
	opSend
)

type operation struct {
	op  int
	sub *Subscriber
	evt *Event
}

type Subscriber struct {
	outgoing chan *Event
	filter   func(*Event) bool
	done     chan struct{}
}

// Run processes the operation channel until Shutdown is called.
func (em *EventManager) Run() {
	for op := range em.ops {
		switch op.op {
		case opSubscribe:
			em.subs = append(em.subs, op.sub)
		case opUnsubscribe:
			for i, s := range em.subs {
				if s == op.sub {
					em.subs[i] = em.subs[len(em.subs)-1]
					em.subs = em.subs[:len(em.subs)-1]
					break
				}
			}
		case opSend:
			for _, s := range em.subs {
				if !s.filter(op.evt) {
					continue
				}
				select {
				case s.outgoing <- op.evt:
				default:
					fanoutOverflow.WithLabelValues(op.evt.Kind).Inc()
					em.logger.Error("subscriber buffer overflow, dropping event", "kind", op.evt.Kind, "id", op.evt.ID)
				}
			}
		}
	}
}

// Shutdown causes subsequent AddEvent and Subscribe calls to fail. The
// manager loop itself runs for the life of the process.
func (em *EventManager) Shutdown() {
	close(em.closed)
}

func (em *EventManager) AddEvent(ctx context.Context, evt *Event) error {
	select {
	case em.ops <- &operation{op: opSend, evt: evt}:
		return nil
	case <-em.closed:
		return fmt.Errorf("event manager shut down")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a filtered subscriber. The returned cleanup func must
// be called when the consumer goes away.
func (em *EventManager) Subscribe(filter func(*Event) bool) (<-chan *Event, func(), error) {
	if filter == nil {
		filter = func(*Event) bool { return true }
	}

	done := make(chan struct{})
	sub := &Subscriber{
		outgoing: make(chan *Event, em.bufferSize),
		filter:   filter,
		done:     done,
	}

	select {
	case em.ops <- &operation{op: opSubscribe, sub: sub}:
	case <-em.closed:
		return nil, nil, fmt.Errorf("event manager shut down")
	}

	cleanup := func() {
		close(done)
		select {
		case em.ops <- &operation{op: opUnsubscribe, sub: sub}:
		case <-em.closed:
		}
	}

	return sub.outgoing, cleanup, nil
}

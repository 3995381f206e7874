// Package events publishes auction lifecycle events after the change that
// caused them has committed. Publishing is best effort.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	applog "lotauction/internal/log"
)

const (
	AuctionCreated   = "auction.created"
	AuctionActivated = "auction.activated"
	BidAccepted      = "bid.accepted"
	AuctionEnded     = "auction.ended"
	EscrowLocked     = "escrow.locked"
	AuctionSettled   = "auction.settled"
	AuctionCancelled = "auction.cancelled"
)

type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	AuctionID string         `json:"auctionId"`
	At        time.Time      `json:"at"`
	Data      map[string]any `json:"data,omitempty"`
}

func New(typ, auctionID string, at time.Time, data map[string]any) Event {
	return Event{ID: uuid.NewString(), Type: typ, AuctionID: auctionID, At: at, Data: data}
}

// Subject is the NATS subject an auction's events go to.
func Subject(auctionID string) string { return fmt.Sprintf("auction.events.%s", auctionID) }

// Publisher must not block the caller for long and must never fail the
// operation that produced the event; failures are logged and dropped.
type Publisher interface {
	Publish(e Event)
}

type Nop struct{}

func (Nop) Publish(Event) {}

type NATSPublisher struct {
	nc *nats.Conn
}

func NewNATSPublisher(nc *nats.Conn) *NATSPublisher { return &NATSPublisher{nc: nc} }

func (p *NATSPublisher) Publish(e Event) {
	b, err := json.Marshal(e)
	if err != nil {
		applog.Fail("event.publish", err, map[string]any{"type": e.Type, "auction": e.AuctionID})
		return
	}
	// nats buffers internally; Publish does not wait for the server
	if err := p.nc.Publish(Subject(e.AuctionID), b); err != nil {
		applog.Fail("event.publish", err, map[string]any{"type": e.Type, "auction": e.AuctionID})
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists recorded event types in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

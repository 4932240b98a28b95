package rfcompanion

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// EventKind values up to EVENT_UNKNOWN_SIGNAL are the codes a GATT client
// reads back from the send command characteristic.
type EventKind int

const (
	EVENT_PROCESSING     EventKind = 1
	EVENT_BUSY           EventKind = 2
	EVENT_COMPLETED      EventKind = 3
	EVENT_UNKNOWN_SIGNAL EventKind = 4
	EVENT_FAILED         EventKind = 5
	EVENT_CANCELLED      EventKind = 6
	EVENT_ANTENNA_STATE  EventKind = 7
)

func (k EventKind) String() string {
	switch k {
	case EVENT_PROCESSING:
		return "processing"
	case EVENT_BUSY:
		return "busy"
	case EVENT_COMPLETED:
		return "completed"
	case EVENT_UNKNOWN_SIGNAL:
		return "unknown-signal"
	case EVENT_FAILED:
		return "failed"
	case EVENT_CANCELLED:
		return "cancelled"
	case EVENT_ANTENNA_STATE:
		return "antenna-state"
	default:
		return "unknown"
	}
}

// Notification is what the engine tells the outside world.
// Origin is the requester, e.g. "tcp 10.0.0.7:51234"; Busy is set on antenna
// state events only.  Elapsed is time on the air, set on the end events.
type Notification struct {
	Seq     uint64
	Kind    EventKind
	Origin  string
	Signal  string
	Busy    bool
	Err     error
	At      time.Time
	Elapsed time.Duration
}

type Subscription struct {
	C <-chan Notification

	hub *Hub
	c   chan Notification
}

func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

/*-------------------------------------------------------------------
 *
 * Name:        Hub
 *
 * Purpose:     Fan notifications out to every subscriber.
 *
 * Description:	Publish is called from antenna hooks with the antenna
 *		locked, so it never blocks: a subscriber whose buffer
 *		is full misses that notification and a warning is
 *		logged.
 *
 *--------------------------------------------------------------------*/

type Hub struct {
	log *log.Logger
	seq atomic.Uint64

	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{ //nolint:exhaustruct
		log:  logger.WithPrefix("events"),
		subs: make(map[*Subscription]struct{}),
	}
}

func (h *Hub) Subscribe(buffer int) *Subscription {
	var c = make(chan Notification, buffer)
	var s = &Subscription{C: c, hub: h, c: c}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	return s
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.c)
	}
}

func (h *Hub) Publish(n Notification) {
	n.Seq = h.seq.Add(1)
	if n.At.IsZero() {
		n.At = time.Now()
	}

	h.log.Debug("Publish", "seq", n.Seq, "kind", n.Kind, "origin", n.Origin, "signal", n.Signal)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs {
		select {
		case s.c <- n:
		default:
			h.log.Warn("Subscriber too slow, dropping notification", "seq", n.Seq, "kind", n.Kind)
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs)
}

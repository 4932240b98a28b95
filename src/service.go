package rfcompanion

/*------------------------------------------------------------------
 *
 * Purpose:   	Front door of the engine for every command channel.
 *
 * Description:	Looks the requested signal up, asks the antenna to start
 *		it and turns every outcome into a notification on the
 *		hub.  The antenna lifecycle hooks are what report busy,
 *		free and completion, so a transmission started here is
 *		reported exactly the same way however it ends.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

type Admission int

const (
	REJECTED Admission = iota
	ACCEPTED
)

func (a Admission) String() string {
	if a == ACCEPTED {
		return "accepted"
	}

	return "rejected"
}

type activeRequest struct {
	origin  string
	signal  string
	started time.Time
}

type Service struct {
	antenna *Antenna
	signals *SignalTable
	hub     *Hub
	log     *log.Logger

	// Held across Antenna.Begin so the begin hook sees the right origin.
	admitMu       sync.Mutex
	pendingOrigin string

	active atomic.Pointer[activeRequest]
}

// NewService takes over the antenna's lifecycle hooks.
func NewService(antenna *Antenna, signals *SignalTable, hub *Hub, logger *log.Logger) *Service {
	var s = &Service{ //nolint:exhaustruct
		antenna: antenna,
		signals: signals,
		hub:     hub,
		log:     logger.WithPrefix("service"),
	}

	antenna.OnBegin = s.onBegin
	antenna.OnEnd = s.onEnd

	return s
}

func (s *Service) Signals() *SignalTable { return s.signals }

func (s *Service) Hub() *Hub { return s.hub }

func (s *Service) IsBusy() bool { return s.antenna.IsBusy() }

/*-------------------------------------------------------------------
 *
 * Name:        RequestTransmission
 *
 * Purpose:     Send a signal from the table.
 *
 * Inputs:	origin	- Who is asking.  Carried on every notification
 *			  about this request.
 *
 *		key	- Signal id or name.
 *
 * Returns:	ACCEPTED, nil	 - on the air; COMPLETED follows.
 *		REJECTED, nil	 - antenna busy; BUSY was published.
 *		REJECTED, ErrUnknownSignal
 *		REJECTED, other	 - generator could not start; FAILED was
 *				   published and the antenna is free again.
 *
 *--------------------------------------------------------------------*/

func (s *Service) RequestTransmission(origin string, key string) (Admission, error) {
	var tx, err = s.signals.Lookup(key)
	if err != nil {
		s.log.Warn("Unknown signal requested", "origin", origin, "key", key)
		s.hub.Publish(Notification{Kind: EVENT_UNKNOWN_SIGNAL, Origin: origin, Signal: key, Err: err}) //nolint:exhaustruct

		return REJECTED, err
	}

	s.admitMu.Lock()
	s.pendingOrigin = origin
	err = s.antenna.Begin(tx)
	s.pendingOrigin = ""
	s.admitMu.Unlock()

	switch {
	case err == nil:
		return ACCEPTED, nil
	case errors.Is(err, ErrBusy):
		s.log.Info("Antenna busy, request rejected", "origin", origin, "signal", tx.Name)
		s.hub.Publish(Notification{Kind: EVENT_BUSY, Origin: origin, Signal: tx.Name}) //nolint:exhaustruct

		return REJECTED, nil
	default:
		return REJECTED, err
	}
}

// Cancel stops whatever is on the air.  The end is reported as CANCELLED.
func (s *Service) Cancel(origin string) error {
	s.log.Info("Cancel requested", "origin", origin)

	return s.antenna.Cancel()
}

func (s *Service) onBegin(_ *Antenna, tx *Transmission) {
	var req = &activeRequest{origin: s.pendingOrigin, signal: tx.Name, started: time.Now()}
	s.active.Store(req)

	s.hub.Publish(Notification{Kind: EVENT_PROCESSING, Origin: req.origin, Signal: tx.Name, At: req.started}) //nolint:exhaustruct
	s.hub.Publish(Notification{Kind: EVENT_ANTENNA_STATE, Origin: req.origin, Signal: tx.Name, Busy: true})   //nolint:exhaustruct
}

func (s *Service) onEnd(_ *Antenna, tx *Transmission, cause error) {
	var origin string
	var elapsed time.Duration

	if req := s.active.Swap(nil); req != nil {
		origin = req.origin
		elapsed = time.Since(req.started)
	}

	s.hub.Publish(Notification{Kind: EVENT_ANTENNA_STATE, Origin: origin, Signal: tx.Name, Busy: false}) //nolint:exhaustruct

	var kind EventKind

	switch {
	case cause == nil:
		kind = EVENT_COMPLETED
		s.log.Info("Transmission complete", "origin", origin, "signal", tx.Name, "elapsed", elapsed)
	case errors.Is(cause, ErrCancelled):
		kind = EVENT_CANCELLED
		s.log.Info("Transmission cancelled", "origin", origin, "signal", tx.Name, "elapsed", elapsed)
	default:
		kind = EVENT_FAILED
		s.log.Error("Transmission failed", "origin", origin, "signal", tx.Name, "err", cause)
	}

	s.hub.Publish(Notification{ //nolint:exhaustruct
		Kind:    kind,
		Origin:  origin,
		Signal:  tx.Name,
		Err:     cause,
		Elapsed: elapsed,
	})
}

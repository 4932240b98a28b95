package rfcompanion

import "errors"

var (
	// ErrBusy is the normal admission outcome when a transmission is already on the air.
	ErrBusy = errors.New("antenna busy")

	// ErrNotBusy is returned when cancelling with nothing on the air.
	ErrNotBusy = errors.New("antenna not busy")

	// ErrCancelled is the end cause of a transmission stopped by Antenna.Cancel.
	ErrCancelled = errors.New("transmission cancelled")

	// ErrUnknownSignal is a caller input error: no such entry in the signal table.
	ErrUnknownSignal = errors.New("unknown signal")

	// ErrPayloadMismatch means a descriptor was paired with a generator that can't encode its payload.
	ErrPayloadMismatch = errors.New("payload does not match generator")

	ErrDispatchQueueFull = errors.New("deferred completion queue full")
	ErrClockPeriod       = errors.New("clock period not representable")
	ErrClockClosed       = errors.New("clock closed")
	ErrAlreadyStarted    = errors.New("already started")
)

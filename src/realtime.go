package rfcompanion

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

type RealtimeConfig struct {
	// CPU pins the tick thread.  Negative leaves placement to the kernel.
	CPU int `yaml:"cpu"`

	// Priority is the SCHED_FIFO priority, 1-99.  Zero keeps the default policy.
	Priority int `yaml:"priority"`
}

/*-------------------------------------------------------------------
 *
 * Name:        setupTickThread
 *
 * Purpose:     Give the calling goroutine an OS thread of its own and,
 *		if configured, pin it and raise it to SCHED_FIFO.
 *
 * Description:	The goroutine stays locked to its thread for the rest
 *		of its life, so the settings never leak into the pool
 *		the Go scheduler hands out to other goroutines.
 *
 *		Typically needs CAP_SYS_NICE for the priority part.
 *
 *--------------------------------------------------------------------*/

func setupTickThread(rt RealtimeConfig) error {
	runtime.LockOSThread()

	var errs []error

	if rt.CPU >= 0 {
		var set unix.CPUSet
		set.Zero()
		set.Set(rt.CPU)

		if err := unix.SchedSetaffinity(0, &set); err != nil {
			errs = append(errs, fmt.Errorf("pin to cpu %d: %w", rt.CPU, err))
		}
	}

	if rt.Priority > 0 {
		var attr = unix.SchedAttr{ //nolint:exhaustruct
			Policy:   unix.SCHED_FIFO,
			Priority: uint32(rt.Priority), //nolint:gosec
		}

		if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
			errs = append(errs, fmt.Errorf("SCHED_FIFO priority %d: %w", rt.Priority, err))
		}
	}

	return errors.Join(errs...)
}

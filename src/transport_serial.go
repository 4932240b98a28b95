package rfcompanion

/*------------------------------------------------------------------
 *
 * Purpose:   	Command channel over a serial device or a pseudo
 *		terminal.
 *
 * Description:	A Bluetooth serial port profile link shows up as an
 *		RFCOMM tty (/dev/rfcomm0), a wired companion as a
 *		UART.  Both are opened raw.  The link drops whenever
 *		the phone goes away, so the device is reopened until
 *		shutdown.
 *
 *		The pseudo terminal is for local clients and tests.
 *		Its name changes every run; a symlink can point at it.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/creack/pty"
	"github.com/pkg/term"
	"golang.org/x/sys/unix"
)

const SERIAL_REOPEN_DELAY = 2 * time.Second

type SerialTransportConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type PtyTransportConfig struct {
	Enabled bool   `yaml:"enabled"`
	Symlink string `yaml:"symlink"`
}

func isClosedErr(err error) bool {
	return errors.Is(err, os.ErrClosed) || errors.Is(err, net.ErrClosed) || errors.Is(err, unix.EIO)
}

func openSerialPort(device string, baud int) (*term.Term, error) {
	var t, err = term.Open(device, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", device, err)
	}

	switch baud {
	case 0: // Leave it alone.
	case 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400:
		if err := t.SetSpeed(baud); err != nil {
			_ = t.Close()

			return nil, fmt.Errorf("serial port %s speed %d: %w", device, baud, err)
		}
	default:
		_ = t.Close()

		return nil, fmt.Errorf("serial port %s: unsupported speed %d", device, baud)
	}

	return t, nil
}

// ServeSerial runs command sessions on a serial device until ctx is done.
func ServeSerial(ctx context.Context, svc *Service, cfg SerialTransportConfig, logger *log.Logger) error {
	var l = logger.WithPrefix("serial " + cfg.Device)

	for {
		var t, err = openSerialPort(cfg.Device, cfg.Baud)
		if err != nil {
			l.Warn("Could not open, will retry", "err", err)
		} else {
			var session = NewCommandSession(svc, "serial "+cfg.Device, t, logger)
			if err := session.Serve(ctx); err != nil {
				l.Warn("Session ended", "err", err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(SERIAL_REOPEN_DELAY):
		}
	}
}

// PtyEndpoint is the client side of a command pseudo terminal.
type PtyEndpoint struct {
	Name string

	master *os.File
	slave  *os.File
}

/*-------------------------------------------------------------------
 *
 * Name:        OpenPty
 *
 * Purpose:     Create a pseudo terminal for the command protocol.
 *
 * Inputs:	symlink	- Optional stable path for the slave side.
 *			  An existing link is replaced.
 *
 * Description:	The slave side is set raw so replies are not echoed
 *		back as commands.  We keep it open ourselves so the
 *		master does not see EIO between clients.
 *
 *--------------------------------------------------------------------*/

func OpenPty(symlink string, logger *log.Logger) (*PtyEndpoint, error) {
	var master, slave, err = pty.Open()
	if err != nil {
		return nil, fmt.Errorf("create pseudo terminal: %w", err)
	}

	if err := makeRaw(int(slave.Fd())); err != nil { //nolint:gosec
		_ = master.Close()
		_ = slave.Close()

		return nil, err
	}

	var ep = &PtyEndpoint{Name: slave.Name(), master: master, slave: slave}

	if symlink != "" {
		_ = os.Remove(symlink)

		if err := os.Symlink(ep.Name, symlink); err != nil {
			logger.Warn("Failed to create symlink", "link", symlink, "err", err)
		} else {
			logger.Info("Created symlink", "link", symlink, "target", ep.Name)
		}
	}

	logger.Info("Command channel available on pseudo terminal", "path", ep.Name)

	return ep, nil
}

// Serve runs one command session on the master side until ctx is done.
func (ep *PtyEndpoint) Serve(ctx context.Context, svc *Service, logger *log.Logger) error {
	defer ep.slave.Close()

	var session = NewCommandSession(svc, "pty "+ep.Name, ep.master, logger)

	return session.Serve(ctx)
}

func (ep *PtyEndpoint) Close() error {
	return errors.Join(ep.master.Close(), ep.slave.Close())
}

// makeRaw is cfmakeraw(3).
func makeRaw(fd int) error {
	var tio, err = unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}

	tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	tio.Oflag &^= unix.OPOST
	tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	tio.Cflag &^= unix.CSIZE | unix.PARENB
	tio.Cflag |= unix.CS8
	tio.Cc[unix.VMIN] = 1
	tio.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, tio); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}

	return nil
}

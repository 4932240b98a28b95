package rfcompanion

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/charmbracelet/log"
)

type TCPTransportConfig struct {
	// host:port, empty to disable.
	Listen string `yaml:"listen"`

	// Announce with DNS-SD.  Name defaults to one built from the host name.
	Announce     bool   `yaml:"announce"`
	AnnounceName string `yaml:"announce_name"`

	MaxClients int `yaml:"max_clients"`
}

const DEFAULT_TCP_MAX_CLIENTS = 3

func ListenTCP(cfg TCPTransportConfig) (net.Listener, error) {
	var ln, err = net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("command listener: %w", err)
	}

	return ln, nil
}

/*-------------------------------------------------------------------
 *
 * Name:        ServeListener
 *
 * Purpose:     Accept command clients until ctx is done.
 *
 * Description:	Each connection gets its own session.  Clients over
 *		the limit are told ERR_BUSY and dropped.  On return
 *		every session has finished.
 *
 *--------------------------------------------------------------------*/

func ServeListener(ctx context.Context, ln net.Listener, svc *Service, maxClients int, logger *log.Logger) error {
	var l = logger.WithPrefix("tcp")
	if maxClients <= 0 {
		maxClients = DEFAULT_TCP_MAX_CLIENTS
	}

	var stop = context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	var slots = make(chan struct{}, maxClients)

	l.Info("Ready to accept command clients", "addr", ln.Addr())

	for {
		var conn, err = ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			return fmt.Errorf("accept: %w", err)
		}

		select {
		case slots <- struct{}{}:
		default:
			l.Warn("Too many clients, dropping", "remote", conn.RemoteAddr())
			_, _ = conn.Write([]byte(CMD_RESP_ERR_BUSY + "\n"))
			_ = conn.Close()

			continue
		}

		var origin = "tcp " + conn.RemoteAddr().String()

		wg.Go(func() {
			defer func() { <-slots }()

			if err := NewCommandSession(svc, origin, conn, logger).Serve(ctx); err != nil {
				l.Warn("Session ended", "origin", origin, "err", err)
			}
		})
	}
}

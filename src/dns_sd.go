package rfcompanion

/*------------------------------------------------------------------
 *
 * Purpose:   	Announce the TCP command service using DNS-SD, so a
 *		phone on the same network finds the companion without
 *		being told an address.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
)

const DNS_SD_SERVICE = "_rfcompanion._tcp"

func dnsSDDefaultServiceName() string {
	var hostname, err = os.Hostname()
	if err != nil {
		return "RF Companion"
	}

	// on some systems, an FQDN is returned; remove domain part
	hostname, _, _ = strings.Cut(hostname, ".")

	return "RF Companion on " + hostname
}

// AnnounceTCP responds to DNS-SD queries until ctx is done.
func AnnounceTCP(ctx context.Context, name string, port int, logger *log.Logger) error {
	var l = logger.WithPrefix("dns-sd")

	if name == "" {
		name = dnsSDDefaultServiceName()
	}

	var cfg = dnssd.Config{ //nolint:exhaustruct
		Name: name,
		Type: DNS_SD_SERVICE,
		Port: port,
	}

	var sv, svErr = dnssd.NewService(cfg)
	if svErr != nil {
		return fmt.Errorf("DNS-SD: create service: %w", svErr)
	}

	var rp, rpErr = dnssd.NewResponder()
	if rpErr != nil {
		return fmt.Errorf("DNS-SD: create responder: %w", rpErr)
	}

	if _, err := rp.Add(sv); err != nil {
		return fmt.Errorf("DNS-SD: add service: %w", err)
	}

	l.Info("Announcing command service", "port", port, "name", name)

	if err := rp.Respond(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("DNS-SD: responder: %w", err)
	}

	return nil
}

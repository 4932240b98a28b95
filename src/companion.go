package rfcompanion

/*------------------------------------------------------------------
 *
 * Purpose:   	Main program for the RF companion daemon.
 *
 * Description:	Opens the transmitter front end, loads the signal
 *		table and listens for commands on every configured
 *		channel until interrupted.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// Companion is the engine wired together: one antenna, its dispatcher and
// the service in front of it.
type Companion struct {
	Config     *Config
	Frontend   Frontend
	Antenna    *Antenna
	Dispatcher *Dispatcher
	Signals    *SignalTable
	Hub        *Hub
	Service    *Service

	log *log.Logger
}

func NewCompanion(cfg *Config, frontend Frontend, logger *log.Logger) (*Companion, error) {
	var signals, err = NewSignalTable(cfg.Signals, NewClemsaGenerator(cfg.Timing))
	if err != nil {
		return nil, fmt.Errorf("signals: %w", err)
	}

	var c = &Companion{ //nolint:exhaustruct
		Config:     cfg,
		Frontend:   frontend,
		Dispatcher: NewDispatcher(cfg.Dispatcher.QueueSize),
		Signals:    signals,
		Hub:        NewHub(logger),
		log:        logger,
	}

	c.Antenna = NewAntenna(cfg.Antenna, frontend, c.Dispatcher, logger)
	c.Service = NewService(c.Antenna, signals, c.Hub, logger)

	return c, nil
}

/*-------------------------------------------------------------------
 *
 * Name:        Run
 *
 * Purpose:     Serve until ctx is done or a channel fails.
 *
 * Description:	On the way out a transmission still on the air is
 *		cancelled and its cleanup run before the dispatcher
 *		stops, so the line is always left low.  The front end
 *		is closed last.
 *
 *--------------------------------------------------------------------*/

func (c *Companion) Run(ctx context.Context) error {
	var dctx, dstop = context.WithCancel(context.Background())
	var dispatched = make(chan error, 1)

	go func() { dispatched <- c.Dispatcher.Run(dctx) }()

	var g, gctx = errgroup.WithContext(ctx)

	if err := c.startChannels(gctx, g); err != nil {
		c.log.Error("Could not start", "err", err)
		g.Go(func() error { return err })
	}

	// Channels fail or ctx ends; either way gctx is done.
	<-gctx.Done()

	var err = g.Wait()

	if c.Antenna.Cancel() == nil {
		c.log.Info("Stopped transmission in progress")
	}

	dstop()

	err = errors.Join(err, <-dispatched, c.Frontend.Close())

	c.log.Info("Shut down")

	return err
}

func (c *Companion) startChannels(ctx context.Context, g *errgroup.Group) error {
	var cfg = c.Config

	if cfg.TxLog.Path != "" {
		var txlog, err = NewTxLog(cfg.TxLog, c.log)
		if err != nil {
			return err
		}

		g.Go(func() error { return txlog.Run(ctx, c.Hub) })
	}

	if cfg.Status.Chip != "" {
		var status, err = OpenStatusIndicator(cfg.Status, c.log)
		if err != nil {
			return err
		}

		g.Go(func() error { return status.Run(ctx, c.Hub) })
	}

	for _, sc := range cfg.Transports.Serial {
		g.Go(func() error { return ServeSerial(ctx, c.Service, sc, c.log) })
	}

	if cfg.Transports.Pty.Enabled {
		var ep, err = OpenPty(cfg.Transports.Pty.Symlink, c.log)
		if err != nil {
			return err
		}

		g.Go(func() error { return ep.Serve(ctx, c.Service, c.log) })
	}

	if cfg.Transports.TCP.Listen != "" {
		var ln, err = ListenTCP(cfg.Transports.TCP)
		if err != nil {
			return err
		}

		g.Go(func() error { return ServeListener(ctx, ln, c.Service, cfg.Transports.TCP.MaxClients, c.log) })

		if cfg.Transports.TCP.Announce {
			var addr, _ = ln.Addr().(*net.TCPAddr)
			if addr != nil {
				g.Go(func() error {
					// Not being discoverable is no reason to stop serving.
					if err := AnnounceTCP(ctx, cfg.Transports.TCP.AnnounceName, addr.Port, c.log); err != nil {
						c.log.Warn("DNS-SD announcement failed", "err", err)
					}

					return nil
				})
			}
		}
	}

	return nil
}

func listSignals(signals *SignalTable) {
	for _, e := range signals.All() {
		fmt.Printf("%3d  %-24s %s\n", e.ID, e.Tx.Name, e.Tx.Payload.Kind())
	}
}

func CompanionMain() {
	var configFileName = pflag.StringP("config-file", "c", "", "Configuration file name.  Default: search the usual locations.")
	var debug = pflag.BoolP("debug", "d", false, "Debug logging.")
	var frontendKind = pflag.StringP("frontend", "f", "", "Override the front end kind: gpio, clocked, serial or null.")
	var enablePty = pflag.BoolP("enable-ptty", "p", false, "Enable pseudo terminal for the command channel.")
	var tcpListen = pflag.StringP("tcp", "t", "", "Listen for command clients on this address, e.g. :8700.")
	var serialDevices = pflag.StringSliceP("serial", "s", nil, "Serve the command channel on this serial device.  May be repeated.")
	var serialSpeed = pflag.IntP("serial-speed", "b", 0, "Speed for --serial devices.  0 leaves it alone.")
	var list = pflag.BoolP("list", "l", false, "List the configured signals and exit.")
	var version = pflag.BoolP("version", "v", false, "Print version and exit.")
	var help = pflag.Bool("help", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - Send stored remote control signals on request.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	if *version {
		printVersion(*debug)
		os.Exit(0)
	}

	var cfg, source, err = LoadConfig(*configFileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	if *debug {
		cfg.Log.Level = "debug"
	}

	if *frontendKind != "" {
		cfg.Frontend.Kind = *frontendKind
	}

	if *enablePty {
		cfg.Transports.Pty.Enabled = true
	}

	if *tcpListen != "" {
		cfg.Transports.TCP.Listen = *tcpListen
	}

	for _, dev := range *serialDevices {
		cfg.Transports.Serial = append(cfg.Transports.Serial, SerialTransportConfig{Device: dev, Baud: *serialSpeed})
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	var logger, logErr = NewLogger(cfg.Log, os.Stderr)
	if logErr != nil {
		fmt.Fprintf(os.Stderr, "%s\n", logErr)
		os.Exit(1)
	}

	if source == "" {
		logger.Info("No configuration file found, using defaults")
	} else {
		logger.Info("Loaded configuration", "file", source)
	}

	if *list {
		var signals, _ = NewSignalTable(cfg.Signals, NewClemsaGenerator(cfg.Timing))
		listSignals(signals)
		os.Exit(0)
	}

	var frontend, feErr = OpenFrontend(cfg, logger)
	if feErr != nil {
		logger.Fatal("Could not open front end", "kind", cfg.Frontend.Kind, "err", feErr)
	}

	var c, cErr = NewCompanion(cfg, frontend, logger)
	if cErr != nil {
		_ = frontend.Close()
		logger.Fatal("Could not start", "err", cErr)
	}

	logger.Info("Ready", "antenna", cfg.Antenna, "frontend", cfg.Frontend.Kind, "signals", c.Signals.Len())

	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Run(ctx); err != nil {
		logger.Error("Exiting", "err", err)
		os.Exit(1) //nolint:gocritic
	}
}

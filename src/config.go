package rfcompanion

/*------------------------------------------------------------------
 *
 * Purpose:   	Configuration file.
 *
 * Description:	YAML, decoded over the defaults so a file only needs
 *		the parts that differ.  A signals: section replaces the
 *		built-in table as a whole.  Unknown keys are errors,
 *		they are nearly always typos.
 *
 *---------------------------------------------------------------*/

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

const (
	FRONTEND_GPIO    = "gpio"
	FRONTEND_CLOCKED = "clocked"
	FRONTEND_SERIAL  = "serial"
	FRONTEND_NULL    = "null"
)

var frontendKinds = []string{FRONTEND_GPIO, FRONTEND_CLOCKED, FRONTEND_SERIAL, FRONTEND_NULL}

// Tried in order when no file is named on the command line.
var configSearchLocations = []string{
	"rfcompanion.yaml",
	"/etc/rfcompanion/rfcompanion.yaml",
	"/usr/local/etc/rfcompanion.yaml",
}

type FrontendConfig struct {
	Kind string `yaml:"kind"`

	// gpio, clocked
	Chip string `yaml:"chip"`
	Line int    `yaml:"line"`

	// clocked
	ClockLine int `yaml:"clock_line"`
	ClockRate int `yaml:"clock_rate"`

	// serial
	Device  string `yaml:"device"`
	Control string `yaml:"control"`

	Invert bool `yaml:"invert"`

	// How long before a deadline the tick thread stops sleeping and spins.
	Spin time.Duration `yaml:"spin"`
}

type TransportsConfig struct {
	Serial []SerialTransportConfig `yaml:"serial"`
	Pty    PtyTransportConfig      `yaml:"pty"`
	TCP    TCPTransportConfig      `yaml:"tcp"`
}

type DispatcherConfig struct {
	QueueSize int `yaml:"queue_size"`
}

type Config struct {
	Antenna    string           `yaml:"antenna"`
	Frontend   FrontendConfig   `yaml:"frontend"`
	Timing     ClemsaTiming     `yaml:"timing"`
	Signals    []SignalConfig   `yaml:"signals"`
	Transports TransportsConfig `yaml:"transports"`
	Status     StatusConfig     `yaml:"status"`
	TxLog      TxLogConfig      `yaml:"txlog"`
	Log        LogConfig        `yaml:"log"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
}

func DefaultConfig() *Config {
	return &Config{
		Antenna: "main",
		Frontend: FrontendConfig{ //nolint:exhaustruct
			Kind: FRONTEND_NULL,
			Chip: "gpiochip0",
			Spin: DEFAULT_SPIN_WINDOW,
		},
		Timing:  DefaultClemsaTiming(),
		Signals: DefaultSignals(),
		Transports: TransportsConfig{
			Serial: nil,
			Pty:    PtyTransportConfig{Enabled: false, Symlink: ""},
			TCP: TCPTransportConfig{ //nolint:exhaustruct
				MaxClients: DEFAULT_TCP_MAX_CLIENTS,
			},
		},
		Status:     StatusConfig{}, //nolint:exhaustruct
		TxLog:      TxLogConfig{Path: "", Daily: false, Pattern: DEFAULT_TXLOG_PATTERN},
		Log:        DefaultLogConfig(),
		Realtime:   RealtimeConfig{CPU: -1, Priority: 0},
		Dispatcher: DispatcherConfig{QueueSize: DEFAULT_DISPATCH_QUEUE},
	}
}

// ParseConfig decodes YAML over the defaults and validates the result.
func ParseConfig(r io.Reader) (*Config, error) {
	var cfg = DefaultConfig()

	var dec = yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

/*-------------------------------------------------------------------
 *
 * Name:        LoadConfig
 *
 * Inputs:	path	- File to read.  Empty means try the usual
 *			  locations and fall back to the defaults
 *			  when there is none.
 *
 * Returns:	The configuration and the file it came from, "" for
 *		pure defaults.
 *
 *--------------------------------------------------------------------*/

func LoadConfig(path string) (*Config, string, error) {
	var candidates = configSearchLocations
	if path != "" {
		candidates = []string{path}
	}

	for _, location := range candidates {
		var data, err = os.ReadFile(location)
		if err != nil {
			if path == "" && errors.Is(err, os.ErrNotExist) {
				continue
			}

			return nil, "", fmt.Errorf("read configuration: %w", err)
		}

		var cfg, parseErr = ParseConfig(bytes.NewReader(data))
		if parseErr != nil {
			return nil, location, fmt.Errorf("%s: %w", location, parseErr)
		}

		return cfg, location, nil
	}

	var cfg = DefaultConfig()

	return cfg, "", cfg.Validate()
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Antenna == "" {
		errs = append(errs, errors.New("antenna: name must not be empty"))
	}

	if err := c.Timing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("timing: %w", err))
	}

	if !slices.Contains(frontendKinds, c.Frontend.Kind) {
		errs = append(errs, fmt.Errorf("frontend: kind %q, want one of %v", c.Frontend.Kind, frontendKinds))
	}

	switch c.Frontend.Kind {
	case FRONTEND_GPIO, FRONTEND_CLOCKED:
		if c.Frontend.Chip == "" {
			errs = append(errs, errors.New("frontend: chip is required"))
		}
	case FRONTEND_SERIAL:
		if c.Frontend.Device == "" {
			errs = append(errs, errors.New("frontend: device is required"))
		}
	}

	if c.Frontend.Kind == FRONTEND_CLOCKED && c.Frontend.ClockRate <= 0 {
		errs = append(errs, errors.New("frontend: clock_rate is required for a clocked front end"))
	}

	if c.Frontend.Spin < 0 {
		errs = append(errs, errors.New("frontend: spin must not be negative"))
	}

	if _, err := NewSignalTable(c.Signals, NewClemsaGenerator(c.Timing)); err != nil {
		errs = append(errs, fmt.Errorf("signals: %w", err))
	}

	for i, s := range c.Transports.Serial {
		if s.Device == "" {
			errs = append(errs, fmt.Errorf("transports: serial %d: device is required", i))
		}
	}

	if c.Realtime.Priority < 0 || c.Realtime.Priority > 99 {
		errs = append(errs, fmt.Errorf("realtime: priority %d not in 0-99", c.Realtime.Priority))
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}

	if c.Dispatcher.QueueSize < 0 {
		errs = append(errs, errors.New("dispatcher: queue_size must not be negative"))
	}

	return errors.Join(errs...)
}

// OpenFrontend opens the hardware path the configuration names.
func OpenFrontend(cfg *Config, logger *log.Logger) (Frontend, error) {
	var f = cfg.Frontend

	switch f.Kind {
	case FRONTEND_GPIO:
		return OpenGPIOFrontend(f, cfg.Realtime, logger)
	case FRONTEND_CLOCKED:
		return OpenClockedFrontend(f)
	case FRONTEND_SERIAL:
		return OpenSerialFrontend(f, cfg.Realtime, logger)
	case FRONTEND_NULL:
		return newLineFrontend("null", nullLine{}, f.Spin, cfg.Realtime, logger), nil
	default:
		return nil, fmt.Errorf("frontend kind %q, want one of %v", f.Kind, frontendKinds)
	}
}

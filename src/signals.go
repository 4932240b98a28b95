package rfcompanion

/*------------------------------------------------------------------
 *
 * Purpose:   	Table of the signals this companion knows how to send.
 *
 * Description:	Each entry becomes an immutable Transmission.  Requests
 *		name a signal either by its numeric id (what a GATT
 *		client writes) or by its name (what a text command
 *		carries).  Ids default to the 1-based position in the
 *		list.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	SIGNAL_TYPE_CLEMSA = "clemsa"
	SIGNAL_TYPE_FIXED  = "fixed"
)

const (
	TESLA_CHARGER_BIT_RATE    = 2479
	TESLA_CHARGER_GAP_TICKS   = 57
	TESLA_CHARGER_REPETITIONS = 5
	TESLA_CHARGER_SIGNAL_ID   = 5
	TESLA_CHARGER_SIGNAL_NAME = "tesla-charger"
)

// Charge port door opener.  26 bit 1010 preamble, sync byte 0x2B, then the
// Manchester-coded command.
var teslaChargerPayload = []byte{
	0x02, 0xAA, 0xAA, 0xAA,
	0x2B,
	0x2C, 0xCB, 0x33, 0x33, 0x2D, 0x34, 0xB5, 0x2B, 0x4D, 0x32,
	0xAD, 0x2C, 0x56, 0x59, 0x96, 0x66, 0x66, 0x5A, 0x69, 0x6A,
	0x56, 0x9A, 0x65, 0x5A, 0x58, 0xAC, 0xB3, 0x2C, 0xCC, 0xCC,
	0xB4, 0xD2, 0xD4, 0xAD, 0x34, 0xCA, 0xB4, 0xA0,
}

// SignalConfig is one entry of the signals: section.
type SignalConfig struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// clemsa
	Code string `yaml:"code"`

	// fixed
	Data                    string `yaml:"data"`
	BitRate                 int    `yaml:"bit_rate"`
	TicksBetweenRepetitions int    `yaml:"ticks_between_repetitions"`

	Repetitions int `yaml:"repetitions"`
}

// DefaultSignals is the stored code table shipped with the firmware.  Gate
// codes are private to each remote, so only a demo pattern is kept for those.
func DefaultSignals() []SignalConfig {
	return []SignalConfig{
		{ //nolint:exhaustruct
			ID:          1,
			Name:        "clemsa-demo",
			Type:        SIGNAL_TYPE_CLEMSA,
			Code:        "1011 0010 1100 0101 1110 0001 0110 1001 0011",
			Repetitions: CLEMSA_DEFAULT_REPETITION_COUNT,
		},
		{ //nolint:exhaustruct
			ID:                      TESLA_CHARGER_SIGNAL_ID,
			Name:                    TESLA_CHARGER_SIGNAL_NAME,
			Type:                    SIGNAL_TYPE_FIXED,
			Data:                    fmt.Sprintf("%x", teslaChargerPayload),
			BitRate:                 TESLA_CHARGER_BIT_RATE,
			TicksBetweenRepetitions: TESLA_CHARGER_GAP_TICKS,
			Repetitions:             TESLA_CHARGER_REPETITIONS,
		},
	}
}

type SignalEntry struct {
	ID int
	Tx *Transmission
}

type SignalTable struct {
	entries []SignalEntry
	byID    map[int]*Transmission
	byName  map[string]*Transmission
}

/*-------------------------------------------------------------------
 *
 * Name:        NewSignalTable
 *
 * Purpose:     Turn the signals: section into transmissions.
 *
 * Inputs:	configs	- Entries as read from the configuration.
 *
 *		clemsa	- Generator shared by every pulse code entry.
 *
 * Returns:	Every problem found, joined, so one run of the daemon
 *		reports the whole broken table.
 *
 *--------------------------------------------------------------------*/

func NewSignalTable(configs []SignalConfig, clemsa *ClemsaGenerator) (*SignalTable, error) {
	var t = &SignalTable{
		entries: nil,
		byID:    make(map[int]*Transmission),
		byName:  make(map[string]*Transmission),
	}

	var fixed = new(FixedCodeGenerator)
	var errs []error

	for i, sc := range configs {
		var id = sc.ID
		if id == 0 {
			id = i + 1
		}

		var tx, err = sc.transmission(clemsa, fixed)
		if err != nil {
			errs = append(errs, fmt.Errorf("signal %d (%q): %w", id, sc.Name, err))

			continue
		}

		if _, dup := t.byID[id]; dup {
			errs = append(errs, fmt.Errorf("signal %d (%q): duplicate id", id, sc.Name))

			continue
		}

		if _, dup := t.byName[tx.Name]; dup {
			errs = append(errs, fmt.Errorf("signal %d: duplicate name %q", id, tx.Name))

			continue
		}

		t.entries = append(t.entries, SignalEntry{ID: id, Tx: tx})
		t.byID[id] = tx
		t.byName[tx.Name] = tx
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return t, nil
}

func (sc SignalConfig) transmission(clemsa *ClemsaGenerator, fixed *FixedCodeGenerator) (*Transmission, error) {
	var name = strings.TrimSpace(sc.Name)
	if name == "" {
		return nil, errors.New("missing name")
	}

	if strings.ContainsAny(name, " \t\r\n,=") {
		return nil, errors.New("name may not contain spaces, ',' or '='")
	}

	switch sc.Type {
	case SIGNAL_TYPE_CLEMSA:
		var code, err = ParsePulseCode(sc.Code, sc.Repetitions)
		if err != nil {
			return nil, err
		}

		return &Transmission{Name: name, Generator: clemsa, Payload: code}, nil

	case SIGNAL_TYPE_FIXED:
		var data, err = ParseHexData(sc.Data)
		if err != nil {
			return nil, err
		}

		var code = FixedCode{
			Data:                    data,
			BitRate:                 sc.BitRate,
			Repetitions:             sc.Repetitions,
			TicksBetweenRepetitions: sc.TicksBetweenRepetitions,
		}
		if err := code.Validate(); err != nil {
			return nil, err
		}

		return &Transmission{Name: name, Generator: fixed, Payload: code}, nil

	default:
		return nil, fmt.Errorf("type %q is not %s or %s", sc.Type, SIGNAL_TYPE_CLEMSA, SIGNAL_TYPE_FIXED)
	}
}

// Lookup finds a signal by numeric id or by name.
func (t *SignalTable) Lookup(key string) (*Transmission, error) {
	key = strings.TrimSpace(key)

	if tx, ok := t.byName[key]; ok {
		return tx, nil
	}

	if id, err := strconv.Atoi(key); err == nil {
		return t.ByID(id)
	}

	return nil, fmt.Errorf("%q: %w", key, ErrUnknownSignal)
}

func (t *SignalTable) ByID(id int) (*Transmission, error) {
	if tx, ok := t.byID[id]; ok {
		return tx, nil
	}

	return nil, fmt.Errorf("id %d: %w", id, ErrUnknownSignal)
}

// All returns the entries in table order.
func (t *SignalTable) All() []SignalEntry {
	return append([]SignalEntry(nil), t.entries...)
}

func (t *SignalTable) Len() int {
	return len(t.entries)
}

package rfcompanion

/*------------------------------------------------------------------
 *
 * Purpose:	Save transmission requests and their outcome to a log
 *		file in CSV format for easy reading and later
 *		processing.
 *
 * Description: There are two alternatives here.
 *
 *		path: file.csv		Specify full file path.
 *
 *		path: dir, daily: true	Daily names will be created
 *					here, from a strftime pattern.
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

const DEFAULT_TXLOG_PATTERN = "%Y-%m-%d.csv"

var txLogHeader = []string{"seq", "utime", "isotime", "origin", "signal", "event", "elapsed_ms", "error"}

type TxLogConfig struct {
	// Empty disables the log.
	Path string `yaml:"path"`

	Daily   bool   `yaml:"daily"`
	Pattern string `yaml:"pattern"`
}

type TxLog struct {
	cfg     TxLogConfig
	pattern *strftime.Strftime
	log     *log.Logger

	f         *os.File
	w         *csv.Writer
	openFname string

	now func() time.Time
}

func NewTxLog(cfg TxLogConfig, logger *log.Logger) (*TxLog, error) {
	var l = &TxLog{cfg: cfg, log: logger.WithPrefix("txlog"), now: time.Now} //nolint:exhaustruct

	if cfg.Daily {
		var pattern = cfg.Pattern
		if pattern == "" {
			pattern = DEFAULT_TXLOG_PATTERN
		}

		var p, err = strftime.New(pattern)
		if err != nil {
			return nil, fmt.Errorf("log file pattern %q: %w", pattern, err)
		}

		l.pattern = p

		if err := os.MkdirAll(cfg.Path, 0o755); err != nil { //nolint:mnd
			return nil, fmt.Errorf("log directory: %w", err)
		}
	}

	return l, nil
}

// Run writes one row per notification worth recording until ctx is done.
func (l *TxLog) Run(ctx context.Context, hub *Hub) error {
	var sub = hub.Subscribe(32)
	defer sub.Close()
	defer l.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-sub.C:
			if n.Kind == EVENT_ANTENNA_STATE || n.Kind == EVENT_PROCESSING {
				continue
			}

			if err := l.Write(n); err != nil {
				l.log.Error("Could not write transmission log", "err", err)
			}
		}
	}
}

func (l *TxLog) Write(n Notification) error {
	var now = l.now().UTC()

	if err := l.open(now); err != nil {
		return err
	}

	var errText string
	if n.Err != nil {
		errText = n.Err.Error()
	}

	var record = []string{
		strconv.FormatUint(n.Seq, 10),
		strconv.FormatInt(now.Unix(), 10),
		now.Format("2006-01-02T15:04:05Z"),
		n.Origin,
		n.Signal,
		n.Kind.String(),
		strconv.FormatInt(n.Elapsed.Milliseconds(), 10),
		errText,
	}

	if err := l.w.Write(record); err != nil {
		return fmt.Errorf("log record: %w", err)
	}

	l.w.Flush()

	return l.w.Error() //nolint:wrapcheck
}

func (l *TxLog) fileName(now time.Time) string {
	if l.pattern == nil {
		return l.cfg.Path
	}

	return filepath.Join(l.cfg.Path, l.pattern.FormatString(now))
}

func (l *TxLog) open(now time.Time) error {
	var fname = l.fileName(now)

	// Close current file if name has changed.
	if l.f != nil && fname != l.openFname {
		l.Close()
	}

	if l.f != nil {
		return nil
	}

	var _, statErr = os.Stat(fname)
	var alreadyThere = statErr == nil

	l.log.Info("Opening log file", "path", fname)

	var f, err = os.OpenFile(fname, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644) //nolint:gosec,mnd
	if err != nil {
		return fmt.Errorf("can't open log file %q for write: %w", fname, err)
	}

	l.f = f
	l.w = csv.NewWriter(f)
	l.openFname = fname

	if !alreadyThere {
		if err := l.w.Write(txLogHeader); err != nil {
			return fmt.Errorf("log header: %w", err)
		}
	}

	return nil
}

func (l *TxLog) Close() {
	if l.f == nil {
		return
	}

	l.w.Flush()

	if err := l.f.Close(); err != nil {
		l.log.Warn("Closing log file", "path", l.openFname, "err", err)
	}

	l.f = nil
	l.w = nil
	l.openFname = ""
}

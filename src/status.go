package rfcompanion

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/warthog618/go-gpiocdev"
)

// StatusConfig names an indicator LED lit while the antenna is busy.
// An empty Chip disables it.
type StatusConfig struct {
	Chip   string `yaml:"chip"`
	Line   int    `yaml:"line"`
	Invert bool   `yaml:"invert"`
}

type StatusIndicator struct {
	line OutputLine
	log  *log.Logger
}

func NewStatusIndicator(line OutputLine, logger *log.Logger) *StatusIndicator {
	return &StatusIndicator{line: line, log: logger.WithPrefix("status")}
}

func OpenStatusIndicator(cfg StatusConfig, logger *log.Logger) (*StatusIndicator, error) {
	var options = []gpiocdev.LineReqOption{
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer(CONSUMER_NAME + "-status"),
	}
	if cfg.Invert {
		options = append(options, gpiocdev.AsActiveLow)
	}

	var line, err = gpiocdev.RequestLine(cfg.Chip, cfg.Line, options...)
	if err != nil {
		return nil, fmt.Errorf("request status line %s:%d: %w", cfg.Chip, cfg.Line, err)
	}

	return NewStatusIndicator(line, logger), nil
}

// Run follows antenna state changes until ctx is done, then turns the light
// off and releases the line.
func (s *StatusIndicator) Run(ctx context.Context, hub *Hub) error {
	var sub = hub.Subscribe(8)
	defer sub.Close()

	defer func() {
		_ = s.line.SetValue(0)
		_ = s.line.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-sub.C:
			if n.Kind != EVENT_ANTENNA_STATE {
				continue
			}

			var value = 0
			if n.Busy {
				value = 1
			}

			if err := s.line.SetValue(value); err != nil {
				s.log.Warn("Could not set status line", "busy", n.Busy, "err", err)
			}
		}
	}
}

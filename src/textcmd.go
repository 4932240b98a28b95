package rfcompanion

/*------------------------------------------------------------------
 *
 * Purpose:   	Line based command protocol spoken over every byte
 *		stream transport: Bluetooth serial port, pseudo terminal
 *		or TCP.
 *
 * Description:	One command per line, one reply line per command except
 *		nop.  A transmission that was admitted gets its reply
 *		later, when it ends:
 *
 *		  nop			no reply, keepalive
 *		  state			OK:busy | OK:free
 *		  list			OK:1=name,5=other
 *		  send <name|id>	OK | ERR_BUSY | ERR_UNKNOWN_SIGNAL | ERR_HW
 *		  <name>		same as send, ERR_INV_CMD if no such signal
 *		  cancel		OK (then ERR_CANCELLED to the sender)
 *						| ERR_NOT_BUSY
 *
 *---------------------------------------------------------------*/

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

const (
	CMD_NOP    = "nop"
	CMD_STATE  = "state"
	CMD_LIST   = "list"
	CMD_SEND   = "send"
	CMD_CANCEL = "cancel"
)

const (
	CMD_RESP_OK                 = "OK"
	CMD_RESP_OK_PREFIX          = "OK:"
	CMD_RESP_ERR_BUSY           = "ERR_BUSY"
	CMD_RESP_ERR_INV_CMD        = "ERR_INV_CMD"
	CMD_RESP_ERR_UNKNOWN_SIGNAL = "ERR_UNKNOWN_SIGNAL"
	CMD_RESP_ERR_HW             = "ERR_HW"
	CMD_RESP_ERR_CANCELLED      = "ERR_CANCELLED"
	CMD_RESP_ERR_NOT_BUSY       = "ERR_NOT_BUSY"
)

const MAX_COMMAND_LEN = 256

type CommandSession struct {
	svc    *Service
	origin string
	rwc    io.ReadWriteCloser
	log    *log.Logger

	wmu sync.Mutex
}

func NewCommandSession(svc *Service, origin string, rwc io.ReadWriteCloser, logger *log.Logger) *CommandSession {
	return &CommandSession{ //nolint:exhaustruct
		svc:    svc,
		origin: origin,
		rwc:    rwc,
		log:    logger.WithPrefix(origin),
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        Serve
 *
 * Purpose:     Read and answer commands until the peer goes away or
 *		ctx is done.
 *
 * Description:	The stream is closed on return.  Completion replies
 *		are written from a second goroutine fed by the hub.
 *
 *--------------------------------------------------------------------*/

func (c *CommandSession) Serve(ctx context.Context) error {
	var sub = c.svc.Hub().Subscribe(8)

	var stop = context.AfterFunc(ctx, func() { _ = c.rwc.Close() })
	defer stop()

	var forwarded = make(chan struct{})

	go func() {
		defer close(forwarded)
		c.forward(sub)
	}()

	defer func() {
		sub.Close()
		<-forwarded
		_ = c.rwc.Close()
	}()

	c.log.Info("Session open")

	var scanner = bufio.NewScanner(c.rwc)
	scanner.Buffer(make([]byte, 0, MAX_COMMAND_LEN), MAX_COMMAND_LEN)

	for scanner.Scan() {
		var line = strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if reply := c.Handle(line); reply != "" {
			if err := c.reply(reply); err != nil {
				return err
			}
		}
	}

	var err = scanner.Err()
	if ctx.Err() != nil || errors.Is(err, io.EOF) || isClosedErr(err) {
		err = nil
	}

	c.log.Info("Session closed", "err", err)

	return err
}

// Handle answers one command line.  An empty reply means none is due now.
func (c *CommandSession) Handle(line string) string {
	var verb, arg, _ = strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	c.log.Debug("Command", "verb", verb, "arg", arg)

	switch verb {
	case CMD_NOP:
		return ""

	case CMD_STATE:
		if c.svc.IsBusy() {
			return CMD_RESP_OK_PREFIX + "busy"
		}

		return CMD_RESP_OK_PREFIX + "free"

	case CMD_LIST:
		var parts []string
		for _, e := range c.svc.Signals().All() {
			parts = append(parts, strconv.Itoa(e.ID)+"="+e.Tx.Name)
		}

		return CMD_RESP_OK_PREFIX + strings.Join(parts, ",")

	case CMD_SEND:
		if arg == "" {
			return CMD_RESP_ERR_INV_CMD
		}

		return c.send(arg)

	case CMD_CANCEL:
		if err := c.svc.Cancel(c.origin); err != nil {
			return CMD_RESP_ERR_NOT_BUSY
		}

		return CMD_RESP_OK

	default:
		if arg != "" {
			return CMD_RESP_ERR_INV_CMD
		}

		if _, err := c.svc.Signals().Lookup(verb); err != nil {
			c.log.Warn("Received unknown command", "line", line)

			return CMD_RESP_ERR_INV_CMD
		}

		return c.send(verb)
	}
}

func (c *CommandSession) send(key string) string {
	var admission, err = c.svc.RequestTransmission(c.origin, key)

	switch {
	case errors.Is(err, ErrUnknownSignal):
		return CMD_RESP_ERR_UNKNOWN_SIGNAL
	case admission == REJECTED && err == nil:
		return CMD_RESP_ERR_BUSY
	default:
		// Accepted, or failed to start: the reply comes with the end notification.
		return ""
	}
}

func (c *CommandSession) forward(sub *Subscription) {
	for n := range sub.C {
		if n.Origin != c.origin {
			continue
		}

		var reply string

		switch n.Kind {
		case EVENT_COMPLETED:
			reply = CMD_RESP_OK
		case EVENT_CANCELLED:
			reply = CMD_RESP_ERR_CANCELLED
		case EVENT_FAILED:
			reply = CMD_RESP_ERR_HW
		default:
			continue
		}

		if err := c.reply(reply); err != nil {
			c.log.Warn("Could not deliver reply", "reply", reply, "err", err)
		}
	}
}

func (c *CommandSession) reply(msg string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if _, err := io.WriteString(c.rwc, msg+"\n"); err != nil {
		return fmt.Errorf("reply %s: %w", msg, err)
	}

	return nil
}

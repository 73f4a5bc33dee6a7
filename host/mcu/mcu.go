// Package mcu is the host-side client of the board's command protocol.
package mcu

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"f4periph/core"
	"f4periph/host/config"
	"f4periph/host/serial"
	"f4periph/protocol"
)

// DefaultTimeout bounds one command round trip.
const DefaultTimeout = 2 * time.Second

// StatusError is a command the firmware answered with a non-zero status.
// It unwraps to the matching core error, so errors.Is(err, core.ErrMode)
// works on the host.
type StatusError struct {
	Command uint16
	Code    uint8
}

func (e *StatusError) Error() string {
	return protocol.MessageName(e.Command) + ": " + core.ErrorOf(e.Code).Error()
}

func (e *StatusError) Unwrap() error {
	return core.ErrorOf(e.Code)
}

// Client speaks to one board. Commands are serialized; sample events that
// arrive while a command is in flight are buffered for Events.
type Client struct {
	link    *protocol.HostLink
	logger  *zap.SugaredLogger
	timeout time.Duration

	mu     sync.Mutex
	events chan protocol.SampleEvent
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithResendInterval sets how long a command waits for its acknowledgement
// before the block is written again.
func WithResendInterval(d time.Duration) Option {
	return func(c *Client) { c.link.SetResendInterval(d) }
}

// New starts a client on an open port. The client owns port.
func New(port io.ReadWriteCloser, logger *zap.SugaredLogger, opts ...Option) *Client {
	c := &Client{
		link:    protocol.NewHostLink(port),
		logger:  logger,
		timeout: DefaultTimeout,
		events:  make(chan protocol.SampleEvent, 64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial opens the configured serial port and starts a client on it.
func Dial(cfg *config.Config, logger *zap.SugaredLogger) (*Client, error) {
	port, err := serial.Open(cfg.SerialConfig())
	if err != nil {
		return nil, err
	}
	logger.Debugw("serial port open", "device", cfg.Serial.Device, "baud", cfg.Serial.Baud)
	ack := cfg.Serial.AckTimeout.Duration
	return New(port, logger, WithTimeout(ack*4), WithResendInterval(ack)), nil
}

// Close stops the link and closes the port.
func (c *Client) Close() error {
	return c.link.Close()
}

// Events delivers sample events seen by the client.
func (c *Client) Events() <-chan protocol.SampleEvent {
	return c.events
}

// call sends one command and consumes replies until its status arrives.
// Data replies go to onReply.
func (c *Client) call(ctx context.Context, cmd uint16, args func(protocol.OutputBuffer), onReply func(protocol.Message) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	name := protocol.MessageName(cmd)
	c.logger.Debugw("send", "command", name)
	if err := c.link.Send(ctx, cmd, args); err != nil {
		return err
	}

	for {
		msg, err := c.link.Receive(ctx)
		if err != nil {
			return errors.Wrapf(err, "waiting for %s reply", name)
		}
		switch msg.ID {
		case protocol.RspSampleEvent:
			c.queueEvent(msg)
		case protocol.RspStatus:
			var st protocol.Status
			if err := st.Decode(&msg.Args); err != nil {
				return errors.Wrap(err, "decoding status")
			}
			if uint16(st.Command) != cmd {
				c.logger.Debugw("stray status", "command", protocol.MessageName(uint16(st.Command)))
				continue
			}
			if st.Code != uint32(core.StatusOK) {
				return &StatusError{Command: cmd, Code: uint8(st.Code)}
			}
			return nil
		default:
			if onReply == nil {
				c.logger.Debugw("unexpected reply", "command", name, "reply", protocol.MessageName(msg.ID))
				continue
			}
			if err := onReply(msg); err != nil {
				return errors.Wrapf(err, "decoding %s", protocol.MessageName(msg.ID))
			}
		}
	}
}

func (c *Client) queueEvent(msg protocol.Message) {
	var ev protocol.SampleEvent
	if err := ev.Decode(&msg.Args); err != nil {
		c.logger.Warnw("bad sample event", "error", err)
		return
	}
	select {
	case c.events <- ev:
	default:
		c.logger.Warnw("sample event dropped", "channel", ev.Channel)
	}
}

// Watch delivers sample events to fn until ctx is done. No command may run
// while watching.
func (c *Client) Watch(ctx context.Context, fn func(protocol.SampleEvent)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		select {
		case ev := <-c.events:
			fn(ev)
			continue
		default:
		}
		msg, err := c.link.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if msg.ID != protocol.RspSampleEvent {
			continue
		}
		var ev protocol.SampleEvent
		if err := ev.Decode(&msg.Args); err != nil {
			c.logger.Warnw("bad sample event", "error", err)
			continue
		}
		fn(ev)
	}
}

func args(vals ...uint32) func(protocol.OutputBuffer) {
	return func(out protocol.OutputBuffer) {
		protocol.EncodeArgs(out, vals...)
	}
}

// Identify returns the board's identity.
func (c *Client) Identify(ctx context.Context) (protocol.Identity, error) {
	var id protocol.Identity
	err := c.call(ctx, protocol.CmdIdentify, nil, func(msg protocol.Message) error {
		if msg.ID != protocol.RspIdentify {
			return nil
		}
		return id.Decode(&msg.Args)
	})
	return id, err
}

// GPIORead returns a pin's level.
func (c *Client) GPIORead(ctx context.Context, pin uint8) (bool, error) {
	var high bool
	err := c.call(ctx, protocol.CmdGPIORead, args(uint32(pin)), func(msg protocol.Message) error {
		var p, v uint32
		if err := protocol.DecodeArgs(&msg.Args, &p, &v); err != nil {
			return err
		}
		high = v != 0
		return nil
	})
	return high, err
}

// GPIOWrite drives a pin.
func (c *Client) GPIOWrite(ctx context.Context, pin uint8, high bool) error {
	v := uint32(0)
	if high {
		v = 1
	}
	return c.call(ctx, protocol.CmdGPIOWrite, args(uint32(pin), v), nil)
}

// GPIOToggle inverts an output pin.
func (c *Client) GPIOToggle(ctx context.Context, pin uint8) error {
	return c.call(ctx, protocol.CmdGPIOToggle, args(uint32(pin)), nil)
}

// SPISelect asserts a bus's chip select.
func (c *Client) SPISelect(ctx context.Context, bus uint8) error {
	return c.call(ctx, protocol.CmdSPISelect, args(uint32(bus)), nil)
}

// SPIDeselect releases a bus's chip select.
func (c *Client) SPIDeselect(ctx context.Context, bus uint8) error {
	return c.call(ctx, protocol.CmdSPIDeselect, args(uint32(bus)), nil)
}

// SPIWrite clocks data out on a bus.
func (c *Client) SPIWrite(ctx context.Context, bus uint8, data []byte) error {
	return c.call(ctx, protocol.CmdSPIWrite, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(bus))
		protocol.EncodeVLQBytes(out, data)
	}, nil)
}

// SPIRead clocks n bytes in on a bus.
func (c *Client) SPIRead(ctx context.Context, bus uint8, n int) ([]byte, error) {
	var data []byte
	err := c.call(ctx, protocol.CmdSPIRead, args(uint32(bus), uint32(n)), func(msg protocol.Message) error {
		var b uint32
		if err := protocol.DecodeArgs(&msg.Args, &b); err != nil {
			return err
		}
		raw, err := protocol.DecodeVLQBytes(&msg.Args)
		if err != nil {
			return err
		}
		data = append([]byte(nil), raw...)
		return nil
	})
	return data, err
}

// ADCStart software-starts an ADC's regular sequence.
func (c *Client) ADCStart(ctx context.Context, adc uint8) error {
	return c.call(ctx, protocol.CmdADCStart, args(uint32(adc)), nil)
}

// ADCValue returns a channel's latest value and its ADC's sequence count.
func (c *Client) ADCValue(ctx context.Context, ch uint8) (value, generation uint32, err error) {
	err = c.call(ctx, protocol.CmdADCValue, args(uint32(ch)), func(msg protocol.Message) error {
		var got uint32
		return protocol.DecodeArgs(&msg.Args, &got, &value, &generation)
	})
	return value, generation, err
}

// ADCQuery samples a channel every period ticks; zero cancels.
func (c *Client) ADCQuery(ctx context.Context, ch uint8, period uint32) error {
	return c.call(ctx, protocol.CmdADCQuery, args(uint32(ch), period), nil)
}

// Trace returns the firmware's trace ring, oldest first.
func (c *Client) Trace(ctx context.Context) ([]protocol.TraceEntry, error) {
	var entries []protocol.TraceEntry
	err := c.call(ctx, protocol.CmdTraceDump, nil, func(msg protocol.Message) error {
		var e protocol.TraceEntry
		if err := e.Decode(&msg.Args); err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

package mcu

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"go.viam.com/test"

	"f4periph/board"
	"f4periph/core"
	"f4periph/core/coretest"
	"f4periph/host/logging"
	"f4periph/protocol"
)

// fakeBoard runs the firmware command path over one end of a pipe.
type fakeBoard struct {
	ctx  *core.Context
	hal  *coretest.HAL
	conn net.Conn

	mu   sync.Mutex
	link *protocol.Link
	out  *protocol.ScratchOutput
	done chan struct{}
}

func newFakeBoard(t *testing.T, conn net.Conn) *fakeBoard {
	t.Helper()
	hal := coretest.New()
	ctx, err := core.NewContext(hal, board.Tables(), core.Options{})
	test.That(t, err, test.ShouldBeNil)
	hal.Buffer = ctx.ADC.Samples()
	test.That(t, ctx.Init(), test.ShouldBeNil)

	b := &fakeBoard{ctx: ctx, hal: hal, conn: conn, out: protocol.NewScratchOutput(), done: make(chan struct{})}
	registry := core.NewCommandRegistry()
	b.link = protocol.NewLink(b.out, registry.Handler(b.send))
	core.RegisterPeripheralCommands(registry, ctx, b.send)
	go b.serve()
	return b
}

func (b *fakeBoard) send(id uint16, args func(protocol.OutputBuffer)) {
	b.link.Send(id, args)
}

func (b *fakeBoard) serve() {
	defer close(b.done)
	in := protocol.NewFifoBuffer(1024)
	buf := make([]byte, 256)
	for {
		n, err := b.conn.Read(buf)
		if err != nil {
			return
		}
		in.Write(buf[:n])

		b.mu.Lock()
		b.link.Receive(in)
		// Stand in for the DMA transfer-complete interrupt.
		if b.hal.Stream(core.DMA2, 0).TCPending {
			b.ctx.DMA.HandleTransferComplete(board.StreamADC1)
		}
		err = b.flush()
		b.mu.Unlock()
		if err != nil {
			return
		}
	}
}

// flush forwards queued events and writes pending output. Callers hold mu.
func (b *fakeBoard) flush() error {
	core.ForwardEvents(b.ctx, b.send)
	data := append([]byte(nil), b.out.Result()...)
	b.out.Reset()
	if len(data) == 0 {
		return nil
	}
	_, err := b.conn.Write(data)
	return err
}

// edge raises the trigger pin and runs its interrupt.
func (b *fakeBoard) edge() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hal.Drive(core.PortC, 1, false)
	b.hal.Drive(core.PortC, 1, true)
	b.ctx.GPIO.HandleEXTI(1)
	return b.flush()
}

func setup(t *testing.T) (*Client, *fakeBoard) {
	t.Helper()
	host, fw := net.Pipe()
	b := newFakeBoard(t, fw)
	c := New(host, logging.NewTestLogger(), WithTimeout(time.Second))
	t.Cleanup(func() {
		test.That(t, c.Close(), test.ShouldBeNil)
		<-b.done
	})
	return c, b
}

func TestIdentify(t *testing.T) {
	c, _ := setup(t)

	id, err := c.Identify(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, id, test.ShouldResemble, protocol.Identity{
		Version:  protocol.Version,
		Board:    board.Name,
		Pins:     uint32(board.PinLast),
		Streams:  uint32(board.StreamLast),
		Buses:    uint32(board.BusLast),
		ADCs:     uint32(board.ADCLast),
		Channels: uint32(board.ChannelLast),
	})
}

func TestGPIO(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()
	led := uint8(board.PinLED)

	test.That(t, c.GPIOWrite(ctx, led, true), test.ShouldBeNil)
	high, err := c.GPIORead(ctx, led)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, high, test.ShouldBeTrue)

	test.That(t, c.GPIOToggle(ctx, led), test.ShouldBeNil)
	high, err = c.GPIORead(ctx, led)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, high, test.ShouldBeFalse)
}

func TestStatusErrors(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	err := c.GPIOToggle(ctx, uint8(board.PinTrigger))
	test.That(t, errors.Is(err, core.ErrMode), test.ShouldBeTrue)
	var se *StatusError
	test.That(t, errors.As(err, &se), test.ShouldBeTrue)
	test.That(t, se.Command, test.ShouldEqual, protocol.CmdGPIOToggle)
	test.That(t, err.Error(), test.ShouldContainSubstring, "gpio_toggle")

	_, err = c.GPIORead(ctx, uint8(board.PinLast))
	test.That(t, errors.Is(err, core.ErrRange), test.ShouldBeTrue)

	// The link keeps working after a failed command.
	_, err = c.Identify(ctx)
	test.That(t, err, test.ShouldBeNil)
}

func TestSPI(t *testing.T) {
	c, b := setup(t)
	ctx := context.Background()
	bus := uint8(board.BusSdCard)

	b.mu.Lock()
	b.hal.Bus(core.SPI2).Replies = []uint16{0, 0, 0x01, 0xAA}
	b.mu.Unlock()

	test.That(t, c.SPISelect(ctx, bus), test.ShouldBeNil)
	test.That(t, c.SPIWrite(ctx, bus, []byte{0x48, 0x00}), test.ShouldBeNil)
	data, err := c.SPIRead(ctx, bus, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, data, test.ShouldResemble, []byte{0x01, 0xAA})
	test.That(t, c.SPIDeselect(ctx, bus), test.ShouldBeNil)

	_, err = c.SPIRead(ctx, bus, 200)
	test.That(t, errors.Is(err, core.ErrLength), test.ShouldBeTrue)

	b.mu.Lock()
	sent := append([]uint16(nil), b.hal.Bus(core.SPI2).Sent...)
	b.mu.Unlock()
	test.That(t, sent, test.ShouldResemble, []uint16{0x48, 0x00, 0xFF, 0xFF})
}

func TestADC(t *testing.T) {
	c, b := setup(t)
	ctx := context.Background()

	b.mu.Lock()
	b.hal.SetInput(core.ADC1, 1, 3100)
	b.mu.Unlock()

	test.That(t, c.ADCStart(ctx, uint8(board.ADCMain)), test.ShouldBeNil)
	value, gen, err := c.ADCValue(ctx, uint8(board.ChannelIn1))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, value, test.ShouldEqual, uint32(3100))
	test.That(t, gen, test.ShouldEqual, uint32(1))

	err = c.ADCQuery(ctx, uint8(board.ChannelLast), 1000)
	test.That(t, errors.Is(err, core.ErrRange), test.ShouldBeTrue)
	test.That(t, c.ADCQuery(ctx, uint8(board.ChannelIn0), 0), test.ShouldBeNil)
}

func TestWatch(t *testing.T) {
	c, b := setup(t)

	b.mu.Lock()
	b.hal.SetInput(core.ADC1, 0, 1234)
	b.mu.Unlock()
	go b.edge()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var got []protocol.SampleEvent
	err := c.Watch(ctx, func(ev protocol.SampleEvent) {
		got = append(got, ev)
		cancel()
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldHaveLength, 1)
	test.That(t, got[0].Channel, test.ShouldEqual, uint32(board.ChannelIn0))
	test.That(t, got[0].Value, test.ShouldEqual, uint32(1234))
}

func TestTrace(t *testing.T) {
	c, b := setup(t)
	core.ClearTrace()

	b.mu.Lock()
	b.hal.Drive(core.PortC, 1, true)
	b.ctx.GPIO.HandleEXTI(1)
	b.ctx.Events.Pop()
	b.mu.Unlock()

	entries, err := c.Trace(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(entries), test.ShouldBeGreaterThanOrEqualTo, 2)
	test.That(t, entries[0].Kind, test.ShouldEqual, uint32(core.EvtEdge))
	test.That(t, entries[0].ID, test.ShouldEqual, uint32(1))
}

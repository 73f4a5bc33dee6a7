// Package coretest provides a recording, simulating implementation of
// core.HAL for tests. It records every hardware access in order, models the
// GPIO data registers, EXTI pending flags, SPI data path and ADC-to-DMA
// delivery, and can be told to reject configurations or stall.
package coretest

import (
	"fmt"
	"sync"

	"f4periph/core"
)

const adcDataBase = 0x4001204C

type pinKey struct {
	port core.Port
	pin  uint8
}

type streamKey struct {
	ctrl   core.DMAController
	stream uint8
}

// Stream is the simulated state of one DMA stream.
type Stream struct {
	Config     core.StreamConfig
	Configured bool
	Enabled    bool
	FIFO       bool
	TCIRQ      bool
	TCPending  bool
}

// Bus is the simulated state of one SPI controller.
type Bus struct {
	Config   core.SPIConfig
	Poly     uint16
	Protocol core.SPIProtocol
	Enabled  bool
	// Sent records every frame written to the data register.
	Sent []uint16
	// Replies are returned by successive data register reads; 0 once empty.
	Replies []uint16
	// Stall keeps both status flags clear.
	Stall bool
	Polls int

	rxReady bool
}

// Converter is the simulated state of one ADC.
type Converter struct {
	Config   core.ADCConfig
	Regular  core.RegularConfig
	Ranks    map[uint8]uint8 // rank -> channel
	Sampling map[uint8]core.SamplingTime
	Enabled  bool
	Starts   int
	// Inputs is the value converted for each physical channel.
	Inputs map[uint8]uint32

	pending []uint32
}

// HAL implements core.HAL.
type HAL struct {
	mu    sync.Mutex
	calls []string

	odr     [9]uint16
	idr     [9]uint16
	pinCfg  map[pinKey]core.PinConfig
	exti    [16]bool
	extiCfg [16]core.Trigger

	streams map[streamKey]*Stream
	buses   [3]Bus
	adcs    [3]Converter

	Clocks     []core.Clock
	Priorities map[core.IRQ]uint8
	Enabled    map[core.IRQ]bool
	Prescaler  core.ADCPrescaler

	// Rejection switches.
	RejectPins   map[core.Port]map[uint8]bool
	RejectStream bool
	RejectSPI    bool
	RejectADC    bool

	// Buffer receives simulated DMA writes.
	Buffer *core.SampleBuffer
}

var _ core.HAL = (*HAL)(nil)

// New returns a HAL with every register cleared.
func New() *HAL {
	h := &HAL{
		pinCfg:     make(map[pinKey]core.PinConfig),
		streams:    make(map[streamKey]*Stream),
		Priorities: make(map[core.IRQ]uint8),
		Enabled:    make(map[core.IRQ]bool),
		RejectPins: make(map[core.Port]map[uint8]bool),
	}
	for i := range h.adcs {
		h.adcs[i].Ranks = make(map[uint8]uint8)
		h.adcs[i].Sampling = make(map[uint8]core.SamplingTime)
		h.adcs[i].Inputs = make(map[uint8]uint32)
	}
	return h
}

func (h *HAL) record(format string, args ...interface{}) {
	h.calls = append(h.calls, fmt.Sprintf(format, args...))
}

// Calls returns the recorded accesses in order.
func (h *HAL) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

// ResetCalls forgets recorded calls; simulated state is kept.
func (h *HAL) ResetCalls() {
	h.mu.Lock()
	h.calls = nil
	h.mu.Unlock()
}

// RejectPin makes ConfigurePin fail for one pin.
func (h *HAL) RejectPin(port core.Port, pin uint8) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.RejectPins[port] == nil {
		h.RejectPins[port] = make(map[uint8]bool)
	}
	h.RejectPins[port][pin] = true
}

func (h *HAL) EnableClock(c core.Clock) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("EnableClock(%d,%#x)", c.Bus, c.Mask)
	h.Clocks = append(h.Clocks, c)
}

func (h *HAL) SetPriority(irq core.IRQ, priority uint8) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("SetPriority(%d,%d)", irq, priority)
	h.Priorities[irq] = priority
}

func (h *HAL) EnableIRQ(irq core.IRQ) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("EnableIRQ(%d)", irq)
	h.Enabled[irq] = true
}

// GPIO

func (h *HAL) ConfigurePin(port core.Port, pin uint8, cfg core.PinConfig) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("ConfigurePin(%d,%d,mode=%d)", port, pin, cfg.Mode)
	if h.RejectPins[port][pin] {
		return fmt.Errorf("pin %d/%d rejected", port, pin)
	}
	h.pinCfg[pinKey{port, pin}] = cfg
	return nil
}

func (h *HAL) SetPin(port core.Port, pin uint8, high bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("SetPin(%d,%d,%t)", port, pin, high)
	if high {
		h.odr[port] |= 1 << pin
	} else {
		h.odr[port] &^= 1 << pin
	}
}

func (h *HAL) TogglePin(port core.Port, pin uint8) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("TogglePin(%d,%d)", port, pin)
	h.odr[port] ^= 1 << pin
}

func (h *HAL) OutputSet(port core.Port, pin uint8) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.odr[port]&(1<<pin) != 0
}

func (h *HAL) InputSet(port core.Port, pin uint8) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.idr[port]&(1<<pin) != 0
}

func (h *HAL) ConfigureEXTI(line uint8, port core.Port, trigger core.Trigger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("ConfigureEXTI(%d,%d,%d)", line, port, trigger)
	h.extiCfg[line] = trigger
}

func (h *HAL) ClearEXTI(line uint8) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("ClearEXTI(%d)", line)
	h.exti[line] = false
}

// Drive sets the physical input level of a pin and latches an EXTI flag when
// the edge matches the line's configured trigger.
func (h *HAL) Drive(port core.Port, pin uint8, high bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	was := h.idr[port]&(1<<pin) != 0
	if high {
		h.idr[port] |= 1 << pin
	} else {
		h.idr[port] &^= 1 << pin
	}
	t := h.extiCfg[pin]
	if !was && high && t&core.TriggerRising != 0 || was && !high && t&core.TriggerFalling != 0 {
		h.exti[pin] = true
	}
}

// Pending reports whether an EXTI line has a latched flag.
func (h *HAL) Pending(line uint8) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exti[line]
}

// PinConfig returns the configuration last applied to a pin.
func (h *HAL) PinConfig(port core.Port, pin uint8) (core.PinConfig, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cfg, ok := h.pinCfg[pinKey{port, pin}]
	return cfg, ok
}

// DMA

func (h *HAL) stream(ctrl core.DMAController, stream uint8) *Stream {
	k := streamKey{ctrl, stream}
	s := h.streams[k]
	if s == nil {
		s = &Stream{}
		h.streams[k] = s
	}
	return s
}

// Stream returns the simulated state of a DMA stream.
func (h *HAL) Stream(ctrl core.DMAController, stream uint8) Stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	return *h.stream(ctrl, stream)
}

func (h *HAL) ConfigureStream(ctrl core.DMAController, stream uint8, cfg core.StreamConfig) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("ConfigureStream(%d,%d,ch=%d,count=%d)", ctrl, stream, cfg.Channel, cfg.Count)
	if h.RejectStream {
		return fmt.Errorf("stream %d/%d rejected", ctrl, stream)
	}
	s := h.stream(ctrl, stream)
	s.Config = cfg
	s.Configured = true
	return nil
}

func (h *HAL) SetFIFO(ctrl core.DMAController, stream uint8, enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("SetFIFO(%d,%d,%t)", ctrl, stream, enabled)
	h.stream(ctrl, stream).FIFO = enabled
}

func (h *HAL) SetTransferCompleteIRQ(ctrl core.DMAController, stream uint8, enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("SetTransferCompleteIRQ(%d,%d,%t)", ctrl, stream, enabled)
	h.stream(ctrl, stream).TCIRQ = enabled
}

func (h *HAL) SetStreamEnabled(ctrl core.DMAController, stream uint8, enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("SetStreamEnabled(%d,%d,%t)", ctrl, stream, enabled)
	h.stream(ctrl, stream).Enabled = enabled
}

func (h *HAL) ClearTransferComplete(ctrl core.DMAController, stream uint8) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("ClearTransferComplete(%d,%d)", ctrl, stream)
	h.stream(ctrl, stream).TCPending = false
}

// SPI

// Bus returns the simulated state of an SPI controller.
func (h *HAL) Bus(ctrl core.SPIController) *Bus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return &h.buses[ctrl]
}

func (h *HAL) ConfigureSPI(ctrl core.SPIController, cfg core.SPIConfig) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("ConfigureSPI(%d,width=%d,div=%d)", ctrl, cfg.Width, cfg.BaudDivisor)
	if h.RejectSPI {
		return fmt.Errorf("spi %d rejected", ctrl)
	}
	h.buses[ctrl].Config = cfg
	return nil
}

func (h *HAL) SetCRCPolynomial(ctrl core.SPIController, poly uint16) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("SetCRCPolynomial(%d,%d)", ctrl, poly)
	h.buses[ctrl].Poly = poly
}

func (h *HAL) SetProtocol(ctrl core.SPIController, p core.SPIProtocol) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("SetProtocol(%d,%d)", ctrl, p)
	h.buses[ctrl].Protocol = p
}

func (h *HAL) EnableSPI(ctrl core.SPIController) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("EnableSPI(%d)", ctrl)
	h.buses[ctrl].Enabled = true
}

func (h *HAL) TxEmpty(ctrl core.SPIController) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	b := &h.buses[ctrl]
	b.Polls++
	return !b.Stall
}

func (h *HAL) RxNotEmpty(ctrl core.SPIController) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	b := &h.buses[ctrl]
	b.Polls++
	return !b.Stall && b.rxReady
}

func (h *HAL) WriteData(ctrl core.SPIController, v uint16) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b := &h.buses[ctrl]
	b.Sent = append(b.Sent, v)
	b.rxReady = true
}

func (h *HAL) ReadData(ctrl core.SPIController) uint16 {
	h.mu.Lock()
	defer h.mu.Unlock()
	b := &h.buses[ctrl]
	b.rxReady = false
	if len(b.Replies) == 0 {
		return 0
	}
	v := b.Replies[0]
	b.Replies = b.Replies[1:]
	return v
}

// ADC

// Converter returns the simulated state of an ADC.
func (h *HAL) Converter(ctrl core.ADCController) *Converter {
	h.mu.Lock()
	defer h.mu.Unlock()
	return &h.adcs[ctrl]
}

// SetInput sets the value the ADC converts for a physical channel.
func (h *HAL) SetInput(ctrl core.ADCController, channel uint8, v uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.adcs[ctrl].Inputs[channel] = v
}

func (h *HAL) SetCommonPrescaler(p core.ADCPrescaler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("SetCommonPrescaler(%d)", p)
	h.Prescaler = p
}

func (h *HAL) ConfigureADC(ctrl core.ADCController, cfg core.ADCConfig) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("ConfigureADC(%d)", ctrl)
	if h.RejectADC {
		return fmt.Errorf("adc %d rejected", ctrl)
	}
	h.adcs[ctrl].Config = cfg
	return nil
}

func (h *HAL) ConfigureRegular(ctrl core.ADCController, cfg core.RegularConfig) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("ConfigureRegular(%d,len=%d,dma=%t)", ctrl, cfg.Length, cfg.DMA)
	h.adcs[ctrl].Regular = cfg
	return nil
}

func (h *HAL) ConfigureChannel(ctrl core.ADCController, rank uint8, channel uint8, sampling core.SamplingTime) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("ConfigureChannel(%d,rank=%d,ch=%d)", ctrl, rank, channel)
	h.adcs[ctrl].Ranks[rank] = channel
	h.adcs[ctrl].Sampling[channel] = sampling
}

func (h *HAL) EnableADC(ctrl core.ADCController) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("EnableADC(%d)", ctrl)
	h.adcs[ctrl].Enabled = true
}

// StartRegular converts the whole regular sequence at once. With a DMA stream
// enabled on the data register the results are written into Buffer; otherwise
// they queue for ReadConversion.
func (h *HAL) StartRegular(ctrl core.ADCController) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("StartRegular(%d)", ctrl)
	a := &h.adcs[ctrl]
	a.Starts++

	values := make([]uint32, 0, len(a.Ranks))
	for rank := uint8(1); int(rank) <= len(a.Ranks); rank++ {
		values = append(values, a.Inputs[a.Ranks[rank]])
	}
	if s := h.dmaFor(ctrl); s != nil {
		h.deliver(s, values)
		return
	}
	a.pending = append(a.pending, values...)
}

func (h *HAL) dmaFor(ctrl core.ADCController) *Stream {
	addr := h.dataAddress(ctrl)
	for _, s := range h.streams {
		if s.Enabled && s.Configured && s.Config.PeriphAddr == addr {
			return s
		}
	}
	return nil
}

// deliver writes values one word per element, wrapping at the element count
// the way a circular stream does.
func (h *HAL) deliver(s *Stream, values []uint32) {
	count := int(s.Config.Count)
	if count == 0 || h.Buffer == nil {
		return
	}
	for i, v := range values {
		idx := i % count
		addr := s.Config.MemAddr
		if s.Config.MemIncrement {
			addr += uintptr(idx * 4)
		}
		h.Buffer.StoreAddr(addr, v)
	}
	if len(values) >= count {
		s.TCPending = true
	}
}

func (h *HAL) dataAddress(ctrl core.ADCController) uintptr {
	return uintptr(adcDataBase + 0x100*uintptr(ctrl))
}

func (h *HAL) DataAddress(ctrl core.ADCController) uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dataAddress(ctrl)
}

func (h *HAL) ReadConversion(ctrl core.ADCController) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	a := &h.adcs[ctrl]
	if len(a.pending) == 0 {
		return 0
	}
	v := a.pending[0]
	a.pending = a.pending[1:]
	return v
}

// GPIO registry
// Describes every logical pin, applies its configuration once and owns the
// external-interrupt wiring that starts the edge-triggered sampling chain.
package core

import "go.uber.org/multierr"

const extiLines = 16

// PinInterrupt describes the edge-detect wiring of an input pin.
type PinInterrupt struct {
	Line     uint8   // EXTI line; equals the pin bit position on this chip
	Trigger  Trigger // edge polarity
	Enabled  bool
	PortMux  Port // SYSCFG source selector
	IRQ      IRQ
	Priority uint8
}

// PinDescriptor is the compile-time description of one logical pin.
type PinDescriptor struct {
	Port      Port
	Pin       uint8 // bit position 0-15
	Config    PinConfig
	Clock     Clock
	Interrupt *PinInterrupt // nil when the pin has no edge detection
}

// EdgeHandler runs in interrupt context after the pin's EXTI flag is cleared.
// It must not block.
type EdgeHandler func(pin PinID)

// GPIOBackend is the hardware a GPIORegistry drives.
type GPIOBackend interface {
	GPIOHardware
	ClockTree
	InterruptController
}

// GPIORegistry configures and operates the board's logical pins.
type GPIORegistry struct {
	hw          GPIOBackend
	pins        Table[PinID, PinDescriptor]
	lineOwner   [extiLines]int16 // pin owning each EXTI line, -1 if none
	subscribers [][]EdgeHandler
	initialized bool
}

// NewGPIORegistry validates the pin table and returns a registry for it.
func NewGPIORegistry(hw GPIOBackend, pins Table[PinID, PinDescriptor]) (*GPIORegistry, error) {
	g := &GPIORegistry{
		hw:          hw,
		pins:        pins,
		subscribers: make([][]EdgeHandler, pins.Len()),
	}
	for i := range g.lineOwner {
		g.lineOwner[i] = -1
	}

	var err error
	pins.Each(func(id PinID, d PinDescriptor) {
		if err != nil {
			return
		}
		if d.Pin >= 16 {
			err = &PinError{Pin: id, Err: ErrBadDescriptor}
			return
		}
		it := d.Interrupt
		if it == nil {
			return
		}
		// A line can only be routed from one port at a time.
		if it.Line != d.Pin || it.PortMux != d.Port || g.lineOwner[it.Line] >= 0 {
			err = &PinError{Pin: id, Err: ErrBadDescriptor}
			return
		}
		g.lineOwner[it.Line] = int16(id)
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Pins returns the descriptor table.
func (g *GPIORegistry) Pins() Table[PinID, PinDescriptor] {
	return g.pins
}

// Subscribe registers fn to run on every edge of pin. Subscriptions are made
// at configuration time, before Init arms the interrupt controller.
func (g *GPIORegistry) Subscribe(pin PinID, fn EdgeHandler) error {
	d, err := g.pins.Get(pin)
	if err != nil {
		return err
	}
	if fn == nil {
		return ErrNilArgument
	}
	if d.Interrupt == nil {
		return ErrNoInterrupt
	}
	if g.initialized {
		return ErrInitialized
	}
	g.subscribers[pin] = append(g.subscribers[pin], fn)
	return nil
}

// Init configures every pin in declaration order. A rejected pin does not stop
// the others; all rejections are returned together as PinErrors wrapping
// ErrConfigRejected.
func (g *GPIORegistry) Init() error {
	var errs error

	g.pins.Each(func(id PinID, d PinDescriptor) {
		g.hw.EnableClock(d.Clock)

		if d.Config.Mode == ModeOutput {
			g.hw.SetPin(d.Port, d.Pin, false)
		}

		if err := g.hw.ConfigurePin(d.Port, d.Pin, d.Config); err != nil {
			RecordTrace(EvtPinRejected, uint8(id), 0)
			errs = multierr.Append(errs, &PinError{Pin: id, Err: ErrConfigRejected})
			return
		}

		it := d.Interrupt
		if it == nil || !it.Enabled {
			return
		}
		g.hw.ConfigureEXTI(it.Line, it.PortMux, it.Trigger)
		g.hw.SetPriority(it.IRQ, it.Priority)
		g.hw.EnableIRQ(it.IRQ)
	})

	g.initialized = true
	if errs != nil {
		DebugPrintln("[GPIO] init failed: " + errs.Error())
	}
	return errs
}

// Toggle inverts an output pin.
func (g *GPIORegistry) Toggle(pin PinID) error {
	d, err := g.pins.Get(pin)
	if err != nil {
		return err
	}
	if d.Config.Mode != ModeOutput {
		return ErrMode
	}
	g.hw.TogglePin(d.Port, d.Pin)
	return nil
}

// Read returns the last driven level of an output pin or the physical level of
// an input pin.
func (g *GPIORegistry) Read(pin PinID) (bool, error) {
	d, err := g.pins.Get(pin)
	if err != nil {
		return false, err
	}
	switch d.Config.Mode {
	case ModeOutput:
		return g.hw.OutputSet(d.Port, d.Pin), nil
	case ModeInput:
		return g.hw.InputSet(d.Port, d.Pin), nil
	default:
		return false, ErrMode
	}
}

// Write sets or clears the pin's output latch. Only the id is validated; on a
// pin not configured as output the effect is whatever the hardware does with
// its output data register.
func (g *GPIORegistry) Write(pin PinID, high bool) error {
	d, err := g.pins.Get(pin)
	if err != nil {
		return err
	}
	g.hw.SetPin(d.Port, d.Pin, high)
	return nil
}

// HandleEXTI is the edge-detect interrupt path for one line. The latched flag is
// cleared before any subscriber runs so a fast repeated edge re-latches instead
// of being lost.
func (g *GPIORegistry) HandleEXTI(line uint8) {
	if line >= extiLines {
		return
	}
	g.hw.ClearEXTI(line)

	owner := g.lineOwner[line]
	if owner < 0 {
		return
	}
	RecordTrace(EvtEdge, line, 0)
	for _, fn := range g.subscribers[owner] {
		fn(PinID(owner))
	}
}

// Peripheral context
// One value built at startup that owns every peripheral component and the
// plumbing between interrupt handlers and the foreground loop.
package core

// Options are the runtime knobs of a Context.
type Options struct {
	// SpinLimit bounds every SPI flag wait.
	SpinLimit uint32
	// EventQueueSize is the capacity of the interrupt-to-foreground queue.
	EventQueueSize int
}

const (
	DefaultSpinLimit      = 100000
	DefaultEventQueueSize = 16
)

func (o *Options) applyDefaults() {
	if o.SpinLimit == 0 {
		o.SpinLimit = DefaultSpinLimit
	}
	if o.EventQueueSize == 0 {
		o.EventQueueSize = DefaultEventQueueSize
	}
}

// TriggerBinding wires an edge on Pin to a conversion whose result for
// Channel is posted as a sample event.
type TriggerBinding struct {
	Pin     PinID
	Channel ChannelID
}

// BoardTables is the complete declarative description of a board.
type BoardTables struct {
	Name     string
	Pins     Table[PinID, PinDescriptor]
	Streams  Table[StreamID, StreamDescriptor]
	Buses    Table[BusID, BusDescriptor]
	ADCs     Table[ADCID, ADCDescriptor]
	Channels Table[ChannelID, ChannelBinding]
	Triggers []TriggerBinding
}

// Context owns the peripheral components of one board.
type Context struct {
	Name   string
	GPIO   *GPIORegistry
	DMA    *DMAManager
	SPI    *SPIManager
	ADC    *ADCSampler
	Events *EventQueue

	sched   Scheduler
	now     uint32   // tick of the dispatch in progress
	queries []*Timer // periodic sampling timer per channel
}

// NewContext validates the board tables, builds the components and binds the
// declared triggers. Nothing touches hardware until Init.
func NewContext(hal HAL, tables BoardTables, opts Options) (*Context, error) {
	opts.applyDefaults()

	gpio, err := NewGPIORegistry(hal, tables.Pins)
	if err != nil {
		return nil, err
	}
	dma, err := NewDMAManager(hal, tables.Streams)
	if err != nil {
		return nil, err
	}
	adc, err := NewADCSampler(hal, dma, tables.ADCs, tables.Channels)
	if err != nil {
		return nil, err
	}
	if err := validateChipSelects(tables.Buses, tables.Pins); err != nil {
		return nil, err
	}

	c := &Context{
		Name:    tables.Name,
		GPIO:    gpio,
		DMA:     dma,
		SPI:     NewSPIManager(hal, gpio, tables.Buses, opts.SpinLimit),
		ADC:     adc,
		Events:  NewEventQueue(opts.EventQueueSize),
		queries: make([]*Timer, tables.Channels.Len()),
	}
	for _, t := range tables.Triggers {
		if err := c.BindTrigger(t.Pin, t.Channel); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func validateChipSelects(buses Table[BusID, BusDescriptor], pins Table[PinID, PinDescriptor]) error {
	var err error
	buses.Each(func(id BusID, d BusDescriptor) {
		if err == nil && !pins.Valid(d.ChipSelect) {
			err = &SubsystemError{Subsystem: "spi", ID: uint8(id), Err: ErrBadDescriptor}
		}
	})
	return err
}

// Init brings the board up: GPIO, then every SPI bus, then every ADC instance.
// It stops at the first subsystem that fails and reports which one.
func (c *Context) Init() error {
	if err := c.GPIO.Init(); err != nil {
		return &SubsystemError{Subsystem: "gpio", ID: NoID, Err: err}
	}

	var err error
	c.SPI.Buses().Each(func(id BusID, _ BusDescriptor) {
		if err != nil {
			return
		}
		if e := c.SPI.Init(id); e != nil {
			err = &SubsystemError{Subsystem: "spi", ID: uint8(id), Err: e}
		}
	})
	if err != nil {
		return err
	}

	c.ADC.Instances().Each(func(id ADCID, _ ADCDescriptor) {
		if err != nil {
			return
		}
		if e := c.ADC.Init(id); e != nil {
			err = &SubsystemError{Subsystem: "adc", ID: uint8(id), Err: e}
		}
	})
	if err != nil {
		DebugPrintln("[CTX] init failed: " + err.Error())
	}
	return err
}

// BindTrigger subscribes to edges on pin. Each edge starts a conversion on the
// channel's ADC and posts the channel's latest value. Must be called before Init.
func (c *Context) BindTrigger(pin PinID, ch ChannelID) error {
	adc, err := c.ADC.ChannelADC(ch)
	if err != nil {
		return err
	}
	return c.GPIO.Subscribe(pin, func(PinID) {
		c.sample(adc, ch)
	})
}

// sample runs in interrupt or timer context.
func (c *Context) sample(adc ADCID, ch ChannelID) {
	if err := c.ADC.StartConversion(adc); err != nil {
		return
	}
	RecordTrace(EvtConversionStart, uint8(adc), uint32(ch))
	v, _ := c.ADC.ChannelValue(ch)
	c.Events.Post(Event{Channel: ch, Value: v, Tick: GetTime()})
}

// Query samples ch every period ticks from the foreground scheduler, starting
// one period from now. A zero period cancels. A late Tick samples once and
// resumes one period after it.
func (c *Context) Query(ch ChannelID, period uint32) error {
	adc, err := c.ADC.ChannelADC(ch)
	if err != nil {
		return err
	}
	if t := c.queries[ch]; t != nil {
		c.sched.Cancel(t)
		c.queries[ch] = nil
	}
	if period == 0 {
		return nil
	}
	if st, _ := c.ADC.State(adc); st != ADCRunning {
		return ErrNotRunning
	}

	t := &Timer{WakeTime: GetTime() + period}
	t.Handler = func(t *Timer) uint8 {
		c.sample(adc, ch)
		t.WakeTime += period
		// Periods missed by a slow loop are skipped, not replayed.
		if !before(c.now, t.WakeTime) {
			t.WakeTime = c.now + period
		}
		return SF_RESCHEDULE
	}
	c.queries[ch] = t
	c.sched.Schedule(t)
	return nil
}

// Tick runs due periodic work. Call it from the foreground loop.
func (c *Context) Tick(now uint32) {
	c.now = now
	c.sched.Dispatch(now)
}

// Poll drains queued events into fn and returns how many were handled.
func (c *Context) Poll(fn func(Event)) int {
	n := 0
	for {
		e, ok := c.Events.Pop()
		if !ok {
			return n
		}
		fn(e)
		n++
	}
}

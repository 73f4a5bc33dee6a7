// DMA channel manager
// Streams are described statically; the addresses and length a stream moves are
// supplied once by the peripheral that owns it.
package core

// StreamDescriptor is the compile-time description of one DMA stream.
type StreamDescriptor struct {
	Controller          DMAController
	Stream              uint8 // 0-7
	Channel             uint8 // request channel 0-7
	Direction           Direction
	Priority            DMAPriority
	Circular            bool
	PeriphIncrement     bool
	MemIncrement        bool
	PeriphSize          DataSize
	MemSize             DataSize
	FIFO                bool
	InterruptOnComplete bool
	IRQ                 IRQ
	IRQPriority         uint8
	Clock               Clock
}

// Binding is the runtime half of a stream: where it reads, where it writes and
// how many elements per cycle.
type Binding struct {
	Source     uintptr // peripheral (or memory source) address
	Dest       uintptr
	Count      uint16
	OnComplete func(StreamID) // called from the transfer-complete interrupt; may be nil
}

// DMABackend is the hardware a DMAManager drives.
type DMABackend interface {
	DMAHardware
	ClockTree
	InterruptController
}

// DMAManager configures and runs DMA streams.
type DMAManager struct {
	hw       DMABackend
	streams  Table[StreamID, StreamDescriptor]
	bindings []Binding
	bound    []bool
}

// NewDMAManager returns a manager over the stream table.
func NewDMAManager(hw DMABackend, streams Table[StreamID, StreamDescriptor]) (*DMAManager, error) {
	var err error
	streams.Each(func(id StreamID, d StreamDescriptor) {
		if d.Stream > 7 || d.Channel > 7 {
			err = &SubsystemError{Subsystem: "dma", ID: uint8(id), Err: ErrBadDescriptor}
		}
	})
	if err != nil {
		return nil, err
	}
	return &DMAManager{
		hw:       hw,
		streams:  streams,
		bindings: make([]Binding, streams.Len()),
		bound:    make([]bool, streams.Len()),
	}, nil
}

// Streams returns the descriptor table.
func (m *DMAManager) Streams() Table[StreamID, StreamDescriptor] {
	return m.streams
}

// Init binds and configures a stream. The binding is stored before the
// hardware step and is never rolled back: a failed Init leaves the clock
// enabled and the stream bound, and the stream stays unusable until reset.
func (m *DMAManager) Init(id StreamID, b Binding) error {
	d, err := m.streams.Get(id)
	if err != nil {
		return err
	}
	if b.Source == 0 || b.Dest == 0 {
		return ErrNilArgument
	}
	if m.bound[id] {
		return ErrAlreadyBound
	}

	m.hw.EnableClock(d.Clock)
	m.bindings[id] = b
	m.bound[id] = true

	cfg := StreamConfig{
		Channel:         d.Channel,
		Direction:       d.Direction,
		Priority:        d.Priority,
		Circular:        d.Circular,
		PeriphIncrement: d.PeriphIncrement,
		MemIncrement:    d.MemIncrement,
		PeriphSize:      d.PeriphSize,
		MemSize:         d.MemSize,
		Count:           b.Count,
		PeriphAddr:      b.Source,
		MemAddr:         b.Dest,
	}
	if err := m.hw.ConfigureStream(d.Controller, d.Stream, cfg); err != nil {
		RecordTrace(EvtStreamRejected, uint8(id), 0)
		return ErrConfigRejected
	}

	m.hw.SetFIFO(d.Controller, d.Stream, d.FIFO)

	if d.InterruptOnComplete {
		m.hw.SetTransferCompleteIRQ(d.Controller, d.Stream, true)
		m.hw.SetPriority(d.IRQ, d.IRQPriority)
		m.hw.EnableIRQ(d.IRQ)
	} else {
		m.hw.SetTransferCompleteIRQ(d.Controller, d.Stream, false)
	}
	return nil
}

// Binding returns the runtime binding of a stream and whether it is bound.
func (m *DMAManager) Binding(id StreamID) (Binding, bool, error) {
	if !m.streams.Valid(id) {
		return Binding{}, false, ErrRange
	}
	return m.bindings[id], m.bound[id], nil
}

// EnableStream sets the stream's run bit.
func (m *DMAManager) EnableStream(id StreamID) error {
	d, err := m.streams.Get(id)
	if err != nil {
		return err
	}
	m.hw.SetStreamEnabled(d.Controller, d.Stream, true)
	return nil
}

// DisableStream clears the stream's run bit.
func (m *DMAManager) DisableStream(id StreamID) error {
	d, err := m.streams.Get(id)
	if err != nil {
		return err
	}
	m.hw.SetStreamEnabled(d.Controller, d.Stream, false)
	return nil
}

// HandleTransferComplete is the transfer-complete interrupt path of a stream.
func (m *DMAManager) HandleTransferComplete(id StreamID) {
	d, err := m.streams.Get(id)
	if err != nil {
		return
	}
	m.hw.ClearTransferComplete(d.Controller, d.Stream)
	if cb := m.bindings[id].OnComplete; cb != nil {
		cb(id)
	}
}

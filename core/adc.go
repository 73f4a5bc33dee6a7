// ADC sampler
// Channels are bound to ADC instances by rank. A DMA-enabled instance streams
// its regular sequence circularly into its own region of the SampleBuffer, so
// the latest value of every channel is always resident without per-sample CPU work.
package core

import "sync/atomic"

// ADCDescriptor is the compile-time description of one ADC instance.
type ADCDescriptor struct {
	Controller  ADCController
	Config      ADCConfig
	Regular     RegularConfig // Regular.Length must equal the bound channel count
	Prescaler   ADCPrescaler  // shared analog clock prescaler
	Clock       Clock
	Stream      StreamID // DMA stream used when Regular.DMA is set
	IRQ         IRQ
	IRQPriority uint8
}

// ChannelBinding maps a logical channel to its instance and sequencer rank.
type ChannelBinding struct {
	ADC      ADCID
	Rank     uint8 // 1-based position in the regular sequence
	Channel  uint8 // physical input selector
	Sampling SamplingTime
}

// ADCState is the lifecycle of one instance.
type ADCState uint8

const (
	ADCUninitialized ADCState = iota
	ADCConfigured
	ADCRunning
)

// ADCBackend is the hardware an ADCSampler drives.
type ADCBackend interface {
	ADCHardware
	ClockTree
	InterruptController
}

// ADCSampler configures ADC instances and serves their latest samples.
type ADCSampler struct {
	hw       ADCBackend
	dma      *DMAManager
	adcs     Table[ADCID, ADCDescriptor]
	channels Table[ChannelID, ChannelBinding]
	samples  *SampleBuffer

	slot       []int      // sample slot per channel
	base       []int      // first slot per instance
	count      []int      // bound channels per instance
	state      []ADCState // per instance
	generation []uint32   // completed sequences per instance
	cursor     []int      // next rank slot for interrupt delivery
}

// NewADCSampler validates the instance and channel tables and lays out the
// sample buffer: each instance owns a contiguous run of slots ordered by rank.
func NewADCSampler(hw ADCBackend, dma *DMAManager, adcs Table[ADCID, ADCDescriptor], channels Table[ChannelID, ChannelBinding]) (*ADCSampler, error) {
	a := &ADCSampler{
		hw:         hw,
		dma:        dma,
		adcs:       adcs,
		channels:   channels,
		samples:    NewSampleBuffer(channels.Len()),
		slot:       make([]int, channels.Len()),
		base:       make([]int, adcs.Len()),
		count:      make([]int, adcs.Len()),
		state:      make([]ADCState, adcs.Len()),
		generation: make([]uint32, adcs.Len()),
		cursor:     make([]int, adcs.Len()),
	}

	var err error
	channels.Each(func(ch ChannelID, b ChannelBinding) {
		if err == nil && !adcs.Valid(b.ADC) {
			err = &SubsystemError{Subsystem: "adc channel", ID: uint8(ch), Err: ErrBadDescriptor}
			return
		}
		if err == nil {
			a.count[b.ADC]++
		}
	})
	if err != nil {
		return nil, err
	}

	offset := 0
	adcs.Each(func(id ADCID, d ADCDescriptor) {
		a.base[id] = offset
		offset += a.count[id]
		if err != nil {
			return
		}
		if a.count[id] == 0 || int(d.Regular.Length) != a.count[id] {
			err = &SubsystemError{Subsystem: "adc", ID: uint8(id), Err: ErrBadDescriptor}
			return
		}
		if d.Regular.DMA {
			sd, serr := dma.Streams().Get(d.Stream)
			if serr != nil || sd.MemSize != SizeWord || !sd.Circular {
				err = &SubsystemError{Subsystem: "adc", ID: uint8(id), Err: ErrBadDescriptor}
			}
		}
	})
	if err != nil {
		return nil, err
	}

	// Ranks of an instance must be exactly 1..n.
	seen := make([]bool, channels.Len())
	channels.Each(func(ch ChannelID, b ChannelBinding) {
		if err != nil {
			return
		}
		if b.Rank == 0 || int(b.Rank) > a.count[b.ADC] {
			err = &SubsystemError{Subsystem: "adc channel", ID: uint8(ch), Err: ErrBadDescriptor}
			return
		}
		s := a.base[b.ADC] + int(b.Rank) - 1
		if seen[s] {
			err = &SubsystemError{Subsystem: "adc channel", ID: uint8(ch), Err: ErrBadDescriptor}
			return
		}
		seen[s] = true
		a.slot[ch] = s
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Samples exposes the shared value buffer.
func (a *ADCSampler) Samples() *SampleBuffer {
	return a.samples
}

// Instances returns the instance table.
func (a *ADCSampler) Instances() Table[ADCID, ADCDescriptor] {
	return a.adcs
}

// Channels returns the channel table.
func (a *ADCSampler) Channels() Table[ChannelID, ChannelBinding] {
	return a.channels
}

// Init configures one instance and leaves it running. Steps are strictly
// ordered: clock, prescaler, instance, regular sequence, channel ranks, DMA,
// enable, interrupt.
func (a *ADCSampler) Init(id ADCID) error {
	d, err := a.adcs.Get(id)
	if err != nil {
		return err
	}
	if a.state[id] != ADCUninitialized {
		return ErrInitialized
	}
	ctrl := d.Controller

	a.hw.EnableClock(d.Clock)
	a.hw.SetCommonPrescaler(d.Prescaler)
	if err := a.hw.ConfigureADC(ctrl, d.Config); err != nil {
		return ErrConfigRejected
	}
	if err := a.hw.ConfigureRegular(ctrl, d.Regular); err != nil {
		return ErrConfigRejected
	}
	a.channels.Each(func(_ ChannelID, b ChannelBinding) {
		if b.ADC == id {
			a.hw.ConfigureChannel(ctrl, b.Rank, b.Channel, b.Sampling)
		}
	})
	a.state[id] = ADCConfigured

	if d.Regular.DMA {
		err := a.dma.Init(d.Stream, Binding{
			Source: a.hw.DataAddress(ctrl),
			Dest:   a.samples.Addr(a.base[id]),
			Count:  uint16(a.count[id]),
			OnComplete: func(StreamID) {
				atomic.AddUint32(&a.generation[id], 1)
				RecordTrace(EvtTransferComplete, uint8(id), 0)
			},
		})
		if err != nil {
			return err
		}
		if err := a.dma.EnableStream(d.Stream); err != nil {
			return err
		}
	}

	a.hw.EnableADC(ctrl)
	a.hw.SetPriority(d.IRQ, d.IRQPriority)
	a.hw.EnableIRQ(d.IRQ)
	a.state[id] = ADCRunning
	return nil
}

// State returns the lifecycle state of an instance.
func (a *ADCSampler) State(id ADCID) (ADCState, error) {
	if !a.adcs.Valid(id) {
		return ADCUninitialized, ErrRange
	}
	return a.state[id], nil
}

// StartConversion software-starts the regular sequence and returns at once.
// Results arrive later in the SampleBuffer.
func (a *ADCSampler) StartConversion(id ADCID) error {
	d, err := a.adcs.Get(id)
	if err != nil {
		return err
	}
	if a.state[id] != ADCRunning {
		return ErrNotRunning
	}
	a.hw.StartRegular(d.Controller)
	return nil
}

// ChannelValue returns the last value delivered for ch. The read is not
// synchronized with delivery beyond being whole-word.
func (a *ADCSampler) ChannelValue(ch ChannelID) (uint32, error) {
	if !a.channels.Valid(ch) {
		return 0, ErrRange
	}
	return a.samples.Load(a.slot[ch]), nil
}

// ChannelADC returns the instance a channel is bound to.
func (a *ADCSampler) ChannelADC(ch ChannelID) (ADCID, error) {
	b, err := a.channels.Get(ch)
	if err != nil {
		return 0, err
	}
	return b.ADC, nil
}

// Generation counts completed sequences of an instance; a change between two
// reads means fresh samples were delivered.
func (a *ADCSampler) Generation(id ADCID) (uint32, error) {
	if !a.adcs.Valid(id) {
		return 0, ErrRange
	}
	return atomic.LoadUint32(&a.generation[id]), nil
}

// HandleInterrupt is the end-of-conversion interrupt path. Instances without
// DMA deliver through it one rank at a time; DMA instances ignore it.
func (a *ADCSampler) HandleInterrupt(id ADCID) {
	d, err := a.adcs.Get(id)
	if err != nil || d.Regular.DMA || a.state[id] != ADCRunning {
		return
	}
	v := a.hw.ReadConversion(d.Controller)
	a.samples.Store(a.base[id]+a.cursor[id], v)
	a.cursor[id]++
	if a.cursor[id] == a.count[id] {
		a.cursor[id] = 0
		atomic.AddUint32(&a.generation[id], 1)
	}
}

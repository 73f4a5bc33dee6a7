package core_test

import (
	"testing"

	"f4periph/core"
	"f4periph/core/coretest"
)

// Logical ids of the test board.
const (
	pinLED core.PinID = iota
	pinCS
	pinButton
	pinAnalog
	pinLast
)

const (
	busFlash core.BusID = iota
	busWide
	busLast
)

const (
	streamADC core.StreamID = iota
	streamLast
)

const (
	adcDMA core.ADCID = iota
	adcIRQ
	adcLast
)

const (
	chTemp core.ChannelID = iota
	chVref
	chPot
	chLast
)

var outputPin = core.PinConfig{Mode: core.ModeOutput, Speed: core.SpeedLow, OutputType: core.PushPull}

func testPins() core.Table[core.PinID, core.PinDescriptor] {
	return core.NewTable[core.PinID](
		core.PinDescriptor{Port: core.PortD, Pin: 12, Config: outputPin, Clock: core.Clock{Bus: core.AHB1, Mask: 1 << 3}},
		core.PinDescriptor{Port: core.PortB, Pin: 12, Config: outputPin, Clock: core.Clock{Bus: core.AHB1, Mask: 1 << 1}},
		core.PinDescriptor{
			Port:   core.PortA,
			Pin:    0,
			Config: core.PinConfig{Mode: core.ModeInput, Pull: core.PullDown},
			Clock:  core.Clock{Bus: core.AHB1, Mask: 1 << 0},
			Interrupt: &core.PinInterrupt{
				Line: 0, Trigger: core.TriggerRising, Enabled: true,
				PortMux: core.PortA, IRQ: 6, Priority: 3,
			},
		},
		core.PinDescriptor{Port: core.PortA, Pin: 1, Config: core.PinConfig{Mode: core.ModeAnalog}, Clock: core.Clock{Bus: core.AHB1, Mask: 1 << 0}},
	)
}

func testStreams() core.Table[core.StreamID, core.StreamDescriptor] {
	return core.NewTable[core.StreamID](core.StreamDescriptor{
		Controller:          core.DMA2,
		Stream:              0,
		Channel:             0,
		Direction:           core.PeriphToMemory,
		Priority:            core.PriorityHigh,
		Circular:            true,
		MemIncrement:        true,
		PeriphSize:          core.SizeWord,
		MemSize:             core.SizeWord,
		InterruptOnComplete: true,
		IRQ:                 56,
		IRQPriority:         4,
		Clock:               core.Clock{Bus: core.AHB1, Mask: 1 << 22},
	})
}

func testBuses() core.Table[core.BusID, core.BusDescriptor] {
	cfg := core.SPIConfig{
		Direction:   core.FullDuplex,
		Role:        core.RoleMaster,
		Width:       core.Width8,
		NSS:         core.NSSSoft,
		BaudDivisor: 2,
	}
	wide := cfg
	wide.Width = core.Width16
	return core.NewTable[core.BusID](
		core.BusDescriptor{Controller: core.SPI2, ChipSelect: pinCS, Config: cfg, CRCPolynomial: 7, Clock: core.Clock{Bus: core.APB1, Mask: 1 << 14}},
		core.BusDescriptor{Controller: core.SPI3, ChipSelect: pinCS, Config: wide, CRCPolynomial: 7, Clock: core.Clock{Bus: core.APB1, Mask: 1 << 15}},
	)
}

func testADCs() core.Table[core.ADCID, core.ADCDescriptor] {
	return core.NewTable[core.ADCID](
		core.ADCDescriptor{
			Controller: core.ADC1,
			Config:     core.ADCConfig{Resolution: core.Resolution12, Scan: true},
			Regular:    core.RegularConfig{Trigger: core.TriggerSoftware, Length: 2, DMA: true},
			Prescaler:  core.PrescalerDiv4,
			Clock:      core.Clock{Bus: core.APB2, Mask: 1 << 8},
			Stream:     streamADC,
			IRQ:        18,
		},
		core.ADCDescriptor{
			Controller: core.ADC2,
			Config:     core.ADCConfig{Resolution: core.Resolution12},
			Regular:    core.RegularConfig{Trigger: core.TriggerSoftware, Length: 1},
			Prescaler:  core.PrescalerDiv4,
			Clock:      core.Clock{Bus: core.APB2, Mask: 1 << 9},
			IRQ:        18,
		},
	)
}

func testChannels() core.Table[core.ChannelID, core.ChannelBinding] {
	return core.NewTable[core.ChannelID](
		core.ChannelBinding{ADC: adcDMA, Rank: 2, Channel: 16, Sampling: core.Sampling480},
		core.ChannelBinding{ADC: adcDMA, Rank: 1, Channel: 17, Sampling: core.Sampling480},
		core.ChannelBinding{ADC: adcIRQ, Rank: 1, Channel: 1, Sampling: core.Sampling84},
	)
}

func testTables() core.BoardTables {
	return core.BoardTables{
		Name:     "testboard",
		Pins:     testPins(),
		Streams:  testStreams(),
		Buses:    testBuses(),
		ADCs:     testADCs(),
		Channels: testChannels(),
	}
}

// newContext builds a context over the test tables with the simulator's DMA
// target pointed at the context's sample buffer.
func newContext(t *testing.T, tables core.BoardTables) (*core.Context, *coretest.HAL) {
	t.Helper()
	hal := coretest.New()
	ctx, err := core.NewContext(hal, tables, core.Options{SpinLimit: 50, EventQueueSize: 4})
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	hal.Buffer = ctx.ADC.Samples()
	return ctx, hal
}

func initContext(t *testing.T, tables core.BoardTables) (*core.Context, *coretest.HAL) {
	t.Helper()
	ctx, hal := newContext(t, tables)
	if err := ctx.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	hal.ResetCalls()
	core.ClearTrace()
	return ctx, hal
}
